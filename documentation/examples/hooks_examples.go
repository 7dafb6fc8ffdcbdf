//go:build example

// Package main demonstrates query hook patterns in go-dynquery.
//
// This example shows how to:
// 1. Scope every query to a tenant with a before-query hook
// 2. Redact columns from responses with an after-query hook
// 3. Feed request data into hooks through context middleware
// 4. Enforce pagination and in-list limits with ServiceConfig
// 5. Use the builder and GormScopes directly, without the HTTP surface
//
// Note: This is a standalone example file that demonstrates hook concepts.
// It cannot be run directly with other example files due to package conflicts.
package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"time"

	dynquery "github.com/nlstn/go-dynquery"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

// Example 1: Tenant Scoping with a Before-Query Hook
// ==================================================

// Invoice is a multi-tenant table. TenantID never appears in client
// requests; the hook below pins it server-side.
type Invoice struct {
	ID       int
	TenantID string
	Number   string `dynquery:"searchable"`
	Status   string
	Total    float64
	IssuedAt time.Time
}

// tenantScope returns the before-query hook. The scope it returns is
// trusted SQL: it is compiled ahead of everything the client sent, so a
// request can never widen it.
func tenantScope() dynquery.BeforeQueryHook {
	return func(ctx context.Context, table string, req *dynquery.Request) ([]dynquery.Scope, error) {
		tenant, ok := tenantFromContext(ctx)
		if !ok {
			return nil, fmt.Errorf("request is not associated with a tenant")
		}
		return []dynquery.Scope{
			{Condition: "tenant_id = ?", Args: []any{tenant}},
		}, nil
	}
}

// Example 2: Feeding Request Data into Hooks
// ==========================================

// Hooks receive the request context. The HTTP surface attaches a request
// ID to it, but anything else the hook needs (tenant, principal, claims)
// is the caller's job: wrap the handler in middleware that resolves the
// value and stores it under your own context key.

type contextKey string

const tenantContextKey contextKey = "tenant"

func withTenant(ctx context.Context, tenant string) context.Context {
	return context.WithValue(ctx, tenantContextKey, tenant)
}

func tenantFromContext(ctx context.Context) (string, bool) {
	tenant, ok := ctx.Value(tenantContextKey).(string)
	return tenant, ok && tenant != ""
}

// tenantMiddleware resolves the tenant from a header. In production this
// would validate a JWT and extract the tenant claim instead.
func tenantMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tenant := r.Header.Get("X-Tenant")
		if tenant == "" {
			http.Error(w, "missing X-Tenant header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(withTenant(r.Context(), tenant)))
	})
}

// Example 3: Redacting Columns with an After-Query Hook
// =====================================================

// After-query hooks run on the assembled page before it is written out.
// Rows are plain maps, so redaction is a delete and annotation is an
// assignment.
func redactTotals() dynquery.AfterQueryHook {
	return func(ctx context.Context, table string, page *dynquery.Page) error {
		if table != "invoices" {
			return nil
		}
		for _, row := range page.Data {
			delete(row, "total")
		}
		return nil
	}
}

// auditPages logs which page of which table each caller read. The request
// ID ties the log line back to the HTTP request that caused it.
func auditPages() dynquery.AfterQueryHook {
	return func(ctx context.Context, table string, page *dynquery.Page) error {
		requestID, _ := dynquery.RequestIDFromContext(ctx)
		log.Printf("audit: request=%s table=%s page=%d rows=%d",
			requestID, table, page.Pagination.CurrentPage, len(page.Data))
		return nil
	}
}

// Example 4: Complete Service Setup
// =================================

func main() {
	db, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	if err != nil {
		log.Fatal(err)
	}
	if err := db.AutoMigrate(&Invoice{}); err != nil {
		log.Fatal(err)
	}

	invoices := []Invoice{
		{ID: 1, TenantID: "acme", Number: "INV-0001", Status: "paid", Total: 1200, IssuedAt: time.Now().AddDate(0, -2, 0)},
		{ID: 2, TenantID: "acme", Number: "INV-0002", Status: "open", Total: 420, IssuedAt: time.Now().AddDate(0, -1, 0)},
		{ID: 3, TenantID: "globex", Number: "INV-9001", Status: "open", Total: 77, IssuedAt: time.Now()},
	}
	for i := range invoices {
		if err := db.Create(&invoices[i]).Error; err != nil {
			log.Fatal(err)
		}
	}

	// Pagination limits are service-wide. DefaultPageSize pages requests
	// that sent no pagination block; MaxPageSize clamps oversized ones.
	service, err := dynquery.NewServiceWithConfig(db, dynquery.ServiceConfig{
		DefaultPageSize: 25,
		MaxPageSize:     200,
		MaxInListSize:   500,
	})
	if err != nil {
		log.Fatal(err)
	}
	if err := service.RegisterTable(Invoice{}); err != nil {
		log.Fatal(err)
	}

	service.OnBeforeQuery(tenantScope())
	service.OnAfterQuery(redactTotals())
	service.OnAfterQuery(auditPages())

	// The middleware runs outside the handler, so hooks see the tenant on
	// every query and count.
	handler := tenantMiddleware(service.Handler())

	log.Println("Serving on :8080; try:")
	log.Println(`  curl -s -H "X-Tenant: acme" localhost:8080/invoices/query -d '{"filters": {"status": "open"}}'`)
	log.Fatal(http.ListenAndServe(":8080", handler))
}

// Example 5: Driving the Service Without HTTP
// ===========================================

// Hooks also run for direct calls. Attach the tenant to the context
// yourself and call Query, Count or QueryPage.
func directQuery(service *dynquery.Service) {
	ctx := withTenant(context.Background(), "acme")

	page, err := service.QueryPage(ctx, "invoices", &dynquery.Request{
		Filters: dynquery.Filters{
			{Field: "status", Condition: dynquery.Eq("open")},
			{Field: "issued_at", Condition: dynquery.Gte("2024-01-01T00:00:00Z")},
		},
		Sort: []dynquery.SortField{{Field: "issued_at", Direction: dynquery.Descending}},
		Page: &dynquery.PageSpec{Page: 1, PageSize: 20},
	})
	if err != nil {
		log.Fatal(err)
	}
	log.Printf("%d of %d open invoices", len(page.Data), page.Pagination.TotalCount)
}

// Example 6: Compiling SQL Without Executing
// ==========================================

// The builder compiles to a statement plus parameter map without touching
// a database, for callers that run the SQL through their own layer.
func compileOnly() {
	q, err := dynquery.NewBuilderFor(dynquery.DialectPostgres, "invoices").
		Where("status", dynquery.OpEqual, "open").
		WhereBetween("total", 100, 1000).
		OrderBy("issued_at", dynquery.Descending).
		Paginate(1, 50).
		Build()
	if err != nil {
		log.Fatal(err)
	}
	// q.SQL uses $1..$3; q.Args() yields the values in order.
	log.Println(q.SQL, q.Args())
}

// Example 7: Scoping Existing GORM Queries
// ========================================

// GormScopes translates a request into gorm scopes for callers that load
// their own models instead of generic row maps.
func gormQuery(db *gorm.DB, req *dynquery.Request) ([]Invoice, error) {
	scopes, err := dynquery.GormScopes(req)
	if err != nil {
		return nil, err
	}
	var invoices []Invoice
	if err := db.Scopes(scopes...).Where("tenant_id = ?", "acme").Find(&invoices).Error; err != nil {
		return nil, err
	}
	return invoices, nil
}

// Key Takeaways for Hooks:
// ========================
//
// 1. Before-Query Hooks Guard, After-Query Hooks Shape
//    - Before hooks run ahead of compilation and can reject or scope
//    - After hooks see the final page and can redact or annotate
//
// 2. Scopes Are Trusted SQL
//    - Scope conditions bypass column validation on purpose
//    - Never interpolate client input into a scope condition; use Args
//
// 3. Use Context Middleware for Request Data
//    - The handler only attaches a request ID to the context
//    - Resolve tenants, principals and claims in your own middleware
//
// 4. Hooks Apply to Every Execution Path
//    - HTTP queries, HTTP counts and direct Query/Count/QueryPage calls
//      all run the before hooks
//    - After hooks run on paged executions, where a page exists to shape
//
// 5. Limits Are Configuration, Not Hooks
//    - Page size caps and in-list limits belong in ServiceConfig
//    - Hooks are for per-request decisions, not static policy
