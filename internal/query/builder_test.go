package query

import (
	"database/sql"
	"reflect"
	"strings"
	"testing"

	_ "github.com/mattn/go-sqlite3" // SQLite driver for execution tests
)

func setupBuilderTestDB(t *testing.T) *sql.DB {
	t.Helper()

	db, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("Failed to open database: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	_, err = db.Exec(`
		CREATE TABLE products (
			id INTEGER PRIMARY KEY,
			name TEXT NOT NULL,
			price REAL,
			category TEXT
		)
	`)
	if err != nil {
		t.Fatalf("Failed to create table: %v", err)
	}

	_, err = db.Exec(`
		INSERT INTO products (id, name, price, category) VALUES
		(1, 'Product 1', 10.5, 'A'),
		(2, 'Product 2', 20.0, 'B'),
		(3, 'Product 3', 15.5, 'A'),
		(4, 'Product 4', 30.0, 'C')
	`)
	if err != nil {
		t.Fatalf("Failed to insert test data: %v", err)
	}

	return db
}

func TestBuilder_BasicSelect(t *testing.T) {
	q, err := NewBuilder("products").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products`"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if len(q.Params) != 0 {
		t.Errorf("Expected no params, got %v", q.Params)
	}
}

func TestBuilder_SelectWithColumns(t *testing.T) {
	q, err := NewBuilder("products").Select("id", "name", "price").Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT id, name, price FROM `products`"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_FilterSortPaginate(t *testing.T) {
	q, err := NewBuilder("users").
		Where("age", OpGreaterOrEqual, 21).
		WhereIn("status", []any{"active", "pending"}).
		OrderBy("created_at", Descending).
		Paginate(2, 10).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `users` WHERE age >= @p0 AND status IN (@p1, @p2) ORDER BY created_at DESC LIMIT 10 OFFSET 10"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}

	expectedParams := map[string]any{"p0": 21, "p1": "active", "p2": "pending"}
	if !reflect.DeepEqual(q.Params, expectedParams) {
		t.Errorf("Expected params %v, got %v", expectedParams, q.Params)
	}
}

func TestBuilder_SearchGroup(t *testing.T) {
	q, err := NewBuilder("posts").
		Where("status", OpEqual, "published").
		SearchAny([]string{"title", "body"}, "cloud").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `posts` WHERE status = @p0 AND (title LIKE @p1 OR body LIKE @p2)"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if q.Params["p1"] != "%cloud%" || q.Params["p2"] != "%cloud%" {
		t.Errorf("Expected wrapped search terms, got %v", q.Params)
	}
}

func TestBuilder_SearchExact(t *testing.T) {
	q, err := NewBuilder("products").Search("name", "Laptop", true).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products` WHERE name = @p0"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if q.Params["p0"] != "Laptop" {
		t.Errorf("Expected exact term bound unwrapped, got %v", q.Params["p0"])
	}
}

func TestBuilder_EmptyInCompilesToFalse(t *testing.T) {
	q, err := NewBuilder("products").WhereIn("category", nil).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products` WHERE 1=0"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if len(q.Params) != 0 {
		t.Errorf("Expected no params for empty IN, got %v", q.Params)
	}
}

func TestBuilder_Between(t *testing.T) {
	q, err := NewBuilder("products").WhereBetween("price", 10, 20).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products` WHERE price BETWEEN @p0 AND @p1"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_NullPredicates(t *testing.T) {
	q, err := NewBuilder("products").
		WhereNull("deleted_at").
		WhereNotNull("category").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products` WHERE deleted_at IS NULL AND category IS NOT NULL"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if len(q.Params) != 0 {
		t.Errorf("Expected no params for null predicates, got %v", q.Params)
	}
}

func TestBuilder_WhereRawRenumbersPlaceholders(t *testing.T) {
	q, err := NewBuilder("orders").
		WhereRaw("tenant_id = ?", 42).
		Where("total", OpGreaterThan, 100).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `orders` WHERE tenant_id = @p0 AND total > @p1"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
	if q.Params["p0"] != 42 || q.Params["p1"] != 100 {
		t.Errorf("Expected params p0=42 p1=100, got %v", q.Params)
	}
}

func TestBuilder_WhereRawArgumentMismatch(t *testing.T) {
	_, err := NewBuilder("orders").WhereRaw("tenant_id = ? AND region = ?", 42).Build()
	if err == nil {
		t.Fatal("Expected error for placeholder/argument mismatch")
	}
	if !IsInvalidArgument(err) {
		t.Errorf("Expected invalid argument error, got %v", err)
	}
}

func TestBuilder_InvalidDirection(t *testing.T) {
	b := NewBuilder("users").OrderBy("name", Direction("SIDEWAYS"))

	if b.Err() == nil {
		t.Fatal("Expected error for invalid sort direction")
	}
	if !IsInvalidArgument(b.Err()) {
		t.Errorf("Expected invalid argument error, got %v", b.Err())
	}
	if !strings.Contains(b.Err().Error(), "sort direction") {
		t.Errorf("Expected direction message, got %v", b.Err())
	}

	if _, err := b.Build(); err == nil {
		t.Error("Build should fail after invalid direction")
	}
	if sqlText, err := b.BuildQuery(); err == nil || sqlText != "" {
		t.Errorf("BuildQuery should return no SQL, got %q, %v", sqlText, err)
	}
}

func TestBuilder_InvalidColumnIdentifier(t *testing.T) {
	columns := []string{
		"age; DROP TABLE users",
		"name--",
		"a.b.c",
		"1column",
		"",
	}
	for _, col := range columns {
		b := NewBuilder("users").Where(col, OpEqual, 1)
		if b.Err() == nil {
			t.Errorf("Expected error for column %q", col)
			continue
		}
		if !IsInvalidArgument(b.Err()) {
			t.Errorf("Expected invalid argument error for column %q, got %v", col, b.Err())
		}
	}
}

func TestBuilder_InvalidTableIdentifier(t *testing.T) {
	b := NewBuilder("users; DROP TABLE users")
	if b.Err() == nil {
		t.Fatal("Expected error for malformed table name")
	}
	if _, err := b.Build(); err == nil {
		t.Error("Build should fail for malformed table name")
	}
}

func TestBuilder_QualifiedColumn(t *testing.T) {
	q, err := NewBuilder("orders").Where("orders.total", OpGreaterThan, 50).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `orders` WHERE orders.total > @p0"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_ErrorSticksAndLaterCallsNoOp(t *testing.T) {
	b := NewBuilder("users").
		Limit(0).
		Where("age", OpGreaterThan, 21).
		OrderBy("name", Ascending)

	err := b.Err()
	if err == nil {
		t.Fatal("Expected error from Limit(0)")
	}
	if !strings.Contains(err.Error(), "limit") {
		t.Errorf("Expected the first error to stick, got %v", err)
	}

	if _, buildErr := b.Build(); buildErr != err {
		t.Errorf("Build should return the first error, got %v", buildErr)
	}
	if params, paramsErr := b.Parameters(); paramsErr == nil || params != nil {
		t.Errorf("Parameters should fail after error, got %v, %v", params, paramsErr)
	}
}

func TestBuilder_LimitOffsetValidation(t *testing.T) {
	if err := NewBuilder("t").Limit(0).Err(); err == nil {
		t.Error("Expected error for Limit(0)")
	}
	if err := NewBuilder("t").Limit(-5).Err(); err == nil {
		t.Error("Expected error for negative limit")
	}
	if err := NewBuilder("t").Offset(-1).Err(); err == nil {
		t.Error("Expected error for negative offset")
	}
	if err := NewBuilder("t").Paginate(0, 10).Err(); err == nil {
		t.Error("Expected error for page 0")
	}
	if err := NewBuilder("t").Paginate(1, 0).Err(); err == nil {
		t.Error("Expected error for page size 0")
	}
}

func TestBuilder_OffsetZeroOmitted(t *testing.T) {
	q, err := NewBuilder("users").Paginate(1, 10).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `users` LIMIT 10"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_NullsPlacement(t *testing.T) {
	q, err := NewBuilder("users").
		OrderBy("last_seen", Descending).Nulls(false).
		OrderBy("name", Ascending).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `users` ORDER BY last_seen DESC NULLS LAST, name ASC"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_NullsRequiresOrderBy(t *testing.T) {
	if err := NewBuilder("users").Nulls(true).Err(); err == nil {
		t.Error("Expected error for Nulls without OrderBy")
	}
}

func TestBuilder_PostgresPlaceholders(t *testing.T) {
	q, err := NewBuilderFor(DialectPostgres, "products").
		Where("price", OpGreaterThan, 15.0).
		Where("category", OpEqual, "A").
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := `SELECT * FROM "products" WHERE price > $1 AND category = $2`
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}

	args := q.Args()
	if len(args) != 2 || args[0] != 15.0 || args[1] != "A" {
		t.Errorf("Expected positional args [15 A], got %v", args)
	}
}

func TestBuilder_MySQLOffsetRequiresLimit(t *testing.T) {
	q, err := NewBuilderFor(DialectMySQL, "products").Offset(5).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	// MySQL should add a large LIMIT when OFFSET is used without explicit LIMIT
	expectedSQL := "SELECT * FROM `products` LIMIT 2147483647 OFFSET 5"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_MySQLPlaceholders(t *testing.T) {
	q, err := NewBuilderFor(DialectMySQL, "products").
		Where("price", OpLessThan, 50).
		WhereIn("category", []any{"A", "B"}).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := "SELECT * FROM `products` WHERE price < ? AND category IN (?, ?)"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}
}

func TestBuilder_UnsupportedDialect(t *testing.T) {
	b := NewBuilderFor(Dialect("oracle"), "products")
	if b.Err() == nil {
		t.Fatal("Expected error for unsupported dialect")
	}
}

func TestBuilder_BuildIsIdempotent(t *testing.T) {
	b := NewBuilder("users").
		Where("age", OpGreaterOrEqual, 21).
		OrderBy("created_at", Descending).
		Limit(10)

	first, err := b.Build()
	if err != nil {
		t.Fatalf("First build failed: %v", err)
	}
	second, err := b.Build()
	if err != nil {
		t.Fatalf("Second build failed: %v", err)
	}

	if first.SQL != second.SQL {
		t.Errorf("Repeated builds differ: %q vs %q", first.SQL, second.SQL)
	}
	if !reflect.DeepEqual(first.Params, second.Params) {
		t.Errorf("Repeated builds bind different params: %v vs %v", first.Params, second.Params)
	}

	count, err := b.BuildCount()
	if err != nil {
		t.Fatalf("BuildCount failed: %v", err)
	}
	third, err := b.Build()
	if err != nil {
		t.Fatalf("Build after BuildCount failed: %v", err)
	}
	if third.SQL != first.SQL {
		t.Errorf("BuildCount mutated the builder: %q vs %q", third.SQL, first.SQL)
	}
	if count.SQL == first.SQL {
		t.Error("Count SQL should differ from row SQL")
	}
}

func TestBuilder_BuildCountIgnoresProjectionOrderPagination(t *testing.T) {
	q, err := NewBuilder("users").
		Select("id", "name").
		Where("age", OpGreaterOrEqual, 21).
		OrderBy("created_at", Descending).
		Paginate(2, 10).
		BuildCount()
	if err != nil {
		t.Fatalf("BuildCount failed: %v", err)
	}

	expectedSQL := "SELECT COUNT(*) FROM `users` WHERE age >= @p0"
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}

	expectedParams := map[string]any{"p0": 21}
	if !reflect.DeepEqual(q.Params, expectedParams) {
		t.Errorf("Expected params %v, got %v", expectedParams, q.Params)
	}
}

func TestBuilder_Clone(t *testing.T) {
	original := NewBuilder("products").Where("price", OpGreaterThan, 10.0)
	clone := original.Clone().Where("category", OpEqual, "A")

	originalSQL, err := original.BuildQuery()
	if err != nil {
		t.Fatalf("BuildQuery failed: %v", err)
	}
	cloneSQL, err := clone.BuildQuery()
	if err != nil {
		t.Fatalf("Clone BuildQuery failed: %v", err)
	}

	if originalSQL == cloneSQL {
		t.Error("Clone should have different SQL after modification")
	}

	originalParams, _ := original.Parameters()
	cloneParams, _ := clone.Parameters()
	if len(originalParams) != 1 {
		t.Errorf("Original should have 1 param, got %d", len(originalParams))
	}
	if len(cloneParams) != 2 {
		t.Errorf("Clone should have 2 params, got %d", len(cloneParams))
	}
}

func TestBuilder_FingerprintStableAcrossValues(t *testing.T) {
	first, err := NewBuilder("users").Where("age", OpGreaterThan, 21).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	second, err := NewBuilder("users").Where("age", OpGreaterThan, 65).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	other, err := NewBuilder("users").Where("age", OpLessThan, 21).Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	if first.Fingerprint() != second.Fingerprint() {
		t.Error("Same statement shape should share a fingerprint")
	}
	if first.Fingerprint() == other.Fingerprint() {
		t.Error("Different statement shapes should not share a fingerprint")
	}
}

func TestBuilder_ExecuteSQLiteNamedArgs(t *testing.T) {
	db := setupBuilderTestDB(t)

	q, err := NewBuilderFor(DialectSQLite, "products").
		Where("price", OpGreaterThan, 15.0).
		OrderBy("price", Ascending).
		Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}

	expectedSQL := `SELECT * FROM "products" WHERE price > @p0 ORDER BY price ASC`
	if q.SQL != expectedSQL {
		t.Errorf("Expected SQL %q, got %q", expectedSQL, q.SQL)
	}

	rows, err := db.Query(q.SQL, q.NamedArgs()...)
	if err != nil {
		t.Fatalf("Query failed: %v", err)
	}
	defer rows.Close()

	var prices []float64
	for rows.Next() {
		var id int
		var name, category string
		var price float64
		if err := rows.Scan(&id, &name, &price, &category); err != nil {
			t.Fatalf("Scan failed: %v", err)
		}
		prices = append(prices, price)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("Row iteration failed: %v", err)
	}

	// Products priced 15.5, 20.0 and 30.0, in ascending order
	expected := []float64{15.5, 20.0, 30.0}
	if !reflect.DeepEqual(prices, expected) {
		t.Errorf("Expected prices %v, got %v", expected, prices)
	}
}

func TestBuilder_ExecuteCountSQLite(t *testing.T) {
	db := setupBuilderTestDB(t)

	q, err := NewBuilderFor(DialectSQLite, "products").
		WhereIn("category", []any{"A", "B"}).
		BuildCount()
	if err != nil {
		t.Fatalf("BuildCount failed: %v", err)
	}

	var count int64
	if err := db.QueryRow(q.SQL, q.NamedArgs()...).Scan(&count); err != nil {
		t.Fatalf("Count query failed: %v", err)
	}
	if count != 3 {
		t.Errorf("Expected count 3, got %d", count)
	}
}

func BenchmarkBuilderBuild(b *testing.B) {
	for i := 0; i < b.N; i++ {
		_, err := NewBuilder("users").
			Where("age", OpGreaterOrEqual, 21).
			WhereIn("status", []any{"active", "pending"}).
			SearchAny([]string{"name", "email"}, "smith").
			OrderBy("created_at", Descending).
			Paginate(2, 25).
			Build()
		if err != nil {
			b.Fatal(err)
		}
	}
}
