package dynquery

import (
	"strings"

	"gorm.io/gorm"

	"github.com/nlstn/go-dynquery/internal/query"
)

// GormScopes translates a request into GORM scopes for gorm.DB.Scopes, for
// callers that run GORM queries against their own models instead of going
// through the service executor. Filters, search, sort and pagination are
// covered; the field projection is left to the caller's model. No table
// registry is in play here, so search requires explicit fields and column
// names are only checked for identifier syntax.
func GormScopes(req *Request) ([]func(*gorm.DB) *gorm.DB, error) {
	if req == nil {
		return nil, nil
	}
	scopes := []func(*gorm.DB) *gorm.DB{}

	for _, fc := range req.Filters {
		expr, args, err := fc.Condition.GormExpr(fc.Field)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where(expr, args...)
		})
	}

	if req.Search != nil {
		if req.Search.Term == "" {
			return nil, &InvalidArgumentError{Field: "search", Reason: "term must not be empty"}
		}
		if len(req.Search.Fields) == 0 {
			return nil, &InvalidArgumentError{Field: "search", Reason: "fields must be named explicitly"}
		}
		parts := make([]string, len(req.Search.Fields))
		args := make([]any, len(req.Search.Fields))
		for i, field := range req.Search.Fields {
			if !query.ValidIdentifier(field) {
				return nil, &InvalidArgumentError{Field: field, Reason: "not a valid column identifier"}
			}
			parts[i] = field + " LIKE ?"
			args[i] = "%" + req.Search.Term + "%"
		}
		cond := "(" + strings.Join(parts, " OR ") + ")"
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Where(cond, args...)
		})
	}

	for _, sf := range req.Sort {
		dir, err := query.ParseDirection(string(sf.Direction))
		if err != nil {
			return nil, err
		}
		if !query.ValidIdentifier(sf.Field) {
			return nil, &InvalidArgumentError{Field: sf.Field, Reason: "not a valid column identifier"}
		}
		order := sf.Field + " " + string(dir)
		if sf.NullsFirst != nil {
			if *sf.NullsFirst {
				order += " NULLS FIRST"
			} else {
				order += " NULLS LAST"
			}
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			return db.Order(order)
		})
	}

	if req.Page != nil {
		params, err := req.Page.Normalize(0, 0)
		if err != nil {
			return nil, err
		}
		scopes = append(scopes, func(db *gorm.DB) *gorm.DB {
			db = db.Limit(params.Limit)
			if params.Offset > 0 {
				db = db.Offset(params.Offset)
			}
			return db
		})
	}

	return scopes, nil
}
