package dynquery

import (
	"database/sql"
	"fmt"

	"gorm.io/gorm"

	"github.com/nlstn/go-dynquery/internal/query"
)

// Adapter pairs a database handle with the dialect its SQL must use. The
// usual route is NewAdapter over a GORM connection; NewSQLAdapter serves
// callers that manage their own database/sql pool, for example an ORM this
// package has no driver knowledge of.
type Adapter struct {
	db      *sql.DB
	gormDB  *gorm.DB
	dialect query.Dialect
}

// NewAdapter wraps a GORM connection, deriving the dialect from its
// dialector.
func NewAdapter(db *gorm.DB) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("dynquery: db is required")
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("dynquery: failed to unwrap sql.DB: %w", err)
	}
	dialect, err := query.ParseDialect(db.Dialector.Name())
	if err != nil {
		return nil, fmt.Errorf("dynquery: %w", err)
	}
	return &Adapter{db: sqlDB, gormDB: db, dialect: dialect}, nil
}

// NewSQLAdapter wraps a plain database/sql pool with an explicit dialect.
func NewSQLAdapter(db *sql.DB, dialect Dialect) (*Adapter, error) {
	if db == nil {
		return nil, fmt.Errorf("dynquery: db is required")
	}
	if !dialect.Supported() {
		return nil, fmt.Errorf("dynquery: unsupported dialect %q", string(dialect))
	}
	return &Adapter{db: db, dialect: dialect}, nil
}

// Dialect returns the SQL dialect queries compile to.
func (a *Adapter) Dialect() Dialect { return a.dialect }

// DB returns the underlying database/sql pool.
func (a *Adapter) DB() *sql.DB { return a.db }

// Gorm returns the GORM connection, or nil for adapters built over a plain
// pool.
func (a *Adapter) Gorm() *gorm.DB { return a.gormDB }

// Close closes the underlying pool.
func (a *Adapter) Close() error {
	if a.db == nil {
		return nil
	}
	return a.db.Close()
}
