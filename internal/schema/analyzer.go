// Package schema derives queryable table metadata from Go structs.
//
// A registered struct maps to one table: each exported field becomes a
// column unless tagged away, the table name follows GORM's snake_case
// pluralization unless the struct provides a TableName() method, and tags
// mark columns as searchable or rename them:
//
//	type Product struct {
//		ID    int             `json:"id"`
//		Name  string          `json:"name" dynquery:"searchable"`
//		Price decimal.Decimal `json:"price" dynquery:"column:price_usd"`
//		note  string          // unexported, ignored
//		Tmp   string          `dynquery:"-"`
//	}
package schema

import (
	"fmt"
	"reflect"
	"strings"
	"time"
)

// Table describes one registered table: its name and the columns a request
// may reference.
type Table struct {
	Name    string
	GoType  reflect.Type
	Columns []Column

	byName map[string]*Column
}

// Column describes one queryable column.
type Column struct {
	Name       string // database column name
	FieldName  string // Go struct field name
	JSONName   string
	GoType     reflect.Type
	Searchable bool
}

// IsTime reports whether the column holds a time.Time value.
func (c *Column) IsTime() bool {
	t := c.GoType
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t == reflect.TypeOf(time.Time{})
}

// Analyze derives table metadata from a struct or pointer to struct.
func Analyze(entity any) (*Table, error) {
	entityType := reflect.TypeOf(entity)
	if entityType == nil {
		return nil, fmt.Errorf("entity must be a struct, got nil")
	}
	if entityType.Kind() == reflect.Ptr {
		entityType = entityType.Elem()
	}
	if entityType.Kind() != reflect.Struct {
		return nil, fmt.Errorf("entity must be a struct, got %s", entityType.Kind())
	}

	table := &Table{
		Name:   tableName(entityType),
		GoType: entityType,
		byName: make(map[string]*Column),
	}

	for i := 0; i < entityType.NumField(); i++ {
		field := entityType.Field(i)
		if !field.IsExported() {
			continue
		}
		tag := field.Tag.Get("dynquery")
		if tag == "-" {
			continue
		}
		column := analyzeField(field, tag)
		table.Columns = append(table.Columns, column)
	}

	if len(table.Columns) == 0 {
		return nil, fmt.Errorf("entity %s has no queryable columns", entityType.Name())
	}
	for i := range table.Columns {
		col := &table.Columns[i]
		if _, dup := table.byName[col.Name]; dup {
			return nil, fmt.Errorf("entity %s maps two fields to column %q", entityType.Name(), col.Name)
		}
		table.byName[col.Name] = col
	}
	return table, nil
}

// Column looks a column up by its database name.
func (t *Table) Column(name string) (*Column, bool) {
	col, ok := t.byName[name]
	return col, ok
}

// SearchableColumns returns the names of all columns tagged searchable.
func (t *Table) SearchableColumns() []string {
	var out []string
	for _, col := range t.Columns {
		if col.Searchable {
			out = append(out, col.Name)
		}
	}
	return out
}

// analyzeField builds the column for one struct field.
func analyzeField(field reflect.StructField, tag string) Column {
	column := Column{
		FieldName: field.Name,
		JSONName:  jsonName(field),
		GoType:    field.Type,
	}
	for _, part := range strings.Split(tag, ",") {
		part = strings.TrimSpace(part)
		switch {
		case part == "searchable":
			column.Searchable = true
		case strings.HasPrefix(part, "column:"):
			column.Name = strings.TrimPrefix(part, "column:")
		}
	}
	if column.Name == "" {
		column.Name = gormColumnName(field)
	}
	if column.Name == "" {
		column.Name = toSnakeCase(field.Name)
	}
	return column
}

// gormColumnName extracts an explicit column name from a gorm tag, so
// structs already annotated for GORM keep their mapping.
func gormColumnName(field reflect.StructField) string {
	gormTag := field.Tag.Get("gorm")
	if gormTag == "" {
		return ""
	}
	for _, part := range strings.Split(gormTag, ";") {
		part = strings.TrimSpace(part)
		if strings.HasPrefix(part, "column:") {
			return strings.TrimPrefix(part, "column:")
		}
	}
	return ""
}

// jsonName returns the field's JSON key, falling back to the Go name.
func jsonName(field reflect.StructField) string {
	jsonTag := field.Tag.Get("json")
	if jsonTag == "" {
		return field.Name
	}
	name := strings.Split(jsonTag, ",")[0]
	if name == "" || name == "-" {
		return field.Name
	}
	return name
}

// tableName determines the table name for an entity type. It respects a
// custom TableName() method on value or pointer receivers, matching GORM's
// convention, and falls back to snake_case pluralization.
func tableName(entityType reflect.Type) string {
	instance := reflect.New(entityType).Interface()
	if tabler, ok := instance.(interface{ TableName() string }); ok {
		return tabler.TableName()
	}
	return toSnakeCase(pluralize(entityType.Name()))
}

// pluralize applies simple English pluralization rules.
func pluralize(word string) string {
	if word == "" {
		return word
	}
	switch {
	case strings.HasSuffix(word, "y") && len(word) > 1 && !isVowel(rune(word[len(word)-2])):
		// "Category" -> "Categories", but "Key" -> "Keys"
		return word[:len(word)-1] + "ies"
	case strings.HasSuffix(word, "s") || strings.HasSuffix(word, "x") || strings.HasSuffix(word, "z") ||
		strings.HasSuffix(word, "ch") || strings.HasSuffix(word, "sh"):
		return word + "es"
	default:
		return word + "s"
	}
}

func isVowel(r rune) bool {
	switch r {
	case 'a', 'e', 'i', 'o', 'u', 'A', 'E', 'I', 'O', 'U':
		return true
	}
	return false
}

// toSnakeCase converts CamelCase names to snake_case, keeping initialisms
// together ("ProductID" -> "product_id", "XMLParser" -> "xml_parser").
func toSnakeCase(s string) string {
	var result strings.Builder
	for i, r := range s {
		if i > 0 && r >= 'A' && r <= 'Z' {
			prev := rune(s[i-1])
			if prev >= 'a' && prev <= 'z' {
				result.WriteRune('_')
			} else if i < len(s)-1 {
				next := rune(s[i+1])
				if next >= 'a' && next <= 'z' {
					result.WriteRune('_')
				}
			}
		}
		result.WriteRune(r)
	}
	return strings.ToLower(result.String())
}
