package query

import (
	"bytes"
	"encoding/json"
	"io"
)

// Request is the wire shape of a query: projection, filters, search, sort
// and pagination. Decode it with DecodeRequest or construct it directly.
type Request struct {
	Fields  []string    `json:"fields,omitempty"`
	Filters Filters     `json:"filters,omitempty"`
	Search  *Search     `json:"search,omitempty"`
	Sort    []SortField `json:"sort,omitempty"`
	Page    *PageSpec   `json:"pagination,omitempty"`
}

// Search is the multi-field search block of a request. With no explicit
// fields the service falls back to the table's searchable columns.
type Search struct {
	Fields []string `json:"fields,omitempty"`
	Term   string   `json:"term"`
}

// SortField is one sort term of a request. An empty direction means
// ascending.
type SortField struct {
	Field      string    `json:"field"`
	Direction  Direction `json:"direction,omitempty"`
	NullsFirst *bool     `json:"nullsFirst,omitempty"`
}

// PageSpec is the pagination block of a request. It carries either the
// page/pageSize form or the offset/limit form; mixing both is rejected.
type PageSpec struct {
	Page     int  `json:"page,omitempty"`
	PageSize int  `json:"pageSize,omitempty"`
	Offset   *int `json:"offset,omitempty"`
	Limit    int  `json:"limit,omitempty"`
}

// PageParams is a normalized pagination: the concrete limit and offset to
// compile, plus the page arithmetic inputs. Page is 0 when the offset form
// was used.
type PageParams struct {
	Limit    int
	Offset   int
	Page     int
	PageSize int
}

// Normalize validates the pagination block and resolves it to a limit and
// offset. A positive defaultPageSize fills a missing page size; a positive
// maxPageSize caps it.
func (p *PageSpec) Normalize(defaultPageSize, maxPageSize int) (PageParams, error) {
	pageForm := p.Page != 0 || p.PageSize != 0
	offsetForm := p.Offset != nil || p.Limit != 0
	if pageForm && offsetForm {
		return PageParams{}, invalidArgf("pagination", "page/pageSize and offset/limit are mutually exclusive")
	}

	if offsetForm {
		offset := 0
		if p.Offset != nil {
			offset = *p.Offset
		}
		if offset < 0 {
			return PageParams{}, invalidArgf("offset", "must not be negative, got %d", offset)
		}
		limit := p.Limit
		if limit == 0 && defaultPageSize > 0 {
			limit = defaultPageSize
		}
		if limit < 1 {
			return PageParams{}, invalidArgf("limit", "must be at least 1, got %d", limit)
		}
		if maxPageSize > 0 && limit > maxPageSize {
			limit = maxPageSize
		}
		return PageParams{Limit: limit, Offset: offset, PageSize: limit}, nil
	}

	page := p.Page
	if page == 0 {
		page = 1
	}
	if page < 1 {
		return PageParams{}, invalidArgf("page", "must be at least 1, got %d", page)
	}
	size := p.PageSize
	if size == 0 && defaultPageSize > 0 {
		size = defaultPageSize
	}
	if size < 1 {
		return PageParams{}, invalidArgf("pageSize", "must be at least 1, got %d", size)
	}
	if maxPageSize > 0 && size > maxPageSize {
		size = maxPageSize
	}
	return PageParams{Limit: size, Offset: (page - 1) * size, Page: page, PageSize: size}, nil
}

// FieldCondition pairs a column with one decoded condition.
type FieldCondition struct {
	Field     string
	Condition Condition
}

// Filters is the filter block of a request. Decoding preserves the document
// order of the keys, which fixes parameter numbering for otherwise
// identical requests.
type Filters []FieldCondition

// UnmarshalJSON decodes a filter object while preserving key order.
func (f *Filters) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	tok, err := dec.Token()
	if err != nil {
		return invalidArgf("filters", "malformed filter block: %v", err)
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return invalidArgf("filters", "filter block must be a JSON object")
	}
	out := Filters{}
	for dec.More() {
		keyTok, err := dec.Token()
		if err != nil {
			return invalidArgf("filters", "malformed filter block: %v", err)
		}
		field, _ := keyTok.(string)
		var raw json.RawMessage
		if err := dec.Decode(&raw); err != nil {
			return invalidArgf(field, "malformed filter value: %v", err)
		}
		cond, err := decodeCondition(field, raw)
		if err != nil {
			return err
		}
		out = append(out, FieldCondition{Field: field, Condition: cond})
	}
	*f = out
	return nil
}

// MarshalJSON renders the filter block back into a JSON object, keeping the
// decoded order.
func (f Filters) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, fc := range f {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(fc.Field)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		value, err := json.Marshal(fc.Condition)
		if err != nil {
			return nil, err
		}
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// DecodeRequest decodes a JSON request body. Unknown top-level keys are
// rejected so misspelled blocks fail loudly instead of being ignored.
func DecodeRequest(r io.Reader) (*Request, error) {
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	dec.UseNumber()
	var req Request
	if err := dec.Decode(&req); err != nil {
		if IsInvalidArgument(err) || IsUnsupportedOperator(err) {
			return nil, err
		}
		return nil, invalidArgf("body", "malformed request: %v", err)
	}
	return &req, nil
}

// CompileOptions adjust how a request is rendered onto a builder.
type CompileOptions struct {
	// DefaultPageSize fills a pagination block that names no page size.
	DefaultPageSize int
	// MaxPageSize caps the page size when positive.
	MaxPageSize int
	// MaxInListSize rejects in filters with more values when positive.
	MaxInListSize int
	// SearchFields is the fallback column set for search blocks that name
	// no fields.
	SearchFields []string
	// ValidateColumn vets every column the request names, before any SQL
	// is assembled. Nil accepts all syntactically valid identifiers.
	ValidateColumn func(field string) error
	// Coerce converts filter operands whose column wants a richer type
	// than JSON carries. Nil passes operands through unchanged.
	Coerce func(field string, value any) (any, error)
}

// Compile renders the request onto the builder in a fixed clause order:
// projection, filters, search, sort, pagination. The same request always
// allocates the same parameter numbers.
func (r *Request) Compile(b *Builder, opts CompileOptions) *Builder {
	if b.err != nil {
		return b
	}
	checkColumn := func(field string) bool {
		if opts.ValidateColumn == nil || field == "*" {
			return true
		}
		if err := opts.ValidateColumn(field); err != nil {
			b.fail(err)
			return false
		}
		return true
	}
	for _, field := range r.Fields {
		if !checkColumn(field) {
			return b
		}
	}
	if len(r.Fields) > 0 {
		b.Select(r.Fields...)
	}
	for _, fc := range r.Filters {
		if !checkColumn(fc.Field) {
			return b
		}
		cond := fc.Condition
		if opts.Coerce != nil {
			coerced, err := cond.coerce(fc.Field, opts.Coerce)
			if err != nil {
				return b.fail(err)
			}
			cond = coerced
		}
		if opts.MaxInListSize > 0 && cond.op == OpIn && len(cond.values) > opts.MaxInListSize {
			return b.fail(invalidArgf(fc.Field, "in list exceeds the maximum of %d values", opts.MaxInListSize))
		}
		b.WhereCondition(fc.Field, cond)
	}
	if r.Search != nil {
		if r.Search.Term == "" {
			return b.fail(invalidArgf("search", "term must not be empty"))
		}
		fields := r.Search.Fields
		if len(fields) == 0 {
			fields = opts.SearchFields
		}
		if len(fields) == 0 {
			return b.fail(invalidArgf("search", "no search fields given and none are registered as searchable"))
		}
		for _, field := range fields {
			if !checkColumn(field) {
				return b
			}
		}
		b.SearchAny(fields, r.Search.Term)
	}
	for _, sf := range r.Sort {
		if !checkColumn(sf.Field) {
			return b
		}
	}
	b.OrderByFields(r.Sort)
	if r.Page != nil {
		params, err := r.Page.Normalize(opts.DefaultPageSize, opts.MaxPageSize)
		if err != nil {
			return b.fail(err)
		}
		b.Limit(params.Limit)
		b.Offset(params.Offset)
	}
	return b
}
