package repository

import (
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
)

var (
	ErrUnknownFilterField      = errors.New("unknown filter field")
	ErrUnsupportedFilterOp     = errors.New("unsupported filter operator")
	ErrCollectionMisconfigured = errors.New("collection has no ordering columns")
)

// FilterField names a filterable attribute of a collection. Fields are
// resolved to columns through the collection's whitelist, never interpolated.
type FilterField string

type FilterOperator string

const (
	OpEquals   FilterOperator = "eq"       // exact match
	OpContains FilterOperator = "contains" // case-insensitive substring
)

// FieldFilter is one structured predicate. Multiple filters are ANDed.
type FieldFilter struct {
	Field    FilterField
	Operator FilterOperator
	Value    string
}

// ListQuery describes one page request over a collection.
type ListQuery struct {
	Filters []FieldFilter

	// Search is matched case-insensitively against SearchFields (or every
	// text field of the collection when empty). The fields are ORed together
	// and the group is ANDed with Filters.
	Search       string
	SearchFields []FilterField

	Page     int // 1-indexed
	PageSize int
}

// Collection binds a table to the filterable columns it exposes.
type Collection struct {
	Name            string
	Model           interface{}
	Columns         map[FilterField]string
	TextFields      []FilterField
	CreatedAtColumn string
	IDColumn        string
	DefaultPageSize int
}

// Page is one slice of an ordered, filtered collection.
type Page[T any] struct {
	Items      []T   `json:"items"`
	TotalCount int64 `json:"total_count"`
	Page       int   `json:"page"`
	PageSize   int   `json:"page_size"`
	TotalPages int   `json:"total_pages"`
}

// HasNext reports whether a later page holds records.
func (p *Page[T]) HasNext() bool {
	return p.Page < p.TotalPages
}

// ListPage runs q against col and returns the requested page ordered newest
// first, with the id as tie-break so paging never skips or repeats rows.
// A page past the end yields an empty slice. findScopes apply only to the row
// fetch (preloads and the like), not to the count.
func ListPage[T any](db *gorm.DB, col Collection, q ListQuery, findScopes ...func(*gorm.DB) *gorm.DB) (*Page[T], error) {
	if col.CreatedAtColumn == "" || col.IDColumn == "" {
		return nil, ErrCollectionMisconfigured
	}

	page, pageSize := normalizePaging(q.Page, q.PageSize, col.DefaultPageSize)

	query, err := applyFilters(db.Model(col.Model), db, col, q)
	if err != nil {
		return nil, err
	}
	query = query.Session(&gorm.Session{})

	var total int64
	if err := query.Count(&total).Error; err != nil {
		return nil, fmt.Errorf("count %s: %w", col.Name, err)
	}

	items := make([]T, 0, pageSize)
	totalPages := TotalPages(total, pageSize)
	// Compare pages before multiplying so a huge page number cannot overflow the offset.
	if page <= totalPages {
		offset := (page - 1) * pageSize
		if err := query.
			Scopes(findScopes...).
			Order(col.CreatedAtColumn + " DESC").
			Order(col.IDColumn + " DESC").
			Limit(pageSize).
			Offset(offset).
			Find(&items).Error; err != nil {
			return nil, fmt.Errorf("list %s: %w", col.Name, err)
		}
	}

	return &Page[T]{
		Items:      items,
		TotalCount: total,
		Page:       page,
		PageSize:   pageSize,
		TotalPages: totalPages,
	}, nil
}

// TotalPages is ceil(total / pageSize).
func TotalPages(total int64, pageSize int) int {
	if pageSize <= 0 || total <= 0 {
		return 0
	}
	return int((total + int64(pageSize) - 1) / int64(pageSize))
}

func normalizePaging(page, pageSize, fallback int) (int, int) {
	if page < 1 {
		page = 1
	}
	if pageSize < 1 {
		pageSize = fallback
	}
	if pageSize < 1 {
		pageSize = 20
	}
	return page, pageSize
}

func applyFilters(query *gorm.DB, base *gorm.DB, col Collection, q ListQuery) (*gorm.DB, error) {
	for _, f := range q.Filters {
		column, ok := col.Columns[f.Field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilterField, f.Field)
		}
		switch f.Operator {
		case OpEquals, "":
			query = query.Where(column+" = ?", f.Value)
		case OpContains:
			query = query.Where(containsClause(column), likePattern(f.Value))
		default:
			return nil, fmt.Errorf("%w: %s", ErrUnsupportedFilterOp, f.Operator)
		}
	}

	search := strings.TrimSpace(q.Search)
	if search == "" {
		return query, nil
	}

	fields := q.SearchFields
	if len(fields) == 0 {
		fields = col.TextFields
	}
	if len(fields) == 0 {
		return query, nil
	}

	pattern := likePattern(search)
	group := base.Session(&gorm.Session{NewDB: true})
	for i, field := range fields {
		column, ok := col.Columns[field]
		if !ok {
			return nil, fmt.Errorf("%w: %s", ErrUnknownFilterField, field)
		}
		if i == 0 {
			group = group.Where(containsClause(column), pattern)
		} else {
			group = group.Or(containsClause(column), pattern)
		}
	}
	return query.Where(group), nil
}

func containsClause(column string) string {
	return "LOWER(" + column + ") LIKE ? ESCAPE '\\'"
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// likePattern wraps v for a substring LIKE, escaping wildcard characters so
// user input always matches literally.
func likePattern(v string) string {
	return "%" + likeEscaper.Replace(strings.ToLower(v)) + "%"
}
