package filters

import (
	"fmt"
	"math"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"golang.org/x/text/unicode/norm"

	"github.com/owuorvin/jubabuy/internal/models"
)

const (
	DefaultLimit     = 12
	MaxLimit         = 50
	DefaultSortBy    = "createdAt"
	DefaultSortOrder = "desc"
	MinSearchRunes   = 2

	// StatusAll disables the status predicate.
	StatusAll = "all"
)

// ValidationError names the parameter that could not be accepted.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

func invalid(field, format string, args ...any) *ValidationError {
	return &ValidationError{Field: field, Message: fmt.Sprintf(format, args...)}
}

// Criteria is a normalized listing query for one kind.
type Criteria struct {
	Kind      models.Kind
	Page      int
	Limit     int
	SortBy    string
	SortOrder string
	// Status is empty when every status is requested.
	Status string
	Search string
	// Values holds the typed kind filters keyed by parameter name:
	// int64 for TypeInt, float64 for TypeFloat, bool for TypeBool, string otherwise.
	Values map[string]any
}

// Default returns the criteria a kind is browsed with when no filter is set.
func Default(kind models.Kind) Criteria {
	return Criteria{
		Kind:      kind,
		Page:      1,
		Limit:     DefaultLimit,
		SortBy:    DefaultSortBy,
		SortOrder: DefaultSortOrder,
		Status:    string(models.StatusActive),
		Values:    map[string]any{},
	}
}

// NormalizeMap is Normalize for a flat string map, as kept by UI filter state.
func NormalizeMap(kind models.Kind, raw map[string]string) (Criteria, error) {
	values := make(url.Values, len(raw))
	for k, v := range raw {
		values.Set(k, v)
	}
	return Normalize(kind, values)
}

// Normalize coerces raw parameters into Criteria. Unknown keys and empty values are
// dropped; a value that cannot be coerced is a *ValidationError.
func Normalize(kind models.Kind, raw url.Values) (Criteria, error) {
	spec := Lookup(kind)
	if spec == nil {
		return Criteria{}, invalid("kind", "unknown listing kind %q", kind)
	}
	c := Default(kind)

	keys := make([]string, 0, len(raw))
	for k := range raw {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	for _, key := range keys {
		v := strings.TrimSpace(raw.Get(key))
		if v == "" {
			continue
		}
		switch key {
		case "page":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Criteria{}, invalid(key, "must be a whole number")
			}
			if n < 1 {
				return Criteria{}, invalid(key, "must be at least 1")
			}
			c.Page = n
		case "limit":
			n, err := strconv.Atoi(v)
			if err != nil {
				return Criteria{}, invalid(key, "must be a whole number")
			}
			if n < 1 {
				return Criteria{}, invalid(key, "must be at least 1")
			}
			c.Limit = min(n, MaxLimit)
		case "sortBy":
			if _, ok := spec.SortColumn(v); ok {
				c.SortBy = v
			}
		case "sortOrder":
			if o := strings.ToLower(v); o == "asc" || o == "desc" {
				c.SortOrder = o
			}
		case "status":
			s := strings.ToLower(v)
			if s == StatusAll {
				c.Status = ""
				continue
			}
			if !validStatus(s) {
				return Criteria{}, invalid(key, "unknown status %q", v)
			}
			c.Status = s
		case "search":
			s := strings.TrimSpace(norm.NFC.String(v))
			if utf8.RuneCountInString(s) >= MinSearchRunes {
				c.Search = s
			}
		default:
			f, ok := spec.Field(key)
			if !ok {
				continue
			}
			typed, err := coerce(f, v)
			if err != nil {
				return Criteria{}, err
			}
			c.Values[key] = typed
		}
	}

	for _, r := range spec.Ranges {
		lo, okLo := number(c.Values[r[0]])
		hi, okHi := number(c.Values[r[1]])
		if okLo && okHi && lo > hi {
			return Criteria{}, invalid(r[0], "must not exceed %s", r[1])
		}
	}
	return c, nil
}

func coerce(f Field, v string) (any, error) {
	switch f.Type {
	case TypeInt:
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return nil, invalid(f.Param, "must be a whole number")
		}
		if n < 0 {
			return nil, invalid(f.Param, "must not be negative")
		}
		return n, nil
	case TypeFloat:
		n, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
			return nil, invalid(f.Param, "must be a number")
		}
		if n < 0 {
			return nil, invalid(f.Param, "must not be negative")
		}
		return n, nil
	case TypeBool:
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, invalid(f.Param, "must be true or false")
		}
		return b, nil
	case TypeEnum:
		s := strings.ToLower(v)
		for _, allowed := range f.Enum {
			if s == allowed {
				return s, nil
			}
		}
		return nil, invalid(f.Param, "must be one of %s", strings.Join(f.Enum, ", "))
	default:
		return norm.NFC.String(v), nil
	}
}

func validStatus(s string) bool {
	for _, st := range models.Statuses {
		if string(st) == s {
			return true
		}
	}
	return false
}

func number(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case float64:
		return n, true
	}
	return 0, false
}

// Offset is the row offset of the criteria's page.
func (c Criteria) Offset() int {
	return (c.Page - 1) * c.Limit
}

// Clone returns a copy that shares nothing mutable with c.
func (c Criteria) Clone() Criteria {
	vals := make(map[string]any, len(c.Values))
	for k, v := range c.Values {
		vals[k] = v
	}
	c.Values = vals
	return c
}

// WithPage returns a copy of c for another page.
func (c Criteria) WithPage(page int) Criteria {
	cp := c.Clone()
	cp.Page = page
	return cp
}

// Params serialises c back to its canonical parameters, page excluded. Defaults are
// omitted so that equivalent criteria produce equal maps.
func (c Criteria) Params() map[string]string {
	p := make(map[string]string, len(c.Values)+5)
	if c.Limit != DefaultLimit {
		p["limit"] = strconv.Itoa(c.Limit)
	}
	if c.SortBy != "" && c.SortBy != DefaultSortBy {
		p["sortBy"] = c.SortBy
	}
	if c.SortOrder != "" && c.SortOrder != DefaultSortOrder {
		p["sortOrder"] = c.SortOrder
	}
	switch c.Status {
	case "":
		p["status"] = StatusAll
	case string(models.StatusActive):
	default:
		p["status"] = c.Status
	}
	if c.Search != "" {
		p["search"] = c.Search
	}
	for k, v := range c.Values {
		p[k] = formatValue(v)
	}
	return p
}

// Query returns the URL parameters for c, page included.
func (c Criteria) Query() url.Values {
	q := url.Values{}
	for k, v := range c.Params() {
		q.Set(k, v)
	}
	q.Set("page", strconv.Itoa(c.Page))
	return q
}

// CacheKey is the key the page of c is cached under.
func (c Criteria) CacheKey() string {
	return CacheKey(c.Kind, c.Page, c.Params())
}

func formatValue(v any) string {
	switch t := v.(type) {
	case int64:
		return strconv.FormatInt(t, 10)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	case string:
		return t
	}
	return fmt.Sprint(v)
}

// StableSerialize joins params as k=v pairs in key order. Empty values are skipped.
func StableSerialize(params map[string]string) string {
	keys := make([]string, 0, len(params))
	for k, v := range params {
		if v != "" {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteByte('&')
		}
		b.WriteString(url.QueryEscape(norm.NFC.String(k)))
		b.WriteByte('=')
		b.WriteString(url.QueryEscape(norm.NFC.String(params[k])))
	}
	return b.String()
}

// CacheKey builds "kind|page|serialized-params".
func CacheKey(kind models.Kind, page int, params map[string]string) string {
	return KindPrefix(kind) + strconv.Itoa(page) + "|" + StableSerialize(params)
}

// KindPrefix is the prefix shared by every cached page of a kind.
func KindPrefix(kind models.Kind) string {
	return string(kind) + "|"
}

// FeaturedPrefix is the prefix of cached featured aggregates.
const FeaturedPrefix = "featured|"

// FeaturedKey is the cache key of the featured aggregate for a per-kind limit.
func FeaturedKey(limit int) string {
	return FeaturedPrefix + strconv.Itoa(limit)
}
