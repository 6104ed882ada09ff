/*
Package query holds the vocabulary shared by the platform's collection endpoints and the client controllers: free-text
search, tag containment, a sort token and an offset window.
*/
package query

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"
)

const (
	DefaultSortToken = "created_at_desc"
	MaxLimit         = 100
)

// Sort is a field and a direction, encoded on the wire as a single token such as "created_at_desc".
type Sort struct {
	Field     string
	Ascending bool
}

// DefaultSort is newest first by creation time.
var DefaultSort = Sort{Field: "created_at", Ascending: false}

// ParseSort splits the token at its last underscore; the suffix must be "asc" or "desc".
func ParseSort(token string) (Sort, error) {
	if token == "" {
		return DefaultSort, nil
	}
	var i = strings.LastIndex(token, "_")
	if i <= 0 || i == len(token)-1 {
		return Sort{}, fmt.Errorf("malformed sort token %q", token)
	}
	var field, direction = token[:i], token[i+1:]
	switch direction {
	case "asc":
		return Sort{Field: field, Ascending: true}, nil
	case "desc":
		return Sort{Field: field, Ascending: false}, nil
	}
	return Sort{}, fmt.Errorf("unknown sort direction %q", direction)
}

// Token is the inverse of ParseSort.
func (s Sort) Token() string {
	if s.Field == "" {
		return DefaultSortToken
	}
	if s.Ascending {
		return s.Field + "_asc"
	}
	return s.Field + "_desc"
}

// Params describe one window of a filtered collection.
type Params struct {
	Search string
	Tags   []string
	Sort   Sort
	Offset int
	Limit  int

	// UserId restricts results to rows owned by a user, when the collection supports it
	UserId string
}

// Result is a window of rows along with the total number of rows matching the filters.
type Result[T any] struct {
	Items []T `json:"items"`
	Total int `json:"total"`
}

// Defaults configure FromValues for a given collection.
type Defaults struct {
	Limit      int
	SortFields []string
}

// FromValues parses and validates the collection parameters found in a request's query string.
func FromValues(values url.Values, defaults Defaults) (params Params, err error) {
	params.Search = strings.TrimSpace(values.Get("search"))
	params.UserId = values.Get("user_id")

	for _, tag := range values["tag"] {
		if tag = strings.TrimSpace(tag); tag != "" {
			params.Tags = append(params.Tags, tag)
		}
	}

	if params.Sort, err = ParseSort(values.Get("sort")); err != nil {
		return params, err
	}
	if len(defaults.SortFields) > 0 {
		var allowed = make([]interface{}, len(defaults.SortFields))
		for i, field := range defaults.SortFields {
			allowed[i] = field
		}
		if err = validation.Validate(params.Sort.Field, validation.In(allowed...)); err != nil {
			return params, fmt.Errorf("sort: %w", err)
		}
	}

	params.Limit = defaults.Limit
	if raw := values.Get("limit"); raw != "" {
		if params.Limit, err = strconv.Atoi(raw); err != nil {
			return params, fmt.Errorf("limit: %w", err)
		}
	}
	if raw := values.Get("offset"); raw != "" {
		if params.Offset, err = strconv.Atoi(raw); err != nil {
			return params, fmt.Errorf("offset: %w", err)
		}
	}

	return params, validation.ValidateStruct(&params,
		validation.Field(&params.Limit, validation.Required, validation.Min(1), validation.Max(MaxLimit)),
		validation.Field(&params.Offset, validation.Min(0)),
		validation.Field(&params.Search, validation.Length(0, 100)),
		validation.Field(&params.Tags, validation.Length(0, 10), validation.Each(validation.Length(1, 40))),
	)
}

// Values encodes the parameters as a query string, omitting defaults.
func (p Params) Values() url.Values {
	var values = url.Values{}
	if p.Search != "" {
		values.Set("search", p.Search)
	}
	for _, tag := range p.Tags {
		values.Add("tag", tag)
	}
	if p.Sort.Field != "" {
		values.Set("sort", p.Sort.Token())
	}
	if p.Offset > 0 {
		values.Set("offset", strconv.Itoa(p.Offset))
	}
	if p.Limit > 0 {
		values.Set("limit", strconv.Itoa(p.Limit))
	}
	if p.UserId != "" {
		values.Set("user_id", p.UserId)
	}
	return values
}

// LikePattern wraps a search term in wildcards, escaping LIKE metacharacters with a backslash.
func LikePattern(search string) string {
	var replacer = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return "%" + replacer.Replace(search) + "%"
}

// OrderBy renders an ORDER BY clause for a whitelisted sort field, with the id as tie breaker so that offset
// windows are stable.
func OrderBy(sort Sort, columns map[string]string, fallback string) string {
	var column, found = columns[sort.Field]
	if !found {
		column = fallback
	}
	var direction = "DESC"
	if sort.Ascending {
		direction = "ASC"
	}
	return fmt.Sprintf("ORDER BY %s %s, id %s", column, direction, direction)
}
