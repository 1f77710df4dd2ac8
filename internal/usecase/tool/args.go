package tool

import (
	"fmt"

	"github.com/kailas-cloud/dirsearch/internal/domain/search/filter"
)

// Args are the arguments of the search tool as sent by the model.
type Args struct {
	Query     string         `json:"query,omitempty" jsonschema:"free-text description of what to look for"`
	Filters   map[string]any `json:"filters,omitempty" jsonschema:"exact filters: field name to a value or a list of accepted values"`
	ScopeHint []string       `json:"scope_hint,omitempty" jsonschema:"names of the lists to search; all granted lists when empty"`
	Limit     *int           `json:"limit,omitempty" jsonschema:"maximum number of results (default 5, max 25)"`
}

// Response is what the tool returns to the model. Internal ids never appear.
type Response struct {
	Mode    string           `json:"mode,omitempty"`
	Count   int              `json:"count"`
	Results []map[string]any `json:"results,omitempty"`
}

// parseFilters accepts a string or a list of strings per field.
func parseFilters(raw map[string]any) (filter.Set, error) {
	if len(raw) == 0 {
		return filter.Set{}, nil
	}
	values := make(map[string][]string, len(raw))
	for name, v := range raw {
		switch val := v.(type) {
		case string:
			values[name] = []string{val}
		case []string:
			values[name] = val
		case []any:
			list := make([]string, 0, len(val))
			for _, item := range val {
				s, ok := item.(string)
				if !ok {
					return filter.Set{}, fmt.Errorf("filter %q values must be strings", name)
				}
				list = append(list, s)
			}
			values[name] = list
		default:
			return filter.Set{}, fmt.Errorf("filter %q must be a string or a list of strings", name)
		}
	}
	return filter.New(values)
}
