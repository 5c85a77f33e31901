package api

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// SuggestionService asks the API which recipes fit the user's pantry.
type SuggestionService struct {
	api *API
}

// SuggestionQuery selects the matching mode and the ingredients to avoid.
type SuggestionQuery struct {
	Mode SuggestionMode
	// Exclude drops every recipe that uses one of these ingredient IDs.
	Exclude []int64
}

func (q SuggestionQuery) encode() (string, error) {
	mode := q.Mode
	if mode == "" {
		mode = ModeStrict
	}
	if mode != ModeStrict && mode != ModeFlexible {
		return "", fmt.Errorf("unknown suggestion mode %q", mode)
	}
	v := url.Values{}
	v.Set("mode", string(mode))
	if len(q.Exclude) > 0 {
		ids := make([]string, len(q.Exclude))
		for i, id := range q.Exclude {
			ids[i] = strconv.FormatInt(id, 10)
		}
		v.Set("exclude", strings.Join(ids, ","))
	}
	return v.Encode(), nil
}

// Get returns suggestions ranked best first.
func (s *SuggestionService) Get(ctx context.Context, q SuggestionQuery) ([]Recipe, error) {
	qs, err := q.encode()
	if err != nil {
		return nil, err
	}
	var out []Recipe
	err = s.api.getJSON(ctx, "/suggestions/?"+qs, &out)
	return out, err
}
