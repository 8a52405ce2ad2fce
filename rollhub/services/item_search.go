package services

import (
	"strings"

	"github.com/hywave/roll-hub/rollhub/database/models"
	"github.com/sahilm/fuzzy"
)

// itemSource implements fuzzy.Source over item names.
type itemSource []models.Item

func (s itemSource) String(i int) string {
	return strings.ToLower(s[i].Name)
}

func (s itemSource) Len() int {
	return len(s)
}

// SearchItems ranks items against a free-text query using fuzzy matching.
// An empty query returns the input unchanged.
func SearchItems(items []models.Item, query string) []models.Item {
	query = strings.TrimSpace(strings.ToLower(query))
	if query == "" {
		return items
	}

	matches := fuzzy.FindFrom(query, itemSource(items))
	results := make([]models.Item, 0, len(matches))
	for _, m := range matches {
		results = append(results, items[m.Index])
	}
	return results
}
