// Package record holds the vector index entities for saved pages.
package record

import (
	"fmt"
	"sort"
	"strings"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

// Record is a single entry of the search collection.
// The ID is independent of the url; Text is what gets embedded.
type Record struct {
	ID    string
	Text  string
	URL   string
	Title string
}

// New validates and builds a Record.
func New(id, text, url, title string) (Record, error) {
	if id == "" {
		return Record{}, fmt.Errorf("%w: record id is required", domain.ErrValidation)
	}
	if strings.TrimSpace(text) == "" {
		return Record{}, fmt.Errorf("%w: record text is required", domain.ErrValidation)
	}
	return Record{ID: id, Text: text, URL: url, Title: title}, nil
}

// Fields are the stored attributes returned with a hit.
type Fields struct {
	Text  string `json:"text"`
	URL   string `json:"url"`
	Title string `json:"title"`
}

// Hit is one search result. Score is a similarity in [0, 1].
type Hit struct {
	ID     string  `json:"id"`
	Score  float64 `json:"score"`
	Fields Fields  `json:"fields"`
}

// SortByScore orders hits by non-increasing score, keeping ties stable.
func SortByScore(hits []Hit) {
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })
}

// DropZeroScores removes hits with a score of zero or less, in place.
func DropZeroScores(hits []Hit) []Hit {
	out := hits[:0]
	for _, h := range hits {
		if h.Score > 0 {
			out = append(out, h)
		}
	}
	return out
}
