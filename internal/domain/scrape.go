package domain

import (
	"context"
	"encoding/json"
)

// ScrapeFormat selects what the content fetcher returns.
// Kind is "markdown" or "json"; Prompt is only used by "json".
type ScrapeFormat struct {
	Kind   string
	Prompt string
}

// MarkdownFormat requests the page body as markdown.
func MarkdownFormat() ScrapeFormat { return ScrapeFormat{Kind: "markdown"} }

// JSONFormat requests structured extraction driven by prompt.
func JSONFormat(prompt string) ScrapeFormat { return ScrapeFormat{Kind: "json", Prompt: prompt} }

// MarshalJSON renders the wire form: "markdown" or {"type":"json","prompt":...}.
func (f ScrapeFormat) MarshalJSON() ([]byte, error) {
	if f.Kind == "json" {
		return json.Marshal(struct { //nolint:wrapcheck // encoding of a fixed struct
			Type   string `json:"type"`
			Prompt string `json:"prompt,omitempty"`
		}{Type: "json", Prompt: f.Prompt})
	}
	return json.Marshal(f.Kind) //nolint:wrapcheck // encoding of a string
}

// PageMetadata is page-level metadata reported by the fetcher.
type PageMetadata struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	Language    string `json:"language"`
	SourceURL   string `json:"sourceURL"`
	StatusCode  int    `json:"statusCode"`
}

// ScrapeResult is what a fetcher returns for one url.
// JSON holds the raw structured extraction and is nil unless requested.
type ScrapeResult struct {
	Markdown string
	JSON     json.RawMessage
	Metadata PageMetadata
}

// Scraper fetches and extracts a page.
type Scraper interface {
	Scrape(ctx context.Context, url string, formats []ScrapeFormat) (ScrapeResult, error)
}
