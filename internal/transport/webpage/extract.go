package webpage

import (
	"encoding/json"
	"fmt"
	"io"
	"regexp"
	"strings"
	"unicode/utf8"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"

	"github.com/kailas-cloud/bookmarkd/internal/domain"
)

const maxFallbackDescription = 300

var excessiveLinesRe = regexp.MustCompile(`\n{3,}`)

// noise is removed before conversion when no main content element exists.
var noise = []string{
	"script", "style", "noscript", "iframe", "svg", "form",
	"nav", "header", "footer", "aside",
	"[role=navigation]", "[aria-hidden=true]",
}

// Page is what the extractor pulls out of a document.
type Page struct {
	Metadata domain.PageMetadata
	Markdown string
}

// Summary renders the {"title","description"} object answered for the json format.
func (p Page) Summary() json.RawMessage {
	b, _ := json.Marshal(struct {
		Title       string `json:"title"`
		Description string `json:"description"`
	}{Title: p.Metadata.Title, Description: p.Metadata.Description})
	return b
}

// Extractor turns HTML into metadata and markdown.
type Extractor struct {
	converter *md.Converter
}

// NewExtractor creates an extractor with GitHub-flavored markdown output.
func NewExtractor() *Extractor {
	conv := md.NewConverter("", true, nil)
	conv.Use(plugin.GitHubFlavored())
	return &Extractor{converter: conv}
}

// Extract parses an UTF-8 HTML document.
func (e *Extractor) Extract(r io.Reader) (Page, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return Page{}, fmt.Errorf("parse html: %w", err)
	}

	meta := domain.PageMetadata{
		Title:       firstNonEmpty(metaContent(doc, "og:title"), strings.TrimSpace(doc.Find("title").First().Text())),
		Description: firstNonEmpty(metaContent(doc, "description"), metaContent(doc, "og:description")),
		Language:    strings.TrimSpace(doc.Find("html").AttrOr("lang", "")),
	}

	content := mainContent(doc)
	markdown := cleanMarkdown(e.converter.Convert(content))

	if meta.Title == "" {
		meta.Title = firstHeading(markdown)
	}
	if meta.Description == "" {
		meta.Description = firstParagraph(content)
	}

	return Page{Metadata: meta, Markdown: markdown}, nil
}

func mainContent(doc *goquery.Document) *goquery.Selection {
	for _, sel := range []string{"main", "article", "[role=main]"} {
		if s := doc.Find(sel).First(); s.Length() > 0 {
			s.Find("script, style, noscript").Remove()
			return s
		}
	}
	body := doc.Find("body").First()
	body.Find(strings.Join(noise, ", ")).Remove()
	return body
}

func metaContent(doc *goquery.Document, name string) string {
	sel := fmt.Sprintf(`meta[name=%q], meta[property=%q]`, name, name)
	return strings.TrimSpace(doc.Find(sel).First().AttrOr("content", ""))
}

func firstParagraph(s *goquery.Selection) string {
	var out string
	s.Find("p").EachWithBreak(func(_ int, p *goquery.Selection) bool {
		text := strings.Join(strings.Fields(p.Text()), " ")
		if utf8.RuneCountInString(text) < 40 {
			return true
		}
		out = truncate(text, maxFallbackDescription)
		return false
	})
	return out
}

func firstHeading(markdown string) string {
	for _, line := range strings.Split(markdown, "\n") {
		if t := strings.TrimSpace(line); strings.HasPrefix(t, "# ") {
			return strings.TrimSpace(t[2:])
		}
	}
	return ""
}

func cleanMarkdown(s string) string {
	lines := strings.Split(s, "\n")
	for i, l := range lines {
		lines[i] = strings.TrimRight(l, " \t")
	}
	return strings.TrimSpace(excessiveLinesRe.ReplaceAllString(strings.Join(lines, "\n"), "\n\n"))
}

func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return strings.TrimSpace(string(r[:n])) + "…"
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
