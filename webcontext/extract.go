package webcontext

import (
	"bytes"
	"net/url"
	"regexp"
	"strings"

	md "github.com/JohannesKaufmann/html-to-markdown"
	"github.com/JohannesKaufmann/html-to-markdown/plugin"
	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
)

var excessiveLinesRe = regexp.MustCompile(`\n{4,}`)

// Extractor turns raw HTML into readable markdown. Readability extraction
// first; when a page defeats it, a goquery paragraph sweep is the fallback.
type Extractor struct {
	converter *md.Converter
}

// NewExtractor creates an extractor with GitHub-flavored markdown output.
func NewExtractor() *Extractor {
	converter := md.NewConverter("", true, nil)
	converter.Use(plugin.GitHubFlavored())
	return &Extractor{converter: converter}
}

// Extract returns the page title and the article body as markdown.
func (e *Extractor) Extract(pageURL string, html []byte) (title, markdown string, err error) {
	parsedURL, _ := url.Parse(pageURL)

	article, rerr := readability.FromReader(bytes.NewReader(html), parsedURL)
	if rerr == nil && strings.TrimSpace(article.Content) != "" {
		markdown, err = e.converter.ConvertString(article.Content)
		if err == nil {
			return article.Title, cleanMarkdown(markdown), nil
		}
	}

	// Readability gave up; sweep paragraph and heading text instead.
	title, text := snippetFallback(html)
	return title, text, nil
}

// snippetFallback collects heading and paragraph text from pages that
// readability cannot parse into an article.
func snippetFallback(html []byte) (title, text string) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return "", ""
	}

	title = strings.TrimSpace(doc.Find("title").First().Text())

	var parts []string
	doc.Find("h1, h2, h3, p, li").Each(func(_ int, s *goquery.Selection) {
		t := strings.TrimSpace(s.Text())
		if len(t) >= 30 {
			parts = append(parts, t)
		}
	})
	return title, strings.Join(parts, "\n\n")
}

// cleanMarkdown trims trailing line whitespace and collapses blank runs.
func cleanMarkdown(content string) string {
	content = excessiveLinesRe.ReplaceAllString(content, "\n\n\n")
	lines := strings.Split(content, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimRight(line, " \t")
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
