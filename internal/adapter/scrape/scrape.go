package scrape

import (
	"fmt"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/jgivc/fetchdl/internal/entity"
	"golang.org/x/net/html"
)

const (
	adapterName = "scrape"

	fallbackName = "unnamed_file"

	// Links ending in "<ext>download" (archive.org mirrors) are renamed to
	// the plain extension.
	downloadSuffix = "download"
)

// Scraper extracts downloadable links from a page. It is a pure transform:
// page text in, link records out. Fetching the page is the caller's job.
type Scraper struct {
	extensions []string
	log        *slog.Logger
}

func New(extensions []string, log *slog.Logger) *Scraper {
	exts := make([]string, 0, len(extensions))
	for _, ext := range extensions {
		exts = append(exts, strings.ToLower(ext))
	}

	return &Scraper{
		extensions: exts,
		log:        log.With(slog.String("adapter", adapterName)),
	}
}

// ExtractHTML walks every anchor on the page and keeps those whose resolved
// URL carries one of the configured extensions (or its download-suffix form).
func (s *Scraper) ExtractHTML(pageText []byte, baseURL string) ([]entity.LinkRecord, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse base url: %s: %w", baseURL, err)
	}

	doc, err := html.Parse(strings.NewReader(string(pageText)))
	if err != nil {
		return nil, fmt.Errorf("cannot parse page: %w", err)
	}

	var records []entity.LinkRecord
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			if href, ok := attr(n, "href"); ok {
				if rec, ok := s.toRecord(base, href, anchorText(n)); ok {
					records = append(records, rec)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)

	return records, nil
}

func (s *Scraper) toRecord(base *url.URL, href, anchor string) (entity.LinkRecord, bool) {
	ref, err := url.Parse(strings.TrimSpace(href))
	if err != nil {
		s.log.Debug("Skip unparsable href", slog.String("href", href))

		return entity.LinkRecord{}, false
	}

	absolute := base.ResolveReference(ref).String()
	if !s.matches(absolute) {
		return entity.LinkRecord{}, false
	}

	return entity.LinkRecord{
		URL:  absolute,
		Name: s.linkName(absolute, anchor),
	}, true
}

// matches reports whether the lowercased URL ends with a configured extension
// or its "<ext>download" variant.
func (s *Scraper) matches(link string) bool {
	lower := strings.ToLower(link)
	for _, ext := range s.extensions {
		if strings.HasSuffix(lower, ext) || strings.HasSuffix(lower, ext+downloadSuffix) {
			return true
		}
	}

	return false
}

// linkName picks the anchor text when present, else the URL path basename,
// fixes a trailing download suffix and sanitizes the result.
func (s *Scraper) linkName(link, anchor string) string {
	raw := strings.TrimSpace(anchor)
	if unescaped, err := url.PathUnescape(raw); err == nil {
		raw = unescaped
	}

	if raw == "" {
		if u, err := url.Parse(link); err == nil {
			raw = path.Base(u.Path)
			if unescaped, err := url.PathUnescape(raw); err == nil {
				raw = unescaped
			}
		}
	}

	if raw == "" || raw == "." || raw == "/" {
		raw = fallbackName
	}

	raw = s.fixDownloadSuffix(raw)

	return Sanitize(raw)
}

func (s *Scraper) fixDownloadSuffix(name string) string {
	lower := strings.ToLower(name)
	for _, ext := range s.extensions {
		if suffix := ext + downloadSuffix; strings.HasSuffix(lower, suffix) {
			return name[:len(name)-len(suffix)] + ext
		}
	}

	return name
}

func attr(n *html.Node, name string) (string, bool) {
	for _, a := range n.Attr {
		if a.Key == name {
			return a.Val, true
		}
	}

	return "", false
}

func anchorText(n *html.Node) string {
	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(n)

	return strings.TrimSpace(sb.String())
}
