package scrape

import (
	"fmt"
	"net/url"

	"github.com/jgivc/fetchdl/internal/common"
	"github.com/jgivc/fetchdl/internal/entity"
	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/parser"
	"github.com/yuin/goldmark/text"
	"go.abhg.dev/goldmark/frontmatter"
)

// Frontmatter is the optional metadata block of a markdown source page.
// A page with enabled: false is skipped entirely.
type Frontmatter struct {
	Title   string `yaml:"title"`
	Enabled *bool  `yaml:"enabled"`
}

// ExtractMarkdown parses the page as markdown and collects link and autolink
// destinations, filtered the same way as HTML anchors.
func (s *Scraper) ExtractMarkdown(pageText []byte, baseURL string) ([]entity.LinkRecord, error) {
	base, err := url.Parse(baseURL)
	if err != nil {
		return nil, fmt.Errorf("cannot parse base url: %s: %w", baseURL, err)
	}

	md := goldmark.New(
		goldmark.WithExtensions(
			&frontmatter.Extender{},
		),
	)

	ctx := parser.NewContext()
	doc := md.Parser().Parse(text.NewReader(pageText), parser.WithContext(ctx))

	if fm := frontmatter.Get(ctx); fm != nil {
		var meta Frontmatter
		if err := fm.Decode(&meta); err != nil {
			return nil, fmt.Errorf("cannot decode frontmatter: %w", err)
		}

		if meta.Enabled != nil && !*meta.Enabled {
			return nil, common.ErrSourcePageDisabledError
		}
	}

	var records []entity.LinkRecord
	err = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering {
			return ast.WalkContinue, nil
		}

		switch node := n.(type) {
		case *ast.Link:
			if rec, ok := s.toRecord(base, string(node.Destination), nodeText(node, pageText)); ok {
				records = append(records, rec)
			}
		case *ast.AutoLink:
			if rec, ok := s.toRecord(base, string(node.URL(pageText)), ""); ok {
				records = append(records, rec)
			}
		}

		return ast.WalkContinue, nil
	})
	if err != nil {
		return nil, fmt.Errorf("cannot walk markdown ast: %w", err)
	}

	return records, nil
}

func nodeText(n ast.Node, source []byte) string {
	var out []byte
	for c := n.FirstChild(); c != nil; c = c.NextSibling() {
		if t, ok := c.(*ast.Text); ok {
			out = append(out, t.Segment.Value(source)...)
		}
	}

	return string(out)
}
