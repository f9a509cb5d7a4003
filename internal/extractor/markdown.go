package extractor

import (
	"context"
	"strings"
	"unicode/utf8"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"

	"github.com/doctrail/doctrail/internal/model"
	"github.com/doctrail/doctrail/internal/pkg/errs"
)

type markdownExtractor struct{}

func init() {
	Register(".md", &markdownExtractor{})
	Register(".markdown", &markdownExtractor{})
}

func (e *markdownExtractor) Name() string {
	return "markdown"
}

// Extract treats every level-1/2 heading as the start of a new page, so a
// section and its body land in the same retrieval unit. Content before the
// first heading becomes page 0.
func (e *markdownExtractor) Extract(ctx context.Context, data []byte) ([]model.Page, error) {
	_ = ctx
	if !utf8.Valid(data) {
		return nil, errs.Validation("document is not valid utf-8 markdown")
	}
	source := []byte(strings.ReplaceAll(string(data), "\r\n", "\n"))
	md := goldmark.New()
	reader := text.NewReader(source)
	doc := md.Parser().Parse(reader)

	var pages []model.Page
	var current []string

	flush := func() {
		body := strings.TrimSpace(strings.Join(current, "\n"))
		current = nil
		if body == "" {
			return
		}
		pages = append(pages, model.Page{Page: len(pages), Text: body})
	}

	for node := doc.FirstChild(); node != nil; node = node.NextSibling() {
		if h, ok := node.(*ast.Heading); ok && h.Level <= 2 {
			flush()
			current = append(current, string(h.Text(source)))
			continue
		}
		if txt := blockText(node, source); txt != "" {
			current = append(current, txt)
		}
	}
	flush()

	if len(pages) == 0 {
		return nil, errs.Validation("document contains no extractable text")
	}
	return pages, nil
}

func blockText(n ast.Node, source []byte) string {
	var sb strings.Builder
	_ = ast.Walk(n, func(node ast.Node, entering bool) (ast.WalkStatus, error) {
		if !entering || node.Type() != ast.TypeBlock {
			return ast.WalkContinue, nil
		}
		lines := node.Lines()
		for i := 0; i < lines.Len(); i++ {
			seg := lines.At(i)
			sb.Write(seg.Value(source))
		}
		return ast.WalkContinue, nil
	})
	return strings.TrimRight(sb.String(), "\n")
}
