package extractor

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/doctrail/doctrail/internal/pkg/errs"
)

func TestTextExtractorPageSplit(t *testing.T) {
	e := &textExtractor{}
	pages, err := e.Extract(context.Background(), []byte("page one text\fpage two text\f\f"))
	require.NoError(t, err)
	require.Len(t, pages, 2)
	require.Equal(t, 0, pages[0].Page)
	require.Equal(t, "page one text", pages[0].Text)
	require.Equal(t, 1, pages[1].Page)
	require.Equal(t, "page two text", pages[1].Text)
}

func TestTextExtractorNormalizesLineEndings(t *testing.T) {
	e := &textExtractor{}
	pages, err := e.Extract(context.Background(), []byte("line one\r\nline two\r\n"))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	require.Equal(t, "line one\nline two", pages[0].Text)
}

func TestTextExtractorRejectsBinary(t *testing.T) {
	e := &textExtractor{}
	_, err := e.Extract(context.Background(), []byte{0xff, 0xfe, 0x00, 0x80})
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestTextExtractorRejectsEmpty(t *testing.T) {
	e := &textExtractor{}
	_, err := e.Extract(context.Background(), []byte("  \n \f \n"))
	require.ErrorIs(t, err, errs.ErrValidation)
}

func TestMarkdownExtractorHeadingPages(t *testing.T) {
	src := `intro before any heading

# Refunds

Refunds are issued within 30 days.

## Exceptions

Digital goods are final sale.

### Details

Detail paragraphs stay with their section.
`
	e := &markdownExtractor{}
	pages, err := e.Extract(context.Background(), []byte(src))
	require.NoError(t, err)
	require.Len(t, pages, 3)
	require.Equal(t, "intro before any heading", pages[0].Text)
	require.Contains(t, pages[1].Text, "Refunds")
	require.Contains(t, pages[1].Text, "30 days")
	require.Contains(t, pages[2].Text, "Exceptions")
	require.Contains(t, pages[2].Text, "Digital goods are final sale.")
	// Level-3 heading does not open a new page.
	require.Contains(t, pages[2].Text, "Detail paragraphs stay with their section.")
}

func TestForDocumentUnsupportedExtension(t *testing.T) {
	_, err := ForDocument("report.pdf")
	require.ErrorIs(t, err, errs.ErrValidation)

	e, err := ForDocument("notes.TXT")
	require.NoError(t, err)
	require.Equal(t, "text", e.Name())

	e, err = ForDocument("guide.md")
	require.NoError(t, err)
	require.Equal(t, "markdown", e.Name())
}
