package loader

import (
	"bytes"
	"cmp"
	"errors"
	"fmt"
	"math"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"
)

const (
	// fraction of the font size a horizontal gap must exceed to count as a space
	wordGap = 0.2
	// vertical moves larger than this many font sizes start a new paragraph
	paragraphGap = 1.8
)

// PageTexts returns the text of every page of a PDF. Glyphs are decoded
// through each font's encoding and ToUnicode map. Pages that cannot be
// interpreted come back empty and are reported in the joined error.
func PageTexts(data []byte) ([]string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, err
	}

	texts := make([]string, r.NumPage())
	var errs []error
	for i := range texts {
		p := r.Page(i + 1)
		if p.V.Kind() == pdf.Null {
			continue
		}
		text, err := pageText(p)
		if err != nil {
			errs = append(errs, fmt.Errorf("page %d: %w", i+1, err))
			continue
		}
		texts[i] = text
	}
	return texts, errors.Join(errs...)
}

func pageText(p pdf.Page) (text string, err error) {
	// the content interpreter panics on malformed streams
	defer func() {
		if r := recover(); r != nil {
			text, err = "", fmt.Errorf("malformed content: %v", r)
		}
	}()
	return LayoutText(p.Content().Text), nil
}

// LayoutText joins positioned glyphs in content stream order. A change of
// baseline starts a new line and a drop of more than roughly one and a half
// lines starts a new paragraph. Gaps wider than a fraction of the font size
// become spaces.
func LayoutText(glyphs []pdf.Text) string {
	var b strings.Builder
	var lastY, lastEnd, lastSize float64
	for _, g := range glyphs {
		if g.S == "" {
			continue
		}
		size := g.FontSize
		if size <= 0 {
			size = cmp.Or(lastSize, 12)
		}

		if b.Len() > 0 {
			switch {
			case math.Abs(g.Y-lastY) > size/2:
				trimTrailingSpace(&b)
				if lastY-g.Y > paragraphGap*max(size, lastSize) {
					b.WriteString("\n\n")
				} else {
					b.WriteString("\n")
				}
			case g.X-lastEnd > wordGap*size && !endsWithSpace(&b) && !startsWithSpace(g.S):
				b.WriteByte(' ')
			}
		}

		text := g.S
		if b.Len() == 0 || strings.HasSuffix(b.String(), "\n") {
			text = strings.TrimLeftFunc(text, unicode.IsSpace)
		}
		b.WriteString(text)
		lastY, lastEnd, lastSize = g.Y, g.X+g.W, size
	}
	return strings.TrimSpace(b.String())
}

func endsWithSpace(b *strings.Builder) bool {
	s := b.String()
	return s == "" || unicode.IsSpace(rune(s[len(s)-1]))
}

func startsWithSpace(s string) bool {
	return s != "" && unicode.IsSpace(rune(s[0]))
}

func trimTrailingSpace(b *strings.Builder) {
	s := b.String()
	trimmed := strings.TrimRight(s, " \t")
	if len(trimmed) != len(s) {
		b.Reset()
		b.WriteString(trimmed)
	}
}
