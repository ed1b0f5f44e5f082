package loader

import (
	"regexp"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/tmc/langchaingo/textsplitter"
)

var (
	pageMarker = regexp.MustCompile(`(?m)^\[Page (\d+)\][ \t]*$`)
	blankLines = regexp.MustCompile(`\n[ \t]*\n`)
)

// Piece is one chunk of text located by page and paragraph.
type Piece struct {
	Page      int
	Paragraph int
	Text      string
}

type Splitter struct {
	chunkSize int
	minLength int
	long      textsplitter.RecursiveCharacter
}

func NewSplitter(chunkSize, chunkOverlap, minParagraphLength int) *Splitter {
	return &Splitter{
		chunkSize: chunkSize,
		minLength: minParagraphLength,
		long: textsplitter.NewRecursiveCharacter(
			textsplitter.WithChunkSize(chunkSize),
			textsplitter.WithChunkOverlap(chunkOverlap),
			textsplitter.WithSeparators([]string{"\n", " ", ""}),
		),
	}
}

type pageText struct {
	number int
	text   string
}

// splitPages cuts text at "[Page N]" marker lines. Text before the first
// marker, or text without any marker, belongs to page 1.
func splitPages(text string) []pageText {
	locs := pageMarker.FindAllStringSubmatchIndex(text, -1)
	if len(locs) == 0 {
		return []pageText{{number: 1, text: text}}
	}

	var pages []pageText
	if head := strings.TrimSpace(text[:locs[0][0]]); head != "" {
		pages = append(pages, pageText{number: 1, text: head})
	}
	for i, loc := range locs {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n < 1 {
			n = 1
		}
		end := len(text)
		if i+1 < len(locs) {
			end = locs[i+1][0]
		}
		pages = append(pages, pageText{number: n, text: text[loc[1]:end]})
	}
	return pages
}

// Split cuts text into page/paragraph pieces. Paragraphs are blank-line
// separated blocks numbered from 1 on every page; blocks shorter than the
// minimum length are dropped but still counted, and blocks longer than the
// chunk size are split further under the same page and paragraph.
func (s *Splitter) Split(text string) []Piece {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var pieces []Piece
	for _, page := range splitPages(text) {
		paragraph := 0
		for _, block := range blankLines.Split(page.text, -1) {
			block = strings.TrimSpace(block)
			if block == "" {
				continue
			}
			paragraph++
			if utf8.RuneCountInString(block) < s.minLength {
				continue
			}
			for _, part := range s.splitLong(block) {
				pieces = append(pieces, Piece{Page: page.number, Paragraph: paragraph, Text: part})
			}
		}
	}
	return pieces
}

func (s *Splitter) splitLong(block string) []string {
	if s.chunkSize <= 0 || utf8.RuneCountInString(block) <= s.chunkSize {
		return []string{block}
	}
	parts, err := s.long.SplitText(block)
	if err != nil || len(parts) == 0 {
		return []string{block}
	}
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
