package loader

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"image/png"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"docqa/model"
	"docqa/model/modeltest"
	"docqa/store"
	"docqa/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testLimits = Limits{
	MaxFileSize:       1 << 20,
	AllowedExtensions: []string{"pdf", "txt", "png", "jpg", "jpeg"},
}

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type ingestEnv struct {
	ingestor  *Ingestor
	store     *store.BoltStore
	embedder  *modeltest.FakeEmbedder
	uploadDir string
}

func newIngestEnv(t *testing.T, ocr model.TextRecognizer) *ingestEnv {
	t.Helper()
	dir := t.TempDir()
	s, err := store.NewBoltStore(filepath.Join(dir, "docs.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })

	emb := modeltest.NewFakeEmbedder()
	uploadDir := filepath.Join(dir, "uploads")
	in := NewIngestor(
		IngestorConfig{Limits: testLimits, UploadDir: uploadDir},
		s,
		emb,
		NewExtractor(ocr, discardLogger()),
		NewSplitter(1000, 200, 50),
		discardLogger(),
	)
	return &ingestEnv{ingestor: in, store: s, embedder: emb, uploadDir: uploadDir}
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 8, 8))))
	return buf.Bytes()
}

// helvetica is a simple font with uniform glyph widths for printable ASCII.
var helvetica = "<< /Type /Font /Subtype /Type1 /BaseFont /Helvetica /FirstChar 32 /LastChar 126 /Widths [" +
	strings.TrimSpace(strings.Repeat("500 ", 95)) + "] >>"

// testPDF describes a one-page PDF. Fonts are named F1, F2, ... and images
// Im1, Im2, ... in the page resources. Objects are numbered catalog, pages,
// page, content, fonts, images, then extra.
type testPDF struct {
	content string
	fonts   []string
	images  []string
	extra   []string
}

func pdfStream(dict, data string) string {
	return fmt.Sprintf("<< %s /Length %d >>\nstream\n%s\nendstream", dict, len(data), data)
}

func (p testPDF) bytes() []byte {
	var res strings.Builder
	next := 5
	res.WriteString("/Font <<")
	for i := range p.fonts {
		fmt.Fprintf(&res, " /F%d %d 0 R", i+1, next)
		next++
	}
	res.WriteString(" >>")
	if len(p.images) > 0 {
		res.WriteString(" /XObject <<")
		for i := range p.images {
			fmt.Fprintf(&res, " /Im%d %d 0 R", i+1, next)
			next++
		}
		res.WriteString(" >>")
	}

	objects := []string{
		"<< /Type /Catalog /Pages 2 0 R >>",
		"<< /Type /Pages /Kids [3 0 R] /Count 1 >>",
		"<< /Type /Page /Parent 2 0 R /MediaBox [0 0 612 792] /Resources << " + res.String() + " >> /Contents 4 0 R >>",
		pdfStream("", p.content),
	}
	objects = append(objects, p.fonts...)
	objects = append(objects, p.images...)
	objects = append(objects, p.extra...)

	var buf bytes.Buffer
	buf.WriteString("%PDF-1.4\n")
	offsets := make([]int, len(objects))
	for i, obj := range objects {
		offsets[i] = buf.Len()
		fmt.Fprintf(&buf, "%d 0 obj\n%s\nendobj\n", i+1, obj)
	}
	xref := buf.Len()
	fmt.Fprintf(&buf, "xref\n0 %d\n0000000000 65535 f \n", len(objects)+1)
	for _, off := range offsets {
		fmt.Fprintf(&buf, "%010d 00000 n \n", off)
	}
	fmt.Fprintf(&buf, "trailer\n<< /Size %d /Root 1 0 R >>\nstartxref\n%d\n%%%%EOF\n", len(objects)+1, xref)
	return buf.Bytes()
}

// minimalPDF lays out a one-page PDF whose page shows the given content stream.
func minimalPDF(content string) []byte {
	return testPDF{content: content, fonts: []string{helvetica}}.bytes()
}

func TestValidateFile(t *testing.T) {
	tests := []struct {
		name string
		size int64
		want types.FileType
		err  error
	}{
		{name: "report.PDF", size: 10, want: types.FilePDF},
		{name: "scan.jpeg", size: 10, want: types.FileJPEG},
		{name: "notes.txt", size: 1 << 20, want: types.FileText},
		{name: "sheet.docx", size: 10, err: types.ErrUnsupportedType},
		{name: "noext", size: 10, err: types.ErrUnsupportedType},
		{name: "big.txt", size: 1<<20 + 1, err: types.ErrFileTooLarge},
		{name: "empty.txt", size: 0, err: types.ErrEmptyFile},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ft, err := testLimits.ValidateFile(tt.name, tt.size)
			if tt.err != nil {
				assert.ErrorIs(t, err, tt.err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, ft)
		})
	}
}

func TestSniffContent(t *testing.T) {
	mime, err := SniffContent(types.FileText, []byte("plain words here"))
	require.NoError(t, err)
	assert.Equal(t, "text/plain", mime)

	mime, err = SniffContent(types.FileJPG, pngBytes(t))
	require.NoError(t, err)
	assert.Equal(t, "image/png", mime)

	_, err = SniffContent(types.FileText, pngBytes(t))
	assert.ErrorIs(t, err, types.ErrUnsupportedType)

	_, err = SniffContent(types.FilePDF, []byte("not a pdf at all"))
	assert.ErrorIs(t, err, types.ErrUnsupportedType)
}

func TestIngestText(t *testing.T) {
	env := newIngestEnv(t, nil)
	ctx := context.Background()

	data := []byte(paraA + "\n\n" + paraB + "\n")
	doc, err := env.ingestor.Ingest(ctx, "dir/report.txt", data)
	require.NoError(t, err)

	assert.Equal(t, "DOC001", doc.ID)
	assert.Equal(t, "report.txt", doc.Filename)
	assert.Equal(t, types.FileText, doc.Type)
	assert.Equal(t, 1, doc.PageCount)
	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, 2, doc.Chunks[1].Paragraph)
	assert.Nil(t, doc.Chunks[0].Embedding)

	saved, err := os.ReadFile(filepath.Join(env.uploadDir, "DOC001.txt"))
	require.NoError(t, err)
	assert.Equal(t, data, saved)

	n, err := env.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	second, err := env.ingestor.Ingest(ctx, "other.txt", data)
	require.NoError(t, err)
	assert.Equal(t, "DOC002", second.ID)
}

func TestIngestRejections(t *testing.T) {
	env := newIngestEnv(t, nil)
	ctx := context.Background()

	_, err := env.ingestor.Ingest(ctx, "a.exe", []byte("MZ"))
	assert.ErrorIs(t, err, types.ErrUnsupportedType)

	_, err = env.ingestor.Ingest(ctx, "a.txt", bytes.Repeat([]byte("a"), 1<<20+1))
	assert.ErrorIs(t, err, types.ErrFileTooLarge)

	_, err = env.ingestor.Ingest(ctx, "a.txt", nil)
	assert.ErrorIs(t, err, types.ErrEmptyFile)

	_, err = env.ingestor.Ingest(ctx, "photo.png", pngBytes(t))
	assert.ErrorIs(t, err, types.ErrOCRUnavailable)

	env.embedder.Err = types.ErrEmbeddingUnavailable
	_, err = env.ingestor.Ingest(ctx, "a.txt", []byte(paraA))
	assert.ErrorIs(t, err, types.ErrEmbeddingUnavailable)

	n, err := env.store.CountDocuments(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestIngestImage(t *testing.T) {
	env := newIngestEnv(t, &modeltest.FakeRecognizer{Text: paraC})

	doc, err := env.ingestor.Ingest(context.Background(), "scan.png", pngBytes(t))
	require.NoError(t, err)
	require.Len(t, doc.Chunks, 1)
	assert.Equal(t, paraC, doc.Chunks[0].Content)
	assert.Equal(t, 1, doc.Chunks[0].Page)
	assert.Equal(t, 1, doc.Chunks[0].Paragraph)
}

func TestIngestShortTextKeepsDocument(t *testing.T) {
	env := newIngestEnv(t, nil)

	doc, err := env.ingestor.Ingest(context.Background(), "tiny.txt", []byte("hello"))
	require.NoError(t, err)
	assert.Empty(t, doc.Chunks)

	got, err := env.store.GetDocumentByID(context.Background(), doc.ID)
	require.NoError(t, err)
	assert.Zero(t, got.ChunkCount)
}

func TestIngestPDF(t *testing.T) {
	env := newIngestEnv(t, nil)

	content := "BT /F1 12 Tf 72 720 Td (" + paraA + ") Tj 0 -40 Td (" + paraB + ") Tj ET"
	doc, err := env.ingestor.Ingest(context.Background(), "report.pdf", minimalPDF(content))
	require.NoError(t, err)

	assert.Equal(t, 1, doc.PageCount)
	assert.True(t, strings.HasPrefix(doc.Text, "[Page 1]\n"))
	require.Len(t, doc.Chunks, 2)
	assert.Equal(t, paraA, doc.Chunks[0].Content)
	assert.Equal(t, 2, doc.Chunks[1].Paragraph)
}

func TestIngestPDFReadsEmbeddedImages(t *testing.T) {
	const scanned = "Scanned invoice: total forty two euros, paid in full."
	env := newIngestEnv(t, &modeltest.FakeRecognizer{Text: scanned})

	var jpg bytes.Buffer
	require.NoError(t, jpeg.Encode(&jpg, image.NewGray(image.Rect(0, 0, 8, 8)), nil))
	pdf := testPDF{
		content: "BT /F1 12 Tf 72 720 Td (" + paraA + ") Tj ET\nq 8 0 0 8 72 600 cm /Im1 Do Q",
		fonts:   []string{helvetica},
		images: []string{
			pdfStream("/Type /XObject /Subtype /Image /Width 8 /Height 8 /ColorSpace /DeviceGray /BitsPerComponent 8 /Filter /DCTDecode", jpg.String()),
		},
	}

	doc, err := env.ingestor.Ingest(context.Background(), "scan.pdf", pdf.bytes())
	require.NoError(t, err)
	assert.Contains(t, doc.Text, "[Image Text Page 1]\n"+scanned)
}

func TestRemoveDocument(t *testing.T) {
	env := newIngestEnv(t, nil)
	ctx := context.Background()

	doc, err := env.ingestor.Ingest(ctx, "report.txt", []byte(paraA))
	require.NoError(t, err)

	require.NoError(t, env.ingestor.Remove(ctx, doc.ID))
	_, err = os.Stat(filepath.Join(env.uploadDir, "DOC001.txt"))
	assert.True(t, os.IsNotExist(err))

	assert.ErrorIs(t, env.ingestor.Remove(ctx, doc.ID), types.ErrNotFound)
}
