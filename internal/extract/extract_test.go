package extract

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ziadkadry99/compliance-rag/internal/extract/pdftest"
	"github.com/ziadkadry99/compliance-rag/internal/filter"
)

// mockRunner fakes pdftoppm by writing one png per entry in pages, and
// tesseract by returning the text registered for that image.
type mockRunner struct {
	pages     []string
	rasterErr error
	ocrErr    map[int]error
	calls     []string
}

func (m *mockRunner) Run(_ context.Context, name string, args ...string) ([]byte, error) {
	m.calls = append(m.calls, name)
	switch name {
	case "pdftoppm":
		if m.rasterErr != nil {
			return nil, m.rasterErr
		}
		prefix := args[len(args)-1]
		for i := range m.pages {
			img := fmt.Sprintf("%s-%d.png", prefix, i+1)
			if err := os.WriteFile(img, []byte{0x89, 'P', 'N', 'G'}, 0o600); err != nil {
				return nil, err
			}
		}
		return nil, nil
	case "tesseract":
		base := filepath.Base(args[0])
		n, err := strconv.Atoi(strings.TrimSuffix(strings.TrimPrefix(base, "page-"), ".png"))
		if err != nil {
			return nil, err
		}
		if err := m.ocrErr[n]; err != nil {
			return nil, err
		}
		return []byte(m.pages[n-1]), nil
	}
	return nil, errors.New("unexpected command " + name)
}

func TestIsPDF(t *testing.T) {
	tests := []struct {
		name     string
		filename string
		data     []byte
		want     bool
	}{
		{"valid", "circular.pdf", []byte("%PDF-1.7\n..."), true},
		{"upper extension", "CIRCULAR.PDF", []byte("%PDF-1.4"), true},
		{"header after preamble", "a.pdf", append([]byte("\xef\xbb\xbfjunk\n"), []byte("%PDF-1.4")...), true},
		{"wrong extension", "notes.txt", []byte("%PDF-1.4"), false},
		{"missing header", "fake.pdf", []byte("hello world"), false},
		{"empty", "empty.pdf", nil, false},
		{"header too late", "late.pdf", append(make([]byte, 2048), []byte("%PDF-1.4")...), false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsPDF(tt.filename, tt.data))
		})
	}
}

func TestExtract_TextLayer(t *testing.T) {
	data := pdftest.Build(
		"Customer due diligence applies to every account.",
		"Periodic updation of KYC records is required.",
	)
	e := NewPDFExtractor(Options{Filter: filter.Default})

	pages, err := e.Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Contains(t, pages[0].Text, "Customer due diligence")
	assert.Equal(t, 2, pages[1].Number)
	assert.Contains(t, pages[1].Text, "updation of KYC records")
}

func TestExtract_SkipsEmptyAndIndexPages(t *testing.T) {
	data := pdftest.Build(
		"RBI/2023-24/101\nDOR.AML.REC.12/14.01.001/2023-24",
		"",
		"Banks shall carry out ongoing due diligence of existing customers.",
	)
	e := NewPDFExtractor(Options{Filter: filter.Default})

	pages, err := e.Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 3, pages[0].Number)
}

func TestExtract_NoTextWithoutOCR(t *testing.T) {
	data := pdftest.Build("", "")
	e := NewPDFExtractor(Options{})

	_, err := e.Extract(context.Background(), data)
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtract_Garbage(t *testing.T) {
	e := NewPDFExtractor(Options{})

	_, err := e.Extract(context.Background(), []byte("%PDF-1.4 this is not really a pdf"))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtract_OCRFallback(t *testing.T) {
	runner := &mockRunner{pages: []string{
		"Scanned page about KYC updation for high risk customers.",
		"   ",
		"Low risk customers are reviewed every ten years.",
	}}
	data := pdftest.Build("", "", "")
	e := NewPDFExtractor(Options{OCR: true, Runner: runner, Filter: filter.Default})

	pages, err := e.Extract(context.Background(), data)
	require.NoError(t, err)
	require.Len(t, pages, 2)
	assert.Equal(t, 1, pages[0].Number)
	assert.Equal(t, 3, pages[1].Number)
	assert.Contains(t, pages[1].Text, "ten years")
	assert.Equal(t, "pdftoppm", runner.calls[0])
}

func TestExtract_OCRPageFailureIsAbsorbed(t *testing.T) {
	runner := &mockRunner{
		pages: []string{
			"This page cannot be recognised at all by the engine.",
			"Re-KYC must be completed within the prescribed period.",
		},
		ocrErr: map[int]error{1: errors.New("tesseract crashed")},
	}
	e := NewPDFExtractor(Options{OCR: true, Runner: runner})

	pages, err := e.Extract(context.Background(), pdftest.Build("", ""))
	require.NoError(t, err)
	require.Len(t, pages, 1)
	assert.Equal(t, 2, pages[0].Number)
}

func TestExtract_OCRRasterFailure(t *testing.T) {
	runner := &mockRunner{rasterErr: errors.New("pdftoppm: not found")}
	e := NewPDFExtractor(Options{OCR: true, Runner: runner})

	_, err := e.Extract(context.Background(), pdftest.Build(""))
	assert.ErrorIs(t, err, ErrNoText)
}

func TestExtract_OCRYieldsNothing(t *testing.T) {
	runner := &mockRunner{pages: []string{"", "  \n "}}
	e := NewPDFExtractor(Options{OCR: true, Runner: runner})

	_, err := e.Extract(context.Background(), pdftest.Build("", ""))
	assert.ErrorIs(t, err, ErrNoText)
}
