// Package extract turns PDF bytes into page-numbered text, falling back to
// optical character recognition when the PDF carries no text layer.
package extract

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"unicode"

	"github.com/ledongthuc/pdf"

	"github.com/ziadkadry99/compliance-rag/internal/filter"
)

// ErrNoText is returned when neither the text layer nor OCR produced any
// usable page text.
var ErrNoText = errors.New("no extractable text")

const (
	// minUsableChars is the non-space character count below which the text
	// layer is considered missing and OCR is attempted.
	minUsableChars = 20
	defaultDPI     = 200
	magicWindow    = 1024
)

// Page is the text of a single 1-based page.
type Page struct {
	Number int
	Text   string
}

// Extractor produces page text from raw PDF bytes.
type Extractor interface {
	Extract(ctx context.Context, data []byte) ([]Page, error)
}

// CommandRunner executes an external program and returns its stdout.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}

type execRunner struct{}

func (execRunner) Run(ctx context.Context, name string, args ...string) ([]byte, error) {
	return exec.CommandContext(ctx, name, args...).Output()
}

// Options configures a PDFExtractor.
type Options struct {
	// OCR enables the pdftoppm + tesseract fallback.
	OCR bool
	// DPI is the rasterization resolution used for OCR.
	DPI int
	// Language is passed to tesseract with -l when set.
	Language string
	// Runner overrides how external commands are executed.
	Runner CommandRunner
	// Filter drops index-like pages; nil keeps every page.
	Filter *filter.Filter
}

// PDFExtractor reads the PDF text layer with ledongthuc/pdf and shells out
// to poppler and tesseract for scanned documents.
type PDFExtractor struct {
	ocr      bool
	dpi      int
	language string
	runner   CommandRunner
	filter   *filter.Filter
}

// NewPDFExtractor creates a PDFExtractor.
func NewPDFExtractor(opts Options) *PDFExtractor {
	if opts.DPI <= 0 {
		opts.DPI = defaultDPI
	}
	if opts.Runner == nil {
		opts.Runner = execRunner{}
	}
	return &PDFExtractor{
		ocr:      opts.OCR,
		dpi:      opts.DPI,
		language: opts.Language,
		runner:   opts.Runner,
		filter:   opts.Filter,
	}
}

// Extract returns the non-empty, non-index-like pages of the document in
// page order. Failures on individual pages are absorbed; ErrNoText is
// returned only when the whole document yields nothing.
func (e *PDFExtractor) Extract(ctx context.Context, data []byte) ([]Page, error) {
	raw, err := textLayer(data)
	if err != nil {
		slog.Debug("pdf text layer unreadable", "error", err)
	}

	skip := make(map[int]bool)
	var pages []Page
	for _, p := range raw {
		if e.isIndexLike(p.Text) {
			skip[p.Number] = true
			continue
		}
		if strings.TrimSpace(p.Text) != "" {
			pages = append(pages, p)
		}
	}

	if usableChars(raw) >= minUsableChars {
		if len(pages) == 0 {
			return nil, ErrNoText
		}
		return pages, nil
	}

	if !e.ocr {
		return nil, ErrNoText
	}

	slog.Info("text layer empty, running OCR", "pages", len(raw))
	ocrPages, err := e.runOCR(ctx, data, skip)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("%w: ocr: %v", ErrNoText, err)
	}
	if len(ocrPages) == 0 {
		return nil, ErrNoText
	}
	return ocrPages, nil
}

func (e *PDFExtractor) isIndexLike(text string) bool {
	return e.filter != nil && e.filter.IsIndexLike(text)
}

// textLayer reads every page's embedded text. A page that fails to decode
// contributes an empty string.
func textLayer(data []byte) (pages []Page, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("pdf reader panic: %v", r)
		}
	}()

	reader, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return nil, fmt.Errorf("open pdf: %w", err)
	}

	n := reader.NumPage()
	for i := 1; i <= n; i++ {
		pages = append(pages, Page{Number: i, Text: pageText(reader, i)})
	}
	return pages, nil
}

func pageText(reader *pdf.Reader, n int) (text string) {
	defer func() {
		if r := recover(); r != nil {
			slog.Debug("pdf page decode panic", "page", n, "panic", r)
			text = ""
		}
	}()

	page := reader.Page(n)
	if page.V.IsNull() {
		return ""
	}
	text, err := page.GetPlainText(nil)
	if err != nil {
		slog.Debug("pdf page decode failed", "page", n, "error", err)
		return ""
	}
	return text
}

func (e *PDFExtractor) runOCR(ctx context.Context, data []byte, skip map[int]bool) ([]Page, error) {
	dir, err := os.MkdirTemp("", "crag-ocr-*")
	if err != nil {
		return nil, fmt.Errorf("create temp dir: %w", err)
	}
	defer os.RemoveAll(dir)

	src := filepath.Join(dir, "input.pdf")
	if err := os.WriteFile(src, data, 0o600); err != nil {
		return nil, fmt.Errorf("write temp pdf: %w", err)
	}

	prefix := filepath.Join(dir, "page")
	if _, err := e.runner.Run(ctx, "pdftoppm", "-r", fmt.Sprint(e.dpi), "-png", src, prefix); err != nil {
		return nil, fmt.Errorf("pdftoppm: %w", err)
	}

	images, err := filepath.Glob(prefix + "-*.png")
	if err != nil {
		return nil, err
	}
	sort.Strings(images)

	var pages []Page
	for i, img := range images {
		number := i + 1
		if skip[number] {
			continue
		}
		args := []string{img, "stdout"}
		if e.language != "" {
			args = append(args, "-l", e.language)
		}
		out, err := e.runner.Run(ctx, "tesseract", args...)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			slog.Warn("ocr failed for page", "page", number, "error", err)
			continue
		}
		text := string(out)
		if strings.TrimSpace(text) == "" || e.isIndexLike(text) {
			continue
		}
		pages = append(pages, Page{Number: number, Text: text})
	}
	return pages, nil
}

func usableChars(pages []Page) int {
	n := 0
	for _, p := range pages {
		for _, r := range p.Text {
			if !unicode.IsSpace(r) {
				n++
			}
		}
	}
	return n
}

// IsPDF reports whether filename has a .pdf extension and data carries the
// PDF header near its start.
func IsPDF(filename string, data []byte) bool {
	if !strings.EqualFold(filepath.Ext(filename), ".pdf") {
		return false
	}
	head := data
	if len(head) > magicWindow {
		head = head[:magicWindow]
	}
	return bytes.Contains(head, []byte("%PDF-"))
}
