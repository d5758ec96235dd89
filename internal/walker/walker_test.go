package walker

import (
	"os"
	"path/filepath"
	"testing"
)

const pdfBody = "%PDF-1.4\n1 0 obj\n<<>>\nendobj\n%%EOF\n"

// writeTree creates files under a temp dir. Values are file contents.
func writeTree(t *testing.T, files map[string]string) string {
	t.Helper()
	root := t.TempDir()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			t.Fatal(err)
		}
		if err := os.WriteFile(path, []byte(content), 0644); err != nil {
			t.Fatal(err)
		}
	}
	return root
}

func relPaths(files []FileInfo) []string {
	out := make([]string, len(files))
	for i, f := range files {
		out[i] = f.RelPath
	}
	return out
}

func equalPaths(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("got %v, want %v", got, want)
		}
	}
}

func TestWalk_FindsPDFsSorted(t *testing.T) {
	root := writeTree(t, map[string]string{
		"circulars/kyc.pdf":      pdfBody,
		"circulars/2024/aml.pdf": pdfBody,
		"a-first.pdf":            pdfBody,
		"notes.txt":              "not a pdf",
	})

	files, err := Walk(WalkerConfig{RootDir: root, Include: []string{"**/*.pdf"}})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"a-first.pdf", "circulars/2024/aml.pdf", "circulars/kyc.pdf"})
}

func TestWalk_FileInfoFields(t *testing.T) {
	root := writeTree(t, map[string]string{"sub/doc.pdf": pdfBody})

	files, err := Walk(WalkerConfig{RootDir: root})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	if len(files) != 1 {
		t.Fatalf("expected 1 file, got %d", len(files))
	}
	f := files[0]
	if !filepath.IsAbs(f.Path) {
		t.Errorf("Path should be absolute, got %q", f.Path)
	}
	if f.RelPath != "sub/doc.pdf" {
		t.Errorf("RelPath = %q, want sub/doc.pdf", f.RelPath)
	}
	if f.Size != int64(len(pdfBody)) {
		t.Errorf("Size = %d, want %d", f.Size, len(pdfBody))
	}
}

func TestWalk_SkipsFilesWithoutPDFHeader(t *testing.T) {
	root := writeTree(t, map[string]string{
		"real.pdf":    pdfBody,
		"renamed.pdf": "PK\x03\x04 zip archive",
		"empty.pdf":   "",
	})

	files, err := Walk(WalkerConfig{RootDir: root})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"real.pdf"})
}

func TestWalk_IncludeExclude(t *testing.T) {
	root := writeTree(t, map[string]string{
		"kyc/master.pdf": pdfBody,
		"kyc/draft.pdf":  pdfBody,
		"other/misc.pdf": pdfBody,
	})

	files, err := Walk(WalkerConfig{
		RootDir: root,
		Include: []string{"kyc/**"},
		Exclude: []string{"*draft*"},
	})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"kyc/master.pdf"})
}

func TestWalk_SkipsLargeFiles(t *testing.T) {
	root := writeTree(t, map[string]string{
		"small.pdf": pdfBody,
		"large.pdf": pdfBody + string(make([]byte, 200)),
	})

	files, err := Walk(WalkerConfig{RootDir: root, MaxFileSize: 100})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"small.pdf"})
}

func TestWalk_DefaultExcludeDirs(t *testing.T) {
	root := writeTree(t, map[string]string{
		"keep.pdf":                  pdfBody,
		".git/objects/x.pdf":        pdfBody,
		"node_modules/pkg/docs.pdf": pdfBody,
	})

	files, err := Walk(WalkerConfig{RootDir: root})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"keep.pdf"})
}

func TestWalk_Gitignore(t *testing.T) {
	root := writeTree(t, map[string]string{
		".gitignore":      "# scratch\n*-copy.pdf\narchive/\nold/2019/\n",
		"policy.pdf":      pdfBody,
		"policy-copy.pdf": pdfBody,
		"archive/a.pdf":   pdfBody,
		"old/2019/b.pdf":  pdfBody,
		"old/2020/c.pdf":  pdfBody,
	})

	files, err := Walk(WalkerConfig{RootDir: root})
	if err != nil {
		t.Fatalf("Walk() error: %v", err)
	}
	equalPaths(t, relPaths(files), []string{"old/2020/c.pdf", "policy.pdf"})
}

func TestWalk_MissingRoot(t *testing.T) {
	_, err := Walk(WalkerConfig{RootDir: filepath.Join(t.TempDir(), "nope")})
	if err == nil {
		t.Error("expected error for missing root")
	}
}

func TestExpand_FilesAndDirectories(t *testing.T) {
	root := writeTree(t, map[string]string{
		"dir/a.pdf":  pdfBody,
		"dir/b.pdf":  pdfBody,
		"single.pdf": pdfBody,
	})
	single := filepath.Join(root, "single.pdf")
	dirA := filepath.Join(root, "dir", "a.pdf")

	paths, err := Expand([]string{single, filepath.Join(root, "dir"), dirA}, WalkerConfig{Include: []string{"**/*.pdf"}})
	if err != nil {
		t.Fatalf("Expand() error: %v", err)
	}
	equalPaths(t, paths, []string{single, dirA, filepath.Join(root, "dir", "b.pdf")})

	if _, err := Expand([]string{filepath.Join(root, "missing.pdf")}, WalkerConfig{}); err == nil {
		t.Error("expected error for missing argument")
	}
}

// --- Filter tests ---

func TestMatchesInclude_Empty(t *testing.T) {
	if !MatchesInclude("anything.pdf", nil) {
		t.Error("empty include patterns should include everything")
	}
}

func TestMatchesInclude_Pattern(t *testing.T) {
	if !MatchesInclude("circular.pdf", []string{"*.pdf"}) {
		t.Error("*.pdf should match circular.pdf")
	}
	if MatchesInclude("circular.docx", []string{"*.pdf"}) {
		t.Error("*.pdf should not match circular.docx")
	}
}

func TestMatchesExclude_Pattern(t *testing.T) {
	if MatchesExclude("anything.pdf", nil) {
		t.Error("empty exclude patterns should exclude nothing")
	}
	if !MatchesExclude("drafts/v2.pdf", []string{"drafts/**"}) {
		t.Error("drafts/** should match drafts/v2.pdf")
	}
}

func TestMatchesInclude_DoubleStarPattern(t *testing.T) {
	if !MatchesInclude("rbi/2024/kyc.pdf", []string{"**/*.pdf"}) {
		t.Error("**/*.pdf should match rbi/2024/kyc.pdf")
	}
	if !MatchesInclude("kyc.pdf", []string{"**/*.pdf"}) {
		t.Error("**/*.pdf should match a root-level file")
	}
}
