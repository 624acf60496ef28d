package extract

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"sumbench/internal/config"
)

func writeTree(t *testing.T, root string, files map[string]string) {
	t.Helper()
	for rel, content := range files {
		path := filepath.Join(root, filepath.FromSlash(rel))
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			t.Fatalf("mkdir for %s: %v", rel, err)
		}
		if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
			t.Fatalf("write %s: %v", rel, err)
		}
	}
}

func walkedPaths(files []sourceFile) []string {
	paths := make([]string, len(files))
	for i, f := range files {
		paths[i] = f.Path
	}
	return paths
}

func TestWalkTreeSelection(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"main.go":          "package main\n",
		"sub/util.py":      "x = 1\n",
		"vendor/dep.go":    "package dep\n",
		"testdata/fix.go":  "package fix\n",
		".hidden/sneak.go": "package sneak\n",
		"README.md":        "# readme\n",
		"blob.js":          "var x = \"a\x00b\";\n",
		"big.go":           "package big\n//" + strings.Repeat("x", 4096) + "\n",
	})

	proj := config.ProjectConfig{
		Root:      root,
		Exclude:   []string{"vendor/**", "testdata/**"},
		MaxFileKB: 2,
	}
	files, err := walkTree(context.Background(), proj, []string{"go", "python", "javascript"})
	if err != nil {
		t.Fatalf("walkTree failed: %v", err)
	}

	got := walkedPaths(files)
	want := []string{"main.go", "sub/util.py"}
	if len(got) != len(want) {
		t.Fatalf("walked %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("walked[%d] = %q, want %q", i, got[i], want[i])
		}
	}

	py := files[1]
	if py.Language != "python" || string(py.Content) != "x = 1\n" {
		t.Errorf("util.py = %q lang %s", py.Content, py.Language)
	}
}

func TestWalkTreeInclude(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"cmd/main.go":      "package main\n",
		"internal/util.go": "package util\n",
	})

	proj := config.ProjectConfig{Root: root, Include: []string{"internal/**"}}
	files, err := walkTree(context.Background(), proj, []string{"go"})
	if err != nil {
		t.Fatalf("walkTree failed: %v", err)
	}
	if len(files) != 1 || files[0].Path != "internal/util.go" {
		t.Errorf("walked %v, want [internal/util.go]", walkedPaths(files))
	}
}

func TestWalkTreeLanguageFilter(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{
		"a.go": "package a\n",
		"b.py": "x = 1\n",
	})

	files, err := walkTree(context.Background(), config.ProjectConfig{Root: root}, []string{"go"})
	if err != nil {
		t.Fatalf("walkTree failed: %v", err)
	}
	if len(files) != 1 || files[0].Language != "go" {
		t.Errorf("walked %v, want only the Go file", walkedPaths(files))
	}
}

func TestWalkTreeCancellation(t *testing.T) {
	root := t.TempDir()
	writeTree(t, root, map[string]string{"a.go": "package a\n"})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := walkTree(ctx, config.ProjectConfig{Root: root}, nil); err != context.Canceled {
		t.Errorf("err = %v, want context.Canceled", err)
	}
}

func TestIsBinary(t *testing.T) {
	if isBinary([]byte("plain text")) {
		t.Error("text flagged as binary")
	}
	if !isBinary([]byte{0x7f, 'E', 'L', 'F', 0x00}) {
		t.Error("NUL-bearing content not flagged as binary")
	}
}
