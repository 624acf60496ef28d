package extract

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"

	"sumbench/internal/config"
	"sumbench/internal/logging"
)

// sourceFile is one file the walker selected for parsing. Path is
// slash-separated and relative to the project root.
type sourceFile struct {
	Path     string
	Language string
	Content  []byte
}

// extLanguages maps source extensions to the languages the parsers
// understand.
var extLanguages = map[string]string{
	".go":  "go",
	".py":  "python",
	".js":  "javascript",
	".jsx": "javascript",
	".ts":  "typescript",
	".tsx": "typescript",
}

// walkTree collects the parseable source files under the project root,
// honoring include/exclude globs, the size cap, and binary sniffing.
// Results follow the lexical walk order, so extraction is deterministic.
func walkTree(ctx context.Context, proj config.ProjectConfig, languages []string) ([]sourceFile, error) {
	root := proj.Root
	if root == "" {
		root = "."
	}
	maxBytes := int64(proj.MaxFileKB) * 1024

	wanted := make(map[string]bool, len(languages))
	for _, l := range languages {
		wanted[strings.ToLower(l)] = true
	}

	var files []sourceFile
	err := filepath.Walk(root, func(path string, info os.FileInfo, err error) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if err != nil {
			return err
		}

		rel, relErr := filepath.Rel(root, path)
		if relErr != nil {
			return relErr
		}
		rel = filepath.ToSlash(rel)

		if info.IsDir() {
			if rel == "." {
				return nil
			}
			if strings.HasPrefix(info.Name(), ".") || excludedDir(rel, proj.Exclude) {
				return filepath.SkipDir
			}
			return nil
		}

		lang, ok := extLanguages[strings.ToLower(filepath.Ext(path))]
		if !ok || (len(wanted) > 0 && !wanted[lang]) {
			return nil
		}
		if !selected(rel, proj.Include, proj.Exclude) {
			return nil
		}
		if maxBytes > 0 && info.Size() > maxBytes {
			logging.ExtractDebug("Skipping %s: %d bytes over the %dKB cap", rel, info.Size(), proj.MaxFileKB)
			return nil
		}

		content, readErr := os.ReadFile(path)
		if readErr != nil {
			return fmt.Errorf("failed to read %s: %w", rel, readErr)
		}
		if isBinary(content) {
			logging.ExtractDebug("Skipping %s: binary content", rel)
			return nil
		}

		files = append(files, sourceFile{Path: rel, Language: lang, Content: content})
		return nil
	})
	if err != nil {
		return nil, err
	}
	return files, nil
}

// selected applies the include allowlist (empty means everything) and
// then the exclude list.
func selected(rel string, include, exclude []string) bool {
	if len(include) > 0 {
		ok := false
		for _, pat := range include {
			if m, _ := doublestar.Match(pat, rel); m {
				ok = true
				break
			}
		}
		if !ok {
			return false
		}
	}
	for _, pat := range exclude {
		if m, _ := doublestar.Match(pat, rel); m {
			return false
		}
	}
	return true
}

// excludedDir prunes directories whose exclude pattern covers the whole
// subtree ("vendor/**" prunes vendor/ without walking it).
func excludedDir(rel string, exclude []string) bool {
	for _, pat := range exclude {
		base := strings.TrimSuffix(pat, "/**")
		if base == pat {
			continue
		}
		if m, _ := doublestar.Match(base, rel); m {
			return true
		}
	}
	return false
}

// isBinary applies the git heuristic: a NUL byte in the first 8000
// bytes marks the file as binary.
func isBinary(content []byte) bool {
	probe := content
	if len(probe) > 8000 {
		probe = probe[:8000]
	}
	return bytes.IndexByte(probe, 0) >= 0
}
