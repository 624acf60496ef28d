// Package extract walks a project tree and parses its source files into
// the code units the rest of the pipeline summarizes and scores.
package extract

import (
	"bytes"
	"context"
	"path"
	"sort"
	"strings"

	"github.com/google/uuid"

	"sumbench/internal/config"
	"sumbench/internal/errs"
	"sumbench/internal/logging"
	"sumbench/internal/types"
)

// languageParser turns one source file into code units. Paths are
// relative to the project root.
type languageParser interface {
	Parse(path string, content []byte) ([]types.CodeUnit, error)
}

// Extractor runs the extraction phase: walk, parse, link, sample.
type Extractor struct {
	cfg     *config.Config
	parsers map[string]languageParser
}

func New(cfg *config.Config) *Extractor {
	return &Extractor{
		cfg: cfg,
		parsers: map[string]languageParser{
			"go":         &goParser{},
			"python":     newPythonParser(),
			"javascript": newJavaScriptParser(),
			"typescript": newTypeScriptParser(),
			"tsx":        newTSXParser(),
		},
	}
}

// FileFailure is one source file the parsers could not handle.
type FileFailure struct {
	Path string
	Err  error
}

// Result carries everything one extraction produced. Failures are
// per-file parse errors; they skip the file without failing the phase.
type Result struct {
	Units    []*types.CodeUnit
	Failures []FileFailure
	Info     *types.CodebaseInfo
}

// Extract walks the configured project root and parses every selected
// source file. Unit order and sampling are deterministic, so re-running
// extraction over an unchanged tree yields the same units.
func (e *Extractor) Extract(ctx context.Context, runID string) (*Result, error) {
	const op = "extract.Extract"

	files, err := walkTree(ctx, e.cfg.Project, e.cfg.Extraction.Languages)
	if err != nil {
		return nil, errs.E(errs.KindExtraction, op, err)
	}

	allowed := make(map[types.UnitType]bool)
	for _, t := range e.cfg.Extraction.UnitTypes {
		allowed[types.UnitType(t)] = true
	}

	info := &types.CodebaseInfo{
		Name:      e.cfg.Project.Name,
		Root:      e.cfg.Project.Root,
		Languages: make(map[string]int),
	}

	var units []*types.CodeUnit
	var failures []FileFailure
	for _, f := range files {
		p := e.parserFor(f)
		if p == nil {
			continue
		}
		parsed, err := p.Parse(f.Path, f.Content)
		if err != nil {
			logging.ExtractWarn("Skipping %s: %v", f.Path, err)
			failures = append(failures, FileFailure{Path: f.Path, Err: errs.E(errs.KindExtraction, op, err)})
			continue
		}
		info.Files++
		info.Languages[f.Language]++

		classIDs := make(map[string]string)
		var fileUnits []*types.CodeUnit
		for i := range parsed {
			u := parsed[i]
			if len(allowed) > 0 && !allowed[u.Type] {
				continue
			}
			u.ID = uuid.NewString()
			u.RunID = runID
			u.Language = f.Language
			if u.Type == types.UnitClass {
				classIDs[u.Name] = u.ID
			}
			fileUnits = append(fileUnits, &u)
		}
		for _, u := range fileUnits {
			u.Relationships.SiblingCount = len(fileUnits) - 1
			if u.Metadata.Parent != "" {
				u.Relationships.ParentID = classIDs[u.Metadata.Parent]
			}
		}
		if allowed[types.UnitFile] {
			fileUnits = append(fileUnits, &types.CodeUnit{
				ID:       uuid.NewString(),
				RunID:    runID,
				Path:     f.Path,
				Name:     path.Base(f.Path),
				Type:     types.UnitFile,
				Language: f.Language,
				Content:  string(f.Content),
				Metadata: types.UnitMetadata{
					StartLine: 1,
					EndLine:   bytes.Count(f.Content, []byte("\n")) + 1,
				},
			})
		}
		units = append(units, fileUnits...)
	}

	total := len(units)
	units = spreadSample(units, e.cfg.Extraction.MaxUnits)
	if len(units) < total {
		logging.Extract("Sampled %d of %d units (max_units=%d)", len(units), total, e.cfg.Extraction.MaxUnits)
	}

	logging.Extract("Extracted %d units from %d files (%d parse failures)",
		len(units), info.Files, len(failures))
	return &Result{Units: units, Failures: failures, Info: info}, nil
}

// parserFor picks the parser for a walked file. TSX needs its own
// grammar; everything else keys on language.
func (e *Extractor) parserFor(f sourceFile) languageParser {
	if strings.HasSuffix(f.Path, ".tsx") {
		return e.parsers["tsx"]
	}
	return e.parsers[f.Language]
}

// spreadSample trims the unit list to max with an even spread over the
// units sorted by (path, name, start line). Evenly spaced indices keep
// the sample representative of the whole tree instead of its prefix.
func spreadSample(units []*types.CodeUnit, max int) []*types.CodeUnit {
	if max <= 0 || len(units) <= max {
		return units
	}
	sort.Slice(units, func(i, j int) bool {
		if units[i].Path != units[j].Path {
			return units[i].Path < units[j].Path
		}
		if units[i].Name != units[j].Name {
			return units[i].Name < units[j].Name
		}
		return units[i].Metadata.StartLine < units[j].Metadata.StartLine
	})
	n := len(units)
	sampled := make([]*types.CodeUnit, 0, max)
	for j := 0; j < max; j++ {
		sampled = append(sampled, units[j*n/max])
	}
	return sampled
}
