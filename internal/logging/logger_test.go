package logging

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func resetState() {
	CloseAll()
	stateMu.Lock()
	logsDir = ""
	logLevel = LevelInfo
	stateMu.Unlock()
}

func readCategoryLog(t *testing.T, dir string, cat Category) string {
	t.Helper()
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("Failed to read log dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), string(cat)+".log") {
			content, err := os.ReadFile(filepath.Join(dir, e.Name()))
			if err != nil {
				t.Fatalf("Failed to read %s: %v", e.Name(), err)
			}
			return string(content)
		}
	}
	return ""
}

func TestAllCategoriesWriteFiles(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	t.Cleanup(resetState)

	if err := Initialize(tempDir, true); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	categories := []Category{
		CategoryPipeline,
		CategoryStore,
		CategoryExtract,
		CategoryGenerate,
		CategoryLLM,
		CategoryEmbedding,
		CategoryRetrieval,
		CategoryContrastive,
		CategoryJudge,
		CategoryIterative,
		CategoryAggregate,
		CategoryReport,
	}
	for _, cat := range categories {
		l := Get(cat)
		l.Info("info for %s", cat)
		l.Debug("debug for %s", cat)
		l.Warn("warn for %s", cat)
		l.Error("error for %s", cat)
	}
	CloseAll()

	for _, cat := range categories {
		content := readCategoryLog(t, tempDir, cat)
		if content == "" {
			t.Errorf("No log file for category %s", cat)
			continue
		}
		for _, level := range []string{"[INFO]", "[DEBUG]", "[WARN]", "[ERROR]"} {
			if !strings.Contains(content, level) {
				t.Errorf("Category %s log missing %s line", cat, level)
			}
		}
	}
}

func TestInfoLevelSuppressesDebug(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	t.Cleanup(resetState)

	if err := Initialize(tempDir, false); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	Pipeline("visible line")
	PipelineDebug("hidden line")
	CloseAll()

	content := readCategoryLog(t, tempDir, CategoryPipeline)
	if !strings.Contains(content, "visible line") {
		t.Error("Info line missing")
	}
	if strings.Contains(content, "hidden line") {
		t.Error("Debug line logged at info level")
	}
}

func TestEmptyDirDisablesLogging(t *testing.T) {
	resetState()
	t.Cleanup(resetState)

	if err := Initialize("", false); err != nil {
		t.Fatalf("Initialize with empty dir failed: %v", err)
	}

	// Must be safe no-ops.
	Store("goes nowhere")
	StoreDebug("goes nowhere")
	Get(CategoryLLM).Error("goes nowhere")

	if l := Get(CategoryStore); l.logger != nil {
		t.Error("Expected a no-op logger when logging is disabled")
	}
}

func TestTimerLogsDuration(t *testing.T) {
	tempDir := t.TempDir()
	resetState()
	t.Cleanup(resetState)

	if err := Initialize(tempDir, true); err != nil {
		t.Fatalf("Failed to initialize logging: %v", err)
	}

	timer := StartTimer(CategoryAggregate, "collapse scores")
	time.Sleep(time.Millisecond)
	if d := timer.Stop(); d <= 0 {
		t.Errorf("Stop returned %v, want > 0", d)
	}

	slow := StartTimer(CategoryAggregate, "slow op")
	time.Sleep(2 * time.Millisecond)
	slow.StopWithThreshold(time.Nanosecond)
	CloseAll()

	content := readCategoryLog(t, tempDir, CategoryAggregate)
	if !strings.Contains(content, "collapse scores completed in") {
		t.Error("Timer debug line missing")
	}
	if !strings.Contains(content, "slow op took") {
		t.Error("Threshold warning missing")
	}
}

func TestTimerSafeWhenDisabled(t *testing.T) {
	resetState()
	t.Cleanup(resetState)

	if err := Initialize("", false); err != nil {
		t.Fatalf("Initialize failed: %v", err)
	}
	timer := StartTimer(CategoryPipeline, "noop")
	if d := timer.StopWithInfo(); d < 0 {
		t.Errorf("StopWithInfo returned %v", d)
	}
}
