// Package logging provides categorized file-based logging for the
// benchmark pipeline. Each category writes to its own date-prefixed file
// under the configured log directory. When no directory is configured the
// package is a silent no-op, so library code can log unconditionally.
package logging

import (
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Category represents a log category/system.
type Category string

const (
	CategoryPipeline    Category = "pipeline"    // orchestrator, phase lifecycle
	CategoryStore       Category = "store"       // sqlite operations
	CategoryExtract     Category = "extract"     // file walk, parsing
	CategoryGenerate    Category = "generate"    // summary generation
	CategoryLLM         Category = "llm"         // LLM API calls, retries
	CategoryEmbedding   Category = "embedding"   // embedding calls, cache
	CategoryRetrieval   Category = "retrieval"   // cross-model retrieval evaluator
	CategoryContrastive Category = "contrastive" // distractor selection, matching
	CategoryJudge       Category = "judge"       // pointwise + pairwise judging
	CategoryIterative   Category = "iterative"   // refinement loop
	CategoryAggregate   Category = "aggregate"   // score aggregation
	CategoryReport      Category = "report"      // report emission
)

// Log levels.
const (
	LevelDebug = 0
	LevelInfo  = 1
	LevelWarn  = 2
	LevelError = 3
)

// Logger wraps a standard logger with category and file output.
type Logger struct {
	category Category
	logger   *log.Logger
	file     *os.File
}

var (
	loggers   = make(map[Category]*Logger)
	loggersMu sync.RWMutex
	logsDir   string
	logLevel  = LevelInfo
	stateMu   sync.RWMutex
)

// Initialize sets the log directory and level. An empty dir disables all
// file logging. debug lowers the level floor to debug.
func Initialize(dir string, debug bool) error {
	stateMu.Lock()
	defer stateMu.Unlock()

	if dir == "" {
		logsDir = ""
		return nil
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create logs directory: %w", err)
	}
	logsDir = dir
	if debug {
		logLevel = LevelDebug
	} else {
		logLevel = LevelInfo
	}
	return nil
}

// SetLevel overrides the level floor (LevelDebug..LevelError).
func SetLevel(level int) {
	stateMu.Lock()
	defer stateMu.Unlock()
	logLevel = level
}

func currentLevel() int {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return logLevel
}

func currentDir() string {
	stateMu.RLock()
	defer stateMu.RUnlock()
	return logsDir
}

// Get returns (or creates) the logger for a category. Returns a no-op
// logger when file logging is disabled or the file cannot be opened.
func Get(category Category) *Logger {
	dir := currentDir()
	if dir == "" {
		return &Logger{category: category}
	}

	loggersMu.RLock()
	if l, ok := loggers[category]; ok {
		loggersMu.RUnlock()
		return l
	}
	loggersMu.RUnlock()

	loggersMu.Lock()
	defer loggersMu.Unlock()

	// Double-check after acquiring the write lock.
	if l, ok := loggers[category]; ok {
		return l
	}

	// Date prefix keeps rotation a matter of deleting old files.
	date := time.Now().Format("2006-01-02")
	filename := fmt.Sprintf("%s_%s.log", date, category)
	logPath := filepath.Join(dir, filename)

	file, err := os.OpenFile(logPath, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
	if err != nil {
		fmt.Fprintf(os.Stderr, "[logging] Warning: could not open log file %s: %v\n", logPath, err)
		return &Logger{category: category}
	}

	l := &Logger{
		category: category,
		file:     file,
		logger:   log.New(file, "", log.Ldate|log.Ltime|log.Lmicroseconds),
	}
	loggers[category] = l
	return l
}

// Debug logs a debug message (only if level <= debug).
func (l *Logger) Debug(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelDebug {
		return
	}
	l.logger.Printf("[DEBUG] %s", fmt.Sprintf(format, args...))
}

// Info logs an informational message (only if level <= info).
func (l *Logger) Info(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelInfo {
		return
	}
	l.logger.Printf("[INFO] %s", fmt.Sprintf(format, args...))
}

// Warn logs a warning message (only if level <= warn).
func (l *Logger) Warn(format string, args ...interface{}) {
	if l.logger == nil || currentLevel() > LevelWarn {
		return
	}
	l.logger.Printf("[WARN] %s", fmt.Sprintf(format, args...))
}

// Error logs an error message (always logged if the logger exists).
func (l *Logger) Error(format string, args ...interface{}) {
	if l.logger == nil {
		return
	}
	l.logger.Printf("[ERROR] %s", fmt.Sprintf(format, args...))
}

// CloseAll closes all open log files (call at shutdown).
func CloseAll() {
	loggersMu.Lock()
	defer loggersMu.Unlock()

	for _, l := range loggers {
		if l.file != nil {
			l.file.Close()
		}
	}
	loggers = make(map[Category]*Logger)
}

// =============================================================================
// CONVENIENCE FUNCTIONS - Quick logging without getting a logger first
// =============================================================================

// Pipeline logs to the pipeline category.
func Pipeline(format string, args ...interface{}) {
	Get(CategoryPipeline).Info(format, args...)
}

// PipelineDebug logs debug to the pipeline category.
func PipelineDebug(format string, args ...interface{}) {
	Get(CategoryPipeline).Debug(format, args...)
}

// PipelineWarn logs warning to the pipeline category.
func PipelineWarn(format string, args ...interface{}) {
	Get(CategoryPipeline).Warn(format, args...)
}

// PipelineError logs error to the pipeline category.
func PipelineError(format string, args ...interface{}) {
	Get(CategoryPipeline).Error(format, args...)
}

// Store logs to the store category.
func Store(format string, args ...interface{}) {
	Get(CategoryStore).Info(format, args...)
}

// StoreDebug logs debug to the store category.
func StoreDebug(format string, args ...interface{}) {
	Get(CategoryStore).Debug(format, args...)
}

// StoreError logs error to the store category.
func StoreError(format string, args ...interface{}) {
	Get(CategoryStore).Error(format, args...)
}

// Extract logs to the extract category.
func Extract(format string, args ...interface{}) {
	Get(CategoryExtract).Info(format, args...)
}

// ExtractDebug logs debug to the extract category.
func ExtractDebug(format string, args ...interface{}) {
	Get(CategoryExtract).Debug(format, args...)
}

// ExtractWarn logs warning to the extract category.
func ExtractWarn(format string, args ...interface{}) {
	Get(CategoryExtract).Warn(format, args...)
}

// Generate logs to the generate category.
func Generate(format string, args ...interface{}) {
	Get(CategoryGenerate).Info(format, args...)
}

// GenerateDebug logs debug to the generate category.
func GenerateDebug(format string, args ...interface{}) {
	Get(CategoryGenerate).Debug(format, args...)
}

// GenerateWarn logs warning to the generate category.
func GenerateWarn(format string, args ...interface{}) {
	Get(CategoryGenerate).Warn(format, args...)
}

// LLM logs to the llm category.
func LLM(format string, args ...interface{}) {
	Get(CategoryLLM).Info(format, args...)
}

// LLMDebug logs debug to the llm category.
func LLMDebug(format string, args ...interface{}) {
	Get(CategoryLLM).Debug(format, args...)
}

// LLMWarn logs warning to the llm category.
func LLMWarn(format string, args ...interface{}) {
	Get(CategoryLLM).Warn(format, args...)
}

// LLMError logs error to the llm category.
func LLMError(format string, args ...interface{}) {
	Get(CategoryLLM).Error(format, args...)
}

// Embedding logs to the embedding category.
func Embedding(format string, args ...interface{}) {
	Get(CategoryEmbedding).Info(format, args...)
}

// EmbeddingDebug logs debug to the embedding category.
func EmbeddingDebug(format string, args ...interface{}) {
	Get(CategoryEmbedding).Debug(format, args...)
}

// EmbeddingError logs error to the embedding category.
func EmbeddingError(format string, args ...interface{}) {
	Get(CategoryEmbedding).Error(format, args...)
}

// Retrieval logs to the retrieval category.
func Retrieval(format string, args ...interface{}) {
	Get(CategoryRetrieval).Info(format, args...)
}

// RetrievalDebug logs debug to the retrieval category.
func RetrievalDebug(format string, args ...interface{}) {
	Get(CategoryRetrieval).Debug(format, args...)
}

// RetrievalWarn logs warning to the retrieval category.
func RetrievalWarn(format string, args ...interface{}) {
	Get(CategoryRetrieval).Warn(format, args...)
}

// Contrastive logs to the contrastive category.
func Contrastive(format string, args ...interface{}) {
	Get(CategoryContrastive).Info(format, args...)
}

// ContrastiveDebug logs debug to the contrastive category.
func ContrastiveDebug(format string, args ...interface{}) {
	Get(CategoryContrastive).Debug(format, args...)
}

// ContrastiveWarn logs warning to the contrastive category.
func ContrastiveWarn(format string, args ...interface{}) {
	Get(CategoryContrastive).Warn(format, args...)
}

// Judge logs to the judge category.
func Judge(format string, args ...interface{}) {
	Get(CategoryJudge).Info(format, args...)
}

// JudgeDebug logs debug to the judge category.
func JudgeDebug(format string, args ...interface{}) {
	Get(CategoryJudge).Debug(format, args...)
}

// JudgeWarn logs warning to the judge category.
func JudgeWarn(format string, args ...interface{}) {
	Get(CategoryJudge).Warn(format, args...)
}

// Iterative logs to the iterative category.
func Iterative(format string, args ...interface{}) {
	Get(CategoryIterative).Info(format, args...)
}

// IterativeDebug logs debug to the iterative category.
func IterativeDebug(format string, args ...interface{}) {
	Get(CategoryIterative).Debug(format, args...)
}

// IterativeWarn logs warning to the iterative category.
func IterativeWarn(format string, args ...interface{}) {
	Get(CategoryIterative).Warn(format, args...)
}

// Aggregate logs to the aggregate category.
func Aggregate(format string, args ...interface{}) {
	Get(CategoryAggregate).Info(format, args...)
}

// AggregateDebug logs debug to the aggregate category.
func AggregateDebug(format string, args ...interface{}) {
	Get(CategoryAggregate).Debug(format, args...)
}

// Report logs to the report category.
func Report(format string, args ...interface{}) {
	Get(CategoryReport).Info(format, args...)
}

// ReportDebug logs debug to the report category.
func ReportDebug(format string, args ...interface{}) {
	Get(CategoryReport).Debug(format, args...)
}
