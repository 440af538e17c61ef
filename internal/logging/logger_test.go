package logging_test

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vidmill/internal/logging"
)

func newFileLogger(t *testing.T) (string, func() string) {
	t.Helper()
	logPath := filepath.Join(t.TempDir(), "test.log")
	return logPath, func() string {
		content, err := os.ReadFile(logPath)
		if err != nil {
			t.Fatalf("read log file: %v", err)
		}
		return string(content)
	}
}

func TestConsoleLoggerOmitsCallerForInfo(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message without caller")

	if content := read(); strings.Contains(content, ".go:") {
		t.Fatalf("expected no caller information in info logs, got %q", content)
	}
}

func TestConsoleLoggerIncludesCallerForDebug(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "debug", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logger.Info("message with caller")

	if content := read(); !strings.Contains(content, "logger_test.go:") {
		t.Fatalf("expected caller information in debug logs, got %q", content)
	}
}

func TestConsoleLoggerFormatsComponentAndFields(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	queueLogger := logging.NewComponentLogger(logger, "queue")
	queueLogger.Info("job finished", logging.String(logging.FieldStatus, "failed"), logging.String("error_message", "exit status 1"))

	content := read()
	if !strings.Contains(content, "INFO queue: job finished") {
		t.Fatalf("expected component prefix, got %q", content)
	}
	if !strings.Contains(content, "status=failed") {
		t.Fatalf("expected status field, got %q", content)
	}
	if !strings.Contains(content, `error_message="exit status 1"`) {
		t.Fatalf("expected quoted value, got %q", content)
	}
	if strings.Contains(content, "component=") {
		t.Fatalf("component should be hoisted into the prefix, got %q", content)
	}
}

func TestJSONLoggerIncludesContextFields(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithJobID(context.Background(), "job-42")
	ctx = logging.WithCorrelationID(ctx, "req-7")
	logging.WithContext(ctx, logger).Warn("slow start")

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload[logging.FieldJobID] != "job-42" {
		t.Fatalf("expected job_id field, got %v", payload)
	}
	if payload[logging.FieldCorrelationID] != "req-7" {
		t.Fatalf("expected correlation_id field, got %v", payload)
	}
	if payload["level"] != "warn" {
		t.Fatalf("expected lowercase level, got %v", payload["level"])
	}
	if _, ok := payload["ts"]; !ok {
		t.Fatalf("expected ts key, got %v", payload)
	}
}

func TestErrorWithContextInjectsDefaults(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "json", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	logging.ErrorWithContext(logger, "engine crashed", "executor_failure", logging.Error(errors.New("boom")))

	var payload map[string]any
	if err := json.Unmarshal([]byte(strings.TrimSpace(read())), &payload); err != nil {
		t.Fatalf("decode json log: %v", err)
	}
	if payload[logging.FieldEventType] != "executor_failure" {
		t.Fatalf("expected event_type, got %v", payload)
	}
	if payload[logging.FieldErrorHint] == nil {
		t.Fatalf("expected default error_hint, got %v", payload)
	}
}

func TestNewRejectsUnknownFormat(t *testing.T) {
	if _, err := logging.New(logging.Options{Format: "xml"}); err == nil {
		t.Fatal("expected error for unsupported format")
	}
}

func TestContextHelpersIgnoreBlankIDs(t *testing.T) {
	ctx := logging.WithJobID(context.Background(), "  ")
	if _, ok := logging.JobIDFromContext(ctx); ok {
		t.Fatal("blank job id should not be stored")
	}
	if fields := logging.ContextFields(ctx); len(fields) != 0 {
		t.Fatalf("expected no fields, got %v", fields)
	}
}

func TestContextIDsAttachWithoutDuplicates(t *testing.T) {
	logPath, read := newFileLogger(t)
	logger, err := logging.New(logging.Options{Format: "console", Level: "info", OutputPaths: []string{logPath}})
	if err != nil {
		t.Fatalf("New returned error: %v", err)
	}

	ctx := logging.WithJobID(context.Background(), "job-9")
	logger.InfoContext(ctx, "from context")
	logging.WithContext(ctx, logger).InfoContext(ctx, "already bound")

	lines := strings.Split(strings.TrimSpace(read()), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected two lines, got %q", lines)
	}
	for _, line := range lines {
		if n := strings.Count(line, "job_id=job-9"); n != 1 {
			t.Fatalf("expected job_id exactly once, got %d in %q", n, line)
		}
	}
}

func TestLevelNames(t *testing.T) {
	tests := []struct {
		level     string
		infoShown bool
		warnShown bool
	}{
		{level: "", infoShown: true, warnShown: true},
		{level: "INFO", infoShown: true, warnShown: true},
		{level: "warning", infoShown: false, warnShown: true},
		{level: " warn ", infoShown: false, warnShown: true},
		{level: "error", infoShown: false, warnShown: false},
		{level: "verbose", infoShown: true, warnShown: true},
	}
	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			logPath, read := newFileLogger(t)
			logger, err := logging.New(logging.Options{Level: tt.level, OutputPaths: []string{logPath, logPath}})
			if err != nil {
				t.Fatalf("New returned error: %v", err)
			}
			logger.Info("info line")
			logger.Warn("warn line")

			content := read()
			if got := strings.Contains(content, "info line"); got != tt.infoShown {
				t.Fatalf("info shown = %v, want %v (%q)", got, tt.infoShown, content)
			}
			if got := strings.Contains(content, "warn line"); got != tt.warnShown {
				t.Fatalf("warn shown = %v, want %v (%q)", got, tt.warnShown, content)
			}
			if strings.Count(content, "warn line") > 1 {
				t.Fatalf("duplicate output paths should be opened once, got %q", content)
			}
		})
	}
}
