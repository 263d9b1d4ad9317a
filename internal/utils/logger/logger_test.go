package logger

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// resetLogger resets the global logger state for testing
func resetLogger() {
	mu.Lock()
	if logFile != nil {
		_ = logFile.Close()
		logFile = nil
	}
	sugarLogger = nil
	baseLogger = nil
	atomicLevel = zap.AtomicLevel{}
	currentConfig = Config{}
	mu.Unlock()
	once = sync.Once{}
}

func TestParseLevel(t *testing.T) {
	tests := []struct {
		input    string
		expected zapcore.Level
	}{
		{"debug", zapcore.DebugLevel},
		{"DEBUG", zapcore.DebugLevel},
		{"info", zapcore.InfoLevel},
		{"warn", zapcore.WarnLevel},
		{"warning", zapcore.WarnLevel},
		{"error", zapcore.ErrorLevel},
		{" error ", zapcore.ErrorLevel},
		{"", zapcore.InfoLevel},
		{"bogus", zapcore.InfoLevel},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			if got := parseLevel(tt.input); got != tt.expected {
				t.Errorf("parseLevel(%q) = %v, want %v", tt.input, got, tt.expected)
			}
		})
	}
}

func TestInitWithLevelReconfigures(t *testing.T) {
	resetLogger()

	first, cleanup1 := InitWithLevel("debug")
	defer cleanup1()
	if !IsDebug() {
		t.Fatal("expected debug level after InitWithLevel(debug)")
	}

	second, cleanup2 := InitWithLevel("error")
	defer cleanup2()

	if first == nil || second == nil {
		t.Fatal("InitWithLevel returned nil logger")
	}
	if second != Logger() {
		t.Error("latest InitWithLevel call did not update the global logger")
	}
	if atomicLevel.Level() != zapcore.ErrorLevel {
		t.Errorf("expected error level, got %v", atomicLevel.Level())
	}
}

func TestInitWithConfigFile(t *testing.T) {
	resetLogger()

	logPath := filepath.Join(t.TempDir(), "nested", "tool.log")
	sugar, cleanup, err := InitWithConfig(Config{Level: "info", FilePath: logPath})
	if err != nil {
		t.Fatalf("InitWithConfig returned error: %v", err)
	}

	sugar.Info("file logging test")
	cleanup()

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("failed to read log file: %v", err)
	}
	if !strings.Contains(string(data), "file logging test") {
		t.Errorf("log file does not contain expected message: %s", data)
	}
}

func TestInitWithConfigReturnsError(t *testing.T) {
	resetLogger()

	blocker := filepath.Join(t.TempDir(), "blocker")
	if err := os.WriteFile(blocker, []byte("x"), 0o600); err != nil {
		t.Fatalf("failed to create blocking file: %v", err)
	}

	if _, _, err := InitWithConfig(Config{Level: "info", FilePath: filepath.Join(blocker, "app.log")}); err == nil {
		t.Fatal("expected an error when the log directory cannot be created")
	}
}

func TestSetLogLevelBeforeInit(t *testing.T) {
	resetLogger()

	SetLogLevel("debug")
	if atomicLevel != (zap.AtomicLevel{}) {
		t.Error("SetLogLevel before initialization should not modify atomicLevel")
	}
}

func TestReplaceConsoleWriter(t *testing.T) {
	resetLogger()
	InitWithLevel("info")

	var buf bytes.Buffer
	old := ReplaceConsoleWriter(&buf)
	defer ReplaceConsoleWriter(old)

	Logger().Info("captured line")
	if !strings.Contains(buf.String(), "captured line") {
		t.Errorf("expected console output to be redirected, got %q", buf.String())
	}
}

func TestConcurrentAccess(t *testing.T) {
	resetLogger()

	var wg sync.WaitGroup
	levels := []string{"debug", "info", "warn", "error"}
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 50; j++ {
				if With("iteration", j) == nil {
					t.Error("With returned nil")
					return
				}
				SetLogLevel(levels[j%len(levels)])
			}
		}()
	}
	wg.Wait()
}
