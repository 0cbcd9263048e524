package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/rs/zerolog"
)

func TestInit(t *testing.T) {
	tests := []struct {
		name      string
		level     string
		wantLevel zerolog.Level
		wantErr   bool
	}{
		{"default level", "", zerolog.InfoLevel, false},
		{"debug level", "debug", zerolog.DebugLevel, false},
		{"info level", "info", zerolog.InfoLevel, false},
		{"warn level", "warn", zerolog.WarnLevel, false},
		{"error level", "error", zerolog.ErrorLevel, false},
		{"case insensitive", "WARN", zerolog.WarnLevel, false},
		{"unknown level rejected", "loud", zerolog.NoLevel, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cleanup, err := Init("", tt.level)
			if tt.wantErr {
				if err == nil {
					cleanup()
					t.Fatal("expected error for unrecognized level")
				}
				return
			}
			if err != nil {
				t.Fatalf("Init() failed: %v", err)
			}
			defer cleanup()

			if zerolog.GlobalLevel() != tt.wantLevel {
				t.Errorf("expected level %v, got %v", tt.wantLevel, zerolog.GlobalLevel())
			}
		})
	}
}

func TestInitWithFile(t *testing.T) {
	tmpDir := t.TempDir()
	logPath := filepath.Join(tmpDir, "podhawk.log")

	cleanup, err := Init(logPath, "info")
	if err != nil {
		t.Fatalf("Init() with file failed: %v", err)
	}
	defer cleanup()

	Get().Info().Msg("test message")

	data, err := os.ReadFile(logPath)
	if err != nil {
		t.Fatalf("log file was not created at %s: %v", logPath, err)
	}
	if len(data) == 0 {
		t.Error("log file is empty after writing a message")
	}
}
