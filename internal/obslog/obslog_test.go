package obslog

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/park285/cheese-arena/internal/config"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

func TestInitWritesJSONFile(t *testing.T) {
	defer Replace(zap.NewNop())()

	path := filepath.Join(t.TempDir(), "nested", "arena.log")
	logger, err := Init(config.LogConfig{Level: "debug", Format: "json", ToFile: true, File: path})
	if err != nil {
		t.Fatalf("Init: %v", err)
	}
	L().Info("session_create", zap.String("session_id", "s1"))
	_ = logger.Sync()

	raw, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read log: %v", err)
	}
	if !strings.Contains(string(raw), `"session_id":"s1"`) {
		t.Fatalf("log line missing field: %s", raw)
	}
}

func TestParseLevel(t *testing.T) {
	if parseLevel("WARNING") != zapcore.WarnLevel {
		t.Fatalf("warning should map to warn")
	}
	if parseLevel("bogus") != zapcore.InfoLevel {
		t.Fatalf("unknown level should default to info")
	}
}
