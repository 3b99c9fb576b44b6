package app

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/hitoshi/yhal/internal/logger"
)

// setTestEnv は必須の環境変数を設定する。
// DBには接続できないポートを指定し、外部サービスを使わない構成にする。
func setTestEnv(t *testing.T) {
	t.Helper()
	// .envが存在しない一時ディレクトリで実行する
	t.Chdir(t.TempDir())
	t.Setenv("DB_HOST", "127.0.0.1")
	t.Setenv("DB_PORT", "1")
	t.Setenv("DB_USER", "yhal")
	t.Setenv("DB_NAME", "yhal_test")
	t.Setenv("JWT_SECRET", "test-jwt-secret-32bytes-long!!!!")
	t.Setenv("FRONTEND_URL", "http://localhost:3000")
	t.Setenv("CACHE_BACKEND", "memory")
	t.Setenv("RATE_LIMIT_BACKEND", "memory")
	t.Setenv("LOG_LEVEL", "info")
}

func TestInit_WithValidConfig_Succeeds(t *testing.T) {
	setTestEnv(t)

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if cfg.DBName != "yhal_test" {
		t.Errorf("DBName = %q, want yhal_test", cfg.DBName)
	}

	// グローバルロガーがJSON出力になっていること
	slog.Default().Info("init test")
	var entry map[string]any
	if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
		t.Fatalf("expected JSON log output, got error: %v\nraw: %s", err, buf.String())
	}
	if entry["msg"] != "init test" {
		t.Errorf("msg = %q, want %q", entry["msg"], "init test")
	}
	if entry["service"] != "yhal" {
		t.Errorf("service = %v, want yhal", entry["service"])
	}
}

func TestInit_AppliesLogLevel(t *testing.T) {
	setTestEnv(t)
	t.Setenv("LOG_LEVEL", "warn")
	t.Cleanup(func() { logger.SetLevel("info") })

	var buf bytes.Buffer
	if _, err := Init(&buf); err != nil {
		t.Fatalf("expected no error, got %v", err)
	}

	slog.Default().Info("suppressed")
	if buf.Len() != 0 {
		t.Errorf("info log should be suppressed at warn level, got %s", buf.String())
	}
}

func TestInit_WithMissingConfig_ReturnsError(t *testing.T) {
	setTestEnv(t)
	t.Setenv("JWT_SECRET", "")

	var buf bytes.Buffer
	cfg, err := Init(&buf)
	if err == nil {
		t.Fatal("expected error for missing required env vars, got nil")
	}
	if cfg != nil {
		t.Error("expected nil config on error")
	}
}
