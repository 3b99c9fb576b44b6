package app

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/hitoshi/yhal/internal/cache"
	"github.com/hitoshi/yhal/internal/config"
	"github.com/hitoshi/yhal/internal/mail"
	"github.com/hitoshi/yhal/internal/storage"
)

func TestClosers_CloseInReverseOrder(t *testing.T) {
	var order []string
	var cl closers
	cl.add(func() error {
		order = append(order, "db")
		return nil
	})
	cl.add(func() error {
		order = append(order, "redis")
		return errors.New("already closed")
	})

	err := cl.Close()

	if len(order) != 2 || order[0] != "redis" || order[1] != "db" {
		t.Errorf("close order = %v, want [redis db]", order)
	}
	if err == nil || err.Error() != "already closed" {
		t.Errorf("Close() error = %v, want the redis error", err)
	}
}

func TestDatabaseOptions(t *testing.T) {
	cfg := &config.Config{
		DBHost:            "db",
		DBPort:            "3306",
		DBUser:            "yhal",
		DBPassword:        "secret",
		DBName:            "yhal",
		DBMaxOpenConns:    20,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: time.Minute,
	}

	opts := databaseOptions(cfg)

	if opts.Host != "db" || opts.Port != "3306" || opts.User != "yhal" || opts.Password != "secret" || opts.Name != "yhal" {
		t.Errorf("connection options = %+v", opts)
	}
	if opts.MaxOpenConns != 20 || opts.MaxIdleConns != 5 || opts.ConnMaxLifetime != time.Minute {
		t.Errorf("pool options = %+v", opts)
	}
}

func TestNeedsRedis(t *testing.T) {
	tests := []struct {
		cache, limit string
		want         bool
	}{
		{cache: "memory", limit: "memory", want: false},
		{cache: "redis", limit: "memory", want: true},
		{cache: "memory", limit: "redis", want: true},
	}

	for _, tt := range tests {
		cfg := &config.Config{CacheBackend: tt.cache, RateLimitBackend: tt.limit}
		if got := needsRedis(cfg); got != tt.want {
			t.Errorf("needsRedis(cache=%s, limit=%s) = %v, want %v", tt.cache, tt.limit, got, tt.want)
		}
	}
}

func TestNewCacheStore_Memory(t *testing.T) {
	store, err := newCacheStore(&config.Config{CacheBackend: "memory", CacheMemorySize: 16}, nil)
	if err != nil {
		t.Fatalf("newCacheStore returned error: %v", err)
	}
	if _, ok := store.(*cache.MemoryStore); !ok {
		t.Errorf("store = %T, want *cache.MemoryStore", store)
	}
}

func TestNewImageStore_Local(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "uploads")

	store, err := newImageStore(context.Background(), &config.Config{StorageBackend: "local", StorageLocalDir: dir})
	if err != nil {
		t.Fatalf("newImageStore returned error: %v", err)
	}
	if _, ok := store.(*storage.LocalStore); !ok {
		t.Errorf("store = %T, want *storage.LocalStore", store)
	}
}

func TestNewMailSender(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	logSender, err := newMailSender(context.Background(), &config.Config{MailBackend: "log"}, logger)
	if err != nil {
		t.Fatalf("newMailSender(log) returned error: %v", err)
	}
	if _, ok := logSender.(*mail.LogSender); !ok {
		t.Errorf("sender = %T, want *mail.LogSender", logSender)
	}

	smtpSender, err := newMailSender(context.Background(), &config.Config{MailBackend: "smtp", SMTPHost: "smtp.example.com", SMTPPort: 587}, logger)
	if err != nil {
		t.Fatalf("newMailSender(smtp) returned error: %v", err)
	}
	if _, ok := smtpSender.(*mail.SMTPSender); !ok {
		t.Errorf("sender = %T, want *mail.SMTPSender", smtpSender)
	}
}
