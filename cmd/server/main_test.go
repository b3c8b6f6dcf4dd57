package main

import (
	"bytes"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestParseLogLevel(t *testing.T) {
	tests := map[string]slog.Level{
		"debug":   slog.LevelDebug,
		" DEBUG ": slog.LevelDebug,
		"warn":    slog.LevelWarn,
		"warning": slog.LevelWarn,
		"error":   slog.LevelError,
		"info":    slog.LevelInfo,
		"":        slog.LevelInfo,
		"verbose": slog.LevelInfo,
	}
	for raw, want := range tests {
		if got := parseLogLevel(raw); got != want {
			t.Errorf("parseLogLevel(%q) = %v, want %v", raw, got, want)
		}
	}
}

func TestPrepareDataDirWipes(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "downloads")
	stale := filepath.Join(dir, "c9e15763f722f23e98a29decdfae341b98d53056", "movie.mkv")
	if err := os.MkdirAll(filepath.Dir(stale), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(stale, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := prepareDataDir(dir, true); err != nil {
		t.Fatalf("prepareDataDir: %v", err)
	}
	entries, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read dir: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty dir, found %d entries", len(entries))
	}
}

func TestPrepareDataDirKeeps(t *testing.T) {
	dir := t.TempDir()
	keep := filepath.Join(dir, "keep.bin")
	if err := os.WriteFile(keep, []byte("x"), 0o644); err != nil {
		t.Fatal(err)
	}

	if err := prepareDataDir(dir, false); err != nil {
		t.Fatalf("prepareDataDir: %v", err)
	}
	if _, err := os.Stat(keep); err != nil {
		t.Errorf("file should survive without wipe: %v", err)
	}
}

func TestPrepareDataDirRejectsEmpty(t *testing.T) {
	if err := prepareDataDir("  ", true); err == nil {
		t.Fatal("expected error for empty dir")
	}
}

func TestResolveCommand(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Location", "magnet:?xt=urn:btih:C9E15763F722F23E98A29DECDFAE341B98D53056&dn=Show")
		w.WriteHeader(http.StatusMovedPermanently)
	}))
	defer srv.Close()

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetArgs([]string{"--env-file", filepath.Join(t.TempDir(), "none.env"), "resolve", srv.URL + "/dl/1"})

	if err := cmd.Execute(); err != nil {
		t.Fatalf("resolve: %v", err)
	}
	got := strings.TrimSpace(out.String())
	if got != "c9e15763f722f23e98a29decdfae341b98d53056\tmagnet" {
		t.Errorf("output = %q", got)
	}
}

func TestResolveCommandRequiresURL(t *testing.T) {
	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"resolve"})
	if err := cmd.Execute(); err == nil {
		t.Fatal("expected argument error")
	}
}
