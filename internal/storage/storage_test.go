package storage

import (
	"context"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"github.com/tbourn/go-genart-backend/internal/config"
)

func writeTemp(t *testing.T, data string) string {
	t.Helper()
	p := filepath.Join(t.TempDir(), "img.png")
	if err := os.WriteFile(p, []byte(data), 0o644); err != nil {
		t.Fatalf("write temp: %v", err)
	}
	return p
}

func TestObjectKey_Shape(t *testing.T) {
	now := time.Date(2025, 3, 9, 12, 0, 0, 0, time.UTC)
	key := objectKey("/generated/", ".PNG", now)
	re := regexp.MustCompile(`^generated/2025/03/09/[0-9A-Za-z]{27}\.png$`)
	if !re.MatchString(key) {
		t.Fatalf("unexpected key %q", key)
	}
	if k2 := objectKey("generated", "", now); !strings.HasSuffix(k2, ".png") {
		t.Fatalf("default ext not applied: %q", k2)
	}
	if objectKey("x", "png", now) == objectKey("x", "png", now) {
		t.Fatalf("keys must be unique")
	}
}

func TestSanitizeKey(t *testing.T) {
	good := map[string]string{
		"a/b.png":     "a/b.png",
		"/a//b.png":   "a/b.png",
		"./a/./b.png": "a/b.png",
		`a\b\c.png`:   "a/b/c.png",
		"a/../b.png":  "b.png",
	}
	for in, want := range good {
		got, err := sanitizeKey(in)
		if err != nil || got != want {
			t.Fatalf("sanitizeKey(%q) = %q, %v; want %q", in, got, err, want)
		}
	}
	for _, bad := range []string{"", "  ", "../x", "..", "/"} {
		if _, err := sanitizeKey(bad); err == nil {
			t.Fatalf("sanitizeKey(%q) should fail", bad)
		}
	}
}

func TestFileStore_Upload(t *testing.T) {
	root := t.TempDir()
	fs, err := NewFileStore(root, "")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	src := writeTemp(t, "PNGBYTES")

	url, err := fs.Upload(context.Background(), Object{Folder: "generated", Path: src, Ext: "png", ContentType: "image/png"})
	if err != nil {
		t.Fatalf("Upload: %v", err)
	}
	if !strings.HasPrefix(url, DefaultAssetsRoute+"/generated/") {
		t.Fatalf("unexpected url %q", url)
	}

	rel := strings.TrimPrefix(url, DefaultAssetsRoute+"/")
	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(rel)))
	if err != nil {
		t.Fatalf("read stored file: %v", err)
	}
	if string(data) != "PNGBYTES" {
		t.Fatalf("stored content = %q", data)
	}
}

func TestFileStore_PublicBaseAndErrors(t *testing.T) {
	fs, err := NewFileStore(t.TempDir(), "https://cdn.example.com/")
	if err != nil {
		t.Fatalf("NewFileStore: %v", err)
	}
	url, err := fs.Upload(context.Background(), Object{Folder: "f", Path: writeTemp(t, "x"), Ext: "jpg"})
	if err != nil || !strings.HasPrefix(url, "https://cdn.example.com/f/") || !strings.HasSuffix(url, ".jpg") {
		t.Fatalf("url=%q err=%v", url, err)
	}

	if _, err := fs.Upload(context.Background(), Object{}); err != ErrInvalidObject {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
	if _, err := fs.Upload(context.Background(), Object{Path: filepath.Join(t.TempDir(), "missing")}); err == nil {
		t.Fatalf("expected error for missing source")
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := fs.Upload(ctx, Object{Path: writeTemp(t, "x")}); err == nil {
		t.Fatalf("expected context error")
	}

	if _, err := NewFileStore("  ", ""); err == nil {
		t.Fatalf("expected error for empty base path")
	}
}

func TestObjectStore_ConstructAndURLs(t *testing.T) {
	s, err := NewObjectStore(config.StorageConfig{
		Endpoint:  "https://minio.local:9000",
		AccessKey: "ak",
		SecretKey: "sk",
		Bucket:    "genart",
		Region:    "us-east-1",
	})
	if err != nil {
		t.Fatalf("NewObjectStore: %v", err)
	}
	if !s.secure || s.host != "minio.local:9000" {
		t.Fatalf("endpoint parsing: secure=%v host=%q", s.secure, s.host)
	}
	if got := s.publicURL("generated/a.png"); got != "https://minio.local:9000/genart/generated/a.png" {
		t.Fatalf("publicURL = %q", got)
	}

	s.cfg.PublicBaseURL = "https://cdn.example.com/"
	if got := s.publicURL("generated/a.png"); got != "https://cdn.example.com/generated/a.png" {
		t.Fatalf("publicURL with CDN = %q", got)
	}

	if _, err := s.Upload(context.Background(), Object{}); err != ErrInvalidObject {
		t.Fatalf("expected ErrInvalidObject, got %v", err)
	}
}

func TestNew_SelectsDriver(t *testing.T) {
	st, err := New(config.StorageConfig{Driver: "filesystem", LocalPath: t.TempDir()})
	if err != nil {
		t.Fatalf("filesystem: %v", err)
	}
	if _, ok := st.(*FileStore); !ok {
		t.Fatalf("expected *FileStore, got %T", st)
	}

	st, err = New(config.StorageConfig{Driver: "minio", Endpoint: "localhost:9000", Bucket: "b"})
	if err != nil {
		t.Fatalf("minio: %v", err)
	}
	if _, ok := st.(*ObjectStore); !ok {
		t.Fatalf("expected *ObjectStore, got %T", st)
	}

	if _, err := New(config.StorageConfig{Driver: "ftp"}); err == nil {
		t.Fatalf("expected error for unknown driver")
	}
}
