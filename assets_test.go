package main

import (
	"context"
	"image/color"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
)

// countingServer serves body for every request and counts them.
func countingServer(t *testing.T, body []byte) (*httptest.Server, *int32) {
	t.Helper()
	var hits int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&hits, 1)
		w.Write(body)
	}))
	t.Cleanup(srv.Close)
	return srv, &hits
}

func TestAssetFetcher_DownloadsOnce(t *testing.T) {
	srv, hits := countingServer(t, []byte("PNGDATA"))
	dir := t.TempDir()
	f := newAssetFetcher(srv.Client(), dir, "/images/contentful", optimizeOpts{})

	url := srv.URL + "/space/asset/hash/hero.png"
	for i := 0; i < 3; i++ {
		got, err := f.fetch(context.Background(), url)
		if err != nil {
			t.Fatal(err)
		}
		if got != "/images/contentful/hero.png" {
			t.Errorf("fetch = %q, want /images/contentful/hero.png", got)
		}
	}

	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
	data, err := os.ReadFile(filepath.Join(dir, "hero.png"))
	if err != nil {
		t.Fatal(err)
	}
	if string(data) != "PNGDATA" {
		t.Errorf("file content = %q", data)
	}
	if f.stats.downloaded != 1 || f.stats.cached != 2 {
		t.Errorf("stats = %+v, want 1 downloaded and 2 cached", f.stats)
	}
}

func TestAssetFetcher_ExistingFileFromEarlierRun(t *testing.T) {
	srv, hits := countingServer(t, []byte("new"))
	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "logo.svg"), []byte("old"), 0o644); err != nil {
		t.Fatal(err)
	}

	f := newAssetFetcher(srv.Client(), dir, "/images/contentful", optimizeOpts{})
	got, err := f.fetch(context.Background(), srv.URL+"/logo.svg")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/images/contentful/logo.svg" {
		t.Errorf("fetch = %q", got)
	}
	if n := atomic.LoadInt32(hits); n != 0 {
		t.Errorf("server hit %d times, want 0", n)
	}
	data, _ := os.ReadFile(filepath.Join(dir, "logo.svg"))
	if string(data) != "old" {
		t.Error("existing file should not be overwritten")
	}
}

func TestAssetFetcher_SameFilenameDifferentURL(t *testing.T) {
	logBuf, _ := captureOutput(t)
	srv, hits := countingServer(t, []byte("first"))
	f := newAssetFetcher(srv.Client(), t.TempDir(), "/images/contentful", optimizeOpts{})

	a, err := f.fetch(context.Background(), srv.URL+"/one/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	b, err := f.fetch(context.Background(), srv.URL+"/two/photo.jpg")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Errorf("expected shared local path, got %q and %q", a, b)
	}
	if n := atomic.LoadInt32(hits); n != 1 {
		t.Errorf("server hit %d times, want 1", n)
	}
	if !strings.Contains(logBuf.String(), "share the filename photo.jpg") {
		t.Errorf("expected collision warning, got:\n%s", logBuf.String())
	}
}

func TestAssetFetcher_FailedFirstURLIsNotTheOrigin(t *testing.T) {
	logBuf, _ := captureOutput(t)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasPrefix(r.URL.Path, "/broken/") {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte("ok:" + r.URL.Path))
	}))
	defer srv.Close()
	dir := t.TempDir()
	f := newAssetFetcher(srv.Client(), dir, "/images/contentful", optimizeOpts{})

	if _, err := f.fetch(context.Background(), srv.URL+"/broken/photo.jpg"); err == nil {
		t.Fatal("expected error for 404")
	}
	if _, err := f.fetch(context.Background(), srv.URL+"/good/photo.jpg"); err != nil {
		t.Fatal(err)
	}
	if strings.Contains(logBuf.String(), "share the filename") {
		t.Errorf("a failed download must not count as the first URL:\n%s", logBuf.String())
	}
	data, _ := os.ReadFile(filepath.Join(dir, "photo.jpg"))
	if string(data) != "ok:/good/photo.jpg" {
		t.Errorf("photo.jpg = %q", data)
	}

	if _, err := f.fetch(context.Background(), srv.URL+"/other/photo.jpg"); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(logBuf.String(), "/good/photo.jpg and ") {
		t.Errorf("warning should name the stored URL first, got:\n%s", logBuf.String())
	}
}

func TestAssetFetcher_EmptyURL(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "images")
	f := newAssetFetcher(http.DefaultClient, dir, "/images/contentful", optimizeOpts{})
	got, err := f.fetch(context.Background(), "")
	if err != nil {
		t.Fatal(err)
	}
	if got != "" {
		t.Errorf("fetch(\"\") = %q, want empty", got)
	}
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Error("empty URL should not touch the filesystem")
	}
}

func TestAssetFetcher_NotFound(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	defer srv.Close()

	dir := t.TempDir()
	f := newAssetFetcher(srv.Client(), dir, "/images/contentful", optimizeOpts{})
	url := srv.URL + "/gone.png"
	_, err := f.fetch(context.Background(), url)
	if err == nil {
		t.Fatal("expected error for 404")
	}
	if !strings.Contains(err.Error(), url) {
		t.Errorf("error should name the URL, got: %v", err)
	}
	if ok, _ := fileExists(filepath.Join(dir, "gone.png")); ok {
		t.Error("failed download must not leave a file")
	}
}

func TestAssetFetcher_EncodedFilename(t *testing.T) {
	srv, _ := countingServer(t, []byte("x"))
	dir := t.TempDir()
	f := newAssetFetcher(srv.Client(), dir, "/images/contentful/", optimizeOpts{})

	got, err := f.fetch(context.Background(), srv.URL+"/a/my%20photo.png")
	if err != nil {
		t.Fatal(err)
	}
	if got != "/images/contentful/my%20photo.png" {
		t.Errorf("fetch = %q, want escaped site path", got)
	}
	if ok, _ := fileExists(filepath.Join(dir, "my photo.png")); !ok {
		t.Error("expected decoded filename on disk")
	}
}

func TestAssetFetcher_Optimizes(t *testing.T) {
	srv, _ := countingServer(t, makePNG(1000, 500, color.NRGBA{10, 20, 30, 255}))
	dir := t.TempDir()
	f := newAssetFetcher(srv.Client(), dir, "/images/contentful", optimizeOpts{maxWidth: 500})

	if _, err := f.fetch(context.Background(), srv.URL+"/big.png"); err != nil {
		t.Fatal(err)
	}
	data, err := os.ReadFile(filepath.Join(dir, "big.png"))
	if err != nil {
		t.Fatal(err)
	}
	w, h, _ := imageDimensions(t, data)
	if w != 500 || h != 250 {
		t.Errorf("stored size = %dx%d, want 500x250", w, h)
	}
	if f.stats.optimized != 1 {
		t.Errorf("optimized = %d, want 1", f.stats.optimized)
	}
}

func TestNormalizeAssetURL(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"//images.ctfassets.net/s/a/h/x.png", "https://images.ctfassets.net/s/a/h/x.png"},
		{"https://images.ctfassets.net/x.png", "https://images.ctfassets.net/x.png"},
		{"http://example.com/x.png", "http://example.com/x.png"},
		{"  //cdn.test/y.jpg ", "https://cdn.test/y.jpg"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := normalizeAssetURL(tt.in); got != tt.want {
			t.Errorf("normalizeAssetURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestAssetFilename(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{"https://images.ctfassets.net/s/a/h/photo.jpg", "photo.jpg", false},
		{"https://images.ctfassets.net/s/a/h/photo.jpg?w=800", "photo.jpg", false},
		{"https://cdn.test/a/caf%C3%A9.png", "café.png", false},
		{"https://cdn.test/dir/", "", true},
		{"https://cdn.test", "", true},
		{"ftp://cdn.test/x.png", "", true},
		{"//cdn.test/x.png", "", true},
	}
	for _, tt := range tests {
		got, err := assetFilename(tt.in)
		if (err != nil) != tt.wantErr {
			t.Errorf("assetFilename(%q) err = %v, wantErr %v", tt.in, err, tt.wantErr)
			continue
		}
		if got != tt.want {
			t.Errorf("assetFilename(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
