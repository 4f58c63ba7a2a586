package main

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
)

// assetNamespace is the subdirectory of public/images (and of the /images
// site path) that holds CMS assets.
const assetNamespace = "contentful"

// assetDownloader turns a remote asset URL into a site-relative local path.
type assetDownloader interface {
	fetch(ctx context.Context, rawURL string) (string, error)
}

type assetStats struct {
	downloaded int
	cached     int
	bytes      int64
	optimized  int
}

// assetFetcher downloads CMS assets into dir, at most once per filename.
//
// Files are keyed by the final path segment of the URL alone: two different
// URLs ending in the same filename share one local file, and whichever was
// downloaded first wins for the rest of the run and for later runs. Fetching
// a second URL for a name already stored this run logs a warning.
type assetFetcher struct {
	client   *http.Client
	dir      string // local directory, e.g. public/images/contentful
	sitePath string // URL prefix the site serves dir under, e.g. /images/contentful
	opts     optimizeOpts
	stats    assetStats
	origins  map[string]string // filename -> URL that stored it this run
}

func newAssetFetcher(client *http.Client, dir, sitePath string, opts optimizeOpts) *assetFetcher {
	return &assetFetcher{
		client:   client,
		dir:      dir,
		sitePath: strings.TrimSuffix(sitePath, "/"),
		opts:     opts,
		origins:  map[string]string{},
	}
}

// normalizeAssetURL makes protocol-relative CMS URLs ("//images.ctfassets.net/...")
// fetchable by prefixing https:. Absolute URLs are returned unchanged.
func normalizeAssetURL(raw string) string {
	raw = strings.TrimSpace(raw)
	if strings.HasPrefix(raw, "//") {
		return "https:" + raw
	}
	return raw
}

// assetFilename returns the decoded final path segment of rawURL.
func assetFilename(rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("invalid asset URL %q: %w", rawURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return "", fmt.Errorf("asset URL %q is not http(s)", rawURL)
	}
	name := u.Path[strings.LastIndex(u.Path, "/")+1:]
	if name == "" || name == "." || name == ".." {
		return "", fmt.Errorf("asset URL %q has no filename", rawURL)
	}
	return name, nil
}

// fetch downloads rawURL into f.dir unless a file with the same name is
// already there, and returns the site-relative path of the local copy.
// An empty URL yields an empty path and no I/O.
func (f *assetFetcher) fetch(ctx context.Context, rawURL string) (string, error) {
	if rawURL == "" {
		return "", nil
	}
	name, err := assetFilename(rawURL)
	if err != nil {
		return "", err
	}
	sitePath := f.sitePath + "/" + url.PathEscape(name)
	if first, ok := f.origins[name]; ok && first != rawURL {
		fmt.Fprintf(logOut, "Warning: %s and %s share the filename %s; using the first\n", shortURL(first), shortURL(rawURL), name)
	}

	if err := os.MkdirAll(f.dir, 0o755); err != nil {
		return "", fmt.Errorf("creating asset dir: %w", err)
	}
	exists, err := fileExists(filepath.Join(f.dir, name))
	if err != nil {
		return "", err
	}
	if exists {
		f.noteOrigin(name, rawURL)
		f.stats.cached++
		vprintf("  cached %s\n", name)
		return sitePath, nil
	}

	data, err := getBytes(ctx, f.client, rawURL, nil)
	if err != nil {
		return "", fmt.Errorf("download asset: %w", err)
	}
	original := len(data)
	if optimized, ok := optimizeAsset(data, f.opts); ok {
		data = optimized
		f.stats.optimized++
		vprintf("  optimized %s: %s → %s\n", name, humanSize(int64(original)), humanSize(int64(len(data))))
	}
	if err := writeFileAtomic(f.dir, name, data); err != nil {
		return "", fmt.Errorf("writing asset %s: %w", name, err)
	}

	f.noteOrigin(name, rawURL)
	f.stats.downloaded++
	f.stats.bytes += int64(len(data))
	vprintf("  downloaded %s (%s)\n", shortURL(rawURL), humanSize(int64(len(data))))
	return sitePath, nil
}

// noteOrigin records rawURL as the source of name unless an earlier URL
// already provided it.
func (f *assetFetcher) noteOrigin(name, rawURL string) {
	if _, ok := f.origins[name]; !ok {
		f.origins[name] = rawURL
	}
}
