package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// localeMapping maps site locales to Contentful locale codes.
var localeMapping = map[string]string{
	"en": "en-US",
	"zh": "zh-CN",
}

var (
	defaultLocales      = []string{"en", "zh"}
	defaultContentTypes = []string{"blog", "case"}
)

// contentTypeDirs holds the output directory of content types whose
// directory name differs from their id.
var contentTypeDirs = map[string]string{
	"case": "cases",
}

func contentTypeDir(contentType string) string {
	if dir, ok := contentTypeDirs[contentType]; ok {
		return dir
	}
	return contentType
}

// cmsConfig is the Contentful connection, read from the environment.
type cmsConfig struct {
	SpaceID     string
	AccessToken string
	Environment string
	Host        string
}

// exportConfig is built once at startup and read-only afterwards.
type exportConfig struct {
	CMS          cmsConfig
	Locales      []string
	ContentTypes []string

	ContentDir    string // content/{locale}/{type dir}/{slug}.md
	PublicDir     string // robots.txt and sitemap.xml
	ImageDir      string // downloaded assets
	ImageSitePath string // URL prefix ImageDir is served under

	Format   frontMatterFormat
	Optimize optimizeOpts
	Timeout  time.Duration
	Proxy    string
}

// configError is a startup configuration problem. The run aborts before any
// request is made.
type configError struct {
	Field string
	Err   error
}

func (e *configError) Error() string {
	return fmt.Sprintf("config %s: %v", e.Field, e.Err)
}

func (e *configError) Unwrap() error { return e.Err }

func getEnv(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}

// loadDotEnv loads KEY=value pairs from path into the environment without
// overriding variables that are already set. A missing file is not an error.
func loadDotEnv(path string) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return &configError{Field: "env file", Err: err}
	}
	return nil
}

// loadCMSConfig reads the Contentful settings. Unset variables fall back to
// placeholders, which the API rejects with an authentication error.
func loadCMSConfig() cmsConfig {
	return cmsConfig{
		SpaceID:     getEnv("CONTENTFUL_SPACE_ID", "your_space_id"),
		AccessToken: getEnv("CONTENTFUL_ACCESS_TOKEN", "your_access_token"),
		Environment: getEnv("CONTENTFUL_ENVIRONMENT", "master"),
		Host:        getEnv("CONTENTFUL_HOST", "cdn.contentful.com"),
	}
}

// splitList parses a comma-separated flag value, dropping blanks.
func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func imageDirs(publicDir string) (dir, sitePath string) {
	return filepath.Join(publicDir, "images", assetNamespace), "/images/" + assetNamespace
}

// validate checks everything that would otherwise fail mid-run: every
// locale needs a Contentful mapping and every content type a processor.
func (c exportConfig) validate(processors map[string]entryProcessor) error {
	if len(c.Locales) == 0 {
		return &configError{Field: "locales", Err: errors.New("no locales configured")}
	}
	for _, l := range c.Locales {
		if _, ok := localeMapping[l]; !ok {
			return &configError{Field: "locales", Err: fmt.Errorf("locale %q has no Contentful mapping", l)}
		}
	}
	if len(c.ContentTypes) == 0 {
		return &configError{Field: "types", Err: errors.New("no content types configured")}
	}
	for _, t := range c.ContentTypes {
		if _, ok := processors[t]; !ok {
			return &configError{Field: "types", Err: fmt.Errorf("no processor for content type %q", t)}
		}
	}
	if c.ContentDir == "" {
		return &configError{Field: "content", Err: errors.New("content directory is empty")}
	}
	return nil
}
