// contentful2md: Export Contentful entries to Markdown files with front matter
// for a static site.
//
// Usage:
//
//	contentful2md [options]
//
// Credentials come from the environment or a .env file (CONTENTFUL_SPACE_ID,
// CONTENTFUL_ACCESS_TOKEN, CONTENTFUL_ENVIRONMENT, CONTENTFUL_HOST). Every
// configured locale and content type is written to
// content/{locale}/{type dir}/{slug}.md; assets referenced by entries are
// downloaded once into public/images/contentful.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"
)

// logOut is the writer for informational/progress output.
// In silent mode it is set to io.Discard so only errors reach the user.
var logOut io.Writer = os.Stderr

// errOut receives per-entry and per-batch error lines. It is never silenced.
var errOut io.Writer = os.Stderr

// cliConfig holds parsed command-line options.
type cliConfig struct {
	envFile      string
	contentDir   string
	publicDir    string
	locales      string
	contentTypes string
	frontMatter  string
	opts         optimizeOpts
	timeout      time.Duration
	proxy        string
	seo          bool
	noExport     bool
	siteURL      string
}

// buildExportConfig resolves the CLI options and the environment into the
// run configuration.
func buildExportConfig(cfg cliConfig) (exportConfig, error) {
	if err := loadDotEnv(cfg.envFile); err != nil {
		return exportConfig{}, err
	}
	format, err := parseFrontMatterFormat(cfg.frontMatter)
	if err != nil {
		return exportConfig{}, &configError{Field: "frontmatter", Err: err}
	}
	imageDir, imageSitePath := imageDirs(cfg.publicDir)
	return exportConfig{
		CMS:           loadCMSConfig(),
		Locales:       splitList(cfg.locales),
		ContentTypes:  splitList(cfg.contentTypes),
		ContentDir:    cfg.contentDir,
		PublicDir:     cfg.publicDir,
		ImageDir:      imageDir,
		ImageSitePath: imageSitePath,
		Format:        format,
		Optimize:      cfg.opts,
		Timeout:       cfg.timeout,
		Proxy:         cfg.proxy,
	}, nil
}

// run executes the main application logic, returning any error.
func run(ctx context.Context, cfg cliConfig) error {
	if cfg.noExport && !cfg.seo {
		return &configError{Field: "no-export", Err: errors.New("-no-export requires -seo")}
	}
	ec, err := buildExportConfig(cfg)
	if err != nil {
		return err
	}

	var exportErr error
	if !cfg.noExport {
		assetClient := newAssetClient(ec.Proxy, ec.Timeout)
		defer assetClient.CloseIdleConnections()
		assets := newAssetFetcher(assetClient, ec.ImageDir, ec.ImageSitePath, ec.Optimize)
		processors := newProcessors(processorEnv{assets: assets, format: ec.Format})
		if err := ec.validate(processors); err != nil {
			return err
		}

		fmt.Fprintln(logOut, "Starting Contentful content export...")
		x := &exporter{
			cfg:        ec,
			cms:        newCMSClient(newAPIClient(ec.Proxy, ec.Timeout), ec.CMS),
			processors: processors,
		}
		sum, err := x.run(ctx)
		exportErr = err

		fmt.Fprintf(logOut, "\nExported %d of %d entries", sum.Exported, sum.Entries)
		if sum.Failed > 0 {
			fmt.Fprintf(logOut, " (%d failed)", sum.Failed)
		}
		fmt.Fprintf(logOut, "; assets: %d downloaded (%s), %d cached",
			assets.stats.downloaded, humanSize(assets.stats.bytes), assets.stats.cached)
		if assets.stats.optimized > 0 {
			fmt.Fprintf(logOut, ", %d resized", assets.stats.optimized)
		}
		fmt.Fprintln(logOut)
		if exportErr == nil {
			fmt.Fprintln(logOut, "✓ Content export completed")
		}
	}

	if cfg.seo && ctx.Err() == nil {
		fmt.Fprintln(logOut, "\nGenerating SEO files...")
		siteURL := cfg.siteURL
		if siteURL == "" {
			siteURL = os.Getenv("SITE_URL")
		}
		if err := writeSEOFiles(ec, siteURL); err != nil {
			return errors.Join(exportErr, fmt.Errorf("generating SEO files: %w", err))
		}
	}
	return exportErr
}

func main() {
	envFile := flag.String("env", ".env", "Environment file with Contentful credentials (missing file is ignored)")
	contentDir := flag.String("content", "content", "Output directory for Markdown files")
	publicDir := flag.String("public", "public", "Static files directory (assets, robots.txt, sitemap.xml)")
	locales := flag.String("locales", strings.Join(defaultLocales, ","), "Comma-separated site locales to export")
	contentTypes := flag.String("types", strings.Join(defaultContentTypes, ","), "Comma-separated content types to export")
	frontMatter := flag.String("frontmatter", string(formatYAML), "Front matter format: yaml or toml")
	maxWidth := flag.Int("max-width", 0, "Downscale JPEG/PNG assets wider than this many pixels (0 = keep originals)")
	quality := flag.Int("quality", 85, "JPEG quality 1-100 for downscaled assets")
	timeout := flag.Duration("timeout", 30*time.Second, "HTTP timeout per request")
	proxy := flag.String("proxy", "", "HTTP proxy URL for CMS and asset requests")
	maxResponseMB := flag.Int64("max-response-size", 128, "Maximum size of a single HTTP response in MB (0 = unlimited)")
	seo := flag.Bool("seo", false, "Also generate public/robots.txt and public/sitemap.xml")
	noExport := flag.Bool("no-export", false, "Skip the export (with -seo: regenerate SEO files only)")
	siteURL := flag.String("site-url", "", "Site origin for sitemap URLs (default: $SITE_URL)")
	silent := flag.Bool("silent", false, "Suppress all output except errors (for pipeline use)")
	verbose := flag.Bool("v", false, "Log every asset download and cache hit")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: contentful2md [options]\n\n")
		fmt.Fprintf(os.Stderr, "Export Contentful entries to Markdown files with front matter.\n\n")
		flag.PrintDefaults()
	}
	flag.Parse()

	if *silent {
		logOut = io.Discard
	}
	if *verbose && !*silent {
		verboseOut = os.Stderr
	}
	maxResponseBytes = *maxResponseMB * 1024 * 1024

	cfg := cliConfig{
		envFile:      *envFile,
		contentDir:   *contentDir,
		publicDir:    *publicDir,
		locales:      *locales,
		contentTypes: *contentTypes,
		frontMatter:  *frontMatter,
		opts: optimizeOpts{
			maxWidth: *maxWidth,
			quality:  *quality,
		},
		timeout:  *timeout,
		proxy:    *proxy,
		seo:      *seo,
		noExport: *noExport,
		siteURL:  *siteURL,
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}
