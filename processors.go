// Content-type processors: map one CMS entry to one exported Markdown file.
package main

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// rawEntry is an entry together with the assets and entries linked from the
// query that returned it.
type rawEntry struct {
	cmsEntry
	links *entryCollection
}

// entryProcessor writes one entry of its content type into outDir and
// returns the path of the written file.
type entryProcessor interface {
	process(ctx context.Context, e rawEntry, outDir string) (string, error)
}

// processorEnv is what every processor shares within a run.
type processorEnv struct {
	assets assetDownloader
	format frontMatterFormat
}

// newProcessors returns the processor for each supported content type id.
func newProcessors(env processorEnv) map[string]entryProcessor {
	return map[string]entryProcessor{
		"blog": &blogProcessor{env: env},
		"case": &caseProcessor{env: env},
	}
}

type blogFrontMatter struct {
	Title   string   `yaml:"title" toml:"title"`
	Date    string   `yaml:"date" toml:"date"`
	Excerpt string   `yaml:"excerpt" toml:"excerpt"`
	Author  string   `yaml:"author" toml:"author"`
	Tags    []string `yaml:"tags" toml:"tags"`
	Image   string   `yaml:"image" toml:"image"`
}

type caseFrontMatter struct {
	Slug        string   `yaml:"slug" toml:"slug"`
	Title       string   `yaml:"title" toml:"title"`
	Description string   `yaml:"description" toml:"description"`
	Image       string   `yaml:"image" toml:"image"`
	ExternalURL string   `yaml:"externalUrl" toml:"externalUrl"`
	Tags        []string `yaml:"tags" toml:"tags"`
}

// blogProcessor handles article-like entries. The body comes from the
// content field, either plain Markdown or a rich text document.
type blogProcessor struct {
	env processorEnv
}

func (p *blogProcessor) process(ctx context.Context, e rawEntry, outDir string) (string, error) {
	f := e.Fields
	slug, err := entrySlug(e)
	if err != nil {
		return "", err
	}
	title, err := f.stringField("title")
	if err != nil {
		return "", err
	}
	rawDate, err := f.stringField("date")
	if err != nil {
		return "", err
	}
	if rawDate == "" {
		rawDate = e.Sys.CreatedAt
	}
	date, err := formatDate(rawDate)
	if err != nil {
		return "", err
	}
	excerpt, err := f.stringField("excerpt")
	if err != nil {
		return "", err
	}
	author, err := f.stringField("author")
	if err != nil {
		return "", err
	}
	tags, err := f.stringsField("tags")
	if err != nil {
		return "", err
	}
	image, err := headerImage(ctx, e, p.env.assets)
	if err != nil {
		return "", err
	}

	var body string
	switch content := f.get("content"); content.kind {
	case fieldString:
		body = content.str
	case fieldDocument:
		fmt.Fprintf(logOut, "Converting RichText for blog: %s\n", slug)
		body, err = richTextToMarkdown(ctx, content.doc, e.links, p.env.assets)
		if err != nil {
			return "", err
		}
	}

	return writeDocument(outDir, exportedDocument{
		Slug: slug,
		FrontMatter: blogFrontMatter{
			Title:   title,
			Date:    date,
			Excerpt: excerpt,
			Author:  author,
			Tags:    tags,
			Image:   image,
		},
		Body: body,
	}, p.env.format)
}

// caseProcessor handles case-study entries. They have no rich text; the
// description doubles as the body.
type caseProcessor struct {
	env processorEnv
}

func (p *caseProcessor) process(ctx context.Context, e rawEntry, outDir string) (string, error) {
	f := e.Fields
	slug, err := entrySlug(e)
	if err != nil {
		return "", err
	}
	title, err := f.stringField("title")
	if err != nil {
		return "", err
	}
	description, err := f.stringField("description")
	if err != nil {
		return "", err
	}
	externalURL, err := f.stringField("externalUrl")
	if err != nil {
		return "", err
	}
	tags, err := f.stringsField("tags")
	if err != nil {
		return "", err
	}
	image, err := headerImage(ctx, e, p.env.assets)
	if err != nil {
		return "", err
	}

	return writeDocument(outDir, exportedDocument{
		Slug: slug,
		FrontMatter: caseFrontMatter{
			Slug:        slug,
			Title:       title,
			Description: description,
			Image:       image,
			ExternalURL: externalURL,
			Tags:        tags,
		},
		Body: description,
	}, p.env.format)
}

// richTextToMarkdown renders a rich text document to HTML, downloading the
// assets it embeds, and converts the HTML to Markdown.
func richTextToMarkdown(ctx context.Context, doc *rtNode, links *entryCollection, assets assetDownloader) (string, error) {
	var linked []cmsAsset
	if links != nil {
		linked = links.linkedAssets()
	}
	htmlStr, err := renderToHTML(ctx, doc, linked, assets)
	if err != nil {
		return "", err
	}
	return convertToMarkdown(htmlStr)
}

// entrySlug returns the slug field, falling back to the entry id. Slugs are
// used as file names and must stay inside the output directory.
func entrySlug(e rawEntry) (string, error) {
	slug, err := e.Fields.stringField("slug")
	if err != nil {
		return "", err
	}
	slug = strings.TrimSpace(slug)
	if slug == "" {
		slug = e.Sys.ID
	}
	if slug == "" {
		return "", fmt.Errorf("entry has neither slug nor id")
	}
	if strings.ContainsAny(slug, `/\`) || slug == "." || slug == ".." {
		return "", fmt.Errorf("slug %q is not a valid file name", slug)
	}
	return slug, nil
}

// headerImage downloads the asset linked from the image field. A missing
// field, an unresolved link or an asset without a file all yield "".
func headerImage(ctx context.Context, e rawEntry, assets assetDownloader) (string, error) {
	link, ok, err := e.Fields.linkField("image")
	if err != nil || !ok || e.links == nil {
		return "", err
	}
	asset, found := e.links.Assets[link.Sys.ID]
	if !found || asset.Fields.File == nil || asset.Fields.File.URL == "" {
		return "", nil
	}
	localPath, err := assets.fetch(ctx, normalizeAssetURL(asset.Fields.File.URL))
	if err != nil {
		return "", fmt.Errorf("image asset %s: %w", link.Sys.ID, err)
	}
	return localPath, nil
}

var dateLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04Z07:00",
	"2006-01-02T15:04:05",
	"2006-01-02T15:04",
	"2006-01-02",
}

// formatDate normalizes a CMS timestamp to its UTC calendar date
// (YYYY-MM-DD). An empty input stays empty.
func formatDate(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	for _, layout := range dateLayouts {
		if t, err := time.Parse(layout, raw); err == nil {
			return t.UTC().Format("2006-01-02"), nil
		}
	}
	return "", fmt.Errorf("invalid date %q", raw)
}
