// robots.txt and sitemap.xml generation from the exported content tree.
package main

import (
	"fmt"
	"html"
	"os"
	"path/filepath"
	"strings"

	"github.com/adrg/frontmatter"
)

const defaultSiteURL = "https://your-domain.com"

// staticRoutes are the site's fixed pages, relative to /{locale}.
var staticRoutes = []string{
	"", // home
	"blog",
	"cases",
	"features",
	"contact",
	"pricing",
	"about",
}

// contentSlug is one exported document, identified across locales by slug.
type contentSlug struct {
	Slug    string
	LastMod string // newest front matter date across locales, may be empty
}

type sitemapURL struct {
	Loc        string
	LastMod    string
	Alternates []sitemapAlternate
}

type sitemapAlternate struct {
	HrefLang string
	Href     string
}

// collectSlugs lists the *.md files of one content type directory across
// locales. Slugs keep first-seen order (locale order, then file name).
func collectSlugs(contentDir, typeDir string, locales []string) ([]contentSlug, error) {
	var slugs []contentSlug
	index := map[string]int{}
	for _, lang := range locales {
		files, err := filepath.Glob(filepath.Join(contentDir, lang, typeDir, "*.md"))
		if err != nil {
			return nil, err
		}
		for _, file := range files {
			slug := strings.TrimSuffix(filepath.Base(file), ".md")
			date := frontMatterDate(file)
			if i, ok := index[slug]; ok {
				if date > slugs[i].LastMod {
					slugs[i].LastMod = date
				}
				continue
			}
			index[slug] = len(slugs)
			slugs = append(slugs, contentSlug{Slug: slug, LastMod: date})
		}
	}
	return slugs, nil
}

// frontMatterDate returns the date key of the file's front matter, or "" if
// the file has none or cannot be parsed.
func frontMatterDate(path string) string {
	f, err := os.Open(path)
	if err != nil {
		return ""
	}
	defer f.Close()

	var meta struct {
		Date string `yaml:"date" toml:"date"`
	}
	if _, err := frontmatter.Parse(f, &meta); err != nil {
		fmt.Fprintf(logOut, "Warning: %s: %v\n", path, err)
		return ""
	}
	if d, err := formatDate(meta.Date); err == nil {
		return d
	}
	return ""
}

// xmlText escapes s for XML character data and drops characters XML 1.0
// does not allow, such as control characters pasted into CMS slugs.
func xmlText(s string) string {
	return html.EscapeString(strings.Map(func(r rune) rune {
		if r == 0x9 || r == 0xA || r == 0xD ||
			(r >= 0x20 && r <= 0xD7FF) ||
			(r >= 0xE000 && r <= 0xFFFD) ||
			(r >= 0x10000 && r <= 0x10FFFF) {
			return r
		}
		return -1
	}, s))
}

func genRobotsTxt(domain string) string {
	return fmt.Sprintf("User-agent: *\nAllow: /\n\nSitemap: %s/sitemap.xml\n", domain)
}

func localizedURL(domain, lang, pathPart string) string {
	return domain + "/" + lang + pathPart
}

func sitemapEntries(domain string, langs, routes []string, blogSlugs []contentSlug) []sitemapURL {
	var urls []sitemapURL
	add := func(pathPart, lastMod string) {
		for _, lang := range langs {
			u := sitemapURL{Loc: localizedURL(domain, lang, pathPart), LastMod: lastMod}
			for _, alt := range langs {
				u.Alternates = append(u.Alternates, sitemapAlternate{
					HrefLang: alt,
					Href:     localizedURL(domain, alt, pathPart),
				})
			}
			urls = append(urls, u)
		}
	}
	for _, route := range routes {
		pathPart := ""
		if route != "" {
			pathPart = "/" + route
		}
		add(pathPart, "")
	}
	for _, s := range blogSlugs {
		add("/blog/"+s.Slug, s.LastMod)
	}
	return urls
}

func genSitemapXML(urls []sitemapURL) string {
	var b strings.Builder
	b.WriteString(`<?xml version="1.0" encoding="UTF-8"?>` + "\n")
	b.WriteString(`<urlset xmlns="http://www.sitemaps.org/schemas/sitemap/0.9" xmlns:xhtml="http://www.w3.org/1999/xhtml">` + "\n")
	for _, u := range urls {
		b.WriteString("  <url>\n")
		fmt.Fprintf(&b, "    <loc>%s</loc>\n", xmlText(u.Loc))
		if u.LastMod != "" {
			fmt.Fprintf(&b, "    <lastmod>%s</lastmod>\n", u.LastMod)
		}
		for _, alt := range u.Alternates {
			fmt.Fprintf(&b, "    <xhtml:link rel=\"alternate\" hreflang=\"%s\" href=\"%s\" />\n",
				xmlText(alt.HrefLang), xmlText(alt.Href))
		}
		b.WriteString("  </url>\n")
	}
	b.WriteString("</urlset>\n")
	return b.String()
}

// writeSEOFiles regenerates public/robots.txt and public/sitemap.xml.
func writeSEOFiles(cfg exportConfig, siteURL string) error {
	domain := strings.TrimSuffix(strings.TrimSpace(siteURL), "/")
	if domain == "" {
		domain = defaultSiteURL
	}

	blogSlugs, err := collectSlugs(cfg.ContentDir, contentTypeDir("blog"), cfg.Locales)
	if err != nil {
		return fmt.Errorf("scanning blog posts: %w", err)
	}

	fmt.Fprintf(logOut, "Domain: %s\n", domain)
	fmt.Fprintf(logOut, "Languages: %s\n", strings.Join(cfg.Locales, ", "))
	fmt.Fprintf(logOut, "Blog posts found: %d\n", len(blogSlugs))

	if err := writeFileAtomic(cfg.PublicDir, "robots.txt", []byte(genRobotsTxt(domain))); err != nil {
		return fmt.Errorf("writing robots.txt: %w", err)
	}
	fmt.Fprintln(logOut, "✓ robots.txt")

	urls := sitemapEntries(domain, cfg.Locales, staticRoutes, blogSlugs)
	if err := writeFileAtomic(cfg.PublicDir, "sitemap.xml", []byte(genSitemapXML(urls))); err != nil {
		return fmt.Errorf("writing sitemap.xml: %w", err)
	}
	fmt.Fprintf(logOut, "✓ sitemap.xml (%d URLs)\n", len(urls))
	return nil
}
