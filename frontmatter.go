// Front matter + Markdown file encoding.
package main

import (
	"bytes"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"
)

type frontMatterFormat string

const (
	formatYAML frontMatterFormat = "yaml" // --- delimited, what gray-matter and remark read
	formatTOML frontMatterFormat = "toml" // +++ delimited, for Hugo sites
)

func parseFrontMatterFormat(s string) (frontMatterFormat, error) {
	switch f := frontMatterFormat(strings.ToLower(strings.TrimSpace(s))); f {
	case formatYAML, formatTOML:
		return f, nil
	case "":
		return formatYAML, nil
	default:
		return "", fmt.Errorf("unknown front matter format %q (want yaml or toml)", s)
	}
}

// exportedDocument is one output file: a flat front matter record and a
// Markdown body. FrontMatter is a struct whose field order is the key order
// in the file.
type exportedDocument struct {
	Slug        string
	FrontMatter any
	Body        string
}

func (d exportedDocument) filename() string {
	return d.Slug + ".md"
}

// encode renders the front matter block, a blank line and the body.
func (d exportedDocument) encode(format frontMatterFormat) ([]byte, error) {
	var buf bytes.Buffer
	switch format {
	case formatYAML, "":
		buf.WriteString("---\n")
		enc := yaml.NewEncoder(&buf)
		enc.SetIndent(2)
		if err := enc.Encode(d.FrontMatter); err != nil {
			return nil, fmt.Errorf("encoding front matter: %w", err)
		}
		if err := enc.Close(); err != nil {
			return nil, fmt.Errorf("encoding front matter: %w", err)
		}
		buf.WriteString("---\n")
	case formatTOML:
		b, err := toml.Marshal(d.FrontMatter)
		if err != nil {
			return nil, fmt.Errorf("encoding front matter: %w", err)
		}
		buf.WriteString("+++\n")
		buf.Write(b)
		if len(b) > 0 && b[len(b)-1] != '\n' {
			buf.WriteByte('\n')
		}
		buf.WriteString("+++\n")
	default:
		return nil, fmt.Errorf("unsupported front matter format: %s", format)
	}

	buf.WriteString("\n")
	if d.Body != "" {
		buf.WriteString(d.Body)
		if !strings.HasSuffix(d.Body, "\n") {
			buf.WriteString("\n")
		}
	}
	return buf.Bytes(), nil
}

// writeDocument writes d to dir/{slug}.md, replacing any previous export, and
// returns the written path.
func writeDocument(dir string, d exportedDocument, format frontMatterFormat) (string, error) {
	data, err := d.encode(format)
	if err != nil {
		return "", err
	}
	if err := writeFileAtomic(dir, d.filename(), data); err != nil {
		return "", fmt.Errorf("writing %s: %w", d.filename(), err)
	}
	return filepath.Join(dir, d.filename()), nil
}
