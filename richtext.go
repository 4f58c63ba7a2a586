// Rich text (Contentful document tree) to HTML rendering.
package main

import (
	"context"
	"fmt"
	"html"
	"strings"
)

type nodeType string

const (
	nodeDocument               nodeType = "document"
	nodeParagraph              nodeType = "paragraph"
	nodeHeading1               nodeType = "heading-1"
	nodeHeading2               nodeType = "heading-2"
	nodeHeading3               nodeType = "heading-3"
	nodeHeading4               nodeType = "heading-4"
	nodeHeading5               nodeType = "heading-5"
	nodeHeading6               nodeType = "heading-6"
	nodeQuote                  nodeType = "blockquote"
	nodeHR                     nodeType = "hr"
	nodeUnorderedList          nodeType = "unordered-list"
	nodeOrderedList            nodeType = "ordered-list"
	nodeListItem               nodeType = "list-item"
	nodeTable                  nodeType = "table"
	nodeTableRow               nodeType = "table-row"
	nodeTableHeaderCell        nodeType = "table-header-cell"
	nodeTableCell              nodeType = "table-cell"
	nodeEmbeddedAsset          nodeType = "embedded-asset-block"
	nodeEmbeddedEntry          nodeType = "embedded-entry-block"
	nodeEmbeddedEntryInline    nodeType = "embedded-entry-inline"
	nodeEmbeddedResource       nodeType = "embedded-resource-block"
	nodeEmbeddedResourceInline nodeType = "embedded-resource-inline"
	nodeHyperlink              nodeType = "hyperlink"
	nodeAssetHyperlink         nodeType = "asset-hyperlink"
	nodeEntryHyperlink         nodeType = "entry-hyperlink"
	nodeResourceHyperlink      nodeType = "resource-hyperlink"
	nodeText                   nodeType = "text"
)

type rtMark struct {
	Type string `json:"type"`
}

type rtTarget struct {
	Sys struct {
		ID       string `json:"id"`
		Type     string `json:"type"`
		LinkType string `json:"linkType"`
		URN      string `json:"urn"`
	} `json:"sys"`
}

type rtData struct {
	URI    string    `json:"uri,omitempty"`
	Target *rtTarget `json:"target,omitempty"`
}

// rtNode is one node of a rich text document. Text nodes carry Value and
// Marks; reference nodes carry Data.Target; hyperlinks carry Data.URI.
type rtNode struct {
	NodeType nodeType  `json:"nodeType"`
	Value    string    `json:"value,omitempty"`
	Marks    []rtMark  `json:"marks,omitempty"`
	Data     rtData    `json:"data"`
	Content  []*rtNode `json:"content,omitempty"`
}

func (n *rtNode) targetID() string {
	if n.Data.Target == nil {
		return ""
	}
	return n.Data.Target.Sys.ID
}

func (n *rtNode) targetURN() string {
	if n.Data.Target == nil {
		return ""
	}
	return n.Data.Target.Sys.URN
}

// referenceRenderer renders the node kinds that point at other CMS records.
// Implementations must not fail on ids they cannot resolve; errors are for
// failed downloads only.
type referenceRenderer interface {
	embeddedAsset(ctx context.Context, assetID string) (string, error)
	embeddedEntry(entryID string) string
	assetHyperlink(ctx context.Context, assetID, children string) (string, error)
	entryHyperlink(entryID, children string) string
}

// linkedAssetRenderer resolves asset references against the linked assets of
// one query and downloads them through fetcher.
type linkedAssetRenderer struct {
	assets  map[string]assetFields
	fetcher assetDownloader
}

func newLinkedAssetRenderer(linked []cmsAsset, fetcher assetDownloader) *linkedAssetRenderer {
	assets := make(map[string]assetFields, len(linked))
	for _, a := range linked {
		if a.Sys.ID != "" {
			assets[a.Sys.ID] = a.Fields
		}
	}
	return &linkedAssetRenderer{assets: assets, fetcher: fetcher}
}

// download fetches the file of asset id. ok is false when the id is unknown
// or the asset has no file.
func (r *linkedAssetRenderer) download(ctx context.Context, id string) (localPath string, asset assetFields, ok bool, err error) {
	asset, found := r.assets[id]
	if !found || asset.File == nil || asset.File.URL == "" {
		return "", asset, false, nil
	}
	localPath, err = r.fetcher.fetch(ctx, normalizeAssetURL(asset.File.URL))
	if err != nil {
		return "", asset, false, fmt.Errorf("asset %s: %w", id, err)
	}
	return localPath, asset, true, nil
}

func (r *linkedAssetRenderer) embeddedAsset(ctx context.Context, assetID string) (string, error) {
	localPath, asset, ok, err := r.download(ctx, assetID)
	if err != nil || !ok {
		return "", err
	}
	alt := asset.Title
	if alt == "" {
		alt = asset.Description
	}
	return fmt.Sprintf(`<img src="%s" alt="%s" />`, html.EscapeString(localPath), html.EscapeString(alt)), nil
}

func (r *linkedAssetRenderer) embeddedEntry(entryID string) string {
	return htmlComment("Embedded entry: " + entryID)
}

func (r *linkedAssetRenderer) assetHyperlink(ctx context.Context, assetID, children string) (string, error) {
	localPath, _, ok, err := r.download(ctx, assetID)
	if err != nil {
		return "", err
	}
	if !ok {
		return children, nil
	}
	return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(localPath), children), nil
}

func (r *linkedAssetRenderer) entryHyperlink(entryID, children string) string {
	return fmt.Sprintf(`<a href="#entry-%s">%s</a>`, html.EscapeString(entryID), children)
}

func htmlComment(text string) string {
	return "<!-- " + strings.ReplaceAll(text, "--", "") + " -->"
}

// richTextRenderer walks a document depth-first and emits HTML.
type richTextRenderer struct {
	refs referenceRenderer
}

// renderToHTML renders doc with asset references resolved against linked and
// downloaded through fetcher. A nil document renders as "".
func renderToHTML(ctx context.Context, doc *rtNode, linked []cmsAsset, fetcher assetDownloader) (string, error) {
	r := &richTextRenderer{refs: newLinkedAssetRenderer(linked, fetcher)}
	return r.render(ctx, doc)
}

func (r *richTextRenderer) render(ctx context.Context, n *rtNode) (string, error) {
	if n == nil {
		return "", nil
	}
	return r.node(ctx, n)
}

func (r *richTextRenderer) children(ctx context.Context, n *rtNode) (string, error) {
	var b strings.Builder
	for _, c := range n.Content {
		if c == nil {
			continue
		}
		s, err := r.node(ctx, c)
		if err != nil {
			return "", err
		}
		b.WriteString(s)
	}
	return b.String(), nil
}

// wrap renders n's children inside <tag>...</tag>.
func (r *richTextRenderer) wrap(ctx context.Context, tag string, n *rtNode) (string, error) {
	inner, err := r.children(ctx, n)
	if err != nil {
		return "", err
	}
	return "<" + tag + ">" + inner + "</" + tag + ">", nil
}

func (r *richTextRenderer) node(ctx context.Context, n *rtNode) (string, error) {
	switch n.NodeType {
	case nodeText:
		return renderText(n), nil
	case nodeParagraph:
		return r.wrap(ctx, "p", n)
	case nodeHeading1:
		return r.wrap(ctx, "h1", n)
	case nodeHeading2:
		return r.wrap(ctx, "h2", n)
	case nodeHeading3:
		return r.wrap(ctx, "h3", n)
	case nodeHeading4:
		return r.wrap(ctx, "h4", n)
	case nodeHeading5:
		return r.wrap(ctx, "h5", n)
	case nodeHeading6:
		return r.wrap(ctx, "h6", n)
	case nodeQuote:
		return r.wrap(ctx, "blockquote", n)
	case nodeHR:
		return "<hr/>", nil
	case nodeUnorderedList:
		return r.wrap(ctx, "ul", n)
	case nodeOrderedList:
		return r.wrap(ctx, "ol", n)
	case nodeListItem:
		return r.wrap(ctx, "li", n)
	case nodeTable:
		return r.wrap(ctx, "table", n)
	case nodeTableRow:
		return r.wrap(ctx, "tr", n)
	case nodeTableHeaderCell:
		return r.wrap(ctx, "th", n)
	case nodeTableCell:
		return r.wrap(ctx, "td", n)
	case nodeHyperlink:
		inner, err := r.children(ctx, n)
		if err != nil {
			return "", err
		}
		return fmt.Sprintf(`<a href="%s">%s</a>`, html.EscapeString(n.Data.URI), inner), nil
	case nodeEmbeddedAsset:
		return r.refs.embeddedAsset(ctx, n.targetID())
	case nodeEmbeddedEntry, nodeEmbeddedEntryInline:
		return r.refs.embeddedEntry(n.targetID()), nil
	case nodeAssetHyperlink:
		inner, err := r.children(ctx, n)
		if err != nil {
			return "", err
		}
		return r.refs.assetHyperlink(ctx, n.targetID(), inner)
	case nodeEntryHyperlink:
		inner, err := r.children(ctx, n)
		if err != nil {
			return "", err
		}
		return r.refs.entryHyperlink(n.targetID(), inner), nil
	case nodeEmbeddedResource, nodeEmbeddedResourceInline:
		return htmlComment("Embedded resource: " + n.targetURN()), nil
	case nodeDocument, nodeResourceHyperlink:
		return r.children(ctx, n)
	default:
		// Node kinds added to the rich text model later keep their text.
		return r.children(ctx, n)
	}
}

func renderText(n *rtNode) string {
	s := html.EscapeString(n.Value)
	for _, m := range n.Marks {
		switch m.Type {
		case "bold":
			s = "<strong>" + s + "</strong>"
		case "italic":
			s = "<em>" + s + "</em>"
		case "underline":
			s = "<u>" + s + "</u>"
		case "code":
			s = "<code>" + s + "</code>"
		case "superscript":
			s = "<sup>" + s + "</sup>"
		case "subscript":
			s = "<sub>" + s + "</sub>"
		case "strikethrough":
			s = "<s>" + s + "</s>"
		}
	}
	return s
}
