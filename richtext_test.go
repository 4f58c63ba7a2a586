package main

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
)

// fakeAssets records requested URLs and maps each to a local path.
type fakeAssets struct {
	fetched []string
	fail    map[string]error
}

func (f *fakeAssets) fetch(ctx context.Context, rawURL string) (string, error) {
	if err := f.fail[rawURL]; err != nil {
		return "", err
	}
	f.fetched = append(f.fetched, rawURL)
	if rawURL == "" {
		return "", nil
	}
	return "/images/contentful/" + rawURL[strings.LastIndex(rawURL, "/")+1:], nil
}

func mustDoc(t *testing.T, js string) *rtNode {
	t.Helper()
	var n rtNode
	if err := json.Unmarshal([]byte(js), &n); err != nil {
		t.Fatalf("bad document JSON: %v", err)
	}
	return &n
}

func testAsset(id, title, description, url string) cmsAsset {
	a := cmsAsset{Sys: cmsSys{ID: id, Type: "Asset"}}
	a.Fields.Title = title
	a.Fields.Description = description
	if url != "" {
		a.Fields.File = &assetFile{URL: url}
	}
	return a
}

func parseHTML(t *testing.T, s string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(s))
	if err != nil {
		t.Fatal(err)
	}
	return doc
}

func TestRenderToHTML_Blocks(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"heading-2","data":{},"content":[{"nodeType":"text","value":"Intro","marks":[],"data":{}}]},
		{"nodeType":"paragraph","data":{},"content":[
			{"nodeType":"text","value":"Hello ","marks":[],"data":{}},
			{"nodeType":"text","value":"world","marks":[{"type":"bold"}],"data":{}},
			{"nodeType":"hyperlink","data":{"uri":"https://example.com"},"content":[{"nodeType":"text","value":"link","marks":[],"data":{}}]}
		]},
		{"nodeType":"unordered-list","data":{},"content":[
			{"nodeType":"list-item","data":{},"content":[{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"item","marks":[],"data":{}}]}]}
		]},
		{"nodeType":"hr","data":{},"content":[]},
		{"nodeType":"blockquote","data":{},"content":[{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"q","marks":[],"data":{}}]}]}
	]}`)

	out, err := renderToHTML(context.Background(), doc, nil, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	d := parseHTML(t, out)
	if got := d.Find("h2").Text(); got != "Intro" {
		t.Errorf("h2 = %q, want Intro", got)
	}
	if got := d.Find("p strong").Text(); got != "world" {
		t.Errorf("strong = %q, want world", got)
	}
	if href, _ := d.Find("p a").Attr("href"); href != "https://example.com" {
		t.Errorf("link href = %q", href)
	}
	if got := d.Find("ul li p").Text(); got != "item" {
		t.Errorf("list item = %q", got)
	}
	if d.Find("hr").Length() != 1 {
		t.Error("expected <hr>")
	}
	if got := d.Find("blockquote p").Text(); got != "q" {
		t.Errorf("blockquote = %q", got)
	}
}

func TestRenderToHTML_EmbeddedAsset(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"a1","type":"Link","linkType":"Asset"}}},"content":[]}
	]}`)
	linked := []cmsAsset{testAsset("a1", "A cat", "ignored", "//images.ctfassets.net/s/a1/h/cat.jpg")}
	assets := &fakeAssets{}

	out, err := renderToHTML(context.Background(), doc, linked, assets)
	if err != nil {
		t.Fatal(err)
	}
	img := parseHTML(t, out).Find("img")
	if src, _ := img.Attr("src"); src != "/images/contentful/cat.jpg" {
		t.Errorf("src = %q", src)
	}
	if alt, _ := img.Attr("alt"); alt != "A cat" {
		t.Errorf("alt = %q, want title", alt)
	}
	if len(assets.fetched) != 1 || assets.fetched[0] != "https://images.ctfassets.net/s/a1/h/cat.jpg" {
		t.Errorf("fetched = %v, want normalized https URL", assets.fetched)
	}
}

func TestRenderToHTML_EmbeddedAssetAltFallsBackToDescription(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"a1","type":"Link","linkType":"Asset"}}},"content":[]}
	]}`)
	linked := []cmsAsset{testAsset("a1", "", "Described", "https://cdn.test/d.png")}

	out, err := renderToHTML(context.Background(), doc, linked, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	if alt, _ := parseHTML(t, out).Find("img").Attr("alt"); alt != "Described" {
		t.Errorf("alt = %q, want description", alt)
	}
}

func TestRenderToHTML_UnresolvedAssetRendersNothing(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"before","marks":[],"data":{}}]},
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"missing","type":"Link","linkType":"Asset"}}},"content":[]},
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"nofile","type":"Link","linkType":"Asset"}}},"content":[]},
		{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"after","marks":[],"data":{}}]}
	]}`)
	linked := []cmsAsset{testAsset("nofile", "t", "", "")}
	assets := &fakeAssets{}

	out, err := renderToHTML(context.Background(), doc, linked, assets)
	if err != nil {
		t.Fatal(err)
	}
	if out != "<p>before</p><p>after</p>" {
		t.Errorf("got %q", out)
	}
	if len(assets.fetched) != 0 {
		t.Errorf("no download expected, got %v", assets.fetched)
	}
}

func TestRenderToHTML_AssetDownloadError(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"a1","type":"Link","linkType":"Asset"}}},"content":[]}
	]}`)
	linked := []cmsAsset{testAsset("a1", "", "", "https://cdn.test/broken.png")}
	boom := errors.New("HTTP 500")
	assets := &fakeAssets{fail: map[string]error{"https://cdn.test/broken.png": boom}}

	_, err := renderToHTML(context.Background(), doc, linked, assets)
	if !errors.Is(err, boom) {
		t.Errorf("expected download error, got %v", err)
	}
	if err != nil && !strings.HasPrefix(err.Error(), "asset a1: ") {
		t.Errorf("error should name the asset id, got %q", err)
	}
}

func TestRenderToHTML_EmbeddedEntry(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"embedded-entry-block","data":{"target":{"sys":{"id":"e42","type":"Link","linkType":"Entry"}}},"content":[]}
	]}`)
	out, err := renderToHTML(context.Background(), doc, nil, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "<!-- Embedded entry: e42 -->" {
		t.Errorf("got %q", out)
	}
}

func TestRenderToHTML_EntryHyperlink(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"paragraph","data":{},"content":[
			{"nodeType":"entry-hyperlink","data":{"target":{"sys":{"id":"post7","type":"Link","linkType":"Entry"}}},"content":[{"nodeType":"text","value":"read more","marks":[],"data":{}}]}
		]}
	]}`)
	out, err := renderToHTML(context.Background(), doc, nil, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	a := parseHTML(t, out).Find("a")
	if href, _ := a.Attr("href"); href != "#entry-post7" {
		t.Errorf("href = %q", href)
	}
	if a.Text() != "read more" {
		t.Errorf("text = %q", a.Text())
	}
}

func TestRenderToHTML_AssetHyperlink(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"paragraph","data":{},"content":[
			{"nodeType":"asset-hyperlink","data":{"target":{"sys":{"id":"pdf","type":"Link","linkType":"Asset"}}},"content":[{"nodeType":"text","value":"brochure","marks":[],"data":{}}]},
			{"nodeType":"asset-hyperlink","data":{"target":{"sys":{"id":"gone","type":"Link","linkType":"Asset"}}},"content":[{"nodeType":"text","value":" plain","marks":[],"data":{}}]}
		]}
	]}`)
	linked := []cmsAsset{testAsset("pdf", "Brochure", "", "https://cdn.test/b.pdf")}

	out, err := renderToHTML(context.Background(), doc, linked, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	if out != `<p><a href="/images/contentful/b.pdf">brochure</a> plain</p>` {
		t.Errorf("got %q", out)
	}
}

func TestRenderToHTML_UnknownNodeKeepsText(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"future-widget","data":{},"content":[{"nodeType":"text","value":"kept","marks":[],"data":{}}]}
	]}`)
	out, err := renderToHTML(context.Background(), doc, nil, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	if out != "kept" {
		t.Errorf("got %q", out)
	}
}

func TestRenderToHTML_Table(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"table","data":{},"content":[
			{"nodeType":"table-row","data":{},"content":[
				{"nodeType":"table-header-cell","data":{},"content":[{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"H","marks":[],"data":{}}]}]}
			]},
			{"nodeType":"table-row","data":{},"content":[
				{"nodeType":"table-cell","data":{},"content":[{"nodeType":"paragraph","data":{},"content":[{"nodeType":"text","value":"C","marks":[],"data":{}}]}]}
			]}
		]}
	]}`)
	out, err := renderToHTML(context.Background(), doc, nil, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	d := parseHTML(t, out)
	if d.Find("table tr th").Text() != "H" || d.Find("table tr td").Text() != "C" {
		t.Errorf("unexpected table HTML: %s", out)
	}
}

func TestRenderToHTML_NilDocument(t *testing.T) {
	out, err := renderToHTML(context.Background(), nil, nil, &fakeAssets{})
	if err != nil || out != "" {
		t.Errorf("got %q, %v; want empty", out, err)
	}
}

func TestRenderText_MarksAndEscaping(t *testing.T) {
	tests := []struct {
		node rtNode
		want string
	}{
		{rtNode{NodeType: nodeText, Value: "a < b & c"}, "a &lt; b &amp; c"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "bold"}}}, "<strong>x</strong>"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "italic"}}}, "<em>x</em>"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "underline"}}}, "<u>x</u>"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "code"}}}, "<code>x</code>"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "bold"}, {Type: "italic"}}}, "<em><strong>x</strong></em>"},
		{rtNode{NodeType: nodeText, Value: "x", Marks: []rtMark{{Type: "sparkle"}}}, "x"},
	}
	for _, tt := range tests {
		if got := renderText(&tt.node); got != tt.want {
			t.Errorf("renderText(%+v) = %q, want %q", tt.node, got, tt.want)
		}
	}
}

func TestRenderToHTML_ThenMarkdown(t *testing.T) {
	doc := mustDoc(t, `{"nodeType":"document","data":{},"content":[
		{"nodeType":"heading-1","data":{},"content":[{"nodeType":"text","value":"Title","marks":[],"data":{}}]},
		{"nodeType":"embedded-asset-block","data":{"target":{"sys":{"id":"a1","type":"Link","linkType":"Asset"}}},"content":[]}
	]}`)
	linked := []cmsAsset{testAsset("a1", "Hero", "", "//images.ctfassets.net/s/a1/h/hero.png")}

	md, err := richTextToMarkdown(context.Background(), doc, &entryCollection{Assets: map[string]cmsAsset{"a1": linked[0]}}, &fakeAssets{})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(md, "# Title") {
		t.Errorf("expected heading in:\n%s", md)
	}
	if !strings.Contains(md, "![Hero](/images/contentful/hero.png)") {
		t.Errorf("expected image in:\n%s", md)
	}
}
