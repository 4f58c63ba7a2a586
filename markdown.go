// HTML to Markdown conversion for rich text bodies.
package main

import (
	"fmt"
	"strings"
	"sync"

	"github.com/JohannesKaufmann/dom"
	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/strikethrough"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/table"
	"golang.org/x/net/html"
)

var (
	mdConverter     *converter.Converter
	mdConverterOnce sync.Once
)

// getMarkdownConverter returns the shared converter: ATX headings, fenced
// code blocks, GFM tables and strikethrough, and an img rule that writes
// exactly ![alt](src).
func getMarkdownConverter() *converter.Converter {
	mdConverterOnce.Do(func() {
		mdConverter = converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(
					commonmark.WithHeadingStyle(commonmark.HeadingStyleATX),
					commonmark.WithCodeBlockFence("```"),
				),
				table.NewTablePlugin(),
				strikethrough.NewStrikethroughPlugin(),
			),
		)
		// PriorityEarly (100) runs before the commonmark plugin (PriorityStandard 500),
		// so src is never rewritten, escaped or dropped for local asset paths.
		mdConverter.Register.RendererFor("img", converter.TagTypeInline,
			func(ctx converter.Context, w converter.Writer, n *html.Node) converter.RenderStatus {
				src := dom.GetAttributeOr(n, "src", "")
				alt := dom.GetAttributeOr(n, "alt", "")
				w.WriteString("![" + alt + "](" + src + ")")
				return converter.RenderSuccess
			},
			converter.PriorityEarly,
		)
	})
	return mdConverter
}

// convertToMarkdown converts an HTML fragment to Markdown.
func convertToMarkdown(htmlStr string) (string, error) {
	md, err := getMarkdownConverter().ConvertString(htmlStr)
	if err != nil {
		return "", fmt.Errorf("markdown conversion: %w", err)
	}
	return strings.TrimSpace(md), nil
}
