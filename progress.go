// Verbose progress lines (-v): one line per asset download or cache hit.
package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
)

// verboseOut is the writer for per-asset progress lines. It is io.Discard
// unless -v is given.
var verboseOut io.Writer = io.Discard

func vprintf(format string, args ...any) {
	fmt.Fprintf(verboseOut, format, args...)
}

// shortURL returns a compact display form of a URL: host + trimmed path,
// no scheme. Truncated to 60 characters with "..." if needed.
func shortURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	display := u.Host + u.Path
	display = strings.TrimSuffix(display, "/")
	if len(display) > 60 {
		display = display[:57] + "..."
	}
	return display
}
