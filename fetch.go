package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const defaultUA = "Mozilla/5.0 (X11; Linux x86_64; rv:133.0) Gecko/20100101 Firefox/133.0"

// maxResponseBytes caps every response body, CMS page or asset. Set from
// -max-response-size; 0 disables the cap.
var maxResponseBytes int64 = 128 * 1024 * 1024 // 128 MB default

// httpStatusError is returned for any non-2xx response. It carries the URL so
// per-entry error lines say which asset or query failed.
type httpStatusError struct {
	URL        string
	StatusCode int
	Detail     string
}

func (e *httpStatusError) Error() string {
	if e.Detail != "" {
		return fmt.Sprintf("HTTP %d for %s: %s", e.StatusCode, e.URL, e.Detail)
	}
	return fmt.Sprintf("HTTP %d for %s", e.StatusCode, e.URL)
}

// newAPIClient creates the client used for CMS queries. The API host comes
// from configuration, not from content, so it skips the private-IP guard.
func newAPIClient(proxyAddr string, timeout time.Duration) *http.Client {
	transport := &http.Transport{
		Proxy:               http.ProxyFromEnvironment,
		TLSHandshakeTimeout: 10 * time.Second,
	}
	if proxyAddr != "" {
		if proxyURL, err := url.Parse(proxyAddr); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}
	return &http.Client{
		Timeout:   timeout,
		Transport: transport,
	}
}

// getBytes performs a GET and returns the body of a 2xx response. Any other
// status becomes an *httpStatusError; no retry is attempted.
func getBytes(ctx context.Context, client *http.Client, rawURL string, header http.Header) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("invalid URL %q: %w", rawURL, err)
	}
	for k, vs := range header {
		for _, v := range vs {
			req.Header.Add(k, v)
		}
	}
	if req.Header.Get("User-Agent") == "" {
		req.Header.Set("User-Agent", defaultUA)
	}

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, &httpStatusError{
			URL:        redactURL(rawURL),
			StatusCode: resp.StatusCode,
			Detail:     strings.TrimSpace(string(snippet)),
		}
	}

	body := resp.Body
	if maxResponseBytes > 0 {
		body = http.MaxBytesReader(nil, resp.Body, maxResponseBytes)
	}
	data, err := io.ReadAll(body)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		return nil, fmt.Errorf("%s is larger than the %s response limit", redactURL(rawURL), humanSize(tooLarge.Limit))
	}
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", redactURL(rawURL), err)
	}
	return data, nil
}

// redactURL drops the query string's access_token, if any, before a URL is
// logged.
func redactURL(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return rawURL
	}
	q := u.Query()
	if q.Has("access_token") {
		q.Set("access_token", "REDACTED")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
