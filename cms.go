// Contentful Content Delivery API client: paginated entry queries with
// linked assets and entries resolved from the response includes.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000 // Contentful's hard limit per request
	// resolveDepth is the include level requested for every query: enough
	// to inline one level of embedded asset and entry metadata.
	resolveDepth = 2
)

type cmsSys struct {
	ID          string   `json:"id"`
	Type        string   `json:"type"`
	LinkType    string   `json:"linkType,omitempty"`
	CreatedAt   string   `json:"createdAt,omitempty"`
	UpdatedAt   string   `json:"updatedAt,omitempty"`
	Locale      string   `json:"locale,omitempty"`
	ContentType *cmsLink `json:"contentType,omitempty"`
}

// cmsLink is a reference to another entry or asset ({"sys": {"type": "Link", ...}}).
type cmsLink struct {
	Sys cmsSys `json:"sys"`
}

type cmsEntry struct {
	Sys    cmsSys      `json:"sys"`
	Fields entryFields `json:"fields"`
}

type assetFile struct {
	URL         string `json:"url"`
	FileName    string `json:"fileName"`
	ContentType string `json:"contentType"`
}

type assetFields struct {
	Title       string     `json:"title"`
	Description string     `json:"description"`
	File        *assetFile `json:"file"`
}

type cmsAsset struct {
	Sys    cmsSys      `json:"sys"`
	Fields assetFields `json:"fields"`
}

type entryPage struct {
	Total    int        `json:"total"`
	Skip     int        `json:"skip"`
	Limit    int        `json:"limit"`
	Items    []cmsEntry `json:"items"`
	Includes struct {
		Entry []cmsEntry `json:"Entry"`
		Asset []cmsAsset `json:"Asset"`
	} `json:"includes"`
}

// entryCollection is the result of one query: the entries in CMS order plus
// every asset and entry linked from them, keyed by id.
type entryCollection struct {
	Items   []cmsEntry
	Assets  map[string]cmsAsset
	Entries map[string]cmsEntry
}

func newEntryCollection() *entryCollection {
	return &entryCollection{
		Assets:  map[string]cmsAsset{},
		Entries: map[string]cmsEntry{},
	}
}

// linkedAssets returns the linked asset set ordered by id.
func (c *entryCollection) linkedAssets() []cmsAsset {
	assets := make([]cmsAsset, 0, len(c.Assets))
	for _, a := range c.Assets {
		assets = append(assets, a)
	}
	sort.Slice(assets, func(i, j int) bool { return assets[i].Sys.ID < assets[j].Sys.ID })
	return assets
}

func (c *entryCollection) merge(p *entryPage) {
	c.Items = append(c.Items, p.Items...)
	for _, a := range p.Includes.Asset {
		c.Assets[a.Sys.ID] = a
	}
	for _, e := range p.Includes.Entry {
		c.Entries[e.Sys.ID] = e
	}
}

// entryQuerier fetches every entry of one content type in one CMS locale.
type entryQuerier interface {
	queryEntries(ctx context.Context, contentType, locale string, include int) (*entryCollection, error)
}

type cmsClient struct {
	client      *http.Client
	baseURL     string
	space       string
	environment string
	token       string
	pageSize    int
}

func newCMSClient(client *http.Client, cfg cmsConfig) *cmsClient {
	return &cmsClient{
		client:      client,
		baseURL:     apiBaseURL(cfg.Host),
		space:       cfg.SpaceID,
		environment: cfg.Environment,
		token:       cfg.AccessToken,
		pageSize:    defaultPageSize,
	}
}

// apiBaseURL accepts either a bare host ("cdn.contentful.com") or a full base
// URL ("http://127.0.0.1:8080").
func apiBaseURL(host string) string {
	host = strings.TrimSuffix(strings.TrimSpace(host), "/")
	if strings.HasPrefix(host, "http://") || strings.HasPrefix(host, "https://") {
		return host
	}
	return "https://" + host
}

func (c *cmsClient) entriesURL(contentType, locale string, include, skip, limit int) string {
	q := url.Values{}
	q.Set("content_type", contentType)
	q.Set("locale", locale)
	q.Set("include", strconv.Itoa(include))
	q.Set("skip", strconv.Itoa(skip))
	q.Set("limit", strconv.Itoa(limit))
	return fmt.Sprintf("%s/spaces/%s/environments/%s/entries?%s",
		c.baseURL, url.PathEscape(c.space), url.PathEscape(c.environment), q.Encode())
}

// queryEntries pages through the entries endpoint until total is reached.
func (c *cmsClient) queryEntries(ctx context.Context, contentType, locale string, include int) (*entryCollection, error) {
	limit := c.pageSize
	if limit <= 0 || limit > maxPageSize {
		limit = defaultPageSize
	}
	header := http.Header{}
	header.Set("Authorization", "Bearer "+c.token)
	header.Set("Accept", "application/json")

	coll := newEntryCollection()
	skip := 0
	for {
		body, err := getBytes(ctx, c.client, c.entriesURL(contentType, locale, include, skip, limit), header)
		if err != nil {
			return nil, fmt.Errorf("querying %s entries (%s): %w", contentType, locale, cmsErrorMessage(err))
		}
		var page entryPage
		if err := json.Unmarshal(body, &page); err != nil {
			return nil, fmt.Errorf("decoding %s entries (%s): %w", contentType, locale, err)
		}
		coll.merge(&page)

		skip += len(page.Items)
		if len(page.Items) == 0 || skip >= page.Total {
			return coll, nil
		}
	}
}

// cmsErrorMessage replaces the raw JSON detail of an API error response with
// its "message" field when there is one.
func cmsErrorMessage(err error) error {
	var se *httpStatusError
	if !errors.As(err, &se) || se.Detail == "" {
		return err
	}
	var apiErr struct {
		Message string `json:"message"`
		Sys     cmsSys `json:"sys"`
	}
	if json.Unmarshal([]byte(se.Detail), &apiErr) != nil || apiErr.Message == "" {
		return err
	}
	detail := apiErr.Message
	if apiErr.Sys.ID != "" {
		detail = apiErr.Sys.ID + ": " + detail
	}
	return &httpStatusError{URL: se.URL, StatusCode: se.StatusCode, Detail: detail}
}
