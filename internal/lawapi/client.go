// Package lawapi is a client for the law.go.kr open API (DRF): paginated
// list search and per-document detail for cases, constitutional decisions
// and statutory interpretations.
package lawapi

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"github.com/ppiankov/lexsearch/internal/fetch"
	"github.com/ppiankov/lexsearch/internal/logging"
	"github.com/ppiankov/lexsearch/internal/model"
)

var (
	// ErrNotFound is returned when the API answers with a "no matching data" body.
	ErrNotFound = errors.New("document not found")
	// ErrMalformed is returned for bodies that are not parseable XML.
	ErrMalformed = errors.New("malformed response")
)

// Getter performs a GET and returns the body. *fetch.Fetcher implements it.
type Getter interface {
	Get(ctx context.Context, rawURL string) (*fetch.Result, error)
}

// Filter narrows a list search.
type Filter struct {
	Query    string
	Court    string // 법원명, cases only
	CaseType string // 사건종류명
	Field    string // 분야, interpretations only
}

// Page is one decoded list response.
type Page struct {
	Total int
	Page  int
	Items []model.Record
}

// Client talks to the list and detail endpoints.
type Client struct {
	baseURL string
	apiKey  string
	http    Getter
	log     *zap.SugaredLogger
}

// NewClient creates a client for baseURL (e.g. https://www.law.go.kr/DRF).
// apiKey is the OC parameter.
func NewClient(baseURL, apiKey string, getter Getter, logger *zap.SugaredLogger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		http:    getter,
		log:     logging.OrNop(logger),
	}
}

// ListURL builds the list-search URL for one page.
func (c *Client) ListURL(kind model.Kind, page, display int, filter Filter) string {
	params := url.Values{}
	params.Set("OC", c.apiKey)
	params.Set("target", string(kind))
	params.Set("type", "XML")
	params.Set("page", strconv.Itoa(page))
	params.Set("display", strconv.Itoa(display))
	if filter.Query != "" {
		params.Set("query", filter.Query)
	}
	if filter.Court != "" && kind == model.KindCase {
		params.Set("법원명", filter.Court)
	}
	if filter.CaseType != "" && kind != model.KindInterpretation {
		params.Set("사건종류명", filter.CaseType)
	}
	if filter.Field != "" && kind == model.KindInterpretation {
		params.Set("분야", filter.Field)
	}
	return c.baseURL + "/lawSearch.do?" + params.Encode()
}

// DetailURL builds the detail URL for one document.
func (c *Client) DetailURL(kind model.Kind, serial int64) string {
	params := url.Values{}
	params.Set("OC", c.apiKey)
	params.Set("target", string(kind))
	params.Set("type", "XML")
	params.Set("ID", strconv.FormatInt(serial, 10))
	return c.baseURL + "/lawService.do?" + params.Encode()
}

// List fetches one page of search results. A "no matching data" reply is an
// empty page, not an error.
func (c *Client) List(ctx context.Context, kind model.Kind, page, display int, filter Filter) (*Page, error) {
	if _, ok := schemas[kind]; !ok {
		return nil, fmt.Errorf("%w: unknown kind %q", model.ErrInvalidConfig, kind)
	}

	res, err := c.http.Get(ctx, c.ListURL(kind, page, display, filter))
	if err != nil {
		return nil, fmt.Errorf("list %s page %d: %w", kind, page, err)
	}

	root, err := parseXML(res.Body)
	if err != nil {
		if isNotFound(res.Body) {
			return &Page{Page: page}, nil
		}
		return nil, fmt.Errorf("list %s page %d: %w", kind, page, err)
	}

	out := &Page{Page: page}
	if n := root.find("totalCnt"); n != nil {
		out.Total, _ = strconv.Atoi(n.value())
	}

	for _, item := range root.findAll(ItemElement(kind)) {
		rec := decodeRecord(kind, item.fields())
		if rec.SerialNumber <= 0 {
			c.log.Debugw("list item without serial", "kind", kind, "page", page)
		}
		out.Items = append(out.Items, rec)
	}

	return out, nil
}

// Detail fetches one document. The record may lack content fields; deciding
// whether that is sufficient is up to the caller.
func (c *Client) Detail(ctx context.Context, kind model.Kind, serial int64) (model.Record, error) {
	if _, ok := schemas[kind]; !ok {
		return model.Record{}, fmt.Errorf("%w: unknown kind %q", model.ErrInvalidConfig, kind)
	}

	res, err := c.http.Get(ctx, c.DetailURL(kind, serial))
	if err != nil {
		return model.Record{}, fmt.Errorf("detail %s/%d: %w", kind, serial, err)
	}

	root, err := parseXML(res.Body)
	if err != nil {
		if isNotFound(res.Body) {
			return model.Record{}, fmt.Errorf("detail %s/%d: %w", kind, serial, ErrNotFound)
		}
		return model.Record{}, fmt.Errorf("detail %s/%d: %w", kind, serial, err)
	}

	rec := decodeRecord(kind, root.fields())
	if rec.SerialNumber == 0 && isNotFound(res.Body) {
		return model.Record{}, fmt.Errorf("detail %s/%d: %w", kind, serial, ErrNotFound)
	}
	// Some detail payloads carry a different serial field than the list.
	rec.SerialNumber = serial

	return rec, nil
}
