// Package audible implements the catalog collaborators against the Audible
// marketplace API.
//
// Library and search calls go to the regional API host with the session's
// bearer token. Token refresh uses the regional Amazon token endpoint. The
// interactive login (password, OTP, device registration) is delegated to an
// auth endpoint configured by AuthURL, which speaks a small JSON protocol
// (see auth.go).
package audible

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/robinjoseph08/golib/logger"
	"github.com/segmentio/encoding/json"

	"github.com/mrlokans/listenwise/internal/catalog"
	"github.com/mrlokans/listenwise/internal/ratelimit"
)

const (
	// Rate limit: 1 request per second per marketplace, burst of 3
	defaultRPS   = 1.0
	defaultBurst = 3

	defaultTimeout = 30 * time.Second

	maxLibraryPageSize = 1000
	maxSearchResults   = 50

	libraryResponseGroups = "series,contributors,product_desc,media,price,category_ladders,is_finished,percent_complete"
	searchResponseGroups  = "contributors,product_desc,product_attrs,series,media,price"

	userAgent = "listenwise/1.0"
)

// Config configures the client. Zero values take defaults.
type Config struct {
	// APIBaseURL overrides the per-marketplace API host (proxies, tests).
	APIBaseURL string
	// TokenURL overrides the per-marketplace token endpoint.
	TokenURL string
	// AuthURL is the base URL of the interactive login endpoint.
	AuthURL string

	RateLimit float64
	RateBurst int
	Timeout   time.Duration
}

// Client is a rate-limited Audible API client.
type Client struct {
	http    *http.Client
	limiter *ratelimit.KeyedRateLimiter
	cfg     Config
}

// New creates a new Audible client.
func New(cfg Config) *Client {
	if cfg.RateLimit <= 0 {
		cfg.RateLimit = defaultRPS
	}
	if cfg.RateBurst <= 0 {
		cfg.RateBurst = defaultBurst
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}

	return &Client{
		http:    &http.Client{Timeout: cfg.Timeout},
		limiter: ratelimit.New(cfg.RateLimit, cfg.RateBurst),
		cfg:     cfg,
	}
}

// ListLibrary fetches one page of the owner's library. Page tokens are page
// numbers starting at 1; a page shorter than pageSize is the last one.
func (c *Client) ListLibrary(ctx context.Context, session *catalog.SessionState, pageToken string, pageSize int) (*catalog.LibraryPage, error) {
	if pageSize <= 0 || pageSize > maxLibraryPageSize {
		pageSize = maxLibraryPageSize
	}
	page := pageNumber(pageToken)

	query := url.Values{}
	query.Set("num_results", strconv.Itoa(pageSize))
	query.Set("page", strconv.Itoa(page))
	query.Set("response_groups", libraryResponseGroups)
	query.Set("sort_by", "-PurchaseDate")

	var resp libraryResponse
	if err := c.getJSON(ctx, "list_library", session, "/1.0/library", query, &resp); err != nil {
		return nil, err
	}

	result := &catalog.LibraryPage{}
	for _, item := range resp.Items {
		result.Entries = append(result.Entries, item.toEntry())
	}
	if len(resp.Items) == pageSize {
		result.NextPageToken = strconv.Itoa(page + 1)
	}
	return result, nil
}

// SearchByContributor searches the catalog for works credited to name.
// Callers verify the credit; the remote search is fuzzy.
func (c *Client) SearchByContributor(ctx context.Context, session *catalog.SessionState, name string, kind catalog.ContributorKind, limit int) ([]catalog.RawEntry, error) {
	query := searchQuery(limit)
	switch kind {
	case catalog.ContributorAuthor:
		query.Set("author", name)
	case catalog.ContributorNarrator:
		query.Set("narrator", name)
	default:
		return nil, fmt.Errorf("unknown contributor kind %q", kind)
	}

	products, err := c.searchProducts(ctx, "search_"+string(kind), session, query)
	if err != nil {
		return nil, err
	}

	entries := make([]catalog.RawEntry, 0, len(products))
	for _, p := range products {
		entries = append(entries, p.toEntry())
	}
	return entries, nil
}

// SearchInSeries returns catalog products belonging to the series. The remote
// has no series filter, so this searches by title and keeps members only.
func (c *Client) SearchInSeries(ctx context.Context, session *catalog.SessionState, series catalog.SeriesRef, limit int) ([]catalog.RawEntry, error) {
	if strings.TrimSpace(series.Title) == "" {
		return nil, fmt.Errorf("%w: series title required", catalog.ErrMalformedEntry)
	}

	query := searchQuery(limit)
	query.Set("title", series.Title)

	products, err := c.searchProducts(ctx, "search_series", session, query)
	if err != nil {
		return nil, err
	}

	var entries []catalog.RawEntry
	for _, p := range products {
		if p.inSeries(series) {
			entries = append(entries, p.toEntry())
		}
	}
	return entries, nil
}

func searchQuery(limit int) url.Values {
	if limit <= 0 || limit > maxSearchResults {
		limit = maxSearchResults
	}
	query := url.Values{}
	query.Set("num_results", strconv.Itoa(limit))
	query.Set("products_sort_by", "-ReleaseDate")
	query.Set("response_groups", searchResponseGroups)
	return query
}

func (c *Client) searchProducts(ctx context.Context, op string, session *catalog.SessionState, query url.Values) ([]rawProduct, error) {
	var resp productsResponse
	err := c.getJSON(ctx, op, session, "/1.0/catalog/products", query, &resp)
	if err != nil {
		var apiErr *Error
		if errors.As(err, &apiErr) && apiErr.Status == http.StatusNotFound {
			return nil, nil
		}
		return nil, err
	}
	return resp.Products, nil
}

func (c *Client) apiBase(m catalog.Marketplace) string {
	if c.cfg.APIBaseURL != "" {
		return strings.TrimRight(c.cfg.APIBaseURL, "/")
	}
	return "https://" + m.APIHost
}

// getJSON performs a rate-limited GET against the marketplace API.
func (c *Client) getJSON(ctx context.Context, op string, session *catalog.SessionState, path string, query url.Values, out any) error {
	if session == nil {
		return &Error{Op: op, Err: catalog.ErrSessionExpired}
	}

	m, err := catalog.LookupMarketplace(session.LocaleCode)
	if err != nil {
		return &Error{Op: op, Marketplace: session.LocaleCode, Err: err}
	}

	if err := c.limiter.Wait(ctx, m.Code); err != nil {
		return fmt.Errorf("rate limit wait: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.apiBase(m)+path+"?"+query.Encode(), nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)
	if session.AccessToken != "" {
		req.Header.Set("Authorization", "Bearer "+session.AccessToken)
	}

	logger.FromContext(ctx).Debug("audible request", logger.Data{"marketplace": m.Code, "path": path, "op": op})

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &Error{Op: op, Marketplace: m.Code, Err: fmt.Errorf("%w: %v", catalog.ErrNetwork, err)}
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return &Error{Op: op, Marketplace: m.Code, Status: resp.StatusCode, Err: errors.New("not found")}
	}
	if resp.StatusCode != http.StatusOK {
		return &Error{Op: op, Marketplace: m.Code, Status: resp.StatusCode, Err: statusError(resp, catalog.ErrSessionExpired)}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &Error{Op: op, Marketplace: m.Code, Err: fmt.Errorf("%w: read response: %v", catalog.ErrNetwork, err)}
	}

	if err := json.Unmarshal(body, out); err != nil {
		return &Error{Op: op, Marketplace: m.Code, Err: fmt.Errorf("%w: decode response: %v", catalog.ErrMalformedEntry, err)}
	}
	return nil
}
