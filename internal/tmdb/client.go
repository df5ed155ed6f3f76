package tmdb

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/Kll222/tmdb-tracker/internal/window"
)

// DefaultBaseURL is the TMDB v3 API root.
const DefaultBaseURL = "https://api.themoviedb.org/3"

// MaxPages is the deepest page the discover endpoint will serve.
const MaxPages = 1000

// Kind is a TMDB media kind. Its value is the path segment used by the API.
type Kind string

const (
	Movie Kind = "movie"
	TV    Kind = "tv"
)

// ParseKind accepts "movie", "tv" and "show".
func ParseKind(s string) (Kind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "movie", "movies":
		return Movie, nil
	case "tv", "show", "shows":
		return TV, nil
	}
	return "", fmt.Errorf("unknown media kind %q", s)
}

func (k Kind) String() string {
	return string(k)
}

// Country is an entry of production_countries.
type Country struct {
	ISO31661 string `json:"iso_3166_1"`
	Name     string `json:"name"`
}

// Genre is an entry of the genres array on detail payloads.
type Genre struct {
	ID   int    `json:"id"`
	Name string `json:"name"`
}

// Item is a raw movie or TV record as returned by either the discover or the
// detail endpoint. Movies fill Title/ReleaseDate, shows fill Name/FirstAirDate.
type Item struct {
	ID                  int64     `json:"id"`
	Title               string    `json:"title"`
	Name                string    `json:"name"`
	ReleaseDate         string    `json:"release_date"`
	FirstAirDate        string    `json:"first_air_date"`
	OriginCountry       []string  `json:"origin_country"`
	ProductionCountries []Country `json:"production_countries"`
	GenreIDs            []int     `json:"genre_ids"`
	Genres              []Genre   `json:"genres"`
	Overview            string    `json:"overview"`
	PosterPath          string    `json:"poster_path"`
	OriginalLanguage    string    `json:"original_language"`
	Adult               bool      `json:"adult"`
}

// IsZero reports whether the item carries no data.
func (it *Item) IsZero() bool {
	return it == nil || it.ID == 0
}

// DiscoverPage is one page of /discover results.
type DiscoverPage struct {
	Page         int    `json:"page"`
	TotalPages   int    `json:"total_pages"`
	TotalResults int    `json:"total_results"`
	Results      []Item `json:"results"`
}

// DiscoverQuery selects one page of recently released items.
type DiscoverQuery struct {
	Kind     Kind
	Page     int
	Language string
	Window   window.Range
}

// StatusError is returned for non-200 responses.
type StatusError struct {
	Code int
	Path string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("HTTP %d for %s", e.Code, e.Path)
}

// Client talks to the TMDB API. Every request waits on a shared limiter, so
// consecutive calls are spaced by at least the configured interval.
type Client struct {
	http    *http.Client
	limiter *rate.Limiter
	baseURL string
	apiKey  string
}

// Options configures a Client. Zero values select defaults.
type Options struct {
	BaseURL         string
	APIKey          string
	Timeout         time.Duration
	RequestInterval time.Duration
}

// New creates a TMDB client.
func New(opts Options) *Client {
	if opts.BaseURL == "" {
		opts.BaseURL = DefaultBaseURL
	}
	if opts.Timeout <= 0 {
		opts.Timeout = 10 * time.Second
	}
	limit := rate.Inf
	if opts.RequestInterval > 0 {
		limit = rate.Every(opts.RequestInterval)
	}

	return &Client{
		http: &http.Client{
			Timeout: opts.Timeout,
		},
		limiter: rate.NewLimiter(limit, 1),
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
		apiKey:  opts.APIKey,
	}
}

// Limiter exposes the request limiter so other fetchers hitting TMDB hosts
// share the same pacing.
func (c *Client) Limiter() *rate.Limiter {
	return c.limiter
}

// Discover fetches one page of items released inside q.Window.
func (c *Client) Discover(ctx context.Context, q DiscoverQuery) (*DiscoverPage, error) {
	if q.Page < 1 {
		q.Page = 1
	}
	params := c.discoverParams(q)

	var page DiscoverPage
	if err := c.get(ctx, "/discover/"+string(q.Kind), params, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Details fetches a single item in the given language.
func (c *Client) Details(ctx context.Context, kind Kind, id int64, language string) (*Item, error) {
	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if language != "" {
		params.Set("language", language)
	}

	var item Item
	if err := c.get(ctx, fmt.Sprintf("/%s/%d", kind, id), params, &item); err != nil {
		return nil, err
	}
	return &item, nil
}

func (c *Client) discoverParams(q DiscoverQuery) url.Values {
	dateKey, sortBy := "primary_release_date", "primary_release_date.desc"
	if q.Kind == TV {
		dateKey, sortBy = "first_air_date", "first_air_date.desc"
	}

	params := url.Values{}
	params.Set("api_key", c.apiKey)
	if q.Language != "" {
		params.Set("language", q.Language)
	}
	params.Set("sort_by", sortBy)
	params.Set("include_adult", "true")
	params.Set("page", strconv.Itoa(q.Page))
	params.Set(dateKey+".gte", q.Window.StartISO())
	params.Set(dateKey+".lte", q.Window.EndISO())
	return params
}

func (c *Client) get(ctx context.Context, path string, params url.Values, target any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path+"?"+params.Encode(), nil)
	if err != nil {
		return fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", "tmdb-tracker/1.0")

	resp, err := c.http.Do(req)
	if err != nil {
		// The wrapped *url.Error carries the full URL including api_key.
		var uerr *url.Error
		if errors.As(err, &uerr) {
			err = uerr.Err
		}
		return fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return &StatusError{Code: resp.StatusCode, Path: path}
	}

	if err := json.NewDecoder(resp.Body).Decode(target); err != nil {
		return fmt.Errorf("decoding %s: %w", path, err)
	}
	return nil
}
