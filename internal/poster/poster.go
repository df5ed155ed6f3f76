// Package poster mirrors poster images of stored records to local disk.
package poster

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"
	"golang.org/x/time/rate"

	"github.com/Kll222/tmdb-tracker/internal/media"
)

// Status is the outcome for one record.
type Status int

const (
	StatusSkipped Status = iota
	StatusDownloaded
	StatusFailed
)

func (s Status) String() string {
	switch s {
	case StatusSkipped:
		return "Skipped"
	case StatusDownloaded:
		return "Downloaded"
	case StatusFailed:
		return "Failed"
	default:
		return "Unknown"
	}
}

// Item describes one poster transfer.
type Item struct {
	ID       int64
	Kind     string
	URL      string
	DestPath string
	Bytes    int64
	Status   Status
	Error    error
}

// Summary counts the outcomes of a Fetch.
type Summary struct {
	Downloaded int   `json:"downloaded"`
	Skipped    int   `json:"skipped"`
	Failed     int   `json:"failed"`
	Bytes      int64 `json:"bytes"`
}

// Mirror downloads posters one at a time into Dir/<media_type>/<id><ext>.
type Mirror struct {
	fs      afero.Fs
	dir     string
	http    *http.Client
	limiter *rate.Limiter
	logger  zerolog.Logger

	onItem func(Item)
}

// Option configures a Mirror.
type Option func(*Mirror)

// WithHTTPClient replaces the default client.
func WithHTTPClient(c *http.Client) Option {
	return func(m *Mirror) { m.http = c }
}

// WithLimiter throttles downloads, usually with the API client's limiter.
func WithLimiter(l *rate.Limiter) Option {
	return func(m *Mirror) { m.limiter = l }
}

// WithLogger sets the logger.
func WithLogger(l zerolog.Logger) Option {
	return func(m *Mirror) { m.logger = l.With().Str("component", "poster").Logger() }
}

// NewMirror creates a mirror rooted at dir on fs.
func NewMirror(fs afero.Fs, dir string, opts ...Option) *Mirror {
	m := &Mirror{
		fs:      fs,
		dir:     dir,
		http:    &http.Client{Timeout: 30 * time.Second},
		limiter: rate.NewLimiter(rate.Inf, 1),
		logger:  zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// SetOnItem sets a callback invoked after each record is handled.
func (m *Mirror) SetOnItem(fn func(Item)) {
	m.onItem = fn
}

// DestPath returns where the poster of r is stored.
func (m *Mirror) DestPath(r media.Record) string {
	return filepath.Join(m.dir, string(r.MediaType), strconv.FormatInt(r.ID, 10)+extension(r.PosterURL))
}

// Fetch downloads every record's poster that is not already present. Failures
// are counted and logged; only context cancellation stops the loop.
func (m *Mirror) Fetch(ctx context.Context, records []media.Record) (Summary, error) {
	var sum Summary
	for _, r := range records {
		if err := ctx.Err(); err != nil {
			return sum, err
		}
		if r.PosterURL == "" || r.ID == 0 {
			continue
		}

		item := Item{ID: r.ID, Kind: string(r.MediaType), URL: r.PosterURL, DestPath: m.DestPath(r)}
		if ok, _ := afero.Exists(m.fs, item.DestPath); ok {
			item.Status = StatusSkipped
			sum.Skipped++
		} else if n, err := m.download(ctx, item.URL, item.DestPath); err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return sum, ctxErr
			}
			item.Status = StatusFailed
			item.Error = err
			sum.Failed++
			m.logger.Warn().Err(err).Int64("id", r.ID).Str("url", r.PosterURL).Msg("poster download failed")
		} else {
			item.Status = StatusDownloaded
			item.Bytes = n
			sum.Downloaded++
			sum.Bytes += n
		}

		if m.onItem != nil {
			m.onItem(item)
		}
	}
	return sum, nil
}

func (m *Mirror) download(ctx context.Context, rawURL, dest string) (int64, error) {
	if err := m.limiter.Wait(ctx); err != nil {
		return 0, err
	}
	if err := m.fs.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return 0, fmt.Errorf("creating directory: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return 0, err
	}
	resp, err := m.http.Do(req)
	if err != nil {
		return 0, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return 0, fmt.Errorf("HTTP %d", resp.StatusCode)
	}

	partPath := dest + ".part"
	f, err := m.fs.OpenFile(partPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return 0, fmt.Errorf("opening file: %w", err)
	}

	n, err := io.Copy(f, resp.Body)
	closeErr := f.Close()
	if err = errors.Join(err, closeErr); err != nil {
		_ = m.fs.Remove(partPath)
		return 0, fmt.Errorf("writing file: %w", err)
	}

	if err := m.fs.Rename(partPath, dest); err != nil {
		return 0, fmt.Errorf("renaming file: %w", err)
	}
	return n, nil
}

func extension(rawURL string) string {
	u, err := url.Parse(rawURL)
	if err != nil {
		return ".jpg"
	}
	if ext := path.Ext(u.Path); ext != "" {
		return ext
	}
	return ".jpg"
}
