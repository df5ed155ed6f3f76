package media

import (
	"strings"

	"github.com/Kll222/tmdb-tracker/internal/locale"
	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

// GenrePolicy decides what happens to genre ids missing from the lookup table.
type GenrePolicy string

const (
	// DropUnknown silently discards unknown ids.
	DropUnknown GenrePolicy = "drop"
	// PlaceholderUnknown replaces each unknown id with UnknownGenre.
	PlaceholderUnknown GenrePolicy = "placeholder"
)

// UnknownGenre is the placeholder name used by PlaceholderUnknown.
const UnknownGenre = "Unknown"

const (
	DefaultImageBaseURL = "https://image.tmdb.org/t/p"
	DefaultPosterSize   = "w500"
)

const listSeparator = ", "

// Normalizer maps raw items to records using the locale tables.
type Normalizer struct {
	tables       *locale.Tables
	genrePolicy  GenrePolicy
	imageBaseURL string
	posterSize   string
}

// NormalizerOption customises a Normalizer.
type NormalizerOption func(*Normalizer)

// WithGenrePolicy sets the unknown-genre policy.
func WithGenrePolicy(p GenrePolicy) NormalizerOption {
	return func(n *Normalizer) {
		if p != "" {
			n.genrePolicy = p
		}
	}
}

// WithPosterBase sets the image CDN base and width segment.
func WithPosterBase(baseURL, size string) NormalizerOption {
	return func(n *Normalizer) {
		if baseURL != "" {
			n.imageBaseURL = strings.TrimRight(baseURL, "/")
		}
		if size != "" {
			n.posterSize = strings.Trim(size, "/")
		}
	}
}

// NewNormalizer creates a Normalizer. A nil tables argument selects locale.Default.
func NewNormalizer(tables *locale.Tables, opts ...NormalizerOption) *Normalizer {
	if tables == nil {
		tables = locale.Default()
	}
	n := &Normalizer{
		tables:       tables,
		genrePolicy:  DropUnknown,
		imageBaseURL: DefaultImageBaseURL,
		posterSize:   DefaultPosterSize,
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Tables returns the lookup tables in use.
func (n *Normalizer) Tables() *locale.Tables {
	return n.tables
}

// Normalize maps a raw item of the given kind to a Record.
func (n *Normalizer) Normalize(item tmdb.Item, kind tmdb.Kind) Record {
	title := item.Title
	if title == "" {
		title = item.Name
	}
	released := item.ReleaseDate
	if released == "" {
		released = item.FirstAirDate
	}

	return Record{
		ID:          item.ID,
		Title:       title,
		ReleaseDate: released,
		Region:      n.Region(item),
		Genres:      n.Genres(item),
		Overview:    item.Overview,
		PosterURL:   n.PosterURL(item.PosterPath),
		MediaType:   kind,
	}
}

// Region joins the display names of the item's origin countries, falling back
// to its production countries. Unknown codes are dropped.
func (n *Normalizer) Region(item tmdb.Item) string {
	codes := item.OriginCountry
	if len(codes) == 0 {
		for _, c := range item.ProductionCountries {
			if c.ISO31661 != "" {
				codes = append(codes, c.ISO31661)
			}
		}
	}

	var names []string
	for _, code := range codes {
		if name, ok := n.tables.Country(code); ok {
			names = append(names, name)
		}
	}
	return strings.Join(names, listSeparator)
}

// Genres joins the display names of the item's genre ids. Listing payloads
// carry genre_ids, detail payloads carry genre objects.
func (n *Normalizer) Genres(item tmdb.Item) string {
	ids := item.GenreIDs
	if len(ids) == 0 {
		for _, g := range item.Genres {
			ids = append(ids, g.ID)
		}
	}

	var names []string
	for _, id := range ids {
		name, ok := n.tables.Genre(id)
		if !ok {
			if n.genrePolicy != PlaceholderUnknown {
				continue
			}
			name = UnknownGenre
		}
		names = append(names, name)
	}
	return strings.Join(names, listSeparator)
}

// PosterURL prefixes a poster path with the image base and width segment.
func (n *Normalizer) PosterURL(path string) string {
	if path == "" {
		return ""
	}
	if strings.HasPrefix(path, "https://") || strings.HasPrefix(path, "http://") {
		return path
	}
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	return n.imageBaseURL + "/" + n.posterSize + path
}
