package media

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

func TestRegionDropsUnknownCodes(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, "中国", n.Region(tmdb.Item{OriginCountry: []string{"CN", "XX"}}))
	assert.Equal(t, "中国, 日本", n.Region(tmdb.Item{OriginCountry: []string{"CN", "JP"}}))
	assert.Equal(t, "", n.Region(tmdb.Item{OriginCountry: []string{"XX"}}))
}

func TestRegionFallsBackToProductionCountries(t *testing.T) {
	n := NewNormalizer(nil)
	item := tmdb.Item{ProductionCountries: []tmdb.Country{{ISO31661: "US"}, {ISO31661: ""}, {ISO31661: "GB"}}}
	assert.Equal(t, "美国, 英国", n.Region(item))

	// origin_country wins when present
	item.OriginCountry = []string{"KR"}
	assert.Equal(t, "韩国", n.Region(item))
}

func TestGenresPolicy(t *testing.T) {
	item := tmdb.Item{GenreIDs: []int{28, 99999}}

	assert.Equal(t, "动作", NewNormalizer(nil).Genres(item))
	assert.Equal(t, "动作, Unknown", NewNormalizer(nil, WithGenrePolicy(PlaceholderUnknown)).Genres(item))
	assert.Equal(t, "", NewNormalizer(nil).Genres(tmdb.Item{GenreIDs: []int{99999}}))
}

func TestGenresFromDetailObjects(t *testing.T) {
	item := tmdb.Item{Genres: []tmdb.Genre{{ID: 18, Name: "Drama"}, {ID: 9648, Name: "Mystery"}}}
	assert.Equal(t, "剧情, 悬疑", NewNormalizer(nil).Genres(item))
}

func TestPosterURL(t *testing.T) {
	n := NewNormalizer(nil)
	assert.Equal(t, "https://image.tmdb.org/t/p/w500/abc.jpg", n.PosterURL("/abc.jpg"))
	assert.Equal(t, "", n.PosterURL(""))

	custom := NewNormalizer(nil, WithPosterBase("https://cdn.example/t/p/", "/w780/"))
	assert.Equal(t, "https://cdn.example/t/p/w780/abc.jpg", custom.PosterURL("/abc.jpg"))
}

func TestNormalizeMovieAndShow(t *testing.T) {
	n := NewNormalizer(nil)

	movie := n.Normalize(tmdb.Item{
		ID:            1,
		Title:         "Movie",
		ReleaseDate:   "2026-10-15",
		OriginCountry: []string{"US"},
		GenreIDs:      []int{35},
		Overview:      "text",
		PosterPath:    "/m.jpg",
	}, tmdb.Movie)
	assert.Equal(t, Record{
		ID:          1,
		Title:       "Movie",
		ReleaseDate: "2026-10-15",
		Region:      "美国",
		Genres:      "喜剧",
		Overview:    "text",
		PosterURL:   "https://image.tmdb.org/t/p/w500/m.jpg",
		MediaType:   tmdb.Movie,
	}, movie)

	show := n.Normalize(tmdb.Item{ID: 2, Name: "Show", FirstAirDate: "2026-10-14"}, tmdb.TV)
	assert.Equal(t, "Show", show.Title)
	assert.Equal(t, "2026-10-14", show.ReleaseDate)
	assert.Equal(t, tmdb.TV, show.MediaType)
	assert.ElementsMatch(t, []string{"region", "genres", "overview", "poster_url"}, show.Missing())
}

func TestNormalizeIsDeterministic(t *testing.T) {
	n := NewNormalizer(nil)
	item := tmdb.Item{ID: 3, Title: "T", ReleaseDate: "2026-01-01", OriginCountry: []string{"FR", "XX"}, GenreIDs: []int{18, 1}, PosterPath: "/p.jpg"}
	first := n.Normalize(item, tmdb.Movie)
	assert.Equal(t, first, n.Normalize(item, tmdb.Movie))
}

func TestNormalizeCanonicalRecordKeepsMappedFields(t *testing.T) {
	n := NewNormalizer(nil)
	for _, kind := range []tmdb.Kind{tmdb.Movie, tmdb.TV} {
		first := n.Normalize(tmdb.Item{
			ID: 11, Title: "流浪地球", ReleaseDate: "2026-10-15", Overview: "太阳即将毁灭",
			OriginCountry: []string{"CN"}, GenreIDs: []int{878}, PosterPath: "/p.jpg",
		}, kind)

		again := n.Normalize(tmdb.Item{
			ID:          first.ID,
			Title:       first.Title,
			ReleaseDate: first.ReleaseDate,
			Overview:    first.Overview,
			PosterPath:  first.PosterURL,
		}, first.MediaType)

		assert.Equal(t, first.ID, again.ID)
		assert.Equal(t, first.Title, again.Title)
		assert.Equal(t, first.ReleaseDate, again.ReleaseDate)
		assert.Equal(t, first.Overview, again.Overview)
		assert.Equal(t, first.MediaType, again.MediaType)
		assert.Equal(t, "https://image.tmdb.org/t/p/w500/p.jpg", again.PosterURL)
	}
}
