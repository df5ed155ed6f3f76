// Package media turns raw TMDB items into canonical records and merges the
// primary and secondary locale versions of an item.
package media

import (
	"strconv"

	"github.com/Kll222/tmdb-tracker/internal/tmdb"
)

// Record is the canonical, locale-merged shape that gets stored or exported.
// An empty string stands for a missing value.
type Record struct {
	ID          int64     `json:"id"`
	Title       string    `json:"title"`
	ReleaseDate string    `json:"release_date"`
	Region      string    `json:"region"`
	Genres      string    `json:"genres"`
	Overview    string    `json:"overview"`
	PosterURL   string    `json:"poster_url"`
	MediaType   tmdb.Kind `json:"media_type"`
}

// Columns lists the record fields in storage and export order.
var Columns = []string{"id", "title", "release_date", "region", "genres", "overview", "poster_url", "media_type"}

// IsZero reports whether r holds no data at all.
func (r Record) IsZero() bool {
	return r == Record{}
}

// Missing returns the names of the empty fields.
func (r Record) Missing() []string {
	var missing []string
	if r.ID == 0 {
		missing = append(missing, "id")
	}
	for i, v := range r.stringFields() {
		if v == "" {
			missing = append(missing, Columns[i+1])
		}
	}
	return missing
}

// Complete reports whether every field is set.
func (r Record) Complete() bool {
	return len(r.Missing()) == 0
}

func (r Record) stringFields() []string {
	return []string{r.Title, r.ReleaseDate, r.Region, r.Genres, r.Overview, r.PosterURL, string(r.MediaType)}
}

// Strings renders the record as one string per column.
func (r Record) Strings() []string {
	out := make([]string, 0, len(Columns))
	out = append(out, formatID(r.ID))
	return append(out, r.stringFields()...)
}

func formatID(id int64) string {
	if id == 0 {
		return ""
	}
	return strconv.FormatInt(id, 10)
}
