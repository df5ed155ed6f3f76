package media

import "github.com/Kll222/tmdb-tracker/internal/locale"

// Merge combines the primary-locale and secondary-locale versions of an item.
// Each field takes the secondary value when it is set and the primary value
// otherwise. The result is returned only if every field ended up set.
func Merge(primary, secondary Record) (Record, bool) {
	merged := Record{
		ID:          pickID(secondary.ID, primary.ID),
		Title:       pick(secondary.Title, primary.Title),
		ReleaseDate: pick(secondary.ReleaseDate, primary.ReleaseDate),
		Region:      pick(secondary.Region, primary.Region),
		Genres:      pick(secondary.Genres, primary.Genres),
		Overview:    pick(secondary.Overview, primary.Overview),
		PosterURL:   pick(secondary.PosterURL, primary.PosterURL),
		MediaType:   primary.MediaType,
	}
	if secondary.MediaType != "" {
		merged.MediaType = secondary.MediaType
	}
	if !merged.Complete() {
		return merged, false
	}
	return merged, true
}

// LanguageGate accepts items whose original language is allow-listed.
type LanguageGate struct {
	tables *locale.Tables
}

// NewLanguageGate creates a gate over the given tables.
func NewLanguageGate(tables *locale.Tables) LanguageGate {
	if tables == nil {
		tables = locale.Default()
	}
	return LanguageGate{tables: tables}
}

// Allows reports whether code is an allow-listed original language.
func (g LanguageGate) Allows(code string) bool {
	return g.tables.AllowsLanguage(code)
}

func pick(preferred, fallback string) string {
	if preferred != "" {
		return preferred
	}
	return fallback
}

func pickID(preferred, fallback int64) int64 {
	if preferred != 0 {
		return preferred
	}
	return fallback
}
