package locale

import "strings"

// Tables holds the display-name lookups applied while normalizing records.
// A Tables value is read-only after construction; use Default or New.
type Tables struct {
	countries map[string]string
	genres    map[int]string
	languages map[string]struct{}
}

var defaultCountries = map[string]string{
	"CN": "中国",
	"JP": "日本",
	"KR": "韩国",
	"HK": "香港",
	"US": "美国",
	"GB": "英国",
	"FR": "法国",
}

// defaultGenres covers both the movie and the TV genre lists.
var defaultGenres = map[int]string{
	28:    "动作",
	12:    "冒险",
	16:    "动画",
	35:    "喜剧",
	80:    "犯罪",
	99:    "纪录片",
	18:    "剧情",
	10751: "家庭",
	14:    "奇幻",
	36:    "历史",
	27:    "恐怖",
	10402: "音乐",
	9648:  "悬疑",
	10749: "爱情",
	878:   "科幻",
	10770: "电视电影",
	53:    "惊悚",
	10752: "战争",
	37:    "西部",
	10764: "真人秀",
	10765: "科幻与奇幻",
	10759: "动作与冒险",
	10762: "儿童",
	10767: "脱口秀",
}

var defaultLanguages = []string{"zh", "ja", "ko", "en", "fr"}

// Default returns the built-in tables.
func Default() *Tables {
	return New(defaultCountries, defaultGenres, defaultLanguages)
}

// New copies the given mappings into a Tables value. Country and language
// codes are matched case-insensitively.
func New(countries map[string]string, genres map[int]string, languages []string) *Tables {
	t := &Tables{
		countries: make(map[string]string, len(countries)),
		genres:    make(map[int]string, len(genres)),
		languages: make(map[string]struct{}, len(languages)),
	}
	for code, name := range countries {
		t.countries[strings.ToUpper(code)] = name
	}
	for id, name := range genres {
		t.genres[id] = name
	}
	for _, lang := range languages {
		t.languages[strings.ToLower(lang)] = struct{}{}
	}
	return t
}

// Country returns the display name for an ISO 3166-1 code.
func (t *Tables) Country(code string) (string, bool) {
	name, ok := t.countries[strings.ToUpper(strings.TrimSpace(code))]
	return name, ok
}

// Genre returns the display name for a TMDB genre id.
func (t *Tables) Genre(id int) (string, bool) {
	name, ok := t.genres[id]
	return name, ok
}

// AllowsLanguage reports whether an original-language code is on the allow-list.
func (t *Tables) AllowsLanguage(code string) bool {
	_, ok := t.languages[strings.ToLower(strings.TrimSpace(code))]
	return ok
}

// Languages returns the allow-listed language codes.
func (t *Tables) Languages() []string {
	out := make([]string, 0, len(t.languages))
	for lang := range t.languages {
		out = append(out, lang)
	}
	return out
}
