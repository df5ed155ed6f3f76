package locale

import "testing"

func TestCountryLookup(t *testing.T) {
	tables := Default()

	if name, ok := tables.Country("CN"); !ok || name != "中国" {
		t.Fatalf("Country(CN) = %q, %v", name, ok)
	}
	if name, ok := tables.Country(" jp "); !ok || name != "日本" {
		t.Fatalf("Country(jp) = %q, %v", name, ok)
	}
	if _, ok := tables.Country("XX"); ok {
		t.Fatal("expected XX to be unknown")
	}
}

func TestGenreLookup(t *testing.T) {
	tables := Default()

	if name, ok := tables.Genre(28); !ok || name != "动作" {
		t.Fatalf("Genre(28) = %q, %v", name, ok)
	}
	if name, ok := tables.Genre(10759); !ok || name != "动作与冒险" {
		t.Fatalf("Genre(10759) = %q, %v", name, ok)
	}
	if _, ok := tables.Genre(99999); ok {
		t.Fatal("expected 99999 to be unknown")
	}
}

func TestAllowsLanguage(t *testing.T) {
	tables := Default()
	for _, lang := range []string{"zh", "ja", "ko", "en", "fr", "EN"} {
		if !tables.AllowsLanguage(lang) {
			t.Fatalf("expected %q to be allowed", lang)
		}
	}
	for _, lang := range []string{"", "de", "hi", "zh-CN"} {
		if tables.AllowsLanguage(lang) {
			t.Fatalf("expected %q to be rejected", lang)
		}
	}
}

func TestNewCopiesInput(t *testing.T) {
	countries := map[string]string{"de": "德国"}
	tables := New(countries, nil, nil)
	countries["DE"] = "changed"

	if name, _ := tables.Country("DE"); name != "德国" {
		t.Fatalf("tables shared caller map: got %q", name)
	}
}
