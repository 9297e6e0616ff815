package marvel

import (
	"strings"
	"time"
)

// Image variants served by the Marvel image CDN.
// See https://developer.marvel.com/documentation/images
const (
	VariantPortraitSmall       = "portrait_small"
	VariantPortraitMedium      = "portrait_medium"
	VariantPortraitXLarge      = "portrait_xlarge"
	VariantStandardMedium      = "standard_medium"
	VariantStandardLarge       = "standard_large"
	VariantLandscapeMedium     = "landscape_medium"
	VariantLandscapeIncredible = "landscape_incredible"
)

// Character is a single entry of the character list.
type Character struct {
	ID          int       `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Thumbnail   Image     `json:"thumbnail"`
	ResourceURI string    `json:"resourceURI,omitempty"`
	Modified    Timestamp `json:"modified"`
}

// Image references a picture on the Marvel CDN.
type Image struct {
	Path      string `json:"path"`
	Extension string `json:"extension"`
}

// URL returns the full-size image URL.
func (i Image) URL() string {
	if i.Path == "" {
		return ""
	}
	return i.Path + "." + strings.TrimPrefix(i.Extension, ".")
}

// VariantURL returns the URL of a sized variant, e.g. VariantPortraitXLarge.
func (i Image) VariantURL(variant string) string {
	if i.Path == "" {
		return ""
	}
	if variant == "" {
		return i.URL()
	}
	return strings.TrimSuffix(i.Path, "/") + "/" + variant + "." + strings.TrimPrefix(i.Extension, ".")
}

// Timestamp decodes the Marvel "modified" field, which uses a numeric
// zone offset without a colon ("2014-04-29T14:18:17-0400").
type Timestamp struct {
	time.Time
}

const marvelTimeLayout = "2006-01-02T15:04:05-0700"

// UnmarshalJSON implements json.Unmarshaler.
// Unparseable values (the API sometimes sends "-0001-11-30T00:00:00-0500")
// decode to the zero time instead of failing the whole page.
func (t *Timestamp) UnmarshalJSON(data []byte) error {
	s := strings.Trim(string(data), `"`)
	if s == "" || s == "null" {
		t.Time = time.Time{}
		return nil
	}
	parsed, err := time.Parse(marvelTimeLayout, s)
	if err != nil {
		if parsed, err = time.Parse(time.RFC3339, s); err != nil {
			t.Time = time.Time{}
			return nil
		}
	}
	t.Time = parsed
	return nil
}

// MarshalJSON implements json.Marshaler.
func (t Timestamp) MarshalJSON() ([]byte, error) {
	if t.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + t.Format(marvelTimeLayout) + `"`), nil
}
