// Package catalog defines the artwork records served by the catalog API and
// the normalized form used by the rest of the client.
package catalog

import "errors"

// Defaults substituted for absent text fields.
const (
	DefaultPlaceOfOrigin = "Unknown"
	DefaultArtistDisplay = "Not Available"
	DefaultInscriptions  = "None"
)

// ErrEndOfCatalog is returned when a page lies beyond the last page of the
// catalog or the API answered with an empty data array.
var ErrEndOfCatalog = errors.New("end of catalog")

// Item is a normalized catalog artwork.
// Items are treated as immutable once fetched.
type Item struct {
	ID            int    `json:"id"`
	Title         string `json:"title"`
	PlaceOfOrigin string `json:"place_of_origin"`
	ArtistDisplay string `json:"artist_display"`
	Inscriptions  string `json:"inscriptions"`

	// DateStart and DateEnd stay nil when the API omits them.
	DateStart *int `json:"date_start"`
	DateEnd   *int `json:"date_end"`
}

// Record is a raw artwork as it comes from the /artworks endpoint.
type Record struct {
	ID            int     `json:"id"`
	Title         string  `json:"title"`
	PlaceOfOrigin *string `json:"place_of_origin,omitempty"`
	ArtistDisplay *string `json:"artist_display,omitempty"`
	Inscriptions  *string `json:"inscriptions,omitempty"`
	DateStart     *int    `json:"date_start,omitempty"`
	DateEnd       *int    `json:"date_end,omitempty"`
}

// Normalize maps a raw record into an Item. Missing or empty text fields
// take their defaults; dates are copied as-is.
func Normalize(r Record) Item {
	return Item{
		ID:            r.ID,
		Title:         r.Title,
		PlaceOfOrigin: orDefault(r.PlaceOfOrigin, DefaultPlaceOfOrigin),
		ArtistDisplay: orDefault(r.ArtistDisplay, DefaultArtistDisplay),
		Inscriptions:  orDefault(r.Inscriptions, DefaultInscriptions),
		DateStart:     copyInt(r.DateStart),
		DateEnd:       copyInt(r.DateEnd),
	}
}

// NormalizeAll maps records in order.
func NormalizeAll(records []Record) []Item {
	items := make([]Item, 0, len(records))
	for _, r := range records {
		items = append(items, Normalize(r))
	}
	return items
}

// IDs returns the identifiers of items, preserving order.
func IDs(items []Item) []int {
	ids := make([]int, 0, len(items))
	for _, it := range items {
		ids = append(ids, it.ID)
	}
	return ids
}

func orDefault(s *string, def string) string {
	if s == nil || *s == "" {
		return def
	}
	return *s
}

func copyInt(v *int) *int {
	if v == nil {
		return nil
	}
	c := *v
	return &c
}
