// Package domain defines the movie record, payload and query types shared by
// the cinesearch engine, plus the validation gate used at pipeline entry points.
package domain

// RawMovie is one row of the source movies dataset, joined with its credits
// row when a credits file is supplied. JSON list columns are kept verbatim.
type RawMovie struct {
	ID          int64
	HasID       bool
	Title       string
	Overview    string
	Genres      string
	Keywords    string
	Cast        string
	VoteAverage *float64 // nil when the source cell is null or not numeric
	ReleaseDate string
}

// Movie is a RawMovie with its JSON list fields flattened to names.
type Movie struct {
	RawMovie
	GenreNames   []string
	KeywordNames []string
	Actors       []string
	Characters   []string
	// CastNames is Actors followed by Characters with empty names dropped.
	CastNames []string
}

// Payload is the display metadata stored next to each vector.
type Payload struct {
	Title       string   `json:"title"`
	Description string   `json:"description"`
	Genres      []string `json:"genres"`
	Rating      float64  `json:"rating"`
	// ReleaseDate is nil when the movie has no date. It is never an empty string.
	ReleaseDate *string `json:"release_date"`
}

// HasReleaseDate reports whether the payload carries a usable date.
func (p Payload) HasReleaseDate() bool {
	return p.ReleaseDate != nil && *p.ReleaseDate != ""
}

// IDPolicy selects how storage point identifiers are assigned.
type IDPolicy string

const (
	// IDOrdinal uses the row position in the ingested dataset.
	IDOrdinal IDPolicy = "ordinal"
	// IDExternal uses the dataset's own numeric id, so re-ingestion
	// overwrites points instead of shifting them.
	IDExternal IDPolicy = "external"
)

// ValidIDPolicies is the set of recognised identifier policies.
var ValidIDPolicies = map[IDPolicy]bool{
	IDOrdinal:  true,
	IDExternal: true,
}
