package ingest

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

// Field names a movie attribute that can contribute to the search document.
type Field string

const (
	FieldTitle    Field = "title"
	FieldOverview Field = "overview"
	FieldGenres   Field = "genres"
	FieldKeywords Field = "keywords"
	FieldCast     Field = "cast"
)

var knownFields = map[Field]bool{
	FieldTitle:    true,
	FieldOverview: true,
	FieldGenres:   true,
	FieldKeywords: true,
	FieldCast:     true,
}

// FieldWeight emits Field Repeat times.
type FieldWeight struct {
	Field  Field
	Repeat int
}

// Weighting is the ordered list of fields that make up a search document.
type Weighting []FieldWeight

// Document separator between emitted field values.
const docSeparator = ". "

var (
	// Plain is title, overview, genres, keywords once each.
	Plain = Weighting{
		{FieldTitle, 1},
		{FieldOverview, 1},
		{FieldGenres, 1},
		{FieldKeywords, 1},
	}
	// Boosted doubles title and cast ahead of the plain fields.
	Boosted = Weighting{
		{FieldTitle, 2},
		{FieldCast, 2},
		{FieldOverview, 1},
		{FieldGenres, 1},
		{FieldKeywords, 1},
	}
)

// Presets maps preset names to weightings.
var Presets = map[string]Weighting{
	"plain":   Plain,
	"boosted": Boosted,
}

// ParseWeighting accepts a preset name or a comma separated list such as
// "title:2,cast:2,overview,genres,keywords". A field without a count repeats once.
func ParseWeighting(s string) (Weighting, error) {
	s = strings.TrimSpace(s)
	if w, ok := Presets[strings.ToLower(s)]; ok {
		return w, nil
	}
	if s == "" {
		return nil, domain.NewValidationError("weighting", s, domain.ErrInvalidWeighting)
	}
	var w Weighting
	for _, part := range strings.Split(s, ",") {
		name, count, hasCount := strings.Cut(strings.TrimSpace(part), ":")
		fw := FieldWeight{Field: Field(strings.ToLower(strings.TrimSpace(name))), Repeat: 1}
		if hasCount {
			n, err := strconv.Atoi(strings.TrimSpace(count))
			if err != nil {
				return nil, domain.NewValidationError("weighting", part, domain.ErrInvalidWeighting)
			}
			fw.Repeat = n
		}
		w = append(w, fw)
	}
	if err := w.Validate(); err != nil {
		return nil, err
	}
	return w, nil
}

// Validate rejects unknown fields and repeat counts below one.
func (w Weighting) Validate() error {
	if len(w) == 0 {
		return domain.NewValidationError("weighting", "", domain.ErrInvalidWeighting)
	}
	for _, fw := range w {
		if !knownFields[fw.Field] {
			return domain.NewValidationError("weighting.field", string(fw.Field), domain.ErrInvalidWeighting)
		}
		if fw.Repeat < 1 {
			return domain.NewValidationError("weighting.repeat", strconv.Itoa(fw.Repeat), domain.ErrInvalidWeighting)
		}
	}
	return nil
}

// String renders w in the form ParseWeighting accepts, with explicit counts.
func (w Weighting) String() string {
	parts := make([]string, len(w))
	for i, fw := range w {
		parts[i] = fmt.Sprintf("%s:%d", fw.Field, fw.Repeat)
	}
	return strings.Join(parts, ",")
}

// UsesCast reports whether the cast field contributes to documents.
func (w Weighting) UsesCast() bool {
	for _, fw := range w {
		if fw.Field == FieldCast {
			return true
		}
	}
	return false
}

// Compose builds the search document for m. List fields are joined by a
// single space; every emitted value, empty or not, is joined by ". ".
func Compose(m domain.Movie, w Weighting) string {
	var parts []string
	for _, fw := range w {
		v := fieldValue(m, fw.Field)
		for range fw.Repeat {
			parts = append(parts, v)
		}
	}
	return strings.Join(parts, docSeparator)
}

func fieldValue(m domain.Movie, f Field) string {
	switch f {
	case FieldTitle:
		return m.Title
	case FieldOverview:
		return m.Overview
	case FieldGenres:
		return strings.Join(m.GenreNames, " ")
	case FieldKeywords:
		return strings.Join(m.KeywordNames, " ")
	case FieldCast:
		return strings.Join(m.CastNames, " ")
	default:
		return ""
	}
}
