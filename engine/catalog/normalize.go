package catalog

import (
	"encoding/json"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

// DefaultCastLimit is how many billed cast entries contribute names.
const DefaultCastLimit = 10

// ParseNames decodes a JSON list of objects and returns their "name" values in
// source order. Malformed JSON, a non-list value, a non-object element, or a
// missing or non-string name yields an empty list.
func ParseNames(raw string) []string {
	items, ok := decodeObjects(raw)
	if !ok {
		return []string{}
	}
	names := make([]string, 0, len(items))
	for _, item := range items {
		name, ok := stringField(item, "name")
		if !ok {
			return []string{}
		}
		names = append(names, name)
	}
	return names
}

// ParseCast returns the names and character names of the first limit cast
// entries, actors first, with empty strings dropped. Any decoding failure
// yields an empty list.
func ParseCast(raw string, limit int) []string {
	actors, characters, ok := parseCastParts(raw, limit)
	if !ok {
		return []string{}
	}
	return joinNonEmpty(actors, characters)
}

// parseCastParts splits the first limit cast entries into actor and
// character names. Null values decode as empty strings.
func parseCastParts(raw string, limit int) (actors, characters []string, ok bool) {
	items, ok := decodeObjects(raw)
	if !ok {
		return nil, nil, false
	}
	if limit <= 0 {
		limit = DefaultCastLimit
	}
	if len(items) > limit {
		items = items[:limit]
	}
	actors = make([]string, 0, len(items))
	characters = make([]string, 0, len(items))
	for _, item := range items {
		name, ok := nullableStringField(item, "name")
		if !ok {
			return nil, nil, false
		}
		character, ok := nullableStringField(item, "character")
		if !ok {
			return nil, nil, false
		}
		actors = append(actors, name)
		characters = append(characters, character)
	}
	return actors, characters, true
}

// Normalize flattens the JSON list fields of m.
func Normalize(m domain.RawMovie, castLimit int) domain.Movie {
	out := domain.Movie{
		RawMovie:     m,
		GenreNames:   ParseNames(m.Genres),
		KeywordNames: ParseNames(m.Keywords),
		Actors:       []string{},
		Characters:   []string{},
		CastNames:    []string{},
	}
	if actors, characters, ok := parseCastParts(m.Cast, castLimit); ok {
		out.Actors = dropEmpty(actors)
		out.Characters = dropEmpty(characters)
		out.CastNames = joinNonEmpty(actors, characters)
	}
	return out
}

func decodeObjects(raw string) ([]map[string]json.RawMessage, bool) {
	if raw == "" {
		return nil, false
	}
	var items []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(raw), &items); err != nil {
		return nil, false
	}
	return items, true
}

// stringField requires key to be present and hold a JSON string.
func stringField(obj map[string]json.RawMessage, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil || s == nil {
		return "", false
	}
	return *s, true
}

// nullableStringField requires key to be present; null reads as "".
func nullableStringField(obj map[string]json.RawMessage, key string) (string, bool) {
	v, ok := obj[key]
	if !ok {
		return "", false
	}
	var s *string
	if err := json.Unmarshal(v, &s); err != nil {
		return "", false
	}
	if s == nil {
		return "", true
	}
	return *s, true
}

func joinNonEmpty(lists ...[]string) []string {
	out := []string{}
	for _, l := range lists {
		out = append(out, dropEmpty(l)...)
	}
	return out
}

func dropEmpty(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
