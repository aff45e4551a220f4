// Package graph mirrors the movie catalog into Neo4j: movies, their genres
// and the people credited in them.
package graph

import (
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j/dbtype"

	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/pkg/fn"
)

// Node labels and relationship types.
const (
	LabelMovie  = "Movie"
	LabelGenre  = "Genre"
	LabelPerson = "Person"
	RelInGenre  = "IN_GENRE"
	RelAppears  = "APPEARS_IN"
)

// MovieNode is a Movie node as stored in the graph.
type MovieNode struct {
	ID          int64   `json:"id"`
	Title       string  `json:"title"`
	Rating      float64 `json:"rating"`
	ReleaseDate string  `json:"release_date,omitempty"`
}

// GenreNode is a Genre node, keyed by name.
type GenreNode struct {
	Name string `json:"name"`
}

// movieRow is the UNWIND parameter for one movie. Repeated genre or actor
// names collapse to one relationship.
func movieRow(m domain.Movie) map[string]any {
	row := map[string]any{
		"id":           m.ID,
		"title":        m.Title,
		"rating":       0.0,
		"release_date": nil,
		"genres":       fn.Unique(m.GenreNames),
		"actors":       fn.Unique(m.Actors),
	}
	if m.VoteAverage != nil {
		row["rating"] = *m.VoteAverage
	}
	if m.ReleaseDate != "" {
		row["release_date"] = m.ReleaseDate
	}
	return row
}

func movieFromRecord(rec *neo4j.Record) (MovieNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return MovieNode{}, fmt.Errorf("graph: decode movie: %w", err)
	}
	return movieFromProps(node.Props), nil
}

func genreFromRecord(rec *neo4j.Record) (GenreNode, error) {
	node, _, err := neo4j.GetRecordValue[dbtype.Node](rec, "n")
	if err != nil {
		return GenreNode{}, fmt.Errorf("graph: decode genre: %w", err)
	}
	return GenreNode{Name: strProp(node.Props, "name")}, nil
}

func movieFromProps(props map[string]any) MovieNode {
	return MovieNode{
		ID:          intProp(props, "id"),
		Title:       strProp(props, "title"),
		Rating:      floatProp(props, "rating"),
		ReleaseDate: strProp(props, "release_date"),
	}
}

func strProp(props map[string]any, key string) string {
	if s, ok := props[key].(string); ok {
		return s
	}
	return ""
}

func intProp(props map[string]any, key string) int64 {
	switch v := props[key].(type) {
	case int64:
		return v
	case float64:
		return int64(v)
	}
	return 0
}

func floatProp(props map[string]any, key string) float64 {
	switch v := props[key].(type) {
	case float64:
		return v
	case int64:
		return float64(v)
	}
	return 0
}
