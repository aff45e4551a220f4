// Package catalog reads the movie dataset: the movies CSV, the optional
// credits CSV joined on movie id, and the JSON list columns inside them.
package catalog

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

// Movie CSV column names.
const (
	colID          = "id"
	colTitle       = "title"
	colOverview    = "overview"
	colGenres      = "genres"
	colKeywords    = "keywords"
	colCast        = "cast"
	colVoteAverage = "vote_average"
	colReleaseDate = "release_date"
)

// Source names the files that make up one dataset.
type Source struct {
	MoviesPath  string `yaml:"movies"`
	CreditsPath string `yaml:"credits"`
}

// Paths returns the non-empty file paths of s in a fixed order.
func (s Source) Paths() []string {
	paths := []string{s.MoviesPath}
	if s.CreditsPath != "" {
		paths = append(paths, s.CreditsPath)
	}
	return paths
}

// Load reads the movies file and, when configured, inner-joins the credits file.
func Load(src Source) ([]domain.RawMovie, error) {
	movies, err := readFile(src.MoviesPath, ReadMovies)
	if err != nil {
		return nil, err
	}
	if src.CreditsPath == "" {
		return movies, nil
	}
	credits, err := readFile(src.CreditsPath, ReadCredits)
	if err != nil {
		return nil, err
	}
	return Join(movies, credits), nil
}

func readFile[T any](path string, read func(io.Reader) (T, error)) (T, error) {
	var zero T
	f, err := os.Open(path)
	if err != nil {
		return zero, fmt.Errorf("catalog: open %s: %w", path, err)
	}
	defer f.Close()
	v, err := read(f)
	if err != nil {
		return zero, fmt.Errorf("catalog: read %s: %w", path, err)
	}
	return v, nil
}

// header maps column names to record indexes.
type header map[string]int

func readHeader(r *csv.Reader) (header, error) {
	cols, err := r.Read()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, fmt.Errorf("empty file")
		}
		return nil, err
	}
	h := make(header, len(cols))
	for i, c := range cols {
		if i == 0 {
			c = strings.TrimPrefix(c, "\ufeff")
		}
		h[strings.TrimSpace(c)] = i
	}
	return h, nil
}

func (h header) require(names ...string) error {
	for _, n := range names {
		if _, ok := h[n]; !ok {
			return domain.NewValidationError("column", n, domain.ErrMissingColumn)
		}
	}
	return nil
}

// get returns the named cell, or "" when the column is absent.
func (h header) get(rec []string, name string) string {
	i, ok := h[name]
	if !ok || i >= len(rec) {
		return ""
	}
	return rec[i]
}

func newReader(r io.Reader) *csv.Reader {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	return cr
}

// ReadMovies decodes a movies CSV. Only the title column is required.
func ReadMovies(r io.Reader) ([]domain.RawMovie, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require(colTitle); err != nil {
		return nil, err
	}

	var movies []domain.RawMovie
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		m := domain.RawMovie{
			Title:       h.get(rec, colTitle),
			Overview:    h.get(rec, colOverview),
			Genres:      h.get(rec, colGenres),
			Keywords:    h.get(rec, colKeywords),
			Cast:        h.get(rec, colCast),
			VoteAverage: parseRating(h.get(rec, colVoteAverage)),
			ReleaseDate: strings.TrimSpace(h.get(rec, colReleaseDate)),
		}
		m.ID, m.HasID = parseID(h.get(rec, colID))
		movies = append(movies, m)
	}
	return movies, nil
}

// parseID accepts integers and integral floats such as "42.0".
func parseID(s string) (int64, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, false
	}
	if id, err := strconv.ParseInt(s, 10, 64); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) || f != math.Trunc(f) {
		return 0, false
	}
	return int64(f), true
}

// parseRating returns nil for empty, non-numeric and NaN cells.
func parseRating(s string) *float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return nil
	}
	return &f
}
