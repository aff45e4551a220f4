package catalog

import (
	"errors"
	"fmt"
	"io"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

// Credits CSV column names.
const (
	colMovieID = "movie_id"
)

// ReadCredits decodes a credits CSV into raw cast JSON keyed by movie id.
// Rows with an unparseable movie_id are skipped; a repeated id keeps the
// last row.
func ReadCredits(r io.Reader) (map[int64]string, error) {
	cr := newReader(r)
	h, err := readHeader(cr)
	if err != nil {
		return nil, err
	}
	if err := h.require(colMovieID, colCast); err != nil {
		return nil, err
	}

	credits := make(map[int64]string)
	for line := 2; ; line++ {
		rec, err := cr.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		id, ok := parseID(h.get(rec, colMovieID))
		if !ok {
			continue
		}
		credits[id] = h.get(rec, colCast)
	}
	return credits, nil
}

// Join keeps the movies that have a credits row, in movies order, with Cast
// taken from the credits row.
func Join(movies []domain.RawMovie, credits map[int64]string) []domain.RawMovie {
	out := make([]domain.RawMovie, 0, len(movies))
	for _, m := range movies {
		if !m.HasID {
			continue
		}
		cast, ok := credits[m.ID]
		if !ok {
			continue
		}
		m.Cast = cast
		out = append(out, m)
	}
	return out
}
