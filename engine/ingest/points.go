package ingest

import (
	"github.com/WessleyAI/cinesearch/engine/domain"
	"github.com/WessleyAI/cinesearch/engine/semantic"
)

// NewPayload derives the stored display metadata of m.
func NewPayload(m domain.Movie) domain.Payload {
	p := domain.Payload{
		Title:       m.Title,
		Description: m.Overview,
		Genres:      m.GenreNames,
	}
	if p.Genres == nil {
		p.Genres = []string{}
	}
	if m.VoteAverage != nil {
		p.Rating = *m.VoteAverage
	}
	if m.ReleaseDate != "" {
		d := m.ReleaseDate
		p.ReleaseDate = &d
	}
	return p
}

// PointID picks the point id of m at row ordinal under policy.
func PointID(m domain.Movie, ordinal int, policy domain.IDPolicy) (uint64, error) {
	switch policy {
	case domain.IDOrdinal:
		if ordinal < 0 {
			return 0, domain.NewValidationError("ordinal", m.Title, domain.ErrNegativeID)
		}
		return uint64(ordinal), nil
	case domain.IDExternal:
		if err := domain.ValidateExternalID(m.RawMovie); err != nil {
			return 0, err
		}
		return uint64(m.ID), nil
	default:
		return 0, domain.ValidateIDPolicy(policy)
	}
}

// BuildPoint assembles the storage point for m.
func BuildPoint(m domain.Movie, ordinal int, vec []float32, policy domain.IDPolicy) (semantic.Point, error) {
	id, err := PointID(m, ordinal, policy)
	if err != nil {
		return semantic.Point{}, err
	}
	return semantic.Point{ID: id, Vector: vec, Payload: NewPayload(m)}, nil
}
