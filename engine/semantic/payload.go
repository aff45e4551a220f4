package semantic

import (
	pb "github.com/qdrant/go-client/qdrant"

	"github.com/WessleyAI/cinesearch/engine/domain"
)

// Payload keys stored with every point.
const (
	KeyTitle       = "title"
	KeyDescription = "description"
	KeyGenres      = "genres"
	KeyRating      = "rating"
	KeyReleaseDate = "release_date"
)

func stringValue(s string) *pb.Value {
	return &pb.Value{Kind: &pb.Value_StringValue{StringValue: s}}
}

func encodePayload(p domain.Payload) map[string]*pb.Value {
	genres := make([]*pb.Value, len(p.Genres))
	for i, g := range p.Genres {
		genres[i] = stringValue(g)
	}
	release := &pb.Value{Kind: &pb.Value_NullValue{NullValue: pb.NullValue_NULL_VALUE}}
	if p.ReleaseDate != nil {
		release = stringValue(*p.ReleaseDate)
	}
	return map[string]*pb.Value{
		KeyTitle:       stringValue(p.Title),
		KeyDescription: stringValue(p.Description),
		KeyGenres:      {Kind: &pb.Value_ListValue{ListValue: &pb.ListValue{Values: genres}}},
		KeyRating:      {Kind: &pb.Value_DoubleValue{DoubleValue: p.Rating}},
		KeyReleaseDate: release,
	}
}

// decodePayload reads whatever fields are present. Missing or mistyped
// fields keep their zero value; genres is never nil.
func decodePayload(m map[string]*pb.Value) domain.Payload {
	p := domain.Payload{
		Title:       m[KeyTitle].GetStringValue(),
		Description: m[KeyDescription].GetStringValue(),
		Genres:      []string{},
	}
	for _, v := range m[KeyGenres].GetListValue().GetValues() {
		if s, ok := v.GetKind().(*pb.Value_StringValue); ok {
			p.Genres = append(p.Genres, s.StringValue)
		}
	}
	switch r := m[KeyRating].GetKind().(type) {
	case *pb.Value_DoubleValue:
		p.Rating = r.DoubleValue
	case *pb.Value_IntegerValue:
		p.Rating = float64(r.IntegerValue)
	}
	if s, ok := m[KeyReleaseDate].GetKind().(*pb.Value_StringValue); ok {
		d := s.StringValue
		p.ReleaseDate = &d
	}
	return p
}
