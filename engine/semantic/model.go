package semantic

import "github.com/WessleyAI/cinesearch/engine/domain"

// Point is one vector and its payload, addressed by a numeric id.
type Point struct {
	ID      uint64
	Vector  []float32
	Payload domain.Payload
}

// Hit is a single similarity search result.
type Hit struct {
	ID      uint64         `json:"id"`
	Score   float32        `json:"score"`
	Payload domain.Payload `json:"payload"`
}
