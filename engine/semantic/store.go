// Package semantic owns every Qdrant operation: collection lifecycle, point
// upserts and similarity search over the movie collection.
package semantic

import (
	"context"
	"errors"
	"fmt"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// ErrInvalidDimension is returned for a collection size below one.
var ErrInvalidDimension = errors.New("semantic: vector dimension must be positive")

// PointsAPI is the subset of pb.PointsClient used by VectorStore.
type PointsAPI interface {
	Upsert(ctx context.Context, in *pb.UpsertPoints, opts ...grpc.CallOption) (*pb.PointsOperationResponse, error)
	Search(ctx context.Context, in *pb.SearchPoints, opts ...grpc.CallOption) (*pb.SearchResponse, error)
	Count(ctx context.Context, in *pb.CountPoints, opts ...grpc.CallOption) (*pb.CountResponse, error)
}

// CollectionsAPI is the subset of pb.CollectionsClient used by VectorStore.
type CollectionsAPI interface {
	CollectionExists(ctx context.Context, in *pb.CollectionExistsRequest, opts ...grpc.CallOption) (*pb.CollectionExistsResponse, error)
	Create(ctx context.Context, in *pb.CreateCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
	Delete(ctx context.Context, in *pb.DeleteCollection, opts ...grpc.CallOption) (*pb.CollectionOperationResponse, error)
}

// HealthAPI is the subset of pb.QdrantClient used by VectorStore.
type HealthAPI interface {
	HealthCheck(ctx context.Context, in *pb.HealthCheckRequest, opts ...grpc.CallOption) (*pb.HealthCheckReply, error)
}

// VectorStore is the sole owner of all Qdrant operations for one collection.
type VectorStore struct {
	conn        *grpc.ClientConn
	points      PointsAPI
	collections CollectionsAPI
	health      HealthAPI
	collection  string
}

// New creates a VectorStore connected to Qdrant at the given gRPC address.
func New(addr string, collection string) (*VectorStore, error) {
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("semantic: dial qdrant %s: %w", addr, err)
	}
	return &VectorStore{
		conn:        conn,
		points:      pb.NewPointsClient(conn),
		collections: pb.NewCollectionsClient(conn),
		health:      pb.NewQdrantClient(conn),
		collection:  collection,
	}, nil
}

// NewWithClients builds a VectorStore over existing clients. health may be nil.
func NewWithClients(points PointsAPI, collections CollectionsAPI, health HealthAPI, collection string) *VectorStore {
	return &VectorStore{
		points:      points,
		collections: collections,
		health:      health,
		collection:  collection,
	}
}

// Collection returns the collection name.
func (v *VectorStore) Collection() string { return v.collection }

// Close closes the underlying gRPC connection.
func (v *VectorStore) Close() error {
	if v.conn == nil {
		return nil
	}
	return v.conn.Close()
}

// Health returns the server version.
func (v *VectorStore) Health(ctx context.Context) (string, error) {
	if v.health == nil {
		return "", errors.New("semantic: health: no client")
	}
	resp, err := v.health.HealthCheck(ctx, &pb.HealthCheckRequest{})
	if err != nil {
		return "", fmt.Errorf("semantic: health: %w", err)
	}
	return resp.GetVersion(), nil
}

// CollectionExists reports whether the collection exists.
func (v *VectorStore) CollectionExists(ctx context.Context) (bool, error) {
	resp, err := v.collections.CollectionExists(ctx, &pb.CollectionExistsRequest{CollectionName: v.collection})
	if err != nil {
		return false, fmt.Errorf("semantic: collection exists %s: %w", v.collection, err)
	}
	return resp.GetResult().GetExists(), nil
}

// CreateCollection creates the collection with cosine distance over dims-sized vectors.
func (v *VectorStore) CreateCollection(ctx context.Context, dims int) error {
	if dims < 1 {
		return ErrInvalidDimension
	}
	_, err := v.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(dims),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("semantic: create collection %s: %w", v.collection, err)
	}
	return nil
}

// EnsureCollection creates the collection if it doesn't exist. It reports
// whether a new collection was created.
func (v *VectorStore) EnsureCollection(ctx context.Context, dims int) (bool, error) {
	exists, err := v.CollectionExists(ctx)
	if err != nil {
		return false, err
	}
	if exists {
		return false, nil
	}
	if err := v.CreateCollection(ctx, dims); err != nil {
		return false, err
	}
	return true, nil
}

// RecreateCollection drops the collection if present and creates it empty.
func (v *VectorStore) RecreateCollection(ctx context.Context, dims int) error {
	if dims < 1 {
		return ErrInvalidDimension
	}
	exists, err := v.CollectionExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		if err := v.DeleteCollection(ctx); err != nil {
			return err
		}
	}
	return v.CreateCollection(ctx, dims)
}

// DeleteCollection deletes the collection.
func (v *VectorStore) DeleteCollection(ctx context.Context) error {
	_, err := v.collections.Delete(ctx, &pb.DeleteCollection{
		CollectionName: v.collection,
	})
	if err != nil {
		return fmt.Errorf("semantic: delete collection %s: %w", v.collection, err)
	}
	return nil
}

// Upsert writes points and waits until Qdrant has applied them. Points with
// an existing id are replaced.
func (v *VectorStore) Upsert(ctx context.Context, points []Point) error {
	if len(points) == 0 {
		return nil
	}

	structs := make([]*pb.PointStruct, len(points))
	for i, p := range points {
		structs[i] = &pb.PointStruct{
			Id: &pb.PointId{
				PointIdOptions: &pb.PointId_Num{Num: p.ID},
			},
			Vectors: &pb.Vectors{
				VectorsOptions: &pb.Vectors_Vector{
					Vector: &pb.Vector{Data: p.Vector},
				},
			},
			Payload: encodePayload(p.Payload),
		}
	}

	wait := true
	_, err := v.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: v.collection,
		Wait:           &wait,
		Points:         structs,
	})
	if err != nil {
		return fmt.Errorf("semantic: upsert %d points: %w", len(points), err)
	}
	return nil
}

// Search returns the limit nearest points to vector, best first, with payloads.
func (v *VectorStore) Search(ctx context.Context, vector []float32, limit int) ([]Hit, error) {
	if limit < 1 {
		return []Hit{}, nil
	}
	resp, err := v.points.Search(ctx, &pb.SearchPoints{
		CollectionName: v.collection,
		Vector:         vector,
		Limit:          uint64(limit),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("semantic: search: %w", err)
	}

	hits := make([]Hit, len(resp.GetResult()))
	for i, r := range resp.GetResult() {
		hits[i] = Hit{
			ID:      r.GetId().GetNum(),
			Score:   r.GetScore(),
			Payload: decodePayload(r.GetPayload()),
		}
	}
	return hits, nil
}

// Count returns the exact number of points in the collection.
func (v *VectorStore) Count(ctx context.Context) (uint64, error) {
	exact := true
	resp, err := v.points.Count(ctx, &pb.CountPoints{
		CollectionName: v.collection,
		Exact:          &exact,
	})
	if err != nil {
		return 0, fmt.Errorf("semantic: count %s: %w", v.collection, err)
	}
	return resp.GetResult().GetCount(), nil
}
