package mind

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/crewdesk/crewdesk/internal/team"
)

// VectorConfig holds connection settings for a Qdrant instance.
type VectorConfig struct {
	Host string `json:"host"`
	Port int    `json:"port"`
}

// Index serves semantic search over mind entries, one Qdrant collection
// per workspace.
type Index struct {
	conn        *grpc.ClientConn
	collections pb.CollectionsClient
	points      pb.PointsClient
	embedder    Embedder
}

// NewIndex dials the Qdrant gRPC endpoint and returns a ready Index.
func NewIndex(cfg VectorConfig, embedder Embedder) (*Index, error) {
	addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.Port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect %s: %w", addr, err)
	}
	return &Index{
		conn:        conn,
		collections: pb.NewCollectionsClient(conn),
		points:      pb.NewPointsClient(conn),
		embedder:    embedder,
	}, nil
}

func collectionName(workspaceID string) string {
	return "mind-" + workspaceID
}

// ensureCollection creates the workspace's collection if absent.
func (ix *Index) ensureCollection(ctx context.Context, workspaceID string) error {
	name := collectionName(workspaceID)
	if _, err := ix.collections.Get(ctx, &pb.GetCollectionInfoRequest{CollectionName: name}); err == nil {
		return nil
	}
	_, err := ix.collections.Create(ctx, &pb.CreateCollection{
		CollectionName: name,
		VectorsConfig: &pb.VectorsConfig{
			Config: &pb.VectorsConfig_Params{
				Params: &pb.VectorParams{
					Size:     uint64(ix.embedder.Dimension()),
					Distance: pb.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create collection %s: %w", name, err)
	}
	return nil
}

// IndexEntry embeds a mind entry and upserts it into the workspace's
// collection.
func (ix *Index) IndexEntry(ctx context.Context, workspaceID string, e team.MindEntry) error {
	if err := ix.ensureCollection(ctx, workspaceID); err != nil {
		return err
	}

	vectors, err := ix.embedder.Embed(ctx, []string{e.Title + "\n" + e.Content})
	if err != nil {
		return fmt.Errorf("embed mind entry %s: %w", e.ID, err)
	}

	id := e.ID
	if id == "" {
		id = uuid.New().String()
	}
	_, err = ix.points.Upsert(ctx, &pb.UpsertPoints{
		CollectionName: collectionName(workspaceID),
		Points: []*pb.PointStruct{
			{
				Id:      &pb.PointId{PointIdOptions: &pb.PointId_Uuid{Uuid: id}},
				Vectors: &pb.Vectors{VectorsOptions: &pb.Vectors_Vector{Vector: &pb.Vector{Data: vectors[0]}}},
				Payload: map[string]*pb.Value{
					"title":   {Kind: &pb.Value_StringValue{StringValue: e.Title}},
					"content": {Kind: &pb.Value_StringValue{StringValue: e.Content}},
					"source":  {Kind: &pb.Value_StringValue{StringValue: e.Source}},
				},
			},
		},
	})
	if err != nil {
		return fmt.Errorf("upsert mind entry %s: %w", id, err)
	}
	return nil
}

// Search embeds the query and returns the workspace's closest mind
// entries, best match first.
func (ix *Index) Search(ctx context.Context, workspaceID, query string, topK int) ([]team.MindEntry, error) {
	vectors, err := ix.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("embed query: %w", err)
	}

	resp, err := ix.points.Search(ctx, &pb.SearchPoints{
		CollectionName: collectionName(workspaceID),
		Vector:         vectors[0],
		Limit:          uint64(topK),
		WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
	})
	if err != nil {
		return nil, fmt.Errorf("search mind for %s: %w", workspaceID, err)
	}

	entries := make([]team.MindEntry, 0, len(resp.Result))
	for _, r := range resp.Result {
		e := team.MindEntry{ID: r.Id.GetUuid()}
		if v, ok := r.Payload["title"]; ok {
			e.Title = v.GetStringValue()
		}
		if v, ok := r.Payload["content"]; ok {
			e.Content = v.GetStringValue()
		}
		if v, ok := r.Payload["source"]; ok {
			e.Source = v.GetStringValue()
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Close tears down the underlying gRPC connection.
func (ix *Index) Close() error {
	return ix.conn.Close()
}
