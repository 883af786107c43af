// Package qdrant implements store.Reader by scrolling a Qdrant collection.
package qdrant

import (
	"context"
	"fmt"
	"sort"

	pb "github.com/qdrant/go-client/qdrant"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"

	"github.com/efebarandurmaz/recall/internal/store"
)

const defaultPageSize = 256

// Payload field names written by the upstream indexing job.
const (
	FieldKey       = "error_id"
	FieldTitle     = "error_title"
	FieldMetadata  = "error_metadata"
	FieldModelName = "model_name"
	FieldDimension = "embedding_dim"
)

// Store reads every point of a collection.
type Store struct {
	conn       *grpc.ClientConn
	points     pb.PointsClient
	collection string
	pageSize   uint32
}

// New dials Qdrant's gRPC endpoint.
func New(ctx context.Context, host string, port int, collection string) (*Store, error) {
	addr := fmt.Sprintf("%s:%d", host, port)
	conn, err := grpc.NewClient(addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	if err != nil {
		return nil, fmt.Errorf("qdrant connect: %w", err)
	}
	s := NewWithClient(pb.NewPointsClient(conn), collection)
	s.conn = conn
	return s, nil
}

// NewWithClient builds a Store on an existing points client.
func NewWithClient(points pb.PointsClient, collection string) *Store {
	return &Store{points: points, collection: collection, pageSize: defaultPageSize}
}

// ReadAll scrolls the whole collection and returns rows ordered by key.
// A missing collection is reported as store.ErrSchemaNotReady.
func (s *Store) ReadAll(ctx context.Context) ([]store.Row, error) {
	var (
		out    []store.Row
		offset *pb.PointId
	)
	limit := s.pageSize
	for {
		resp, err := s.points.Scroll(ctx, &pb.ScrollPoints{
			CollectionName: s.collection,
			Offset:         offset,
			Limit:          &limit,
			WithPayload:    &pb.WithPayloadSelector{SelectorOptions: &pb.WithPayloadSelector_Enable{Enable: true}},
			WithVectors:    &pb.WithVectorsSelector{SelectorOptions: &pb.WithVectorsSelector_Enable{Enable: true}},
		})
		if err != nil {
			if status.Code(err) == codes.NotFound {
				return nil, fmt.Errorf("%w: collection %s: %v", store.ErrSchemaNotReady, s.collection, err)
			}
			return nil, fmt.Errorf("qdrant scroll %s: %w", s.collection, err)
		}
		for _, pt := range resp.GetResult() {
			row, err := pointToRow(pt)
			if err != nil {
				return nil, err
			}
			out = append(out, row)
		}
		offset = resp.GetNextPageOffset()
		if offset == nil {
			break
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

// Close closes the gRPC connection when Store owns it.
func (s *Store) Close() error {
	if s.conn == nil {
		return nil
	}
	return s.conn.Close()
}

func pointToRow(pt *pb.RetrievedPoint) (store.Row, error) {
	payload := pt.GetPayload()
	key := payload[FieldKey].GetStringValue()
	if key == "" {
		key = pointIDString(pt.GetId())
	}
	data := pt.GetVectors().GetVector().GetData()
	if len(data) == 0 {
		return store.Row{}, fmt.Errorf("qdrant: point %s: %w: no dense vector", key, store.ErrMalformedVector)
	}

	metadata := map[string]any{}
	if m, ok := valueToAny(payload[FieldMetadata]).(map[string]any); ok {
		metadata = m
	}

	return store.Row{
		Key:       key,
		Vector:    store.NativeVector32(data),
		Title:     payload[FieldTitle].GetStringValue(),
		Metadata:  metadata,
		ModelName: payload[FieldModelName].GetStringValue(),
		Dimension: int(payload[FieldDimension].GetIntegerValue()),
	}, nil
}

func pointIDString(id *pb.PointId) string {
	if id == nil {
		return ""
	}
	if u := id.GetUuid(); u != "" {
		return u
	}
	return fmt.Sprintf("%d", id.GetNum())
}

// valueToAny converts a Qdrant payload value into plain Go values.
func valueToAny(v *pb.Value) any {
	if v == nil {
		return nil
	}
	switch kind := v.GetKind().(type) {
	case *pb.Value_StringValue:
		return kind.StringValue
	case *pb.Value_IntegerValue:
		return kind.IntegerValue
	case *pb.Value_DoubleValue:
		return kind.DoubleValue
	case *pb.Value_BoolValue:
		return kind.BoolValue
	case *pb.Value_StructValue:
		out := make(map[string]any, len(kind.StructValue.GetFields()))
		for k, fv := range kind.StructValue.GetFields() {
			out[k] = valueToAny(fv)
		}
		return out
	case *pb.Value_ListValue:
		vals := kind.ListValue.GetValues()
		out := make([]any, len(vals))
		for i, lv := range vals {
			out[i] = valueToAny(lv)
		}
		return out
	default:
		return nil
	}
}

var _ store.Reader = (*Store)(nil)
