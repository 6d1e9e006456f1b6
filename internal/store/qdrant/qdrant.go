// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

// Package qdrant implements store.VectorStore on a remote Qdrant instance.
package qdrant

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	qd "github.com/qdrant/go-client/qdrant"

	"github.com/sigil-dev/ragbot/internal/store"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
)

// Payload keys reserved for the record itself; everything else is metadata.
const (
	payloadID       = "_id"
	payloadDocument = "_document"
)

const defaultPort = 6334

func init() {
	store.RegisterVectorBackend("qdrant", func(cfg store.StorageConfig, _ string) (store.VectorStore, error) {
		return New(context.Background(), cfg)
	})
}

// Compile-time interface check.
var _ store.VectorStore = (*VectorStore)(nil)

// VectorStore keeps one cosine collection in Qdrant. Record ids are mapped
// to deterministic UUIDv5 point ids and the original id is kept in the
// payload.
type VectorStore struct {
	client     *qd.Client
	collection string
	dimensions int
}

// New connects to Qdrant over gRPC and creates the collection if missing.
func New(ctx context.Context, cfg store.StorageConfig) (*VectorStore, error) {
	host := cfg.Qdrant.Host
	if host == "" {
		host = "localhost"
	}
	port := cfg.Qdrant.Port
	if port == 0 {
		port = defaultPort
	}

	client, err := qd.NewClient(&qd.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.Qdrant.APIKey,
		UseTLS: cfg.Qdrant.UseTLS,
	})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "connecting to qdrant",
			ragerr.Field("host", host), ragerr.Field("port", port))
	}

	v := &VectorStore{client: client, collection: cfg.Collection, dimensions: cfg.VectorDimensions}
	if err := v.ensureCollection(ctx); err != nil {
		_ = client.Close()
		return nil, err
	}
	return v, nil
}

func (v *VectorStore) ensureCollection(ctx context.Context) error {
	exists, err := v.client.CollectionExists(ctx, v.collection)
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "checking collection",
			ragerr.FieldCollection(v.collection))
	}
	if exists {
		return nil
	}

	err = v.client.CreateCollection(ctx, &qd.CreateCollection{
		CollectionName: v.collection,
		VectorsConfig: &qd.VectorsConfig{
			Config: &qd.VectorsConfig_Params{
				Params: &qd.VectorParams{
					Size:     uint64(v.dimensions),
					Distance: qd.Distance_Cosine,
				},
			},
		},
	})
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "creating collection",
			ragerr.FieldCollection(v.collection))
	}
	return nil
}

// Upsert writes all records in one request and waits for it to apply.
func (v *VectorStore) Upsert(ctx context.Context, records []store.VectorRecord) error {
	if len(records) == 0 {
		return nil
	}

	points := make([]*qd.PointStruct, len(records))
	for i, r := range records {
		if err := r.Validate(v.dimensions); err != nil {
			return err
		}
		payload, err := encodePayload(r)
		if err != nil {
			return err
		}
		points[i] = &qd.PointStruct{
			Id:      pointID(r.ID),
			Vectors: qd.NewVectors(r.Embedding...),
			Payload: payload,
		}
	}

	_, err := v.client.Upsert(ctx, &qd.UpsertPoints{
		CollectionName: v.collection,
		Wait:           qd.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "upserting points",
			ragerr.FieldCollection(v.collection))
	}
	return nil
}

// Search returns the k closest points. Qdrant reports cosine similarity,
// converted here to distance as 1 - score.
func (v *VectorStore) Search(ctx context.Context, query []float32, k int) ([]store.VectorResult, error) {
	if k <= 0 {
		return nil, nil
	}
	if len(query) != v.dimensions {
		return nil, ragerr.Errorf(ragerr.CodeStoreInvalidInput,
			"query has %d dimensions, want %d", len(query), v.dimensions)
	}

	limit := uint64(k)
	points, err := v.client.Query(ctx, &qd.QueryPoints{
		CollectionName: v.collection,
		Limit:          &limit,
		Query:          qd.NewQuery(query...),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "querying points",
			ragerr.FieldCollection(v.collection))
	}

	results := make([]store.VectorResult, 0, len(points))
	for _, p := range points {
		r := decodePayload(p.Id, p.Payload)
		r.Distance = max(0, 1-float64(p.Score))
		results = append(results, r)
	}
	return results, nil
}

func (v *VectorStore) Get(ctx context.Context, ids []string) ([]store.VectorResult, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	points, err := v.client.Get(ctx, &qd.GetPoints{
		CollectionName: v.collection,
		Ids:            pointIDs,
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "getting points",
			ragerr.FieldCollection(v.collection))
	}

	results := make([]store.VectorResult, 0, len(points))
	for _, p := range points {
		results = append(results, decodePayload(p.Id, p.Payload))
	}
	return results, nil
}

func (v *VectorStore) Delete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}

	pointIDs := make([]*qd.PointId, len(ids))
	for i, id := range ids {
		pointIDs[i] = pointID(id)
	}
	_, err := v.client.Delete(ctx, &qd.DeletePoints{
		CollectionName: v.collection,
		Wait:           qd.PtrOf(true),
		Points:         qd.NewPointsSelector(pointIDs...),
	})
	if err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "deleting points",
			ragerr.FieldCollection(v.collection))
	}
	return nil
}

func (v *VectorStore) Count(ctx context.Context) (int, error) {
	n, err := v.client.Count(ctx, &qd.CountPoints{
		CollectionName: v.collection,
		Exact:          qd.PtrOf(true),
	})
	if err != nil {
		return 0, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "counting points",
			ragerr.FieldCollection(v.collection))
	}
	return int(n), nil
}

func (v *VectorStore) List(ctx context.Context, limit int) ([]store.VectorResult, error) {
	if limit <= 0 {
		limit = 100
	}

	points, err := v.client.Scroll(ctx, &qd.ScrollPoints{
		CollectionName: v.collection,
		Limit:          qd.PtrOf(uint32(limit)),
		WithPayload:    qd.NewWithPayload(true),
	})
	if err != nil {
		return nil, ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "scrolling points",
			ragerr.FieldCollection(v.collection))
	}

	results := make([]store.VectorResult, 0, len(points))
	for _, p := range points {
		results = append(results, decodePayload(p.Id, p.Payload))
	}
	return results, nil
}

// Reset deletes the collection and creates it again empty.
func (v *VectorStore) Reset(ctx context.Context) error {
	if err := v.client.DeleteCollection(ctx, v.collection); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "deleting collection",
			ragerr.FieldCollection(v.collection))
	}
	return v.ensureCollection(ctx)
}

func (v *VectorStore) Ping(ctx context.Context) error {
	if _, err := v.client.HealthCheck(ctx); err != nil {
		return ragerr.Wrap(err, ragerr.CodeStoreDatabaseFailure, "qdrant health check")
	}
	return nil
}

func (v *VectorStore) Close() error {
	return v.client.Close()
}

// pointID maps an arbitrary record id to a stable UUID accepted by Qdrant.
func pointID(id string) *qd.PointId {
	if _, err := uuid.Parse(id); err == nil {
		return qd.NewIDUUID(id)
	}
	return qd.NewIDUUID(uuid.NewSHA1(uuid.NameSpaceOID, []byte(id)).String())
}

func encodePayload(r store.VectorRecord) (map[string]*qd.Value, error) {
	raw := make(map[string]any, len(r.Metadata)+2)
	for k, val := range r.Metadata {
		raw[k] = val
	}
	raw[payloadID] = r.ID
	raw[payloadDocument] = r.Document

	payload, err := qd.TryValueMap(raw)
	if err != nil {
		return nil, ragerr.Wrapf(err, ragerr.CodeStoreInvalidInput, "encoding payload for %s", r.ID)
	}
	return payload, nil
}

func decodePayload(id *qd.PointId, payload map[string]*qd.Value) store.VectorResult {
	r := store.VectorResult{Metadata: make(map[string]any, len(payload))}
	for key, val := range payload {
		switch key {
		case payloadID:
			r.ID = val.GetStringValue()
		case payloadDocument:
			r.Document = val.GetStringValue()
		default:
			r.Metadata[key] = convertValue(val)
		}
	}
	if r.ID == "" && id != nil {
		switch x := id.PointIdOptions.(type) {
		case *qd.PointId_Uuid:
			r.ID = x.Uuid
		case *qd.PointId_Num:
			r.ID = fmt.Sprintf("%d", x.Num)
		}
	}
	return r
}

func convertValue(v *qd.Value) any {
	switch val := v.GetKind().(type) {
	case *qd.Value_BoolValue:
		return val.BoolValue
	case *qd.Value_IntegerValue:
		return val.IntegerValue
	case *qd.Value_DoubleValue:
		return val.DoubleValue
	case *qd.Value_StringValue:
		return val.StringValue
	case *qd.Value_ListValue:
		out := make([]any, len(val.ListValue.GetValues()))
		for i, lv := range val.ListValue.GetValues() {
			out[i] = convertValue(lv)
		}
		return out
	case *qd.Value_StructValue:
		out := make(map[string]any, len(val.StructValue.GetFields()))
		for k, nv := range val.StructValue.GetFields() {
			out[k] = convertValue(nv)
		}
		return out
	}
	return nil
}
