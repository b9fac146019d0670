package retriever

import (
	"context"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/qdrant/go-client/qdrant"
	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"

	"github.com/catalogo-ai/catalog-engine/pkg/models"
)

// Embedder is the subset of the LLM client the retriever needs.
type Embedder interface {
	CreateEmbedding(ctx context.Context, input string) ([]float32, error)
}

// QdrantConfig holds configuration for connecting to Qdrant.
type QdrantConfig struct {
	URL              string // e.g. "http://localhost:6333" or "https://xyz.cloud.qdrant.io:6333"
	APIKey           string
	TableCollection  string
	ColumnCollection string
	Dims             uint64
}

// QdrantIndex implements Retriever backed by a Qdrant server over gRPC.
type QdrantIndex struct {
	client   *qdrant.Client
	embedder Embedder
	cfg      QdrantConfig
	logger   *zap.Logger

	healthGroup singleflight.Group
	healthErr   atomic.Value // stores *error; inner error may be nil
	healthAt    atomic.Int64 // unix nanos of last check
}

var _ Retriever = (*QdrantIndex)(nil)

// parseQdrantURL extracts host, port, and TLS flag from a Qdrant URL.
// Accepts forms like "https://host:6333", "http://host:6333", or "host:6334".
func parseQdrantURL(rawURL string) (host string, port int, useTLS bool, err error) {
	u, parseErr := url.Parse(rawURL)
	if parseErr != nil || u.Host == "" {
		return "", 0, false, fmt.Errorf("retriever: invalid qdrant URL: %q", rawURL)
	}

	useTLS = u.Scheme == "https"
	host = u.Hostname()

	if portStr := u.Port(); portStr != "" {
		p, err := strconv.Atoi(portStr)
		if err != nil {
			return "", 0, false, fmt.Errorf("retriever: invalid port in qdrant URL: %q", portStr)
		}
		// If the user specified the REST port (6333), use the gRPC port (6334).
		if p == 6333 {
			port = 6334
		} else {
			port = p
		}
	} else {
		port = 6334
	}

	return host, port, useTLS, nil
}

// NewQdrantIndex creates a QdrantIndex and connects to the server via gRPC.
func NewQdrantIndex(cfg QdrantConfig, embedder Embedder, logger *zap.Logger) (*QdrantIndex, error) {
	host, port, useTLS, err := parseQdrantURL(cfg.URL)
	if err != nil {
		return nil, err
	}

	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   host,
		Port:   port,
		APIKey: cfg.APIKey,
		UseTLS: useTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: connect to qdrant at %s:%d: %w", host, port, err)
	}

	return &QdrantIndex{
		client:   client,
		embedder: embedder,
		cfg:      cfg,
		logger:   logger.Named("retriever"),
	}, nil
}

// EnsureCollections creates both collections if they don't already exist and
// ensures payload indexes are present. CreateFieldIndex is idempotent on
// Qdrant, so index creation is always attempted to backfill indexes added
// after a collection was first created.
func (q *QdrantIndex) EnsureCollections(ctx context.Context) error {
	if err := q.ensureCollection(ctx, q.cfg.TableCollection, []string{"table_id", "domain_id", "owner_id"}); err != nil {
		return err
	}
	return q.ensureCollection(ctx, q.cfg.ColumnCollection, []string{"column_id", "table_id", "column_name"})
}

func (q *QdrantIndex) ensureCollection(ctx context.Context, collection string, keywordFields []string) error {
	exists, err := q.client.CollectionExists(ctx, collection)
	if err != nil {
		return fmt.Errorf("retriever: check collection exists: %w", err)
	}

	if !exists {
		m := uint64(16)
		efConstruct := uint64(128)

		if err := q.client.CreateCollection(ctx, &qdrant.CreateCollection{
			CollectionName: collection,
			VectorsConfig: qdrant.NewVectorsConfig(&qdrant.VectorParams{
				Size:     q.cfg.Dims,
				Distance: qdrant.Distance_Cosine,
				HnswConfig: &qdrant.HnswConfigDiff{
					M:           &m,
					EfConstruct: &efConstruct,
				},
			}),
		}); err != nil {
			return fmt.Errorf("retriever: create collection %q: %w", collection, err)
		}
		q.logger.Info("created collection",
			zap.String("collection", collection),
			zap.Uint64("dims", q.cfg.Dims))
	}

	keywordType := qdrant.FieldType_FieldTypeKeyword
	for _, field := range keywordFields {
		if _, err := q.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: collection,
			FieldName:      field,
			FieldType:      &keywordType,
		}); err != nil {
			return fmt.Errorf("retriever: ensure index on %q: %w", field, err)
		}
	}

	return nil
}

// tableEmbeddingText builds the text that represents a table in vector space.
// Keeps the same field order on every index run so re-indexing an unchanged
// table produces an identical vector.
func tableEmbeddingText(t *models.TableInfo) string {
	parts := []string{t.Name}
	if t.DisplayName != "" {
		parts = append(parts, t.DisplayName)
	}
	if t.Summary != "" {
		parts = append(parts, t.Summary)
	}
	if len(t.Keywords) > 0 {
		parts = append(parts, strings.Join(t.Keywords, " "))
	}
	if len(t.MainEntities) > 0 {
		parts = append(parts, strings.Join(t.MainEntities, " "))
	}
	if t.Granularity != "" {
		parts = append(parts, "granularidade: "+t.Granularity)
	}
	if t.InferredProduct != "" {
		parts = append(parts, "produto: "+t.InferredProduct)
	}
	return strings.Join(parts, ". ")
}

func columnEmbeddingText(c *models.ColumnInfo) string {
	parts := []string{c.Name}
	if c.Description != "" {
		parts = append(parts, c.Description)
	}
	if c.TableName != "" {
		parts = append(parts, "tabela: "+c.TableName)
	}
	return strings.Join(parts, ". ")
}

// pointID derives a stable UUID for a catalog entity so repeated indexing
// upserts in place instead of duplicating points.
func pointID(kind, id string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(kind+":"+id)).String()
}

// IndexTables embeds and upserts tables into the table collection.
func (q *QdrantIndex) IndexTables(ctx context.Context, tables []models.TableInfo) error {
	if len(tables) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(tables))
	for i := range tables {
		t := &tables[i]
		vec, err := q.embedder.CreateEmbedding(ctx, tableEmbeddingText(t))
		if err != nil {
			return fmt.Errorf("retriever: embed table %q: %w", t.Name, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID("table", t.ID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{
				"table_id":  t.ID,
				"domain_id": t.DomainID,
				"owner_id":  t.OwnerID,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.TableCollection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("retriever: upsert %d tables: %w", len(points), err)
	}
	return nil
}

// IndexColumns embeds and upserts columns into the column collection.
func (q *QdrantIndex) IndexColumns(ctx context.Context, columns []models.ColumnInfo) error {
	if len(columns) == 0 {
		return nil
	}

	points := make([]*qdrant.PointStruct, 0, len(columns))
	for i := range columns {
		c := &columns[i]
		vec, err := q.embedder.CreateEmbedding(ctx, columnEmbeddingText(c))
		if err != nil {
			return fmt.Errorf("retriever: embed column %q: %w", c.Name, err)
		}
		points = append(points, &qdrant.PointStruct{
			Id:      qdrant.NewID(pointID("column", c.ID)),
			Vectors: qdrant.NewVectorsDense(vec),
			Payload: qdrant.NewValueMap(map[string]any{
				"column_id":   c.ID,
				"column_name": c.Name,
				"table_id":    c.TableID,
			}),
		})
	}

	_, err := q.client.Upsert(ctx, &qdrant.UpsertPoints{
		CollectionName: q.cfg.ColumnCollection,
		Wait:           qdrant.PtrOf(true),
		Points:         points,
	})
	if err != nil {
		return fmt.Errorf("retriever: upsert %d columns: %w", len(points), err)
	}
	return nil
}

// SearchTables embeds the query and returns the top tables, best first.
func (q *QdrantIndex) SearchTables(ctx context.Context, query string, filter Filter, limit int) ([]TableHit, error) {
	if limit <= 0 {
		limit = 10
	}

	vec, err := q.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	var must []*qdrant.Condition
	if filter.DomainID != "" {
		must = append(must, qdrant.NewMatch("domain_id", filter.DomainID))
	}
	if filter.OwnerID != "" {
		must = append(must, qdrant.NewMatch("owner_id", filter.OwnerID))
	}

	queryPoints := &qdrant.QueryPoints{
		CollectionName: q.cfg.TableCollection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec
		WithPayload:    qdrant.NewWithPayload(true),
	}
	if len(must) > 0 {
		queryPoints.Filter = &qdrant.Filter{Must: must}
	}

	scored, err := q.client.Query(ctx, queryPoints)
	if err != nil {
		return nil, fmt.Errorf("retriever: qdrant table query: %w", err)
	}

	hits := make([]TableHit, 0, len(scored))
	for _, sp := range scored {
		tableID := sp.Payload["table_id"].GetStringValue()
		if tableID == "" {
			q.logger.Warn("point without table_id payload", zap.String("point", sp.Id.GetUuid()))
			continue
		}
		hits = append(hits, TableHit{TableID: tableID, Score: sp.Score})
	}
	return hits, nil
}

// SearchColumns embeds the query and returns the top columns, best first.
func (q *QdrantIndex) SearchColumns(ctx context.Context, query string, limit int) ([]ColumnHit, error) {
	if limit <= 0 {
		limit = 20
	}

	vec, err := q.embedder.CreateEmbedding(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("retriever: embed query: %w", err)
	}

	scored, err := q.client.Query(ctx, &qdrant.QueryPoints{
		CollectionName: q.cfg.ColumnCollection,
		Query:          qdrant.NewQueryDense(vec),
		Limit:          qdrant.PtrOf(uint64(limit)), //nolint:gosec
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, fmt.Errorf("retriever: qdrant column query: %w", err)
	}

	hits := make([]ColumnHit, 0, len(scored))
	for _, sp := range scored {
		tableID := sp.Payload["table_id"].GetStringValue()
		if tableID == "" {
			continue
		}
		hits = append(hits, ColumnHit{
			ColumnID:   sp.Payload["column_id"].GetStringValue(),
			ColumnName: sp.Payload["column_name"].GetStringValue(),
			TableID:    tableID,
			Score:      sp.Score,
		})
	}
	return hits, nil
}

// Healthy returns nil if Qdrant is reachable. Results are cached for 5
// seconds; concurrent checks after expiry are deduplicated via singleflight.
func (q *QdrantIndex) Healthy(ctx context.Context) error {
	if time.Since(time.Unix(0, q.healthAt.Load())) < 5*time.Second {
		return q.loadHealthErr()
	}

	// Use context.Background() instead of the caller's ctx because
	// singleflight reuses the first caller's context; if that caller
	// cancels, all waiters would get a stale error.
	result, _, _ := q.healthGroup.Do("health", func() (any, error) {
		checkCtx, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()

		_, err := q.client.HealthCheck(checkCtx)
		if err != nil {
			q.storeHealthErr(fmt.Errorf("retriever: qdrant unhealthy: %w", err))
		} else {
			q.storeHealthErr(nil)
		}
		q.healthAt.Store(time.Now().UnixNano())
		return q.loadHealthErr(), nil
	})
	if result == nil {
		return nil
	}
	return result.(error)
}

// storeHealthErr stores an error (or nil) in the atomic.Value. atomic.Value
// cannot store nil directly, so it is wrapped in a pointer.
func (q *QdrantIndex) storeHealthErr(err error) {
	q.healthErr.Store(&err)
}

func (q *QdrantIndex) loadHealthErr() error {
	v := q.healthErr.Load()
	if v == nil {
		return nil
	}
	return *v.(*error)
}

// Close shuts down the Qdrant gRPC connection.
func (q *QdrantIndex) Close() error {
	return q.client.Close()
}
