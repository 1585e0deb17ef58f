package storage

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sort"
	"sync"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/matcher"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeQdrantServer 模拟Qdrant HTTP API的测试服务器。
// 按插入顺序保存点，search只按分数排序，平分时的顺序由客户端保证。
type fakeQdrantServer struct {
	mu     sync.Mutex
	points map[string]fakePoint
	order  []string
	server *httptest.Server
}

type fakePoint struct {
	ID      string                 `json:"id"`
	Vector  []float64              `json:"vector"`
	Payload map[string]interface{} `json:"payload"`
}

func newFakeQdrantServer(t *testing.T) *fakeQdrantServer {
	t.Helper()
	f := &fakeQdrantServer{points: make(map[string]fakePoint)}

	mux := http.NewServeMux()
	mux.HandleFunc("GET /collections/test_docs", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]interface{}{
				"config": map[string]interface{}{
					"params": map[string]interface{}{
						"vectors": map[string]interface{}{"size": 2, "distance": "Cosine"},
					},
				},
			},
		})
	})
	mux.HandleFunc("PUT /collections/test_docs/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []fakePoint `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		for _, p := range body.Points {
			if _, exists := f.points[p.ID]; !exists {
				f.order = append(f.order, p.ID)
			}
			f.points[p.ID] = p
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]string{"status": "acknowledged"}, "status": "ok",
		})
	})
	mux.HandleFunc("POST /collections/test_docs/points", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			IDs []string `json:"ids"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		results := make([]fakePoint, 0, len(body.IDs))
		for _, id := range body.IDs {
			if p, ok := f.points[id]; ok {
				results = append(results, p)
			}
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": results, "status": "ok"})
	})
	mux.HandleFunc("POST /collections/test_docs/points/search", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Vector []float64 `json:"vector"`
			Limit  int       `json:"limit"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))

		type scored struct {
			ID      string                 `json:"id"`
			Score   float64                `json:"score"`
			Payload map[string]interface{} `json:"payload"`
		}
		f.mu.Lock()
		results := make([]scored, 0, len(f.order))
		for _, id := range f.order {
			p := f.points[id]
			results = append(results, scored{
				ID:      p.ID,
				Score:   matcher.CosineSimilarity(body.Vector, p.Vector),
				Payload: p.Payload,
			})
		}
		f.mu.Unlock()
		// 只按分数排序；平分的点保持存储顺序，不做进一步承诺
		sort.SliceStable(results, func(i, j int) bool { return results[i].Score > results[j].Score })
		if len(results) > body.Limit {
			results = results[:body.Limit]
		}
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"result": results, "status": "ok"})
	})
	mux.HandleFunc("POST /collections/test_docs/points/delete", func(w http.ResponseWriter, r *http.Request) {
		var body struct {
			Points []string `json:"points"`
		}
		require.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		f.mu.Lock()
		for _, id := range body.Points {
			delete(f.points, id)
			for i, existing := range f.order {
				if existing == id {
					f.order = append(f.order[:i], f.order[i+1:]...)
					break
				}
			}
		}
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{"status": "ok"})
	})
	mux.HandleFunc("POST /collections/test_docs/points/count", func(w http.ResponseWriter, r *http.Request) {
		f.mu.Lock()
		count := len(f.points)
		f.mu.Unlock()
		_ = json.NewEncoder(w).Encode(map[string]interface{}{
			"result": map[string]int{"count": count}, "status": "ok",
		})
	})

	f.server = httptest.NewServer(mux)
	t.Cleanup(f.server.Close)
	return f
}

func newTestQdrant(t *testing.T) (*Qdrant, *fakeQdrantServer) {
	t.Helper()
	fake := newFakeQdrantServer(t)
	q, err := NewQdrant(&config.QdrantConfig{
		Endpoint:   fake.server.URL,
		Collection: "test_docs",
		Dimension:  2,
	})
	require.NoError(t, err)
	return q, fake
}

func TestQdrantUpsertAndQuery(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, VectorDocument{
		ID: "resume-1", Vector: []float64{1, 0}, Source: "resume", Snippet: "go工程师",
	}))
	require.NoError(t, q.Upsert(ctx, VectorDocument{
		ID: "job-1", Vector: []float64{0, 1}, Source: "job", Snippet: "数据岗位",
	}))

	hits, err := q.Query(ctx, []float64{1, 0}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "resume-1", hits[0].DocumentID)
	assert.Equal(t, "resume", hits[0].Source)
	assert.Equal(t, "go工程师", hits[0].Snippet)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
	assert.Equal(t, "job-1", hits[1].DocumentID)
}

func TestQdrantQueryTieBreakByInsertionOrder(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	// 三个完全相同的向量，分数必然平分
	for _, id := range []string{"doc-b", "doc-a", "doc-c"} {
		require.NoError(t, q.Upsert(ctx, VectorDocument{
			ID: id, Vector: []float64{1, 1}, Source: "resume",
		}))
	}

	hits, err := q.Query(ctx, []float64{1, 1}, 3)
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "doc-b", hits[0].DocumentID)
	assert.Equal(t, "doc-a", hits[1].DocumentID)
	assert.Equal(t, "doc-c", hits[2].DocumentID)
}

func TestQdrantUpsertReplacesSameDocument(t *testing.T) {
	q, fake := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-1", Vector: []float64{1, 0}, Source: "resume"}))
	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-1", Vector: []float64{0, 1}, Source: "resume"}))

	// 确定性点ID：同一文档ID重复写入只保留一个点
	fake.mu.Lock()
	assert.Len(t, fake.points, 1)
	fake.mu.Unlock()

	hits, err := q.Query(ctx, []float64{0, 1}, 1)
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.InDelta(t, 1.0, hits[0].Similarity, 1e-9)
}

func TestQdrantReplaceKeepsInsertionOrder(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-a", Vector: []float64{1, 1}, Source: "resume"}))
	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-b", Vector: []float64{1, 1}, Source: "resume"}))

	// 替换doc-a不应让它失去先插入的平分优先级
	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-a", Vector: []float64{1, 1}, Source: "resume"}))

	hits, err := q.Query(ctx, []float64{1, 1}, 2)
	require.NoError(t, err)
	require.Len(t, hits, 2)
	assert.Equal(t, "doc-a", hits[0].DocumentID)
	assert.Equal(t, "doc-b", hits[1].DocumentID)
}

func TestQdrantUpsertValidation(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	assert.Error(t, q.Upsert(ctx, VectorDocument{Vector: []float64{1, 0}, Source: "resume"}),
		"缺少文档ID应报错")
	assert.Error(t, q.Upsert(ctx, VectorDocument{ID: "d", Vector: []float64{1, 0}, Source: "unknown"}),
		"非法来源标记应报错")
	assert.Error(t, q.Upsert(ctx, VectorDocument{ID: "d", Vector: []float64{1, 0, 0}, Source: "resume"}),
		"向量维度不匹配应报错")
}

func TestQdrantQueryEdgeCases(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	hits, err := q.Query(ctx, []float64{1, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, hits)

	_, err = q.Query(ctx, []float64{1, 0, 0}, 3)
	assert.Error(t, err, "查询向量维度不匹配应报错")
}

func TestQdrantDeletePoints(t *testing.T) {
	q, _ := newTestQdrant(t)
	ctx := context.Background()

	require.NoError(t, q.Upsert(ctx, VectorDocument{ID: "doc-1", Vector: []float64{1, 0}, Source: "resume"}))
	require.NoError(t, q.DeletePoints(ctx, []string{"doc-1"}))

	count, err := q.CountPoints(ctx)
	require.NoError(t, err)
	assert.EqualValues(t, 0, count)

	// 空列表是no-op
	require.NoError(t, q.DeletePoints(ctx, nil))
}

func TestDocumentSourceValid(t *testing.T) {
	assert.True(t, documentSourceValid("resume"))
	assert.True(t, documentSourceValid("job"))
	assert.False(t, documentSourceValid(""))
	assert.False(t, documentSourceValid("Resume"))
}
