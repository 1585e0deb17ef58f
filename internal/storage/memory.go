package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"resume-match-go/internal/matcher"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"
)

// 确保MemoryVectorIndex实现了VectorIndex接口
var _ VectorIndex = (*MemoryVectorIndex)(nil)

// memoryEntry 内存索引中的一条记录
type memoryEntry struct {
	doc VectorDocument
	seq int64 // 插入序号，平分时先插入者在前
}

// MemoryVectorIndex 进程内向量索引，精确余弦扫描。
// 离线模式和测试场景下替代Qdrant，语义与Qdrant实现一致。
type MemoryVectorIndex struct {
	mu      sync.RWMutex
	entries map[string]*memoryEntry
	nextSeq int64
	dim     int
}

// NewMemoryVectorIndex 创建内存向量索引。
// dim<=0时不校验维度，以第一次写入为准。
func NewMemoryVectorIndex(dim int) *MemoryVectorIndex {
	return &MemoryVectorIndex{
		entries: make(map[string]*memoryEntry),
		dim:     dim,
	}
}

// Upsert 插入或替换文档向量。
// 替换不改变文档的插入序号，先插入者的平分优先级保持不变。
func (m *MemoryVectorIndex) Upsert(_ context.Context, doc VectorDocument) error {
	if doc.ID == "" {
		return fmt.Errorf("文档ID不能为空")
	}
	if !documentSourceValid(doc.Source) {
		return fmt.Errorf("文档来源无效: %q", doc.Source)
	}
	if m.dim > 0 && len(doc.Vector) != m.dim {
		return fmt.Errorf("向量维度(%d)与配置维度(%d)不匹配", len(doc.Vector), m.dim)
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.entries[doc.ID]; ok {
		existing.doc = doc
		return nil
	}
	m.entries[doc.ID] = &memoryEntry{doc: doc, seq: m.nextSeq}
	m.nextSeq++
	return nil
}

// Query 按余弦相似度降序返回最近邻。
// k<=0或索引为空时返回空序列而非错误。
func (m *MemoryVectorIndex) Query(_ context.Context, vector []float64, k int) ([]types.VectorHit, error) {
	if k <= 0 {
		return []types.VectorHit{}, nil
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	type scoredHit struct {
		hit types.VectorHit
		seq int64
	}
	scored := make([]scoredHit, 0, len(m.entries))
	for _, entry := range m.entries {
		scored = append(scored, scoredHit{
			hit: types.VectorHit{
				DocumentID: entry.doc.ID,
				Similarity: matcher.CosineSimilarity(vector, entry.doc.Vector),
				Snippet:    tracing.TruncateString(entry.doc.Snippet, 1000),
				Source:     entry.doc.Source,
			},
			seq: entry.seq,
		})
	}

	sort.SliceStable(scored, func(i, j int) bool {
		if scored[i].hit.Similarity != scored[j].hit.Similarity {
			return scored[i].hit.Similarity > scored[j].hit.Similarity
		}
		return scored[i].seq < scored[j].seq
	})

	if len(scored) > k {
		scored = scored[:k]
	}
	hits := make([]types.VectorHit, 0, len(scored))
	for _, s := range scored {
		hits = append(hits, s.hit)
	}
	return hits, nil
}

// Len 返回索引中的文档数量
func (m *MemoryVectorIndex) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}
