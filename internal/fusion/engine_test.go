package fusion

import (
	"context"
	"fmt"
	"testing"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/explain"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/types"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// stubEmbedder 固定输出的嵌入器
type stubEmbedder struct {
	vectors map[string][]float64
	err     error
}

func (s *stubEmbedder) EmbedStrings(_ context.Context, texts []string) ([][]float64, error) {
	if s.err != nil {
		return nil, s.err
	}
	out := make([][]float64, len(texts))
	for i, text := range texts {
		if vec, ok := s.vectors[text]; ok {
			out[i] = vec
		} else {
			out[i] = []float64{1, 0}
		}
	}
	return out, nil
}

func (s *stubEmbedder) Dimensions() int { return 2 }

// stubIndex 可注入结果、错误或阻塞的向量索引
type stubIndex struct {
	hits  []types.VectorHit
	err   error
	block bool
}

func (s *stubIndex) Upsert(_ context.Context, _ storage.VectorDocument) error { return nil }

func (s *stubIndex) Query(ctx context.Context, _ []float64, k int) ([]types.VectorHit, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	if len(s.hits) > k {
		return s.hits[:k], nil
	}
	return s.hits, nil
}

// stubGraph 可注入结果或错误的图存储
type stubGraph struct {
	labels []types.GraphLabel
	err    error
	block  bool
}

func (s *stubGraph) StoreResumeGraph(_ context.Context, _ *types.ParsedResume, _ []string) error {
	return nil
}

func (s *stubGraph) StoreJobGraph(_ context.Context, _ *types.ParsedJobDescription, _, _ []string) error {
	return nil
}

func (s *stubGraph) Relate(ctx context.Context, _, _ string, _ int) ([]types.GraphLabel, error) {
	if s.block {
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if s.err != nil {
		return nil, s.err
	}
	return s.labels, nil
}

// linkingGraph 在stubGraph之上记录技能关联写入
type linkingGraph struct {
	stubGraph
	linkedFrom   string
	linkedTo     string
	linkedWeight float64
}

func (s *linkingGraph) LinkSkills(_ context.Context, from, to string, weight float64) error {
	s.linkedFrom, s.linkedTo, s.linkedWeight = from, to, weight
	return nil
}

// stubGenerator 可注入结果或错误的解释生成器。
// onExplain用于在解释阶段触发副作用（如取消调用方上下文）。
type stubGenerator struct {
	explanation string
	questions   []string
	err         error
	onExplain   func()
}

func (s *stubGenerator) Explain(_ context.Context, _ *types.ParsedResume, _ *types.ParsedJobDescription, _ types.ScoreBreakdown, _ types.RetrievalContext) (string, error) {
	if s.onExplain != nil {
		s.onExplain()
	}
	if s.err != nil {
		return "", s.err
	}
	return s.explanation, nil
}

func (s *stubGenerator) GenerateQuestions(_ context.Context, _ *types.ParsedResume, _ *types.ParsedJobDescription, n int) ([]string, error) {
	if s.err != nil {
		return nil, s.err
	}
	if len(s.questions) > n {
		return s.questions[:n], nil
	}
	return s.questions, nil
}

func sampleResume() *types.ParsedResume {
	return &types.ParsedResume{
		ID:              "resume-1",
		CandidateName:   "李雷",
		RawText:         "resume text",
		Skills:          []string{"python", "sql"},
		ExperienceTotal: 36,
	}
}

func sampleJob() *types.ParsedJobDescription {
	return &types.ParsedJobDescription{
		ID:                  "job-1",
		Title:               "数据工程师",
		RawText:             "job text",
		RequiredSkills:      []string{"python", "sql", "aws"},
		MinExperienceMonths: 24,
	}
}

func newTestEngine(t *testing.T, index storage.VectorIndex, graph storage.GraphStore, generator explain.Generator, timeoutMS int) *Engine {
	t.Helper()
	embedder := &stubEmbedder{vectors: map[string][]float64{
		"resume text": {1, 0},
		"job text":    {0.8, 0.6},
	}}
	fusionCfg := config.FusionConfig{RetrievalTimeoutMS: timeoutMS, TopK: 5, GraphLabelLimit: 10}
	explainerCfg := config.ExplainerConfig{TimeoutSeconds: 1, NumQuestions: 2, FallbackText: "回退解释"}

	engine, err := NewEngine(embedder, index, graph, nil, generator, fusionCfg, explainerCfg)
	require.NoError(t, err)
	return engine
}

func TestEngineMatchHappyPath(t *testing.T) {
	index := &stubIndex{hits: []types.VectorHit{
		{DocumentID: "history-1", Similarity: 0.92, Source: constants.DocumentSourceResume},
		{DocumentID: "history-2", Similarity: 0.80, Source: constants.DocumentSourceJob},
	}}
	graph := &stubGraph{labels: []types.GraphLabel{
		{EntityID: "python", Name: "python", Kind: types.EntitySkill, Relation: constants.RelationShared, Weight: 1.0},
		{EntityID: "aws", Name: "aws", Kind: types.EntitySkill, Relation: constants.RelationGap, Weight: 1.0},
	}}
	generator := &stubGenerator{explanation: "匹配良好", questions: []string{"问题一？", "问题二？"}}

	engine := newTestEngine(t, index, graph, generator, 1000)
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err)

	assert.Equal(t, "李雷", result.CandidateName)
	assert.Equal(t, "数据工程师", result.JobTitle)
	assert.Empty(t, result.Warnings)
	assert.Equal(t, "匹配良好", result.Explanation)
	assert.Equal(t, []string{"问题一？", "问题二？"}, result.Questions)
	assert.Len(t, result.Context.VectorHits, 2)
	assert.Len(t, result.Context.GraphLabels, 2)

	// cos(resume_vec, job_vec)=0.8 => 语义90；技能2/3；经验封顶100 => 综合84
	assert.Equal(t, 84, result.Scores.Suitability)
	assert.Equal(t, []string{"python", "sql"}, result.MatchingSkills)
	assert.Equal(t, []string{"aws"}, result.MissingSkills)
}

func TestEngineMatchInputValidation(t *testing.T) {
	engine := newTestEngine(t, &stubIndex{}, nil, nil, 1000)

	_, err := engine.Match(context.Background(), nil, sampleJob())
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = engine.Match(context.Background(), &types.ParsedResume{RawText: "x"}, sampleJob())
	assert.ErrorIs(t, err, types.ErrInvalidInput)

	_, err = engine.Match(context.Background(), sampleResume(), &types.ParsedJobDescription{ID: "j", RawText: "  "})
	assert.ErrorIs(t, err, types.ErrInvalidInput)
}

func TestEngineMatchEmbeddingFailureIsFatal(t *testing.T) {
	embedder := &stubEmbedder{err: fmt.Errorf("%w: api down", types.ErrEmbedding)}
	engine, err := NewEngine(embedder, &stubIndex{}, nil, nil, nil,
		config.FusionConfig{}, config.ExplainerConfig{})
	require.NoError(t, err)

	_, err = engine.Match(context.Background(), sampleResume(), sampleJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrEmbedding)
}

func TestEngineMatchVectorTimeoutDegrades(t *testing.T) {
	index := &stubIndex{block: true}
	graph := &stubGraph{labels: []types.GraphLabel{
		{EntityID: "python", Name: "python", Relation: constants.RelationShared, Weight: 1.0},
	}}
	generator := &stubGenerator{explanation: "ok"}

	engine := newTestEngine(t, index, graph, generator, 50)

	start := time.Now()
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err, "检索超时不应导致匹配失败")
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Empty(t, result.Context.VectorHits, "超时的向量检索应降级为空上下文")
	assert.Len(t, result.Context.GraphLabels, 1, "图检索不受向量检索超时影响")
	assert.Contains(t, result.Warnings, constants.WarnVectorDegraded)
	assert.NotContains(t, result.Warnings, constants.WarnGraphDegraded)
	assert.Equal(t, 84, result.Scores.Suitability, "降级不影响分数")
}

func TestEngineMatchGraphFailureDegrades(t *testing.T) {
	index := &stubIndex{hits: []types.VectorHit{{DocumentID: "h1", Similarity: 0.7}}}
	graph := &stubGraph{err: fmt.Errorf("neo4j unavailable")}
	generator := &stubGenerator{explanation: "ok"}

	engine := newTestEngine(t, index, graph, generator, 200)
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err)

	assert.Len(t, result.Context.VectorHits, 1)
	assert.Empty(t, result.Context.GraphLabels)
	assert.Contains(t, result.Warnings, constants.WarnGraphDegraded)
}

func TestEngineMatchExplanationFallback(t *testing.T) {
	index := &stubIndex{}
	generator := &stubGenerator{err: fmt.Errorf("%w: rate limited", types.ErrExplanation)}

	engine := newTestEngine(t, index, nil, generator, 200)
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err, "解释失败不应导致匹配失败")

	assert.Equal(t, "回退解释", result.Explanation)
	assert.Contains(t, result.Warnings, constants.WarnExplanationFallback)
	// 解释生成器失败时问题走确定性回退
	assert.Len(t, result.Questions, 2)
}

func TestEngineMatchNoGeneratorUsesFallback(t *testing.T) {
	engine := newTestEngine(t, &stubIndex{}, nil, nil, 200)
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err)

	assert.Equal(t, "回退解释", result.Explanation)
	assert.Contains(t, result.Warnings, constants.WarnExplanationFallback)
}

func TestEngineMatchExcludesSelfFromContext(t *testing.T) {
	// 命中列表里混入当前匹配的简历与JD自身
	index := &stubIndex{hits: []types.VectorHit{
		{DocumentID: "resume-1", Similarity: 1.0},
		{DocumentID: "job-1", Similarity: 0.99},
		{DocumentID: "history-1", Similarity: 0.9},
	}}
	generator := &stubGenerator{explanation: "ok"}

	engine := newTestEngine(t, index, nil, generator, 200)
	result, err := engine.Match(context.Background(), sampleResume(), sampleJob())
	require.NoError(t, err)

	require.Len(t, result.Context.VectorHits, 1)
	assert.Equal(t, "history-1", result.Context.VectorHits[0].DocumentID)
}

func TestEngineMatchCancellation(t *testing.T) {
	index := &stubIndex{block: true}
	engine := newTestEngine(t, index, &stubGraph{block: true}, nil, 5000)

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := engine.Match(ctx, sampleResume(), sampleJob())
	require.Error(t, err, "调用方取消时不应返回结果")
}

func TestEngineMatchCancellationDuringExplanation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// 解释阶段调用方取消：不能把取消当作解释失败降级后照常返回结果
	generator := &stubGenerator{err: context.Canceled, onExplain: cancel}
	engine := newTestEngine(t, &stubIndex{}, nil, generator, 200)

	result, err := engine.Match(ctx, sampleResume(), sampleJob())
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Nil(t, result)
}

func TestEngineLinkSkillsNormalizesNames(t *testing.T) {
	graph := &linkingGraph{}
	engine := newTestEngine(t, &stubIndex{}, graph, nil, 200)

	// 技能名经同义词规范化后写入，与索引时的Skill节点名保持一致
	require.NoError(t, engine.LinkSkills(context.Background(), "Golang", "K8s", 0.8))
	assert.Equal(t, "go", graph.linkedFrom)
	assert.Equal(t, "kubernetes", graph.linkedTo)
	assert.Equal(t, 0.8, graph.linkedWeight)
}

func TestEngineLinkSkillsWithoutGraph(t *testing.T) {
	engine := newTestEngine(t, &stubIndex{}, nil, nil, 200)
	assert.Error(t, engine.LinkSkills(context.Background(), "go", "kubernetes", 0.5))
}

func TestEngineRelateWithoutGraph(t *testing.T) {
	engine := newTestEngine(t, &stubIndex{}, nil, nil, 200)
	labels, err := engine.Relate(context.Background(), "resume-1", "job-1")
	require.NoError(t, err)
	assert.Empty(t, labels)
}

func TestIsDegraded(t *testing.T) {
	assert.True(t, IsDegraded(fmt.Errorf("%w: slow", types.ErrRetrievalTimeout)))
	assert.False(t, IsDegraded(types.ErrEmbedding))
	assert.False(t, IsDegraded(nil))
}
