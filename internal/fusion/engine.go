package fusion

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/embedding"
	"resume-match-go/internal/explain"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 定义融合引擎的专用tracer
var fusionTracer = otel.Tracer("resume-match-go/fusion")

// matchState 单次匹配请求的状态机状态。
// 状态只在单次请求内存在，请求之间不共享。
type matchState string

const (
	stateStart           matchState = "START"
	stateEmbeddingReady  matchState = "EMBEDDING_READY"
	stateRetrievalIssued matchState = "RETRIEVAL_ISSUED"
	stateContextMerged   matchState = "CONTEXT_MERGED"
	stateDone            matchState = "DONE"
	stateDegraded        matchState = "DEGRADED"
)

// Engine 混合融合引擎：嵌入 -> 并发检索 -> 合并 -> 评分 -> 解释。
// 向量与图两路检索互相独立，任一路失败只降级该路的上下文。
type Engine struct {
	embedder   embedding.TextEmbedder
	index      storage.VectorIndex
	graph      storage.GraphStore
	calculator *matcher.Calculator
	generator  explain.Generator

	retrievalTimeout time.Duration
	explainTimeout   time.Duration
	topK             int
	graphLabelLimit  int
	numQuestions     int
	fallbackText     string
}

// NewEngine 创建融合引擎。
// graph与generator允许为nil：图检索降级为空上下文，解释固定走回退文案。
func NewEngine(
	embedder embedding.TextEmbedder,
	index storage.VectorIndex,
	graph storage.GraphStore,
	calculator *matcher.Calculator,
	generator explain.Generator,
	fusionCfg config.FusionConfig,
	explainerCfg config.ExplainerConfig,
) (*Engine, error) {
	if embedder == nil {
		return nil, fmt.Errorf("嵌入器不能为空")
	}
	if index == nil {
		return nil, fmt.Errorf("向量索引不能为空")
	}
	if calculator == nil {
		calculator = matcher.NewCalculator(nil)
	}

	topK := fusionCfg.TopK
	if topK == 0 {
		topK = constants.DefaultTopK
	}
	labelLimit := fusionCfg.GraphLabelLimit
	if labelLimit <= 0 {
		labelLimit = constants.DefaultGraphLabelLimit
	}
	numQuestions := explainerCfg.NumQuestions
	if numQuestions < 0 {
		numQuestions = 0
	}
	fallbackText := explainerCfg.FallbackText
	if fallbackText == "" {
		fallbackText = explain.DefaultFallbackExplanation
	}

	return &Engine{
		embedder:         embedder,
		index:            index,
		graph:            graph,
		calculator:       calculator,
		generator:        generator,
		retrievalTimeout: fusionCfg.RetrievalTimeout(),
		explainTimeout:   explainerCfg.Timeout(),
		topK:             topK,
		graphLabelLimit:  labelLimit,
		numQuestions:     numQuestions,
		fallbackText:     fallbackText,
	}, nil
}

// Match 执行一次完整的人岗匹配。
// 只有输入错误与嵌入错误是致命的；检索与解释失败降级为警告附加在结果上。
func (e *Engine) Match(ctx context.Context, resume *types.ParsedResume, job *types.ParsedJobDescription) (*types.MatchResult, error) {
	ctx, span := fusionTracer.Start(ctx, "FusionEngine.Match")
	defer span.End()

	state := stateStart
	transition := func(next matchState) {
		span.AddEvent("state_transition", trace.WithAttributes(
			attribute.String("from", string(state)),
			attribute.String("to", string(next)),
		))
		logger.Logger.Debug().
			Str("from", string(state)).
			Str("to", string(next)).
			Msg("融合引擎状态迁移")
		state = next
	}

	if err := validateInputs(resume, job); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}

	span.SetAttributes(
		attribute.String("resume.id", resume.ID),
		attribute.String("job.id", job.ID),
		attribute.Int("fusion.top_k", e.topK),
	)

	// 1. 嵌入：简历与JD文本同批嵌入，失败即致命
	vectors, err := e.embedder.EmbedStrings(ctx, []string{resume.RawText, job.RawText})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, fmt.Errorf("嵌入匹配输入失败: %w", err)
	}
	if len(vectors) != 2 {
		err := fmt.Errorf("%w: 期望2个向量，实际%d个", types.ErrEmbedding, len(vectors))
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}
	resumeVec, jobVec := vectors[0], vectors[1]
	transition(stateEmbeddingReady)

	// 2. 并发检索：向量与图两路独立超时，互不阻塞
	transition(stateRetrievalIssued)
	vectorCh := make(chan retrievalOutcome[[]types.VectorHit], 1)
	graphCh := make(chan retrievalOutcome[[]types.GraphLabel], 1)

	go func() {
		rctx, cancel := context.WithTimeout(ctx, e.retrievalTimeout)
		defer cancel()
		hits, err := e.retrieveVectorContext(rctx, resume.ID, job.ID, resumeVec, jobVec)
		vectorCh <- retrievalOutcome[[]types.VectorHit]{value: hits, err: err}
	}()
	go func() {
		rctx, cancel := context.WithTimeout(ctx, e.retrievalTimeout)
		defer cancel()
		labels, err := e.retrieveGraphContext(rctx, resume.ID, job.ID)
		graphCh <- retrievalOutcome[[]types.GraphLabel]{value: labels, err: err}
	}()

	var warnings []string
	degraded := false

	vectorOutcome := <-vectorCh
	if vectorOutcome.err != nil {
		degraded = true
		warnings = append(warnings, constants.WarnVectorDegraded)
		logger.Logger.Warn().Err(vectorOutcome.err).
			Str("resume_id", resume.ID).
			Str("job_id", job.ID).
			Msg("向量检索降级为空上下文")
		vectorOutcome.value = nil
	}

	graphOutcome := <-graphCh
	if graphOutcome.err != nil {
		degraded = true
		warnings = append(warnings, constants.WarnGraphDegraded)
		logger.Logger.Warn().Err(graphOutcome.err).
			Str("resume_id", resume.ID).
			Str("job_id", job.ID).
			Msg("图检索降级为空上下文")
		graphOutcome.value = nil
	}

	// 调用方取消时不返回结果
	if err := ctx.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return nil, err
	}

	// 3. 合并：两路上下文各自去重后并列呈现，不做跨来源融合排序
	retrieval := types.RetrievalContext{
		VectorHits:  dedupeHits(vectorOutcome.value),
		GraphLabels: dedupeLabels(graphOutcome.value),
	}
	transition(stateContextMerged)

	// 4. 评分
	scores, err := e.calculator.Score(resume, job, resumeVec, jobVec)
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return nil, err
	}

	result := &types.MatchResult{
		CandidateName:  resume.CandidateName,
		JobTitle:       job.Title,
		Scores:         scores,
		MatchingSkills: e.calculator.MatchingSkills(resume, job),
		MissingSkills:  e.calculator.MissingSkills(resume, job),
		Context:        retrieval,
	}

	// 5. 解释与面试问题：失败走固定回退，绝不让匹配失败
	result.Explanation, result.Questions = e.explainWithFallback(ctx, resume, job, scores, retrieval, &warnings)

	// 解释阶段发生的调用方取消同样不返回结果，不能当作解释失败降级
	if err := ctx.Err(); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeTimeout)
		return nil, err
	}

	result.Warnings = warnings
	if degraded {
		transition(stateDegraded)
	} else {
		transition(stateDone)
	}

	span.SetAttributes(
		attribute.Int("match.suitability", scores.Suitability),
		attribute.Int("context.vector_hits", len(retrieval.VectorHits)),
		attribute.Int("context.graph_labels", len(retrieval.GraphLabels)),
		attribute.Bool("match.degraded", degraded),
		attribute.String("match.final_state", string(state)),
	)
	span.SetStatus(codes.Ok, "")

	logger.Logger.Info().
		Str("resume_id", resume.ID).
		Str("job_id", job.ID).
		Int("suitability", scores.Suitability).
		Bool("degraded", degraded).
		Msg("匹配完成")
	return result, nil
}

// Index 将简历与JD写入向量索引与关系图，供后续匹配检索。
// 图存储未配置时只写向量索引。
func (e *Engine) Index(ctx context.Context, resume *types.ParsedResume, job *types.ParsedJobDescription) error {
	ctx, span := fusionTracer.Start(ctx, "FusionEngine.Index")
	defer span.End()

	if err := validateInputs(resume, job); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	vectors, err := e.embedder.EmbedStrings(ctx, []string{resume.RawText, job.RawText})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return fmt.Errorf("嵌入索引输入失败: %w", err)
	}
	if len(vectors) != 2 {
		err := fmt.Errorf("%w: 期望2个向量，实际%d个", types.ErrEmbedding, len(vectors))
		tracing.RecordError(span, err, tracing.ErrorTypeEmbedding)
		return err
	}

	if err := e.index.Upsert(ctx, storage.VectorDocument{
		ID:      resume.ID,
		Vector:  vectors[0],
		Source:  constants.DocumentSourceResume,
		Snippet: tracing.SafeDocumentContent(resume.RawText),
	}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入简历向量失败: %w", err)
	}
	if err := e.index.Upsert(ctx, storage.VectorDocument{
		ID:      job.ID,
		Vector:  vectors[1],
		Source:  constants.DocumentSourceJob,
		Snippet: tracing.SafeDocumentContent(job.RawText),
	}); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeVectorDB)
		return fmt.Errorf("写入JD向量失败: %w", err)
	}

	if e.graph == nil {
		span.SetStatus(codes.Ok, "graph store not configured")
		return nil
	}

	normalizer := e.calculator.Normalizer()
	if err := e.graph.StoreResumeGraph(ctx, resume, normalizer.Normalize(resume.Skills).Sorted()); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return err
	}
	if err := e.graph.StoreJobGraph(ctx, job,
		normalizer.Normalize(job.RequiredSkills).Sorted(),
		normalizer.Normalize(job.PreferredSkills).Sorted()); err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return err
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Relate 直接查询两个实体在关系图中的技能关联
func (e *Engine) Relate(ctx context.Context, resumeID, jobID string) ([]types.GraphLabel, error) {
	if e.graph == nil {
		return []types.GraphLabel{}, nil
	}
	return e.graph.Relate(ctx, resumeID, jobID, e.graphLabelLimit)
}

// LinkSkills 在关系图中写入技能关联边，扩大后续relate遍历的可达范围。
// 技能名先过同义词规范化，保证与索引时写入的Skill节点名吻合。
func (e *Engine) LinkSkills(ctx context.Context, from, to string, weight float64) error {
	linker, ok := e.graph.(storage.SkillLinker)
	if !ok {
		return fmt.Errorf("图存储未配置或不支持技能关联")
	}
	normalizer := e.calculator.Normalizer()
	return linker.LinkSkills(ctx, normalizer.NormalizeOne(from), normalizer.NormalizeOne(to), weight)
}

type retrievalOutcome[T any] struct {
	value T
	err   error
}

// retrieveVectorContext 用两个方向的向量查询索引并按文档ID合并。
// 两个方向都命中的文档保留更高的相似度；当前匹配的简历与JD本身不计入上下文。
func (e *Engine) retrieveVectorContext(ctx context.Context, resumeID, jobID string, resumeVec, jobVec []float64) ([]types.VectorHit, error) {
	fromResume, err := e.index.Query(ctx, resumeVec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRetrievalTimeout, err)
	}
	fromJob, err := e.index.Query(ctx, jobVec, e.topK)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRetrievalTimeout, err)
	}

	merged := make([]types.VectorHit, 0, len(fromResume)+len(fromJob))
	seen := make(map[string]int, len(fromResume)+len(fromJob))
	for _, hit := range append(fromResume, fromJob...) {
		if hit.DocumentID == resumeID || hit.DocumentID == jobID {
			continue
		}
		if idx, ok := seen[hit.DocumentID]; ok {
			if hit.Similarity > merged[idx].Similarity {
				merged[idx].Similarity = hit.Similarity
			}
			continue
		}
		seen[hit.DocumentID] = len(merged)
		merged = append(merged, hit)
	}
	if len(merged) > e.topK {
		merged = merged[:e.topK]
	}
	return merged, nil
}

// retrieveGraphContext 图检索，未配置图存储时返回空上下文
func (e *Engine) retrieveGraphContext(ctx context.Context, resumeID, jobID string) ([]types.GraphLabel, error) {
	if e.graph == nil {
		return []types.GraphLabel{}, nil
	}
	labels, err := e.graph.Relate(ctx, resumeID, jobID, e.graphLabelLimit)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrRetrievalTimeout, err)
	}
	return labels, nil
}

// explainWithFallback 生成解释与面试问题，任何失败都回退而非报错
func (e *Engine) explainWithFallback(
	ctx context.Context,
	resume *types.ParsedResume,
	job *types.ParsedJobDescription,
	scores types.ScoreBreakdown,
	retrieval types.RetrievalContext,
	warnings *[]string,
) (string, []string) {
	if e.generator == nil {
		*warnings = append(*warnings, constants.WarnExplanationFallback)
		return e.fallbackText, nil
	}

	ectx, cancel := context.WithTimeout(ctx, e.explainTimeout)
	defer cancel()

	explanation, err := e.generator.Explain(ectx, resume, job, scores, retrieval)
	if err != nil {
		*warnings = append(*warnings, constants.WarnExplanationFallback)
		logger.Logger.Warn().Err(err).
			Str("resume_id", resume.ID).
			Str("job_id", job.ID).
			Msg("解释生成失败，使用回退文案")
		explanation = e.fallbackText
	}

	var questions []string
	if e.numQuestions > 0 {
		questions, err = e.generator.GenerateQuestions(ectx, resume, job, e.numQuestions)
		if err != nil {
			questions = explain.FallbackQuestions(resume, job, e.numQuestions)
		}
	}
	return explanation, questions
}

// validateInputs 校验匹配输入，缺失必填字段返回输入错误
func validateInputs(resume *types.ParsedResume, job *types.ParsedJobDescription) error {
	if resume == nil {
		return types.NewInputError("resume")
	}
	if strings.TrimSpace(resume.ID) == "" {
		return types.NewInputError("resume.id")
	}
	if strings.TrimSpace(resume.RawText) == "" {
		return types.NewInputError("resume.raw_text")
	}
	if job == nil {
		return types.NewInputError("job")
	}
	if strings.TrimSpace(job.ID) == "" {
		return types.NewInputError("job.id")
	}
	if strings.TrimSpace(job.RawText) == "" {
		return types.NewInputError("job.raw_text")
	}
	return nil
}

// dedupeHits 按文档ID去重，保留首次出现（排名更靠前）的命中
func dedupeHits(hits []types.VectorHit) []types.VectorHit {
	out := make([]types.VectorHit, 0, len(hits))
	seen := make(map[string]struct{}, len(hits))
	for _, hit := range hits {
		if _, ok := seen[hit.DocumentID]; ok {
			continue
		}
		seen[hit.DocumentID] = struct{}{}
		out = append(out, hit)
	}
	return out
}

// dedupeLabels 按实体ID去重，保留首次出现（权重排序更靠前）的标签
func dedupeLabels(labels []types.GraphLabel) []types.GraphLabel {
	out := make([]types.GraphLabel, 0, len(labels))
	seen := make(map[string]struct{}, len(labels))
	for _, label := range labels {
		if _, ok := seen[label.EntityID]; ok {
			continue
		}
		seen[label.EntityID] = struct{}{}
		out = append(out, label)
	}
	return out
}

// IsDegraded 判断错误是否属于可降级的检索错误
func IsDegraded(err error) bool {
	return errors.Is(err, types.ErrRetrievalTimeout)
}
