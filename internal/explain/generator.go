package explain

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"resume-match-go/internal/config"
	"resume-match-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// DefaultFallbackExplanation 解释生成失败时的固定回退文案。
// 缺少解释不影响匹配结果本身，分数与检索上下文照常返回。
const DefaultFallbackExplanation = "自动解释暂不可用。请参考各维度分数与检索上下文自行判断人岗匹配情况。"

// Generator 解释生成器接口
type Generator interface {
	// Explain 基于分数与检索上下文生成自然语言匹配解释
	Explain(ctx context.Context, resume *types.ParsedResume, job *types.ParsedJobDescription, scores types.ScoreBreakdown, retrieval types.RetrievalContext) (string, error)
	// GenerateQuestions 生成针对该候选人与岗位的面试问题
	GenerateQuestions(ctx context.Context, resume *types.ParsedResume, job *types.ParsedJobDescription, numQuestions int) ([]string, error)
}

// LLMGenerator 基于LLM的解释生成器
type LLMGenerator struct {
	llmModel            model.ChatModel
	promptTemplate      string
	maxExplanationChars int
}

// LLMGeneratorOption 是解释生成器的配置选项
type LLMGeneratorOption func(*LLMGenerator)

// WithCustomPromptTemplate 设置自定义提示词模板
func WithCustomPromptTemplate(template string) LLMGeneratorOption {
	return func(g *LLMGenerator) {
		g.promptTemplate = template
	}
}

// NewLLMGenerator 创建解释生成器实例
func NewLLMGenerator(llmModel model.ChatModel, cfg config.ExplainerConfig, options ...LLMGeneratorOption) *LLMGenerator {
	generator := &LLMGenerator{
		llmModel:            llmModel,
		maxExplanationChars: cfg.MaxExplanationChars,
	}
	if generator.maxExplanationChars <= 0 {
		generator.maxExplanationChars = 4000
	}

	generator.generatePromptTemplate()

	for _, opt := range options {
		opt(generator)
	}

	return generator
}

// generatePromptTemplate 内部方法，生成匹配解释的Prompt模板
func (g *LLMGenerator) generatePromptTemplate() {
	g.promptTemplate = `你是一位资深的AI招聘助手，负责分析候选人与岗位的匹配情况。

以下是系统对候选人【%s】与岗位【%s】的量化评估结果：
- 综合适配度: %d / 100
- 语义相似度: %.2f / 100
- 技能重合度: %.2f / 100
- 经验相关度: %.2f / 100

语义检索命中的相关历史文档：
%s

关系图检索得到的技能关联（shared=双方共有，gap=岗位要求但候选人暂缺）：
%s

请基于以上信息给出清晰的分析，包含：
1. 整体适配情况概述
2. 缺失但相近的技能
3. 简历改进建议
4. 简明扼要的推理过程

直接输出分析文本，不要重复上面的原始数据。`
}

// Explain 生成匹配解释。
// 失败归类为解释错误，由上游决定回退；超长输出按rune截断。
func (g *LLMGenerator) Explain(
	ctx context.Context,
	resume *types.ParsedResume,
	job *types.ParsedJobDescription,
	scores types.ScoreBreakdown,
	retrieval types.RetrievalContext,
) (string, error) {
	if g.llmModel == nil {
		return "", fmt.Errorf("%w: llmModel is not initialized", types.ErrExplanation)
	}

	prompt := fmt.Sprintf(g.promptTemplate,
		resume.CandidateName,
		job.Title,
		scores.Suitability,
		scores.SemanticSimilarity,
		scores.SkillOverlap,
		scores.ExperienceRelevance,
		formatVectorHits(retrieval.VectorHits),
		formatGraphLabels(retrieval.GraphLabels),
	)

	systemMsg := einoschema.SystemMessage("你是一位资深的AI招聘助手，专注于分析岗位描述和候选人简历的匹配度。")
	userMsg := einoschema.UserMessage(prompt)

	response, err := g.llmModel.Generate(ctx, []*einoschema.Message{systemMsg, userMsg})
	if err != nil {
		return "", fmt.Errorf("%w: LLM call failed: %v", types.ErrExplanation, err)
	}
	if response == nil || strings.TrimSpace(response.Content) == "" {
		return "", fmt.Errorf("%w: LLM returned empty response", types.ErrExplanation)
	}

	explanation := strings.TrimSpace(response.Content)
	runes := []rune(explanation)
	if len(runes) > g.maxExplanationChars {
		explanation = string(runes[:g.maxExplanationChars])
	}
	return explanation, nil
}

// questionPromptTemplate 面试问题生成模板
const questionPromptTemplate = `请为候选人【%s】应聘岗位【%s】生成%d个个性化面试问题。

候选人概况：
- 核心技能: %s
- 经验总月数: %d

岗位要求：
- 岗位名称: %s
- 必须技能: %s
- 加分技能: %s

要求：
1. 问题要贴合候选人的具体技能与经历，不要泛泛而谈
2. 考察与岗位要求直接相关的知识
3. 同时覆盖技术与行为两个维度
4. 语气专业得体

每个问题单独一行，按 1-%d 编号输出。

问题：`

// GenerateQuestions 生成面试问题。
// LLM不可用或解析不出足够问题时，用确定性规则补齐。
func (g *LLMGenerator) GenerateQuestions(
	ctx context.Context,
	resume *types.ParsedResume,
	job *types.ParsedJobDescription,
	numQuestions int,
) ([]string, error) {
	if numQuestions <= 0 {
		return []string{}, nil
	}
	if g.llmModel == nil {
		return FallbackQuestions(resume, job, numQuestions), nil
	}

	prompt := fmt.Sprintf(questionPromptTemplate,
		resume.CandidateName,
		job.Title,
		numQuestions,
		strings.Join(headStrings(resume.Skills, 20), ", "),
		resume.TotalExperienceMonths(),
		job.Title,
		strings.Join(headStrings(job.RequiredSkills, 20), ", "),
		strings.Join(headStrings(job.PreferredSkills, 10), ", "),
		numQuestions,
	)

	userMsg := einoschema.UserMessage(prompt)
	response, err := g.llmModel.Generate(ctx, []*einoschema.Message{userMsg})
	if err != nil || response == nil || strings.TrimSpace(response.Content) == "" {
		return FallbackQuestions(resume, job, numQuestions), nil
	}

	questions := ParseQuestions(response.Content)
	if len(questions) == 0 {
		return FallbackQuestions(resume, job, numQuestions), nil
	}
	if len(questions) > numQuestions {
		questions = questions[:numQuestions]
	}
	return questions, nil
}

var (
	questionNumberingPattern = regexp.MustCompile(`^\d+[.)]\s*`)
	questionBulletPattern    = regexp.MustCompile(`^[-*]\s*`)
)

// ParseQuestions 从LLM输出中逐行解析面试问题。
// 去掉编号与列表符号，只保留带问号的实质内容行。
func ParseQuestions(text string) []string {
	var questions []string
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		line = questionNumberingPattern.ReplaceAllString(line, "")
		line = questionBulletPattern.ReplaceAllString(line, "")

		if len([]rune(line)) > 10 && (strings.HasSuffix(line, "?") || strings.HasSuffix(line, "？") ||
			strings.Contains(line, "?") || strings.Contains(line, "？")) {
			questions = append(questions, line)
		}
	}
	return questions
}

// FallbackQuestions 不依赖LLM的确定性问题生成。
// 先按候选人技能出题，再按经验与岗位出题，不足时用通用问题补齐。
func FallbackQuestions(resume *types.ParsedResume, job *types.ParsedJobDescription, numQuestions int) []string {
	if numQuestions <= 0 {
		return []string{}
	}
	questions := make([]string, 0, numQuestions)

	skillQuestionLimit := 3
	if numQuestions < skillQuestionLimit {
		skillQuestionLimit = numQuestions
	}
	for _, skill := range headStrings(resume.Skills, skillQuestionLimit) {
		questions = append(questions,
			fmt.Sprintf("请描述一个你使用 %s 的项目，当时遇到了哪些挑战？", skill))
	}

	if months := resume.TotalExperienceMonths(); months > 0 && len(questions) < numQuestions {
		questions = append(questions,
			fmt.Sprintf("在 %d 个月的工作经验中，你最有代表性的职业成果是什么？", months))
	}

	jobTitle := job.Title
	if jobTitle == "" {
		jobTitle = "这个岗位"
	}
	if len(questions) < numQuestions {
		questions = append(questions,
			fmt.Sprintf("你为什么对 %s 感兴趣？你能带来哪些独特的价值？", jobTitle))
	}

	genericQuestions := []string{
		"你如何跟进自己领域内的最新技术？",
		"请讲一个你最近解决的有难度的问题。",
		"面对多个并行任务和紧迫的截止日期，你如何安排优先级？",
		"学习一项新技术时，你通常采用什么方法？",
	}
	for _, q := range genericQuestions {
		if len(questions) >= numQuestions {
			break
		}
		questions = append(questions, q)
	}

	if len(questions) > numQuestions {
		questions = questions[:numQuestions]
	}
	return questions
}

// formatVectorHits 将向量命中格式化为提示词片段
func formatVectorHits(hits []types.VectorHit) string {
	if len(hits) == 0 {
		return "（无）"
	}
	var b strings.Builder
	for i, hit := range hits {
		fmt.Fprintf(&b, "%d. [%s] %s (相似度 %.4f)", i+1, hit.Source, hit.DocumentID, hit.Similarity)
		if hit.Snippet != "" {
			fmt.Fprintf(&b, ": %s", hit.Snippet)
		}
		b.WriteString("\n")
	}
	return strings.TrimRight(b.String(), "\n")
}

// formatGraphLabels 将图标签格式化为提示词片段
func formatGraphLabels(labels []types.GraphLabel) string {
	if len(labels) == 0 {
		return "（无）"
	}
	var b strings.Builder
	for i, label := range labels {
		fmt.Fprintf(&b, "%d. %s [%s, 权重 %.1f]\n", i+1, label.Name, label.Relation, label.Weight)
	}
	return strings.TrimRight(b.String(), "\n")
}

// headStrings 返回前n个非空元素
func headStrings(in []string, n int) []string {
	out := make([]string, 0, n)
	for _, s := range in {
		if len(out) >= n {
			break
		}
		s = strings.TrimSpace(s)
		if s != "" {
			out = append(out, s)
		}
	}
	return out
}
