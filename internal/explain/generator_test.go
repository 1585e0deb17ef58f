package explain

import (
	"context"
	"fmt"
	"testing"

	"resume-match-go/internal/config"
	"resume-match-go/internal/types"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// 测试用LLM模型模拟器
type MockExplainLLM struct {
	mockResponse string
	mockErr      error
	lastPrompt   string
}

// Generate 实现model.ChatModel接口
func (m *MockExplainLLM) Generate(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.Message, error) {
	if m.mockErr != nil {
		return nil, m.mockErr
	}
	if len(messages) > 0 {
		m.lastPrompt = messages[len(messages)-1].Content
	}
	return &schema.Message{
		Role:    schema.RoleType("assistant"),
		Content: m.mockResponse,
	}, nil
}

// Stream 实现model.ChatModel接口
func (m *MockExplainLLM) Stream(ctx context.Context, messages []*schema.Message, options ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, nil
}

// BindTools 实现model.ChatModel接口
func (m *MockExplainLLM) BindTools(tools []*schema.ToolInfo) error {
	return nil
}

func testResume() *types.ParsedResume {
	return &types.ParsedResume{
		ID:              "r1",
		CandidateName:   "张三",
		RawText:         "go后端工程师",
		Skills:          []string{"go", "kubernetes", "sql"},
		ExperienceTotal: 36,
	}
}

func testJob() *types.ParsedJobDescription {
	return &types.ParsedJobDescription{
		ID:                  "j1",
		Title:               "后端开发工程师",
		RawText:             "负责后端服务开发",
		RequiredSkills:      []string{"go", "sql", "aws"},
		MinExperienceMonths: 24,
	}
}

func TestLLMGenerator_Explain(t *testing.T) {
	mock := &MockExplainLLM{mockResponse: "候选人整体匹配良好，建议补充aws经验。"}
	generator := NewLLMGenerator(mock, config.ExplainerConfig{MaxExplanationChars: 4000})

	retrieval := types.RetrievalContext{
		VectorHits: []types.VectorHit{
			{DocumentID: "doc-1", Similarity: 0.91, Snippet: "历史简历摘录", Source: "resume"},
		},
		GraphLabels: []types.GraphLabel{
			{EntityID: "go", Name: "go", Kind: types.EntitySkill, Relation: "shared", Weight: 1.0},
			{EntityID: "aws", Name: "aws", Kind: types.EntitySkill, Relation: "gap", Weight: 1.0},
		},
	}
	scores := types.ScoreBreakdown{Suitability: 84, SemanticSimilarity: 90, SkillOverlap: 66.67, ExperienceRelevance: 100}

	explanation, err := generator.Explain(context.Background(), testResume(), testJob(), scores, retrieval)
	require.NoError(t, err)
	assert.Equal(t, "候选人整体匹配良好，建议补充aws经验。", explanation)

	// 提示词里应包含分数与检索上下文
	assert.Contains(t, mock.lastPrompt, "84")
	assert.Contains(t, mock.lastPrompt, "doc-1")
	assert.Contains(t, mock.lastPrompt, "gap")
}

func TestLLMGenerator_ExplainTruncation(t *testing.T) {
	long := ""
	for i := 0; i < 100; i++ {
		long += "很长的解释文本"
	}
	mock := &MockExplainLLM{mockResponse: long}
	generator := NewLLMGenerator(mock, config.ExplainerConfig{MaxExplanationChars: 50})

	explanation, err := generator.Explain(context.Background(), testResume(), testJob(),
		types.ScoreBreakdown{}, types.RetrievalContext{})
	require.NoError(t, err)
	assert.Equal(t, 50, len([]rune(explanation)))
}

func TestLLMGenerator_ExplainFailureIsExplanationError(t *testing.T) {
	mock := &MockExplainLLM{mockErr: fmt.Errorf("rate limited")}
	generator := NewLLMGenerator(mock, config.ExplainerConfig{})

	_, err := generator.Explain(context.Background(), testResume(), testJob(),
		types.ScoreBreakdown{}, types.RetrievalContext{})
	require.Error(t, err)
	assert.ErrorIs(t, err, types.ErrExplanation)
}

func TestLLMGenerator_GenerateQuestions(t *testing.T) {
	mock := &MockExplainLLM{mockResponse: `1. 请介绍你在Kubernetes集群运维中的实践经验？
2. 你如何优化Go服务的内存占用？
3) 描述一次你排查线上SQL慢查询的过程？
这行不是问题
4. 短问？`}
	generator := NewLLMGenerator(mock, config.ExplainerConfig{})

	questions, err := generator.GenerateQuestions(context.Background(), testResume(), testJob(), 3)
	require.NoError(t, err)
	require.Len(t, questions, 3)
	assert.Equal(t, "请介绍你在Kubernetes集群运维中的实践经验？", questions[0])
	assert.Equal(t, "你如何优化Go服务的内存占用？", questions[1])
	assert.Equal(t, "描述一次你排查线上SQL慢查询的过程？", questions[2])
}

func TestLLMGenerator_GenerateQuestionsFallbackOnError(t *testing.T) {
	mock := &MockExplainLLM{mockErr: fmt.Errorf("timeout")}
	generator := NewLLMGenerator(mock, config.ExplainerConfig{})

	questions, err := generator.GenerateQuestions(context.Background(), testResume(), testJob(), 5)
	require.NoError(t, err)
	require.Len(t, questions, 5)
	// 回退问题以候选人技能开头
	assert.Contains(t, questions[0], "go")
}

func TestFallbackQuestionsDeterministic(t *testing.T) {
	first := FallbackQuestions(testResume(), testJob(), 5)
	for i := 0; i < 10; i++ {
		assert.Equal(t, first, FallbackQuestions(testResume(), testJob(), 5))
	}
	require.Len(t, first, 5)

	// 技能问题在前，之后是经验和岗位问题
	assert.Contains(t, first[0], "go")
	assert.Contains(t, first[1], "kubernetes")
	assert.Contains(t, first[2], "sql")
	assert.Contains(t, first[3], "36")
	assert.Contains(t, first[4], "后端开发工程师")

	assert.Empty(t, FallbackQuestions(testResume(), testJob(), 0))
}

func TestParseQuestions(t *testing.T) {
	questions := ParseQuestions(`- 你为什么选择Go作为主力语言？
* 你如何设计一个高并发系统？
没有问号的长句子不应该被收录进来
短？`)
	require.Len(t, questions, 2)
	assert.Equal(t, "你为什么选择Go作为主力语言？", questions[0])
}
