/*
此文件实现了阿里云OpenAI兼容端点上的eino ChatModel。
使用自定义HTTP客户端而非依赖eino-ext，便于控制请求细节与错误分类。
*/

package explain

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"resume-match-go/internal/config"

	"github.com/cloudwego/eino/components/model"
	einoschema "github.com/cloudwego/eino/schema"
)

// 确保AliyunChatModel实现了model.ChatModel接口
var _ model.ChatModel = (*AliyunChatModel)(nil)

// AliyunChatModel 阿里云OpenAI兼容聊天模型客户端
type AliyunChatModel struct {
	apiKey      string
	modelName   string
	baseURL     string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
}

// NewAliyunChatModel 创建聊天模型客户端 (using OpenAI compatible endpoint)
func NewAliyunChatModel(apiKey, apiURL string, cfg config.ExplainerConfig) (*AliyunChatModel, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	modelName := cfg.ModelName
	if modelName == "" {
		modelName = "qwen-plus"
	}
	if apiURL == "" {
		apiURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = 1024
	}

	return &AliyunChatModel{
		apiKey:      apiKey,
		modelName:   modelName,
		baseURL:     apiURL,
		temperature: cfg.Temperature,
		maxTokens:   maxTokens,
		httpClient:  &http.Client{Timeout: cfg.Timeout() + 5*time.Second},
	}, nil
}

type chatCompletionMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatCompletionRequest struct {
	Model       string                  `json:"model"`
	Messages    []chatCompletionMessage `json:"messages"`
	Temperature float64                 `json:"temperature,omitempty"`
	MaxTokens   int                     `json:"max_tokens,omitempty"`
}

type chatCompletionResponse struct {
	ID      string `json:"id"`
	Choices []struct {
		Index   int                   `json:"index"`
		Message chatCompletionMessage `json:"message"`
	} `json:"choices"`
	Error *struct {
		Message string `json:"message"`
		Type    string `json:"type"`
		Code    string `json:"code"`
	} `json:"error,omitempty"`
}

// Generate 实现model.ChatModel接口
func (m *AliyunChatModel) Generate(ctx context.Context, messages []*einoschema.Message, _ ...model.Option) (*einoschema.Message, error) {
	if len(messages) == 0 {
		return nil, fmt.Errorf("消息列表不能为空")
	}

	reqMessages := make([]chatCompletionMessage, 0, len(messages))
	for _, msg := range messages {
		reqMessages = append(reqMessages, chatCompletionMessage{
			Role:    string(msg.Role),
			Content: msg.Content,
		})
	}

	reqBody := chatCompletionRequest{
		Model:       m.modelName,
		Messages:    reqMessages,
		Temperature: m.temperature,
		MaxTokens:   m.maxTokens,
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, m.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+m.apiKey)

	resp, err := m.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	var chatResp chatCompletionResponse
	if err := json.Unmarshal(body, &chatResp); err != nil {
		return nil, fmt.Errorf("解析OpenAI兼容响应失败: %w, 响应体: %s", err, string(body))
	}
	if chatResp.Error != nil && chatResp.Error.Message != "" {
		return nil, fmt.Errorf("聊天API调用失败(响应内错误): 类型: %s, 错误: %s, Code: %s",
			chatResp.Error.Type, chatResp.Error.Message, chatResp.Error.Code)
	}
	if len(chatResp.Choices) == 0 {
		return nil, fmt.Errorf("API响应不包含choices, 响应: %s", string(body))
	}

	return &einoschema.Message{
		Role:    einoschema.RoleType(chatResp.Choices[0].Message.Role),
		Content: chatResp.Choices[0].Message.Content,
	}, nil
}

// Stream 实现model.ChatModel接口。
// 解释生成只需要一次性完整输出，不支持流式。
func (m *AliyunChatModel) Stream(_ context.Context, _ []*einoschema.Message, _ ...model.Option) (*einoschema.StreamReader[*einoschema.Message], error) {
	return nil, fmt.Errorf("AliyunChatModel不支持流式输出")
}

// BindTools 实现model.ChatModel接口
func (m *AliyunChatModel) BindTools(_ []*einoschema.ToolInfo) error {
	return nil
}
