/*
此文件实现了文本向量嵌入功能，将简历/JD文本转换为向量表示。
使用自定义接口而非依赖eino-ext，便于集成任何向量模型。
*/

package embedding

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"resume-match-go/internal/config"
	"resume-match-go/internal/types"
)

// TextEmbedder 文本向量化接口
type TextEmbedder interface {
	// EmbedStrings 将文本转换为向量表示
	EmbedStrings(ctx context.Context, texts []string) ([][]float64, error)
	// Dimensions 返回嵌入向量维度
	Dimensions() int
}

// AliyunEmbedder 实现embedding服务 (OpenAI compatible endpoint)
type AliyunEmbedder struct {
	apiKey        string
	model         string
	dimensions    int
	maxInputRunes int
	httpClient    *http.Client
	baseURL       string
}

// NewAliyunEmbedder 创建新的阿里云Embedder (using OpenAI compatible endpoint)
func NewAliyunEmbedder(apiKey string, embeddingCfg config.EmbeddingConfig) (*AliyunEmbedder, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("API密钥不能为空")
	}

	model := embeddingCfg.Model
	if model == "" {
		model = "text-embedding-v3"
	}
	dimensions := embeddingCfg.Dimensions
	if dimensions == 0 {
		dimensions = 1024
	}
	baseURL := embeddingCfg.BaseURL
	if baseURL == "" {
		baseURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings"
	}

	return &AliyunEmbedder{
		apiKey:        apiKey,
		model:         model,
		dimensions:    dimensions,
		maxInputRunes: embeddingCfg.MaxInputRunes,
		httpClient:    &http.Client{},
		baseURL:       baseURL,
	}, nil
}

// Dimensions 返回嵌入器配置的维度
func (a *AliyunEmbedder) Dimensions() int {
	return a.dimensions
}

// AliyunOpenAIEmbeddingRequest 阿里云Embedding请求结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingRequest struct {
	Input          interface{} `json:"input"` // string or []string
	Model          string      `json:"model"`
	Dimensions     int         `json:"dimensions,omitempty"`
	EncodingFormat string      `json:"encoding_format,omitempty"`
}

// AliyunOpenAIEmbeddingResponse 阿里云Embedding响应结构 (OpenAI compatible)
type AliyunOpenAIEmbeddingResponse struct {
	Object string                  `json:"object"`
	Data   []AliyunOpenAIDataEntry `json:"data"`
	Model  string                  `json:"model"`
	Usage  AliyunOpenAIUsage       `json:"usage"`
	ID     string                  `json:"id,omitempty"`
	// HTTP 200但API仍可能在响应体里带错误对象
	Error *AliyunOpenAIError `json:"error,omitempty"`
}

// AliyunOpenAIDataEntry part of the response
type AliyunOpenAIDataEntry struct {
	Object    string    `json:"object"`
	Embedding []float64 `json:"embedding"`
	Index     int       `json:"index"`
}

// AliyunOpenAIUsage part of the response
type AliyunOpenAIUsage struct {
	PromptTokens int `json:"prompt_tokens"`
	TotalTokens  int `json:"total_tokens"`
}

// AliyunOpenAIError for API-level errors returned with 200 OK
type AliyunOpenAIError struct {
	Message string `json:"message"`
	Type    string `json:"type"`
	Param   string `json:"param"`
	Code    string `json:"code"`
}

// EmbedStrings 将文本转换为向量。
// 空白文本产出全零向量（哨兵值），不发起API调用；
// 超过截断预算的文本按rune截断后再嵌入，保证简历与JD可比。
// 所有失败都归类为嵌入错误，供上游判定致命性。
func (a *AliyunEmbedder) EmbedStrings(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	// 空白文本不送API，占位零向量
	var payload []string
	var payloadIdx []int
	for i, text := range texts {
		trimmed := strings.TrimSpace(text)
		if trimmed == "" {
			results[i] = make([]float64, a.dimensions)
			continue
		}
		payload = append(payload, a.truncate(trimmed))
		payloadIdx = append(payloadIdx, i)
	}
	if len(payload) == 0 {
		return results, nil
	}

	vectors, err := a.embedBatch(ctx, payload)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrEmbedding, err)
	}
	if len(vectors) != len(payload) {
		return nil, fmt.Errorf("%w: 嵌入向量数量(%d)与文本数量(%d)不匹配",
			types.ErrEmbedding, len(vectors), len(payload))
	}
	for i, vec := range vectors {
		if len(vec) != a.dimensions {
			return nil, fmt.Errorf("%w: 向量维度 %d 与配置维度 %d 不一致",
				types.ErrEmbedding, len(vec), a.dimensions)
		}
		results[payloadIdx[i]] = vec
	}
	return results, nil
}

// CanonicalInput 返回文本实际送入嵌入API前的规范形式（去首尾空白并按rune截断）。
// 缓存层用它做键，保证键与被嵌入的内容一一对应。
func (a *AliyunEmbedder) CanonicalInput(text string) string {
	return a.truncate(strings.TrimSpace(text))
}

func (a *AliyunEmbedder) truncate(text string) string {
	if a.maxInputRunes <= 0 {
		return text
	}
	runes := []rune(text)
	if len(runes) <= a.maxInputRunes {
		return text
	}
	return string(runes[:a.maxInputRunes])
}

func (a *AliyunEmbedder) embedBatch(ctx context.Context, texts []string) ([][]float64, error) {
	var inputBody interface{}
	if len(texts) == 1 {
		inputBody = texts[0]
	} else {
		inputBody = texts
	}

	reqBody := AliyunOpenAIEmbeddingRequest{
		Input: inputBody,
		Model: a.model,
	}
	if a.dimensions > 0 && a.dimensions != 1024 {
		reqBody.Dimensions = a.dimensions
	}

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, a.baseURL, bytes.NewBuffer(jsonData))
	if err != nil {
		return nil, fmt.Errorf("创建HTTP请求失败: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+a.apiKey)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("发送HTTP请求失败: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("读取响应体失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		var apiError AliyunOpenAIError
		if json.Unmarshal(body, &apiError) == nil && apiError.Message != "" {
			return nil, fmt.Errorf("API调用失败, 状态码: %d, 类型: %s, 错误: %s, Code: %s",
				resp.StatusCode, apiError.Type, apiError.Message, apiError.Code)
		}
		return nil, fmt.Errorf("API调用失败, 状态码: %d, 响应: %s", resp.StatusCode, string(body))
	}

	var embeddingResp AliyunOpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &embeddingResp); err != nil {
		return nil, fmt.Errorf("解析OpenAI兼容响应失败: %w, 响应体: %s", err, string(body))
	}

	if embeddingResp.Error != nil && embeddingResp.Error.Message != "" {
		return nil, fmt.Errorf("嵌入API调用失败(响应内错误): 类型: %s, 错误: %s, Code: %s",
			embeddingResp.Error.Type, embeddingResp.Error.Message, embeddingResp.Error.Code)
	}

	if len(embeddingResp.Data) == 0 {
		return nil, fmt.Errorf("API响应不包含嵌入数据, 响应: %s", string(body))
	}

	embeddings := make([][]float64, len(embeddingResp.Data))
	for _, item := range embeddingResp.Data {
		if item.Index >= len(embeddings) || item.Index < 0 {
			return nil, fmt.Errorf("嵌入数据索引 %d 超出范围 %d", item.Index, len(embeddings)-1)
		}
		embeddings[item.Index] = item.Embedding
	}

	return embeddings, nil
}
