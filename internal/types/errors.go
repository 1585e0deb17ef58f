package types

import (
	"errors"
	"fmt"
)

// 匹配核心的错误分类。
// 只有输入错误与嵌入错误会导致整个匹配失败，
// 检索超时与解释生成失败均降级处理，以warning形式附在MatchResult上。
var (
	// ErrInvalidInput 简历或JD缺少必要字段
	ErrInvalidInput = errors.New("invalid match input")
	// ErrEmbedding 嵌入模型调用失败
	ErrEmbedding = errors.New("embedding model call failed")
	// ErrRetrievalTimeout 向量库或图库检索超时
	ErrRetrievalTimeout = errors.New("retrieval timed out")
	// ErrExplanation 解释生成器调用失败
	ErrExplanation = errors.New("explanation generation failed")
)

// NewInputError 构造带字段说明的输入错误
func NewInputError(field string) error {
	return fmt.Errorf("%w: missing required field %q", ErrInvalidInput, field)
}

// IsFatal 判断错误是否应终止匹配操作
func IsFatal(err error) bool {
	return errors.Is(err, ErrInvalidInput) || errors.Is(err, ErrEmbedding)
}
