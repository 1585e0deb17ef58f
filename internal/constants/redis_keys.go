package constants

// Redis Key 前缀和格式常量
// 使用统一的命名规范: app:{module}:{entity}:{unique_id}
const (
	// AppPrefix 是所有Redis Key的统一应用前缀
	AppPrefix = "app"

	// MatchModulePrefix 匹配模块
	MatchModulePrefix = "match"

	// EntityEmbedding 嵌入向量实体
	EntityEmbedding = "embedding"

	// KeyEmbeddingCache 文本嵌入缓存 (STRING, JSON数组)
	// 格式: app:match:embedding:{model}:{sha256(text)}
	KeyEmbeddingCache = AppPrefix + ":" + MatchModulePrefix + ":" + EntityEmbedding + ":%s:%s"
)
