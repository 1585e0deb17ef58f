package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config 匹配引擎配置
type Config struct {
	Aliyun struct {
		APIKey    string          `yaml:"api_key"`
		APIURL    string          `yaml:"api_url"`
		Model     string          `yaml:"model"`
		Embedding EmbeddingConfig `yaml:"embedding"`
	} `yaml:"aliyun"`

	Qdrant QdrantConfig `yaml:"qdrant"`

	Neo4j Neo4jConfig `yaml:"neo4j"`

	Redis RedisConfig `yaml:"redis"`

	Fusion FusionConfig `yaml:"fusion"`

	Explainer ExplainerConfig `yaml:"explainer"`

	Logger LoggerConfig `yaml:"logger"`

	Tracing TracingConfig `yaml:"tracing"`

	// ExtraSynonyms 在内置同义词表之外追加的映射，token -> 规范技能名
	ExtraSynonyms map[string]string `yaml:"extra_synonyms"`
}

// EmbeddingConfig 嵌入服务配置
type EmbeddingConfig struct {
	Model      string `yaml:"model"`
	Dimensions int    `yaml:"dimensions"`
	BaseURL    string `yaml:"base_url"`
	// MaxInputRunes 嵌入前的文本截断预算。
	// 简历与JD文本应用同一截断规则，保证可比性。
	MaxInputRunes int `yaml:"max_input_runes"`
	CacheTTLHours int `yaml:"cache_ttl_hours"` // Redis嵌入缓存过期时间(小时)，0为不过期
}

// QdrantConfig Qdrant向量数据库配置
type QdrantConfig struct {
	Endpoint           string `yaml:"endpoint"`
	Collection         string `yaml:"collection"`
	Dimension          int    `yaml:"dimension"`
	APIKey             string `yaml:"api_key,omitempty"`
	DefaultSearchLimit int    `yaml:"default_search_limit"`
	TimeoutSeconds     int    `yaml:"timeout_seconds"`
}

// Neo4jConfig 关系图数据库配置
type Neo4jConfig struct {
	URI      string `yaml:"uri"`
	Username string `yaml:"username"`
	Password string `yaml:"password"`
	// RelateHopLimit 固定跳数限制，默认2
	RelateHopLimit int `yaml:"relate_hop_limit"`
}

// RedisConfig Redis配置（嵌入缓存）
type RedisConfig struct {
	Address             string `yaml:"address"`
	Password            string `yaml:"password"`
	DB                  int    `yaml:"db"`
	PoolSize            int    `yaml:"pool_size"`
	MinIdleConns        int    `yaml:"min_idle_conns"`
	DialTimeoutSeconds  int    `yaml:"dial_timeout_seconds"`
	ReadTimeoutSeconds  int    `yaml:"read_timeout_seconds"`
	WriteTimeoutSeconds int    `yaml:"write_timeout_seconds"`
}

// FusionConfig 融合引擎配置
type FusionConfig struct {
	// RetrievalTimeoutMS 每个检索来源的独立超时(毫秒)。
	// 超时的来源降级为空上下文，不中断整个匹配。
	RetrievalTimeoutMS int `yaml:"retrieval_timeout_ms"`
	TopK               int `yaml:"top_k"`
	GraphLabelLimit    int `yaml:"graph_label_limit"`
}

// ExplainerConfig 解释生成器配置
type ExplainerConfig struct {
	ModelName           string  `yaml:"modelName"`
	Temperature         float64 `yaml:"temperature"`
	MaxTokens           int     `yaml:"maxTokens"`
	TimeoutSeconds      int     `yaml:"timeout_seconds"`
	MaxExplanationChars int     `yaml:"max_explanation_chars"`
	FallbackText        string  `yaml:"fallback_text"`
	NumQuestions        int     `yaml:"num_questions"`
}

// TracingConfig 分布式追踪配置
type TracingConfig struct {
	ServiceName string `yaml:"service_name"`
	// OTLPEndpoint OTLP gRPC collector地址，为空则不导出
	OTLPEndpoint string  `yaml:"otlp_endpoint"`
	SampleRate   float64 `yaml:"sample_rate"`
}

// LoggerConfig 日志配置
type LoggerConfig struct {
	Level        string `yaml:"level"`
	Format       string `yaml:"format"`
	TimeFormat   string `yaml:"time_format"`
	ReportCaller bool   `yaml:"report_caller"`
}

// RetrievalTimeout 返回单个检索来源的超时时长
func (f FusionConfig) RetrievalTimeout() time.Duration {
	if f.RetrievalTimeoutMS <= 0 {
		return 3 * time.Second
	}
	return time.Duration(f.RetrievalTimeoutMS) * time.Millisecond
}

// Timeout 返回解释生成超时时长
func (e ExplainerConfig) Timeout() time.Duration {
	if e.TimeoutSeconds <= 0 {
		return 20 * time.Second
	}
	return time.Duration(e.TimeoutSeconds) * time.Second
}

// LoadConfig 从文件加载配置。
// 未指定路径时在常见位置查找，找不到则返回默认配置。
func LoadConfig(configPath string) (*Config, error) {
	if configPath == "" {
		searchPaths := []string{
			"config.yaml",
			"./config.yaml",
			"../config.yaml",
			filepath.Join(os.Getenv("HOME"), ".matchengine", "config.yaml"),
		}
		for _, path := range searchPaths {
			if _, err := os.Stat(path); err == nil {
				configPath = path
				break
			}
		}
		if configPath == "" {
			cfg := DefaultConfig()
			cfg.applyEnvOverrides()
			return cfg, nil
		}
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("读取配置文件失败: %w", err)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("解析配置文件失败: %w", err)
	}

	cfg.applyEnvOverrides()

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// DefaultConfig 返回带默认值的配置
func DefaultConfig() *Config {
	cfg := &Config{}
	cfg.Aliyun.APIURL = "https://dashscope.aliyuncs.com/compatible-mode/v1/chat/completions"
	cfg.Aliyun.Model = "qwen-plus"
	cfg.Aliyun.Embedding = EmbeddingConfig{
		Model:         "text-embedding-v3",
		Dimensions:    1024,
		BaseURL:       "https://dashscope.aliyuncs.com/compatible-mode/v1/embeddings",
		MaxInputRunes: 6000,
		CacheTTLHours: 72,
	}
	cfg.Qdrant = QdrantConfig{
		Endpoint:           "http://localhost:6333",
		Collection:         "match_documents",
		Dimension:          1024,
		DefaultSearchLimit: 5,
		TimeoutSeconds:     30,
	}
	cfg.Neo4j = Neo4jConfig{
		URI:            "bolt://localhost:7687",
		Username:       "neo4j",
		RelateHopLimit: 2,
	}
	cfg.Redis = RedisConfig{
		Address:             "localhost:6379",
		PoolSize:            10,
		MinIdleConns:        2,
		DialTimeoutSeconds:  5,
		ReadTimeoutSeconds:  3,
		WriteTimeoutSeconds: 3,
	}
	cfg.Fusion = FusionConfig{
		RetrievalTimeoutMS: 3000,
		TopK:               5,
		GraphLabelLimit:    10,
	}
	cfg.Explainer = ExplainerConfig{
		ModelName:           "qwen-plus",
		Temperature:         0.3,
		MaxTokens:           1024,
		TimeoutSeconds:      20,
		MaxExplanationChars: 4000,
		NumQuestions:        5,
	}
	cfg.Logger = LoggerConfig{
		Level:  "info",
		Format: "json",
	}
	cfg.Tracing = TracingConfig{
		ServiceName: "matchengine",
	}
	return cfg
}

// applyEnvOverrides 敏感项允许通过环境变量覆盖
func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("ALIYUN_API_KEY"); v != "" {
		c.Aliyun.APIKey = v
	}
	if v := os.Getenv("QDRANT_ENDPOINT"); v != "" {
		c.Qdrant.Endpoint = v
	}
	if v := os.Getenv("NEO4J_URI"); v != "" {
		c.Neo4j.URI = v
	}
	if v := os.Getenv("NEO4J_USER"); v != "" {
		c.Neo4j.Username = v
	}
	if v := os.Getenv("NEO4J_PASSWORD"); v != "" {
		c.Neo4j.Password = v
	}
	if v := os.Getenv("REDIS_ADDRESS"); v != "" {
		c.Redis.Address = v
	}
	if v := os.Getenv("OTLP_ENDPOINT"); v != "" {
		c.Tracing.OTLPEndpoint = v
	}
}

// Validate 校验关键配置项
func (c *Config) Validate() error {
	if c.Aliyun.Embedding.Dimensions <= 0 {
		return fmt.Errorf("embedding维度必须为正数: %d", c.Aliyun.Embedding.Dimensions)
	}
	if c.Qdrant.Dimension > 0 && c.Qdrant.Dimension != c.Aliyun.Embedding.Dimensions {
		return fmt.Errorf("qdrant维度(%d)与embedding维度(%d)不一致", c.Qdrant.Dimension, c.Aliyun.Embedding.Dimensions)
	}
	if c.Fusion.TopK < 0 {
		return fmt.Errorf("fusion.top_k不能为负数: %d", c.Fusion.TopK)
	}
	if c.Neo4j.RelateHopLimit <= 0 {
		c.Neo4j.RelateHopLimit = 2
	}
	return nil
}
