package embedding

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/logger"

	"github.com/redis/go-redis/extra/redisotel/v9"
	"github.com/redis/go-redis/v9"
)

// Redis wraps the Redis client used for the embedding cache.
type Redis struct {
	Client *redis.Client
	config *config.RedisConfig
}

// NewRedisAdapter creates a new Redis client connection
func NewRedisAdapter(cfg *config.RedisConfig) (*Redis, error) {
	if cfg == nil {
		return nil, fmt.Errorf("redis config cannot be nil")
	}
	if cfg.Address == "" {
		return nil, fmt.Errorf("redis address is required")
	}

	opt := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,

		// 连接池设置
		PoolSize:     cfg.PoolSize,     // 默认10
		MinIdleConns: cfg.MinIdleConns, // 默认2

		// 超时设置
		DialTimeout:  time.Duration(cfg.DialTimeoutSeconds) * time.Second,
		ReadTimeout:  time.Duration(cfg.ReadTimeoutSeconds) * time.Second,
		WriteTimeout: time.Duration(cfg.WriteTimeoutSeconds) * time.Second,
	}

	client := redis.NewClient(opt)

	// 添加OpenTelemetry钩子, 记录所有Redis操作
	if err := redisotel.InstrumentTracing(client); err != nil {
		return nil, fmt.Errorf("failed to instrument Redis with OpenTelemetry: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Address, err)
	}

	return &Redis{
		Client: client,
		config: cfg,
	}, nil
}

// Close closes the Redis client connection
func (r *Redis) Close() error {
	if r.Client != nil {
		return r.Client.Close()
	}
	return nil
}

// Ping checks the Redis connection
func (r *Redis) Ping(ctx context.Context) error {
	if r.Client == nil {
		return fmt.Errorf("redis client is not initialized")
	}
	return r.Client.Ping(ctx).Err()
}

// CachedEmbedder 带Redis读穿缓存的嵌入器装饰器。
// 缓存故障只降级不失败：读不到就直接调用底层嵌入器，写失败只记日志。
type CachedEmbedder struct {
	delegate TextEmbedder
	redis    *Redis
	model    string
	ttl      time.Duration
}

// NewCachedEmbedder 创建缓存嵌入器。
// ttl为0表示缓存条目不过期。
func NewCachedEmbedder(delegate TextEmbedder, redisAdapter *Redis, model string, ttl time.Duration) (*CachedEmbedder, error) {
	if delegate == nil {
		return nil, fmt.Errorf("底层嵌入器不能为空")
	}
	if redisAdapter == nil {
		return nil, fmt.Errorf("redis适配器不能为空")
	}
	return &CachedEmbedder{
		delegate: delegate,
		redis:    redisAdapter,
		model:    model,
		ttl:      ttl,
	}, nil
}

// Dimensions 返回底层嵌入器的维度
func (c *CachedEmbedder) Dimensions() int {
	return c.delegate.Dimensions()
}

// canonicalInputEmbedder 由会在嵌入前改写输入的嵌入器实现，
// 让缓存键与真正被嵌入的文本保持一致。
type canonicalInputEmbedder interface {
	CanonicalInput(text string) string
}

// cacheKey 生成缓存键: app:match:embedding:{model}:{sha256(canonicalText)}
// 哈希的是底层嵌入器规范化后的文本，避免只在截断点之后有差异的文本各占一条缓存。
func (c *CachedEmbedder) cacheKey(text string) string {
	if canon, ok := c.delegate.(canonicalInputEmbedder); ok {
		text = canon.CanonicalInput(text)
	}
	sum := sha256.Sum256([]byte(text))
	return fmt.Sprintf(constants.KeyEmbeddingCache, c.model, hex.EncodeToString(sum[:]))
}

// EmbedStrings 读穿缓存的批量嵌入。
// 未命中的文本批量送底层嵌入器，结果回填缓存。
func (c *CachedEmbedder) EmbedStrings(ctx context.Context, texts []string) ([][]float64, error) {
	results := make([][]float64, len(texts))

	var missTexts []string
	var missIdx []int
	for i, text := range texts {
		vec, ok := c.lookup(ctx, text)
		if ok {
			results[i] = vec
			continue
		}
		missTexts = append(missTexts, text)
		missIdx = append(missIdx, i)
	}
	if len(missTexts) == 0 {
		return results, nil
	}

	vectors, err := c.delegate.EmbedStrings(ctx, missTexts)
	if err != nil {
		return nil, err
	}
	for i, vec := range vectors {
		results[missIdx[i]] = vec
		c.store(ctx, missTexts[i], vec)
	}
	return results, nil
}

func (c *CachedEmbedder) lookup(ctx context.Context, text string) ([]float64, bool) {
	key := c.cacheKey(text)
	data, err := c.redis.Client.Get(ctx, key).Bytes()
	if err != nil {
		if err != redis.Nil {
			logger.Logger.Warn().Err(err).Str("key", key).Msg("读取嵌入缓存失败，回退到嵌入API")
		}
		return nil, false
	}

	var vec []float64
	if err := json.Unmarshal(data, &vec); err != nil {
		logger.Logger.Warn().Err(err).Str("key", key).Msg("嵌入缓存内容损坏，忽略该条目")
		return nil, false
	}
	if len(vec) != c.delegate.Dimensions() {
		// 维度不一致说明模型配置变过，旧缓存不可用
		return nil, false
	}
	return vec, true
}

func (c *CachedEmbedder) store(ctx context.Context, text string, vec []float64) {
	data, err := json.Marshal(vec)
	if err != nil {
		logger.Logger.Warn().Err(err).Msg("序列化嵌入向量失败，跳过缓存写入")
		return
	}
	key := c.cacheKey(text)
	if err := c.redis.Client.Set(ctx, key, data, c.ttl).Err(); err != nil {
		logger.Logger.Warn().Err(err).Str("key", key).Msg("写入嵌入缓存失败")
	}
}
