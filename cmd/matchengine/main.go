package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/embedding"
	"resume-match-go/internal/explain"
	"resume-match-go/internal/fusion"
	"resume-match-go/internal/logger"
	"resume-match-go/internal/matcher"
	"resume-match-go/internal/storage"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/spf13/pflag"
)

var (
	configFilePath string
	command        string
	resumePath     string
	jobPath        string
	resumeID       string
	jobID          string
	fromSkill      string
	toSkill        string
	linkWeight     float64
	useMemoryIndex bool
)

func main() {
	pflag.StringVarP(&configFilePath, "config", "c", "", "指定配置文件的路径 (例如: ./config.yaml)")
	pflag.StringVar(&command, "cmd", "match", "执行的命令: match(匹配) / index(入库) / relate(图关联查询) / link(技能关联)")
	pflag.StringVar(&resumePath, "resume", "", "结构化简历JSON文件路径")
	pflag.StringVar(&jobPath, "job", "", "结构化岗位JSON文件路径")
	pflag.StringVar(&resumeID, "resume-id", "", "relate命令使用的简历ID（缺省时取--resume文件中的ID）")
	pflag.StringVar(&jobID, "job-id", "", "relate命令使用的岗位ID（缺省时取--job文件中的ID）")
	pflag.StringVar(&fromSkill, "from-skill", "", "link命令的源技能名")
	pflag.StringVar(&toSkill, "to-skill", "", "link命令的目标技能名")
	pflag.Float64Var(&linkWeight, "link-weight", 0.5, "link命令写入的关联边权重")
	pflag.BoolVar(&useMemoryIndex, "memory", false, "使用内存向量索引，不连接Qdrant/Neo4j/Redis（离线调试模式）")
	pflag.Parse()

	// 先用默认日志配置兜底，配置加载成功后再按配置重建
	logger.Init(logger.Config{Level: "info", Format: "pretty"})

	cfg, err := config.LoadConfig(configFilePath)
	if err != nil {
		logger.Fatal().Err(err).Msg("加载配置失败")
	}
	logger.Init(logger.Config{
		Level:        cfg.Logger.Level,
		Format:       cfg.Logger.Format,
		TimeFormat:   cfg.Logger.TimeFormat,
		ReportCaller: cfg.Logger.ReportCaller,
	})
	logger.Info().Str("command", command).Bool("memory_index", useMemoryIndex).Msg("匹配引擎启动")

	ctx := context.Background()

	shutdownTracing, err := tracing.InitProvider(ctx, tracing.ProviderConfig{
		ServiceName: cfg.Tracing.ServiceName,
		Endpoint:    cfg.Tracing.OTLPEndpoint,
		SampleRate:  cfg.Tracing.SampleRate,
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化追踪失败")
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(shutdownCtx); err != nil {
			logger.Warn().Err(err).Msg("关闭追踪导出器失败")
		}
	}()

	engine, cleanup := buildEngine(cfg)
	defer cleanup()

	if err := runCommand(ctx, engine); err != nil {
		// 输入与嵌入错误是致命错误，不存在可重试的降级路径
		if types.IsFatal(err) {
			logger.Fatal().Err(err).Str("command", command).Msg("输入或嵌入错误，命令无法继续")
		}
		logger.Fatal().Err(err).Str("command", command).Msg("命令执行失败")
	}
}

// buildEngine 按配置装配融合引擎的各个组件。
// 向量索引与嵌入器是硬依赖；图存储、嵌入缓存、解释模型失败时降级继续。
func buildEngine(cfg *config.Config) (*fusion.Engine, func()) {
	baseEmbedder, err := embedding.NewAliyunEmbedder(cfg.Aliyun.APIKey, cfg.Aliyun.Embedding)
	if err != nil {
		logger.Fatal().Err(err).Msg("初始化嵌入器失败，请检查ALIYUN_API_KEY")
	}

	var embedder embedding.TextEmbedder = baseEmbedder
	var closers []func()

	if !useMemoryIndex {
		redisAdapter, err := embedding.NewRedisAdapter(&cfg.Redis)
		if err != nil {
			logger.Warn().Err(err).Msg("Redis不可用，嵌入请求将直连API（无缓存）")
		} else {
			ttl := time.Duration(cfg.Aliyun.Embedding.CacheTTLHours) * time.Hour
			cached, err := embedding.NewCachedEmbedder(baseEmbedder, redisAdapter, cfg.Aliyun.Embedding.Model, ttl)
			if err != nil {
				logger.Warn().Err(err).Msg("创建嵌入缓存失败，嵌入请求将直连API")
				_ = redisAdapter.Close()
			} else {
				embedder = cached
				closers = append(closers, func() {
					if err := redisAdapter.Close(); err != nil {
						logger.Warn().Err(err).Msg("关闭Redis连接失败")
					}
				})
			}
		}
	}

	var index storage.VectorIndex
	if useMemoryIndex {
		index = storage.NewMemoryVectorIndex(cfg.Aliyun.Embedding.Dimensions)
		logger.Info().Int("dimensions", cfg.Aliyun.Embedding.Dimensions).Msg("使用内存向量索引")
	} else {
		qdrant, err := storage.NewQdrant(&cfg.Qdrant)
		if err != nil {
			logger.Fatal().Err(err).Str("endpoint", cfg.Qdrant.Endpoint).Msg("初始化Qdrant失败")
		}
		index = qdrant
	}

	var graph storage.GraphStore
	if !useMemoryIndex {
		neo4jGraph, err := storage.NewNeo4jGraph(&cfg.Neo4j)
		if err != nil {
			logger.Warn().Err(err).Str("uri", cfg.Neo4j.URI).
				Msg("Neo4j不可用，图检索将降级为空上下文")
		} else {
			graph = neo4jGraph
			closers = append(closers, func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				if err := neo4jGraph.Close(closeCtx); err != nil {
					logger.Warn().Err(err).Msg("关闭Neo4j连接失败")
				}
			})
		}
	}

	var generator explain.Generator
	chatModel, err := explain.NewAliyunChatModel(cfg.Aliyun.APIKey, cfg.Aliyun.APIURL, cfg.Explainer)
	if err != nil {
		logger.Warn().Err(err).Msg("初始化解释模型失败，解释将使用回退文案")
	} else {
		generator = explain.NewLLMGenerator(chatModel, cfg.Explainer)
	}

	calculator := matcher.NewCalculator(matcher.NewSkillNormalizer(cfg.ExtraSynonyms))

	engine, err := fusion.NewEngine(embedder, index, graph, calculator, generator, cfg.Fusion, cfg.Explainer)
	if err != nil {
		logger.Fatal().Err(err).Msg("创建融合引擎失败")
	}

	cleanup := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
	return engine, cleanup
}

func runCommand(ctx context.Context, engine *fusion.Engine) error {
	switch command {
	case "match":
		return runMatch(ctx, engine)
	case "index":
		return runIndex(ctx, engine)
	case "relate":
		return runRelate(ctx, engine)
	case "link":
		return runLink(ctx, engine)
	default:
		return fmt.Errorf("未知命令: %s (支持 match / index / relate / link)", command)
	}
}

func runMatch(ctx context.Context, engine *fusion.Engine) error {
	resume, job, err := loadInputs()
	if err != nil {
		return err
	}

	start := time.Now()
	result, err := engine.Match(ctx, resume, job)
	if err != nil {
		return err
	}
	logger.Info().
		Dur("elapsed", time.Since(start)).
		Int("suitability", result.Scores.Suitability).
		Strs("warnings", result.Warnings).
		Msg("匹配完成")

	return printJSON(result)
}

func runIndex(ctx context.Context, engine *fusion.Engine) error {
	resume, job, err := loadInputs()
	if err != nil {
		return err
	}

	if err := engine.Index(ctx, resume, job); err != nil {
		return err
	}
	logger.Info().Str("resume_id", resume.ID).Str("job_id", job.ID).Msg("文档入库完成")
	return nil
}

func runRelate(ctx context.Context, engine *fusion.Engine) error {
	rID, jID := resumeID, jobID
	if rID == "" && resumePath != "" {
		resume, err := loadResume(resumePath)
		if err != nil {
			return err
		}
		rID = resume.ID
	}
	if jID == "" && jobPath != "" {
		job, err := loadJob(jobPath)
		if err != nil {
			return err
		}
		jID = job.ID
	}
	if rID == "" || jID == "" {
		return fmt.Errorf("relate命令需要 --resume-id/--job-id 或 --resume/--job 文件")
	}

	labels, err := engine.Relate(ctx, rID, jID)
	if err != nil {
		return err
	}
	return printJSON(labels)
}

func runLink(ctx context.Context, engine *fusion.Engine) error {
	if fromSkill == "" || toSkill == "" {
		return fmt.Errorf("link命令需要同时指定 --from-skill 与 --to-skill")
	}

	if err := engine.LinkSkills(ctx, fromSkill, toSkill, linkWeight); err != nil {
		return err
	}
	logger.Info().
		Str("from", fromSkill).
		Str("to", toSkill).
		Float64("weight", linkWeight).
		Msg("技能关联写入完成")
	return nil
}

func loadInputs() (*types.ParsedResume, *types.ParsedJobDescription, error) {
	if resumePath == "" || jobPath == "" {
		return nil, nil, fmt.Errorf("%s命令需要同时指定 --resume 与 --job 文件", command)
	}
	resume, err := loadResume(resumePath)
	if err != nil {
		return nil, nil, err
	}
	job, err := loadJob(jobPath)
	if err != nil {
		return nil, nil, err
	}
	return resume, job, nil
}

func loadResume(path string) (*types.ParsedResume, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取简历文件失败: %w", err)
	}
	var resume types.ParsedResume
	if err := json.Unmarshal(data, &resume); err != nil {
		return nil, fmt.Errorf("解析简历JSON失败: %w", err)
	}
	return &resume, nil
}

func loadJob(path string) (*types.ParsedJobDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("读取岗位文件失败: %w", err)
	}
	var job types.ParsedJobDescription
	if err := json.Unmarshal(data, &job); err != nil {
		return nil, fmt.Errorf("解析岗位JSON失败: %w", err)
	}
	return &job, nil
}

func printJSON(v interface{}) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("序列化输出失败: %w", err)
	}
	fmt.Println(string(out))
	return nil
}
