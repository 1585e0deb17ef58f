package storage

import (
	"context"
	"fmt"
	"strings"
	"time"

	"resume-match-go/internal/config"
	"resume-match-go/internal/constants"
	"resume-match-go/internal/tracing"
	"resume-match-go/internal/types"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// 定义Neo4j的专用tracer
var neo4jTracer = otel.Tracer("resume-match-go/storage/neo4j")

// 图中技能边的固定权重
const (
	weightHasSkill       = 1.0
	weightRequiredSkill  = 1.0
	weightPreferredSkill = 0.5
	weightRoleRelation   = 0.5
)

// GraphStore 关系图存储接口。
// relate是尽力而为的上下文增强：任一实体不在图中时返回空序列而非错误。
type GraphStore interface {
	StoreResumeGraph(ctx context.Context, resume *types.ParsedResume, skills []string) error
	StoreJobGraph(ctx context.Context, job *types.ParsedJobDescription, required, preferred []string) error
	Relate(ctx context.Context, resumeID, jobID string, limit int) ([]types.GraphLabel, error)
}

// SkillLinker 支持在技能节点之间显式写入关联边的图存储
type SkillLinker interface {
	LinkSkills(ctx context.Context, from, to string, weight float64) error
}

// 确保Neo4jGraph实现了GraphStore与SkillLinker接口
var (
	_ GraphStore  = (*Neo4jGraph)(nil)
	_ SkillLinker = (*Neo4jGraph)(nil)
)

// Neo4jGraph 基于Neo4j的关系图存储
type Neo4jGraph struct {
	driver   neo4j.DriverWithContext
	hopLimit int
}

// NewNeo4jGraph 创建并验证Neo4j连接
func NewNeo4jGraph(cfg *config.Neo4jConfig) (*Neo4jGraph, error) {
	if cfg == nil {
		return nil, fmt.Errorf("neo4j配置不能为空")
	}

	driver, err := neo4j.NewDriverWithContext(
		cfg.URI,
		neo4j.BasicAuth(cfg.Username, cfg.Password, ""),
	)
	if err != nil {
		return nil, fmt.Errorf("创建Neo4j driver失败: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(ctx)
		return nil, fmt.Errorf("验证Neo4j连接失败: %w", err)
	}

	hopLimit := cfg.RelateHopLimit
	if hopLimit <= 0 {
		hopLimit = 2
	}

	return &Neo4jGraph{
		driver:   driver,
		hopLimit: hopLimit,
	}, nil
}

// Close 关闭Neo4j连接
func (g *Neo4jGraph) Close(ctx context.Context) error {
	if g.driver != nil {
		return g.driver.Close(ctx)
	}
	return nil
}

// StoreResumeGraph 将简历写入关系图。
// skills应为规范化后的技能名；经历条目的职位名写成Role节点并与简历关联。
// 同一简历重复写入幂等；FOREACH保证任一列表为空时其余写入照常进行。
func (g *Neo4jGraph) StoreResumeGraph(ctx context.Context, resume *types.ParsedResume, skills []string) error {
	ctx, span := neo4jTracer.Start(ctx, "Neo4jGraph.StoreResumeGraph",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("resume.id", resume.ID),
		attribute.Int("skills.count", len(skills)),
	)

	if resume.ID == "" {
		err := types.NewInputError("resume.id")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	roles := make([]string, 0, len(resume.Experience))
	for _, entry := range resume.Experience {
		roles = append(roles, entry.Title)
	}

	query := `
		MERGE (r:Resume {id: $id})
		SET r.name = $name
		FOREACH (skill IN $skills |
			MERGE (s:Skill {name: skill})
			MERGE (r)-[h:HAS_SKILL]->(s)
			SET h.weight = $skillWeight)
		FOREACH (role IN $roles |
			MERGE (ro:Role {name: role})
			MERGE (r)-[t:RELATED_TO]->(ro)
			SET t.weight = $roleWeight)
	`
	span.SetAttributes(attribute.String("db.statement", tracing.SafeCypher(query)))

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"id":          resume.ID,
			"name":        resume.CandidateName,
			"skills":      dedupeStrings(skills),
			"roles":       dedupeStrings(roles),
			"skillWeight": weightHasSkill,
			"roleWeight":  weightRoleRelation,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return fmt.Errorf("写入简历图失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// StoreJobGraph 将JD写入关系图。
// 必须技能边权重1.0，加分技能边权重0.5；同一技能同时出现时保留必须权重。
func (g *Neo4jGraph) StoreJobGraph(ctx context.Context, job *types.ParsedJobDescription, required, preferred []string) error {
	ctx, span := neo4jTracer.Start(ctx, "Neo4jGraph.StoreJobGraph",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("job.id", job.ID),
		attribute.Int("skills.required", len(required)),
		attribute.Int("skills.preferred", len(preferred)),
	)

	if job.ID == "" {
		err := types.NewInputError("job.id")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	requiredSet := types.NewSkillSet(required...)
	// 必须技能优先：同时在加分列表里的技能只按必须写入
	var preferredOnly []string
	for _, skill := range dedupeStrings(preferred) {
		if !requiredSet.Contains(skill) {
			preferredOnly = append(preferredOnly, skill)
		}
	}

	query := `
		MERGE (j:Job {id: $id})
		SET j.title = $title
		FOREACH (skill IN $required |
			MERGE (s:Skill {name: skill})
			MERGE (j)-[q:REQUIRES_SKILL]->(s)
			SET q.weight = $requiredWeight)
		FOREACH (skill IN $preferred |
			MERGE (s:Skill {name: skill})
			MERGE (j)-[q:REQUIRES_SKILL]->(s)
			SET q.weight = $preferredWeight)
	`
	span.SetAttributes(attribute.String("db.statement", tracing.SafeCypher(query)))

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"id":              job.ID,
			"title":           job.Title,
			"required":        dedupeStrings(required),
			"preferred":       preferredOnly,
			"requiredWeight":  weightRequiredSkill,
			"preferredWeight": weightPreferredSkill,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return fmt.Errorf("写入JD图失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// LinkSkills 在两个技能节点之间建立RELATED_TO关联边。
// 关联边扩大relate的可达范围：简历侧技能经关联边可命中JD要求的近邻技能。
func (g *Neo4jGraph) LinkSkills(ctx context.Context, from, to string, weight float64) error {
	ctx, span := neo4jTracer.Start(ctx, "Neo4jGraph.LinkSkills",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("skill.from", from),
		attribute.String("skill.to", to),
	)

	if from == "" || to == "" || from == to {
		err := fmt.Errorf("无效的技能关联: %q -> %q", from, to)
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return err
	}

	query := `
		MERGE (a:Skill {name: $from})
		MERGE (b:Skill {name: $to})
		MERGE (a)-[l:RELATED_TO]->(b)
		SET l.weight = $weight
	`

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeWrite})
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"from":   from,
			"to":     to,
			"weight": weight,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return fmt.Errorf("写入技能关联失败: %w", err)
	}

	span.SetStatus(codes.Ok, "")
	return nil
}

// Relate 从简历与JD两侧向外遍历，返回共同可达的技能与岗位侧缺口技能。
// 遍历深度受固定跳数限制；结果按边权重降序、名称升序排序，保证确定性。
func (g *Neo4jGraph) Relate(ctx context.Context, resumeID, jobID string, limit int) ([]types.GraphLabel, error) {
	ctx, span := neo4jTracer.Start(ctx, "Neo4jGraph.Relate",
		trace.WithSpanKind(trace.SpanKindClient))
	defer span.End()

	span.SetAttributes(
		attribute.String("db.system", "neo4j"),
		attribute.String("resume.id", resumeID),
		attribute.String("job.id", jobID),
		attribute.Int("relate.limit", limit),
		attribute.Int("relate.hop_limit", g.hopLimit),
	)

	if resumeID == "" || jobID == "" {
		err := types.NewInputError("relate ids")
		tracing.RecordError(span, err, tracing.ErrorTypeValidation)
		return nil, err
	}
	if limit <= 0 {
		span.SetStatus(codes.Ok, "limit<=0, empty result")
		return []types.GraphLabel{}, nil
	}

	// HAS_SKILL算第1跳，剩余跳数沿RELATED_TO扩展
	relatedDepth := g.hopLimit - 1
	if relatedDepth < 0 {
		relatedDepth = 0
	}
	query := fmt.Sprintf(`
		MATCH (r:Resume {id: $resumeId})
		MATCH (j:Job {id: $jobId})
		MATCH (j)-[req:REQUIRES_SKILL]->(s:Skill)
		WITH DISTINCT s, max(req.weight) AS weight, r
		WITH s, weight,
			(EXISTS { (r)-[:HAS_SKILL]->(s) } OR
			 EXISTS { (r)-[:HAS_SKILL]->(:Skill)-[:RELATED_TO*1..%d]->(s) }) AS reachable
		RETURN s.name AS name, weight,
			CASE WHEN reachable THEN $shared ELSE $gap END AS relation
		ORDER BY weight DESC, name ASC
		LIMIT $limit
	`, maxInt(relatedDepth, 1))
	span.SetAttributes(attribute.String("db.statement", tracing.SafeCypher(query)))

	session := g.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	records, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, query, map[string]interface{}{
			"resumeId": resumeID,
			"jobId":    jobID,
			"limit":    limit,
			"shared":   constants.RelationShared,
			"gap":      constants.RelationGap,
		})
		if err != nil {
			return nil, err
		}
		return result.Collect(ctx)
	})
	if err != nil {
		tracing.RecordError(span, err, tracing.ErrorTypeGraphDB)
		return nil, fmt.Errorf("relate查询失败: %w", err)
	}

	labels := make([]types.GraphLabel, 0)
	for _, record := range records.([]*neo4j.Record) {
		label := types.GraphLabel{Kind: types.EntitySkill}
		if v, ok := record.Get("name"); ok {
			if name, ok := v.(string); ok {
				label.Name = name
				label.EntityID = name
			}
		}
		if v, ok := record.Get("weight"); ok {
			if w, ok := v.(float64); ok {
				label.Weight = w
			}
		}
		if v, ok := record.Get("relation"); ok {
			if rel, ok := v.(string); ok {
				label.Relation = rel
			}
		}
		if label.Name == "" {
			continue
		}
		labels = append(labels, label)
	}

	span.SetAttributes(attribute.Int("relate.results.count", len(labels)))
	span.SetStatus(codes.Ok, "")
	return labels, nil
}

// dedupeStrings 去重并保持首次出现顺序，空串剔除
func dedupeStrings(in []string) []string {
	seen := make(map[string]struct{}, len(in))
	out := make([]string, 0, len(in))
	for _, s := range in {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		out = append(out, s)
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
