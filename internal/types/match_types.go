package types

// EntityKind 图实体类型
type EntityKind string

const (
	// EntitySkill 技能实体
	EntitySkill EntityKind = "Skill"
	// EntityRole 职位角色实体
	EntityRole EntityKind = "Role"
	// EntityCandidate 候选人实体
	EntityCandidate EntityKind = "Candidate"
	// EntityJob 岗位实体
	EntityJob EntityKind = "Job"
)

// EdgeKind 图关系类型
type EdgeKind string

const (
	// EdgeHasSkill 候选人拥有技能
	EdgeHasSkill EdgeKind = "HAS_SKILL"
	// EdgeRequiresSkill 岗位要求技能
	EdgeRequiresSkill EdgeKind = "REQUIRES_SKILL"
	// EdgeRelatedTo 实体间的弱关联
	EdgeRelatedTo EdgeKind = "RELATED_TO"
)

// ExperienceEntry 一段工作/项目经历
type ExperienceEntry struct {
	Title          string `json:"title"`
	Organization   string `json:"organization"`
	Description    string `json:"description"`
	DurationMonths int    `json:"duration_months"`
}

// ParsedResume 上游解析器产出的结构化简历。
// 本核心只读取，不修改；缺失字段取零值（空切片而非nil语义缺失）。
type ParsedResume struct {
	ID              string            `json:"id"`
	CandidateName   string            `json:"candidate_name"`
	RawText         string            `json:"raw_text"`
	Skills          []string          `json:"skills"`
	Experience      []ExperienceEntry `json:"experience"`
	ExperienceTotal int               `json:"experience_total_months"` // 总经验（月），由上游汇总
}

// TotalExperienceMonths 返回总经验月数。
// 上游未给出汇总值时，从经历条目累加得出。
func (r *ParsedResume) TotalExperienceMonths() int {
	if r.ExperienceTotal > 0 {
		return r.ExperienceTotal
	}
	total := 0
	for _, e := range r.Experience {
		total += e.DurationMonths
	}
	return total
}

// ParsedJobDescription 上游解析器产出的结构化JD
type ParsedJobDescription struct {
	ID                  string   `json:"id"`
	Title               string   `json:"title"`
	RawText             string   `json:"raw_text"`
	RequiredSkills      []string `json:"required_skills"`
	PreferredSkills     []string `json:"preferred_skills"`
	MinExperienceMonths int      `json:"min_experience_months"`
}

// AllSkills 返回必须技能与加分技能的并集（保持出现顺序，必须技能在前）
func (j *ParsedJobDescription) AllSkills() []string {
	all := make([]string, 0, len(j.RequiredSkills)+len(j.PreferredSkills))
	all = append(all, j.RequiredSkills...)
	all = append(all, j.PreferredSkills...)
	return all
}

// ScoreBreakdown 四个维度均为[0,100]。
// Suitability 由其余三项加固定权重确定，四项要么全部给出要么全部缺失。
type ScoreBreakdown struct {
	Suitability         int     `json:"suitability"`
	SemanticSimilarity  float64 `json:"semantic_similarity"`
	SkillOverlap        float64 `json:"skill_overlap"`
	ExperienceRelevance float64 `json:"experience_relevance"`
}

// VectorHit 向量检索命中的历史文档
type VectorHit struct {
	DocumentID string  `json:"document_id"`
	Similarity float64 `json:"similarity"`
	Snippet    string  `json:"snippet"`
	Source     string  `json:"source"` // resume / job
}

// GraphLabel 图检索返回的关联实体标签
type GraphLabel struct {
	EntityID string     `json:"entity_id"`
	Name     string     `json:"name"`
	Kind     EntityKind `json:"kind"`
	Relation string     `json:"relation"` // shared / gap
	Weight   float64    `json:"weight"`
}

// RetrievalContext 融合检索上下文。
// 向量命中与图标签分开呈现（不做跨来源排序融合），保证可解释性。
type RetrievalContext struct {
	VectorHits  []VectorHit  `json:"vector_hits"`
	GraphLabels []GraphLabel `json:"graph_labels"`
}

// MatchResult 一次匹配操作的最终产物，所有权交给调用方
type MatchResult struct {
	CandidateName  string           `json:"candidate_name"`
	JobTitle       string           `json:"job_title"`
	Scores         ScoreBreakdown   `json:"scores"`
	MatchingSkills []string         `json:"matching_skills"`
	MissingSkills  []string         `json:"missing_skills"`
	Context        RetrievalContext `json:"context"`
	Explanation    string           `json:"explanation"`
	Questions      []string         `json:"interview_questions,omitempty"`
	Warnings       []string         `json:"warnings,omitempty"`
}
