package matcher

import (
	"fmt"
	"math"

	"resume-match-go/internal/types"
)

// 适配度的固定权重。
// suitability = 0.4*semantic + 0.35*skill + 0.25*experience
const (
	weightSemantic   = 0.40
	weightSkill      = 0.35
	weightExperience = 0.25
)

// Calculator 匹配分数计算器。
// 相同输入永远产出相同结果：无随机性、无时间依赖。
type Calculator struct {
	normalizer *SkillNormalizer
}

// NewCalculator 创建计算器
func NewCalculator(normalizer *SkillNormalizer) *Calculator {
	if normalizer == nil {
		normalizer = NewSkillNormalizer(nil)
	}
	return &Calculator{normalizer: normalizer}
}

// Normalizer 返回计算器使用的技能规范化器
func (c *Calculator) Normalizer() *SkillNormalizer {
	return c.normalizer
}

// Score 计算简历与JD的四维分数。
// 向量维度不一致视为嵌入契约被破坏，返回嵌入错误。
func (c *Calculator) Score(resume *types.ParsedResume, job *types.ParsedJobDescription, resumeVec, jobVec []float64) (types.ScoreBreakdown, error) {
	if len(resumeVec) != len(jobVec) {
		return types.ScoreBreakdown{}, fmt.Errorf("%w: vector dimension mismatch %d != %d",
			types.ErrEmbedding, len(resumeVec), len(jobVec))
	}

	semantic := rescaleCosine(CosineSimilarity(resumeVec, jobVec))
	skill := c.skillOverlap(resume, job)
	experience := experienceRelevance(resume.TotalExperienceMonths(), job.MinExperienceMonths)

	suitability := int(math.Round(weightSemantic*semantic + weightSkill*skill + weightExperience*experience))
	suitability = clampInt(suitability, 0, 100)

	return types.ScoreBreakdown{
		Suitability:         suitability,
		SemanticSimilarity:  round2(semantic),
		SkillOverlap:        round2(skill),
		ExperienceRelevance: round2(experience),
	}, nil
}

// MatchingSkills 返回简历与JD（必须∪加分）技能的规范化交集，按字典序排序
func (c *Calculator) MatchingSkills(resume *types.ParsedResume, job *types.ParsedJobDescription) []string {
	resumeSkills := c.normalizer.Normalize(resume.Skills)
	jobSkills := c.normalizer.Normalize(job.AllSkills())
	return resumeSkills.Intersect(jobSkills).Sorted()
}

// MissingSkills 返回JD要求但简历缺失的规范化技能，按字典序排序
func (c *Calculator) MissingSkills(resume *types.ParsedResume, job *types.ParsedJobDescription) []string {
	resumeSkills := c.normalizer.Normalize(resume.Skills)
	jobSkills := c.normalizer.Normalize(job.AllSkills())
	return jobSkills.Diff(resumeSkills).Sorted()
}

// skillOverlap 技能重合度，0-100。
// JD完全没有技能要求时视为空匹配成立，返回100。
func (c *Calculator) skillOverlap(resume *types.ParsedResume, job *types.ParsedJobDescription) float64 {
	jobSkills := c.normalizer.Normalize(job.AllSkills())
	if jobSkills.Len() == 0 {
		return 100
	}
	resumeSkills := c.normalizer.Normalize(resume.Skills)
	matched := resumeSkills.Intersect(jobSkills)
	return float64(matched.Len()) / float64(jobSkills.Len()) * 100
}

// experienceRelevance 经验相关度，0-100。
// JD不要求经验时任何候选人都满足；封顶100，超额经验不额外加分。
func experienceRelevance(resumeMonths, jobMinMonths int) float64 {
	if jobMinMonths <= 0 {
		return 100
	}
	if resumeMonths < 0 {
		resumeMonths = 0
	}
	return math.Min(100, 100*float64(resumeMonths)/float64(jobMinMonths))
}

// CosineSimilarity 计算两个向量的余弦相似度。
// 任一向量为零向量时定义为0，保证下游计算始终良定义。
func CosineSimilarity(a, b []float64) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += a[i] * b[i]
		normA += a[i] * a[i]
		normB += b[i] * b[i]
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}

// rescaleCosine 把[-1,1]的余弦相似度线性映射到[0,100]并夹取
func rescaleCosine(cos float64) float64 {
	scaled := (cos + 1) / 2 * 100
	return math.Max(0, math.Min(100, scaled))
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
