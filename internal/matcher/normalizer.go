package matcher

import (
	"strings"
	"unicode"

	"resume-match-go/internal/types"
)

// defaultSynonyms 内置同义词表：变体 -> 规范技能名。
// 未命中的token原样保留（开放世界假设：未知不等于无效）。
var defaultSynonyms = map[string]string{
	"js":                           "javascript",
	"nodejs":                       "javascript",
	"node js":                      "javascript",
	"typescript":                   "javascript",
	"python3":                      "python",
	"python programming":           "python",
	"python development":           "python",
	"golang":                       "go",
	"k8s":                          "kubernetes",
	"kube":                         "kubernetes",
	"container orchestration":      "kubernetes",
	"containers":                   "docker",
	"containerization":             "docker",
	"amazon web services":          "aws",
	"amazon aws":                   "aws",
	"google cloud platform":        "gcp",
	"google cloud":                 "gcp",
	"microsoft azure":              "azure",
	"azure cloud":                  "azure",
	"machine learning":             "ml",
	"ml algorithms":                "ml",
	"predictive modeling":          "ml",
	"large language model":         "llm",
	"large language models":        "llm",
	"llms":                         "llm",
	"generative ai":                "llm",
	"natural language processing":  "nlp",
	"text processing":              "nlp",
	"neural networks":              "deep learning",
	"cnn":                          "deep learning",
	"rnn":                          "deep learning",
	"lstm":                         "deep learning",
	"artificial intelligence":      "ai",
	"restful api":                  "rest api",
	"restful apis":                 "rest api",
	"rest apis":                    "rest api",
	"rest services":                "rest api",
	"continuous integration":       "ci cd",
	"continuous deployment":        "ci cd",
	"cicd":                         "ci cd",
	"ci cd":                        "ci cd",
	"devops":                       "ci cd",
	"relational database":          "sql",
	"mysql":                        "sql",
	"postgresql":                   "sql",
	"postgres":                     "sql",
	"no sql":                       "nosql",
	"mongodb":                      "nosql",
	"mongo":                        "nosql",
	"document database":            "nosql",
	"version control":              "git",
	"github":                       "git",
	"gitlab":                       "git",
	"source control":               "git",
	"spring boot":                  "java",
	"java programming":             "java",
	"java development":             "java",
}

// sectionPrefixes 技能token里常见的章节前缀，规范化时剥除
var sectionPrefixes = []string{
	"skills:",
	"skill:",
	"technical skills:",
	"technologies:",
	"tools:",
	"languages:",
	"programming languages:",
	"frameworks:",
	"frameworks & tools:",
	"databases:",
	"platforms:",
	"software:",
	"ai/ml tools:",
}

// SkillNormalizer 技能规范化器。
// 同义词表进程启动时加载一次，之后只读。
type SkillNormalizer struct {
	synonyms map[string]string
}

// NewSkillNormalizer 创建规范化器，extra中的映射会覆盖内置同义词表
func NewSkillNormalizer(extra map[string]string) *SkillNormalizer {
	synonyms := make(map[string]string, len(defaultSynonyms)+len(extra))
	for variant, canonical := range defaultSynonyms {
		synonyms[variant] = canonical
	}
	for variant, canonical := range extra {
		v := canonicalToken(variant)
		c := canonicalToken(canonical)
		if v != "" && c != "" {
			synonyms[v] = c
		}
	}
	return &SkillNormalizer{synonyms: synonyms}
}

// Normalize 将自由格式的技能token序列规范化为技能集合。
// 空输入返回空集合，从不报错。
func (n *SkillNormalizer) Normalize(tokens []string) types.SkillSet {
	out := make(types.SkillSet, len(tokens))
	for _, token := range tokens {
		id := n.NormalizeOne(token)
		if id != "" {
			out.Add(id)
		}
	}
	return out
}

// NormalizeOne 规范化单个token，无内容时返回空字符串
func (n *SkillNormalizer) NormalizeOne(token string) string {
	id := canonicalToken(token)
	if id == "" {
		return ""
	}
	if canonical, ok := n.synonyms[id]; ok {
		return canonical
	}
	return id
}

// canonicalToken 基础文本规范化：小写、剥前缀、连字符和斜杠转空格、
// 去标点、压缩空白
func canonicalToken(token string) string {
	s := strings.ToLower(strings.TrimSpace(token))
	if s == "" {
		return ""
	}

	for _, prefix := range sectionPrefixes {
		if strings.HasPrefix(s, prefix) {
			s = strings.TrimSpace(s[len(prefix):])
			break
		}
	}
	// "Databases: MySQL" 这类带类目的写法，保留冒号后的实际技能
	if idx := strings.LastIndex(s, ":"); idx >= 0 && idx < len(s)-1 {
		s = strings.TrimSpace(s[idx+1:])
	}

	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		switch {
		case r == '-' || r == '/':
			b.WriteRune(' ')
		case unicode.IsLetter(r) || unicode.IsDigit(r) || r == ' ' || r == '+' || r == '#':
			// c++ / c# 这类名字里的符号是技能名的一部分
			b.WriteRune(r)
		}
	}

	return strings.Join(strings.Fields(b.String()), " ")
}
