package matcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSynonyms(t *testing.T) {
	n := NewSkillNormalizer(nil)

	tests := []struct {
		in   string
		want string
	}{
		{"JS", "javascript"},
		{"NodeJS", "javascript"},
		{"Golang", "go"},
		{"K8s", "kubernetes"},
		{"Amazon Web Services", "aws"},
		{"MySQL", "sql"},
		{"PostgreSQL", "sql"},
		{"MongoDB", "nosql"},
		{"GitHub", "git"},
		{"Machine-Learning", "ml"},
		{"Large Language Models", "llm"},
		// 不在同义词表里的token规范化后原样保留
		{"Rust", "rust"},
		{"C++", "c++"},
		{"C#", "c#"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, n.NormalizeOne(tt.in), "token=%q", tt.in)
	}
}

func TestNormalizeStripsNoise(t *testing.T) {
	n := NewSkillNormalizer(nil)

	// 章节前缀与类目冒号都应剥除
	assert.Equal(t, "python", n.NormalizeOne("Skills: Python"))
	assert.Equal(t, "sql", n.NormalizeOne("Databases: MySQL"))
	assert.Equal(t, "ci cd", n.NormalizeOne("CI/CD"))
	assert.Equal(t, "rest api", n.NormalizeOne("  RESTful   APIs  "))

	// 空白或纯标点的token直接丢弃
	assert.Equal(t, "", n.NormalizeOne(""))
	assert.Equal(t, "", n.NormalizeOne("   "))
	assert.Equal(t, "", n.NormalizeOne("!!!"))
}

func TestNormalizeSetSemantics(t *testing.T) {
	n := NewSkillNormalizer(nil)

	// 变体收敛到同一规范名后去重
	set := n.Normalize([]string{"Golang", "golang", "Go", "K8s", "Kubernetes"})
	assert.Equal(t, []string{"go", "kubernetes"}, set.Sorted())

	assert.Equal(t, 0, n.Normalize(nil).Len())
}

func TestNormalizeExtraOverrides(t *testing.T) {
	// 配置注入的映射可以覆盖内置表
	n := NewSkillNormalizer(map[string]string{
		"Golang":    "golang-lang",
		"ClickHouse": "olap",
	})

	assert.Equal(t, "golang lang", n.NormalizeOne("golang"))
	assert.Equal(t, "olap", n.NormalizeOne("Clickhouse"))
	// 其余内置映射不受影响
	assert.Equal(t, "kubernetes", n.NormalizeOne("k8s"))
}
