package types

import "sort"

// SkillSet 规范化技能标识符集合。
// 集合语义：无重复，大小写与同义词不敏感的相等性由规范化阶段保证。
type SkillSet map[string]struct{}

// NewSkillSet 由已规范化的标识符构造集合
func NewSkillSet(ids ...string) SkillSet {
	s := make(SkillSet, len(ids))
	for _, id := range ids {
		if id != "" {
			s[id] = struct{}{}
		}
	}
	return s
}

// Add 添加一个规范化标识符
func (s SkillSet) Add(id string) {
	if id != "" {
		s[id] = struct{}{}
	}
}

// Contains 判断集合是否包含标识符
func (s SkillSet) Contains(id string) bool {
	_, ok := s[id]
	return ok
}

// Len 返回集合大小
func (s SkillSet) Len() int {
	return len(s)
}

// Intersect 返回两个集合的交集
func (s SkillSet) Intersect(other SkillSet) SkillSet {
	out := make(SkillSet)
	for id := range s {
		if other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Diff 返回属于s但不属于other的元素
func (s SkillSet) Diff(other SkillSet) SkillSet {
	out := make(SkillSet)
	for id := range s {
		if !other.Contains(id) {
			out[id] = struct{}{}
		}
	}
	return out
}

// Union 返回两个集合的并集
func (s SkillSet) Union(other SkillSet) SkillSet {
	out := make(SkillSet, len(s)+len(other))
	for id := range s {
		out[id] = struct{}{}
	}
	for id := range other {
		out[id] = struct{}{}
	}
	return out
}

// Sorted 返回按字典序排序的标识符切片，保证遍历结果确定
func (s SkillSet) Sorted() []string {
	out := make([]string, 0, len(s))
	for id := range s {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
