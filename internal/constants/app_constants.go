package constants

const (
	// DocumentSourceResume 向量库中简历文档的来源标记
	DocumentSourceResume = "resume"
	// DocumentSourceJob 向量库中JD文档的来源标记
	DocumentSourceJob = "job"

	// DefaultTopK 向量检索默认返回数量
	DefaultTopK = 5

	// DefaultGraphLabelLimit 图检索默认返回标签数量
	DefaultGraphLabelLimit = 10

	// RelationShared 图标签关系：双方共同可达的技能
	RelationShared = "shared"
	// RelationGap 图标签关系：仅岗位侧可达的技能（待发展技能）
	RelationGap = "gap"

	// WarnVectorDegraded 向量检索降级时附加到结果的警告
	WarnVectorDegraded = "vector_index: retrieval degraded to empty context"
	// WarnGraphDegraded 图检索降级时附加到结果的警告
	WarnGraphDegraded = "graph_store: retrieval degraded to empty context"
	// WarnExplanationFallback 解释生成失败回退时附加到结果的警告
	WarnExplanationFallback = "explanation: generator unavailable, fallback text used"
)
