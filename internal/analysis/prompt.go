package analysis

import (
	"strings"
	"unicode/utf8"

	"github.com/helixir/paper-analysis-service/internal/domain"
)

// DefaultSystemPrompt is the system message sent with every analysis.
const DefaultSystemPrompt = "You are an expert in time series analysis and academic paper review. Provide detailed, insightful analysis."

// DefaultMaxFullTextChars bounds the full text embedded in a prompt.
const DefaultMaxFullTextChars = 8000

const promptInstructions = `请按照以下五个维度进行分析，每个维度都要详细且深入：

## Background（问题背景）
为什么会有这个问题存在？包括：
- 场景描述：这个问题出现在什么场景下
- 面临瓶颈：当前方法遇到了什么困难
- 发展现状：该领域的研究现状如何

## What（解决方案）
做什么？包括：
- Goal（目标）：论文要解决什么问题
- Results（成果）：取得了什么成果，用数据说话

## Why（价值与挑战）
为什么要做这件事？包括：
- Values（价值）：解决这个问题有什么意义
- Challenges（挑战）：面临哪些技术挑战

## How（实现方法）
怎么做这件事？包括：
- 框架：整体架构是什么
- 模块：包含哪些关键模块
- 关键步骤：核心算法或方法的步骤
- 交互逻辑：各部分如何协同工作

## How-why（方法论证）
为什么采用这种方法？包括：
- Insights（洞察）：作者的关键洞察是什么
- Advantages（优势）：这种方法相比其他方法的优势

## Summary（核心要点）
用3-5句话总结论文的核心贡献和价值

请用中文回答，每个维度都要详细展开，使用 Markdown 格式。`

// BuildPrompt renders the user message for paper. Full text is preferred
// and cut to maxFullTextChars runes; without it the abstract is used along
// with a note that only the abstract is available. A non-positive
// maxFullTextChars disables truncation.
func BuildPrompt(paper *domain.Paper, maxFullTextChars int) string {
	var b strings.Builder
	b.WriteString("请对以下研究论文进行深度分析：\n\n")
	b.WriteString("标题: ")
	b.WriteString(paper.Title)
	b.WriteString("\n\n作者: ")
	b.WriteString(paper.AuthorList())
	b.WriteString("\n\n")

	if paper.HasFullText() {
		b.WriteString("论文内容:\n\n")
		b.WriteString(truncateRunes(paper.FullText, maxFullTextChars))
	} else {
		b.WriteString("摘要: ")
		b.WriteString(paper.Abstract)
		b.WriteString("\n\n注意：当前只有摘要信息，请基于摘要进行深入推理和分析。")
	}

	b.WriteString("\n\n")
	b.WriteString(promptInstructions)
	return b.String()
}

// truncateRunes returns the first n runes of s.
func truncateRunes(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
