package llm

import (
	"strings"

	"costsense-go/internal/model"
	"costsense-go/pkg/icon"
)

// BuildSystemPrompt 生成所有供应商共用的系统指令。
func BuildSystemPrompt(vocab *icon.Vocabulary) string {
	var b strings.Builder
	b.WriteString(`You are an assistant that helps users design cloud architecture diagrams.

Only produce a diagram when the user explicitly asks for one (for example "draw", "create a diagram", "show the architecture"). For greetings, questions or anything else, answer conversationally and do not produce a diagram.

Diagrams are written in this DSL, one declaration per line:
  Cluster: <label>                 starts a group; following nodes belong to it until the next Cluster
  Node: <Icon> [name=<label>]      declares a node; <Icon> must be one of the identifiers below
  <label> -> <label>               connects two nodes by their names

Available icons by category:
`)
	for _, c := range vocab.Categories() {
		b.WriteString("  ")
		b.WriteString(c.Name)
		b.WriteString(": ")
		b.WriteString(strings.Join(c.Icons, ", "))
		b.WriteString("\n")
	}
	b.WriteString(`
Always respond with a single JSON object and nothing else:
  {"dsl": "<the diagram DSL, or null when no diagram was requested>", "explanation": "<a short explanation or your conversational reply>"}`)
	return b.String()
}

// turnText 返回发送给模型的单条历史文本，助手消息附带其图表 DSL。
func turnText(t model.ConversationTurn) string {
	if t.Role != model.RoleAssistant || t.DSL == nil {
		return t.Text
	}
	return t.Text + "\n```\n" + *t.DSL + "\n```"
}
