// Package dsl turns raw model output into either a diagram or a conversational reply.
package dsl

import (
	"encoding/json"
	"errors"
	"regexp"
	"strings"

	"costsense-go/pkg/icon"
)

// ErrEmptyResponse 表示模型没有返回任何可用内容。
var ErrEmptyResponse = errors.New("model returned an empty response")

// Kind 标记解析结果的来源。
type Kind int

const (
	Conversational Kind = iota
	StructuredDiagram
	TextDiagram
)

func (k Kind) String() string {
	switch k {
	case StructuredDiagram:
		return "structured"
	case TextDiagram:
		return "text"
	default:
		return "conversational"
	}
}

// Result 是一次解析的结果。DSL 为 nil 表示纯对话回复。
type Result struct {
	Kind        Kind
	DSL         *string
	Explanation string
}

// IsDiagram 判断结果是否包含图表。
func (r Result) IsDiagram() bool {
	return r.DSL != nil
}

var (
	structureLine = regexp.MustCompile(`(?m)^[ \t]*(Cluster|Node):`)
	fencedBlock   = regexp.MustCompile("(?s)```[^\\n`]*\\n(.*?)```")
)

// Interpreter 依次尝试 JSON、结构化文本和对话三种解析方式。
type Interpreter struct {
	resolver    *icon.Resolver
	attribution string
}

// NewInterpreter 创建解析器，providerName 用于纯文本图表的说明文字。
func NewInterpreter(resolver *icon.Resolver, providerName string) *Interpreter {
	return &Interpreter{
		resolver:    resolver,
		attribution: "Diagram generated by " + providerName,
	}
}

// Interpret 解析模型输出。只有空输出会返回错误，JSON 格式错误会静默降级。
func (in *Interpreter) Interpret(raw string) (Result, error) {
	text := strings.TrimSpace(raw)
	if text == "" {
		return Result{}, ErrEmptyResponse
	}
	if r, ok := in.fromJSON(text); ok {
		return r, nil
	}
	if r, ok := in.fromText(text); ok {
		return r, nil
	}
	return Result{Kind: Conversational, Explanation: text}, nil
}

func (in *Interpreter) fromJSON(text string) (Result, bool) {
	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start < 0 || end <= start {
		return Result{}, false
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal([]byte(text[start:end+1]), &fields); err != nil {
		return Result{}, false
	}
	rawDSL, hasDSL := fields["dsl"]
	rawExplanation, hasExplanation := fields["explanation"]
	if !hasDSL || !hasExplanation {
		return Result{}, false
	}

	explanation := strings.TrimSpace(coerceText(rawExplanation))
	body := stripFences(coerceText(rawDSL))
	if body == "" {
		// {"dsl": null, "explanation": "..."} 是模型明确给出的对话回复
		if explanation == "" {
			return Result{}, false
		}
		return Result{Kind: Conversational, Explanation: explanation}, true
	}

	rewritten := in.resolver.RewriteDSL(body)
	return Result{Kind: StructuredDiagram, DSL: &rewritten, Explanation: explanation}, true
}

func (in *Interpreter) fromText(text string) (Result, bool) {
	if !structureLine.MatchString(text) {
		return Result{}, false
	}

	body := text
	for _, m := range fencedBlock.FindAllStringSubmatch(text, -1) {
		if structureLine.MatchString(m[1]) {
			body = m[1]
			break
		}
	}
	body = stripFences(body)
	if body == "" {
		return Result{}, false
	}

	rewritten := in.resolver.RewriteDSL(body)
	return Result{Kind: TextDiagram, DSL: &rewritten, Explanation: in.attribution}, true
}

// coerceText 返回 JSON 字符串的值，其他非 null 值按紧凑 JSON 文本返回。
func coerceText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}
	trimmed := strings.TrimSpace(string(raw))
	if trimmed == "null" {
		return ""
	}
	return trimmed
}

// stripFences 删除残留的 ``` 分隔行并去掉首尾空白。
func stripFences(s string) string {
	lines := strings.Split(s, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if strings.HasPrefix(strings.TrimSpace(line), "```") {
			continue
		}
		kept = append(kept, line)
	}
	return strings.TrimSpace(strings.Join(kept, "\n"))
}
