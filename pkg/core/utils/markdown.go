package utils

import (
	"strings"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/ast"
	"github.com/yuin/goldmark/text"
)

// CleanMarkdown strips conversational whitespace and outer markdown code blocks.
func CleanMarkdown(input string) string {
	cleaned := strings.TrimSpace(input)

	if !strings.HasPrefix(cleaned, "```") || !strings.HasSuffix(cleaned, "```") || len(cleaned) < 6 {
		return cleaned
	}

	// Strip outer wrapping code block with an optional info string (```json, ```markdown)
	cleaned = strings.TrimSuffix(strings.TrimPrefix(cleaned, "```"), "```")
	if nl := strings.Index(cleaned, "\n"); nl >= 0 {
		info := strings.TrimSpace(cleaned[:nl])
		if info != "" && !strings.ContainsAny(info, " {[") {
			cleaned = cleaned[nl+1:]
		}
	}
	return strings.TrimSpace(cleaned)
}

// MarkdownToText renders markdown as plain text, one block per paragraph.
// Headings, list items and code blocks keep their text; markup is dropped.
func MarkdownToText(input string) string {
	source := []byte(input)
	doc := goldmark.DefaultParser().Parse(text.NewReader(source))

	var b strings.Builder
	_ = ast.Walk(doc, func(n ast.Node, entering bool) (ast.WalkStatus, error) {
		switch node := n.(type) {
		case *ast.Text:
			if entering {
				b.Write(node.Segment.Value(source))
				if node.SoftLineBreak() || node.HardLineBreak() {
					b.WriteByte(' ')
				}
			}
		case *ast.String:
			if entering {
				b.Write(node.Value)
			}
		case *ast.CodeBlock, *ast.FencedCodeBlock:
			if entering {
				lines := n.Lines()
				for i := 0; i < lines.Len(); i++ {
					line := lines.At(i)
					b.Write(line.Value(source))
				}
				return ast.WalkSkipChildren, nil
			}
		}
		if !entering && n.Type() == ast.TypeBlock && n.Kind() != ast.KindDocument {
			if !strings.HasSuffix(b.String(), "\n\n") {
				b.WriteString("\n\n")
			}
		}
		return ast.WalkContinue, nil
	})

	return strings.TrimSpace(collapseBlankLines(b.String()))
}

func collapseBlankLines(s string) string {
	lines := strings.Split(s, "\n")
	out := lines[:0]
	blank := 0
	for _, l := range lines {
		l = strings.TrimRight(l, " \t")
		if l == "" {
			blank++
			if blank > 1 {
				continue
			}
		} else {
			blank = 0
		}
		out = append(out, l)
	}
	return strings.Join(out, "\n")
}
