package specgen

import (
	"fmt"
	"strings"

	"spec-forge-api/internal/domain/entity"
)

// RenderMarkdown 将结构化文档确定性地渲染为 Markdown
func RenderMarkdown(title string, gates *entity.SpecGates, est Estimate, score int) string {
	var b strings.Builder
	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Quality score: %d/100. Complexity: %s. Estimated build: %d-%d hours.\n\n",
		score, est.Complexity, est.BuildHoursLow, est.BuildHoursHigh)
	if gates == nil {
		return b.String()
	}

	b.WriteString("## 1. Entities\n\n")
	for _, e := range gates.Entities {
		fmt.Fprintf(&b, "### %s\n\n", e.Name)
		if e.Description != "" {
			b.WriteString(e.Description + "\n\n")
		}
		b.WriteString("| Field | Type | Required | References |\n|---|---|---|---|\n")
		for _, f := range e.Fields {
			fmt.Fprintf(&b, "| %s | %s | %s | %s |\n", f.Name, f.Type, yesNo(f.Required), f.References)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 2. State machines\n\n")
	for _, sm := range gates.StateMachines {
		fmt.Fprintf(&b, "### %s\n\nInitial: `%s`. Terminal: %s.\n\n", sm.Entity, sm.Initial, codeList(sm.Terminal))
		for _, t := range sm.Transitions {
			fmt.Fprintf(&b, "- `%s` -> `%s` on %s\n", t.From, t.To, t.Trigger)
		}
		b.WriteString("\n")
	}

	b.WriteString("## 3. Permissions\n\n")
	for _, p := range gates.Permissions {
		fmt.Fprintf(&b, "### %s\n\n", p.Entity)
		for _, r := range p.Rules {
			fmt.Fprintf(&b, "- %s: %s\n", r.Role, strings.Join(r.Actions, ", "))
		}
		b.WriteString("\n")
	}

	b.WriteString("## 4. Operations\n\n| Entity | Operation | Kind | UI elements | Components |\n|---|---|---|---|---|\n")
	for _, op := range gates.Operations {
		fmt.Fprintf(&b, "| %s | %s | %s | %s | %s |\n",
			op.Entity, op.Name, op.Kind, strings.Join(op.UIElements, ", "), strings.Join(op.ComponentIDs, ", "))
	}
	b.WriteString("\n")

	b.WriteString("## 5. Integrations\n\n")
	if len(gates.Integrations) == 0 {
		b.WriteString("None.\n\n")
	}
	for _, in := range gates.Integrations {
		fmt.Fprintf(&b, "### %s\n\n%s\n\n- Auth: %s\n- Endpoints: %s\n- Error handling: %s\n\n",
			in.Name, in.Purpose, in.Auth, codeList(in.Endpoints), in.ErrorHandling)
	}

	b.WriteString("## 6. Dependencies\n\n")
	for _, d := range gates.Dependencies {
		if d.Kind != "" {
			fmt.Fprintf(&b, "- %s -> %s (%s)\n", d.From, d.To, d.Kind)
		} else {
			fmt.Fprintf(&b, "- %s -> %s\n", d.From, d.To)
		}
	}
	return strings.TrimRight(b.String(), "\n") + "\n"
}

func yesNo(v bool) string {
	if v {
		return "yes"
	}
	return "no"
}

func codeList(items []string) string {
	if len(items) == 0 {
		return "none"
	}
	quoted := make([]string, len(items))
	for i, it := range items {
		quoted[i] = "`" + it + "`"
	}
	return strings.Join(quoted, ", ")
}
