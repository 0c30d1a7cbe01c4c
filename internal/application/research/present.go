package research

import (
	"fmt"
	"strings"

	"spec-forge-api/internal/domain/entity"
)

var phaseNames = map[int]string{
	1: "domain analysis",
	2: "feature decomposition",
	3: "technical requirements",
	4: "competitive gaps",
}

// PhaseName 阶段的展示名称
func PhaseName(n int) string {
	if name, ok := phaseNames[n]; ok {
		return name
	}
	return fmt.Sprintf("phase %d", n)
}

// Present 把阶段载荷渲染为展示给用户的对话内容
func Present(n int, payload any, novelCategory bool) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Research phase %d of %d: %s\n\n", n, entity.ResearchPhaseCount, PhaseName(n))

	switch p := payload.(type) {
	case *entity.DomainAnalysis:
		if novelCategory {
			b.WriteString("No direct competitors were found. This looks like a novel category.\n")
		} else {
			fmt.Fprintf(&b, "Competitors found: %d\n", len(p.Competitors))
			for _, c := range p.Competitors {
				fmt.Fprintf(&b, "- %s\n", c.Name)
			}
		}
		if len(p.ComplianceFlags) > 0 {
			fmt.Fprintf(&b, "Compliance concerns: %s\n", strings.Join(p.ComplianceFlags, ", "))
		}
		b.WriteString("\n" + p.Narrative + "\n")
	case *entity.FeatureTree:
		for _, a := range p.Areas {
			n := 0
			for _, sf := range a.SubFeatures {
				n += len(sf.Components)
			}
			fmt.Fprintf(&b, "- %s (%d sub-features, %d components)\n", a.Name, len(a.SubFeatures), n)
		}
	case *entity.TechRequirements:
		fmt.Fprintf(&b, "Recommended stack: %s / %s / %s on %s\n",
			p.Stack.Frontend, p.Stack.Backend, p.Stack.Database, p.Stack.Hosting)
		fmt.Fprintf(&b, "Estimated build: %d-%d hours, hosting about $%.0f per month\n",
			p.Estimates.BuildHoursLow, p.Estimates.BuildHoursHigh, p.Estimates.MonthlyHostingUSD)
	case *entity.CompetitiveGaps:
		fmt.Fprintf(&b, "Unique angle: %s\n", p.UniqueAngle)
		b.WriteString("MVP scope:\n")
		for _, s := range p.MVPScope {
			fmt.Fprintf(&b, "- %s\n", s)
		}
	default:
		b.WriteString("This phase was skipped.\n")
	}

	if n < entity.ResearchPhaseCount {
		b.WriteString("\nReply with any corrections or priorities before the next phase runs.")
	}
	return strings.TrimSpace(b.String())
}
