package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Competitor 竞品摘要
type Competitor struct {
	Name       string   `json:"name"`
	URL        string   `json:"url,omitempty"`
	Features   []string `json:"features"`
	Strengths  []string `json:"strengths"`
	Weaknesses []string `json:"weaknesses"`
}

// DomainAnalysis phase_1：领域与竞品分析
type DomainAnalysis struct {
	Competitors     []Competitor `json:"competitors"`
	PainPoints      []string     `json:"pain_points"`
	ComplianceFlags []string     `json:"compliance_flags"`
	Narrative       string       `json:"narrative"`
}

// Validate 校验结构完整性
func (d *DomainAnalysis) Validate() error {
	if strings.TrimSpace(d.Narrative) == "" {
		return errors.New("narrative is required")
	}
	for i, c := range d.Competitors {
		if strings.TrimSpace(c.Name) == "" {
			return fmt.Errorf("competitors[%d].name is required", i)
		}
	}
	return nil
}

// IsNovelCategory 未发现任何竞品
func (d *DomainAnalysis) IsNovelCategory() bool {
	return len(d.Competitors) == 0
}

// AtomicComponent 功能树叶子节点
type AtomicComponent struct {
	ID                string   `json:"id"`
	Name              string   `json:"name"`
	Description       string   `json:"description,omitempty"`
	CompetitorsWithIt []string `json:"competitors_with_it"`
}

// SubFeature 子功能
type SubFeature struct {
	Name       string            `json:"name"`
	Components []AtomicComponent `json:"components"`
}

// FeatureArea 功能域
type FeatureArea struct {
	Name        string       `json:"name"`
	SubFeatures []SubFeature `json:"sub_features"`
}

// FeatureTree phase_2：功能分解树
type FeatureTree struct {
	Areas []FeatureArea `json:"areas"`
}

// Validate 校验结构完整性，组件 ID 需全局唯一
func (f *FeatureTree) Validate() error {
	if len(f.Areas) == 0 {
		return errors.New("at least one feature area is required")
	}
	seen := make(map[string]bool)
	for i, a := range f.Areas {
		if strings.TrimSpace(a.Name) == "" {
			return fmt.Errorf("areas[%d].name is required", i)
		}
		for j, sf := range a.SubFeatures {
			for k, c := range sf.Components {
				if c.ID == "" || c.Name == "" {
					return fmt.Errorf("areas[%d].sub_features[%d].components[%d] requires id and name", i, j, k)
				}
				if seen[c.ID] {
					return fmt.Errorf("duplicate component id %q", c.ID)
				}
				seen[c.ID] = true
			}
		}
	}
	return nil
}

// Components 按树序返回全部原子组件
func (f *FeatureTree) Components() []AtomicComponent {
	var out []AtomicComponent
	for _, a := range f.Areas {
		for _, sf := range a.SubFeatures {
			out = append(out, sf.Components...)
		}
	}
	return out
}

// ComplexityClass 复杂度等级
type ComplexityClass string

const (
	ComplexitySimple     ComplexityClass = "simple"
	ComplexityModerate   ComplexityClass = "moderate"
	ComplexityComplex    ComplexityClass = "complex"
	ComplexityEnterprise ComplexityClass = "enterprise"
)

// ComponentRequirement 单个组件的技术需求
type ComponentRequirement struct {
	ComponentID     string          `json:"component_id"`
	CapabilityClass string          `json:"capability_class"`
	DataFields      []string        `json:"data_fields"`
	EdgeCases       []string        `json:"edge_cases"`
	Complexity      ComplexityClass `json:"complexity"`
}

// StackRecommendation 技术栈建议
type StackRecommendation struct {
	Frontend string   `json:"frontend"`
	Backend  string   `json:"backend"`
	Database string   `json:"database"`
	Hosting  string   `json:"hosting"`
	Services []string `json:"services,omitempty"`
}

// BuildEstimates 工时与成本估算
type BuildEstimates struct {
	BuildHoursLow     int     `json:"build_hours_low"`
	BuildHoursHigh    int     `json:"build_hours_high"`
	MonthlyHostingUSD float64 `json:"monthly_hosting_usd"`
	CostNotes         string  `json:"cost_notes,omitempty"`
}

// TechRequirements phase_3：技术需求映射
type TechRequirements struct {
	Components []ComponentRequirement `json:"components"`
	Stack      StackRecommendation    `json:"stack"`
	Estimates  BuildEstimates         `json:"estimates"`
}

// Validate 校验结构完整性
func (t *TechRequirements) Validate() error {
	if len(t.Components) == 0 {
		return errors.New("at least one component requirement is required")
	}
	for i, c := range t.Components {
		if c.ComponentID == "" {
			return fmt.Errorf("components[%d].component_id is required", i)
		}
		switch c.Complexity {
		case ComplexitySimple, ComplexityModerate, ComplexityComplex, ComplexityEnterprise:
		default:
			return fmt.Errorf("components[%d].complexity %q is invalid", i, c.Complexity)
		}
	}
	if t.Estimates.BuildHoursLow < 0 || t.Estimates.BuildHoursHigh < t.Estimates.BuildHoursLow {
		return fmt.Errorf("invalid build hour range %d-%d", t.Estimates.BuildHoursLow, t.Estimates.BuildHoursHigh)
	}
	return nil
}

// Opportunity 市场机会
type Opportunity struct {
	Title     string `json:"title"`
	Rationale string `json:"rationale"`
	Impact    string `json:"impact"`
}

// CompetitiveGaps phase_4：竞争差距分析
type CompetitiveGaps struct {
	Opportunities []Opportunity `json:"opportunities"`
	UniqueAngle   string        `json:"unique_angle"`
	MVPScope      []string      `json:"mvp_scope"`
	FullScope     []string      `json:"full_scope"`
}

// Validate 校验结构完整性
func (c *CompetitiveGaps) Validate() error {
	if strings.TrimSpace(c.UniqueAngle) == "" {
		return errors.New("unique_angle is required")
	}
	if len(c.MVPScope) == 0 {
		return errors.New("mvp_scope must not be empty")
	}
	return nil
}
