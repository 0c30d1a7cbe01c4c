package specgen

import (
	"spec-forge-api/internal/domain/entity"
)

// Estimate 复杂度等级与工时区间
type Estimate struct {
	Complexity     entity.ComplexityClass `json:"complexity_class"`
	BuildHoursLow  int                    `json:"build_hours_low"`
	BuildHoursHigh int                    `json:"build_hours_high"`
}

var complexityRank = map[entity.ComplexityClass]int{
	entity.ComplexitySimple:     0,
	entity.ComplexityModerate:   1,
	entity.ComplexityComplex:    2,
	entity.ComplexityEnterprise: 3,
}

var complexityByRank = []entity.ComplexityClass{
	entity.ComplexitySimple, entity.ComplexityModerate, entity.ComplexityComplex, entity.ComplexityEnterprise,
}

// EstimateBuild 由文档规模与调研结论推导复杂度和工时；
// 调研阶段给出的工时区间优先，缺失时按实体、迁移与集成数量估算
func EstimateBuild(gates *entity.SpecGates, tech *entity.TechRequirements) Estimate {
	var entities, transitions, integrations int
	if gates != nil {
		entities = gates.EntityCount()
		transitions = gates.StateChangeCount()
		integrations = len(gates.Integrations)
	}

	rank := sizeRank(entities, transitions, integrations)
	if tech != nil {
		for _, c := range tech.Components {
			if r, ok := complexityRank[c.Complexity]; ok && r > rank {
				rank = r
			}
		}
	}

	est := Estimate{Complexity: complexityByRank[rank]}
	if tech != nil && tech.Estimates.BuildHoursHigh > 0 {
		est.BuildHoursLow = tech.Estimates.BuildHoursLow
		est.BuildHoursHigh = tech.Estimates.BuildHoursHigh
		return est
	}
	est.BuildHoursLow = entities*12 + transitions*2 + integrations*8
	est.BuildHoursHigh = entities*24 + transitions*4 + integrations*16
	return est
}

func sizeRank(entities, transitions, integrations int) int {
	score := entities + transitions/3 + integrations*2
	switch {
	case score <= 5:
		return 0
	case score <= 12:
		return 1
	case score <= 25:
		return 2
	default:
		return 3
	}
}
