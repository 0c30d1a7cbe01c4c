package research

import (
	wfnode "spec-forge-api/internal/workflow/node"
)

func domainAnalysisSchema() map[string]any {
	competitor := wfnode.ObjectSchema(map[string]any{
		"name":       wfnode.StringSchema(),
		"url":        wfnode.StringSchema(),
		"features":   wfnode.StringArraySchema(),
		"strengths":  wfnode.StringArraySchema(),
		"weaknesses": wfnode.StringArraySchema(),
	}, "name", "features", "strengths", "weaknesses")

	return wfnode.ObjectSchema(map[string]any{
		"competitors":      wfnode.ArraySchema(competitor),
		"pain_points":      wfnode.StringArraySchema(),
		"compliance_flags": wfnode.StringArraySchema(),
		"narrative":        wfnode.StringSchema(),
	}, "competitors", "pain_points", "compliance_flags", "narrative")
}

func featureTreeSchema() map[string]any {
	component := wfnode.ObjectSchema(map[string]any{
		"id":                  wfnode.StringSchema(),
		"name":                wfnode.StringSchema(),
		"description":         wfnode.StringSchema(),
		"competitors_with_it": wfnode.StringArraySchema(),
	}, "id", "name", "competitors_with_it")

	subFeature := wfnode.ObjectSchema(map[string]any{
		"name":       wfnode.StringSchema(),
		"components": wfnode.ArraySchema(component),
	}, "name", "components")

	area := wfnode.ObjectSchema(map[string]any{
		"name":         wfnode.StringSchema(),
		"sub_features": wfnode.ArraySchema(subFeature),
	}, "name", "sub_features")

	return wfnode.ObjectSchema(map[string]any{
		"areas": wfnode.ArraySchema(area),
	}, "areas")
}

func techRequirementsSchema() map[string]any {
	requirement := wfnode.ObjectSchema(map[string]any{
		"component_id":     wfnode.StringSchema(),
		"capability_class": wfnode.StringSchema(),
		"data_fields":      wfnode.StringArraySchema(),
		"edge_cases":       wfnode.StringArraySchema(),
		"complexity":       wfnode.EnumSchema("simple", "moderate", "complex", "enterprise"),
	}, "component_id", "capability_class", "data_fields", "edge_cases", "complexity")

	stack := wfnode.ObjectSchema(map[string]any{
		"frontend": wfnode.StringSchema(),
		"backend":  wfnode.StringSchema(),
		"database": wfnode.StringSchema(),
		"hosting":  wfnode.StringSchema(),
		"services": wfnode.StringArraySchema(),
	}, "frontend", "backend", "database", "hosting")

	estimates := wfnode.ObjectSchema(map[string]any{
		"build_hours_low":     wfnode.IntegerSchema(),
		"build_hours_high":    wfnode.IntegerSchema(),
		"monthly_hosting_usd": wfnode.NumberSchema(),
		"cost_notes":          wfnode.StringSchema(),
	}, "build_hours_low", "build_hours_high", "monthly_hosting_usd")

	return wfnode.ObjectSchema(map[string]any{
		"components": wfnode.ArraySchema(requirement),
		"stack":      stack,
		"estimates":  estimates,
	}, "components", "stack", "estimates")
}

func competitiveGapsSchema() map[string]any {
	opportunity := wfnode.ObjectSchema(map[string]any{
		"title":     wfnode.StringSchema(),
		"rationale": wfnode.StringSchema(),
		"impact":    wfnode.EnumSchema("low", "medium", "high"),
	}, "title", "rationale", "impact")

	return wfnode.ObjectSchema(map[string]any{
		"opportunities": wfnode.ArraySchema(opportunity),
		"unique_angle":  wfnode.StringSchema(),
		"mvp_scope":     wfnode.StringArraySchema(),
		"full_scope":    wfnode.StringArraySchema(),
	}, "opportunities", "unique_angle", "mvp_scope", "full_scope")
}
