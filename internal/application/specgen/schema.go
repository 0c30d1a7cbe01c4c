package specgen

import (
	wfnode "spec-forge-api/internal/workflow/node"
)

func gatesSchemaProps() map[string]any {
	field := wfnode.ObjectSchema(map[string]any{
		"name":       wfnode.StringSchema(),
		"type":       wfnode.StringSchema(),
		"required":   wfnode.BooleanSchema(),
		"references": wfnode.StringSchema(),
	}, "name", "type", "required")

	specEntity := wfnode.ObjectSchema(map[string]any{
		"name":        wfnode.StringSchema(),
		"description": wfnode.StringSchema(),
		"fields":      wfnode.ArraySchema(field),
	}, "name", "fields")

	transition := wfnode.ObjectSchema(map[string]any{
		"from":    wfnode.StringSchema(),
		"to":      wfnode.StringSchema(),
		"trigger": wfnode.StringSchema(),
	}, "from", "to", "trigger")

	stateMachine := wfnode.ObjectSchema(map[string]any{
		"entity":      wfnode.StringSchema(),
		"initial":     wfnode.StringSchema(),
		"states":      wfnode.StringArraySchema(),
		"terminal":    wfnode.StringArraySchema(),
		"transitions": wfnode.ArraySchema(transition),
	}, "entity", "initial", "states", "terminal", "transitions")

	rule := wfnode.ObjectSchema(map[string]any{
		"role":    wfnode.StringSchema(),
		"actions": wfnode.StringArraySchema(),
	}, "role", "actions")

	permissions := wfnode.ObjectSchema(map[string]any{
		"entity": wfnode.StringSchema(),
		"rules":  wfnode.ArraySchema(rule),
	}, "entity", "rules")

	operation := wfnode.ObjectSchema(map[string]any{
		"entity":        wfnode.StringSchema(),
		"name":          wfnode.StringSchema(),
		"kind":          wfnode.EnumSchema("create", "read", "update", "archive", "delete", "custom"),
		"ui_elements":   wfnode.StringArraySchema(),
		"component_ids": wfnode.StringArraySchema(),
	}, "entity", "name", "kind", "ui_elements", "component_ids")

	integration := wfnode.ObjectSchema(map[string]any{
		"name":           wfnode.StringSchema(),
		"purpose":        wfnode.StringSchema(),
		"auth":           wfnode.StringSchema(),
		"endpoints":      wfnode.StringArraySchema(),
		"error_handling": wfnode.StringSchema(),
	}, "name", "purpose", "auth", "endpoints", "error_handling")

	dependency := wfnode.ObjectSchema(map[string]any{
		"from": wfnode.StringSchema(),
		"to":   wfnode.StringSchema(),
		"kind": wfnode.StringSchema(),
	}, "from", "to")

	return map[string]any{
		"entities":       wfnode.ArraySchema(specEntity),
		"state_machines": wfnode.ArraySchema(stateMachine),
		"permissions":    wfnode.ArraySchema(permissions),
		"operations":     wfnode.ArraySchema(operation),
		"integrations":   wfnode.ArraySchema(integration),
		"dependencies":   wfnode.ArraySchema(dependency),
	}
}

func generationSchema() map[string]any {
	props := gatesSchemaProps()
	props["full_document"] = wfnode.StringSchema()
	return wfnode.ObjectSchema(props,
		"entities", "state_machines", "permissions", "operations", "integrations", "dependencies")
}

// fixSchema 只要求失败的 gate
func fixSchema(gates []string) map[string]any {
	all := gatesSchemaProps()
	props := make(map[string]any, len(gates))
	for _, g := range gates {
		props[g] = all[g]
	}
	return wfnode.ObjectSchema(props, gates...)
}
