package specgen

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/domain/entity"
)

func ops(entityName string, kinds ...entity.OperationKind) []entity.Operation {
	out := make([]entity.Operation, 0, len(kinds))
	for _, k := range kinds {
		out = append(out, entity.Operation{
			Entity:     entityName,
			Name:       string(k) + " " + entityName,
			Kind:       k,
			UIElements: []string{"button"},
		})
	}
	return out
}

func crud(entityName string) []entity.Operation {
	return ops(entityName, entity.OperationCreate, entity.OperationRead, entity.OperationUpdate)
}

func perms(entityName string) entity.EntityPermissions {
	return entity.EntityPermissions{
		Entity: entityName,
		Rules:  []entity.PermissionRule{{Role: "owner", Actions: []string{"create", "read", "update"}}},
	}
}

// completeGates 每项校验都能通过的文档
func completeGates() *entity.SpecGates {
	return &entity.SpecGates{
		Entities: []entity.SpecEntity{
			{Name: "Task", Fields: []entity.EntityField{
				{Name: "title", Type: "string", Required: true},
				{Name: "owner_id", Type: "uuid", Required: true, References: "User"},
			}},
			{Name: "User", Fields: []entity.EntityField{{Name: "email", Type: "string", Required: true}}},
		},
		StateMachines: []entity.StateMachine{{
			Entity:      "Task",
			Initial:     "open",
			States:      []string{"open", "done"},
			Terminal:    []string{"done"},
			Transitions: []entity.StateTransition{{From: "open", To: "done", Trigger: "complete"}},
		}},
		Permissions: []entity.EntityPermissions{perms("Task"), perms("User")},
		Operations:  append(crud("Task"), crud("User")...),
		Integrations: []entity.Integration{{
			Name: "Stripe", Purpose: "payments", Auth: "api key",
			Endpoints: []string{"/v1/charges"}, ErrorHandling: "retry then surface",
		}},
		Dependencies: []entity.Dependency{{From: "Task", To: "User", Kind: "belongs_to"}},
	}
}

// weakGates User 缺少操作，两个实体都没有权限
func weakGates() *entity.SpecGates {
	g := completeGates()
	g.Operations = crud("Task")
	g.Permissions = nil
	g.Integrations = nil
	return g
}

func TestValidateCompleteDocument(t *testing.T) {
	report := Validate(completeGates(), nil)
	assert.Equal(t, 100, report.Score)
	assert.True(t, report.Passed())
	assert.Empty(t, report.Findings)
	assert.Empty(t, report.FailingGates())
}

func TestValidateIsDeterministic(t *testing.T) {
	g := weakGates()
	components := []entity.AtomicComponent{{ID: "b"}, {ID: "a"}}

	first := Validate(g, components)
	second := Validate(g, components)
	assert.Equal(t, first, second)
	// 输入不被修改
	assert.Equal(t, weakGates(), g)
}

func TestValidateWeightedScore(t *testing.T) {
	report := Validate(weakGates(), nil)

	// crud 2/4, permissions 0/4, references 1/1, states 2/2, orphans 2/2
	assert.Equal(t, 13, report.TotalWeight)
	assert.Equal(t, 7, report.PassedWeight)
	assert.Equal(t, 53, report.Score)
	assert.False(t, report.Passed())
	assert.Equal(t, []string{entity.GateOperations, entity.GatePermissions}, report.FailingGates())
}

func TestValidateEmptyInputs(t *testing.T) {
	nilReport := Validate(nil, nil)
	assert.Equal(t, 0, nilReport.Score)
	require.Len(t, nilReport.Findings, 1)

	empty := Validate(&entity.SpecGates{}, nil)
	assert.Equal(t, 0, empty.Score)
	assert.Empty(t, empty.Checks)
}

func TestValidateStateMachineProblems(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(sm *entity.StateMachine)
		want   string
	}{
		{
			name: "unreachable state",
			mutate: func(sm *entity.StateMachine) {
				sm.States = append(sm.States, "archived")
			},
			want: "unreachable states: archived",
		},
		{
			name: "no terminal",
			mutate: func(sm *entity.StateMachine) {
				sm.Terminal = nil
			},
			want: "no terminal state",
		},
		{
			name: "undeclared initial",
			mutate: func(sm *entity.StateMachine) {
				sm.Initial = "draft"
			},
			want: `initial state "draft" is not declared`,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g := completeGates()
			tt.mutate(&g.StateMachines[0])

			report := Validate(g, nil)
			require.Len(t, report.Findings, 1)
			assert.Equal(t, CheckStates, report.Findings[0].Check)
			assert.Contains(t, report.Findings[0].Message, tt.want)
			assert.Equal(t, []string{entity.GateStateMachines}, report.FailingGates())
		})
	}
}

func TestValidateReferences(t *testing.T) {
	g := completeGates()
	g.Dependencies = nil
	g.Entities[0].Fields = append(g.Entities[0].Fields, entity.EntityField{Name: "project_id", Type: "uuid", References: "Project"})

	report := Validate(g, nil)
	var messages []string
	for _, f := range report.Findings {
		if f.Check == CheckReferences {
			messages = append(messages, f.Message)
		}
	}
	assert.ElementsMatch(t, []string{
		"Task.owner_id references User but no dependency Task -> User is declared",
		"Task.project_id references undeclared entity Project",
	}, messages)
}

func TestValidateIntegrationMissingFields(t *testing.T) {
	g := completeGates()
	g.Integrations[0].Auth = ""
	g.Integrations[0].ErrorHandling = " "

	report := Validate(g, nil)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, "integration Stripe is missing auth, error handling", report.Findings[0].Message)
}

func TestValidateOrphanEntity(t *testing.T) {
	g := completeGates()
	g.Entities = append(g.Entities, entity.SpecEntity{Name: "Tag"})
	g.Operations = append(g.Operations, crud("Tag")...)
	g.Permissions = append(g.Permissions, perms("Tag"))

	report := Validate(g, nil)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, CheckOrphans, report.Findings[0].Check)
	assert.Equal(t, "Tag", report.Findings[0].Subject)
	assert.Equal(t, "entity Tag is not connected to any other entity", report.Findings[0].Message)
}

func TestTraceabilityOnlyWarns(t *testing.T) {
	g := completeGates()
	g.Operations[0].ComponentIDs = []string{"task.create"}
	components := []entity.AtomicComponent{{ID: "task.create"}, {ID: "task.share"}}

	report := Validate(g, components)
	require.Len(t, report.Findings, 1)
	assert.Equal(t, entity.SeverityWarning, report.Findings[0].Severity)
	assert.Equal(t, "task.share", report.Findings[0].Subject)
	assert.Empty(t, report.FailingGates())
	assert.Less(t, report.Score, 100)
}

func TestEstimateBuild(t *testing.T) {
	g := completeGates()

	heuristic := EstimateBuild(g, nil)
	assert.Equal(t, entity.ComplexitySimple, heuristic.Complexity)
	assert.Equal(t, 2*12+1*2+1*8, heuristic.BuildHoursLow)
	assert.Equal(t, 2*24+1*4+1*16, heuristic.BuildHoursHigh)

	tech := &entity.TechRequirements{
		Components: []entity.ComponentRequirement{{ComponentID: "x", Complexity: entity.ComplexityComplex}},
		Estimates:  entity.BuildEstimates{BuildHoursLow: 300, BuildHoursHigh: 450},
	}
	fromResearch := EstimateBuild(g, tech)
	assert.Equal(t, entity.ComplexityComplex, fromResearch.Complexity)
	assert.Equal(t, 300, fromResearch.BuildHoursLow)
	assert.Equal(t, 450, fromResearch.BuildHoursHigh)
}

func TestRenderMarkdownSections(t *testing.T) {
	g := completeGates()
	md := RenderMarkdown("Tasks specification", g, EstimateBuild(g, nil), 100)

	for _, heading := range []string{
		"# Tasks specification",
		"## 1. Entities",
		"## 2. State machines",
		"### Task",
		"`open` -> `done` on complete",
	} {
		assert.Contains(t, md, heading)
	}
	assert.Equal(t, md, RenderMarkdown("Tasks specification", g, EstimateBuild(g, nil), 100))
}
