package entity

import (
	"errors"
	"fmt"
	"strings"
)

// Gate 名称，对应文档的六个结构化部分
const (
	GateEntities      = "entities"
	GateStateMachines = "state_machines"
	GatePermissions   = "permissions"
	GateOperations    = "operations"
	GateIntegrations  = "integrations"
	GateDependencies  = "dependencies"
)

// AllGates 按文档顺序排列的 gate 名称
var AllGates = []string{
	GateEntities, GateStateMachines, GatePermissions,
	GateOperations, GateIntegrations, GateDependencies,
}

// EntityField 实体字段；References 非空表示外键式引用
type EntityField struct {
	Name       string `json:"name"`
	Type       string `json:"type"`
	Required   bool   `json:"required"`
	References string `json:"references,omitempty"`
}

// SpecEntity gate 1
type SpecEntity struct {
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Fields      []EntityField `json:"fields"`
}

// StateTransition 状态迁移
type StateTransition struct {
	From    string `json:"from"`
	To      string `json:"to"`
	Trigger string `json:"trigger"`
}

// StateMachine gate 2
type StateMachine struct {
	Entity      string            `json:"entity"`
	Initial     string            `json:"initial"`
	States      []string          `json:"states"`
	Terminal    []string          `json:"terminal"`
	Transitions []StateTransition `json:"transitions"`
}

// PermissionRule 角色可执行的动作
type PermissionRule struct {
	Role    string   `json:"role"`
	Actions []string `json:"actions"`
}

// EntityPermissions gate 3
type EntityPermissions struct {
	Entity string           `json:"entity"`
	Rules  []PermissionRule `json:"rules"`
}

// OperationKind 操作类型
type OperationKind string

const (
	OperationCreate  OperationKind = "create"
	OperationRead    OperationKind = "read"
	OperationUpdate  OperationKind = "update"
	OperationArchive OperationKind = "archive"
	OperationDelete  OperationKind = "delete"
	OperationCustom  OperationKind = "custom"
)

// Operation gate 4
type Operation struct {
	Entity       string        `json:"entity"`
	Name         string        `json:"name"`
	Kind         OperationKind `json:"kind"`
	UIElements   []string      `json:"ui_elements,omitempty"`
	ComponentIDs []string      `json:"component_ids,omitempty"`
}

// Integration gate 5
type Integration struct {
	Name          string   `json:"name"`
	Purpose       string   `json:"purpose"`
	Auth          string   `json:"auth"`
	Endpoints     []string `json:"endpoints"`
	ErrorHandling string   `json:"error_handling"`
}

// Dependency gate 6
type Dependency struct {
	From string `json:"from"`
	To   string `json:"to"`
	Kind string `json:"kind,omitempty"`
}

// SpecGates 规格文档的六个结构化部分
type SpecGates struct {
	Entities      []SpecEntity        `json:"entities"`
	StateMachines []StateMachine      `json:"state_machines"`
	Permissions   []EntityPermissions `json:"permissions"`
	Operations    []Operation         `json:"operations"`
	Integrations  []Integration       `json:"integrations"`
	Dependencies  []Dependency        `json:"dependencies"`
}

// Validate 反序列化后的结构校验，只检查能否被后续流程消费
func (g *SpecGates) Validate() error {
	if len(g.Entities) == 0 {
		return errors.New("entities must not be empty")
	}
	seen := make(map[string]bool, len(g.Entities))
	for i, e := range g.Entities {
		name := strings.TrimSpace(e.Name)
		if name == "" {
			return fmt.Errorf("entities[%d].name is required", i)
		}
		if seen[name] {
			return fmt.Errorf("duplicate entity %q", name)
		}
		seen[name] = true
	}
	for i, op := range g.Operations {
		if op.Entity == "" || op.Kind == "" {
			return fmt.Errorf("operations[%d] requires entity and kind", i)
		}
	}
	for i, sm := range g.StateMachines {
		if sm.Entity == "" || sm.Initial == "" {
			return fmt.Errorf("state_machines[%d] requires entity and initial", i)
		}
	}
	return nil
}

// EntityCount 实体数量
func (g *SpecGates) EntityCount() int {
	return len(g.Entities)
}

// StateChangeCount 全部状态机的迁移数量
func (g *SpecGates) StateChangeCount() int {
	n := 0
	for _, sm := range g.StateMachines {
		n += len(sm.Transitions)
	}
	return n
}

// Merge 用 patch 中非空的 gate 覆盖当前 gate，返回新副本
func (g *SpecGates) Merge(patch *SpecGates, gates []string) *SpecGates {
	out := *g
	if patch == nil {
		return &out
	}
	for _, gate := range gates {
		switch gate {
		case GateEntities:
			if len(patch.Entities) > 0 {
				out.Entities = patch.Entities
			}
		case GateStateMachines:
			if len(patch.StateMachines) > 0 {
				out.StateMachines = patch.StateMachines
			}
		case GatePermissions:
			if len(patch.Permissions) > 0 {
				out.Permissions = patch.Permissions
			}
		case GateOperations:
			if len(patch.Operations) > 0 {
				out.Operations = patch.Operations
			}
		case GateIntegrations:
			if len(patch.Integrations) > 0 {
				out.Integrations = patch.Integrations
			}
		case GateDependencies:
			if len(patch.Dependencies) > 0 {
				out.Dependencies = patch.Dependencies
			}
		}
	}
	return &out
}
