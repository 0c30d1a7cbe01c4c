package specgen

import (
	"fmt"
	"slices"
	"sort"
	"strings"

	"spec-forge-api/internal/domain/entity"
)

// QualityThreshold 文档通过的最低质量分，固定常量
const QualityThreshold = 60

// 校验项名称
const (
	CheckCRUD         = "crud"
	CheckPermissions  = "permissions"
	CheckReferences   = "references"
	CheckIntegrations = "integrations"
	CheckStates       = "states"
	CheckOrphans      = "orphans"
	CheckTraceability = "traceability"
)

// checkWeights 结构完整性相关的校验权重更高
var checkWeights = map[string]int{
	CheckCRUD:         2,
	CheckPermissions:  2,
	CheckStates:       2,
	CheckReferences:   1,
	CheckIntegrations: 1,
	CheckOrphans:      1,
	CheckTraceability: 1,
}

// CheckResult 单项校验结果
type CheckResult struct {
	Gate    string `json:"gate"`
	Check   string `json:"check"`
	Subject string `json:"subject"`
	Weight  int    `json:"weight"`
	Passed  bool   `json:"passed"`
}

// Report 确定性校验报告
type Report struct {
	Score        int                        `json:"score"`
	PassedWeight int                        `json:"passed_weight"`
	TotalWeight  int                        `json:"total_weight"`
	Checks       []CheckResult              `json:"checks"`
	Findings     []entity.ValidationFinding `json:"findings"`
}

// Passed 是否达到质量阈值
func (r Report) Passed() bool {
	return r.Score >= QualityThreshold
}

// FailingGates 含 error 级问题的 gate，按文档顺序
func (r Report) FailingGates() []string {
	failing := make(map[string]bool)
	for _, f := range r.Findings {
		if f.Severity == entity.SeverityError {
			failing[f.Gate] = true
		}
	}
	out := make([]string, 0, len(failing))
	for _, g := range entity.AllGates {
		if failing[g] {
			out = append(out, g)
		}
	}
	return out
}

type validator struct {
	gates  *entity.SpecGates
	report Report
}

// Validate 对结构化文档做确定性校验，不调用模型；相同输入产生相同输出。
// score = floor(100 × 通过权重 / 总权重)，没有任何校验项时为 0。
func Validate(gates *entity.SpecGates, components []entity.AtomicComponent) Report {
	v := &validator{gates: gates}
	if gates == nil {
		v.fail(entity.GateEntities, CheckCRUD, "document", "no structured sections were produced", "")
		return v.finish()
	}

	v.checkCRUD()
	v.checkPermissions()
	v.checkReferences()
	v.checkIntegrations()
	v.checkStates()
	v.checkOrphans()
	v.checkTraceability(components)
	return v.finish()
}

func (v *validator) record(gate, check, subject string, passed bool) {
	v.report.Checks = append(v.report.Checks, CheckResult{
		Gate:    gate,
		Check:   check,
		Subject: subject,
		Weight:  checkWeights[check],
		Passed:  passed,
	})
}

func (v *validator) pass(gate, check, subject string) {
	v.record(gate, check, subject, true)
}

func (v *validator) fail(gate, check, subject, msg, suggestion string) {
	v.failWith(entity.SeverityError, gate, check, subject, msg, suggestion)
}

func (v *validator) failWith(sev entity.Severity, gate, check, subject, msg, suggestion string) {
	v.record(gate, check, subject, false)
	v.report.Findings = append(v.report.Findings, entity.ValidationFinding{
		Gate:       gate,
		Check:      check,
		Severity:   sev,
		Subject:    subject,
		Message:    msg,
		Suggestion: suggestion,
	})
}

func (v *validator) finish() Report {
	for _, c := range v.report.Checks {
		v.report.TotalWeight += c.Weight
		if c.Passed {
			v.report.PassedWeight += c.Weight
		}
	}
	if v.report.TotalWeight > 0 {
		v.report.Score = v.report.PassedWeight * 100 / v.report.TotalWeight
	}
	return v.report
}

func (v *validator) entityNames() map[string]bool {
	names := make(map[string]bool, len(v.gates.Entities))
	for _, e := range v.gates.Entities {
		names[e.Name] = true
	}
	return names
}

// checkCRUD 每个实体需声明 create、read 以及 update 或 archive/delete
func (v *validator) checkCRUD() {
	kinds := make(map[string]map[entity.OperationKind]bool)
	for _, op := range v.gates.Operations {
		if kinds[op.Entity] == nil {
			kinds[op.Entity] = make(map[entity.OperationKind]bool)
		}
		kinds[op.Entity][op.Kind] = true
	}
	for _, e := range v.gates.Entities {
		k := kinds[e.Name]
		var missing []string
		if !k[entity.OperationCreate] {
			missing = append(missing, "create")
		}
		if !k[entity.OperationRead] {
			missing = append(missing, "read")
		}
		if !k[entity.OperationUpdate] && !k[entity.OperationArchive] && !k[entity.OperationDelete] {
			missing = append(missing, "update or archive")
		}
		if len(missing) == 0 {
			v.pass(entity.GateOperations, CheckCRUD, e.Name)
			continue
		}
		v.fail(entity.GateOperations, CheckCRUD, e.Name,
			fmt.Sprintf("entity %s is missing %s operations", e.Name, strings.Join(missing, ", ")),
			fmt.Sprintf("declare %s operations for %s with the UI elements that trigger them", strings.Join(missing, ", "), e.Name))
	}
}

// checkPermissions 每个实体需要权限记录
func (v *validator) checkPermissions() {
	covered := make(map[string]bool)
	for _, p := range v.gates.Permissions {
		if len(p.Rules) > 0 {
			covered[p.Entity] = true
		}
	}
	for _, e := range v.gates.Entities {
		if covered[e.Name] {
			v.pass(entity.GatePermissions, CheckPermissions, e.Name)
			continue
		}
		v.fail(entity.GatePermissions, CheckPermissions, e.Name,
			fmt.Sprintf("entity %s has no permission rules", e.Name),
			fmt.Sprintf("add role rules for %s", e.Name))
	}
}

// checkReferences 外键式引用必须指向已声明实体并出现在依赖中
func (v *validator) checkReferences() {
	names := v.entityNames()
	deps := make(map[[2]string]bool, len(v.gates.Dependencies))
	for _, d := range v.gates.Dependencies {
		deps[[2]string{d.From, d.To}] = true
	}
	for _, e := range v.gates.Entities {
		for _, f := range e.Fields {
			if f.References == "" {
				continue
			}
			subject := e.Name + "." + f.Name
			switch {
			case !names[f.References]:
				v.fail(entity.GateDependencies, CheckReferences, subject,
					fmt.Sprintf("%s references undeclared entity %s", subject, f.References),
					fmt.Sprintf("declare entity %s or remove the reference", f.References))
			case !deps[[2]string{e.Name, f.References}]:
				v.fail(entity.GateDependencies, CheckReferences, subject,
					fmt.Sprintf("%s references %s but no dependency %s -> %s is declared", subject, f.References, e.Name, f.References),
					fmt.Sprintf("add dependency from %s to %s", e.Name, f.References))
			default:
				v.pass(entity.GateDependencies, CheckReferences, subject)
			}
		}
	}
}

// checkIntegrations 外部集成需声明认证、端点与错误处理
func (v *validator) checkIntegrations() {
	for _, in := range v.gates.Integrations {
		var missing []string
		if strings.TrimSpace(in.Auth) == "" {
			missing = append(missing, "auth")
		}
		if len(in.Endpoints) == 0 {
			missing = append(missing, "endpoints")
		}
		if strings.TrimSpace(in.ErrorHandling) == "" {
			missing = append(missing, "error handling")
		}
		if len(missing) == 0 {
			v.pass(entity.GateIntegrations, CheckIntegrations, in.Name)
			continue
		}
		v.fail(entity.GateIntegrations, CheckIntegrations, in.Name,
			fmt.Sprintf("integration %s is missing %s", in.Name, strings.Join(missing, ", ")),
			fmt.Sprintf("document %s for %s", strings.Join(missing, ", "), in.Name))
	}
}

// checkStates 状态机的每个状态可从初始状态到达，且至少有一个终态
func (v *validator) checkStates() {
	names := v.entityNames()
	for _, sm := range v.gates.StateMachines {
		subject := sm.Entity
		if !names[sm.Entity] {
			v.fail(entity.GateStateMachines, CheckStates, subject,
				fmt.Sprintf("state machine for undeclared entity %s", sm.Entity),
				"attach the state machine to a declared entity")
			continue
		}
		if problems := stateMachineProblems(sm); len(problems) > 0 {
			v.fail(entity.GateStateMachines, CheckStates, subject,
				fmt.Sprintf("state machine for %s: %s", sm.Entity, strings.Join(problems, "; ")),
				"make every state reachable from the initial state and declare at least one terminal state")
			continue
		}
		v.pass(entity.GateStateMachines, CheckStates, subject)
	}
}

func stateMachineProblems(sm entity.StateMachine) []string {
	var problems []string
	states := make(map[string]bool, len(sm.States))
	for _, s := range sm.States {
		states[s] = true
	}
	if !states[sm.Initial] {
		problems = append(problems, fmt.Sprintf("initial state %q is not declared", sm.Initial))
	}

	terminal := 0
	for _, t := range sm.Terminal {
		if states[t] {
			terminal++
		} else {
			problems = append(problems, fmt.Sprintf("terminal state %q is not declared", t))
		}
	}
	if terminal == 0 {
		problems = append(problems, "no terminal state")
	}

	next := make(map[string][]string)
	for _, tr := range sm.Transitions {
		if !states[tr.From] || !states[tr.To] {
			problems = append(problems, fmt.Sprintf("transition %s -> %s uses an undeclared state", tr.From, tr.To))
			continue
		}
		next[tr.From] = append(next[tr.From], tr.To)
	}

	reached := map[string]bool{sm.Initial: true}
	queue := []string{sm.Initial}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		for _, n := range next[cur] {
			if !reached[n] {
				reached[n] = true
				queue = append(queue, n)
			}
		}
	}
	var unreachable []string
	for _, s := range sm.States {
		if !reached[s] {
			unreachable = append(unreachable, s)
		}
	}
	if len(unreachable) > 0 {
		problems = append(problems, fmt.Sprintf("unreachable states: %s", strings.Join(unreachable, ", ")))
	}
	return problems
}

// checkOrphans 多实体文档中每个实体都应与其他部分有关联
func (v *validator) checkOrphans() {
	if len(v.gates.Entities) < 2 {
		return
	}
	linked := make(map[string]bool)
	for _, d := range v.gates.Dependencies {
		linked[d.From] = true
		linked[d.To] = true
	}
	for _, e := range v.gates.Entities {
		for _, f := range e.Fields {
			if f.References != "" {
				linked[e.Name] = true
				linked[f.References] = true
			}
		}
	}
	for _, e := range v.gates.Entities {
		if linked[e.Name] {
			v.pass(entity.GateDependencies, CheckOrphans, e.Name)
			continue
		}
		v.fail(entity.GateDependencies, CheckOrphans, e.Name,
			fmt.Sprintf("entity %s is not connected to any other entity", e.Name),
			fmt.Sprintf("declare how %s relates to the rest of the model or remove it", e.Name))
	}
}

// checkTraceability 调研得到的原子组件应被某个操作覆盖，未覆盖只记 warning
func (v *validator) checkTraceability(components []entity.AtomicComponent) {
	covered := make(map[string]bool)
	for _, op := range v.gates.Operations {
		for _, id := range op.ComponentIDs {
			covered[id] = true
		}
	}
	ids := make([]string, 0, len(components))
	for _, c := range components {
		if c.ID != "" && !slices.Contains(ids, c.ID) {
			ids = append(ids, c.ID)
		}
	}
	sort.Strings(ids)
	for _, id := range ids {
		if covered[id] {
			v.pass(entity.GateOperations, CheckTraceability, id)
			continue
		}
		v.failWith(entity.SeverityWarning, entity.GateOperations, CheckTraceability, id,
			fmt.Sprintf("component %s is not implemented by any operation", id),
			fmt.Sprintf("reference %s in the component_ids of the operation that implements it", id))
	}
}
