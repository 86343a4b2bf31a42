// Package rules provides the CEL-Go based line exclusion engine.
package rules

import (
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/common/types"
	"github.com/opensource-finance/bonusledger/internal/domain"
)

// Engine evaluates operator-defined exclusion rules against ledger lines.
type Engine struct {
	mu            sync.RWMutex
	env           *cel.Env
	compiledRules map[string]*CompiledRule
	order         []string
}

// CompiledRule holds a pre-compiled CEL program.
type CompiledRule struct {
	Rule    *domain.LineRule
	Program cel.Program
}

// Verdict is the outcome of evaluating a line.
type Verdict struct {
	Excluded bool
	RuleID   string
	RuleName string
}

// NewEngine creates a new rule engine with no rules loaded.
func NewEngine() (*Engine, error) {
	env, err := cel.NewEnv(
		cel.Variable("line", cel.MapType(cel.StringType, cel.DynType)),
		cel.Variable("client_code", cel.StringType),
		cel.Variable("document_id", cel.StringType),
		cel.Variable("item_code", cel.StringType),
		cel.Variable("value", cel.DoubleType),
		cel.Variable("kind", cel.StringType),
		cel.Variable("reference", cel.StringType),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create CEL environment: %w", err)
	}

	return &Engine{
		env:           env,
		compiledRules: make(map[string]*CompiledRule),
	}, nil
}

// ValidateRule compiles a rule without mutating the loaded set.
func (e *Engine) ValidateRule(rule *domain.LineRule) error {
	if rule == nil {
		return fmt.Errorf("rule is required")
	}

	e.mu.RLock()
	defer e.mu.RUnlock()

	_, err := e.compileRule(rule)
	return err
}

// LoadRule compiles and loads a rule into the engine.
func (e *Engine) LoadRule(rule *domain.LineRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	compiled, err := e.compileRule(rule)
	if err != nil {
		return err
	}

	e.compiledRules[rule.ID] = compiled
	e.order = sortedIDs(e.compiledRules)
	return nil
}

// LoadRules compiles and loads the enabled rules.
func (e *Engine) LoadRules(rules []*domain.LineRule) error {
	for _, r := range rules {
		if r.Enabled {
			if err := e.LoadRule(r); err != nil {
				return err
			}
		}
	}
	return nil
}

// ReloadRules atomically replaces the loaded set. On error the previous
// rules stay in effect.
func (e *Engine) ReloadRules(rules []*domain.LineRule) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	newRules := make(map[string]*CompiledRule)
	for _, r := range rules {
		if !r.Enabled {
			continue
		}
		compiled, err := e.compileRule(r)
		if err != nil {
			return err
		}
		newRules[r.ID] = compiled
	}

	e.compiledRules = newRules
	e.order = sortedIDs(newRules)
	return nil
}

// Evaluate runs the loaded rules in ID order against a line and stops at the
// first one that evaluates to true. A rule that fails to evaluate is skipped
// and its error is returned alongside the verdict.
func (e *Engine) Evaluate(line *domain.LedgerLine) (*Verdict, error) {
	e.mu.RLock()
	rules := make([]*CompiledRule, 0, len(e.order))
	for _, id := range e.order {
		rules = append(rules, e.compiledRules[id])
	}
	e.mu.RUnlock()

	if len(rules) == 0 {
		return &Verdict{}, nil
	}

	var errs []error
	activation := activationFor(line)
	for _, r := range rules {
		out, _, err := r.Program.Eval(activation)
		if err != nil {
			errs = append(errs, fmt.Errorf("rule %s: evaluation error: %w", r.Rule.ID, err))
			continue
		}
		if b, ok := out.(types.Bool); ok && bool(b) {
			return &Verdict{Excluded: true, RuleID: r.Rule.ID, RuleName: r.Rule.Name}, errors.Join(errs...)
		}
	}
	return &Verdict{}, errors.Join(errs...)
}

func activationFor(line *domain.LedgerLine) map[string]any {
	value, _ := line.Value.Float64()
	vars := map[string]any{
		"client_code": line.ClientCode,
		"document_id": line.DocumentID,
		"item_code":   line.ItemCode,
		"value":       value,
		"kind":        string(line.Kind),
		"reference":   line.ReferenceDocumentID,
	}
	nested := make(map[string]any, len(vars))
	for k, v := range vars {
		nested[k] = v
	}
	vars["line"] = nested
	return vars
}

// RulesCount returns the number of loaded rules.
func (e *Engine) RulesCount() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.compiledRules)
}

// GetLoadedRules returns the currently loaded rules in evaluation order.
func (e *Engine) GetLoadedRules() []*domain.LineRule {
	e.mu.RLock()
	defer e.mu.RUnlock()

	rules := make([]*domain.LineRule, 0, len(e.order))
	for _, id := range e.order {
		rules = append(rules, e.compiledRules[id].Rule)
	}
	return rules
}

// Close cleans up the engine.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.compiledRules = make(map[string]*CompiledRule)
	e.order = nil
	return nil
}

func (e *Engine) compileRule(rule *domain.LineRule) (*CompiledRule, error) {
	ast, issues := e.env.Compile(rule.Expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("failed to compile rule %s: %w", rule.ID, issues.Err())
	}

	if ast.OutputType() != cel.BoolType {
		return nil, fmt.Errorf("rule %s: expression must return bool, got %s", rule.ID, ast.OutputType())
	}

	program, err := e.env.Program(ast)
	if err != nil {
		return nil, fmt.Errorf("failed to create program for rule %s: %w", rule.ID, err)
	}

	return &CompiledRule{Rule: rule, Program: program}, nil
}

func sortedIDs(m map[string]*CompiledRule) []string {
	ids := make([]string, 0, len(m))
	for id := range m {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
