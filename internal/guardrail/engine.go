// Package guardrail is the synchronous rule-evaluation engine spec §4.D
// describes: every tool call is judged against a registered rule set
// before it runs, never after, and never by asking a human. It replaces
// the teacher's interactive permission.Checker (ask/allow/deny over a
// channel) with a pure, single-threaded-per-call evaluator.
package guardrail

import (
	"fmt"
	"sort"
	"sync"
	"time"
)

// TriggeredRule records one rule's verdict within a Result.
type TriggeredRule struct {
	RuleID   string   `json:"ruleId"`
	Severity Severity `json:"severity"`
	Message  string   `json:"message"`
}

// Result is the outcome of evaluating every registered rule against one
// EvalContext.
type Result struct {
	Blocked        bool             `json:"blocked"`
	BlockReason    string           `json:"blockReason,omitempty"`
	TriggeredRules []TriggeredRule  `json:"triggeredRules,omitempty"`
	HasWarnings    bool             `json:"hasWarnings"`
	Warnings       []TriggeredRule  `json:"warnings,omitempty"`
	Timestamp      time.Time        `json:"timestamp"`
	DurationMS     float64          `json:"durationMs"`
}

// Engine holds the registered rule set and the audit trail of every
// evaluation. It is safe for concurrent use.
type Engine struct {
	mu       sync.RWMutex
	rules    []*Rule
	disabled map[string]bool
	audit    *AuditLog
}

// NewEngine constructs an engine with no rules registered. Callers
// typically follow this with RegisterCore to install the built-in set.
func NewEngine() *Engine {
	return &Engine{
		disabled: make(map[string]bool),
		audit:    NewAuditLog(1000),
	}
}

// Audit returns the engine's audit log.
func (e *Engine) Audit() *AuditLog { return e.audit }

// Register adds a rule to the engine. Only the built-in registration
// path (RegisterCore) may register TierCore rules; Register rejects any
// caller-supplied rule claiming that tier, since core rules must not be
// disableable by a settings override.
func (e *Engine) Register(r *Rule) error {
	if r.Tier == TierCore {
		return fmt.Errorf("guardrail: rule %q: TierCore may only be registered via RegisterCore", r.ID)
	}
	return e.register(r)
}

func (e *Engine) register(r *Rule) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	for _, existing := range e.rules {
		if existing.ID == r.ID {
			return fmt.Errorf("guardrail: rule %q already registered", r.ID)
		}
	}
	e.rules = append(e.rules, r)
	sort.SliceStable(e.rules, func(i, j int) bool {
		return e.rules[i].Priority > e.rules[j].Priority
	})
	return nil
}

// RegisterCore registers a built-in, unoverridable rule. Only core_rules.go
// calls this.
func (e *Engine) RegisterCore(r *Rule) error {
	r.Tier = TierCore
	return e.register(r)
}

// SetDisabled applies a settings override disabling or re-enabling a
// non-core rule by id. Disabling a TierCore rule is a no-op: core rules
// can never be turned off (spec §4.D "Tiers & overrides").
func (e *Engine) SetDisabled(ruleID string, disabled bool) {
	e.mu.RLock()
	var target *Rule
	for _, r := range e.rules {
		if r.ID == ruleID {
			target = r
			break
		}
	}
	e.mu.RUnlock()
	if target == nil || target.Tier == TierCore {
		return
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if disabled {
		e.disabled[ruleID] = true
	} else {
		delete(e.disabled, ruleID)
	}
}

// Evaluate judges every registered, enabled, in-scope rule against ctx
// in descending-priority then registration order, and returns the
// aggregate Result. A single blocking rule short-circuits no further
// rules from running (every rule still gets a verdict so audit/warnings
// stay complete), but causes Result.Blocked to be true. The full
// verdict set is recorded to the audit log before returning.
func (e *Engine) Evaluate(ctx EvalContext) Result {
	start := time.Now()

	e.mu.RLock()
	rules := make([]*Rule, len(e.rules))
	copy(rules, e.rules)
	disabled := make(map[string]bool, len(e.disabled))
	for k, v := range e.disabled {
		disabled[k] = v
	}
	e.mu.RUnlock()

	verdicts := make(map[string]bool, len(rules))
	messages := make(map[string]string, len(rules))
	for _, r := range rules {
		if disabled[r.ID] || !r.Scope.matches(ctx.ToolName) {
			continue
		}
		triggered, msg := e.evaluateRule(r, ctx, verdicts, messages)
		verdicts[r.ID] = triggered
		messages[r.ID] = msg
	}

	res := Result{Timestamp: start}
	for _, r := range rules {
		triggered, ok := verdicts[r.ID]
		if !ok || !triggered {
			continue
		}
		tr := TriggeredRule{RuleID: r.ID, Severity: r.Severity, Message: messages[r.ID]}
		switch r.Severity {
		case SeverityBlock:
			res.Blocked = true
			if res.BlockReason == "" {
				res.BlockReason = messages[r.ID]
			}
			res.TriggeredRules = append(res.TriggeredRules, tr)
		case SeverityWarn:
			res.HasWarnings = true
			res.Warnings = append(res.Warnings, tr)
			res.TriggeredRules = append(res.TriggeredRules, tr)
		case SeverityAudit:
			res.TriggeredRules = append(res.TriggeredRules, tr)
		}
	}
	res.DurationMS = float64(time.Since(start).Microseconds()) / 1000.0

	e.audit.Record(AuditEntry{
		SessionID: ctx.SessionID,
		ToolName:  ctx.ToolName,
		Arguments: ctx.Arguments,
		Result:    res,
		Timestamp: start,
	})
	return res
}

// evaluateRule dispatches on Kind. verdicts/messages hold already-computed
// results for rules evaluated earlier in this pass, which composite rules
// reference by ChildRuleIDs; a composite referencing a rule not yet
// evaluated (forward reference) is treated as not-triggered.
func (e *Engine) evaluateRule(r *Rule, ctx EvalContext, verdicts map[string]bool, messages map[string]string) (bool, string) {
	switch r.Kind {
	case KindPattern:
		return evaluatePatternRule(r, ctx)
	case KindPath:
		return evaluatePathRule(r, ctx)
	case KindResource:
		return evaluateResourceRule(r, ctx)
	case KindContext:
		if r.ContextPredicate == nil {
			return false, ""
		}
		triggered, msg := r.ContextPredicate(ctx)
		if triggered && msg == "" {
			msg = r.UserMessage
		}
		return triggered, msg
	case KindComposite:
		return evaluateComposite(r, verdicts, messages)
	default:
		return false, ""
	}
}

func evaluateComposite(r *Rule, verdicts map[string]bool, messages map[string]string) (bool, string) {
	switch r.Operator {
	case OpAnd:
		for _, id := range r.ChildRuleIDs {
			if !verdicts[id] {
				return false, ""
			}
		}
		return true, compositeMessage(r, r.ChildRuleIDs, messages)
	case OpOr:
		for _, id := range r.ChildRuleIDs {
			if verdicts[id] {
				return true, messages[id]
			}
		}
		return false, ""
	case OpNot:
		if len(r.ChildRuleIDs) != 1 {
			return false, ""
		}
		return !verdicts[r.ChildRuleIDs[0]], r.UserMessage
	default:
		return false, ""
	}
}

func compositeMessage(r *Rule, ids []string, messages map[string]string) string {
	if r.UserMessage != "" {
		return r.UserMessage
	}
	if len(ids) > 0 {
		return messages[ids[0]]
	}
	return ""
}

func evaluatePatternRule(r *Rule, ctx EvalContext) (bool, string) {
	v, ok := ctx.Arguments[r.TargetArgument]
	if !ok {
		return false, ""
	}
	s, ok := v.(string)
	if !ok {
		return false, ""
	}
	for _, p := range r.Patterns {
		if p.MatchString(s) {
			return true, fmt.Sprintf("argument %q matches pattern %q", r.TargetArgument, p.String())
		}
	}
	return false, ""
}

func evaluateResourceRule(r *Rule, ctx EvalContext) (bool, string) {
	v, ok := ctx.Arguments[r.TargetArgument]
	if !ok {
		return false, ""
	}
	f, ok := toFloat(v)
	if !ok {
		return false, ""
	}
	if r.MaxValue != nil && f > *r.MaxValue {
		return true, fmt.Sprintf("argument %q value %v exceeds maximum %v", r.TargetArgument, f, *r.MaxValue)
	}
	if r.MinValue != nil && f < *r.MinValue {
		return true, fmt.Sprintf("argument %q value %v below minimum %v", r.TargetArgument, f, *r.MinValue)
	}
	return false, ""
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	default:
		return 0, false
	}
}
