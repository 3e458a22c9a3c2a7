package guardrail

import "regexp"

// Tier controls whether a rule can be disabled by a settings override
// (spec §4.D "Tiers & overrides").
type Tier string

const (
	TierCore     Tier = "core"
	TierStandard Tier = "standard"
	TierCustom   Tier = "custom"
)

// Severity controls what a triggered rule does to the evaluation result
// (spec §4.D "Severities").
type Severity string

const (
	SeverityBlock Severity = "block"
	SeverityWarn  Severity = "warn"
	SeverityAudit Severity = "audit"
)

// Kind discriminates the tagged-union rule shapes of spec §4.D.
type Kind string

const (
	KindPattern   Kind = "pattern"
	KindPath      Kind = "path"
	KindResource  Kind = "resource"
	KindContext   Kind = "context"
	KindComposite Kind = "composite"
)

// PathVariant discriminates path-rule behaviors.
type PathVariant string

const (
	PathTraversal     PathVariant = "traversal"      // "../" detection
	PathHiddenDir     PathVariant = "hidden_dir"      // hidden directory creation
	PathProtected     PathVariant = "protected_paths" // canonical-path protection
)

// CompositeOp discriminates composite-rule boolean operators.
type CompositeOp string

const (
	OpAnd CompositeOp = "AND"
	OpOr  CompositeOp = "OR"
	OpNot CompositeOp = "NOT"
)

// Scope restricts which tool invocations a rule applies to.
type Scope struct {
	Global bool
	Tools  map[string]bool
}

// GlobalScope returns a Scope matching every tool.
func GlobalScope() Scope { return Scope{Global: true} }

// ToolScope returns a Scope matching only the named tools.
func ToolScope(tools ...string) Scope {
	m := make(map[string]bool, len(tools))
	for _, t := range tools {
		m[t] = true
	}
	return Scope{Tools: m}
}

func (s Scope) matches(toolName string) bool {
	return s.Global || s.Tools[toolName]
}

// EvalContext is the full evaluation context a rule is judged against.
type EvalContext struct {
	SessionID string
	ToolName  string
	WorkDir   string
	Arguments map[string]any
}

// ContextPredicate is the function shape a context rule evaluates.
type ContextPredicate func(EvalContext) (triggered bool, message string)

// Rule is the tagged union of spec §4.D's five rule kinds. Exactly the
// fields relevant to Kind are populated; this mirrors the teacher's own
// preference for simple structs over small-interface hierarchies
// (permission.Request/Response) generalized to five variants instead of
// the teacher's three permission types.
type Rule struct {
	ID       string
	Tier     Tier
	Severity Severity
	Scope    Scope
	Priority int
	Kind     Kind

	// KindPattern
	TargetArgument string
	Patterns       []*regexp.Regexp

	// KindPath
	PathVariant    PathVariant
	ProtectedGlobs []string

	// KindResource
	MaxValue *float64
	MinValue *float64

	// KindContext
	ContextPredicate ContextPredicate
	UserMessage      string

	// KindComposite
	Operator     CompositeOp
	ChildRuleIDs []string
}
