package guardrail

import "regexp"

// CoreRuleIDs names every unoverridable rule RegisterCoreRules installs,
// mirroring tron-guardrails' CORE_RULE_IDS constant.
var CoreRuleIDs = []string{
	"core.destructive-commands",
	"core.protected-path-write",
	"core.path-traversal",
	"core.credential-exfiltration",
}

// destructiveCommandPatterns matches shell invocations that destroy data
// or the filesystem outright: rm -rf on a root-ish path, disk-wipe tools,
// filesystem reformatting.
var destructiveCommandPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\brm\s+(-\w*r\w*f\w*|-\w*f\w*r\w*)\s+/(\s|$)`),
	regexp.MustCompile(`(?i)\bmkfs(\.\w+)?\b`),
	regexp.MustCompile(`(?i)\bdd\s+.*of=/dev/(sd|nvme|disk)`),
	regexp.MustCompile(`(?i):\(\)\s*\{\s*:\|\:&\s*\};\s*:`), // fork bomb
}

// credentialPatterns matches argument strings shaped like live API keys
// or secrets — not the key *names* (those are handled by audit
// redaction), the key *values* themselves appearing in a tool call
// headed for a network-capable tool.
var credentialPatterns = []*regexp.Regexp{
	regexp.MustCompile(`sk-[A-Za-z0-9]{20,}`),
	regexp.MustCompile(`AKIA[0-9A-Z]{16}`),
	regexp.MustCompile(`ghp_[A-Za-z0-9]{36}`),
	regexp.MustCompile(`xox[baprs]-[A-Za-z0-9-]{10,}`),
	regexp.MustCompile(`(?i)bearer\s+[A-Za-z0-9._-]{20,}`),
}

// networkCapableTools are tools whose argument values this process could
// actually transmit off-box, the set core.credential-exfiltration scopes
// itself to so a secret merely being *read* from a local file isn't
// flagged, only one about to leave the machine.
var networkCapableTools = []string{"bash", "webfetch", "http", "curl"}

// RegisterCoreRules installs the four rules tron-guardrails seeds at
// construction. Core rules cannot be disabled by a settings override
// (spec §4.D "Tiers & overrides").
func RegisterCoreRules(e *Engine) error {
	rules := []*Rule{
		{
			ID:             "core.destructive-commands",
			Severity:       SeverityBlock,
			Scope:          ToolScope("bash"),
			Priority:       100,
			Kind:           KindPattern,
			TargetArgument: "command",
			Patterns:       destructiveCommandPatterns,
		},
		{
			ID:          "core.protected-path-write",
			Severity:    SeverityBlock,
			Scope:       GlobalScope(),
			Priority:    100,
			Kind:        KindPath,
			PathVariant: PathProtected,
		},
		{
			ID:          "core.path-traversal",
			Severity:    SeverityBlock,
			Scope:       GlobalScope(),
			Priority:    100,
			Kind:        KindPath,
			PathVariant: PathTraversal,
		},
		{
			ID:       "core.credential-exfiltration",
			Severity: SeverityBlock,
			Scope:    ToolScope(networkCapableTools...),
			Priority: 100,
			Kind:     KindContext,
			ContextPredicate: func(ctx EvalContext) (bool, string) {
				for key, v := range ctx.Arguments {
					s, ok := v.(string)
					if !ok {
						continue
					}
					for _, p := range credentialPatterns {
						if m := p.FindString(s); m != "" {
							return true, "argument \"" + key + "\" appears to contain a live credential headed for a network-capable tool"
						}
					}
				}
				return false, ""
			},
		},
	}
	for _, r := range rules {
		if err := e.RegisterCore(r); err != nil {
			return err
		}
	}
	return nil
}

// IsCoreRule reports whether id names one of the built-in rules.
func IsCoreRule(id string) bool {
	for _, c := range CoreRuleIDs {
		if c == id {
			return true
		}
	}
	return false
}
