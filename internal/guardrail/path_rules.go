package guardrail

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/bmatcuk/doublestar/v4"
)

// DefaultProtectedGlobs are the canonical paths spec §4.D names by
// example: the app's own home directory, its database, and anything
// under its auth directory.
func DefaultProtectedGlobs() []string {
	home, _ := os.UserHomeDir()
	return []string{
		filepath.Join(home, ".tron", "app") + "/**",
		".tron/database",
		".tron/auth*",
	}
}

// evaluatePathRule dispatches on PathVariant.
func evaluatePathRule(r *Rule, ctx EvalContext) (bool, string) {
	switch r.PathVariant {
	case PathTraversal:
		return evaluateTraversal(r, ctx)
	case PathHiddenDir:
		return evaluateHiddenDir(r, ctx)
	case PathProtected:
		return evaluateProtected(r, ctx)
	default:
		return false, ""
	}
}

func argPaths(ctx EvalContext) []string {
	var out []string
	for _, key := range []string{"path", "filePath", "file_path", "target", "directory"} {
		if v, ok := ctx.Arguments[key]; ok {
			if s, ok := v.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	}
	if ctx.ToolName == "bash" {
		if cmd, ok := ctx.Arguments["command"].(string); ok && cmd != "" {
			if targets, err := extractWriteTargets(cmd, ctx.WorkDir); err == nil {
				out = append(out, targets...)
			}
		}
	}
	return out
}

func evaluateTraversal(_ *Rule, ctx EvalContext) (bool, string) {
	for _, p := range argPaths(ctx) {
		if strings.Contains(p, "../") || strings.Contains(p, `..\`) {
			return true, fmt.Sprintf("path %q contains a traversal sequence", p)
		}
	}
	return false, ""
}

func evaluateHiddenDir(_ *Rule, ctx EvalContext) (bool, string) {
	for _, p := range argPaths(ctx) {
		for _, seg := range strings.Split(filepath.ToSlash(p), "/") {
			if strings.HasPrefix(seg, ".") && seg != "." && seg != ".." && seg != "" {
				return true, fmt.Sprintf("path %q creates or targets a hidden directory segment %q", p, seg)
			}
		}
	}
	return false, ""
}

// pathMatchesProtectedGlob matches a resolved (workdir-joined) path and
// its original, unresolved form against a protected-path glob. Absolute
// globs (the app-home pattern) match against resolved; relative globs
// (".tron/database", ".tron/auth*") name a path relative to any
// workspace root, so they're matched against both the raw argument and
// as a "**/"-anchored suffix of the resolved path.
func pathMatchesProtectedGlob(resolved, raw, g string) bool {
	if ok, _ := doublestar.Match(g, resolved); ok {
		return true
	}
	if filepath.IsAbs(g) {
		return false
	}
	if ok, _ := doublestar.Match(g, filepath.ToSlash(raw)); ok {
		return true
	}
	if ok, _ := doublestar.Match("**/"+g, filepath.ToSlash(resolved)); ok {
		return true
	}
	return false
}

func evaluateProtected(r *Rule, ctx EvalContext) (bool, string) {
	globs := r.ProtectedGlobs
	if len(globs) == 0 {
		globs = DefaultProtectedGlobs()
	}
	for _, p := range argPaths(ctx) {
		resolved := resolveAgainst(p, ctx.WorkDir)
		for _, g := range globs {
			if pathMatchesProtectedGlob(resolved, p, g) {
				return true, fmt.Sprintf("path %q matches protected pattern %q", resolved, g)
			}
		}
	}
	return false, ""
}
