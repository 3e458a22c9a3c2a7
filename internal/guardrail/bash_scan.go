package guardrail

import (
	"fmt"
	"path/filepath"
	"strings"

	"mvdan.cc/sh/v3/syntax"
)

// bashCommand is a parsed shell command invocation.
type bashCommand struct {
	Name       string
	Args       []string
	Subcommand string
}

// parseBashCommands parses a bash command string into its constituent
// simple-command invocations, walking the whole AST so a pipeline or
// command list (`cmd1 && cmd2 | cmd3`) yields every stage.
func parseBashCommands(command string) ([]bashCommand, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse bash command: %w", err)
	}

	var commands []bashCommand
	syntax.Walk(file, func(node syntax.Node) bool {
		if call, ok := node.(*syntax.CallExpr); ok {
			if cmd := extractCommand(call); cmd != nil {
				commands = append(commands, *cmd)
			}
		}
		return true
	})
	return commands, nil
}

func extractCommand(call *syntax.CallExpr) *bashCommand {
	if len(call.Args) == 0 {
		return nil
	}
	cmd := &bashCommand{Name: wordToString(call.Args[0])}
	if cmd.Name == "" {
		return nil
	}
	for _, arg := range call.Args[1:] {
		s := wordToString(arg)
		cmd.Args = append(cmd.Args, s)
		if cmd.Subcommand == "" && !strings.HasPrefix(s, "-") {
			cmd.Subcommand = s
		}
	}
	return cmd
}

func wordToString(word *syntax.Word) string {
	var sb strings.Builder
	for _, part := range word.Parts {
		switch p := part.(type) {
		case *syntax.Lit:
			sb.WriteString(p.Value)
		case *syntax.SglQuoted:
			sb.WriteString(p.Value)
		case *syntax.DblQuoted:
			for _, qp := range p.Parts {
				if lit, ok := qp.(*syntax.Lit); ok {
					sb.WriteString(lit.Value)
				}
			}
		case *syntax.ParamExp:
			sb.WriteString("$" + p.Param.Value)
		case *syntax.CmdSubst:
			sb.WriteString("$()")
		}
	}
	return sb.String()
}

// pathWritingCommands names commands whose non-flag arguments are
// file-write targets worth scanning against protected paths.
var pathWritingCommands = map[string]bool{
	"cp": true, "mv": true, "tee": true, "dd": true,
}

// extractWriteTargets scans a bash command string for every path a
// redirect, tee, cp, or mv could write to, resolved against workDir when
// relative. This is the guardrail's bash-scan rule: it never executes
// anything, it only inspects the parsed AST for write targets so the
// protected-path rule can reject them before the shell runs.
func extractWriteTargets(command, workDir string) ([]string, error) {
	parser := syntax.NewParser(syntax.Variant(syntax.LangBash), syntax.KeepComments(false))
	file, err := parser.Parse(strings.NewReader(command), "")
	if err != nil {
		return nil, fmt.Errorf("parse bash command: %w", err)
	}

	var targets []string
	syntax.Walk(file, func(node syntax.Node) bool {
		switch n := node.(type) {
		case *syntax.Redirect:
			switch n.Op {
			case syntax.RdrOut, syntax.AppOut, syntax.RdrAll, syntax.AppAll:
				if n.Word != nil {
					targets = append(targets, resolveAgainst(wordToString(n.Word), workDir))
				}
			}
		case *syntax.CallExpr:
			cmd := extractCommand(n)
			if cmd == nil || !pathWritingCommands[cmd.Name] {
				return true
			}
			for _, p := range extractPathArgs(*cmd) {
				targets = append(targets, resolveAgainst(p, workDir))
			}
		}
		return true
	})
	return targets, nil
}

func extractPathArgs(cmd bashCommand) []string {
	var paths []string
	for _, arg := range cmd.Args {
		if strings.HasPrefix(arg, "-") {
			continue
		}
		paths = append(paths, arg)
	}
	return paths
}

func resolveAgainst(path, workDir string) string {
	if filepath.IsAbs(path) {
		return filepath.Clean(path)
	}
	return filepath.Clean(filepath.Join(workDir, path))
}
