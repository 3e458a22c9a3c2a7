package orchestrator

import (
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"time"

	"github.com/tron-run/tron/internal/agent"
	"github.com/tron-run/tron/internal/taskstore"
)

// ruleFileNames lists the project rule files searched for at each
// turn's prompt-building step; every file present is included,
// concatenated in this order.
var ruleFileNames = []string{"AGENTS.md", "CLAUDE.md", "TRON.md"}

// SystemPromptInput carries everything BuildSystemPrompt needs to
// assemble a turn's system prompt when no compaction summary already
// supplies one.
type SystemPromptInput struct {
	Agent   *agent.Agent
	WorkDir string
	Model   string
	Todos   *taskstore.ActiveSummary
}

// BuildSystemPrompt assembles the system prompt: provider/model header,
// the agent preset's own prompt, environment context, any project rule
// files, and a summary of active tracked work.
func BuildSystemPrompt(in SystemPromptInput) string {
	var b strings.Builder
	b.WriteString(providerHeader(in.Model))
	b.WriteString("\n\n")

	if in.Agent != nil && in.Agent.Prompt != "" {
		b.WriteString(in.Agent.Prompt)
		b.WriteString("\n\n")
	}

	b.WriteString(environmentContext(in.WorkDir))

	if rules, n := loadCustomRules(in.WorkDir); n > 0 {
		b.WriteString("\n\n# Project rules\n\n")
		b.WriteString(rules)
	}

	if in.Todos != nil && (in.Todos.Overdue > 0 || in.Todos.Deferred > 0 || len(in.Todos.InProgress) > 0) {
		b.WriteString(fmt.Sprintf(
			"\n\n# Active work\n\n%d overdue, %d deferred, %d in progress task(s).\n",
			in.Todos.Overdue, in.Todos.Deferred, len(in.Todos.InProgress),
		))
	}

	return b.String()
}

func providerHeader(model string) string {
	return fmt.Sprintf("You are tron, an autonomous coding agent running the %s model.", model)
}

func environmentContext(workDir string) string {
	return fmt.Sprintf(
		"# Environment\n\nWorking directory: %s\nPlatform: %s\nDate: %s\nGit branch: %s\n",
		workDir, runtime.GOOS, time.Now().Format("2006-01-02"), gitBranch(workDir),
	)
}

func gitBranch(workDir string) string {
	out, err := exec.Command("git", "-C", workDir, "rev-parse", "--abbrev-ref", "HEAD").Output()
	if err != nil {
		return "unknown"
	}
	return strings.TrimSpace(string(out))
}

// loadCustomRules concatenates every rule file found in workDir,
// reporting how many were present so callers can skip an empty section.
func loadCustomRules(workDir string) (string, int) {
	var b strings.Builder
	n := 0
	for _, name := range ruleFileNames {
		data, err := os.ReadFile(filepath.Join(workDir, name))
		if err != nil {
			continue
		}
		b.Write(data)
		b.WriteString("\n")
		n++
	}
	return b.String(), n
}
