package guardrail

import "testing"

func TestParseBashCommands_Pipeline(t *testing.T) {
	cmds, err := parseBashCommands("ls -la | grep foo && echo done")
	if err != nil {
		t.Fatalf("parseBashCommands: %v", err)
	}
	if len(cmds) != 3 {
		t.Fatalf("expected 3 commands, got %d: %+v", len(cmds), cmds)
	}
	if cmds[0].Name != "ls" || cmds[1].Name != "grep" || cmds[2].Name != "echo" {
		t.Fatalf("unexpected command names: %+v", cmds)
	}
}

func TestExtractWriteTargets_Redirect(t *testing.T) {
	targets, err := extractWriteTargets("echo hi > out.txt", "/work")
	if err != nil {
		t.Fatalf("extractWriteTargets: %v", err)
	}
	if len(targets) != 1 || targets[0] != "/work/out.txt" {
		t.Fatalf("expected [/work/out.txt], got %+v", targets)
	}
}

func TestExtractWriteTargets_AppendRedirect(t *testing.T) {
	targets, err := extractWriteTargets("echo hi >> /tmp/log.txt", "/work")
	if err != nil {
		t.Fatalf("extractWriteTargets: %v", err)
	}
	if len(targets) != 1 || targets[0] != "/tmp/log.txt" {
		t.Fatalf("expected [/tmp/log.txt], got %+v", targets)
	}
}

func TestExtractWriteTargets_CpMv(t *testing.T) {
	targets, err := extractWriteTargets("cp secret.txt /home/user/.tron/app/stolen.txt", "/work")
	if err != nil {
		t.Fatalf("extractWriteTargets: %v", err)
	}
	found := false
	for _, tgt := range targets {
		if tgt == "/home/user/.tron/app/stolen.txt" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected cp destination among targets, got %+v", targets)
	}
}

func TestExtractWriteTargets_IgnoresFlags(t *testing.T) {
	targets, err := extractWriteTargets("cp -r src dst", "/work")
	if err != nil {
		t.Fatalf("extractWriteTargets: %v", err)
	}
	for _, tgt := range targets {
		if tgt == "-r" {
			t.Fatalf("flag leaked into targets: %+v", targets)
		}
	}
}
