package hooks

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"gopkg.in/yaml.v3"
)

func testContext() ExportContext {
	return ExportContext{
		Outputs:    []string{"/tmp/show.lst", "/tmp/show.tree"},
		Mode:       "b1w3",
		ImageCount: 42,
		Timestamp:  time.Date(2025, 11, 30, 10, 30, 0, 0, time.UTC),
	}
}

func preHooks(hooks ...Hook) *Config {
	return &Config{Hooks: HooksByPhase{PreExport: hooks}}
}

func postHooks(hooks ...Hook) *Config {
	return &Config{Hooks: HooksByPhase{PostExport: hooks}}
}

func TestExportContextToEnv(t *testing.T) {
	env := testContext().ToEnv()

	sep := string(os.PathListSeparator)
	expected := map[string]string{
		"SLIDETREE_HOOK_OUTPUTS":   "/tmp/show.lst" + sep + "/tmp/show.tree",
		"SLIDETREE_HOOK_MODE":      "b1w3",
		"SLIDETREE_HOOK_IMAGES":    "42",
		"SLIDETREE_HOOK_TIMESTAMP": "2025-11-30T10:30:00Z",
	}
	if len(env) != len(expected) {
		t.Fatalf("expected %d variables, got %v", len(expected), env)
	}
	for _, e := range env {
		key, val, _ := strings.Cut(e, "=")
		want, ok := expected[key]
		if !ok {
			t.Errorf("unexpected variable %s", key)
			continue
		}
		if val != want {
			t.Errorf("%s = %q, want %q", key, val, want)
		}
	}
}

func TestLoaderNoConfig(t *testing.T) {
	loader := NewLoader(WithProjectDir(t.TempDir()))
	if err := loader.Load(); err != nil {
		t.Fatalf("expected no error for missing config, got: %v", err)
	}
	if loader.HasHooks() {
		t.Error("expected no hooks when config is missing")
	}
}

func TestLoaderWithValidConfig(t *testing.T) {
	tmpDir := t.TempDir()
	writeHooksFile(t, tmpDir, `
hooks:
  pre-export:
    - name: check-share
      command: test -d /tmp
      timeout: 5s
  post-export:
    - name: reload
      command: pkill -HUP slideshow
      timeout: 10
      env:
        DISPLAY: ":0"
`)

	loader := NewLoader(WithProjectDir(tmpDir))
	if err := loader.Load(); err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if !loader.HasHooks() {
		t.Fatal("expected hooks to be loaded")
	}

	pre := loader.GetHooks(PreExport)
	if len(pre) != 1 {
		t.Fatalf("expected 1 pre-export hook, got %d", len(pre))
	}
	if pre[0].Name != "check-share" || pre[0].Timeout != 5*time.Second {
		t.Errorf("unexpected pre-export hook: %+v", pre[0])
	}
	if pre[0].OnError != "fail" {
		t.Errorf("expected on_error 'fail' for pre-export, got %s", pre[0].OnError)
	}

	post := loader.GetHooks(PostExport)
	if len(post) != 1 {
		t.Fatalf("expected 1 post-export hook, got %d", len(post))
	}
	if post[0].Timeout != 10*time.Second {
		t.Errorf("a bare number should be seconds, got %v", post[0].Timeout)
	}
	if post[0].OnError != "continue" {
		t.Errorf("expected on_error 'continue' for post-export, got %s", post[0].OnError)
	}
	if post[0].Env["DISPLAY"] != ":0" {
		t.Errorf("expected DISPLAY env, got %v", post[0].Env)
	}
}

func TestLoaderInvalidYAML(t *testing.T) {
	tmpDir := t.TempDir()
	writeHooksFile(t, tmpDir, "hooks: [unclosed")

	if err := NewLoader(WithProjectDir(tmpDir)).Load(); err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestLoaderSkipsEmptyCommands(t *testing.T) {
	tmpDir := t.TempDir()
	writeHooksFile(t, tmpDir, "hooks:\n  pre-export:\n    - name: blank\n      command: \"  \"\n")

	loader := NewLoader(WithProjectDir(tmpDir))
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	if loader.HasHooks() {
		t.Error("expected hooks with empty commands to be skipped")
	}
	if len(loader.Warnings()) == 0 {
		t.Fatal("expected warning for empty command")
	}
}

func TestLoaderDefaultsNames(t *testing.T) {
	tmpDir := t.TempDir()
	writeHooksFile(t, tmpDir, "hooks:\n  post-export:\n    - command: echo a\n    - command: echo b\n")

	loader := NewLoader(WithProjectDir(tmpDir))
	if err := loader.Load(); err != nil {
		t.Fatalf("load: %v", err)
	}
	post := loader.GetHooks(PostExport)
	if len(post) != 2 || post[0].Name != "post-export-1" || post[1].Name != "post-export-2" {
		t.Errorf("unexpected default names: %+v", post)
	}
	if post[0].Timeout != DefaultTimeout {
		t.Errorf("expected default timeout, got %v", post[0].Timeout)
	}
}

func TestExecutorRunSimpleHook(t *testing.T) {
	executor := NewExecutor(preHooks(Hook{Name: "echo", Command: "echo hello", Timeout: 5 * time.Second, OnError: "fail"}), testContext())
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected hook to succeed, got: %v", err)
	}

	results := executor.Results()
	if len(results) != 1 {
		t.Fatalf("expected 1 result, got %d", len(results))
	}
	if !results[0].Success {
		t.Errorf("expected success, got failure: %v", results[0].Error)
	}
	if results[0].Stdout != "hello" {
		t.Errorf("expected stdout 'hello', got %q", results[0].Stdout)
	}
	if results[0].Phase != PreExport {
		t.Errorf("phase = %s", results[0].Phase)
	}
}

func TestExecutorHookFailure(t *testing.T) {
	executor := NewExecutor(preHooks(Hook{Name: "fail", Command: "exit 1", Timeout: 5 * time.Second, OnError: "fail"}), testContext())
	if err := executor.RunPreExport(); err == nil {
		t.Error("expected error for failing pre-export hook")
	}
}

func TestExecutorHookFailureContinue(t *testing.T) {
	executor := NewExecutor(postHooks(
		Hook{Name: "fail-continue", Command: "exit 1", Timeout: 5 * time.Second, OnError: "continue"},
		Hook{Name: "should-run", Command: "echo still-running", Timeout: 5 * time.Second, OnError: "continue"},
	), testContext())
	if err := executor.RunPostExport(); err != nil {
		t.Errorf("expected no error with on_error=continue, got: %v", err)
	}

	results := executor.Results()
	if len(results) != 2 {
		t.Fatalf("expected 2 results, got %d", len(results))
	}
	if results[0].Success {
		t.Error("expected first hook to fail")
	}
	if !results[1].Success || results[1].Stdout != "still-running" {
		t.Errorf("expected second hook to succeed, got %+v", results[1])
	}
}

func TestExecutorHookTimeout(t *testing.T) {
	executor := NewExecutor(preHooks(Hook{Name: "slow", Command: "sleep 10", Timeout: 100 * time.Millisecond, OnError: "fail"}), testContext())

	start := time.Now()
	if err := executor.RunPreExport(); err == nil {
		t.Error("expected timeout error")
	}
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Errorf("timeout not enforced, took %v", elapsed)
	}
	results := executor.Results()
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected one failed result, got %+v", results)
	}
	if !strings.Contains(results[0].Error.Error(), "timed out") {
		t.Errorf("error should mention the timeout: %v", results[0].Error)
	}
}

func TestExecutorEnvironmentVariables(t *testing.T) {
	executor := NewExecutor(preHooks(Hook{
		Name:    "env",
		Command: "echo $SLIDETREE_HOOK_MODE $SLIDETREE_HOOK_IMAGES",
		Timeout: 5 * time.Second,
		OnError: "fail",
	}), testContext())
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if got := executor.Results()[0].Stdout; got != "b1w3 42" {
		t.Errorf("expected env vars in output, got %q", got)
	}
}

func TestExecutorCustomEnvExpansion(t *testing.T) {
	t.Setenv("TEST_HOOK_VAR", "expanded_value")

	executor := NewExecutor(preHooks(Hook{
		Name:    "env-expand",
		Command: "echo $CUSTOM_VAR",
		Timeout: 5 * time.Second,
		OnError: "fail",
		Env:     map[string]string{"CUSTOM_VAR": "${TEST_HOOK_VAR}"},
	}), testContext())
	if err := executor.RunPreExport(); err != nil {
		t.Fatalf("expected success, got: %v", err)
	}
	if got := executor.Results()[0].Stdout; got != "expanded_value" {
		t.Errorf("expected env expansion, got %q", got)
	}
}

func TestExecutorSummary(t *testing.T) {
	config := &Config{Hooks: HooksByPhase{
		PreExport:  []Hook{{Name: "ok", Command: "echo ok", Timeout: 5 * time.Second, OnError: "continue"}},
		PostExport: []Hook{{Name: "broken", Command: "exit 1", Timeout: 5 * time.Second, OnError: "continue"}},
	}}
	executor := NewExecutor(config, testContext())
	_ = executor.RunPreExport()
	_ = executor.RunPostExport()

	summary := executor.Summary()
	if !strings.Contains(summary, "1 succeeded") || !strings.Contains(summary, "1 failed") {
		t.Errorf("summary should mention success and failure count: %s", summary)
	}
	if !strings.Contains(summary, "broken (post-export)") {
		t.Errorf("summary should name the failed hook: %s", summary)
	}
}

func TestExecutorSummaryEmpty(t *testing.T) {
	if s := NewExecutor(nil, ExportContext{}).Summary(); s != "" {
		t.Errorf("expected empty summary before any run, got %q", s)
	}
}

func TestRunPreExportStopsOnFail(t *testing.T) {
	executor := NewExecutor(preHooks(
		Hook{Name: "fail-fast", Command: "exit 1", Timeout: time.Second, OnError: "fail"},
		Hook{Name: "should-not-run", Command: "echo nope", Timeout: time.Second, OnError: "fail"},
	), ExportContext{})
	if err := executor.RunPreExport(); err == nil {
		t.Fatal("expected error from failing pre-export hook")
	}
	results := executor.Results()
	if len(results) != 1 {
		t.Fatalf("expected only first hook to run, got %d results", len(results))
	}
}

func TestRunPostExportFailOnErrorStillRunsAll(t *testing.T) {
	executor := NewExecutor(postHooks(
		Hook{Name: "fail", Command: "exit 1", Timeout: time.Second, OnError: "fail"},
		Hook{Name: "after", Command: "echo ok", Timeout: time.Second, OnError: "continue"},
	), ExportContext{})
	if err := executor.RunPostExport(); err == nil {
		t.Fatal("expected error for post-export hook with on_error=fail")
	}
	results := executor.Results()
	if len(results) != 2 {
		t.Fatalf("expected both hooks to run, got %d", len(results))
	}
	if results[1].Stdout != "ok" {
		t.Errorf("expected second hook to run despite earlier failure, got stdout %q", results[1].Stdout)
	}
}

func TestHookUnmarshalYAMLInvalidTimeout(t *testing.T) {
	var h Hook
	if err := yaml.Unmarshal([]byte("name: bad\ntimeout: nope\ncommand: echo hi\n"), &h); err == nil {
		t.Fatal("expected error for invalid duration")
	}
}

func TestLoaderGetHooksUnknownPhase(t *testing.T) {
	loader := &Loader{config: preHooks(Hook{Name: "test", Command: "echo ok"})}
	if hooks := loader.GetHooks(HookPhase("unknown")); hooks != nil {
		t.Fatalf("expected nil for unknown phase, got %#v", hooks)
	}
}

func TestExecutorCommandNotFound(t *testing.T) {
	exec := NewExecutor(preHooks(Hook{Name: "missing", Command: "definitely-not-a-real-command-xyz", Timeout: time.Second, OnError: "fail"}), ExportContext{})
	if err := exec.RunPreExport(); err == nil {
		t.Fatalf("expected error for missing command")
	}
	results := exec.Results()
	if len(results) != 1 || results[0].Success {
		t.Fatalf("expected failure result for missing command, got %+v", results)
	}
	if results[0].Stderr == "" {
		t.Fatalf("expected stderr to include shell error")
	}
}

func TestExecutorPermissionDenied(t *testing.T) {
	script := filepath.Join(t.TempDir(), "reload.sh")
	if err := os.WriteFile(script, []byte("#!/bin/sh\necho nope\n"), 0644); err != nil {
		t.Fatalf("write script: %v", err)
	}

	exec := NewExecutor(preHooks(Hook{Name: "perm", Command: script, Timeout: time.Second, OnError: "fail"}), ExportContext{})
	if err := exec.RunPreExport(); err == nil {
		t.Fatalf("expected permission error")
	}
}

func TestExecutorLargeStderrTruncatedInSummary(t *testing.T) {
	exec := NewExecutor(postHooks(Hook{
		Name:    "noisy",
		Command: "printf '%0300d' 0 1>&2; exit 1",
		OnError: "continue",
		Timeout: time.Second,
	}), ExportContext{})
	_ = exec.RunPostExport()

	summary := exec.Summary()
	if !strings.Contains(summary, "stderr:") {
		t.Fatalf("expected stderr line in summary: %s", summary)
	}
	for _, line := range strings.Split(summary, "\n") {
		if strings.Contains(line, "stderr:") && len(line) > 230 {
			t.Fatalf("expected truncated stderr line, got length %d", len(line))
		}
	}
	if !strings.Contains(summary, "...") {
		t.Fatalf("expected ellipsis indicating truncation")
	}
}
