package config

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoadConfig_Defaults(t *testing.T) {
	cfg := loadConfigFromString(t, "")

	if !cfg.Browser.Headless {
		t.Error("expected headless by default")
	}
	if cfg.Auth.MaxAge != 2*time.Hour {
		t.Errorf("expected auth.max_age 2h, got %v", cfg.Auth.MaxAge)
	}
	if cfg.Execution.Workers != 1 {
		t.Errorf("expected 1 worker, got %d", cfg.Execution.Workers)
	}
	if cfg.Fixtures.CompanyCode != "9900000144" {
		t.Errorf("unexpected company code %q", cfg.Fixtures.CompanyCode)
	}
	if got := cfg.Conditions.Get(TargetPropagation); got.MaxAttempts != 6 || got.Interval != 10*time.Second {
		t.Errorf("unexpected target_propagation default: %+v", got)
	}
	for _, class := range []ConditionClass{CADisplay, AlgorithmRegistration, Cleanup} {
		if !cfg.Conditions.Get(class).BestEffort() {
			t.Errorf("%s should default to best_effort", class)
		}
	}
	if cfg.Dir == "" {
		t.Error("expected Dir to be set from the file path")
	}
}

func TestLoadConfig_FullSuite(t *testing.T) {
	t.Setenv("OPDFLOW_TEST_LOGIN", "doctor01")
	t.Setenv("OPDFLOW_TEST_PASSWORD", "secret")
	t.Setenv("OPDFLOW_TEST_SYS_CODE", "00123456")

	content := `
browser:
  headless: false
  slow_mo: 250ms
  proxy: "http://mrqa1:8888"
  navigations_per_second: 0.5
targets:
  opex: "https://opex-qa1.example.com"
  sp: "https://sp.example.com"
accounts:
  doctor:
    login_id: "${env:OPDFLOW_TEST_LOGIN}"
    password: "${env:OPDFLOW_TEST_PASSWORD}"
    system_code: "${env:OPDFLOW_TEST_SYS_CODE}"
conditions:
  target_propagation:
    max_attempts: 12
    interval: 5s
    mode: best_effort
execution:
  workers: 4
  scenario_timeout: 20m
thresholds:
  probe_convergence:
    p95: 45s
  probes:
    sp list title:
      p95: 60s
  phase_failed:
    rate: "10%"
  poll_exhausted:
    rate: "5%"
`
	cfg := loadConfigFromString(t, content)

	if cfg.Browser.Headless {
		t.Error("expected headless false")
	}
	if cfg.Browser.SlowMo != 250*time.Millisecond {
		t.Errorf("expected slow_mo 250ms, got %v", cfg.Browser.SlowMo)
	}
	if cfg.Browser.ActionTimeout != 10*time.Second {
		t.Errorf("unset browser fields should keep defaults, got %v", cfg.Browser.ActionTimeout)
	}
	if cfg.Accounts.Doctor.LoginID != "doctor01" || cfg.Accounts.Doctor.Password != "secret" {
		t.Errorf("env placeholders not expanded: %+v", cfg.Accounts.Doctor)
	}
	if cfg.Accounts.Doctor.SystemCode != "00123456" {
		t.Errorf("expected system code from env, got %q", cfg.Accounts.Doctor.SystemCode)
	}
	tp := cfg.Conditions.Get(TargetPropagation)
	if tp.MaxAttempts != 12 || tp.Interval != 5*time.Second || !tp.BestEffort() {
		t.Errorf("unexpected target_propagation override: %+v", tp)
	}
	if cfg.Conditions.Get(PreviewImage).MaxAttempts != 18 {
		t.Error("classes absent from the file should keep defaults")
	}
	if cfg.Execution.Workers != 4 || cfg.Execution.ScenarioTimeout != 20*time.Minute {
		t.Errorf("unexpected execution: %+v", cfg.Execution)
	}
	if cfg.Thresholds == nil || cfg.Thresholds.ProbeConvergence == nil || cfg.Thresholds.ProbeConvergence.P95 != 45*time.Second {
		t.Fatalf("thresholds not parsed: %+v", cfg.Thresholds)
	}
	if p := cfg.Thresholds.Probes["sp list title"]; p == nil || p.P95 != 60*time.Second {
		t.Errorf("probe threshold not parsed: %+v", cfg.Thresholds.Probes)
	}
	if cfg.Thresholds.PollExhausted == nil || cfg.Thresholds.PollExhausted.Rate != "5%" {
		t.Errorf("poll_exhausted not parsed: %+v", cfg.Thresholds.PollExhausted)
	}
}

func TestLoadConfig_PartialConditionKeepsDefaults(t *testing.T) {
	cfg := loadConfigFromString(t, `
conditions:
  point_accrual:
    mode: best_effort
`)
	pa := cfg.Conditions.Get(PointAccrual)
	if pa.MaxAttempts != 10 || pa.Interval != 3*time.Second || pa.Timeout != 30*time.Second {
		t.Errorf("partial override lost defaults: %+v", pa)
	}
	if !pa.BestEffort() {
		t.Error("mode override not applied")
	}
}

func TestLoadConfig_MissingEnv(t *testing.T) {
	content := `
accounts:
  doctor:
    password: "${env:OPDFLOW_DEFINITELY_UNSET_VAR}"
`
	tmpFile := createTempFile(t, content)

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Fatal("expected error for unset env var")
	}
	if !strings.Contains(err.Error(), "accounts.doctor.password") {
		t.Errorf("error should name the field, got %v", err)
	}
}

func TestLoadConfig_ValidationErrors(t *testing.T) {
	content := `
auth:
  max_age: -1h
accounts:
  mode: shuffled
conditions:
  ca_display:
    max_attempts: 3
    mode: sometimes
`
	tmpFile := createTempFile(t, content)

	_, err := LoadConfig(tmpFile)
	var verr *ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if len(verr.Problems) != 3 {
		t.Errorf("expected 3 problems, got %d: %v", len(verr.Problems), verr.Problems)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig("/nonexistent/path/opdflow.yaml")
	if err == nil {
		t.Error("expected error for nonexistent file")
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	content := `
browser:
  proxy: "Invalid
  headless: [[[invalid
`
	tmpFile := createTempFile(t, content)

	_, err := LoadConfig(tmpFile)
	if err == nil {
		t.Error("expected error for invalid YAML")
	}
}

func TestSuite_Resolve(t *testing.T) {
	s := &Suite{Dir: "/etc/opdflow"}

	if got := s.Resolve("doctors.csv"); got != filepath.Join("/etc/opdflow", "doctors.csv") {
		t.Errorf("unexpected relative resolution %q", got)
	}
	if got := s.Resolve("/abs/doctors.csv"); got != "/abs/doctors.csv" {
		t.Errorf("absolute paths must be kept, got %q", got)
	}
	if got := s.Resolve(""); got != "" {
		t.Errorf("empty path must stay empty, got %q", got)
	}
}

func TestSuite_RequireTargets(t *testing.T) {
	s := Default()
	s.Targets.Opex = "https://opex.example.com"

	if err := s.RequireTargets("opex"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
	err := s.RequireTargets("opex", "sp", "mrkun")
	if err == nil || !strings.Contains(err.Error(), "targets.sp, targets.mrkun") {
		t.Errorf("expected missing sp and mrkun, got %v", err)
	}
}

func TestConditions_GetFallbacks(t *testing.T) {
	c := Conditions{}
	if c.Get(FieldEnabled).MaxAttempts != 5 {
		t.Error("missing class should fall back to default policy")
	}
	unknown := c.Get(ConditionClass("unknown"))
	if unknown.MaxAttempts != 1 || unknown.BestEffort() {
		t.Errorf("unknown class should be a single asserted attempt, got %+v", unknown)
	}
}

func TestPolicy_FromCondition(t *testing.T) {
	c := DefaultConditions()
	reloads := 0
	p := Policy(c, PointAccrual, func(v int) bool { return v >= 50 }, func(context.Context) error {
		reloads++
		return nil
	})

	if p.Name != "point_accrual" || p.MaxAttempts != 10 || p.Interval != 3*time.Second || p.Timeout != 30*time.Second {
		t.Errorf("unexpected policy %+v", p)
	}
	if err := p.Validate(); err != nil {
		t.Errorf("policy should be valid: %v", err)
	}
	_ = p.Between(context.Background())
	if reloads != 1 {
		t.Error("between hook not carried over")
	}
}

// Helper functions

func loadConfigFromString(t *testing.T, content string) *Suite {
	t.Helper()
	tmpFile := createTempFile(t, content)

	cfg, err := LoadConfig(tmpFile)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	return cfg
}

func createTempFile(t *testing.T, content string) string {
	t.Helper()
	tmpDir := t.TempDir()
	tmpFile := filepath.Join(tmpDir, "opdflow.yaml")
	if err := os.WriteFile(tmpFile, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create temp file: %v", err)
	}
	return tmpFile
}
