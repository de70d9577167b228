// Package config handles YAML suite configuration parsing.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"opdflow/internal/collector"
	"opdflow/internal/core"
	"opdflow/internal/template"
)

// Suite is the root configuration structure. It is the only source of
// environment-specific settings; phases never read the process
// environment directly.
type Suite struct {
	Browser    BrowserConfig         `yaml:"browser"`
	Targets    Targets               `yaml:"targets"`
	Auth       AuthConfig            `yaml:"auth"`
	Accounts   Accounts              `yaml:"accounts"`
	Fixtures   Fixtures              `yaml:"fixtures"`
	Poller     PollerConfig          `yaml:"poller"`
	Conditions Conditions            `yaml:"conditions"`
	Execution  ExecutionConfig       `yaml:"execution"`
	Artifacts  ArtifactsConfig       `yaml:"artifacts"`
	Thresholds *collector.Thresholds `yaml:"thresholds,omitempty"`

	// Dir is the directory of the loaded file; relative paths resolve against it.
	Dir string `yaml:"-"`
}

// BrowserConfig controls the Playwright browser.
type BrowserConfig struct {
	Headless          bool          `yaml:"headless"`
	SlowMo            time.Duration `yaml:"slow_mo"`
	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	ActionTimeout     time.Duration `yaml:"action_timeout"`
	Proxy             string        `yaml:"proxy"`
	// NavigationsPerSecond paces page loads per host. Zero disables pacing.
	NavigationsPerSecond float64 `yaml:"navigations_per_second"`
	NavigationBurst      int     `yaml:"navigation_burst"`
	AcceptDialogs        bool    `yaml:"accept_dialogs"`
}

// Targets are the base URLs of the systems under test.
type Targets struct {
	Opex     string `yaml:"opex"`
	MRKun    string `yaml:"mrkun"`
	QATool   string `yaml:"qa_tool"`
	SP       string `yaml:"sp"`
	PC       string `yaml:"pc"`
	Todo     string `yaml:"todo,omitempty"`
	PointAPI string `yaml:"point_api,omitempty"`
}

// AuthConfig locates the saved admin sessions.
type AuthConfig struct {
	OpexState    string        `yaml:"opex_state"`
	MRKunState   string        `yaml:"mrkun_state"`
	MaxAge       time.Duration `yaml:"max_age"`
	LoginTimeout time.Duration `yaml:"login_timeout"`
}

// Accounts holds the doctor test account. Values usually come from
// ${env:...} placeholders.
type Accounts struct {
	Doctor Doctor `yaml:"doctor"`
	// File optionally lists more doctors (CSV or JSON with the Doctor keys).
	File string `yaml:"file,omitempty"`
	Mode string `yaml:"mode,omitempty"`
}

// Doctor is a doctor-portal login.
type Doctor struct {
	LoginID    string `yaml:"login_id" json:"login_id"`
	Password   string `yaml:"password" json:"password"`
	SystemCode string `yaml:"system_code" json:"system_code"`
}

// Fixtures are the constant values used to build test messages.
type Fixtures struct {
	CompanyCode         string `yaml:"company_code"`
	CompanyName         string `yaml:"company_name"`
	ProductName         string `yaml:"product_name"`
	OpeningPrice        int    `yaml:"opening_price"`
	OpeningLimit        int    `yaml:"opening_limit"`
	OpeningAction       int    `yaml:"opening_action"`
	PersonalOpdClientID string `yaml:"personal_opd_client_id"`
	PromotionMailTo     string `yaml:"promotion_mail_to"`
	// BillingCompanyCode is a company whose messages are billed.
	BillingCompanyCode string `yaml:"billing_company_code"`

	AutoDelivery AutoDeliveryFixtures `yaml:"auto_delivery"`
}

// AutoDeliveryFixtures drive the split delivery job.
type AutoDeliveryFixtures struct {
	// JobPath is the OPEX page of the job, relative to targets.opex.
	JobPath string `yaml:"job_path"`
	// SystemCode is the doctor the split delivery file is uploaded for.
	SystemCode string `yaml:"system_code"`
	// FilePrefix is followed by the day, like M3_OPD_ID74_20250401.
	FilePrefix string `yaml:"file_prefix"`
	// Memo marks the source message and the copies the job makes of it.
	Memo string `yaml:"memo"`
}

// PollerConfig tunes the shared poller.
type PollerConfig struct {
	MinInterval time.Duration `yaml:"min_interval"`
}

// ExecutionConfig controls scenario execution.
type ExecutionConfig struct {
	Workers         int           `yaml:"workers"`
	ScenarioTimeout time.Duration `yaml:"scenario_timeout"`
}

// ArtifactsConfig controls failure diagnostics.
type ArtifactsConfig struct {
	Dir        string `yaml:"dir"`
	Screenshot bool   `yaml:"screenshot"`
	DOM        bool   `yaml:"dom"`
}

// ValidationError lists every problem found in a Suite.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid config: " + strings.Join(e.Problems, "; ")
}

// LoadConfig reads and parses a YAML configuration file, expands
// ${env:VAR} placeholders, applies defaults and validates the result.
func LoadConfig(path string) (*Suite, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, err
	}
	cfg.Dir = filepath.Dir(path)
	return cfg, nil
}

// Parse decodes YAML into a validated Suite with defaults applied.
func Parse(data []byte) (*Suite, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}
	if err := cfg.expand(); err != nil {
		return nil, fmt.Errorf("expanding config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Default returns a Suite populated with the QA environment defaults.
func Default() *Suite {
	return &Suite{
		Browser: BrowserConfig{
			Headless:             true,
			NavigationTimeout:    30 * time.Second,
			ActionTimeout:        10 * time.Second,
			NavigationsPerSecond: 2,
			NavigationBurst:      2,
			AcceptDialogs:        true,
		},
		Auth: AuthConfig{
			OpexState:    ".auth/opex-user.json",
			MRKunState:   ".auth/mrkun-user.json",
			MaxAge:       2 * time.Hour,
			LoginTimeout: 120 * time.Second,
		},
		Fixtures: Fixtures{
			CompanyCode:         "9900000144",
			CompanyName:         "自動テスト株式会社",
			ProductName:         "自動テスト薬品",
			OpeningPrice:        100,
			OpeningLimit:        10,
			OpeningAction:       50,
			PersonalOpdClientID: "37100",
			BillingCompanyCode:  "9909000135",
			AutoDelivery: AutoDeliveryFixtures{
				JobPath:    "/internal/job/G26/O5DAr6gQ/OPD%E8%87%AA%E5%8B%95%E9%85%8D%E4%BF%A1-15%E6%99%82(OPD%E9%85%8D%E4%BF%A1%E3%81%82%E3%82%8A)-OPD%E6%A8%99%E6%BA%96%E3%83%86%E3%82%B9%E3%83%88%E8%87%AA%E5%8B%95%E5%8C%96",
				SystemCode: "901587",
				FilePrefix: "M3_OPD_ID74_",
				Memo:       "opd_標準テスト_事前ID74",
			},
		},
		Poller:     PollerConfig{MinInterval: 100 * time.Millisecond},
		Conditions: DefaultConditions(),
		Execution: ExecutionConfig{
			Workers:         1,
			ScenarioTimeout: 15 * time.Minute,
		},
		Artifacts: ArtifactsConfig{
			Dir:        "test-results",
			Screenshot: true,
			DOM:        true,
		},
	}
}

// expand substitutes ${env:VAR} placeholders in string settings.
func (s *Suite) expand() error {
	fields := []struct {
		name string
		ptr  *string
	}{
		{"targets.opex", &s.Targets.Opex},
		{"targets.mrkun", &s.Targets.MRKun},
		{"targets.qa_tool", &s.Targets.QATool},
		{"targets.sp", &s.Targets.SP},
		{"targets.pc", &s.Targets.PC},
		{"targets.point_api", &s.Targets.PointAPI},
		{"browser.proxy", &s.Browser.Proxy},
		{"accounts.doctor.login_id", &s.Accounts.Doctor.LoginID},
		{"accounts.doctor.password", &s.Accounts.Doctor.Password},
		{"accounts.doctor.system_code", &s.Accounts.Doctor.SystemCode},
		{"accounts.file", &s.Accounts.File},
	}

	vars := core.Outputs{}
	var errs []error
	for _, f := range fields {
		v, err := template.Substitute(*f.ptr, vars)
		if err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", f.name, err))
			continue
		}
		*f.ptr = v
	}
	return errors.Join(errs...)
}

func (s *Suite) applyDefaults() {
	if s.Execution.Workers < 1 {
		s.Execution.Workers = 1
	}
	if s.Poller.MinInterval <= 0 {
		s.Poller.MinInterval = 100 * time.Millisecond
	}
	if s.Accounts.Mode == "" {
		s.Accounts.Mode = "sequential"
	}
	defaults := DefaultConditions()
	if s.Conditions == nil {
		s.Conditions = Conditions{}
	}
	for class, c := range defaults {
		cur, ok := s.Conditions[class]
		if !ok {
			s.Conditions[class] = c
			continue
		}
		if cur.MaxAttempts == 0 {
			cur.MaxAttempts = c.MaxAttempts
			if cur.Interval == 0 {
				cur.Interval = c.Interval
			}
			if cur.Timeout == 0 {
				cur.Timeout = c.Timeout
			}
		}
		if cur.Mode == "" {
			cur.Mode = c.Mode
		}
		s.Conditions[class] = cur
	}
}

// Validate reports every invalid setting at once.
func (s *Suite) Validate() error {
	var problems []string
	if s.Browser.NavigationTimeout < 0 || s.Browser.ActionTimeout < 0 {
		problems = append(problems, "browser timeouts must not be negative")
	}
	if s.Browser.NavigationsPerSecond < 0 {
		problems = append(problems, "browser.navigations_per_second must not be negative")
	}
	if s.Auth.MaxAge <= 0 {
		problems = append(problems, "auth.max_age must be positive")
	}
	if s.Execution.ScenarioTimeout < 0 {
		problems = append(problems, "execution.scenario_timeout must not be negative")
	}
	switch s.Accounts.Mode {
	case "sequential", "random":
	default:
		problems = append(problems, fmt.Sprintf("accounts.mode %q must be sequential or random", s.Accounts.Mode))
	}
	for _, class := range s.Conditions.Classes() {
		c := s.Conditions[class]
		if err := c.validate(); err != nil {
			problems = append(problems, fmt.Sprintf("conditions.%s: %v", class, err))
		}
	}
	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}

// Resolve returns path relative to the config file directory unless absolute.
func (s *Suite) Resolve(path string) string {
	if path == "" || filepath.IsAbs(path) || s.Dir == "" {
		return path
	}
	return filepath.Join(s.Dir, path)
}

// RequireTargets reports which of the named targets are empty.
func (s *Suite) RequireTargets(names ...string) error {
	values := map[string]string{
		"opex":      s.Targets.Opex,
		"mrkun":     s.Targets.MRKun,
		"qa_tool":   s.Targets.QATool,
		"sp":        s.Targets.SP,
		"pc":        s.Targets.PC,
		"todo":      s.Targets.Todo,
		"point_api": s.Targets.PointAPI,
	}
	var missing []string
	for _, n := range names {
		if values[n] == "" {
			missing = append(missing, "targets."+n)
		}
	}
	if len(missing) > 0 {
		return &ValidationError{Problems: []string{"missing " + strings.Join(missing, ", ")}}
	}
	return nil
}
