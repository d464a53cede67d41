package config

import (
	"fmt"
	"os"
	"os/user"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// OutputMode selects the commit-message annotation format.
type OutputMode string

const (
	OutputIssueRef       OutputMode = "issue-ref"
	OutputHumanAggregate OutputMode = "human-aggregate"
	OutputRawSeconds     OutputMode = "raw-seconds"
)

const (
	fileName          = ".tmk.yml"
	localSheetName    = "timesheet.tmk"
	defaultSheetName  = "timesheet.tmk"
	defaultRuntimeDir = ".tmk"
)

type Config struct {
	TrackingEnabled bool
	TimesheetPath   string
	IssueID         string
	UseAnnotatedTag bool
	OutputMode      OutputMode

	// Host and User identify the active timesheet section.
	Host string
	User string

	// RuntimeDir holds per-instance daemon state (pid, socket, logs).
	RuntimeDir string
}

type fileConfig struct {
	TrackingEnabled *bool  `yaml:"tracking_enabled"`
	TimesheetPath   string `yaml:"timesheet_path"`
	IssueID         string `yaml:"issue_id"`
	UseAnnotatedTag *bool  `yaml:"use_annotated_tag"`
	OutputMode      string `yaml:"output_mode"`
}

// Load resolves configuration in precedence order: defaults, then
// $HOME/.tmk.yml, then <projectRoot>/.tmk.yml, then TMK_* environment
// variables. projectRoot may be empty when no repository is involved.
func Load(projectRoot string) (Config, error) {
	home, _ := os.UserHomeDir()
	cfg := Config{
		TrackingEnabled: true,
		TimesheetPath:   filepath.Join(home, defaultSheetName),
		OutputMode:      OutputIssueRef,
		RuntimeDir:      filepath.Join(home, defaultRuntimeDir),
	}

	if home != "" {
		if err := applyFile(&cfg, filepath.Join(home, fileName)); err != nil {
			return Config{}, err
		}
	}
	if projectRoot != "" {
		if err := applyFile(&cfg, filepath.Join(projectRoot, fileName)); err != nil {
			return Config{}, err
		}
		// A project-local sheet takes precedence when present and writable.
		local := filepath.Join(projectRoot, localSheetName)
		if writable(local) {
			cfg.TimesheetPath = local
		}
	}
	applyEnv(&cfg)

	if cfg.Host == "" {
		host, err := os.Hostname()
		if err != nil {
			return Config{}, fmt.Errorf("resolve hostname: %w", err)
		}
		cfg.Host = host
	}
	if cfg.User == "" {
		current, err := user.Current()
		if err != nil {
			return Config{}, fmt.Errorf("resolve user: %w", err)
		}
		cfg.User = current.Username
	}
	if err := validateMode(cfg.OutputMode); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func applyFile(cfg *Config, path string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("read config %s: %w", path, err)
	}
	fc := fileConfig{}
	if err := yaml.Unmarshal(raw, &fc); err != nil {
		return fmt.Errorf("decode config %s: %w", path, err)
	}
	if fc.TrackingEnabled != nil {
		cfg.TrackingEnabled = *fc.TrackingEnabled
	}
	if fc.TimesheetPath != "" {
		cfg.TimesheetPath = expandHome(fc.TimesheetPath)
	}
	if fc.IssueID != "" {
		cfg.IssueID = fc.IssueID
	}
	if fc.UseAnnotatedTag != nil {
		cfg.UseAnnotatedTag = *fc.UseAnnotatedTag
	}
	if fc.OutputMode != "" {
		cfg.OutputMode = OutputMode(fc.OutputMode)
	}
	return nil
}

func applyEnv(cfg *Config) {
	if v, ok := os.LookupEnv("TMK_TRACKING_ENABLED"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.TrackingEnabled = parsed
		}
	}
	if v := os.Getenv("TMK_TIMESHEET_PATH"); v != "" {
		cfg.TimesheetPath = expandHome(v)
	}
	if v := os.Getenv("TMK_ISSUE_ID"); v != "" {
		cfg.IssueID = v
	}
	if v, ok := os.LookupEnv("TMK_USE_ANNOTATED_TAG"); ok {
		if parsed, err := strconv.ParseBool(v); err == nil {
			cfg.UseAnnotatedTag = parsed
		}
	}
	if v := os.Getenv("TMK_OUTPUT_MODE"); v != "" {
		cfg.OutputMode = OutputMode(v)
	}
	if v := os.Getenv("TMK_HOST"); v != "" {
		cfg.Host = v
	}
	if v := os.Getenv("TMK_USER"); v != "" {
		cfg.User = v
	}
	if v := os.Getenv("TMK_RUNTIME_DIR"); v != "" {
		cfg.RuntimeDir = expandHome(v)
	}
}

func validateMode(mode OutputMode) error {
	switch mode {
	case OutputIssueRef, OutputHumanAggregate, OutputRawSeconds:
		return nil
	}
	return fmt.Errorf("invalid output_mode %q", mode)
}

func expandHome(path string) string {
	if !strings.HasPrefix(path, "~/") {
		return path
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return path
	}
	return filepath.Join(home, path[2:])
}

func writable(path string) bool {
	file, err := os.OpenFile(path, os.O_WRONLY, 0)
	if err != nil {
		return false
	}
	_ = file.Close()
	return true
}
