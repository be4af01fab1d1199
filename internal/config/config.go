// Package config handles configuration management with validation
package config

import (
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"fleetmanager/internal/core"
	"fleetmanager/internal/pricing"
)

var ethAddrPattern = regexp.MustCompile(`^0x[a-fA-F0-9]{40}$`)

// requiredTaskKeys are the keys every entry under "tasks" must contain.
// Checked against the raw YAML document (not the typed struct) so a missing
// key is distinguished from a key present with its zero value.
var requiredTaskKeys = []string{
	"numberofnodes", "tag", "price_coefficient", "max_price", "ets",
	"task_start_timeout", "template_file", "duration", "counterparty",
	"identity", "ramsize", "storagesize", "cpucores", "sysbenchsingle",
	"sysbenchmulti", "netdownload", "netupload", "overlay", "incoming",
	"gpucount", "gpumem", "ethhashrate",
}

// Config is the fleet manager's top-level configuration.
type Config struct {
	NodeAddress   string         `yaml:"node_address"`
	Ethereum      EthereumConfig `yaml:"ethereum"`
	Tasks         []TaskSpec     `yaml:"tasks"`
	TimeoutSec    int            `yaml:"timeout"`
	LogLevel      string         `yaml:"log_level"`
	TemplateDir   string         `yaml:"template_dir"`
	CLIBinaryPath string         `yaml:"cli_binary_path"`
	DashboardAddr string         `yaml:"dashboard_addr"`
}

// EthereumConfig locates the wallet the fleet manager signs marketplace
// transactions with.
type EthereumConfig struct {
	KeyPath  string `yaml:"key_path"`
	Password Secret `yaml:"password"`
}

// TaskSpec is one entry under "tasks": a class of node the fleet manager
// keeps a target population of running.
type TaskSpec struct {
	NumberOfNodes     int    `yaml:"numberofnodes"`
	Tag               string `yaml:"tag"`
	PriceCoefficient  int    `yaml:"price_coefficient"`
	MaxPrice          string `yaml:"max_price"`
	ETS               string `yaml:"ets"`
	TaskStartTimeout  string `yaml:"task_start_timeout"`
	TemplateFile      string `yaml:"template_file"`
	Duration          string `yaml:"duration"`
	Counterparty      string `yaml:"counterparty"`
	Identity          string `yaml:"identity"`
	RAMSize           int    `yaml:"ramsize"`
	StorageSize       int    `yaml:"storagesize"`
	CPUCores          int    `yaml:"cpucores"`
	SysbenchSingle    int    `yaml:"sysbenchsingle"`
	SysbenchMulti     int    `yaml:"sysbenchmulti"`
	NetDownload       int    `yaml:"netdownload"`
	NetUpload         int    `yaml:"netupload"`
	Overlay           bool   `yaml:"overlay"`
	Incoming          bool   `yaml:"incoming"`
	GPUCount          int    `yaml:"gpucount"`
	GPUMem            int    `yaml:"gpumem"`
	EthHashrate       int    `yaml:"ethhashrate"`
}

// ValidationError represents a configuration validation error
type ValidationError struct {
	Field   string
	Value   interface{}
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("validation error for field '%s' (value: %v): %s", e.Field, e.Value, e.Message)
}

// LoadConfig loads configuration from a YAML file with environment variable
// expansion and aggregate key-presence validation.
func LoadConfig(filename string) (*Config, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	expanded := expandEnvVars(string(data))

	var raw map[string]interface{}
	if err := yaml.Unmarshal([]byte(expanded), &raw); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}
	if err := validateRawKeys(raw); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	if err := cfg.validateDuplicateTags(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

// validateRawKeys checks for every required top-level and per-task key,
// aggregating every missing key into a single error rather than failing on
// the first one found.
func validateRawKeys(raw map[string]interface{}) error {
	var missing []string

	if _, ok := raw["node_address"]; !ok {
		missing = append(missing, "node_address")
	}
	eth, ok := raw["ethereum"].(map[string]interface{})
	if !ok {
		missing = append(missing, "ethereum")
	} else {
		if _, ok := eth["key_path"]; !ok {
			missing = append(missing, "ethereum.key_path")
		}
		if _, ok := eth["password"]; !ok {
			missing = append(missing, "ethereum.password")
		}
	}

	tasks, ok := raw["tasks"].([]interface{})
	if !ok || len(tasks) == 0 {
		missing = append(missing, "tasks")
	} else {
		for i, t := range tasks {
			task, ok := t.(map[string]interface{})
			if !ok {
				missing = append(missing, fmt.Sprintf("tasks[%d]", i))
				continue
			}
			label := fmt.Sprintf("tasks[%d]", i)
			if tag, ok := task["tag"].(string); ok && tag != "" {
				label = fmt.Sprintf("tasks[%s]", tag)
			}
			for _, key := range requiredTaskKeys {
				if _, ok := task[key]; !ok {
					missing = append(missing, fmt.Sprintf("%s.%s", label, key))
				}
			}
		}
	}

	if len(missing) > 0 {
		return ValidationError{
			Field:   "config",
			Message: "missing required keys: " + strings.Join(missing, ", "),
		}
	}
	return nil
}

func (c *Config) validateDuplicateTags() error {
	seen := make(map[string]bool, len(c.Tasks))
	for _, t := range c.Tasks {
		if seen[t.Tag] {
			return ValidationError{Field: "tasks", Value: t.Tag, Message: "duplicate task tag"}
		}
		seen[t.Tag] = true
	}
	return nil
}

// Timeout returns the configured per-RPC-call timeout, defaulting to 60
// seconds when unset.
func (c *Config) Timeout() time.Duration {
	if c.TimeoutSec <= 0 {
		return 60 * time.Second
	}
	return time.Duration(c.TimeoutSec) * time.Second
}

// TemplateDirOrDefault returns the directory task manifest templates are
// read from, defaulting to "templates" when unset.
func (c *Config) TemplateDirOrDefault() string {
	if c.TemplateDir == "" {
		return "templates"
	}
	return c.TemplateDir
}

// CLIBinaryPathOrDefault returns the marketplace CLI binary used to capture
// task logs, defaulting to "sonm-cli" on PATH when unset.
func (c *Config) CLIBinaryPathOrDefault() string {
	if c.CLIBinaryPath == "" {
		return "sonm-cli"
	}
	return c.CLIBinaryPath
}

// DashboardAddrOrDefault returns the address the status dashboard listens
// on, defaulting to ":8090" when unset.
func (c *Config) DashboardAddrOrDefault() string {
	if c.DashboardAddr == "" {
		return ":8090"
	}
	return c.DashboardAddr
}

// TaskConfigs converts every configured TaskSpec into a core.TaskConfig,
// keyed by tag. Unparseable Ethereum counterparty addresses are dropped
// (logged at debug level through logger, when it is non-nil) rather than
// rejected, per this system's address validation policy.
func (c *Config) TaskConfigs(logger core.ILogger) (map[string]core.TaskConfig, error) {
	out := make(map[string]core.TaskConfig, len(c.Tasks))
	for _, spec := range c.Tasks {
		cfg, err := spec.toTaskConfig(logger)
		if err != nil {
			return nil, fmt.Errorf("task %q: %w", spec.Tag, err)
		}
		out[spec.Tag] = cfg
	}
	return out, nil
}

func (t TaskSpec) toTaskConfig(logger core.ILogger) (core.TaskConfig, error) {
	maxPrice, err := pricing.ParsePriceUSDPerHour(t.MaxPrice)
	if err != nil {
		return core.TaskConfig{}, err
	}
	ets, err := time.ParseDuration(t.ETS)
	if err != nil {
		return core.TaskConfig{}, fmt.Errorf("ets: %w", err)
	}
	startTimeout, err := time.ParseDuration(t.TaskStartTimeout)
	if err != nil {
		return core.TaskConfig{}, fmt.Errorf("task_start_timeout: %w", err)
	}
	duration, err := time.ParseDuration(t.Duration)
	if err != nil {
		return core.TaskConfig{}, fmt.Errorf("duration: %w", err)
	}
	identity, ok := core.ParseIdentity(t.Identity)
	if !ok {
		return core.TaskConfig{}, fmt.Errorf("identity: unrecognized value %q", t.Identity)
	}

	var counterparty *string
	if t.Counterparty != "" {
		if ethAddrPattern.MatchString(t.Counterparty) {
			addr := t.Counterparty
			counterparty = &addr
		} else if logger != nil {
			logger.Debug("counterparty is not a valid ethereum address, no restriction applied", "tag", t.Tag, "counterparty", t.Counterparty)
		}
	}

	return core.TaskConfig{
		Tag:                     t.Tag,
		NumberOfNodes:           t.NumberOfNodes,
		MaxPriceUSDPerHour:      maxPrice,
		PriceCoefficientPercent: t.PriceCoefficient,
		TaskStartTimeout:        startTimeout,
		ETS:                     ets,
		Duration:                duration,
		Counterparty:            counterparty,
		Identity:                identity,
		TemplateFile:            t.TemplateFile,
		Resources: core.ResourceBundle{
			RAMMiB:            t.RAMSize,
			StorageGiB:        t.StorageSize,
			CPUCores:          t.CPUCores,
			CPUSysbenchSingle: t.SysbenchSingle,
			CPUSysbenchMulti:  t.SysbenchMulti,
			NetDownloadMiB:    t.NetDownload,
			NetUploadMiB:      t.NetUpload,
			Overlay:           t.Overlay,
			Incoming:          t.Incoming,
			GPUCount:          t.GPUCount,
			GPUMemMiB:         t.GPUMem,
			EthHashrateMHs:    t.EthHashrate,
		},
	}, nil
}

// String returns a string representation of the configuration with the
// Ethereum password masked.
func (c *Config) String() string {
	cfgCopy := *c
	data, _ := yaml.Marshal(cfgCopy)
	return string(data)
}

func expandEnvVars(s string) string {
	return os.Expand(s, func(key string) string {
		return os.Getenv(key)
	})
}
