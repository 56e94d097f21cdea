package config

import (
	"fmt"
	"time"

	"bytemomo/narwhal/internal/domain"
)

// Config is the full campaign file.
type Config struct {
	Campaign CampaignOpts `yaml:"campaign" json:"campaign"`
	API      APIOpts      `yaml:"api,omitempty" json:"api,omitempty"`
	LLM      LLMOpts      `yaml:"llm" json:"llm"`
	Mission  MissionOpts  `yaml:"mission,omitempty" json:"mission,omitempty"`
	Executor ExecutorOpts `yaml:"executor,omitempty" json:"executor,omitempty"`
	Memory   MemoryOpts   `yaml:"memory,omitempty" json:"memory,omitempty"`
	Recon    ReconOpts    `yaml:"recon,omitempty" json:"recon,omitempty"`
	Output   OutputOpts   `yaml:"output,omitempty" json:"output,omitempty"`
	MQTT     MQTTOpts     `yaml:"mqtt,omitempty" json:"mqtt,omitempty"`
	Logging  LoggingOpts  `yaml:"logging,omitempty" json:"logging,omitempty"`
}

type CampaignOpts struct {
	ID string `yaml:"id" json:"id"`
	// StartAt is an RFC3339 timestamp all missions wait for. Empty starts at once.
	StartAt     string            `yaml:"start_at,omitempty" json:"start_at,omitempty"`
	MaxParallel int               `yaml:"max_parallel,omitempty" json:"max_parallel,omitempty"`
	Items       []domain.WorkItem `yaml:"items,omitempty" json:"items,omitempty"`
	ItemsFile   string            `yaml:"items_file,omitempty" json:"items_file,omitempty"`
}

// APIOpts configures the challenge API. An empty BaseURL disables it.
type APIOpts struct {
	BaseURL string        `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	Key     string        `yaml:"key,omitempty" json:"-"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type LLMOpts struct {
	Provider    string  `yaml:"provider" json:"provider"` // openai, gemini
	Model       string  `yaml:"model" json:"model"`
	BaseURL     string  `yaml:"base_url,omitempty" json:"base_url,omitempty"`
	APIKey      string  `yaml:"api_key,omitempty" json:"-"`
	Temperature float64 `yaml:"temperature,omitempty" json:"temperature,omitempty"`
}

type MissionOpts struct {
	// MaxSteps bounds state machine transitions per mission.
	// Default: 100
	MaxSteps int `yaml:"max_steps,omitempty" json:"max_steps,omitempty"`

	// Verification gates the end verdict: off, pattern or submit.
	// Default: submit when the challenge API is configured, pattern otherwise.
	Verification string `yaml:"verification,omitempty" json:"verification,omitempty"`

	// Router selects the routing decision source: llm or findings.
	// Default: llm
	Router string `yaml:"router,omitempty" json:"router,omitempty"`

	// MaxActions bounds tool calls per DAG task.
	// Default: 8
	MaxActions int `yaml:"max_actions,omitempty" json:"max_actions,omitempty"`

	// MinOutputLen is the significance threshold for task output.
	// Default: 10
	MinOutputLen int `yaml:"min_output_len,omitempty" json:"min_output_len,omitempty"`
}

type ExecutorOpts struct {
	Kind           string        `yaml:"kind,omitempty" json:"kind,omitempty"` // shell, grpc
	Timeout        time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	MaxOutputBytes int           `yaml:"max_output_bytes,omitempty" json:"max_output_bytes,omitempty"`
	Blocked        []string      `yaml:"blocked,omitempty" json:"blocked,omitempty"`
	Endpoint       string        `yaml:"endpoint,omitempty" json:"endpoint,omitempty"`
	Shell          string        `yaml:"shell,omitempty" json:"shell,omitempty"`
	Python         string        `yaml:"python,omitempty" json:"python,omitempty"`
	WorkDir        string        `yaml:"work_dir,omitempty" json:"work_dir,omitempty"`
}

type MemoryOpts struct {
	Backend string `yaml:"backend,omitempty" json:"backend,omitempty"` // memory, sqlite, none
	Dir     string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

type ReconOpts struct {
	Nmap NmapOpts `yaml:"nmap,omitempty" json:"nmap,omitempty"`
	DNS  DNSOpts  `yaml:"dns,omitempty" json:"dns,omitempty"`
	ARP  ARPOpts  `yaml:"arp,omitempty" json:"arp,omitempty"`
}

type NmapOpts struct {
	Enabled bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Ports   []string      `yaml:"ports,omitempty" json:"ports,omitempty"`
	Timing  string        `yaml:"timing,omitempty" json:"timing,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type DNSOpts struct {
	Enabled bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Server  string        `yaml:"server,omitempty" json:"server,omitempty"`
	Timeout time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

// ARPOpts configures neighbour resolution on a local interface.
type ARPOpts struct {
	Enabled   bool          `yaml:"enabled,omitempty" json:"enabled,omitempty"`
	Interface string        `yaml:"interface,omitempty" json:"interface,omitempty"`
	Timeout   time.Duration `yaml:"timeout,omitempty" json:"timeout,omitempty"`
}

type OutputOpts struct {
	Dir string `yaml:"dir,omitempty" json:"dir,omitempty"`
}

// MQTTOpts configures the result publisher. An empty Broker disables it.
type MQTTOpts struct {
	Broker      string `yaml:"broker,omitempty" json:"broker,omitempty"`
	ClientID    string `yaml:"client_id,omitempty" json:"client_id,omitempty"`
	TopicPrefix string `yaml:"topic_prefix,omitempty" json:"topic_prefix,omitempty"`
	Username    string `yaml:"username,omitempty" json:"username,omitempty"`
	Password    string `yaml:"password,omitempty" json:"-"`
	QoS         byte   `yaml:"qos,omitempty" json:"qos,omitempty"`
}

type LoggingOpts struct {
	Level string `yaml:"level,omitempty" json:"level,omitempty"`
	File  string `yaml:"file,omitempty" json:"file,omitempty"`
}

// Default blocked command fragments for the local shell executor.
var DefaultBlocked = []string{
	"rm -rf /",
	"dd if=",
	"mkfs",
	":(){ :|:& };:",
	"> /dev/sda",
	"mv /* /dev/null",
}

// Default returns a configuration with safe defaults.
func Default() Config {
	return Config{
		Campaign: CampaignOpts{ID: "campaign"},
		API:      APIOpts{Timeout: 30 * time.Second},
		LLM:      LLMOpts{Provider: "openai", Model: "gpt-4o-mini"},
		Mission: MissionOpts{
			MaxSteps:     100,
			Router:       "llm",
			MaxActions:   8,
			MinOutputLen: 10,
		},
		Executor: ExecutorOpts{
			Kind:           "shell",
			Timeout:        60 * time.Second,
			MaxOutputBytes: 100000,
			Blocked:        DefaultBlocked,
			Shell:          "/bin/bash",
			Python:         "python3",
		},
		Memory: MemoryOpts{Backend: "memory"},
		Recon: ReconOpts{
			Nmap: NmapOpts{Timing: "T4", Timeout: 5 * time.Minute},
			DNS:  DNSOpts{Timeout: 3 * time.Second},
			ARP:  ARPOpts{Timeout: 2 * time.Second},
		},
		Output:  OutputOpts{Dir: "results"},
		MQTT:    MQTTOpts{ClientID: "narwhal", TopicPrefix: "narwhal"},
		Logging: LoggingOpts{Level: "info"},
	}
}

// Merge combines this configuration with defaults, preferring explicit values.
func (c *Config) Merge(defaults Config) Config {
	result := defaults

	// Campaign
	if c.Campaign.ID != "" {
		result.Campaign.ID = c.Campaign.ID
	}
	result.Campaign.StartAt = c.Campaign.StartAt
	if c.Campaign.MaxParallel > 0 {
		result.Campaign.MaxParallel = c.Campaign.MaxParallel
	}
	result.Campaign.Items = c.Campaign.Items
	result.Campaign.ItemsFile = c.Campaign.ItemsFile

	// API
	result.API.BaseURL = c.API.BaseURL
	result.API.Key = c.API.Key
	if c.API.Timeout > 0 {
		result.API.Timeout = c.API.Timeout
	}

	// LLM
	if c.LLM.Provider != "" {
		result.LLM.Provider = c.LLM.Provider
	}
	if c.LLM.Model != "" {
		result.LLM.Model = c.LLM.Model
	}
	result.LLM.BaseURL = c.LLM.BaseURL
	result.LLM.APIKey = c.LLM.APIKey
	if c.LLM.Temperature > 0 {
		result.LLM.Temperature = c.LLM.Temperature
	}

	// Mission
	if c.Mission.MaxSteps > 0 {
		result.Mission.MaxSteps = c.Mission.MaxSteps
	}
	result.Mission.Verification = c.Mission.Verification
	if c.Mission.Router != "" {
		result.Mission.Router = c.Mission.Router
	}
	if c.Mission.MaxActions > 0 {
		result.Mission.MaxActions = c.Mission.MaxActions
	}
	if c.Mission.MinOutputLen > 0 {
		result.Mission.MinOutputLen = c.Mission.MinOutputLen
	}

	// Executor
	if c.Executor.Kind != "" {
		result.Executor.Kind = c.Executor.Kind
	}
	if c.Executor.Timeout > 0 {
		result.Executor.Timeout = c.Executor.Timeout
	}
	if c.Executor.MaxOutputBytes > 0 {
		result.Executor.MaxOutputBytes = c.Executor.MaxOutputBytes
	}
	if c.Executor.Blocked != nil {
		result.Executor.Blocked = c.Executor.Blocked
	}
	result.Executor.Endpoint = c.Executor.Endpoint
	if c.Executor.Shell != "" {
		result.Executor.Shell = c.Executor.Shell
	}
	if c.Executor.Python != "" {
		result.Executor.Python = c.Executor.Python
	}
	result.Executor.WorkDir = c.Executor.WorkDir

	// Memory
	if c.Memory.Backend != "" {
		result.Memory.Backend = c.Memory.Backend
	}
	result.Memory.Dir = c.Memory.Dir

	// Recon
	result.Recon.Nmap.Enabled = c.Recon.Nmap.Enabled
	result.Recon.Nmap.Ports = c.Recon.Nmap.Ports
	if c.Recon.Nmap.Timing != "" {
		result.Recon.Nmap.Timing = c.Recon.Nmap.Timing
	}
	if c.Recon.Nmap.Timeout > 0 {
		result.Recon.Nmap.Timeout = c.Recon.Nmap.Timeout
	}
	result.Recon.DNS.Enabled = c.Recon.DNS.Enabled
	result.Recon.DNS.Server = c.Recon.DNS.Server
	if c.Recon.DNS.Timeout > 0 {
		result.Recon.DNS.Timeout = c.Recon.DNS.Timeout
	}
	result.Recon.ARP.Enabled = c.Recon.ARP.Enabled
	result.Recon.ARP.Interface = c.Recon.ARP.Interface
	if c.Recon.ARP.Timeout > 0 {
		result.Recon.ARP.Timeout = c.Recon.ARP.Timeout
	}

	// Output
	if c.Output.Dir != "" {
		result.Output.Dir = c.Output.Dir
	}

	// MQTT
	result.MQTT.Broker = c.MQTT.Broker
	if c.MQTT.ClientID != "" {
		result.MQTT.ClientID = c.MQTT.ClientID
	}
	if c.MQTT.TopicPrefix != "" {
		result.MQTT.TopicPrefix = c.MQTT.TopicPrefix
	}
	result.MQTT.Username = c.MQTT.Username
	result.MQTT.Password = c.MQTT.Password
	result.MQTT.QoS = c.MQTT.QoS

	// Logging
	if c.Logging.Level != "" {
		result.Logging.Level = c.Logging.Level
	}
	result.Logging.File = c.Logging.File

	return result
}

// VerificationMode resolves the configured gate, defaulting on API availability.
func (c *Config) VerificationMode() string {
	if c.Mission.Verification != "" {
		return c.Mission.Verification
	}
	if c.API.BaseURL != "" {
		return "submit"
	}
	return "pattern"
}

// StartTime parses Campaign.StartAt. The zero time means start immediately.
func (c *Config) StartTime() (time.Time, error) {
	if c.Campaign.StartAt == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, c.Campaign.StartAt)
	if err != nil {
		return time.Time{}, ErrInvalidCampaign(fmt.Sprintf("start_at %q is not RFC3339", c.Campaign.StartAt))
	}
	return t, nil
}

// Validate performs basic validation on a merged configuration
func (c *Config) Validate() error {
	if c.Campaign.ID == "" {
		return ErrInvalidCampaign("campaign id is required")
	}
	if _, err := c.StartTime(); err != nil {
		return err
	}
	if c.API.BaseURL == "" && len(c.Campaign.Items) == 0 && c.Campaign.ItemsFile == "" {
		return ErrInvalidCampaign("either api.base_url or campaign items are required")
	}
	for i, it := range c.Campaign.Items {
		if it.Code == "" {
			return ErrInvalidCampaign(fmt.Sprintf("item %d: code is required", i))
		}
	}

	switch c.LLM.Provider {
	case "openai", "gemini":
	default:
		return ErrInvalidOption("llm.provider", "must be 'openai' or 'gemini'")
	}

	switch c.VerificationMode() {
	case "off", "pattern":
	case "submit":
		if c.API.BaseURL == "" {
			return ErrInvalidOption("mission.verification", "'submit' requires api.base_url")
		}
	default:
		return ErrInvalidOption("mission.verification", "must be 'off', 'pattern' or 'submit'")
	}

	switch c.Mission.Router {
	case "llm", "findings":
	default:
		return ErrInvalidOption("mission.router", "must be 'llm' or 'findings'")
	}

	switch c.Executor.Kind {
	case "shell":
	case "grpc":
		if c.Executor.Endpoint == "" {
			return ErrInvalidOption("executor.endpoint", "required for the grpc executor")
		}
	default:
		return ErrInvalidOption("executor.kind", "must be 'shell' or 'grpc'")
	}

	switch c.Memory.Backend {
	case "memory", "none":
	case "sqlite":
		if c.Memory.Dir == "" {
			return ErrInvalidOption("memory.dir", "required for the sqlite backend")
		}
	default:
		return ErrInvalidOption("memory.backend", "must be 'memory', 'sqlite' or 'none'")
	}

	if c.Recon.ARP.Enabled && c.Recon.ARP.Interface == "" {
		return ErrInvalidOption("recon.arp.interface", "required when arp recon is enabled")
	}

	return nil
}

// Error types
type ConfigError struct {
	Type    string
	Message string
}

func (e ConfigError) Error() string {
	return e.Message
}

func ErrInvalidCampaign(msg string) error {
	return ConfigError{Type: "invalid_campaign", Message: msg}
}

func ErrInvalidOption(key, msg string) error {
	return ConfigError{Type: "invalid_option", Message: "option '" + key + "': " + msg}
}
