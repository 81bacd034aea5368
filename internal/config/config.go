package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"giveaway/internal/domain"
	"giveaway/internal/participants"
)

// Config models giveaway.yml.
type Config struct {
	Campaign struct {
		ID          string `yaml:"id" json:"id"`
		URL         string `yaml:"url" json:"url,omitempty"`
		Description string `yaml:"description" json:"description,omitempty"`
	} `yaml:"campaign" json:"campaign"`
	// Sources maps an interaction kind to a file path or http(s) URL.
	Sources    map[string]string `yaml:"sources" json:"sources,omitempty"`
	Filters    domain.FilterSpec `yaml:"filters" json:"filters"`
	Lottery    LotteryConfig     `yaml:"lottery" json:"lottery"`
	Merge      MergeConfig       `yaml:"merge" json:"merge"`
	Extraction ExtractionConfig  `yaml:"extraction" json:"extraction"`
	Browser    BrowserConfig     `yaml:"browser" json:"browser"`
	Output     OutputConfig      `yaml:"output" json:"output"`
	Webhooks   []WebhookConfig   `yaml:"webhooks" json:"webhooks,omitempty"`
}

type LotteryConfig struct {
	Winners         int    `yaml:"winners" json:"winners"`
	Weighted        bool   `yaml:"weighted" json:"weighted"`
	Seed            *int64 `yaml:"seed" json:"seed,omitempty"`
	AllowDuplicates bool   `yaml:"allow_duplicates" json:"allow_duplicates"`
}

// MergeConfig controls how harvested lists become participants.
type MergeConfig struct {
	// KeepDuplicates keeps one entry per harvested (identifier, kind) pair
	// instead of one participant per identifier.
	KeepDuplicates bool `yaml:"keep_duplicates" json:"keep_duplicates"`
	// Weights overrides the derived weight of listed identifiers.
	Weights map[string]int `yaml:"weights,omitempty" json:"weights,omitempty"`
}

type ExtractionConfig struct {
	MaxIterations int `yaml:"max_iterations" json:"max_iterations"`
	StallLimit    int `yaml:"stall_limit" json:"stall_limit"`
	BatchSize     int `yaml:"batch_size" json:"batch_size"`
}

type BrowserConfig struct {
	TimeoutSeconds int    `yaml:"timeout_seconds" json:"timeout_seconds"`
	Retry          int    `yaml:"retry" json:"retry"`
	RetryDelayMS   int    `yaml:"retry_delay_ms" json:"retry_delay_ms"`
	UserAgent      string `yaml:"user_agent" json:"user_agent,omitempty"`
	ItemSelector   string `yaml:"item_selector" json:"item_selector,omitempty"`
	NextSelector   string `yaml:"next_selector" json:"next_selector,omitempty"`
	AuthToken      string `yaml:"auth_token" json:"-"`
	CSRFToken      string `yaml:"csrf_token" json:"-"`
}

type OutputConfig struct {
	Format string `yaml:"format" json:"format"`
	File   string `yaml:"file" json:"file,omitempty"`
}

type WebhookConfig struct {
	URL            string   `yaml:"url" json:"url"`
	Events         []string `yaml:"events" json:"events,omitempty"`
	Secret         string   `yaml:"secret" json:"secret,omitempty"`
	TimeoutSeconds int      `yaml:"timeout_seconds" json:"timeout_seconds,omitempty"`
	Enabled        *bool    `yaml:"enabled" json:"enabled,omitempty"`
}

var outputFormats = map[string]bool{"text": true, "json": true, "csv": true}

// Validate ensures the config meets required structure.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.Campaign.ID) == "" {
		return invalid("config.campaign.id is required")
	}
	for kind, loc := range c.Sources {
		if _, err := domain.ParseKind(kind); err != nil {
			return invalid("config.sources has unknown interaction kind %s", kind)
		}
		if strings.TrimSpace(loc) == "" {
			return invalid("config.sources.%s is empty", kind)
		}
	}
	if c.Lottery.Winners <= 0 {
		return invalid("config.lottery.winners must be positive")
	}
	if c.Merge.KeepDuplicates && !c.Lottery.AllowDuplicates {
		return invalid("config.merge.keep_duplicates requires config.lottery.allow_duplicates")
	}
	for id, w := range c.Merge.Weights {
		if participants.Key(id) == "" || w <= 0 {
			return invalid("config.merge.weights.%s must name an identifier with a positive weight", id)
		}
	}
	if c.Extraction.MaxIterations < 0 || c.Extraction.StallLimit < 0 || c.Extraction.BatchSize < 0 {
		return invalid("config.extraction values must not be negative")
	}
	if c.Browser.TimeoutSeconds < 0 || c.Browser.Retry < 0 || c.Browser.RetryDelayMS < 0 {
		return invalid("config.browser values must not be negative")
	}
	if c.Output.Format != "" && !outputFormats[strings.ToLower(c.Output.Format)] {
		return invalid("config.output.format must be text, json or csv")
	}
	for i, hook := range c.Webhooks {
		if strings.TrimSpace(hook.URL) == "" {
			return invalid("config.webhooks[%d].url is required", i)
		}
	}
	return nil
}

func invalid(format string, args ...any) error {
	return domain.Errorf(domain.ErrConfiguration, format, args...)
}

// FilterSpec returns the eligibility rules.
func (c *Config) FilterSpec() domain.FilterSpec {
	return c.Filters
}

// MergeOptions returns the merge settings with weight keys normalized.
func (c *Config) MergeOptions() participants.MergeOptions {
	opts := participants.MergeOptions{KeepDuplicates: c.Merge.KeepDuplicates}
	if len(c.Merge.Weights) > 0 {
		opts.WeightOverride = make(map[string]int, len(c.Merge.Weights))
		for id, w := range c.Merge.Weights {
			opts.WeightOverride[participants.Key(id)] = w
		}
	}
	return opts
}

// SourceFor returns the configured location for kind, if any.
func (c *Config) SourceFor(kind domain.InteractionKind) (string, bool) {
	for k, loc := range c.Sources {
		if parsed, err := domain.ParseKind(k); err == nil && parsed == kind {
			return loc, true
		}
	}
	return "", false
}

// LotteryConfig resolves the draw parameters. fallbackSeed is used only
// when the file does not pin a seed.
func (c *Config) LotteryConfig(fallbackSeed int64) domain.LotteryConfig {
	seed := fallbackSeed
	if c.Lottery.Seed != nil {
		seed = *c.Lottery.Seed
	}
	return domain.LotteryConfig{
		Seed:            seed,
		Weighted:        c.Lottery.Weighted,
		Winners:         c.Lottery.Winners,
		AllowDuplicates: c.Lottery.AllowDuplicates,
	}
}

// Path returns the config file path for a workspace.
func Path(workspace string) string {
	if workspace == "" {
		workspace = "."
	}
	return filepath.Join(workspace, "giveaway.yml")
}

// Load reads and validates config from workspace.
func Load(workspace string) (*Config, error) {
	path := Path(workspace)
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, invalid("config %s not found; import with gw campaign config import --file <path>", path)
		}
		return nil, err
	}
	return FromYAML(data)
}

// LoadOptional returns nil,nil if the config file does not exist.
func LoadOptional(workspace string) (*Config, error) {
	data, err := os.ReadFile(Path(workspace))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	return FromYAML(data)
}

// GenerateDefault returns default config YAML.
func GenerateDefault(campaignID string) string {
	return fmt.Sprintf(defaultTemplate, campaignID)
}

// Default returns the default Config struct for a campaign.
func Default(campaignID string) *Config {
	var cfg Config
	_ = yaml.NewDecoder(bytes.NewBufferString(GenerateDefault(campaignID))).Decode(&cfg)
	cfg.Campaign.ID = campaignID
	return &cfg
}

// FromYAML parses and validates config from raw YAML bytes.
func FromYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, domain.Wrap(domain.ErrConfiguration, err, "invalid config yaml")
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// FromFile reads YAML config from the given path.
func FromFile(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return FromYAML(data)
}

// ToYAML serializes the config.
func (c *Config) ToYAML() ([]byte, error) {
	return yaml.Marshal(c)
}

const defaultTemplate = `campaign:
  id: %s

filters:
  require_retweet: false
  require_like: false
  require_follow: false
  exclude: []

lottery:
  winners: 1
  weighted: false
  allow_duplicates: false

merge:
  keep_duplicates: false

extraction:
  max_iterations: 50
  stall_limit: 3
  # entries revealed per step for file sources; 0 reads the whole file at once
  batch_size: 0

browser:
  timeout_seconds: 60
  retry: 2
  retry_delay_ms: 3000
  user_agent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36"

output:
  format: text
`
