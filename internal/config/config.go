// Package config provides Viper-based configuration loading for the NPC
// server and its tools.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cory-johannsen/npcfleet/internal/game/dialogue"
	"github.com/cory-johannsen/npcfleet/internal/game/npc"
	"github.com/cory-johannsen/npcfleet/internal/inference"
)

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// DatabaseConfig holds PostgreSQL connection settings.
type DatabaseConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	User            string        `mapstructure:"user"`
	Password        string        `mapstructure:"password"`
	Name            string        `mapstructure:"name"`
	SSLMode         string        `mapstructure:"sslmode"`
	MaxConns        int32         `mapstructure:"max_conns"`
	MinConns        int32         `mapstructure:"min_conns"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
}

// DSN returns the PostgreSQL connection string.
//
// Precondition: Host, Port, User, and Name must be non-empty.
func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf(
		"postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.Name, d.SSLMode,
	)
}

// RedisConfig holds Redis connection settings for the history store.
type RedisConfig struct {
	Addr      string `mapstructure:"addr"`
	Password  string `mapstructure:"password"`
	DB        int    `mapstructure:"db"`
	KeyPrefix string `mapstructure:"key_prefix"`
	// TTL expires an NPC's history after inactivity; 0 keeps it forever.
	TTL time.Duration `mapstructure:"ttl"`
}

// History backends.
const (
	HistoryMemory   = "memory"
	HistoryRedis    = "redis"
	HistoryPostgres = "postgres"
)

// HistoryConfig selects where conversation history is persisted.
type HistoryConfig struct {
	Backend string `mapstructure:"backend"`
	// SaveInterval is how often the server flushes history; 0 saves only at shutdown.
	SaveInterval time.Duration `mapstructure:"save_interval"`
}

// Inference providers.
const (
	ProviderScript    = "script"
	ProviderAnthropic = "anthropic"
	ProviderOpenAI    = "openai"
)

// BreakerConfig mirrors inference.BreakerConfig.
type BreakerConfig struct {
	MaxFailures  int           `mapstructure:"max_failures"`
	ResetTimeout time.Duration `mapstructure:"reset_timeout"`
	HalfOpenMax  int           `mapstructure:"half_open_max"`
}

// InferenceConfig selects and tunes the model behind NPC decisions.
type InferenceConfig struct {
	Provider     string `mapstructure:"provider"`
	APIKey       string `mapstructure:"api_key"`
	BaseURL      string `mapstructure:"base_url"`
	DefaultModel string `mapstructure:"default_model"`
	// FactionModels maps a lower-case faction name to a provider model name.
	FactionModels    map[string]string `mapstructure:"faction_models"`
	ScriptDir        string            `mapstructure:"script_dir"`
	InstructionLimit int               `mapstructure:"instruction_limit"`
	RequestTimeout   time.Duration     `mapstructure:"request_timeout"`
	MaxTokens        int               `mapstructure:"max_tokens"`
	Temperature      float64           `mapstructure:"temperature"`
	Breaker          BreakerConfig     `mapstructure:"breaker"`
}

// BreakerSettings converts the breaker section for a named model.
func (i InferenceConfig) BreakerSettings(name string) inference.BreakerConfig {
	return inference.BreakerConfig{
		Name:         name,
		MaxFailures:  i.Breaker.MaxFailures,
		ResetTimeout: i.Breaker.ResetTimeout,
		HalfOpenMax:  i.Breaker.HalfOpenMax,
	}
}

// FleetConfig holds every NPC Manager setting.
type FleetConfig struct {
	MaxUpdateDistance         float64       `mapstructure:"max_update_distance"`
	MaxRenderDistance         float64       `mapstructure:"max_render_distance"`
	MaxInteractionDistance    float64       `mapstructure:"max_interaction_distance"`
	MaxActiveNPCs             int           `mapstructure:"max_active_npcs"`
	MaxUpdatesPerFrame        int           `mapstructure:"max_updates_per_frame"`
	UpdateIntervalMultiplier  float64       `mapstructure:"update_interval_multiplier"`
	EnableDistanceCulling     bool          `mapstructure:"enable_distance_culling"`
	EnableFrustumCulling      bool          `mapstructure:"enable_frustum_culling"`
	EnableBatchUpdates        bool          `mapstructure:"enable_batch_updates"`
	DebugLogging              bool          `mapstructure:"debug_logging"`
	PerformanceLogging        bool          `mapstructure:"performance_logging"`
	StateLogging              bool          `mapstructure:"state_logging"`
	SystemUpdateEveryFrames   int           `mapstructure:"system_update_every_frames"`
	PerformanceReportInterval time.Duration `mapstructure:"performance_report_interval"`
	BehaviorTimeout           time.Duration `mapstructure:"behavior_timeout"`
	DialogueTimeout           time.Duration `mapstructure:"dialogue_timeout"`
}

// Settings converts the section to npc.Settings.
func (f FleetConfig) Settings() npc.Settings {
	return npc.Settings{
		MaxUpdateDistance:         f.MaxUpdateDistance,
		MaxRenderDistance:         f.MaxRenderDistance,
		MaxInteractionDistance:    f.MaxInteractionDistance,
		MaxActiveNPCs:             f.MaxActiveNPCs,
		MaxUpdatesPerFrame:        f.MaxUpdatesPerFrame,
		UpdateIntervalMultiplier:  f.UpdateIntervalMultiplier,
		EnableDistanceCulling:     f.EnableDistanceCulling,
		EnableFrustumCulling:      f.EnableFrustumCulling,
		EnableBatchUpdates:        f.EnableBatchUpdates,
		DebugLogging:              f.DebugLogging,
		PerformanceLogging:        f.PerformanceLogging,
		StateLogging:              f.StateLogging,
		SystemUpdateEveryFrames:   f.SystemUpdateEveryFrames,
		PerformanceReportInterval: f.PerformanceReportInterval,
		BehaviorTimeout:           f.BehaviorTimeout,
		DialogueTimeout:           f.DialogueTimeout,
	}
}

// DialogueConfig holds every Dialogue System setting.
type DialogueConfig struct {
	ConversationTimeout    time.Duration `mapstructure:"conversation_timeout"`
	AIResponseTimeout      time.Duration `mapstructure:"ai_response_timeout"`
	MaxExchanges           int           `mapstructure:"max_exchanges"`
	MaxPlayerChoices       int           `mapstructure:"max_player_choices"`
	MaxHistoryPerNPC       int           `mapstructure:"max_history_per_npc"`
	EnableTypingEffect     bool          `mapstructure:"enable_typing_effect"`
	TypingSpeed            float64       `mapstructure:"typing_speed"`
	ProcessingDelay        time.Duration `mapstructure:"processing_delay"`
	PlayerSkill            float64       `mapstructure:"player_skill"`
	AutoStart              bool          `mapstructure:"auto_start"`
	MaxConsecutiveFailures int           `mapstructure:"max_consecutive_failures"`
}

// Settings converts the section to dialogue.Settings.
func (d DialogueConfig) Settings() dialogue.Settings {
	return dialogue.Settings{
		ConversationTimeout:    d.ConversationTimeout,
		AIResponseTimeout:      d.AIResponseTimeout,
		MaxExchanges:           d.MaxExchanges,
		MaxPlayerChoices:       d.MaxPlayerChoices,
		MaxHistoryPerNPC:       d.MaxHistoryPerNPC,
		EnableTypingEffect:     d.EnableTypingEffect,
		TypingSpeed:            d.TypingSpeed,
		ProcessingDelay:        d.ProcessingDelay,
		PlayerSkill:            d.PlayerSkill,
		AutoStart:              d.AutoStart,
		MaxConsecutiveFailures: d.MaxConsecutiveFailures,
	}
}

// FrameConfig sets the frame loop cadence.
type FrameConfig struct {
	RateHz int `mapstructure:"rate_hz"`
}

// Interval is the wall-clock length of one frame.
//
// Precondition: RateHz > 0.
func (f FrameConfig) Interval() time.Duration {
	return time.Second / time.Duration(f.RateHz)
}

// BridgeConfig holds the gRPC host bridge listener.
type BridgeConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// Addr returns the "host:port" listen address.
func (b BridgeConfig) Addr() string {
	return fmt.Sprintf("%s:%d", b.Host, b.Port)
}

// MetricsConfig controls the Prometheus scrape endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
}

// ContentConfig locates optional content on disk.
type ContentConfig struct {
	// TemplatesDir holds NPC template YAML; empty uses the built-in templates only.
	TemplatesDir string `mapstructure:"templates_dir"`
	// ManifestFile lists packaged meshes, textures and models; empty accepts
	// every id.
	ManifestFile string `mapstructure:"manifest_file"`
}

// Config is the top-level application configuration.
type Config struct {
	Logging   LoggingConfig   `mapstructure:"logging"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	History   HistoryConfig   `mapstructure:"history"`
	Inference InferenceConfig `mapstructure:"inference"`
	Fleet     FleetConfig     `mapstructure:"fleet"`
	Dialogue  DialogueConfig  `mapstructure:"dialogue"`
	Frame     FrameConfig     `mapstructure:"frame"`
	Bridge    BridgeConfig    `mapstructure:"bridge"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Content   ContentConfig   `mapstructure:"content"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or one error listing
// every violation.
func (c Config) Validate() error {
	var errs []string
	for _, check := range []func() []string{
		func() []string { return validateLogging(c.Logging) },
		func() []string { return validateDatabase(c.Database) },
		func() []string { return validateHistory(c.History, c.Redis) },
		func() []string { return validateInference(c.Inference) },
		func() []string { return validateFleet(c.Fleet) },
		func() []string { return validateDialogue(c.Dialogue) },
		func() []string { return validateServing(c.Frame, c.Bridge, c.Metrics) },
	} {
		errs = append(errs, check()...)
	}
	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool { return p >= 1 && p <= 65535 }

func validateLogging(l LoggingConfig) []string {
	var errs []string
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		errs = append(errs, fmt.Sprintf("logging.level must be one of [debug, info, warn, error], got %q", l.Level))
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		errs = append(errs, fmt.Sprintf("logging.format must be one of [json, console], got %q", l.Format))
	}
	return errs
}

func validateDatabase(d DatabaseConfig) []string {
	var errs []string
	if d.Host == "" {
		errs = append(errs, "database.host must not be empty")
	}
	if !validPort(d.Port) {
		errs = append(errs, fmt.Sprintf("database.port must be 1-65535, got %d", d.Port))
	}
	if d.User == "" {
		errs = append(errs, "database.user must not be empty")
	}
	if d.Name == "" {
		errs = append(errs, "database.name must not be empty")
	}
	validSSL := map[string]bool{"disable": true, "require": true, "verify-ca": true, "verify-full": true}
	if !validSSL[d.SSLMode] {
		errs = append(errs, fmt.Sprintf("database.sslmode must be one of [disable, require, verify-ca, verify-full], got %q", d.SSLMode))
	}
	if d.MaxConns < 1 {
		errs = append(errs, fmt.Sprintf("database.max_conns must be >= 1, got %d", d.MaxConns))
	}
	if d.MinConns < 0 {
		errs = append(errs, fmt.Sprintf("database.min_conns must be >= 0, got %d", d.MinConns))
	}
	if d.MinConns > d.MaxConns {
		errs = append(errs, "database.min_conns must not exceed database.max_conns")
	}
	return errs
}

func validateHistory(h HistoryConfig, r RedisConfig) []string {
	var errs []string
	switch h.Backend {
	case HistoryMemory, HistoryPostgres:
	case HistoryRedis:
		if r.Addr == "" {
			errs = append(errs, "redis.addr must not be empty when history.backend is redis")
		}
	default:
		errs = append(errs, fmt.Sprintf("history.backend must be one of [memory, redis, postgres], got %q", h.Backend))
	}
	if h.SaveInterval < 0 {
		errs = append(errs, "history.save_interval must not be negative")
	}
	if r.DB < 0 {
		errs = append(errs, fmt.Sprintf("redis.db must be >= 0, got %d", r.DB))
	}
	if r.TTL < 0 {
		errs = append(errs, "redis.ttl must not be negative")
	}
	return errs
}

func validateInference(i InferenceConfig) []string {
	var errs []string
	switch i.Provider {
	case ProviderScript:
		if i.ScriptDir == "" {
			errs = append(errs, "inference.script_dir must not be empty for the script provider")
		}
	case ProviderAnthropic, ProviderOpenAI:
		if i.APIKey == "" {
			errs = append(errs, fmt.Sprintf("inference.api_key must not be empty for the %s provider", i.Provider))
		}
		if i.DefaultModel == "" {
			errs = append(errs, "inference.default_model must not be empty")
		}
	default:
		errs = append(errs, fmt.Sprintf("inference.provider must be one of [script, anthropic, openai], got %q", i.Provider))
	}
	if i.InstructionLimit < 0 {
		errs = append(errs, fmt.Sprintf("inference.instruction_limit must be >= 0, got %d", i.InstructionLimit))
	}
	if i.RequestTimeout < 0 {
		errs = append(errs, "inference.request_timeout must not be negative")
	}
	if i.MaxTokens < 0 {
		errs = append(errs, fmt.Sprintf("inference.max_tokens must be >= 0, got %d", i.MaxTokens))
	}
	if i.Temperature < 0 || i.Temperature > 2 {
		errs = append(errs, fmt.Sprintf("inference.temperature must be in [0, 2], got %g", i.Temperature))
	}
	if i.Breaker.MaxFailures < 1 {
		errs = append(errs, fmt.Sprintf("inference.breaker.max_failures must be >= 1, got %d", i.Breaker.MaxFailures))
	}
	if i.Breaker.ResetTimeout <= 0 {
		errs = append(errs, "inference.breaker.reset_timeout must be positive")
	}
	return errs
}

func validateFleet(f FleetConfig) []string {
	var errs []string
	if f.MaxUpdateDistance <= 0 || f.MaxRenderDistance <= 0 || f.MaxInteractionDistance <= 0 {
		errs = append(errs, "fleet distances must be positive")
	}
	if f.MaxActiveNPCs < 1 {
		errs = append(errs, fmt.Sprintf("fleet.max_active_npcs must be >= 1, got %d", f.MaxActiveNPCs))
	}
	if f.MaxUpdatesPerFrame < 1 {
		errs = append(errs, fmt.Sprintf("fleet.max_updates_per_frame must be >= 1, got %d", f.MaxUpdatesPerFrame))
	}
	if f.UpdateIntervalMultiplier <= 0 {
		errs = append(errs, fmt.Sprintf("fleet.update_interval_multiplier must be positive, got %g", f.UpdateIntervalMultiplier))
	}
	if f.SystemUpdateEveryFrames < 1 {
		errs = append(errs, fmt.Sprintf("fleet.system_update_every_frames must be >= 1, got %d", f.SystemUpdateEveryFrames))
	}
	if f.BehaviorTimeout <= 0 || f.DialogueTimeout <= 0 {
		errs = append(errs, "fleet.behavior_timeout and fleet.dialogue_timeout must be positive")
	}
	return errs
}

func validateDialogue(d DialogueConfig) []string {
	var errs []string
	if d.ConversationTimeout <= 0 {
		errs = append(errs, "dialogue.conversation_timeout must be positive")
	}
	if d.AIResponseTimeout <= 0 {
		errs = append(errs, "dialogue.ai_response_timeout must be positive")
	}
	if d.MaxExchanges < 1 {
		errs = append(errs, fmt.Sprintf("dialogue.max_exchanges must be >= 1, got %d", d.MaxExchanges))
	}
	if d.MaxPlayerChoices < 1 {
		errs = append(errs, fmt.Sprintf("dialogue.max_player_choices must be >= 1, got %d", d.MaxPlayerChoices))
	}
	if d.MaxHistoryPerNPC < 0 {
		errs = append(errs, fmt.Sprintf("dialogue.max_history_per_npc must be >= 0, got %d", d.MaxHistoryPerNPC))
	}
	if d.TypingSpeed <= 0 {
		errs = append(errs, fmt.Sprintf("dialogue.typing_speed must be positive, got %g", d.TypingSpeed))
	}
	if d.PlayerSkill < 0 || d.PlayerSkill > 1 {
		errs = append(errs, fmt.Sprintf("dialogue.player_skill must be in [0, 1], got %g", d.PlayerSkill))
	}
	if d.MaxConsecutiveFailures < 1 {
		errs = append(errs, fmt.Sprintf("dialogue.max_consecutive_failures must be >= 1, got %d", d.MaxConsecutiveFailures))
	}
	return errs
}

func validateServing(f FrameConfig, b BridgeConfig, m MetricsConfig) []string {
	var errs []string
	if f.RateHz < 1 || f.RateHz > 240 {
		errs = append(errs, fmt.Sprintf("frame.rate_hz must be 1-240, got %d", f.RateHz))
	}
	if b.Host == "" {
		errs = append(errs, "bridge.host must not be empty")
	}
	if !validPort(b.Port) {
		errs = append(errs, fmt.Sprintf("bridge.port must be 1-65535, got %d", b.Port))
	}
	if m.Enabled && m.Addr == "" {
		errs = append(errs, "metrics.addr must not be empty when metrics are enabled")
	}
	return errs
}

// Load reads configuration from path, applies NPC_-prefixed environment
// overrides, and validates the result. An empty path uses defaults and the
// environment only.
//
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetEnvPrefix("NPC")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("reading config file: %w", err)
		}
	}
	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Defaults returns the configuration Load produces with no file and no
// environment overrides.
func Defaults() Config {
	v := viper.New()
	setDefaults(v)
	var cfg Config
	// Unmarshal of registered defaults cannot fail.
	_ = v.Unmarshal(&cfg)
	return cfg
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "npcfleet")
	v.SetDefault("database.password", "npcfleet")
	v.SetDefault("database.name", "npcfleet")
	v.SetDefault("database.sslmode", "disable")
	v.SetDefault("database.max_conns", 10)
	v.SetDefault("database.min_conns", 2)
	v.SetDefault("database.max_conn_lifetime", "1h")

	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.key_prefix", "npcfleet")
	v.SetDefault("redis.ttl", "0s")

	v.SetDefault("history.backend", HistoryMemory)
	v.SetDefault("history.save_interval", "5m")

	v.SetDefault("inference.provider", ProviderScript)
	v.SetDefault("inference.script_dir", "content/scripts/ai")
	v.SetDefault("inference.instruction_limit", 100_000)
	v.SetDefault("inference.request_timeout", "15s")
	v.SetDefault("inference.max_tokens", 512)
	v.SetDefault("inference.temperature", 0.7)
	v.SetDefault("inference.breaker.max_failures", 5)
	v.SetDefault("inference.breaker.reset_timeout", "30s")
	v.SetDefault("inference.breaker.half_open_max", 1)

	fleet := npc.DefaultSettings()
	v.SetDefault("fleet.max_update_distance", fleet.MaxUpdateDistance)
	v.SetDefault("fleet.max_render_distance", fleet.MaxRenderDistance)
	v.SetDefault("fleet.max_interaction_distance", fleet.MaxInteractionDistance)
	v.SetDefault("fleet.max_active_npcs", fleet.MaxActiveNPCs)
	v.SetDefault("fleet.max_updates_per_frame", fleet.MaxUpdatesPerFrame)
	v.SetDefault("fleet.update_interval_multiplier", fleet.UpdateIntervalMultiplier)
	v.SetDefault("fleet.enable_distance_culling", fleet.EnableDistanceCulling)
	v.SetDefault("fleet.enable_frustum_culling", fleet.EnableFrustumCulling)
	v.SetDefault("fleet.enable_batch_updates", fleet.EnableBatchUpdates)
	v.SetDefault("fleet.debug_logging", fleet.DebugLogging)
	v.SetDefault("fleet.performance_logging", fleet.PerformanceLogging)
	v.SetDefault("fleet.state_logging", fleet.StateLogging)
	v.SetDefault("fleet.system_update_every_frames", fleet.SystemUpdateEveryFrames)
	v.SetDefault("fleet.performance_report_interval", fleet.PerformanceReportInterval)
	v.SetDefault("fleet.behavior_timeout", fleet.BehaviorTimeout)
	v.SetDefault("fleet.dialogue_timeout", fleet.DialogueTimeout)

	dlg := dialogue.DefaultSettings()
	v.SetDefault("dialogue.conversation_timeout", dlg.ConversationTimeout)
	v.SetDefault("dialogue.ai_response_timeout", dlg.AIResponseTimeout)
	v.SetDefault("dialogue.max_exchanges", dlg.MaxExchanges)
	v.SetDefault("dialogue.max_player_choices", dlg.MaxPlayerChoices)
	v.SetDefault("dialogue.max_history_per_npc", dlg.MaxHistoryPerNPC)
	v.SetDefault("dialogue.enable_typing_effect", dlg.EnableTypingEffect)
	v.SetDefault("dialogue.typing_speed", dlg.TypingSpeed)
	v.SetDefault("dialogue.processing_delay", dlg.ProcessingDelay)
	v.SetDefault("dialogue.player_skill", dlg.PlayerSkill)
	v.SetDefault("dialogue.auto_start", dlg.AutoStart)
	v.SetDefault("dialogue.max_consecutive_failures", dlg.MaxConsecutiveFailures)

	v.SetDefault("frame.rate_hz", 30)

	v.SetDefault("bridge.host", "127.0.0.1")
	v.SetDefault("bridge.port", 50061)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.addr", ":9464")

	v.SetDefault("content.templates_dir", "")
	v.SetDefault("content.manifest_file", "")
}
