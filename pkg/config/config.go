package config

import (
	"os"

	"gopkg.in/yaml.v3"
)

var GlobalConfig *Config

// Config global configuration
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Redis      RedisConfig      `yaml:"redis"`
	MySQL      MySQLConfig      `yaml:"mysql"`
	Queue      QueueConfig      `yaml:"queue"`
	Pool       PoolConfig       `yaml:"pool"`
	Escalation EscalationConfig `yaml:"escalation"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Health     HealthConfig     `yaml:"health"`
	Profiler   ProfilerConfig   `yaml:"profiler"`
	Logger     LoggerConfig     `yaml:"logger"`
	Providers  *ProvidersConfig `yaml:"providers,omitempty"` // Providers configuration (optional)
}

// ServerConfig server configuration
type ServerConfig struct {
	Port   int    `yaml:"port"`
	Mode   string `yaml:"mode"`    // debug, release
	APIKey string `yaml:"api_key"` // API key for mutating routes (optional, if empty, auth is disabled)
}

// RedisConfig Redis configuration
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// MySQLConfig MySQL configuration
type MySQLConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	Database string `yaml:"database"`
}

// QueueConfig task queue configuration
type QueueConfig struct {
	Capacity       int `yaml:"capacity"`         // maximum queued tasks, 0 means unbounded
	WaitWindowSize int `yaml:"wait_window_size"` // trailing window for average wait time
	DequeueTimeout int `yaml:"dequeue_timeout"`  // worker dequeue wait (seconds)
}

// PoolConfig worker pool configuration
type PoolConfig struct {
	MinSize           int     `yaml:"min_size"`            // minimum pool size
	MaxSize           int     `yaml:"max_size"`            // maximum pool size
	PerWorkerCapacity int     `yaml:"per_worker_capacity"` // target tasks per worker used in demand ratio
	ScaleUpRatio      float64 `yaml:"scale_up_ratio"`      // demand ratio above which the pool grows
	ScaleDownRatio    float64 `yaml:"scale_down_ratio"`    // demand ratio below which the pool shrinks
	ScaleDownCooldown int     `yaml:"scale_down_cooldown"` // consecutive low-demand evaluations before shrinking
	EvaluateInterval  int     `yaml:"evaluate_interval"`   // scaling evaluation cadence (seconds)
	HeartbeatInterval int     `yaml:"heartbeat_interval"`  // worker heartbeat interval (seconds)
	StaleThreshold    int     `yaml:"stale_threshold"`     // heartbeat age beyond which a worker is restarted (seconds)
}

// EscalationConfig escalation policy configuration
type EscalationConfig struct {
	MaxAttempts int `yaml:"max_attempts"` // retry budget before a task is escalated
}

// MetricsConfig metrics collector configuration
type MetricsConfig struct {
	WindowSize      int     `yaml:"window_size"`       // workflow record window capacity, 0 means unbounded
	DepthWindowSize int     `yaml:"depth_window_size"` // queue depth sample window capacity
	TrendThreshold  float64 `yaml:"trend_threshold"`   // relative change treated as a trend
}

// HealthConfig health evaluation thresholds
type HealthConfig struct {
	UtilizationWarningPct  float64 `yaml:"utilization_warning_pct"`
	UtilizationCriticalPct float64 `yaml:"utilization_critical_pct"`
	SuccessRateCriticalPct float64 `yaml:"success_rate_critical_pct"`
	P95LatencyCriticalMs   float64 `yaml:"p95_latency_critical_ms"`
	PhaseFailureCritical   float64 `yaml:"phase_failure_critical_pct"`
	QueueDepthWarning      int     `yaml:"queue_depth_warning"`
}

// ProfilerConfig resource profiler configuration
type ProfilerConfig struct {
	Enabled          bool `yaml:"enabled"`
	SampleInterval   int  `yaml:"sample_interval"`     // sampling interval (milliseconds)
	MaxProfilesPerOp int  `yaml:"max_profiles_per_op"` // bounded history per operation
	CleanupInterval  int  `yaml:"cleanup_interval"`    // completions between cleanup passes
}

// LoggerConfig logger configuration
type LoggerConfig struct {
	Level  string           `yaml:"level"`  // debug, info, warn, error
	Output string           `yaml:"output"` // console, file, both
	File   LoggerFileConfig `yaml:"file"`
}

// LoggerFileConfig logger file configuration
type LoggerFileConfig struct {
	Path string `yaml:"path"`
}

// ProvidersConfig providers configuration
type ProvidersConfig struct {
	Queue string `yaml:"queue"` // Queue provider: memory, asynq
	Store string `yaml:"store"` // Durable store: memory, redis, mysql
}

// Init initializes configuration
func Init() error {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "config/config.yaml"
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return err
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return err
	}

	cfg.ApplyDefaults()
	GlobalConfig = &cfg
	return nil
}

// ApplyDefaults fills zero-valued tuning fields with their defaults.
// The scaling ratios, trend threshold and staleness window are empirically
// chosen constants; they are configuration, not guarantees.
func (c *Config) ApplyDefaults() {
	if c.Queue.WaitWindowSize <= 0 {
		c.Queue.WaitWindowSize = 100
	}
	if c.Queue.DequeueTimeout <= 0 {
		c.Queue.DequeueTimeout = 5
	}
	if c.Pool.MaxSize <= 0 {
		c.Pool.MaxSize = 10
	}
	if c.Pool.PerWorkerCapacity <= 0 {
		c.Pool.PerWorkerCapacity = 1
	}
	if c.Pool.ScaleUpRatio <= 0 {
		c.Pool.ScaleUpRatio = 1.0
	}
	if c.Pool.ScaleDownRatio <= 0 {
		c.Pool.ScaleDownRatio = 0.25
	}
	if c.Pool.ScaleDownCooldown <= 0 {
		c.Pool.ScaleDownCooldown = 3
	}
	if c.Pool.EvaluateInterval <= 0 {
		c.Pool.EvaluateInterval = 10
	}
	if c.Pool.HeartbeatInterval <= 0 {
		c.Pool.HeartbeatInterval = 5
	}
	if c.Pool.StaleThreshold <= 0 {
		c.Pool.StaleThreshold = 30
	}
	if c.Escalation.MaxAttempts <= 0 {
		c.Escalation.MaxAttempts = 3
	}
	if c.Metrics.DepthWindowSize <= 0 {
		c.Metrics.DepthWindowSize = 120
	}
	if c.Metrics.TrendThreshold <= 0 {
		c.Metrics.TrendThreshold = 0.10
	}
	if c.Profiler.SampleInterval <= 0 {
		c.Profiler.SampleInterval = 100
	}
	if c.Profiler.MaxProfilesPerOp <= 0 {
		c.Profiler.MaxProfilesPerOp = 100
	}
	if c.Profiler.CleanupInterval <= 0 {
		c.Profiler.CleanupInterval = 50
	}
}
