package config

import (
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/woxQAQ/bindgen-host/internal/bindgen"
	"github.com/woxQAQ/bindgen-host/internal/heap"
	"github.com/woxQAQ/bindgen-host/internal/webapi"
)

// EnvPrefix prefixes environment overrides, e.g. WBGRUN_LOG_LEVEL.
const EnvPrefix = "WBGRUN"

type RunnerConfig struct {
	BundlePaths []string      `mapstructure:"bundle_paths"`
	LogLevel    string        `mapstructure:"log_level"`
	Metrics     MetricsConfig `mapstructure:"metrics"`

	// How long the event loop may run. Zero runs until the loop is idle.
	RunTimeout time.Duration `mapstructure:"run_timeout"`

	// Boundary settings: the wasm, fetch and window sections plus
	// heap_capacity.
	Boundary bindgen.Config `mapstructure:",squash"`
}

// MetricsConfig controls the Prometheus endpoint.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Addr    string `mapstructure:"addr"`
	Path    string `mapstructure:"path"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("bundle_paths", []string{"./bundles"})
	v.SetDefault("log_level", "info")
	v.SetDefault("run_timeout", 0)

	v.SetDefault("metrics.enabled", false)
	v.SetDefault("metrics.addr", ":9090")
	v.SetDefault("metrics.path", "/metrics")

	// Wasm defaults
	v.SetDefault("wasm.memory_pages", 256) // 16MB
	v.SetDefault("wasm.debug", false)
	v.SetDefault("wasm.cache_dir", "")
	v.SetDefault("wasm.max_instances", 100)
	v.SetDefault("wasm.call_timeout", 30*time.Second)

	v.SetDefault("fetch.timeout", 30*time.Second)
	v.SetDefault("fetch.retry_max", 3)
	v.SetDefault("fetch.retry_wait_min", 500*time.Millisecond)
	v.SetDefault("fetch.retry_wait_max", 5*time.Second)
	v.SetDefault("fetch.max_module_bytes", 64<<20)

	v.SetDefault("window.url", webapi.DefaultURL)
	v.SetDefault("window.document", "")
	v.SetDefault("window.viewport.width", 1280)
	v.SetDefault("window.viewport.height", 720)
	v.SetDefault("window.frame_rate", webapi.DefaultFrameRate)

	v.SetDefault("heap_capacity", heap.DefaultCapacity)
}

// LoadRunnerConfig reads configuration from defaults, the optional file at
// configPath and WBGRUN_* environment variables, in increasing precedence.
func LoadRunnerConfig(configPath string) (*RunnerConfig, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg RunnerConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
