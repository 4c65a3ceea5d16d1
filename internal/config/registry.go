package config

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

const defaultMaxOwned = 10

// RegistryConfig is the reloadable registry policy.
type RegistryConfig struct {
	MaxOwned int
}

func DefaultRegistryConfig() RegistryConfig {
	return RegistryConfig{MaxOwned: defaultMaxOwned}
}

// RegistryConfigHolder serves the current policy. A reload may raise
// MaxOwned but never lower it.
type RegistryConfigHolder struct {
	mu      sync.Mutex
	current atomic.Value // holds RegistryConfig
	log     *zap.Logger
}

func NewRegistryConfigHolder(cfg Config, log *zap.Logger) (*RegistryConfigHolder, error) {
	if log == nil {
		log = zap.NewNop()
	}
	v := viper.New()

	if cfg.RegistryConfigFile != "" {
		v.SetConfigFile(cfg.RegistryConfigFile)
	} else {
		v.SetConfigName("registry")
		v.SetConfigType("yml")
		v.AddConfigPath("/etc/kitties")
		v.AddConfigPath(".")
	}

	v.SetEnvPrefix("KITTIES")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	v.SetDefault("registry.maxOwned", defaultMaxOwned)

	fromFile := true
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read registry config: %w", err)
		}
		fromFile = false
	}

	initial := readRegistryConfig(v)
	if err := validateRegistryConfig(initial); err != nil {
		return nil, err
	}

	holder := &RegistryConfigHolder{log: log.Named("config.registry")}
	holder.current.Store(initial)

	if fromFile {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			if err := holder.Apply(readRegistryConfig(v)); err != nil {
				holder.log.Warn("registry config reload ignored",
					zap.String("file", e.Name),
					zap.Error(err),
				)
				return
			}
			holder.log.Info("registry config reloaded",
				zap.String("file", e.Name),
				zap.Int("max_owned", holder.MaxOwned()),
			)
		})
	}

	return holder, nil
}

// NewStaticRegistryConfig returns a holder that is never reloaded from disk.
func NewStaticRegistryConfig(cfg RegistryConfig) *RegistryConfigHolder {
	holder := &RegistryConfigHolder{log: zap.NewNop()}
	holder.current.Store(cfg)
	return holder
}

func (h *RegistryConfigHolder) Get() RegistryConfig {
	return h.current.Load().(RegistryConfig)
}

func (h *RegistryConfigHolder) MaxOwned() int {
	return h.Get().MaxOwned
}

// Apply swaps in updated when it is valid and does not shrink MaxOwned.
func (h *RegistryConfigHolder) Apply(updated RegistryConfig) error {
	if err := validateRegistryConfig(updated); err != nil {
		return err
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if updated.MaxOwned < h.Get().MaxOwned {
		return fmt.Errorf("registry.maxOwned cannot shrink from %d to %d", h.Get().MaxOwned, updated.MaxOwned)
	}
	h.current.Store(updated)
	return nil
}

// RaiseTo lifts MaxOwned to minimum when it is currently lower. It reports
// whether the policy changed.
func (h *RegistryConfigHolder) RaiseTo(minimum int) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	current := h.Get()
	if current.MaxOwned >= minimum {
		return false
	}
	current.MaxOwned = minimum
	h.current.Store(current)
	return true
}

func readRegistryConfig(v *viper.Viper) RegistryConfig {
	return RegistryConfig{MaxOwned: v.GetInt("registry.maxOwned")}
}

func validateRegistryConfig(cfg RegistryConfig) error {
	if cfg.MaxOwned <= 0 {
		return errors.New("registry.maxOwned must be positive")
	}
	return nil
}
