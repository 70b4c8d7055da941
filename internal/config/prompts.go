package config

import (
	"errors"
	"strings"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

// PromptConfig holds the instructions sent to the vision model.
type PromptConfig struct {
	System string            `mapstructure:"system"`
	Kinds  map[string]string `mapstructure:"kinds"`
}

func DefaultPromptConfig() PromptConfig {
	return PromptConfig{
		System: "You read utility meters from photos. Answer with the numeric value shown on the meter register only, " +
			"using a dot as the decimal separator. Do not add units, words or explanations. " +
			"If the register cannot be read, answer exactly: UNREADABLE",
		Kinds: map[string]string{
			"WATER": "This is a photo of a WATER meter. What is the numeric value of the water meter register in cubic meters?",
			"GAS":   "This is a photo of a GAS meter. What is the numeric value of the gas meter register in cubic meters?",
		},
	}
}

// Instruction returns the per-kind prompt, falling back to a generic one.
func (c PromptConfig) Instruction(kind string) string {
	kind = strings.ToUpper(strings.TrimSpace(kind))
	if v := strings.TrimSpace(c.Kinds[kind]); v != "" {
		return v
	}
	return "What is the numeric value of the " + strings.ToLower(kind) + " meter in this photo?"
}

type PromptConfigHolder struct {
	current atomic.Value // holds PromptConfig
}

// NewPromptConfigHolder reads prompts.yml when present and reloads it on change.
func NewPromptConfigHolder(log *zap.Logger) (*PromptConfigHolder, error) {
	v := viper.New()

	v.SetConfigName("prompts")
	v.SetConfigType("yml")
	v.AddConfigPath("/etc/meterscan")
	v.AddConfigPath(".")

	v.SetEnvPrefix("METERSCAN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	defaults := DefaultPromptConfig()
	v.SetDefault("prompts.system", defaults.System)
	v.SetDefault("prompts.kinds", defaults.Kinds)

	fileLoaded := true
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		fileLoaded = false
	}

	cfg, err := decodePrompts(v)
	if err != nil {
		return nil, err
	}

	holder := NewStaticPromptConfigHolder(cfg)

	if fileLoaded {
		v.WatchConfig()
		v.OnConfigChange(func(e fsnotify.Event) {
			updated, err := decodePrompts(v)
			if err != nil {
				log.Warn("prompt config reload ignored", zap.String("file", e.Name), zap.Error(err))
				return
			}
			holder.current.Store(updated)
			log.Info("prompt config reloaded", zap.String("file", e.Name))
		})
	}

	return holder, nil
}

// NewStaticPromptConfigHolder returns a holder that never reloads.
func NewStaticPromptConfigHolder(cfg PromptConfig) *PromptConfigHolder {
	holder := &PromptConfigHolder{}
	holder.current.Store(cfg)
	return holder
}

func (h *PromptConfigHolder) Get() PromptConfig {
	return h.current.Load().(PromptConfig)
}

func decodePrompts(v *viper.Viper) (PromptConfig, error) {
	var cfg PromptConfig
	if err := v.UnmarshalKey("prompts", &cfg); err != nil {
		return PromptConfig{}, err
	}
	if strings.TrimSpace(cfg.System) == "" {
		return PromptConfig{}, errors.New("prompts.system cannot be empty")
	}
	// viper lower-cases map keys
	kinds := make(map[string]string, len(cfg.Kinds))
	for k, v := range cfg.Kinds {
		kinds[strings.ToUpper(k)] = v
	}
	cfg.Kinds = kinds
	return cfg, nil
}
