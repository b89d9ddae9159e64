// Package config loads alchemist-core's deployment configuration from a
// YAML file with ALCHEMIST_* environment overrides, using
// github.com/spf13/viper the way the teacher's worker services do.
// Unknown keys fail Load, per spec.md §9's "Duck-typed config objects"
// note: "enumerate recognized options ... unknown options are rejected at
// load."
package config

import (
	"strings"

	"github.com/spf13/viper"

	"github.com/arc-self/alchemist-core/alerr"
	"github.com/arc-self/alchemist-core/kernel"
)

// TierConfig is one rate-limit tier's base capacity/rate, before the
// tier's ×1/×10/×100/×1000 multiplier is applied (ratelimit.Tier).
type TierConfig struct {
	Capacity float64 `mapstructure:"capacity"`
	Rate     float64 `mapstructure:"rate"`
}

// Config is the full, validated deployment configuration.
type Config struct {
	Bus struct {
		URL       string `mapstructure:"url"`
		CredsFile string `mapstructure:"credsFile"`
	} `mapstructure:"bus"`

	ContentStore struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"contentStore"`

	EventLog struct {
		Root string `mapstructure:"root"`
	} `mapstructure:"eventLog"`

	Kernel struct {
		MaxInlineBytes int `mapstructure:"maxInlineBytes"`
	} `mapstructure:"kernel"`

	RateLimit struct {
		Tiers map[string]TierConfig `mapstructure:"tiers"`
	} `mapstructure:"rateLimit"`

	Policy struct {
		File string `mapstructure:"file"`
	} `mapstructure:"policy"`

	Cache struct {
		RedisAddr      string `mapstructure:"redisAddr"`
		MemoryCapacity int    `mapstructure:"memoryCapacity"`
	} `mapstructure:"cache"`

	Renderer struct {
		ChannelCapacity int    `mapstructure:"channelCapacity"`
		GrpcAddr        string `mapstructure:"grpcAddr"`
	} `mapstructure:"renderer"`
}

// recognizedKeys enumerates every config key Load accepts. A key present
// in the file or environment that isn't in this set fails Load.
var recognizedKeys = []string{
	"bus.url", "bus.credsFile",
	"contentStore.root",
	"eventLog.root",
	"kernel.maxInlineBytes",
	"rateLimit.tiers",
	"policy.file",
	"cache.redisAddr", "cache.memoryCapacity",
	"renderer.channelCapacity", "renderer.grpcAddr",
}

// Load reads path (YAML) into a Config, applying ALCHEMIST_* environment
// overrides (e.g. ALCHEMIST_BUS_URL overrides bus.url). Any key in the
// file not present in recognizedKeys — or any rateLimit.tiers entry
// missing a sub-key — fails Load rather than being silently ignored.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("ALCHEMIST")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, alerr.Wrap(alerr.KindTransport, "config.Load", err)
	}

	if err := rejectUnknownKeys(v); err != nil {
		return Config{}, err
	}
	for name := range v.GetStringMap("rateLimit.tiers") {
		for _, sub := range []string{"capacity", "rate"} {
			if !v.IsSet("rateLimit.tiers." + name + "." + sub) {
				return Config{}, alerr.New(alerr.KindInvalidPolicy, "config.Load: rateLimit.tiers."+name+" missing "+sub)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, alerr.Wrap(alerr.KindInvalidPolicy, "config.Load: unmarshal", err)
	}
	return cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("kernel.maxInlineBytes", kernel.MaxInlineDefault)
	v.SetDefault("cache.memoryCapacity", 10_000)
	v.SetDefault("renderer.channelCapacity", 100)
}

func rejectUnknownKeys(v *viper.Viper) error {
	recognized := make(map[string]bool, len(recognizedKeys))
	for _, k := range recognizedKeys {
		recognized[strings.ToLower(k)] = true
	}

	for _, key := range v.AllKeys() {
		if isRecognized(key, recognized) {
			continue
		}
		return alerr.New(alerr.KindInvalidPolicy, "config.Load: unrecognized key "+key)
	}
	return nil
}

// isRecognized allows a key if it exactly matches a recognized key, or if
// it is a nested child of one (e.g. "ratelimit.tiers.free.capacity" under
// "rateLimit.tiers").
func isRecognized(key string, recognized map[string]bool) bool {
	if recognized[key] {
		return true
	}
	parts := strings.Split(key, ".")
	for i := len(parts) - 1; i > 0; i-- {
		if recognized[strings.Join(parts[:i], ".")] {
			return true
		}
	}
	return false
}
