package am

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"

	"github.com/teranos/qntx-libinjection/errors"
)

var globalConfig *Config
var viperInstance *viper.Viper

// ConfigSources records which file set each key during the last load
var ConfigSources = make(map[string]SourceInfo)

// Load reads the configuration using Viper and validates it
func Load() (*Config, error) {
	if globalConfig != nil {
		return globalConfig, nil
	}

	config, err := LoadWithViper(initViper())
	if err != nil {
		return nil, err
	}
	if err := config.Validate(); err != nil {
		return nil, errors.WithHint(errors.Wrap(err, "invalid configuration"),
			"run `injection am show` to see where each value comes from")
	}

	globalConfig = config
	return globalConfig, nil
}

// GetViper returns the Viper instance for advanced configuration access
func GetViper() *viper.Viper {
	return initViper()
}

// LoadWithViper loads configuration using a provided Viper instance
func LoadWithViper(v *viper.Viper) (*Config, error) {
	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, errors.Wrap(err, "failed to unmarshal config")
	}
	return &config, nil
}

// LoadFromFile loads configuration from a specific file path
func LoadFromFile(configPath string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(configPath)
	v.SetConfigType("toml")

	// Set defaults but don't bind environment variables for this specific load
	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return nil, errors.Wrapf(err, "failed to read config file %s", configPath)
	}

	config, err := LoadWithViper(v)
	if err != nil {
		return nil, errors.Wrapf(err, "config file %s", configPath)
	}
	return config, nil
}

// Reset clears the cached configuration (useful for testing)
func Reset() {
	globalConfig = nil
	viperInstance = nil
	ConfigSources = make(map[string]SourceInfo)
}

// initViper initializes Viper with configuration sources and defaults
func initViper() *viper.Viper {
	if viperInstance != nil {
		return viperInstance
	}

	v := viper.New()

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	// system -> user -> project, env vars win over all files
	mergeConfigFiles(v)

	viperInstance = v
	return v
}

// UserConfigPath returns ~/.qntx-libinjection/am.toml, or "" without a home directory
func UserConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}
	return filepath.Join(home, UserDirName, ConfigFileName)
}

// findProjectConfig searches for am.toml by walking up the directory tree
// Returns the path to the first config file found, or empty string if none found
func findProjectConfig() string {
	dir, err := os.Getwd()
	if err != nil {
		return ""
	}

	for {
		amPath := filepath.Join(dir, ConfigFileName)
		if _, err := os.Stat(amPath); err == nil {
			return amPath
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}

	return ""
}

type configFile struct {
	path   string
	source ConfigSource
}

// mergeConfigFiles merges configuration files in precedence order and
// records the source of every key it sets
func mergeConfigFiles(v *viper.Viper) {
	files := []configFile{{SystemConfig, SourceSystem}}
	if user := UserConfigPath(); user != "" {
		files = append(files, configFile{user, SourceUser})
	}
	if project := findProjectConfig(); project != "" && project != UserConfigPath() {
		files = append(files, configFile{project, SourceProject})
	}

	for _, f := range files {
		if _, err := os.Stat(f.path); err != nil {
			continue
		}
		tempViper := viper.New()
		tempViper.SetConfigFile(f.path)
		tempViper.SetConfigType("toml")
		if err := tempViper.ReadInConfig(); err != nil {
			continue
		}

		// merged as config so env vars still win
		settings := tempViper.AllSettings()
		markSettingsFromSource(settings, "", f.source, f.path, ConfigSources)
		if err := v.MergeConfigMap(settings); err != nil {
			continue
		}
	}
}

// markSettingsFromSource records source for every leaf key in settings
func markSettingsFromSource(settings map[string]interface{}, prefix string, source ConfigSource, path string, sourceMap map[string]SourceInfo) {
	for key, value := range settings {
		fullKey := key
		if prefix != "" {
			fullKey = prefix + "." + key
		}
		if nested, ok := value.(map[string]interface{}); ok {
			markSettingsFromSource(nested, fullKey, source, path, sourceMap)
			continue
		}
		sourceMap[fullKey] = SourceInfo{Source: source, Path: path}
	}
}
