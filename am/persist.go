package am

import (
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"

	"github.com/teranos/qntx-libinjection/errors"
)

// createBackup creates rotating backups (.back1, .back2, .back3) before overwriting config
func createBackup(configPath string) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		return nil
	}

	back3 := configPath + ".back3"
	back2 := configPath + ".back2"
	back1 := configPath + ".back1"

	if err := os.Remove(back3); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "failed to delete old backup %s", back3)
	}

	if _, err := os.Stat(back2); err == nil {
		if err := os.Rename(back2, back3); err != nil {
			return errors.Wrap(err, "failed to rotate .back2 to .back3")
		}
	}

	if _, err := os.Stat(back1); err == nil {
		if err := os.Rename(back1, back2); err != nil {
			return errors.Wrap(err, "failed to rotate .back1 to .back2")
		}
	}

	content, err := os.ReadFile(configPath)
	if err != nil {
		return errors.Wrap(err, "failed to read config for backup")
	}

	if err := os.WriteFile(back1, content, DefaultFilePermissions); err != nil {
		return errors.Wrap(err, "failed to create .back1")
	}

	return nil
}

// Marshal encodes cfg as TOML
func Marshal(cfg *Config) ([]byte, error) {
	data, err := toml.Marshal(cfg)
	if err != nil {
		return nil, errors.Wrap(err, "failed to marshal config")
	}
	return data, nil
}

// WriteConfig writes cfg to configPath. An existing file is only replaced when
// overwrite is set, after rotating it into the .backN files.
func WriteConfig(configPath string, cfg *Config, overwrite bool) error {
	if _, err := os.Stat(configPath); err == nil {
		if !overwrite {
			return errors.WithHint(
				errors.Newf("config file %s already exists", configPath),
				"pass --force to replace it; the old file is kept as .back1")
		}
		if err := createBackup(configPath); err != nil {
			return errors.Wrap(err, "failed to create backup")
		}
	}

	data, err := Marshal(cfg)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(configPath), DefaultDirPermissions); err != nil {
		return errors.Wrapf(err, "failed to create %s", filepath.Dir(configPath))
	}

	header := fmt.Sprintf("# qntx-libinjection configuration\n# environment variables %s_<SECTION>_<KEY> take precedence\n\n", EnvPrefix)
	if err := os.WriteFile(configPath, append([]byte(header), data...), DefaultFilePermissions); err != nil {
		return errors.Wrapf(err, "failed to write %s", configPath)
	}
	return nil
}

// WriteDefault writes the default configuration to configPath
func WriteDefault(configPath string, overwrite bool) error {
	return WriteConfig(configPath, DefaultConfig(), overwrite)
}
