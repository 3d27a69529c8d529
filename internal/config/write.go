package config

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
)

const fileHeader = `# slate configuration
#
# Every key can be overridden with an environment variable named SLATE_ plus
# the key path in upper case, e.g. SLATE_REMOTE_URL or SLATE_SYNC_INTERVAL.
# Durations use Go syntax: "30s", "5m", "1h".

`

// WriteDefault writes cfg as a TOML config file at path. It refuses to
// overwrite an existing file.
func WriteDefault(path string, cfg *Config) error {
	if cfg == nil {
		cfg = Defaults()
	}
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file %s already exists: %w", path, os.ErrExist)
	}

	var buf bytes.Buffer
	buf.WriteString(fileHeader)
	if err := toml.NewEncoder(&buf).Encode(tree(cfg)); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}
	// Holds API keys.
	if err := os.WriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config: %w", err)
	}
	return nil
}

// tree nests the flattened keys into tables. Durations are written as
// strings so the file stays readable.
func tree(cfg *Config) map[string]any {
	root := make(map[string]any)
	for key, value := range flatten(cfg) {
		if s, ok := value.(fmt.Stringer); ok {
			value = s.String()
		}
		table, name := root, key
		if i := strings.IndexByte(key, '.'); i >= 0 {
			sub, ok := root[key[:i]].(map[string]any)
			if !ok {
				sub = make(map[string]any)
				root[key[:i]] = sub
			}
			table, name = sub, key[i+1:]
		}
		table[name] = value
	}
	return root
}
