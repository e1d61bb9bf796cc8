package envconfig

import (
	"log/slog"
	"os"
	"sync"

	"github.com/pelletier/go-toml/v2"
)

var (
	fileConfigOnce sync.Once
	fileConfigMap  map[string]string
)

// fileConfig loads config.toml (see ConfigPath) once and caches the
// flattened string map. Missing files are not an error.
func fileConfig() map[string]string {
	fileConfigOnce.Do(func() {
		fileConfigMap = map[string]string{}
		data, err := os.ReadFile(ConfigPath())
		if err != nil {
			return
		}
		var raw map[string]string
		if err := toml.Unmarshal(data, &raw); err != nil {
			slog.Warn("failed to parse config.toml, ignoring", "path", ConfigPath(), "error", err)
			return
		}
		fileConfigMap = raw
	})
	return fileConfigMap
}
