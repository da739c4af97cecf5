package meson

import (
	"os"
	"path/filepath"
	"slices"
	"time"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// Build directory layout:
//
//	buildDir/
//	  .hatch-meson-cache.json        # configure cache: last setup invocation
//	  hatch-meson-native-file.ini
//	  hatch-meson-cross-file.ini     # only for ARCHFLAGS cross builds
//	  meson-private/coredata.dat     # present once setup has succeeded
//	  meson-info/*.json              # introspection documents
const cacheFile = ".hatch-meson-cache.json"

// configureCache remembers how the build directory was last configured.
type configureCache struct {
	Args          []string  `json:"args"`
	ConfigureTime time.Time `json:"configure_time"`
}

func newConfigureCache(args []string) *configureCache {
	return &configureCache{
		Args:          args,
		ConfigureTime: time.Now().UTC(),
	}
}

func (c *configureCache) matches(args []string) bool {
	return c != nil && slices.Equal(c.Args, args)
}

// loadCache reads the configure cache from the build directory.
func (m *Meson) loadCache() (*configureCache, error) {
	data, err := os.ReadFile(filepath.Join(m.buildDir, cacheFile))
	if err != nil {
		return nil, err
	}
	var cache configureCache
	if err := jsonv2.Unmarshal(data, &cache); err != nil {
		return nil, err
	}
	return &cache, nil
}

// saveCache writes the configure cache to the build directory.
func (m *Meson) saveCache(cache *configureCache) error {
	if err := os.MkdirAll(m.buildDir, 0o755); err != nil {
		return err
	}
	data, err := jsonv2.Marshal(cache, jsontext.Multiline(true), jsontext.WithIndent("  "))
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(m.buildDir, cacheFile), data, 0o644)
}
