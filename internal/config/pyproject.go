package config

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	jsonv2 "github.com/go-json-experiment/json"
	"github.com/tailscale/hujson"
	"github.com/virtuald/hatch-meson/internal/hookerr"
)

// Project is the part of pyproject.toml the hook cares about.
type Project struct {
	// Hook is the decoded [tool.hatch.build.hooks.meson] table.
	Hook Hook
	// PackageSources are the source directory prefixes configured for the
	// wheel target, in file order. Built modules are copied below the first.
	PackageSources []string
	// ExcludeScope is "wheel" when the wheel target has its own exclude
	// list and "build" otherwise.
	ExcludeScope string
}

type pyproject struct {
	Tool struct {
		Hatch struct {
			Build buildTable `toml:"build"`
		} `toml:"hatch"`
	} `toml:"tool"`
}

type buildTable struct {
	Sources  toml.Primitive `toml:"sources"`
	Packages []string       `toml:"packages"`
	Hooks    struct {
		Meson map[string]any `toml:"meson"`
	} `toml:"hooks"`
	Targets struct {
		Wheel struct {
			Sources  toml.Primitive `toml:"sources"`
			Packages []string       `toml:"packages"`
			Exclude  *[]string      `toml:"exclude"`
		} `toml:"wheel"`
	} `toml:"targets"`
}

// LoadProject reads pyproject.toml from the project root.
// A missing file yields the default configuration.
func LoadProject(root string) (*Project, error) {
	data, err := os.ReadFile(filepath.Join(root, "pyproject.toml"))
	if errors.Is(err, os.ErrNotExist) {
		return &Project{ExcludeScope: "build"}, nil
	}
	if err != nil {
		return nil, hookerr.WrapConfig(err, "read pyproject.toml")
	}
	return ParseProject(data)
}

// ParseProject decodes the contents of a pyproject.toml file.
func ParseProject(data []byte) (*Project, error) {
	var doc pyproject
	md, err := toml.Decode(string(data), &doc)
	if err != nil {
		return nil, hookerr.WrapConfig(err, "parse pyproject.toml")
	}
	p := &Project{ExcludeScope: "build"}
	if err := decode(hookSchemaFile, doc.Tool.Hatch.Build.Hooks.Meson, &p.Hook); err != nil {
		return nil, hookerr.WrapConfig(err, "[tool.hatch.build.hooks.meson] has incorrect configuration")
	}

	build := &doc.Tool.Hatch.Build
	wheel := &build.Targets.Wheel
	if wheel.Exclude != nil {
		p.ExcludeScope = "wheel"
	}
	// The wheel target's options replace the global ones.
	p.PackageSources, err = sources(md, wheel.Sources, wheel.Packages, "tool.hatch.build.targets.wheel.sources")
	if err != nil {
		return nil, err
	}
	if p.PackageSources == nil && !md.IsDefined("tool", "hatch", "build", "targets", "wheel", "packages") {
		p.PackageSources, err = sources(md, build.Sources, build.Packages, "tool.hatch.build.sources")
		if err != nil {
			return nil, err
		}
	}
	return p, nil
}

// sources lists the source prefixes from a "sources" option,
// which is either a list or a table of rewrites,
// falling back to the parent directories of "packages".
func sources(md toml.MetaData, prim toml.Primitive, packages []string, key string) ([]string, error) {
	keyPath := strings.Split(key, ".")
	if md.IsDefined(keyPath...) {
		var list []string
		if err := md.PrimitiveDecode(prim, &list); err == nil {
			return normalizeSources(list), nil
		}
		var table map[string]string
		if err := md.PrimitiveDecode(prim, &table); err != nil {
			return nil, hookerr.WrapConfig(err, key+" must be a list or a table")
		}
		// Keys come back in file order from the metadata.
		var keys []string
		for _, k := range md.Keys() {
			if len(k) == len(keyPath)+1 && strings.HasPrefix(k.String(), key+".") {
				keys = append(keys, k[len(k)-1])
			}
		}
		return normalizeSources(keys), nil
	}
	var out []string
	for _, pkg := range packages {
		if dir := path.Dir(strings.Trim(pkg, "/")); dir != "." {
			out = append(out, dir+"/")
		}
	}
	return out, nil
}

func normalizeSources(list []string) []string {
	out := make([]string, 0, len(list))
	for _, s := range list {
		s = strings.Trim(s, "/")
		if s == "" {
			continue
		}
		out = append(out, s+"/")
	}
	return out
}

// ParseSettings combines config settings from an optional HuJSON file
// with "key=value" pairs from the command line.
// Pairs override keys from the file.
// A key given more than once accumulates into a list.
func ParseSettings(file []byte, pairs []string) (*Settings, error) {
	raw := make(map[string]any)
	if len(bytes.TrimSpace(file)) > 0 {
		std, err := hujson.Standardize(file)
		if err != nil {
			return nil, hookerr.WrapConfig(err, "incorrect config settings passed to hatch-meson")
		}
		if err := jsonv2.Unmarshal(std, &raw); err != nil {
			return nil, hookerr.WrapConfig(err, "incorrect config settings passed to hatch-meson")
		}
	}
	fromPairs := make(map[string]any)
	for _, pair := range pairs {
		k, v, _ := strings.Cut(pair, "=")
		if k == "" {
			return nil, hookerr.Configf("incorrect config settings passed to hatch-meson: %q has no key", pair)
		}
		switch prev := fromPairs[k].(type) {
		case nil:
			fromPairs[k] = v
		case string:
			fromPairs[k] = []any{prev, v}
		case []any:
			fromPairs[k] = append(prev, v)
		}
	}
	raw = rmdashes(raw)
	for k, v := range rmdashes(fromPairs) {
		raw[k] = v
	}

	s := new(Settings)
	if err := decode(settingsSchemaFile, raw, s); err != nil {
		return nil, hookerr.WrapConfig(err, "incorrect config settings passed to hatch-meson")
	}
	return s, nil
}

// String formats the settings for debug logs.
func (s *Settings) String() string {
	return fmt.Sprintf("build_dir=%q editable_verbose=%t setup=%q compile=%q install=%q",
		s.BuildDir, bool(s.EditableVerbose), []string(s.SetupArgs), []string(s.CompileArgs), []string(s.InstallArgs))
}
