// Package config decodes the hook configuration from pyproject.toml
// and the config settings passed in by the build frontend.
package config

import (
	"bytes"
	"embed"
	"fmt"
	"strconv"
	"strings"
	"sync"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/santhosh-tekuri/jsonschema/v5"
)

const (
	hookSchemaFile     = "schema/hook.schema.json"
	settingsSchemaFile = "schema/settings.schema.json"
)

//go:embed schema/*.json
var schemaFS embed.FS

// Args are extra arguments for the meson steps.
type Args struct {
	// Setup is appended to "meson setup".
	Setup []string `json:"setup"`
	// Compile is passed to ninja or "meson compile".
	Compile []string `json:"compile"`
	// Install holds "meson install" arguments.
	// Only --tags and --skip-subprojects have an effect.
	Install []string `json:"install"`
}

// Hook is the [tool.hatch.build.hooks.meson] table.
type Hook struct {
	// Meson is the meson command. Empty means "meson" on PATH.
	Meson      string `json:"meson"`
	LimitedAPI bool   `json:"limited_api"`
	Args       Args   `json:"args"`

	// Options common to every hatch build hook.
	// They are handled by the packaging tool.
	Dependencies               []string `json:"dependencies"`
	RequireRuntimeDependencies bool     `json:"require_runtime_dependencies"`
	RequireRuntimeFeatures     []string `json:"require_runtime_features"`
	EnableByDefault            *bool    `json:"enable_by_default"`
}

// Settings are the config settings given to the build frontend,
// for example with "pip wheel -C setup-args=-Dfoo=bar".
type Settings struct {
	BuildDir        string     `json:"build_dir"`
	EditableVerbose Bool       `json:"editable_verbose"`
	SetupArgs       StringList `json:"setup_args"`
	CompileArgs     StringList `json:"compile_args"`
	InstallArgs     StringList `json:"install_args"`
}

// Merge appends the command-line arguments in s after the ones in h.
func (h *Hook) Merge(s *Settings) {
	h.Args.Setup = append(h.Args.Setup, s.SetupArgs...)
	h.Args.Compile = append(h.Args.Compile, s.CompileArgs...)
	h.Args.Install = append(h.Args.Install, s.InstallArgs...)
}

// StringList is either a single string or a list of strings.
type StringList []string

// UnmarshalJSONFrom decodes a string, a list of strings, or null.
func (l *StringList) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	switch dec.PeekKind() {
	case 'n':
		_, err := dec.ReadToken()
		*l = nil
		return err
	case '"':
		var s string
		if err := jsonv2.UnmarshalDecode(dec, &s); err != nil {
			return err
		}
		*l = StringList{s}
		return nil
	default:
		return jsonv2.UnmarshalDecode(dec, (*[]string)(l))
	}
}

// Bool is a boolean that also accepts its string spelling,
// since config settings always arrive as strings.
type Bool bool

// UnmarshalJSONFrom decodes a JSON boolean or a string like "true" or "0".
// An empty string is false.
func (b *Bool) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	if dec.PeekKind() != '"' {
		return jsonv2.UnmarshalDecode(dec, (*bool)(b))
	}
	var s string
	if err := jsonv2.UnmarshalDecode(dec, &s); err != nil {
		return err
	}
	if s == "" {
		*b = false
		return nil
	}
	v, err := strconv.ParseBool(s)
	if err != nil {
		return err
	}
	*b = Bool(v)
	return nil
}

var compileSchemas = sync.OnceValues(func() (map[string]*jsonschema.Schema, error) {
	compiler := jsonschema.NewCompiler()
	schemas := make(map[string]*jsonschema.Schema)
	for _, name := range []string{hookSchemaFile, settingsSchemaFile} {
		data, err := schemaFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("load schema: %w", err)
		}
		id := "inmemory://" + name
		if err := compiler.AddResource(id, bytes.NewReader(data)); err != nil {
			return nil, fmt.Errorf("add schema resource %s: %w", name, err)
		}
		schemas[name], err = compiler.Compile(id)
		if err != nil {
			return nil, fmt.Errorf("compile schema %s: %w", name, err)
		}
	}
	return schemas, nil
})

// decode validates raw against the named schema
// and then strictly decodes it into dst.
// Keys have their dashes replaced by underscores first.
func decode(schemaFile string, raw map[string]any, dst any) error {
	raw = rmdashes(raw)
	data, err := jsonv2.Marshal(raw, jsonv2.Deterministic(true))
	if err != nil {
		return err
	}
	// Validate the JSON data model rather than whatever types the
	// TOML decoder produced.
	var payload any
	if err := jsonv2.Unmarshal(data, &payload); err != nil {
		return err
	}
	schemas, err := compileSchemas()
	if err != nil {
		return err
	}
	if err := schemas[schemaFile].Validate(payload); err != nil {
		return err
	}
	return jsonv2.Unmarshal(data, dst, jsonv2.RejectUnknownMembers(true))
}

// rmdashes returns a copy of m with "-" replaced by "_" in keys,
// recursing into nested tables.
func rmdashes(m map[string]any) map[string]any {
	out := make(map[string]any, len(m))
	for k, v := range m {
		if sub, ok := v.(map[string]any); ok {
			v = rmdashes(sub)
		}
		out[strings.ReplaceAll(k, "-", "_")] = v
	}
	return out
}
