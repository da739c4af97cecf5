// Package buildhook builds a meson project for a wheel and reports
// what the packaging tool has to add to it.
package buildhook

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/virtuald/hatch-meson/internal/config"
	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/installplan"
	"github.com/virtuald/hatch-meson/internal/pyenv"
	"github.com/virtuald/hatch-meson/internal/wheel"
	"github.com/virtuald/hatch-meson/pkgs/buildsys"
	"github.com/virtuald/hatch-meson/pkgs/buildsys/meson"
	"zombiezen.com/go/log"
)

// WheelTarget is the only build target the hook acts on.
const WheelTarget = "wheel"

// BuildData is what the hook hands back to the packaging tool.
type BuildData struct {
	// SharedScripts maps build tree paths to script names.
	SharedScripts map[string]string `json:"shared_scripts"`
	// SharedData maps build tree paths to paths below the data directory.
	SharedData map[string]string `json:"shared_data"`
	// ForceInclude maps files to their path inside the wheel.
	ForceInclude map[string]string `json:"force_include"`
	// Artifacts lists the files copied into the package source tree.
	Artifacts []string `json:"artifacts"`
	// PurePython is set to false when the wheel is platform specific.
	PurePython *bool `json:"pure_python,omitzero"`
	Tag        string `json:"tag,omitzero"`
	// Exclude holds patterns to append to the exclude list
	// named by ExcludeScope ("wheel" or "build").
	Exclude      []string `json:"exclude,omitzero"`
	ExcludeScope string   `json:"exclude_scope,omitzero"`
}

// NewBuildData returns empty build data.
func NewBuildData() *BuildData {
	return &BuildData{
		SharedScripts: make(map[string]string),
		SharedData:    make(map[string]string),
		ForceInclude:  make(map[string]string),
		Artifacts:     []string{},
	}
}

// MarshalIndent encodes d for the packaging tool.
func (d *BuildData) MarshalIndent() ([]byte, error) {
	return jsonv2.Marshal(d, jsonv2.Deterministic(true), jsontext.Multiline(true), jsontext.WithIndent("  "))
}

// Hook runs meson for one project.
type Hook struct {
	// Root is the project root holding pyproject.toml and meson.build.
	Root string
	// Python is the interpreter the wheel targets.
	Python string
	// Target is the packaging target being built.
	// The hook does nothing for targets other than [WheelTarget].
	Target string
	// Settings are the build frontend's config settings, if any.
	Settings *config.Settings

	// Runtime describes Python. It is probed when nil.
	Runtime *pyenv.Info
	// NewBuildSystem creates the build system.
	// ninja is empty when nothing will be compiled.
	// Defaults to meson.
	NewBuildSystem func(ctx context.Context, python, mesonCmd, ninja string) (buildsys.BuildSystem, error)
	// FindNinja locates ninja. Defaults to [meson.FindNinja].
	FindNinja func(ctx context.Context) (string, bool)
}

func newMeson(ctx context.Context, python, mesonCmd, ninja string) (buildsys.BuildSystem, error) {
	m, err := meson.New(ctx, meson.Options{Python: python, Meson: mesonCmd, Ninja: ninja})
	if err != nil {
		return nil, err
	}
	return m, nil
}

func (h *Hook) findNinja(ctx context.Context) (string, bool) {
	if h.FindNinja != nil {
		return h.FindNinja(ctx)
	}
	return meson.FindNinja(ctx)
}

// build is the state of one build. Nothing outlives it.
type build struct {
	project  *config.Project
	cfg      config.Hook
	rt       *pyenv.Info
	buildDir string
	bs       buildsys.BuildSystem

	limitedAPI bool
	// crossArch is the macOS architecture requested by $ARCHFLAGS
	// when it differs from the interpreter's.
	crossArch string
}

// start resolves configuration, the interpreter and the build system.
// withNinja requires a usable ninja.
func (h *Hook) start(ctx context.Context, withNinja bool) (*build, error) {
	project, err := config.LoadProject(h.Root)
	if err != nil {
		return nil, err
	}
	settings := h.Settings
	if settings == nil {
		settings = new(config.Settings)
	}
	log.Debugf(ctx, "Config settings: %v", settings)
	b := &build{
		project: project,
		cfg:     project.Hook,
	}
	// Command-line arguments take precedence, so they go last.
	b.cfg.Merge(settings)
	b.limitedAPI = b.cfg.LimitedAPI

	rt := h.Runtime
	if rt == nil {
		rt, err = pyenv.Probe(ctx, h.Python)
		if err != nil {
			return nil, err
		}
	}
	// The cross target belongs to this build only.
	b.rt = new(pyenv.Info)
	*b.rt = *rt
	var host string
	b.crossArch, host, err = macOSCrossTarget(b.rt)
	if err != nil {
		return nil, err
	}
	if host != "" {
		b.rt.HostPlatform = host
	}
	if settings.BuildDir != "" {
		b.buildDir = settings.BuildDir
	} else {
		b.buildDir = filepath.Join(h.Root, "build", b.rt.ABITag())
	}

	ninja := ""
	if withNinja {
		var ok bool
		ninja, ok = h.findNinja(ctx)
		if !ok {
			return nil, hookerr.Configf("Could not find ninja version %s or newer.", meson.MinNinjaVersion)
		}
	}
	newBS := h.NewBuildSystem
	if newBS == nil {
		newBS = newMeson
	}
	python := h.Python
	if b.rt.Executable != "" {
		python = b.rt.Executable
	}
	b.bs, err = newBS(ctx, python, b.cfg.Meson, ninja)
	if err != nil {
		return nil, err
	}
	if ninja != "" && os.Getenv("NINJA") == "" {
		b.bs.Env("NINJA", ninja)
	}
	if b.crossArch != "" {
		b.bs.Env("_PYTHON_HOST_PLATFORM", b.rt.HostPlatform)
	}
	b.bs.Source(h.Root)
	b.bs.BuildDir(b.buildDir)
	return b, nil
}

// Initialize configures and builds the project and records the installed
// files in data. version is the packaging tool's build version
// ("standard" or "editable"). data and the package source tree are only
// touched once the wheel layout and tag are known to be valid.
func (h *Hook) Initialize(ctx context.Context, version string, data *BuildData) error {
	target := h.Target
	if target == "" {
		target = WheelTarget
	}
	if target != WheelTarget {
		log.Debugf(ctx, "Nothing to do for target %s", target)
		return nil
	}
	log.Debugf(ctx, "Building %s wheel in %s", version, h.Root)

	b, err := h.start(ctx, true)
	if err != nil {
		return err
	}
	if err := os.MkdirAll(b.buildDir, 0o755); err != nil {
		return hookerr.WrapBuild(err, "create build directory")
	}
	setupArgs := b.cfg.Args.Setup
	if b.crossArch != "" {
		log.Infof(ctx, "Cross compiling for %s (%s)", b.crossArch, b.rt.HostPlatform)
		crossFile := filepath.Join(b.buildDir, meson.CrossFileName)
		if err := meson.WriteCrossFile(crossFile, b.crossArch); err != nil {
			return hookerr.WrapBuild(err, "write cross file")
		}
		setupArgs = append(slices.Clip(setupArgs), "--cross-file", crossFile)
	}
	if err := b.bs.Configure(ctx, setupArgs...); err != nil {
		return err
	}
	if err := b.checkLimitedAPI(); err != nil {
		return err
	}
	if err := b.bs.Build(ctx, b.cfg.Args.Compile...); err != nil {
		return err
	}

	bs, err := b.installPlan(ctx)
	if err != nil {
		return err
	}
	if err := wheel.CheckLayout(bs); err != nil {
		return err
	}
	tag, err := wheel.ComputeTag(bs, b.rt, b.limitedAPI)
	if err != nil {
		return err
	}
	pure, err := wheel.IsPure(bs)
	if err != nil {
		return err
	}

	pkgsrc := h.Root
	if len(b.project.PackageSources) > 0 {
		pkgsrc = filepath.Join(h.Root, filepath.FromSlash(b.project.PackageSources[0]))
	}
	// Built modules are copied next to the package sources so that other
	// hooks and editable installs see them.
	libs := slices.Concat(bs[wheel.Purelib], bs[wheel.Platlib])
	copied := make([]string, 0, len(libs))
	for _, e := range libs {
		dst := filepath.Join(pkgsrc, filepath.FromSlash(e.Destination))
		copied = append(copied, dst)
		if dst == e.Source {
			continue
		}
		if err := copyFile(dst, e.Source); err != nil {
			return hookerr.WrapBuild(err, "copy build artifact")
		}
	}

	for _, e := range bs[wheel.Scripts] {
		data.SharedScripts[e.Source] = e.Destination
	}
	for _, e := range bs[wheel.Data] {
		data.SharedData[e.Source] = e.Destination
	}
	for i, e := range libs {
		data.ForceInclude[copied[i]] = e.Destination
		data.Artifacts = append(data.Artifacts, filepath.ToSlash(copied[i]))
	}
	data.Exclude = append(data.Exclude, "meson.build")
	data.ExcludeScope = b.project.ExcludeScope
	if !pure {
		data.PurePython = new(bool)
	}
	data.Tag = tag.Format(b.rt)
	log.Infof(ctx, "Wheel tag: %s", data.Tag)
	return nil
}

// checkLimitedAPI drops the limited API request when the project disables
// python.allow_limited_api, and rejects free-threaded interpreters.
func (b *build) checkLimitedAPI() error {
	if b.limitedAPI {
		raw, err := b.bs.Introspect("intro-buildoptions")
		if err != nil {
			return err
		}
		allowed, err := buildOptionTruthy(raw, "python.allow_limited_api")
		if err != nil {
			return err
		}
		b.limitedAPI = allowed
	}
	if b.limitedAPI && b.rt.GILDisabled {
		return hookerr.Buildf("The package targets Python's Limited API, which is not supported by free-threaded CPython. " +
			`The "python.allow_limited_api" Meson build option may be used to override the package default.`)
	}
	return nil
}

// installPlan reads, filters and maps meson's install plan.
func (b *build) installPlan(ctx context.Context) (wheel.Buckets, error) {
	raw, err := b.bs.Introspect("intro-install_plan")
	if err != nil {
		return nil, err
	}
	plan, err := installplan.Parse(raw)
	if err != nil {
		return nil, err
	}
	sel, err := installplan.ParseInstallArgs(b.cfg.Args.Install)
	if err != nil {
		return nil, err
	}
	return installplan.Map(ctx, plan.Filter(sel))
}

type buildOption struct {
	Name  string         `json:"name"`
	Value jsontext.Value `json:"value"`
}

// buildOptionTruthy reports whether the named option is present with a
// value Python would consider true.
func buildOptionTruthy(raw []byte, name string) (bool, error) {
	var options []buildOption
	if err := jsonv2.Unmarshal(raw, &options); err != nil {
		return false, hookerr.WrapBuild(err, "malformed build options")
	}
	for _, opt := range options {
		if opt.Name != name {
			continue
		}
		var v any
		if err := jsonv2.Unmarshal(opt.Value, &v); err != nil {
			return false, hookerr.WrapBuild(err, fmt.Sprintf("malformed value for build option %s", name))
		}
		switch v := v.(type) {
		case bool:
			return v, nil
		case string:
			return v != "", nil
		case float64:
			return v != 0, nil
		case []any:
			return len(v) > 0, nil
		case map[string]any:
			return len(v) > 0, nil
		default:
			return false, nil
		}
	}
	return false, nil
}

// copyFile copies the contents and permission bits of src to dst.
func copyFile(dst, src string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()
	info, err := in.Stat()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(dst), 0o755); err != nil {
		return err
	}
	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, info.Mode().Perm())
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return err
	}
	return os.Chmod(dst, info.Mode().Perm())
}
