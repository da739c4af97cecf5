// Package meson drives meson and ninja for a single build directory.
package meson

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"sync"

	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/pkgs/buildsys"
	"zombiezen.com/go/log"
)

// File names inside the build directory.
const (
	NativeFileName = "hatch-meson-native-file.ini"
	CrossFileName  = "hatch-meson-cross-file.ini"
)

// Options configure [New].
type Options struct {
	// Python is the target interpreter. It goes into the native file
	// and runs meson when the command is a .py script.
	Python string
	// Meson is the configured meson command, if any.
	Meson string
	// Ninja is the ninja executable used for builds.
	// It may be empty when only [*Meson.ProjectInfo] is needed.
	Ninja string
}

// Meson wraps the meson setup, compile and introspection steps.
type Meson struct {
	cmd       []string
	python    string
	ninja     string
	sourceDir string
	buildDir  string
	env       map[string]string
	goos      string

	// Output receives the output of meson and ninja.
	// It defaults to os.Stderr so stdout stays free for results.
	Output io.Writer

	mu   sync.Mutex
	info map[string][]byte
}

var _ buildsys.BuildSystem = (*Meson)(nil)

// New locates meson and returns a helper for it.
func New(ctx context.Context, opts Options) (*Meson, error) {
	cmd, err := Command(ctx, opts.Python, opts.Meson)
	if err != nil {
		return nil, err
	}
	return &Meson{
		cmd:    cmd,
		python: opts.Python,
		ninja:  opts.Ninja,
		env:    map[string]string{},
		goos:   runtime.GOOS,
		Output: os.Stderr,
	}, nil
}

func (m *Meson) Source(dir string) {
	m.sourceDir = dir
}

func (m *Meson) BuildDir(dir string) {
	m.buildDir = dir
}

// Env sets a variable for the child processes.
func (m *Meson) Env(key, val string) {
	if m.env == nil {
		m.env = map[string]string{}
	}
	m.env[key] = val
}

// OutputDir returns the build directory.
func (m *Meson) OutputDir() string {
	return m.buildDir
}

// NativeFile returns the path of the generated native file.
func (m *Meson) NativeFile() string {
	return filepath.Join(m.buildDir, NativeFileName)
}

// IsConfigured reports whether the build directory holds a completed
// meson setup. meson writes meson-private/coredata.dat last and removes it
// when setup fails.
func (m *Meson) IsConfigured() bool {
	info, err := os.Stat(filepath.Join(m.buildDir, "meson-private", "coredata.dat"))
	return err == nil && info.Mode().IsRegular()
}

// Configure runs "meson setup", reconfiguring an existing build directory.
// args are user options placed before the native file,
// which comes last so that its python wins.
// When the directory is configured with the same arguments as last time,
// setup is skipped.
func (m *Meson) Configure(ctx context.Context, args ...string) error {
	if err := os.MkdirAll(m.buildDir, 0o755); err != nil {
		return hookerr.WrapBuild(err, "create build directory")
	}
	native := fmt.Sprintf("\n[binaries]\npython = '%s'\n", m.python)
	if err := os.WriteFile(m.NativeFile(), []byte(native), 0o644); err != nil {
		return hookerr.WrapBuild(err, "write native file")
	}

	setupArgs := []string{
		m.sourceDir,
		m.buildDir,
		"-Dbuildtype=release",
		"-Db_ndebug=if-release",
		"-Db_vscrt=md",
	}
	setupArgs = append(setupArgs, args...)
	setupArgs = append(setupArgs, "--native-file="+m.NativeFile())

	key := append(append(append([]string{}, m.cmd...), "python="+m.python), setupArgs...)
	reconfigure := m.IsConfigured()
	if reconfigure {
		if cache, err := m.loadCache(); err == nil && cache.matches(key) {
			log.Infof(ctx, "Build directory %s is up to date, skipping meson setup", m.buildDir)
			return nil
		}
		setupArgs = append([]string{"--reconfigure"}, setupArgs...)
	}

	argv := append(append(append([]string{}, m.cmd...), "setup"), setupArgs...)
	if err := m.run(ctx, argv); err != nil {
		return err
	}
	m.mu.Lock()
	m.info = nil
	m.mu.Unlock()
	if err := m.saveCache(newConfigureCache(key)); err != nil {
		log.Warnf(ctx, "Could not save configure cache: %v", err)
	}
	return nil
}

// Build runs ninja in the build directory. On Windows "meson compile" is
// used instead so that it can set up the MSVC environment; args are then
// handed to ninja through --ninja-args.
func (m *Meson) Build(ctx context.Context, args ...string) error {
	return m.run(ctx, m.buildCommand(args))
}

func (m *Meson) buildCommand(args []string) []string {
	if m.goos == "windows" {
		argv := append(append([]string{}, m.cmd...), "compile")
		if len(args) > 0 {
			argv = append(argv, "--ninja-args="+pyListRepr(args))
		}
		return argv
	}
	return append([]string{m.ninja}, args...)
}

// Introspect reads meson-info/<name>.json from the build directory.
// Documents are read once per configure.
func (m *Meson) Introspect(name string) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if data, ok := m.info[name]; ok {
		return data, nil
	}
	data, err := os.ReadFile(filepath.Join(m.buildDir, "meson-info", name+".json"))
	if err != nil {
		return nil, hookerr.WrapBuild(err, "read meson introspection data")
	}
	if m.info == nil {
		m.info = make(map[string][]byte)
	}
	m.info[name] = data
	return data, nil
}

// ProjectInfo runs "meson introspect meson.build --projectinfo"
// in the source directory.
func (m *Meson) ProjectInfo(ctx context.Context) ([]byte, error) {
	argv := append(append([]string{}, m.cmd...), "introspect", "meson.build", "--projectinfo")
	log.Debugf(ctx, "+ %s", strings.Join(argv, " "))
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = m.sourceDir
	c.Env = mergeEnv(os.Environ(), m.env)
	stdout := new(bytes.Buffer)
	c.Stdout = stdout
	c.Stderr = io.Discard
	if err := c.Run(); err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return nil, hookerr.Buildf("meson introspect failed: %s", stdout)
		}
		return nil, hookerr.WrapBuild(err, "meson introspect failed")
	}
	return stdout.Bytes(), nil
}

func (m *Meson) run(ctx context.Context, argv []string) error {
	// Logged before the command starts so it precedes the tool's output.
	log.Infof(ctx, "+ %s", strings.Join(argv, " "))
	c := exec.CommandContext(ctx, argv[0], argv[1:]...)
	c.Dir = m.buildDir
	c.Stdout = m.Output
	c.Stderr = m.Output
	if len(m.env) > 0 {
		c.Env = mergeEnv(os.Environ(), m.env)
	}
	if err := c.Run(); err != nil {
		return hookerr.WrapBuild(err, filepath.Base(argv[0])+" failed")
	}
	return nil
}

// mergeEnv returns base with the variables in override replaced or added.
func mergeEnv(base []string, override map[string]string) []string {
	out := make([]string, 0, len(base)+len(override))
	for _, kv := range base {
		k, _, _ := strings.Cut(kv, "=")
		if _, ok := override[k]; !ok {
			out = append(out, kv)
		}
	}
	for k, v := range override {
		out = append(out, k+"="+v)
	}
	return out
}

// WriteCrossFile writes a cross file that builds for the given macOS
// architecture with the default compilers.
func WriteCrossFile(path, arch string) error {
	family := arch
	if arch == "arm64" {
		family = "aarch64"
	}
	sb := new(strings.Builder)
	sb.WriteString("\n[binaries]\n")
	for _, bin := range [...]struct{ lang, compiler string }{
		{"c", "cc"},
		{"cpp", "c++"},
		{"objc", "cc"},
		{"objcpp", "c++"},
	} {
		fmt.Fprintf(sb, "%s = %s\n", bin.lang, pyListRepr([]string{bin.compiler, "-arch", arch}))
	}
	sb.WriteString("[host_machine]\n")
	sb.WriteString("system = 'darwin'\n")
	sb.WriteString("cpu = ")
	pyStrRepr(sb, arch)
	sb.WriteString("\ncpu_family = ")
	pyStrRepr(sb, family)
	sb.WriteString("\nendian = 'little'\n")
	return os.WriteFile(path, []byte(sb.String()), 0o644)
}
