package meson

import (
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/testcontext"
	"zombiezen.com/go/log/testlog"
)

func TestVersionAtLeast(t *testing.T) {
	tests := []struct {
		version string
		min     string
		want    bool
	}{
		{"1.4.0", MinMesonVersion, true},
		{"0.64.0", MinMesonVersion, true},
		{"0.63.3", MinMesonVersion, false},
		{"1.11.1.git.kitware.jobserver-1", MinNinjaVersion, true},
		{"1.8", MinNinjaVersion, false},
		{"1.9", MinNinjaVersion, true},
		{"1.8.2", MinNinjaVersion, true},
		{"", MinNinjaVersion, false},
		{"garbage", MinNinjaVersion, false},
		{"1.10.0rc1", MinNinjaVersion, false},
	}
	for _, test := range tests {
		if got := versionAtLeast(test.version, test.min); got != test.want {
			t.Errorf("versionAtLeast(%q, %q) = %t, want %t", test.version, test.min, got, test.want)
		}
	}
}

func TestPyListRepr(t *testing.T) {
	tests := []struct {
		args []string
		want string
	}{
		{[]string{"-j4"}, "['-j4']"},
		{[]string{"-j", "4", "-v"}, "['-j', '4', '-v']"},
		{[]string{"it's"}, `["it's"]`},
		{[]string{`say "hi" it's`}, `['say "hi" it\'s']`},
		{[]string{`C:\build`}, `['C:\\build']`},
		{[]string{"a\tb\n"}, `['a\tb\n']`},
		{[]string{"caf\u00e9"}, "['caf\u00e9']"},
	}
	for _, test := range tests {
		if got := pyListRepr(test.args); got != test.want {
			t.Errorf("pyListRepr(%q) = %s, want %s", test.args, got, test.want)
		}
	}
}

func TestBuildCommand(t *testing.T) {
	m := &Meson{cmd: []string{"python3", "/src/meson.py"}, ninja: "/usr/bin/ninja", goos: "linux"}
	if diff := cmp.Diff([]string{"/usr/bin/ninja", "-j4"}, m.buildCommand([]string{"-j4"})); diff != "" {
		t.Errorf("linux (-want +got):\n%s", diff)
	}
	m.goos = "windows"
	want := []string{"python3", "/src/meson.py", "compile", "--ninja-args=['-j4', '-v']"}
	if diff := cmp.Diff(want, m.buildCommand([]string{"-j4", "-v"})); diff != "" {
		t.Errorf("windows (-want +got):\n%s", diff)
	}
	want = []string{"python3", "/src/meson.py", "compile"}
	if diff := cmp.Diff(want, m.buildCommand(nil)); diff != "" {
		t.Errorf("windows without args (-want +got):\n%s", diff)
	}
}

func TestIntrospect(t *testing.T) {
	dir := t.TempDir()
	infoDir := filepath.Join(dir, "meson-info")
	if err := os.MkdirAll(infoDir, 0o755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(infoDir, "intro-buildoptions.json")
	if err := os.WriteFile(path, []byte(`[]`), 0o644); err != nil {
		t.Fatal(err)
	}
	m := &Meson{buildDir: dir}
	got, err := m.Introspect("intro-buildoptions")
	if err != nil {
		t.Fatal(err)
	}
	if string(got) != "[]" {
		t.Errorf("Introspect = %q, want %q", got, "[]")
	}

	// Later reads come from memory.
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if _, err := m.Introspect("intro-buildoptions"); err != nil {
		t.Errorf("second Introspect: %v", err)
	}
	if _, err := m.Introspect("intro-install_plan"); !hookerr.IsBuild(err) {
		t.Errorf("Introspect(missing) error = %v, want build error", err)
	}
}

const fakeMeson = `#!/bin/sh
if [ "$1" = "--version" ]; then
	echo "${FAKE_MESON_VERSION:-1.4.0}"
	exit 0
fi
echo "$@" >> "$FAKE_MESON_LOG"
if [ "$1" = "introspect" ]; then
	if [ -n "$FAKE_MESON_FAIL" ]; then
		echo "ERROR: no meson.build"
		exit 1
	fi
	echo '{"descriptive_name": "demo", "version": "1.2.3"}'
fi
`

// installFake writes an executable shell script into a fresh directory.
func installFake(t *testing.T, name, script string) string {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake tools are shell scripts")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not found in PATH")
	}
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, []byte(script), 0o755); err != nil {
		t.Fatal(err)
	}
	return path
}

func readLog(t *testing.T, path string) []string {
	t.Helper()
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return nil
	}
	if err != nil {
		t.Fatal(err)
	}
	return strings.Split(strings.TrimSuffix(string(data), "\n"), "\n")
}

func TestCommand(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	fake := installFake(t, "meson", fakeMeson)

	t.Setenv("MESON", fake)
	cmd, err := Command(ctx, "python3", "ignored-because-of-env")
	if err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff([]string{fake}, cmd); diff != "" {
		t.Errorf("Command (-want +got):\n%s", diff)
	}

	t.Setenv("FAKE_MESON_VERSION", "0.63.0")
	_, err = Command(ctx, "python3", "")
	if !hookerr.IsConfig(err) || !strings.Contains(err.Error(), "found 0.63.0") {
		t.Errorf("old meson error = %v", err)
	}

	t.Setenv("MESON", filepath.Join(t.TempDir(), "missing.py"))
	if _, err := Command(ctx, "python3", ""); !hookerr.IsConfig(err) {
		t.Errorf("missing .py error = %v, want configuration error", err)
	}

	t.Setenv("MESON", filepath.Join(t.TempDir(), "no-such-meson"))
	if _, err := Command(ctx, "python3", ""); !hookerr.IsConfig(err) {
		t.Errorf("missing executable error = %v, want configuration error", err)
	}
}

func TestFindNinja(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	oldNinja := installFake(t, "ninja", "#!/bin/sh\necho 1.7.0\n")
	goodSamu := filepath.Join(filepath.Dir(oldNinja), "samu")
	if err := os.WriteFile(goodSamu, []byte("#!/bin/sh\necho 1.9\n"), 0o755); err != nil {
		t.Fatal(err)
	}

	t.Setenv("NINJA", "")
	t.Setenv("PATH", filepath.Dir(oldNinja))
	got, ok := FindNinja(ctx)
	if !ok || got != goodSamu {
		t.Errorf("FindNinja() = %q, %t; want %q, true", got, ok, goodSamu)
	}

	t.Setenv("NINJA", oldNinja)
	if got, ok := FindNinja(ctx); ok {
		t.Errorf("FindNinja() with old $NINJA = %q, want not found", got)
	}
}

func TestConfigure(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	fake := installFake(t, "meson", fakeMeson)
	logPath := filepath.Join(t.TempDir(), "log")
	t.Setenv("MESON", fake)
	t.Setenv("FAKE_MESON_LOG", logPath)

	src := t.TempDir()
	build := filepath.Join(t.TempDir(), "build")
	m, err := New(ctx, Options{Python: "/usr/bin/python3", Ninja: "ninja"})
	if err != nil {
		t.Fatal(err)
	}
	m.Output = nil
	m.Source(src)
	m.BuildDir(build)

	if err := m.Configure(ctx, "-Dfoo=1"); err != nil {
		t.Fatal(err)
	}
	native := "--native-file=" + filepath.Join(build, NativeFileName)
	want := []string{
		"setup " + src + " " + build + " -Dbuildtype=release -Db_ndebug=if-release -Db_vscrt=md -Dfoo=1 " + native,
	}
	if diff := cmp.Diff(want, readLog(t, logPath)); diff != "" {
		t.Errorf("log after setup (-want +got):\n%s", diff)
	}
	data, err := os.ReadFile(m.NativeFile())
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(data), "[binaries]\npython = '/usr/bin/python3'\n") {
		t.Errorf("native file = %q", data)
	}

	// Pretend setup completed.
	private := filepath.Join(build, "meson-private")
	if err := os.MkdirAll(private, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(private, "coredata.dat"), nil, 0o644); err != nil {
		t.Fatal(err)
	}
	if err := m.Configure(ctx, "-Dfoo=1"); err != nil {
		t.Fatal(err)
	}
	if diff := cmp.Diff(want, readLog(t, logPath)); diff != "" {
		t.Errorf("unchanged arguments ran setup again (-want +got):\n%s", diff)
	}

	if err := m.Configure(ctx, "-Dfoo=2"); err != nil {
		t.Fatal(err)
	}
	want = append(want,
		"setup --reconfigure "+src+" "+build+" -Dbuildtype=release -Db_ndebug=if-release -Db_vscrt=md -Dfoo=2 "+native)
	if diff := cmp.Diff(want, readLog(t, logPath)); diff != "" {
		t.Errorf("log after reconfigure (-want +got):\n%s", diff)
	}
}

func TestBuildFailure(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	ninja := installFake(t, "ninja", "#!/bin/sh\nexit 3\n")
	m := &Meson{ninja: ninja, buildDir: t.TempDir(), goos: "linux"}
	err := m.Build(ctx, "-j1")
	if !hookerr.IsBuild(err) {
		t.Fatalf("Build error = %v, want build error", err)
	}
	var exitErr *exec.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitCode() != 3 {
		t.Errorf("Build error = %v, want exit status 3", err)
	}
}

func TestProjectInfo(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()
	fake := installFake(t, "meson", fakeMeson)
	t.Setenv("FAKE_MESON_LOG", filepath.Join(t.TempDir(), "log"))
	m := &Meson{cmd: []string{fake}, sourceDir: t.TempDir()}

	got, err := m.ProjectInfo(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(string(got), `"descriptive_name": "demo"`) {
		t.Errorf("ProjectInfo = %s", got)
	}

	t.Setenv("FAKE_MESON_FAIL", "1")
	_, err = m.ProjectInfo(ctx)
	if !hookerr.IsBuild(err) || !strings.HasPrefix(err.Error(), "meson introspect failed: ERROR: no meson.build") {
		t.Errorf("ProjectInfo error = %v", err)
	}
}

func TestMergeEnv(t *testing.T) {
	base := []string{"PATH=/usr/bin", "NINJA=/old/ninja", "HOME=/root", "EMPTY="}
	got := mergeEnv(base, map[string]string{
		"NINJA":                 "/usr/bin/ninja",
		"_PYTHON_HOST_PLATFORM": "macosx-14.0-x86_64",
	})
	want := []string{
		"EMPTY=",
		"HOME=/root",
		"NINJA=/usr/bin/ninja",
		"PATH=/usr/bin",
		"_PYTHON_HOST_PLATFORM=macosx-14.0-x86_64",
	}
	if diff := cmp.Diff(want, got, cmpopts.SortSlices(func(a, b string) bool { return a < b })); diff != "" {
		t.Errorf("mergeEnv (-want +got):\n%s", diff)
	}
	if base[1] != "NINJA=/old/ninja" {
		t.Errorf("base modified: %q", base)
	}
}

func TestMain(m *testing.M) {
	testlog.Main(nil)
	os.Exit(m.Run())
}
