package buildhook

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/virtuald/hatch-meson/internal/config"
	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/pyenv"
	"github.com/virtuald/hatch-meson/internal/testcontext"
	"github.com/virtuald/hatch-meson/pkgs/buildsys/meson"
)

func TestParseArchFlags(t *testing.T) {
	tests := []struct {
		archflags string
		want      string
		wantErr   string
	}{
		{archflags: "-arch arm64", want: "arm64"},
		{archflags: "-arch x86_64 -arch x86_64", want: "x86_64"},
		{archflags: "-arch=arm64", want: "arm64"},
		{archflags: "-arch arm64 -arch x86_64", wantErr: "Multi-architecture builds are not supported"},
		{archflags: "-arch arm64 -O2", wantErr: "Unknown flag specified"},
		{archflags: "-arch", wantErr: "Unknown flag specified"},
	}
	for _, test := range tests {
		got, err := parseArchFlags(test.archflags)
		if test.wantErr != "" {
			if !hookerr.IsConfig(err) || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("parseArchFlags(%q) error = %v, want %q", test.archflags, err, test.wantErr)
			}
			continue
		}
		if err != nil || got != test.want {
			t.Errorf("parseArchFlags(%q) = %q, %v; want %q, <nil>", test.archflags, got, err, test.want)
		}
	}
}

func TestMacOSCrossTarget(t *testing.T) {
	rt := &pyenv.Info{Platform: "macosx-10.9-x86_64", MacVersion: "14.2", MacArch: "x86_64"}
	tests := []struct {
		name      string
		rt        *pyenv.Info
		archflags string
		host      string
		wantArch  string
		wantHost  string
		wantErr   bool
	}{
		{name: "NotMacOS", rt: &pyenv.Info{Platform: "linux-x86_64"}, archflags: "-arch arm64"},
		{name: "NoArchflags", rt: rt},
		{name: "NativeArch", rt: rt, archflags: "-arch x86_64"},
		{name: "Cross", rt: rt, archflags: "-arch arm64", wantArch: "arm64", wantHost: "macosx-14.2-arm64"},
		{name: "HostSet", rt: rt, archflags: "-arch arm64", host: "macosx-11.0-arm64", wantArch: "arm64", wantHost: "macosx-11.0-arm64"},
		{name: "Disagree", rt: rt, archflags: "-arch arm64", host: "macosx-11.0-x86_64", wantErr: true},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			t.Setenv("ARCHFLAGS", test.archflags)
			t.Setenv("_PYTHON_HOST_PLATFORM", test.host)
			arch, host, err := macOSCrossTarget(test.rt)
			if test.wantErr {
				if !hookerr.IsConfig(err) || !strings.Contains(err.Error(), "do not agree") {
					t.Errorf("macOSCrossTarget error = %v, want disagreement", err)
				}
				return
			}
			if err != nil || arch != test.wantArch || host != test.wantHost {
				t.Errorf("macOSCrossTarget = %q, %q, %v; want %q, %q, <nil>", arch, host, err, test.wantArch, test.wantHost)
			}
		})
	}
}

func TestInitializeMacOSCross(t *testing.T) {
	ctx, cancel := testcontext.New(t)
	defer cancel()

	f := newFixture(t, "", nil)
	t.Setenv("MACOSX_DEPLOYMENT_TARGET", "")
	rt, err := pyenv.Parse(mustJSON(t, map[string]any{
		"implementation": "cpython",
		"major":          3,
		"minor":          11,
		"ext_suffix":     ".cpython-311-darwin.so",
		"platform":       "macosx-14.0-arm64",
		"mac_version":    "14.0",
		"mac_arch":       "arm64",
	}))
	if err != nil {
		t.Fatal(err)
	}
	f.hook.Runtime = rt
	ext := f.path("ext.cpython-311-darwin.so")
	writeFile(t, ext, elfHeader, 0o755)
	f.fake.info["intro-install_plan"] = mustJSON(t, map[string]map[string]planEntry{
		"targets": {ext: {Destination: "{py_platlib}/ext.cpython-311-darwin.so", Tag: tagged("runtime")}},
	})

	t.Setenv("ARCHFLAGS", "-arch x86_64")
	bd := NewBuildData()
	if err := f.hook.Initialize(ctx, "standard", bd); err != nil {
		t.Fatal(err)
	}
	if want := "cp311-cp311-macosx_14_0_x86_64"; bd.Tag != want {
		t.Errorf("cross Tag = %q, want %q", bd.Tag, want)
	}
	if got, want := f.fake.env["_PYTHON_HOST_PLATFORM"], "macosx-14.0-x86_64"; got != want {
		t.Errorf("meson _PYTHON_HOST_PLATFORM = %q, want %q", got, want)
	}
	if got := os.Getenv("_PYTHON_HOST_PLATFORM"); got != "" {
		t.Errorf("process _PYTHON_HOST_PLATFORM = %q after build, want empty", got)
	}
	if rt.HostPlatform != "" {
		t.Errorf("hook runtime HostPlatform = %q after build, want empty", rt.HostPlatform)
	}
	crossFile := filepath.Join(f.buildDir, meson.CrossFileName)
	if len(f.fake.configure) != 1 || !strings.HasSuffix(strings.Join(f.fake.configure[0], " "), "--cross-file "+crossFile) {
		t.Errorf("configure args = %q, want --cross-file %s", f.fake.configure, crossFile)
	}
	cross, err := os.ReadFile(crossFile)
	if err != nil {
		t.Fatal(err)
	}
	for _, line := range []string{
		"c = ['cc', '-arch', 'x86_64']",
		"objcpp = ['c++', '-arch', 'x86_64']",
		"system = 'darwin'",
		"cpu = 'x86_64'",
		"cpu_family = 'x86_64'",
		"endian = 'little'",
	} {
		if !strings.Contains(string(cross), line+"\n") {
			t.Errorf("cross file missing %q:\n%s", line, cross)
		}
	}

	// A later native build in the same process is tagged for the interpreter.
	t.Setenv("ARCHFLAGS", "")
	f.fake.env = nil
	f.hook.Settings = &config.Settings{BuildDir: f.buildDir}
	bd = NewBuildData()
	if err := f.hook.Initialize(ctx, "standard", bd); err != nil {
		t.Fatal(err)
	}
	if want := "cp311-cp311-macosx_14_0_arm64"; bd.Tag != want {
		t.Errorf("native Tag = %q, want %q", bd.Tag, want)
	}
	if _, ok := f.fake.env["_PYTHON_HOST_PLATFORM"]; ok {
		t.Errorf("native build set _PYTHON_HOST_PLATFORM = %q", f.fake.env["_PYTHON_HOST_PLATFORM"])
	}
}
