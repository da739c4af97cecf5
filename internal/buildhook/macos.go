package buildhook

import (
	"os"
	"runtime"
	"strings"

	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/pyenv"
)

// macOSCrossTarget honors $ARCHFLAGS the way setuptools does. When it
// names a single architecture other than the interpreter's, the
// architecture is returned with the host platform the wheel is built for:
// $_PYTHON_HOST_PLATFORM if set, else one derived from the macOS version.
func macOSCrossTarget(rt *pyenv.Info) (arch, host string, err error) {
	if !strings.HasPrefix(rt.Platform, "macosx-") {
		return "", "", nil
	}
	archflags := strings.TrimSpace(os.Getenv("ARCHFLAGS"))
	if archflags == "" {
		return "", "", nil
	}
	arch, err = parseArchFlags(archflags)
	if err != nil {
		return "", "", err
	}

	macVersion, nativeArch := rt.MacVersion, rt.MacArch
	if macVersion == "" {
		macVersion = hostMacVersion()
	}
	if nativeArch == "" {
		nativeArch = goarchToMac(runtime.GOARCH)
	}
	if arch == nativeArch {
		return "", "", nil
	}

	host = os.Getenv("_PYTHON_HOST_PLATFORM")
	if host == "" {
		host = "macosx-" + macVersion + "-" + arch
	}
	if !strings.HasSuffix(host, arch) {
		return "", "", hookerr.Configf("$ARCHFLAGS='%s' and $_PYTHON_HOST_PLATFORM='%s' do not agree", archflags, host)
	}
	return arch, host, nil
}

// parseArchFlags returns the single architecture requested by "-arch X"
// flags. Repeating the same architecture is allowed.
func parseArchFlags(archflags string) (string, error) {
	fields := strings.Fields(archflags)
	var archs []string
	unknown := false
	for i := 0; i < len(fields); i++ {
		switch f := fields[i]; {
		case f == "-arch" && i+1 < len(fields):
			i++
			archs = append(archs, fields[i])
		case strings.HasPrefix(f, "-arch="):
			archs = append(archs, strings.TrimPrefix(f, "-arch="))
		default:
			unknown = true
		}
	}
	if unknown || len(archs) == 0 {
		return "", hookerr.Configf("Unknown flag specified in $ARCHFLAGS='%s'", archflags)
	}
	for _, a := range archs[1:] {
		if a != archs[0] {
			return "", hookerr.Configf("Multi-architecture builds are not supported but $ARCHFLAGS='%s'", archflags)
		}
	}
	return archs[0], nil
}

func goarchToMac(goarch string) string {
	if goarch == "amd64" {
		return "x86_64"
	}
	return goarch
}
