// Package pyenv probes the Python interpreter a wheel is built for and
// derives its wheel tags.
package pyenv

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"

	jsonv2 "github.com/go-json-experiment/json"
	"zombiezen.com/go/log"
)

// probeScript prints everything the tag derivation needs as one JSON object.
const probeScript = `
import json, platform, sys, sysconfig
print(json.dumps({
    "implementation": sys.implementation.name,
    "major": sys.version_info[0],
    "minor": sys.version_info[1],
    "executable": sys.executable,
    "ext_suffix": sysconfig.get_config_var("EXT_SUFFIX") or "",
    "platform": sysconfig.get_platform(),
    "is_32bit": sys.maxsize <= 2**32,
    "gil_disabled": bool(sysconfig.get_config_var("Py_GIL_DISABLED")),
    "pypy": "__pypy__" in sys.builtin_module_names,
    "mac_version": platform.mac_ver()[0],
    "mac_arch": platform.mac_ver()[2],
}))
`

// Info describes one interpreter. It is computed once per build.
type Info struct {
	Implementation string `json:"implementation"`
	Major          int    `json:"major"`
	Minor          int    `json:"minor"`
	Executable     string `json:"executable"`
	ExtSuffix      string `json:"ext_suffix"`
	// Platform is sysconfig.get_platform(), e.g. "linux-x86_64".
	Platform    string `json:"platform"`
	Is32Bit     bool   `json:"is_32bit"`
	GILDisabled bool   `json:"gil_disabled"`
	PyPy        bool   `json:"pypy"`
	MacVersion  string `json:"mac_version"`
	MacArch     string `json:"mac_arch"`

	// HostPlatform overrides Platform for cross builds.
	// When empty, $_PYTHON_HOST_PLATFORM is used.
	HostPlatform string `json:"-"`

	abi string
}

// Probe runs python and returns its description.
func Probe(ctx context.Context, python string) (*Info, error) {
	log.Debugf(ctx, "Probing interpreter %s", python)
	cmd := exec.CommandContext(ctx, python, "-c", probeScript)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		if msg := strings.TrimSpace(stderr.String()); msg != "" {
			return nil, fmt.Errorf("probe %s: %w: %s", python, err, msg)
		}
		return nil, fmt.Errorf("probe %s: %w", python, err)
	}
	return Parse(out)
}

// Parse decodes the probe output and derives the ABI tag.
func Parse(data []byte) (*Info, error) {
	info := new(Info)
	if err := jsonv2.Unmarshal(data, info); err != nil {
		return nil, fmt.Errorf("parse interpreter probe: %w", err)
	}
	abi, err := abiTag(info.ExtSuffix, info.Implementation, info.Major, info.Minor)
	if err != nil {
		return nil, err
	}
	info.abi = abi
	return info, nil
}

var shortNames = map[string]string{
	"python":     "py",
	"cpython":    "cp",
	"pypy":       "pp",
	"ironpython": "ip",
	"jython":     "jy",
}

// InterpreterTag returns e.g. "cp311".
func (info *Info) InterpreterTag() string {
	name := info.Implementation
	if short, ok := shortNames[name]; ok {
		name = short
	}
	return name + strconv.Itoa(info.Major) + strconv.Itoa(info.Minor)
}

// ABITag returns e.g. "cp311" or "pypy310_pp73".
func (info *Info) ABITag() string {
	return info.abi
}

// SupportsStableABI reports whether limited API extension modules built for
// this interpreter use the abi3 tag. PyPy accepts the limited API but has no
// stable ABI.
func (info *Info) SupportsStableABI() bool {
	return !info.PyPy
}

// PlatformTag returns the wheel platform tag, honoring HostPlatform
// (or _PYTHON_HOST_PLATFORM) and, on macOS, MACOSX_DEPLOYMENT_TARGET.
func (info *Info) PlatformTag() string {
	host := info.HostPlatform
	if host == "" {
		host = os.Getenv("_PYTHON_HOST_PLATFORM")
	}
	plat := info.Platform
	if host != "" {
		plat = host
	}
	if strings.HasPrefix(plat, "macosx") {
		return macPlatformTag(info.MacVersion, info.MacArch, host, os.Getenv("MACOSX_DEPLOYMENT_TARGET"), info.Is32Bit)
	}
	if info.Is32Bit {
		switch plat {
		case "linux-x86_64":
			return "linux_i686"
		case "linux-aarch64":
			return "linux_armv8l"
		}
	}
	return normalize(plat)
}

func normalize(s string) string {
	return strings.ToLower(strings.NewReplacer("-", "_", ".", "_").Replace(s))
}
