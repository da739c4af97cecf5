package pyenv

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/virtuald/hatch-meson/internal/hookerr"
)

// abiTag derives the wheel ABI tag from the extension module suffix,
// e.g. ".cpython-311-x86_64-linux-gnu.so" gives "cp311".
func abiTag(extSuffix, implementation string, major, minor int) (string, error) {
	parts := strings.Split(extSuffix, ".")
	if len(parts) != 3 || parts[0] != "" {
		// Old CPython releases on Windows use a bare ".pyd" suffix that
		// carries no ABI information.
		if implementation != "cpython" {
			return "", hookerr.Buildf("cannot derive the ABI tag of %s from extension suffix %q", implementation, extSuffix)
		}
		return "cp" + strconv.Itoa(major) + strconv.Itoa(minor), nil
	}
	abi := parts[1]
	fields := strings.Split(abi, "-")
	switch {
	case strings.HasPrefix(abi, "cpython"):
		if len(fields) < 2 {
			return "", hookerr.Buildf("malformed CPython extension suffix %q", extSuffix)
		}
		abi = "cp" + fields[1]
	case strings.HasPrefix(abi, "cp"):
		abi = fields[0]
	case strings.HasPrefix(abi, "pypy"):
		abi = strings.Join(fields[:min(2, len(fields))], "_")
	case strings.HasPrefix(abi, "graalpy"):
		abi = strings.Join(fields[:min(3, len(fields))], "_")
	}
	return strings.NewReplacer(".", "_", "-", "_").Replace(abi), nil
}

// macPlatformTag computes "macosx_<major>_<minor>_<arch>".
func macPlatformTag(macVersion, arch, hostPlatform, deploymentTarget string, is32Bit bool) string {
	if fields := strings.Split(hostPlatform, "-"); len(fields) > 2 {
		arch = fields[2]
	}

	major, minor, ok := parseMacVersion(deploymentTarget)
	if !ok {
		// An unparsable MACOSX_DEPLOYMENT_TARGET is ignored.
		major, minor, ok = parseMacVersion(macVersion)
		if !ok {
			major, minor = 10, 9
		}
	}

	// The arm64 SDK raises any deployment target to 11.0.
	if arch == "arm64" && major < 11 {
		major, minor = 11, 0
	}
	// From macOS 11 on, the minor version is the patch level.
	if major >= 11 {
		minor = 0
	}
	if is32Bit {
		switch arch {
		case "ppc64":
			arch = "ppc"
		case "x86_64":
			arch = "i386"
		}
	}
	return fmt.Sprintf("macosx_%d_%d_%s", major, minor, arch)
}

func parseMacVersion(s string) (major, minor int, ok bool) {
	if s == "" {
		return 0, 0, false
	}
	fields := strings.Split(s, ".")
	nums := make([]int, 0, 2)
	for _, f := range fields[:min(2, len(fields))] {
		n, err := strconv.Atoi(f)
		if err != nil {
			return 0, 0, false
		}
		nums = append(nums, n)
	}
	if len(nums) == 1 {
		nums = append(nums, 0)
	}
	return nums[0], nums[1], true
}
