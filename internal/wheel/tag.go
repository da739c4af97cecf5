package wheel

import (
	"regexp"

	"github.com/virtuald/hatch-meson/internal/hookerr"
)

// StableABITag is the ABI tag of extension modules built against the
// limited API.
const StableABITag = "abi3"

// extensionPattern matches extension module file names, capturing the
// optional ABI tag between the module name and the suffix.
var extensionPattern = regexp.MustCompile(`^[^.]+\.(?:(?P<abi>[^.]+)\.)?(?:so|pyd|dll)$`)

var abiGroup = extensionPattern.SubexpIndex("abi")

// Runtime reports the identity of the interpreter the wheel is built for.
type Runtime interface {
	InterpreterTag() string
	ABITag() string
	PlatformTag() string
	// SupportsStableABI is false for implementations that accept the
	// limited API without shipping a stable ABI.
	SupportsStableABI() bool
}

// Tag is a wheel compatibility tag. Empty fields are resolved against a
// Runtime when the tag is formatted.
type Tag struct {
	Interpreter string
	ABI         string
	Platform    string
}

// Format serializes t as interpreter-abi-platform.
func (t Tag) Format(rt Runtime) string {
	interp, abi, plat := t.Interpreter, t.ABI, t.Platform
	if interp == "" {
		interp = rt.InterpreterTag()
	}
	if abi == "" {
		abi = rt.ABITag()
	}
	if plat == "" {
		plat = rt.PlatformTag()
	}
	return interp + "-" + abi + "-" + plat
}

// StableABI returns StableABITag when limitedAPI is requested and the
// runtime supports it, after checking that no platlib extension module is
// tagged for a specific interpreter. It returns "" when no stable ABI tag
// applies.
func StableABI(bs Buckets, rt Runtime, limitedAPI bool) (string, error) {
	if !limitedAPI || !rt.SupportsStableABI() {
		return "", nil
	}
	for _, e := range bs[Platlib] {
		m := extensionPattern.FindStringSubmatch(e.Name())
		if m == nil {
			continue
		}
		if abi := m[abiGroup]; abi != "" && abi != StableABITag {
			return "", hookerr.Buildf("The package declares compatibility with Python limited API but extension "+
				"module %q is tagged for a specific Python version.", e.Destination)
		}
	}
	return StableABITag, nil
}

// ComputeTag selects the wheel tag for bs.
//
// A pure wheel is py3-none-any. A wheel that is impure only because of
// native scripts is py3-none-<platform>. Anything with platlib content is
// tagged for the runtime interpreter and ABI, or abi3 when the limited API
// was requested and every extension module honors it.
func ComputeTag(bs Buckets, rt Runtime, limitedAPI bool) (Tag, error) {
	if err := CheckLayout(bs); err != nil {
		return Tag{}, err
	}
	pure, err := IsPure(bs)
	if err != nil {
		return Tag{}, err
	}
	if pure {
		return Tag{Interpreter: "py3", ABI: "none", Platform: "any"}, nil
	}
	if len(bs[Platlib]) == 0 {
		return Tag{Interpreter: "py3", ABI: "none"}, nil
	}
	abi, err := StableABI(bs, rt, limitedAPI)
	if err != nil {
		return Tag{}, err
	}
	return Tag{ABI: abi}, nil
}
