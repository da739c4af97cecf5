// Package wheel decides how an install plan lands in a wheel: which wheel
// directory each file goes to, whether the wheel is pure, and which
// compatibility tag it carries.
package wheel

import (
	"path"

	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/native"
)

// Bucket is a wheel installation directory.
type Bucket string

const (
	Scripts Bucket = "scripts"
	Purelib Bucket = "purelib"
	Platlib Bucket = "platlib"
	Data    Bucket = "data"
)

// Entry is one file to place in a bucket.
type Entry struct {
	// Destination is slash-separated and relative to the bucket root.
	Destination string `json:"destination"`
	// Source is where the native build produced the file.
	Source string `json:"source"`
}

// Name returns the final element of the destination.
func (e Entry) Name() string {
	return path.Base(e.Destination)
}

// Buckets groups entries by bucket, preserving insertion order per bucket.
type Buckets map[Bucket][]Entry

// Add appends e to bucket b.
func (bs Buckets) Add(b Bucket, e ...Entry) {
	bs[b] = append(bs[b], e...)
}

// CheckLayout rejects plans that install into both purelib and platlib.
func CheckLayout(bs Buckets) error {
	if len(bs[Purelib]) > 0 && len(bs[Platlib]) > 0 {
		return hookerr.Buildf("The install plan contains both purelib and platlib components, a " +
			"'pure: false' argument may be missing in meson.build. " +
			"It is recommended to set it in \"import('python').find_installation()\"")
	}
	return nil
}

// IsPure reports whether the wheel is architecture independent: nothing in
// platlib and no script that is native code for the build host.
func IsPure(bs Buckets) (bool, error) {
	if len(bs[Platlib]) > 0 {
		return false, nil
	}
	for _, e := range bs[Scripts] {
		ok, err := native.IsNative(e.Source)
		if err != nil {
			return false, hookerr.WrapBuild(err, "inspect script "+e.Source)
		}
		if ok {
			return false, nil
		}
	}
	return true, nil
}
