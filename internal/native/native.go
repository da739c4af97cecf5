// Package native detects whether a file is machine code for the host
// operating system by looking at its magic number.
package native

import (
	"errors"
	"io"
	"os"
	"runtime"
)

// magicSize is the longest prefix any host family needs.
const magicSize = 4

var elfMagic = [magicSize]byte{0x7f, 'E', 'L', 'F'}

// machoMagics are the Mach-O magic numbers. The universal magic is shared
// with Java class files.
var machoMagics = [...][magicSize]byte{
	{0xfe, 0xed, 0xfa, 0xce}, // 32-bit
	{0xfe, 0xed, 0xfa, 0xcf}, // 64-bit
	{0xcf, 0xfa, 0xed, 0xfe}, // arm64
	{0xca, 0xfe, 0xba, 0xbe}, // universal
}

// IsNative reports whether the file at path is native code for the
// operating system this process runs on.
func IsNative(path string) (bool, error) {
	return IsNativeFor(runtime.GOOS, path)
}

// IsNativeFor is like IsNative but checks against the binary format of goos.
func IsNativeFor(goos, path string) (bool, error) {
	f, err := os.Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return Match(goos, f)
}

// Match reads the leading bytes of r and reports whether they carry the
// native executable magic of goos. Short inputs never match.
func Match(goos string, r io.Reader) (bool, error) {
	n := headSize(goos)
	var head [magicSize]byte
	if _, err := io.ReadFull(r, head[:n]); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return false, nil
		}
		return false, err
	}
	switch {
	case isWindows(goos):
		return head[0] == 'M' && head[1] == 'Z', nil
	case isApple(goos):
		for _, magic := range machoMagics {
			if head == magic {
				return true, nil
			}
		}
		return false, nil
	default:
		// Assume every other platform uses ELF.
		return head == elfMagic, nil
	}
}

func headSize(goos string) int {
	if isWindows(goos) {
		return 2
	}
	return magicSize
}

func isWindows(goos string) bool {
	return goos == "windows"
}

func isApple(goos string) bool {
	return goos == "darwin" || goos == "ios"
}
