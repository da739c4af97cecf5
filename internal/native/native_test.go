package native

import (
	"bytes"
	"os"
	"path/filepath"
	"runtime"
	"testing"
)

func TestMatch(t *testing.T) {
	elf := []byte{0x7f, 'E', 'L', 'F', 2, 1, 1}
	machoArm := []byte{0xcf, 0xfa, 0xed, 0xfe, 0x0c}
	fat := []byte{0xca, 0xfe, 0xba, 0xbe}
	pe := []byte("MZ\x90\x00")
	script := []byte("#!/bin/sh\necho hi\n")

	tests := []struct {
		name string
		goos string
		head []byte
		want bool
	}{
		{"elf on linux", "linux", elf, true},
		{"elf on freebsd", "freebsd", elf, true},
		{"elf on darwin", "darwin", elf, false},
		{"elf on windows", "windows", elf, false},
		{"macho arm64 on darwin", "darwin", machoArm, true},
		{"macho on ios", "ios", machoArm, true},
		{"universal on darwin", "darwin", fat, true},
		{"macho 32-bit big endian", "darwin", []byte{0xfe, 0xed, 0xfa, 0xce}, true},
		{"macho 64-bit big endian", "darwin", []byte{0xfe, 0xed, 0xfa, 0xcf}, true},
		{"macho on linux", "linux", machoArm, false},
		{"pe on windows", "windows", pe, true},
		{"pe on linux", "linux", pe, false},
		{"script on linux", "linux", script, false},
		{"script on darwin", "darwin", script, false},
		{"script on windows", "windows", script, false},
		{"short file", "linux", []byte{0x7f, 'E'}, false},
		{"two bytes on windows", "windows", []byte("MZ"), true},
		{"empty", "darwin", nil, false},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			got, err := Match(test.goos, bytes.NewReader(test.head))
			if err != nil {
				t.Fatalf("Match: %v", err)
			}
			if got != test.want {
				t.Errorf("Match(%q, % x) = %t, want %t", test.goos, test.head, got, test.want)
			}
		})
	}
}

func TestIsNative(t *testing.T) {
	dir := t.TempDir()
	elf := filepath.Join(dir, "elf")
	if err := os.WriteFile(elf, []byte{0x7f, 'E', 'L', 'F', 2, 1, 1, 0}, 0o755); err != nil {
		t.Fatal(err)
	}
	got, err := IsNative(elf)
	if err != nil {
		t.Fatal(err)
	}
	want := runtime.GOOS != "windows" && runtime.GOOS != "darwin" && runtime.GOOS != "ios"
	if got != want {
		t.Errorf("IsNative(elf) on %s = %t, want %t", runtime.GOOS, got, want)
	}

	if _, err := IsNative(filepath.Join(dir, "missing")); !os.IsNotExist(err) {
		t.Errorf("IsNative(missing) error = %v, want not-exist", err)
	}
}
