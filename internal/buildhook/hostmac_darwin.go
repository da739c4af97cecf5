//go:build darwin

package buildhook

import "golang.org/x/sys/unix"

// hostMacVersion returns the macOS product version, such as "14.2.1".
func hostMacVersion() string {
	v, err := unix.Sysctl("kern.osproductversion")
	if err != nil {
		return ""
	}
	return v
}
