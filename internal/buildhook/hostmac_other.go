//go:build !darwin

package buildhook

func hostMacVersion() string {
	return ""
}
