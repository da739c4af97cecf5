package meson

import (
	"bytes"
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/virtuald/hatch-meson/internal/hookerr"
	"golang.org/x/mod/semver"
	"zombiezen.com/go/log"
)

// Minimum tool versions.
const (
	MinMesonVersion = "0.64.0"
	MinNinjaVersion = "1.8.2"
)

// ninjaNames are tried in order when $NINJA is unset.
var ninjaNames = []string{"ninja", "ninja-build", "samu"}

// Command returns the argv prefix that runs meson.
// $MESON wins over configured, which wins over "meson" on PATH.
// Scripts ending in ".py" are run with python.
// The command must report at least [MinMesonVersion].
func Command(ctx context.Context, python, configured string) ([]string, error) {
	name := configured
	if name == "" {
		name = "meson"
	}
	if env := os.Getenv("MESON"); env != "" {
		name = env
	}

	var cmd []string
	if strings.HasSuffix(name, ".py") {
		if _, err := os.Stat(name); err != nil {
			return nil, hookerr.Configf("Could not find the specified meson: %q", name)
		}
		abs, err := filepath.Abs(name)
		if err != nil {
			return nil, hookerr.WrapConfig(err, "resolve meson script")
		}
		cmd = []string{python, abs}
	} else {
		cmd = []string{name}
	}

	c := exec.CommandContext(ctx, cmd[0], append(cmd[1:], "--version")...)
	stdout := new(bytes.Buffer)
	stderr := new(bytes.Buffer)
	c.Stdout = stdout
	c.Stderr = stderr
	if err := c.Run(); err != nil {
		if errors.Is(err, exec.ErrNotFound) || errors.Is(err, os.ErrNotExist) {
			return nil, hookerr.WrapConfig(err, "meson executable \""+name+"\" not found")
		}
		return nil, hookerr.Configf("Could not execute meson: %s", strings.TrimSpace(stderr.String()))
	}
	version := strings.TrimSpace(stdout.String())
	if !versionAtLeast(version, MinMesonVersion) {
		return nil, hookerr.Configf("Could not find meson version %s or newer, found %s.", MinMesonVersion, version)
	}
	log.Debugf(ctx, "Using meson %s (%s)", version, strings.Join(cmd, " "))
	return cmd, nil
}

// FindNinja returns the path of a ninja implementation
// that reports at least [MinNinjaVersion].
// Only $NINJA is considered when it is set.
func FindNinja(ctx context.Context) (path string, ok bool) {
	candidates := ninjaNames
	if env := os.Getenv("NINJA"); env != "" {
		candidates = []string{env}
	}
	for _, name := range candidates {
		p, err := exec.LookPath(name)
		if err != nil {
			continue
		}
		out, _ := exec.CommandContext(ctx, p, "--version").Output()
		version := strings.TrimSpace(string(out))
		if versionAtLeast(version, MinNinjaVersion) {
			log.Debugf(ctx, "Using ninja %s (%s)", version, p)
			return p, true
		}
		log.Debugf(ctx, "Ignoring %s: version %q is too old", p, version)
	}
	return "", false
}

// versionAtLeast compares the first three dotted fields of version
// against min. Unparseable versions compare as 0.
func versionAtLeast(version, min string) bool {
	return semver.Compare(canonicalVersion(version), canonicalVersion(min)) >= 0
}

func canonicalVersion(s string) string {
	fields := strings.Split(s, ".")
	if len(fields) > 3 {
		fields = fields[:3]
	}
	for i, f := range fields {
		n, err := strconv.Atoi(f)
		if err != nil || n < 0 {
			return "v0"
		}
		fields[i] = strconv.Itoa(n)
	}
	return "v" + strings.Join(fields, ".")
}
