package buildsys

import "context"

// BuildSystem captures the lifecycle of a native build driven by a Python
// build hook: configure once, build, then read back what would be installed.
type BuildSystem interface {
	// Basic paths.
	Source(dir string)
	BuildDir(dir string)

	// Environment helper. Values apply to child processes only.
	Env(key, val string)

	// Lifecycle.
	Configure(ctx context.Context, args ...string) error
	Build(ctx context.Context, args ...string) error

	// Introspect returns the named introspection document of a configured
	// build directory, such as "intro-install_plan".
	Introspect(name string) ([]byte, error)

	// ProjectInfo describes the project in the source directory
	// without configuring it.
	ProjectInfo(ctx context.Context) ([]byte, error)

	// Where artifacts land.
	OutputDir() string
}
