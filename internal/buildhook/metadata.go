package buildhook

import (
	"context"
	"os"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/wheel"
	"github.com/virtuald/hatch-meson/pkgs/buildsys/meson"
)

// ProjectInfo is the part of "meson introspect --projectinfo" used for
// package metadata.
type ProjectInfo struct {
	DescriptiveName string `json:"descriptive_name"`
	Version         string `json:"version"`
}

// ProjectInfo asks meson about the project without configuring it.
// The configured meson command is not consulted, only $MESON.
func (h *Hook) ProjectInfo(ctx context.Context) (*ProjectInfo, error) {
	newBS := h.NewBuildSystem
	if newBS == nil {
		newBS = newMeson
	}
	bs, err := newBS(ctx, h.Python, "", "")
	if err != nil {
		return nil, err
	}
	bs.Source(h.Root)
	raw, err := bs.ProjectInfo(ctx)
	if err != nil {
		return nil, err
	}
	info := new(ProjectInfo)
	if err := jsonv2.Unmarshal(raw, info); err != nil {
		return nil, hookerr.WrapBuild(err, "malformed meson project info")
	}
	return info, nil
}

// UpdateMetadata sets the distribution name to the meson project name.
func (h *Hook) UpdateMetadata(ctx context.Context, metadata map[string]any) error {
	info, err := h.ProjectInfo(ctx)
	if err != nil {
		return err
	}
	metadata["name"] = info.DescriptiveName
	return nil
}

// Version returns the version declared by project() in meson.build.
func (h *Hook) Version(ctx context.Context) (string, error) {
	info, err := h.ProjectInfo(ctx)
	if err != nil {
		return "", err
	}
	if info.Version == "undefined" {
		return "", hookerr.Buildf("version not set for project() in meson.build")
	}
	return info.Version, nil
}

// Requires lists the extra requirements for building a wheel:
// ninja from PyPI when no usable ninja is installed.
func (h *Hook) Requires(ctx context.Context) []string {
	if os.Getenv("NINJA") != "" {
		return nil
	}
	if _, ok := h.findNinja(ctx); ok {
		return nil
	}
	return []string{"ninja >= " + meson.MinNinjaVersion}
}

// Plan maps the install plan of an already configured build directory.
func (h *Hook) Plan(ctx context.Context) (wheel.Buckets, error) {
	b, err := h.start(ctx, false)
	if err != nil {
		return nil, err
	}
	return b.installPlan(ctx)
}

// Tag computes the wheel tag for an already built build directory.
func (h *Hook) Tag(ctx context.Context) (string, error) {
	b, err := h.start(ctx, false)
	if err != nil {
		return "", err
	}
	if err := b.checkLimitedAPI(); err != nil {
		return "", err
	}
	bs, err := b.installPlan(ctx)
	if err != nil {
		return "", err
	}
	tag, err := wheel.ComputeTag(bs, b.rt, b.limitedAPI)
	if err != nil {
		return "", err
	}
	return tag.Format(b.rt), nil
}
