package installplan

import (
	"path"
	"strings"

	"github.com/spf13/pflag"
	"github.com/virtuald/hatch-meson/internal/hookerr"
)

// Selection mirrors the subset of "meson install" arguments that limit what
// gets installed.
type Selection struct {
	// Tags, when non-nil, keeps only records with one of these tags.
	Tags map[string]bool
	// SkipSubprojects drops records from matching subprojects.
	// "*" matches every subproject.
	SkipSubprojects []string
}

// ParseInstallArgs extracts --tags and --skip-subprojects from args.
// Other arguments are meant for "meson install" and are ignored.
func ParseInstallArgs(args []string) (Selection, error) {
	fs := pflag.NewFlagSet("meson install", pflag.ContinueOnError)
	fs.ParseErrorsWhitelist.UnknownFlags = true
	fs.SetInterspersed(true)
	fs.Usage = func() {}
	tags := fs.String("tags", "", "install only targets having one of the given tags")
	skip := fs.String("skip-subprojects", "", "do not install files from given subprojects")
	fs.Lookup("skip-subprojects").NoOptDefVal = "*"
	if err := fs.Parse(args); err != nil {
		return Selection{}, hookerr.WrapConfig(err, "invalid install args")
	}

	var sel Selection
	if fs.Changed("tags") && *tags != "" {
		sel.Tags = make(map[string]bool)
		for _, t := range strings.Split(*tags, ",") {
			if t = strings.TrimSpace(t); t != "" {
				sel.Tags[t] = true
			}
		}
		// "meson install --tags=," installs nothing. Here a list of only
		// empty tags is treated like no --tags at all.
		if len(sel.Tags) == 0 {
			sel.Tags = nil
		}
	}
	for _, p := range strings.Split(*skip, ",") {
		if p = strings.TrimSpace(p); p != "" {
			sel.SkipSubprojects = append(sel.SkipSubprojects, p)
		}
	}
	return sel, nil
}

// Keep reports whether rec survives the selection.
func (sel Selection) Keep(rec Record) bool {
	if sel.Tags != nil && !sel.Tags[rec.Tag] {
		return false
	}
	if rec.Subproject == "" {
		return true
	}
	for _, pattern := range sel.SkipSubprojects {
		if pattern == rec.Subproject {
			return false
		}
		if ok, _ := path.Match(pattern, rec.Subproject); ok {
			return false
		}
	}
	return true
}

// Filter returns the records of p that survive sel, in order.
func (p *Plan) Filter(sel Selection) *Plan {
	out := &Plan{Records: make([]Record, 0, len(p.Records))}
	for _, rec := range p.Records {
		if sel.Keep(rec) {
			out.Records = append(out.Records, rec)
		}
	}
	return out
}
