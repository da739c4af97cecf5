// Package installplan reads meson's install plan and maps it onto wheel
// installation directories.
package installplan

import (
	"errors"
	"fmt"

	jsonv2 "github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
	"github.com/virtuald/hatch-meson/internal/hookerr"
)

// Groups with special handling. Other groups (data, headers, man, ...)
// only hold single files.
const (
	GroupTargets        = "targets"
	GroupInstallSubdirs = "install_subdirs"
)

// Record is one file or directory meson intends to install.
type Record struct {
	// Group is the install plan section the record came from.
	Group string
	// Source is the absolute path of the file or directory in the build tree.
	Source string
	// Destination starts with a placeholder such as "{py_platlib}".
	Destination string
	// Tag is the install tag, empty when meson reports none.
	Tag string
	// Subproject is empty for the main project.
	Subproject string

	ExcludeFiles []string
	ExcludeDirs  []string
}

// Plan is an install plan in document order.
type Plan struct {
	Records []Record
}

type rawRecord struct {
	Destination  *string        `json:"destination"`
	Tag          nullableString `json:"tag"`
	Subproject   *string        `json:"subproject"`
	ExcludeFiles []string       `json:"exclude_files"`
	ExcludeDirs  []string       `json:"exclude_dirs"`
}

// nullableString records whether a member was present at all.
type nullableString struct {
	Present bool
	Value   string
}

func (s *nullableString) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	s.Present = true
	if dec.PeekKind() == 'n' {
		_, err := dec.ReadToken()
		return err
	}
	return jsonv2.UnmarshalDecode(dec, &s.Value)
}

// Parse decodes the contents of meson-info/intro-install_plan.json.
func Parse(data []byte) (*Plan, error) {
	p := new(Plan)
	if err := jsonv2.Unmarshal(data, p); err != nil {
		var herr *hookerr.Error
		if errors.As(err, &herr) {
			return nil, herr
		}
		return nil, hookerr.WrapConfig(err, "malformed install plan")
	}
	return p, nil
}

// UnmarshalJSONFrom decodes the group → source → details object, keeping
// document order so that mapping is reproducible.
func (p *Plan) UnmarshalJSONFrom(dec *jsontext.Decoder) error {
	if err := readBegin(dec, "install plan"); err != nil {
		return err
	}
	for dec.PeekKind() != '}' {
		groupTok, err := dec.ReadToken()
		if err != nil {
			return err
		}
		group := groupTok.String()
		if err := readBegin(dec, "install plan group "+group); err != nil {
			return err
		}
		for dec.PeekKind() != '}' {
			srcTok, err := dec.ReadToken()
			if err != nil {
				return err
			}
			src := srcTok.String()
			var raw rawRecord
			if err := jsonv2.UnmarshalDecode(dec, &raw); err != nil {
				return fmt.Errorf("%s entry %q: %w", group, src, err)
			}
			rec, err := raw.record(group, src)
			if err != nil {
				return err
			}
			p.Records = append(p.Records, rec)
		}
		if _, err := dec.ReadToken(); err != nil {
			return err
		}
	}
	_, err := dec.ReadToken()
	return err
}

func readBegin(dec *jsontext.Decoder, what string) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return err
	}
	if kind := tok.Kind(); kind != '{' {
		return hookerr.Configf("%s must be an object, not %v", what, kind)
	}
	return nil
}

func (raw *rawRecord) record(group, src string) (Record, error) {
	if raw.Destination == nil || *raw.Destination == "" {
		return Record{}, hookerr.Configf("install plan %s entry %q has no destination", group, src)
	}
	// Meson reports untagged entries with a null tag.
	if !raw.Tag.Present {
		return Record{}, hookerr.Configf("install plan %s entry %q has no tag", group, src)
	}
	rec := Record{
		Group:        group,
		Source:       src,
		Destination:  *raw.Destination,
		Tag:          raw.Tag.Value,
		ExcludeFiles: raw.ExcludeFiles,
		ExcludeDirs:  raw.ExcludeDirs,
	}
	if raw.Subproject != nil {
		rec.Subproject = *raw.Subproject
	}
	return rec, nil
}
