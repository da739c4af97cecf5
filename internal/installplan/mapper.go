package installplan

import (
	"context"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/virtuald/hatch-meson/internal/hookerr"
	"github.com/virtuald/hatch-meson/internal/wheel"
	"golang.org/x/sync/errgroup"
	"zombiezen.com/go/log"
)

// placeholders maps meson installation path placeholders to wheel
// directories. {includedir} and {libdir} are deliberately absent: the wheel
// builder has no headers directory and does not bundle shared libraries.
var placeholders = map[string]wheel.Bucket{
	"{bindir}":           wheel.Scripts,
	"{py_purelib}":       wheel.Purelib,
	"{py_platlib}":       wheel.Platlib,
	"{moduledir_shared}": wheel.Platlib,
	"{datadir}":          wheel.Data,
}

// maxWalkers bounds concurrent directory expansion.
const maxWalkers = 8

// Map places every record of p into a wheel bucket. Directory records are
// expanded recursively; entries keep plan order within each bucket.
func Map(ctx context.Context, p *Plan) (wheel.Buckets, error) {
	type slot struct {
		bucket  wheel.Bucket
		entries []wheel.Entry
	}
	slots := make([]slot, len(p.Records))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(maxWalkers)
	for i, rec := range p.Records {
		bucket, dst, err := resolve(rec.Destination)
		if err != nil {
			// Wait so no walker outlives the call.
			_ = g.Wait()
			return nil, err
		}
		slots[i].bucket = bucket

		isDir, err := isDirRecord(rec)
		if err != nil {
			_ = g.Wait()
			return nil, err
		}
		if !isDir {
			slots[i].entries = []wheel.Entry{{Destination: dst, Source: rec.Source}}
			log.Debugf(ctx, "%s: %s -> %s", bucket, rec.Source, dst)
			continue
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			entries, err := expandDir(rec.Source, dst, rec.ExcludeFiles, rec.ExcludeDirs)
			if err != nil {
				return err
			}
			log.Debugf(ctx, "%s: %s/ -> %s (%d files)", bucket, rec.Source, dst, len(entries))
			slots[i].entries = entries
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	bs := make(wheel.Buckets)
	for _, s := range slots {
		bs.Add(s.bucket, s.entries...)
	}
	return bs, nil
}

// resolve splits destination into its bucket and the slash-separated path
// below the placeholder.
func resolve(destination string) (wheel.Bucket, string, error) {
	var parts []string
	for _, part := range strings.Split(filepath.ToSlash(destination), "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	if len(parts) == 0 {
		return "", "", hookerr.Configf("Could not map installation path to an equivalent wheel directory: %q", destination)
	}
	bucket, ok := placeholders[parts[0]]
	if !ok {
		return "", "", hookerr.Configf("Could not map installation path to an equivalent wheel directory: %q", path.Join(parts...))
	}
	return bucket, path.Join(parts[1:]...), nil
}

func isDirRecord(rec Record) (bool, error) {
	switch rec.Group {
	case GroupInstallSubdirs:
		return true, nil
	case GroupTargets:
		info, err := os.Stat(rec.Source)
		if err != nil {
			if os.IsNotExist(err) {
				return false, nil
			}
			return false, hookerr.WrapBuild(err, "inspect install target")
		}
		return info.IsDir(), nil
	default:
		return false, nil
	}
}

// expandDir lists the files below root that are not excluded. Within each
// directory files come first, sorted by name, followed by the sorted
// subdirectories. Symbolic links to directories are not followed.
func expandDir(root, dst string, excludeFiles, excludeDirs []string) ([]wheel.Entry, error) {
	skipFiles := cleanSet(excludeFiles)
	skipDirs := cleanSet(excludeDirs)

	var entries []wheel.Entry
	var walk func(rel string) error
	walk = func(rel string) error {
		dirents, err := os.ReadDir(filepath.Join(root, rel))
		if err != nil {
			return hookerr.WrapBuild(err, "expand install directory "+root)
		}
		var subdirs []string
		for _, d := range dirents {
			childRel := filepath.Join(rel, d.Name())
			isDir := direntIsDir(root, childRel, d)
			switch {
			case isDir && d.Type()&fs.ModeSymlink != 0:
				// Listed as a directory but never descended into.
			case isDir:
				if !skipDirs[childRel] {
					subdirs = append(subdirs, childRel)
				}
			case !skipFiles[childRel]:
				entries = append(entries, wheel.Entry{
					Destination: path.Join(dst, filepath.ToSlash(childRel)),
					Source:      filepath.Join(root, childRel),
				})
			}
		}
		for _, sub := range subdirs {
			if err := walk(sub); err != nil {
				return err
			}
		}
		return nil
	}
	if err := walk(""); err != nil {
		return nil, err
	}
	return entries, nil
}

func direntIsDir(root, rel string, d fs.DirEntry) bool {
	if d.Type()&fs.ModeSymlink == 0 {
		return d.IsDir()
	}
	// Dangling links are installed like files.
	info, err := os.Stat(filepath.Join(root, rel))
	return err == nil && info.IsDir()
}

func cleanSet(paths []string) map[string]bool {
	set := make(map[string]bool, len(paths))
	for _, p := range paths {
		set[filepath.Clean(filepath.FromSlash(p))] = true
	}
	return set
}
