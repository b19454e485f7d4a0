package enroll

import (
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"unicode"

	"github.com/facette/natsort"
)

var imageExts = map[string]bool{
	".jpg": true, ".jpeg": true, ".png": true,
	".bmp": true, ".gif": true, ".tif": true, ".tiff": true,
}

// Sample is one dataset image and the identity it belongs to.
type Sample struct {
	Identity string
	Path     string
}

// Scan lists the images under dir. An image inside a subdirectory belongs to
// the subdirectory's name; an image at the top level is named by
// IdentityFromName. Samples come back in natural order of identity, then path.
func Scan(dir string) ([]Sample, error) {
	byIdentity := make(map[string][]string)
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		name := d.Name()
		if path != dir && strings.HasPrefix(name, ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() || !imageExts[strings.ToLower(filepath.Ext(name))] {
			return nil
		}

		rel, err := filepath.Rel(dir, path)
		if err != nil {
			return err
		}
		identity := IdentityFromName(name)
		if first, _, nested := strings.Cut(filepath.ToSlash(rel), "/"); nested {
			identity = first
		}
		if identity != "" {
			byIdentity[identity] = append(byIdentity[identity], path)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrDataset, dir, err)
	}

	identities := make([]string, 0, len(byIdentity))
	for id := range byIdentity {
		identities = append(identities, id)
	}
	natsort.Sort(identities)

	var samples []Sample
	for _, id := range identities {
		paths := byIdentity[id]
		natsort.Sort(paths)
		for _, p := range paths {
			samples = append(samples, Sample{Identity: id, Path: p})
		}
	}
	return samples, nil
}

// IdentityFromName derives an identity from a file name: the stem up to the
// first '_', '-' or digit. "alice_01.jpg" and "alice2.png" both give "alice".
// A stem with no such prefix is used whole.
func IdentityFromName(name string) string {
	stem := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	cut := strings.IndexFunc(stem, func(r rune) bool {
		return r == '_' || r == '-' || unicode.IsDigit(r)
	})
	if cut > 0 {
		return strings.TrimSpace(stem[:cut])
	}
	return strings.TrimSpace(stem)
}
