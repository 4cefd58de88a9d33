package images

import (
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/pkg/errors"
)

// ListImages returns the files in dir whose extension matches ext.
//
// A name matches when it ends with ext exactly (case-sensitive). Symlinks are followed, so a
// linked image is kept while a directory, linked or not, is skipped. The result is sorted by file
// name so that repeated runs visit the images in the same order.
//
// Arguments:
//   - dir: Directory containing the image files.
//   - ext: Extension to keep, including the leading dot (e.g. ".jpg").
//
// Returns:
//   - []string: Paths joined with dir, sorted by name.
//   - error: Error if the directory cannot be read.
func ListImages(dir, ext string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrapf(err, "read image directory %s", dir)
	}

	var names []string
	for _, entry := range entries {
		if !strings.HasSuffix(entry.Name(), ext) {
			continue
		}
		info, err := os.Stat(filepath.Join(dir, entry.Name()))
		if err != nil {
			// Dangling symlink.
			continue
		}
		if info.IsDir() {
			continue
		}
		names = append(names, entry.Name())
	}

	sort.Strings(names)

	paths := make([]string, len(names))
	for i, name := range names {
		paths[i] = filepath.Join(dir, name)
	}

	return paths, nil
}
