package path

import (
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/afero"
)

// ListSubdirectories returns the names of the immediate subdirectories of root, sorted by name,
// skipping any directory whose name is in exclude.
func ListSubdirectories(fs afero.Fs, root string, exclude []string) ([]string, error) {
	entries, err := afero.ReadDir(fs, root)
	if err != nil {
		return nil, errors.Wrapf(err, "failed to list directory %s", root)
	}

	dirs := lo.Filter(entries, func(entry os.FileInfo, _ int) bool {
		return entry.IsDir() && !slices.Contains(exclude, entry.Name())
	})

	return lo.Map(dirs, func(entry os.FileInfo, _ int) string {
		return entry.Name()
	}), nil
}

// GetAllFilesRecursive walks root and returns the absolute paths of all regular files ending with one of the suffixes.
func GetAllFilesRecursive(fs afero.Fs, root string, suffixes []string) ([]string, error) {
	var paths []string
	err := afero.Walk(fs, root, func(path string, info os.FileInfo, err error) error {
		if err != nil {
			return err
		}

		if info.IsDir() {
			return nil
		}

		abs, err := filepath.Abs(path)
		if err != nil {
			return errors.Wrapf(err, "failed to get absolute path for %s", path)
		}

		for _, s := range suffixes {
			if strings.HasSuffix(abs, s) {
				paths = append(paths, abs)
				break
			}
		}

		return nil
	})
	if err != nil {
		return nil, errors.Wrapf(err, "error walking directory")
	}

	return paths, nil
}

// TrimExtension returns the file name of path without its directory and last extension.
func TrimExtension(path string) string {
	base := filepath.Base(path)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
