package e2e

import (
	"fmt"

	"github.com/pkg/errors"
	"github.com/spf13/afero"
)

// MissingFixtureError is returned when an artifact has no expectation file next to it.
type MissingFixtureError struct {
	Path string
}

func (e *MissingFixtureError) Error() string {
	return fmt.Sprintf("missing expectation fixture '%s'", e.Path)
}

// ReadExpectation returns the exact content of the expectation file at path.
func ReadExpectation(fs afero.Fs, path string) (string, error) {
	exists, err := afero.Exists(fs, path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to check expectation fixture %s", path)
	}
	if !exists {
		return "", &MissingFixtureError{Path: path}
	}

	isDir, err := afero.IsDir(fs, path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to check expectation fixture %s", path)
	}
	if isDir {
		return "", fmt.Errorf("expectation fixture '%s' is a directory", path)
	}

	content, err := afero.ReadFile(fs, path)
	if err != nil {
		return "", errors.Wrapf(err, "failed to read expectation fixture %s", path)
	}

	return string(content), nil
}
