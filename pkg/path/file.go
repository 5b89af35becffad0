package path

import (
	"github.com/pkg/errors"
	"github.com/spf13/afero"
	"gopkg.in/yaml.v3"
)

func ReadYaml(fs afero.Fs, path string, out interface{}) error {
	buf, err := afero.ReadFile(fs, path)
	if err != nil {
		return errors.Wrapf(err, "failed to read file %s", path)
	}

	err = yaml.Unmarshal(buf, out)
	if err != nil {
		return errors.Wrapf(err, "failed to parse YAML file %s", path)
	}

	return nil
}

func WriteYaml(fs afero.Fs, path string, content interface{}) error {
	buf, err := yaml.Marshal(content)
	if err != nil {
		return errors.Wrapf(err, "failed to marshal object to yaml")
	}

	err = afero.WriteFile(fs, path, buf, 0o644)
	if err != nil {
		return errors.Wrapf(err, "failed to write YAML file to %s", path)
	}

	return nil
}

// RemoveDirs removes every given directory tree. Missing directories are not an error.
func RemoveDirs(fs afero.Fs, dirs ...string) error {
	for _, dir := range dirs {
		if err := fs.RemoveAll(dir); err != nil {
			return errors.Wrapf(err, "failed to remove directory %s", dir)
		}
	}

	return nil
}
