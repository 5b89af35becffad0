package config

import (
	"errors"
	"fmt"
	fs2 "io/fs"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/samber/lo"
	"github.com/spf13/afero"
	path2 "github.com/xmos/xetest/pkg/path"
)

const (
	DefaultFileName = ".xetest.yml"

	// DefaultBuildToolKey is the build_tools entry used when the host OS has no explicit entry.
	DefaultBuildToolKey = "default"
)

// DefaultExclude lists the directory names under the test root that are never test cases.
var DefaultExclude = []string{".pytest_cache", "__pycache__"}

type Config struct {
	ToolchainFile     string            `yaml:"toolchain_file"`
	BuildDir          string            `yaml:"build_dir"`
	BinDir            string            `yaml:"bin_dir"`
	ArtifactExtension string            `yaml:"artifact_extension"`
	ExpectExtension   string            `yaml:"expect_extension"`
	ConfigureTool     string            `yaml:"configure_tool"`
	Simulator         string            `yaml:"simulator"`
	BuildTools        map[string]string `yaml:"build_tools"`
	Exclude           []string          `yaml:"exclude,omitempty"`
	Env               map[string]string `yaml:"env,omitempty"`
	Timeout           time.Duration     `yaml:"timeout"`
	Workers           int               `yaml:"workers"`
}

func Default() *Config {
	return &Config{
		// cmake resolves this relative to the case directory, so it is never converted to an OS path.
		ToolchainFile:     "../../xmos_cmake_toolchain/xs3a.cmake",
		BuildDir:          "build",
		BinDir:            "bin",
		ArtifactExtension: ".xe",
		ExpectExtension:   ".expect",
		ConfigureTool:     "cmake",
		Simulator:         "xsim",
		BuildTools: map[string]string{
			"windows":           "ninja",
			DefaultBuildToolKey: "make",
		},
		Workers: 1,
	}
}

// LoadFromFile reads the config at path on top of the defaults. Entries under build_tools are merged
// into the default mapping rather than replacing it.
func LoadFromFile(fs afero.Fs, path string) (*Config, error) {
	config := Default()

	err := path2.ReadYaml(fs, path, config)
	if err != nil {
		return nil, err
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config file '%s': %w", path, err)
	}

	return config, nil
}

// LoadForRoot loads explicitPath if given, otherwise the optional DefaultFileName in the test root.
func LoadForRoot(fs afero.Fs, root, explicitPath string) (*Config, error) {
	if explicitPath != "" {
		return LoadFromFile(fs, explicitPath)
	}

	config, err := LoadFromFile(fs, filepath.Join(root, DefaultFileName))
	if err != nil && errors.Is(err, fs2.ErrNotExist) {
		return Default(), nil
	}

	return config, err
}

// ExcludedNames merges DefaultExclude with the configured extras.
func (c *Config) ExcludedNames() []string {
	return lo.Uniq(append(slices.Clone(DefaultExclude), c.Exclude...))
}

// Environ returns the env entries as sorted KEY=VALUE pairs, added to the environment of every
// cmake, build tool and simulator invocation.
func (c *Config) Environ() []string {
	keys := lo.Keys(c.Env)
	slices.Sort(keys)
	return lo.Map(keys, func(k string, _ int) string { return k + "=" + c.Env[k] })
}

// BuildTool resolves the build tool for the given GOOS value.
func (c *Config) BuildTool(goos string) (string, error) {
	if tool, ok := c.BuildTools[goos]; ok && tool != "" {
		return tool, nil
	}

	if tool, ok := c.BuildTools[DefaultBuildToolKey]; ok && tool != "" {
		return tool, nil
	}

	return "", fmt.Errorf("no build tool configured for platform '%s' and no '%s' entry", goos, DefaultBuildToolKey)
}

func (c *Config) Validate() error {
	required := [][2]string{
		{"toolchain_file", c.ToolchainFile},
		{"build_dir", c.BuildDir},
		{"bin_dir", c.BinDir},
		{"configure_tool", c.ConfigureTool},
		{"simulator", c.Simulator},
	}
	for _, field := range required {
		if strings.TrimSpace(field[1]) == "" {
			return fmt.Errorf("'%s' must not be empty", field[0])
		}
	}

	// both directories are wiped before and after every case
	for _, field := range [][2]string{{"build_dir", c.BuildDir}, {"bin_dir", c.BinDir}} {
		if err := validateCaseSubdir(field[0], field[1]); err != nil {
			return err
		}
	}

	for key := range c.Env {
		if key == "" || strings.ContainsAny(key, "= ") {
			return fmt.Errorf("invalid env variable name '%s'", key)
		}
	}

	if filepath.Clean(c.BuildDir) == filepath.Clean(c.BinDir) {
		return fmt.Errorf("'build_dir' and 'bin_dir' must differ, both are '%s'", c.BuildDir)
	}

	for _, field := range [][2]string{{"artifact_extension", c.ArtifactExtension}, {"expect_extension", c.ExpectExtension}} {
		if !strings.HasPrefix(field[1], ".") || len(field[1]) < 2 {
			return fmt.Errorf("'%s' must start with a dot, got '%s'", field[0], field[1])
		}
	}

	if c.ArtifactExtension == c.ExpectExtension {
		return fmt.Errorf("'artifact_extension' and 'expect_extension' must differ, both are '%s'", c.ArtifactExtension)
	}

	if c.Timeout < 0 {
		return fmt.Errorf("'timeout' must not be negative, got %s", c.Timeout)
	}

	if c.Workers < 1 {
		return fmt.Errorf("'workers' must be at least 1, got %d", c.Workers)
	}

	return nil
}

// validateCaseSubdir accepts only relative paths that stay strictly inside the case directory.
func validateCaseSubdir(field, dir string) error {
	if filepath.IsAbs(dir) || filepath.VolumeName(dir) != "" {
		return fmt.Errorf("'%s' must be relative to the test case directory, got '%s'", field, dir)
	}

	cleaned := filepath.Clean(dir)
	if cleaned == "." || cleaned == ".." || strings.HasPrefix(cleaned, ".."+string(filepath.Separator)) {
		return fmt.Errorf("'%s' must point to a subdirectory of the test case directory, got '%s'", field, dir)
	}

	return nil
}
