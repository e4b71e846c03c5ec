package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/fairyhunter13/code-eval-worker/internal/domain"
)

// ToolchainSpec overrides the built-in compile/run invocation for one
// language. Zero-valued fields keep the compiled-in default, so an
// operator can repoint a single compiler path without restating the
// whole table.
type ToolchainSpec struct {
	CompileArgs       []string `yaml:"compile_args"`
	RunArgs           []string `yaml:"run_args"`
	CompileTimeoutSec int      `yaml:"compile_timeout_sec"`
	CompileMemoryMB   int      `yaml:"compile_memory_mb"`
}

// ToolchainFile is the on-disk shape of the TOOLCHAIN_CONFIG YAML.
type ToolchainFile struct {
	Toolchains map[string]ToolchainSpec `yaml:"toolchains"`
}

// LoadToolchains reads the optional toolchain override file. An empty
// path means no overrides. Unknown language keys are rejected so a
// typo does not silently leave the default in place.
func LoadToolchains(path string) (map[domain.Language]ToolchainSpec, error) {
	if path == "" {
		return nil, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("op=config.LoadToolchains: read %s: %w", path, err)
	}
	var f ToolchainFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("op=config.LoadToolchains: parse %s: %w", path, err)
	}
	out := make(map[domain.Language]ToolchainSpec, len(f.Toolchains))
	for key, spec := range f.Toolchains {
		lang, err := domain.ParseLanguage(key)
		if err != nil {
			return nil, fmt.Errorf("op=config.LoadToolchains: %s: language %q: %w", path, key, domain.ErrInvalidArgument)
		}
		out[lang] = spec
	}
	return out, nil
}
