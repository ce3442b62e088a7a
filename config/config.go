// Package config loads a plan.Config from a TOML file. It intentionally
// does not implement preset/profile inheritance between files; see
// SPEC_FULL.md's ambient-stack config note for why a single flat decode is
// the right scope here.
package config

import (
	"github.com/BurntSushi/toml"

	"github.com/bogen85/cmdforge/errs"
	"github.com/bogen85/cmdforge/plan"
)

// Load decodes path into a plan.Config.
func Load(path string) (plan.Config, error) {
	var cfg plan.Config
	if _, err := toml.DecodeFile(path, &cfg); err != nil {
		return plan.Config{}, errs.New(errs.Config, "failed to decode config file "+path, err)
	}
	return cfg, nil
}
