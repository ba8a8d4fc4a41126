package config

import (
	"sync"

	"github.com/caarlos0/env/v11"
)

type designModeEnv struct {
	DesignMode bool `env:"DESIGN_MODE"`
}

var designMode = sync.OnceValue(func() bool {
	var v designModeEnv
	if err := env.ParseWithOptions(&v, env.Options{Prefix: EnvPrefix}); err != nil {
		return false
	}
	return v.DesignMode
})

// DesignMode reports whether AFFINITY_DESIGN_MODE is set to a true value.
// The environment is read once per process.
func DesignMode() bool {
	return designMode()
}
