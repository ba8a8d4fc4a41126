package main

import (
	"testing"

	"github.com/dshills/affinity/internal/config"
)

func TestFlagsApply(t *testing.T) {
	tests := []struct {
		name  string
		flags flags
		want  config.Config
	}{
		{
			name:  "empty keeps config",
			flags: flags{},
			want:  config.Default(),
		},
		{
			name:  "overrides",
			flags: flags{script: "init.lua", backend: "terminal", logLevel: "debug", watch: true},
			want: config.Config{
				Backend:   "terminal",
				LogLevel:  "debug",
				LogFormat: "text",
				Script:    "init.lua",
				Watch:     true,
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := config.Default()
			tt.flags.apply(&cfg)
			if cfg != tt.want {
				t.Errorf("apply() = %+v, want %+v", cfg, tt.want)
			}
		})
	}
}
