// Package config loads runtime settings for the affinity tools.
//
// Settings are layered: built-in defaults, then an optional TOML file, then
// environment variables with the AFFINITY_ prefix:
//
//	backend = "loop"        # loop, terminal or passthrough
//	lock_os_thread = true
//	log_level = "debug"
//	log_format = "json"
//	script = "init.lua"
//	watch = true
//
// A missing file is not an error. AFFINITY_BACKEND=terminal overrides the
// file's backend, and so on for every key.
//
// DesignMode reports whether the process runs in design mode, where no real
// affinity goroutine should be started.
package config
