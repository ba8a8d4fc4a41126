// Package script hosts a Lua interpreter that lives on the affinity goroutine.
//
// gopher-lua's LState is not goroutine-safe. Instead of guarding it with a
// mutex, Host confines the state to the affinity goroutine: every Go entry
// point (DoString, DoFile, Call, SetProperty, Close) marshals its work through
// an affinity.Executor with RunSync, so callers on any goroutine get the
// result and any error back synchronously.
//
// Scripts see these globals:
//
//	defer(fn)            -- run fn later on the affinity goroutine
//	on_affinity()        -- true when running on the affinity goroutine
//	log(msg)             -- write a line to the host's output
//	get(key)             -- read a property
//	set(key, value)      -- write a property and notify listeners
//	on_property(fn)      -- fn(key, value) after every property change
//	on_keys(fn)          -- fn(key) when a new property key appears
//
// Property listeners are invoked through the executor's PropertyChanged
// reactor and key listeners through its CollectionChanged reactor.
package script
