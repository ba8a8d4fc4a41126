package script

import (
	"fmt"
	"log/slog"
	"sort"

	lua "github.com/yuin/gopher-lua"

	"github.com/dshills/affinity/internal/affinity"
)

// Host owns one Lua state confined to the affinity goroutine.
type Host struct {
	exec   *affinity.Executor
	logger *slog.Logger
	output func(line string)

	// Affinity-confined; only touched inside exec.RunSync or posted actions.
	L                 *lua.LState
	props             map[string]string
	propertyListeners []*lua.LFunction
	keyListeners      []*lua.LFunction
}

// Option configures a Host.
type Option func(*Host)

// WithLogger sets the logger for deferred-callback failures.
func WithLogger(logger *slog.Logger) Option {
	return func(h *Host) {
		if logger != nil {
			h.logger = logger
		}
	}
}

// WithOutput sets the sink for the log() global. It is called on the affinity
// goroutine.
func WithOutput(fn func(line string)) Option {
	return func(h *Host) {
		h.output = fn
	}
}

// NewHost creates the Lua state on the executor's affinity goroutine.
func NewHost(exec *affinity.Executor, opts ...Option) (*Host, error) {
	h := &Host{
		exec:   exec,
		logger: slog.New(slog.DiscardHandler),
		props:  make(map[string]string),
	}
	for _, opt := range opts {
		opt(h)
	}
	if h.output == nil {
		h.output = func(line string) {
			h.logger.Info(line, slog.String("source", "lua"))
		}
	}

	err := exec.RunSync(func() error {
		L := lua.NewState(lua.Options{SkipOpenLibs: true})
		openSafeLibraries(L)
		h.L = L
		h.registerGlobals()
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("creating lua state: %w", err)
	}
	return h, nil
}

// openSafeLibraries opens only the Lua libraries without host access.
func openSafeLibraries(L *lua.LState) {
	lua.OpenBase(L)
	lua.OpenTable(L)
	lua.OpenString(L)
	lua.OpenMath(L)
}

func (h *Host) registerGlobals() {
	h.L.SetGlobal("defer", h.L.NewFunction(h.luaDefer))
	h.L.SetGlobal("on_affinity", h.L.NewFunction(h.luaOnAffinity))
	h.L.SetGlobal("log", h.L.NewFunction(h.luaLog))
	h.L.SetGlobal("get", h.L.NewFunction(h.luaGet))
	h.L.SetGlobal("set", h.L.NewFunction(h.luaSet))
	h.L.SetGlobal("on_property", h.L.NewFunction(h.luaOnProperty))
	h.L.SetGlobal("on_keys", h.L.NewFunction(h.luaOnKeys))
}

// DoString runs code on the affinity goroutine.
func (h *Host) DoString(code string) error {
	return h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		return h.L.DoString(code)
	})
}

// DoFile runs the Lua file at path on the affinity goroutine.
func (h *Host) DoFile(path string) error {
	return h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		return h.L.DoFile(path)
	})
}

// Call invokes the global function name with string arguments and returns its
// first result as a string.
func (h *Host) Call(name string, args ...string) (string, error) {
	var result string
	err := h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}

		fn := h.L.GetGlobal(name)
		if fn.Type() != lua.LTFunction {
			return fmt.Errorf("%w: %q (got %s)", ErrNotFunction, name, fn.Type())
		}

		largs := make([]lua.LValue, len(args))
		for i, a := range args {
			largs[i] = lua.LString(a)
		}
		if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 1, Protect: true}, largs...); err != nil {
			return err
		}

		ret := h.L.Get(-1)
		h.L.Pop(1)
		if ret != lua.LNil {
			result = ret.String()
		}
		return nil
	})
	return result, err
}

// SetProperty stores a property and notifies script listeners.
func (h *Host) SetProperty(key, value string) error {
	return h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		return h.setProperty(key, value)
	})
}

// Property returns a property value.
func (h *Host) Property(key string) (string, bool, error) {
	var value string
	var ok bool
	err := h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		value, ok = h.props[key]
		return nil
	})
	return value, ok, err
}

// Keys returns the property keys in sorted order.
func (h *Host) Keys() ([]string, error) {
	var keys []string
	err := h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		keys = make([]string, 0, len(h.props))
		for k := range h.props {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		return nil
	})
	return keys, err
}

// Close releases the Lua state.
func (h *Host) Close() error {
	return h.exec.RunSync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		h.L.Close()
		h.L = nil
		h.propertyListeners = nil
		h.keyListeners = nil
		return nil
	})
}

// setProperty runs on the affinity goroutine.
func (h *Host) setProperty(key, value string) error {
	_, existed := h.props[key]
	h.props[key] = value

	if !existed {
		err := h.exec.CollectionChanged()(func() error {
			return h.notify(h.keyListeners, lua.LString(key))
		})
		if err != nil {
			return err
		}
	}

	return h.exec.PropertyChanged()(func() error {
		return h.notify(h.propertyListeners, lua.LString(key), lua.LString(value))
	})
}

func (h *Host) notify(listeners []*lua.LFunction, args ...lua.LValue) error {
	for _, fn := range listeners {
		if err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true}, args...); err != nil {
			return err
		}
	}
	return nil
}

func (h *Host) luaDefer(L *lua.LState) int {
	fn := L.CheckFunction(1)
	h.exec.PostAsync(func() error {
		if h.L == nil {
			return ErrHostClosed
		}
		err := h.L.CallByParam(lua.P{Fn: fn, NRet: 0, Protect: true})
		if err != nil {
			h.logger.Warn("deferred lua callback failed", slog.Any("error", err))
		}
		return err
	})
	return 0
}

func (h *Host) luaOnAffinity(L *lua.LState) int {
	L.Push(lua.LBool(h.exec.Dispatcher().IsCurrent()))
	return 1
}

func (h *Host) luaLog(L *lua.LState) int {
	h.output(L.CheckString(1))
	return 0
}

func (h *Host) luaGet(L *lua.LState) int {
	value, ok := h.props[L.CheckString(1)]
	if !ok {
		L.Push(lua.LNil)
		return 1
	}
	L.Push(lua.LString(value))
	return 1
}

func (h *Host) luaSet(L *lua.LState) int {
	key := L.CheckString(1)
	value := L.CheckString(2)
	if err := h.setProperty(key, value); err != nil {
		L.RaiseError("set %s: %s", key, err.Error())
	}
	return 0
}

func (h *Host) luaOnProperty(L *lua.LState) int {
	h.propertyListeners = append(h.propertyListeners, L.CheckFunction(1))
	return 0
}

func (h *Host) luaOnKeys(L *lua.LState) int {
	h.keyListeners = append(h.keyListeners, L.CheckFunction(1))
	return 0
}
