// Package plugins implements the PluginHost: discovers dynamic libraries,
// resolves their two-symbol C-ABI surface, and drives each through a
// Registered -> Initialized -> (Disabled <-> Initialized) -> Unloaded
// lifecycle, with any state able to fail into Failed.
package plugins

import (
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	goplugin "plugin"
	"sync"

	"github.com/google/uuid"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/core/services/hooks"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

// Plugin is what a dynamic library's _plugin_create symbol must return.
type Plugin interface {
	Info() domain.PluginInfo
	OnLoad(api *ScopedAPI, core CoreModules) error
	OnUnload() error
}

// CoreModules is the read surface a plugin's OnLoad receives: enough of the
// running agent to inspect state, never enough to bypass the hook mesh to
// mutate it.
type CoreModules struct {
	Mood    MoodReader
	Session SessionReader
	Epoch   EpochReader
}

// MoodReader, SessionReader and EpochReader are the narrow read-only
// capabilities CoreModules exposes; MoodAutomaton, SessionStore and Epoch
// satisfy them without a new adapter.
type (
	MoodReader    interface{ State() domain.Mood }
	SessionReader interface{ GetSession() domain.Session }
	EpochReader   interface{ Snapshot() domain.EpochData }
)

// ScopedAPI is the hook-registration handle a plugin's OnLoad receives: every
// registration it makes through this handle is attributed to the plugin for
// bulk teardown.
type ScopedAPI struct {
	registry *hooks.Registry
	plugin   string
}

func (s *ScopedAPI) RegisterBefore(site string, fn hooks.BeforeFunc) uint64 {
	return s.registry.RegisterBeforeForPlugin(s.plugin, site, fn)
}

func (s *ScopedAPI) RegisterAfter(site string, fn hooks.AfterFunc) uint64 {
	return s.registry.RegisterAfterForPlugin(s.plugin, site, fn)
}

func (s *ScopedAPI) RegisterInstead(site string, fn hooks.InsteadFunc) uint64 {
	return s.registry.RegisterInsteadForPlugin(s.plugin, site, fn)
}

// createSymbol and destroySymbol are the two C-ABI entry points every plugin
// shared object exports.
const (
	createSymbol  = "_plugin_create"
	destroySymbol = "_plugin_destroy"
)

type entry struct {
	plugin Plugin
	id     string
	state  domain.PluginState
	err    error
	enable bool // configured-enabled, from plugins.<name>.enabled
}

// EnabledFunc reports whether a freshly discovered plugin is configured
// enabled; a plugin config absent from the table defaults to enabled.
type EnabledFunc func(name string) bool

// Host loads, initializes, toggles and tears down plugins.
type Host struct {
	mu      sync.Mutex
	entries map[string]*entry

	hooks   *hooks.Registry
	core    CoreModules
	log     *slog.Logger
	enabled EnabledFunc
}

// New constructs a Host. enabled may be nil, in which case every discovered
// plugin starts enabled.
func New(h *hooks.Registry, core CoreModules, enabled EnabledFunc, log *slog.Logger) *Host {
	if enabled == nil {
		enabled = func(string) bool { return true }
	}
	if log == nil {
		log = slog.Default()
	}
	return &Host{entries: map[string]*entry{}, hooks: h, core: core, enabled: enabled, log: log}
}

// Discover globs dir for shared objects (.so/.dll/.dylib), opens each with
// plugin.Open, resolves _plugin_create, and registers the result. A library
// that fails to open or resolve is logged and skipped, not fatal to the
// others.
func (h *Host) Discover(dir string) error {
	matches, err := globPluginFiles(dir)
	if err != nil {
		return err
	}
	for _, path := range matches {
		if err := h.load(path); err != nil {
			h.log.Error("failed to load plugin", "path", path, "error", err)
		}
	}
	return nil
}

func globPluginFiles(dir string) ([]string, error) {
	var out []string
	for _, pattern := range []string{"*.so", "*.dll", "*.dylib"} {
		matches, err := filepath.Glob(filepath.Join(dir, pattern))
		if err != nil {
			return nil, err
		}
		out = append(out, matches...)
	}
	return out, nil
}

func (h *Host) load(path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic opening plugin %s: %v", path, r)
		}
	}()

	lib, err := goplugin.Open(path)
	if err != nil {
		return err
	}
	createSym, err := lib.Lookup(createSymbol)
	if err != nil {
		return err
	}
	create, ok := createSym.(func() Plugin)
	if !ok {
		return fmt.Errorf("plugin %s: %s has the wrong signature", path, createSymbol)
	}
	// _plugin_destroy is resolved for symmetry with the plugin ABI; Go's
	// plugin.Open has no unload primitive, and the symbol is never invoked.
	destroy, _ := lib.Lookup(destroySymbol)

	p := create()
	return h.Register(p, destroy)
}

// Register adds a freshly created Plugin object to the host, computing its
// initial state from the enabled-config callback. destroySym is accepted for
// ABI completeness but is neither stored nor invoked.
func (h *Host) Register(p Plugin, destroySym goplugin.Symbol) error {
	info := p.Info()
	if info.Name == "" {
		return errors.New("plugin Info().Name must not be empty")
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	if _, exists := h.entries[info.Name]; exists {
		return fmt.Errorf("plugin %q is already loaded", info.Name)
	}

	state := domain.PluginRegistered
	if !h.enabled(info.Name) {
		state = domain.PluginDisabled
	}

	h.entries[info.Name] = &entry{
		plugin: p,
		id:     uuid.NewString(),
		state:  state,
		enable: state != domain.PluginDisabled,
	}
	_ = destroySym // resolved for ABI completeness; see Register's doc comment
	telemetry.PluginState.WithLabelValues(info.Name).Set(float64(state))
	return nil
}

// InitializeAll runs OnLoad for every Registered plugin, transitioning each
// to Initialized on success or Failed (with hooks torn down) on error or
// panic.
func (h *Host) InitializeAll() {
	h.mu.Lock()
	names := make([]string, 0, len(h.entries))
	for name, e := range h.entries {
		if e.state == domain.PluginRegistered {
			names = append(names, name)
		}
	}
	h.mu.Unlock()

	for _, name := range names {
		h.initialize(name)
	}
}

func (h *Host) initialize(name string) {
	h.mu.Lock()
	e, ok := h.entries[name]
	h.mu.Unlock()
	if !ok {
		return
	}

	err := h.callOnLoad(name, e.plugin)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		e.state = domain.PluginFailed
		e.err = err
		h.hooks.TeardownPlugin(name)
		h.log.Error("plugin failed to initialize", "plugin", name, "error", err)
		telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
		return
	}
	e.state = domain.PluginInitialized
	h.log.Info("plugin initialized", "plugin", name)
	telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
}

func (h *Host) callOnLoad(name string, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %q panicked in OnLoad: %v", name, r)
		}
	}()
	api := &ScopedAPI{registry: h.hooks, plugin: name}
	return p.OnLoad(api, h.core)
}

// Toggle flips a plugin between Initialized and Disabled, calling OnLoad or
// OnUnload as appropriate. Returns an error if the plugin is unknown or in a
// state (Registered, Failed) that cannot be toggled.
func (h *Host) Toggle(name string) error {
	h.mu.Lock()
	e, ok := h.entries[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %q not found", name)
	}

	switch e.state {
	case domain.PluginInitialized:
		return h.Disable(name)
	case domain.PluginDisabled:
		return h.Enable(name)
	default:
		return fmt.Errorf("plugin %q cannot be toggled from state %s", name, e.state)
	}
}

// Enable re-runs OnLoad for a Disabled plugin.
func (h *Host) Enable(name string) error {
	h.mu.Lock()
	e, ok := h.entries[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %q not found", name)
	}

	err := h.callOnLoad(name, e.plugin)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		e.state = domain.PluginFailed
		e.err = err
		h.hooks.TeardownPlugin(name)
		telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
		return err
	}
	e.state = domain.PluginInitialized
	telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
	return nil
}

// Disable calls OnUnload and tears down every hook the plugin registered.
func (h *Host) Disable(name string) error {
	h.mu.Lock()
	e, ok := h.entries[name]
	h.mu.Unlock()
	if !ok {
		return fmt.Errorf("plugin %q not found", name)
	}

	err := h.callOnUnload(name, e.plugin)
	h.hooks.TeardownPlugin(name)

	h.mu.Lock()
	defer h.mu.Unlock()
	if err != nil {
		e.state = domain.PluginFailed
		e.err = err
		telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
		return err
	}
	e.state = domain.PluginDisabled
	telemetry.PluginState.WithLabelValues(name).Set(float64(e.state))
	return nil
}

func (h *Host) callOnUnload(name string, p Plugin) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("plugin %q panicked in OnUnload: %v", name, r)
		}
	}()
	return p.OnUnload()
}

// ShutdownAll unloads every plugin, best-effort: it records but does not
// stop on a per-plugin OnUnload error.
func (h *Host) ShutdownAll() {
	h.mu.Lock()
	names := make([]string, 0, len(h.entries))
	for name := range h.entries {
		names = append(names, name)
	}
	h.mu.Unlock()

	for _, name := range names {
		h.mu.Lock()
		e := h.entries[name]
		h.mu.Unlock()
		if e == nil || e.state == domain.PluginUnloaded || e.state == domain.PluginDisabled {
			continue
		}
		if err := h.callOnUnload(name, e.plugin); err != nil {
			h.log.Error("plugin OnUnload failed during shutdown", "plugin", name, "error", err)
		}
		h.hooks.TeardownPlugin(name)
		h.mu.Lock()
		e.state = domain.PluginUnloaded
		h.mu.Unlock()
		telemetry.PluginState.WithLabelValues(name).Set(float64(domain.PluginUnloaded))
	}
}

// State returns a plugin's current lifecycle state and last error, if any.
func (h *Host) State(name string) (domain.PluginState, error, bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	e, ok := h.entries[name]
	if !ok {
		return 0, nil, false
	}
	return e.state, e.err, true
}

// Names returns every registered plugin's name.
func (h *Host) Names() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, 0, len(h.entries))
	for name := range h.entries {
		out = append(out, name)
	}
	return out
}
