// Package hooks implements the metaprogramming call-site mesh: named
// function sites can be wrapped with before/after/instead callbacks
// registered at runtime, without editing the call site itself.
//
// Go has no native Any/downcast the way Rust's Box<dyn Any> does, and no
// bincode. reflect.TypeOf equality stands in for the type-identity check;
// encoding/gob stands in for the cross-binary serialized fallback, since gob
// round-trips Go's richer type set (unlike JSON, it preserves concrete types
// through an interface boundary without a wrapper envelope).
package hooks

import (
	"bytes"
	"encoding/gob"
	"errors"
	"reflect"
	"sync"
	"sync/atomic"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
	"github.com/lcalzada-xor/nightjar/internal/telemetry"
)

// ErrTypeMismatch names the failure of a stored value's type to downcast or
// deserialize to a requested type. Get does not return it; Get reports that
// case through its ok flag.
var ErrTypeMismatch = errors.New("hooks: type mismatch")

// Value is one captured argument or return value: a type-erased box plus
// enough metadata to retrieve it across a type-identity boundary.
type Value struct {
	TypeName   string
	Val        any
	Serialized []byte
}

// Capture boxes v, recording its type name for later identity checks.
func Capture(v any) Value {
	return Value{TypeName: typeName(v), Val: v}
}

func typeName(v any) string {
	if v == nil {
		return "<nil>"
	}
	return reflect.TypeOf(v).String()
}

// CaptureSerialized boxes v and also gob-encodes it, for retrieval across a
// dynamically-loaded plugin that does not share Go's in-process type
// identity (e.g. after a plugin.Open boundary).
func CaptureSerialized(v any) Value {
	val := Capture(v)
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(v); err == nil {
		val.Serialized = buf.Bytes()
	}
	return val
}

// Get attempts a strict downcast first, then falls back to gob-decoding the
// serialized bytes into a zero value of T.
func Get[T any](v Value) (T, bool) {
	var zero T
	if val, ok := v.Val.(T); ok {
		return val, true
	}
	if v.Serialized != nil {
		var out T
		if err := gob.NewDecoder(bytes.NewReader(v.Serialized)).Decode(&out); err == nil {
			return out, true
		}
	}
	return zero, false
}

// HookArgs is the heterogeneous argument buffer passed to before/instead
// callbacks.
type HookArgs []Value

// Get returns the i'th argument as a boxed Value, with ok false when i is out
// of range; use the package-level Get[T] to downcast it.
func (a HookArgs) Get(i int) (Value, bool) {
	if i < 0 || i >= len(a) {
		return Value{}, false
	}
	return a[i], true
}

// HookReturn is the (possibly absent) captured return value passed to after
// callbacks.
type HookReturn struct {
	Present bool
	Value   Value
}

// BeforeOutcome is what a before-hook returns: either a possibly-modified
// HookArgs to continue with, a request to stop (returning R's zero value),
// or an error (not logged; the call continues with unmodified args).
type BeforeOutcome struct {
	Args HookArgs
	Stop bool
	Err  error
}

// ContinueWith builds a BeforeOutcome that carries on with modified args.
func ContinueWith(args HookArgs) BeforeOutcome { return BeforeOutcome{Args: args} }

// StopBefore builds a BeforeOutcome that short-circuits the call.
func StopBefore() BeforeOutcome { return BeforeOutcome{Stop: true} }

// AfterOutcome is what an after-hook returns.
type AfterOutcome struct {
	Return HookReturn
	Stop   bool
	Err    error
}

// InsteadOutcome is what the single instead-hook for a site returns.
type InsteadOutcome struct {
	Returned bool
	Return   HookReturn
	Delegate bool
	Args     HookArgs
	Err      error
}

// BeforeFunc, AfterFunc and InsteadFunc are the three callback shapes a
// plugin can register at a site.
type (
	BeforeFunc  func(HookArgs) BeforeOutcome
	AfterFunc   func(HookArgs, HookReturn) AfterOutcome
	InsteadFunc func(HookArgs) InsteadOutcome
)

type insteadEntry struct {
	id uint64
	fn InsteadFunc
}

type siteRegistry struct {
	mu        sync.RWMutex
	before    map[uint64]BeforeFunc
	beforeIDs []uint64 // registration order; map iteration order is not guaranteed
	after     map[uint64]AfterFunc
	afterIDs  []uint64
	instead   *insteadEntry
}

func newSiteRegistry() *siteRegistry {
	return &siteRegistry{before: map[uint64]BeforeFunc{}, after: map[uint64]AfterFunc{}}
}

type registrationRef struct {
	site string
	kind domain.HookKind
	id   uint64
}

// Registry is the process-global hook mesh. One Registry is shared by every
// wrapped Agent call site and by PluginHost for teardown bookkeeping.
type Registry struct {
	mu        sync.RWMutex
	sites     map[string]*siteRegistry
	inventory map[string]domain.HookDescriptor

	nextID atomic.Uint64

	pluginMu   sync.Mutex
	pluginRegs map[string][]registrationRef
}

// New constructs an empty Registry.
func New() *Registry {
	return &Registry{
		sites:      map[string]*siteRegistry{},
		inventory:  map[string]domain.HookDescriptor{},
		pluginRegs: map[string][]registrationRef{},
	}
}

// Describe registers a site's static HookDescriptor in the read-only
// inventory. Called once per site at startup, before any Invoke.
func (r *Registry) Describe(d domain.HookDescriptor) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.inventory[d.Name] = d
	if _, ok := r.sites[d.Name]; !ok {
		r.sites[d.Name] = newSiteRegistry()
	}
}

// Inventory returns a copy of the static descriptor table.
func (r *Registry) Inventory() []domain.HookDescriptor {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]domain.HookDescriptor, 0, len(r.inventory))
	for _, d := range r.inventory {
		out = append(out, d)
	}
	return out
}

func (r *Registry) site(name string) *siteRegistry {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.sites[name]
	if !ok {
		s = newSiteRegistry()
		r.sites[name] = s
	}
	return s
}

// RegisterBefore adds a before-hook at site, returning its registration id.
func (r *Registry) RegisterBefore(site string, fn BeforeFunc) uint64 {
	id := r.nextID.Add(1)
	s := r.site(site)
	s.mu.Lock()
	s.before[id] = fn
	s.beforeIDs = append(s.beforeIDs, id)
	s.mu.Unlock()
	return id
}

// RegisterAfter adds an after-hook at site, returning its registration id.
func (r *Registry) RegisterAfter(site string, fn AfterFunc) uint64 {
	id := r.nextID.Add(1)
	s := r.site(site)
	s.mu.Lock()
	s.after[id] = fn
	s.afterIDs = append(s.afterIDs, id)
	s.mu.Unlock()
	return id
}

// RegisterInstead installs the site's instead-hook, overwriting any
// previously registered one (at most one instead callback per site).
func (r *Registry) RegisterInstead(site string, fn InsteadFunc) uint64 {
	id := r.nextID.Add(1)
	s := r.site(site)
	s.mu.Lock()
	s.instead = &insteadEntry{id: id, fn: fn}
	s.mu.Unlock()
	return id
}

// UnregisterBefore removes a before-hook by id; reports whether it existed.
func (r *Registry) UnregisterBefore(site string, id uint64) bool {
	s := r.site(site)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.before[id]; !ok {
		return false
	}
	delete(s.before, id)
	s.beforeIDs = removeID(s.beforeIDs, id)
	return true
}

// UnregisterAfter removes an after-hook by id; reports whether it existed.
func (r *Registry) UnregisterAfter(site string, id uint64) bool {
	s := r.site(site)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.after[id]; !ok {
		return false
	}
	delete(s.after, id)
	s.afterIDs = removeID(s.afterIDs, id)
	return true
}

func removeID(ids []uint64, id uint64) []uint64 {
	for i, existing := range ids {
		if existing == id {
			return append(ids[:i], ids[i+1:]...)
		}
	}
	return ids
}

// UnregisterInstead removes the site's instead-hook if its id matches.
func (r *Registry) UnregisterInstead(site string, id uint64) bool {
	s := r.site(site)
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.instead == nil || s.instead.id != id {
		return false
	}
	s.instead = nil
	return true
}

// RegisterBeforeForPlugin is RegisterBefore plus bookkeeping for bulk
// teardown when the owning plugin unloads.
func (r *Registry) RegisterBeforeForPlugin(plugin, site string, fn BeforeFunc) uint64 {
	id := r.RegisterBefore(site, fn)
	r.trackPluginReg(plugin, site, domain.HookBefore, id)
	return id
}

// RegisterAfterForPlugin is RegisterAfter plus plugin teardown bookkeeping.
func (r *Registry) RegisterAfterForPlugin(plugin, site string, fn AfterFunc) uint64 {
	id := r.RegisterAfter(site, fn)
	r.trackPluginReg(plugin, site, domain.HookAfter, id)
	return id
}

// RegisterInsteadForPlugin is RegisterInstead plus plugin teardown
// bookkeeping.
func (r *Registry) RegisterInsteadForPlugin(plugin, site string, fn InsteadFunc) uint64 {
	id := r.RegisterInstead(site, fn)
	r.trackPluginReg(plugin, site, domain.HookInstead, id)
	return id
}

func (r *Registry) trackPluginReg(plugin, site string, kind domain.HookKind, id uint64) {
	r.pluginMu.Lock()
	defer r.pluginMu.Unlock()
	r.pluginRegs[plugin] = append(r.pluginRegs[plugin], registrationRef{site: site, kind: kind, id: id})
}

// TeardownPlugin unregisters every hook the named plugin registered,
// returning how many were removed.
func (r *Registry) TeardownPlugin(plugin string) int {
	r.pluginMu.Lock()
	regs := r.pluginRegs[plugin]
	delete(r.pluginRegs, plugin)
	r.pluginMu.Unlock()

	removed := 0
	for _, reg := range regs {
		var ok bool
		switch reg.kind {
		case domain.HookBefore:
			ok = r.UnregisterBefore(reg.site, reg.id)
		case domain.HookAfter:
			ok = r.UnregisterAfter(reg.site, reg.id)
		case domain.HookInstead:
			ok = r.UnregisterInstead(reg.site, reg.id)
		}
		if ok {
			removed++
		}
	}
	return removed
}

// Invoke runs the call-site transform for site: snapshot the before/after/
// instead registries, run before hooks (Stop short-circuits with a zero
// HookReturn), run the instead hook if present (Delegate re-invokes call,
// Return short-circuits), otherwise call the original, then run after
// hooks (Stop breaks the chain early, keeping the last HookReturn).
func (r *Registry) Invoke(site string, args HookArgs, call func(HookArgs) HookReturn) HookReturn {
	s := r.site(site)

	s.mu.RLock()
	before := make([]BeforeFunc, 0, len(s.beforeIDs))
	for _, id := range s.beforeIDs {
		before = append(before, s.before[id])
	}
	after := make([]AfterFunc, 0, len(s.afterIDs))
	for _, id := range s.afterIDs {
		after = append(after, s.after[id])
	}
	instead := s.instead
	s.mu.RUnlock()

	telemetry.HookInvocationsTotal.WithLabelValues(site).Inc()

	if len(before) == 0 && len(after) == 0 && instead == nil {
		return call(args)
	}

	for _, hook := range before {
		outcome := hook(args)
		if outcome.Err != nil {
			continue
		}
		if outcome.Stop {
			return HookReturn{}
		}
		if outcome.Args != nil {
			args = outcome.Args
		}
	}

	var ret HookReturn
	if instead != nil {
		outcome := instead.fn(args)
		switch {
		case outcome.Err != nil:
			ret = call(args)
		case outcome.Returned:
			ret = outcome.Return
		case outcome.Delegate:
			if outcome.Args != nil {
				args = outcome.Args
			}
			ret = call(args)
		default:
			ret = call(args)
		}
	} else {
		ret = call(args)
	}

	if len(after) == 0 {
		return ret
	}

	for _, hook := range after {
		outcome := hook(args, ret)
		if outcome.Err != nil {
			continue
		}
		ret = outcome.Return
		if outcome.Stop {
			break
		}
	}
	return ret
}

// TypeMatches reports whether fn's runtime type is assignable to T, a strict
// identity check for a dynamically loaded plugin's type-erased callback. The
// Register* methods do not call it.
func TypeMatches[T any](fn any) bool {
	_, ok := fn.(T)
	return ok
}
