package hooks

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lcalzada-xor/nightjar/internal/core/domain"
)

// TestScenarioS6HookStop mirrors spec scenario S6: a before-hook registered
// at site "X" returning Stop prevents the original function from running,
// and the wrapper returns the zero value for R.
func TestScenarioS6HookStop(t *testing.T) {
	r := New()
	called := false
	original := func(HookArgs) HookReturn {
		called = true
		return HookReturn{Present: true, Value: Capture("original")}
	}

	r.RegisterBefore("X", func(HookArgs) BeforeOutcome {
		return StopBefore()
	})

	ret := r.Invoke("X", nil, original)

	assert.False(t, called)
	assert.False(t, ret.Present)
}

func TestInvokeWithNoHooksCallsOriginalDirectly(t *testing.T) {
	r := New()
	ret := r.Invoke("Agent::recon", nil, func(HookArgs) HookReturn {
		return HookReturn{Present: true, Value: Capture(42)}
	})
	v, ok := Get[int](ret.Value)
	require.True(t, ok)
	assert.Equal(t, 42, v)
}

func TestBeforeHookCanModifyArgs(t *testing.T) {
	r := New()
	r.RegisterBefore("Agent::set_channel", func(args HookArgs) BeforeOutcome {
		return ContinueWith(HookArgs{Capture(11)})
	})

	var received int
	r.Invoke("Agent::set_channel", HookArgs{Capture(6)}, func(args HookArgs) HookReturn {
		v, _ := Get[int](args[0])
		received = v
		return HookReturn{}
	})
	assert.Equal(t, 11, received)
}

func TestAfterHookCanRewriteReturn(t *testing.T) {
	r := New()
	r.RegisterAfter("Agent::recon", func(args HookArgs, ret HookReturn) AfterOutcome {
		return AfterOutcome{Return: HookReturn{Present: true, Value: Capture("rewritten")}}
	})

	ret := r.Invoke("Agent::recon", nil, func(HookArgs) HookReturn {
		return HookReturn{Present: true, Value: Capture("original")}
	})
	v, _ := Get[string](ret.Value)
	assert.Equal(t, "rewritten", v)
}

// TestHooksRunInRegistrationOrder mirrors spec Testable Property #6:
// before-hooks run in registration order, and so do after-hooks.
func TestHooksRunInRegistrationOrder(t *testing.T) {
	r := New()
	var order []string

	r.RegisterBefore("X", func(HookArgs) BeforeOutcome {
		order = append(order, "before-1")
		return ContinueWith(nil)
	})
	r.RegisterBefore("X", func(HookArgs) BeforeOutcome {
		order = append(order, "before-2")
		return ContinueWith(nil)
	})
	r.RegisterBefore("X", func(HookArgs) BeforeOutcome {
		order = append(order, "before-3")
		return ContinueWith(nil)
	})
	r.RegisterAfter("X", func(HookArgs, HookReturn) AfterOutcome {
		order = append(order, "after-1")
		return AfterOutcome{}
	})
	r.RegisterAfter("X", func(HookArgs, HookReturn) AfterOutcome {
		order = append(order, "after-2")
		return AfterOutcome{}
	})

	r.Invoke("X", nil, func(HookArgs) HookReturn { return HookReturn{} })

	assert.Equal(t, []string{"before-1", "before-2", "before-3", "after-1", "after-2"}, order)
}

func TestInsteadDelegateCallsOriginalWithNewArgs(t *testing.T) {
	r := New()
	r.RegisterInstead("Agent::deauth", func(args HookArgs) InsteadOutcome {
		return InsteadOutcome{Delegate: true, Args: HookArgs{Capture("delegated")}}
	})

	var received string
	r.Invoke("Agent::deauth", HookArgs{Capture("original")}, func(args HookArgs) HookReturn {
		v, _ := Get[string](args[0])
		received = v
		return HookReturn{}
	})
	assert.Equal(t, "delegated", received)
}

func TestInsteadReturnShortCircuitsOriginal(t *testing.T) {
	r := New()
	called := false
	r.RegisterInstead("Agent::associate", func(args HookArgs) InsteadOutcome {
		return InsteadOutcome{Returned: true, Return: HookReturn{Present: true, Value: Capture("short-circuit")}}
	})

	ret := r.Invoke("Agent::associate", nil, func(HookArgs) HookReturn {
		called = true
		return HookReturn{}
	})
	assert.False(t, called)
	v, _ := Get[string](ret.Value)
	assert.Equal(t, "short-circuit", v)
}

func TestRegisterInsteadTwiceOverwrites(t *testing.T) {
	r := New()
	r.RegisterInstead("X", func(HookArgs) InsteadOutcome {
		return InsteadOutcome{Returned: true, Return: HookReturn{Present: true, Value: Capture("first")}}
	})
	r.RegisterInstead("X", func(HookArgs) InsteadOutcome {
		return InsteadOutcome{Returned: true, Return: HookReturn{Present: true, Value: Capture("second")}}
	})

	ret := r.Invoke("X", nil, func(HookArgs) HookReturn { return HookReturn{} })
	v, _ := Get[string](ret.Value)
	assert.Equal(t, "second", v)
}

func TestUnregisterByID(t *testing.T) {
	r := New()
	id := r.RegisterBefore("X", func(HookArgs) BeforeOutcome { return StopBefore() })
	assert.True(t, r.UnregisterBefore("X", id))
	assert.False(t, r.UnregisterBefore("X", id))

	called := false
	r.Invoke("X", nil, func(HookArgs) HookReturn {
		called = true
		return HookReturn{}
	})
	assert.True(t, called)
}

func TestTeardownPluginRemovesAllItsRegistrations(t *testing.T) {
	r := New()
	r.RegisterBeforeForPlugin("plugin-a", "X", func(HookArgs) BeforeOutcome { return StopBefore() })
	r.RegisterAfterForPlugin("plugin-a", "Y", func(HookArgs, HookReturn) AfterOutcome { return AfterOutcome{} })

	removed := r.TeardownPlugin("plugin-a")
	assert.Equal(t, 2, removed)

	called := false
	r.Invoke("X", nil, func(HookArgs) HookReturn {
		called = true
		return HookReturn{}
	})
	assert.True(t, called)
}

func TestCaptureSerializedRoundTripsThroughGob(t *testing.T) {
	v := CaptureSerialized(7)
	boxed := Value{TypeName: v.TypeName, Serialized: v.Serialized}
	got, ok := Get[int](boxed)
	require.True(t, ok)
	assert.Equal(t, 7, got)
}

func TestDescribeInventory(t *testing.T) {
	r := New()
	r.Describe(domain.HookDescriptor{
		Name:       "Agent::recon",
		Parameters: []domain.HookParam{{Name: "instance", TypeName: "*Agent"}},
		ReturnType: "()",
	})
	inv := r.Inventory()
	require.Len(t, inv, 1)
	assert.Equal(t, "Agent::recon", inv[0].Name)
}
