package domain

// HookKind identifies which slot of a hook site a callback occupies.
type HookKind int

const (
	HookBefore HookKind = iota
	HookAfter
	HookInstead
)

func (k HookKind) String() string {
	switch k {
	case HookBefore:
		return "before"
	case HookAfter:
		return "after"
	case HookInstead:
		return "instead"
	default:
		return "unknown"
	}
}

// HookParam describes one positional argument of a hookable call site,
// including the synthesized "instance" entry methods carry.
type HookParam struct {
	Name     string
	TypeName string
}

// HookDescriptor is the process-wide, compile-time-collected registry entry
// for one hookable call site. It is immutable once the inventory is built at
// startup.
type HookDescriptor struct {
	Name       string
	Parameters []HookParam
	ReturnType string
}
