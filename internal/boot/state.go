package boot

// State is the loader's position in the bootstrap sequence. States only move
// forward.
type State string

const (
	StateUninitialized         State = "uninitialized"
	StateCoreResolverActive    State = "core-resolver-active"
	StatePathIndexed           State = "path-indexed"
	StateGeneralResolverActive State = "general-resolver-active"
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == "" {
		return string(StateUninitialized)
	}
	return string(s)
}
