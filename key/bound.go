package key

// BoundKind describes how a range endpoint treats its boundary key.
type BoundKind uint8

const (
	// Unbounded places no limit on that side of the range.
	Unbounded BoundKind = iota
	// Included keeps entries equal to the boundary key.
	Included
	// Excluded drops entries equal to the boundary key.
	Excluded
)

// Bound is a range endpoint over user keys.
type Bound struct {
	Kind BoundKind
	User []byte
}

// NoBound returns an unbounded endpoint.
func NoBound() Bound {
	return Bound{Kind: Unbounded}
}

// Include returns an inclusive endpoint at user.
func Include(user []byte) Bound {
	return Bound{Kind: Included, User: user}
}

// Exclude returns an exclusive endpoint at user.
func Exclude(user []byte) Bound {
	return Bound{Kind: Excluded, User: user}
}
