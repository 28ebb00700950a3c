package viewport

import "errors"

// Sentinel errors for conditions not already covered by wire.go
// (ErrBufferTooShort, ErrBadMagic, ErrPayloadTooShort, ErrUnknownType) and
// payload.go (ErrMalformed, ErrUnknownOpcode). Together these make up the
// protocol's error taxonomy.
var (
	// ErrStaleVersion is returned by callers that want an explicit error
	// for a version-gate rejection, rather than the bare false the
	// RenderTree methods return (stale updates are expected traffic on a
	// lossy transport, not failures, so the tree methods themselves stay
	// silent — see SetTree, DefineSlot, DefineSchema, AppendData,
	// ApplyPatchVersioned).
	ErrStaleVersion = errors.New("viewport: stale version, update rejected")

	// ErrPatchTargetMissing means a patch op's Target id is not present in
	// the tree's node index.
	ErrPatchTargetMissing = errors.New("viewport: patch target not found")

	// ErrIDCollision means an insert or replace op's subtree reused an id
	// already present elsewhere in the tree, and was rejected.
	ErrIDCollision = errors.New("viewport: node id collision, patch rejected")
)
