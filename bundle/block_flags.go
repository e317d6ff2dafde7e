package bundle

// BlockFlags is a uint32 representing a canonical block's processing control
// flags, per RFC 5050 section 4.3.
type BlockFlags uint32

const (
	// ReplicateBlock: this block must be replicated in every fragment.
	ReplicateBlock BlockFlags = 0x01

	// DiscardOnError: discard this block if it can't be processed.
	DiscardOnError BlockFlags = 0x02

	// LastBlock: this is the last block of the bundle.
	LastBlock BlockFlags = 0x04

	// ForwardWithoutProcessing: this block was forwarded without being processed.
	ForwardWithoutProcessing BlockFlags = 0x08
)

// Has returns true if every bit set in flag is also set in bf.
func (bf BlockFlags) Has(flag BlockFlags) bool {
	return bf&flag == flag
}
