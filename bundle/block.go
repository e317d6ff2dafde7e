package bundle

// CanonicalBlockType identifies the kind of a canonical block.
type CanonicalBlockType uint8

const (
	// PayloadBlockType is the single mandatory block carrying application data.
	PayloadBlockType CanonicalBlockType = 1

	// CustodySignalBlockType carries a custody signal administrative record.
	CustodySignalBlockType CanonicalBlockType = 0x20

	// StatusReportBlockType carries a status report administrative record.
	StatusReportBlockType CanonicalBlockType = 0x10
)

// Block is one canonical block of a bundle. Exactly one block in a Bundle's
// Blocks slice must have BlockType == PayloadBlockType.
type Block struct {
	BlockType  CanonicalBlockType
	BlockFlags BlockFlags
	Payload    []byte
}

// NewBlock creates a Block with the given type, flags and payload bytes.
func NewBlock(blockType CanonicalBlockType, flags BlockFlags, payload []byte) Block {
	return Block{
		BlockType:  blockType,
		BlockFlags: flags,
		Payload:    payload,
	}
}
