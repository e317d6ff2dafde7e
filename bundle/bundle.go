package bundle

import "fmt"

// dtnVersion is the fixed RFC 5050 bundle protocol version this profile speaks.
const dtnVersion uint8 = 6

// Bundle is the unit of transfer: a primary block's fields plus an ordered
// list of canonical Blocks, exactly one of which carries PayloadBlockType.
type Bundle struct {
	Version uint8

	ProcessingFlags ProcessingFlags

	Destination EndpointID
	Source      EndpointID
	ReportTo    EndpointID
	Custodian   EndpointID

	CreationTimestamp uint32
	CreationSequence  uint32
	Lifetime          uint32

	// DictionaryLength is always 0 in this profile; endpoint IDs are encoded
	// directly rather than through a string dictionary.
	DictionaryLength uint32

	FragmentOffset        uint32
	ApplicationDataLength uint32

	Blocks []Block
}

// New creates a Bundle with sane defaults (version 6, empty dictionary,
// ReportTo defaulting to Source) and the given required fields. The caller
// is expected to append at least a payload block before encoding.
func New(flags ProcessingFlags, destination, source EndpointID, creationTimestamp, creationSequence, lifetime uint32) Bundle {
	return Bundle{
		Version:           dtnVersion,
		ProcessingFlags:   flags,
		Destination:       destination,
		Source:            source,
		ReportTo:          source,
		Custodian:         source,
		CreationTimestamp: creationTimestamp,
		CreationSequence:  creationSequence,
		Lifetime:          lifetime,
		DictionaryLength:  0,
	}
}

// PayloadBlock returns a pointer to the bundle's mandatory payload block.
func (b *Bundle) PayloadBlock() (*Block, error) {
	for i := range b.Blocks {
		if b.Blocks[i].BlockType == PayloadBlockType {
			return &b.Blocks[i], nil
		}
	}
	return nil, newCodecError(ErrKindMissingPayloadBlock, "bundle has no PAYLOAD block")
}

// ExtensionBlock returns the first block of the given type that is not the
// payload block, or an error if none exists.
func (b *Bundle) ExtensionBlock(blockType CanonicalBlockType) (*Block, error) {
	for i := range b.Blocks {
		if b.Blocks[i].BlockType == blockType && blockType != PayloadBlockType {
			return &b.Blocks[i], nil
		}
	}
	return nil, newBundleError(fmt.Sprintf("bundle has no block of type %d", blockType))
}

// AddBlock appends a canonical block.
func (b *Bundle) AddBlock(blk Block) {
	b.Blocks = append(b.Blocks, blk)
}

// IsAdministrativeRecord reports whether the bundle's payload is an admin record.
func (b *Bundle) IsAdministrativeRecord() bool {
	return b.ProcessingFlags.Has(AdministrativeRecordPayload)
}

// OwesDeletionReport reports whether a deletion of this bundle (for a reason
// other than successful delivery) must be announced to ReportTo: the bundle
// asked for one via StatusRequestDeletion, and this node isn't the source
// that would otherwise be reporting to itself.
func (b *Bundle) OwesDeletionReport(self EndpointID) bool {
	return b.ProcessingFlags.Has(StatusRequestDeletion) && b.Source.Node != self.Node
}

// ID returns the bundle's content-addressed BundleNumber.
func (b *Bundle) ID() BundleNumber {
	return ComputeBundleNumber(b)
}

func (b Bundle) String() string {
	return fmt.Sprintf(
		"Bundle(%d -> %d, ts=%d.%d, lifetime=%ds, blocks=%d)",
		b.Source.Node, b.Destination.Node,
		b.CreationTimestamp, b.CreationSequence, b.Lifetime, len(b.Blocks))
}
