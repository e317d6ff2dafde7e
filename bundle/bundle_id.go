package bundle

import (
	"encoding/binary"
	"hash/fnv"
)

// BundleNumber is a 32-bit content hash identifying a bundle. Equal bundles
// (equal creation_sequence, creation_timestamp, source, fragment_offset and
// application_data_length) produce equal numbers; it is used as the storage
// key and the redundancy filter key.
//
// The original uDTN firmware hashed four uint32 words with a running XOR
// (core/net/uDTN/hash_xor.c); this profile has six fields to fold in rather
// than four, so an FNV-1a digest of the same big-endian fields is used
// instead. Both are deterministic, order-sensitive, dependency-free 32-bit
// hashes over fixed-width integers — FNV-1a just tolerates an arbitrary
// field count without the caller having to pack extra words by hand.
type BundleNumber uint32

// ComputeBundleNumber derives the BundleNumber from the fields the protocol
// guarantees uniquely identify a bundle.
func ComputeBundleNumber(b *Bundle) BundleNumber {
	var buf [24]byte
	binary.BigEndian.PutUint32(buf[0:4], b.CreationSequence)
	binary.BigEndian.PutUint32(buf[4:8], b.CreationTimestamp)
	binary.BigEndian.PutUint32(buf[8:12], b.Source.Node)
	binary.BigEndian.PutUint32(buf[12:16], b.Source.Service)
	binary.BigEndian.PutUint32(buf[16:20], b.FragmentOffset)
	binary.BigEndian.PutUint32(buf[20:24], b.ApplicationDataLength)

	h := fnv.New32a()
	_, _ = h.Write(buf[:])
	return BundleNumber(h.Sum32())
}
