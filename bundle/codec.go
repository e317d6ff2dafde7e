package bundle

import (
	"bytes"
	"io"

	"github.com/dtn7/dtn7-core/sdnv"
)

// Encode writes this bundle's RFC 5050 wire representation to w: the primary
// block (version octet, processing flags, the remaining primary-block fields
// wrapped in a length-prefixed SDNV envelope) followed by each canonical
// block in order. All multi-octet integers are SDNVs; nothing else on the
// wire is self-delimiting, so the block-length SDNVs matter for parsing.
func (b *Bundle) Encode(w io.Writer) error {
	if _, err := w.Write([]byte{b.Version}); err != nil {
		return err
	}

	if err := sdnv.WriteUint32(uint32(b.ProcessingFlags), w); err != nil {
		return err
	}

	body, err := b.encodePrimaryBody()
	if err != nil {
		return err
	}

	if err := sdnv.WriteUint64(uint64(len(body)), w); err != nil {
		return err
	}
	if _, err := w.Write(body); err != nil {
		return err
	}

	for i := range b.Blocks {
		if err := encodeBlock(&b.Blocks[i], w); err != nil {
			return err
		}
	}

	return nil
}

// encodePrimaryBody serializes every primary-block field after the
// block-length SDNV: the four endpoints (each as a direct node/service SDNV
// pair, since this profile never uses a string dictionary), the timestamp
// fields, lifetime, the (always zero) dictionary length, and — only when the
// fragment flag is set — the fragment offset and total application data
// length.
func (b *Bundle) encodePrimaryBody() ([]byte, error) {
	var buf bytes.Buffer

	endpoints := []EndpointID{b.Destination, b.Source, b.ReportTo, b.Custodian}
	for _, eid := range endpoints {
		if err := sdnv.WriteUint32(eid.Node, &buf); err != nil {
			return nil, err
		}
		if err := sdnv.WriteUint32(eid.Service, &buf); err != nil {
			return nil, err
		}
	}

	fields := []uint32{b.CreationTimestamp, b.CreationSequence, b.Lifetime, b.DictionaryLength}
	for _, f := range fields {
		if err := sdnv.WriteUint32(f, &buf); err != nil {
			return nil, err
		}
	}

	if b.ProcessingFlags.Has(IsFragment) {
		if err := sdnv.WriteUint32(b.FragmentOffset, &buf); err != nil {
			return nil, err
		}
		if err := sdnv.WriteUint32(b.ApplicationDataLength, &buf); err != nil {
			return nil, err
		}
	}

	return buf.Bytes(), nil
}

// encodeBlock writes a single canonical block: type octet, flags SDNV,
// length SDNV, then the raw payload bytes.
func encodeBlock(blk *Block, w io.Writer) error {
	if _, err := w.Write([]byte{byte(blk.BlockType)}); err != nil {
		return err
	}
	if err := sdnv.WriteUint32(uint32(blk.BlockFlags), w); err != nil {
		return err
	}
	if err := sdnv.WriteUint64(uint64(len(blk.Payload)), w); err != nil {
		return err
	}
	if _, err := w.Write(blk.Payload); err != nil {
		return err
	}
	return nil
}

// Decode parses a bundle from its RFC 5050 wire representation. The
// remaining bytes of r after the primary block are consumed as canonical
// blocks until r is exhausted or a LastBlock flag is seen.
func Decode(r io.Reader) (Bundle, error) {
	var b Bundle

	var versionByte [1]byte
	if _, err := io.ReadFull(r, versionByte[:]); err != nil {
		return b, newCodecError(ErrKindTruncated, "reading version octet: "+err.Error())
	}
	if versionByte[0] != dtnVersion {
		return b, newCodecError(ErrKindVersionMismatch, "unexpected bundle version")
	}
	b.Version = versionByte[0]

	pf, err := sdnvReadUint32(r, "processing flags")
	if err != nil {
		return b, err
	}
	b.ProcessingFlags = ProcessingFlags(pf)

	blockLen, err := sdnv.ReadUint64(r)
	if err != nil {
		return b, wrapSdnvErr(err, "primary block length")
	}

	body := make([]byte, blockLen)
	if _, err := io.ReadFull(r, body); err != nil {
		return b, newCodecError(ErrKindTruncated, "reading primary block body: "+err.Error())
	}

	if err := b.decodePrimaryBody(bytes.NewReader(body)); err != nil {
		return b, err
	}

	for {
		blk, ok, err := decodeBlock(r)
		if err != nil {
			return b, err
		}
		if !ok {
			break
		}
		b.Blocks = append(b.Blocks, blk)
		if blk.BlockFlags.Has(LastBlock) {
			break
		}
	}

	if _, err := b.PayloadBlock(); err != nil {
		return b, err
	}

	return b, nil
}

func (b *Bundle) decodePrimaryBody(r io.Reader) error {
	endpoints := make([]*EndpointID, 0, 4)
	endpoints = append(endpoints, &b.Destination, &b.Source, &b.ReportTo, &b.Custodian)

	for _, eid := range endpoints {
		node, err := sdnvReadUint32(r, "endpoint node")
		if err != nil {
			return err
		}
		service, err := sdnvReadUint32(r, "endpoint service")
		if err != nil {
			return err
		}
		eid.Node = node
		eid.Service = service
	}

	var err error
	if b.CreationTimestamp, err = sdnvReadUint32(r, "creation timestamp"); err != nil {
		return err
	}
	if b.CreationSequence, err = sdnvReadUint32(r, "creation sequence"); err != nil {
		return err
	}
	if b.Lifetime, err = sdnvReadUint32(r, "lifetime"); err != nil {
		return err
	}
	if b.DictionaryLength, err = sdnvReadUint32(r, "dictionary length"); err != nil {
		return err
	}
	if b.DictionaryLength != 0 {
		return newCodecError(ErrKindMalformedBlock, "dictionary_length must be 0 in this profile")
	}

	if b.ProcessingFlags.Has(IsFragment) {
		if b.FragmentOffset, err = sdnvReadUint32(r, "fragment offset"); err != nil {
			return err
		}
		if b.ApplicationDataLength, err = sdnvReadUint32(r, "application data length"); err != nil {
			return err
		}
	}

	return nil
}

// decodeBlock reads one canonical block. ok is false (with a nil error) if r
// was already exhausted, which a well-formed stream signals by ending right
// after a LastBlock-flagged block.
func decodeBlock(r io.Reader) (blk Block, ok bool, err error) {
	var typeByte [1]byte
	if _, rerr := io.ReadFull(r, typeByte[:]); rerr != nil {
		if rerr == io.EOF {
			return Block{}, false, nil
		}
		return Block{}, false, newCodecError(ErrKindTruncated, "reading block type: "+rerr.Error())
	}
	blk.BlockType = CanonicalBlockType(typeByte[0])

	flags, ferr := sdnvReadUint32(r, "block flags")
	if ferr != nil {
		return Block{}, false, ferr
	}
	blk.BlockFlags = BlockFlags(flags)

	length, lerr := sdnv.ReadUint64(r)
	if lerr != nil {
		return Block{}, false, wrapSdnvErr(lerr, "block length")
	}

	blk.Payload = make([]byte, length)
	if _, rerr := io.ReadFull(r, blk.Payload); rerr != nil {
		return Block{}, false, newCodecError(ErrKindMalformedBlock, "reading block payload: "+rerr.Error())
	}

	return blk, true, nil
}

func sdnvReadUint32(r io.Reader, field string) (uint32, error) {
	v, err := sdnv.ReadUint32(r)
	if err != nil {
		return 0, wrapSdnvErr(err, field)
	}
	return v, nil
}

func wrapSdnvErr(err error, field string) error {
	switch err {
	case sdnv.ErrOverflow:
		return newCodecError(ErrKindSDNVOverflow, field+" exceeds target width")
	case sdnv.ErrTruncated:
		return newCodecError(ErrKindTruncated, field+" truncated")
	default:
		return newCodecError(ErrKindTruncated, field+": "+err.Error())
	}
}

// ToBytes encodes the bundle and returns the resulting byte slice.
func (b *Bundle) ToBytes() ([]byte, error) {
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// FromBytes decodes a bundle from a byte slice.
func FromBytes(data []byte) (Bundle, error) {
	return Decode(bytes.NewReader(data))
}
