package storage

import (
	"encoding/binary"
	"fmt"
	"io"

	"github.com/dtn7/dtn7-core/bundle"
	"github.com/howeyc/crc16"
)

// indexRecordLen is the fixed-width on-disk record: bundle_number u32,
// record_time u32, lifetime u32, size u16, little-endian — plus a trailing
// CRC16 over those 14 bytes, so each record occupies 16 bytes on disk. A
// reader expecting back-to-back 14-byte records parses only the first
// record of the file correctly.
const indexRecordLen = 4 + 4 + 4 + 2 + 2

var crc16Table = crc16.MakeTable(crc16.CCITT)

// indexRecord is one slot's persisted metadata. Priority is not part of the
// on-disk layout; it is re-derived from the bundle's processing flags when a
// slot is loaded, since it only matters for an in-memory eviction decision.
type indexRecord struct {
	Number     bundle.BundleNumber
	RecordTime uint32
	Lifetime   uint32
	Size       uint16
}

func encodeIndexRecord(rec indexRecord) []byte {
	buf := make([]byte, indexRecordLen)
	binary.LittleEndian.PutUint32(buf[0:4], uint32(rec.Number))
	binary.LittleEndian.PutUint32(buf[4:8], rec.RecordTime)
	binary.LittleEndian.PutUint32(buf[8:12], rec.Lifetime)
	binary.LittleEndian.PutUint16(buf[12:14], rec.Size)
	binary.LittleEndian.PutUint16(buf[14:16], crc16.Checksum(buf[0:14], crc16Table))
	return buf
}

// decodeIndexRecord reads one record from r. io.EOF is returned verbatim so
// callers can distinguish "clean end of index" from a torn trailing record.
func decodeIndexRecord(r io.Reader) (indexRecord, error) {
	buf := make([]byte, indexRecordLen)
	if _, err := io.ReadFull(r, buf); err != nil {
		return indexRecord{}, err
	}

	want := binary.LittleEndian.Uint16(buf[14:16])
	got := crc16.Checksum(buf[0:14], crc16Table)
	if want != got {
		return indexRecord{}, fmt.Errorf("storage: index record failed CRC16 check")
	}

	return indexRecord{
		Number:     bundle.BundleNumber(binary.LittleEndian.Uint32(buf[0:4])),
		RecordTime: binary.LittleEndian.Uint32(buf[4:8]),
		Lifetime:   binary.LittleEndian.Uint32(buf[8:12]),
		Size:       binary.LittleEndian.Uint16(buf[12:14]),
	}, nil
}
