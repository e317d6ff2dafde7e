package bundle

import (
	"bytes"
	"fmt"
	"io"

	"github.com/dtn7/cboring"
)

// AdministrativeRecordTypeCode distinguishes the two administrative record
// kinds this profile carries in a PAYLOAD block whenever
// AdministrativeRecordPayload is set: status reports and custody signals.
type AdministrativeRecordTypeCode uint64

const (
	// StatusReportRecordType is the administrative record type code for a StatusReport.
	StatusReportRecordType AdministrativeRecordTypeCode = 0x10

	// CustodySignalRecordType is the administrative record type code for a CustodySignal.
	CustodySignalRecordType AdministrativeRecordTypeCode = 0x20
)

func (t AdministrativeRecordTypeCode) String() string {
	switch t {
	case StatusReportRecordType:
		return "status report"
	case CustodySignalRecordType:
		return "custody signal"
	default:
		return "unknown administrative record"
	}
}

// administrativeRecordContent is satisfied by StatusReport and CustodySignal.
// SDNV governs the bundle envelope around it; CBOR governs the record
// payload itself, the same split the wire format uses for its other
// structured fields.
type administrativeRecordContent interface {
	MarshalCbor(w io.Writer) error
	UnmarshalCbor(r io.Reader) error
	RecordTypeCode() AdministrativeRecordTypeCode
}

// EncodeAdministrativeRecord serializes a type code and its content as a
// two-element CBOR array, ready to be used as a PAYLOAD block's bytes.
func EncodeAdministrativeRecord(content administrativeRecordContent) ([]byte, error) {
	var buf bytes.Buffer

	if err := cboring.WriteArrayLength(2, &buf); err != nil {
		return nil, err
	}
	if err := cboring.WriteUInt(uint64(content.RecordTypeCode()), &buf); err != nil {
		return nil, err
	}
	if err := content.MarshalCbor(&buf); err != nil {
		return nil, fmt.Errorf("marshalling administrative record content: %w", err)
	}

	return buf.Bytes(), nil
}

// DecodeAdministrativeRecordType peeks the type code off an administrative
// record's bytes without consuming the content, so the caller can construct
// the right concrete type before calling its UnmarshalCbor.
func DecodeAdministrativeRecordType(data []byte) (AdministrativeRecordTypeCode, error) {
	r := bytes.NewReader(data)

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return 0, err
	}
	if n != 2 {
		return 0, newBundleError(fmt.Sprintf("administrative record: expected array of length 2, got %d", n))
	}

	code, err := cboring.ReadUInt(r)
	if err != nil {
		return 0, err
	}

	return AdministrativeRecordTypeCode(code), nil
}

// decodeAdministrativeRecordContent consumes the type code and then the
// content into dst.
func decodeAdministrativeRecordContent(data []byte, dst administrativeRecordContent) error {
	r := bytes.NewReader(data)

	n, err := cboring.ReadArrayLength(r)
	if err != nil {
		return err
	}
	if n != 2 {
		return newBundleError(fmt.Sprintf("administrative record: expected array of length 2, got %d", n))
	}

	if _, err := cboring.ReadUInt(r); err != nil {
		return err
	}

	return dst.UnmarshalCbor(r)
}

// DecodeCustodySignal decodes data (a PAYLOAD block's bytes) as a
// CustodySignal. Callers should first confirm the type code via
// DecodeAdministrativeRecordType.
func DecodeCustodySignal(data []byte) (CustodySignal, error) {
	var cs CustodySignal
	err := decodeAdministrativeRecordContent(data, &cs)
	return cs, err
}

// DecodeStatusReport decodes data (a PAYLOAD block's bytes) as a StatusReport.
func DecodeStatusReport(data []byte) (StatusReport, error) {
	var sr StatusReport
	err := decodeAdministrativeRecordContent(data, &sr)
	return sr, err
}
