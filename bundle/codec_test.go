package bundle

import (
	"bytes"
	"testing"
)

func sampleBundle() Bundle {
	b := New(
		RequestCustody|SingletonDestination,
		EndpointID{Node: 2, Service: 0},
		EndpointID{Node: 1, Service: 0},
		1000, 1, 3600,
	)
	b.AddBlock(NewBlock(PayloadBlockType, LastBlock, []byte("hello dtn")))
	return b
}

func TestCodecRoundTrip(t *testing.T) {
	b := sampleBundle()

	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if got.Version != b.Version ||
		got.ProcessingFlags != b.ProcessingFlags ||
		got.Destination != b.Destination ||
		got.Source != b.Source ||
		got.ReportTo != b.ReportTo ||
		got.Custodian != b.Custodian ||
		got.CreationTimestamp != b.CreationTimestamp ||
		got.CreationSequence != b.CreationSequence ||
		got.Lifetime != b.Lifetime {
		t.Fatalf("round trip mismatch: got %+v, want %+v", got, b)
	}

	if len(got.Blocks) != 1 || !bytes.Equal(got.Blocks[0].Payload, []byte("hello dtn")) {
		t.Fatalf("payload mismatch: %+v", got.Blocks)
	}

	var reencoded bytes.Buffer
	if err := got.Encode(&reencoded); err != nil {
		t.Fatalf("re-Encode: %v", err)
	}
	if !bytes.Equal(buf.Bytes(), reencoded.Bytes()) {
		t.Fatalf("re-encoded bytes differ from original encoding")
	}
}

func TestCodecBundleNumberDeterministic(t *testing.T) {
	b1 := sampleBundle()
	b2 := sampleBundle()

	if b1.ID() != b2.ID() {
		t.Fatalf("identical bundles produced different BundleNumbers: %v vs %v", b1.ID(), b2.ID())
	}

	b3 := sampleBundle()
	b3.CreationSequence = 2
	if b3.ID() == b1.ID() {
		t.Fatalf("bundles differing in creation_sequence produced the same BundleNumber")
	}
}

func TestDecodeRejectsWrongVersion(t *testing.T) {
	b := sampleBundle()
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}
	raw := buf.Bytes()
	raw[0] = 7

	_, err := Decode(bytes.NewReader(raw))
	codecErr, ok := err.(*CodecError)
	if !ok {
		t.Fatalf("expected *CodecError, got %T: %v", err, err)
	}
	if codecErr.Kind != ErrKindVersionMismatch {
		t.Fatalf("expected ErrKindVersionMismatch, got %v", codecErr.Kind)
	}
}

func TestDecodeRejectsMissingPayload(t *testing.T) {
	b := New(SingletonDestination,
		EndpointID{Node: 2}, EndpointID{Node: 1}, 1000, 1, 3600)

	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	_, err := Decode(bytes.NewReader(buf.Bytes()))
	codecErr, ok := err.(*CodecError)
	if !ok {
		t.Fatalf("expected *CodecError, got %T: %v", err, err)
	}
	if codecErr.Kind != ErrKindMissingPayloadBlock {
		t.Fatalf("expected ErrKindMissingPayloadBlock, got %v", codecErr.Kind)
	}
}

func TestDecodeTruncated(t *testing.T) {
	b := sampleBundle()
	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	truncated := buf.Bytes()[:len(buf.Bytes())-3]
	if _, err := Decode(bytes.NewReader(truncated)); err == nil {
		t.Fatal("expected error decoding truncated bundle, got nil")
	}
}

func TestFragmentFieldsRoundTrip(t *testing.T) {
	b := New(IsFragment|SingletonDestination,
		EndpointID{Node: 2}, EndpointID{Node: 1}, 1000, 1, 3600)
	b.FragmentOffset = 128
	b.ApplicationDataLength = 4096
	b.AddBlock(NewBlock(PayloadBlockType, LastBlock, []byte("partial")))

	var buf bytes.Buffer
	if err := b.Encode(&buf); err != nil {
		t.Fatalf("Encode: %v", err)
	}

	got, err := Decode(bytes.NewReader(buf.Bytes()))
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if got.FragmentOffset != 128 || got.ApplicationDataLength != 4096 {
		t.Fatalf("fragment fields not preserved: %+v", got)
	}
}
