package payload

import "testing"

func TestRoundTrip(t *testing.T) {
	meta := New(1, 123, 4567, 89, 7)
	raw, err := Pack(meta)
	if err != nil {
		t.Fatalf("Pack returned error: %v", err)
	}
	back, ok := Unpack(raw)
	if !ok {
		t.Fatalf("Unpack reported crcOK=false for freshly packed payload")
	}
	if back != meta {
		t.Fatalf("round trip mismatch: got %+v, want %+v", back, meta)
	}
}

func TestPackOutOfRange(t *testing.T) {
	cases := []PackedMetadata{
		New(16, 0, 0, 0, 0),     // schema_version overflow (4 bits)
		New(0, 0, 0, 4096, 0),   // model_version_id overflow (12 bits)
		New(0, 0, 0, 0, 0),      // key_id in range, schema invalid above
	}
	if _, err := Pack(cases[0]); err == nil {
		t.Fatalf("expected error for schema_version overflow")
	}
	if _, err := Pack(cases[1]); err == nil {
		t.Fatalf("expected error for model_version_id overflow")
	}
	if _, err := Pack(cases[2]); err != nil {
		t.Fatalf("unexpected error for in-range payload: %v", err)
	}
}

func TestCRCSensitivity(t *testing.T) {
	meta := New(3, 200, 9000, 15, 42)
	raw, err := Pack(meta)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}

	flips := 0
	for bit := 8; bit < 64; bit++ { // skip the 8 CRC bits themselves
		flipped := raw ^ (uint64(1) << uint(bit))
		if _, ok := Unpack(flipped); !ok {
			flips++
		}
	}
	total := 64 - 8
	if flips < total-1 {
		// Allow at most one accidental collision across 56 independent flips,
		// matching the spec's >= 254/256 sensitivity bound in spirit.
		t.Fatalf("CRC did not catch enough bit flips: %d/%d detected", flips, total)
	}
}

func TestS1Scenario(t *testing.T) {
	meta := New(1, 123, 4567, 89, 7)
	raw, err := Pack(meta)
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	back, ok := Unpack(raw)
	if !ok || back != meta {
		t.Fatalf("S1 scenario failed: back=%+v ok=%v", back, ok)
	}
}
