package encoding

import "testing"

func TestRLE_RoundTrip(t *testing.T) {
	in := make([]uint8, 0, 200)
	in = append(in, 1, 1, 1, 2, 2, 0)
	for i := 0; i < 150; i++ {
		in = append(in, 2)
	}
	in = append(in, 0, 1, 1, 1)

	enc := EncodeRLE(in)
	out, err := DecodeRLE(enc, 0)
	if err != nil {
		t.Fatalf("DecodeRLE: %v", err)
	}
	if len(out) != len(in) {
		t.Fatalf("len mismatch: got %d want %d", len(out), len(in))
	}
	for i := range in {
		if out[i] != in[i] {
			t.Fatalf("mismatch at %d: got %d want %d", i, out[i], in[i])
		}
	}
}

func TestRLE_Limit(t *testing.T) {
	enc := EncodeRLE(make([]uint8, 64))
	if _, err := DecodeRLE(enc, 63); err == nil {
		t.Fatalf("expected limit error")
	}
	out, err := DecodeRLE(enc, 64)
	if err != nil || len(out) != 64 {
		t.Fatalf("DecodeRLE at limit: len=%d err=%v", len(out), err)
	}
}

func TestRLE_Empty(t *testing.T) {
	out, err := DecodeRLE(EncodeRLE(nil), 0)
	if err != nil || len(out) != 0 {
		t.Fatalf("empty round trip: %v %v", out, err)
	}
	if _, err := DecodeRLE("!!", 0); err == nil {
		t.Fatalf("expected base64 error")
	}
}
