package discovery

import "testing"

func TestDecodeDNSSDEscape_SpacedEscape(t *testing.T) {
	got := DecodeDNSSDEscape(`Kitchen\032Gateway`)
	if got != "Kitchen Gateway" {
		t.Fatalf("got %q, want %q", got, "Kitchen Gateway")
	}
}

func TestDecodeDNSSDEscape_LiteralDot(t *testing.T) {
	got := DecodeDNSSDEscape(`host\.local`)
	if got != "host.local" {
		t.Fatalf("got %q, want %q", got, "host.local")
	}
}

func TestEncodeDecodeDNSSDEscape_RoundTrip(t *testing.T) {
	inputs := []string{
		"Kitchen Gateway",
		"host.local",
		"back\\slash",
		"unicode café",
		"plain-ascii-name",
		"",
	}
	for _, in := range inputs {
		encoded := EncodeDNSSDEscape(in)
		decoded := DecodeDNSSDEscape(encoded)
		if decoded != in {
			t.Errorf("round trip failed for %q: encoded=%q decoded=%q", in, encoded, decoded)
		}
	}
}
