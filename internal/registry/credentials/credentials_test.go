package credentials

import (
	"encoding/hex"
	"strings"
	"testing"
)

func TestGenerateKeypairProducesWellFormedValues(t *testing.T) {
	priv, pub, addr, err := GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}
	if !strings.HasPrefix(priv, "0x") || len(priv) != 2+64 {
		t.Errorf("private key hex malformed: %q", priv)
	}
	if !strings.HasPrefix(pub, "0x04") || len(pub) != 2+130 {
		t.Errorf("public key hex malformed: %q", pub)
	}
	if !strings.HasPrefix(addr, "0x") || len(addr) != 2+40 {
		t.Errorf("address malformed: %q", addr)
	}
}

func TestGenerateKeypairIsRandomized(t *testing.T) {
	_, _, addr1, _ := GenerateKeypair()
	_, _, addr2, _ := GenerateKeypair()
	if addr1 == addr2 {
		t.Fatalf("expected two independently generated keypairs to differ")
	}
}

func TestAddressFromUncompressedPubKeyRejectsWrongLength(t *testing.T) {
	if _, err := AddressFromUncompressedPubKey([]byte{0x04, 0x01}); err == nil {
		t.Fatalf("expected an error for a malformed public key")
	}
}

func TestEIP55ChecksumMatchesKnownVector(t *testing.T) {
	// Well-known EIP-55 test vector.
	raw, err := hex.DecodeString("5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed")
	if err != nil {
		t.Fatalf("hex.DecodeString: %v", err)
	}
	addr := eip55Checksum(raw)
	want := "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"
	if addr != want {
		t.Fatalf("eip55Checksum = %q, want %q", addr, want)
	}
}

func TestNextIssuerIDStartsAt100(t *testing.T) {
	if got := NextIssuerID(nil); got != 100 {
		t.Fatalf("NextIssuerID(nil) = %d, want 100", got)
	}
}

func TestNextIssuerIDIncrementsAboveCurrentMax(t *testing.T) {
	var max int64 = 150
	if got := NextIssuerID(&max); got != 151 {
		t.Fatalf("NextIssuerID(150) = %d, want 151", got)
	}
}

func TestNextIssuerIDNeverGoesBelow100(t *testing.T) {
	var max int64 = 5
	if got := NextIssuerID(&max); got != 100 {
		t.Fatalf("NextIssuerID(5) = %d, want 100 (floor)", got)
	}
}

