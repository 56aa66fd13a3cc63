package chain

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/store"
)

func TestGenesisPrevHashIsSixtyFourZeros(t *testing.T) {
	if len(GenesisPrevHash) != 64 {
		t.Fatalf("GenesisPrevHash length = %d, want 64", len(GenesisPrevHash))
	}
	for _, c := range GenesisPrevHash {
		if c != '0' {
			t.Fatalf("GenesisPrevHash contains non-zero character: %q", GenesisPrevHash)
		}
	}
}

func TestComputeTxHashDeterministic(t *testing.T) {
	a := computeTxHash(GenesisPrevHash, "deadbeef", 100, "2026-07-31T00:00:00Z")
	b := computeTxHash(GenesisPrevHash, "deadbeef", 100, "2026-07-31T00:00:00Z")
	if a != b {
		t.Fatalf("computeTxHash is not deterministic: %q vs %q", a, b)
	}
	if len(a) != 64 {
		t.Fatalf("expected a 64-char hex SHA-256 digest, got %d chars", len(a))
	}
}

func TestComputeTxHashSensitiveToEachField(t *testing.T) {
	base := computeTxHash(GenesisPrevHash, "deadbeef", 100, "ts")
	variants := []string{
		computeTxHash("1111111111111111111111111111111111111111111111111111111111111111", "deadbeef", 100, "ts"),
		computeTxHash(GenesisPrevHash, "cafebabe", 100, "ts"),
		computeTxHash(GenesisPrevHash, "deadbeef", 101, "ts"),
		computeTxHash(GenesisPrevHash, "deadbeef", 100, "other-ts"),
	}
	for i, v := range variants {
		if v == base {
			t.Fatalf("variant %d produced the same hash as base; preimage is not sensitive to that field", i)
		}
	}
}

func TestValidateLinkageEmptyChain(t *testing.T) {
	valid, msg, err := validateLinkage(nil)
	if err != nil || !valid || msg != "empty chain" {
		t.Fatalf("got valid=%v msg=%q err=%v", valid, msg, err)
	}
}

func TestValidateLinkageRejectsBadGenesis(t *testing.T) {
	blocks := []store.ChainBlock{
		{BlockNum: 1, PrevHash: "not-genesis", TxHash: "a"},
	}
	valid, _, err := validateLinkage(blocks)
	if err != nil || valid {
		t.Fatalf("expected invalid genesis to fail validation")
	}
}

func TestValidateLinkageAcceptsProperChain(t *testing.T) {
	blocks := []store.ChainBlock{
		{BlockNum: 1, PrevHash: GenesisPrevHash, TxHash: "hash1"},
		{BlockNum: 2, PrevHash: "hash1", TxHash: "hash2"},
		{BlockNum: 3, PrevHash: "hash2", TxHash: "hash3"},
	}
	valid, msg, err := validateLinkage(blocks)
	if err != nil || !valid {
		t.Fatalf("expected a valid chain, got valid=%v err=%v msg=%q", valid, err, msg)
	}
}

func TestValidateLinkageDetectsBrokenLink(t *testing.T) {
	blocks := []store.ChainBlock{
		{BlockNum: 1, PrevHash: GenesisPrevHash, TxHash: "hash1"},
		{BlockNum: 2, PrevHash: "wrong-prev", TxHash: "hash2"},
	}
	valid, msg, err := validateLinkage(blocks)
	if err != nil || valid {
		t.Fatalf("expected a broken link to be detected")
	}
	if msg == "" {
		t.Fatalf("expected a descriptive break message")
	}
}
