package signature

import (
	"testing"

	"github.com/rawblock/watermark-gateway/internal/registry/credentials"
)

func TestHashTextDeterministic(t *testing.T) {
	if HashText("hello") != HashText("hello") {
		t.Fatalf("HashText is not deterministic")
	}
	if len(HashText("hello")) != 64 {
		t.Fatalf("expected a 64-char hex SHA-256 digest, got %d chars", len(HashText("hello")))
	}
}

func TestSignAndRecoverRoundTrip(t *testing.T) {
	priv, _, addr, err := credentials.GenerateKeypair()
	if err != nil {
		t.Fatalf("GenerateKeypair: %v", err)
	}

	dataHash := HashText("the watermarked response text")
	sig, err := Sign(dataHash, priv)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}

	recovered, err := RecoverSigner(dataHash, sig)
	if err != nil {
		t.Fatalf("RecoverSigner: %v", err)
	}
	if recovered != addr {
		t.Fatalf("recovered address = %q, want %q", recovered, addr)
	}
}

func TestVerifySignatureAcceptsMatchingCompany(t *testing.T) {
	priv, _, addr, _ := credentials.GenerateKeypair()
	dataHash := HashText("response text")
	sig, _ := Sign(dataHash, priv)

	company := &Company{IssuerID: 100, Name: "Acme", EthAddress: addr}
	result := VerifySignature(dataHash, sig, company)
	if result == nil {
		t.Fatalf("expected a verified signer")
	}
	if result.IssuerID != 100 {
		t.Fatalf("IssuerID = %d, want 100", result.IssuerID)
	}
}

func TestVerifySignatureRejectsWrongCompany(t *testing.T) {
	priv, _, _, _ := credentials.GenerateKeypair()
	_, _, otherAddr, _ := credentials.GenerateKeypair()
	dataHash := HashText("response text")
	sig, _ := Sign(dataHash, priv)

	company := &Company{IssuerID: 101, Name: "Other", EthAddress: otherAddr}
	if result := VerifySignature(dataHash, sig, company); result != nil {
		t.Fatalf("expected nil for a mismatched signer, got %+v", result)
	}
}

func TestVerifySignatureByAddressScansCandidates(t *testing.T) {
	priv, _, addr, _ := credentials.GenerateKeypair()
	dataHash := HashText("response text")
	sig, _ := Sign(dataHash, priv)

	candidates := []Company{
		{IssuerID: 100, Name: "Acme", EthAddress: "0xdeadbeef"},
		{IssuerID: 101, Name: "Found Me", EthAddress: addr},
	}
	result := VerifySignatureByAddress(dataHash, sig, candidates)
	if result == nil || result.IssuerID != 101 {
		t.Fatalf("expected to find issuer 101, got %+v", result)
	}
}

func TestRecoverSignerRejectsMalformedSignature(t *testing.T) {
	if _, err := RecoverSigner(HashText("x"), "0xnothex"); err == nil {
		t.Fatalf("expected an error for a malformed signature")
	}
}
