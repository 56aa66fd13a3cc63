// Package signature implements SHA-256 hashing, Ethereum
// personal-message signing, and recoverable-signature verification for
// registry provenance records.
package signature

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/ecdsa"
	"golang.org/x/crypto/sha3"

	"github.com/rawblock/watermark-gateway/internal/registry/credentials"
)

const personalMessagePrefix = "\x19Ethereum Signed Message:\n"

// HashText returns the lowercase hex SHA-256 digest of text.
func HashText(text string) string {
	sum := sha256.Sum256([]byte(text))
	return hex.EncodeToString(sum[:])
}

func personalMessageDigest(message string) []byte {
	prefixed := personalMessagePrefix + strconv.Itoa(len(message)) + message
	h := sha3.NewLegacyKeccak256()
	h.Write([]byte(prefixed))
	return h.Sum(nil)
}

// Sign signs dataHashHex (the hex SHA-256 digest of a watermarked
// response) with privateKeyHex under the Ethereum personal-message
// convention, returning a 65-byte r‖s‖v hex signature. Runs on the
// signing company's own infrastructure.
func Sign(dataHashHex string, privateKeyHex string) (string, error) {
	keyBytes, err := hex.DecodeString(strings.TrimPrefix(privateKeyHex, "0x"))
	if err != nil || len(keyBytes) != 32 {
		return "", fmt.Errorf("signature: invalid private key: %w", err)
	}
	priv, _ := btcec.PrivKeyFromBytes(keyBytes)

	digest := personalMessageDigest(dataHashHex)
	compact := ecdsa.SignCompact(priv, digest, false)
	if len(compact) != 65 {
		return "", fmt.Errorf("signature: unexpected compact signature length %d", len(compact))
	}

	// compact = [header(27/28), R(32), S(32)]; Ethereum wants R‖S‖V.
	header := compact[0]
	r := compact[1:33]
	s := compact[33:65]

	out := make([]byte, 65)
	copy(out[0:32], r)
	copy(out[32:64], s)
	out[64] = header

	return "0x" + hex.EncodeToString(out), nil
}

// RecoverSigner recovers the checksummed Ethereum-style address that
// produced signatureHex over dataHashHex.
func RecoverSigner(dataHashHex, signatureHex string) (string, error) {
	sigBytes, err := hex.DecodeString(strings.TrimPrefix(signatureHex, "0x"))
	if err != nil || len(sigBytes) != 65 {
		return "", fmt.Errorf("signature: malformed signature")
	}

	r := sigBytes[0:32]
	s := sigBytes[32:64]
	v := sigBytes[64]

	compact := make([]byte, 65)
	compact[0] = v
	copy(compact[1:33], r)
	copy(compact[33:65], s)

	digest := personalMessageDigest(dataHashHex)
	pub, _, err := ecdsa.RecoverCompact(compact, digest)
	if err != nil {
		return "", fmt.Errorf("signature: recover signer: %w", err)
	}

	return credentials.AddressFromUncompressedPubKey(pub.SerializeUncompressed())
}

// Company is the minimal company record signature verification needs;
// internal/store.Company satisfies this shape by field name.
type Company struct {
	IssuerID   int64
	Name       string
	EthAddress string
}

// VerifiedSigner is the outcome of a successful signature verification
// against a known, active company.
type VerifiedSigner struct {
	IssuerID   int64
	Name       string
	EthAddress string
}

// VerifySignature confirms that signatureHex over dataHashHex was
// produced by company (already looked up by issuer id). A malformed or
// unrecoverable signature verifies as "no match", not a hard error —
// callers never need to distinguish the two, only act on nil.
func VerifySignature(dataHashHex, signatureHex string, company *Company) *VerifiedSigner {
	if company == nil {
		return nil
	}
	recovered, err := RecoverSigner(dataHashHex, signatureHex)
	if err != nil {
		return nil
	}
	if !strings.EqualFold(recovered, company.EthAddress) {
		return nil
	}
	return &VerifiedSigner{IssuerID: company.IssuerID, Name: company.Name, EthAddress: company.EthAddress}
}

// VerifySignatureByAddress verifies a signature and resolves the
// signing company purely from the recovered address, by scanning
// candidates for a case-insensitive address match.
func VerifySignatureByAddress(dataHashHex, signatureHex string, candidates []Company) *VerifiedSigner {
	recovered, err := RecoverSigner(dataHashHex, signatureHex)
	if err != nil {
		return nil
	}
	for _, c := range candidates {
		if strings.EqualFold(c.EthAddress, recovered) {
			return &VerifiedSigner{IssuerID: c.IssuerID, Name: c.Name, EthAddress: c.EthAddress}
		}
	}
	return nil
}
