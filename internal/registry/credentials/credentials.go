// Package credentials issues secp256k1 keypairs and Ethereum-style
// checksummed addresses for companies authorized to sign watermarked
// responses.
package credentials

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/btcsuite/btcd/btcec/v2"
	"golang.org/x/crypto/sha3"
)

// Credentials is returned exactly once when a company is created; the
// private key is never persisted.
type Credentials struct {
	IssuerID      int64
	Name          string
	EthAddress    string
	PublicKeyHex  string // uncompressed, 0x04-prefixed hex
	PrivateKeyHex string // 0x-prefixed, 32-byte hex — shown once, never stored
}

// NextIssuerID computes the next issuer id to allocate given the
// current maximum issuer_id in storage (nil if the table is empty).
// Ids 1-99 are reserved; allocation starts at 100.
func NextIssuerID(currentMax *int64) int64 {
	current := int64(99)
	if currentMax != nil {
		current = *currentMax
	}
	next := current + 1
	if next < 100 {
		next = 100
	}
	return next
}

// GenerateKeypair creates a fresh secp256k1 keypair and derives its
// checksummed Ethereum-style address.
func GenerateKeypair() (privateKeyHex, publicKeyHex, ethAddress string, err error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return "", "", "", fmt.Errorf("credentials: generate private key: %w", err)
	}
	pub := priv.PubKey().SerializeUncompressed()

	addr, err := AddressFromUncompressedPubKey(pub)
	if err != nil {
		return "", "", "", err
	}

	return "0x" + hex.EncodeToString(priv.Serialize()),
		"0x" + hex.EncodeToString(pub),
		addr,
		nil
}

// AddressFromUncompressedPubKey derives the checksummed 0x-prefixed
// Ethereum-style address from a 65-byte uncompressed secp256k1 public
// key (0x04 || X || Y).
func AddressFromUncompressedPubKey(pub []byte) (string, error) {
	if len(pub) != 65 || pub[0] != 0x04 {
		return "", fmt.Errorf("credentials: expected a 65-byte uncompressed public key, got %d bytes", len(pub))
	}
	hash := keccak256(pub[1:])
	return eip55Checksum(hash[12:]), nil
}

func keccak256(data []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(data)
	return h.Sum(nil)
}

// eip55Checksum implements EIP-55 mixed-case checksum encoding over a
// 20-byte address.
func eip55Checksum(addr []byte) string {
	lower := hex.EncodeToString(addr)
	hash := keccak256([]byte(lower))
	hashHex := hex.EncodeToString(hash)

	var b strings.Builder
	b.WriteString("0x")
	for i, c := range lower {
		if c >= 'a' && c <= 'f' {
			// hashHex[i] is a hex digit of the keccak256 of the lowercase
			// address text; >= 8 means "uppercase this letter".
			nibble := hashHex[i]
			var v int
			if nibble >= '0' && nibble <= '9' {
				v = int(nibble - '0')
			} else {
				v = int(nibble-'a') + 10
			}
			if v >= 8 {
				b.WriteRune(c - 32)
				continue
			}
		}
		b.WriteRune(c)
	}
	return b.String()
}
