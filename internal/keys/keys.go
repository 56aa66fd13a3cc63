// Package keys implements the watermark key schedule: master-key
// lookup, per-(model, date, key-id) HKDF derivation, and per-context
// seeding. Every function here is pure given its inputs — no mutable
// state is held across calls.
package keys

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/binary"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/hkdf"
)

// DevMasterKey is the deterministic fallback used only when no real
// master key has been configured. Never use it in production.
const DevMasterKey = "dev-only-master-key-change-me"

// MasterKeySet maps a key id to its secret bytes. At least one entry
// is always present after config load.
type MasterKeySet map[int][]byte

// GetMasterKey resolves keyID to a concrete key. If keyID is nil or
// unknown, the smallest known id is substituted and returned alongside
// its bytes.
func (s MasterKeySet) GetMasterKey(keyID *int) (resolvedID int, secret []byte) {
	if keyID != nil {
		if k, ok := s[*keyID]; ok {
			return *keyID, k
		}
	}
	ids := make([]int, 0, len(s))
	for id := range s {
		ids = append(ids, id)
	}
	sort.Ints(ids)
	first := ids[0]
	return first, s[first]
}

// DateFormat is the YYYYMMDD layout used throughout the key schedule.
const DateFormat = "20060102"

// TodayUTC returns the current date formatted as YYYYMMDD in UTC.
func TodayUTC() string {
	return time.Now().UTC().Format(DateFormat)
}

// DeriveStepKey computes the 32-byte step key for one (model, date,
// key-id) triple via HKDF-SHA256 with a zero salt and a single-block
// expand, per RFC 5869.
func DeriveStepKey(masterKey []byte, modelID int, dateStr string, keyID int) ([]byte, error) {
	if dateStr == "" {
		dateStr = TodayUTC()
	}
	info := []byte(fmt.Sprintf("%d|%s|%d", modelID, dateStr, keyID))
	salt := make([]byte, sha256.Size) // zero salt
	r := hkdf.New(sha256.New, masterKey, salt, info)

	out := make([]byte, 32)
	if _, err := io.ReadFull(r, out); err != nil {
		return nil, fmt.Errorf("keys: hkdf expand: %w", err)
	}
	return out, nil
}

// DeriveContextSeed computes the 64-bit context seed as the high 8
// bytes of HMAC-SHA256(derivedKey, pipe-joined decimal context tokens).
func DeriveContextSeed(derivedKey []byte, contextTokens []int) uint64 {
	parts := make([]string, len(contextTokens))
	for i, t := range contextTokens {
		parts[i] = strconv.Itoa(t)
	}
	msg := []byte(strings.Join(parts, "|"))

	mac := hmac.New(sha256.New, derivedKey)
	mac.Write(msg)
	digest := mac.Sum(nil)
	return binary.BigEndian.Uint64(digest[:8])
}
