// Package zerowidth implements the zero-width tag codec: packing a
// 64-bit payload into an invisible Unicode glyph sequence, scanning
// text for candidate tags, and stripping zero-width characters.
package zerowidth

import "strings"

// payloadBits is the number of data bits carried by one tag.
const payloadBits = 64

// EncodePayloadToTag emits the 66-codepoint sequence: start char,
// then the 64 payload bits MSB-first (0 -> cfg.ZeroChar, 1 ->
// cfg.OneChar), then the end char.
func EncodePayloadToTag(payload uint64, cfg Config) string {
	var b strings.Builder
	b.WriteRune(cfg.StartChar)
	for i := payloadBits - 1; i >= 0; i-- {
		if payload&(uint64(1)<<uint(i)) != 0 {
			b.WriteRune(cfg.OneChar)
		} else {
			b.WriteRune(cfg.ZeroChar)
		}
	}
	b.WriteRune(cfg.EndChar)
	return b.String()
}

// DecodeTagsFromText scans text for substrings bracketed by
// cfg.StartChar/cfg.EndChar whose inner content is exactly 64
// characters drawn solely from {cfg.ZeroChar, cfg.OneChar}. Nested or
// malformed runs are skipped silently. Matches are returned in the
// order they occur in text.
func DecodeTagsFromText(text string, cfg Config) []uint64 {
	var out []uint64
	runes := []rune(text)

	i := 0
	for i < len(runes) {
		if runes[i] != cfg.StartChar {
			i++
			continue
		}
		// Found a start marker; scan forward collecting zero/one chars
		// until either the end marker, a foreign rune, or another start
		// marker (nesting) is seen.
		j := i + 1
		bits := make([]byte, 0, payloadBits)
		malformed := false
		for j < len(runes) {
			r := runes[j]
			switch {
			case r == cfg.EndChar:
				goto closed
			case r == cfg.StartChar:
				malformed = true
				goto closed
			case r == cfg.ZeroChar:
				bits = append(bits, 0)
				j++
			case r == cfg.OneChar:
				bits = append(bits, 1)
				j++
			default:
				malformed = true
				goto closed
			}
		}
		malformed = true // ran off the end without a closing char

	closed:
		if !malformed && j < len(runes) && runes[j] == cfg.EndChar && len(bits) == payloadBits {
			var v uint64
			for _, bit := range bits {
				v = v<<1 | uint64(bit)
			}
			out = append(out, v)
			i = j + 1
			continue
		}
		// Malformed or wrong-length run: advance past the start marker
		// only, so an outer scan can still find a subsequent valid tag.
		i++
	}

	return out
}

// Strip removes every occurrence of the zero-width alphabet (ZWSP,
// ZWNJ, ZWJ, WORD JOINER, and the start/end framing characters)
// regardless of framing.
func Strip(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if stripRunes[r] {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
