package zerowidth

import "strings"

// TagInjector streams a tag into generated text at a fixed codepoint
// interval. Construction fixes the tag text and repeat interval; state
// (the countdown and whether anything has been emitted yet) is mutated
// only by InjectDelta.
type TagInjector struct {
	tag      string
	interval int
	carry    int
	emitted  bool
}

// NewTagInjector builds an injector with state carry = repeatIntervalTokens.
func NewTagInjector(tag string, repeatIntervalTokens int) *TagInjector {
	return &TagInjector{
		tag:      tag,
		interval: repeatIntervalTokens,
		carry:    repeatIntervalTokens,
	}
}

// InjectDelta consumes one incremental piece of generated text. For
// each incoming codepoint it decrements the countdown; on reaching
// zero (or below) it appends the full tag immediately after that
// codepoint and resets the countdown. If finalize is true and no tag
// was emitted during this call, and nothing has been emitted across
// the injector's lifetime, one final tag is appended at the end.
func (inj *TagInjector) InjectDelta(piece string, finalize bool) string {
	var b strings.Builder
	b.Grow(len(piece) + len(inj.tag))

	emittedThisCall := false
	for _, r := range piece {
		b.WriteRune(r)
		inj.carry--
		if inj.carry <= 0 {
			b.WriteString(inj.tag)
			inj.carry = inj.interval
			inj.emitted = true
			emittedThisCall = true
		}
	}

	if finalize && !emittedThisCall && !inj.emitted {
		b.WriteString(inj.tag)
		inj.emitted = true
	}

	return b.String()
}
