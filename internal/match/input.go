// Package match implements the query tokenizer and the word-prefix matcher
// used by every plugin to test candidate labels against the typed query.
package match

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// terminators is the fixed set of characters that bound words, both in the
// query and in candidate strings.
const terminators = `!#*()_+=/?.,<>;:'"[]{}- `

func isTerminator(r rune) bool {
	return r < utf8.RuneSelf && strings.ContainsRune(terminators, r)
}

// Input is the immutable, per-cycle view of one query. It is built once per
// collection cycle and shared read-only by every dispatched plugin.
type Input struct {
	raw       string
	tokens    []string
	hasPrefix bool
}

// New tokenizes a raw query. hasPrefix records whether a recognized plugin
// prefix was stripped from the query before tokenizing.
func New(raw string, hasPrefix bool) *Input {
	raw = strings.TrimSpace(raw)
	in := &Input{raw: raw, hasPrefix: hasPrefix}
	if raw == "" {
		return in
	}
	for _, tok := range strings.FieldsFunc(raw, isTerminator) {
		tok = strings.TrimFunc(tok, isTerminator)
		if tok != "" {
			in.tokens = append(in.tokens, strings.ToLower(tok))
		}
	}
	return in
}

// Raw returns the trimmed query string (after any prefix strip).
func (in *Input) Raw() string { return in.raw }

// Tokens returns the normalized word tokens, in query order.
func (in *Input) Tokens() []string { return in.tokens }

// HasPrefix reports whether the query was routed to a single plugin by its
// registered prefix.
func (in *Input) HasPrefix() bool { return in.hasPrefix }

// Matches reports whether the token sequence is found, in order, as
// case-insensitive prefixes of words within candidate. An empty token list
// matches everything.
func (in *Input) Matches(candidate string) bool {
	ok, _ := in.scan(candidate)
	return ok
}

// MatchPerfect reports whether candidate matches, and whether the match is
// perfect: every token consumed its entire word, no word was skipped and
// none was left over. Perfect matches rank first.
func (in *Input) MatchPerfect(candidate string) (matched, perfect bool) {
	return in.scan(candidate)
}

const (
	wordNone = iota
	wordPrefix
	wordExact
)

// scan is a single left-to-right pass over candidate. Each token anchors at
// the start of a candidate word and may match a strict prefix of it. A failed
// in-word match skips to the next word and retries the same token instead of
// failing the whole match.
func (in *Input) scan(candidate string) (bool, bool) {
	if len(in.tokens) == 0 {
		// An empty query matches everything but is perfect only against an
		// empty candidate, or a terminator-only name would pin first.
		return true, candidate == ""
	}
	var (
		ti    int // next token to place
		clean = true
		i     int
	)
	n := len(candidate)
	for i < n {
		r, sz := utf8.DecodeRuneInString(candidate[i:])
		if isTerminator(r) {
			i += sz
			continue
		}
		start := i
		for i < n {
			r, sz = utf8.DecodeRuneInString(candidate[i:])
			if isTerminator(r) {
				break
			}
			i += sz
		}
		if ti >= len(in.tokens) {
			// Word past the last token: still a match, never perfect.
			clean = false
			break
		}
		switch prefixFold(candidate[start:i], in.tokens[ti]) {
		case wordExact:
			ti++
		case wordPrefix:
			ti++
			clean = false
		case wordNone:
			clean = false
		}
	}
	matched := ti == len(in.tokens)
	return matched, matched && clean
}

// prefixFold matches token (already lower-cased) against the start of word,
// case-insensitively.
func prefixFold(word, token string) int {
	wi := 0
	for _, tr := range token {
		if wi >= len(word) {
			return wordNone
		}
		wr, sz := utf8.DecodeRuneInString(word[wi:])
		if unicode.ToLower(wr) != tr {
			return wordNone
		}
		wi += sz
	}
	if wi == len(word) {
		return wordExact
	}
	return wordPrefix
}
