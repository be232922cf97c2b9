package segment

import (
	"strings"
	"unicode"
)

// Utterance is a bounded unit of text ready for independent synthesis.
// Seq is assigned in strictly increasing order with no gaps and is the
// ordering key used to re-serialize audio downstream.
type Utterance struct {
	Seq  uint64
	Text string
}

// Options bound the segmenter's emission policy.
type Options struct {
	MinChars int // prefixes shorter than this stay buffered even past a boundary
	MaxChars int // size-bound fallback: force a split once the buffer exceeds this
}

// DefaultOptions mirrors the pipeline config defaults.
func DefaultOptions() Options {
	return Options{MinChars: 3, MaxChars: 220}
}

// Segmenter converts an incrementally growing text buffer into complete
// utterances. It is pure buffering logic with no concurrency; a session has
// a single logical writer.
type Segmenter struct {
	opts    Options
	buf     strings.Builder
	nextSeq uint64
}

func New(opts Options) *Segmenter {
	if opts.MinChars <= 0 {
		opts.MinChars = 3
	}
	if opts.MaxChars <= opts.MinChars {
		opts.MaxChars = 220
	}
	return &Segmenter{opts: opts}
}

// Feed appends a token delta and returns zero or more completed utterances.
//
// A sentence mark (. ! ?) only confirms a boundary once the following
// whitespace has arrived; a mark at the very end of the buffer stays pending
// because the stream may still append to it ("...", "3.14"). The trailing
// text is emitted by Flush at end of stream.
func (s *Segmenter) Feed(delta string) []Utterance {
	if delta == "" {
		return nil
	}
	s.buf.WriteString(delta)

	var out []Utterance
	for {
		u, ok := s.cut()
		if !ok {
			break
		}
		out = append(out, u)
	}
	return out
}

// Flush emits whatever remains in the buffer as a final utterance, or false
// if only whitespace is left. Called once, at end of stream.
func (s *Segmenter) Flush() (Utterance, bool) {
	rest := strings.TrimSpace(s.buf.String())
	s.buf.Reset()
	if rest == "" {
		return Utterance{}, false
	}
	return s.emit(rest), true
}

func (s *Segmenter) emit(text string) Utterance {
	u := Utterance{Seq: s.nextSeq, Text: text}
	s.nextSeq++
	return u
}

// cut removes and returns the leftmost confirmed utterance from the buffer.
func (s *Segmenter) cut() (Utterance, bool) {
	buf := s.buf.String()

	if end, ok := s.strongBoundary(buf); ok {
		return s.take(buf, end), true
	}
	if len(buf) > s.opts.MaxChars {
		if end, ok := forcedBoundary(buf, s.opts.MaxChars); ok {
			return s.take(buf, end), true
		}
	}
	return Utterance{}, false
}

func (s *Segmenter) take(buf string, end int) Utterance {
	head := strings.TrimSpace(buf[:end])
	s.buf.Reset()
	s.buf.WriteString(strings.TrimLeft(buf[end:], " \t\n"))
	return s.emit(head)
}

// strongBoundary finds the leftmost sentence mark followed by whitespace
// whose prefix has enough real content to stand alone.
func (s *Segmenter) strongBoundary(buf string) (int, bool) {
	for i := 0; i < len(buf)-1; i++ {
		if !isSentenceMark(buf[i]) || !isSpaceByte(buf[i+1]) {
			continue
		}
		head := strings.TrimSpace(buf[:i+1])
		if len(head) < s.opts.MinChars || purePunctuation(head) {
			continue // too short to stand alone, fold into the next sentence
		}
		return i + 1, true
	}
	return 0, false
}

// forcedBoundary caps tail latency when no sentence mark shows up: prefer a
// clause mark (, ; :) inside the window, then the last word boundary.
func forcedBoundary(buf string, maxChars int) (int, bool) {
	window := buf
	if len(window) > maxChars {
		window = window[:maxChars]
	}
	for i := len(window) - 1; i > 0; i-- {
		if isClauseMark(window[i]) && i+1 < len(buf) && isSpaceByte(buf[i+1]) {
			return i + 1, true
		}
	}
	if i := strings.LastIndexByte(window, ' '); i > 0 {
		return i, true
	}
	return 0, false
}

func isSentenceMark(c byte) bool {
	return c == '.' || c == '!' || c == '?'
}

func isClauseMark(c byte) bool {
	return c == ',' || c == ';' || c == ':'
}

func isSpaceByte(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

func purePunctuation(text string) bool {
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return false
		}
	}
	return true
}
