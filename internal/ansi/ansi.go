// Package ansi removes terminal escape sequences from script output.
//
// Strip handles complete strings. Stripper handles a byte stream delivered
// in arbitrary chunks, where a sequence may start in one chunk and end in
// the next.
package ansi

import (
	xansi "github.com/charmbracelet/x/ansi"
)

// Strip removes ANSI escape sequences from a complete string.
func Strip(s string) string {
	return xansi.Strip(s)
}

type state uint8

const (
	stateGround state = iota
	stateEscape
	stateEscapeIntermediate
	stateCSI
	stateString
	stateStringEscape
)

const (
	esc = 0x1b
	bel = 0x07
	del = 0x7f
)

// Stripper is a streaming escape-sequence filter. The zero value is ready
// to use. It is not safe for concurrent use.
//
// Printable bytes, including UTF-8 multi-byte sequences, pass through
// unchanged. Newlines and tabs are kept. Other C0 controls, CSI, OSC, DCS,
// SOS, PM and APC sequences are dropped.
type Stripper struct {
	st state
}

// Append filters p and appends the surviving bytes to dst.
func (s *Stripper) Append(dst, p []byte) []byte {
	for _, b := range p {
		dst = s.step(dst, b)
	}

	return dst
}

// InSequence reports whether the stripper is in the middle of an escape
// sequence.
func (s *Stripper) InSequence() bool {
	return s.st != stateGround
}

// Reset discards any partial sequence.
func (s *Stripper) Reset() {
	s.st = stateGround
}

func (s *Stripper) step(dst []byte, b byte) []byte {
	switch s.st {
	case stateGround:
		switch {
		case b == esc:
			s.st = stateEscape
		case b == '\n' || b == '\t':
			dst = append(dst, b)
		case b < 0x20 || b == del:
		default:
			dst = append(dst, b)
		}
	case stateEscape:
		switch {
		case b == '[':
			s.st = stateCSI
		case b == ']' || b == 'P' || b == 'X' || b == '^' || b == '_':
			s.st = stateString
		case b == esc:
		case b >= 0x20 && b <= 0x2f:
			s.st = stateEscapeIntermediate
		case b >= 0x30 && b <= 0x7e:
			s.st = stateGround
		}
	case stateEscapeIntermediate:
		switch {
		case b == esc:
			s.st = stateEscape
		case b >= 0x30 && b <= 0x7e:
			s.st = stateGround
		}
	case stateCSI:
		switch {
		case b == esc:
			s.st = stateEscape
		case b >= 0x40 && b <= 0x7e:
			s.st = stateGround
		}
	case stateString:
		switch b {
		case bel:
			s.st = stateGround
		case esc:
			s.st = stateStringEscape
		}
	case stateStringEscape:
		if b == '\\' {
			s.st = stateGround
			break
		}

		s.st = stateEscape
		dst = s.step(dst, b)
	}

	return dst
}
