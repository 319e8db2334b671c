package wire

import "fmt"

// StringErr is the taxonomy of ways a candidate MetadataString byte slice
// can fail validation.
type StringErr struct {
	Kind  StringErrKind
	Index int   // set for Invalid
	Byte  byte  // set for Invalid
	Len   int   // set for TooLong
	Limit int   // set for TooLong
}

type StringErrKind int

const (
	StringEmpty StringErrKind = iota
	StringTooLong
	StringInvalidByte
)

func (e StringErr) Error() string {
	switch e.Kind {
	case StringEmpty:
		return "metadata string is empty"
	case StringTooLong:
		return fmt.Sprintf("metadata string too long: %d bytes, limit %d", e.Len, e.Limit)
	case StringInvalidByte:
		return fmt.Sprintf("metadata string has invalid byte 0x%02x at index %d", e.Byte, e.Index)
	default:
		return "metadata string error"
	}
}

// isAllowedByte reports whether b is in [A-Z a-z 0-9 _ -], the charset
// MetadataString identifiers are restricted to so that they can be used
// unescaped as filesystem path components.
func isAllowedByte(b byte) bool {
	switch {
	case b >= 'A' && b <= 'Z':
		return true
	case b >= 'a' && b <= 'z':
		return true
	case b >= '0' && b <= '9':
		return true
	case b == '_' || b == '-':
		return true
	default:
		return false
	}
}

// validateBytes checks the invariants common to every MetadataString<L>:
// non-empty, within the length limit, charset-restricted, and once a NUL
// byte appears all subsequent bytes are also NUL. It does not require the
// input already be padded to L — callers pass raw candidate bytes here,
// and the fixed-width padded form when validating a decoded header field.
func validateBytes(b []byte, limit int) error {
	if len(b) == 0 {
		return StringErr{Kind: StringEmpty}
	}
	if len(b) > limit {
		return StringErr{Kind: StringTooLong, Len: len(b), Limit: limit}
	}
	if b[0] == 0 {
		return StringErr{Kind: StringInvalidByte, Index: 0, Byte: 0}
	}

	seenNul := false
	for i, c := range b {
		if seenNul {
			if c != 0 {
				return StringErr{Kind: StringInvalidByte, Index: i, Byte: c}
			}
			continue
		}
		if c == 0 {
			seenNul = true
			continue
		}
		if !isAllowedByte(c) {
			return StringErr{Kind: StringInvalidByte, Index: i, Byte: c}
		}
	}
	return nil
}

// asString decodes a fixed-width NUL-padded byte array from the start up
// to the first NUL (or the full length, if there is none).
func asString(b []byte) string {
	for i, c := range b {
		if c == 0 {
			return string(b[:i])
		}
	}
	return string(b)
}
