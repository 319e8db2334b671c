package wire

// String128 is a MetadataString<128>: used for the service_name field.
type String128 [128]byte

// String128From validates and constructs a String128 from candidate bytes,
// NUL-padding the remainder.
func String128From(b []byte) (String128, error) {
	var s String128
	if err := validateBytes(b, len(s)); err != nil {
		return s, err
	}
	copy(s[:], b)
	return s, nil
}

// ValidateString128 validates candidate bytes without constructing a
// String128 — used by the header decoder, which already holds the field
// in place inside the larger buffer.
func ValidateString128(b []byte) error {
	return validateBytes(b, 128)
}

// AsString decodes from the start to the first NUL (or the full width).
func (s String128) AsString() string {
	return asString(s[:])
}

func (s String128) Bytes() [128]byte {
	return s
}
