// Package wire implements the fixed-layout binary metadata header and
// status response that make up the sender/receiver wire protocol.
package wire

import (
	"encoding/binary"
	"fmt"
	"path/filepath"
)

// Field offsets and sizes. HeaderSize is the total fixed header size; no
// length-prefix precedes the payload because backup_bytes is
// authoritative.
const (
	offsetBackupBytes    = 0
	offsetServiceName    = 8
	offsetCadence        = 136
	offsetFileExtension  = 144
	offsetEndian         = 176
	offsetPadding        = 177
	paddingLen           = 15
	HeaderSize           = 192
)

// Endian byte values.
const (
	EndianBig    byte = 0
	EndianLittle byte = 1
)

// Metadata is the fixed-width record describing one payload.
type Metadata struct {
	BackupBytes     uint64
	ServiceName     String128
	Cadence         Cadence
	FileExtension   String32
	Endian          byte
}

// MetaErrKind enumerates the ways a candidate header buffer can fail
// validation.
type MetaErrKind int

const (
	WrongSize MetaErrKind = iota
	InvalidEndian
	InvalidCadence
	InvalidServiceName
	InvalidFileExtension
)

type MetaErr struct {
	Kind MetaErrKind
	Got  int
	Want int
	Byte byte
	Raw  uint64
	Err  error // wraps the underlying StringErr for InvalidServiceName/InvalidFileExtension
}

func (e MetaErr) Error() string {
	switch e.Kind {
	case WrongSize:
		return fmt.Sprintf("metadata: wrong size, got %d want %d", e.Got, e.Want)
	case InvalidEndian:
		return fmt.Sprintf("metadata: invalid endian byte 0x%02x", e.Byte)
	case InvalidCadence:
		return fmt.Sprintf("metadata: invalid cadence %d", e.Raw)
	case InvalidServiceName:
		return fmt.Sprintf("metadata: invalid service name: %v", e.Err)
	case InvalidFileExtension:
		return fmt.Sprintf("metadata: invalid file extension: %v", e.Err)
	default:
		return "metadata: invalid"
	}
}

func (e MetaErr) Unwrap() error { return e.Err }

// localByteOrder returns the byte order this process's architecture uses
// natively, determined without unsafe by round-tripping a known value
// through encoding/binary.NativeEndian.
func localByteOrder() binary.ByteOrder {
	var buf [2]byte
	binary.NativeEndian.PutUint16(buf[:], 1)
	if buf[0] == 1 {
		return binary.LittleEndian
	}
	return binary.BigEndian
}

func endianByte(order binary.ByteOrder) byte {
	if order == binary.LittleEndian {
		return EndianLittle
	}
	return EndianBig
}

func byteOrderFor(b byte) (binary.ByteOrder, bool) {
	switch b {
	case EndianBig:
		return binary.BigEndian, true
	case EndianLittle:
		return binary.LittleEndian, true
	default:
		return nil, false
	}
}

// NewMetadata builds a Metadata describing a payload of the given size,
// service, cadence and extension, tagging it with this machine's native
// endianness.
func NewMetadata(size uint64, service String128, cadence Cadence, ext String32) Metadata {
	return Metadata{
		BackupBytes:   size,
		ServiceName:   service,
		Cadence:       cadence,
		FileExtension: ext,
		Endian:        endianByte(localByteOrder()),
	}
}

// ToBytes serializes the header field-by-field (never by reinterpreting
// an in-memory struct), so the 15 padding bytes are always explicitly
// zero rather than leaking whatever happened to be on the stack.
func (m Metadata) ToBytes() [HeaderSize]byte {
	var buf [HeaderSize]byte

	order, ok := byteOrderFor(m.Endian)
	if !ok {
		order = localByteOrder()
	}

	order.PutUint64(buf[offsetBackupBytes:], m.BackupBytes)
	copy(buf[offsetServiceName:offsetServiceName+128], m.ServiceName[:])
	order.PutUint64(buf[offsetCadence:], uint64(m.Cadence))
	copy(buf[offsetFileExtension:offsetFileExtension+32], m.FileExtension[:])
	buf[offsetEndian] = m.Endian
	// buf[offsetPadding:offsetPadding+paddingLen] is already zero.

	return buf
}

// MetadataFromBytes decodes and validates a header buffer, enforcing
// size, endian tag, both MetadataString invariants, and the cadence
// closed set. backup_bytes' own upper bound (a configured maximum payload
// size) is a receiver-level concern, not a decode-time one, and is
// checked by the caller against its configured limit.
func MetadataFromBytes(b []byte) (Metadata, error) {
	if len(b) != HeaderSize {
		return Metadata{}, MetaErr{Kind: WrongSize, Got: len(b), Want: HeaderSize}
	}

	endian := b[offsetEndian]
	order, ok := byteOrderFor(endian)
	if !ok {
		return Metadata{}, MetaErr{Kind: InvalidEndian, Byte: endian}
	}

	serviceRaw := b[offsetServiceName : offsetServiceName+128]
	if err := ValidateString128(serviceRaw); err != nil {
		return Metadata{}, MetaErr{Kind: InvalidServiceName, Err: err}
	}
	var service String128
	copy(service[:], serviceRaw)

	extRaw := b[offsetFileExtension : offsetFileExtension+32]
	if err := ValidateString32(extRaw); err != nil {
		return Metadata{}, MetaErr{Kind: InvalidFileExtension, Err: err}
	}
	var ext String32
	copy(ext[:], extRaw)

	cadenceRaw := order.Uint64(b[offsetCadence:])
	cadence := Cadence(cadenceRaw)
	if !cadence.Valid() {
		return Metadata{}, MetaErr{Kind: InvalidCadence, Raw: cadenceRaw}
	}

	backupBytes := order.Uint64(b[offsetBackupBytes:])

	return Metadata{
		BackupBytes:   backupBytes,
		ServiceName:   service,
		Cadence:       cadence,
		FileExtension: ext,
		Endian:        endian,
	}, nil
}

// BackupDirectory returns backups/<service>/<cadence_lowercase>, the
// directory a payload matching this header is written under.
func (m Metadata) BackupDirectory(backupsRoot string) string {
	return filepath.Join(backupsRoot, m.ServiceName.AsString(), m.Cadence.Lowercase())
}
