// Package source defines the capability the scheduler consumes to obtain
// a payload for a given cadence.
package source

import (
	"io"

	"github.com/haldane-labs/backupd/internal/wire"
)

// Backup pairs the header describing a payload with the stream that
// produces exactly metadata.BackupBytes bytes.
type Backup struct {
	Metadata wire.Metadata
	Reader   io.Reader
}

// Source is implemented by anything the scheduler can poll for a backup
// of a declared service. The core never constructs a Source itself; it
// only consumes the interface.
type Source interface {
	// GetBackup produces the payload for cadence. The returned
	// metadata's BackupBytes must equal the exact number of bytes
	// Reader will yield.
	GetBackup(cadence wire.Cadence) (Backup, error)

	// Cadences lists which cadences this source participates in.
	Cadences() []wire.Cadence

	// ServiceName identifies the service this source backs up.
	ServiceName() string

	// Cleanup runs after a successful upload of the given metadata,
	// e.g. to remove a temporary archive. It is never called on
	// failure.
	Cleanup(metadata wire.Metadata)
}

// ErrKind enumerates the ways GetBackup can fail.
type ErrKind int

const (
	// ErrNotParticipating means the source was asked for a cadence it
	// does not declare in Cadences().
	ErrNotParticipating ErrKind = iota
	// ErrNoBackupAvailable means the source has nothing to offer right
	// now (e.g. an empty watched directory).
	ErrNoBackupAvailable
	// ErrIO wraps an underlying filesystem or I/O failure.
	ErrIO
)

// Err is the error type returned by GetBackup implementations.
type Err struct {
	Kind ErrKind
	Err  error
}

func (e Err) Error() string {
	switch e.Kind {
	case ErrNotParticipating:
		return "source: cadence not participating"
	case ErrNoBackupAvailable:
		return "source: no backup available"
	case ErrIO:
		if e.Err != nil {
			return "source: " + e.Err.Error()
		}
		return "source: I/O error"
	default:
		return "source: error"
	}
}

func (e Err) Unwrap() error { return e.Err }
