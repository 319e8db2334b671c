// Package file implements a Source backed by a directory of pre-built
// archive files, one subdirectory per cadence.
package file

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"

	"github.com/haldane-labs/backupd/internal/source"
	"github.com/haldane-labs/backupd/internal/wire"
)

// Source watches <directory>/<cadence>/ for each declared cadence and,
// on GetBackup, hands back the lexicographically-last regular file in
// that directory. It does not produce the files itself — an operator or
// an external job is expected to drop new archives into place.
type Source struct {
	service       wire.String128
	serviceName   string
	directory     string
	cadences      []wire.Cadence
	fileExtension wire.String32
}

// Config describes one FileSource instance.
type Config struct {
	// ServiceName identifies the service; must satisfy the MetadataString
	// charset since it becomes both the wire field and a path component.
	ServiceName string
	// Directory is the root directory; files are read from
	// Directory/<cadence lowercase>/.
	Directory string
	// Cadences lists which cadences this source participates in.
	Cadences []wire.Cadence
	// FileExtension is recorded in the Metadata for every backup this
	// source produces (e.g. "tar"). It must satisfy the MetadataString
	// charset, so a dotted extension such as "tar.gz" is rejected.
	FileExtension string
}

// New validates cfg and constructs a Source.
func New(cfg Config) (*Source, error) {
	service, err := wire.String128From([]byte(cfg.ServiceName))
	if err != nil {
		return nil, fmt.Errorf("file source: invalid service name %q: %w", cfg.ServiceName, err)
	}
	ext, err := wire.String32From([]byte(cfg.FileExtension))
	if err != nil {
		return nil, fmt.Errorf("file source: invalid file extension %q: %w", cfg.FileExtension, err)
	}
	if len(cfg.Cadences) == 0 {
		return nil, fmt.Errorf("file source %q: must declare at least one cadence", cfg.ServiceName)
	}
	if cfg.Directory == "" {
		return nil, fmt.Errorf("file source %q: directory is required", cfg.ServiceName)
	}

	cadences := make([]wire.Cadence, len(cfg.Cadences))
	copy(cadences, cfg.Cadences)

	return &Source{
		service:       service,
		serviceName:   cfg.ServiceName,
		directory:     cfg.Directory,
		cadences:      cadences,
		fileExtension: ext,
	}, nil
}

func (s *Source) ServiceName() string { return s.serviceName }

func (s *Source) Cadences() []wire.Cadence {
	out := make([]wire.Cadence, len(s.cadences))
	copy(out, s.cadences)
	return out
}

func (s *Source) participates(cadence wire.Cadence) bool {
	for _, c := range s.cadences {
		if c == cadence {
			return true
		}
	}
	return false
}

// GetBackup opens the lexicographically-last regular file in the
// cadence's watch directory and returns it as the payload, sized
// according to its current length on disk.
func (s *Source) GetBackup(cadence wire.Cadence) (source.Backup, error) {
	if !s.participates(cadence) {
		return source.Backup{}, source.Err{Kind: source.ErrNotParticipating}
	}

	dir := filepath.Join(s.directory, cadence.Lowercase())
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return source.Backup{}, source.Err{Kind: source.ErrNoBackupAvailable}
		}
		return source.Backup{}, source.Err{Kind: source.ErrIO, Err: err}
	}

	var names []string
	for _, e := range entries {
		if e.Type().IsRegular() {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return source.Backup{}, source.Err{Kind: source.ErrNoBackupAvailable}
	}
	sort.Strings(names)
	latest := names[len(names)-1]

	path := filepath.Join(dir, latest)
	f, err := os.Open(path)
	if err != nil {
		return source.Backup{}, source.Err{Kind: source.ErrIO, Err: err}
	}
	info, err := f.Stat()
	if err != nil {
		f.Close()
		return source.Backup{}, source.Err{Kind: source.ErrIO, Err: err}
	}

	meta := wire.NewMetadata(uint64(info.Size()), s.service, cadence, s.fileExtension)
	return source.Backup{Metadata: meta, Reader: f}, nil
}

// Cleanup is a no-op: the watched file is operator-managed input, not a
// temporary artifact the source is responsible for removing.
func (s *Source) Cleanup(wire.Metadata) {}

var _ source.Source = (*Source)(nil)
