package file

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/haldane-labs/backupd/internal/source"
	"github.com/haldane-labs/backupd/internal/wire"
)

func writeFile(t *testing.T, dir, name, content string) {
	t.Helper()
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(dir, name), []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func TestNew_RejectsMissingCadences(t *testing.T) {
	_, err := New(Config{ServiceName: "orders", Directory: t.TempDir(), FileExtension: "tar"})
	if err == nil {
		t.Fatal("expected error for source with no declared cadences")
	}
}

func TestGetBackup_ReturnsLexicographicallyLastFile(t *testing.T) {
	root := t.TempDir()
	dailyDir := filepath.Join(root, "daily")
	writeFile(t, dailyDir, "backup-20260101.tar.gz", "first")
	writeFile(t, dailyDir, "backup-20260102.tar.gz", "second-contents")

	src, err := New(Config{
		ServiceName:   "orders",
		Directory:     root,
		Cadences:      []wire.Cadence{wire.Daily},
		FileExtension: "tar",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	backup, err := src.GetBackup(wire.Daily)
	if err != nil {
		t.Fatalf("GetBackup: %v", err)
	}
	defer func() {
		if c, ok := backup.Reader.(io.Closer); ok {
			c.Close()
		}
	}()

	if backup.Metadata.BackupBytes != uint64(len("second-contents")) {
		t.Fatalf("BackupBytes = %d, want %d", backup.Metadata.BackupBytes, len("second-contents"))
	}
	data, err := io.ReadAll(backup.Reader)
	if err != nil {
		t.Fatalf("reading backup: %v", err)
	}
	if string(data) != "second-contents" {
		t.Fatalf("content = %q, want %q", data, "second-contents")
	}
}

func TestGetBackup_RejectsNonParticipatingCadence(t *testing.T) {
	src, err := New(Config{
		ServiceName:   "orders",
		Directory:     t.TempDir(),
		Cadences:      []wire.Cadence{wire.Weekly},
		FileExtension: "tar",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = src.GetBackup(wire.Hourly)
	srcErr, ok := err.(source.Err)
	if !ok || srcErr.Kind != source.ErrNotParticipating {
		t.Fatalf("GetBackup(Hourly) = %v, want ErrNotParticipating", err)
	}
}

func TestGetBackup_NoFilesYieldsNoBackupAvailable(t *testing.T) {
	src, err := New(Config{
		ServiceName:   "orders",
		Directory:     t.TempDir(),
		Cadences:      []wire.Cadence{wire.Monthly},
		FileExtension: "tar",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	_, err = src.GetBackup(wire.Monthly)
	srcErr, ok := err.(source.Err)
	if !ok || srcErr.Kind != source.ErrNoBackupAvailable {
		t.Fatalf("GetBackup() = %v, want ErrNoBackupAvailable", err)
	}
}

func TestCleanup_IsNoOp(t *testing.T) {
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "hourly"), "x.tar.gz", "data")

	src, err := New(Config{
		ServiceName:   "orders",
		Directory:     root,
		Cadences:      []wire.Cadence{wire.Hourly},
		FileExtension: "tar",
	})
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	backup, err := src.GetBackup(wire.Hourly)
	if err != nil {
		t.Fatalf("GetBackup: %v", err)
	}
	if c, ok := backup.Reader.(io.Closer); ok {
		defer c.Close()
	}

	src.Cleanup(backup.Metadata)

	remaining, err := os.ReadDir(filepath.Join(root, "hourly"))
	if err != nil {
		t.Fatal(err)
	}
	if len(remaining) != 1 {
		t.Fatalf("Cleanup should not remove files, got %d remaining", len(remaining))
	}
}
