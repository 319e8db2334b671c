// Package sender implements the upload side of the backup transport:
// dial the receiver over mTLS, send one fixed header followed by the
// payload stream, and interpret the 8-byte status response.
package sender

import (
	"context"
	"crypto/tls"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"time"

	"github.com/haldane-labs/backupd/internal/source"
	"github.com/haldane-labs/backupd/internal/wire"
)

const streamChunkSize = 1024

// Config names the receiver this Endpoint uploads to and the TLS
// configuration used to reach it.
type Config struct {
	ReceiverAddress string
	ReceiverPort    int
	TLS             *tls.Config
	DialTimeout     time.Duration
}

// Endpoint is one configured upload target.
type Endpoint struct {
	cfg Config
	log *slog.Logger
}

// New constructs an Endpoint. A zero DialTimeout defaults to 30s.
func New(cfg Config, log *slog.Logger) *Endpoint {
	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 30 * time.Second
	}
	return &Endpoint{cfg: cfg, log: log}
}

// ErrKind enumerates the ways SendBackup can fail.
type ErrKind int

const (
	TlsConnect ErrKind = iota
	Io
	InvalidResponse
	ErrorResponse
)

// SendErr is the error type SendBackup returns on any non-success
// outcome. Response is only meaningful when Kind is ErrorResponse.
type SendErr struct {
	Kind     ErrKind
	Response wire.Response
	Err      error
}

func (e SendErr) Error() string {
	switch e.Kind {
	case TlsConnect:
		return fmt.Sprintf("sender: TLS connect failed: %v", e.Err)
	case Io:
		return fmt.Sprintf("sender: I/O error: %v", e.Err)
	case InvalidResponse:
		return fmt.Sprintf("sender: invalid response from receiver: %v", e.Err)
	case ErrorResponse:
		return fmt.Sprintf("sender: receiver rejected upload: %s", e.Response)
	default:
		return "sender: unknown error"
	}
}

func (e SendErr) Unwrap() error { return e.Err }

func (e *Endpoint) logf(msg string, args ...any) {
	if e.log == nil {
		return
	}
	e.log.Warn(msg, args...)
}

// SendBackup dials the configured receiver, completes an mTLS handshake,
// writes backup.Metadata followed by exactly backup.Metadata.BackupBytes
// bytes read from backup.Reader, and interprets the receiver's 8-byte
// response. It returns nil only when the receiver answers Success.
//
// SendBackup does not retry; retry policy belongs to the caller (the
// scheduler runs it once per due (service, cadence) pair per pass).
func (e *Endpoint) SendBackup(ctx context.Context, backup source.Backup) error {
	addr := net.JoinHostPort(e.cfg.ReceiverAddress, strconv.Itoa(e.cfg.ReceiverPort))

	dialCtx, cancel := context.WithTimeout(ctx, e.cfg.DialTimeout)
	defer cancel()

	tlsConn, err := dialTLS(dialCtx, addr, e.cfg.TLS)
	if err != nil {
		e.logf("sender: TLS connect failed", "address", addr, "error", err)
		return SendErr{Kind: TlsConnect, Err: err}
	}
	defer tlsConn.Close()

	hdr := backup.Metadata.ToBytes()
	if _, err := tlsConn.Write(hdr[:]); err != nil {
		return SendErr{Kind: Io, Err: fmt.Errorf("writing metadata header: %w", err)}
	}

	if err := streamPayload(tlsConn, backup.Reader, backup.Metadata.BackupBytes); err != nil {
		return SendErr{Kind: Io, Err: fmt.Errorf("streaming payload: %w", err)}
	}

	var respBuf [wire.ResponseSize]byte
	if _, err := io.ReadFull(tlsConn, respBuf[:]); err != nil {
		return SendErr{Kind: Io, Err: fmt.Errorf("reading response: %w", err)}
	}

	code := binary.BigEndian.Uint64(respBuf[:])
	resp, ok := wire.ResponseFromUint64(code)
	if !ok {
		return SendErr{Kind: InvalidResponse, Err: fmt.Errorf("unknown response code %d", code)}
	}

	_ = tlsConn.CloseWrite()

	if resp != wire.Success {
		return SendErr{Kind: ErrorResponse, Response: resp}
	}
	return nil
}

// dialTLS connects to addr and completes the TLS handshake, respecting
// ctx for both the dial and the handshake.
func dialTLS(ctx context.Context, addr string, cfg *tls.Config) (*tls.Conn, error) {
	dialer := &net.Dialer{}
	conn, err := dialer.DialContext(ctx, "tcp", addr)
	if err != nil {
		return nil, err
	}

	tlsConn := tls.Client(conn, cfg)
	if deadline, ok := ctx.Deadline(); ok {
		if err := tlsConn.SetDeadline(deadline); err != nil {
			conn.Close()
			return nil, err
		}
	}

	if err := tlsConn.HandshakeContext(ctx); err != nil {
		conn.Close()
		return nil, err
	}

	if err := tlsConn.SetDeadline(time.Time{}); err != nil {
		tlsConn.Close()
		return nil, err
	}

	return tlsConn, nil
}

// streamPayload copies exactly want bytes from src to dst in
// streamChunkSize chunks. A read returning 0 bytes with a nil error
// before want is reached is a fatal short read.
func streamPayload(dst io.Writer, src io.Reader, want uint64) error {
	buf := make([]byte, streamChunkSize)
	var total uint64

	for total < want {
		remaining := want - total
		chunk := buf
		if uint64(len(chunk)) > remaining {
			chunk = buf[:remaining]
		}

		n, err := src.Read(chunk)
		if n > 0 {
			if _, werr := dst.Write(chunk[:n]); werr != nil {
				return werr
			}
			total += uint64(n)
		}
		if err != nil {
			if errors.Is(err, io.EOF) && total == want {
				break
			}
			return err
		}
		if n == 0 && err == nil {
			return io.ErrNoProgress
		}
	}

	return nil
}
