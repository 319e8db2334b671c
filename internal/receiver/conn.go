package receiver

import (
	"crypto/tls"
	"encoding/binary"
	"errors"
	"io"
	"net"
	"os"
	"path/filepath"
	"time"

	"github.com/google/uuid"

	"github.com/haldane-labs/backupd/internal/logger"
	"github.com/haldane-labs/backupd/internal/retention"
	"github.com/haldane-labs/backupd/internal/wire"
)

const streamChunkSize = 1024

// handle runs one accepted connection through the full state machine:
// handshake, rate-limit admission, metadata read, payload streaming, and
// response. It never returns an error; every failure path logs and
// returns after best-effort response delivery.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	peerIP := peerAddr(conn)
	connID := uuid.NewString()
	log := logger.WithConn(s.log, peerIP, connID)
	timeout := time.Duration(s.cfg.Limits.TimeoutSeconds) * time.Second

	log = logger.WithState(log, "tcp_accepted")
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		log.Warn("receiver: failed to set handshake deadline", logger.Err(err))
		s.observe("error")
		return
	}

	tlsConn, ok := conn.(*tls.Conn)
	if !ok {
		log.Error("receiver: connection is not TLS")
		s.observe("error")
		return
	}

	log = logger.WithState(log, "tls_handshake")
	if err := tlsConn.Handshake(); err != nil {
		log.Warn("receiver: TLS handshake failed", logger.Err(err))
		s.observe("error")
		return
	}

	log = logger.WithState(log, "rate_limit_check")
	if !s.admit(peerIP, time.Now(), s.cfg.Limits.MaximumBackupsPerHour) {
		log.Warn("receiver: rate limit exceeded")
		s.metrics.ObserveRateLimitRejection()
		s.respond(conn, log, wire.ExceededRateLimit)
		s.observe("rate_limited")
		return
	}

	log = logger.WithState(log, "read_metadata")
	meta, result := s.readMetadata(conn, log)
	if result != wire.Success {
		s.respond(conn, log, result)
		s.observe(resultLabel(result))
		return
	}
	log = logger.WithSchedule(log, meta.ServiceName.AsString(), meta.Cadence.String())

	log = logger.WithState(log, "prepare_file")
	file, path, err := s.prepareFile(meta)
	if err != nil {
		log.Error("receiver: failed to prepare destination file", logger.Err(err))
		s.respond(conn, log, wire.Error)
		s.observe("error")
		return
	}
	defer file.Close()

	log = logger.WithState(log, "stream_payload")
	if err := conn.SetDeadline(time.Now().Add(timeout)); err != nil {
		log.Warn("receiver: failed to set payload deadline", logger.Err(err))
		s.respond(conn, log, wire.Error)
		s.observe("error")
		return
	}

	n, streamErr := streamPayload(conn, file, meta.BackupBytes)
	s.metrics.AddBytesReceived(n)
	if streamErr != nil {
		result := classifyStreamErr(streamErr)
		log.Warn("receiver: payload stream failed", "bytes_received", n, logger.Err(streamErr))
		os.Remove(path)
		s.respond(conn, log, result)
		s.observe(resultLabel(result))
		return
	}

	log = logger.WithState(log, "success")
	s.respond(conn, log, wire.Success)
	s.record(peerIP, time.Now())

	s.rateMu.Lock()
	deleted := retention.Cleanup(log, s.cfg.BackupsRoot, s.cfg.RetentionLimit, meta)
	s.rateMu.Unlock()
	s.metrics.AddRetentionFilesDeleted(meta.Cadence.Lowercase(), deleted)

	log.Info("receiver: upload complete", logger.KeyBytes, n)
	s.observe("success")
}

func (s *Server) observe(result string) {
	s.metrics.ObserveConnection(result)
}

func resultLabel(r wire.Response) string {
	switch r {
	case wire.Success:
		return "success"
	case wire.BadData:
		return "bad_data"
	case wire.ExceededRateLimit:
		return "rate_limited"
	case wire.TooLarge:
		return "too_large"
	case wire.Timeout:
		return "timeout"
	default:
		return "error"
	}
}

// readMetadata reads exactly wire.HeaderSize bytes and validates them,
// mapping every failure to the Response the state machine should send.
func (s *Server) readMetadata(conn net.Conn, log interface {
	Warn(string, ...any)
}) (wire.Metadata, wire.Response) {
	buf := make([]byte, wire.HeaderSize)
	if _, err := io.ReadFull(conn, buf); err != nil {
		if isTimeout(err) {
			log.Warn("receiver: metadata read timed out")
			return wire.Metadata{}, wire.Timeout
		}
		log.Warn("receiver: metadata read failed", "error", err)
		return wire.Metadata{}, wire.BadData
	}

	meta, err := wire.MetadataFromBytes(buf)
	if err != nil {
		log.Warn("receiver: metadata validation failed", "error", err)
		return wire.Metadata{}, wire.BadData
	}

	if meta.BackupBytes > s.cfg.Limits.MaximumPayloadBytes {
		log.Warn("receiver: payload exceeds configured maximum",
			"backup_bytes", meta.BackupBytes, "maximum", s.cfg.Limits.MaximumPayloadBytes)
		return wire.Metadata{}, wire.TooLarge
	}

	return meta, wire.Success
}

// prepareFile creates (mkdir -p semantics) the cadence directory for
// meta and opens the destination file for writing. The file name is the
// current UTC time formatted to one-second resolution; a collision
// within the same second truncates the earlier file, which is accepted.
func (s *Server) prepareFile(meta wire.Metadata) (*os.File, string, error) {
	dir := meta.BackupDirectory(s.cfg.BackupsRoot)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, "", err
	}

	name := time.Now().UTC().Format("2006-01-02_15-04-05") + "." + meta.FileExtension.AsString()
	path := filepath.Join(dir, name)

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o644)
	if err != nil {
		return nil, "", err
	}
	return f, path, nil
}

// streamPayload copies exactly want bytes from src to dst in
// streamChunkSize chunks, returning the number of bytes actually
// written and any error. A read returning 0 bytes with a nil error
// before want is reached is treated as a fatal short read.
func streamPayload(src io.Reader, dst io.Writer, want uint64) (uint64, error) {
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
				return total, werr
			}
			total += uint64(n)
		}
		if err != nil {
			if err == io.EOF && total == want {
				break
			}
			return total, err
		}
		if n == 0 && err == nil {
			return total, io.ErrNoProgress
		}
	}

	return total, nil
}

func classifyStreamErr(err error) wire.Response {
	if isTimeout(err) {
		return wire.Timeout
	}
	return wire.Error
}

func isTimeout(err error) bool {
	var netErr net.Error
	if errors.As(err, &netErr) {
		return netErr.Timeout()
	}
	return false
}

// respond writes the 8-byte big-endian response code, then sends a TLS
// close-notify and completes connection teardown. Errors here are
// logged only, since the client is already leaving.
func (s *Server) respond(conn net.Conn, log interface {
	Warn(string, ...any)
}, r wire.Response) {
	var buf [wire.ResponseSize]byte
	binary.BigEndian.PutUint64(buf[:], uint64(r))

	if _, err := conn.Write(buf[:]); err != nil {
		log.Warn("receiver: failed to write response", "response", r.String(), "error", err)
		return
	}

	if tlsConn, ok := conn.(*tls.Conn); ok {
		if err := tlsConn.CloseWrite(); err != nil {
			log.Warn("receiver: close-notify failed", "error", err)
		}
	}
}

func peerAddr(conn net.Conn) string {
	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		return conn.RemoteAddr().String()
	}
	return host
}
