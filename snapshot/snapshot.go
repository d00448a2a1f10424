// Package snapshot persists the full database state (records plus the
// serialized graph) as a single file: a fixed header followed by an
// optionally compressed gob stream. Writes are atomic via temp-file rename.
package snapshot

import (
	"context"
	"encoding/binary"
	"encoding/gob"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/klauspost/compress/zstd"
	"github.com/pierrec/lz4/v4"

	"github.com/d65v/vecbase/resource"
	"github.com/d65v/vecbase/store"
)

const (
	// magicNumber identifies a snapshot file ("VBSS").
	magicNumber uint32 = 0x56425353

	// version is the current snapshot format version.
	version uint16 = 1
)

var (
	// ErrInvalidMagic indicates the file is not a snapshot.
	ErrInvalidMagic = errors.New("snapshot: invalid magic number")

	// ErrInvalidVersion indicates a snapshot written by an incompatible version.
	ErrInvalidVersion = errors.New("snapshot: unsupported format version")
)

// Codec selects the payload compression.
type Codec uint8

const (
	// CodecNone stores the payload uncompressed.
	CodecNone Codec = 0

	// CodecLZ4 favors speed over ratio.
	CodecLZ4 Codec = 1

	// CodecZSTD favors ratio over speed.
	CodecZSTD Codec = 2
)

// ParseCodec parses a codec name ("none", "lz4", "zstd").
func ParseCodec(s string) (Codec, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "none":
		return CodecNone, nil
	case "lz4":
		return CodecLZ4, nil
	case "zstd":
		return CodecZSTD, nil
	default:
		return CodecNone, fmt.Errorf("snapshot: unknown codec %q", s)
	}
}

func (c Codec) String() string {
	switch c {
	case CodecNone:
		return "none"
	case CodecLZ4:
		return "lz4"
	case CodecZSTD:
		return "zstd"
	default:
		return fmt.Sprintf("codec(%d)", uint8(c))
	}
}

// Snapshot is the full persisted state of a database.
type Snapshot struct {
	// Dimension and Metric pin the configuration the snapshot was taken
	// under; loading into a differently configured database is an error
	// the caller detects from these fields.
	Dimension int
	Metric    string

	// Records is every live record.
	Records []store.Record

	// Graph is the serialized proximity graph, restored via gob so the
	// index does not have to be rebuilt on load.
	Graph []byte
}

// header is the fixed-size file prefix, written uncompressed.
type header struct {
	Magic   uint32
	Version uint16
	Codec   uint8
	_       uint8 // reserved
}

// Save writes the snapshot to path atomically. IO is throttled through ctrl
// when a limit is configured; ctrl may be nil.
func Save(ctx context.Context, path string, snap *Snapshot, codec Codec, ctrl *resource.Controller) error {
	return saveToFile(path, func(w io.Writer) error {
		tw := &throttledWriter{ctx: ctx, ctrl: ctrl, w: w}

		if err := binary.Write(tw, binary.LittleEndian, header{
			Magic:   magicNumber,
			Version: version,
			Codec:   uint8(codec),
		}); err != nil {
			return fmt.Errorf("snapshot: failed to write header: %w", err)
		}

		body, closeBody, err := compressor(codec, tw)
		if err != nil {
			return err
		}

		if err := gob.NewEncoder(body).Encode(snap); err != nil {
			return fmt.Errorf("snapshot: failed to encode payload: %w", err)
		}
		return closeBody()
	})
}

// Load reads a snapshot from path. IO is throttled through ctrl when a limit
// is configured; ctrl may be nil.
func Load(ctx context.Context, path string, ctrl *resource.Controller) (*Snapshot, error) {
	var snap Snapshot
	err := loadFromFile(path, func(r io.Reader) error {
		tr := &throttledReader{ctx: ctx, ctrl: ctrl, r: r}

		var hdr header
		if err := binary.Read(tr, binary.LittleEndian, &hdr); err != nil {
			return fmt.Errorf("snapshot: failed to read header: %w", err)
		}
		if hdr.Magic != magicNumber {
			return fmt.Errorf("%w: got 0x%08x", ErrInvalidMagic, hdr.Magic)
		}
		if hdr.Version != version {
			return fmt.Errorf("%w: got %d", ErrInvalidVersion, hdr.Version)
		}

		body, closeBody, err := decompressor(Codec(hdr.Codec), tr)
		if err != nil {
			return err
		}
		defer closeBody()

		if err := gob.NewDecoder(body).Decode(&snap); err != nil {
			return fmt.Errorf("snapshot: failed to decode payload: %w", err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return &snap, nil
}

// compressor wraps w with the codec's streaming encoder. The returned close
// function flushes the stream and must be called before the file is sealed.
func compressor(codec Codec, w io.Writer) (io.Writer, func() error, error) {
	switch codec {
	case CodecNone:
		return w, func() error { return nil }, nil
	case CodecLZ4:
		zw := lz4.NewWriter(w)
		return zw, zw.Close, nil
	case CodecZSTD:
		zw, err := zstd.NewWriter(w, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: failed to create zstd writer: %w", err)
		}
		return zw, zw.Close, nil
	default:
		return nil, nil, fmt.Errorf("snapshot: unknown codec %q", codec)
	}
}

// decompressor wraps r with the codec's streaming decoder.
func decompressor(codec Codec, r io.Reader) (io.Reader, func(), error) {
	switch codec {
	case CodecNone:
		return r, func() {}, nil
	case CodecLZ4:
		return lz4.NewReader(r), func() {}, nil
	case CodecZSTD:
		zr, err := zstd.NewReader(r)
		if err != nil {
			return nil, nil, fmt.Errorf("snapshot: failed to create zstd reader: %w", err)
		}
		return zr, zr.Close, nil
	default:
		return nil, nil, fmt.Errorf("snapshot: unknown codec %q", codec)
	}
}

// throttledWriter charges every write against the IO budget.
type throttledWriter struct {
	ctx  context.Context
	ctrl *resource.Controller
	w    io.Writer
}

func (t *throttledWriter) Write(p []byte) (int, error) {
	if err := t.ctrl.AcquireIO(t.ctx, len(p)); err != nil {
		return 0, err
	}
	return t.w.Write(p)
}

// throttledReader charges every read against the IO budget.
type throttledReader struct {
	ctx  context.Context
	ctrl *resource.Controller
	r    io.Reader
}

func (t *throttledReader) Read(p []byte) (int, error) {
	n, err := t.r.Read(p)
	if n > 0 {
		if ioErr := t.ctrl.AcquireIO(t.ctx, n); ioErr != nil {
			return n, ioErr
		}
	}
	return n, err
}
