package wire

import (
	"bytes"
	"encoding/binary"
	"errors"
	"time"
)

const (
	version   byte = 1
	kindEntry byte = 1
)

var (
	ErrCorrupt = errors.New("querycache: corrupt entry")
	magic4     = [...]byte{'Q', 'C', 'E', 'N'}
)

const entryHeader = 4 + 1 + 1 + 8 + 8 + 8 + 4

// Entry is one cached query result as it lives in a provider.
// Gen is the key's generation at commit time; an entry whose Gen no longer
// matches is unreachable. Seq is the cache sequence observed when the fetch
// was dispatched (or the write happened); FetchedAt drives age-based staleness.
type Entry struct {
	Gen       uint64
	Seq       uint64
	FetchedAt time.Time
	Payload   []byte
}

func hasMagic(b []byte) bool {
	return len(b) >= 4 && bytes.Equal(b[:4], magic4[:])
}

// EncodeEntry frames e as:
//
//	magic(4) | ver(1) | kind(1) | gen(u64 be) | seq(u64 be) | fetchedAt(unix nanos, i64 be) | vlen(u32 be) | payload(vlen)
func EncodeEntry(e Entry) []byte {
	var buf bytes.Buffer
	buf.Grow(entryHeader + len(e.Payload))

	buf.Write(magic4[:])
	buf.WriteByte(version)
	buf.WriteByte(kindEntry)

	var u8 [8]byte
	var u4 [4]byte

	binary.BigEndian.PutUint64(u8[:], e.Gen)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], e.Seq)
	buf.Write(u8[:])

	binary.BigEndian.PutUint64(u8[:], uint64(e.FetchedAt.UnixNano()))
	buf.Write(u8[:])

	binary.BigEndian.PutUint32(u4[:], uint32(len(e.Payload)))
	buf.Write(u4[:])

	buf.Write(e.Payload)
	return buf.Bytes()
}

// DecodeEntry is strict: wrong header, short buffers and trailing bytes are
// all ErrCorrupt. The returned payload aliases b.
func DecodeEntry(b []byte) (Entry, error) {
	if len(b) < entryHeader || !hasMagic(b) || b[4] != version || b[5] != kindEntry {
		return Entry{}, ErrCorrupt
	}

	off := 6

	gen := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	seq := binary.BigEndian.Uint64(b[off : off+8])
	off += 8

	nanos := int64(binary.BigEndian.Uint64(b[off : off+8]))
	off += 8

	vlen := int(binary.BigEndian.Uint32(b[off : off+4]))
	off += 4
	if vlen < 0 || vlen != len(b)-off {
		return Entry{}, ErrCorrupt
	}

	return Entry{
		Gen:       gen,
		Seq:       seq,
		FetchedAt: time.Unix(0, nanos),
		Payload:   b[off : off+vlen],
	}, nil
}
