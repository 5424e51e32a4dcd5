package wire

import (
	"bytes"
	"encoding/binary"
	"math"
	"testing"
	"time"
)

func mustDecodeEntry(t *testing.T, b []byte) Entry {
	t.Helper()
	e, err := DecodeEntry(b)
	if err != nil {
		t.Fatalf("DecodeEntry error: %v", err)
	}
	return e
}

func TestEntryRTEmptyAndNonEmpty(t *testing.T) {
	at := time.Date(2026, 3, 1, 10, 0, 0, 123, time.UTC)
	cases := []Entry{
		{Gen: 0, Seq: 0, FetchedAt: at, Payload: nil},
		{Gen: 3, Seq: 42, FetchedAt: at, Payload: []byte("hello")},
		{Gen: 1, Seq: math.MaxUint64, FetchedAt: at, Payload: []byte{0, 1, 2, 3, 4}},
	}
	for _, tc := range cases {
		got := mustDecodeEntry(t, EncodeEntry(tc))
		if got.Gen != tc.Gen {
			t.Fatalf("gen mismatch: got %d want %d", got.Gen, tc.Gen)
		}
		if got.Seq != tc.Seq {
			t.Fatalf("seq mismatch: got %d want %d", got.Seq, tc.Seq)
		}
		if !got.FetchedAt.Equal(tc.FetchedAt) {
			t.Fatalf("fetchedAt mismatch: got %v want %v", got.FetchedAt, tc.FetchedAt)
		}
		if !bytes.Equal(got.Payload, tc.Payload) {
			t.Fatalf("payload mismatch: got %x want %x", got.Payload, tc.Payload)
		}
	}
}

func TestEntryRejectsTrailingBytes(t *testing.T) {
	enc := EncodeEntry(Entry{Seq: 7, FetchedAt: time.Now(), Payload: []byte("x")})
	enc = append(enc, 0xDE, 0xAD)
	if _, err := DecodeEntry(enc); err == nil {
		t.Fatalf("expected error on trailing bytes")
	}
}

func TestEntryCorruptHeadersAndLengths(t *testing.T) {
	enc := EncodeEntry(Entry{Seq: 1, FetchedAt: time.Now(), Payload: []byte("abc")})

	badMagic := append([]byte(nil), enc...)
	badMagic[0] = 'X'
	if _, err := DecodeEntry(badMagic); err == nil {
		t.Fatalf("expected error on bad magic")
	}

	badVer := append([]byte(nil), enc...)
	badVer[4] = version + 1
	if _, err := DecodeEntry(badVer); err == nil {
		t.Fatalf("expected error on bad version")
	}

	badKind := append([]byte(nil), enc...)
	badKind[5] = kindEntry + 1
	if _, err := DecodeEntry(badKind); err == nil {
		t.Fatalf("expected error on bad kind")
	}

	// vlen lives at 30..33 (4 magic +1 ver +1 kind +8 gen +8 seq +8 fetchedAt)
	tooLong := append([]byte(nil), enc...)
	binary.BigEndian.PutUint32(tooLong[30:34], uint32(len("abc")+1))
	if _, err := DecodeEntry(tooLong); err == nil {
		t.Fatalf("expected error on vlen beyond buffer")
	}

	if _, err := DecodeEntry(enc[:len(enc)-1]); err == nil {
		t.Fatalf("expected error on truncated buffer")
	}
	if _, err := DecodeEntry(enc[:10]); err == nil {
		t.Fatalf("expected error on short header")
	}
}

func TestEntryZeroCopyPayload(t *testing.T) {
	enc := EncodeEntry(Entry{Seq: 1, FetchedAt: time.Now(), Payload: []byte("Z")})
	e := mustDecodeEntry(t, enc)
	e.Payload[0] = 'Q'
	if mustDecodeEntry(t, enc).Payload[0] != 'Q' {
		t.Fatalf("expected zero-copy slice into enc buffer")
	}
}
