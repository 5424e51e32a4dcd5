package codec

import (
	"errors"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
)

type booking struct {
	ID     string   `json:"id"`
	Status string   `json:"status"`
	Guests int      `json:"guests"`
	Tags   []string `json:"tags"`
}

func roundTrip[V any](t *testing.T, c Codec[V], v V) V {
	t.Helper()
	b, err := c.Encode(v)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	got, err := c.Decode(b)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	return got
}

func mustCBOR[V any](t *testing.T) CBOR[V] {
	t.Helper()
	c, err := NewCBOR[V]()
	if err != nil {
		t.Fatalf("NewCBOR: %v", err)
	}
	return c
}

func TestStructCodecs(t *testing.T) {
	in := booking{ID: "123", Status: "pending", Guests: 4, Tags: []string{"himalaya"}}

	cases := []struct {
		name  string
		codec Codec[booking]
	}{
		{"json", JSON[booking]{}},
		{"msgpack", Msgpack[booking]{}},
		{"msgpack_json_tags", Msgpack[booking]{UseJSONTag: true}},
		{"cbor", mustCBOR[booking](t)},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if diff := cmp.Diff(in, roundTrip(t, tc.codec, in)); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestCBORDeterministicIsStable(t *testing.T) {
	c := mustCBOR[map[string]int](t)
	a, _ := c.Encode(map[string]int{"b": 2, "a": 1, "c": 3})
	b, _ := c.Encode(map[string]int{"c": 3, "a": 1, "b": 2})
	if string(a) != string(b) {
		t.Fatalf("deterministic CBOR differs for equal maps")
	}
}

func TestLimitCodec(t *testing.T) {
	c := LimitCodec[string]{Inner: JSON[string]{}, MaxDecode: 6}
	if _, err := c.Decode([]byte(`"12345"`)); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("expected ErrTooLarge, got %v", err)
	}
	if v, err := c.Decode([]byte(`"1234"`)); err != nil || v != "1234" {
		t.Fatalf("Decode within limit: v=%q err=%v", v, err)
	}
	unlimited := LimitCodec[string]{Inner: JSON[string]{}}
	big := `"` + strings.Repeat("x", 1<<16) + `"`
	if _, err := unlimited.Decode([]byte(big)); err != nil {
		t.Fatalf("MaxDecode<=0 must disable the limit: %v", err)
	}
}

func TestCBORZeroValue(t *testing.T) {
	var c CBOR[booking]
	if _, err := c.Encode(booking{}); err == nil {
		t.Fatalf("zero CBOR must refuse to encode")
	}
	if _, err := c.Decode([]byte{0xa0}); err == nil {
		t.Fatalf("zero CBOR must refuse to decode")
	}
}

func TestFor(t *testing.T) {
	in := booking{ID: "9", Status: "confirmed", Guests: 2}
	for _, f := range append([]Format{""}, Formats...) {
		t.Run(string(f), func(t *testing.T) {
			c, err := For[booking](f, 0)
			if err != nil {
				t.Fatalf("For(%q): %v", f, err)
			}
			if diff := cmp.Diff(in, roundTrip(t, c, in)); diff != "" {
				t.Fatalf("round trip mismatch (-want +got):\n%s", diff)
			}
		})
	}

	limited, err := For[booking](FormatMsgpack, 8)
	if err != nil {
		t.Fatalf("For: %v", err)
	}
	b, _ := limited.Encode(in)
	if _, err := limited.Decode(b); !errors.Is(err, ErrTooLarge) {
		t.Fatalf("want ErrTooLarge, got %v", err)
	}

	if _, err := For[booking]("yaml", 0); !errors.Is(err, ErrUnknownFormat) {
		t.Fatalf("want ErrUnknownFormat, got %v", err)
	}
}
