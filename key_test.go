package querycache

import (
	"encoding/json"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestKeyIndependentOfInsertionOrder(t *testing.T) {
	a := Params{}
	a["status"] = "pending"
	a["page"] = 1
	a["vendorId"] = 5

	b := Params{}
	b["vendorId"] = int64(5)
	b["page"] = uint8(1)
	b["status"] = "pending"

	ka, kb := MustKey("bookings", a), MustKey("bookings", b)
	if ka != kb {
		t.Fatalf("keys differ: %s vs %s", ka, kb)
	}
	if want := `bookings{"page":1,"status":"pending","vendorId":5}`; ka.String() != want {
		t.Fatalf("String: got %s want %s", ka, want)
	}
}

func TestKeyNilValuesDropped(t *testing.T) {
	var missing *string
	k1 := MustKey("treks", Params{"status": nil, "vendor": missing})
	k2 := MustKey("treks", nil)
	if k1 != k2 {
		t.Fatalf("nil params should be dropped: %s vs %s", k1, k2)
	}
	if k1.String() != "treks" {
		t.Fatalf("String: %s", k1)
	}
}

func TestKeyDeepCopiesParams(t *testing.T) {
	tags := []string{"himalaya"}
	p := Params{"tags": tags, "page": 1}
	k := MustKey("treks", p)

	tags[0] = "alps"
	p["page"] = 2
	if k != MustKey("treks", Params{"tags": []string{"himalaya"}, "page": 1}) {
		t.Fatalf("key changed after mutating source params: %s", k)
	}
}

func TestKeyParamsRoundTrip(t *testing.T) {
	k := MustKey("users", Params{"role": "vendor", "page": 3, "active": true})
	want := Params{"role": "vendor", "page": json.Number("3"), "active": true}
	if diff := cmp.Diff(want, k.Params()); diff != "" {
		t.Fatalf("Params mismatch (-want +got):\n%s", diff)
	}
	got := k.Params()
	got["role"] = "admin"
	if k.Params()["role"] != "vendor" {
		t.Fatalf("Params must return a fresh copy")
	}
}

func TestKeyRejectsInvalidInput(t *testing.T) {
	cases := []struct {
		name   string
		kind   string
		params Params
		want   error
	}{
		{"empty kind", "", nil, ErrInvalidKind},
		{"colon in kind", "a:b", nil, ErrInvalidKind},
		{"brace in kind", "a{", nil, ErrInvalidKind},
		{"space in kind", "a b", nil, ErrInvalidKind},
		{"map value", "treks", Params{"f": map[string]int{"a": 1}}, ErrInvalidParam},
		{"nested slice", "treks", Params{"f": [][]int{{1}}}, ErrInvalidParam},
		{"struct value", "treks", Params{"f": struct{}{}}, ErrInvalidParam},
		{"empty name", "treks", Params{"": 1}, ErrInvalidParam},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewKey(tc.kind, tc.params); !errors.Is(err, tc.want) {
				t.Fatalf("got %v want %v", err, tc.want)
			}
		})
	}
}

func TestFamilyMatches(t *testing.T) {
	k := MustKey("vendor-bookings", Params{"vendorId": 5, "status": "pending"})
	cases := []struct {
		name string
		fam  Family
		want bool
	}{
		{"kind only", KindFamily("vendor-bookings"), true},
		{"subset", mustFamily(t, "vendor-bookings", Params{"vendorId": 5}), true},
		{"exact", FamilyOf(k), true},
		{"other value", mustFamily(t, "vendor-bookings", Params{"vendorId": 6}), false},
		{"missing param", mustFamily(t, "vendor-bookings", Params{"page": 1}), false},
		{"other kind", KindFamily("bookings"), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := tc.fam.Matches(k); got != tc.want {
				t.Fatalf("%s.Matches(%s) = %v", tc.fam, k, got)
			}
		})
	}
}

func TestParseFamilyInverse(t *testing.T) {
	for _, f := range []Family{
		KindFamily("bookings"),
		mustFamily(t, "vendor-bookings", Params{"vendorId": 5, "status": "confirmed"}),
	} {
		got, err := ParseFamily(f.String())
		if err != nil {
			t.Fatalf("ParseFamily(%s): %v", f, err)
		}
		if got != f {
			t.Fatalf("round trip: got %s want %s", got, f)
		}
	}
	if _, err := ParseFamily(`bookings{"a":`); !errors.Is(err, ErrInvalidParam) {
		t.Fatalf("malformed family: %v", err)
	}
}

func TestParseKeyInverse(t *testing.T) {
	for _, k := range []Key{
		MustKey("templates", nil),
		MustKey("bookings", Params{"status": "pending", "page": 2, "ids": []int{3, 1}}),
	} {
		got, err := ParseKey(k.String())
		if err != nil {
			t.Fatalf("ParseKey(%s): %v", k, err)
		}
		if got != k {
			t.Fatalf("round trip: got %s want %s", got, k)
		}
	}
	if _, err := ParseKey(`{"a":1}`); !errors.Is(err, ErrInvalidKind) {
		t.Fatalf("missing kind: %v", err)
	}
}

func mustFamily(t *testing.T, kind string, p Params) Family {
	t.Helper()
	f, err := NewFamily(kind, p)
	if err != nil {
		t.Fatalf("NewFamily: %v", err)
	}
	return f
}
