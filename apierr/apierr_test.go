package apierr

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestFromStatusKinds(t *testing.T) {
	cases := []struct {
		status int
		want   Kind
	}{
		{http.StatusUnauthorized, KindAuth},
		{http.StatusForbidden, KindAuth},
		{http.StatusNotFound, KindNotFound},
		{http.StatusBadRequest, KindValidation},
		{http.StatusUnprocessableEntity, KindValidation},
		{http.StatusTooManyRequests, KindNetwork},
		{http.StatusInternalServerError, KindServer},
		{http.StatusBadGateway, KindServer},
		{http.StatusTeapot, KindUnknown},
	}
	for _, tc := range cases {
		t.Run(http.StatusText(tc.status), func(t *testing.T) {
			e := FromStatus(tc.status, nil)
			if e.Kind != tc.want {
				t.Fatalf("status %d: got %s want %s", tc.status, e.Kind, tc.want)
			}
			if e.Message == "" {
				t.Fatalf("expected default message")
			}
		})
	}
}

func TestFromStatusParsesBody(t *testing.T) {
	e := FromStatus(422, []byte(`{"code":"TREK_INVALID","message":"trek is invalid","fields":{"title":"required"}}`))
	want := &Error{
		Kind:    KindValidation,
		Status:  422,
		Code:    "TREK_INVALID",
		Message: "trek is invalid",
		Fields:  map[string]string{"title": "required"},
	}
	if diff := cmp.Diff(want, e); diff != "" {
		t.Fatalf("FromStatus mismatch (-want +got):\n%s", diff)
	}
}

func TestIsMatchesByKind(t *testing.T) {
	err := fmt.Errorf("list bookings: %w", FromStatus(401, nil))
	if !errors.Is(err, ErrAuth) {
		t.Fatalf("expected errors.Is(err, ErrAuth)")
	}
	if errors.Is(err, ErrServer) {
		t.Fatalf("auth error must not match ErrServer")
	}
	if !IsAuth(err) {
		t.Fatalf("IsAuth false for wrapped 401")
	}
}

func TestKindOfTransportErrors(t *testing.T) {
	ue := &url.Error{Op: "Get", URL: "http://api/bookings", Err: errors.New("connection refused")}
	if KindOf(ue) != KindNetwork {
		t.Fatalf("url.Error should be network, got %s", KindOf(ue))
	}
	if KindOf(context.DeadlineExceeded) != KindNetwork {
		t.Fatalf("deadline should be network")
	}
	if KindOf(errors.New("boom")) != KindUnknown {
		t.Fatalf("plain error should be unknown")
	}

	wrapped := Wrap(ue)
	var e *Error
	if !errors.As(wrapped, &e) || e.Kind != KindNetwork || !errors.Is(wrapped, ue) {
		t.Fatalf("Wrap did not classify or keep cause: %v", wrapped)
	}
	if Wrap(ErrNotFound) != ErrNotFound {
		t.Fatalf("Wrap must pass *Error through unchanged")
	}
}
