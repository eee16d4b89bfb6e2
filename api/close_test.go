package api_test

import (
	"errors"
	"strings"
	"testing"

	"github.com/momentics/wscore/api"
)

func TestParseCloseStatusEmpty(t *testing.T) {
	st, err := api.ParseCloseStatus(nil)
	if err != nil {
		t.Fatalf("empty close payload must parse: %v", err)
	}
	if st.Code != api.NoCode || st.Reason != "" {
		t.Fatalf("expected NoCode, got %v", st)
	}
}

func TestParseCloseStatusSingleByte(t *testing.T) {
	_, err := api.ParseCloseStatus([]byte{0x03})
	if err == nil {
		t.Fatal("one-byte close payload must fail")
	}
	var pe *api.ProtocolError
	if !errors.As(err, &pe) {
		t.Fatalf("want ProtocolError, got %T", err)
	}
}

func TestParseCloseStatusCodeAndReason(t *testing.T) {
	st, err := api.ParseCloseStatus([]byte{0x03, 0xe8, 'b', 'y', 'e'})
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if st.Code != api.CloseNormal || st.Reason != "bye" {
		t.Fatalf("got %+v", st)
	}
}

func TestParseCloseStatusRejectsBadUTF8(t *testing.T) {
	_, err := api.ParseCloseStatus([]byte{0x03, 0xe8, 0xff, 0xfe})
	if err == nil {
		t.Fatal("invalid UTF-8 reason must fail")
	}
	var bp *api.BadPayloadError
	if !errors.As(err, &bp) {
		t.Fatalf("want BadPayloadError, got %T", err)
	}
}

func TestParseCloseStatusRejectsReservedCodes(t *testing.T) {
	for _, code := range []int{0, 999, 1004, 1005, 1006, 1015, 1016, 2999, 5000} {
		payload := []byte{byte(code >> 8), byte(code)}
		if _, err := api.ParseCloseStatus(payload); err == nil {
			t.Errorf("code %d must be rejected on the wire", code)
		}
	}
	for _, code := range []int{1000, 1001, 1003, 1007, 1011, 1014, 3000, 4999} {
		payload := []byte{byte(code >> 8), byte(code)}
		if _, err := api.ParseCloseStatus(payload); err != nil {
			t.Errorf("code %d must be accepted: %v", code, err)
		}
	}
}

func TestTransmittableCloseCodes(t *testing.T) {
	bad := []int{999, 1005, 1006, 1015, 5000, -1}
	for _, code := range bad {
		if api.IsTransmittableCloseCode(code) {
			t.Errorf("code %d must not be transmittable", code)
		}
	}
	good := []int{1000, 1002, 1011, 3000, 4999}
	for _, code := range good {
		if !api.IsTransmittableCloseCode(code) {
			t.Errorf("code %d must be transmittable", code)
		}
	}
}

func TestCloseStatusPayloadRoundTrip(t *testing.T) {
	st := api.CloseStatus{Code: api.CloseGoingAway, Reason: "maintenance"}
	back, err := api.ParseCloseStatus(st.Payload())
	if err != nil {
		t.Fatalf("round trip: %v", err)
	}
	if back != st {
		t.Fatalf("got %+v want %+v", back, st)
	}
}

func TestCloseStatusNoCodePayloadIsEmpty(t *testing.T) {
	st := api.CloseStatus{Code: api.NoCode, Reason: "ignored"}
	if p := st.Payload(); len(p) != 0 {
		t.Fatalf("NoCode must encode empty, got %d bytes", len(p))
	}
}

func TestTruncateReasonRuneBoundary(t *testing.T) {
	// 62 two-byte runes equal 124 bytes; the cut must drop the whole
	// 62nd rune, not half of it.
	reason := strings.Repeat("й", 62)
	got := api.TruncateReason(reason)
	if len(got) != 122 {
		t.Fatalf("want 122 bytes, got %d", len(got))
	}
	if !strings.HasPrefix(reason, got) {
		t.Fatal("truncation must be a prefix")
	}
}

func TestTruncateReasonShortUnchanged(t *testing.T) {
	if got := api.TruncateReason("ok"); got != "ok" {
		t.Fatalf("got %q", got)
	}
}
