package logger

import (
	"context"
	"testing"
)

func TestMaskEmail(t *testing.T) {
	cases := map[string]string{
		"webmaster@foo.com": "web***@foo.com",
		"ab@foo.com":        "ab***@foo.com",
		"":                  "",
		"no-at-sign":        "***",
	}
	for in, want := range cases {
		if got := MaskEmail(in); got != want {
			t.Fatalf("MaskEmail(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestMaskIP(t *testing.T) {
	if got := MaskIP("192.168.1.100"); got != "192.168.*.*" {
		t.Fatalf("unexpected ipv4 mask %q", got)
	}
	if got := MaskIP("2001:0db8:85a3:0000:0000:8a2e:0370:7334"); got != "2001:0db8:85a3:0000:*:*:*:*" {
		t.Fatalf("unexpected ipv6 mask %q", got)
	}
}

func TestMaskString(t *testing.T) {
	if got := MaskString("secret123"); got != "se***23" {
		t.Fatalf("unexpected mask %q", got)
	}
	if got := MaskString("abc"); got != "***" {
		t.Fatalf("short secrets must be fully masked, got %q", got)
	}
}

func TestRequestIDRoundTrip(t *testing.T) {
	ctx := ContextWithRequestID(context.Background(), "req-1")
	if got := RequestIDFromContext(ctx); got != "req-1" {
		t.Fatalf("expected req-1, got %q", got)
	}
	if got := RequestIDFromContext(context.Background()); got != "" {
		t.Fatalf("expected empty request id, got %q", got)
	}
}
