package auth

import (
	"testing"
	"time"
)

func TestSignAndParse(t *testing.T) {
	tok, err := SignJWT("ops", "s3cret", time.Hour)
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	sub, err := ParseJWT(tok, "s3cret")
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if sub != "ops" {
		t.Fatalf("unexpected subject %q", sub)
	}
}

func TestParse_Rejects(t *testing.T) {
	good, _ := SignJWT("ops", "s3cret", time.Hour)
	expired, _ := SignJWT("ops", "s3cret", -time.Minute)
	noSubject, _ := SignJWT("", "s3cret", time.Hour)

	cases := map[string]string{
		"wrong secret": good,
		"expired":      expired,
		"no subject":   noSubject,
		"garbage":      "not-a-token",
	}
	for name, tok := range cases {
		secret := "s3cret"
		if name == "wrong secret" {
			secret = "other"
		}
		if _, err := ParseJWT(tok, secret); err != ErrInvalidToken {
			t.Fatalf("%s: expected ErrInvalidToken, got %v", name, err)
		}
	}
}
