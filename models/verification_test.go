package models

import (
	"testing"
	"time"
)

func TestVerificationCodeLifecycle(t *testing.T) {
	now := time.Date(2018, 4, 2, 10, 0, 0, 0, time.UTC)
	vc, err := NewVerificationCode(9, now)
	if err != nil {
		t.Fatalf("NewVerificationCode: %v", err)
	}
	if len(vc.Code) != CodeLength {
		t.Fatalf("expected %d digits, got %q", CodeLength, vc.Code)
	}
	for _, r := range vc.Code {
		if r < '0' || r > '9' {
			t.Fatalf("code must be numeric, got %q", vc.Code)
		}
	}
	if !vc.ExpireTime.Equal(now.Add(5 * time.Minute)) {
		t.Fatalf("unexpected expiry %v", vc.ExpireTime)
	}

	if !vc.Check(vc.Code, now.Add(5*time.Minute)) {
		t.Fatal("code should be valid at its expiry instant")
	}
	if vc.Check(vc.Code, now.Add(5*time.Minute+time.Nanosecond)) {
		t.Fatal("code should be invalid after expiry")
	}

	vc.Expire(now)
	if !vc.IsExpired(now) || vc.Check(vc.Code, now) {
		t.Fatal("expired code must not check out")
	}

	later := now.Add(time.Hour)
	if err := vc.Refresh(later); err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if vc.IsExpired(later) || !vc.ExpireTime.Equal(later.Add(CodeTTL)) {
		t.Fatalf("refresh should restart the window, got %v", vc.ExpireTime)
	}
}

func TestVerificationLevelString(t *testing.T) {
	if LevelNotVerified.String() == LevelEmailVerified.String() {
		t.Fatal("levels should have distinct names")
	}
	if got := VerificationLevel(42).String(); got == "" {
		t.Fatal("unknown level should still render")
	}
}
