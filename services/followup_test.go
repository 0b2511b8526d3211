package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/nyaruka/phonenumbers"

	"gullin-backend/models"
)

// examplePhone returns a national number libphonenumber itself considers
// valid for the United Kingdom.
func examplePhone(t *testing.T) string {
	t.Helper()
	num := phonenumbers.GetExampleNumber("GB")
	if num == nil {
		t.Fatal("no example number for GB")
	}
	return phonenumbers.GetNationalSignificantNumber(num)
}

func TestVerifyEmailOnlyOnce(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.signUp(t, "email@example.com")
	code := env.currentCode(t, p.User.ID)

	level, err := env.svc.Followup.VerifyEmail(ctx, p, code, testMeta)
	if err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	if level != models.LevelEmailVerified || env.level(t, p.Investor.ID) != models.LevelEmailVerified {
		t.Fatalf("expected level 0, got %d", level)
	}

	// Replaying the consumed code reports a mismatch, never an expiry.
	if _, err := env.svc.Followup.VerifyEmail(ctx, p, code, testMeta); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("replay: expected ErrCodeMismatch, got %v", err)
	}
}

func TestVerifyEmailExpiredReportsMismatch(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "stale@example.com")
	code := env.currentCode(t, p.User.ID)
	env.clock.Advance(10 * time.Minute)

	if _, err := env.svc.Followup.VerifyEmail(context.Background(), p, code, testMeta); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("expected ErrCodeMismatch, got %v", err)
	}
	if env.level(t, p.Investor.ID) != models.LevelNotVerified {
		t.Fatal("level must not change on failure")
	}
}

func TestPhoneVerificationFlow(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.signUp(t, "phone@example.com")
	number := examplePhone(t)
	req := &models.PhoneRequest{Country: "United Kingdom", Phone: number}

	if err := env.svc.Followup.SubmitPhone(ctx, p, req, testMeta); !errors.Is(err, ErrState) {
		t.Fatalf("phone before email: expected ErrState, got %v", err)
	}

	if _, err := env.svc.Followup.VerifyEmail(ctx, p, env.currentCode(t, p.User.ID), testMeta); err != nil {
		t.Fatalf("VerifyEmail: %v", err)
	}
	p = env.principal(t, "phone@example.com")

	bad := &models.PhoneRequest{Country: "United Kingdom", Phone: "12"}
	if err := env.svc.Followup.SubmitPhone(ctx, p, bad, testMeta); !errors.Is(err, ErrValidation) {
		t.Fatalf("bad number: expected ErrValidation, got %v", err)
	}

	if err := env.svc.Followup.SubmitPhone(ctx, p, req, testMeta); err != nil {
		t.Fatalf("SubmitPhone: %v", err)
	}
	if env.sms.count() != 1 {
		t.Fatalf("expected one sms, got %d", env.sms.count())
	}
	if want := "+44" + number; env.sms.sent[0].Phone != want {
		t.Fatalf("sms sent to %q, want %q", env.sms.sent[0].Phone, want)
	}

	p = env.principal(t, "phone@example.com")
	code := env.currentCode(t, p.User.ID)
	env.clock.Advance(6 * time.Minute)
	if err := env.svc.Followup.VerifyPhone(ctx, p, code, testMeta); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("stale phone code: expected ErrCodeExpired, got %v", err)
	}

	if err := env.svc.Followup.Resend(ctx, p, "phone"); err != nil {
		t.Fatalf("Resend: %v", err)
	}
	code = env.currentCode(t, p.User.ID)
	if err := env.svc.Followup.VerifyPhone(ctx, p, wrongCode(code), testMeta); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("wrong phone code: expected ErrCodeMismatch, got %v", err)
	}
	if err := env.svc.Followup.VerifyPhone(ctx, p, code, testMeta); err != nil {
		t.Fatalf("VerifyPhone: %v", err)
	}
	if env.level(t, p.Investor.ID) != models.LevelPhoneVerified {
		t.Fatalf("expected level 1, got %d", env.level(t, p.Investor.ID))
	}

	// Another investor cannot claim the same number.
	other := env.signUp(t, "other@example.com")
	env.setLevel(t, other.Investor.ID, models.LevelEmailVerified)
	other = env.principal(t, "other@example.com")
	if err := env.svc.Followup.SubmitPhone(ctx, other, req, testMeta); !errors.Is(err, ErrConflict) {
		t.Fatalf("reused phone: expected ErrConflict, got %v", err)
	}
}

func TestResendPhoneWithoutNumber(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "nophone@example.com")
	if err := env.svc.Followup.Resend(context.Background(), p, "phone"); !errors.Is(err, ErrState) {
		t.Fatalf("expected ErrState, got %v", err)
	}
	if err := env.svc.Followup.Resend(context.Background(), p, "email"); err != nil {
		t.Fatalf("Resend email: %v", err)
	}
}

func TestBindWallet(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	addr := "0x52908400098527886E0F7030069857D2E4169EE7"

	p := env.signUp(t, "wallet@example.com")
	req := &models.WalletAddressRequest{WalletAddress: addr}
	if _, err := env.svc.Followup.BindWallet(ctx, p, req, testMeta); !errors.Is(err, ErrState) {
		t.Fatalf("before phone: expected ErrState, got %v", err)
	}

	env.setLevel(t, p.Investor.ID, models.LevelPhoneVerified)
	p = env.principal(t, "wallet@example.com")
	block := uint64(5_000_000)
	req.CreationBlock = &block
	wallet, err := env.svc.Followup.BindWallet(ctx, p, req, testMeta)
	if err != nil {
		t.Fatalf("BindWallet: %v", err)
	}
	if *wallet.WalletAddress != "0x52908400098527886e0f7030069857d2e4169ee7" {
		t.Fatalf("address not lowercased: %s", *wallet.WalletAddress)
	}
	if env.level(t, p.Investor.ID) != models.LevelWalletBound {
		t.Fatalf("expected level 2, got %d", env.level(t, p.Investor.ID))
	}

	p = env.principal(t, "wallet@example.com")
	if _, err := env.svc.Followup.BindWallet(ctx, p, req, testMeta); !errors.Is(err, ErrState) {
		t.Fatalf("second bind: expected ErrState, got %v", err)
	}

	other := env.signUp(t, "copycat@example.com")
	env.setLevel(t, other.Investor.ID, models.LevelPhoneVerified)
	other = env.principal(t, "copycat@example.com")
	if _, err := env.svc.Followup.BindWallet(ctx, other, req, testMeta); !errors.Is(err, ErrConflict) {
		t.Fatalf("reused address: expected ErrConflict, got %v", err)
	}
}
