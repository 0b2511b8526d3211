package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"gullin-backend/models"
)

func login(env *testEnv, email string, meta RequestMeta) (*LoginResult, error) {
	return env.svc.Auth.Login(context.Background(), &models.LoginRequest{Email: email, Password: "correct-horse"}, meta)
}

func TestLoginFromUnknownIPRequiresCode(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.signUp(t, "twofa@example.com")

	res, err := login(env, "twofa@example.com", otherMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.NeedsVerification() || res.Token != "" {
		t.Fatalf("first login must require a code, got %+v", res)
	}
	if res.CodeChannel != "email" {
		t.Fatalf("expected email channel without a phone, got %q", res.CodeChannel)
	}
	if got := env.mailer.withSubject("Gullin - New sign-in"); len(got) != 1 {
		t.Fatalf("expected one security alert, got %d", len(got))
	}

	code := env.currentCode(t, p.User.ID)
	if _, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, wrongCode(code), otherMeta); !errors.Is(err, ErrCodeMismatch) {
		t.Fatalf("wrong code: expected ErrCodeMismatch, got %v", err)
	}

	// The session survives the failed attempt.
	done, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, code, otherMeta)
	if err != nil {
		t.Fatalf("CompleteLogin: %v", err)
	}
	if done.Token == "" || done.UserID != p.User.ID {
		t.Fatalf("unexpected completion %+v", done)
	}
	if _, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, code, otherMeta); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("session should be gone after success, got %v", err)
	}

	var user models.User
	env.db.First(&user, p.User.ID)
	if user.LastLoginIP != otherMeta.IP || user.LastLogin == nil {
		t.Fatalf("last login not recorded: ip=%q at=%v", user.LastLoginIP, user.LastLogin)
	}
}

func TestLoginFromSignUpIPSkipsCode(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "known@example.com")

	var user models.User
	env.db.First(&user, p.User.ID)
	if user.LastLoginIP != testMeta.IP || user.LastLogin == nil {
		t.Fatalf("sign-up should record the login: ip=%q at=%v", user.LastLoginIP, user.LastLogin)
	}

	res, err := login(env, "known@example.com", testMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.NeedsVerification() || res.Token == "" {
		t.Fatalf("known IP should log in directly, got %+v", res)
	}
	if got := env.mailer.withSubject("Gullin - New sign-in"); len(got) != 0 {
		t.Fatalf("no alert expected for a known IP, got %d", len(got))
	}

	res, err = login(env, "known@example.com", otherMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.NeedsVerification() {
		t.Fatal("a different IP must require a code")
	}
}

func TestLoginCodeGoesBySMSWhenPhoneOnFile(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "sms@example.com")
	env.db.Model(&models.User{}).Where("id = ?", p.User.ID).
		Updates(map[string]interface{}{"phone_country_code": "+44", "phone": "1212345678"})

	res, err := login(env, "sms@example.com", otherMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.CodeChannel != "sms" {
		t.Fatalf("expected sms channel, got %q", res.CodeChannel)
	}
	if env.sms.count() != 1 || env.sms.sent[0].Phone != "+441212345678" {
		t.Fatalf("expected one sms to +441212345678, got %+v", env.sms.sent)
	}
}

func TestLoginExpiredCode(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "late@example.com")

	res, err := login(env, "late@example.com", otherMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := env.currentCode(t, p.User.ID)
	env.clock.Advance(6 * time.Minute)
	if _, err := env.svc.Auth.CompleteLogin(context.Background(), res.SessionID, code, otherMeta); !errors.Is(err, ErrCodeExpired) {
		t.Fatalf("expected ErrCodeExpired, got %v", err)
	}
}

func TestTOTPEnabledAlwaysRequiresCode(t *testing.T) {
	env := newTestEnv(t)
	p := env.signUp(t, "strict@example.com")

	on := true
	updated, err := env.svc.Accounts.UpdateProfile(context.Background(), p.Investor, &models.ProfileUpdateRequest{TOTPEnabled: &on}, testMeta)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if !updated.User.TOTPEnabled {
		t.Fatal("flag should be stored on the user")
	}

	res, err := login(env, "strict@example.com", testMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.NeedsVerification() {
		t.Fatal("the sign-up IP must not skip the code once the flag is on")
	}
}

func TestLoginWithoutRecordedIPRequiresCode(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.svc.Accounts.CreateStaffUser(context.Background(), &models.CreateStaffUserRequest{
		Email: "analyst@example.com", Password: "correct-horse", Role: models.RoleAnalyst,
	})
	if err != nil {
		t.Fatalf("CreateStaffUser: %v", err)
	}
	res, err := login(env, "analyst@example.com", testMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if !res.NeedsVerification() {
		t.Fatal("an account with no recorded IP must verify a code")
	}
}

func TestLoginLocksSessionAfterRepeatedWrongCodes(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.signUp(t, "guess@example.com")

	res, err := login(env, "guess@example.com", otherMeta)
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	code := env.currentCode(t, p.User.ID)
	for i := 1; i < defaultMaxLoginAttempts; i++ {
		if _, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, wrongCode(code), otherMeta); !errors.Is(err, ErrCodeMismatch) {
			t.Fatalf("attempt %d: expected ErrCodeMismatch, got %v", i, err)
		}
	}
	if _, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, wrongCode(code), otherMeta); !errors.Is(err, ErrTooManyAttempts) {
		t.Fatalf("expected ErrTooManyAttempts on the last attempt, got %v", err)
	}
	if _, err := env.svc.Auth.CompleteLogin(ctx, res.SessionID, code, otherMeta); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("locked session must not accept the right code, got %v", err)
	}

	var locked int64
	env.db.Model(&models.UserLog{}).Where("user_id = ? AND action = ?", p.User.ID, models.Action2FALocked).Count(&locked)
	if locked != 1 {
		t.Fatalf("expected one lock audit entry, got %d", locked)
	}
}

func TestLoginRejectsBadCredentials(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "creds@example.com")
	ctx := context.Background()

	_, err := env.svc.Auth.Login(ctx, &models.LoginRequest{Email: "creds@example.com", Password: "nope"}, testMeta)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("wrong password: expected ErrInvalidCredentials, got %v", err)
	}
	_, err = env.svc.Auth.Login(ctx, &models.LoginRequest{Email: "ghost@example.com", Password: "correct-horse"}, testMeta)
	if !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("unknown email: expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := env.svc.Auth.CompleteLogin(ctx, "missing", "123456", testMeta); !errors.Is(err, ErrSessionNotFound) {
		t.Fatalf("expected ErrSessionNotFound, got %v", err)
	}
}

func TestRefreshWithinWindow(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.svc.Accounts.SignUp(context.Background(), &models.SignUpRequest{
		Email: "refresh@example.com", Password: "correct-horse", FirstName: "R", LastName: "F",
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	env.clock.Advance(30 * time.Minute)
	token, claims, err := env.svc.Auth.Refresh(res.Token)
	if err != nil {
		t.Fatalf("Refresh: %v", err)
	}
	if token == "" || claims.UserID != res.Investor.UserID {
		t.Fatalf("unexpected refresh result %q %+v", token, claims)
	}

	env.clock.Advance(2 * time.Hour)
	if _, _, err := env.svc.Auth.Refresh(res.Token); !errors.Is(err, ErrValidation) {
		t.Fatalf("expired token: expected ErrValidation, got %v", err)
	}
}
