package services

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"gullin-backend/config"
	"gullin-backend/database"
	"gullin-backend/identity"
	"gullin-backend/models"
	"gullin-backend/notify"
	"gullin-backend/session"
	"gullin-backend/utils"
)

const testAdminCode = "let-me-in"

type sentEmail struct {
	To, Subject, Body string
}

type fakeMailer struct {
	mu   sync.Mutex
	sent []sentEmail
}

func (m *fakeMailer) SendEmail(_ context.Context, to, subject, body string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.sent = append(m.sent, sentEmail{To: to, Subject: subject, Body: body})
	return nil
}

func (m *fakeMailer) withSubject(prefix string) []sentEmail {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []sentEmail
	for _, e := range m.sent {
		if strings.HasPrefix(e.Subject, prefix) {
			out = append(out, e)
		}
	}
	return out
}

type sentSMS struct {
	Phone, Message string
}

type fakeSMS struct {
	mu   sync.Mutex
	sent []sentSMS
}

func (s *fakeSMS) SendSMS(_ context.Context, phone, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, sentSMS{Phone: phone, Message: message})
	return nil
}

func (s *fakeSMS) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

type fakeProvider struct {
	mu          sync.Mutex
	submitted   []*identity.Application
	submitErr   error
	decisions   map[string]string
	decisionErr error
}

func (p *fakeProvider) Submit(_ context.Context, app *identity.Application) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.submitErr != nil {
		return p.submitErr
	}
	p.submitted = append(p.submitted, app)
	return nil
}

func (p *fakeProvider) Decision(_ context.Context, tid string) (*identity.Decision, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.decisionErr != nil {
		return nil, p.decisionErr
	}
	state := p.decisions[tid]
	return &identity.Decision{State: state, Raw: `{"state":"` + state + `"}`}, nil
}

type testClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

type testEnv struct {
	svc      *Services
	db       *gorm.DB
	mailer   *fakeMailer
	sms      *fakeSMS
	provider *fakeProvider
	clock    *testClock
	redis    *miniredis.Miniredis
}

func openTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	dsn := "file:" + uuid.NewString() + "?mode=memory&cache=shared"
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{Logger: logger.Default.LogMode(logger.Silent)})
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("sql db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { sqlDB.Close() })
	if err := database.Migrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	if err := utils.InitializeEncryption("0123456789abcdef0123456789abcdef"); err != nil {
		t.Fatalf("encryption: %v", err)
	}

	db := openTestDB(t)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	cfg := &config.Config{
		AdminCode: testAdminCode,
		Auth: config.AuthConfig{
			JWTSecret:       "test-secret-test-secret-test-secret",
			TokenTTL:        time.Hour,
			RefreshWindow:   24 * time.Hour,
			PendingLoginTTL: 10 * time.Minute,
		},
		Notification: config.NotificationConfig{TeamEmail: "team@example.com"},
		Identity:     config.IdentityConfig{PollWorkers: 2, PollInterval: time.Minute},
	}

	env := &testEnv{
		db:       db,
		mailer:   &fakeMailer{},
		sms:      &fakeSMS{},
		provider: &fakeProvider{decisions: map[string]string{}},
		clock:    &testClock{t: time.Date(2018, 6, 1, 12, 0, 0, 0, time.UTC)},
		redis:    mr,
	}
	notifier, err := notify.New(env.mailer, env.sms, cfg.Notification)
	if err != nil {
		t.Fatalf("notifier: %v", err)
	}
	tokens := utils.NewTokenManager(cfg.Auth.JWTSecret, cfg.Auth.TokenTTL, cfg.Auth.RefreshWindow).WithClock(env.clock.Now)

	env.svc = New(Deps{
		DB:       db,
		Config:   cfg,
		Tokens:   tokens,
		Sessions: session.NewRedisStore(client, cfg.Auth.PendingLoginTTL),
		Notifier: notifier,
		Provider: env.provider,
		Now:      env.clock.Now,
	})
	return env
}

var (
	testMeta  = RequestMeta{IP: "203.0.113.10", Device: "test-agent"}
	otherMeta = RequestMeta{IP: "198.51.100.7", Device: "other-agent"}
)

// signUp creates an investor and returns its principal.
func (e *testEnv) signUp(t *testing.T, email string) *models.InvestorPrincipal {
	t.Helper()
	_, err := e.svc.Accounts.SignUp(context.Background(), &models.SignUpRequest{
		Email:     email,
		Password:  "correct-horse",
		FirstName: "Ada",
		LastName:  "Lovelace",
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp(%s): %v", email, err)
	}
	return e.principal(t, email)
}

func (e *testEnv) principal(t *testing.T, email string) *models.InvestorPrincipal {
	t.Helper()
	var user models.User
	if err := e.db.Where("email = ?", normalizeEmail(email)).First(&user).Error; err != nil {
		t.Fatalf("load user %s: %v", email, err)
	}
	p, err := e.svc.Accounts.LoadPrincipal(context.Background(), user.ID)
	if err != nil {
		t.Fatalf("LoadPrincipal: %v", err)
	}
	ip, ok := p.(*models.InvestorPrincipal)
	if !ok {
		t.Fatalf("expected investor principal, got %T", p)
	}
	return ip
}

func (e *testEnv) currentCode(t *testing.T, userID uint) string {
	t.Helper()
	var vc models.VerificationCode
	if err := e.db.Where("user_id = ?", userID).First(&vc).Error; err != nil {
		t.Fatalf("load code: %v", err)
	}
	return vc.Code
}

func (e *testEnv) level(t *testing.T, investorID uint) models.VerificationLevel {
	t.Helper()
	var inv models.InvestorUser
	if err := e.db.First(&inv, investorID).Error; err != nil {
		t.Fatalf("load investor: %v", err)
	}
	return inv.VerificationLevel
}

func (e *testEnv) setLevel(t *testing.T, investorID uint, level models.VerificationLevel) {
	t.Helper()
	if err := e.db.Model(&models.InvestorUser{}).Where("id = ?", investorID).Update("verification_level", level).Error; err != nil {
		t.Fatalf("set level: %v", err)
	}
}

// wrongCode returns a six digit code different from code.
func wrongCode(code string) string {
	if code == "000000" {
		return "111111"
	}
	return "000000"
}

func (e *testEnv) listToken(t *testing.T, code, company, contract string) *models.Company {
	t.Helper()
	c, err := e.svc.Ledger.ListToken(context.Background(), &models.ListTokenRequest{
		CompanyName:              company,
		TokenCode:                code,
		TokenName:                code + " token",
		CrowdSaleContractAddress: contract,
	})
	if err != nil {
		t.Fatalf("ListToken(%s): %v", code, err)
	}
	return c
}
