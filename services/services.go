package services

import (
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/config"
	"gullin-backend/events"
	"gullin-backend/geo"
	"gullin-backend/identity"
	"gullin-backend/notify"
	"gullin-backend/session"
	"gullin-backend/utils"
)

// RequestMeta carries the caller details recorded in the audit trail.
type RequestMeta struct {
	IP     string
	Device string
}

const defaultMaxLoginAttempts = 5

type Deps struct {
	DB       *gorm.DB
	Config   *config.Config
	Logger   *zap.Logger
	Tokens   *utils.TokenManager
	Sessions session.Store
	Notifier *notify.Notifier
	Provider identity.Provider
	Geo      geo.Locator
	Events   events.Publisher
	// Now defaults to time.Now. Tests pin it.
	Now func() time.Time
}

type Services struct {
	Audit    *AuditService
	Codes    *CodeService
	Accounts *AccountService
	Auth     *AuthService
	Followup *FollowupService
	KYC      *KYCService
	Poller   *Poller
	Ledger   *LedgerService
}

func New(d Deps) *Services {
	if d.Now == nil {
		d.Now = time.Now
	}
	if d.Logger == nil {
		d.Logger = zap.NewNop()
	}
	if d.Events == nil {
		d.Events = events.NoopPublisher{}
	}
	if d.Geo == nil {
		d.Geo = geo.NoopLocator{}
	}
	now := func() time.Time { return d.Now().UTC() }
	maxAttempts := d.Config.Auth.MaxLoginAttempts
	if maxAttempts < 1 {
		maxAttempts = defaultMaxLoginAttempts
	}

	audit := &AuditService{db: d.DB, events: d.Events, logger: d.Logger, now: now}
	codes := &CodeService{db: d.DB, now: now}
	ledger := &LedgerService{db: d.DB, logger: d.Logger, now: now}

	return &Services{
		Audit:  audit,
		Codes:  codes,
		Ledger: ledger,
		Accounts: &AccountService{
			db:        d.DB,
			adminCode: d.Config.AdminCode,
			tokens:    d.Tokens,
			notifier:  d.Notifier,
			audit:     audit,
			logger:    d.Logger,
			now:       now,
		},
		Auth: &AuthService{
			db:          d.DB,
			codes:       codes,
			sessions:    d.Sessions,
			tokens:      d.Tokens,
			notifier:    d.Notifier,
			geo:         d.Geo,
			audit:       audit,
			logger:      d.Logger,
			now:         now,
			maxAttempts: int64(maxAttempts),
		},
		Followup: &FollowupService{
			db:       d.DB,
			codes:    codes,
			notifier: d.Notifier,
			audit:    audit,
			logger:   d.Logger,
			now:      now,
		},
		KYC: &KYCService{db: d.DB, audit: audit, notifier: d.Notifier, logger: d.Logger, now: now},
		Poller: &Poller{
			db:       d.DB,
			provider: d.Provider,
			notifier: d.Notifier,
			workers:  d.Config.Identity.PollWorkers,
			logger:   d.Logger,
			now:      now,
		},
	}
}
