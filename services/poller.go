package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"gullin-backend/identity"
	"gullin-backend/models"
	"gullin-backend/notify"
	"gullin-backend/utils"
)

// Poller drives unprocessed ID verifications: it hands pre-approved stage 1
// records to the provider, finalizes locally decided ones, and polls the
// provider for stage 4 decisions. Every write is a conditional update on
// processed=false and the expected stage, so overlapping runs notify at most
// once per record.
type Poller struct {
	db       *gorm.DB
	provider identity.Provider
	notifier *notify.Notifier
	workers  int
	logger   *zap.Logger
	now      func() time.Time

	running sync.Mutex
}

var scrubbed = map[string]interface{}{"front_image": "", "back_image": "", "selfie": ""}

func claimUpdates(extra map[string]interface{}) map[string]interface{} {
	updates := map[string]interface{}{"processed": true}
	for k, v := range scrubbed {
		updates[k] = v
	}
	for k, v := range extra {
		updates[k] = v
	}
	return updates
}

// Run processes every pending record once and returns one log line per
// record. A failing record never stops the others.
func (p *Poller) Run(ctx context.Context) ([]string, error) {
	if !p.running.TryLock() {
		return nil, fmt.Errorf("%w: a verification cycle is already running", ErrState)
	}
	defer p.running.Unlock()

	var pending []models.IDVerification
	err := p.db.WithContext(ctx).
		Select("id", "investor_id", "stage", "state", "tid").
		Where("processed = ? AND stage IN ?", false, []int{models.StageSentToProvider, models.StageSubmitted}).
		Order("stage DESC, id").
		Find(&pending).Error
	if err != nil {
		return nil, fmt.Errorf("failed to load pending verifications: %w", err)
	}

	outcomes := make([]string, len(pending))
	workers := p.workers
	if workers < 1 {
		workers = 1
	}
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(workers)
	for i := range pending {
		i, v := i, pending[i]
		g.Go(func() error {
			outcomes[i] = p.process(gctx, &v)
			return nil
		})
	}
	_ = g.Wait()

	var log []string
	for _, o := range outcomes {
		if o != "" {
			log = append(log, o)
		}
	}
	p.logger.Info("verification cycle finished", zap.Int("records", len(pending)), zap.Int("outcomes", len(log)))
	return log, nil
}

// Start runs a cycle every interval until ctx is done.
func (p *Poller) Start(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Run(ctx); err != nil && !errors.Is(err, ErrState) {
				p.logger.Error("verification cycle failed", zap.Error(err))
			}
		}
	}
}

func (p *Poller) process(ctx context.Context, v *models.IDVerification) (outcome string) {
	defer func() {
		if r := recover(); r != nil {
			p.logger.Error("verification record panicked", zap.Uint("id", v.ID), zap.Any("panic", r))
			outcome = fmt.Sprintf("id_verification %d: error: %v", v.ID, r)
		}
	}()

	var err error
	switch v.Stage {
	case models.StageSentToProvider:
		outcome, err = p.pollDecision(ctx, v)
	case models.StageSubmitted:
		outcome, err = p.handleSubmitted(ctx, v)
	}
	if err != nil {
		p.logger.Warn("verification record failed", zap.Uint("id", v.ID), zap.Int("stage", v.Stage), zap.Error(err))
		return fmt.Sprintf("id_verification %d: stage %d: error: %v", v.ID, v.Stage, err)
	}
	return outcome
}

type subject struct {
	investor models.InvestorUser
	user     models.User
}

func (p *Poller) loadSubject(ctx context.Context, investorID uint) (*subject, error) {
	var s subject
	if err := p.db.WithContext(ctx).Preload("User").Preload("Address").First(&s.investor, investorID).Error; err != nil {
		return nil, err
	}
	s.user = s.investor.User
	return &s, nil
}

func (p *Poller) handleSubmitted(ctx context.Context, v *models.IDVerification) (string, error) {
	switch v.State {
	case models.StateAccepted:
		return p.handOff(ctx, v)
	case models.StateReview:
		won, err := p.claim(ctx, v, models.StageSubmitted, nil, 0)
		if err != nil || !won {
			return p.lost(v), err
		}
		sub, err := p.loadSubject(ctx, v.InvestorID)
		if err != nil {
			return "", err
		}
		p.notify(ctx, v, func(ctx context.Context) error {
			return p.notifier.TeamReview(ctx, sub.user.Email, sub.investor.FullName(), v.TID, 0)
		})
		return fmt.Sprintf("id_verification %d: stage 1, state R, sent to manual review", v.ID), nil
	case models.StateDenied:
		won, err := p.claim(ctx, v, models.StageSubmitted, nil, models.LevelWalletBound)
		if err != nil || !won {
			return p.lost(v), err
		}
		sub, err := p.loadSubject(ctx, v.InvestorID)
		if err != nil {
			return "", err
		}
		p.notify(ctx, v, func(ctx context.Context) error {
			return p.notifier.KYCFailed(ctx, sub.user.Email, sub.investor.FullName())
		})
		return fmt.Sprintf("id_verification %d: stage 1, state D, investor reset to level 2", v.ID), nil
	}
	return "", nil
}

// handOff sends a pre-approved record to the provider and only then moves it
// to stage 4 and drops the images. A failed request leaves it untouched.
func (p *Poller) handOff(ctx context.Context, v *models.IDVerification) (string, error) {
	var full models.IDVerification
	if err := p.db.WithContext(ctx).First(&full, v.ID).Error; err != nil {
		return "", err
	}
	sub, err := p.loadSubject(ctx, v.InvestorID)
	if err != nil {
		return "", err
	}
	app, err := buildApplication(&full, sub)
	if err != nil {
		return "", err
	}
	if err := p.provider.Submit(ctx, app); err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	updates := map[string]interface{}{"stage": models.StageSentToProvider, "state": models.StatePending}
	for k, val := range scrubbed {
		updates[k] = val
	}
	res := p.db.WithContext(ctx).Model(&models.IDVerification{}).
		Where("id = ? AND processed = ? AND stage = ? AND state = ?", v.ID, false, models.StageSubmitted, models.StateAccepted).
		Updates(updates)
	if res.Error != nil {
		return "", res.Error
	}
	if res.RowsAffected == 0 {
		return p.lost(v), nil
	}
	return fmt.Sprintf("id_verification %d: stage 1, state A, sent to provider", v.ID), nil
}

func (p *Poller) pollDecision(ctx context.Context, v *models.IDVerification) (string, error) {
	decision, err := p.provider.Decision(ctx, v.TID)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrExternalService, err)
	}

	state := models.ProviderState(strings.ToUpper(strings.TrimSpace(decision.State)))
	extra := map[string]interface{}{"state": state, "note": decision.Raw}
	switch state {
	case models.StateAccepted:
		won, err := p.claim(ctx, v, models.StageSentToProvider, extra, models.LevelIDVerified)
		if err != nil || !won {
			return p.lost(v), err
		}
		sub, err := p.loadSubject(ctx, v.InvestorID)
		if err != nil {
			return "", err
		}
		p.notify(ctx, v, func(ctx context.Context) error {
			return p.notifier.KYCSuccess(ctx, sub.user.Email, sub.investor.FullName())
		})
		return fmt.Sprintf("id_verification %d: stage 4, state A, investor verified", v.ID), nil
	case models.StateReview:
		won, err := p.claim(ctx, v, models.StageSentToProvider, extra, 0)
		if err != nil || !won {
			return p.lost(v), err
		}
		sub, err := p.loadSubject(ctx, v.InvestorID)
		if err != nil {
			return "", err
		}
		p.notify(ctx, v, func(ctx context.Context) error {
			return p.notifier.TeamReview(ctx, sub.user.Email, sub.investor.FullName(), v.TID, models.StageSentToProvider)
		})
		return fmt.Sprintf("id_verification %d: stage 4, state R, sent to manual review", v.ID), nil
	case models.StateDenied:
		won, err := p.claim(ctx, v, models.StageSentToProvider, extra, models.LevelWalletBound)
		if err != nil || !won {
			return p.lost(v), err
		}
		sub, err := p.loadSubject(ctx, v.InvestorID)
		if err != nil {
			return "", err
		}
		p.notify(ctx, v, func(ctx context.Context) error {
			return p.notifier.KYCFailed(ctx, sub.user.Email, sub.investor.FullName())
		})
		return fmt.Sprintf("id_verification %d: stage 4, state D, investor reset to level 2", v.ID), nil
	}
	return fmt.Sprintf("id_verification %d: stage 4, no decision yet", v.ID), nil
}

// claim marks the record processed, scrubs it and optionally sets the
// investor's level, all in one transaction. It reports false when another
// run got there first. A zero level leaves the investor unchanged.
func (p *Poller) claim(ctx context.Context, v *models.IDVerification, stage int, extra map[string]interface{}, level models.VerificationLevel) (bool, error) {
	won := false
	err := p.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		query := tx.Model(&models.IDVerification{}).Where("id = ? AND processed = ? AND stage = ?", v.ID, false, stage)
		if stage == models.StageSubmitted {
			query = query.Where("state = ?", v.State)
		}
		res := query.Updates(claimUpdates(extra))
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		won = true
		if level == 0 {
			return nil
		}
		return tx.Model(&models.InvestorUser{}).Where("id = ?", v.InvestorID).
			Update("verification_level", level).Error
	})
	return won, err
}

func (p *Poller) lost(v *models.IDVerification) string {
	return fmt.Sprintf("id_verification %d: already handled", v.ID)
}

func (p *Poller) notify(ctx context.Context, v *models.IDVerification, send func(context.Context) error) {
	sendCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 15*time.Second)
	defer cancel()
	if err := send(sendCtx); err != nil {
		p.logger.Warn("verification notification failed", zap.Uint("id", v.ID), zap.String("tid", v.TID), zap.Error(err))
	}
}

func buildApplication(v *models.IDVerification, sub *subject) (*identity.Application, error) {
	front, err := utils.DecryptSensitiveData(v.FrontImage, imageLabel(v.TID, 0))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt front image: %w", err)
	}
	back, err := utils.DecryptSensitiveData(v.BackImage, imageLabel(v.TID, 1))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt back image: %w", err)
	}
	selfie, err := utils.DecryptSensitiveData(v.Selfie, imageLabel(v.TID, 2))
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt selfie: %w", err)
	}

	app := &identity.Application{
		TID:               v.TID,
		MerchantAccount:   sub.user.Email,
		Email:             sub.user.Email,
		FirstName:         sub.investor.FirstName,
		LastName:          sub.investor.LastName,
		DocType:           string(v.DocType),
		DocCountry:        utils.CountryISO(v.DocCountry),
		ScanData:          front,
		BacksideImageData: back,
		FaceImages:        []string{selfie},
		IP:                sub.user.LastLoginIP,
		Phone:             sub.user.FullPhone(),
		Stage:             models.StageSentToProvider,
	}
	if app.DocCountry == "" {
		app.DocCountry = utils.CountryISO(sub.investor.Nationality)
	}
	if sub.investor.Birthday != nil {
		app.DateOfBirth = sub.investor.Birthday.Format("2006-01-02")
	}
	if addr := sub.investor.Address; addr != nil {
		app.Street = addr.Address1 + ", " + addr.Address2
		app.City = addr.City
		app.State = addr.State
		app.Zipcode = addr.Zipcode
		app.Country = utils.CountryISO(addr.Country)
	}
	return app, nil
}
