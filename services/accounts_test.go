package services

import (
	"context"
	"errors"
	"testing"

	"gullin-backend/models"
)

func TestSignUpCreatesWalletWithZeroBalances(t *testing.T) {
	env := newTestEnv(t)
	env.listToken(t, "GLN", "Gullin", "")
	env.listToken(t, "ABC", "Alphabet Co", "")

	p := env.signUp(t, "New.Investor@Example.com ")
	if p.User.Email != "new.investor@example.com" {
		t.Fatalf("email not normalized: %q", p.User.Email)
	}
	if p.Investor.VerificationLevel != models.LevelNotVerified {
		t.Fatalf("expected level -1, got %d", p.Investor.VerificationLevel)
	}

	wallet, err := env.svc.Ledger.GetWallet(context.Background(), p.Investor.ID)
	if err != nil {
		t.Fatalf("GetWallet: %v", err)
	}
	if wallet.WalletAddress != nil {
		t.Fatalf("new wallet should have no address, got %q", *wallet.WalletAddress)
	}
	if len(wallet.Balances) != 2 {
		t.Fatalf("expected 2 balances, got %d", len(wallet.Balances))
	}
	for _, b := range wallet.Balances {
		if !b.Balance.IsZero() {
			t.Errorf("balance for %s should be zero, got %s", b.TokenCode, b.Balance)
		}
	}
	if got := env.mailer.withSubject("Gullin - Your verification code"); len(got) != 1 {
		t.Fatalf("expected one verification email, got %d", len(got))
	}
}

func TestSignUpRejectsDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)
	env.signUp(t, "dup@example.com")

	_, err := env.svc.Accounts.SignUp(context.Background(), &models.SignUpRequest{
		Email: "DUP@example.com", Password: "another-pass", FirstName: "B", LastName: "C",
	}, testMeta)
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}
	var count int64
	env.db.Model(&models.InvestorUser{}).Count(&count)
	if count != 1 {
		t.Fatalf("expected one investor, got %d", count)
	}
}

func TestSignUpWithAdminCodeGrantsStaff(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	_, err := env.svc.Accounts.SignUp(ctx, &models.SignUpRequest{
		Email: "staff@example.com", Password: "password1", FirstName: "S", LastName: "T", AdminCode: testAdminCode,
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}
	_, err = env.svc.Accounts.SignUp(ctx, &models.SignUpRequest{
		Email: "guess@example.com", Password: "password1", FirstName: "G", LastName: "U", AdminCode: "wrong",
	}, testMeta)
	if err != nil {
		t.Fatalf("SignUp: %v", err)
	}

	if p := env.principal(t, "staff@example.com"); !p.User.IsStaff {
		t.Fatal("matching admin code should grant staff")
	}
	if p := env.principal(t, "guess@example.com"); p.User.IsStaff {
		t.Fatal("wrong admin code must not grant staff")
	}
}

func TestListTokenAddsBalanceToExistingWallets(t *testing.T) {
	env := newTestEnv(t)
	a := env.signUp(t, "a@example.com")
	b := env.signUp(t, "b@example.com")

	env.listToken(t, "new", "NewCo", "0xAbCdEf0123456789aBcDeF0123456789AbCdEf01")

	for _, p := range []*models.InvestorPrincipal{a, b} {
		wallet, err := env.svc.Ledger.GetWallet(context.Background(), p.Investor.ID)
		if err != nil {
			t.Fatalf("GetWallet: %v", err)
		}
		if len(wallet.Balances) != 1 || wallet.Balances[0].TokenCode != "NEW" {
			t.Fatalf("expected one NEW balance, got %+v", wallet.Balances)
		}
	}

	var token models.TokenDetail
	if err := env.db.Where("token_code = ?", "NEW").First(&token).Error; err != nil {
		t.Fatalf("load token: %v", err)
	}
	if token.CrowdSaleContractAddress == nil || *token.CrowdSaleContractAddress != "0xabcdef0123456789abcdef0123456789abcdef01" {
		t.Fatalf("contract address should be stored lowercased, got %v", token.CrowdSaleContractAddress)
	}

	_, err := env.svc.Ledger.ListToken(context.Background(), &models.ListTokenRequest{CompanyName: "Other", TokenCode: "NEW"})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("expected ErrConflict for a reused token code, got %v", err)
	}
}

func TestUpdateProfileUpsertsAddress(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	p := env.signUp(t, "profile@example.com")

	birthday := "1990-02-03"
	nationality := "Germany"
	req := &models.ProfileUpdateRequest{
		Birthday:    &birthday,
		Nationality: &nationality,
		Address: &models.AddressRequest{
			Address1: "1 Main St", City: "Berlin", Zipcode: "10115", Country: "Germany",
		},
	}
	updated, err := env.svc.Accounts.UpdateProfile(ctx, p.Investor, req, testMeta)
	if err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if updated.Birthday == nil || updated.Birthday.Format("2006-01-02") != birthday {
		t.Fatalf("birthday not stored: %v", updated.Birthday)
	}
	if updated.Address == nil || updated.Address.City != "Berlin" {
		t.Fatalf("address not stored: %+v", updated.Address)
	}

	req = &models.ProfileUpdateRequest{Address: &models.AddressRequest{
		Address1: "2 Side St", City: "Munich", Zipcode: "80331", Country: "Germany",
	}}
	if _, err := env.svc.Accounts.UpdateProfile(ctx, p.Investor, req, testMeta); err != nil {
		t.Fatalf("second UpdateProfile: %v", err)
	}
	var addresses []models.InvestorUserAddress
	env.db.Where("investor_id = ?", p.Investor.ID).Find(&addresses)
	if len(addresses) != 1 || addresses[0].City != "Munich" {
		t.Fatalf("expected a single updated address, got %+v", addresses)
	}
}

func TestLoadPrincipalByRole(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	company := env.listToken(t, "CMP", "Company One", "")

	user, err := env.svc.Accounts.CreateStaffUser(ctx, &models.CreateStaffUserRequest{
		Email: "issuer@example.com", Password: "password1", Role: models.RoleCompany, CompanyID: &company.ID,
	})
	if err != nil {
		t.Fatalf("CreateStaffUser company: %v", err)
	}
	p, err := env.svc.Accounts.LoadPrincipal(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoadPrincipal: %v", err)
	}
	cp, ok := p.(*models.CompanyPrincipal)
	if !ok {
		t.Fatalf("expected company principal, got %T", p)
	}
	if cp.CompanyUser.Company == nil || cp.CompanyUser.Company.Name != "Company One" {
		t.Fatalf("company not loaded: %+v", cp.CompanyUser.Company)
	}

	_, err = env.svc.Accounts.CreateStaffUser(ctx, &models.CreateStaffUserRequest{
		Email: "issuer2@example.com", Password: "password1", Role: models.RoleCompany, CompanyID: &company.ID,
	})
	if !errors.Is(err, ErrConflict) {
		t.Fatalf("second account for a company: expected ErrConflict, got %v", err)
	}

	user, err = env.svc.Accounts.CreateStaffUser(ctx, &models.CreateStaffUserRequest{
		Email: "analyst@example.com", Password: "password1", Role: models.RoleAnalyst, FirstName: "An", LastName: "Alyst",
	})
	if err != nil {
		t.Fatalf("CreateStaffUser analyst: %v", err)
	}
	p, err = env.svc.Accounts.LoadPrincipal(ctx, user.ID)
	if err != nil {
		t.Fatalf("LoadPrincipal: %v", err)
	}
	if _, ok := p.(*models.AnalystPrincipal); !ok {
		t.Fatalf("expected analyst principal, got %T", p)
	}
}
