package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"gullin-backend/models"
	"gullin-backend/utils"
)

// LedgerService caches client-reported balances and transactions. Nothing
// here is authoritative for on-chain state.
type LedgerService struct {
	db     *gorm.DB
	logger *zap.Logger
	now    func() time.Time
}

const myWalletNote = "My wallet"

type ItemStatus string

const (
	ItemAccepted ItemStatus = "accepted"
	ItemRejected ItemStatus = "rejected"
)

type BalanceResult struct {
	TokenCode string     `json:"token_code"`
	Status    ItemStatus `json:"status"`
	Reason    string     `json:"reason,omitempty"`
}

type TransactionResult struct {
	Index  int        `json:"index"`
	Status ItemStatus `json:"status"`
	ID     uint       `json:"id,omitempty"`
	Reason string     `json:"reason,omitempty"`
}

// initBalances gives a new wallet one zero balance per listed token.
func initBalances(tx *gorm.DB, walletID uint) error {
	var tokens []models.TokenDetail
	if err := tx.Order("token_code").Find(&tokens).Error; err != nil {
		return err
	}
	if len(tokens) == 0 {
		return nil
	}
	balances := make([]models.Balance, 0, len(tokens))
	for _, t := range tokens {
		balances = append(balances, models.Balance{
			WalletID:  walletID,
			TokenID:   t.ID,
			TokenCode: t.TokenCode,
			Balance:   decimal.Zero,
		})
	}
	return tx.Create(&balances).Error
}

// ListToken registers a company with its token and adds a zero balance for
// the token to every existing wallet.
func (s *LedgerService) ListToken(ctx context.Context, req *models.ListTokenRequest) (*models.Company, error) {
	code := strings.ToUpper(strings.TrimSpace(req.TokenCode))
	company := &models.Company{
		Name:             strings.TrimSpace(req.CompanyName),
		ShortDescription: req.ShortDescription,
		Website:          req.Website,
	}

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&models.TokenDetail{}).Where("token_code = ?", code).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: token code %s", ErrConflict, code)
		}
		if err := tx.Model(&models.Company{}).Where("name = ?", company.Name).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return fmt.Errorf("%w: company %s", ErrConflict, company.Name)
		}

		token := &models.TokenDetail{
			TokenCode:                code,
			TokenName:                req.TokenName,
			CrowdSaleContractAddress: lowerOrNil(req.CrowdSaleContractAddress),
			TokenAddress:             lowerOrNil(req.TokenAddress),
			Decimals:                 req.Decimals,
			StartDatetime:            req.StartDatetime,
			EndDatetime:              req.EndDatetime,
		}
		if req.Price != nil {
			token.Price = decimal.NewNullDecimal(*req.Price)
		}
		if err := tx.Create(token).Error; err != nil {
			return err
		}
		company.TokenDetailID = &token.ID
		company.TokenDetail = token
		if err := tx.Omit("TokenDetail").Create(company).Error; err != nil {
			return err
		}

		var walletIDs []uint
		if err := tx.Model(&models.Wallet{}).Pluck("id", &walletIDs).Error; err != nil {
			return err
		}
		if len(walletIDs) == 0 {
			return nil
		}
		balances := make([]models.Balance, 0, len(walletIDs))
		for _, id := range walletIDs {
			balances = append(balances, models.Balance{WalletID: id, TokenID: token.ID, TokenCode: code, Balance: decimal.Zero})
		}
		return tx.CreateInBatches(&balances, 200).Error
	})
	if err != nil {
		return nil, err
	}
	s.logger.Info("token listed", zap.String("token_code", code), zap.String("company", company.Name))
	return company, nil
}

func (s *LedgerService) GetWallet(ctx context.Context, investorID uint) (*models.Wallet, error) {
	var wallet models.Wallet
	err := s.db.WithContext(ctx).
		Preload("Balances", func(db *gorm.DB) *gorm.DB { return db.Order("token_code") }).
		Where("investor_id = ?", investorID).
		First(&wallet).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("%w: wallet", ErrNotFound)
	}
	return &wallet, err
}

// UpdateBalances overwrites cached balances per token code. Unknown codes
// are rejected individually.
func (s *LedgerService) UpdateBalances(ctx context.Context, investorID uint, values map[string]decimal.Decimal) ([]BalanceResult, error) {
	wallet, err := s.GetWallet(ctx, investorID)
	if err != nil {
		return nil, err
	}

	codes := make([]string, 0, len(values))
	for code := range values {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	results := make([]BalanceResult, 0, len(codes))
	for _, code := range codes {
		res := s.db.WithContext(ctx).Model(&models.Balance{}).
			Where("wallet_id = ? AND token_code = ?", wallet.ID, strings.ToUpper(code)).
			Updates(map[string]interface{}{"balance": values[code], "updated_at": s.now()})
		switch {
		case res.Error != nil:
			s.logger.Warn("balance update failed", zap.Uint("wallet_id", wallet.ID), zap.String("token_code", code), zap.Error(res.Error))
			results = append(results, BalanceResult{TokenCode: code, Status: ItemRejected, Reason: "update failed"})
		case res.RowsAffected == 0:
			results = append(results, BalanceResult{TokenCode: code, Status: ItemRejected, Reason: "unknown token"})
		default:
			results = append(results, BalanceResult{TokenCode: code, Status: ItemAccepted})
		}
	}
	return results, nil
}

// addressBook classifies counterparties of one wallet.
type addressBook struct {
	own       string
	contracts map[string]string
}

func (s *LedgerService) loadAddressBook(ctx context.Context, wallet *models.Wallet) (*addressBook, error) {
	book := &addressBook{contracts: make(map[string]string)}
	if wallet.WalletAddress != nil {
		book.own = strings.ToLower(*wallet.WalletAddress)
	}

	var companies []models.Company
	if err := s.db.WithContext(ctx).Preload("TokenDetail").Where("token_detail_id IS NOT NULL").Find(&companies).Error; err != nil {
		return nil, err
	}
	for _, c := range companies {
		if c.TokenDetail == nil {
			continue
		}
		for _, addr := range []*string{c.TokenDetail.CrowdSaleContractAddress, c.TokenDetail.TokenAddress} {
			if addr != nil && *addr != "" {
				book.contracts[strings.ToLower(*addr)] = c.Name
			}
		}
	}
	return book, nil
}

// Classify labels addr. Contract addresses win over the investor's own
// wallet, which wins over everything else.
func (b *addressBook) Classify(addr string) (models.AddressType, string) {
	key := strings.ToLower(strings.TrimSpace(addr))
	if name, ok := b.contracts[key]; ok {
		return models.AddressICOContract, name
	}
	if b.own != "" && key == b.own {
		return models.AddressMyWallet, myWalletNote
	}
	return models.AddressOther, ""
}

// RecordTransactions stores each item independently and reports a result per
// item. A rejected item never aborts the rest of the batch.
func (s *LedgerService) RecordTransactions(ctx context.Context, investorID uint, items []models.TransactionRequest) ([]TransactionResult, error) {
	wallet, err := s.GetWallet(ctx, investorID)
	if err != nil {
		return nil, err
	}
	book, err := s.loadAddressBook(ctx, wallet)
	if err != nil {
		return nil, err
	}

	results := make([]TransactionResult, 0, len(items))
	for i, item := range items {
		result := TransactionResult{Index: i}
		record, reason := s.buildTransaction(wallet.ID, book, item)
		if record == nil {
			result.Status, result.Reason = ItemRejected, reason
			results = append(results, result)
			continue
		}

		if record.TxHash != nil {
			var count int64
			if err := s.db.WithContext(ctx).Model(&models.Transaction{}).Where("tx_hash = ?", *record.TxHash).Count(&count).Error; err == nil && count > 0 {
				result.Status, result.Reason = ItemRejected, "duplicate tx_hash"
				results = append(results, result)
				continue
			}
		}
		if err := s.db.WithContext(ctx).Create(record).Error; err != nil {
			s.logger.Warn("transaction rejected", zap.Uint("wallet_id", wallet.ID), zap.Int("index", i), zap.Error(err))
			result.Status, result.Reason = ItemRejected, "could not be stored"
			results = append(results, result)
			continue
		}
		result.Status, result.ID = ItemAccepted, record.ID
		results = append(results, result)
	}
	return results, nil
}

func (s *LedgerService) buildTransaction(walletID uint, book *addressBook, item models.TransactionRequest) (*models.Transaction, string) {
	if item.Amount.IsNegative() {
		return nil, "amount must not be negative"
	}
	if !utils.IsEthAddress(item.FromAddress) || !utils.IsEthAddress(item.ToAddress) {
		return nil, "invalid address"
	}
	var hash *string
	if item.TxHash != nil {
		if h := strings.ToLower(strings.TrimSpace(*item.TxHash)); h != "" {
			hash = &h
		}
	}
	fromType, fromNote := book.Classify(item.FromAddress)
	toType, toNote := book.Classify(item.ToAddress)
	return &models.Transaction{
		WalletID:        walletID,
		Type:            item.Type,
		Datetime:        item.Datetime.UTC(),
		FromAddress:     strings.ToLower(item.FromAddress),
		FromAddressType: fromType,
		FromAddressNote: fromNote,
		ToAddress:       strings.ToLower(item.ToAddress),
		ToAddressType:   toType,
		ToAddressNote:   toNote,
		Amount:          item.Amount,
		TokenCode:       strings.ToUpper(item.TokenCode),
		TxHash:          hash,
	}, ""
}

func (s *LedgerService) ListTransactions(ctx context.Context, investorID uint) ([]models.Transaction, error) {
	wallet, err := s.GetWallet(ctx, investorID)
	if err != nil {
		return nil, err
	}
	var txs []models.Transaction
	err = s.db.WithContext(ctx).
		Where("wallet_id = ?", wallet.ID).
		Order("datetime DESC, id DESC").
		Find(&txs).Error
	return txs, err
}

func lowerOrNil(s string) *string {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return nil
	}
	return &s
}
