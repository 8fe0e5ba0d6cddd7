package service

import (
	"context"

	"storefront-service/internal/ledger"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// BonusService moves accumulated referral bonuses into spendable balance.
type BonusService struct {
	store  store.Storage
	logger *zap.Logger
}

// NewBonusService creates a new bonus service
func NewBonusService(st store.Storage) *BonusService {
	return &BonusService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// WithdrawResult reports the balances after a bonus withdrawal
type WithdrawResult struct {
	Amount          int64 `json:"amount"`
	NewBalance      int64 `json:"new_balance"`
	NewBonusBalance int64 `json:"new_bonus_balance"`
}

// WithdrawBonus atomically transfers the whole bonus balance into the main
// balance and records a withdrawal ledger entry. Fails with
// ledger.ErrNoBonusAvailable when there is nothing to withdraw.
func (s *BonusService) WithdrawBonus(ctx context.Context, userID int64) (*WithdrawResult, error) {
	ctx, span := util.StartSpan(ctx, "BonusService.WithdrawBonus")
	defer span.End()

	var result *WithdrawResult
	err := s.store.RunInTx(ctx, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(ctx, userID)
		if err != nil {
			return err
		}

		amount, err := ledger.WithdrawBonus(ctx, tx, user)
		if err != nil {
			return err
		}

		result = &WithdrawResult{
			Amount:          amount,
			NewBalance:      user.Balance,
			NewBonusBalance: user.BonusBalance,
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	util.BonusWithdrawalsTotal.Inc()
	s.logger.Info("Bonus withdrawn",
		zap.Int64("user_id", userID),
		zap.Int64("amount", result.Amount))

	return result, nil
}
