// Package ledger applies balance mutations through a transaction-scoped store.
// Every operation here must run inside the same atomic unit as the Order and
// Payment writes it belongs to; a debit that commits without its order is the
// failure mode this package exists to prevent.
package ledger

import (
	"context"
	"errors"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
)

// ErrInsufficientFunds is returned when a debit exceeds the user's balance.
var ErrInsufficientFunds = errors.New("insufficient funds")

// ErrNoBonusAvailable is returned when a withdrawal finds no bonus balance.
var ErrNoBonusAvailable = errors.New("no bonus available")

// Debit subtracts amount from the user's spendable balance. The user must
// have been loaded with a row lock in the current transaction.
func Debit(ctx context.Context, tx store.Tx, user *models.User, amount int64) error {
	if user.Balance < amount {
		return ErrInsufficientFunds
	}
	user.Balance -= amount
	return tx.UpdateUserBalance(ctx, user.ID, user.Balance)
}

// CreditBonus adds amount to the referrer's bonus balance unconditionally.
func CreditBonus(ctx context.Context, tx store.Tx, referrerID, amount int64) error {
	return tx.AddBonusBalance(ctx, referrerID, amount)
}

// WithdrawBonus zeroes the user's bonus balance, credits the same amount to
// the spendable balance and records a withdrawal ledger entry, all within the
// caller's transaction. The user must be row-locked.
func WithdrawBonus(ctx context.Context, tx store.Tx, user *models.User) (int64, error) {
	if user.BonusBalance <= 0 {
		return 0, ErrNoBonusAvailable
	}

	amount := user.BonusBalance
	user.Balance += amount
	user.BonusBalance = 0

	if err := tx.SetBalances(ctx, user.ID, user.Balance, user.BonusBalance); err != nil {
		return 0, err
	}

	payment := &models.Payment{
		UserID: user.ID,
		Type:   models.PaymentTypeWithdrawal,
		Amount: amount,
	}
	if err := tx.InsertPayment(ctx, payment); err != nil {
		return 0, err
	}

	return amount, nil
}
