package ledger

import (
	"context"
	"testing"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func inTx(t *testing.T, st *storetest.Store, fn func(tx store.Tx) error) error {
	t.Helper()
	return st.RunInTx(context.Background(), fn)
}

func TestDebit(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 1000})

	err := inTx(t, st, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(context.Background(), 1)
		require.NoError(t, err)

		require.NoError(t, Debit(context.Background(), tx, user, 300))
		assert.Equal(t, int64(700), user.Balance)
		return nil
	})
	require.NoError(t, err)
	assert.Equal(t, int64(700), st.User(1).Balance)
}

func TestDebitInsufficient(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 200})

	err := inTx(t, st, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(context.Background(), 1)
		require.NoError(t, err)
		return Debit(context.Background(), tx, user, 300)
	})
	require.ErrorIs(t, err, ErrInsufficientFunds)
	assert.Equal(t, int64(200), st.User(1).Balance)
}

func TestDebitExactBalance(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 300})

	err := inTx(t, st, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(context.Background(), 1)
		require.NoError(t, err)
		return Debit(context.Background(), tx, user, 300)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(0), st.User(1).Balance)
}

func TestCreditBonus(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 2, BonusBalance: 100})

	err := inTx(t, st, func(tx store.Tx) error {
		return CreditBonus(context.Background(), tx, 2, 250)
	})
	require.NoError(t, err)
	assert.Equal(t, int64(350), st.User(2).BonusBalance)
}

func TestWithdrawBonus(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 100, BonusBalance: 400})

	err := inTx(t, st, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(context.Background(), 1)
		require.NoError(t, err)

		amount, err := WithdrawBonus(context.Background(), tx, user)
		require.NoError(t, err)
		assert.Equal(t, int64(400), amount)
		return nil
	})
	require.NoError(t, err)

	user := st.User(1)
	assert.Equal(t, int64(500), user.Balance)
	assert.Equal(t, int64(0), user.BonusBalance)

	payments := st.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentTypeWithdrawal, payments[0].Type)
	assert.Equal(t, int64(400), payments[0].Amount)
}

func TestWithdrawBonusEmpty(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 100})

	err := inTx(t, st, func(tx store.Tx) error {
		user, err := tx.UserForUpdate(context.Background(), 1)
		require.NoError(t, err)

		_, err = WithdrawBonus(context.Background(), tx, user)
		return err
	})
	require.ErrorIs(t, err, ErrNoBonusAvailable)
	assert.Empty(t, st.Payments())
}
