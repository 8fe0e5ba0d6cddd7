package service

import (
	"context"
	"testing"

	"storefront-service/internal/ledger"
	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/store/storetest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithdrawBonus(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 1000, BonusBalance: 750})
	svc := NewBonusService(st)

	result, err := svc.WithdrawBonus(context.Background(), 1)
	require.NoError(t, err)
	assert.Equal(t, int64(750), result.Amount)
	assert.Equal(t, int64(1750), result.NewBalance)
	assert.Equal(t, int64(0), result.NewBonusBalance)

	user := st.User(1)
	assert.Equal(t, int64(1750), user.Balance)
	assert.Equal(t, int64(0), user.BonusBalance)

	payments := st.Payments()
	require.Len(t, payments, 1)
	assert.Equal(t, models.PaymentTypeWithdrawal, payments[0].Type)
	assert.Equal(t, int64(750), payments[0].Amount)
}

func TestWithdrawBonusEmpty(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, Balance: 1000})
	svc := NewBonusService(st)

	_, err := svc.WithdrawBonus(context.Background(), 1)
	require.ErrorIs(t, err, ledger.ErrNoBonusAvailable)

	assert.Equal(t, int64(1000), st.User(1).Balance)
	assert.Empty(t, st.Payments())
}

func TestWithdrawBonusUnknownUser(t *testing.T) {
	st := storetest.New()
	svc := NewBonusService(st)

	_, err := svc.WithdrawBonus(context.Background(), 99)
	assert.ErrorIs(t, err, store.ErrUserNotFound)
}

func TestWithdrawBonusTwice(t *testing.T) {
	st := storetest.New()
	st.AddUser(models.User{ID: 1, BonusBalance: 500})
	svc := NewBonusService(st)

	_, err := svc.WithdrawBonus(context.Background(), 1)
	require.NoError(t, err)

	_, err = svc.WithdrawBonus(context.Background(), 1)
	assert.ErrorIs(t, err, ledger.ErrNoBonusAvailable)
	assert.Equal(t, int64(500), st.User(1).Balance)
}
