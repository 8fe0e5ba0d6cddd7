package service

import (
	"context"
	"errors"
	"strings"

	"storefront-service/internal/models"
	"storefront-service/internal/store"
	"storefront-service/internal/util"

	"go.uber.org/zap"
)

// Referral registration errors
var (
	ErrSelfReferral        = errors.New("cannot refer yourself")
	ErrAlreadyReferred     = errors.New("user already has a referrer")
	ErrInvalidReferralCode = errors.New("invalid referral code")
)

// ReferralService manages referral links and statistics.
type ReferralService struct {
	store  store.Storage
	logger *zap.Logger
}

// NewReferralService creates a new referral service
func NewReferralService(st store.Storage) *ReferralService {
	return &ReferralService{
		store:  st,
		logger: util.GetLogger(),
	}
}

// Stats returns the user's referral program standing with their referral list
func (s *ReferralService) Stats(ctx context.Context, userID int64) (*models.ReferralStats, error) {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return nil, err
	}

	referrals, err := s.store.GetReferrals(ctx, userID)
	if err != nil {
		return nil, err
	}

	return &models.ReferralStats{
		InvitedCount: user.InvitedCount,
		BonusPercent: user.BonusPercent,
		BonusBalance: user.BonusBalance,
		ReferralCode: user.ReferralCode,
		Referrals:    referrals,
	}, nil
}

// Register links userID to the owner of code. The link is set at most once
// and self-referral is rejected; both checks keep the referrer graph acyclic.
func (s *ReferralService) Register(ctx context.Context, userID int64, code string) error {
	user, err := s.store.GetUserByID(ctx, userID)
	if err != nil {
		return err
	}
	if user.ReferrerID != nil {
		return ErrAlreadyReferred
	}

	// Codes arrive from share links with a ref_ or anon_ prefix.
	code = strings.TrimPrefix(strings.TrimPrefix(code, "ref_"), "anon_")

	referrer, err := s.store.GetUserByReferralCode(ctx, code)
	if errors.Is(err, store.ErrUserNotFound) {
		return ErrInvalidReferralCode
	}
	if err != nil {
		return err
	}
	if referrer.ID == userID {
		return ErrSelfReferral
	}

	if err := s.store.SetReferrer(ctx, userID, referrer.ID); err != nil {
		return err
	}

	s.logger.Info("Referral registered",
		zap.Int64("user_id", userID),
		zap.Int64("referrer_id", referrer.ID))
	return nil
}
