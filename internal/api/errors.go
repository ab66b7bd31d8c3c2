package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"pepeearn/internal/ads"
	"pepeearn/internal/bonus"
	"pepeearn/internal/ledger"
	"pepeearn/internal/models"
	"pepeearn/internal/quota"
	"pepeearn/internal/referral"
	"pepeearn/internal/utils"
	"pepeearn/internal/withdrawal"
)

var errUnauthenticated = errors.New("unauthenticated")

type errorMapping struct {
	err     error
	status  int
	message string
}

var knownErrors = []errorMapping{
	{quota.ErrQuotaExceeded, http.StatusTooManyRequests, "Daily ad limit reached. Come back tomorrow!"},

	{referral.ErrEmptyCode, http.StatusBadRequest, "Please enter a referral code."},
	{referral.ErrSelfReferral, http.StatusBadRequest, "You cannot refer yourself."},
	{referral.ErrAlreadyReferred, http.StatusConflict, "You have already used a referral code."},
	{referral.ErrInvalidCode, http.StatusNotFound, "Invalid referral code."},

	{bonus.ErrAlreadyCompleted, http.StatusConflict, "You have already completed the bonus task!"},
	{bonus.ErrNotMember, http.StatusBadRequest, "Please join the channel first, then verify."},

	{withdrawal.ErrBelowMinimum, http.StatusBadRequest, "Minimum withdrawal amount is 10,000 PEPE."},
	{withdrawal.ErrInsufficientBalance, http.StatusBadRequest, "Insufficient balance."},
	{withdrawal.ErrMissingDestination, http.StatusBadRequest, "Please enter your Binance email or UID."},
	{ledger.ErrInsufficientFunds, http.StatusConflict, "Insufficient balance."},
	{ledger.ErrInvalidAmount, http.StatusBadRequest, "Amount must be positive."},
}

var adErrors = []error{ads.ErrNotReady, ads.ErrClosedEarly, ads.ErrBlocked, ads.ErrUnavailable, ads.ErrFailed}

// writeDomainError maps err to a status and a message fit for the user.
// Errors of no known kind are transient store or network failures.
func (s *Server) writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, errUnauthenticated) {
		utils.WriteError(w, http.StatusUnauthorized, "Unauthorized")
		return
	}
	for _, m := range knownErrors {
		if errors.Is(err, m.err) {
			utils.WriteError(w, m.status, m.message)
			return
		}
	}
	for _, adErr := range adErrors {
		if errors.Is(err, adErr) {
			status := http.StatusBadRequest
			if !errors.Is(err, models.ErrValidation) {
				status = http.StatusServiceUnavailable
			}
			utils.WriteError(w, status, ads.Message(err))
			return
		}
	}

	switch {
	case errors.Is(err, models.ErrValidation):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, "Not found")
	case errors.Is(err, models.ErrConflict):
		utils.WriteError(w, http.StatusConflict, "The request conflicts with a concurrent change. Please try again.")
	default:
		s.logger.Error("Request failed",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		utils.WriteError(w, http.StatusServiceUnavailable, "Something went wrong. Please try again.")
	}
}
