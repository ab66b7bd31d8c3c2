package api

import (
	"fmt"
	"net/http"
	"strings"

	"go.uber.org/zap"

	"pepeearn/internal/ads"
	"pepeearn/internal/middleware"
	"pepeearn/internal/models"
	"pepeearn/internal/quota"
	"pepeearn/internal/referral"
	"pepeearn/internal/telegram"
	"pepeearn/internal/utils"
)

type actionResponse struct {
	Message string       `json:"message"`
	User    *models.User `json:"user,omitempty"`
}

type watchAdRequest struct {
	Outcome string `json:"outcome"`
}

type applyReferralRequest struct {
	Code string `json:"code"`
}

type withdrawalRequest struct {
	Amount       int64  `json:"amount"`
	BinanceEmail string `json:"binanceEmail"`
}

type withdrawalResponse struct {
	Message    string             `json:"message"`
	Withdrawal *models.Withdrawal `json:"withdrawal"`
	User       *models.User       `json:"user"`
}

func (s *Server) healthz(w http.ResponseWriter, r *http.Request) {
	if s.db != nil {
		if err := s.db.PingContext(r.Context()); err != nil {
			s.logger.Warn("Health check failed", zap.Error(err))
			utils.WriteError(w, http.StatusServiceUnavailable, "database unavailable")
			return
		}
	}
	utils.WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req models.LoginRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	var identity telegram.Identity
	if req.InitData != "" {
		id, err := telegram.ValidateInitData(req.InitData, s.botToken, s.initDataMaxAge)
		if err != nil {
			s.logger.Info("Rejected initData", zap.Error(err))
			utils.WriteError(w, http.StatusUnauthorized, "invalid initData")
			return
		}
		identity = *id
	} else {
		if !s.devMode {
			utils.WriteError(w, http.StatusBadRequest, "initData required in production mode")
			return
		}
		identity = DevIdentity
	}
	if identity.StartParam == "" {
		identity.StartParam = strings.TrimSpace(req.StartParam)
	}

	sess, err := s.sessions.Open(r.Context(), identity)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	profile, err := sess.Profile(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	token, err := s.auth.GenerateToken(identity.ID, identity.FirstName, identity.Username)
	if err != nil {
		s.logger.Error("Error generating token", zap.String("user_id", identity.ID), zap.Error(err))
		utils.WriteError(w, http.StatusInternalServerError, "Failed to create session")
		return
	}

	utils.WriteJSON(w, http.StatusOK, models.LoginResponse{
		Token:  token,
		UserID: identity.ID,
		User:   profile,
	})
}

func (s *Server) logout(w http.ResponseWriter, r *http.Request) {
	claims, ok := middleware.ClaimsFromContext(r.Context())
	if !ok {
		s.writeDomainError(w, r, errUnauthenticated)
		return
	}
	s.sessions.Close(claims.UserID)
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) me(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	profile, err := sess.Profile(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, profile)
}

func (s *Server) watchAd(w http.ResponseWriter, r *http.Request) {
	var req watchAdRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	u, err := sess.WatchAd(r.Context(), ads.Reported{Outcome: req.Outcome})
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, actionResponse{
		Message: fmt.Sprintf("Real ad completed! +%d PEPE added to your balance. (%d/%d)",
			quota.AdReward, u.DailyAdCount, quota.DailyLimit),
		User: u,
	})
}

func (s *Server) verifyBonus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	u, err := sess.VerifyBonus(r.Context())
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, actionResponse{
		Message: "Bonus task completed! +300 PEPE added to your balance.",
		User:    u,
	})
}

func (s *Server) resetBonus(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	if err := sess.ResetBonus(r.Context()); err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, actionResponse{Message: "Bonus task reset"})
}

func (s *Server) applyReferral(w http.ResponseWriter, r *http.Request) {
	var req applyReferralRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	_, u, err := sess.ApplyReferralCode(r.Context(), req.Code)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, actionResponse{
		Message: fmt.Sprintf("Referral code applied! You earned %d PEPE bonus!", referral.SignupBonus),
		User:    u,
	})
}

func (s *Server) createWithdrawal(w http.ResponseWriter, r *http.Request) {
	var req withdrawalRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	wd, u, err := sess.Withdraw(r.Context(), req.Amount, req.BinanceEmail)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, withdrawalResponse{
		Message:    "Withdrawal request submitted successfully! You will see status updates in real-time.",
		Withdrawal: wd,
		User:       u,
	})
}

func (s *Server) listWithdrawals(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	list := []models.Withdrawal{}
	for wd, err := range sess.Withdrawals(r.Context()) {
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		list = append(list, wd)
	}
	utils.WriteJSON(w, http.StatusOK, map[string]any{"withdrawals": list})
}

func (s *Server) getWithdrawal(w http.ResponseWriter, r *http.Request) {
	id, err := utils.URLParam(r, "id")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "Invalid withdrawal ID")
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeDomainError(w, r, err)
		return
	}

	for wd, err := range sess.Withdrawals(r.Context()) {
		if err != nil {
			s.writeDomainError(w, r, err)
			return
		}
		if wd.ID == id {
			utils.WriteJSON(w, http.StatusOK, wd)
			return
		}
	}
	s.writeDomainError(w, r, fmt.Errorf("withdrawal %s: %w", id, models.ErrNotFound))
}
