package server

import (
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/susuprotocol/rosca/engine"
	"github.com/susuprotocol/rosca/metrics"
)

var (
	errMissingActor     = errors.New("missing actor header")
	errInvalidSignature = errors.New("invalid signature encoding")
	errInvalidCircleID  = errors.New("invalid circle id")
	errInvalidBody      = errors.New("invalid request body")
)

// proofFromRequest builds a proof from the actor and signature headers. The
// signature header is optional so that permissive verifiers keep working.
func proofFromRequest(r *http.Request) (engine.Proof, error) {
	actor := r.Header.Get(HeaderActor)
	if actor == "" {
		return engine.Proof{}, errMissingActor
	}
	proof := engine.Proof{Actor: engine.Address(actor)}
	if sigHex := r.Header.Get(HeaderSignature); sigHex != "" {
		sig, err := hex.DecodeString(sigHex)
		if err != nil {
			return engine.Proof{}, errInvalidSignature
		}
		proof.Signature = sig
	}
	return proof, nil
}

func circleIDFromRequest(r *http.Request) (uint64, error) {
	id, err := strconv.ParseUint(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		return 0, errInvalidCircleID
	}
	return id, nil
}

func decodeBody(r *http.Request, v any) error {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		return errInvalidBody
	}
	return nil
}

func (s *Server) writeBadRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
}

// --- protocol ---

func (s *Server) handleInitialize(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.Initialize(r.Context(), proof); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSetProtocolFee(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		FeeBasisPoints uint32         `json:"fee_basis_points"`
		Treasury       engine.Address `json:"treasury"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.SetProtocolFee(r.Context(), proof, req.FeeBasisPoints, req.Treasury); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleAdminAction(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.AdminAction(r.Context(), proof); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleDeposit(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Amount int64 `json:"amount"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.Deposit(r.Context(), proof, req.Amount); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleEmergencyWithdraw(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := s.cfg.Engine.EmergencyWithdraw(r.Context(), proof)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Amount int64 `json:"amount"`
	}{Amount: amount})
}

func (s *Server) handleGetProtocol(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	fee, err := s.cfg.Engine.FeeBasisPoints(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	treasury, err := s.cfg.Engine.TreasuryAddress(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	lastActive, err := s.cfg.Engine.LastActiveTimestamp(ctx)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		FeeBasisPoints uint32         `json:"fee_basis_points"`
		Treasury       engine.Address `json:"treasury"`
		LastActive     time.Time      `json:"last_active"`
	}{FeeBasisPoints: fee, Treasury: treasury, LastActive: lastActive})
}

func (s *Server) handleUserBalance(w http.ResponseWriter, r *http.Request) {
	user := engine.Address(chi.URLParam(r, "user"))
	balance, err := s.cfg.Engine.UserBalance(r.Context(), user)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Balance int64 `json:"balance"`
	}{Balance: balance})
}

// --- circles ---

func (s *Server) handleCreateCircle(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Contribution    int64  `json:"contribution"`
		IsRandomQueue   bool   `json:"is_random_queue"`
		LateFeeBps      uint32 `json:"late_fee_bps"`
		InsuranceFeeBps uint32 `json:"insurance_fee_bps"`
		CycleDuration   string `json:"cycle_duration"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var cycleDuration time.Duration
	if req.CycleDuration != "" {
		cycleDuration, err = time.ParseDuration(req.CycleDuration)
		if err != nil {
			s.writeBadRequest(w, errInvalidBody)
			return
		}
	}
	id, err := s.cfg.Engine.CreateCircle(r.Context(), proof, req.Contribution, req.IsRandomQueue, engine.CircleOptions{
		LateFeeBps:      req.LateFeeBps,
		InsuranceFeeBps: req.InsuranceFeeBps,
		CycleDuration:   cycleDuration,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	metrics.CirclesCreatedTotal.Inc()
	s.writeJSON(w, http.StatusCreated, struct {
		ID uint64 `json:"id"`
	}{ID: id})
}

func (s *Server) handleGetCircle(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	c, err := s.cfg.Engine.GetCircle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, c)
}

func (s *Server) handleGetPayoutQueue(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	queue, err := s.cfg.Engine.GetPayoutQueue(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Queue []engine.Address `json:"queue"`
	}{Queue: queue})
}

func (s *Server) handleGetCycleInfo(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	info, err := s.cfg.Engine.GetCycleInfo(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, info)
}

func (s *Server) handleGetPayoutStatus(w http.ResponseWriter, r *http.Request) {
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	status, err := s.cfg.Engine.GetPayoutStatus(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Received []bool `json:"received"`
	}{Received: status})
}

// circleAction wraps the common pattern of a proof-authenticated action
// against a single circle.
func (s *Server) circleAction(w http.ResponseWriter, r *http.Request, fn func(proof engine.Proof, id uint64) error) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := fn(proof, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleJoinCircle(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.JoinCircle(r.Context(), proof, id)
	})
}

func (s *Server) handleFinalizeCircle(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.FinalizeCircle(r.Context(), proof, id)
	})
}

func (s *Server) handleContribute(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.Contribute(r.Context(), proof, id)
	})
}

func (s *Server) handleProcessPayout(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Recipient engine.Address `json:"recipient"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	c, err := s.cfg.Engine.GetCircle(r.Context(), id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	err = s.cfg.Engine.ProcessPayout(r.Context(), proof, id, req.Recipient)
	metrics.RecordPayout(c.Contribution, err)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleRolloverGroup(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.RolloverGroup(r.Context(), proof, id)
	})
}

func (s *Server) handleTriggerInsurance(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Member engine.Address `json:"member"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.TriggerInsuranceCoverage(r.Context(), proof, id, req.Member); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleKickMember(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Member  engine.Address `json:"member"`
		Penalty int64          `json:"penalty"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.KickMember(r.Context(), proof, id, req.Member, req.Penalty); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

// handleSwapMember swaps the exiting member named in the body for the caller.
// Both parties authenticate: the exiting member through the body, the caller
// through the usual headers.
func (s *Server) handleSwapMember(w http.ResponseWriter, r *http.Request) {
	newProof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		OldActor     engine.Address `json:"old_actor"`
		OldSignature string         `json:"old_signature"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if req.OldActor == "" {
		s.writeBadRequest(w, errMissingActor)
		return
	}
	oldProof := engine.Proof{Actor: req.OldActor}
	if req.OldSignature != "" {
		sig, err := hex.DecodeString(req.OldSignature)
		if err != nil {
			s.writeBadRequest(w, errInvalidSignature)
			return
		}
		oldProof.Signature = sig
	}
	if err := s.cfg.Engine.SwapMember(r.Context(), oldProof, newProof, id); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleSwapMemberByAdmin(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		OldMember engine.Address `json:"old_member"`
		NewMember engine.Address `json:"new_member"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.SwapMemberByAdmin(r.Context(), proof, id, req.OldMember, req.NewMember); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleEjectMember(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		Member engine.Address `json:"member"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.EjectMember(r.Context(), proof, id, req.Member); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleWithdrawProRata(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	amount, err := s.cfg.Engine.WithdrawProRata(r.Context(), proof, id)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct {
		Amount int64 `json:"amount"`
	}{Amount: amount})
}

// --- governance ---

func (s *Server) handleProposeDissolution(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.ProposeDissolution(r.Context(), proof, id)
	})
}

func (s *Server) handleVoteDissolve(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.VoteDissolve(r.Context(), proof, id)
	})
}

func (s *Server) handleProposePenaltyChange(w http.ResponseWriter, r *http.Request) {
	proof, err := proofFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	id, err := circleIDFromRequest(r)
	if err != nil {
		s.writeBadRequest(w, err)
		return
	}
	var req struct {
		LateFeeBps uint32 `json:"late_fee_bps"`
	}
	if err := decodeBody(r, &req); err != nil {
		s.writeBadRequest(w, err)
		return
	}
	if err := s.cfg.Engine.ProposePenaltyChange(r.Context(), proof, id, req.LateFeeBps); err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, struct{}{})
}

func (s *Server) handleVotePenaltyChange(w http.ResponseWriter, r *http.Request) {
	s.circleAction(w, r, func(proof engine.Proof, id uint64) error {
		return s.cfg.Engine.VotePenaltyChange(r.Context(), proof, id)
	})
}
