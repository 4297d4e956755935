package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/rs/zerolog"

	"pingpay/internal/errs"
	"pingpay/internal/health"
	"pingpay/internal/interpreter"
	"pingpay/internal/lifecycle"
	"pingpay/internal/token"
)

// Server exposes the transfer lifecycle operations over JSON. Thin
// plumbing only: every rule lives in the lifecycle manager.
type Server struct {
	manager *lifecycle.Manager
	parser  interpreter.Parser
	logger  zerolog.Logger
}

func NewServer(manager *lifecycle.Manager, parser interpreter.Parser, logger zerolog.Logger) *Server {
	return &Server{manager: manager, parser: parser, logger: logger}
}

// Handler builds the route table.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", health.LivenessHandler)
	mux.HandleFunc("GET /readyz", health.ReadinessHandler)

	mux.HandleFunc("POST /api/transfers/parse", s.handleParse)
	mux.HandleFunc("POST /api/transfers/prepare", s.handlePrepare)
	mux.HandleFunc("POST /api/transfers/confirm", s.handleConfirm)
	mux.HandleFunc("POST /api/transfers/estimate", s.handleEstimate)
	mux.HandleFunc("GET /api/transfers/{id}", s.handleGetTransfer)
	mux.HandleFunc("GET /api/transfers/history/{sender}", s.handleHistory)

	mux.HandleFunc("GET /api/claims/{token}", s.handleGetClaim)
	mux.HandleFunc("POST /api/claims/{token}/verify", s.handleVerifyClaim)
	mux.HandleFunc("GET /api/claims/pending/{handle}", s.handlePendingClaims)
	mux.HandleFunc("POST /api/claims/withdraw", s.handleWithdraw)

	mux.HandleFunc("POST /api/wallets/create", s.handleCreateWallet)
	mux.HandleFunc("GET /api/wallets/handle/{handle}", s.handleGetWallet)
	mux.HandleFunc("GET /api/wallets/balance/{address}", s.handleGetBalance)
	mux.HandleFunc("GET /api/wallets/usdc-address", s.handleTokenAddress)

	return mux
}

func (s *Server) handleParse(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Command string `json:"command"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	parsed, err := s.parser.Parse(req.Command)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"parsed": parsed})
}

func (s *Server) handlePrepare(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Recipient     string `json:"recipient"`
		Amount        string `json:"amount"`
		SenderAddress string `json:"senderAddress"`
		SenderHandle  string `json:"senderHandle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	result, err := s.manager.Prepare(r.Context(), req.Recipient, req.Amount, req.SenderAddress, req.SenderHandle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfer": map[string]interface{}{
			"id":               result.Transfer.ID,
			"recipientAddress": result.Transfer.RecipientAddress,
			"recipient":        result.Transfer.RecipientHandle,
			"amount":           result.Transfer.Amount,
			"claimToken":       result.Transfer.ClaimToken,
			"gasEstimate":      result.FeeEstimate,
		},
	})
}

func (s *Server) handleConfirm(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TransferID string `json:"transferId"`
		TxHash     string `json:"txHash"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	result, err := s.manager.Confirm(r.Context(), req.TransferID, req.TxHash)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"transfer": map[string]interface{}{
			"id":          result.Transfer.ID,
			"status":      result.Transfer.Status,
			"txHash":      result.Transfer.TxHash,
			"blockNumber": result.Transfer.BlockNumber,
			"claimToken":  result.Transfer.ClaimToken,
			"explorerUrl": s.manager.ExplorerURL(result.Transfer.TxHash),
		},
		"notification": result.Delivery,
	})
}

func (s *Server) handleEstimate(w http.ResponseWriter, r *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"gasEstimate": s.manager.EstimateFee(r.Context()),
	})
}

func (s *Server) handleGetTransfer(w http.ResponseWriter, r *http.Request) {
	transfer, err := s.manager.GetTransfer(r.Context(), r.PathValue("id"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transfer": transfer})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.manager.ListBySender(r.Context(), r.PathValue("sender"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"transfers": transfers})
}

func (s *Server) handleGetClaim(w http.ResponseWriter, r *http.Request) {
	claim, err := s.manager.GetClaim(r.Context(), r.PathValue("token"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"claim": claim})
}

func (s *Server) handleVerifyClaim(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	result, err := s.manager.ClaimVerify(r.Context(), r.PathValue("token"), req.Handle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if result.NotYetAvailable {
		s.writeJSON(w, http.StatusOK, map[string]interface{}{
			"claimed": false,
			"status":  result.Transfer.Status,
		})
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"claimed":        result.Claimed,
		"alreadyClaimed": result.AlreadyClaimed,
		"claim": map[string]interface{}{
			"amount":    result.Transfer.Amount,
			"claimedAt": result.Transfer.ClaimedAt,
		},
		"wallet": map[string]interface{}{
			"address": result.WalletAddress,
			"balance": result.WalletBalance,
		},
	})
}

func (s *Server) handlePendingClaims(w http.ResponseWriter, r *http.Request) {
	transfers, err := s.manager.PendingClaims(r.Context(), r.PathValue("handle"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"pendingClaims": transfers})
}

func (s *Server) handleWithdraw(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle      string `json:"handle"`
		ToAddress   string `json:"toAddress"`
		Amount      string `json:"amount"`
		WithdrawAll bool   `json:"withdrawAll"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	result, err := s.manager.Withdraw(r.Context(), req.Handle, req.ToAddress, req.Amount, req.WithdrawAll)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *Server) handleCreateWallet(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Handle string `json:"handle"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, errs.Wrap(errs.Invalid, "malformed request body", err))
		return
	}
	wallet, err := s.manager.CreateWallet(r.Context(), req.Handle)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, wallet)
}

func (s *Server) handleTokenAddress(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]interface{}{
		"address":  s.manager.TokenAddress(),
		"decimals": token.Decimals,
	})
}

func (s *Server) handleGetWallet(w http.ResponseWriter, r *http.Request) {
	wallet, err := s.manager.GetWallet(r.Context(), r.PathValue("handle"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"wallet": wallet})
}

func (s *Server) handleGetBalance(w http.ResponseWriter, r *http.Request) {
	balance, err := s.manager.GetBalance(r.Context(), r.PathValue("address"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]interface{}{"balance": balance})
}

func (s *Server) writeJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error().Err(err).Msg("Failed to encode response")
	}
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	kind := errs.KindOf(err)
	code := http.StatusInternalServerError
	switch kind {
	case errs.NotFound:
		code = http.StatusNotFound
	case errs.HandleMismatch:
		code = http.StatusForbidden
	case errs.InvalidStateTransition:
		code = http.StatusConflict
	case errs.Invalid, errs.Unparsable, errs.InsufficientFunds, errs.InsufficientGas,
		errs.TransactionNotFound, errs.AmountMismatch, errs.ChainExecutionFailed:
		code = http.StatusBadRequest
	case errs.TransactionTimeout:
		code = http.StatusGatewayTimeout
	}

	if code == http.StatusInternalServerError {
		s.logger.Error().Err(err).Msg("Request failed")
	}

	var e *errs.Error
	detail := err.Error()
	if errors.As(err, &e) {
		detail = e.Detail
	}
	s.writeJSON(w, code, map[string]interface{}{
		"error": detail,
		"kind":  string(kind),
	})
}
