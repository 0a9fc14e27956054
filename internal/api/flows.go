package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"carma/internal/domain"
	"carma/internal/wallet"

	"github.com/gorilla/mux"
)

func (s *HTTPServer) handleListCars(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Cars.ListCars())
}

func (s *HTTPServer) handleGetCar(w http.ResponseWriter, r *http.Request) {
	car, err := s.svc.Cars.GetCar(mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, car)
}

func (s *HTTPServer) handleStatement(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.svc.Verification.Statement())
}

func (s *HTTPServer) handleStartVerification(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Account string `json:"account"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.svc.Verification.Start(r.Context(), body.Account)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session)
}

func (s *HTTPServer) handleVerificationStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Verification.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleCancelVerification(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Verification.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleStartCheckout(w http.ResponseWriter, r *http.Request) {
	var req domain.CheckoutRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	session, err := s.svc.Checkout.Start(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusAccepted, session)
}

func (s *HTTPServer) handleCheckoutStatus(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Checkout.Status(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

func (s *HTTPServer) handleCancelCheckout(w http.ResponseWriter, r *http.Request) {
	session, err := s.svc.Checkout.Cancel(r.Context(), mux.Vars(r)["id"])
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, session)
}

// handleWalletRequests lists what the wallet bridge should prompt the user for.
func (s *HTTPServer) handleWalletRequests(w http.ResponseWriter, r *http.Request) {
	account := strings.TrimSpace(r.URL.Query().Get("account"))
	if account == "" {
		s.writeServiceError(w, r, wallet.ErrNoAccount)
		return
	}
	writeJSON(w, http.StatusOK, s.svc.Wallet.Pending(account))
}

type walletAnswer struct {
	Account  string `json:"account"`
	Result   any    `json:"result"`
	Rejected bool   `json:"rejected"`
	Reason   string `json:"reason"`
}

// handleWalletAnswer resolves a pending request with the wallet's result, or
// rejects it when the user declined in the wallet.
func (s *HTTPServer) handleWalletAnswer(w http.ResponseWriter, r *http.Request) {
	var body walletAnswer
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	account := strings.TrimSpace(body.Account)
	if account == "" {
		s.writeServiceError(w, r, wallet.ErrNoAccount)
		return
	}

	id := mux.Vars(r)["id"]
	var err error
	if body.Rejected {
		err = s.svc.Wallet.Reject(id, account, strings.TrimSpace(body.Reason))
	} else {
		err = s.svc.Wallet.Resolve(id, account, body.Result)
	}
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "id": id})
}
