package kpirewardd

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"

	"auxrewards/crypto"
	"auxrewards/native/kpireward"
)

type claimPayload struct {
	Founder   string `json:"founder"`
	Amount    uint64 `json:"amount"`
	KpiType   uint8  `json:"kpiType"`
	Timestamp int64  `json:"timestamp"`
	Signature string `json:"signature"`
}

func (p claimPayload) toRequest() (kpireward.ClaimRequest, error) {
	founder, err := crypto.ParseIdentity(p.Founder)
	if err != nil {
		return kpireward.ClaimRequest{}, fmt.Errorf("founder: %w", err)
	}
	if strings.TrimSpace(p.Signature) == "" {
		return kpireward.ClaimRequest{}, fmt.Errorf("signature required")
	}
	sig, err := crypto.ParseSignature(p.Signature)
	if err != nil {
		return kpireward.ClaimRequest{}, fmt.Errorf("signature: %w", err)
	}
	return kpireward.ClaimRequest{
		Founder:   founder,
		Amount:    p.Amount,
		KpiType:   p.KpiType,
		Timestamp: p.Timestamp,
		Signature: sig,
	}, nil
}

type batchPayload struct {
	Claims []claimPayload `json:"claims"`
}

type batchItem struct {
	Index int                      `json:"index"`
	Event *kpireward.IssuanceEvent `json:"event,omitempty"`
	Error *errorResponse           `json:"error,omitempty"`
}

type founderResponse struct {
	Founder        string                `json:"founder"`
	State          kpireward.RewardState `json:"state"`
	RemainingDaily uint64                `json:"remainingDaily"`
}

type statusResponse struct {
	Paused          bool                   `json:"paused"`
	Program         kpireward.ProgramState `json:"program"`
	PendingPartials int                    `json:"pendingPartials"`
	MaxRewardAmount uint64                 `json:"maxRewardAmount"`
	MaxDailyRewards uint64                 `json:"maxDailyRewards"`
	MaxClaimAgeSecs int64                  `json:"maxClaimAgeSeconds"`
	BurnDivisor     uint64                 `json:"burnDivisor"`
}

type errorResponse struct {
	Code      string `json:"code"`
	Error     string `json:"error"`
	Retryable bool   `json:"retryable"`
	RecordID  string `json:"recordId,omitempty"`
}

// classify maps an issuance error to its HTTP status and response body.
func classify(err error) (int, errorResponse) {
	resp := errorResponse{
		Code:      kpireward.ErrorCode(err),
		Error:     err.Error(),
		Retryable: kpireward.IsRetryable(err),
	}
	var partial *kpireward.PartialIssuanceError
	if errors.As(err, &partial) {
		resp.RecordID = partial.Record.ID
		return http.StatusInternalServerError, resp
	}
	switch {
	case errors.Is(err, kpireward.ErrInvalidSignature):
		return http.StatusUnauthorized, resp
	case errors.Is(err, kpireward.ErrExcessiveReward), errors.Is(err, kpireward.ErrStaleData):
		return http.StatusUnprocessableEntity, resp
	case errors.Is(err, kpireward.ErrDailyLimitExceeded):
		return http.StatusTooManyRequests, resp
	case errors.Is(err, kpireward.ErrClaimReplayed):
		return http.StatusConflict, resp
	case errors.Is(err, kpireward.ErrInvalidFounder):
		return http.StatusBadRequest, resp
	case errors.Is(err, kpireward.ErrModulePaused):
		return http.StatusServiceUnavailable, resp
	case errors.Is(err, kpireward.ErrMintFailed):
		return http.StatusBadGateway, resp
	default:
		return http.StatusInternalServerError, resp
	}
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, body errorResponse) {
	writeJSON(w, status, body)
}

func badRequest(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, errorResponse{Code: "invalid_request", Error: err.Error()})
}
