package dto

import "github.com/repledger/backend/internal/models"

type AuthResponse struct {
	Token   string         `json:"token"`
	Session models.Session `json:"session"`
}

type ErrorResponse struct {
	Error     string `json:"error"`
	RequestID string `json:"request_id,omitempty"`
	Retryable bool   `json:"retryable,omitempty"`
}

type SuccessResponse struct {
	OK   bool `json:"ok"`
	Data any  `json:"data,omitempty"`
}

type ProofPayloadResponse struct {
	Payload string `json:"payload"`
}

type HistoryResponse struct {
	Wallet  string                 `json:"wallet"`
	Entries []models.ActivityEntry `json:"entries"`
}

type ReputationResponse struct {
	Wallet string `json:"wallet"`
	Score  int64  `json:"score"`
}
