package transport

import (
	"time"

	"github.com/google/uuid"
)

// EnqueueRunRequest asks for an asynchronous reconciliation run.
type EnqueueRunRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=200"`
}

// EnqueueRunResponse reports the queued task.
type EnqueueRunResponse struct {
	TaskID string `json:"taskId"`
	Status string `json:"status"`
}

// CampaignHealthResponse is the bounce-rate view of a campaign over the rolling window.
type CampaignHealthResponse struct {
	CampaignID     uuid.UUID `json:"campaignId"`
	Status         string    `json:"status"`
	Sent           int       `json:"sent"`
	Bounced        int       `json:"bounced"`
	BounceRate     float64   `json:"bounceRate"`
	Threshold      float64   `json:"threshold"`
	WindowStart    time.Time `json:"windowStart"`
	WindowEnd      time.Time `json:"windowEnd"`
	WouldAutoPause bool      `json:"wouldAutoPause"`
}
