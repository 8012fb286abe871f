package models

import "time"

// WorkerJobDecline records that a worker does not want a request. (worker_id, service_request_id) is unique.
type WorkerJobDecline struct {
	ID               string    `db:"id" json:"id"`
	WorkerID         string    `db:"worker_id" json:"worker_id"`
	ServiceRequestID string    `db:"service_request_id" json:"service_request_id"`
	Reason           string    `db:"reason" json:"reason"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}

// DeclinedJob is a request the worker declined, with the decline details.
type DeclinedJob struct {
	ServiceRequest
	DeclineReason string    `db:"decline_reason" json:"decline_reason"`
	DeclinedAt    time.Time `db:"declined_at" json:"declined_at"`
}
