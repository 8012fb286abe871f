package models

import "time"

// RequestActivity is an append-only log line on a request.
type RequestActivity struct {
	ID               string    `db:"id" json:"id"`
	ServiceRequestID string    `db:"service_request_id" json:"service_request_id"`
	ActorID          *string   `db:"actor_id" json:"actor_id,omitempty"`
	ActorEmail       *string   `db:"actor_email" json:"actor_email,omitempty"`
	Message          string    `db:"message" json:"message"`
	CreatedAt        time.Time `db:"created_at" json:"created_at"`
}
