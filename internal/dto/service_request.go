package dto

import (
	"time"

	"github.com/noah-isme/dispatch-api/internal/models"
)

// CreateServiceRequest is the customer payload for a new job.
type CreateServiceRequest struct {
	Title                    string                 `json:"title" validate:"required,max=140"`
	Description              string                 `json:"description" validate:"required"`
	CategoryID               *string                `json:"category_id"`
	Priority                 models.RequestPriority `json:"priority" validate:"omitempty,oneof=STANDARD EMERGENCY"`
	Latitude                 *float64               `json:"location_latitude" validate:"required,gte=-90,lte=90"`
	Longitude                *float64               `json:"location_longitude" validate:"required,gte=-180,lte=180"`
	Address                  string                 `json:"address" validate:"max=255"`
	Postcode                 string                 `json:"postcode" validate:"max=20"`
	ScheduledStart           *time.Time             `json:"scheduled_start"`
	CustomerNotes            string                 `json:"customer_notes"`
	EstimatedDurationMinutes *int                   `json:"estimated_duration_minutes" validate:"omitempty,min=1"`
}

// TransitionRequest carries the optional note appended to the activity message.
type TransitionRequest struct {
	Notes string `json:"notes"`
}

// DeclineRequest is a worker's reason for skipping a job.
type DeclineRequest struct {
	Reason string `json:"reason" validate:"max=255"`
}

// DeclineResponse acknowledges a decline.
type DeclineResponse struct {
	Detail  string `json:"detail"`
	Message string `json:"message"`
}

// Location update statuses.
const (
	LocationOnTheWay = "on_the_way"
	LocationArrived  = "arrived"
)

// LocationUpdateRequest is a worker position report for an assigned job.
type LocationUpdateRequest struct {
	Latitude  *float64 `json:"latitude" validate:"required,gte=-90,lte=90"`
	Longitude *float64 `json:"longitude" validate:"required,gte=-180,lte=180"`
	Status    string   `json:"status" validate:"omitempty,oneof=on_the_way arrived"`
}

// RequestListQuery filters GET /requests.
type RequestListQuery struct {
	Status   []models.RequestStatus
	Priority models.RequestPriority
	Page     int
	PageSize int
}

// JobView is a request annotated with its distance from the viewer.
type JobView struct {
	models.ServiceRequest
	DistanceKm *float64 `json:"distance_km,omitempty"`
}

// DeclinedJobView is a declined request with the decline details.
type DeclinedJobView struct {
	models.ServiceRequest
	DeclineReason string    `json:"decline_reason"`
	DeclinedAt    time.Time `json:"declined_at"`
}

// NearbyJobsQuery searches pending jobs around an explicit origin.
type NearbyJobsQuery struct {
	Latitude      *float64 `form:"lat" validate:"required,gte=-90,lte=90"`
	Longitude     *float64 `form:"lng" validate:"required,gte=-180,lte=180"`
	MaxDistanceKm *float64 `form:"max_distance_km" validate:"omitempty,gt=0"`
	CategoryID    *string  `form:"category_id"`
}

// TrackedLocation is the assigned worker's last reported position.
type TrackedLocation struct {
	Latitude    float64    `json:"latitude"`
	Longitude   float64    `json:"longitude"`
	LastUpdated *time.Time `json:"last_updated"`
}

// RequestLocation is where the job takes place.
type RequestLocation struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
	Address   string  `json:"address"`
}

// TrackedWorker identifies the assigned worker.
type TrackedWorker struct {
	ID       string `json:"id"`
	Email    string `json:"email"`
	FullName string `json:"full_name"`
}

// TrackingResponse shows where the assigned worker is relative to the job.
type TrackingResponse struct {
	Worker          TrackedWorker        `json:"worker"`
	Location        *TrackedLocation     `json:"location"`
	DistanceKm      *float64             `json:"distance_km"`
	Status          models.RequestStatus `json:"status"`
	RequestLocation *RequestLocation     `json:"request_location,omitempty"`
}
