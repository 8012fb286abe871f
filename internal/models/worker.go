package models

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/dispatch-api/pkg/geo"
)

// DefaultServiceRadiusKm applies to profiles created without a radius.
const DefaultServiceRadiusKm = 20

// WorkerProfile is a worker's dispatch profile joined with their account.
type WorkerProfile struct {
	UserID             string              `db:"user_id" json:"user_id"`
	Email              string              `db:"email" json:"email"`
	FullName           string              `db:"full_name" json:"full_name"`
	Active             bool                `db:"is_active" json:"-"`
	Skills             string              `db:"skills" json:"skills"`
	Available          bool                `db:"is_available" json:"is_available"`
	ServiceRadiusKm    int                 `db:"service_radius_km" json:"service_radius_km"`
	CurrentLatitude    decimal.NullDecimal `db:"current_latitude" json:"current_latitude"`
	CurrentLongitude   decimal.NullDecimal `db:"current_longitude" json:"current_longitude"`
	LocationUpdatedAt  *time.Time          `db:"location_updated_at" json:"location_updated_at,omitempty"`
	LastAvailableAt    *time.Time          `db:"last_available_at" json:"last_available_at,omitempty"`
	AverageRating      decimal.Decimal     `db:"average_rating" json:"average_rating"`
	TotalCompletedJobs int                 `db:"total_completed_jobs" json:"total_completed_jobs"`
	CategoryID         *string             `db:"category_id" json:"category_id,omitempty"`
}

// Location returns the worker's last known position, false when either coordinate is missing.
func (w *WorkerProfile) Location() (geo.Point, bool) {
	if !w.CurrentLatitude.Valid || !w.CurrentLongitude.Valid {
		return geo.Point{}, false
	}
	lat, _ := w.CurrentLatitude.Decimal.Float64()
	lon, _ := w.CurrentLongitude.Decimal.Float64()
	return geo.Point{Lat: lat, Lon: lon}, true
}

// WorkerMatch is an eligible worker with their distance to a job.
type WorkerMatch struct {
	Worker     WorkerProfile
	DistanceKm float64
}

// WorkerCandidateFilter narrows the pool loaded from storage before the in-process filter runs.
type WorkerCandidateFilter struct {
	AvailableOnly bool
	LocatedOnly   bool
	CategoryID    *string
	MinRating     *decimal.Decimal
	Limit         int
}

// WorkerAvailabilityUpdate carries the mutable parts of a profile.
type WorkerAvailabilityUpdate struct {
	UserID          string
	Available       bool
	Latitude        *decimal.Decimal
	Longitude       *decimal.Decimal
	ServiceRadiusKm *int
	Skills          *string
	CategoryID      *string
	SetCategory     bool
	At              time.Time
}
