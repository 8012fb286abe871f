package dto

import "github.com/noah-isme/dispatch-api/internal/models"

// AvailabilityRequest updates a worker's dispatch profile. Going available requires coordinates.
type AvailabilityRequest struct {
	IsAvailable     *bool    `json:"is_available" validate:"required"`
	Latitude        *float64 `json:"current_latitude" validate:"omitempty,gte=-90,lte=90"`
	Longitude       *float64 `json:"current_longitude" validate:"omitempty,gte=-180,lte=180"`
	ServiceRadiusKm *int     `json:"service_radius_km" validate:"omitempty,min=1"`
	Skills          *string  `json:"skills"`
	CategoryID      *string  `json:"category_id"`
	ClearCategory   bool     `json:"clear_category"`
}

// WorkerSearchQuery filters GET /customer/workers/search.
type WorkerSearchQuery struct {
	CategoryID    *string  `form:"category_id"`
	MinRating     *float64 `form:"min_rating" validate:"omitempty,gte=0,lte=5"`
	Latitude      *float64 `form:"lat" validate:"omitempty,gte=-90,lte=90"`
	Longitude     *float64 `form:"lng" validate:"omitempty,gte=-180,lte=180"`
	MaxDistanceKm *float64 `form:"max_distance_km" validate:"omitempty,gt=0"`
}

// WorkerSearchResult is a worker profile annotated with its distance from the search origin.
type WorkerSearchResult struct {
	models.WorkerProfile
	DistanceKm *float64 `json:"distance_km,omitempty"`
}
