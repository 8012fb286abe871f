package service

import (
	"fmt"

	"github.com/noah-isme/dispatch-api/internal/models"
	"github.com/noah-isme/dispatch-api/pkg/geo"
)

func requestRef(req *models.ServiceRequest) *string {
	id := req.ID
	return &id
}

// RequestCreatedIntents fans a new request out to every matched worker.
// Re-running it for the same request yields the same dedup keys, so repeated writes are no-ops.
func RequestCreatedIntents(req models.ServiceRequest, matches []models.WorkerMatch) []models.NotificationIntent {
	intents := make([]models.NotificationIntent, 0, len(matches))
	for _, match := range matches {
		intents = append(intents, models.NotificationIntent{
			RecipientID: match.Worker.UserID,
			Event:       models.EventRequestCreated,
			Category:    models.NotificationCategoryRequest,
			Title:       "New service request nearby",
			Body:        fmt.Sprintf("%s requires attention.", req.Title),
			Data: models.JSONMap{
				"request_id":     req.ID,
				"reference_code": req.ReferenceCode,
				"distance_km":    geo.Round2(match.DistanceKm),
				"priority":       string(req.Priority),
			},
			ReferenceRequestID: requestRef(&req),
			OnConflict:         models.ConflictSkip,
		})
	}
	return intents
}

// RequestAcceptedIntent tells the customer who took the job. displayName falls back to the worker's email.
func RequestAcceptedIntent(req models.ServiceRequest, worker models.Actor, displayName string) models.NotificationIntent {
	if displayName == "" {
		displayName = worker.Email
	}
	return models.NotificationIntent{
		RecipientID: req.CustomerID,
		Event:       models.EventRequestAccepted,
		Category:    models.NotificationCategoryRequest,
		Title:       fmt.Sprintf("Request %s accepted", req.ReferenceCode),
		Body:        fmt.Sprintf("%s has accepted your request.", displayName),
		Data: models.JSONMap{
			"worker_id":    worker.UserID,
			"worker_email": worker.Email,
			"request_id":   req.ID,
		},
		ReferenceRequestID: requestRef(&req),
		OnConflict:         models.ConflictUpdate,
	}
}

// RequestCompletedIntent tells the customer the job is done.
func RequestCompletedIntent(req models.ServiceRequest, workerEmail string) models.NotificationIntent {
	return models.NotificationIntent{
		RecipientID: req.CustomerID,
		Event:       models.EventRequestCompleted,
		Category:    models.NotificationCategoryWorkflow,
		Title:       fmt.Sprintf("Request %s completed", req.ReferenceCode),
		Body:        "Your maintenance request has been marked as completed.",
		Data: models.JSONMap{
			"request_id":   req.ID,
			"worker_email": workerEmail,
		},
		ReferenceRequestID: requestRef(&req),
		OnConflict:         models.ConflictUpdate,
	}
}

// RequestCancelledIntents notifies the customer and the assigned worker, minus whoever cancelled.
func RequestCancelledIntents(req models.ServiceRequest, actor models.Actor) []models.NotificationIntent {
	recipients := make([]string, 0, 2)
	if req.CustomerID != actor.UserID {
		recipients = append(recipients, req.CustomerID)
	}
	if req.WorkerID != nil && *req.WorkerID != actor.UserID {
		recipients = append(recipients, *req.WorkerID)
	}
	intents := make([]models.NotificationIntent, 0, len(recipients))
	for _, recipient := range recipients {
		intents = append(intents, models.NotificationIntent{
			RecipientID: recipient,
			Event:       models.EventRequestCancelled,
			Category:    models.NotificationCategoryRequest,
			Title:       fmt.Sprintf("Request %s cancelled", req.ReferenceCode),
			Body:        fmt.Sprintf("The request was cancelled by %s.", actor.Email),
			Data: models.JSONMap{
				"request_id":   req.ID,
				"cancelled_by": actor.Email,
			},
			ReferenceRequestID: requestRef(&req),
			OnConflict:         models.ConflictUpdate,
		})
	}
	return intents
}
