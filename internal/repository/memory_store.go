package repository

import (
	"context"
	"database/sql"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/dispatch-api/internal/models"
)

// MemoryStore keeps every dispatch table in process. It mirrors the Postgres repositories,
// including row locks with a wait bound, and backs local runs and concurrency tests.
type MemoryStore struct {
	mu          sync.RWMutex
	lockTimeout time.Duration

	users         map[string]models.User
	categories    map[string]models.ServiceCategory
	workers       map[string]models.WorkerProfile
	requests      map[string]models.ServiceRequest
	activities    []models.RequestActivity
	declines      map[string]models.WorkerJobDecline
	notifications []models.Notification

	locksMu  sync.Mutex
	rowLocks map[string]chan struct{}
}

// NewMemoryStore constructs an empty store. lockTimeout bounds how long a transition waits for a row.
func NewMemoryStore(lockTimeout time.Duration) *MemoryStore {
	return &MemoryStore{
		lockTimeout: lockTimeout,
		users:       make(map[string]models.User),
		categories:  make(map[string]models.ServiceCategory),
		workers:     make(map[string]models.WorkerProfile),
		requests:    make(map[string]models.ServiceRequest),
		declines:    make(map[string]models.WorkerJobDecline),
		rowLocks:    make(map[string]chan struct{}),
	}
}

// PutUser inserts or replaces an account.
func (s *MemoryStore) PutUser(user models.User) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	s.users[user.ID] = user
	if profile, ok := s.workers[user.ID]; ok {
		profile.Email, profile.FullName, profile.Active = user.Email, user.FullName, user.Active
		s.workers[user.ID] = profile
	}
}

// PutWorker inserts or replaces a worker profile. Account fields are taken from the user when present.
func (s *MemoryStore) PutWorker(profile models.WorkerProfile) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if user, ok := s.users[profile.UserID]; ok {
		profile.Email, profile.FullName, profile.Active = user.Email, user.FullName, user.Active
	}
	if profile.ServiceRadiusKm <= 0 {
		profile.ServiceRadiusKm = models.DefaultServiceRadiusKm
	}
	s.workers[profile.UserID] = profile
}

// PutCategory inserts or replaces a category.
func (s *MemoryStore) PutCategory(category models.ServiceCategory) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if category.ID == "" {
		category.ID = uuid.NewString()
	}
	s.categories[category.ID] = category
}

// Requests exposes the service request table.
func (s *MemoryStore) Requests() *MemoryRequests { return &MemoryRequests{s: s} }

// Workers exposes the worker profile table.
func (s *MemoryStore) Workers() *MemoryWorkers { return &MemoryWorkers{s: s} }

// Declines exposes the decline table.
func (s *MemoryStore) Declines() *MemoryDeclines { return &MemoryDeclines{s: s} }

// Notifications exposes the notification table.
func (s *MemoryStore) Notifications() *MemoryNotifications { return &MemoryNotifications{s: s} }

// Categories exposes the category table.
func (s *MemoryStore) Categories() *MemoryCategories { return &MemoryCategories{s: s} }

func (s *MemoryStore) lockRow(ctx context.Context, id string) (func(), error) {
	s.locksMu.Lock()
	ch, ok := s.rowLocks[id]
	if !ok {
		ch = make(chan struct{}, 1)
		s.rowLocks[id] = ch
	}
	s.locksMu.Unlock()

	var timeout <-chan time.Time
	if s.lockTimeout > 0 {
		timer := time.NewTimer(s.lockTimeout)
		defer timer.Stop()
		timeout = timer.C
	}
	select {
	case ch <- struct{}{}:
		return func() { <-ch }, nil
	case <-timeout:
		return nil, fmt.Errorf("lock service request %s: %w", id, ErrLockTimeout)
	case <-ctx.Done():
		return nil, fmt.Errorf("lock service request %s: %w: %v", id, ErrLockTimeout, ctx.Err())
	}
}

// writeNotificationsLocked applies the same conflict rules as the notifications unique key:
// rows without a reference request never conflict.
func (s *MemoryStore) writeNotificationsLocked(intents []models.NotificationIntent, at time.Time) {
	for _, intent := range intents {
		data := intent.Data
		if data == nil {
			data = models.JSONMap{}
		}
		idx := -1
		if ref := intent.ReferenceRequestID; ref != nil {
			for i := range s.notifications {
				n := s.notifications[i]
				if n.ReferenceRequestID != nil && *n.ReferenceRequestID == *ref &&
					n.RecipientID == intent.RecipientID && n.Event == intent.Event {
					idx = i
					break
				}
			}
		}
		if idx >= 0 {
			if intent.OnConflict != models.ConflictUpdate {
				continue
			}
			n := &s.notifications[idx]
			n.Category, n.Title, n.Body, n.Data = intent.Category, intent.Title, intent.Body, data
			n.IsRead, n.ReadAt, n.CreatedAt = false, nil, at
			continue
		}
		s.notifications = append(s.notifications, models.Notification{
			ID:                 uuid.NewString(),
			RecipientID:        intent.RecipientID,
			Category:           intent.Category,
			Event:              intent.Event,
			Title:              intent.Title,
			Body:               intent.Body,
			Data:               data,
			ReferenceRequestID: intent.ReferenceRequestID,
			CreatedAt:          at,
		})
	}
}

func (s *MemoryStore) appendActivityLocked(activity *models.RequestActivity, at time.Time) {
	if activity.ID == "" {
		activity.ID = uuid.NewString()
	}
	if activity.CreatedAt.IsZero() {
		activity.CreatedAt = at
	}
	s.activities = append(s.activities, *activity)
}

// MemoryRequests is the in-process counterpart of ServiceRequestRepository.
type MemoryRequests struct{ s *MemoryStore }

// Create stores the request with its activity and notifications atomically.
func (r *MemoryRequests) Create(_ context.Context, req *models.ServiceRequest, activity *models.RequestActivity, intents []models.NotificationIntent) error {
	s := r.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if req.ID == "" {
		req.ID = uuid.NewString()
	}
	if _, exists := s.requests[req.ID]; exists {
		return fmt.Errorf("insert service request %s: duplicate id", req.ID)
	}
	for _, existing := range s.requests {
		if existing.ReferenceCode == req.ReferenceCode {
			return fmt.Errorf("insert service request: duplicate reference code %s", req.ReferenceCode)
		}
	}
	if req.CreatedAt.IsZero() {
		req.CreatedAt = time.Now().UTC()
	}
	req.UpdatedAt = req.CreatedAt
	s.requests[req.ID] = *req
	if activity != nil {
		s.appendActivityLocked(activity, req.CreatedAt)
	}
	s.writeNotificationsLocked(intents, req.CreatedAt)
	return nil
}

// GetByID returns a copy of the request or sql.ErrNoRows.
func (r *MemoryRequests) GetByID(_ context.Context, id string) (*models.ServiceRequest, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	req, ok := r.s.requests[id]
	if !ok {
		return nil, fmt.Errorf("get service request %s: %w", id, sql.ErrNoRows)
	}
	return &req, nil
}

// List filters and orders like the SQL query builder.
func (r *MemoryRequests) List(_ context.Context, filter models.ServiceRequestFilter) ([]models.ServiceRequest, error) {
	r.s.mu.RLock()
	items := make([]models.ServiceRequest, 0, len(r.s.requests))
	for _, req := range r.s.requests {
		if matchesRequestFilter(req, filter) {
			items = append(items, req)
		}
	}
	r.s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		switch filter.Order {
		case models.OrderOldest:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.Before(b.CreatedAt)
			}
		case models.OrderRecentlyCompleted:
			switch {
			case a.CompletedAt != nil && b.CompletedAt == nil:
				return true
			case a.CompletedAt == nil && b.CompletedAt != nil:
				return false
			case a.CompletedAt != nil && !a.CompletedAt.Equal(*b.CompletedAt):
				return a.CompletedAt.After(*b.CompletedAt)
			}
		default:
			if !a.CreatedAt.Equal(b.CreatedAt) {
				return a.CreatedAt.After(b.CreatedAt)
			}
		}
		return a.ID < b.ID
	})

	if filter.Limit > 0 {
		limit := filter.Limit
		if limit > 500 {
			limit = 500
		}
		offset := filter.Offset
		if offset < 0 {
			offset = 0
		}
		if offset >= len(items) {
			return []models.ServiceRequest{}, nil
		}
		end := offset + limit
		if end > len(items) {
			end = len(items)
		}
		items = items[offset:end]
	}
	return items, nil
}

// Count returns how many requests match the filter.
func (r *MemoryRequests) Count(_ context.Context, filter models.ServiceRequestFilter) (int, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	total := 0
	for _, req := range r.s.requests {
		if matchesRequestFilter(req, filter) {
			total++
		}
	}
	return total, nil
}

func matchesRequestFilter(req models.ServiceRequest, filter models.ServiceRequestFilter) bool {
	if filter.CustomerID != "" && req.CustomerID != filter.CustomerID {
		return false
	}
	if filter.WorkerID != "" && !req.AssignedTo(filter.WorkerID) {
		return false
	}
	if len(filter.Statuses) > 0 {
		found := false
		for _, status := range filter.Statuses {
			if req.Status == status {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.Priority != "" && req.Priority != filter.Priority {
		return false
	}
	if filter.CategoryID != nil && (req.CategoryID == nil || *req.CategoryID != *filter.CategoryID) {
		return false
	}
	if scope := filter.WorkerScope; scope != nil && req.CategoryID != nil {
		if scope.CategoryID == nil || *scope.CategoryID != *req.CategoryID {
			return false
		}
	}
	for _, id := range filter.ExcludeIDs {
		if req.ID == id {
			return false
		}
	}
	return true
}

// Transition holds the row lock for the duration of fn and the write.
func (r *MemoryRequests) Transition(ctx context.Context, id string, fn TransitionFunc) (*models.ServiceRequest, error) {
	s := r.s
	unlock, err := s.lockRow(ctx, id)
	if err != nil {
		return nil, err
	}
	defer unlock()

	s.mu.RLock()
	current, ok := s.requests[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("lock service request %s: %w", id, sql.ErrNoRows)
	}

	snapshot := current
	plan, err := fn(&snapshot)
	if err != nil {
		return nil, err
	}
	if plan == nil || plan.Next == nil {
		return &current, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if stored := s.requests[id]; stored.Status != current.Status {
		return nil, ErrStaleState
	}
	next := *plan.Next
	if next.UpdatedAt.IsZero() || !next.UpdatedAt.After(current.UpdatedAt) {
		next.UpdatedAt = time.Now().UTC()
	}
	// Only the columns the SQL UPDATE touches may change.
	updated := current
	updated.Status = next.Status
	updated.WorkerID = next.WorkerID
	updated.AcceptedAt = next.AcceptedAt
	updated.CompletedAt = next.CompletedAt
	updated.CancelledAt = next.CancelledAt
	updated.AdminNotes = next.AdminNotes
	updated.UpdatedAt = next.UpdatedAt
	s.requests[id] = updated

	for _, activity := range plan.activities() {
		s.appendActivityLocked(activity, updated.UpdatedAt)
	}
	s.writeNotificationsLocked(plan.Notifications, updated.UpdatedAt)
	if plan.IncrementCompletedFor != "" {
		if profile, ok := s.workers[plan.IncrementCompletedFor]; ok {
			profile.TotalCompletedJobs++
			s.workers[plan.IncrementCompletedFor] = profile
		}
	}
	return &updated, nil
}

// AppendActivity writes a standalone activity row.
func (r *MemoryRequests) AppendActivity(_ context.Context, activity *models.RequestActivity) error {
	r.s.mu.Lock()
	defer r.s.mu.Unlock()
	if _, ok := r.s.requests[activity.ServiceRequestID]; !ok {
		return fmt.Errorf("insert request activity: %w", sql.ErrNoRows)
	}
	r.s.appendActivityLocked(activity, time.Now().UTC())
	return nil
}

// ListActivities returns the log oldest first with actor emails resolved.
func (r *MemoryRequests) ListActivities(_ context.Context, requestID string) ([]models.RequestActivity, error) {
	r.s.mu.RLock()
	defer r.s.mu.RUnlock()
	items := make([]models.RequestActivity, 0)
	for _, activity := range r.s.activities {
		if activity.ServiceRequestID != requestID {
			continue
		}
		if activity.ActorID != nil {
			if user, ok := r.s.users[*activity.ActorID]; ok {
				email := user.Email
				activity.ActorEmail = &email
			}
		}
		items = append(items, activity)
	}
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.Before(items[j].CreatedAt) })
	return items, nil
}

// MemoryWorkers is the in-process counterpart of WorkerRepository.
type MemoryWorkers struct{ s *MemoryStore }

// GetByUserID returns a copy of the profile or sql.ErrNoRows.
func (w *MemoryWorkers) GetByUserID(_ context.Context, userID string) (*models.WorkerProfile, error) {
	w.s.mu.RLock()
	defer w.s.mu.RUnlock()
	profile, ok := w.s.workers[userID]
	if !ok {
		return nil, fmt.Errorf("get worker profile %s: %w", userID, sql.ErrNoRows)
	}
	return &profile, nil
}

// ListCandidates applies the same filter and ordering as the SQL query.
func (w *MemoryWorkers) ListCandidates(_ context.Context, filter models.WorkerCandidateFilter) ([]models.WorkerProfile, error) {
	w.s.mu.RLock()
	items := make([]models.WorkerProfile, 0, len(w.s.workers))
	for _, profile := range w.s.workers {
		if !profile.Active {
			continue
		}
		if filter.AvailableOnly && !profile.Available {
			continue
		}
		if filter.LocatedOnly {
			if _, ok := profile.Location(); !ok {
				continue
			}
		}
		if filter.CategoryID != nil && (profile.CategoryID == nil || *profile.CategoryID != *filter.CategoryID) {
			continue
		}
		if filter.MinRating != nil && profile.AverageRating.LessThan(*filter.MinRating) {
			continue
		}
		items = append(items, profile)
	}
	w.s.mu.RUnlock()

	sort.Slice(items, func(i, j int) bool {
		a, b := items[i], items[j]
		if !a.AverageRating.Equal(b.AverageRating) {
			return a.AverageRating.GreaterThan(b.AverageRating)
		}
		if a.TotalCompletedJobs != b.TotalCompletedJobs {
			return a.TotalCompletedJobs > b.TotalCompletedJobs
		}
		return a.UserID < b.UserID
	})
	if filter.Limit > 0 && len(items) > filter.Limit {
		items = items[:filter.Limit]
	}
	return items, nil
}

// UpdateAvailability writes the mutable profile fields.
func (w *MemoryWorkers) UpdateAvailability(_ context.Context, update models.WorkerAvailabilityUpdate) (*models.WorkerProfile, error) {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	profile, ok := w.s.workers[update.UserID]
	if !ok {
		return nil, fmt.Errorf("update worker availability %s: %w", update.UserID, sql.ErrNoRows)
	}
	profile.Available = update.Available
	if update.Available {
		at := update.At
		profile.LastAvailableAt = &at
	}
	if update.Latitude != nil && update.Longitude != nil {
		profile.CurrentLatitude = decimal.NewNullDecimal(*update.Latitude)
		profile.CurrentLongitude = decimal.NewNullDecimal(*update.Longitude)
		at := update.At
		profile.LocationUpdatedAt = &at
	}
	if update.ServiceRadiusKm != nil {
		profile.ServiceRadiusKm = *update.ServiceRadiusKm
	}
	if update.Skills != nil {
		profile.Skills = *update.Skills
	}
	if update.SetCategory {
		profile.CategoryID = update.CategoryID
	}
	w.s.workers[update.UserID] = profile
	return &profile, nil
}

// UpdateLocation records a position report.
func (w *MemoryWorkers) UpdateLocation(_ context.Context, userID string, lat, lon decimal.Decimal, at time.Time) error {
	w.s.mu.Lock()
	defer w.s.mu.Unlock()
	profile, ok := w.s.workers[userID]
	if !ok {
		return fmt.Errorf("update worker location %s: %w", userID, sql.ErrNoRows)
	}
	profile.CurrentLatitude = decimal.NewNullDecimal(lat)
	profile.CurrentLongitude = decimal.NewNullDecimal(lon)
	profile.LocationUpdatedAt = &at
	w.s.workers[userID] = profile
	return nil
}

// MemoryDeclines is the in-process counterpart of DeclineRepository.
type MemoryDeclines struct{ s *MemoryStore }

func declineKey(workerID, requestID string) string { return workerID + "|" + requestID }

// Upsert records a decline and its activity.
func (d *MemoryDeclines) Upsert(_ context.Context, decline *models.WorkerJobDecline, activity *models.RequestActivity) error {
	s := d.s
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.requests[decline.ServiceRequestID]; !ok {
		return fmt.Errorf("upsert decline: %w", sql.ErrNoRows)
	}
	key := declineKey(decline.WorkerID, decline.ServiceRequestID)
	if existing, ok := s.declines[key]; ok {
		existing.Reason = decline.Reason
		s.declines[key] = existing
		*decline = existing
	} else {
		if decline.ID == "" {
			decline.ID = uuid.NewString()
		}
		if decline.CreatedAt.IsZero() {
			decline.CreatedAt = time.Now().UTC()
		}
		s.declines[key] = *decline
	}
	if activity != nil {
		s.appendActivityLocked(activity, time.Now().UTC())
	}
	return nil
}

// WorkerIDsForRequest returns the workers that declined a request.
func (d *MemoryDeclines) WorkerIDsForRequest(_ context.Context, requestID string) ([]string, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	ids := make([]string, 0)
	for _, decline := range d.s.declines {
		if decline.ServiceRequestID == requestID {
			ids = append(ids, decline.WorkerID)
		}
	}
	return ids, nil
}

// RequestIDsForWorker returns the requests a worker declined.
func (d *MemoryDeclines) RequestIDsForWorker(_ context.Context, workerID string) ([]string, error) {
	d.s.mu.RLock()
	defer d.s.mu.RUnlock()
	ids := make([]string, 0)
	for _, decline := range d.s.declines {
		if decline.WorkerID == workerID {
			ids = append(ids, decline.ServiceRequestID)
		}
	}
	return ids, nil
}

// ListDeclinedJobs returns the declined requests most recent decline first.
func (d *MemoryDeclines) ListDeclinedJobs(_ context.Context, workerID string) ([]models.DeclinedJob, error) {
	d.s.mu.RLock()
	items := make([]models.DeclinedJob, 0)
	for _, decline := range d.s.declines {
		if decline.WorkerID != workerID {
			continue
		}
		req, ok := d.s.requests[decline.ServiceRequestID]
		if !ok {
			continue
		}
		items = append(items, models.DeclinedJob{ServiceRequest: req, DeclineReason: decline.Reason, DeclinedAt: decline.CreatedAt})
	}
	d.s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool {
		if !items[i].DeclinedAt.Equal(items[j].DeclinedAt) {
			return items[i].DeclinedAt.After(items[j].DeclinedAt)
		}
		return items[i].ID < items[j].ID
	})
	return items, nil
}

// MemoryNotifications is the in-process counterpart of NotificationRepository.
type MemoryNotifications struct{ s *MemoryStore }

// Write stores intents with their conflict policies.
func (n *MemoryNotifications) Write(_ context.Context, intents []models.NotificationIntent) error {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	n.s.writeNotificationsLocked(intents, time.Now().UTC())
	return nil
}

// List returns a recipient's notifications newest first with the total count.
func (n *MemoryNotifications) List(_ context.Context, filter models.NotificationFilter) ([]models.Notification, int, error) {
	n.s.mu.RLock()
	items := make([]models.Notification, 0)
	for _, item := range n.s.notifications {
		if item.RecipientID != filter.RecipientID {
			continue
		}
		if filter.IsRead != nil && item.IsRead != *filter.IsRead {
			continue
		}
		items = append(items, item)
	}
	n.s.mu.RUnlock()
	sort.SliceStable(items, func(i, j int) bool { return items[i].CreatedAt.After(items[j].CreatedAt) })

	total := len(items)
	limit := filter.Limit
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	offset := filter.Offset
	if offset < 0 {
		offset = 0
	}
	if offset >= total {
		return []models.Notification{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return items[offset:end], total, nil
}

// MarkRead marks the given notifications of the recipient as read.
func (n *MemoryNotifications) MarkRead(_ context.Context, recipientID string, ids []string, at time.Time) (int64, error) {
	wanted := make(map[string]struct{}, len(ids))
	for _, id := range ids {
		wanted[id] = struct{}{}
	}
	return n.markRead(recipientID, func(id string) bool {
		_, ok := wanted[id]
		return ok
	}, at), nil
}

// MarkAllRead marks every unread notification of the recipient as read.
func (n *MemoryNotifications) MarkAllRead(_ context.Context, recipientID string, at time.Time) (int64, error) {
	return n.markRead(recipientID, func(string) bool { return true }, at), nil
}

func (n *MemoryNotifications) markRead(recipientID string, match func(id string) bool, at time.Time) int64 {
	n.s.mu.Lock()
	defer n.s.mu.Unlock()
	var count int64
	for i := range n.s.notifications {
		item := &n.s.notifications[i]
		if item.RecipientID != recipientID || item.IsRead || !match(item.ID) {
			continue
		}
		readAt := at
		item.IsRead = true
		item.ReadAt = &readAt
		count++
	}
	return count
}

// MemoryCategories is the in-process counterpart of CategoryRepository.
type MemoryCategories struct{ s *MemoryStore }

// ListActive returns active categories by name.
func (c *MemoryCategories) ListActive(_ context.Context) ([]models.ServiceCategory, error) {
	c.s.mu.RLock()
	items := make([]models.ServiceCategory, 0, len(c.s.categories))
	for _, category := range c.s.categories {
		if category.Active {
			items = append(items, category)
		}
	}
	c.s.mu.RUnlock()
	sort.Slice(items, func(i, j int) bool { return items[i].Name < items[j].Name })
	return items, nil
}

// GetByID returns the category or sql.ErrNoRows.
func (c *MemoryCategories) GetByID(_ context.Context, id string) (*models.ServiceCategory, error) {
	c.s.mu.RLock()
	defer c.s.mu.RUnlock()
	category, ok := c.s.categories[id]
	if !ok {
		return nil, fmt.Errorf("get category %s: %w", id, sql.ErrNoRows)
	}
	return &category, nil
}
