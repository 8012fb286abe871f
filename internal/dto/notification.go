package dto

// NotificationListQuery filters the inbox.
type NotificationListQuery struct {
	IsRead   *bool
	Page     int
	PageSize int
}

// MarkNotificationsRequest marks selected ids, or everything when All is set.
type MarkNotificationsRequest struct {
	IDs []string `json:"ids"`
	All bool     `json:"all"`
}

// MarkNotificationsResponse reports how many rows changed.
type MarkNotificationsResponse struct {
	Updated int64 `json:"updated"`
}
