package dto

// SyncUserRequest supplements provider claims with profile data on first sync.
type SyncUserRequest struct {
	DisplayName string `json:"display_name"`
}
