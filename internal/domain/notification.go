package domain

// Notification is one "seats opened" message addressed to a chat user.
type Notification struct {
	ChannelID string
	UserID    string
	Text      string
	Request   TrackingRequest
	Result    FetchResult
}
