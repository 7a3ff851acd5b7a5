package backend

import "strings"

type SessionStatus string

const (
	SessionStatusPending   SessionStatus = "pending"
	SessionStatusActive    SessionStatus = "active"
	SessionStatusEnded     SessionStatus = "ended"
	SessionStatusCompleted SessionStatus = "completed"
)

// ParseSessionStatus maps the provider's status vocabulary onto SessionStatus.
// Unknown values are treated as pending.
func ParseSessionStatus(s string) SessionStatus {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "active", "started":
		return SessionStatusActive
	case "ended":
		return SessionStatusEnded
	case "completed":
		return SessionStatusCompleted
	default:
		return SessionStatusPending
	}
}

// SessionDescriptor identifies a remote conversation that can be joined.
type SessionDescriptor struct {
	ID      string        `json:"id"`
	JoinURL string        `json:"join_url"`
	Status  SessionStatus `json:"status"`
}

type Topic struct {
	Name       string   `json:"name"`
	Priority   int      `json:"priority"`
	Objectives []string `json:"objectives"`
}

type TeachingPlan struct {
	UnderstandingLevel string  `json:"understanding_level"`
	Topics             []Topic `json:"topics"`
}

type Video struct {
	Topic    string `json:"topic"`
	VideoURL string `json:"video_url"`
	Status   string `json:"status"`
}

// EndResult is whatever the backend reported when a session was ended. All
// fields are optional.
type EndResult struct {
	Status       string        `json:"status,omitempty"`
	TeachingPlan *TeachingPlan `json:"teaching_plan,omitempty"`
	Videos       []Video       `json:"videos,omitempty"`
}

type startRequest struct {
	Subject string `json:"subject"`
	Grade   int    `json:"grade"`
}

type startResponse struct {
	ConversationID string `json:"conversation_id"`
	JoinURL        string `json:"join_url"`
	Status         string `json:"status"`
}

type statusResponse struct {
	Status string `json:"status"`
}

type errorBody struct {
	Message string `json:"message"`
	Detail  any    `json:"detail"`
}
