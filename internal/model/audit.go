package model

type AuditActor struct {
	UserID    string `json:"user_id,omitempty"`
	IP        string `json:"ip,omitempty"`
	UserAgent string `json:"user_agent,omitempty"`
}

type AuditEntry struct {
	ID         string         `json:"id,omitempty"`
	Action     string         `json:"action"`
	OccurredAt string         `json:"occurred_at"`
	Actor      AuditActor     `json:"actor"`
	Status     string         `json:"status"`
	SubjectID  string         `json:"subject_id,omitempty"`
	Details    map[string]any `json:"details,omitempty"`
}

type AuditQuery struct {
	Action    string
	ActorID   string
	SubjectID string
	Status    string
	From      string
	To        string
	Page      int
	Limit     int
}

type AuditListData struct {
	Items []AuditEntry `json:"items"`
}
