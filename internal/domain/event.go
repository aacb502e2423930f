package domain

import "time"

// RawTrafficEvent is one request observed by the bait server. It carries raw
// facts only; classification is derived at read time and never stored.
type RawTrafficEvent struct {
	ID        int64     `json:"id,omitempty"`
	Timestamp time.Time `json:"timestamp"`
	IP        string    `json:"ip"`
	UserAgent string    `json:"user_agent"`
	Path      string    `json:"path"`
	Status    int       `json:"status"`
	Referer   string    `json:"referer"` // "" when the request carried no referer
}

// ClassifiedEvent pairs a stored event with a classification computed on demand.
type ClassifiedEvent struct {
	RawTrafficEvent
	Classification ClassificationResult `json:"classification"`
}
