package reporting

import "time"

type TimeRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// MessagesSummaryRequest asks for one church's SMS activity in [From, To).
type MessagesSummaryRequest struct {
	ChurchID string    `json:"churchId"`
	Range    TimeRange `json:"range"`
}

type MessagesSummary struct {
	ChurchID string    `json:"churchId"`
	Range    TimeRange `json:"range"`

	Total    int `json:"total"`
	Inbound  int `json:"inbound"`
	Outbound int `json:"outbound"`
	// Unread counts inbound messages an admin has not opened yet.
	Unread int `json:"unread"`

	MemberMessages  int `json:"memberMessages"`
	VisitorMessages int `json:"visitorMessages"`

	DistinctMembers  int `json:"distinctMembers"`
	DistinctVisitors int `json:"distinctVisitors"`
}
