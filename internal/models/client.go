package models

import "time"

// Client status values.
const (
	ClientStatusActive    = "active"
	ClientStatusCompleted = "completed"
	ClientStatusOnHold    = "on_hold"
)

// Client is a tracked customer that recordings are attributed to.
// MeetingIDs and TitlePatterns are learned over time by the resolver and
// stored as text arrays.
type Client struct {
	ID                int64      `json:"id"`
	Name              string     `json:"name"`
	Description       string     `json:"description,omitempty"`
	Status            string     `json:"status"`
	Tags              []string   `json:"tags,omitempty"`
	CumulativeSummary string     `json:"cumulative_summary,omitempty"`
	MeetingIDs        []string   `json:"meeting_ids"`
	TitlePatterns     []string   `json:"title_patterns"`
	MeetingCount      int        `json:"meeting_count"`
	LastMeetingAt     *time.Time `json:"last_meeting_at,omitempty"`
	NotionPageID      string     `json:"notion_page_id,omitempty"`
	CreatedAt         time.Time  `json:"created_at"`
	UpdatedAt         time.Time  `json:"updated_at"`
}

// HasMeetingID reports whether the client's learned id set contains id.
func (c *Client) HasMeetingID(id string) bool {
	for _, m := range c.MeetingIDs {
		if m == id {
			return true
		}
	}
	return false
}
