package model

import "encoding/json"

// Event types delivered on a room channel.
const (
	EventNewComment = "new-comment"
)

// Event is the envelope broadcast to every member of a room.
type Event struct {
	Type     string   `json:"type"`
	MarketID string   `json:"market_id"`
	Comment  *Comment `json:"comment,omitempty"`
}

// Submission is the fire-and-forget payload a panel emits when the user
// posts. The service stores it, assigns a confirmed id, and broadcasts the
// result as an ordinary Event. The submitter gets no direct reply.
type Submission struct {
	MarketID       string  `json:"market_id"`
	Text           string  `json:"text"`
	AuthorIdentity string  `json:"author_identity"`
	AuthorName     string  `json:"author_name,omitempty"`
	AvatarURL      string  `json:"avatar_url,omitempty"`
	ParentID       *string `json:"parent_id,omitempty"`
	// ClientRef carries the optimistic node's temp id so the service can echo
	// it back on the broadcast for exact reconciliation.
	ClientRef string `json:"client_ref,omitempty"`
}

// DecodeEvent parses a raw broadcast payload. Callers treat an error as a
// malformed event: log and drop.
func DecodeEvent(data []byte) (Event, error) {
	var ev Event
	if err := json.Unmarshal(data, &ev); err != nil {
		return Event{}, err
	}
	return ev, nil
}
