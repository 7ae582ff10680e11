package model

import (
	"fmt"
	"strings"
	"time"

	"marketboard.app/commentsync/common/id"
)

// Vote is the viewer-scoped tri-state vote on a comment. Dislikes carry no
// visible tally; only likes are counted.
type Vote string

const (
	VoteNone    Vote = ""
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)

// InsertPolicy controls where a newly admitted sibling lands: feed-style
// surfaces show newest first, chat-style surfaces append at the bottom.
type InsertPolicy string

const (
	PolicyPrepend InsertPolicy = "prepend"
	PolicyAppend  InsertPolicy = "append"
)

func ParseInsertPolicy(s string) (InsertPolicy, error) {
	switch InsertPolicy(s) {
	case PolicyPrepend, PolicyAppend:
		return InsertPolicy(s), nil
	case "":
		return PolicyPrepend, nil
	}
	return "", fmt.Errorf("unknown insertion policy %q", s)
}

// Comment is one node of the discussion forest. The same shape travels over
// the wire (broadcast events and HTTP listings) and lives in the panel store.
type Comment struct {
	ID             string    `json:"id"`
	Text           string    `json:"text"`
	CreatedAt      time.Time `json:"created_at"`
	AuthorName     string    `json:"author_name"`
	AuthorIdentity string    `json:"author_identity"`
	AvatarURL      string    `json:"avatar_url,omitempty"`
	LikeCount      int       `json:"like_count"`
	UserVote       Vote      `json:"user_vote,omitempty"`
	ReplyCount     int       `json:"reply_count"`
	ParentID       *string   `json:"parent_id,omitempty"`
	// ClientRef echoes the submitter's temp id when the service preserved it,
	// giving the reconciler an exact correlation key.
	ClientRef string     `json:"client_ref,omitempty"`
	Children  []*Comment `json:"replies,omitempty"`

	// Local view state, never serialized. ChildrenLoaded flips once a reply
	// fetch has merged; Expanded is purely presentational. LocalSeq orders
	// optimistic inserts for FIFO reconciliation matching.
	ChildrenLoaded bool  `json:"-"`
	Expanded       bool  `json:"-"`
	LocalSeq       int64 `json:"-"`
}

// Confirmed reports whether the comment carries a service-issued id rather
// than a local placeholder.
func (c *Comment) Confirmed() bool {
	return !id.IsTemp(c.ID)
}

// Validate rejects inbound records that are too malformed to admit. Broken
// events are dropped, not fatal (the store must survive garbage).
func (c *Comment) Validate() error {
	if c == nil {
		return fmt.Errorf("nil comment")
	}
	if c.ID == "" {
		return fmt.Errorf("comment missing id")
	}
	if strings.TrimSpace(c.Text) == "" {
		return fmt.Errorf("comment %s has empty text", c.ID)
	}
	if c.AuthorIdentity == "" {
		return fmt.Errorf("comment %s missing author identity", c.ID)
	}
	return nil
}

// Clone returns a deep copy so read models can be handed out without
// aliasing store-owned nodes.
func (c *Comment) Clone() *Comment {
	if c == nil {
		return nil
	}
	cp := *c
	if c.ParentID != nil {
		pid := *c.ParentID
		cp.ParentID = &pid
	}
	if len(c.Children) > 0 {
		cp.Children = make([]*Comment, len(c.Children))
		for i, ch := range c.Children {
			cp.Children[i] = ch.Clone()
		}
	}
	return &cp
}
