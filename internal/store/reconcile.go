package store

import (
	"context"
	"log/slog"
	"strings"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/internal/model"
)

// AdmitOutcome reports what AdmitIncoming did with a confirmed comment.
type AdmitOutcome int

const (
	// AdmitDuplicate: a node with this confirmed id already exists; replayed
	// delivery, nothing changed.
	AdmitDuplicate AdmitOutcome = iota
	// AdmitReconciled: an optimistic temp node was replaced in place.
	AdmitReconciled
	// AdmitInserted: no optimistic counterpart; inserted as a new node.
	AdmitInserted
)

func (o AdmitOutcome) String() string {
	switch o {
	case AdmitDuplicate:
		return "duplicate"
	case AdmitReconciled:
		return "reconciled"
	case AdmitInserted:
		return "inserted"
	}
	return "unknown"
}

// AdmitIncoming is the single entry point for any inbound confirmed comment,
// whether it arrived on the room channel or inside a reply fetch. It either
// drops a replay, swaps a matching optimistic node in place, or inserts.
//
// The reply counter moves only on insertion: a reconciliation replaces a node
// the optimistic path already counted.
func (s *CommentStore) AdmitIncoming(ctx context.Context, c *model.Comment) (AdmitOutcome, error) {
	if err := c.Validate(); err != nil {
		return AdmitDuplicate, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.index[c.ID]; exists {
		return AdmitDuplicate, nil
	}

	siblings, parent, err := s.siblingsFor(c.ParentID)
	if err != nil {
		return AdmitDuplicate, err
	}

	if i := s.matchOptimistic(*siblings, c); i >= 0 {
		matched := (*siblings)[i]

		// Same position, confirmed identity; expansion state survives the swap.
		c.Children = matched.Children
		c.ChildrenLoaded = matched.ChildrenLoaded
		c.Expanded = matched.Expanded
		(*siblings)[i] = c

		delete(s.index, matched.ID)
		s.index[c.ID] = c

		slog.DebugContext(ctx, "reconciled optimistic comment",
			"temp_id", matched.ID,
			"comment_id", c.ID)
		return AdmitReconciled, nil
	}

	s.insert(siblings, c)
	s.index[c.ID] = c
	if parent != nil {
		parent.ReplyCount++
	}

	slog.DebugContext(ctx, "admitted new comment",
		"comment_id", c.ID,
		"parent_id", logger.Truncate(stringOrEmpty(c.ParentID), 64))
	return AdmitInserted, nil
}

// matchOptimistic finds the optimistic sibling the incoming confirmed
// comment corresponds to. An echoed client ref is an exact correlation and
// wins outright; otherwise fall back to author + trimmed text, taking the
// oldest remaining unconfirmed node (FIFO) so a legitimate duplicate post is
// not starved. The content heuristic can still misfire on identical rapid
// duplicates; the client ref exists to make that window irrelevant.
func (s *CommentStore) matchOptimistic(siblings []*model.Comment, incoming *model.Comment) int {
	if incoming.ClientRef != "" {
		for i, sib := range siblings {
			if !sib.Confirmed() && sib.ID == incoming.ClientRef {
				return i
			}
		}
	}

	best := -1
	for i, sib := range siblings {
		if sib.Confirmed() {
			continue
		}
		if sib.AuthorIdentity != incoming.AuthorIdentity {
			continue
		}
		if strings.TrimSpace(sib.Text) != strings.TrimSpace(incoming.Text) {
			continue
		}
		if best == -1 || sib.LocalSeq < siblings[best].LocalSeq {
			best = i
		}
	}
	return best
}

func stringOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
