// Package store holds the normalized comment forest for one open discussion
// panel. It is the only writer of panel state: inbound broadcasts, optimistic
// inserts, vote tallies and lazily fetched children all land here.
package store

import (
	"errors"
	"fmt"
	"sync"

	"marketboard.app/commentsync/internal/model"
)

var ErrNotFound = errors.New("comment not found")

// CommentStore owns the comment forest of a single panel. Exactly one panel
// writes to a store; the mutex exists because read models may be snapshotted
// from other goroutines.
type CommentStore struct {
	mu     sync.RWMutex
	policy model.InsertPolicy
	roots  []*model.Comment
	index  map[string]*model.Comment
	seq    int64
}

func New(policy model.InsertPolicy) *CommentStore {
	return &CommentStore{
		policy: policy,
		index:  make(map[string]*model.Comment),
	}
}

// LoadRoots replaces the root list, used after the initial fetch or when a
// panel is reopened. Children nested in the payload count as loaded.
func (s *CommentStore) LoadRoots(comments []*model.Comment) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.roots = nil
	s.index = make(map[string]*model.Comment)
	for _, c := range comments {
		if err := c.Validate(); err != nil {
			continue
		}
		s.roots = append(s.roots, c)
		s.indexSubtree(c)
	}
}

func (s *CommentStore) indexSubtree(c *model.Comment) {
	s.index[c.ID] = c
	if len(c.Children) > 0 {
		c.ChildrenLoaded = true
	}
	for _, ch := range c.Children {
		s.indexSubtree(ch)
	}
}

// InsertOptimistic places a temp-id node immediately, before any server
// confirmation, at the head or tail of its sibling list per the store's
// insertion policy. The parent's reply counter is bumped here; the later
// reconciliation is a replace and must not bump it again.
func (s *CommentStore) InsertOptimistic(c *model.Comment) error {
	if err := c.Validate(); err != nil {
		return err
	}
	if c.Confirmed() {
		return fmt.Errorf("optimistic insert requires a temp id, got %s", c.ID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.index[c.ID]; ok {
		return fmt.Errorf("temp id %s already present", c.ID)
	}

	siblings, parent, err := s.siblingsFor(c.ParentID)
	if err != nil {
		return err
	}

	s.seq++
	c.LocalSeq = s.seq
	s.insert(siblings, c)
	s.index[c.ID] = c
	if parent != nil {
		parent.ReplyCount++
	}
	return nil
}

func (s *CommentStore) insert(siblings *[]*model.Comment, c *model.Comment) {
	if s.policy == model.PolicyAppend {
		*siblings = append(*siblings, c)
		return
	}
	*siblings = append([]*model.Comment{c}, *siblings...)
}

// siblingsFor resolves the sibling list a comment belongs to: the root list
// for nil parents, the parent's children otherwise. The parent node itself
// must already exist somewhere in the forest.
func (s *CommentStore) siblingsFor(parentID *string) (*[]*model.Comment, *model.Comment, error) {
	if parentID == nil || *parentID == "" {
		return &s.roots, nil, nil
	}
	parent, ok := s.index[*parentID]
	if !ok {
		return nil, nil, fmt.Errorf("parent %s: %w", *parentID, ErrNotFound)
	}
	return &parent.Children, parent, nil
}

// AttachChildren merges fetched children under a parent without duplicating
// any child already present, and marks the parent loaded. A fetched child can
// be the confirmation of an optimistic reply already sitting under the
// parent, so every child runs through the same matching the broadcast path
// uses; a match replaces the temp node in place instead of appending. The
// reply counter only ever moves up: the fetch is authoritative when it knows
// of more replies than the counter did.
func (s *CommentStore) AttachChildren(parentID string, children []*model.Comment) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	parent, ok := s.index[parentID]
	if !ok {
		return fmt.Errorf("parent %s: %w", parentID, ErrNotFound)
	}

	for _, ch := range children {
		if err := ch.Validate(); err != nil {
			continue
		}
		if _, exists := s.index[ch.ID]; exists {
			continue
		}
		if i := s.matchOptimistic(parent.Children, ch); i >= 0 {
			matched := parent.Children[i]
			ch.Children = matched.Children
			ch.ChildrenLoaded = matched.ChildrenLoaded
			ch.Expanded = matched.Expanded
			parent.Children[i] = ch
			delete(s.index, matched.ID)
			s.index[ch.ID] = ch
			continue
		}
		parent.Children = append(parent.Children, ch)
		s.indexSubtree(ch)
	}
	parent.ChildrenLoaded = true
	if len(parent.Children) > parent.ReplyCount {
		parent.ReplyCount = len(parent.Children)
	}
	return nil
}

// VoteState returns the current (likeCount, vote) pair for a comment, the
// exact pair a rollback later restores.
func (s *CommentStore) VoteState(commentID string) (int, model.Vote, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.index[commentID]
	if !ok {
		return 0, model.VoteNone, fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	return c.LikeCount, c.UserVote, nil
}

// AdjustVote applies an optimistic tally mutation atomically.
func (s *CommentStore) AdjustVote(commentID string, delta int, vote model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.index[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	c.LikeCount += delta
	c.UserVote = vote
	return nil
}

// RevertVote restores a previously captured (likeCount, vote) pair verbatim.
func (s *CommentStore) RevertVote(commentID string, likeCount int, vote model.Vote) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.index[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	c.LikeCount = likeCount
	c.UserVote = vote
	return nil
}

// SetExpanded toggles the view-level expansion flag. Collapsing never
// discards already-loaded children.
func (s *CommentStore) SetExpanded(commentID string, expanded bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	c, ok := s.index[commentID]
	if !ok {
		return fmt.Errorf("comment %s: %w", commentID, ErrNotFound)
	}
	c.Expanded = expanded
	return nil
}

// Get returns a deep copy of one node.
func (s *CommentStore) Get(commentID string) (*model.Comment, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	c, ok := s.index[commentID]
	if !ok {
		return nil, false
	}
	return c.Clone(), true
}

// Roots returns a deep copy of the ordered root list, the panel's read model.
func (s *CommentStore) Roots() []*model.Comment {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*model.Comment, len(s.roots))
	for i, c := range s.roots {
		out[i] = c.Clone()
	}
	return out
}
