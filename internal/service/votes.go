package service

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"marketboard.app/commentsync/common/logger"
	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/store"
)

// VoteConfirmer issues the asynchronous vote confirmation call. Satisfied by
// api.Client.
type VoteConfirmer interface {
	SubmitVote(ctx context.Context, commentID, viewerID string, vote model.Vote) error
}

// Scheduler posts a mutation task onto the panel's serialized loop. Tasks
// posted after the panel closes are dropped, which is exactly what a stale
// completion deserves.
type Scheduler func(task func())

// VoteController applies tri-state vote changes optimistically and rolls the
// exact prior state back if the confirmation call fails.
type VoteController struct {
	store     *store.CommentStore
	confirmer VoteConfirmer
	viewerID  string
	schedule  Scheduler
	timeout   time.Duration
}

func NewVoteController(s *store.CommentStore, confirmer VoteConfirmer, viewerID string, schedule Scheduler) *VoteController {
	if schedule == nil {
		schedule = func(task func()) { task() }
	}
	return &VoteController{
		store:     s,
		confirmer: confirmer,
		viewerID:  viewerID,
		schedule:  schedule,
		timeout:   5 * time.Second,
	}
}

// Toggle requests a like or dislike. Re-clicking the active vote clears it.
// The local tally mutates immediately; the confirmation carries the
// resulting vote value and failure restores the captured (count, vote) pair
// verbatim.
func (v *VoteController) Toggle(ctx context.Context, commentID string, requested model.Vote) error {
	if requested != model.VoteLike && requested != model.VoteDislike {
		return fmt.Errorf("requested vote must be like or dislike, got %q", requested)
	}

	prevCount, prevVote, err := v.store.VoteState(commentID)
	if err != nil {
		return err
	}

	next, delta := transition(prevVote, requested)
	if err := v.store.AdjustVote(commentID, delta, next); err != nil {
		return err
	}

	ctx = logger.WithLogFields(ctx, logger.LogFields{
		Component: "commentsync.votes",
		CommentID: logger.Ptr(commentID),
	})

	go func() {
		callCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.timeout)
		defer cancel()

		if err := v.confirmer.SubmitVote(callCtx, commentID, v.viewerID, next); err != nil {
			// Silent degradation: restore and log, never surface to the user.
			slog.WarnContext(callCtx, "vote confirmation failed, rolling back",
				"error", err,
				"restored_like_count", prevCount,
				"restored_vote", string(prevVote))
			v.schedule(func() {
				if err := v.store.RevertVote(commentID, prevCount, prevVote); err != nil {
					slog.ErrorContext(callCtx, "vote rollback failed", "error", err)
				}
			})
		}
	}()

	return nil
}

// transition resolves the tri-state vote machine. Only likes move the
// visible tally; dislikes are counted nowhere.
func transition(current, requested model.Vote) (model.Vote, int) {
	switch {
	case requested == model.VoteLike && current == model.VoteLike:
		return model.VoteNone, -1
	case requested == model.VoteLike && current == model.VoteNone:
		return model.VoteLike, +1
	case requested == model.VoteLike && current == model.VoteDislike:
		return model.VoteLike, +1
	case requested == model.VoteDislike && current == model.VoteDislike:
		return model.VoteNone, 0
	case requested == model.VoteDislike && current == model.VoteLike:
		return model.VoteDislike, -1
	default: // none → dislike
		return model.VoteDislike, 0
	}
}
