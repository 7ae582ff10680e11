package service_test

import (
	"context"

	"marketboard.app/commentsync/internal/model"
)

type mockCommentsAPI struct {
	listRepliesFn func(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error)
	submitVoteFn  func(ctx context.Context, commentID, viewerID string, vote model.Vote) error
}

func (m *mockCommentsAPI) ListReplies(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error) {
	if m.listRepliesFn != nil {
		return m.listRepliesFn(ctx, commentID, viewerID)
	}
	return nil, nil
}

func (m *mockCommentsAPI) SubmitVote(ctx context.Context, commentID, viewerID string, vote model.Vote) error {
	if m.submitVoteFn != nil {
		return m.submitVoteFn(ctx, commentID, viewerID, vote)
	}
	return nil
}
