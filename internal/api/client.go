// Package api is the client for the external comments service: root
// listings, reply listings and vote confirmations. Comment submission does
// not go through here; that is the transport's fire-and-forget path.
package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"marketboard.app/commentsync/core/config"
	"marketboard.app/commentsync/internal/model"
)

var ErrRequestFailed = errors.New("comments service request failed")

type Client struct {
	baseURL string
	http    *http.Client
}

func NewClient(cfg config.CommentsConfig) *Client {
	timeout := time.Duration(cfg.TimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: cfg.BaseURL,
		http:    &http.Client{Timeout: timeout},
	}
}

type listCommentsResponse struct {
	Success  bool             `json:"success"`
	Comments []*model.Comment `json:"comments"`
}

type listRepliesResponse struct {
	Success bool             `json:"success"`
	Replies []*model.Comment `json:"replies"`
}

type voteRequest struct {
	AuthorIdentity string `json:"author_identity"`
	// IsLike: true likes, false dislikes, null clears the vote.
	IsLike *bool `json:"is_like"`
}

// ListComments fetches the root comments of a market, with replies nested up
// to the service's depth and user_vote precomputed for the viewer.
func (c *Client) ListComments(ctx context.Context, marketID, viewerID string) ([]*model.Comment, error) {
	u := fmt.Sprintf("%s/comments/%s?userId=%s", c.baseURL, url.PathEscape(marketID), url.QueryEscape(viewerID))

	var resp listCommentsResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("listing comments for market %s: %w", marketID, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("listing comments for market %s: %w", marketID, ErrRequestFailed)
	}
	return resp.Comments, nil
}

// ListReplies fetches the direct children of one comment.
func (c *Client) ListReplies(ctx context.Context, commentID, viewerID string) ([]*model.Comment, error) {
	u := fmt.Sprintf("%s/comments/replies/%s?userId=%s", c.baseURL, url.PathEscape(commentID), url.QueryEscape(viewerID))

	var resp listRepliesResponse
	if err := c.getJSON(ctx, u, &resp); err != nil {
		return nil, fmt.Errorf("listing replies for comment %s: %w", commentID, err)
	}
	if !resp.Success {
		return nil, fmt.Errorf("listing replies for comment %s: %w", commentID, ErrRequestFailed)
	}
	return resp.Replies, nil
}

// SubmitVote confirms a vote change. The resulting vote travels, not the
// transition: true like, false dislike, nil cleared. Acknowledgement only.
func (c *Client) SubmitVote(ctx context.Context, commentID, viewerID string, vote model.Vote) error {
	u := fmt.Sprintf("%s/comments/%s/vote", c.baseURL, url.PathEscape(commentID))

	var isLike *bool
	switch vote {
	case model.VoteLike:
		v := true
		isLike = &v
	case model.VoteDislike:
		v := false
		isLike = &v
	}

	body, err := json.Marshal(voteRequest{AuthorIdentity: viewerID, IsLike: isLike})
	if err != nil {
		return fmt.Errorf("encoding vote: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, u, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("building vote request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("submitting vote for comment %s: %w", commentID, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("submitting vote for comment %s: status %d: %w", commentID, resp.StatusCode, ErrRequestFailed)
	}
	return nil
}

func (c *Client) getJSON(ctx context.Context, url string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		_, _ = io.Copy(io.Discard, resp.Body)
		return fmt.Errorf("status %d: %w", resp.StatusCode, ErrRequestFailed)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding response: %w", err)
	}
	return nil
}
