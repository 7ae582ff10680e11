// Package devserver is a development stand-in for the external comments
// service: the HTTP listing/reply/vote endpoints plus the submit-stream
// bridge that assigns confirmed ids and broadcasts new-comment events. It
// keeps everything in memory; it exists so the sync engine can be run and
// tested end to end without the real service.
package devserver

import (
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"

	"marketboard.app/commentsync/common/id"
	"marketboard.app/commentsync/internal/model"
)

type record struct {
	comment model.Comment
	votes   map[string]model.Vote // author identity → current vote
	childID []string
}

// Server holds the in-memory comment state shared by the HTTP surface and
// the broadcast bridge.
type Server struct {
	mu      sync.Mutex
	byID    map[string]*record
	roots   map[string][]string // market id → root comment ids, oldest first
	markets map[string]string   // comment id → market id
}

func New() *Server {
	return &Server{
		byID:    make(map[string]*record),
		roots:   make(map[string][]string),
		markets: make(map[string]string),
	}
}

// Routes mounts the comments-service HTTP contract.
func (s *Server) Routes(router *gin.Engine) {
	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/comments/replies/:commentId", s.listReplies)
	router.GET("/comments/:marketId", s.listComments)
	router.POST("/comments/:commentId/vote", s.vote)
}

// Create stores a submission under a fresh confirmed id and returns the
// comment as it should be broadcast, client ref echoed verbatim.
func (s *Server) Create(sub model.Submission) (*model.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	c := model.Comment{
		ID:             id.New(),
		Text:           sub.Text,
		CreatedAt:      time.Now().UTC(),
		AuthorName:     sub.AuthorName,
		AuthorIdentity: sub.AuthorIdentity,
		AvatarURL:      sub.AvatarURL,
		ParentID:       sub.ParentID,
		ClientRef:      sub.ClientRef,
	}
	if err := c.Validate(); err != nil {
		return nil, err
	}

	if sub.ParentID != nil && *sub.ParentID != "" {
		parent, ok := s.byID[*sub.ParentID]
		if !ok {
			return nil, errParentNotFound(*sub.ParentID)
		}
		parent.childID = append(parent.childID, c.ID)
		parent.comment.ReplyCount++
		s.markets[c.ID] = s.markets[parent.comment.ID]
	} else {
		s.roots[sub.MarketID] = append(s.roots[sub.MarketID], c.ID)
		s.markets[c.ID] = sub.MarketID
	}

	s.byID[c.ID] = &record{comment: c, votes: make(map[string]model.Vote)}
	return &c, nil
}

func (s *Server) listComments(c *gin.Context) {
	marketID := c.Param("marketId")
	viewer := c.Query("userId")

	s.mu.Lock()
	out := make([]*model.Comment, 0, len(s.roots[marketID]))
	for _, rid := range s.roots[marketID] {
		out = append(out, s.viewLocked(rid, viewer, true))
	}
	s.mu.Unlock()

	c.JSON(http.StatusOK, gin.H{"success": true, "comments": out})
}

func (s *Server) listReplies(c *gin.Context) {
	commentID := c.Param("commentId")
	viewer := c.Query("userId")

	s.mu.Lock()
	rec, ok := s.byID[commentID]
	var out []*model.Comment
	if ok {
		out = make([]*model.Comment, 0, len(rec.childID))
		for _, cid := range rec.childID {
			out = append(out, s.viewLocked(cid, viewer, false))
		}
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "comment not found"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true, "replies": out})
}

type voteRequest struct {
	AuthorIdentity string `json:"author_identity" binding:"required"`
	IsLike         *bool  `json:"is_like"`
}

func (s *Server) vote(c *gin.Context) {
	commentID := c.Param("commentId")

	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"success": false, "error": "author_identity is required"})
		return
	}

	s.mu.Lock()
	rec, ok := s.byID[commentID]
	if ok {
		switch {
		case req.IsLike == nil:
			delete(rec.votes, req.AuthorIdentity)
		case *req.IsLike:
			rec.votes[req.AuthorIdentity] = model.VoteLike
		default:
			rec.votes[req.AuthorIdentity] = model.VoteDislike
		}
	}
	s.mu.Unlock()

	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"success": false, "error": "comment not found"})
		return
	}

	slog.Debug("vote recorded", "comment_id", commentID, "identity", req.AuthorIdentity)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// viewLocked renders a comment for one viewer: like tally from the vote map,
// user_vote precomputed, replies nested when asked for.
func (s *Server) viewLocked(commentID, viewer string, nest bool) *model.Comment {
	rec := s.byID[commentID]
	c := rec.comment

	likes := 0
	for _, v := range rec.votes {
		if v == model.VoteLike {
			likes++
		}
	}
	c.LikeCount = likes
	c.UserVote = rec.votes[viewer]

	if nest {
		for _, cid := range rec.childID {
			c.Children = append(c.Children, s.viewLocked(cid, viewer, true))
		}
	}
	return &c
}

type errParentNotFound string

func (e errParentNotFound) Error() string {
	return "parent comment " + string(e) + " not found"
}
