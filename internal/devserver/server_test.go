package devserver_test

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"

	"github.com/gin-gonic/gin"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"marketboard.app/commentsync/common/id"
	"marketboard.app/commentsync/internal/devserver"
	"marketboard.app/commentsync/internal/model"
)

var _ = Describe("Server", func() {
	var (
		router *gin.Engine
		srv    *devserver.Server
	)

	submission := func(text, author string, parentID *string) model.Submission {
		return model.Submission{
			MarketID:       "market-42",
			Text:           text,
			AuthorIdentity: author,
			AuthorName:     author,
			ParentID:       parentID,
		}
	}

	get := func(path string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodGet, path, nil)
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	postVote := func(commentID string, body any) *httptest.ResponseRecorder {
		raw, err := json.Marshal(body)
		Expect(err).NotTo(HaveOccurred())
		req := httptest.NewRequest(http.MethodPost, "/comments/"+commentID+"/vote", bytes.NewBuffer(raw))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	BeforeEach(func() {
		gin.SetMode(gin.TestMode)
		Expect(id.Init(1)).To(Succeed())

		srv = devserver.New()
		router = gin.New()
		srv.Routes(router)
	})

	Describe("Create", func() {
		It("should mint a confirmed id and echo the client ref", func() {
			sub := submission("gm", "bob", nil)
			sub.ClientRef = "temp-1-000001"

			c, err := srv.Create(sub)
			Expect(err).NotTo(HaveOccurred())
			Expect(c.ID).NotTo(BeEmpty())
			Expect(c.ID).NotTo(HavePrefix("temp-"))
			Expect(c.ClientRef).To(Equal("temp-1-000001"))
		})

		It("should bump the parent's reply count", func() {
			root, err := srv.Create(submission("root", "alice", nil))
			Expect(err).NotTo(HaveOccurred())

			_, err = srv.Create(submission("reply", "bob", &root.ID))
			Expect(err).NotTo(HaveOccurred())

			w := get("/comments/market-42?userId=alice")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Success  bool             `json:"success"`
				Comments []*model.Comment `json:"comments"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Comments).To(HaveLen(1))
			Expect(resp.Comments[0].ReplyCount).To(Equal(1))
			Expect(resp.Comments[0].Children).To(HaveLen(1))
		})

		It("should reject an unknown parent", func() {
			ghost := "does-not-exist"
			_, err := srv.Create(submission("reply", "bob", &ghost))
			Expect(err).To(HaveOccurred())
		})

		It("should reject empty text", func() {
			_, err := srv.Create(submission("   ", "bob", nil))
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("GET /comments/:marketId", func() {
		It("should return roots oldest first with the viewer's vote", func() {
			first, err := srv.Create(submission("first", "alice", nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = srv.Create(submission("second", "bob", nil))
			Expect(err).NotTo(HaveOccurred())

			Expect(postVote(first.ID, gin.H{"author_identity": "carol", "is_like": true}).Code).To(Equal(http.StatusOK))

			w := get("/comments/market-42?userId=carol")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Success  bool             `json:"success"`
				Comments []*model.Comment `json:"comments"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Success).To(BeTrue())
			Expect(resp.Comments).To(HaveLen(2))
			Expect(resp.Comments[0].Text).To(Equal("first"))
			Expect(resp.Comments[0].LikeCount).To(Equal(1))
			Expect(resp.Comments[0].UserVote).To(Equal(model.VoteLike))
			Expect(resp.Comments[1].UserVote).To(Equal(model.VoteNone))
		})

		It("should return an empty list for an unknown market", func() {
			w := get("/comments/market-99?userId=carol")
			Expect(w.Code).To(Equal(http.StatusOK))
		})
	})

	Describe("GET /comments/replies/:commentId", func() {
		It("should return the direct children", func() {
			root, err := srv.Create(submission("root", "alice", nil))
			Expect(err).NotTo(HaveOccurred())
			_, err = srv.Create(submission("reply one", "bob", &root.ID))
			Expect(err).NotTo(HaveOccurred())
			_, err = srv.Create(submission("reply two", "carol", &root.ID))
			Expect(err).NotTo(HaveOccurred())

			w := get("/comments/replies/" + root.ID + "?userId=bob")
			Expect(w.Code).To(Equal(http.StatusOK))

			var resp struct {
				Success bool             `json:"success"`
				Replies []*model.Comment `json:"replies"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Replies).To(HaveLen(2))
		})

		It("should 404 on an unknown comment", func() {
			Expect(get("/comments/replies/ghost?userId=bob").Code).To(Equal(http.StatusNotFound))
		})
	})

	Describe("POST /comments/:commentId/vote", func() {
		var commentID string

		likeCount := func(viewer string) (int, model.Vote) {
			w := get("/comments/market-42?userId=" + viewer)
			var resp struct {
				Comments []*model.Comment `json:"comments"`
			}
			Expect(json.Unmarshal(w.Body.Bytes(), &resp)).To(Succeed())
			Expect(resp.Comments).To(HaveLen(1))
			return resp.Comments[0].LikeCount, resp.Comments[0].UserVote
		}

		BeforeEach(func() {
			c, err := srv.Create(submission("root", "alice", nil))
			Expect(err).NotTo(HaveOccurred())
			commentID = c.ID
		})

		It("should record like, dislike and clear", func() {
			Expect(postVote(commentID, gin.H{"author_identity": "bob", "is_like": true}).Code).To(Equal(http.StatusOK))
			count, vote := likeCount("bob")
			Expect(count).To(Equal(1))
			Expect(vote).To(Equal(model.VoteLike))

			Expect(postVote(commentID, gin.H{"author_identity": "bob", "is_like": false}).Code).To(Equal(http.StatusOK))
			count, vote = likeCount("bob")
			Expect(count).To(BeZero())
			Expect(vote).To(Equal(model.VoteDislike))

			Expect(postVote(commentID, gin.H{"author_identity": "bob", "is_like": nil}).Code).To(Equal(http.StatusOK))
			count, vote = likeCount("bob")
			Expect(count).To(BeZero())
			Expect(vote).To(Equal(model.VoteNone))
		})

		It("should 400 without an author identity", func() {
			Expect(postVote(commentID, gin.H{"is_like": true}).Code).To(Equal(http.StatusBadRequest))
		})

		It("should 404 on an unknown comment", func() {
			Expect(postVote("ghost", gin.H{"author_identity": "bob", "is_like": true}).Code).To(Equal(http.StatusNotFound))
		})
	})
})
