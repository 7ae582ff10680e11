package service_test

import (
	"context"
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/service"
	"marketboard.app/commentsync/internal/store"
)

var _ = Describe("VoteController", func() {
	var (
		ctx      context.Context
		st       *store.CommentStore
		mockAPI  *mockCommentsAPI
		votes    *service.VoteController
		voteSent chan model.Vote
	)

	loadComment := func(likeCount int, userVote model.Vote) {
		c := &model.Comment{
			ID:             "c1",
			Text:           "what a market",
			CreatedAt:      time.Now().UTC(),
			AuthorName:     "alice",
			AuthorIdentity: "alice",
			LikeCount:      likeCount,
			UserVote:       userVote,
		}
		st.LoadRoots([]*model.Comment{c})
	}

	currentState := func() (int, model.Vote) {
		count, vote, err := st.VoteState("c1")
		Expect(err).NotTo(HaveOccurred())
		return count, vote
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = store.New(model.PolicyPrepend)
		voteSent = make(chan model.Vote, 8)
		mockAPI = &mockCommentsAPI{
			submitVoteFn: func(_ context.Context, _, _ string, vote model.Vote) error {
				voteSent <- vote
				return nil
			},
		}
		votes = service.NewVoteController(st, mockAPI, "viewer-1", nil)
	})

	Describe("Toggle", func() {
		Context("liking an unvoted comment", func() {
			It("should bump the tally immediately and confirm the resulting vote", func() {
				loadComment(3, model.VoteNone)

				Expect(votes.Toggle(ctx, "c1", model.VoteLike)).To(Succeed())

				count, vote := currentState()
				Expect(count).To(Equal(4))
				Expect(vote).To(Equal(model.VoteLike))
				Eventually(voteSent).Should(Receive(Equal(model.VoteLike)))
			})
		})

		Context("re-clicking the active like", func() {
			It("should clear the vote and lower the tally", func() {
				loadComment(4, model.VoteLike)

				Expect(votes.Toggle(ctx, "c1", model.VoteLike)).To(Succeed())

				count, vote := currentState()
				Expect(count).To(Equal(3))
				Expect(vote).To(Equal(model.VoteNone))
				Eventually(voteSent).Should(Receive(Equal(model.VoteNone)))
			})
		})

		Context("disliking a liked comment", func() {
			It("should remove the like from the tally", func() {
				loadComment(4, model.VoteLike)

				Expect(votes.Toggle(ctx, "c1", model.VoteDislike)).To(Succeed())

				count, vote := currentState()
				Expect(count).To(Equal(3))
				Expect(vote).To(Equal(model.VoteDislike))
				Eventually(voteSent).Should(Receive(Equal(model.VoteDislike)))
			})
		})

		Context("dislikes on their own", func() {
			It("should never move the visible tally", func() {
				loadComment(3, model.VoteNone)

				Expect(votes.Toggle(ctx, "c1", model.VoteDislike)).To(Succeed())
				count, vote := currentState()
				Expect(count).To(Equal(3))
				Expect(vote).To(Equal(model.VoteDislike))

				Expect(votes.Toggle(ctx, "c1", model.VoteDislike)).To(Succeed())
				count, vote = currentState()
				Expect(count).To(Equal(3))
				Expect(vote).To(Equal(model.VoteNone))
			})
		})

		Context("a full toggle sequence", func() {
			It("should close over the arithmetic", func() {
				loadComment(3, model.VoteNone)

				Expect(votes.Toggle(ctx, "c1", model.VoteLike)).To(Succeed())
				Expect(votes.Toggle(ctx, "c1", model.VoteDislike)).To(Succeed())
				Expect(votes.Toggle(ctx, "c1", model.VoteDislike)).To(Succeed())
				Expect(votes.Toggle(ctx, "c1", model.VoteLike)).To(Succeed())

				count, vote := currentState()
				Expect(count).To(Equal(4))
				Expect(vote).To(Equal(model.VoteLike))
			})
		})

		Context("when the confirmation call fails", func() {
			It("should restore the captured state verbatim", func() {
				loadComment(3, model.VoteNone)
				mockAPI.submitVoteFn = func(_ context.Context, _, _ string, _ model.Vote) error {
					return errors.New("service unavailable")
				}

				Expect(votes.Toggle(ctx, "c1", model.VoteLike)).To(Succeed())

				Eventually(func() int {
					count, _ := currentState()
					return count
				}).Should(Equal(3))
				_, vote := currentState()
				Expect(vote).To(Equal(model.VoteNone))
			})
		})

		Context("with an invalid request", func() {
			It("should reject a none toggle", func() {
				loadComment(3, model.VoteNone)
				Expect(votes.Toggle(ctx, "c1", model.VoteNone)).NotTo(Succeed())
			})

			It("should reject an unknown comment", func() {
				loadComment(3, model.VoteNone)
				err := votes.Toggle(ctx, "ghost", model.VoteLike)
				Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
			})
		})
	})
})
