package service_test

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"marketboard.app/commentsync/internal/model"
	"marketboard.app/commentsync/internal/service"
	"marketboard.app/commentsync/internal/store"
)

var _ = Describe("ReplyLoader", func() {
	var (
		ctx     context.Context
		st      *store.CommentStore
		mockAPI *mockCommentsAPI
		loader  *service.ReplyLoader
	)

	parentID := "c1"

	loadParent := func(replyCount int) {
		c := &model.Comment{
			ID:             parentID,
			Text:           "root",
			CreatedAt:      time.Now().UTC(),
			AuthorName:     "alice",
			AuthorIdentity: "alice",
			ReplyCount:     replyCount,
		}
		st.LoadRoots([]*model.Comment{c})
	}

	reply := func(id string) *model.Comment {
		return &model.Comment{
			ID:             id,
			Text:           "reply " + id,
			CreatedAt:      time.Now().UTC(),
			AuthorName:     "bob",
			AuthorIdentity: "bob",
			ParentID:       &parentID,
		}
	}

	BeforeEach(func() {
		ctx = context.Background()
		st = store.New(model.PolicyPrepend)
		mockAPI = &mockCommentsAPI{}
		loader = service.NewReplyLoader(st, mockAPI, "viewer-1", nil)
	})

	Describe("Expand", func() {
		It("should return not found for an unknown comment", func() {
			loadParent(1)
			err := loader.Expand(ctx, "ghost")
			Expect(errors.Is(err, store.ErrNotFound)).To(BeTrue())
		})

		Context("with no replies to load", func() {
			It("should expand without calling the service", func() {
				loadParent(0)
				var calls atomic.Int32
				mockAPI.listRepliesFn = func(_ context.Context, _, _ string) ([]*model.Comment, error) {
					calls.Add(1)
					return nil, nil
				}

				Expect(loader.Expand(ctx, parentID)).To(Succeed())

				node, _ := st.Get(parentID)
				Expect(node.Expanded).To(BeTrue())
				Consistently(calls.Load).Should(BeZero())
			})
		})

		Context("first expansion", func() {
			It("should fetch and attach the children", func() {
				loadParent(2)
				mockAPI.listRepliesFn = func(_ context.Context, commentID, viewerID string) ([]*model.Comment, error) {
					Expect(commentID).To(Equal(parentID))
					Expect(viewerID).To(Equal("viewer-1"))
					return []*model.Comment{reply("c2"), reply("c3")}, nil
				}

				Expect(loader.Expand(ctx, parentID)).To(Succeed())

				Eventually(func() bool {
					node, _ := st.Get(parentID)
					return node.ChildrenLoaded
				}).Should(BeTrue())
				node, _ := st.Get(parentID)
				Expect(node.Children).To(HaveLen(2))
			})
		})

		Context("concurrent expansions", func() {
			It("should share a single in-flight fetch", func() {
				loadParent(1)
				gate := make(chan struct{})
				var calls atomic.Int32
				mockAPI.listRepliesFn = func(_ context.Context, _, _ string) ([]*model.Comment, error) {
					calls.Add(1)
					<-gate
					return []*model.Comment{reply("c2")}, nil
				}

				Expect(loader.Expand(ctx, parentID)).To(Succeed())
				Expect(loader.Expand(ctx, parentID)).To(Succeed())
				close(gate)

				Eventually(func() bool {
					node, _ := st.Get(parentID)
					return node.ChildrenLoaded
				}).Should(BeTrue())
				Expect(calls.Load()).To(Equal(int32(1)))
			})
		})

		Context("after a failed fetch", func() {
			It("should collapse the node and retry on the next expansion", func() {
				loadParent(1)
				var calls atomic.Int32
				mockAPI.listRepliesFn = func(_ context.Context, _, _ string) ([]*model.Comment, error) {
					if calls.Add(1) == 1 {
						return nil, errors.New("service unavailable")
					}
					return []*model.Comment{reply("c2")}, nil
				}

				Expect(loader.Expand(ctx, parentID)).To(Succeed())
				Eventually(func() bool {
					node, _ := st.Get(parentID)
					return node.Expanded
				}).Should(BeFalse())

				Expect(loader.Expand(ctx, parentID)).To(Succeed())
				Eventually(func() bool {
					node, _ := st.Get(parentID)
					return node.ChildrenLoaded
				}).Should(BeTrue())
				Expect(calls.Load()).To(Equal(int32(2)))
			})
		})

		Context("re-expanding a loaded node", func() {
			It("should never refetch", func() {
				loadParent(1)
				var calls atomic.Int32
				mockAPI.listRepliesFn = func(_ context.Context, _, _ string) ([]*model.Comment, error) {
					calls.Add(1)
					return []*model.Comment{reply("c2")}, nil
				}

				Expect(loader.Expand(ctx, parentID)).To(Succeed())
				Eventually(func() bool {
					node, _ := st.Get(parentID)
					return node.ChildrenLoaded
				}).Should(BeTrue())

				Expect(loader.Collapse(parentID)).To(Succeed())
				Expect(loader.Expand(ctx, parentID)).To(Succeed())

				node, _ := st.Get(parentID)
				Expect(node.Expanded).To(BeTrue())
				Expect(node.Children).To(HaveLen(1))
				Consistently(calls.Load).Should(Equal(int32(1)))
			})
		})
	})
})
