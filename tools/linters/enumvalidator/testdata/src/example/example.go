package example

type Vote string

const (
	VoteNone    Vote = ""
	VoteLike    Vote = "like"
	VoteDislike Vote = "dislike"
)

type InsertPolicy string

const (
	PolicyPrepend InsertPolicy = "prepend"
	PolicyAppend  InsertPolicy = "append"
)

type Comment struct {
	UserVote Vote
}

type Store struct {
	Policy InsertPolicy
}

func bad() {
	c := &Comment{}
	c.UserVote = "upvote" // want "enum field UserVote assigned string literal"

	s := &Store{}
	s.Policy = "newest-first" // want "enum field Policy assigned string literal"
}

func good() {
	c := &Comment{}
	c.UserVote = VoteLike // OK: using constant

	s := &Store{}
	s.Policy = PolicyPrepend // OK: using constant
}

func alsoGood() {
	// OK: Variable, not literal
	vote := VoteDislike
	c := &Comment{UserVote: vote}
	_ = c
}
