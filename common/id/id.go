package id

import (
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
)

var (
	node *snowflake.Node
	once sync.Once
)

// Init initializes the Snowflake node with the given node ID.
func Init(nodeID int64) error {
	var err error
	once.Do(func() {
		node, err = snowflake.NewNode(nodeID)
	})
	return err
}

// New generates a confirmed comment id. Only the comments service mints
// these; the sync engine never fabricates a confirmed id.
func New() string {
	return node.Generate().String()
}

const tempPrefix = "temp-"

// NewTemp generates a placeholder id for an optimistic comment. The id is
// only ever compared locally, so millisecond timestamp plus a random suffix
// is enough to keep ids distinct within one panel.
func NewTemp() string {
	return fmt.Sprintf("%s%d-%06d", tempPrefix, time.Now().UnixMilli(), rand.Intn(1000000))
}

// IsTemp reports whether an id is a locally generated placeholder.
func IsTemp(id string) bool {
	return strings.HasPrefix(id, tempPrefix)
}
