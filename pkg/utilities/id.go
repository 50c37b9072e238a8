package utilities

import (
	"fmt"

	"github.com/bwmarrin/snowflake"
	"github.com/segmentio/ksuid"
)

// IDGenerator returns a new unique identifier on every call.
type IDGenerator func() string

// NewKSUID generates a new globally unique KSUID string.
func NewKSUID() string {
	return ksuid.New().String()
}

// NewSnowflakeGenerator returns a generator backed by a single snowflake node.
// The node is created once so that its sequence counter is shared by every
// call; creating a node per id would hand out duplicates within a millisecond.
func NewSnowflakeGenerator(nodeID int64) (IDGenerator, error) {
	node, err := snowflake.NewNode(nodeID)
	if err != nil {
		return nil, fmt.Errorf("snowflake node %d: %w", nodeID, err)
	}
	return func() string { return node.Generate().String() }, nil
}

// NewIDGenerator picks a generator by strategy name ("ksuid" or "snowflake").
// An empty strategy means ksuid.
func NewIDGenerator(strategy string, snowflakeNode int64) (IDGenerator, error) {
	switch strategy {
	case "", "ksuid":
		return NewKSUID, nil
	case "snowflake":
		return NewSnowflakeGenerator(snowflakeNode)
	default:
		return nil, fmt.Errorf("unknown id strategy %q", strategy)
	}
}
