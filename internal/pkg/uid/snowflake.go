package uid

import (
	"crypto/sha256"
	"encoding/binary"
	"os"
	"strconv"

	"github.com/bwmarrin/snowflake"
)

// Snowflake generates time-ordered int64 IDs safe for distributed use.
type Snowflake struct {
	node *snowflake.Node
}

// NewSnowflake creates a generator whose node number is derived from the
// machine identity, so independently started processes on different hosts
// do not collide.
func NewSnowflake() (*Snowflake, error) {
	node, err := snowflake.NewNode(nodeNumber())
	if err != nil {
		return nil, err
	}
	return &Snowflake{node: node}, nil
}

// Generate returns a new unique int64 identifier.
func (s *Snowflake) Generate() int64 {
	return s.node.Generate().Int64()
}

func nodeNumber() int64 {
	src := ""
	if b, err := os.ReadFile("/etc/machine-id"); err == nil {
		src = string(b)
	}
	if src == "" {
		if h, err := os.Hostname(); err == nil {
			src = h
		}
	}
	src += strconv.Itoa(os.Getpid())

	sum := sha256.Sum256([]byte(src))
	// snowflake node numbers are 10 bits
	return int64(binary.BigEndian.Uint16(sum[:2]) % 1024)
}
