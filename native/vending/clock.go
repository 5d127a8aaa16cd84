package vending

import "github.com/holiman/uint256"

// Clock supplies the current host time in seconds.
type Clock interface {
	Now() *uint256.Int
}

// TimestampSource is anything exposing a block timestamp.
type TimestampSource interface {
	BlockTimestamp() uint64
}

type blockClock struct {
	now uint256.Int
}

// NewBlockClock reads the block timestamp once and serves that value for the
// rest of the invocation.
func NewBlockClock(src TimestampSource) Clock {
	c := &blockClock{}
	c.now.SetUint64(src.BlockTimestamp())
	return c
}

func (c *blockClock) Now() *uint256.Int {
	return new(uint256.Int).Set(&c.now)
}

// FixedClock always reports the same time.
type FixedClock uint64

// Now implements Clock.
func (c FixedClock) Now() *uint256.Int {
	return uint256.NewInt(uint64(c))
}
