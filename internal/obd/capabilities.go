package obd

import (
	"errors"
	"fmt"
	"math/bits"
)

// ErrPIDRange is returned when an address outside [0, MaxPIDs) is used.
var ErrPIDRange = errors.New("obd: parameter address out of range")

// GroupSize is the number of addresses covered by one capability bitmap.
const GroupSize = 32

// Capabilities records which parameter addresses the vehicle supports.
// The zero value marks everything unsupported.
type Capabilities struct {
	words [MaxPIDs / 64]uint64
}

// Has reports whether p is marked capable. Out-of-range addresses are never
// capable.
func (c *Capabilities) Has(p PID) bool {
	if !p.Addressable() {
		return false
	}
	return c.words[p/64]&(1<<(p%64)) != 0
}

// Set marks p capable or not.
func (c *Capabilities) Set(p PID, on bool) error {
	if !p.Addressable() {
		return fmt.Errorf("%w: %#x", ErrPIDRange, uint16(p))
	}
	if on {
		c.words[p/64] |= 1 << (p % 64)
	} else {
		c.words[p/64] &^= 1 << (p % 64)
	}
	return nil
}

// MarkGroup applies a 32-bit capability word to the group starting at base:
// bit i of word marks address base+(31-i), so the most significant bit maps
// to the lowest address. base must be a multiple of GroupSize and the whole
// group must be addressable.
func (c *Capabilities) MarkGroup(base PID, word uint32) error {
	if base%GroupSize != 0 {
		return fmt.Errorf("obd: group base %#x is not a multiple of %d", uint16(base), GroupSize)
	}
	if !(base + GroupSize - 1).Addressable() {
		return fmt.Errorf("%w: group %#x", ErrPIDRange, uint16(base))
	}
	for i := 0; i < GroupSize; i++ {
		_ = c.Set(base+PID(GroupSize-1-i), word&(1<<i) != 0)
	}
	return nil
}

// Count returns the number of capable addresses.
func (c *Capabilities) Count() int {
	n := 0
	for _, w := range c.words {
		n += bits.OnesCount64(w)
	}
	return n
}

// alignBitmap converts the bitmap returned by a "supported PIDs" query at
// address q into the word for MarkGroup(q, ...). The dongle's bitmap at q
// describes q+1 .. q+32: its top bit is q+1 and its lowest bit is q+32, the
// first address of the next group. carry is that lowest bit from the
// previous group and becomes the flag for q itself.
func alignBitmap(carry uint32, bitmap uint32) (word uint32, nextCarry uint32) {
	return carry<<31 | bitmap>>1, bitmap & 1
}
