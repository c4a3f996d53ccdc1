package vm

import "time"

// lcg is the linear congruential generator behind the Rand opcode,
// seeded from system time when the VM starts: each draw is
// prev = 25173*prev + 13849; result = prev mod (range+1).
type lcg struct {
	prev uint32
}

func newLCG() *lcg {
	return &lcg{prev: uint32(time.Now().UnixNano())}
}

func (g *lcg) next(rangeN int32) int32 {
	g.prev = 25173*g.prev + 13849
	if rangeN < 0 {
		rangeN = 0
	}
	return int32(g.prev % uint32(rangeN+1))
}
