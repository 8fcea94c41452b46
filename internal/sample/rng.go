// Package sample implements on-device categorical action sampling: one
// draw per agent from that agent's logits, using a private xorshift128
// generator state per agent so no draw ever shares or races state.
package sample

// Xorshift128 advances a 4-word generator state in place and returns
// the next 32-bit draw (Marsaglia's xorshift with the 11/8/19 triple).
// The same update runs in WGSL inside the sampling kernel, which only
// has 32-bit integers; keeping the host form identical makes the seed
// expansion and the sampled stream reproducible.
func Xorshift128(s []uint32) uint32 {
	t := s[0] ^ (s[0] << 11)
	t ^= t >> 8
	s[0], s[1], s[2] = s[1], s[2], s[3]
	s[3] = s[3] ^ (s[3] >> 19) ^ t
	return s[3]
}

// splitmix64 is the seed expander: a counter-based generator with good
// avalanche behavior, used once at initialization to derive disjoint
// per-agent xorshift states from (seed, agent index).
func splitmix64(x uint64) uint64 {
	x += 0x9e3779b97f4a7c15
	x = (x ^ (x >> 30)) * 0xbf58476d1ce4e5b9
	x = (x ^ (x >> 27)) * 0x94d049bb133111eb
	return x ^ (x >> 31)
}

// SeedStates derives n independent 4-word xorshift states from a seed.
// Agent i's state is expanded from splitmix64(seed + i), so any two
// agents' streams are decorrelated regardless of how close their
// indices are. A zero state cannot occur: splitmix64 output words are
// mixed with non-zero constants before use.
func SeedStates(seed int64, n int) []uint32 {
	out := make([]uint32, 4*n)
	for i := 0; i < n; i++ {
		base := splitmix64(uint64(seed) + uint64(i)*0x9e3779b97f4a7c15)
		next := splitmix64(base)
		out[i*4+0] = uint32(base)
		out[i*4+1] = uint32(base >> 32)
		out[i*4+2] = uint32(next)
		out[i*4+3] = uint32(next>>32) | 1
	}
	return out
}
