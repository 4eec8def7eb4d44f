package payload

import (
	"math/rand"
	"strconv"
	"strings"
	"time"
)

// Park-Miller minimal standard generator constants.
const (
	prngModulus    = 2147483647
	prngMultiplier = 16807
	randomDraws    = 4
)

// Entropy supplies the clock and random fraction used when a generator is
// seeded with zero.
type Entropy struct {
	Now   func() time.Time
	Float func() float64
}

// DefaultEntropy uses the wall clock and math/rand.
func DefaultEntropy() Entropy {
	return Entropy{Now: time.Now, Float: rand.Float64}
}

// ParkMiller is the Lehmer generator used by the client runtime.
type ParkMiller struct {
	state int64
}

// NewParkMiller seeds a generator. A zero seed is replaced by the clock
// mixed with a random fraction, masked to 31 bits.
func NewParkMiller(seed int32, e Entropy) *ParkMiller {
	s := int64(seed)
	if s == 0 {
		if e.Now == nil || e.Float == nil {
			e = DefaultEntropy()
		}
		r := int64(e.Float() * 0.025 * 0x7FFFFFFF)
		s = (e.Now().UnixMilli() ^ r) & 0x7FFFFFFF
	}
	return &ParkMiller{state: s & 0x7FFFFFFF}
}

// Next advances the generator and returns the new state.
func (p *ParkMiller) Next() int64 {
	p.state = p.state * prngMultiplier % prngModulus
	return p.state
}

// RandomSeed seeds a generator with seed mod bytesLoaded (0 when
// bytesLoaded is 0) and concatenates four draws.
func RandomSeed(seed int32, loader LoaderInfo, e Entropy) string {
	rng := NewParkMiller(safeMod(seed, loader.BytesLoaded), e)
	var sb strings.Builder
	for i := 0; i < randomDraws; i++ {
		sb.WriteString(strconv.FormatInt(rng.Next(), 10))
	}
	return sb.String()
}
