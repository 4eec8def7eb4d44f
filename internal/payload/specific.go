package payload

import (
	"crypto/sha256"
	"encoding/hex"
	"strconv"
	"strings"
)

// Item-level table keys read by the specific-item token.
const (
	levelHair1     = "hair_10000_1"
	levelHair0     = "hair_10000_0"
	levelAccessory = "accessory_2003"
)

// SpecificItem builds str(seed) + sha256hex(str(x)) + str(seed)*4 where x
// is specificValue.
func SpecificItem(loader LoaderInfo, seed int32, levels map[string]int) string {
	x := specificValue(loader, seed, levels)
	sum := sha256.Sum256([]byte(strconv.FormatInt(int64(x), 10)))
	s := strconv.FormatInt(int64(seed), 10)
	return s + hex.EncodeToString(sum[:]) + strings.Repeat(s, 4)
}

// specificValue evaluates the token arithmetic over int32 with wraparound.
// Additions bind first; the xor/and chain runs strictly left to right.
// This is the order the game client evaluates and the server checks. Do not
// rewrite it with & ahead of ^: scenario tokens would change.
func specificValue(loader LoaderInfo, seed int32, levels map[string]int) int32 {
	bt, bl := loader.BytesTotal, loader.BytesLoaded
	h1 := int32(levels[levelHair1])
	h0 := int32(levels[levelHair0])
	acc := int32(levels[levelAccessory])

	x := (bt ^ bl) + 1337
	x ^= seed
	x ^= 1337 + 1337
	x ^= seed
	x ^= 1337 + 1337
	x ^= 0x0539
	x &= safeMod(safeMod(bl, h1), bl)
	x &= bt
	x ^= safeMod(safeMod(h0, seed), 1333777) + acc
	return x
}

// safeMod is truncated modulo with a zero divisor yielding 0.
func safeMod(a, b int32) int32 {
	if b == 0 {
		return 0
	}
	return a % b
}
