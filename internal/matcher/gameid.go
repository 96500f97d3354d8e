package matcher

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

// GameID derives the deterministic game identifier for a pairing: the first
// 16 bytes of SHA256 over the sorted player pair and the pairing second.
// Sorting makes the id commutative in the pair, so a replayed pairing
// transaction regenerates the same id and the duplicate insert is rejected.
func GameID(p1, p2 string, nowSeconds int64) string {
	if p2 < p1 {
		p1, p2 = p2, p1
	}
	sum := sha256.Sum256([]byte(fmt.Sprintf("%s#%s#%d", p1, p2, nowSeconds)))
	return hex.EncodeToString(sum[:16])
}
