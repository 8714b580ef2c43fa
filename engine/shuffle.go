package engine

import (
	"crypto/rand"
	"math/big"
)

// CryptoShuffler is the production Shuffler: a Fisher-Yates permutation driven
// by crypto/rand. Tests inject a deterministic Shuffler instead.
type CryptoShuffler struct{}

func (CryptoShuffler) Shuffle(n int, swap func(i, j int)) {
	for i := n - 1; i > 0; i-- {
		r, err := rand.Int(rand.Reader, big.NewInt(int64(i+1)))
		if err != nil {
			// Entropy exhaustion; nothing sensible to fall back to.
			panic(err)
		}
		swap(i, int(r.Int64()))
	}
}
