package main

import "math"

// lamportsToSOL converts lamports to SOL as a float.
func lamportsToSOL(l uint64) float64 {
	return float64(l) / float64(1_000_000_000)
}

// solToLamports converts a SOL amount to lamports, rounding to the nearest
// lamport. Negative amounts yield 0.
func solToLamports(s float64) uint64 {
	if s <= 0 {
		return 0
	}
	return uint64(math.Round(s * 1_000_000_000))
}
