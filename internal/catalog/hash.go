package catalog

// NormalizeHash converts a catalog hash from the unsigned 32-bit form the
// stats source reports to the signed two's-complement form the reference
// catalog indexes by. Already-signed values pass through unchanged, so
// normalizing twice is safe.
func NormalizeHash(hash int64) int64 {
	if hash < 0 {
		return hash
	}
	if hash&(1<<31) != 0 {
		return hash - (1 << 32)
	}
	return hash
}
