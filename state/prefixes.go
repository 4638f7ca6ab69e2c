package state

// Key layout for ledger records inside the KV store. Every record family gets
// its own byte prefix so families can never collide.
var (
	poolKey        = []byte("lending/pool")
	positionPrefix = []byte("lending/position/")
	supplyPrefix   = []byte("lending/supply/")
	accountPrefix  = []byte("account/")
)

func withPrefix(prefix, suffix []byte) []byte {
	key := make([]byte, 0, len(prefix)+len(suffix))
	key = append(key, prefix...)
	return append(key, suffix...)
}
