package reputation

// ScoreRecord is the stored admission score for a single principal. Scores
// are written by an authorized attester and read by the lending engine when a
// position opens; the engine never mutates them.
type ScoreRecord struct {
	Subject   []byte
	Score     uint64
	UpdatedAt uint64
}
