package testutil

// FixedRunIDGenerator returns the same run id every time.
//
// Scenario reports embed run ids, so golden files only stay byte-identical
// when every observation of a scenario carries a fixed id.
//
// Thread-safety: stateless and safe for concurrent use.
type FixedRunIDGenerator struct {
	id string
}

// NewFixedRunIDGenerator creates a generator for id. An empty id becomes
// "test-run-default".
func NewFixedRunIDGenerator(id string) *FixedRunIDGenerator {
	if id == "" {
		id = "test-run-default"
	}
	return &FixedRunIDGenerator{id: id}
}

// Generate returns the fixed id. It satisfies experiment.IDGenerator.
func (g *FixedRunIDGenerator) Generate() string {
	return g.id
}
