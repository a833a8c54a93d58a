// Package fault simulates an unreliable network by applying seeded,
// per-chunk drop, corruption and reordering policies to an outbound
// chunk stream.
//
// The injector owns an explicit random source: identical seeds produce
// identical fault decisions, which keeps failure scenarios reproducible
// in tests and demos.
package fault

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/filewire/chunker"
)

// Config parameterizes an Injector. Probabilities are per chunk and
// evaluated independently.
type Config struct {
	// DropProbability is the chance a chunk is omitted entirely.
	DropProbability float64
	// CorruptProbability is the chance at least one bit of a delivered
	// chunk's payload is flipped. Sequence numbers are never altered,
	// so loss detection stays reliable while content detection relies
	// on the checksum.
	CorruptProbability float64
	// Reorder shuffles the emission order of the surviving chunks.
	// Every surviving sequence number is still emitted exactly once.
	Reorder bool
	// Seed initializes the injector's random source.
	Seed int64
}

// Validate checks that both probabilities lie in [0, 1].
func (c Config) Validate() error {
	if c.DropProbability < 0 || c.DropProbability > 1 {
		return fmt.Errorf("drop probability %v outside [0, 1]", c.DropProbability)
	}
	if c.CorruptProbability < 0 || c.CorruptProbability > 1 {
		return fmt.Errorf("corrupt probability %v outside [0, 1]", c.CorruptProbability)
	}
	return nil
}

// Injector applies a fault policy to chunk streams. It is not safe for
// concurrent use; each sender owns its own injector.
type Injector struct {
	cfg Config
	rng *rand.Rand
}

// NewInjector creates an injector with its own seeded random source.
func NewInjector(cfg Config) (*Injector, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	logrus.WithFields(logrus.Fields{
		"function":     "NewInjector",
		"drop_prob":    cfg.DropProbability,
		"corrupt_prob": cfg.CorruptProbability,
		"reorder":      cfg.Reorder,
		"seed":         cfg.Seed,
	}).Info("Fault injector created")

	return &Injector{
		cfg: cfg,
		rng: rand.New(rand.NewSource(cfg.Seed)),
	}, nil
}

// Apply runs every chunk through the drop and corruption policies, then
// optionally shuffles the survivors. The input slice and its payloads
// are never modified; corrupted chunks carry copied payloads.
func (in *Injector) Apply(chunks []chunker.Chunk) []chunker.Chunk {
	out := make([]chunker.Chunk, 0, len(chunks))

	for _, c := range chunks {
		if in.rng.Float64() < in.cfg.DropProbability {
			logrus.WithFields(logrus.Fields{
				"function": "Apply",
				"seq":      c.Seq,
			}).Info("Simulating packet loss for chunk")
			continue
		}

		if len(c.Data) > 0 && in.rng.Float64() < in.cfg.CorruptProbability {
			logrus.WithFields(logrus.Fields{
				"function": "Apply",
				"seq":      c.Seq,
			}).Info("Simulating data corruption for chunk")
			c = chunker.Chunk{Seq: c.Seq, Data: in.corrupt(c.Data)}
		}

		out = append(out, c)
	}

	if in.cfg.Reorder {
		in.rng.Shuffle(len(out), func(i, j int) {
			out[i], out[j] = out[j], out[i]
		})
	}

	return out
}

// corrupt returns a copy of data with between one and ten distinct
// bytes XORed with nonzero values, guaranteeing at least one flipped
// bit.
func (in *Injector) corrupt(data []byte) []byte {
	corrupted := make([]byte, len(data))
	copy(corrupted, data)

	flips := 1 + in.rng.Intn(10)
	if flips > len(corrupted) {
		flips = len(corrupted)
	}
	for _, pos := range in.rng.Perm(len(corrupted))[:flips] {
		corrupted[pos] ^= byte(1 + in.rng.Intn(255))
	}

	return corrupted
}
