package jobcore

import (
	"crypto/rand"
	"encoding/binary"
	"math/big"
	mrand "math/rand/v2"
	"strconv"
	"strings"

	"go.uber.org/zap"

	"mediagen/logging"
)

// DefaultSeedMax is the inclusive upper bound for random seeds.
const DefaultSeedMax int64 = 1_000_000_000

// randomToken asks for a fresh seed explicitly.
const randomToken = "random"

// Seed is the integer driving every stochastic step of a job.
// Two jobs with the same explicit seed and inputs produce the same output.
type Seed int64

// Rand returns a deterministic generator derived from the seed.
func (s Seed) Rand() *mrand.Rand {
	var key [32]byte
	binary.LittleEndian.PutUint64(key[:8], uint64(s))
	return mrand.New(mrand.NewChaCha8(key))
}

func (s Seed) String() string {
	return strconv.FormatInt(int64(s), 10)
}

// SeedResolver turns an optional seed token into a Seed.
type SeedResolver struct {
	// Max bounds random seeds to [1, Max]. Zero means DefaultSeedMax.
	Max int64

	// Random draws a value in [1, max]. Nil uses crypto/rand.
	Random func(max int64) int64

	Logger *logging.Logger
}

// Resolve returns the explicit seed when token parses as a base-10 integer
// and otherwise a fresh random one. It never fails: "random" in any case,
// an absent token and malformed tokens all mean random.
func (r SeedResolver) Resolve(token string, given bool) Seed {
	logger := r.Logger
	if logger == nil {
		logger = logging.NewNop()
	}

	token = strings.TrimSpace(token)
	if given && !strings.EqualFold(token, randomToken) {
		value, err := strconv.ParseInt(token, 10, 64)
		switch {
		case err != nil:
			logger.Warn("seed token is not an integer, using a random seed",
				zap.String("seed_input", token))
		case value < 0:
			logger.Warn("negative seed token, using a random seed",
				zap.Int64("seed_input", value))
		default:
			logger.Info("using provided seed", zap.Int64("seed", value))
			return Seed(value)
		}
	}

	seed := Seed(r.draw())
	logger.Info("using random seed", zap.Int64("seed", int64(seed)))
	return seed
}

func (r SeedResolver) draw() int64 {
	max := r.Max
	if max <= 0 {
		max = DefaultSeedMax
	}
	if r.Random != nil {
		return r.Random(max)
	}
	return RandomSeed(max)
}

// RandomSeed returns a cryptographically random value in [1, max].
func RandomSeed(max int64) int64 {
	if max <= 1 {
		return 1
	}
	n, err := rand.Int(rand.Reader, big.NewInt(max))
	if err != nil {
		// crypto/rand failing is extremely rare; fall back to the
		// non-cryptographic source rather than failing the job
		return mrand.Int64N(max) + 1
	}
	return n.Int64() + 1
}
