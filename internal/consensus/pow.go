// Package consensus implements the node's proof-of-work mining loop,
// difficulty retargeting, and the halving reward schedule. The chain
// manager drives an Engine to seal every block it admits.
package consensus

import (
	"context"
	"math"
	"time"

	"annalink.dev/annalink/internal/chaincore"
	"annalink.dev/annalink/internal/nodeerrors"
	"annalink.dev/annalink/internal/obs"
)

var logger = obs.For("consensus")

// DefaultMiningTimeout bounds how long Mine searches for a valid nonce
// before giving up and returning ErrMiningTimeout.
const DefaultMiningTimeout = 300 * time.Second

// RetargetParams controls CalculateDifficulty's adjustment schedule.
type RetargetParams struct {
	AdjustmentInterval int     // number of most recent blocks each retarget measures
	TargetBlockTime    float64 // desired average seconds between blocks
	MinDifficulty      int
	MaxDifficulty      int
}

// DefaultRetargetParams measures the most recent 10 blocks, aiming for
// one block every 600 seconds.
var DefaultRetargetParams = RetargetParams{
	AdjustmentInterval: 10,
	TargetBlockTime:    600,
	MinDifficulty:      1,
	MaxDifficulty:      256,
}

// Engine runs the proof-of-work search for a block and computes the
// reward and difficulty schedule that govern it.
type Engine struct {
	Retarget RetargetParams
}

// NewEngine builds an Engine using the default retarget schedule.
func NewEngine() *Engine {
	return &Engine{Retarget: DefaultRetargetParams}
}

// Mine searches for a nonce that makes block.Hash satisfy block.Difficulty,
// incrementing block.Nonce and recomputing block.Hash on every attempt. It
// gives up and returns nodeerrors.ErrMiningTimeout if neither the context
// is cancelled first nor a solution is found within DefaultMiningTimeout
// of wall-clock time.
func (e *Engine) Mine(ctx context.Context, block *chaincore.Block) error {
	deadline := time.Now().Add(DefaultMiningTimeout)
	log := logger.WithField("index", block.Index).WithField("difficulty", block.Difficulty)
	log.Info("mining started")

	for {
		select {
		case <-ctx.Done():
			log.Warn("mining cancelled")
			return ctx.Err()
		default:
		}
		if time.Now().After(deadline) {
			log.Warn("mining timed out")
			return nodeerrors.ErrMiningTimeout
		}

		hash, err := block.CalculateHash()
		if err != nil {
			return err
		}
		if chaincore.SatisfiesProof(hash, block.Difficulty) {
			block.Hash = hash
			log.WithField("nonce", block.Nonce).Info("mining succeeded")
			return nil
		}
		block.Nonce++
	}
}

// ValidateProof reports whether block's stored hash is internally
// consistent and satisfies its own difficulty target. It is a thin
// wrapper over Block.IsValid for callers that only care about the proof,
// not linkage to a predecessor.
func ValidateProof(block *chaincore.Block) bool {
	return block.IsValid(nil)
}

// CalculateDifficulty retargets difficulty by comparing the actual time
// taken to mine the most recent AdjustmentInterval blocks against the
// expected time for that span, adjusting by one in either direction when
// the observed rate is off by 2x, and leaving it unchanged otherwise.
// When the chain holds AdjustmentInterval blocks or fewer, the current
// difficulty (the tip's) is returned unchanged: there isn't yet a full
// window to measure. Called after every block admitted to the chain, not
// only at interval boundaries; the window always covers the most
// recently mined AdjustmentInterval blocks.
func (e *Engine) CalculateDifficulty(chain []*chaincore.Block) int {
	if len(chain) == 0 {
		return e.Retarget.MinDifficulty
	}
	current := chain[len(chain)-1].Difficulty
	interval := e.Retarget.AdjustmentInterval
	if interval <= 0 || len(chain) <= interval {
		return current
	}

	window := chain[len(chain)-interval:]
	first, last := window[0], window[len(window)-1]
	expected := e.Retarget.TargetBlockTime * float64(interval-1)
	actual := last.Timestamp - first.Timestamp

	next := current
	switch {
	case actual < expected/2:
		next = current + 1
	case actual > expected*2:
		next = current - 1
	}
	return int(math.Max(float64(e.Retarget.MinDifficulty), math.Min(float64(e.Retarget.MaxDifficulty), float64(next))))
}

// MiningReward returns the block reward at the given chain height,
// halving every 210,000 blocks starting from a 50-coin subsidy.
func MiningReward(height int64) float64 {
	halvings := height / 210000
	return 50.0 / math.Pow(2, float64(halvings))
}
