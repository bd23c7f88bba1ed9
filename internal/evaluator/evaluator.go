// Package evaluator runs fixed-opponent tournaments: a candidate agent
// plays a baseline opponent over N games with color alternation, and the
// package reports win/draw/loss rates, a Wilson score confidence interval
// on the win rate, a two-sided exact binomial significance test against a
// 0.5 null, and an effect-size classification.
package evaluator

import (
	"math"
	"math/rand"

	"github.com/lox/chessrl/internal/agent"
	"github.com/lox/chessrl/internal/engine"
)

// GameOutcome is one played game's result from the candidate's perspective.
type GameOutcome struct {
	CandidateWasWhite bool
	Outcome           engine.Outcome
	Plies             int
}

// Interval is a two-sided confidence interval.
type Interval struct {
	Lower float64
	Upper float64
}

// EffectLabel classifies |winRate-0.5| into the conventional
// negligible/small/medium/large buckets.
type EffectLabel string

const (
	EffectNegligible EffectLabel = "negligible"
	EffectSmall      EffectLabel = "small"
	EffectMedium     EffectLabel = "medium"
	EffectLarge      EffectLabel = "large"
)

// Result aggregates one tournament against a single opponent.
type Result struct {
	OpponentName       string
	Games              int
	Wins               int
	Draws              int
	Losses             int
	WinRate            float64
	ConfidenceInterval Interval
	PValue             float64
	Significant        bool
	EffectSize         float64
	EffectLabel        EffectLabel
	GameLengths        []int

	// Per-color breakdown.
	WinsAsWhite, DrawsAsWhite, LossesAsWhite int
	WinsAsBlack, DrawsAsBlack, LossesAsBlack int
}

// Config controls one Evaluate call.
type Config struct {
	Games    int
	MaxPlies int // 0 means no cap
}

// Evaluate plays cfg.Games games between candidate and opponent, alternating
// which color the candidate plays (half as White, half as Black; the odd
// game out — when Games is odd — goes to White), and aggregates the result.
// rng seeds each game's move selection deterministically.
func Evaluate(adapter engine.Adapter, candidate, opponent agent.Agent, cfg Config, rng *rand.Rand) (Result, error) {
	res := Result{OpponentName: opponent.Name()}
	if cfg.Games <= 0 {
		return res, nil
	}
	res.Games = cfg.Games
	res.GameLengths = make([]int, 0, cfg.Games)

	whiteGames := cfg.Games / 2
	if cfg.Games%2 == 1 {
		whiteGames++
	}

	for i := 0; i < cfg.Games; i++ {
		candidateWhite := i < whiteGames
		var white, black agent.Agent
		if candidateWhite {
			white, black = candidate, opponent
		} else {
			white, black = opponent, candidate
		}

		outcome, plies, err := playGame(adapter, white, black, cfg.MaxPlies, rng)
		if err != nil {
			return Result{}, err
		}
		res.GameLengths = append(res.GameLengths, plies)

		candidateResult := resultFor(outcome, candidateWhite)
		switch candidateResult {
		case resultWin:
			res.Wins++
		case resultDraw:
			res.Draws++
		case resultLoss:
			res.Losses++
		}
		if candidateWhite {
			switch candidateResult {
			case resultWin:
				res.WinsAsWhite++
			case resultDraw:
				res.DrawsAsWhite++
			case resultLoss:
				res.LossesAsWhite++
			}
		} else {
			switch candidateResult {
			case resultWin:
				res.WinsAsBlack++
			case resultDraw:
				res.DrawsAsBlack++
			case resultLoss:
				res.LossesAsBlack++
			}
		}
	}

	res.WinRate = float64(res.Wins) / float64(res.Games)
	res.ConfidenceInterval = wilsonInterval(res.Wins, res.Games, 1.959963984540054)
	res.PValue = twoSidedBinomialPValue(res.Games, res.Wins, 0.5)
	res.Significant = res.PValue < 0.05
	res.EffectSize = math.Abs(res.WinRate - 0.5)
	res.EffectLabel = classifyEffect(res.EffectSize)
	return res, nil
}

type gameResult int

const (
	resultLoss gameResult = iota
	resultDraw
	resultWin
)

func resultFor(outcome engine.Outcome, wasWhite bool) gameResult {
	switch outcome {
	case engine.Draw:
		return resultDraw
	case engine.WhiteWins:
		if wasWhite {
			return resultWin
		}
		return resultLoss
	case engine.BlackWins:
		if wasWhite {
			return resultLoss
		}
		return resultWin
	default:
		return resultDraw
	}
}

// playGame runs one game to a terminal state or the ply cap, with no reward
// shaping — evaluation only needs the final outcome and game length.
func playGame(adapter engine.Adapter, white, black agent.Agent, maxPlies int, rng *rand.Rand) (engine.Outcome, int, error) {
	pos := adapter.InitialState()
	plies := 0
	for {
		if adapter.IsTerminal(pos) {
			outcome, _ := adapter.Outcome(pos)
			return outcome, plies, nil
		}
		if maxPlies > 0 && plies >= maxPlies {
			return engine.Draw, plies, nil
		}
		legal := adapter.LegalMoves(pos)
		if len(legal) == 0 {
			return engine.Draw, plies, nil
		}
		mover := white
		if pos.SideToMove() == engine.Black {
			mover = black
		}
		mv, err := mover.SelectAction(pos, legal, rng)
		if err != nil {
			return engine.Ongoing, plies, err
		}
		next, err := adapter.ApplyMove(pos, mv)
		if err != nil {
			return engine.Ongoing, plies, err
		}
		pos = next
		plies++
	}
}

// wilsonInterval computes the Wilson score interval for a binomial
// proportion, which (unlike the naive normal approximation) stays within
// [0,1] and is well-behaved near 0 or 1 successes.
func wilsonInterval(wins, n int, z float64) Interval {
	if n == 0 {
		return Interval{}
	}
	phat := float64(wins) / float64(n)
	nf := float64(n)
	z2 := z * z
	denom := 1 + z2/nf
	center := phat + z2/(2*nf)
	margin := z * math.Sqrt(phat*(1-phat)/nf+z2/(4*nf*nf))
	return Interval{
		Lower: math.Max(0, (center-margin)/denom),
		Upper: math.Min(1, (center+margin)/denom),
	}
}

// classifyEffect buckets an absolute win-rate difference from 0.5 at the
// 0.2/0.5/0.8 thresholds.
func classifyEffect(diff float64) EffectLabel {
	switch {
	case diff < 0.2:
		return EffectNegligible
	case diff < 0.5:
		return EffectSmall
	case diff < 0.8:
		return EffectMedium
	default:
		return EffectLarge
	}
}

// twoSidedBinomialPValue computes the exact two-sided p-value for observing
// k successes in n Bernoulli(p) trials, as the doubled smaller tail
// probability (the convention used by most binomial.test implementations),
// capped at 1.
func twoSidedBinomialPValue(n, k int, p float64) float64 {
	if n == 0 {
		return 1
	}
	lower := binomialCDF(n, k, p)
	upper := 1 - binomialCDF(n, k-1, p)
	pv := 2 * math.Min(lower, upper)
	if pv > 1 {
		pv = 1
	}
	return pv
}

// binomialCDF returns P(X <= k) for X ~ Binomial(n, p), via log-space PMF
// summation so it stays numerically stable for n in the hundreds.
func binomialCDF(n, k int, p float64) float64 {
	if k < 0 {
		return 0
	}
	if k >= n {
		return 1
	}
	sum := 0.0
	for i := 0; i <= k; i++ {
		sum += binomialPMF(n, i, p)
	}
	return sum
}

func binomialPMF(n, k int, p float64) float64 {
	logCoeff, _ := math.Lgamma(float64(n) + 1)
	a, _ := math.Lgamma(float64(k) + 1)
	b, _ := math.Lgamma(float64(n-k) + 1)
	logCoeff = logCoeff - a - b

	var logP, log1mP float64
	if p <= 0 {
		logP = math.Inf(-1)
	} else {
		logP = math.Log(p)
	}
	if p >= 1 {
		log1mP = math.Inf(-1)
	} else {
		log1mP = math.Log(1 - p)
	}
	logPMF := logCoeff + float64(k)*logP + float64(n-k)*log1mP
	return math.Exp(logPMF)
}
