package syncer

import (
	"math"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
)

// Strategy selects how a source trade is translated into our own order size.
type Strategy string

const (
	StrategyExact      Strategy = "exact"
	StrategyScaled     Strategy = "scaled"
	StrategyPercentage Strategy = "percentage"
	StrategyAdaptive   Strategy = "adaptive"
)

// ValidStrategy reports whether s names a known strategy.
func ValidStrategy(s Strategy) bool {
	switch s {
	case StrategyExact, StrategyScaled, StrategyPercentage, StrategyAdaptive:
		return true
	}
	return false
}

// The sizing functions below are pure so they can be tested without any
// market plumbing.

// SizeExact mirrors the source trade one-for-one.
func SizeExact(srcSize float64) float64 {
	return srcSize
}

// SizeScaled multiplies the source size by a fixed factor.
func SizeScaled(srcSize, factor float64) float64 {
	return srcSize * factor
}

// SizePercentage spends a fixed fraction of the current balance at the source
// price. Returns 0 when the inputs cannot produce a positive size.
func SizePercentage(balance, pct, srcPrice float64) float64 {
	if balance <= 0 || pct <= 0 || srcPrice <= 0 {
		return 0
	}
	return balance * pct / srcPrice
}

// AdaptivePrice reprices a copy order against the current midpoint. If the
// source price deviates from the mid by more than maxSlippage (relative), the
// order is placed half the allowed slippage away from the mid instead, on the
// aggressive side for the given direction.
func AdaptivePrice(srcPrice, mid, maxSlippage float64, side models.Side) float64 {
	if mid <= 0 || maxSlippage <= 0 {
		return srcPrice
	}
	if math.Abs(srcPrice-mid)/mid <= maxSlippage {
		return srcPrice
	}
	if side == models.SideBuy {
		return mid * (1 + maxSlippage/2)
	}
	return mid * (1 - maxSlippage/2)
}

// RoundToTick snaps a price onto the market's tick grid toward the passive
// side: down for buys, up for sells. Snapping toward the aggressive side
// could push a clamped price past its slippage bound. The result stays inside
// the open (0, 1) band prices live in.
func RoundToTick(price, tick float64, side models.Side) float64 {
	if tick <= 0 {
		return price
	}
	steps := price / tick
	if side == models.SideBuy {
		steps = math.Floor(steps + 1e-9)
	} else {
		steps = math.Ceil(steps - 1e-9)
	}
	rounded := steps * tick
	if rounded < tick {
		rounded = tick
	}
	if rounded > 1-tick {
		rounded = 1 - tick
	}
	return rounded
}
