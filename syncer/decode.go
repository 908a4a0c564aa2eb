// Package syncer implements the on-chain trade scanner, the trade router and
// the copy decision engine.
package syncer

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/AzrielTheHellrazor/polymarket-agent/models"
	"github.com/AzrielTheHellrazor/polymarket-agent/utils"
)

// Event signatures of the trade-bearing log shapes the scanner understands,
// tried in this priority order during decoding.
var (
	sigOrderFilled    = crypto.Keccak256Hash([]byte("OrderFilled(bytes32,address,address,uint256,uint256,uint256,uint256,uint256)"))
	sigOrdersMatched  = crypto.Keccak256Hash([]byte("OrdersMatched(bytes32,address,uint256,uint256,uint256,uint256)"))
	sigTransferSingle = crypto.Keccak256Hash([]byte("TransferSingle(address,address,address,uint256,uint256)"))
)

// fillEvent is a two-party OrderFilled: both legs' asset ids and the amounts
// each side gave.
type fillEvent struct {
	Maker        common.Address
	Taker        common.Address
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerFilled  *big.Int
	TakerFilled  *big.Int
}

// matchedEvent is a single-party OrdersMatched aggregate for the taker order.
type matchedEvent struct {
	Party        common.Address
	MakerAssetID *big.Int
	TakerAssetID *big.Int
	MakerFilled  *big.Int
	TakerFilled  *big.Int
}

// transferEvent is an ERC1155 TransferSingle, the no-price fallback shape.
type transferEvent struct {
	From    common.Address
	To      common.Address
	AssetID *big.Int
	Value   *big.Int
}

// decodedLog is the tagged-union outcome of decoding one log. Kind is empty
// for unknown or malformed logs, which the scanner skips silently.
type decodedLog struct {
	Kind     models.EventKind
	Fill     *fillEvent
	Matched  *matchedEvent
	Transfer *transferEvent
}

// decodeExchangeLog attempts each known event signature in priority order.
func decodeExchangeLog(lg types.Log) decodedLog {
	if len(lg.Topics) == 0 {
		return decodedLog{}
	}

	switch lg.Topics[0] {
	case sigOrderFilled:
		// topics: 0 sig, 1 orderHash, 2 maker, 3 taker
		// data: makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled, fee
		if len(lg.Topics) < 4 || len(lg.Data) < 32*5 {
			return decodedLog{}
		}
		return decodedLog{
			Kind: models.EventFill,
			Fill: &fillEvent{
				Maker:        common.BytesToAddress(lg.Topics[2].Bytes()),
				Taker:        common.BytesToAddress(lg.Topics[3].Bytes()),
				MakerAssetID: dataWord(lg.Data, 0),
				TakerAssetID: dataWord(lg.Data, 1),
				MakerFilled:  dataWord(lg.Data, 2),
				TakerFilled:  dataWord(lg.Data, 3),
			},
		}

	case sigOrdersMatched:
		// topics: 0 sig, 1 takerOrderHash, 2 takerOrderMaker
		// data: makerAssetId, takerAssetId, makerAmountFilled, takerAmountFilled
		if len(lg.Topics) < 3 || len(lg.Data) < 32*4 {
			return decodedLog{}
		}
		return decodedLog{
			Kind: models.EventMatched,
			Matched: &matchedEvent{
				Party:        common.BytesToAddress(lg.Topics[2].Bytes()),
				MakerAssetID: dataWord(lg.Data, 0),
				TakerAssetID: dataWord(lg.Data, 1),
				MakerFilled:  dataWord(lg.Data, 2),
				TakerFilled:  dataWord(lg.Data, 3),
			},
		}

	case sigTransferSingle:
		// topics: 0 sig, 1 operator, 2 from, 3 to
		// data: id, value
		if len(lg.Topics) < 4 || len(lg.Data) < 32*2 {
			return decodedLog{}
		}
		return decodedLog{
			Kind: models.EventTransfer,
			Transfer: &transferEvent{
				From:    common.BytesToAddress(lg.Topics[2].Bytes()),
				To:      common.BytesToAddress(lg.Topics[3].Bytes()),
				AssetID: dataWord(lg.Data, 0),
				Value:   dataWord(lg.Data, 1),
			},
		}
	}

	return decodedLog{}
}

func dataWord(data []byte, word int) *big.Int {
	start := word * 32
	return new(big.Int).SetBytes(data[start : start+32])
}

// Raw on-chain amounts are fixed-point integers. Polymarket uses 1e6 for both
// USDC and outcome shares; some venues emit 1e18-scaled amounts. The scale is
// chosen by magnitude: amounts at or above 1e15 are treated as 1e18-scaled.
var scaleCutoff = new(big.Int).Exp(big.NewInt(10), big.NewInt(15), nil)

func normalizeAmount(raw *big.Int) float64 {
	if raw == nil || raw.Sign() == 0 {
		return 0
	}
	denom := big.NewFloat(1e6)
	if raw.CmpAbs(scaleCutoff) >= 0 {
		denom = big.NewFloat(1e18)
	}
	f, _ := new(big.Float).Quo(new(big.Float).SetInt(raw), denom).Float64()
	return f
}

// tradesFromLog converts a decoded log into normalized trades, one per
// watched party involved in the event.
func tradesFromLog(lg types.Log, dec decodedLog, isWatched func(common.Address) bool, ts time.Time) []models.DetectedTrade {
	base := models.DetectedTrade{
		Event:       dec.Kind,
		TxHash:      lg.TxHash.Hex(),
		LogIndex:    lg.Index,
		BlockNumber: lg.BlockNumber,
		Timestamp:   ts,
	}

	var trades []models.DetectedTrade

	switch dec.Kind {
	case models.EventFill:
		ev := dec.Fill
		if isWatched(ev.Maker) {
			// Watched wallet on the maker leg sold whatever that leg holds.
			t := base
			t.Wallet = utils.NormalizeAddress(ev.Maker.Hex())
			t.Side = models.SideSell
			t.TokenID = ev.MakerAssetID.String()
			t.Size = normalizeAmount(ev.MakerFilled)
			t.Price = legRatio(ev.TakerFilled, ev.MakerFilled)
			trades = append(trades, t)
		}
		if isWatched(ev.Taker) {
			t := base
			t.Wallet = utils.NormalizeAddress(ev.Taker.Hex())
			t.Side = models.SideBuy
			t.TokenID = ev.TakerAssetID.String()
			t.Size = normalizeAmount(ev.TakerFilled)
			t.Price = legRatio(ev.MakerFilled, ev.TakerFilled)
			trades = append(trades, t)
		}

	case models.EventMatched:
		ev := dec.Matched
		if isWatched(ev.Party) {
			// Always a BUY from the acting party's perspective. The token leg
			// is whichever side is a non-zero asset id.
			t := base
			t.Wallet = utils.NormalizeAddress(ev.Party.Hex())
			t.Side = models.SideBuy
			if ev.TakerAssetID.Sign() != 0 {
				t.TokenID = ev.TakerAssetID.String()
				t.Size = normalizeAmount(ev.TakerFilled)
				t.Price = legRatio(ev.MakerFilled, ev.TakerFilled)
			} else {
				t.TokenID = ev.MakerAssetID.String()
				t.Size = normalizeAmount(ev.MakerFilled)
				t.Price = legRatio(ev.TakerFilled, ev.MakerFilled)
			}
			trades = append(trades, t)
		}

	case models.EventTransfer:
		ev := dec.Transfer
		if isWatched(ev.From) {
			t := base
			t.Wallet = utils.NormalizeAddress(ev.From.Hex())
			t.Side = models.SideSell
			t.TokenID = ev.AssetID.String()
			t.Size = normalizeAmount(ev.Value)
			t.Price = 0 // no price embedded in a bare transfer
			trades = append(trades, t)
		}
		if isWatched(ev.To) {
			t := base
			t.Wallet = utils.NormalizeAddress(ev.To.Hex())
			t.Side = models.SideBuy
			t.TokenID = ev.AssetID.String()
			t.Size = normalizeAmount(ev.Value)
			t.Price = 0
			trades = append(trades, t)
		}
	}

	return trades
}

// legRatio is the normalized price of one leg in units of the other.
func legRatio(counter, own *big.Int) float64 {
	ownNorm := normalizeAmount(own)
	if ownNorm == 0 {
		return 0
	}
	return normalizeAmount(counter) / ownNorm
}
