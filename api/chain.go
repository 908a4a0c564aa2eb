// Package api provides clients for the external collaborators of the agent:
// the Polygon JSON-RPC endpoint, the Polymarket CLOB and Gamma APIs, and the
// order-execution service.
package api

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
)

// ChainSource is the subset of the Polygon RPC surface the scanner needs.
// *ethclient.Client satisfies it; tests provide fakes.
type ChainSource interface {
	BlockNumber(ctx context.Context) (uint64, error)
	FilterLogs(ctx context.Context, q ethereum.FilterQuery) ([]types.Log, error)
	HeaderByNumber(ctx context.Context, number *big.Int) (*types.Header, error)
}

var _ ChainSource = (*ethclient.Client)(nil)

// DialChain connects to a Polygon RPC endpoint.
func DialChain(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial chain rpc %s: %w", rpcURL, err)
	}
	return client, nil
}
