package syncer

import "fmt"

// ConfigurationError indicates invalid input or computed order parameters.
// It fails the single operation it occurred in, never the process.
type ConfigurationError struct {
	Field  string
	Reason string
}

func (e *ConfigurationError) Error() string {
	return fmt.Sprintf("configuration error: %s: %s", e.Field, e.Reason)
}

// ChainQueryError indicates an RPC call failed while scanning. The affected
// window/contract is skipped and scanning continues.
type ChainQueryError struct {
	Contract  string
	FromBlock uint64
	ToBlock   uint64
	Err       error
}

func (e *ChainQueryError) Error() string {
	return fmt.Sprintf("chain query failed for %s blocks %d-%d: %v", e.Contract, e.FromBlock, e.ToBlock, e.Err)
}

func (e *ChainQueryError) Unwrap() error { return e.Err }

// ExecutionError indicates the order-execution service explicitly rejected or
// failed an order. It is surfaced to the caller and not retried internally.
type ExecutionError struct {
	TokenID string
	Side    string
	Price   float64
	Size    float64
	Reason  string
}

func (e *ExecutionError) Error() string {
	return fmt.Sprintf("execution failed: %s %s price=%.4f size=%.4f: %s", e.Side, e.TokenID, e.Price, e.Size, e.Reason)
}
