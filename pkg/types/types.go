package types

import (
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

// Token describes one side of the monitored pair on a specific network.
type Token struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
}

// TokenReserve is one token's share of a pool's virtual reserves,
// expressed in human units.
type TokenReserve struct {
	Address  common.Address
	Symbol   string
	Decimals uint8
	Reserve  float64
}

// PoolReserves holds the constant-product virtual reserves derived from a
// pool's liquidity and current price. Ephemeral: recomputed per use.
type PoolReserves struct {
	Base   TokenReserve
	Traded TokenReserve
}

// PoolInfo is a point-in-time snapshot of an on-chain pool. Callers must
// check IsValid before reading any other field.
type PoolInfo struct {
	IsValid        bool
	Address        common.Address
	Token0         common.Address
	Token1         common.Address
	Fee            uint32
	TradedIsToken0 bool
	Liquidity      *big.Int
	SqrtPriceX96   *big.Int
	Reserves       *PoolReserves
}

// Quote is one network's round-trip exchange rate for the monitored pair.
type Quote struct {
	NetworkKey string
	// RateTokenToBase is base received per one traded token.
	RateTokenToBase float64
	// RateBaseToToken is traded tokens received per one base token.
	RateBaseToToken float64
	Pool common.Address
	Fee  uint32
}

// PriceSnapshot carries external USD reference prices.
type PriceSnapshot struct {
	BaseUSD   float64
	TradedUSD float64
	FetchedAt time.Time
}

// Opportunity is a decision record produced by one scan. Never persisted.
type Opportunity struct {
	CheapNetwork      string
	ExpensiveNetwork  string
	CheapPriceUSD     float64
	ExpensivePriceUSD float64
	DeviationPercent  float64
	AbsoluteDiff      float64
	EstimatedGas      uint64
	// OptimalAmount is the buy-leg size in traded-token units that would
	// bring both pools toward a common marginal price. Zero when reserves
	// were unavailable.
	OptimalAmount float64
}

// ArbitrageStatus is the lifecycle state of one attempted two-leg trade.
type ArbitrageStatus string

const (
	StatusPending   ArbitrageStatus = "pending"
	StatusExecuting ArbitrageStatus = "executing"
	StatusCompleted ArbitrageStatus = "completed"
	StatusFailed    ArbitrageStatus = "failed"
)

// PendingArbitrage tracks one in-flight two-leg trade. It is a diagnostic
// buffer, not a ledger: entries are dropped a few minutes after reaching a
// terminal state.
type PendingArbitrage struct {
	ID          string
	BuyNetwork  string
	SellNetwork string
	BuyTxHash   common.Hash
	SellTxHash  common.Hash
	Status      ArbitrageStatus
	CreatedAt   time.Time
	Error       string
}

// TradeParams describes a single-hop exact-input swap intent.
type TradeParams struct {
	NetworkKey   string
	TokenIn      common.Address
	TokenOut     common.Address
	Fee          uint32
	AmountIn     *big.Int
	MinAmountOut *big.Int
}

// TradeResult is the normalized outcome of a trade attempt. Error is a
// short human-readable string; the executor never propagates raw RPC
// errors past this boundary.
type TradeResult struct {
	Success bool
	TxHash  common.Hash
	Error   string
}

// SwapEvent is a decoded pool Swap log. The scheduler treats these as
// wake-up signals only; the payload is never consumed by a scan.
type SwapEvent struct {
	NetworkKey   string
	Pool         common.Address
	TxHash       common.Hash
	Sender       common.Address
	Recipient    common.Address
	Amount0      *big.Int
	Amount1      *big.Int
	SqrtPriceX96 *big.Int
	Liquidity    *big.Int
	Tick         *big.Int
	BlockNumber  uint64
}
