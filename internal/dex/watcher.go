package dex

import (
	"context"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

var maxInt256 = new(big.Int).Exp(big.NewInt(2), big.NewInt(255), nil)

// TxFilter reports whether a transaction was sent by this process.
// Self-originated swaps must not wake the scanner or the feedback loop
// never settles.
type TxFilter interface {
	IsOwnTx(txHash common.Hash) bool
}

// Watcher maintains a Swap-event subscription on one network's pool and
// forwards decoded events to the handler. The subscription is supervised:
// on error it tears down, reconnects the network client, and resubscribes
// until the context is cancelled.
type Watcher struct {
	net     *eth.Network
	filter  TxFilter
	handler func(types.SwapEvent)

	retryDelay time.Duration
}

func NewWatcher(net *eth.Network, filter TxFilter, handler func(types.SwapEvent)) *Watcher {
	delay := net.ReconnectDelay()
	if delay <= 0 {
		delay = 5 * time.Second
	}
	return &Watcher{
		net:        net,
		filter:     filter,
		handler:    handler,
		retryDelay: delay,
	}
}

// Run blocks until ctx is cancelled. Meant to be launched as a goroutine
// per network.
func (w *Watcher) Run(ctx context.Context) {
	for {
		if err := w.subscribe(ctx); err != nil {
			log.Warn().Err(err).
				Str("network", w.net.Key).
				Dur("retry_in", w.retryDelay).
				Msg("Swap subscription lost, reconnecting")
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(w.retryDelay):
		}

		if err := w.net.Reconnect(); err != nil {
			log.Error().Err(err).Str("network", w.net.Key).Msg("Network reconnect failed")
		}
	}
}

func (w *Watcher) subscribe(ctx context.Context) error {
	query := ethereum.FilterQuery{
		Addresses: []common.Address{w.net.Pool},
		Topics:    [][]common.Hash{{SwapEventSignature}},
	}

	logs := make(chan ethtypes.Log, 64)
	sub, err := w.net.Client().SubscribeFilterLogs(ctx, query, logs)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	log.Info().Str("network", w.net.Key).Str("pool", w.net.Pool.Hex()).Msg("Watching pool swaps")

	for {
		select {
		case <-ctx.Done():
			return nil
		case err := <-sub.Err():
			return err
		case vLog := <-logs:
			if vLog.Removed {
				continue
			}
			if w.filter != nil && w.filter.IsOwnTx(vLog.TxHash) {
				log.Debug().Str("network", w.net.Key).Str("tx", vLog.TxHash.Hex()).Msg("Ignoring own swap")
				continue
			}
			if ev, ok := DecodeSwap(w.net.Key, vLog); ok {
				w.handler(ev)
			}
		}
	}
}

// DecodeSwap unpacks a Swap log. Data layout is five 32-byte words:
// amount0 (int256), amount1 (int256), sqrtPriceX96, liquidity, tick.
// Also used by the volume fallback to replay recent pool activity.
func DecodeSwap(networkKey string, vLog ethtypes.Log) (types.SwapEvent, bool) {
	if len(vLog.Topics) < 3 || len(vLog.Data) < 160 {
		return types.SwapEvent{}, false
	}

	return types.SwapEvent{
		NetworkKey:   networkKey,
		Pool:         vLog.Address,
		TxHash:       vLog.TxHash,
		Sender:       common.BytesToAddress(vLog.Topics[1].Bytes()),
		Recipient:    common.BytesToAddress(vLog.Topics[2].Bytes()),
		Amount0:      twosComplement(vLog.Data[0:32]),
		Amount1:      twosComplement(vLog.Data[32:64]),
		SqrtPriceX96: new(big.Int).SetBytes(vLog.Data[64:96]),
		Liquidity:    new(big.Int).SetBytes(vLog.Data[96:128]),
		Tick:         twosComplement(vLog.Data[128:160]),
		BlockNumber:  vLog.BlockNumber,
	}, true
}

func twosComplement(b []byte) *big.Int {
	v := new(big.Int).SetBytes(b)
	if v.Cmp(maxInt256) >= 0 {
		v.Sub(v, new(big.Int).Lsh(big.NewInt(1), 256))
	}
	return v
}
