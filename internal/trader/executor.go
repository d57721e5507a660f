package trader

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

const (
	swapGasLimit    = 500000
	swapDeadline    = 5 * time.Minute
	gasPremiumPct   = 110
	approveGasLimit = 80000
)

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// NetworkSource looks up configured network handles.
type NetworkSource interface {
	Get(key string) (*eth.Network, error)
}

// Alerter pushes operational alerts. May be nil.
type Alerter interface {
	Send(title, message string)
}

// Executor submits single-hop exact-input swaps. It never propagates raw
// RPC errors: every failure is normalized into TradeResult.Error. Submitted
// transaction hashes are remembered so the event watcher can distinguish the
// bot's own swaps from organic market activity.
type Executor struct {
	networks NetworkSource
	alerts   Alerter

	// Swappable in tests; default to the RPC-backed implementations.
	readBalance func(ctx context.Context, net *eth.Network, token, owner common.Address) (*big.Int, error)
	submitTx    func(ctx context.Context, net *eth.Network, key *ecdsa.PrivateKey, sender, to common.Address, data []byte, gasLimit uint64) (*ethtypes.Transaction, error)

	mu     sync.Mutex
	ownTxs map[common.Hash]time.Time
}

func NewExecutor(networks NetworkSource, alerts Alerter) *Executor {
	e := &Executor{
		networks: networks,
		alerts:   alerts,
		ownTxs:   make(map[common.Hash]time.Time),
	}
	e.readBalance = e.tokenBalance
	e.submitTx = e.submit
	return e
}

// IsOwnTx reports whether this process submitted the given transaction.
func (e *Executor) IsOwnTx(txHash common.Hash) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	_, ok := e.ownTxs[txHash]
	return ok
}

func (e *Executor) recordOwnTx(txHash common.Hash) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.ownTxs[txHash] = time.Now()

	// Old entries are useless once their swap events have long since been
	// delivered; bound the set.
	cutoff := time.Now().Add(-time.Hour)
	for h, t := range e.ownTxs {
		if t.Before(cutoff) {
			delete(e.ownTxs, h)
		}
	}
}

// ExecuteTrade runs one swap leg end to end: allowance check, optional
// approval, swap submission with a gas premium, confirmation wait.
func (e *Executor) ExecuteTrade(ctx context.Context, params types.TradeParams) types.TradeResult {
	net, err := e.networks.Get(params.NetworkKey)
	if err != nil {
		return failure(err)
	}
	if !net.CanTrade() {
		return failure(fmt.Errorf("network %s has no signer or router configured, cannot trade", params.NetworkKey))
	}

	key, sender := net.Signer()

	balance, err := e.readBalance(ctx, net, params.TokenIn, sender)
	if err != nil {
		return failure(fmt.Errorf("balance check failed: %w", err))
	}
	if balance.Cmp(params.AmountIn) < 0 {
		if e.alerts != nil {
			e.alerts.Send("Low balance",
				fmt.Sprintf("%s: token %s balance %s below requested %s",
					params.NetworkKey, params.TokenIn.Hex(), balance.String(), params.AmountIn.String()))
		}
		return failure(fmt.Errorf("insufficient %s balance: have %s, need %s",
			params.TokenIn.Hex(), balance.String(), params.AmountIn.String()))
	}

	if err := e.ensureAllowance(ctx, net, params.TokenIn, sender, params.AmountIn); err != nil {
		return failure(fmt.Errorf("approval failed: %w", err))
	}

	deadline := big.NewInt(time.Now().Add(swapDeadline).Unix())
	calldata, err := routerABI.Pack("exactInputSingle", struct {
		TokenIn           common.Address
		TokenOut          common.Address
		Fee               *big.Int
		Recipient         common.Address
		Deadline          *big.Int
		AmountIn          *big.Int
		AmountOutMinimum  *big.Int
		SqrtPriceLimitX96 *big.Int
	}{
		TokenIn:           params.TokenIn,
		TokenOut:          params.TokenOut,
		Fee:               big.NewInt(int64(params.Fee)),
		Recipient:         sender,
		Deadline:          deadline,
		AmountIn:          params.AmountIn,
		AmountOutMinimum:  params.MinAmountOut,
		SqrtPriceLimitX96: big.NewInt(0),
	})
	if err != nil {
		return failure(fmt.Errorf("failed to encode swap: %w", err))
	}

	tx, err := e.submitTx(ctx, net, key, sender, net.Router, calldata, swapGasLimit)
	if err != nil {
		return failure(err)
	}
	e.recordOwnTx(tx.Hash())

	log.Info().
		Str("network", net.Key).
		Str("tx", tx.Hash().Hex()).
		Str("amount_in", params.AmountIn.String()).
		Msg("Swap submitted")

	receipt, err := bind.WaitMined(ctx, net.Client().Raw(), tx)
	if err != nil {
		return types.TradeResult{TxHash: tx.Hash(), Error: normalizeError(err)}
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return types.TradeResult{TxHash: tx.Hash(), Error: "transaction reverted"}
	}

	return types.TradeResult{Success: true, TxHash: tx.Hash()}
}

// TokenBalance reads the signer's balance of token on net.
func (e *Executor) TokenBalance(ctx context.Context, networkKey string, token common.Address) (*big.Int, error) {
	net, err := e.networks.Get(networkKey)
	if err != nil {
		return nil, err
	}
	_, sender := net.Signer()
	return e.readBalance(ctx, net, token, sender)
}

func (e *Executor) tokenBalance(ctx context.Context, net *eth.Network, token, owner common.Address) (*big.Int, error) {
	data, err := erc20ABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	out, err := net.Client().CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	return new(big.Int).SetBytes(out), nil
}

// ensureAllowance checks the router's spending allowance and, when short,
// approves the maximum amount and waits for the approval to mine.
func (e *Executor) ensureAllowance(ctx context.Context, net *eth.Network, token, owner common.Address, needed *big.Int) error {
	data, err := erc20ABI.Pack("allowance", owner, net.Router)
	if err != nil {
		return err
	}
	out, err := net.Client().CallContract(ctx, ethereum.CallMsg{To: &token, Data: data}, nil)
	if err != nil {
		return err
	}
	if new(big.Int).SetBytes(out).Cmp(needed) >= 0 {
		return nil
	}

	log.Info().
		Str("network", net.Key).
		Str("token", token.Hex()).
		Msg("Approving router for max amount")

	approveData, err := erc20ABI.Pack("approve", net.Router, maxUint256)
	if err != nil {
		return err
	}
	key, sender := net.Signer()
	tx, err := e.submitTx(ctx, net, key, sender, token, approveData, approveGasLimit)
	if err != nil {
		return err
	}
	e.recordOwnTx(tx.Hash())

	receipt, err := bind.WaitMined(ctx, net.Client().Raw(), tx)
	if err != nil {
		return err
	}
	if receipt.Status != ethtypes.ReceiptStatusSuccessful {
		return fmt.Errorf("approval transaction reverted")
	}
	return nil
}

// submit signs and broadcasts a legacy transaction with a 10% gas-price
// premium over the node's suggestion.
func (e *Executor) submit(ctx context.Context, net *eth.Network, key *ecdsa.PrivateKey, sender, to common.Address, data []byte, gasLimit uint64) (*ethtypes.Transaction, error) {
	client := net.Client()

	gasPrice := net.GasPriceHint
	if gasPrice == nil {
		suggested, err := client.SuggestGasPrice(ctx)
		if err != nil {
			return nil, fmt.Errorf("gas price lookup failed: %w", err)
		}
		gasPrice = suggested
	}
	gasPrice = new(big.Int).Div(new(big.Int).Mul(gasPrice, big.NewInt(gasPremiumPct)), big.NewInt(100))

	nonce, err := client.PendingNonceAt(ctx, sender)
	if err != nil {
		return nil, fmt.Errorf("nonce lookup failed: %w", err)
	}

	tx := ethtypes.NewTransaction(nonce, to, big.NewInt(0), gasLimit, gasPrice, data)
	signed, err := ethtypes.SignTx(tx, ethtypes.LatestSignerForChainID(net.ChainID), key)
	if err != nil {
		return nil, fmt.Errorf("signing failed: %w", err)
	}
	if err := client.SendTransaction(ctx, signed); err != nil {
		return nil, err
	}
	return signed, nil
}

// normalizeError reduces a transaction error to a short operator-readable
// string. Revert reasons are kept; ABI-encoded tails after the first
// parenthesis are dropped.
func normalizeError(err error) string {
	msg := err.Error()
	if i := strings.Index(msg, "execution reverted"); i >= 0 {
		msg = msg[i:]
	}
	if i := strings.Index(msg, "("); i > 0 {
		msg = strings.TrimSpace(msg[:i])
	}
	return msg
}

func failure(err error) types.TradeResult {
	log.Warn().Str("reason", normalizeError(err)).Msg("Trade rejected")
	return types.TradeResult{Error: normalizeError(err)}
}
