package trader

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common"
	ethtypes "github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"

	"github.com/lohit-dev/arb-vol/internal/eth"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

func TestNormalizeError(t *testing.T) {
	cases := []struct {
		name string
		in   string
		want string
	}{
		{
			"revert reason kept",
			"rpc error: execution reverted: STF",
			"execution reverted: STF",
		},
		{
			"abi tail stripped",
			"execution reverted (data: 0x08c379a0deadbeef)",
			"execution reverted",
		},
		{
			"plain error passes through",
			"nonce too low",
			"nonce too low",
		},
		{
			"parenthesised detail stripped",
			"transaction underpriced (gas tip cap 1 wei)",
			"transaction underpriced",
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := normalizeError(errors.New(tc.in)); got != tc.want {
				t.Errorf("normalizeError(%q) = %q, want %q", tc.in, got, tc.want)
			}
		})
	}
}

type staticNetworks struct {
	net *eth.Network
}

func (s staticNetworks) Get(key string) (*eth.Network, error) {
	if s.net != nil && s.net.Key == key {
		return s.net, nil
	}
	return nil, fmt.Errorf("unknown network %s", key)
}

type captureAlerts struct {
	titles   []string
	messages []string
}

func (c *captureAlerts) Send(title, message string) {
	c.titles = append(c.titles, title)
	c.messages = append(c.messages, message)
}

func tradableNetwork(t *testing.T, key string) *eth.Network {
	t.Helper()
	sk, err := crypto.GenerateKey()
	if err != nil {
		t.Fatalf("generating key: %v", err)
	}
	return &eth.Network{
		Key:        key,
		ChainID:    big.NewInt(1),
		Router:     common.HexToAddress("0x1111111111111111111111111111111111111111"),
		SignerKey:  sk,
		SignerAddr: crypto.PubkeyToAddress(sk.PublicKey),
	}
}

func TestExecuteTradeRejectsInsufficientBalance(t *testing.T) {
	net := tradableNetwork(t, "n1")
	alerts := &captureAlerts{}
	e := NewExecutor(staticNetworks{net}, alerts)

	e.readBalance = func(ctx context.Context, net *eth.Network, token, owner common.Address) (*big.Int, error) {
		return big.NewInt(5), nil
	}
	submissions := 0
	e.submitTx = func(ctx context.Context, net *eth.Network, key *ecdsa.PrivateKey, sender, to common.Address, data []byte, gasLimit uint64) (*ethtypes.Transaction, error) {
		submissions++
		return nil, errors.New("should not be reached")
	}

	res := e.ExecuteTrade(context.Background(), types.TradeParams{
		NetworkKey:   "n1",
		TokenIn:      common.HexToAddress("0x2222222222222222222222222222222222222222"),
		TokenOut:     common.HexToAddress("0x3333333333333333333333333333333333333333"),
		AmountIn:     big.NewInt(10),
		MinAmountOut: big.NewInt(0),
	})

	if res.Success {
		t.Fatal("trade succeeded despite insufficient balance")
	}
	if !strings.Contains(res.Error, "insufficient") {
		t.Errorf("error = %q, want an insufficient-balance message", res.Error)
	}
	if res.TxHash != (common.Hash{}) {
		t.Errorf("result carries tx hash %s, want none", res.TxHash.Hex())
	}
	if submissions != 0 {
		t.Errorf("submitted %d transactions, want 0", submissions)
	}
	if len(alerts.titles) != 1 || alerts.titles[0] != "Low balance" {
		t.Errorf("alerts = %v, want a single low-balance alert", alerts.titles)
	}
	if len(alerts.messages) == 1 && !strings.Contains(alerts.messages[0], "n1") {
		t.Errorf("alert message %q does not name the network", alerts.messages[0])
	}
}

func TestOwnTxTracking(t *testing.T) {
	e := NewExecutor(nil, nil)
	h := common.HexToHash("0xabc123")

	if e.IsOwnTx(h) {
		t.Error("unknown hash reported as own")
	}
	e.recordOwnTx(h)
	if !e.IsOwnTx(h) {
		t.Error("recorded hash not reported as own")
	}
}

func TestOwnTxSetIsBounded(t *testing.T) {
	e := NewExecutor(nil, nil)

	stale := common.HexToHash("0x01")
	e.recordOwnTx(stale)
	e.mu.Lock()
	e.ownTxs[stale] = time.Now().Add(-2 * time.Hour)
	e.mu.Unlock()

	fresh := common.HexToHash("0x02")
	e.recordOwnTx(fresh)

	if e.IsOwnTx(stale) {
		t.Error("stale hash survived the sweep")
	}
	if !e.IsOwnTx(fresh) {
		t.Error("fresh hash was dropped")
	}
}
