package eth

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
	"github.com/lohit-dev/arb-vol/pkg/types"
)

// Network binds one chain's connection, contracts and token pair. Created
// once at startup and shared read-mostly; the client is rebuilt only by
// Reconnect after a connection loss.
type Network struct {
	Key     string
	Name    string
	ChainID *big.Int

	Pool   common.Address
	Quoter common.Address
	Router common.Address

	Base   types.Token
	Traded types.Token

	// GasPriceHint is the configured gas price in wei; nil means ask the
	// node.
	GasPriceHint *big.Int
	GasPerSwap   uint64

	SignerKey  *ecdsa.PrivateKey
	SignerAddr common.Address

	cfg    config.NetworkConfig
	rpcCfg config.RPCConfig

	mu     sync.RWMutex
	client *Client
}

// NewNetwork dials a network and builds its handle. privateKeyHex may be
// empty for read-only deployments.
func NewNetwork(cfg config.NetworkConfig, rpcCfg config.RPCConfig, privateKeyHex string) (*Network, error) {
	client, err := NewClient(cfg.RPCURL, rpcCfg)
	if err != nil {
		return nil, fmt.Errorf("network %s: %w", cfg.Key, err)
	}

	if cfg.ChainID != 0 && client.ChainID().Int64() != cfg.ChainID {
		client.Close()
		return nil, fmt.Errorf("network %s: chain ID mismatch: configured %d, node reports %s",
			cfg.Key, cfg.ChainID, client.ChainID())
	}

	n := &Network{
		Key:     cfg.Key,
		Name:    cfg.Name,
		ChainID: client.ChainID(),
		Pool:    common.HexToAddress(cfg.Pool),
		Quoter:  common.HexToAddress(cfg.Quoter),
		Router:  common.HexToAddress(cfg.Router),
		Base: types.Token{
			Address:  common.HexToAddress(cfg.Base.Address),
			Symbol:   cfg.Base.Symbol,
			Decimals: cfg.Base.Decimals,
		},
		Traded: types.Token{
			Address:  common.HexToAddress(cfg.Traded.Address),
			Symbol:   cfg.Traded.Symbol,
			Decimals: cfg.Traded.Decimals,
		},
		GasPerSwap: cfg.GasPerSwap,
		cfg:        cfg,
		rpcCfg:     rpcCfg,
		client:     client,
	}

	if cfg.GasPriceGwei > 0 {
		n.GasPriceHint = new(big.Int).Mul(big.NewInt(cfg.GasPriceGwei), big.NewInt(1e9))
	}

	if privateKeyHex != "" {
		key, err := crypto.HexToECDSA(privateKeyHex)
		if err != nil {
			client.Close()
			return nil, fmt.Errorf("network %s: invalid private key: %w", cfg.Key, err)
		}
		n.SignerKey = key
		n.SignerAddr = crypto.PubkeyToAddress(key.PublicKey)
	}

	return n, nil
}

// Client returns the current RPC client. The returned client may be
// replaced by Reconnect; callers must not cache it across calls.
func (n *Network) Client() *Client {
	n.mu.RLock()
	defer n.mu.RUnlock()
	return n.client
}

// CanTrade reports whether this network has both a signer and a router.
func (n *Network) CanTrade() bool {
	return n.SignerKey != nil && n.Router != (common.Address{})
}

// Signer returns the signing key and its address, or nil for read-only
// networks.
func (n *Network) Signer() (*ecdsa.PrivateKey, common.Address) {
	return n.SignerKey, n.SignerAddr
}

// Token returns the token descriptor for an address on this network, and
// whether the address belongs to the monitored pair.
func (n *Network) Token(addr common.Address) (types.Token, bool) {
	switch addr {
	case n.Base.Address:
		return n.Base, true
	case n.Traded.Address:
		return n.Traded, true
	}
	return types.Token{}, false
}

// Reconnect tears down the current connection and dials a fresh one.
// Contract handles are constructed per call from the live client, so they
// follow automatically.
func (n *Network) Reconnect() error {
	client, err := NewClient(n.cfg.RPCURL, n.rpcCfg)
	if err != nil {
		return fmt.Errorf("network %s: reconnect: %w", n.Key, err)
	}

	n.mu.Lock()
	old := n.client
	n.client = client
	n.mu.Unlock()

	old.Close()

	log.Info().Str("network", n.Name).Msg("Rebuilt RPC connection")
	return nil
}

// ReconnectDelay returns the configured pause between subscription
// rebuild attempts.
func (n *Network) ReconnectDelay() time.Duration {
	return n.rpcCfg.ReconnectDelay
}

// Close shuts down the network's connection.
func (n *Network) Close() {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.client.Close()
}

// Registry is the NetworkConfig lookup keyed by network key.
type Registry struct {
	networks map[string]*Network
	order    []string
}

// NewRegistry builds all configured networks. Exactly two are expected.
func NewRegistry(cfgs []config.NetworkConfig, rpcCfg config.RPCConfig, privateKeyHex string) (*Registry, error) {
	if len(cfgs) != 2 {
		return nil, fmt.Errorf("exactly two networks are required, got %d", len(cfgs))
	}

	r := &Registry{networks: make(map[string]*Network, len(cfgs))}
	for _, cfg := range cfgs {
		n, err := NewNetwork(cfg, rpcCfg, privateKeyHex)
		if err != nil {
			r.Close()
			return nil, err
		}
		r.networks[cfg.Key] = n
		r.order = append(r.order, cfg.Key)
	}
	return r, nil
}

// Get returns the network for a key.
func (r *Registry) Get(key string) (*Network, error) {
	n, ok := r.networks[key]
	if !ok {
		return nil, fmt.Errorf("unknown network %q", key)
	}
	return n, nil
}

// Keys returns the network keys in configuration order.
func (r *Registry) Keys() []string {
	return r.order
}

// All returns every network in configuration order.
func (r *Registry) All() []*Network {
	out := make([]*Network, 0, len(r.order))
	for _, k := range r.order {
		out = append(out, r.networks[k])
	}
	return out
}

// Close shuts down every network connection.
func (r *Registry) Close() {
	for _, n := range r.networks {
		n.Close()
	}
}
