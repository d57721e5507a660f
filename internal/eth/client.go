package eth

import (
	"context"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog/log"

	"github.com/lohit-dev/arb-vol/internal/config"
)

// Client wraps an Ethereum client with retry logic and convenience methods.
type Client struct {
	client  *ethclient.Client
	cfg     config.RPCConfig
	chainID *big.Int
}

// NewClient dials an RPC endpoint and verifies the chain ID.
func NewClient(url string, cfg config.RPCConfig) (*Client, error) {
	client, err := ethclient.Dial(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to node: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), cfg.RequestTimeout)
	defer cancel()

	chainID, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to get chain ID: %w", err)
	}

	log.Info().
		Str("url", url).
		Str("chainID", chainID.String()).
		Msg("Connected to node")

	return &Client{
		client:  client,
		cfg:     cfg,
		chainID: chainID,
	}, nil
}

// Close closes the underlying connection.
func (c *Client) Close() {
	c.client.Close()
}

// ChainID returns the chain ID observed at dial time.
func (c *Client) ChainID() *big.Int {
	return c.chainID
}

// Raw returns the underlying ethclient for APIs that need it directly
// (bound contracts, receipt waiting).
func (c *Client) Raw() *ethclient.Client {
	return c.client
}

// BlockNumber returns the latest block number with retry.
func (c *Client) BlockNumber(ctx context.Context) (uint64, error) {
	var blockNum uint64
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		blockNum, err = c.client.BlockNumber(ctx)
		if err == nil {
			return blockNum, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get block number, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return 0, fmt.Errorf("failed to get block number after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// CallContract executes a read-only contract call with retry.
func (c *Client) CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error) {
	var result []byte
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		result, err = c.client.CallContract(ctx, msg, blockNumber)
		if err == nil {
			return result, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to call contract, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return nil, fmt.Errorf("failed to call contract after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// GetLogs fetches logs with the given filter with retry.
func (c *Client) GetLogs(ctx context.Context, query ethereum.FilterQuery) ([]types.Log, error) {
	var logs []types.Log
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		logs, err = c.client.FilterLogs(ctx, query)
		if err == nil {
			return logs, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get logs, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return nil, fmt.Errorf("failed to get logs after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// SuggestGasPrice returns the node's suggested gas price with retry.
func (c *Client) SuggestGasPrice(ctx context.Context) (*big.Int, error) {
	var price *big.Int
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		price, err = c.client.SuggestGasPrice(ctx)
		if err == nil {
			return price, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get gas price, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return nil, fmt.Errorf("failed to get gas price after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// PendingNonceAt returns the next nonce for an account with retry.
func (c *Client) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	var nonce uint64
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		nonce, err = c.client.PendingNonceAt(ctx, account)
		if err == nil {
			return nonce, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get nonce, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return 0, fmt.Errorf("failed to get nonce after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// SendTransaction submits a signed transaction. Submission is never
// retried: a failed leg must surface as a failure, not a duplicate.
func (c *Client) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if err := c.client.SendTransaction(ctx, tx); err != nil {
		return fmt.Errorf("failed to send transaction: %w", err)
	}
	return nil
}

// TransactionReceipt returns the receipt of a transaction with retry.
func (c *Client) TransactionReceipt(ctx context.Context, txHash common.Hash) (*types.Receipt, error) {
	var receipt *types.Receipt
	var err error

	for i := 0; i < c.cfg.RetryAttempts; i++ {
		receipt, err = c.client.TransactionReceipt(ctx, txHash)
		if err == nil {
			return receipt, nil
		}
		log.Warn().Err(err).Int("attempt", i+1).Msg("Failed to get receipt, retrying...")
		time.Sleep(c.cfg.RetryDelay)
	}

	return nil, fmt.Errorf("failed to get receipt after %d attempts: %w", c.cfg.RetryAttempts, err)
}

// SubscribeFilterLogs subscribes to streaming logs (requires WebSocket).
func (c *Client) SubscribeFilterLogs(ctx context.Context, query ethereum.FilterQuery, ch chan<- types.Log) (ethereum.Subscription, error) {
	return c.client.SubscribeFilterLogs(ctx, query, ch)
}
