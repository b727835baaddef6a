package chain

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/scheduler"
)

// fuelBaseAssetDecimals is the precision of the Fuel-side base asset.
const fuelBaseAssetDecimals = 9

// FuelClientOptions parameterise the Fuel GraphQL client.
type FuelClientOptions struct {
	GraphQLURL string
	Timeout    time.Duration
}

// FuelClient talks to a Fuel node over its GraphQL endpoint.
type FuelClient struct {
	opts   FuelClientOptions
	logger zerolog.Logger
	client *http.Client
	url    string
}

// NewFuelClient constructs a Fuel GraphQL client.
func NewFuelClient(opts FuelClientOptions, logger zerolog.Logger) *FuelClient {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	return &FuelClient{
		opts:   opts,
		logger: logger.With().Str("component", "fuel_client").Logger(),
		client: &http.Client{Timeout: timeout},
		url:    strings.TrimRight(opts.GraphQLURL, "/"),
	}
}

type graphqlRequest struct {
	Query string `json:"query"`
}

type graphqlError struct {
	Message string `json:"message"`
}

func (c *FuelClient) query(ctx context.Context, q string, out any) error {
	body, err := json.Marshal(graphqlRequest{Query: q})
	if err != nil {
		return err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fuel graphql status %d: %s", resp.StatusCode, strings.TrimSpace(string(payload)))
	}

	var envelope struct {
		Data   json.RawMessage `json:"data"`
		Errors []graphqlError  `json:"errors"`
	}
	if err := json.Unmarshal(payload, &envelope); err != nil {
		return fmt.Errorf("decode fuel graphql response: %w", err)
	}
	if len(envelope.Errors) > 0 {
		return fmt.Errorf("fuel graphql error: %s", envelope.Errors[0].Message)
	}
	if out != nil {
		if err := json.Unmarshal(envelope.Data, out); err != nil {
			return fmt.Errorf("decode fuel graphql data: %w", err)
		}
	}
	return nil
}

// CheckConnection verifies the node answers its health query.
func (c *FuelClient) CheckConnection(ctx context.Context) error {
	var res struct {
		Health bool `json:"health"`
	}
	if err := c.query(ctx, `{ health }`, &res); err != nil {
		return err
	}
	if !res.Health {
		return errors.New("fuel node reports unhealthy")
	}
	return nil
}

// LatestBlockHeight returns the chain tip height.
func (c *FuelClient) LatestBlockHeight(ctx context.Context) (uint64, error) {
	var res struct {
		Chain struct {
			LatestBlock struct {
				Height string `json:"height"`
			} `json:"latestBlock"`
		} `json:"chain"`
	}
	if err := c.query(ctx, `{ chain { latestBlock { height } } }`, &res); err != nil {
		return 0, err
	}
	height, err := strconv.ParseUint(res.Chain.LatestBlock.Height, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse fuel block height %q: %w", res.Chain.LatestBlock.Height, err)
	}
	return height, nil
}

// Withdrawal is one bridge withdrawal extracted from MessageOut receipts.
type Withdrawal struct {
	AssetID string
	Amount  decimal.Decimal
	Height  uint64
}

// withdrawalPageSize bounds one blocks query; ranges wider than a page are
// walked with follow-up queries.
const withdrawalPageSize = 100

// WithdrawalsSince scans blocks above the given height for outbound bridge
// messages and returns their amounts in token units. The range is paged so a
// backlog wider than one query (a long outage, a slow poll) is still fully
// counted.
func (c *FuelClient) WithdrawalsSince(ctx context.Context, height uint64) ([]Withdrawal, error) {
	var out []Withdrawal
	cursor := height

	for {
		q := fmt.Sprintf(`{ blocks(first: %d, where: { heightAbove: %d }) { nodes { header { height } transactions { receipts { receiptType amount assetId } } } } }`, withdrawalPageSize, cursor)

		var res struct {
			Blocks struct {
				Nodes []struct {
					Header struct {
						Height string `json:"height"`
					} `json:"header"`
					Transactions []struct {
						Receipts []struct {
							ReceiptType string `json:"receiptType"`
							Amount      string `json:"amount"`
							AssetID     string `json:"assetId"`
						} `json:"receipts"`
					} `json:"transactions"`
				} `json:"nodes"`
			} `json:"blocks"`
		}
		if err := c.query(ctx, q, &res); err != nil {
			return nil, err
		}

		pageMax := cursor
		for _, node := range res.Blocks.Nodes {
			blockHeight, err := strconv.ParseUint(node.Header.Height, 10, 64)
			if err != nil {
				continue
			}
			if blockHeight > pageMax {
				pageMax = blockHeight
			}
			for _, tx := range node.Transactions {
				for _, receipt := range tx.Receipts {
					if receipt.ReceiptType != "MESSAGE_OUT" {
						continue
					}
					raw, err := decimal.NewFromString(receipt.Amount)
					if err != nil {
						c.logger.Warn().Str("amount", receipt.Amount).Msg("skipping receipt with unparseable amount")
						continue
					}
					out = append(out, Withdrawal{
						AssetID: receipt.AssetID,
						Amount:  raw.Shift(-fuelBaseAssetDecimals),
						Height:  blockHeight,
					})
				}
			}
		}

		// A short page means the range is exhausted; a cursor that failed to
		// advance means the node is repeating itself and paging must stop.
		if len(res.Blocks.Nodes) < withdrawalPageSize || pageMax <= cursor {
			return out, nil
		}
		cursor = pageMax
	}
}

// VerifyBlockCommit reports whether a committed block hash exists on the Fuel
// chain. A missing block means the commitment is invalid.
func (c *FuelClient) VerifyBlockCommit(ctx context.Context, blockHash string) (bool, error) {
	q := fmt.Sprintf(`{ block(id: %q) { id } }`, blockHash)

	var res struct {
		Block *struct {
			ID string `json:"id"`
		} `json:"block"`
	}
	if err := c.query(ctx, q, &res); err != nil {
		return false, err
	}
	return res.Block != nil, nil
}

var _ CommitVerifier = (*FuelClient)(nil)

// FuelWatcherOptions parameterise the Fuel-side watch loop.
type FuelWatcherOptions struct {
	PollInterval  time.Duration
	BaseAssetName string
	GatewayTokens []WatchedToken
}

// FuelWatcher polls the Fuel chain and feeds normalized events into the
// engine's Fuel queue. Withdrawals observed on the L2 are reported for both
// the portal (base asset) and gateway (token) rule families.
type FuelWatcher struct {
	opts   FuelWatcherOptions
	client *FuelClient
	sink   Sink
	logger zerolog.Logger

	lastHeight uint64
	rounds     uint64
}

// NewFuelWatcher constructs the Fuel-side watcher.
func NewFuelWatcher(opts FuelWatcherOptions, client *FuelClient, sink Sink, logger zerolog.Logger) *FuelWatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 6 * time.Second
	}
	if opts.BaseAssetName == "" {
		opts.BaseAssetName = "ETH"
	}
	return &FuelWatcher{
		opts:   opts,
		client: client,
		sink:   sink,
		logger: logger.With().Str("component", "fuel_watcher").Logger(),
	}
}

// Run blocks, polling until ctx is cancelled.
func (w *FuelWatcher) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Interval:       w.opts.PollInterval,
		RunImmediately: true,
	}, w.logger)
	return sched.Run(ctx, w.poll)
}

func (w *FuelWatcher) poll(ctx context.Context, now time.Time) error {
	if w.rounds%heartbeatSkip == 0 {
		w.logger.Info().Msg("watching fuel chain")
	}
	w.rounds++

	if err := w.client.CheckConnection(ctx); err != nil {
		w.logger.Warn().Err(err).Msg("fuel connection check failed")
		w.sink.Submit(ctx, event.Connectivity(event.ChainFuel, false, now))
		return nil
	}
	w.sink.Submit(ctx, event.Connectivity(event.ChainFuel, true, now))
	w.sink.Submit(ctx, event.Check(event.ChainFuel, now))

	height, err := w.client.LatestBlockHeight(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to fetch fuel block height")
		return nil
	}

	if height > w.lastHeight {
		w.sink.Submit(ctx, event.BlockProduced(event.ChainFuel, height, now))
		// First poll only establishes the baseline; history before startup
		// is not replayed into the windows.
		if w.lastHeight > 0 {
			w.emitWithdrawals(ctx, now)
		}
		w.lastHeight = height
	}

	return nil
}

func (w *FuelWatcher) emitWithdrawals(ctx context.Context, now time.Time) {
	withdrawals, err := w.client.WithdrawalsSince(ctx, w.lastHeight)
	if err != nil {
		w.logger.Warn().Err(err).Msg("failed to scan fuel withdrawals")
		return
	}

	for _, withdrawal := range withdrawals {
		if token, ok := w.gatewayToken(withdrawal.AssetID); ok {
			w.sink.Submit(ctx, event.Transfer(event.ChainFuel, event.DirectionWithdraw, event.ContractGateway,
				token.Name, token.Address, withdrawal.Amount, now))
			continue
		}
		w.sink.Submit(ctx, event.Transfer(event.ChainFuel, event.DirectionWithdraw, event.ContractPortal,
			w.opts.BaseAssetName, "", withdrawal.Amount, now))
	}
}

func (w *FuelWatcher) gatewayToken(assetID string) (WatchedToken, bool) {
	for _, token := range w.opts.GatewayTokens {
		if strings.EqualFold(token.Address, assetID) {
			return token, true
		}
	}
	return WatchedToken{}, false
}
