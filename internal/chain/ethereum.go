package chain

import (
	"context"
	"math/big"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/event"
	"github.com/FuelLabs/fuel-canary-watchtower/internal/scheduler"
)

const (
	etherDecimals = 18

	// commitScanStartupOffset is how far back the first state-commit scan
	// reaches, expressed in blocks at the nominal 12s block time (~24h).
	commitScanStartupOffset = 24 * 60 * 60 / 12

	portalABIJSON = `[
  {"type":"event","name":"Deposit","inputs":[{"name":"sender","type":"address","indexed":true},{"name":"recipient","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"Withdrawal","inputs":[{"name":"sender","type":"bytes32","indexed":true},{"name":"recipient","type":"address","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false}
]`
	gatewayABIJSON = `[
  {"type":"event","name":"Deposit","inputs":[{"name":"sender","type":"address","indexed":true},{"name":"tokenAddress","type":"address","indexed":true},{"name":"recipient","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false},
  {"type":"event","name":"Withdrawal","inputs":[{"name":"recipient","type":"address","indexed":true},{"name":"tokenAddress","type":"address","indexed":true},{"name":"sender","type":"bytes32","indexed":true},{"name":"amount","type":"uint256","indexed":false}],"anonymous":false}
]`
	stateABIJSON = `[
  {"type":"event","name":"CommitSubmitted","inputs":[{"name":"commitHeight","type":"uint256","indexed":true},{"name":"blockHash","type":"bytes32","indexed":false}],"anonymous":false}
]`
)

var (
	portalABI  abi.ABI
	gatewayABI abi.ABI
	stateABI   abi.ABI
)

func init() {
	var err error
	if portalABI, err = abi.JSON(strings.NewReader(portalABIJSON)); err != nil {
		panic("failed to parse portal ABI: " + err.Error())
	}
	if gatewayABI, err = abi.JSON(strings.NewReader(gatewayABIJSON)); err != nil {
		panic("failed to parse gateway ABI: " + err.Error())
	}
	if stateABI, err = abi.JSON(strings.NewReader(stateABIJSON)); err != nil {
		panic("failed to parse state ABI: " + err.Error())
	}
}

// EthereumWatcherOptions parameterise the Ethereum-side watch loop.
type EthereumWatcherOptions struct {
	RPCURL          string
	Timeout         time.Duration
	PollInterval    time.Duration
	StateContract   string
	PortalContract  string
	GatewayContract string

	// Account is the operator wallet sampled for the funds rule; empty
	// disables balance sampling.
	Account string

	BaseAssetName string
	GatewayTokens []WatchedToken
}

// EthereumWatcher polls the Ethereum chain and feeds normalized events into
// the engine's Ethereum queue: connectivity, block heads, operator balance,
// portal and gateway transfer logs, and state commitment validity.
type EthereumWatcher struct {
	opts     EthereumWatcherOptions
	verifier CommitVerifier
	sink     Sink
	logger   zerolog.Logger

	client    *ethclient.Client
	clientMux sync.Mutex

	lastHeight        uint64
	lastTransferBlock uint64
	lastCommitBlock   uint64
	rounds            uint64
}

// NewEthereumWatcher constructs the Ethereum-side watcher. The verifier is
// consulted for every observed state commitment.
func NewEthereumWatcher(opts EthereumWatcherOptions, verifier CommitVerifier, sink Sink, logger zerolog.Logger) *EthereumWatcher {
	if opts.PollInterval <= 0 {
		opts.PollInterval = 6 * time.Second
	}
	if opts.BaseAssetName == "" {
		opts.BaseAssetName = "ETH"
	}
	return &EthereumWatcher{
		opts:     opts,
		verifier: verifier,
		sink:     sink,
		logger:   logger.With().Str("component", "ethereum_watcher").Logger(),
	}
}

// Run blocks, polling until ctx is cancelled.
func (w *EthereumWatcher) Run(ctx context.Context) error {
	sched := scheduler.New(scheduler.Options{
		Interval:       w.opts.PollInterval,
		RunImmediately: true,
	}, w.logger)
	return sched.Run(ctx, w.poll)
}

func (w *EthereumWatcher) getClient(ctx context.Context) (*ethclient.Client, error) {
	w.clientMux.Lock()
	defer w.clientMux.Unlock()

	if w.client != nil {
		return w.client, nil
	}

	client, err := ethclient.DialContext(ctx, w.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	w.client = client
	return client, nil
}

func (w *EthereumWatcher) poll(ctx context.Context, now time.Time) error {
	if w.rounds%heartbeatSkip == 0 {
		w.logger.Info().Msg("watching ethereum chain")
	}
	w.rounds++

	if w.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, w.opts.Timeout)
		defer cancel()
	}

	client, err := w.getClient(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("ethereum dial failed")
		w.sink.Submit(ctx, event.Connectivity(event.ChainEthereum, false, now))
		return nil
	}

	height, err := client.BlockNumber(ctx)
	if err != nil {
		w.logger.Warn().Err(err).Msg("ethereum connection check failed")
		w.sink.Submit(ctx, event.Connectivity(event.ChainEthereum, false, now))
		return nil
	}
	w.sink.Submit(ctx, event.Connectivity(event.ChainEthereum, true, now))
	w.sink.Submit(ctx, event.Check(event.ChainEthereum, now))

	if height > w.lastHeight {
		w.sink.Submit(ctx, event.BlockProduced(event.ChainEthereum, height, now))
		w.lastHeight = height
	}

	w.sampleBalance(ctx, client, now)

	if w.lastTransferBlock == 0 {
		// Transfers start at the current head. Replaying history would pour
		// old deposits into fresh windows all stamped with the same
		// observation time and trip every threshold on restart.
		w.lastTransferBlock = height
	}
	if w.lastCommitBlock == 0 && height > commitScanStartupOffset {
		// The commit scan alone reaches ~24h back so commits made while the
		// watchtower was down are still checked.
		w.lastCommitBlock = height - commitScanStartupOffset
	}

	if height > w.lastTransferBlock {
		w.scanTransferLogs(ctx, client, w.lastTransferBlock+1, height, now)
		w.lastTransferBlock = height
	}
	if height > w.lastCommitBlock {
		w.scanCommitLogs(ctx, client, w.lastCommitBlock+1, height, now)
		w.lastCommitBlock = height
	}

	return nil
}

func (w *EthereumWatcher) sampleBalance(ctx context.Context, client *ethclient.Client, now time.Time) {
	if w.opts.Account == "" {
		return
	}

	account := common.HexToAddress(w.opts.Account)
	balance, err := client.BalanceAt(ctx, account, nil)
	if err != nil {
		w.logger.Warn().Err(err).Str("account", account.Hex()).Msg("failed to fetch account balance")
		return
	}
	w.sink.Submit(ctx, event.BalanceSample(event.ChainEthereum, account.Hex(), fromBaseUnits(balance, etherDecimals), now))
}

func (w *EthereumWatcher) scanTransferLogs(ctx context.Context, client *ethclient.Client, from, to uint64, now time.Time) {
	var addresses []common.Address
	if w.opts.PortalContract != "" {
		addresses = append(addresses, common.HexToAddress(w.opts.PortalContract))
	}
	if w.opts.GatewayContract != "" {
		addresses = append(addresses, common.HexToAddress(w.opts.GatewayContract))
	}
	if len(addresses) == 0 {
		return
	}

	logs, err := w.filterLogs(ctx, client, from, to, addresses)
	if err != nil {
		w.logger.Warn().Err(err).Uint64("from", from).Uint64("to", to).Msg("failed to filter transfer logs")
		return
	}

	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		if w.opts.PortalContract != "" && lg.Address == common.HexToAddress(w.opts.PortalContract) {
			w.handlePortalLog(ctx, lg, now)
			continue
		}
		w.handleGatewayLog(ctx, lg, now)
	}
}

func (w *EthereumWatcher) scanCommitLogs(ctx context.Context, client *ethclient.Client, from, to uint64, now time.Time) {
	if w.opts.StateContract == "" {
		return
	}

	logs, err := w.filterLogs(ctx, client, from, to, []common.Address{common.HexToAddress(w.opts.StateContract)})
	if err != nil {
		w.logger.Warn().Err(err).Uint64("from", from).Uint64("to", to).Msg("failed to filter commit logs")
		return
	}

	for _, lg := range logs {
		if len(lg.Topics) == 0 {
			continue
		}
		w.handleStateLog(ctx, lg, now)
	}
}

func (w *EthereumWatcher) filterLogs(ctx context.Context, client *ethclient.Client, from, to uint64, addresses []common.Address) ([]types.Log, error) {
	return client.FilterLogs(ctx, ethereum.FilterQuery{
		FromBlock: new(big.Int).SetUint64(from),
		ToBlock:   new(big.Int).SetUint64(to),
		Addresses: addresses,
	})
}

func (w *EthereumWatcher) handlePortalLog(ctx context.Context, lg types.Log, now time.Time) {
	var direction event.Direction
	switch lg.Topics[0] {
	case portalABI.Events["Deposit"].ID:
		direction = event.DirectionDeposit
	case portalABI.Events["Withdrawal"].ID:
		direction = event.DirectionWithdraw
	default:
		return
	}

	amount, ok := unpackAmount(portalABI, lg, direction)
	if !ok {
		w.logger.Warn().Str("tx", lg.TxHash.Hex()).Msg("dropping undecodable portal log")
		return
	}

	w.sink.Submit(ctx, event.Transfer(event.ChainEthereum, direction, event.ContractPortal,
		w.opts.BaseAssetName, "", fromBaseUnits(amount, etherDecimals), now))
}

func (w *EthereumWatcher) handleGatewayLog(ctx context.Context, lg types.Log, now time.Time) {
	var direction event.Direction
	switch lg.Topics[0] {
	case gatewayABI.Events["Deposit"].ID:
		direction = event.DirectionDeposit
	case gatewayABI.Events["Withdrawal"].ID:
		direction = event.DirectionWithdraw
	default:
		return
	}
	if len(lg.Topics) < 3 {
		w.logger.Warn().Str("tx", lg.TxHash.Hex()).Msg("dropping gateway log with missing topics")
		return
	}

	tokenAddress := common.BytesToAddress(lg.Topics[2].Bytes())
	token, ok := w.gatewayToken(tokenAddress.Hex())
	if !ok {
		// Not a watched token; no configured rule can match it.
		return
	}

	amount, ok := unpackAmount(gatewayABI, lg, direction)
	if !ok {
		w.logger.Warn().Str("tx", lg.TxHash.Hex()).Msg("dropping undecodable gateway log")
		return
	}

	w.sink.Submit(ctx, event.Transfer(event.ChainEthereum, direction, event.ContractGateway,
		token.Name, token.Address, fromBaseUnits(amount, token.Decimals), now))
}

func (w *EthereumWatcher) handleStateLog(ctx context.Context, lg types.Log, now time.Time) {
	if lg.Topics[0] != stateABI.Events["CommitSubmitted"].ID {
		return
	}
	if len(lg.Data) < 32 {
		w.logger.Warn().Str("tx", lg.TxHash.Hex()).Msg("dropping malformed commit log")
		return
	}

	blockHash := common.BytesToHash(lg.Data[:32]).Hex()
	valid, err := w.verifier.VerifyBlockCommit(ctx, blockHash)
	if err != nil {
		w.logger.Error().Err(err).Str("commit", blockHash).Msg("failed to verify state commit against fuel chain")
		return
	}

	w.sink.Submit(ctx, event.StateCommit(valid, blockHash, now))
}

func (w *EthereumWatcher) gatewayToken(address string) (WatchedToken, bool) {
	for _, token := range w.opts.GatewayTokens {
		if strings.EqualFold(token.Address, address) {
			return token, true
		}
	}
	return WatchedToken{}, false
}

func unpackAmount(contractABI abi.ABI, lg types.Log, direction event.Direction) (*big.Int, bool) {
	name := "Deposit"
	if direction == event.DirectionWithdraw {
		name = "Withdrawal"
	}

	values, err := contractABI.Unpack(name, lg.Data)
	if err != nil || len(values) == 0 {
		return nil, false
	}
	amount, ok := values[0].(*big.Int)
	return amount, ok
}
