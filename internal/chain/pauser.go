package chain

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/rs/zerolog"

	"github.com/FuelLabs/fuel-canary-watchtower/internal/alerting"
)

const pauseGasLimit = 200_000

const pausableABIJSON = `[{"inputs":[],"name":"pause","outputs":[],"stateMutability":"nonpayable","type":"function"}]`

var pausableABI abi.ABI

func init() {
	parsed, err := abi.JSON(strings.NewReader(pausableABIJSON))
	if err != nil {
		panic("failed to parse pausable ABI: " + err.Error())
	}
	pausableABI = parsed
}

// PauserOptions parameterise the contract pauser.
type PauserOptions struct {
	RPCURL          string
	Timeout         time.Duration
	StateContract   string
	PortalContract  string
	GatewayContract string
}

// ContractPauser submits pause() transactions against the bridge contracts.
// Pausing an already-paused contract reverts harmlessly on-chain, so calls
// are safe to repeat; the watchtower never checks pause state first.
type ContractPauser struct {
	opts   PauserOptions
	key    *ecdsa.PrivateKey
	from   common.Address
	logger zerolog.Logger

	client    *ethclient.Client
	clientMux sync.Mutex
}

// NewContractPauser builds a pauser from a hex-encoded private key.
func NewContractPauser(opts PauserOptions, walletKey string, logger zerolog.Logger) (*ContractPauser, error) {
	key, err := crypto.HexToECDSA(strings.TrimPrefix(walletKey, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse wallet key: %w", err)
	}

	return &ContractPauser{
		opts:   opts,
		key:    key,
		from:   crypto.PubkeyToAddress(key.PublicKey),
		logger: logger.With().Str("component", "contract_pauser").Logger(),
	}, nil
}

// Account returns the operator address derived from the wallet key.
func (p *ContractPauser) Account() string {
	return p.from.Hex()
}

// PauseAll pauses the state, portal, and gateway contracts. Each contract is
// attempted even when an earlier one fails; the combined error reports every
// failure.
func (p *ContractPauser) PauseAll(ctx context.Context) error {
	if p.opts.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, p.opts.Timeout)
		defer cancel()
	}

	var errs []error
	for _, target := range []struct {
		name    string
		address string
	}{
		{"state", p.opts.StateContract},
		{"portal", p.opts.PortalContract},
		{"gateway", p.opts.GatewayContract},
	} {
		if target.address == "" {
			continue
		}
		if err := p.pause(ctx, common.HexToAddress(target.address)); err != nil {
			p.logger.Error().Err(err).Str("contract", target.name).Msg("pause transaction failed")
			errs = append(errs, fmt.Errorf("pause %s contract: %w", target.name, err))
			continue
		}
		p.logger.Info().Str("contract", target.name).Msg("pause transaction submitted")
	}

	return errors.Join(errs...)
}

func (p *ContractPauser) pause(ctx context.Context, contract common.Address) error {
	client, err := p.getClient(ctx)
	if err != nil {
		return err
	}

	chainID, err := client.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("fetch chain id: %w", err)
	}
	nonce, err := client.PendingNonceAt(ctx, p.from)
	if err != nil {
		return fmt.Errorf("fetch nonce: %w", err)
	}
	gasPrice, err := client.SuggestGasPrice(ctx)
	if err != nil {
		return fmt.Errorf("suggest gas price: %w", err)
	}

	payload, err := pausableABI.Pack("pause")
	if err != nil {
		return fmt.Errorf("pack pause call: %w", err)
	}

	tx := types.NewTransaction(nonce, contract, nil, pauseGasLimit, gasPrice, payload)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(chainID), p.key)
	if err != nil {
		return fmt.Errorf("sign pause tx: %w", err)
	}

	if err := client.SendTransaction(ctx, signed); err != nil {
		return fmt.Errorf("send pause tx: %w", err)
	}
	return nil
}

func (p *ContractPauser) getClient(ctx context.Context) (*ethclient.Client, error) {
	p.clientMux.Lock()
	defer p.clientMux.Unlock()

	if p.client != nil {
		return p.client, nil
	}

	client, err := ethclient.DialContext(ctx, p.opts.RPCURL)
	if err != nil {
		return nil, err
	}
	p.client = client
	return client, nil
}

var _ alerting.Pauser = (*ContractPauser)(nil)
