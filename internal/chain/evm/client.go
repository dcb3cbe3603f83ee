// Package evm implements the chain interfaces over JSON-RPC with go-ethereum.
package evm

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
)

const erc20ABIJSON = `[
	{"constant":true,"inputs":[{"name":"_owner","type":"address"}],"name":"balanceOf","outputs":[{"name":"balance","type":"uint256"}],"type":"function"},
	{"constant":false,"inputs":[{"name":"_to","type":"address"},{"name":"_value","type":"uint256"}],"name":"transfer","outputs":[{"name":"","type":"bool"}],"type":"function"}
]`

const distributeABIJSON = `[
	{"constant":false,"inputs":[{"name":"_recipients","type":"address[]"},{"name":"_amounts","type":"uint256[]"},{"name":"_token","type":"address"}],"name":"distribute","outputs":[],"type":"function"}
]`

// Reader is a read-only client for the source chain.
type Reader struct {
	eth    *ethclient.Client
	logger *slog.Logger
}

func NewReader(ctx context.Context, rpcURL string, logger *slog.Logger) (*Reader, error) {
	eth, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dial source rpc: %w", err)
	}
	return &Reader{eth: eth, logger: logger.With("component", "chain_reader")}, nil
}

func (r *Reader) Ping(ctx context.Context) error {
	if _, err := r.eth.BlockNumber(ctx); err != nil {
		return fmt.Errorf("ping source rpc: %w", err)
	}
	return nil
}

func (r *Reader) HeadBlock(ctx context.Context) (int64, error) {
	head, err := r.eth.BlockNumber(ctx)
	if err != nil {
		return 0, fmt.Errorf("head block: %w", err)
	}
	return int64(head), nil
}

func (r *Reader) TransactionCallData(ctx context.Context, txHash string) ([]byte, error) {
	tx, pending, err := r.eth.TransactionByHash(ctx, common.HexToHash(txHash))
	if err != nil {
		return nil, fmt.Errorf("transaction %s: %w", txHash, err)
	}
	if pending {
		return nil, fmt.Errorf("transaction %s: still pending", txHash)
	}
	return tx.Data(), nil
}

func (r *Reader) TransactionReceiptStatus(ctx context.Context, txHash string) (bool, error) {
	receipt, err := r.eth.TransactionReceipt(ctx, common.HexToHash(txHash))
	if err != nil {
		return false, fmt.Errorf("receipt %s: %w", txHash, err)
	}
	return receipt.Status == types.ReceiptStatusSuccessful, nil
}

func (r *Reader) BlockTime(ctx context.Context, number int64) (time.Time, error) {
	header, err := r.eth.HeaderByNumber(ctx, big.NewInt(number))
	if err != nil {
		return time.Time{}, fmt.Errorf("header %d: %w", number, err)
	}
	return time.Unix(int64(header.Time), 0).UTC(), nil
}

func (r *Reader) Close() {
	r.eth.Close()
}

// SettlerConfig wires the destination-chain account and contracts.
type SettlerConfig struct {
	RPCURL             string
	PrivateKeyHex      string
	TokenContract      string
	DistributeContract string
	GasLimit           uint64
}

// Settler signs and submits distribute transactions on the destination chain.
type Settler struct {
	eth           *ethclient.Client
	key           *ecdsa.PrivateKey
	account       common.Address
	token         common.Address
	distributor   common.Address
	chainID       *big.Int
	gasLimit      uint64
	erc20ABI      abi.ABI
	distributeABI abi.ABI
	logger        *slog.Logger
}

func NewSettler(ctx context.Context, cfg SettlerConfig, logger *slog.Logger) (*Settler, error) {
	eth, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("dial settlement rpc: %w", err)
	}

	key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKeyHex, "0x"))
	if err != nil {
		return nil, fmt.Errorf("parse settlement key: %w", err)
	}

	chainID, err := eth.ChainID(ctx)
	if err != nil {
		return nil, fmt.Errorf("query chain id: %w", err)
	}

	erc20, err := abi.JSON(strings.NewReader(erc20ABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse erc20 abi: %w", err)
	}
	distribute, err := abi.JSON(strings.NewReader(distributeABIJSON))
	if err != nil {
		return nil, fmt.Errorf("parse distribute abi: %w", err)
	}

	return &Settler{
		eth:           eth,
		key:           key,
		account:       crypto.PubkeyToAddress(key.PublicKey),
		token:         common.HexToAddress(cfg.TokenContract),
		distributor:   common.HexToAddress(cfg.DistributeContract),
		chainID:       chainID,
		gasLimit:      cfg.GasLimit,
		erc20ABI:      erc20,
		distributeABI: distribute,
		logger:        logger.With("component", "settler"),
	}, nil
}

// Account returns the settlement account address.
func (s *Settler) Account() string {
	return s.account.Hex()
}

func (s *Settler) TokenBalance(ctx context.Context) (*big.Int, error) {
	data, err := s.erc20ABI.Pack("balanceOf", s.account)
	if err != nil {
		return nil, fmt.Errorf("pack balanceOf: %w", err)
	}

	out, err := s.eth.CallContract(ctx, ethereum.CallMsg{To: &s.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("call balanceOf: %w", err)
	}

	results, err := s.erc20ABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, fmt.Errorf("unpack balanceOf: %w", err)
	}
	balance, ok := results[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unpack balanceOf: unexpected type %T", results[0])
	}
	return balance, nil
}

func (s *Settler) GasBalance(ctx context.Context) (*big.Int, error) {
	balance, err := s.eth.BalanceAt(ctx, s.account, nil)
	if err != nil {
		return nil, fmt.Errorf("gas balance: %w", err)
	}
	return balance, nil
}

func (s *Settler) Distribute(ctx context.Context, recipients []string, amounts []*big.Int) (string, error) {
	if len(recipients) != len(amounts) {
		return "", fmt.Errorf("distribute: %d recipients vs %d amounts", len(recipients), len(amounts))
	}

	addrs := make([]common.Address, len(recipients))
	for i, r := range recipients {
		if !common.IsHexAddress(r) {
			return "", fmt.Errorf("distribute: invalid recipient address %q", r)
		}
		addrs[i] = common.HexToAddress(r)
	}

	data, err := s.distributeABI.Pack("distribute", addrs, amounts, s.token)
	if err != nil {
		return "", fmt.Errorf("pack distribute: %w", err)
	}

	nonce, err := s.eth.PendingNonceAt(ctx, s.account)
	if err != nil {
		return "", fmt.Errorf("pending nonce: %w", err)
	}

	gasPrice, err := s.eth.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("suggest gas price: %w", err)
	}

	tx := types.NewTransaction(nonce, s.distributor, big.NewInt(0), s.gasLimit, gasPrice, data)
	signed, err := types.SignTx(tx, types.LatestSignerForChainID(s.chainID), s.key)
	if err != nil {
		return "", fmt.Errorf("sign distribute tx: %w", err)
	}

	if err := s.eth.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("send distribute tx: %w", err)
	}

	txHash := signed.Hash().Hex()
	s.logger.Info("settlement transaction submitted", "tx_hash", txHash, "recipients", len(recipients))

	receipt, err := bind.WaitMined(ctx, s.eth, signed)
	if err != nil {
		return "", fmt.Errorf("wait for receipt %s: %w", txHash, err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("distribute tx %s reverted", txHash)
	}

	return txHash, nil
}

func (s *Settler) Close() {
	s.eth.Close()
}
