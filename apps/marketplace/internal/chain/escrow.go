package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// EscrowABI covers the settlement contract surface this service consumes.
const EscrowABI = `[
	{"type": "function", "name": "executeOrder", "stateMutability": "payable",
		"inputs": [
			{"internalType": "bytes32", "name": "orderId", "type": "bytes32"},
			{"internalType": "address", "name": "resolver", "type": "address"}
		],
		"outputs": []},
	{"type": "event", "name": "OrderCreated",
		"inputs": [
			{"internalType": "bytes32", "name": "orderId", "type": "bytes32", "indexed": true},
			{"internalType": "address", "name": "requester", "type": "address", "indexed": true}
		]},
	{"type": "event", "name": "OrderExecuted",
		"inputs": [
			{"internalType": "bytes32", "name": "orderId", "type": "bytes32", "indexed": true},
			{"internalType": "address", "name": "resolver", "type": "address", "indexed": true}
		]}
]`

// Escrow is the on-chain settlement capability the resolver agent consumes.
type Escrow interface {
	ExecuteOrder(ctx context.Context, orderID string, value *big.Int) (string, error)
}

// EthEscrow talks to the escrow contract over JSON-RPC.
type EthEscrow struct {
	client   *ethclient.Client
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	logger   *zap.Logger
}

func NewEthEscrow(client *ethclient.Client, contractAddress string, key *ecdsa.PrivateKey, logger *zap.Logger) (*EthEscrow, error) {
	parsed, err := abi.JSON(strings.NewReader(EscrowABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse escrow ABI: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &EthEscrow{
		client:   client,
		abi:      parsed,
		address:  common.HexToAddress(contractAddress),
		key:      key,
		from:     crypto.PubkeyToAddress(key.PublicKey),
		chainID:  chainID,
		gasLimit: 200000,
		logger:   logger,
	}, nil
}

// ExecuteOrder settles a won order on-chain, sending the order's source amount
// as value. The marketplace order id is folded to bytes32 through keccak256,
// the same derivation the order signature uses. Blocks until mined.
func (e *EthEscrow) ExecuteOrder(ctx context.Context, orderID string, value *big.Int) (string, error) {
	var orderIDBytes [32]byte
	copy(orderIDBytes[:], crypto.Keccak256([]byte(orderID)))

	data, err := e.abi.Pack("executeOrder", orderIDBytes, e.from)
	if err != nil {
		return "", fmt.Errorf("failed to pack executeOrder call: %w", err)
	}

	nonce, err := e.client.PendingNonceAt(ctx, e.from)
	if err != nil {
		return "", fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := e.client.SuggestGasPrice(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &e.address,
		Value:    value,
		Gas:      e.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(e.chainID), e.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := e.client.SendTransaction(ctx, signed); err != nil {
		return "", fmt.Errorf("failed to send transaction: %w", err)
	}

	e.logger.Info("Execution transaction sent",
		zap.String("order_id", orderID),
		zap.String("tx_hash", signed.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, e.client, signed)
	if err != nil {
		return "", fmt.Errorf("failed to wait for execution confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return "", fmt.Errorf("execution transaction reverted: %s", signed.Hash().Hex())
	}

	return signed.Hash().Hex(), nil
}
