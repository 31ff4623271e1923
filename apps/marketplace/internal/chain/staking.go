package chain

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// StakingABI covers the resolver collateral contract surface this service consumes.
const StakingABI = `[
	{"type": "function", "name": "stake", "stateMutability": "payable", "inputs": [], "outputs": []},
	{"type": "function", "name": "getStake", "stateMutability": "view",
		"inputs": [{"internalType": "address", "name": "resolver", "type": "address"}],
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}]},
	{"type": "function", "name": "getReputation", "stateMutability": "view",
		"inputs": [{"internalType": "address", "name": "resolver", "type": "address"}],
		"outputs": [{"internalType": "uint256", "name": "", "type": "uint256"}]},
	{"type": "function", "name": "isResolver", "stateMutability": "view",
		"inputs": [{"internalType": "address", "name": "resolver", "type": "address"}],
		"outputs": [{"internalType": "bool", "name": "", "type": "bool"}]}
]`

// Staking is the on-chain collateral capability the resolver agent consumes.
type Staking interface {
	GetStake(ctx context.Context, resolver common.Address) (*big.Int, error)
	GetReputation(ctx context.Context, resolver common.Address) (*big.Int, error)
	IsResolver(ctx context.Context, resolver common.Address) (bool, error)
	Stake(ctx context.Context, amount *big.Int) error
}

// EthStaking talks to the staking contract over JSON-RPC.
type EthStaking struct {
	client   *ethclient.Client
	abi      abi.ABI
	address  common.Address
	key      *ecdsa.PrivateKey
	from     common.Address
	chainID  *big.Int
	gasLimit uint64
	logger   *zap.Logger
}

func NewEthStaking(client *ethclient.Client, contractAddress string, key *ecdsa.PrivateKey, logger *zap.Logger) (*EthStaking, error) {
	parsed, err := abi.JSON(strings.NewReader(StakingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse staking ABI: %w", err)
	}

	chainID, err := client.ChainID(context.Background())
	if err != nil {
		return nil, fmt.Errorf("failed to get chain id: %w", err)
	}

	return &EthStaking{
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

func (s *EthStaking) GetStake(ctx context.Context, resolver common.Address) (*big.Int, error) {
	return s.callUint256(ctx, "getStake", resolver)
}

func (s *EthStaking) GetReputation(ctx context.Context, resolver common.Address) (*big.Int, error) {
	return s.callUint256(ctx, "getReputation", resolver)
}

func (s *EthStaking) IsResolver(ctx context.Context, resolver common.Address) (bool, error) {
	data, err := s.abi.Pack("isResolver", resolver)
	if err != nil {
		return false, fmt.Errorf("failed to pack isResolver call: %w", err)
	}

	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: data}, nil)
	if err != nil {
		return false, fmt.Errorf("isResolver call failed: %w", err)
	}

	values, err := s.abi.Unpack("isResolver", raw)
	if err != nil {
		return false, fmt.Errorf("failed to unpack isResolver result: %w", err)
	}
	return values[0].(bool), nil
}

// Stake sends the given amount to the staking contract and waits for the
// transaction to be mined.
func (s *EthStaking) Stake(ctx context.Context, amount *big.Int) error {
	data, err := s.abi.Pack("stake")
	if err != nil {
		return fmt.Errorf("failed to pack stake call: %w", err)
	}

	tx, err := s.sendTransaction(ctx, amount, data)
	if err != nil {
		return err
	}

	s.logger.Info("Stake transaction sent", zap.String("tx_hash", tx.Hash().Hex()), zap.String("amount", amount.String()))

	receipt, err := bind.WaitMined(ctx, s.client, tx)
	if err != nil {
		return fmt.Errorf("failed to wait for stake confirmation: %w", err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return fmt.Errorf("stake transaction reverted: %s", tx.Hash().Hex())
	}

	return nil
}

func (s *EthStaking) callUint256(ctx context.Context, method string, resolver common.Address) (*big.Int, error) {
	data, err := s.abi.Pack(method, resolver)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s call: %w", method, err)
	}

	raw, err := s.client.CallContract(ctx, ethereum.CallMsg{To: &s.address, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}

	values, err := s.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s result: %w", method, err)
	}
	return values[0].(*big.Int), nil
}

func (s *EthStaking) sendTransaction(ctx context.Context, value *big.Int, data []byte) (*types.Transaction, error) {
	nonce, err := s.client.PendingNonceAt(ctx, s.from)
	if err != nil {
		return nil, fmt.Errorf("failed to get nonce: %w", err)
	}

	gasPrice, err := s.client.SuggestGasPrice(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to get gas price: %w", err)
	}

	tx := types.NewTx(&types.LegacyTx{
		Nonce:    nonce,
		To:       &s.address,
		Value:    value,
		Gas:      s.gasLimit,
		GasPrice: gasPrice,
		Data:     data,
	})

	signed, err := types.SignTx(tx, types.NewEIP155Signer(s.chainID), s.key)
	if err != nil {
		return nil, fmt.Errorf("failed to sign transaction: %w", err)
	}

	if err := s.client.SendTransaction(ctx, signed); err != nil {
		return nil, fmt.Errorf("failed to send transaction: %w", err)
	}

	return signed, nil
}
