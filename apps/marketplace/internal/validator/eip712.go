package validator

import (
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

// EIP-712 domain descriptor for order signatures.
const (
	domainName    = "Fusion+"
	domainVersion = "1"
	domainChainID = 1
	// Placeholder until the settlement contract is deployed.
	verifyingContract = "0x0000000000000000000000000000000000000000"
)

var orderTypes = apitypes.Types{
	"EIP712Domain": {
		{Name: "name", Type: "string"},
		{Name: "version", Type: "string"},
		{Name: "chainId", Type: "uint256"},
		{Name: "verifyingContract", Type: "address"},
	},
	"Order": {
		{Name: "orderId", Type: "bytes32"},
		{Name: "requester", Type: "address"},
		{Name: "requesterDestAddr", Type: "string"},
		{Name: "chainFrom", Type: "string"},
		{Name: "chainTo", Type: "string"},
		{Name: "tokenFrom", Type: "address"},
		{Name: "tokenTo", Type: "string"},
		{Name: "amountFrom", Type: "uint256"},
		{Name: "minAmountTo", Type: "uint256"},
		{Name: "expiry", Type: "uint256"},
		{Name: "nonce", Type: "uint256"},
	},
}

// OrderDigest builds the canonical EIP-712 digest for an order. The order id
// string is folded to bytes32 through keccak256, expiry is signed as unix
// seconds.
func OrderDigest(order *model.Order) ([]byte, error) {
	typedData := apitypes.TypedData{
		Types:       orderTypes,
		PrimaryType: "Order",
		Domain: apitypes.TypedDataDomain{
			Name:              domainName,
			Version:           domainVersion,
			ChainId:           math.NewHexOrDecimal256(domainChainID),
			VerifyingContract: verifyingContract,
		},
		Message: apitypes.TypedDataMessage{
			"orderId":           hexutil.Encode(crypto.Keccak256([]byte(order.OrderID))),
			"requester":         order.Requester,
			"requesterDestAddr": order.DestinationAddress,
			"chainFrom":         order.ChainFrom,
			"chainTo":           order.ChainTo,
			"tokenFrom":         order.TokenFrom,
			"tokenTo":           order.TokenTo,
			"amountFrom":        order.AmountFrom,
			"minAmountTo":       order.MinAmountTo,
			"expiry":            strconv.FormatInt(order.Expiry.Unix(), 10),
			"nonce":             strconv.FormatUint(order.Nonce, 10),
		},
	}

	digest, _, err := apitypes.TypedDataAndHash(typedData)
	return digest, err
}

// verifyEIP712 recovers the signer from the typed-data digest and requires it
// to equal the order's requester, case-insensitively.
func (v *SignatureValidator) verifyEIP712(order *model.Order) bool {
	digest, err := OrderDigest(order)
	if err != nil {
		v.logger.Debug("Failed to build order digest", zap.String("order_id", order.OrderID), zap.Error(err))
		return false
	}

	signature, err := hexutil.Decode(order.Signature)
	if err != nil || len(signature) != crypto.SignatureLength {
		return false
	}

	// Accept both 0/1 and 27/28 recovery ids.
	sig := make([]byte, crypto.SignatureLength)
	copy(sig, signature)
	if sig[crypto.RecoveryIDOffset] >= 27 {
		sig[crypto.RecoveryIDOffset] -= 27
	}

	pubKey, err := crypto.SigToPub(digest, sig)
	if err != nil {
		v.logger.Debug("Failed to recover signer", zap.String("order_id", order.OrderID), zap.Error(err))
		return false
	}

	recovered := crypto.PubkeyToAddress(*pubKey)
	return strings.EqualFold(recovered.Hex(), order.Requester)
}
