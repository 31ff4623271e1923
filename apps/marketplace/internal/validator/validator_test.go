package validator

import (
	"bytes"
	"crypto/ecdsa"
	"strings"
	"testing"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/crypto"
	"go.uber.org/zap"
	"marketplace/apps/marketplace/internal/model"
)

const testKeyHex = "b71c71a67e1177ad4e901695e1b4b9ee17ae16c6668d313eac2f96dbcda3f291"

func testOrder(requester string) model.Order {
	return model.Order{
		OrderID:            "order-eip712-test",
		Requester:          requester,
		DestinationAddress: "0x" + "ab12" + "00000000000000000000000000000000000000000000000000000000000a",
		ChainFrom:          model.ChainEthereum,
		ChainTo:            model.ChainSui,
		TokenFrom:          "0xA0b86991c6218b36c1d19D4a2e9Eb0cE3606eB48",
		TokenTo:            "0x2::sui::SUI",
		AmountFrom:         "1000000000000000000",
		MinAmountTo:        "2000000000",
		Expiry:             time.Unix(1767225600, 0),
		Nonce:              7,
		SignatureScheme:    model.SignatureSchemeEIP712,
	}
}

func signOrder(t *testing.T, order *model.Order, key *ecdsa.PrivateKey) []byte {
	t.Helper()

	digest, err := OrderDigest(order)
	if err != nil {
		t.Fatalf("Failed to build order digest: %v", err)
	}

	sig, err := crypto.Sign(digest, key)
	if err != nil {
		t.Fatalf("Failed to sign digest: %v", err)
	}
	return sig
}

func TestVerifyEIP712(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("Failed to parse test key: %v", err)
	}
	requester := crypto.PubkeyToAddress(key.PublicKey).Hex()
	v := NewSignatureValidator(zap.NewNop())

	t.Run("ValidSignature", func(t *testing.T) {
		order := testOrder(requester)
		order.Signature = hexutil.Encode(signOrder(t, &order, key))

		if !v.Verify(&order) {
			t.Error("Valid signature should verify")
		}
	})

	t.Run("ValidSignatureWithLegacyRecoveryID", func(t *testing.T) {
		order := testOrder(requester)
		sig := signOrder(t, &order, key)
		// Wallets commonly emit v as 27/28 instead of 0/1.
		sig[crypto.RecoveryIDOffset] += 27
		order.Signature = hexutil.Encode(sig)

		if !v.Verify(&order) {
			t.Error("Signature with 27/28 recovery id should verify")
		}
	})

	t.Run("TamperedFieldFailsVerification", func(t *testing.T) {
		order := testOrder(requester)
		order.Signature = hexutil.Encode(signOrder(t, &order, key))
		order.AmountFrom = "9000000000000000000"

		if v.Verify(&order) {
			t.Error("Signature over different fields should not verify")
		}
	})

	t.Run("WrongSignerFailsVerification", func(t *testing.T) {
		otherKey, err := crypto.GenerateKey()
		if err != nil {
			t.Fatalf("Failed to generate key: %v", err)
		}
		order := testOrder(requester)
		order.Signature = hexutil.Encode(signOrder(t, &order, otherKey))

		if v.Verify(&order) {
			t.Error("Signature from a different key should not verify")
		}
	})

	t.Run("MalformedSignatureFailsVerification", func(t *testing.T) {
		order := testOrder(requester)

		for name, sig := range map[string]string{
			"not_hex":     "definitely not hex",
			"short":       "0x1234",
			"empty":       "",
			"wrong_bytes": hexutil.Encode(bytes.Repeat([]byte{0xab}, 64)),
		} {
			order.Signature = sig
			if v.Verify(&order) {
				t.Errorf("%s signature should not verify", name)
			}
		}
	})

	t.Run("CaseInsensitiveRequesterMatch", func(t *testing.T) {
		// Address typed-data fields are case-normalized before hashing, so a
		// lowercased requester signs to the same digest.
		order := testOrder(strings.ToLower(requester))
		order.Signature = hexutil.Encode(signOrder(t, &order, key))

		if !v.Verify(&order) {
			t.Error("Requester comparison should be case insensitive")
		}
	})
}

func TestOrderDigestDeterministic(t *testing.T) {
	key, err := crypto.HexToECDSA(testKeyHex)
	if err != nil {
		t.Fatalf("Failed to parse test key: %v", err)
	}
	order := testOrder(crypto.PubkeyToAddress(key.PublicKey).Hex())

	first, err := OrderDigest(&order)
	if err != nil {
		t.Fatalf("Failed to build digest: %v", err)
	}
	second, err := OrderDigest(&order)
	if err != nil {
		t.Fatalf("Failed to build digest: %v", err)
	}

	if !bytes.Equal(first, second) {
		t.Error("Digest for the same order should be identical across calls")
	}

	order.Nonce++
	third, err := OrderDigest(&order)
	if err != nil {
		t.Fatalf("Failed to build digest: %v", err)
	}
	if bytes.Equal(first, third) {
		t.Error("Digest should change when the nonce changes")
	}
}

func TestVerifySui(t *testing.T) {
	v := NewSignatureValidator(zap.NewNop())

	order := model.Order{
		OrderID:         "order-sui-test",
		Requester:       "0x1a2b3c4d5e6f7a8b9c0d1e2f3a4b5c6d7e8f9a0b1c2d3e4f5a6b7c8d9e0f1a2b",
		SignatureScheme: model.SignatureSchemeSui,
		Signature:       "AAAQfX8gI2VyeSBzdHJ1Y3R1cmFsIGNoZWNr",
	}

	t.Run("WellFormed", func(t *testing.T) {
		if !v.Verify(&order) {
			t.Error("Well-formed sui order should pass the structural check")
		}
	})

	t.Run("EmptySignature", func(t *testing.T) {
		bad := order
		bad.Signature = ""
		if v.Verify(&bad) {
			t.Error("Empty signature should fail")
		}
	})

	t.Run("MalformedRequester", func(t *testing.T) {
		bad := order
		bad.Requester = "0x1234"
		if v.Verify(&bad) {
			t.Error("Non sui-shaped requester should fail")
		}
	})

	t.Run("UnknownScheme", func(t *testing.T) {
		bad := order
		bad.SignatureScheme = "ed25519"
		if v.Verify(&bad) {
			t.Error("Unknown scheme should fail")
		}
	})
}
