package model

import (
	"testing"
	"time"
)

func TestCanTransition(t *testing.T) {
	cases := []struct {
		from    string
		to      string
		allowed bool
	}{
		{OrderStatusOpen, OrderStatusMatched, true},
		{OrderStatusOpen, OrderStatusExpired, true},
		{OrderStatusOpen, OrderStatusCancelled, true},
		{OrderStatusMatched, OrderStatusExecuted, true},
		{OrderStatusOpen, OrderStatusExecuted, false},
		{OrderStatusMatched, OrderStatusOpen, false},
		{OrderStatusMatched, OrderStatusExpired, false},
		{OrderStatusExecuted, OrderStatusOpen, false},
		{OrderStatusExpired, OrderStatusOpen, false},
		{OrderStatusCancelled, OrderStatusMatched, false},
		{"bogus", OrderStatusOpen, false},
	}

	for _, c := range cases {
		t.Run(c.from+"_to_"+c.to, func(t *testing.T) {
			if got := CanTransition(c.from, c.to); got != c.allowed {
				t.Errorf("CanTransition(%q, %q) = %v, want %v", c.from, c.to, got, c.allowed)
			}
		})
	}
}

func TestIsSupportedChain(t *testing.T) {
	if !IsSupportedChain(ChainEthereum) {
		t.Error("ethereum should be supported")
	}
	if !IsSupportedChain(ChainSui) {
		t.Error("sui should be supported")
	}
	if IsSupportedChain("polygon") {
		t.Error("polygon should not be supported")
	}
	if IsSupportedChain("") {
		t.Error("empty chain should not be supported")
	}
}

func TestIsExpired(t *testing.T) {
	now := time.Now()
	order := Order{Expiry: now.Add(time.Hour)}

	if order.IsExpired(now) {
		t.Error("order with future expiry should not be expired")
	}
	if !order.IsExpired(now.Add(2 * time.Hour)) {
		t.Error("order past its expiry should be expired")
	}
	if !order.IsExpired(order.Expiry) {
		t.Error("order at its exact expiry instant should be expired")
	}
}
