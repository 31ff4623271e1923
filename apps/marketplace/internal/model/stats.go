package model

// MarketStats is an aggregate view over orders and bids.
type MarketStats struct {
	TotalOrders    int64              `json:"total_orders"`
	OpenOrders     int64              `json:"open_orders"`
	MatchedOrders  int64              `json:"matched_orders"`
	ExecutedOrders int64              `json:"executed_orders"`
	TotalBids      int64              `json:"total_bids"`
	TopResolvers   []ResolverStanding `json:"top_resolvers"`
}

// ResolverStanding ranks a resolver by auctions won.
type ResolverStanding struct {
	Resolver    string `json:"resolver"`
	WonAuctions int64  `json:"won_auctions"`
}
