package remoteclient

// Channel is the live snapshot of one channel as reported by list_channels.
type Channel struct {
	ChannelID     string `json:"channel_id"`
	PeerID        string `json:"peer_id"`
	CapacitySats  int64  `json:"capacity_sats"`
	LocalSats     int64  `json:"local_sats"`
	RemoteSats    int64  `json:"remote_sats"`
	BaseFeeMsat   int64  `json:"base_fee_msat"`
	FeePPM        int64  `json:"fee_ppm"`
	Active        bool   `json:"active"`
	FundedAtUnix  int64  `json:"funded_at,omitempty"`
}

// Forward is one forwarding HTLC as reported by list_forwards.
type Forward struct {
	EventID             string `json:"event_id"`
	TimestampUnix       int64  `json:"timestamp"`
	InChannel           string `json:"in_channel"`
	OutChannel          string `json:"out_channel"`
	FeeEarnedMsat       int64  `json:"fee_earned_msat"`
	AmountForwardedMsat int64  `json:"amount_forwarded_msat"`
}

// OnChainBalance is the response of on_chain_balance.
type OnChainBalance struct {
	ConfirmedSats int64 `json:"confirmed_sats"`
	ReservedSats  int64 `json:"reserved_sats"`
}

// PaymentResult is the response of pay_bolt11.
type PaymentResult struct {
	Success    bool   `json:"success"`
	FeeMsat    int64  `json:"fee_msat"`
	Preimage   string `json:"preimage,omitempty"`
	FailReason string `json:"fail_reason,omitempty"`
}
