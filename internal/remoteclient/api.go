package remoteclient

import (
	"context"
	"fmt"
)

// ListChannels returns the node's current channel set.
func (c *Client) ListChannels(ctx context.Context) ([]Channel, error) {
	var channels []Channel
	if err := c.do(ctx, "GET", "/v1/channels", nil, &channels); err != nil {
		return nil, err
	}
	return channels, nil
}

// forwardsPage is the paginated response shape for list_forwards.
type forwardsPage struct {
	Events     []Forward `json:"events"`
	NextCursor string    `json:"next_cursor"`
}

// ListForwards returns one page of forwarding events starting at cursor,
// along with the cursor for the next page (empty when exhausted).
func (c *Client) ListForwards(ctx context.Context, cursor string, limit int) ([]Forward, string, error) {
	path := fmt.Sprintf("/v1/forwards?limit=%d", limit)
	if cursor != "" {
		path += "&cursor=" + cursor
	}

	var page forwardsPage
	if err := c.do(ctx, "GET", path, nil, &page); err != nil {
		return nil, "", err
	}
	return page.Events, page.NextCursor, nil
}

// UpdateChannelConfig pushes a new fee policy for one channel.
func (c *Client) UpdateChannelConfig(ctx context.Context, channelID string, baseFeeMsat, feePPM int64) error {
	body := map[string]any{
		"channel_id":    channelID,
		"base_fee_msat": baseFeeMsat,
		"fee_ppm":       feePPM,
	}
	return c.do(ctx, "POST", "/v1/channels/update-config", body, nil)
}

// OpenChannel requests a new channel to peerID funded with amountSats,
// returning the resulting channel_id.
func (c *Client) OpenChannel(ctx context.Context, peerID string, amountSats int64, announce bool) (string, error) {
	body := map[string]any{
		"peer_id":     peerID,
		"amount_sats": amountSats,
		"announce":    announce,
	}
	var resp struct {
		ChannelID string `json:"channel_id"`
	}
	if err := c.do(ctx, "POST", "/v1/channels/open", body, &resp); err != nil {
		return "", err
	}
	return resp.ChannelID, nil
}

// CloseChannel requests closure of channelID.
func (c *Client) CloseChannel(ctx context.Context, channelID string, force bool) error {
	body := map[string]any{
		"channel_id": channelID,
		"force":      force,
	}
	return c.do(ctx, "POST", "/v1/channels/close", body, nil)
}

// CreateBolt11Invoice creates a receivable invoice for amountMsat.
func (c *Client) CreateBolt11Invoice(ctx context.Context, amountMsat int64, description string) (string, error) {
	body := map[string]any{
		"amount_msat": amountMsat,
		"description": description,
	}
	var resp struct {
		Invoice string `json:"invoice"`
	}
	if err := c.do(ctx, "POST", "/v1/invoices/create", body, &resp); err != nil {
		return "", err
	}
	return resp.Invoice, nil
}

// PayBolt11 pays invoice, capping the routing fee at maxFeeMsat and
// optionally hinting which outgoing channel to route through (used for
// the rebalancer's self-pay).
func (c *Client) PayBolt11(ctx context.Context, invoice string, maxFeeMsat int64, hintOutgoingChannel string) (*PaymentResult, error) {
	body := map[string]any{
		"invoice":               invoice,
		"max_fee_msat":          maxFeeMsat,
		"hint_outgoing_channel": hintOutgoingChannel,
	}
	var result PaymentResult
	if err := c.do(ctx, "POST", "/v1/payments/pay", body, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// OnChainBalanceOf returns the node's on-chain wallet balance.
func (c *Client) OnChainBalanceOf(ctx context.Context) (*OnChainBalance, error) {
	var bal OnChainBalance
	if err := c.do(ctx, "GET", "/v1/onchain/balance", nil, &bal); err != nil {
		return nil, err
	}
	return &bal, nil
}
