package mewapi

import (
	"context"
	"fmt"
	"strings"
	"sync"
)

// FetchDMChannels returns the bot's DM channels keyed by peer user id.
func (c *Client) FetchDMChannels(ctx context.Context) (map[string]string, error) {
	var channels []struct {
		ID   string `json:"_id"`
		Type string `json:"type"`
		Peer string `json:"peerId"`
	}
	if err := c.do(ctx, "GET", "/users/@me/channels", nil, &channels); err != nil {
		return nil, err
	}

	next := make(map[string]string, len(channels))
	for _, ch := range channels {
		if strings.TrimSpace(ch.ID) == "" || strings.TrimSpace(ch.Peer) == "" {
			continue
		}
		if ch.Type != "DM" {
			continue
		}
		next[ch.Peer] = ch.ID
	}
	return next, nil
}

// CreateDMChannel opens (or returns the existing) DM channel with a user.
func (c *Client) CreateDMChannel(ctx context.Context, userID string) (string, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return "", fmt.Errorf("userID is required")
	}

	var ch struct {
		ID string `json:"_id"`
	}
	if err := c.do(ctx, "POST", "/users/@me/channels", map[string]string{"recipientId": userID}, &ch); err != nil {
		return "", err
	}
	if strings.TrimSpace(ch.ID) == "" {
		return "", fmt.Errorf("invalid DM channel response: missing _id")
	}
	return ch.ID, nil
}

// DMCache caches peer-user-id → DM-channel-id so each direct message
// doesn't need a round trip to list channels.
type DMCache struct {
	mu       sync.RWMutex
	channels map[string]string
}

func NewDMCache() *DMCache {
	return &DMCache{channels: map[string]string{}}
}

func (d *DMCache) Lookup(userID string) (string, bool) {
	if d == nil {
		return "", false
	}
	d.mu.RLock()
	defer d.mu.RUnlock()
	id, ok := d.channels[strings.TrimSpace(userID)]
	return id, ok
}

func (d *DMCache) Remember(userID, channelID string) {
	if d == nil || strings.TrimSpace(userID) == "" || strings.TrimSpace(channelID) == "" {
		return
	}
	d.mu.Lock()
	d.channels[strings.TrimSpace(userID)] = strings.TrimSpace(channelID)
	d.mu.Unlock()
}

func (d *DMCache) Refresh(ctx context.Context, c *Client) error {
	if d == nil {
		return nil
	}
	next, err := c.FetchDMChannels(ctx)
	if err != nil {
		return err
	}
	d.mu.Lock()
	d.channels = next
	d.mu.Unlock()
	return nil
}

// SendDirect delivers a message to a user's DM channel, opening one when
// the cache has no entry.
func (c *Client) SendDirect(ctx context.Context, cache *DMCache, userID string, msg MessagePayload) error {
	channelID, ok := cache.Lookup(userID)
	if !ok {
		created, err := c.CreateDMChannel(ctx, userID)
		if err != nil {
			return fmt.Errorf("open DM channel: %w", err)
		}
		cache.Remember(userID, created)
		channelID = created
	}

	if _, err := c.SendMessage(ctx, channelID, msg); err != nil {
		return err
	}
	return nil
}
