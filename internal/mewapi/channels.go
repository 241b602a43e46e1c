package mewapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

func (c *Client) FetchChannel(ctx context.Context, channelID string) (Channel, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return Channel{}, fmt.Errorf("channelID is required")
	}

	var ch Channel
	if err := c.do(ctx, "GET", "/channels/"+url.PathEscape(channelID), nil, &ch); err != nil {
		return Channel{}, err
	}
	if strings.TrimSpace(ch.ID) == "" {
		return Channel{}, fmt.Errorf("invalid channel response: missing _id")
	}
	return ch, nil
}

// FetchMyServers lists the servers the bot is a member of.
func (c *Client) FetchMyServers(ctx context.Context) ([]Server, error) {
	var servers []Server
	if err := c.do(ctx, "GET", "/users/@me/servers", nil, &servers); err != nil {
		return nil, err
	}
	return servers, nil
}

func (c *Client) FetchUser(ctx context.Context, userID string) (User, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return User{}, fmt.Errorf("userID is required")
	}

	var u User
	if err := c.do(ctx, "GET", "/users/"+url.PathEscape(userID), nil, &u); err != nil {
		return User{}, err
	}
	return u, nil
}
