package mewapi

import (
	"context"
	"fmt"
	"net/url"
	"strings"
)

func (c *Client) SendMessage(ctx context.Context, channelID string, msg MessagePayload) (ChannelMessage, error) {
	channelID = strings.TrimSpace(channelID)
	if channelID == "" {
		return ChannelMessage{}, fmt.Errorf("channelID is required")
	}

	var out ChannelMessage
	if err := c.do(ctx, "POST", "/channels/"+url.PathEscape(channelID)+"/messages", sendBody(msg), &out); err != nil {
		return ChannelMessage{}, err
	}
	return out, nil
}

func (c *Client) EditMessage(ctx context.Context, channelID, messageID string, msg MessagePayload) error {
	channelID = strings.TrimSpace(channelID)
	messageID = strings.TrimSpace(messageID)
	if channelID == "" || messageID == "" {
		return fmt.Errorf("channelID and messageID are required")
	}

	path := "/channels/" + url.PathEscape(channelID) + "/messages/" + url.PathEscape(messageID)
	return c.do(ctx, "PATCH", path, sendBody(msg), nil)
}

// sendBody flattens MessagePayload into the wire shape. Components are
// always present so that editing with zero buttons strips existing ones.
func sendBody(msg MessagePayload) map[string]any {
	body := map[string]any{
		"components": buttonsOrEmpty(msg.Components),
	}
	if strings.TrimSpace(msg.Content) != "" {
		body["content"] = msg.Content
	}
	if msg.Card != nil {
		body["payload"] = map[string]any{"card": msg.Card}
	}
	if len(msg.Attachments) > 0 {
		body["attachments"] = msg.Attachments
	}
	return body
}

func buttonsOrEmpty(buttons []Button) []Button {
	if buttons == nil {
		return []Button{}
	}
	return buttons
}
