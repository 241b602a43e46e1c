package bot

import (
	"context"
	"fmt"

	"mew/greeter/internal/mewapi"
)

// apiPlatform adapts the HTTP API client to the surface the onboarding
// engine works against.
type apiPlatform struct {
	api *mewapi.Client
	dms *mewapi.DMCache
}

func newAPIPlatform(api *mewapi.Client, dms *mewapi.DMCache) *apiPlatform {
	return &apiPlatform{api: api, dms: dms}
}

func (p *apiPlatform) SendMessage(ctx context.Context, channelID string, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error) {
	return p.api.SendMessage(ctx, channelID, msg)
}

// SendFile uploads the bytes first and sends the message referencing the
// attachment, matching the two-step upload flow of the backend.
func (p *apiPlatform) SendFile(ctx context.Context, channelID, filename, contentType string, data []byte, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error) {
	ref, err := p.api.UploadBytes(ctx, channelID, filename, contentType, data)
	if err != nil {
		return mewapi.ChannelMessage{}, fmt.Errorf("upload %s: %w", filename, err)
	}
	msg.Attachments = append(msg.Attachments, ref)
	return p.api.SendMessage(ctx, channelID, msg)
}

func (p *apiPlatform) EditMessage(ctx context.Context, channelID, messageID string, msg mewapi.MessagePayload) error {
	return p.api.EditMessage(ctx, channelID, messageID, msg)
}

func (p *apiPlatform) SendDirect(ctx context.Context, userID string, msg mewapi.MessagePayload) error {
	return p.api.SendDirect(ctx, p.dms, userID, msg)
}

func (p *apiPlatform) SendDirectFile(ctx context.Context, userID, filename, contentType string, data []byte, msg mewapi.MessagePayload) error {
	channelID, err := p.dmChannel(ctx, userID)
	if err != nil {
		return err
	}
	_, err = p.SendFile(ctx, channelID, filename, contentType, data, msg)
	return err
}

func (p *apiPlatform) dmChannel(ctx context.Context, userID string) (string, error) {
	if id, ok := p.dms.Lookup(userID); ok {
		return id, nil
	}
	id, err := p.api.CreateDMChannel(ctx, userID)
	if err != nil {
		return "", fmt.Errorf("open DM channel: %w", err)
	}
	p.dms.Remember(userID, id)
	return id, nil
}

func (p *apiPlatform) FetchChannel(ctx context.Context, channelID string) (mewapi.Channel, error) {
	return p.api.FetchChannel(ctx, channelID)
}

func (p *apiPlatform) FetchUser(ctx context.Context, userID string) (mewapi.User, error) {
	return p.api.FetchUser(ctx, userID)
}

func (p *apiPlatform) FetchMyServers(ctx context.Context) ([]mewapi.Server, error) {
	return p.api.FetchMyServers(ctx)
}

func (p *apiPlatform) ResolveRoleByName(ctx context.Context, serverID, name string) (mewapi.Role, bool, error) {
	return p.api.ResolveRoleByName(ctx, serverID, name)
}

func (p *apiPlatform) GrantRole(ctx context.Context, serverID, userID, roleID string) error {
	return p.api.GrantRole(ctx, serverID, userID, roleID)
}
