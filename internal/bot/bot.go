// Package bot wires the gateway, the HTTP API client and the onboarding
// engine into one runnable service.
package bot

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"time"

	"mew/greeter/internal/config"
	"mew/greeter/internal/gateway"
	"mew/greeter/internal/httpx"
	"mew/greeter/internal/mewapi"
	"mew/greeter/internal/onboard"
	"mew/greeter/internal/render"
	"mew/greeter/internal/runtime"
	"mew/greeter/internal/session"
	"mew/greeter/internal/store"
)

const logPrefix = "[greeter]"

const purgeInterval = time.Minute

type Bot struct {
	cfg config.Config

	api    *mewapi.Client
	dms    *mewapi.DMCache
	engine *onboard.Engine
	counts *store.Counts
	charts *render.ChartClient
}

func New(cfg config.Config) (*Bot, error) {
	apiHTTP, err := httpx.NewClient(httpx.ClientOptions{Timeout: 30 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("api http client: %w", err)
	}

	api, err := mewapi.NewClient(cfg.APIBase, apiHTTP)
	if err != nil {
		return nil, err
	}

	// Chart rendering goes to an external service, so it honors the
	// proxy setting separately from the platform API.
	chartHTTP, err := httpx.NewClient(httpx.ClientOptions{Timeout: 30 * time.Second, Proxy: cfg.Proxy})
	if err != nil {
		return nil, fmt.Errorf("chart http client: %w", err)
	}

	counts, err := store.Open(cfg.StateFile)
	if err != nil {
		return nil, fmt.Errorf("open counter store: %w", err)
	}

	return &Bot{
		cfg:    cfg,
		api:    api,
		dms:    mewapi.NewDMCache(),
		counts: counts,
		charts: render.NewChartClient(render.DefaultChartBaseURL, chartHTTP),
	}, nil
}

// Run logs in, connects the gateway and serves events until ctx is done.
func (b *Bot) Run(ctx context.Context) error {
	me, err := b.api.Login(ctx, b.cfg.Token)
	if err != nil {
		return fmt.Errorf("bot auth failed: %w", err)
	}
	log.Printf("%s logged in: user=%s name=%q", logPrefix, me.ID, me.Username)

	if err := b.dms.Refresh(ctx, b.api); err != nil {
		log.Printf("%s refresh DM channels failed (will open on demand): %v", logPrefix, err)
	}

	b.engine = onboard.NewEngine(onboard.Config{
		WelcomeChannelID: b.cfg.WelcomeChannelID,
		OwnerID:          b.cfg.OwnerID,
		RoleName:         b.cfg.RoleName,
		BackgroundPath:   b.cfg.BackgroundPath,
		LogPrefix:        logPrefix,
	}, newAPIPlatform(b.api, b.dms), b.charts, session.NewMemoryStore(), b.counts, me)

	if strings.TrimSpace(b.cfg.WelcomeChannelID) == "" {
		log.Printf("%s GREETER_WELCOME_CHANNEL not set: joins are observed but no flow starts", logPrefix)
	}

	wsURL, err := gateway.WebsocketURL(b.cfg.APIBase)
	if err != nil {
		return err
	}

	group := runtime.NewGroup(ctx)

	group.Go(func(ctx context.Context) {
		err := gateway.RunWithReconnect(ctx, wsURL, b.api.Token(), b.handleEvent, gateway.Options{}, gateway.ReconnectOptions{
			OnDisconnect: func(err error, next time.Duration) {
				log.Printf("%s gateway disconnected: %v (reconnecting in %s)", logPrefix, err, next)
			},
		})
		if err != nil && ctx.Err() == nil {
			log.Printf("%s gateway loop exited: %v", logPrefix, err)
		}
	})

	group.Go(func(ctx context.Context) {
		runtime.RunInterval(ctx, purgeInterval, false, func(context.Context) {
			b.engine.PurgeExpired()
		})
	})

	if b.cfg.DigestInterval > 0 {
		group.Go(func(ctx context.Context) {
			runtime.RunInterval(ctx, b.cfg.DigestInterval, false, b.sendDigest)
		})
	}

	group.Wait()
	return ctx.Err()
}

func (b *Bot) handleEvent(ctx context.Context, name string, payload json.RawMessage, _ gateway.EmitFunc) error {
	// Event handling errors are logged, not returned: a malformed event
	// must not tear the connection down.
	switch name {
	case gateway.EventMemberAdd:
		var ev gateway.MemberAddEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("%s bad %s payload: %v", logPrefix, name, err)
			return nil
		}
		if ev.User.IsBot || strings.TrimSpace(ev.User.ID) == "" {
			return nil
		}
		if strings.TrimSpace(b.cfg.WelcomeChannelID) == "" {
			log.Printf("%s member joined but no welcome channel configured: member=%s", logPrefix, ev.User.ID)
			return nil
		}
		if err := b.engine.Start(ctx, onboard.Member{ID: ev.User.ID, Username: ev.User.Username}); err != nil {
			log.Printf("%s welcome flow start failed: member=%s err=%v", logPrefix, ev.User.ID, err)
		}

	case gateway.EventInteractionCreate:
		var ev gateway.InteractionEvent
		if err := json.Unmarshal(payload, &ev); err != nil {
			log.Printf("%s bad %s payload: %v", logPrefix, name, err)
			return nil
		}
		if err := b.engine.HandleInteraction(ctx, onboard.Interaction{
			ControlID: ev.CustomID,
			ActorID:   ev.User.ID,
			ActorName: ev.User.Username,
			ChannelID: ev.ChannelID,
			MessageID: ev.MessageID,
		}); err != nil {
			log.Printf("%s interaction handling failed: control=%q err=%v", logPrefix, ev.CustomID, err)
		}

	case gateway.EventMessageCreate:
		var msg mewapi.ChannelMessage
		if err := json.Unmarshal(payload, &msg); err != nil {
			log.Printf("%s bad %s payload: %v", logPrefix, name, err)
			return nil
		}
		authorID := msg.AuthorID()
		if authorID == "" || authorID == b.api.Me().ID {
			return nil
		}
		if err := b.engine.HandleMessage(ctx, onboard.InboundMessage{
			ChannelID:   msg.ChannelID,
			AuthorID:    authorID,
			AuthorName:  mewapi.AuthorUsername(msg.AuthorRaw),
			Content:     msg.Content,
			AuthorIsBot: msg.AuthorIsBot(),
		}); err != nil {
			log.Printf("%s message handling failed: channel=%s err=%v", logPrefix, msg.ChannelID, err)
		}
	}
	return nil
}

// sendDigest pushes the current engagement chart to the owner on the
// configured cadence, independent of member activity.
func (b *Bot) sendDigest(ctx context.Context) {
	if strings.TrimSpace(b.cfg.OwnerID) == "" {
		return
	}

	data, err := b.charts.Fetch(ctx, b.counts.Snapshot())
	if err != nil {
		log.Printf("%s digest chart fetch failed: %v", logPrefix, err)
		return
	}

	platform := newAPIPlatform(b.api, b.dms)
	err = platform.SendDirectFile(ctx, b.cfg.OwnerID, "engagement.png", "image/png", data, mewapi.MessagePayload{
		Content: "Engagement digest",
		Card:    &mewapi.Card{Title: "Engagement Chart"},
	})
	if err != nil {
		log.Printf("%s digest delivery failed: %v", logPrefix, err)
	}
}
