// Package onboard drives new members through the onboarding flow: a
// welcome card with choice buttons, a free-text "Other" branch, a second
// confirmation page and the finalize side effects.
package onboard

import (
	"context"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"mew/greeter/internal/mewapi"
	"mew/greeter/internal/render"
	"mew/greeter/internal/session"
	"mew/greeter/internal/store"
)

// OtherLabel is the categorical placeholder for the free-text branch.
const OtherLabel = "Other"

// Member is the boundary representation of whoever the flow runs for,
// whether they arrived via a join event or a manual !testwelcome.
type Member struct {
	ID       string
	Username string
}

// Interaction is a button activation as seen by the engine.
type Interaction struct {
	ControlID string
	ActorID   string
	ActorName string
	ChannelID string
	MessageID string
}

// InboundMessage is a plain chat message as seen by the engine.
type InboundMessage struct {
	ChannelID   string
	AuthorID    string
	AuthorName  string
	Content     string
	AuthorIsBot bool
}

// Platform is the outbound chat-platform surface the engine needs. The
// production implementation wraps the HTTP API client; tests substitute
// a fake.
type Platform interface {
	SendMessage(ctx context.Context, channelID string, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error)
	SendFile(ctx context.Context, channelID, filename, contentType string, data []byte, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error)
	EditMessage(ctx context.Context, channelID, messageID string, msg mewapi.MessagePayload) error
	SendDirect(ctx context.Context, userID string, msg mewapi.MessagePayload) error
	SendDirectFile(ctx context.Context, userID, filename, contentType string, data []byte, msg mewapi.MessagePayload) error
	FetchChannel(ctx context.Context, channelID string) (mewapi.Channel, error)
	FetchUser(ctx context.Context, userID string) (mewapi.User, error)
	FetchMyServers(ctx context.Context) ([]mewapi.Server, error)
	ResolveRoleByName(ctx context.Context, serverID, name string) (mewapi.Role, bool, error)
	GrantRole(ctx context.Context, serverID, userID, roleID string) error
}

// ChartFetcher renders the counter mapping into PNG bytes.
type ChartFetcher interface {
	Fetch(ctx context.Context, counts map[string]int) ([]byte, error)
}

type Config struct {
	WelcomeChannelID string
	OwnerID          string
	RoleName         string
	BackgroundPath   string

	// Labels are the categorical choices; the Other branch is always
	// offered in addition.
	Labels []string

	LogPrefix string
}

type Engine struct {
	cfg      Config
	platform Platform
	charts   ChartFetcher
	sessions session.Store
	counts   *store.Counts
	bot      mewapi.User

	renderCard func(render.CardRequest) ([]byte, error)
	now        func() time.Time

	mu         sync.Mutex
	confirming map[string]struct{}
}

func NewEngine(cfg Config, p Platform, charts ChartFetcher, sessions session.Store, counts *store.Counts, bot mewapi.User) *Engine {
	if cfg.LogPrefix == "" {
		cfg.LogPrefix = "[greeter]"
	}
	if len(cfg.Labels) == 0 {
		cfg.Labels = append([]string(nil), store.StarterLabels...)
	}

	opts := render.CardOptions{BackgroundPath: cfg.BackgroundPath}
	return &Engine{
		cfg:      cfg,
		platform: p,
		charts:   charts,
		sessions: sessions,
		counts:   counts,
		bot:      bot,
		renderCard: func(req render.CardRequest) ([]byte, error) {
			return render.RenderCard(req, opts)
		},
		now:        time.Now,
		confirming: map[string]struct{}{},
	}
}

// Start opens the flow for a member: resolves the welcome channel, posts
// page 1 and creates the session. A channel that does not resolve means
// no session is created.
func (e *Engine) Start(ctx context.Context, m Member) error {
	if strings.TrimSpace(m.ID) == "" {
		return fmt.Errorf("member id is required")
	}
	if strings.TrimSpace(e.cfg.WelcomeChannelID) == "" {
		return fmt.Errorf("welcome channel not configured")
	}

	ch, err := e.platform.FetchChannel(ctx, e.cfg.WelcomeChannelID)
	if err != nil {
		return fmt.Errorf("resolve welcome channel %s: %w", e.cfg.WelcomeChannelID, err)
	}

	payload := mewapi.MessagePayload{
		Content:    mewapi.Mention(m.ID),
		Components: e.pageOneButtons(m.ID, "", false),
	}

	var sent mewapi.ChannelMessage
	img, err := e.renderCard(render.CardRequest{Page: 1, MemberTag: "@" + m.Username})
	if err != nil {
		// No card is better than no greeting.
		log.Printf("%s welcome card render failed: member=%s err=%v", e.cfg.LogPrefix, m.ID, err)
		sent, err = e.platform.SendMessage(ctx, ch.ID, payload)
	} else {
		sent, err = e.platform.SendFile(ctx, ch.ID, "welcome.png", "image/png", img, payload)
	}
	if err != nil {
		return fmt.Errorf("send welcome message: %w", err)
	}

	e.sessions.Put(&session.Session{
		OwnerID:   m.ID,
		OwnerName: m.Username,
		ServerID:  ch.ServerID,
		ChannelID: ch.ID,
		MessageID: sent.ID,
		Page:      1,
	})
	log.Printf("%s flow started: member=%s channel=%s", e.cfg.LogPrefix, m.ID, ch.ID)
	return nil
}

// HandleInteraction routes a button click. Only the session owner may
// mutate the session; everyone else gets a private rejection and the
// state stays untouched.
func (e *Engine) HandleInteraction(ctx context.Context, in Interaction) error {
	ctrl, ok := ParseControlID(in.ControlID)
	if !ok {
		return nil
	}

	if in.ActorID != ctrl.MemberID {
		e.notify(ctx, in.ActorID, "This isn't for you.")
		return nil
	}

	sess, ok := e.sessions.Get(ctrl.MemberID)
	if !ok {
		e.notify(ctx, in.ActorID, "No onboarding in progress.")
		return nil
	}

	if sess.Finalized() {
		// Duplicate terminal clicks inside the grace window are no-ops.
		return nil
	}

	switch ctrl.Kind {
	case KindChoice:
		return e.recordChoice(ctx, sess, ctrl.Label)
	case KindNext:
		return e.advance(ctx, sess)
	case KindConfirm:
		return e.confirm(ctx, sess)
	}
	return nil
}

// HandleMessage serves the text commands and the free-text capture for
// the Other branch.
func (e *Engine) HandleMessage(ctx context.Context, msg InboundMessage) error {
	if msg.AuthorIsBot {
		return nil
	}

	switch strings.ToLower(strings.TrimSpace(msg.Content)) {
	case "!ping":
		_, err := e.platform.SendMessage(ctx, msg.ChannelID, mewapi.MessagePayload{Content: "Pong!"})
		return err
	case "!status":
		return e.replyStatus(ctx, msg.ChannelID)
	case "!testwelcome":
		return e.Start(ctx, Member{ID: msg.AuthorID, Username: msg.AuthorName})
	}

	return e.captureFreeText(ctx, msg)
}

// PurgeExpired sweeps finalized sessions past their grace period.
func (e *Engine) PurgeExpired() {
	if dropped := e.sessions.Purge(e.now()); dropped > 0 {
		log.Printf("%s purged %d expired session(s)", e.cfg.LogPrefix, dropped)
	}
}

func (e *Engine) recordChoice(ctx context.Context, sess *session.Session, label string) error {
	sess.Label = label
	sess.FreeText = ""
	sess.AwaitingText = label == OtherLabel
	e.sessions.Put(sess)

	if sess.AwaitingText {
		e.notify(ctx, sess.OwnerID, "Tell us where you found us: just type it as a message in the welcome channel.")
	}
	return e.refreshPageOne(ctx, sess)
}

func (e *Engine) advance(ctx context.Context, sess *session.Session) error {
	if !e.answered(sess) {
		e.notify(ctx, sess.OwnerID, "Pick an answer first.")
		return nil
	}

	sess.Page = 2
	e.sessions.Put(sess)

	return e.platform.EditMessage(ctx, sess.ChannelID, sess.MessageID, mewapi.MessagePayload{
		Content: mewapi.Mention(sess.OwnerID),
		Card: &mewapi.Card{
			Title:       "One more step",
			Description: "You chose: " + sess.FinalLabel() + ". Confirm below to finish onboarding.",
		},
		Components: []mewapi.Button{
			{CustomID: ConfirmControlID(sess.OwnerID), Label: "Confirm", Style: "primary"},
		},
	})
}

func (e *Engine) confirm(ctx context.Context, sess *session.Session) error {
	if sess.Page != 2 {
		e.notify(ctx, sess.OwnerID, "Use Next to reach the last page first.")
		return nil
	}

	if !e.beginConfirm(sess.OwnerID) {
		e.notify(ctx, sess.OwnerID, "Already processing.")
		return nil
	}
	defer e.endConfirm(sess.OwnerID)

	e.finalize(ctx, sess)
	return nil
}

// finalize runs the side-effect bundle. Every step is best-effort: a
// failure is logged and the remaining steps still run.
func (e *Engine) finalize(ctx context.Context, sess *session.Session) {
	now := e.now()
	sess.FinalizedAt = now
	sess.ExpiresAt = now.Add(session.GracePeriod)
	sess.AwaitingText = false
	e.sessions.Put(sess)

	label := sess.FinalLabel()

	if _, err := e.counts.Increment(label); err != nil {
		log.Printf("%s counter increment failed: label=%q err=%v", e.cfg.LogPrefix, label, err)
	}

	if err := e.platform.SendDirect(ctx, sess.OwnerID, mewapi.MessagePayload{
		Content: "Thanks for telling us how you found us. Enjoy your stay!",
	}); err != nil {
		log.Printf("%s confirmation DM failed: member=%s err=%v", e.cfg.LogPrefix, sess.OwnerID, err)
	}

	if err := e.platform.EditMessage(ctx, sess.ChannelID, sess.MessageID, mewapi.MessagePayload{
		Content: mewapi.Mention(sess.OwnerID),
		Card: &mewapi.Card{
			Title:       "Thanks!",
			Description: "You chose: " + label,
		},
	}); err != nil {
		log.Printf("%s terminal edit failed: message=%s err=%v", e.cfg.LogPrefix, sess.MessageID, err)
	}

	e.deliverChart(ctx, label, "@"+sess.OwnerName)
	e.grantRole(ctx, sess)

	log.Printf("%s flow finalized: member=%s label=%q", e.cfg.LogPrefix, sess.OwnerID, label)
}

// deliverChart renders the current counts and sends them to the owner,
// falling back to the public welcome channel when the DM fails.
func (e *Engine) deliverChart(ctx context.Context, label, actorTag string) {
	if e.charts == nil {
		return
	}

	data, err := e.charts.Fetch(ctx, e.counts.Snapshot())
	if err != nil {
		log.Printf("%s chart fetch failed: %v", e.cfg.LogPrefix, err)
		return
	}

	msg := mewapi.MessagePayload{
		Content: "New member " + actorTag + " chose " + label,
		Card:    &mewapi.Card{Title: "Engagement Chart"},
	}

	if ownerID := strings.TrimSpace(e.cfg.OwnerID); ownerID != "" {
		// Resolve the owner first so a misconfigured id falls back to the
		// channel instead of failing the DM open.
		owner, err := e.platform.FetchUser(ctx, ownerID)
		if err != nil {
			log.Printf("%s owner lookup failed, falling back to channel: user=%s err=%v", e.cfg.LogPrefix, ownerID, err)
		} else {
			err := e.platform.SendDirectFile(ctx, owner.ID, "engagement.png", "image/png", data, msg)
			if err == nil {
				return
			}
			log.Printf("%s chart DM failed, falling back to channel: err=%v", e.cfg.LogPrefix, err)
		}
	}

	if _, err := e.platform.SendFile(ctx, e.cfg.WelcomeChannelID, "engagement.png", "image/png", data, msg); err != nil {
		log.Printf("%s chart channel delivery failed: %v", e.cfg.LogPrefix, err)
	}
}

func (e *Engine) grantRole(ctx context.Context, sess *session.Session) {
	name := strings.TrimSpace(e.cfg.RoleName)
	if name == "" || strings.TrimSpace(sess.ServerID) == "" {
		return
	}

	role, ok, err := e.platform.ResolveRoleByName(ctx, sess.ServerID, name)
	if err != nil {
		log.Printf("%s role lookup failed: name=%q err=%v", e.cfg.LogPrefix, name, err)
		return
	}
	if !ok {
		log.Printf("%s role not found: name=%q server=%s", e.cfg.LogPrefix, name, sess.ServerID)
		return
	}
	if err := e.platform.GrantRole(ctx, sess.ServerID, sess.OwnerID, role.ID); err != nil {
		log.Printf("%s role grant failed: role=%s member=%s err=%v", e.cfg.LogPrefix, role.ID, sess.OwnerID, err)
	}
}

func (e *Engine) captureFreeText(ctx context.Context, msg InboundMessage) error {
	sess, ok := e.sessions.Get(msg.AuthorID)
	if !ok || !sess.AwaitingText || sess.ChannelID != msg.ChannelID || sess.Finalized() {
		return nil
	}

	text := strings.TrimSpace(msg.Content)
	if text == "" || strings.HasPrefix(text, "!") {
		return nil
	}

	sess.FreeText = text
	sess.AwaitingText = false
	e.sessions.Put(sess)
	return e.refreshPageOne(ctx, sess)
}

func (e *Engine) replyStatus(ctx context.Context, channelID string) error {
	content := "Bot: " + e.bot.Tag()

	if servers, err := e.platform.FetchMyServers(ctx); err == nil {
		content = fmt.Sprintf("Bot: %s, Servers: %d", e.bot.Tag(), len(servers))
	} else {
		log.Printf("%s server list fetch failed: %v", e.cfg.LogPrefix, err)
	}

	_, err := e.platform.SendMessage(ctx, channelID, mewapi.MessagePayload{Content: content})
	return err
}

// answered reports whether the first answer is complete: a categorical
// label, or Other plus the submitted free text.
func (e *Engine) answered(sess *session.Session) bool {
	if strings.TrimSpace(sess.Label) == "" {
		return false
	}
	if sess.Label == OtherLabel {
		return strings.TrimSpace(sess.FreeText) != ""
	}
	return true
}

func (e *Engine) refreshPageOne(ctx context.Context, sess *session.Session) error {
	return e.platform.EditMessage(ctx, sess.ChannelID, sess.MessageID, mewapi.MessagePayload{
		Content:    mewapi.Mention(sess.OwnerID),
		Components: e.pageOneButtons(sess.OwnerID, sess.Label, e.answered(sess)),
	})
}

func (e *Engine) pageOneButtons(memberID, selected string, answered bool) []mewapi.Button {
	buttons := make([]mewapi.Button, 0, len(e.cfg.Labels)+2)
	for _, label := range e.cfg.Labels {
		style := "secondary"
		if label == selected {
			style = "success"
		}
		buttons = append(buttons, mewapi.Button{
			CustomID: ChoiceControlID(memberID, label),
			Label:    label,
			Style:    style,
		})
	}

	otherStyle := "secondary"
	if selected == OtherLabel {
		otherStyle = "success"
	}
	buttons = append(buttons, mewapi.Button{
		CustomID: ChoiceControlID(memberID, OtherLabel),
		Label:    OtherLabel,
		Style:    otherStyle,
	})

	buttons = append(buttons, mewapi.Button{
		CustomID: NextControlID(memberID),
		Label:    "Next",
		Style:    "primary",
		Disabled: !answered,
	})
	return buttons
}

// notify sends a private notice to one user; delivery is best-effort.
func (e *Engine) notify(ctx context.Context, userID, text string) {
	if err := e.platform.SendDirect(ctx, userID, mewapi.MessagePayload{Content: text}); err != nil {
		log.Printf("%s private notice failed: user=%s err=%v", e.cfg.LogPrefix, userID, err)
	}
}

func (e *Engine) beginConfirm(ownerID string) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, busy := e.confirming[ownerID]; busy {
		return false
	}
	e.confirming[ownerID] = struct{}{}
	return true
}

func (e *Engine) endConfirm(ownerID string) {
	e.mu.Lock()
	delete(e.confirming, ownerID)
	e.mu.Unlock()
}
