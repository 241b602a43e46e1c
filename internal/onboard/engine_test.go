package onboard

import (
	"context"
	"fmt"
	"path/filepath"
	"reflect"
	"strconv"
	"sync"
	"testing"
	"time"

	"mew/greeter/internal/mewapi"
	"mew/greeter/internal/render"
	"mew/greeter/internal/session"
	"mew/greeter/internal/store"
)

type sentMessage struct {
	channelID string
	payload   mewapi.MessagePayload
	filename  string
}

type editedMessage struct {
	channelID string
	messageID string
	payload   mewapi.MessagePayload
}

type fakePlatform struct {
	mu sync.Mutex

	channels map[string]mewapi.Channel
	users    map[string]mewapi.User
	servers  []mewapi.Server
	roles    []mewapi.Role

	sent    []sentMessage
	edits   []editedMessage
	directs map[string][]string
	granted []string

	directFileErr error
	directFiles   []sentMessage

	nextID int
}

func newFakePlatform() *fakePlatform {
	return &fakePlatform{
		channels: map[string]mewapi.Channel{
			"welcome": {ID: "welcome", ServerID: "s1", Type: "GUILD_TEXT", Name: "welcome"},
		},
		users: map[string]mewapi.User{
			"owner": {ID: "owner", Username: "admin"},
		},
		servers: []mewapi.Server{{ID: "s1", Name: "Cosmic Gate"}},
		roles:   []mewapi.Role{{ID: "r1", Name: "Newcomer"}},
		directs: map[string][]string{},
	}
}

func (f *fakePlatform) SendMessage(ctx context.Context, channelID string, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{channelID: channelID, payload: msg})
	return mewapi.ChannelMessage{ID: "m" + strconv.Itoa(f.nextID), ChannelID: channelID}, nil
}

func (f *fakePlatform) SendFile(ctx context.Context, channelID, filename, contentType string, data []byte, msg mewapi.MessagePayload) (mewapi.ChannelMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.nextID++
	f.sent = append(f.sent, sentMessage{channelID: channelID, payload: msg, filename: filename})
	return mewapi.ChannelMessage{ID: "m" + strconv.Itoa(f.nextID), ChannelID: channelID}, nil
}

func (f *fakePlatform) EditMessage(ctx context.Context, channelID, messageID string, msg mewapi.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.edits = append(f.edits, editedMessage{channelID: channelID, messageID: messageID, payload: msg})
	return nil
}

func (f *fakePlatform) SendDirect(ctx context.Context, userID string, msg mewapi.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.directs[userID] = append(f.directs[userID], msg.Content)
	return nil
}

func (f *fakePlatform) SendDirectFile(ctx context.Context, userID, filename, contentType string, data []byte, msg mewapi.MessagePayload) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.directFileErr != nil {
		return f.directFileErr
	}
	f.directFiles = append(f.directFiles, sentMessage{channelID: userID, payload: msg, filename: filename})
	return nil
}

func (f *fakePlatform) FetchChannel(ctx context.Context, channelID string) (mewapi.Channel, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	ch, ok := f.channels[channelID]
	if !ok {
		return mewapi.Channel{}, &mewapi.HTTPStatusError{StatusCode: 404, Body: "channel not found"}
	}
	return ch, nil
}

func (f *fakePlatform) FetchUser(ctx context.Context, userID string) (mewapi.User, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	u, ok := f.users[userID]
	if !ok {
		return mewapi.User{}, &mewapi.HTTPStatusError{StatusCode: 404, Body: "user not found"}
	}
	return u, nil
}

func (f *fakePlatform) FetchMyServers(ctx context.Context) ([]mewapi.Server, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]mewapi.Server(nil), f.servers...), nil
}

func (f *fakePlatform) ResolveRoleByName(ctx context.Context, serverID, name string) (mewapi.Role, bool, error) {
	for _, r := range f.roles {
		if r.Name == name {
			return r, true, nil
		}
	}
	return mewapi.Role{}, false, nil
}

func (f *fakePlatform) GrantRole(ctx context.Context, serverID, userID, roleID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.granted = append(f.granted, serverID+"/"+userID+"/"+roleID)
	return nil
}

func (f *fakePlatform) lastEdit(t *testing.T) editedMessage {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.edits) == 0 {
		t.Fatalf("no edits recorded")
	}
	return f.edits[len(f.edits)-1]
}

type fakeCharts struct {
	mu    sync.Mutex
	calls []map[string]int
	err   error
}

func (f *fakeCharts) Fetch(ctx context.Context, counts map[string]int) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.calls = append(f.calls, counts)
	return []byte("png"), nil
}

func newTestEngine(t *testing.T) (*Engine, *fakePlatform, *fakeCharts, *store.Counts, *session.MemoryStore) {
	t.Helper()

	counts, err := store.Open(filepath.Join(t.TempDir(), "counts.json"))
	if err != nil {
		t.Fatalf("open counts: %v", err)
	}

	platform := newFakePlatform()
	charts := &fakeCharts{}
	sessions := session.NewMemoryStore()

	e := NewEngine(Config{
		WelcomeChannelID: "welcome",
		OwnerID:          "owner",
		RoleName:         "Newcomer",
	}, platform, charts, sessions, counts, mewapi.User{ID: "bot", Username: "greeter", IsBot: true})

	// Keep tests fast: no PNG compositing.
	e.renderCard = func(req render.CardRequest) ([]byte, error) { return []byte("img"), nil }

	return e, platform, charts, counts, sessions
}

func click(t *testing.T, e *Engine, controlID, actor string) {
	t.Helper()
	err := e.HandleInteraction(context.Background(), Interaction{
		ControlID: controlID,
		ActorID:   actor,
		ChannelID: "welcome",
	})
	if err != nil {
		t.Fatalf("HandleInteraction(%q) error: %v", controlID, err)
	}
}

func TestScenarioA_CategoricalFlow(t *testing.T) {
	e, platform, charts, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	if _, ok := sessions.Get("m1"); !ok {
		t.Fatalf("no session after Start")
	}

	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	if got := counts.Snapshot()["Friend Invite"]; got != 1 {
		t.Fatalf("Friend Invite count = %d, want 1", got)
	}

	sess, ok := sessions.Get("m1")
	if !ok || !sess.Finalized() {
		t.Fatalf("session should be finalized inside grace window")
	}

	// Terminal edit strips all controls.
	last := platform.lastEdit(t)
	if len(last.payload.Components) != 0 {
		t.Fatalf("terminal message still has controls: %#v", last.payload.Components)
	}
	if last.payload.Card == nil || last.payload.Card.Title != "Thanks!" {
		t.Fatalf("terminal card missing: %#v", last.payload.Card)
	}

	// Chart went to the owner, role was granted, member got a DM.
	if len(charts.calls) != 1 {
		t.Fatalf("chart fetched %d times, want 1", len(charts.calls))
	}
	if len(platform.directFiles) != 1 || platform.directFiles[0].channelID != "owner" {
		t.Fatalf("chart not delivered to owner: %#v", platform.directFiles)
	}
	if want := []string{"s1/m1/r1"}; !reflect.DeepEqual(platform.granted, want) {
		t.Fatalf("role grant mismatch: %#v", platform.granted)
	}
	if len(platform.directs["m1"]) == 0 {
		t.Fatalf("member confirmation DM missing")
	}

	// After the grace period the session is swept.
	e.now = func() time.Time { return sess.ExpiresAt.Add(time.Second) }
	e.PurgeExpired()
	if sessions.Len() != 0 {
		t.Fatalf("session survived the grace period")
	}
}

func TestScenarioB_FreeTextFlow(t *testing.T) {
	e, _, _, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	click(t, e, ChoiceControlID("m1", OtherLabel), "m1")

	sess, _ := sessions.Get("m1")
	if !sess.AwaitingText {
		t.Fatalf("Other choice should arm free-text capture")
	}

	if err := e.HandleMessage(ctx, InboundMessage{
		ChannelID: "welcome", AuthorID: "m1", AuthorName: "alice", Content: "Instagram",
	}); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}

	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	snap := counts.Snapshot()
	if snap["Instagram"] != 1 {
		t.Fatalf("Instagram count = %d, want 1 (snapshot %#v)", snap["Instagram"], snap)
	}
	if snap[OtherLabel] != 0 {
		t.Fatalf("placeholder label must not be counted: %#v", snap)
	}
}

func TestScenarioC_AdvanceWithoutChoiceRejected(t *testing.T) {
	e, platform, _, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	before := counts.Snapshot()

	click(t, e, NextControlID("m1"), "m1")

	sess, ok := sessions.Get("m1")
	if !ok || sess.Page != 1 {
		t.Fatalf("session should stay on page 1, got %#v", sess)
	}
	if !reflect.DeepEqual(counts.Snapshot(), before) {
		t.Fatalf("store changed on rejected advance")
	}
	if msgs := platform.directs["m1"]; len(msgs) == 0 {
		t.Fatalf("expected private rejection notice")
	}
}

func TestScenarioD_WrongActorRejected(t *testing.T) {
	e, platform, _, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	before := counts.Snapshot()

	click(t, e, ChoiceControlID("m1", "Friend Invite"), "x1")

	sess, _ := sessions.Get("m1")
	if sess.Label != "" {
		t.Fatalf("session mutated by wrong actor: %#v", sess)
	}
	if !reflect.DeepEqual(counts.Snapshot(), before) {
		t.Fatalf("store changed on rejected click")
	}
	if msgs := platform.directs["x1"]; len(msgs) == 0 {
		t.Fatalf("expected private rejection for the wrong actor")
	}
}

func TestScenarioE_UnresolvableChannel(t *testing.T) {
	e, _, _, _, sessions := newTestEngine(t)
	e.cfg.WelcomeChannelID = "missing"

	err := e.Start(context.Background(), Member{ID: "m1", Username: "alice"})
	if err == nil {
		t.Fatalf("expected Start to fail for unresolvable channel")
	}
	if sessions.Len() != 0 {
		t.Fatalf("no session must be created on failed start, len=%d", sessions.Len())
	}
}

func TestChangeAnswerBeforeAdvance_LastWriteWins(t *testing.T) {
	e, _, _, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}

	click(t, e, ChoiceControlID("m1", OtherLabel), "m1")
	if err := e.HandleMessage(ctx, InboundMessage{ChannelID: "welcome", AuthorID: "m1", Content: "Instagram"}); err != nil {
		t.Fatalf("HandleMessage error: %v", err)
	}

	// Switching back to a categorical answer must clear the stale text.
	click(t, e, ChoiceControlID("m1", "Social Media"), "m1")

	sess, _ := sessions.Get("m1")
	if sess.FreeText != "" || sess.AwaitingText {
		t.Fatalf("stale free text survived: %#v", sess)
	}

	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	snap := counts.Snapshot()
	if snap["Social Media"] != 1 || snap["Instagram"] != 0 {
		t.Fatalf("last write should win: %#v", snap)
	}
}

func TestConfirm_RequiresPageTwo(t *testing.T) {
	e, platform, _, counts, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	if got := counts.Snapshot()["Friend Invite"]; got != 0 {
		t.Fatalf("confirm on page 1 must not finalize, count=%d", got)
	}
	if msgs := platform.directs["m1"]; len(msgs) == 0 {
		t.Fatalf("expected private notice for early confirm")
	}
}

func TestConfirm_DuplicateIsIdempotent(t *testing.T) {
	e, _, charts, counts, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1") // inside the grace window

	if got := counts.Snapshot()["Friend Invite"]; got != 1 {
		t.Fatalf("duplicate confirm double-counted: %d", got)
	}
	if len(charts.calls) != 1 {
		t.Fatalf("duplicate confirm re-ran side effects: %d chart calls", len(charts.calls))
	}
}

func TestConfirm_SingleFlight(t *testing.T) {
	e, platform, charts, counts, _ := newTestEngine(t)
	ctx := context.Background()

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, NextControlID("m1"), "m1")

	// Hold the confirm slot as if another click were mid-flight.
	if !e.beginConfirm("m1") {
		t.Fatalf("beginConfirm failed on idle member")
	}

	click(t, e, ConfirmControlID("m1"), "m1")

	if got := counts.Snapshot()["Friend Invite"]; got != 0 {
		t.Fatalf("concurrent confirm ran side effects: count=%d", got)
	}
	if len(charts.calls) != 0 {
		t.Fatalf("concurrent confirm fetched a chart")
	}
	found := false
	for _, m := range platform.directs["m1"] {
		if m == "Already processing." {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected 'Already processing.' rejection, got %#v", platform.directs["m1"])
	}

	e.endConfirm("m1")
	click(t, e, ConfirmControlID("m1"), "m1")
	if got := counts.Snapshot()["Friend Invite"]; got != 1 {
		t.Fatalf("confirm after release should finalize, count=%d", got)
	}
}

func TestFinalize_ConcurrentWithPurgeSweep(t *testing.T) {
	e, _, _, counts, sessions := newTestEngine(t)
	ctx := context.Background()

	// The purge sweep runs on its own goroutine in production; hammer it
	// here while flows finalize so the race detector sees both sides.
	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				sessions.Purge(time.Now())
			}
		}
	}()

	for i := 0; i < 25; i++ {
		id := "m" + strconv.Itoa(i)
		if err := e.Start(ctx, Member{ID: id, Username: "alice"}); err != nil {
			t.Fatalf("Start error: %v", err)
		}
		click(t, e, ChoiceControlID(id, "Friend Invite"), id)
		click(t, e, NextControlID(id), id)
		click(t, e, ConfirmControlID(id), id)
	}

	close(stop)
	wg.Wait()

	if got := counts.Snapshot()["Friend Invite"]; got != 25 {
		t.Fatalf("Friend Invite count = %d, want 25", got)
	}
}

func TestChartDelivery_FallsBackToChannel(t *testing.T) {
	e, platform, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	platform.directFileErr = fmt.Errorf("dm closed")

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	platform.mu.Lock()
	defer platform.mu.Unlock()
	fallback := false
	for _, s := range platform.sent {
		if s.channelID == "welcome" && s.filename == "engagement.png" {
			fallback = true
		}
	}
	if !fallback {
		t.Fatalf("expected chart fallback to the welcome channel, sent=%#v", platform.sent)
	}
}

func TestChartDelivery_UnresolvableOwnerFallsBack(t *testing.T) {
	e, platform, _, _, _ := newTestEngine(t)
	ctx := context.Background()
	e.cfg.OwnerID = "ghost"

	if err := e.Start(ctx, Member{ID: "m1", Username: "alice"}); err != nil {
		t.Fatalf("Start error: %v", err)
	}
	click(t, e, ChoiceControlID("m1", "Friend Invite"), "m1")
	click(t, e, NextControlID("m1"), "m1")
	click(t, e, ConfirmControlID("m1"), "m1")

	platform.mu.Lock()
	defer platform.mu.Unlock()
	if len(platform.directFiles) != 0 {
		t.Fatalf("no DM should reach an unresolvable owner: %#v", platform.directFiles)
	}
	fallback := false
	for _, s := range platform.sent {
		if s.channelID == "welcome" && s.filename == "engagement.png" {
			fallback = true
		}
	}
	if !fallback {
		t.Fatalf("expected chart fallback to the welcome channel, sent=%#v", platform.sent)
	}
}

func TestCommands(t *testing.T) {
	e, platform, _, _, sessions := newTestEngine(t)
	ctx := context.Background()

	if err := e.HandleMessage(ctx, InboundMessage{ChannelID: "c9", AuthorID: "u1", Content: "!ping"}); err != nil {
		t.Fatalf("!ping error: %v", err)
	}
	if err := e.HandleMessage(ctx, InboundMessage{ChannelID: "c9", AuthorID: "u1", Content: "!status"}); err != nil {
		t.Fatalf("!status error: %v", err)
	}

	platform.mu.Lock()
	if len(platform.sent) != 2 {
		platform.mu.Unlock()
		t.Fatalf("expected 2 replies, got %d", len(platform.sent))
	}
	if platform.sent[0].payload.Content != "Pong!" {
		platform.mu.Unlock()
		t.Fatalf("unexpected ping reply: %q", platform.sent[0].payload.Content)
	}
	if want := "Bot: @greeter, Servers: 1"; platform.sent[1].payload.Content != want {
		platform.mu.Unlock()
		t.Fatalf("unexpected status reply: %q", platform.sent[1].payload.Content)
	}
	platform.mu.Unlock()

	// !testwelcome triggers the flow for the author.
	if err := e.HandleMessage(ctx, InboundMessage{ChannelID: "c9", AuthorID: "u1", AuthorName: "bob", Content: "!testwelcome"}); err != nil {
		t.Fatalf("!testwelcome error: %v", err)
	}
	if _, ok := sessions.Get("u1"); !ok {
		t.Fatalf("!testwelcome did not start a flow")
	}

	// Bot-authored messages are ignored.
	if err := e.HandleMessage(ctx, InboundMessage{ChannelID: "c9", AuthorID: "bot", Content: "!ping", AuthorIsBot: true}); err != nil {
		t.Fatalf("bot message error: %v", err)
	}
	platform.mu.Lock()
	defer platform.mu.Unlock()
	for _, s := range platform.sent[3:] {
		if s.payload.Content == "Pong!" {
			t.Fatalf("bot message should not be answered")
		}
	}
}

func TestNextButton_DisabledUntilAnswered(t *testing.T) {
	e := &Engine{cfg: Config{Labels: []string{"Friend Invite"}}}

	buttons := e.pageOneButtons("m1", "", false)
	last := buttons[len(buttons)-1]
	if last.Label != "Next" || !last.Disabled {
		t.Fatalf("Next should be disabled before an answer: %#v", last)
	}

	buttons = e.pageOneButtons("m1", "Friend Invite", true)
	if buttons[0].Style != "success" {
		t.Fatalf("selected choice not highlighted: %#v", buttons[0])
	}
	last = buttons[len(buttons)-1]
	if last.Disabled {
		t.Fatalf("Next should be enabled after an answer: %#v", last)
	}
}
