package trigger

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/internal/responder"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
)

type fakeResponder struct {
	mu   sync.Mutex
	reqs []responder.Request
}

func (f *fakeResponder) Respond(ctx context.Context, req responder.Request) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	return nil
}

func (f *fakeResponder) requests() []responder.Request {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]responder.Request, len(f.reqs))
	copy(out, f.reqs)
	return out
}

type fakePublisher struct {
	mu     sync.Mutex
	events []*model.AutoReplyEvent
}

func (f *fakePublisher) Publish(ctx context.Context, ev *model.AutoReplyEvent) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.events = append(f.events, ev)
	return nil
}

type fakeSender struct {
	mu      sync.Mutex
	sent    []platform.SendRequest
	deleted []int64
}

func (f *fakeSender) SendMessage(ctx context.Context, req platform.SendRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return int64(2000 + len(f.sent)), nil
}

func (f *fakeSender) SendTyping(ctx context.Context, chatID int64) error { return nil }

func (f *fakeSender) DeleteMessage(ctx context.Context, chatID, messageID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.deleted = append(f.deleted, messageID)
	return nil
}

type testEnv struct {
	engine  *Engine
	resp    *fakeResponder
	pub     *fakePublisher
	sender  *fakeSender
	history *store.HistoryStore
	users   *store.UserDirectory
}

func newTestEngine(t *testing.T, cfg Config) *testEnv {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	log, err := logger.New("error")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}

	if len(cfg.AllowedChats) == 0 {
		cfg.AllowedChats = []int64{1}
	}
	if cfg.Persona == "" {
		cfg.Persona = persona.Jester
	}
	if cfg.BotID == 0 {
		cfg.BotID = 777
	}

	env := &testEnv{
		resp:    &fakeResponder{},
		pub:     &fakePublisher{},
		sender:  &fakeSender{},
		history: store.NewHistoryStore(rdb),
		users:   store.NewUserDirectory(rdb, 99),
	}
	env.engine = New(
		cfg,
		env.history,
		env.users,
		store.NewRateLimiter(rdb, env.users),
		store.NewTriggerCounter(rdb),
		env.resp,
		env.pub,
		env.sender,
		log,
	)
	return env
}

func update(msgID int64, userID int64, text string) *model.Update {
	return &model.Update{
		ChatID:    1,
		ChatType:  model.ChatSupergroup,
		MessageID: msgID,
		From:      model.User{ID: userID, Name: "Ann"},
		Text:      text,
	}
}

func TestHandleUpdateDropsUnallowedChat(t *testing.T) {
	env := newTestEngine(t, Config{})
	u := update(1, 5, "hello from the wrong place")
	u.ChatID = 42

	env.engine.HandleUpdate(context.Background(), u)

	if len(env.resp.requests()) != 0 || len(env.pub.events) != 0 {
		t.Error("unallowed chat must not trigger anything")
	}
	entries, _ := env.history.Recent(context.Background(), 42, 10)
	if len(entries) != 0 {
		t.Errorf("unallowed chat must not be recorded, got %+v", entries)
	}
}

func TestHandleUpdateSkipsBannedUser(t *testing.T) {
	env := newTestEngine(t, Config{})
	ctx := context.Background()
	if err := env.users.Ban(ctx, 5); err != nil {
		t.Fatalf("ban: %v", err)
	}

	env.engine.HandleUpdate(ctx, update(1, 5, "/jester"))

	if len(env.resp.requests()) != 0 {
		t.Error("banned user must not trigger a response")
	}
}

func TestHandleUpdateRecordsPlainMessage(t *testing.T) {
	env := newTestEngine(t, Config{})
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, update(30, 5, "just chatting"))

	entries, err := env.history.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 1 || entries[0].Content != "just chatting" || entries[0].Name != "Ann" {
		t.Errorf("history: %+v", entries)
	}
	if len(env.resp.requests()) != 0 {
		t.Error("plain message must not trigger a response")
	}
}

func TestHandleUpdateCommandTriggersPersona(t *testing.T) {
	env := newTestEngine(t, Config{})

	env.engine.HandleUpdate(context.Background(), update(10, 5, "/vixen@relay_bot"))

	reqs := env.resp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one response request, got %d", len(reqs))
	}
	if reqs[0].Persona != persona.Vixen {
		t.Errorf("persona = %q", reqs[0].Persona)
	}
	if reqs[0].ReplyTo != 10 {
		t.Errorf("reply target = %d", reqs[0].ReplyTo)
	}
}

func TestHandleUpdateCommandAsReplyCarriesRepliedText(t *testing.T) {
	env := newTestEngine(t, Config{})
	u := update(11, 5, "/legend")
	u.ReplyTo = &model.RepliedMessage{MessageID: 8, AuthorID: 6, Text: "what do you think"}

	env.engine.HandleUpdate(context.Background(), u)

	reqs := env.resp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one response request, got %d", len(reqs))
	}
	if reqs[0].PriorityText != "what do you think" {
		t.Errorf("priority text = %q", reqs[0].PriorityText)
	}
	if reqs[0].ReplyTo != 8 || reqs[0].ThreadStart != 8 {
		t.Errorf("target fields: %+v", reqs[0])
	}
	if len(env.sender.deleted) != 1 || env.sender.deleted[0] != 11 {
		t.Errorf("command message should be cleaned up, deleted=%v", env.sender.deleted)
	}
}

func TestHandleUpdateSecondCommandRateLimited(t *testing.T) {
	env := newTestEngine(t, Config{})
	ctx := context.Background()

	env.engine.HandleUpdate(ctx, update(10, 5, "/jester"))
	env.engine.HandleUpdate(ctx, update(11, 5, "/jester"))

	if got := len(env.resp.requests()); got != 1 {
		t.Fatalf("expected exactly one response, got %d", got)
	}
	if len(env.sender.sent) != 1 || !strings.HasPrefix(env.sender.sent[0].Text, "Wait ") {
		t.Errorf("expected a cooldown notice, got %+v", env.sender.sent)
	}
}

func TestHandleUpdateReplyToBotAnswersInThread(t *testing.T) {
	env := newTestEngine(t, Config{Persona: persona.Vixen})
	u := update(40, 5, "tell me more")
	u.ReplyTo = &model.RepliedMessage{MessageID: 39, AuthorID: 777, AuthorIsBot: true}

	env.engine.HandleUpdate(context.Background(), u)

	reqs := env.resp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one response request, got %d", len(reqs))
	}
	if reqs[0].Persona != persona.Vixen {
		t.Errorf("persona = %q", reqs[0].Persona)
	}
	if reqs[0].ThreadStart != 40 || reqs[0].ReplyTo != 40 {
		t.Errorf("thread fields: %+v", reqs[0])
	}
	if reqs[0].PriorityText != "tell me more" {
		t.Errorf("priority text = %q", reqs[0].PriorityText)
	}
}

func TestHandleUpdateReplyToOtherBotIgnored(t *testing.T) {
	env := newTestEngine(t, Config{})
	u := update(41, 5, "talking to someone else")
	u.ReplyTo = &model.RepliedMessage{MessageID: 39, AuthorID: 888, AuthorIsBot: true}

	env.engine.HandleUpdate(context.Background(), u)

	if len(env.resp.requests()) != 0 {
		t.Error("reply to a different bot must not trigger")
	}
}

func TestHandleUpdateRandomTriggerPublishesAfterThreshold(t *testing.T) {
	env := newTestEngine(t, Config{AutoReplyChance: 1.0})
	ctx := context.Background()

	for i := int64(1); i <= 10; i++ {
		env.engine.HandleUpdate(ctx, update(100+i, 5, "a message definitely long enough"))
	}

	if len(env.pub.events) != 1 {
		t.Fatalf("expected one auto-reply event, got %d", len(env.pub.events))
	}
	ev := env.pub.events[0]
	if ev.ChatID != 1 || ev.MessageID != 110 {
		t.Errorf("event fields: %+v", ev)
	}
	if _, ok := persona.Get(persona.Name(ev.Persona)); !ok {
		t.Errorf("event persona %q not registered", ev.Persona)
	}
}

func TestHandleUpdateConcurrentUpdatesFireTwice(t *testing.T) {
	env := newTestEngine(t, Config{AutoReplyChance: 1.0})
	ctx := context.Background()

	var wg sync.WaitGroup
	for i := 1; i <= 20; i++ {
		wg.Add(1)
		go func(id int64) {
			defer wg.Done()
			env.engine.HandleUpdate(ctx, update(300+id, 5, "a message definitely long enough"))
		}(int64(i))
	}
	wg.Wait()

	// The counter is atomic, so 20 qualifying messages cross the
	// threshold exactly twice no matter how goroutines interleave.
	if len(env.pub.events) != 2 {
		t.Errorf("expected 2 auto-reply events from 20 concurrent updates, got %d", len(env.pub.events))
	}
}

func TestHandleUpdateShortMessagesNeverCount(t *testing.T) {
	env := newTestEngine(t, Config{AutoReplyChance: 1.0})
	ctx := context.Background()

	for i := int64(1); i <= 20; i++ {
		env.engine.HandleUpdate(ctx, update(200+i, 5, "short"))
	}

	if len(env.pub.events) != 0 {
		t.Errorf("short messages must not feed the trigger, got %d events", len(env.pub.events))
	}
}

func TestHandleUpdateCoalescesCommentBurst(t *testing.T) {
	env := newTestEngine(t, Config{
		Persona:     persona.Vixen,
		MergeWindow: 30 * time.Millisecond,
	})
	ctx := context.Background()

	first := update(21, 5, "hi")
	first.ReplyTo = &model.RepliedMessage{MessageID: 10, IsAutomaticForward: true, Text: "the post"}
	second := update(22, 5, "there")
	second.ReplyTo = &model.RepliedMessage{MessageID: 10, IsAutomaticForward: true, Text: "the post"}

	env.engine.HandleUpdate(ctx, first)
	env.engine.HandleUpdate(ctx, second)

	deadline := time.Now().Add(2 * time.Second)
	for len(env.resp.requests()) == 0 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}

	reqs := env.resp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one merged response, got %d", len(reqs))
	}
	if reqs[0].PriorityText != "hi there" {
		t.Errorf("merged text = %q", reqs[0].PriorityText)
	}
	if reqs[0].ReplyTo != 22 {
		t.Errorf("should reply to the latest comment, got %d", reqs[0].ReplyTo)
	}
	if reqs[0].CommentRoot != 10 {
		t.Errorf("comment root = %d", reqs[0].CommentRoot)
	}
	if reqs[0].Persona != persona.Vixen {
		t.Errorf("persona = %q", reqs[0].Persona)
	}
}

func TestHandleUpdateCommentIgnoredByOtherPersonas(t *testing.T) {
	env := newTestEngine(t, Config{Persona: persona.Jester, MergeWindow: 10 * time.Millisecond})
	u := update(21, 5, "nice post by the way")
	u.ReplyTo = &model.RepliedMessage{MessageID: 10, IsAutomaticForward: true}

	env.engine.HandleUpdate(context.Background(), u)
	time.Sleep(50 * time.Millisecond)

	if len(env.resp.requests()) != 0 {
		t.Error("only the comment persona handles channel comments")
	}
}

func TestHandleUpdateTarotNeedsReply(t *testing.T) {
	env := newTestEngine(t, Config{})

	env.engine.HandleUpdate(context.Background(), update(50, 5, "/tarot"))

	if len(env.resp.requests()) != 0 {
		t.Error("tarot without a question must not generate")
	}
	if len(env.sender.sent) != 1 || !strings.Contains(env.sender.sent[0].Text, "/tarot") {
		t.Errorf("expected a usage notice, got %+v", env.sender.sent)
	}
}

func TestHandleUpdateTarotReadsRepliedQuestion(t *testing.T) {
	env := newTestEngine(t, Config{ReasoningModel: "deep-model"})
	u := update(51, 5, "/tarot")
	u.ReplyTo = &model.RepliedMessage{MessageID: 48, AuthorID: 5, Text: "will it work out"}

	env.engine.HandleUpdate(context.Background(), u)

	if len(env.sender.sent) != 1 || !strings.HasPrefix(env.sender.sent[0].Text, "The cards drawn: ") {
		t.Fatalf("expected the card announcement, got %+v", env.sender.sent)
	}
	if env.sender.sent[0].ReplyTo != 48 {
		t.Errorf("announcement should reply to the question, got %d", env.sender.sent[0].ReplyTo)
	}

	reqs := env.resp.requests()
	if len(reqs) != 1 {
		t.Fatalf("expected one reading, got %d", len(reqs))
	}
	if reqs[0].Persona != persona.Vixen || reqs[0].Model != "deep-model" {
		t.Errorf("reading request: %+v", reqs[0])
	}
	if reqs[0].PriorityText != "will it work out" {
		t.Errorf("priority text = %q", reqs[0].PriorityText)
	}
	if !strings.Contains(reqs[0].AdditionalContext, "Cards drawn: ") {
		t.Errorf("framing missing: %q", reqs[0].AdditionalContext)
	}
}

func TestHandleUpdateBanCommand(t *testing.T) {
	env := newTestEngine(t, Config{})
	ctx := context.Background()

	u := update(60, 99, "/ban")
	u.ReplyTo = &model.RepliedMessage{MessageID: 59, AuthorID: 5, Text: "spam"}
	env.engine.HandleUpdate(ctx, u)

	banned, err := env.users.IsBanned(ctx, 5)
	if err != nil {
		t.Fatalf("is banned: %v", err)
	}
	if !banned {
		t.Error("replied-to author should be banned")
	}
	if len(env.sender.deleted) != 1 || env.sender.deleted[0] != 60 {
		t.Errorf("ban command should be cleaned up, deleted=%v", env.sender.deleted)
	}

	notAdmin := update(61, 5, "/ban")
	notAdmin.ReplyTo = &model.RepliedMessage{MessageID: 58, AuthorID: 7}
	env.engine.HandleUpdate(ctx, notAdmin)
	if banned, _ := env.users.IsBanned(ctx, 7); banned {
		t.Error("non-admin must not be able to ban")
	}
}

func TestParseCommand(t *testing.T) {
	cases := []struct {
		text string
		cmd  string
		ok   bool
	}{
		{"/jester", "jester", true},
		{"/Jester@relay_bot please", "jester", true},
		{"/tarot\nsecond line", "tarot", true},
		{"no command here", "", false},
		{"/", "", false},
	}
	for _, tc := range cases {
		cmd, ok := parseCommand(tc.text)
		if cmd != tc.cmd || ok != tc.ok {
			t.Errorf("parseCommand(%q) = %q,%v want %q,%v", tc.text, cmd, ok, tc.cmd, tc.ok)
		}
	}
}
