package responder

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/capitalize-ai/persona-relay/internal/llm"
	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/internal/prompt"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
)

type fakeSender struct {
	mu      sync.Mutex
	sent    []platform.SendRequest
	nextID  int64
	sendErr error
}

func (f *fakeSender) SendMessage(ctx context.Context, req platform.SendRequest) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.sendErr != nil {
		return 0, f.sendErr
	}
	f.sent = append(f.sent, req)
	f.nextID++
	return 1000 + f.nextID, nil
}

func (f *fakeSender) SendTyping(ctx context.Context, chatID int64) error { return nil }

func (f *fakeSender) DeleteMessage(ctx context.Context, chatID, messageID int64) error { return nil }

type fakeGen struct {
	mu    sync.Mutex
	reply string
	err   error
	reqs  []*llm.CompletionRequest
}

func (f *fakeGen) Generate(ctx context.Context, req *llm.CompletionRequest) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.reqs = append(f.reqs, req)
	if f.err != nil {
		return "", f.err
	}
	return f.reply, nil
}

func newTestResponder(t *testing.T, gen Generator, sender platform.Sender) (*Responder, *store.HistoryStore) {
	t.Helper()
	mr := miniredis.RunT(t)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	history := store.NewHistoryStore(rdb)

	log, err := logger.New("error")
	if err != nil {
		t.Fatalf("logger: %v", err)
	}
	asm := prompt.NewAssembler(rand.New(rand.NewSource(1)))
	r := New(history, gen, asm, sender, Config{Model: "test-model", FallbackText: "oops"}, log)
	r.sleep = func(time.Duration) {}
	return r, history
}

func TestRespondSplitsAndChainsFragments(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{reply: "first</br>second</br>  "}
	r, history := newTestResponder(t, gen, sender)
	ctx := context.Background()

	err := r.Respond(ctx, Request{
		ChatID:  1,
		Persona: persona.Jester,
		ReplyTo: 50,
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 fragments sent, got %d", len(sender.sent))
	}
	if sender.sent[0].Text != "first" || sender.sent[1].Text != "second" {
		t.Errorf("fragment texts: %+v", sender.sent)
	}
	if sender.sent[0].ReplyTo != 50 || sender.sent[1].ReplyTo != 50 {
		t.Errorf("both fragments should reply to the trigger: %+v", sender.sent)
	}

	entries, err := history.Recent(ctx, 1, 10)
	if err != nil {
		t.Fatalf("recent: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 history appends, got %d", len(entries))
	}
	for i, e := range entries {
		if e.Role != model.RoleAssistant {
			t.Errorf("entry %d role = %q", i, e.Role)
		}
		if e.ReplyTo != 50 {
			t.Errorf("entry %d reply_to = %d", i, e.ReplyTo)
		}
		if e.Name != "Jester" {
			t.Errorf("entry %d name = %q", i, e.Name)
		}
	}
}

func TestRespondCommentModeAnchorsLaterFragmentsToRoot(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{reply: "first</br>second"}
	r, _ := newTestResponder(t, gen, sender)

	err := r.Respond(context.Background(), Request{
		ChatID:       1,
		Persona:      persona.Vixen,
		PriorityText: "hi there",
		ReplyTo:      20,
		CommentRoot:  10,
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}

	if len(sender.sent) != 2 {
		t.Fatalf("expected 2 fragments, got %d", len(sender.sent))
	}
	if sender.sent[0].ReplyTo != 20 {
		t.Errorf("first fragment should reply to the comment, got %d", sender.sent[0].ReplyTo)
	}
	if sender.sent[1].ReplyTo != 10 {
		t.Errorf("second fragment should anchor to the channel post, got %d", sender.sent[1].ReplyTo)
	}
}

func TestRespondPriorityTextReachesBackend(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{reply: "ok"}
	r, _ := newTestResponder(t, gen, sender)

	err := r.Respond(context.Background(), Request{
		ChatID:       1,
		Persona:      persona.Vixen,
		PriorityText: "comment text",
		ReplyTo:      5,
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	msgs := gen.reqs[0].Messages
	if msgs[len(msgs)-1].Content != "comment text" {
		t.Errorf("priority text missing from final turn: %+v", msgs[len(msgs)-1])
	}
}

func TestRespondThreadContextUsed(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{reply: "ok"}
	r, history := newTestResponder(t, gen, sender)
	ctx := context.Background()

	for _, m := range []model.Message{
		{ChatID: 1, MessageID: 30, Role: model.RoleUser, Name: "Ann", Content: "root question"},
		{ChatID: 1, MessageID: 31, Role: model.RoleAssistant, Name: "Jester", Content: "an answer", ReplyTo: 30},
	} {
		if err := history.Append(ctx, m); err != nil {
			t.Fatalf("append: %v", err)
		}
	}

	err := r.Respond(ctx, Request{
		ChatID:      1,
		Persona:     persona.Jester,
		ThreadStart: 31,
		ReplyTo:     31,
	})
	if err != nil {
		t.Fatalf("respond: %v", err)
	}
	msgs := gen.reqs[0].Messages
	// system + the two chained entries
	if len(msgs) != 3 {
		t.Fatalf("expected thread context of 2 entries, got %d messages", len(msgs))
	}
	if msgs[1].Content != "Ann: root question" {
		t.Errorf("thread order wrong: %+v", msgs[1])
	}
}

func TestRespondConcurrentRequests(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{reply: "ok"}
	r, _ := newTestResponder(t, gen, sender)

	// Each request draws a delay and a mood; run enough in parallel to
	// exercise the shared draws under the race detector.
	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int64) {
			defer wg.Done()
			err := r.Respond(context.Background(), Request{
				ChatID:  1,
				Persona: persona.Jester,
				ReplyTo: 100 + n,
				Delay:   DelayRange{Min: time.Nanosecond, Max: time.Millisecond},
			})
			if err != nil {
				t.Errorf("respond %d: %v", n, err)
			}
		}(int64(i))
	}
	wg.Wait()

	if len(sender.sent) != 16 {
		t.Errorf("expected 16 sends, got %d", len(sender.sent))
	}
}

func TestRespondFailureSendsFallbackAndSkipsHistory(t *testing.T) {
	sender := &fakeSender{}
	gen := &fakeGen{err: errors.New("backend down")}
	r, history := newTestResponder(t, gen, sender)
	ctx := context.Background()

	err := r.Respond(ctx, Request{ChatID: 1, Persona: persona.Jester, ReplyTo: 9})
	if err == nil {
		t.Fatal("expected error to propagate")
	}

	if len(sender.sent) != 1 {
		t.Fatalf("expected exactly one fallback message, got %d", len(sender.sent))
	}
	if sender.sent[0].Text != "oops" {
		t.Errorf("fallback text: %q", sender.sent[0].Text)
	}

	entries, _ := history.Recent(ctx, 1, 10)
	if len(entries) != 0 {
		t.Errorf("nothing must be appended on failure, got %+v", entries)
	}
}
