// Package trigger decides whether an inbound message produces a
// response and which pipeline handles it.
package trigger

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/internal/responder"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/internal/tarot"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

const (
	// minRandomLength is the qualifying length for the probabilistic
	// auto-trigger counter.
	minRandomLength = 10

	// randomCountPersona is the only persona whose process counts
	// messages toward the probabilistic trigger.
	randomCountPersona = persona.Jester

	// commentPersona handles channel-comment coalescing.
	commentPersona = persona.Vixen
)

// tarotFraming is appended to the system prompt for readings.
const tarotFraming = "Right now you are reading tarot for the user. Interpret the " +
	"drawn cards in your own voice, tie them to the question, stay in persona. Cards drawn: %s."

// Responder executes a response request.
type Responder interface {
	Respond(ctx context.Context, req responder.Request) error
}

// Publisher emits auto-reply events for out-of-band delivery.
type Publisher interface {
	Publish(ctx context.Context, ev *model.AutoReplyEvent) error
}

// Config carries the engine's per-process settings.
type Config struct {
	// Persona is the persona this process answers as.
	Persona persona.Name

	// BotID is this process's platform identity, used to detect
	// replies to our own messages.
	BotID int64

	// AllowedChats is the chat scope gate.
	AllowedChats []int64

	// ReasoningModel overrides the default model for tarot readings.
	ReasoningModel string

	// ReplyDelay is the human-like delay before reply-to-bot and
	// comment responses.
	ReplyDelay responder.DelayRange

	// AutoReplyChance is the coin-flip probability applied when the
	// trigger counter fires.
	AutoReplyChance float64

	// MergeWindow is the comment coalescing window.
	MergeWindow time.Duration
}

// Engine is the per-message trigger state machine.
type Engine struct {
	cfg       Config
	allowed   map[int64]bool
	history   *store.HistoryStore
	users     *store.UserDirectory
	limiter   *store.RateLimiter
	counter   *store.TriggerCounter
	resp      Responder
	pub       Publisher
	sender    platform.Sender
	coalescer *Coalescer
	log       *logger.Logger

	// rngMu guards rng: every update runs on its own goroutine.
	rngMu sync.Mutex
	rng   *rand.Rand
}

// New creates a trigger engine.
func New(
	cfg Config,
	history *store.HistoryStore,
	users *store.UserDirectory,
	limiter *store.RateLimiter,
	counter *store.TriggerCounter,
	resp Responder,
	pub Publisher,
	sender platform.Sender,
	log *logger.Logger,
) *Engine {
	if cfg.AutoReplyChance == 0 {
		cfg.AutoReplyChance = 0.5
	}
	if cfg.MergeWindow == 0 {
		cfg.MergeWindow = 10 * time.Second
	}
	allowed := make(map[int64]bool, len(cfg.AllowedChats))
	for _, id := range cfg.AllowedChats {
		allowed[id] = true
	}
	e := &Engine{
		cfg:     cfg,
		allowed: allowed,
		history: history,
		users:   users,
		limiter: limiter,
		counter: counter,
		resp:    resp,
		pub:     pub,
		sender:  sender,
		log:     log,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
	}
	e.coalescer = NewCoalescer(cfg.MergeWindow, e.onCommentsMerged)
	return e
}

// HandleUpdate runs the trigger state machine for one inbound message.
// Callers run each update on its own goroutine; nothing here blocks on
// other updates.
func (e *Engine) HandleUpdate(ctx context.Context, u *model.Update) {
	if !e.allowed[u.ChatID] {
		e.log.Warn("message from chat outside the allowed set",
			zap.Int64("chat_id", u.ChatID),
			zap.String("chat_title", u.ChatTitle),
			zap.String("chat_type", string(u.ChatType)),
		)
		metrics.UpdatesTotal.WithLabelValues("unallowed_chat").Inc()
		return
	}
	if u.From.IsBot {
		metrics.UpdatesTotal.WithLabelValues("bot_author").Inc()
		return
	}
	if banned, err := e.users.IsBanned(ctx, u.From.ID); err != nil {
		e.log.Warn("ban check failed", zap.Error(err))
	} else if banned {
		metrics.UpdatesTotal.WithLabelValues("banned").Inc()
		return
	}

	if cmd, ok := parseCommand(u.Text); ok {
		metrics.UpdatesTotal.WithLabelValues("command").Inc()
		e.handleCommand(ctx, u, cmd)
		return
	}

	e.recordInbound(ctx, u)
	metrics.UpdatesTotal.WithLabelValues("message").Inc()

	if e.isReplyToBot(u) {
		metrics.TriggersTotal.WithLabelValues("reply_to_bot").Inc()
		e.respond(ctx, responder.Request{
			ChatID:       u.ChatID,
			ThreadID:     u.ThreadID,
			UserID:       u.From.ID,
			Persona:      e.cfg.Persona,
			PriorityText: u.Text,
			ReplyTo:      u.MessageID,
			ThreadStart:  u.MessageID,
			Delay:        e.cfg.ReplyDelay,
		})
		return
	}

	if e.cfg.Persona == commentPersona && isChannelComment(u) {
		e.coalescer.Add(u)
		return
	}

	e.maybeCountForRandom(ctx, u)
}

func (e *Engine) recordInbound(ctx context.Context, u *model.Update) {
	err := e.history.Append(ctx, model.Message{
		ChatID:    u.ChatID,
		ThreadID:  u.ThreadID,
		MessageID: u.MessageID,
		AuthorID:  u.From.ID,
		Role:      model.RoleUser,
		Name:      u.From.Name,
		Content:   u.Text,
		ReplyTo:   replyID(u),
	})
	if err != nil {
		e.log.Warn("history append failed", zap.Error(err))
		metrics.HistoryOps.WithLabelValues("append", "error").Inc()
		return
	}
	metrics.HistoryOps.WithLabelValues("append", "ok").Inc()
}

func (e *Engine) handleCommand(ctx context.Context, u *model.Update, cmd string) {
	var target persona.Name
	switch cmd {
	case "jester":
		target = persona.Jester
	case "vixen":
		target = persona.Vixen
	case "legend":
		target = persona.Legend
	case "tarot":
		e.handleTarot(ctx, u)
		return
	case "ban":
		e.handleBan(ctx, u)
		return
	default:
		return
	}

	allowed, wait, err := e.limiter.Check(ctx, u.From.ID)
	if err != nil {
		e.log.Warn("rate limit check failed", zap.Error(err))
		return
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		e.send(ctx, u.ChatID, u.ThreadID, u.MessageID, fmt.Sprintf("Wait %d sec.", wait))
		return
	}

	metrics.TriggersTotal.WithLabelValues("command").Inc()
	req := responder.Request{
		ChatID:   u.ChatID,
		ThreadID: u.ThreadID,
		UserID:   u.From.ID,
		Persona:  target,
		ReplyTo:  u.MessageID,
	}
	if r := u.ReplyTo; r != nil {
		// A command sent as a reply answers the replied-to message.
		req.PriorityText = r.Text
		req.ReplyTo = r.MessageID
		req.ThreadStart = r.MessageID
		if err := e.sender.DeleteMessage(ctx, u.ChatID, u.MessageID); err != nil {
			e.log.Warn("command cleanup failed", zap.Error(err))
		}
	}
	e.respond(ctx, req)
}

func (e *Engine) handleTarot(ctx context.Context, u *model.Update) {
	if u.ReplyTo == nil || u.ReplyTo.Text == "" {
		e.send(ctx, u.ChatID, u.ThreadID, u.MessageID, "Reply to a question with /tarot to get a reading.")
		return
	}
	allowed, wait, err := e.limiter.Check(ctx, u.From.ID)
	if err != nil {
		e.log.Warn("rate limit check failed", zap.Error(err))
		return
	}
	if !allowed {
		metrics.RateLimitedTotal.Inc()
		e.send(ctx, u.ChatID, u.ThreadID, u.MessageID, fmt.Sprintf("Wait %d sec.", wait))
		return
	}

	e.rngMu.Lock()
	cards := tarot.Draw(e.rng, 3)
	e.rngMu.Unlock()
	list := strings.Join(cards, ", ")
	e.send(ctx, u.ChatID, u.ThreadID, u.ReplyTo.MessageID, "The cards drawn: "+list)

	metrics.TriggersTotal.WithLabelValues("tarot").Inc()
	e.respond(ctx, responder.Request{
		ChatID:            u.ChatID,
		ThreadID:          u.ThreadID,
		UserID:            u.From.ID,
		Persona:           commentPersona,
		PriorityText:      u.ReplyTo.Text,
		AdditionalContext: fmt.Sprintf(tarotFraming, list),
		ReplyTo:           u.ReplyTo.MessageID,
		Model:             e.cfg.ReasoningModel,
	})
}

func (e *Engine) handleBan(ctx context.Context, u *model.Update) {
	if !e.users.IsAdmin(u.From.ID) || u.ReplyTo == nil || u.ReplyTo.AuthorID == 0 {
		return
	}
	if err := e.users.Ban(ctx, u.ReplyTo.AuthorID); err != nil {
		e.log.Warn("ban write failed", zap.Error(err))
		return
	}
	if err := e.sender.DeleteMessage(ctx, u.ChatID, u.MessageID); err != nil {
		e.log.Warn("command cleanup failed", zap.Error(err))
	}
	e.log.Info("user banned", zap.Int64("user_id", u.ReplyTo.AuthorID))
}

func (e *Engine) maybeCountForRandom(ctx context.Context, u *model.Update) {
	if !shouldCountForRandom(u, e.cfg.Persona) {
		return
	}
	fired, err := e.counter.Bump(ctx, u.ChatID, u.MessageID)
	if err != nil {
		e.log.Warn("trigger counter failed", zap.Error(err))
		return
	}
	if !fired {
		return
	}
	metrics.TriggersTotal.WithLabelValues("random").Inc()
	e.rngMu.Lock()
	flip := e.rng.Float64()
	chosen := persona.Random(e.rng)
	e.rngMu.Unlock()
	if flip >= e.cfg.AutoReplyChance {
		e.log.Debug("random trigger fired but coin flip declined")
		return
	}

	ev := &model.AutoReplyEvent{
		ChatID:    u.ChatID,
		UserID:    u.From.ID,
		ThreadID:  u.ThreadID,
		MessageID: u.MessageID,
		Text:      u.Text,
		Persona:   string(chosen),
	}
	// The publisher owns the outbound event metric.
	if err := e.pub.Publish(ctx, ev); err != nil {
		e.log.Warn("auto-reply publish failed", zap.Error(err))
	}
}

// onCommentsMerged fires when a comment buffer's merge window elapses.
func (e *Engine) onCommentsMerged(joined string, latest *model.Update) {
	ctx := context.Background()
	root := e.history.Root(ctx, latest.ChatID, latest.ReplyTo.MessageID)
	metrics.TriggersTotal.WithLabelValues("comment").Inc()
	e.respond(ctx, responder.Request{
		ChatID:       latest.ChatID,
		ThreadID:     latest.ThreadID,
		UserID:       latest.From.ID,
		Persona:      commentPersona,
		PriorityText: joined,
		ReplyTo:      latest.MessageID,
		CommentRoot:  root,
		Delay:        e.cfg.ReplyDelay,
	})
}

func (e *Engine) respond(ctx context.Context, req responder.Request) {
	if err := e.resp.Respond(ctx, req); err != nil {
		e.log.Error("response pipeline failed", zap.Error(err))
	}
}

func (e *Engine) send(ctx context.Context, chatID, threadID, replyTo int64, text string) {
	_, err := e.sender.SendMessage(ctx, platform.SendRequest{
		ChatID:   chatID,
		ThreadID: threadID,
		ReplyTo:  replyTo,
		Text:     text,
	})
	if err != nil {
		e.log.Warn("notice send failed", zap.Error(err))
	}
}

func (e *Engine) isReplyToBot(u *model.Update) bool {
	return u.ReplyTo != nil && u.ReplyTo.AuthorIsBot && u.ReplyTo.AuthorID == e.cfg.BotID
}

// isChannelComment reports whether the message replies to a channel
// post forwarded into the discussion group.
func isChannelComment(u *model.Update) bool {
	if u.ReplyTo == nil {
		return false
	}
	return u.ReplyTo.IsAutomaticForward || u.ReplyTo.SenderChatType == model.ChatChannel
}

// shouldCountForRandom gates the probabilistic trigger: designated
// persona only, message long enough, conversational chat scopes only.
func shouldCountForRandom(u *model.Update, active persona.Name) bool {
	if active != randomCountPersona {
		return false
	}
	if len([]rune(u.Text)) <= minRandomLength {
		return false
	}
	switch u.ChatType {
	case model.ChatPrivate, model.ChatGroup, model.ChatSupergroup:
		return true
	default:
		return false
	}
}

func replyID(u *model.Update) int64 {
	if u.ReplyTo == nil {
		return 0
	}
	return u.ReplyTo.MessageID
}

// parseCommand extracts a leading bot command from text, tolerating the
// @botname suffix and arguments.
func parseCommand(text string) (string, bool) {
	if !strings.HasPrefix(text, "/") {
		return "", false
	}
	cmd := text[1:]
	if i := strings.IndexAny(cmd, " \n"); i >= 0 {
		cmd = cmd[:i]
	}
	if i := strings.IndexByte(cmd, '@'); i >= 0 {
		cmd = cmd[:i]
	}
	if cmd == "" {
		return "", false
	}
	return strings.ToLower(cmd), true
}
