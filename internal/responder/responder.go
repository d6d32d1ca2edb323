// Package responder runs one persona response end to end: history
// fetch, prompt assembly, generation with retry, fragment sends and
// history write-back.
package responder

import (
	"context"
	"fmt"
	"math/rand"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/capitalize-ai/persona-relay/internal/llm"
	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
	"github.com/capitalize-ai/persona-relay/internal/platform"
	"github.com/capitalize-ai/persona-relay/internal/prompt"
	"github.com/capitalize-ai/persona-relay/internal/store"
	"github.com/capitalize-ai/persona-relay/pkg/logger"
	"github.com/capitalize-ai/persona-relay/pkg/metrics"
)

// DelayRange is a randomized wait applied before acting, used to make
// replies feel human.
type DelayRange struct {
	Min time.Duration
	Max time.Duration
}

// Pick draws a duration from the range.
func (d DelayRange) Pick(rng *rand.Rand) time.Duration {
	if d.Max <= d.Min {
		return d.Min
	}
	return d.Min + time.Duration(rng.Int63n(int64(d.Max-d.Min)))
}

// Request describes one response to produce.
type Request struct {
	ChatID   int64
	ThreadID int64
	UserID   int64
	Persona  persona.Name

	// PriorityText is the text given highest weight in the final user
	// turn (the replied-to message or the coalesced comment text).
	PriorityText string

	// AdditionalContext is appended to the system prompt (tarot
	// framing, split instructions and the like).
	AdditionalContext string

	// ReplyTo is the message the first fragment replies to.
	ReplyTo int64

	// CommentRoot, when non-zero, switches to comment mode: history
	// comes from the recency list and fragments after the first anchor
	// to the root channel post.
	CommentRoot int64

	// ThreadStart, when non-zero, reconstructs context by walking the
	// reply chain from this message instead of the recency list.
	ThreadStart int64

	// Model overrides the configured default model.
	Model string

	Delay DelayRange
}

// Generator is the resilient generation pipeline.
type Generator interface {
	Generate(ctx context.Context, req *llm.CompletionRequest) (string, error)
}

// Config carries the responder's tuning knobs.
type Config struct {
	Model           string
	Temperature     float64
	PresencePenalty float64
	HistoryLimit    int
	FragmentPause   time.Duration
	FallbackText    string
}

// Responder executes response requests.
type Responder struct {
	history *store.HistoryStore
	gen     Generator
	asm     *prompt.Assembler
	sender  platform.Sender
	log     *logger.Logger
	cfg     Config

	// rngMu guards rng: requests run on their own goroutines.
	rngMu sync.Mutex
	rng   *rand.Rand

	sleep func(time.Duration)
}

// New creates a responder.
func New(history *store.HistoryStore, gen Generator, asm *prompt.Assembler, sender platform.Sender, cfg Config, log *logger.Logger) *Responder {
	if cfg.HistoryLimit <= 0 {
		cfg.HistoryLimit = 10
	}
	if cfg.FallbackText == "" {
		cfg.FallbackText = "Something broke, try again later."
	}
	return &Responder{
		history: history,
		gen:     gen,
		asm:     asm,
		sender:  sender,
		log:     log,
		cfg:     cfg,
		rng:     rand.New(rand.NewSource(time.Now().UnixNano())),
		sleep:   time.Sleep,
	}
}

// Respond produces and delivers one response. Platform send failures
// are logged and swallowed; generation failure sends a single fallback
// message and appends nothing to history.
func (r *Responder) Respond(ctx context.Context, req Request) error {
	p, ok := persona.Get(req.Persona)
	if !ok {
		return fmt.Errorf("unknown persona %q", req.Persona)
	}
	log := r.log.WithChat(req.ChatID, req.ReplyTo).With(zap.String("persona", string(req.Persona)))

	r.rngMu.Lock()
	d := req.Delay.Pick(r.rng)
	r.rngMu.Unlock()
	if d > 0 {
		r.sleep(d)
	}
	if err := r.sender.SendTyping(ctx, req.ChatID); err != nil {
		log.Warn("typing indicator failed", zap.Error(err))
	}

	history, err := r.fetchHistory(ctx, req)
	if err != nil {
		log.Warn("history fetch failed, responding without context", zap.Error(err))
		metrics.HistoryOps.WithLabelValues("read", "error").Inc()
	}

	_, messages := r.asm.Build(p, history, req.PriorityText, req.AdditionalContext)

	modelName := req.Model
	if modelName == "" {
		modelName = r.cfg.Model
	}
	text, err := r.gen.Generate(ctx, &llm.CompletionRequest{
		Model:           modelName,
		Messages:        messages,
		Temperature:     r.cfg.Temperature,
		PresencePenalty: r.cfg.PresencePenalty,
	})
	if err != nil {
		log.Error("generation failed", zap.Error(err))
		r.sendFallback(ctx, req, log)
		return err
	}

	r.deliver(ctx, req, p, llm.SplitReply(text), log)
	return nil
}

func (r *Responder) fetchHistory(ctx context.Context, req Request) ([]model.HistoryEntry, error) {
	// Comment mode always uses the recency list: the comment chain is
	// anchored on the channel post, not on stored replies.
	if req.CommentRoot == 0 && req.ThreadStart != 0 {
		return r.history.Thread(ctx, req.ChatID, req.ThreadStart)
	}
	return r.history.Recent(ctx, req.ChatID, r.cfg.HistoryLimit)
}

func (r *Responder) deliver(ctx context.Context, req Request, p *persona.Persona, fragments []string, log *logger.Logger) {
	target := req.ReplyTo
	for i, frag := range fragments {
		if i > 0 {
			r.sleep(r.cfg.FragmentPause)
			if req.CommentRoot != 0 {
				// Later fragments anchor to the original channel post.
				target = req.CommentRoot
			}
		}
		sentID, err := r.sender.SendMessage(ctx, platform.SendRequest{
			ChatID:   req.ChatID,
			ThreadID: req.ThreadID,
			ReplyTo:  target,
			Text:     frag,
		})
		if err != nil {
			log.Warn("fragment send failed", zap.Int("fragment", i), zap.Error(err))
			continue
		}
		metrics.FragmentsSent.Inc()

		err = r.history.Append(ctx, model.Message{
			ChatID:    req.ChatID,
			ThreadID:  req.ThreadID,
			MessageID: sentID,
			Role:      model.RoleAssistant,
			Name:      p.DisplayName,
			Content:   frag,
			ReplyTo:   target,
		})
		if err != nil {
			log.Warn("history append failed", zap.Error(err))
			metrics.HistoryOps.WithLabelValues("append", "error").Inc()
		} else {
			metrics.HistoryOps.WithLabelValues("append", "ok").Inc()
		}
	}
}

func (r *Responder) sendFallback(ctx context.Context, req Request, log *logger.Logger) {
	_, err := r.sender.SendMessage(ctx, platform.SendRequest{
		ChatID:   req.ChatID,
		ThreadID: req.ThreadID,
		ReplyTo:  req.ReplyTo,
		Text:     r.cfg.FallbackText,
	})
	if err != nil {
		log.Warn("fallback send failed", zap.Error(err))
	}
}
