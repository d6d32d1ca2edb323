// Package prompt assembles generation requests from persona
// configuration and conversation history.
package prompt

import (
	"math/rand"
	"sort"
	"strings"
	"sync"

	"github.com/capitalize-ai/persona-relay/internal/llm"
	"github.com/capitalize-ai/persona-relay/internal/model"
	"github.com/capitalize-ai/persona-relay/internal/persona"
)

// Assembler builds system prompts and message lists. Safe for
// concurrent use: the mood draw is the only mutable state.
type Assembler struct {
	preamble string
	glossary map[string]string

	rngMu sync.Mutex
	rng   *rand.Rand
}

// NewAssembler creates an assembler with the shared preamble and slang
// glossary.
func NewAssembler(rng *rand.Rand) *Assembler {
	return &Assembler{
		preamble: persona.Preamble,
		glossary: persona.SlangGlossary,
		rng:      rng,
	}
}

// Build merges the persona definition, a mood draw, the slang glossary
// and optional additional context into a system prompt, and converts
// history into role-tagged messages. priorityText is appended as a
// trailing user turn unless it duplicates the last history entry.
func (a *Assembler) Build(p *persona.Persona, history []model.HistoryEntry, priorityText, additionalContext string) (string, []llm.ChatMessage) {
	var sb strings.Builder
	sb.WriteString(a.preamble)
	if block := a.glossaryBlock(); block != "" {
		sb.WriteString("\n\n")
		sb.WriteString(block)
	}
	if p.Prompt != "" {
		sb.WriteString("\n\n")
		sb.WriteString(p.Prompt)
	}
	a.rngMu.Lock()
	mood := p.MoodDirective(a.rng)
	a.rngMu.Unlock()
	if mood != "" {
		sb.WriteString("\n")
		sb.WriteString(mood)
	}
	if additionalContext != "" {
		sb.WriteString("\n")
		sb.WriteString(additionalContext)
	}
	system := sb.String()

	messages := make([]llm.ChatMessage, 0, len(history)+2)
	messages = append(messages, llm.ChatMessage{Role: string(model.RoleSystem), Content: system})
	for _, e := range history {
		msg := llm.ChatMessage{Role: string(e.Role), Content: e.Content}
		if e.Name != "" {
			msg.Name = e.Name
			msg.Content = e.Name + ": " + e.Content
		}
		messages = append(messages, msg)
	}
	if priorityText != "" && !duplicatesLastTurn(history, priorityText) {
		messages = append(messages, llm.ChatMessage{Role: string(model.RoleUser), Content: priorityText})
	}
	return system, messages
}

func duplicatesLastTurn(history []model.HistoryEntry, priorityText string) bool {
	if len(history) == 0 {
		return false
	}
	return history[len(history)-1].Content == priorityText
}

func (a *Assembler) glossaryBlock() string {
	if len(a.glossary) == 0 {
		return ""
	}
	terms := make([]string, 0, len(a.glossary))
	for term := range a.glossary {
		terms = append(terms, term)
	}
	sort.Strings(terms)

	var sb strings.Builder
	sb.WriteString("Chat slang, for understanding only, never emit these definitions verbatim:")
	for _, term := range terms {
		sb.WriteString("\n- ")
		sb.WriteString(term)
		sb.WriteString(": ")
		sb.WriteString(a.glossary[term])
	}
	return sb.String()
}
