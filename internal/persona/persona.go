// Package persona holds the closed set of response personas: prompt
// bodies, mood weighting and the shared slang glossary. Personas are
// read-only at runtime.
package persona

import (
	"math/rand"
	"os"
	"path/filepath"
)

// Name identifies a persona.
type Name string

const (
	Jester Name = "jester"
	Vixen  Name = "vixen"
	Legend Name = "legend"
)

// Preamble is prepended to every system prompt regardless of persona.
const Preamble = "You answer in a group chat while playing distinct roles. " +
	"Stay strictly in the selected persona and keep the chat's informal tone. " +
	"Follow the instructions exactly so replies read as natural. " +
	"When a longer answer reads better as several chat messages, separate " +
	"the parts with </br> and use at most three parts."

// SlangGlossary maps chat slang to its meaning. The glossary is given
// to the model for understanding only and must never be emitted
// verbatim.
var SlangGlossary = map[string]string{
	"lurker":    "a drive-by chat member who misses the irony and in-jokes",
	"grindlord": "a streamer who milks subscribers for donations",
	"the vault": "exclusive paywalled content, a running joke about its price",
	"8333":      "hours of watch time supposedly needed to matter here, an unreachable goal",
	"the key":   "local meme about a stranger who barged in demanding a key back",
	"speedrun":  "shorthand for someone who would have finished the game ages ago",
}

// Mood is one entry of the fixed mood enumeration.
type Mood string

const (
	MoodPlayful    Mood = "playful"
	MoodCheerful   Mood = "cheerful"
	MoodNeutral    Mood = "neutral"
	MoodCranky     Mood = "cranky"
	MoodAggressive Mood = "aggressive"
)

// moodOrder fixes iteration order for the weighted draw.
var moodOrder = []Mood{MoodPlayful, MoodCheerful, MoodNeutral, MoodCranky, MoodAggressive}

var moodDirectives = map[Mood]string{
	MoodPlayful:    "You are in a playful mood, tease and banter with the chat.",
	MoodCheerful:   "You are in a cheerful mood, radiate energy and make noise.",
	MoodNeutral:    "Your mood is neutral, answer calmly and evenly.",
	MoodCranky:     "You are in a cranky mood, you may snap back and drop sarcastic jabs.",
	MoodAggressive: "You are in an aggressive mood, blunt and harsh answers are fine.",
}

// Persona is a named response configuration. MoodWeights may be nil,
// in which case no mood directive is drawn.
type Persona struct {
	Name        Name
	DisplayName string
	Prompt      string
	MoodWeights map[Mood]int
}

// MoodDirective draws a weighted random mood and returns its directive,
// or the empty string when the persona has no mood table. Moods missing
// from the table default to weight 1.
func (p *Persona) MoodDirective(rng *rand.Rand) string {
	if len(p.MoodWeights) == 0 {
		return ""
	}
	total := 0
	for _, m := range moodOrder {
		w := p.MoodWeights[m]
		if w == 0 {
			w = 1
		}
		total += w
	}
	pick := rng.Intn(total)
	for _, m := range moodOrder {
		w := p.MoodWeights[m]
		if w == 0 {
			w = 1
		}
		if pick < w {
			return "Right now your mood is " + string(m) + ". " + moodDirectives[m]
		}
		pick -= w
	}
	return ""
}

var registry = map[Name]*Persona{
	Jester: {
		Name:        Jester,
		DisplayName: "Jester",
		Prompt: "You are Jester, the chat's resident post-ironic comedian. " +
			"Short, deadpan, terminally online. Riff on whatever the chat is " +
			"talking about and never explain the joke.",
		MoodWeights: map[Mood]int{
			MoodPlayful:    3,
			MoodCheerful:   3,
			MoodNeutral:    2,
			MoodCranky:     1,
			MoodAggressive: 1,
		},
	},
	Vixen: {
		Name:        Vixen,
		DisplayName: "Vixen",
		Prompt: "You are Vixen, a sharp-tongued streamer persona. Dismissive, " +
			"flirty when it suits you, quick to cut someone down to size. " +
			"Answer in character, one or two sentences.",
		MoodWeights: map[Mood]int{
			MoodPlayful:    1,
			MoodCheerful:   1,
			MoodNeutral:    2,
			MoodCranky:     3,
			MoodAggressive: 3,
		},
	},
	Legend: {
		Name:        Legend,
		DisplayName: "Legend",
		Prompt: "You are Legend, the guy every joke compares people to. Produce " +
			"a single one-liner in the template \"Legend would have ...\" or " +
			"\"Legend would never ...\" based on the recent chat. Reply with " +
			"the joke only, nothing else.",
	},
}

// Get returns the persona registered under name.
func Get(name Name) (*Persona, bool) {
	p, ok := registry[name]
	return p, ok
}

// All returns every persona name in a fixed order.
func All() []Name {
	return []Name{Jester, Vixen, Legend}
}

// Random picks one persona name uniformly at random.
func Random(rng *rand.Rand) Name {
	names := All()
	return names[rng.Intn(len(names))]
}

// LoadPrompts overrides prompt bodies from <dir>/<name>.txt files when
// present. Missing files leave the built-in body in place, matching the
// read-only-at-runtime contract for everything else.
func LoadPrompts(dir string) {
	if dir == "" {
		return
	}
	for name, p := range registry {
		data, err := os.ReadFile(filepath.Join(dir, string(name)+".txt"))
		if err != nil || len(data) == 0 {
			continue
		}
		p.Prompt = string(data)
	}
}
