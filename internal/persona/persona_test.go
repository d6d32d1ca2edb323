package persona

import (
	"math/rand"
	"strings"
	"testing"
)

func TestGetKnownPersonas(t *testing.T) {
	for _, name := range All() {
		p, ok := Get(name)
		if !ok {
			t.Fatalf("persona %q not registered", name)
		}
		if p.Prompt == "" {
			t.Errorf("persona %q has empty prompt", name)
		}
	}
	if _, ok := Get("nobody"); ok {
		t.Error("unknown persona should not resolve")
	}
}

func TestMoodDirectiveWithoutTable(t *testing.T) {
	p, _ := Get(Legend)
	if got := p.MoodDirective(rand.New(rand.NewSource(1))); got != "" {
		t.Errorf("expected empty directive for persona without moods, got %q", got)
	}
}

func TestMoodDirectiveDrawsFromTable(t *testing.T) {
	p, _ := Get(Jester)
	rng := rand.New(rand.NewSource(42))
	seen := map[string]bool{}
	for i := 0; i < 200; i++ {
		d := p.MoodDirective(rng)
		if d == "" {
			t.Fatal("expected non-empty mood directive")
		}
		if !strings.HasPrefix(d, "Right now your mood is ") {
			t.Fatalf("unexpected directive format: %q", d)
		}
		seen[d] = true
	}
	// With weights 3/3/2/1/1 every mood should show up over 200 draws.
	if len(seen) != len(moodOrder) {
		t.Errorf("expected all %d moods drawn, got %d", len(moodOrder), len(seen))
	}
}

func TestMoodWeightsMatchConfiguration(t *testing.T) {
	jester, _ := Get(Jester)
	if jester.MoodWeights[MoodPlayful] != 3 || jester.MoodWeights[MoodAggressive] != 1 {
		t.Errorf("unexpected jester weights: %v", jester.MoodWeights)
	}
	vixen, _ := Get(Vixen)
	if vixen.MoodWeights[MoodAggressive] != 3 || vixen.MoodWeights[MoodPlayful] != 1 {
		t.Errorf("unexpected vixen weights: %v", vixen.MoodWeights)
	}
}

func TestRandomReturnsRegisteredPersona(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for i := 0; i < 50; i++ {
		if _, ok := Get(Random(rng)); !ok {
			t.Fatal("Random returned unregistered persona")
		}
	}
}
