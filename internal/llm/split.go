package llm

import "strings"

// fragmentDelimiter is the in-band marker the personas are instructed
// to emit between message fragments.
const fragmentDelimiter = "</br>"

// SplitReply splits a generated reply on the fragment delimiter. Parts
// are trimmed and empty fragments are dropped.
func SplitReply(text string) []string {
	parts := strings.Split(text, fragmentDelimiter)
	fragments := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			continue
		}
		fragments = append(fragments, p)
	}
	return fragments
}
