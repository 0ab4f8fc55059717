package sources

import "strings"

// JournalctlSource runs journalctl with user-supplied arguments, typically
// including -f to follow.
type JournalctlSource struct {
	*CommandSource
}

func NewJournalctlSource(name, args string) *JournalctlSource {
	return &JournalctlSource{
		CommandSource: NewCommandSource(name, "journalctl", strings.Fields(args)...),
	}
}
