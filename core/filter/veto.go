package filter

import (
	"bytes"
	"context"
	"strings"

	"github.com/bautismal/atmosphere/core/broadcaster"
)

// Veto builds a filter that drops messages for which reject returns true.
func Veto(reject func(broadcaster.Message) bool) broadcaster.Filter {
	return broadcaster.FilterFunc(func(_ context.Context, m broadcaster.Message) broadcaster.Result {
		if reject(m) {
			return broadcaster.Vetoed()
		}
		return broadcaster.Transformed(m)
	})
}

// VetoContains drops text messages containing any of words.
func VetoContains(caseInsensitive bool, words ...string) broadcaster.Filter {
	words = append([]string(nil), words...)
	if caseInsensitive {
		for i, w := range words {
			words[i] = strings.ToLower(w)
		}
	}
	return Veto(func(m broadcaster.Message) bool {
		if m.Type == broadcaster.BinaryMessage {
			return false
		}
		text := m.Text()
		if caseInsensitive {
			text = strings.ToLower(text)
		}
		for _, w := range words {
			if w != "" && strings.Contains(text, w) {
				return true
			}
		}
		return false
	})
}

// VetoPrefix drops messages whose payload starts with prefix.
func VetoPrefix(prefix []byte) broadcaster.Filter {
	return Veto(func(m broadcaster.Message) bool {
		return len(prefix) > 0 && bytes.HasPrefix(m.Payload, prefix)
	})
}

// VetoEmpty drops messages with an empty or whitespace-only payload.
func VetoEmpty() broadcaster.Filter {
	return Veto(func(m broadcaster.Message) bool {
		return len(bytes.TrimSpace(m.Payload)) == 0
	})
}

// MaxSize drops messages whose payload exceeds n bytes.
func MaxSize(n int) broadcaster.Filter {
	return Veto(func(m broadcaster.Message) bool {
		return len(m.Payload) > n
	})
}
