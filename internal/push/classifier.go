package push

import "strings"

// urgentKeywords mark security-sensitive commands that skip throttling.
var urgentKeywords = []string{"LOCK", "WIPE", "EMERGENCY", "SECURITY"}

// Classify maps a message type to its priority. Matching is a
// case-insensitive substring test; the first matching rule wins:
//
//  1. LOCK, WIPE, EMERGENCY or SECURITY: urgent
//  2. CONFIG or APP, or UPDATE without STATUS: normal
//  3. anything else: routine
//
// A blank type is normal.
func Classify(messageType string) Priority {
	t := strings.ToUpper(strings.TrimSpace(messageType))
	if t == "" {
		return PriorityNormal
	}

	for _, kw := range urgentKeywords {
		if strings.Contains(t, kw) {
			return PriorityUrgent
		}
	}

	if strings.Contains(t, "CONFIG") || strings.Contains(t, "APP") {
		return PriorityNormal
	}
	if strings.Contains(t, "UPDATE") && !strings.Contains(t, "STATUS") {
		return PriorityNormal
	}

	return PriorityRoutine
}

// ClassifyMessage classifies m by its type. A nil message is normal.
func ClassifyMessage(m *Message) Priority {
	if m == nil {
		return PriorityNormal
	}
	return Classify(m.MessageType)
}
