package game

import "time"

type HistoryType string

const (
	HistorySystem HistoryType = "system"
	HistoryPhase  HistoryType = "phase"
	HistoryTrade  HistoryType = "trade"
	HistoryRoll   HistoryType = "roll"
	HistoryMarket HistoryType = "market"
	HistoryPlayer HistoryType = "player"
)

type HistoryEntry struct {
	Type      HistoryType `json:"type"`
	Message   string      `json:"message"`
	Timestamp time.Time   `json:"timestamp"`
	Round     int         `json:"round"`
	Phase     Phase       `json:"phase"`
}

// history is a fixed-capacity ring; once full the oldest entry is overwritten.
type history struct {
	buf   []HistoryEntry
	start int
	size  int
}

func newHistory(limit int) *history {
	if limit <= 0 {
		limit = HistoryLimit
	}
	return &history{buf: make([]HistoryEntry, limit)}
}

func (h *history) add(e HistoryEntry) {
	if h.size < len(h.buf) {
		h.buf[(h.start+h.size)%len(h.buf)] = e
		h.size++
		return
	}
	h.buf[h.start] = e
	h.start = (h.start + 1) % len(h.buf)
}

func (h *history) len() int {
	return h.size
}

// list returns entries oldest first.
func (h *history) list() []HistoryEntry {
	out := make([]HistoryEntry, h.size)
	for i := 0; i < h.size; i++ {
		out[i] = h.buf[(h.start+i)%len(h.buf)]
	}
	return out
}
