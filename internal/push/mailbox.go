package push

import (
	"log"

	commands "lumina-bridge/internal/commands/domain"
	"lumina-bridge/internal/observability/metrics"
)

const DefaultMailboxSize = 32

// Mailbox is a bounded FIFO between the transport callback and the loop.
type Mailbox struct {
	ch     chan commands.Command
	logger *log.Logger
}

// NewMailbox constructs a mailbox holding at most size commands.
func NewMailbox(size int, logger *log.Logger) *Mailbox {
	if size <= 0 {
		size = DefaultMailboxSize
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Mailbox{ch: make(chan commands.Command, size), logger: logger}
}

// Offer enqueues cmd without blocking. A full mailbox drops cmd.
func (m *Mailbox) Offer(cmd commands.Command) bool {
	if m == nil {
		return false
	}
	select {
	case m.ch <- cmd:
		metrics.SetMailboxDepth(m.Len())
		return true
	default:
		metrics.IncMailboxDrop()
		m.logger.Printf("push mailbox full: dropped id=%s intent=%s", cmd.ID, cmd.Intent)
		return false
	}
}

// Drain returns up to limit queued commands in arrival order.
func (m *Mailbox) Drain(limit int) []commands.Command {
	if m == nil || limit <= 0 {
		return nil
	}
	var out []commands.Command
	defer func() { metrics.SetMailboxDepth(m.Len()) }()
	for len(out) < limit {
		select {
		case cmd := <-m.ch:
			out = append(out, cmd)
		default:
			return out
		}
	}
	return out
}

// Len returns the number of queued commands.
func (m *Mailbox) Len() int {
	if m == nil {
		return 0
	}
	return len(m.ch)
}
