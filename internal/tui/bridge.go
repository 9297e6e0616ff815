package tui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/Sternrassler/marvel-client/pkg/marvel"
	"github.com/Sternrassler/marvel-client/pkg/pagination"
)

// eventMsg carries a controller change event into the Bubble Tea loop.
type eventMsg struct {
	event pagination.Event
}

// characterMsg opens the detail view.
type characterMsg struct {
	character marvel.Character
}

// Bridge forwards controller callbacks to the program as messages.
// It implements pagination.Listener and pagination.Navigator.
type Bridge struct {
	msgs chan tea.Msg
	done chan struct{}
	once sync.Once
}

// NewBridge creates a bridge with the given message buffer.
func NewBridge(buffer int) *Bridge {
	if buffer < 0 {
		buffer = 0
	}
	return &Bridge{
		msgs: make(chan tea.Msg, buffer),
		done: make(chan struct{}),
	}
}

// OnChange implements pagination.Listener.
func (b *Bridge) OnChange(e pagination.Event) {
	b.send(eventMsg{event: e})
}

// ShowCharacter implements pagination.Navigator.
func (b *Bridge) ShowCharacter(c marvel.Character) {
	b.send(characterMsg{character: c})
}

// Close releases any callback blocked on a full buffer. Messages sent after
// Close are dropped.
func (b *Bridge) Close() {
	b.once.Do(func() { close(b.done) })
}

// send blocks until the program takes the message or the bridge is closed.
func (b *Bridge) send(msg tea.Msg) {
	select {
	case <-b.done:
		return
	default:
	}
	select {
	case b.msgs <- msg:
	case <-b.done:
	}
}

// wait returns a command that delivers the next message.
func (b *Bridge) wait() tea.Cmd {
	return func() tea.Msg {
		select {
		case msg := <-b.msgs:
			return msg
		case <-b.done:
			return nil
		}
	}
}
