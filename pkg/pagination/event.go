package pagination

import "github.com/Sternrassler/marvel-client/pkg/marvel"

// EventKind tells the presentation layer how to update itself.
type EventKind int

const (
	// EventLoading asks for a loading indicator and a locked list.
	EventLoading EventKind = iota
	// EventInitial asks for a full reload.
	EventInitial
	// EventInserted asks for rows to be inserted at Event.Indices.
	EventInserted
	// EventFailed asks for an error to be shown and the list unlocked.
	EventFailed
)

func (k EventKind) String() string {
	switch k {
	case EventLoading:
		return "loading"
	case EventInitial:
		return "initial"
	case EventInserted:
		return "inserted"
	case EventFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Event is a single change notification.
type Event struct {
	Kind EventKind

	// Offset of the page the event refers to. Zero for the first page,
	// which lets a presentation tell a full-screen spinner from a footer one.
	Offset int

	// Indices are the newly inserted positions, in order (EventInitial, EventInserted).
	Indices []int

	// Items are the characters at Indices.
	Items []marvel.Character

	// Err is the fetch error (EventFailed).
	Err error
}

// Listener receives change events on the controller's loop goroutine.
type Listener interface {
	OnChange(Event)
}

// ListenerFunc adapts a function to Listener.
type ListenerFunc func(Event)

// OnChange implements Listener.
func (f ListenerFunc) OnChange(e Event) { f(e) }

// Navigator receives the character picked by SelectCharacter.
type Navigator interface {
	ShowCharacter(marvel.Character)
}

// NavigatorFunc adapts a function to Navigator.
type NavigatorFunc func(marvel.Character)

// ShowCharacter implements Navigator.
func (f NavigatorFunc) ShowCharacter(c marvel.Character) { f(c) }
