// Package triage holds the ordered rule chain that maps a message to a mailbox action.
package triage

import "fmt"

type Kind int

const (
	KindNone Kind = iota
	KindMove
	KindTrash
)

func (k Kind) String() string {
	switch k {
	case KindMove:
		return "move"
	case KindTrash:
		return "trash"
	default:
		return "none"
	}
}

// Action describes a mailbox mutation. It is interpreted by the executor; building one
// has no side effects. From and To are label names, set only for KindMove.
type Action struct {
	Kind     Kind
	From     string
	To       string
	MarkRead bool
}

func MoveTo(from, to string, markRead bool) Action {
	return Action{Kind: KindMove, From: from, To: to, MarkRead: markRead}
}

// Trash is MoveTo(inbox, trash, true) once the executor knows the mailbox's names.
func Trash() Action { return Action{Kind: KindTrash, MarkRead: true} }

func NoAction() Action { return Action{Kind: KindNone} }

func (a Action) String() string {
	switch a.Kind {
	case KindMove:
		return fmt.Sprintf("MoveTo(%s, %s, markRead=%t)", a.From, a.To, a.MarkRead)
	case KindTrash:
		return "Trash"
	default:
		return "NoAction"
	}
}
