package allocation

type NotificationKind int

const (
	NotifyFocus NotificationKind = iota
	NotifyFocusCleared
	NotifyReasonRequired
	NotifyRowLocked
	NotifyRowUnlocked
	NotifyCleared
	NotifyCommitted
)

// Notification tells the UI layer about state it may want to reflect,
// such as scrolling the active cell into view or opening the reason dialog.
type Notification struct {
	Kind        NotificationKind
	Lot         LotID
	Destination DestinationID
	Field       Field
	Quantity    int
}

type Listener func(Notification)

type notifier struct {
	nextID    int
	listeners map[int]Listener
}

// Subscribe registers l and returns a function removing it.
func (n *notifier) Subscribe(l Listener) func() {
	if n.listeners == nil {
		n.listeners = make(map[int]Listener)
	}
	id := n.nextID
	n.nextID++
	n.listeners[id] = l
	return func() {
		delete(n.listeners, id)
	}
}

func (n *notifier) emit(ev Notification) {
	for _, l := range n.listeners {
		l(ev)
	}
}
