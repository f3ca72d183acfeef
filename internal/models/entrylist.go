package models

// EntryList is an ordered collection of draft entries with id lookup.
// Iteration order is insertion order; UI ordering depends on it, so the
// ordering is explicit rather than an accident of map iteration.
type EntryList struct {
	entries []*DraftEntry
	index   map[string]int
}

func NewEntryList(entries ...*DraftEntry) *EntryList {
	l := &EntryList{index: make(map[string]int, len(entries))}
	for _, e := range entries {
		l.Add(e)
	}
	return l
}

// Add appends the entry; an entry with a duplicate recipient id replaces the
// original in place, keeping its position.
func (l *EntryList) Add(e *DraftEntry) {
	if i, ok := l.index[e.RecipientID]; ok {
		l.entries[i] = e
		return
	}
	l.index[e.RecipientID] = len(l.entries)
	l.entries = append(l.entries, e)
}

func (l *EntryList) Get(recipientID string) (*DraftEntry, bool) {
	i, ok := l.index[recipientID]
	if !ok {
		return nil, false
	}
	return l.entries[i], true
}

func (l *EntryList) Remove(recipientID string) {
	i, ok := l.index[recipientID]
	if !ok {
		return
	}
	l.entries = append(l.entries[:i], l.entries[i+1:]...)
	delete(l.index, recipientID)
	for j := i; j < len(l.entries); j++ {
		l.index[l.entries[j].RecipientID] = j
	}
}

// All returns the entries in insertion order. The slice is shared; callers
// must not reorder it.
func (l *EntryList) All() []*DraftEntry {
	return l.entries
}

func (l *EntryList) Len() int {
	return len(l.entries)
}

// Pending returns entries that have not been sent and have a resolvable
// destination for their recipient mode. Entries without an address never
// enter a batch, they are neither attempted nor failed.
func (l *EntryList) Pending() []*DraftEntry {
	var pending []*DraftEntry
	for _, e := range l.entries {
		if !e.Sent && e.Destination() != "" {
			pending = append(pending, e)
		}
	}
	return pending
}
