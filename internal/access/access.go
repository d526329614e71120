// Package access gates privileged operations behind a static allow-list of
// transport identities.
package access

// List is an immutable allow-list. The zero value authorizes nobody.
type List struct {
	ids map[int64]struct{}
}

// New builds a List from the configured identities. Duplicates are ignored.
func New(ids []int64) *List {
	set := make(map[int64]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return &List{ids: set}
}

// Authorize reports whether identity may perform privileged operations.
func (l *List) Authorize(identity int64) bool {
	if l == nil {
		return false
	}
	_, ok := l.ids[identity]
	return ok
}

// Len returns the number of distinct authorized identities.
func (l *List) Len() int {
	if l == nil {
		return 0
	}
	return len(l.ids)
}
