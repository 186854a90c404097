// Package view provides cursors over the bytes of an encoded message.
//
// Three backends share one contract: Slice borrows an in-memory region,
// Owned holds a region that decoded values may alias, and Stream pulls from
// an io.Reader through a fixed window.
package view

// View is a forward-only cursor over encoded bytes.
//
// ReadBytes returns at most n unread bytes without consuming them. The result
// is shorter than n only at the end of the data, and it is only valid until
// the next call on the view. ReadBytesOwned returns the same bytes in memory
// the caller may keep. Advance consumes exactly n bytes; n must not exceed
// what the preceding read returned.
type View interface {
	ReadBytes(n int) []byte
	ReadBytesOwned(n int) []byte
	Advance(n int)

	// Offset is the number of bytes consumed so far.
	Offset() int64
	// Err reports a read failure other than end of data.
	Err() error
}

// Window returns a view over payload, a span previously read from parent
// starting at parent offset start. The window keeps the retention mode of the
// parent: sub-slices of an Owned parent stay owned.
func Window(parent View, start int64, payload []byte) View {
	if _, ok := parent.(*Owned); ok {
		o := NewOwned(payload)
		o.base = start
		return o
	}
	s := NewSlice(payload)
	s.base = start
	return s
}
