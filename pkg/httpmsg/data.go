package httpmsg

import "strings"

// Data is a byte buffer carrying a normalized content type. It either
// owns its bytes or aliases a parent Data's bytes (used for multipart
// parts so splitting never copies the body).
//
// Spec's HttpData is reference-counted explicitly; here the parent
// reference alone is enough to keep the underlying array alive for as
// long as any child slice references it, since Go's garbage collector
// already implements that lifetime rule for slices sharing a backing
// array — there is nothing for an explicit refcount to add.
type Data struct {
	ContentType string
	Bytes       []byte
	parent      *Data
}

// NewData wraps owned bytes with a normalized content type (lower-cased,
// directives such as ";boundary=..." stripped).
func NewData(contentType string, b []byte) *Data {
	return &Data{ContentType: NormalizeContentType(contentType), Bytes: b}
}

// NewChildData creates a Data whose Bytes alias a slice of parent's
// Bytes, recording parent so callers can discover the owning buffer.
func NewChildData(parent *Data, contentType string, b []byte) *Data {
	return &Data{ContentType: NormalizeContentType(contentType), Bytes: b, parent: parent}
}

// Parent returns the Data this one was split from, or nil if it owns
// its bytes outright.
func (d *Data) Parent() *Data { return d.parent }

// Size returns the number of bytes.
func (d *Data) Size() int { return len(d.Bytes) }

// NormalizeContentType lower-cases a Content-Type value and strips any
// trailing ";directives", keeping only the primary media type.
func NormalizeContentType(ct string) string {
	if i := strings.IndexByte(ct, ';'); i >= 0 {
		ct = ct[:i]
	}
	return strings.ToLower(strings.TrimSpace(ct))
}

// Queue is a FIFO of Data handles with O(1) push/pull. It is not
// thread-safe; callers serialize access externally (the reactor mutex,
// in the transport layer).
type Queue struct {
	items []*Data
}

// Push appends d to the tail of the queue.
func (q *Queue) Push(d *Data) { q.items = append(q.items, d) }

// Pull removes and returns the item at the head of the queue, or nil
// if the queue is empty.
func (q *Queue) Pull() *Data {
	if len(q.items) == 0 {
		return nil
	}
	d := q.items[0]
	q.items[0] = nil
	q.items = q.items[1:]
	return d
}

// Len reports the number of queued items.
func (q *Queue) Len() int { return len(q.items) }

// Purge discards every queued item.
func (q *Queue) Purge() { q.items = nil }
