// Package reqtoken tags asynchronous requests so that a response arriving
// after a newer request was issued can be recognised and dropped.
package reqtoken

import "sync/atomic"

type Token uint64

// Tracker hands out strictly increasing tokens. Only the most recently
// issued token is current. The zero value is ready to use.
type Tracker struct {
	last atomic.Uint64
}

func (t *Tracker) Next() Token {
	return Token(t.last.Add(1))
}

func (t *Tracker) IsCurrent(tok Token) bool {
	return tok != 0 && uint64(tok) == t.last.Load()
}

// Invalidate makes every outstanding token stale without issuing a new
// request.
func (t *Tracker) Invalidate() {
	t.last.Add(1)
}
