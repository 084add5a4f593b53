package animation

import (
	"bytes"
	"errors"
)

var errOverBudget = errors.New("output over size budget")

// budgetWriter buffers encoded output and fails the first write that would
// take it past limit. n counts every byte offered, including the rejected
// write. It is the flushing byte writer the GIF stream writes to directly.
type budgetWriter struct {
	buf   bytes.Buffer
	limit int64
	n     int64
}

func (w *budgetWriter) Write(p []byte) (int, error) {
	w.n += int64(len(p))
	if w.exceeded() {
		w.buf = bytes.Buffer{}
		return 0, errOverBudget
	}
	return w.buf.Write(p)
}

func (w *budgetWriter) WriteByte(c byte) error {
	w.n++
	if w.exceeded() {
		w.buf = bytes.Buffer{}
		return errOverBudget
	}
	return w.buf.WriteByte(c)
}

func (w *budgetWriter) Flush() error {
	if w.exceeded() {
		return errOverBudget
	}
	return nil
}

func (w *budgetWriter) exceeded() bool {
	return w.limit > 0 && w.n > w.limit
}
