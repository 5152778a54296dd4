// Package frame splits a byte stream into newline-delimited frames,
// tolerating frame boundaries that fall anywhere inside a read chunk.
package frame

import "bytes"

// Reader accumulates raw chunks and yields complete lines. The trailing
// incomplete fragment, if any, is retained and prefixed onto the next chunk.
// A Reader is not safe for concurrent use; each stream gets its own.
type Reader struct {
	buf []byte
}

// Feed appends chunk to the internal buffer and returns every complete line
// found, in order, with the line terminator stripped. A trailing '\r' is
// stripped as well. Empty lines are skipped: they carry no frame.
func (r *Reader) Feed(chunk []byte) [][]byte {
	r.buf = append(r.buf, chunk...)

	var lines [][]byte
	for {
		i := bytes.IndexByte(r.buf, '\n')
		if i < 0 {
			break
		}
		line := r.buf[:i]
		if n := len(line); n > 0 && line[n-1] == '\r' {
			line = line[:n-1]
		}
		if len(line) > 0 {
			cp := make([]byte, len(line))
			copy(cp, line)
			lines = append(lines, cp)
		}
		r.buf = r.buf[i+1:]
	}

	// Reclaim the backing array once fully drained so long-lived sessions
	// don't pin large read buffers.
	if len(r.buf) == 0 {
		r.buf = nil
	}
	return lines
}

// Pending reports the size of the retained incomplete fragment.
func (r *Reader) Pending() int {
	return len(r.buf)
}
