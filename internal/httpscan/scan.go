package httpscan

import (
	"bytes"
	"errors"
	"io"
	"strconv"
	"strings"
)

// ChunkSize is the size of a single read while receiving a message.
const ChunkSize = 4096

const (
	// CRLF terminates a header line.
	CRLF = "\r\n"

	headerEnd     = "\r\n\r\n"
	contentLength = "Content-Length: "
)

// HeaderField returns the text following the first occurrence of name in buf,
// up to the next occurrence of term (or the end of buf if term never
// appears). It returns "" if name does not occur.
func HeaderField(buf []byte, name, term string) string {
	i := bytes.Index(buf, []byte(name))
	if i < 0 {
		return ""
	}
	rest := buf[i+len(name):]
	if j := bytes.Index(rest, []byte(term)); j >= 0 {
		rest = rest[:j]
	}
	return string(rest)
}

// RequestLine returns the method and target of the request line in msg.
func RequestLine(msg []byte) (method, target string) {
	return HeaderField(msg, "", " "), HeaderField(msg, " ", " ")
}

// HeaderLength returns the length of the header in msg including its
// terminating blank line, or -1 if the terminator has not arrived.
func HeaderLength(msg []byte) int {
	i := bytes.Index(msg, []byte(headerEnd))
	if i < 0 {
		return -1
	}
	return i + len(headerEnd)
}

// Complete reports whether msg holds a whole message: a full header and at
// least Content-Length body bytes behind it.
func Complete(msg []byte) bool {
	n := HeaderLength(msg)
	return n >= 0 && len(msg) >= n+parseContentLength(msg[:n])
}

// ReceiveMessage reads one HTTP message from r.
//
// It reads in ChunkSize pieces until r reports EOF, or until the header
// terminator has been seen and at least Content-Length body bytes (zero when
// the field is missing or malformed) follow it. A peer that does neither
// blocks ReceiveMessage indefinitely.
//
// EOF, or a zero-length read, is not an error: the bytes received so far are returned with a nil
// error, possibly empty. Any other read error is returned along with the
// bytes received before it.
func ReceiveMessage(r io.Reader) ([]byte, error) {
	var (
		msg     []byte
		need    = -1
		scanned int
	)
	chunk := make([]byte, ChunkSize)
	for {
		n, err := r.Read(chunk)
		msg = append(msg, chunk[:n]...)

		if need < 0 && n > 0 {
			// Back up so a terminator split across reads is still found.
			from := max(scanned-len(headerEnd)+1, 0)
			if i := bytes.Index(msg[from:], []byte(headerEnd)); i >= 0 {
				hdrLen := from + i + len(headerEnd)
				need = hdrLen + parseContentLength(msg[:hdrLen])
			}
			scanned = len(msg)
		}

		if need >= 0 && len(msg) >= need {
			return msg, nil
		}
		if errors.Is(err, io.EOF) || (n == 0 && err == nil) {
			return msg, nil
		}
		if err != nil {
			return msg, err
		}
	}
}

func parseContentLength(header []byte) int {
	v := HeaderField(header, contentLength, CRLF)
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil || n < 0 {
		return 0
	}
	return n
}
