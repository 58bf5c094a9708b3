package mcpserver

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
)

// maxMessageBytes bounds a single request. Tool arguments here are tiny.
const maxMessageBytes = 1 << 20

var errMessageTooLarge = errors.New("message exceeds size limit")

// readMessage reads one request in either Content-Length framing or as a
// bare JSON value spread over one or more lines. jsonLine reports which.
func readMessage(r *bufio.Reader) (payload []byte, jsonLine bool, err error) {
	line, err := r.ReadString('\n')
	if err != nil {
		if err == io.EOF && line == "" {
			return nil, false, io.EOF
		}
		return nil, false, err
	}

	// Blank lines between messages are ignored.
	for strings.TrimSpace(line) == "" {
		if line, err = r.ReadString('\n'); err != nil {
			if err == io.EOF && strings.TrimSpace(line) == "" {
				return nil, false, io.EOF
			}
			return nil, false, err
		}
	}

	if trimmed := strings.TrimSpace(line); strings.HasPrefix(trimmed, "{") || strings.HasPrefix(trimmed, "[") {
		payload, err := readJSONLines(r, line)
		return payload, true, err
	}

	contentLength := -1
	for {
		trimmed := strings.TrimSpace(line)
		if trimmed == "" {
			break
		}
		if key, value, ok := strings.Cut(trimmed, ":"); ok && strings.EqualFold(strings.TrimSpace(key), "Content-Length") {
			parsed, parseErr := strconv.Atoi(strings.TrimSpace(value))
			if parseErr != nil || parsed < 0 {
				return nil, false, fmt.Errorf("invalid Content-Length: %q", strings.TrimSpace(value))
			}
			contentLength = parsed
		}
		if line, err = r.ReadString('\n'); err != nil {
			return nil, false, err
		}
	}

	if contentLength < 0 {
		return nil, false, fmt.Errorf("missing Content-Length header")
	}
	if contentLength > maxMessageBytes {
		return nil, false, errMessageTooLarge
	}

	payload = make([]byte, contentLength)
	if _, err := io.ReadFull(r, payload); err != nil {
		return nil, false, err
	}
	return payload, false, nil
}

func readJSONLines(r *bufio.Reader, first string) ([]byte, error) {
	buf := bytes.NewBufferString(first)
	for !json.Valid(bytes.TrimSpace(buf.Bytes())) {
		if buf.Len() > maxMessageBytes {
			return nil, errMessageTooLarge
		}
		line, err := r.ReadString('\n')
		if err != nil {
			return nil, err
		}
		buf.WriteString(line)
	}
	return bytes.TrimSpace(buf.Bytes()), nil
}

// writeMessage answers in the framing the client used.
func writeMessage(w *bufio.Writer, payload []byte, jsonLine bool) error {
	if jsonLine {
		if _, err := w.Write(payload); err != nil {
			return err
		}
		if err := w.WriteByte('\n'); err != nil {
			return err
		}
		return w.Flush()
	}
	if _, err := fmt.Fprintf(w, "Content-Length: %d\r\n\r\n", len(payload)); err != nil {
		return err
	}
	if _, err := w.Write(payload); err != nil {
		return err
	}
	return w.Flush()
}
