package classify

import (
	"encoding/binary"

	"github.com/Megallm/ultrabalancer-sub000/core/registry"
)

// ErrNoQuery is returned when a frame parses cleanly but carries no
// query text (e.g. a Parse/Bind extended-protocol message, a MySQL
// COM_PING, a Redis command with no bulk-string argument).
var ErrNoQuery = ErrUnknownProtocol

// ExtractQuery pulls the query text out of one protocol frame, per the
// wire format the sniffed protocol uses.
func ExtractQuery(proto registry.Protocol, frame []byte) (string, error) {
	switch proto {
	case registry.ProtocolPostgres:
		return extractPostgres(frame)
	case registry.ProtocolMySQL:
		return extractMySQL(frame)
	case registry.ProtocolRedis:
		return extractRedis(frame)
	default:
		return "", ErrUnknownProtocol
	}
}

// extractPostgres handles the simple-query message: type byte 'Q', a
// 4-byte big-endian length covering itself plus the NUL-terminated query.
func extractPostgres(frame []byte) (string, error) {
	if len(frame) < 6 || frame[0] != 'Q' {
		return "", ErrNoQuery
	}
	length := binary.BigEndian.Uint32(frame[1:5])
	if length < 5 || int(length)+1 > len(frame) {
		return "", ErrNoQuery
	}
	body := frame[5 : 1+length]
	// strip the trailing NUL
	if n := len(body); n > 0 && body[n-1] == 0 {
		body = body[:n-1]
	}
	return string(body), nil
}

// extractMySQL handles COM_QUERY: a 4-byte packet header (24-bit
// little-endian length, sequence), command byte 0x03, then the query.
func extractMySQL(frame []byte) (string, error) {
	if len(frame) < 6 {
		return "", ErrNoQuery
	}
	length := int(frame[0]) | int(frame[1])<<8 | int(frame[2])<<16
	if frame[4] != 0x03 || length < 2 {
		return "", ErrNoQuery
	}
	end := 4 + length
	if end > len(frame) {
		end = len(frame)
	}
	return string(frame[5:end]), nil
}

// extractRedis walks a RESP array to reconstruct the command line: every
// bulk-string element is appended, space-separated, so "SET k v" comes
// back the way the sticky/classification keyword matcher expects.
func extractRedis(frame []byte) (string, error) {
	if len(frame) == 0 || frame[0] != '*' {
		return "", ErrNoQuery
	}
	pos := 0
	count, pos, ok := respLine(frame, pos)
	if !ok {
		return "", ErrNoQuery
	}
	n := respInt(count)
	if n <= 0 {
		return "", ErrNoQuery
	}

	out := make([]byte, 0, len(frame))
	for i := 0; i < n; i++ {
		if pos >= len(frame) || frame[pos] != '$' {
			break
		}
		var hdr []byte
		hdr, pos, ok = respLine(frame, pos)
		if !ok {
			break
		}
		size := respInt(hdr)
		if size < 0 || pos+size > len(frame) {
			break
		}
		if len(out) > 0 {
			out = append(out, ' ')
		}
		out = append(out, frame[pos:pos+size]...)
		pos += size + 2 // skip the \r\n after the bulk payload
	}
	if len(out) == 0 {
		return "", ErrNoQuery
	}
	return string(out), nil
}

// respLine returns the bytes between the type marker at pos and the next
// CRLF, plus the position just past that CRLF.
func respLine(frame []byte, pos int) ([]byte, int, bool) {
	if pos >= len(frame) {
		return nil, pos, false
	}
	start := pos + 1
	for i := start; i+1 < len(frame); i++ {
		if frame[i] == '\r' && frame[i+1] == '\n' {
			return frame[start:i], i + 2, true
		}
	}
	return nil, pos, false
}

func respInt(b []byte) int {
	n := 0
	neg := false
	for i, c := range b {
		if i == 0 && c == '-' {
			neg = true
			continue
		}
		if c < '0' || c > '9' {
			return -1
		}
		n = n*10 + int(c-'0')
	}
	if neg {
		return -n
	}
	return n
}
