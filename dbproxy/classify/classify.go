// Package classify implements the DB-mode wire sniffing and query
// classification: identify PostgreSQL/MySQL/Redis from a connection's
// first bytes, and classify a SQL statement as
// Read/Write/TransactionBegin/TransactionEnd/SessionVar/Other so the
// session table (dbproxy/session) and the route table can make
// stickiness and read/write-split decisions.
package classify

import (
	"bytes"
	"strings"

	"github.com/Megallm/ultrabalancer-sub000/core/registry"
	liberr "github.com/Megallm/ultrabalancer-sub000/errors"
)

// ErrUnknownProtocol is returned when the first bytes match none of the
// three sniffed wire formats.
var ErrUnknownProtocol = liberr.ErrCodeProtocolSniff.Error(nil)

// pgProtocolVersion3 is the big-endian protocol version field ("3.0") in a
// PostgreSQL StartupMessage, found at byte offset 4 after the 4-byte
// message length.
var pgProtocolVersion3 = []byte{0x00, 0x03, 0x00, 0x00}

// SniffProtocol classifies a connection from its first bytes (the
// listener peeks these without consuming them).
//
//   - PostgreSQL: a StartupMessage leads with a 4-byte big-endian length
//     whose high three bytes are zero for any sane message size, followed
//     by the protocol version 3.0 (0x00030000).
//   - MySQL: a 4-byte packet header (24-bit little-endian length,
//     sequence 0) followed by protocol version byte 9 or 10 — the shape
//     of the server greeting, seen when the proxy sniffs the backend side
//     of a MySQL pair (the client speaks second in MySQL).
//   - Redis (RESP): the first byte is one of the five RESP type markers
//     '*', '+', '-', ':' or '$'.
func SniffProtocol(first []byte) (registry.Protocol, error) {
	if len(first) >= 8 && first[0] == 0 && first[1] == 0 && first[2] == 0 &&
		bytes.Equal(first[4:8], pgProtocolVersion3) {
		return registry.ProtocolPostgres, nil
	}
	if len(first) >= 5 && first[3] == 0 && (first[4] == 9 || first[4] == 10) {
		if length := int(first[0]) | int(first[1])<<8 | int(first[2])<<16; length >= 1 {
			return registry.ProtocolMySQL, nil
		}
	}
	if len(first) >= 1 {
		switch first[0] {
		case '*', '+', '-', ':', '$':
			return registry.ProtocolRedis, nil
		}
	}
	return registry.ProtocolUnset, ErrUnknownProtocol
}

// Command is the classified query kind.
type Command int

const (
	CommandOther Command = iota
	CommandRead
	CommandWrite
	CommandTransactionBegin
	CommandTransactionEnd
	CommandSessionVar
)

func (c Command) String() string {
	switch c {
	case CommandRead:
		return "read"
	case CommandWrite:
		return "write"
	case CommandTransactionBegin:
		return "transaction_begin"
	case CommandTransactionEnd:
		return "transaction_end"
	case CommandSessionVar:
		return "session_var"
	default:
		return "other"
	}
}

var readCommands = map[string]bool{
	"SELECT": true, "SHOW": true, "EXPLAIN": true, "DESCRIBE": true, "DESC": true,
}

var writeCommands = map[string]bool{
	"INSERT": true, "UPDATE": true, "DELETE": true, "REPLACE": true,
	"CREATE": true, "DROP": true, "ALTER": true, "TRUNCATE": true,
}

var beginCommands = map[string]bool{
	"BEGIN": true, "START": true, // "START TRANSACTION"
}

var endCommands = map[string]bool{
	"COMMIT": true, "ROLLBACK": true, "END": true,
}

var sessionVarCommands = map[string]bool{
	"SET": true, "USE": true,
}

// Classify detects the leading command keyword of a SQL statement
// (normalised to upper case, leading whitespace/comments trimmed) and
// maps it to a Command.
func Classify(query string) Command {
	cmd := leadingCommand(query)
	switch {
	case readCommands[cmd]:
		return CommandRead
	case writeCommands[cmd]:
		return CommandWrite
	case beginCommands[cmd]:
		return CommandTransactionBegin
	case endCommands[cmd]:
		return CommandTransactionEnd
	case sessionVarCommands[cmd]:
		return CommandSessionVar
	default:
		return CommandOther
	}
}

func leadingCommand(query string) string {
	normalized := strings.TrimSpace(strings.ToUpper(query))
	for strings.HasPrefix(normalized, "--") {
		if idx := strings.IndexByte(normalized, '\n'); idx >= 0 {
			normalized = strings.TrimSpace(normalized[idx+1:])
		} else {
			return ""
		}
	}
	words := strings.Fields(normalized)
	if len(words) == 0 {
		return ""
	}
	return strings.TrimRight(words[0], ";")
}

// IsTransactional reports whether cmd keeps a session pinned to its
// current backend: a session inside BEGIN...COMMIT must not be
// load-balanced mid-transaction.
func IsTransactional(cmd Command) bool {
	return cmd == CommandTransactionBegin
}
