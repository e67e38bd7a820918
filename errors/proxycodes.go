/*
 * MIT License
 *
 * Copyright (c) 2020 Nicolas JUHEL
 *
 * Permission is hereby granted, free of charge, to any person obtaining a copy
 * of this software and associated documentation files (the "Software"), to deal
 * in the Software without restriction, including without limitation the rights
 * to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
 * copies of the Software, and to permit persons to whom the Software is
 * furnished to do so, subject to the following conditions:
 *
 * The above copyright notice and this permission notice shall be included in all
 * copies or substantial portions of the Software.
 *
 * THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
 * IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
 * FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
 * AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
 * LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
 * OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN THE
 * SOFTWARE.
 *
 *
 */

package errors

// Codes reserved for the dataplane core. These sit above the HTTP-shaped
// range the rest of this package predefines, so they never collide with
// NotFoundError/InternalError/etc.
const (
	// ErrCodeBindFailed covers listener bind/listen failures at startup.
	ErrCodeBindFailed CodeError = 10100 + iota

	// ErrCodeInvalidAlgorithm covers an unknown selection-algorithm name in config.
	ErrCodeInvalidAlgorithm

	// ErrCodeUnresolvedBackend covers a route target or preferred backend id
	// that does not exist in the registry.
	ErrCodeUnresolvedBackend

	// ErrCodePoolExhausted covers a DB connection pool that cannot open a new
	// connection and has none idle.
	ErrCodePoolExhausted

	// ErrCodeStickyTableFull covers a sticky table whose every entry is
	// still referenced when an eviction is required.
	ErrCodeStickyTableFull

	// ErrCodeProtocolSniff covers a DB-mode connection whose first bytes
	// never resolve to PostgreSQL, MySQL or Redis.
	ErrCodeProtocolSniff

	// ErrCodeConfigInvalid covers a failed validator.v10 pass over a config struct.
	ErrCodeConfigInvalid

	// ErrCodeSessionTableFull covers a DB session table that is full while
	// every session is mid-transaction, so none can be evicted. Kept
	// distinct from ErrCodePoolExhausted so callers can surface it as a
	// connection-refused equivalent rather than a misleading 5xx.
	ErrCodeSessionTableFull
)

func init() {
	RegisterIdFctMessage(ErrCodeBindFailed, func(code CodeError) string {
		switch code {
		case ErrCodeBindFailed:
			return "listener: bind or listen failed"
		case ErrCodeInvalidAlgorithm:
			return "balancer: unknown selection algorithm"
		case ErrCodeUnresolvedBackend:
			return "registry: backend reference does not resolve"
		case ErrCodePoolExhausted:
			return "pool: no idle connection and max_connections reached"
		case ErrCodeStickyTableFull:
			return "sticky: table full of referenced entries"
		case ErrCodeProtocolSniff:
			return "classify: unrecognised wire protocol on first bytes"
		case ErrCodeConfigInvalid:
			return "config: validation failed"
		case ErrCodeSessionTableFull:
			return "session: table full and every session is transactional"
		default:
			return UnknownMessage
		}
	})
}
