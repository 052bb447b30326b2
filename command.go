package faktory

import (
	"context"
	"encoding/json"
)

// Command verbs understood by the server.
const (
	verbBatchNew    = "BATCH NEW"
	verbBatchCommit = "BATCH COMMIT"
	verbBatchOpen   = "BATCH OPEN"
	verbBatchStatus = "BATCH STATUS"
	verbPush        = "PUSH"
	verbQueuePause  = "QUEUE PAUSE"
	verbQueueResume = "QUEUE RESUME"
	verbInfo        = "INFO"
)

// Command is a single tagged, single-purpose request sent to the server. The
// set of commands is closed: each constructor below produces one verb with its
// own payload encoding, and every command is dispatched through the same
// Conn.Call round-trip.
type Command struct {
	// Verb is the wire command tag.
	Verb string

	// Body is the encoded payload, nil for bodyless commands.
	Body []byte
}

// Conn is a single stateful channel to the job server. A Conn carries at most
// one in-flight command at a time; exclusive ownership for the duration of a
// round-trip is arranged by the connection pool, never by Conn itself.
//
// Call sends one command and blocks for its reply. A nil byte slice with a nil
// error is a bare acknowledgement (+OK on the wire). A server error reply
// surfaces as *ProtocolError; transport failures surface as ordinary errors.
type Conn interface {
	Call(ctx context.Context, cmd Command) ([]byte, error)
	Close() error
}

// Dialer produces a ready-to-use Conn. The pool dials lazily, on first
// checkout of an empty slot.
type Dialer func(ctx context.Context) (Conn, error)

func newBatchCmd(payload []byte) Command {
	return Command{Verb: verbBatchNew, Body: payload}
}

func commitBatchCmd(bid string) Command {
	return Command{Verb: verbBatchCommit, Body: []byte(bid)}
}

func openBatchCmd(bid string) Command {
	return Command{Verb: verbBatchOpen, Body: []byte(bid)}
}

func statusBatchCmd(bid string) Command {
	return Command{Verb: verbBatchStatus, Body: []byte(bid)}
}

func pushCmd(job []byte) Command {
	return Command{Verb: verbPush, Body: job}
}

func pauseQueueCmd(names []string) Command {
	body, _ := json.Marshal(names)
	return Command{Verb: verbQueuePause, Body: body}
}

func resumeQueueCmd(names []string) Command {
	body, _ := json.Marshal(names)
	return Command{Verb: verbQueueResume, Body: body}
}

func infoCmd() Command {
	return Command{Verb: verbInfo}
}
