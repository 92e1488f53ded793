package queryserver

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
)

const (
	maxLineSize = 32 * 1024 * 1024
	initialLine = 64 * 1024
)

// Run drives the stdio line protocol: it reads one JSON request per line
// from r, fully processes it (including any backend commit), and writes the
// result to w as one or more JSON lines, in request order, until r reaches
// EOF or ctx is canceled. A command whose map code called log() gets a
// ["log", message] line per call ahead of its response line. Lines are
// processed strictly sequentially, so only the write need ever be
// serialized against concurrent backend I/O.
func (e *Engine) Run(ctx context.Context, r io.Reader, w io.Writer) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, initialLine), maxLineSize)
	bw := bufio.NewWriter(w)
	defer bw.Flush()

	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		resp := e.handleLine(ctx, scanner.Bytes())
		for _, msg := range e.takeLogs() {
			if err := writeLine(bw, []interface{}{"log", msg}); err != nil {
				return err
			}
		}
		if err := writeLine(bw, resp); err != nil {
			return err
		}
		if err := bw.Flush(); err != nil {
			return err
		}
	}
	return scanner.Err()
}

// handleLine parses and dispatches one request line, always returning a
// value to serialize as the response — never an error that would abort the
// loop. Per-line failures are reported as protocol error responses.
func (e *Engine) handleLine(ctx context.Context, line []byte) interface{} {
	var parts []json.RawMessage
	if err := json.Unmarshal(line, &parts); err != nil || len(parts) == 0 {
		return errorResponse("parse_error", "malformed request line")
	}

	var tag string
	if err := json.Unmarshal(parts[0], &tag); err != nil {
		return errorResponse("parse_error", "request command must be a string")
	}

	switch tag {
	case "reset":
		e.reset()
		return true

	case "add_lib":
		return true

	case "add_fun":
		source, ok := stringArg(parts, 1)
		if !ok {
			return errorResponse("parse_error", "add_fun requires a source-text argument")
		}
		if err := e.addFun(source); err != nil {
			return errorResponse("processing_failed", err.Error())
		}
		return true

	case "map_doc":
		if len(parts) < 2 {
			return errorResponse("parse_error", "map_doc requires a document argument")
		}
		var doc interface{}
		if err := json.Unmarshal(parts[1], &doc); err != nil {
			return errorResponse("parse_error", "map_doc document is not valid JSON")
		}
		rows, err := e.mapDoc(ctx, doc)
		if err != nil {
			return errorResponse("processing_failed", err.Error())
		}
		return rows

	case "reduce":
		count, ok := arrayLen(parts, 1)
		if !ok {
			return errorResponse("parse_error", "reduce requires a function-list argument")
		}
		return reduceAck(count)

	case "rereduce":
		count, ok := arrayLen(parts, 1)
		if !ok {
			return errorResponse("parse_error", "rereduce requires a function-list argument")
		}
		return reduceAck(count)

	case "ddoc":
		return true

	default:
		return errorResponse("unsupported_command", "unrecognized command: "+tag)
	}
}

func stringArg(parts []json.RawMessage, i int) (string, bool) {
	if i >= len(parts) {
		return "", false
	}
	var s string
	if err := json.Unmarshal(parts[i], &s); err != nil {
		return "", false
	}
	return s, true
}

func arrayLen(parts []json.RawMessage, i int) (int, bool) {
	if i >= len(parts) {
		return 0, false
	}
	var arr []json.RawMessage
	if err := json.Unmarshal(parts[i], &arr); err != nil {
		return 0, false
	}
	return len(arr), true
}

// reduceAck builds the fixed "reduce is unsupported" response: one null
// per reduce function named in the request.
func reduceAck(functionCount int) []interface{} {
	nulls := make([]interface{}, functionCount)
	return []interface{}{true, nulls}
}

func errorResponse(kind, message string) []interface{} {
	return []interface{}{"error", kind, message}
}

// writeLine serializes v as one JSON line. If serialization itself fails —
// an emission held an un-encodable value, say — a canned output_error
// response is written instead.
func writeLine(w *bufio.Writer, v interface{}) error {
	b, err := json.Marshal(v)
	if err != nil {
		b, _ = json.Marshal(errorResponse("output_error", err.Error()))
	}
	b = append(b, '\n')
	_, err = w.Write(b)
	return err
}
