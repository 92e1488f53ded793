// Package queryserver implements the CouchDB-style view-server line
// protocol: a long-lived child process that registers map functions,
// executes them against documents streamed over stdin, and diverts
// "$SSET"-tagged emissions into a sset.Service instead of the normal view
// index.
package queryserver

import (
	"context"
	"fmt"

	"github.com/dop251/goja"
	"github.com/sirupsen/logrus"

	"supercouch/sset"
)

// Config controls engine-wide behavior set once at startup from CLI flags.
type Config struct {
	// EmitSSet, when true, keeps a diverted $SSET emission in the normal
	// view output as well, for rebuilding a view index from scratch.
	EmitSSet bool
}

// Engine is the process-wide state: the registered-function table, the
// scratch emission buffer, configuration, and the sorted-set service
// handle. One Engine's lifetime matches one query-server process.
type Engine struct {
	svc    sset.Service
	cfg    Config
	logger *logrus.Logger

	vm          *goja.Runtime
	scratch     []emission
	functions   []*mapFunc
	digests     map[string]*mapFunc
	pendingLogs []string
}

// New builds an Engine bound to svc. logger may be nil, in which case
// log() calls from map code are only written to the protocol wire.
func New(svc sset.Service, cfg Config, logger *logrus.Logger) *Engine {
	e := &Engine{
		svc:     svc,
		cfg:     cfg,
		logger:  logger,
		vm:      goja.New(),
		digests: make(map[string]*mapFunc),
	}
	bindRuntime(e.vm, &e.scratch, e.logMessage)
	return e
}

// logMessage handles a log() call from map code. The message is both routed
// through the configured logger and queued to be written on the protocol's
// wire as a ["log", message] line alongside the current command's response,
// regardless of the logger's level.
func (e *Engine) logMessage(msg string) {
	e.pendingLogs = append(e.pendingLogs, msg)
	if e.logger != nil {
		e.logger.Info(msg)
	}
}

// takeLogs returns and clears the log messages queued since the last call,
// for the protocol loop to write out ahead of the current response line.
func (e *Engine) takeLogs() []string {
	logs := e.pendingLogs
	e.pendingLogs = nil
	return logs
}

// reset discards every registered function and compiled-function cache,
// per the "reset" command's "clears registered map functions" contract.
// The compiled-artifact cache is keyed by digest and lives only as long as
// the functions that reference it, so it is cleared alongside.
func (e *Engine) reset() {
	e.functions = nil
	e.digests = make(map[string]*mapFunc)
}

// addFun registers source as a new map function, reusing a previously
// compiled artifact when the digest matches an existing registration.
func (e *Engine) addFun(source string) error {
	digest := digestOf(source)
	if fn, ok := e.digests[digest]; ok {
		e.functions = append(e.functions, fn)
		return nil
	}
	fn, err := compile(e.vm, source)
	if err != nil {
		return err
	}
	e.digests[digest] = fn
	e.functions = append(e.functions, fn)
	return nil
}

// mapDoc runs every registered function against doc, diverts $SSET
// emissions into one atomic batch sent to the sorted-set service, and
// returns the per-function list of surviving (non-diverted, or
// diverted-and-kept) emissions in registration order.
func (e *Engine) mapDoc(ctx context.Context, doc interface{}) ([]interface{}, error) {
	docVal := e.vm.ToValue(doc)
	rows := make([]interface{}, len(e.functions))
	var ops []sset.Operation

	for i, fn := range e.functions {
		e.scratch = e.scratch[:0]
		if _, err := fn.call(goja.Undefined(), docVal); err != nil {
			return nil, fmt.Errorf("map function raised: %w", err)
		}

		funcRows := make([]interface{}, 0, len(e.scratch))
		for _, em := range e.scratch {
			op, isSSet, err := classify(em)
			if err != nil {
				return nil, err
			}
			if isSSet {
				ops = append(ops, op)
				if !e.cfg.EmitSSet {
					continue
				}
			}
			funcRows = append(funcRows, []interface{}{em.Key, em.Value})
		}
		rows[i] = funcRows
	}

	if len(ops) > 0 {
		if err := e.svc.Process(ctx, ops); err != nil {
			return nil, err
		}
	}
	return rows, nil
}
