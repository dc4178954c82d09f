// Package bridgeerr implements the bridge's error taxonomy: a small set of
// typed, wrapped errors distinguishing sidelineable failures (the envelope
// is recorded and committed) from infrastructure failures (fatal, the
// supervisor restarts the process).
package bridgeerr

import "fmt"

// Invalid is implemented by every error whose disposition is "record to
// InvalidStore, commit envelope": a handler or validator rejected the
// message itself, not the infrastructure around it.
type Invalid interface {
	error
	sidelineInvalid()
}

// InvalidError means the validator rejected the message body against its
// schema, or a handler could not make sense of an otherwise schema-valid
// body (a missing identity field, an unconfigured hub, ...). Disposition:
// record to InvalidStore, commit envelope.
type InvalidError struct {
	BrokerTopic string
	Reason      string
}

func (e *InvalidError) Error() string {
	return fmt.Sprintf("invalid message body for topic %q: %s", e.BrokerTopic, e.Reason)
}

func (e *InvalidError) sidelineInvalid() {}

// NoHandlerError means the router found no pattern matching the topic.
// Disposition: record to UnknownTopicStore, commit envelope.
type NoHandlerError struct {
	BrokerTopic string
}

func (e *NoHandlerError) Error() string {
	return fmt.Sprintf("no handler registered for topic %q", e.BrokerTopic)
}

// NoThreadIDError means makeState could derive neither pipeline.id nor a
// run.url fallback. Disposition: record to InvalidStore, commit envelope.
type NoThreadIDError struct {
	BrokerTopic string
}

func (e *NoThreadIDError) Error() string {
	return fmt.Sprintf("cannot derive thread_id for topic %q: missing pipeline.id and run.url", e.BrokerTopic)
}

func (e *NoThreadIDError) sidelineInvalid() {}

// ExternalQueryError means a side query to an injected collaborator (koji
// hub) failed. Disposition: rollback, propagate for retry on next pop.
type ExternalQueryError struct {
	Collaborator string
	Err          error
}

func (e *ExternalQueryError) Error() string {
	return fmt.Sprintf("external query to %s failed: %v", e.Collaborator, e.Err)
}

func (e *ExternalQueryError) Unwrap() error { return e.Err }

// CASContentionError means a compare-and-swap attempt lost a race with a
// concurrent writer. Disposition: retry within the same envelope, up to the
// updater's retry bound.
type CASContentionError struct {
	Type string
	AID  string
}

func (e *CASContentionError) Error() string {
	return fmt.Sprintf("cas contention updating (%s, %s)", e.Type, e.AID)
}

// UpdateExhaustedError means the updater's retry bound was exhausted without
// a successful CAS write. Disposition: fatal, exit non-zero.
type UpdateExhaustedError struct {
	Type     string
	AID      string
	Attempts int
}

func (e *UpdateExhaustedError) Error() string {
	return fmt.Sprintf("exhausted %d update attempts for (%s, %s)", e.Attempts, e.Type, e.AID)
}

// DocstoreFatalError means the document store connection, auth, or parsing
// failed in a way the updater cannot retry around. Disposition: fatal.
type DocstoreFatalError struct {
	Op  string
	Err error
}

func (e *DocstoreFatalError) Error() string {
	return fmt.Sprintf("docstore fatal error during %s: %v", e.Op, e.Err)
}

func (e *DocstoreFatalError) Unwrap() error { return e.Err }

// BulkFlushError means a bulk upsert was rejected by the indexed-store
// variant. Disposition: rollback all accumulated envelopes, fatal.
type BulkFlushError struct {
	Count int
	Err   error
}

func (e *BulkFlushError) Error() string {
	return fmt.Sprintf("bulk flush of %d operations failed: %v", e.Count, e.Err)
}

func (e *BulkFlushError) Unwrap() error { return e.Err }
