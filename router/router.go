// Package router matches broker topics to handlers and synthesizes the
// per-event KaiState/ArtifactState pair every handler builds on.
package router

import (
	"context"
	"regexp"

	"github.com/centosci/kaijs-bridge/bridgeerr"
	"github.com/centosci/kaijs-bridge/model"
)

// Handler projects one envelope into an updated ArtifactModel. Handlers are
// pure with respect to everything except the injected docStore: given the
// same envelope and document state they produce the same proposal.
type Handler interface {
	// Handle computes (type, aid), loads or creates the document via
	// docStore, merges the event's partial sub-record in, appends an
	// ArtifactState if the event carries observable CI state, and returns
	// the resulting proposal.
	Handle(ctx context.Context, msg *model.FileQueueMessage) (*model.ArtifactModel, error)
}

type route struct {
	pattern *regexp.Regexp
	handler Handler
}

// Router holds an ordered, most-specific-first list of (pattern, handler)
// pairs, compiled once at startup.
type Router struct {
	routes []route
}

// New builds an empty Router. Register patterns most-specific first: the
// first fully-matching pattern wins.
func New() *Router {
	return &Router{}
}

// Register compiles pattern and appends it to the ordered route list.
// Panics on an invalid pattern, since route tables are built once at
// startup from constants, not from user input.
func (r *Router) Register(pattern string, handler Handler) {
	r.routes = append(r.routes, route{pattern: regexp.MustCompile(pattern), handler: handler})
}

// Resolve returns the first handler whose pattern fully matches topic, or
// NoHandlerError if none does.
func (r *Router) Resolve(topic string) (Handler, error) {
	for _, rt := range r.routes {
		if rt.pattern.MatchString(topic) {
			return rt.handler, nil
		}
	}
	return nil, &bridgeerr.NoHandlerError{BrokerTopic: topic}
}
