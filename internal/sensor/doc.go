// Package sensor derives live, renderable sensor handles from the
// playbook store.
//
// The Synchronizer subscribes to the event dispatcher and keeps exactly
// one handle per stored record: created lazily on the first status event
// (or eagerly on startup replay), mutated in place on updates, retargeted
// on registry renames, and destroyed when the record is deleted. Handles
// are indexed by the stable key rather than the mutable display ID, which
// is what keeps renames from orphaning them.
//
// The store remains the single source of truth; this package only reads
// it and pushes derived state out through the Platform interface.
package sensor
