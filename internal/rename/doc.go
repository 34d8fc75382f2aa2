// Package rename consumes external registry rename notifications and
// re-keys the playbook store's display identifiers.
//
// The stable record key and the renderable display ID are deliberately
// decoupled: the key never changes, the display ID may be renamed by the
// host's entity registry at any time. This package is the only writer of
// display IDs after record creation.
package rename
