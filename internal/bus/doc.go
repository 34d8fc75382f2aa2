// Package bus provides the in-process event dispatcher for Runbeat Core.
//
// The dispatcher is a single, typed publish/subscribe channel connecting
// the ingress paths (webhook, REST, rename tracker) to derived views
// (the sensor synchronizer). The event set is closed: StatusChanged and
// Renamed are the only variants, so subscribers can exhaustively switch
// on them.
//
// Delivery is synchronous and ordered. Events a single publisher emits
// arrive at each subscriber in publish order; there are no guarantees
// across subscribers' side effects. Handlers that panic are caught and
// logged, never propagated to the publisher.
package bus
