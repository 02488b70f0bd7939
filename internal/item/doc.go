// Package item holds the shipment item model and the in-memory store that
// owns every item for the lifetime of the process.
//
// An Item is a package queued for shipping (envío): an integer identifier
// assigned by the store plus two numeric fields, ganancia (profit) and
// peso (weight).
//
// # Identity
//
// Identifiers come from a counter that starts at zero and is incremented
// before each create, so the first item is 1. The counter is never
// decremented, which means an identifier is never handed out twice within
// a process, even after the item carrying it is deleted.
//
// # Thread Safety
//
// Store is safe for concurrent use. A single mutex guards both the
// collection and the counter, and every operation holds it for its whole
// body.
package item
