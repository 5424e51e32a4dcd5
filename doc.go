// Package querycache is the query cache and invalidation layer of the booking
// console. Query results are cached per Key (a kind plus a canonical parameter
// bag) in a Provider and served stale-while-revalidate. Mutations overwrite or
// remove exact keys and invalidate whole families.
//
// Components:
//   - Provider: byte store with TTL (e.g. Ristretto, BigCache, Redis).
//   - GenStore: per-key generations, a global sequence and family marks.
//     Local (in-process) by default, optional Redis implementation.
//   - Codec[V]: (de)serializes V <-> []byte for the typed Query wrapper.
//
// Keys:
//
//	q:<ns>:<kind>:<params>   - entries (long parameter strings are hashed)
//
// Ordering:
//
// A fetch snapshots the key's generation and draws a sequence number before it
// is dispatched. Write and Remove bump the generation, so a fetch that resolves
// after them is discarded. InvalidatePrefix records the sequence at which a
// family was invalidated; an entry whose sequence is lower reads as stale.
//
//	c.Write(ctx, querycache.MustKey("booking", querycache.Params{"id": 123}), b)
//	c.InvalidatePrefix(ctx, querycache.KindFamily("bookings"))
package querycache
