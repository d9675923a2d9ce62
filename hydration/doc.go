// Package hydration serializes the successful entries of a cache and
// rebuilds them in another cache, typically in another process.
//
// # Dehydrate
//
// Dehydrate captures the data of every entry in StatusSuccess together with
// the stale and cache times that differ from the cache defaults:
//
//	snap, _ := hydration.Dehydrate(serverCache)
//	payload, _ := hydration.JSONCodec{}.Marshal(snap)
//
// # Hydrate
//
// Hydrate recreates the entries without touching entries that already
// exist. Timers start only when the returned Pending is initialized, which
// lets the caller decide when hydrated data becomes live:
//
//	snap, _ := hydration.JSONCodec{}.Unmarshal(payload)
//	pending, _ := hydration.Hydrate(clientCache, snap)
//	pending.Initialize()
//
// Hashes that cannot be parsed back into keys are skipped and reported as
// *ParseError through Pending.Err.
//
// # Transport
//
// JSONCodec and MsgpackCodec encode snapshots. SignSnapshot and
// VerifySnapshot wrap a snapshot in an HS256 JWT for transfer between
// processes that share a key.
package hydration
