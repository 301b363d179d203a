// Package admission decides whether an identity may perform a costly
// operation right now, based on how many times it did so within a trailing
// time window.
//
// # Algorithm
//
// Each key (for example "generate:user-42") owns a list of the instants at
// which its requests were admitted. CheckAndAdmit runs one atomic
// read-modify-write against the storage backend:
//
//  1. Drop every instant t with now - t >= window.
//  2. If the remaining count has reached the limit, deny. The decision
//     reports when enough instants will have aged out for a retry to
//     succeed. Nothing is recorded, so denied retries never extend the
//     lockout.
//  3. Otherwise append now, persist, and admit.
//
// The window slides continuously: there are no fixed buckets and no burst at
// bucket boundaries. A limit of zero denies everything without touching
// storage.
//
// # Failure Policy
//
// When the backend cannot be reached the controller does not return an
// error. It produces a Decision flagged Degraded according to the configured
// FailurePolicy: FailOpen admits (availability over enforcement), FailClosed
// denies (enforcement over availability). There is no default; callers
// choose.
//
// # Deployment Modes
//
// The memory backend is per process. Behind a load balancer with N instances
// each instance enforces its own quota, so a user may be admitted up to N
// times the limit. That is the best-effort mode. Shared enforcement needs the
// Redis backend, where every instance reads and writes the same window
// through an optimistic compare-and-swap. The SQLite backend is durable
// across restarts but serves one node.
//
// # Clock Skew
//
// Instants come from the controller's clock.Clock. If the wall clock jumps
// backwards, previously recorded instants lie in the future: they are kept,
// count toward the limit, and expire later than they would have. If it jumps
// forward, instants expire early. Both are bounded by the size of the jump
// and accepted as inaccuracy rather than corrected.
//
// # Garbage Collection
//
// Pruning on every check bounds each entry to at most limit instants. Keys
// that stop sending requests are removed by the Sweeper, which periodically
// runs the same per-key atomic prune against a retention ceiling and deletes
// entries left empty.
//
// # Thread Safety
//
// Controller and Sweeper are safe for concurrent use. Concurrent checks for
// the same key serialize inside the backend, so C concurrent callers against
// a limit L < C see exactly L admissions.
package admission
