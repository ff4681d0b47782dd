// Package scheduler orders a test suite into batches. A test may only run
// once every function it depends on has been validated by a test in an
// earlier batch.
//
// Scheduling happens in two phases. Tests are first placed greedily in
// declaration order: a test without dependencies joins batch 0, any other
// test joins the batch right after the earliest batch that, together with
// all batches before it, covers its dependencies. Tests that cannot be placed
// yet wait in a pending pool; every placement gives the pool one chance to
// promote a test that has just become satisfied. Whatever is still pending
// at the end is reconciled: tests whose remaining dependencies are covered by
// the pool itself form one final batch, the rest fail scheduling.
//
// Schedule is single-threaded, deterministic for a fixed input order and
// performs no I/O.
package scheduler
