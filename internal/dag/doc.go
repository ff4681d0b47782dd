// Package dag is a small directed graph keyed by string IDs, stored in a
// dominikbraun/graph graph. The scheduler builds the provider graph of a
// suite with it: an edge from A to B means B depends on a function that A
// targets. Its strongly connected groups are the mutually dependent tests
// of a reconciled batch.
package dag
