// Package listing extracts function definitions and their call targets from
// the assembly listings a debug build leaves next to each object file
// (obj/**/*.src). Only labels, call instructions and the end-of-procedure
// directive matter; everything else in a listing is skipped.
package listing
