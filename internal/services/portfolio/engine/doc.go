// Package engine runs portfolio commands: load the history, decide, and append
// the new events under the revision that was read. A concurrent writer makes
// the append fail; the whole cycle then runs again against fresh state, a
// bounded number of times.
package engine
