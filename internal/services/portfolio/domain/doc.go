// Package domain holds the portfolio aggregate: value types, the event and
// command unions, the folds that derive state from an event sequence, and the
// pure decider.
//
// Portfolio state is never stored. A Portfolio is the ordered list of events
// appended to one stream; every derived fact (funds, owned stocks, closed) is
// recomputed by folding that list left to right. Decide never performs I/O.
package domain
