// Package errors provides structured error codes shared by the portfolio
// service layers.
package errors

import "google.golang.org/grpc/codes"

// Code is a machine-readable error code.
type Code string

const (
	// CodeUnknown represents an unknown error.
	CodeUnknown Code = "UNKNOWN"

	// Request errors
	CodeValidation Code = "VALIDATION"

	// Portfolio errors
	CodePortfolioAlreadyExists Code = "PORTFOLIO_ALREADY_EXISTS"
	CodePortfolioNotAvailable  Code = "PORTFOLIO_NOT_AVAILABLE"
	CodePortfolioIsClosed      Code = "PORTFOLIO_IS_CLOSED"
	CodeInsufficientFunds      Code = "INSUFFICIENT_FUNDS"
	CodeInsufficientStocks     Code = "INSUFFICIENT_STOCKS"
	CodePriceNotAvailable      Code = "PRICE_NOT_AVAILABLE"

	// Event store errors
	CodeUnknownStream          Code = "UNKNOWN_STREAM"
	CodeStateLoading           Code = "STATE_LOADING"
	CodeConcurrentModification Code = "CONCURRENT_MODIFICATION"
	CodeStateSaving            Code = "STATE_SAVING"

	// Infrastructure errors
	CodeNotFound         Code = "NOT_FOUND"
	CodeAlreadyExists    Code = "ALREADY_EXISTS"
	CodePersistence      Code = "PERSISTENCE"
	CodeRetriesExhausted Code = "RETRIES_EXHAUSTED"
)

// GRPCCode maps domain codes to gRPC status codes.
func (c Code) GRPCCode() codes.Code {
	switch c {
	// InvalidArgument - validation failures, bad input
	case CodeValidation:
		return codes.InvalidArgument

	// FailedPrecondition - state doesn't allow operation
	case CodePortfolioIsClosed,
		CodeInsufficientFunds,
		CodeInsufficientStocks,
		CodePriceNotAvailable:
		return codes.FailedPrecondition

	// NotFound - resource doesn't exist
	case CodePortfolioNotAvailable,
		CodeUnknownStream,
		CodeNotFound:
		return codes.NotFound

	// AlreadyExists - unique resource constraint
	case CodePortfolioAlreadyExists,
		CodeAlreadyExists:
		return codes.AlreadyExists

	// Aborted - optimistic concurrency lost and the caller may resubmit
	case CodeConcurrentModification,
		CodeRetriesExhausted:
		return codes.Aborted

	case CodeStateLoading,
		CodeStateSaving,
		CodePersistence:
		return codes.Unavailable

	default:
		return codes.Internal
	}
}
