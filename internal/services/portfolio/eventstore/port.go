// Package eventstore loads and saves portfolio histories on top of an
// append-only stream log, translating log failures into load and save errors
// the command handler can act on.
package eventstore

import (
	"context"
	"fmt"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
)

// Revision is the 0-based stream position of the last record a reader saw.
type Revision int64

// NoStream is the revision of a stream without records.
const NoStream Revision = -1

const streamPrefix = "portfolio-"

// StreamName returns the log stream holding the history of id.
func StreamName(id domain.PortfolioID) string {
	return streamPrefix + id.String()
}

// Store loads and saves portfolio histories with optimistic concurrency.
type Store interface {
	// LoadState returns the full history of id and its revision. Errors are
	// *LoadError.
	LoadState(ctx context.Context, id domain.PortfolioID) (Revision, domain.Portfolio, error)
	// SaveState appends the events of next that are not in previous, provided
	// the stream is still at expected. Errors are *SaveError.
	SaveState(ctx context.Context, id domain.PortfolioID, expected Revision, previous, next domain.Portfolio) (domain.PortfolioID, error)
}

// LoadError reports why a history could not be loaded. Kind is
// CodeUnknownStream or CodeStateLoading.
type LoadError struct {
	Kind        apperrors.Code
	PortfolioID domain.PortfolioID
	Err         error
}

func (e *LoadError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("load portfolio %s: %s", e.PortfolioID, e.Kind)
	}
	return fmt.Sprintf("load portfolio %s: %s: %v", e.PortfolioID, e.Kind, e.Err)
}

func (e *LoadError) Unwrap() error { return e.Err }

// ErrorCode returns the load failure kind.
func (e *LoadError) ErrorCode() apperrors.Code { return e.Kind }

// SaveError reports why new events could not be appended. Kind is
// CodeConcurrentModification or CodeStateSaving.
type SaveError struct {
	Kind        apperrors.Code
	PortfolioID domain.PortfolioID
	Err         error
}

func (e *SaveError) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("save portfolio %s: %s", e.PortfolioID, e.Kind)
	}
	return fmt.Sprintf("save portfolio %s: %s: %v", e.PortfolioID, e.Kind, e.Err)
}

func (e *SaveError) Unwrap() error { return e.Err }

// ErrorCode returns the save failure kind.
func (e *SaveError) ErrorCode() apperrors.Code { return e.Kind }

func unknownStream(id domain.PortfolioID, err error) *LoadError {
	return &LoadError{Kind: apperrors.CodeUnknownStream, PortfolioID: id, Err: err}
}

func stateLoading(id domain.PortfolioID, err error) *LoadError {
	return &LoadError{Kind: apperrors.CodeStateLoading, PortfolioID: id, Err: err}
}

func concurrentModification(id domain.PortfolioID, err error) *SaveError {
	return &SaveError{Kind: apperrors.CodeConcurrentModification, PortfolioID: id, Err: err}
}

func stateSaving(id domain.PortfolioID, err error) *SaveError {
	return &SaveError{Kind: apperrors.CodeStateSaving, PortfolioID: id, Err: err}
}
