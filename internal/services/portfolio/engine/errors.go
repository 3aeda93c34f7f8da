package engine

import (
	"strconv"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
)

func persistenceError(message string, cause error) error {
	return apperrors.Wrap(apperrors.CodePersistence, message, cause)
}

func retriesExhausted(attempts int, cause error) error {
	return apperrors.WrapWithMetadata(
		apperrors.CodeRetriesExhausted,
		"retries exhausted",
		map[string]string{"attempts": strconv.Itoa(attempts)},
		cause,
	)
}
