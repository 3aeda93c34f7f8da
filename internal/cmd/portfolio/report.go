package portfolio

import (
	"errors"
	"fmt"
	"io"
	"maps"
	"slices"

	apperrors "github.com/louisbranch/stockfolio/internal/platform/errors"
	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/status"
)

// ReportError writes err to w as its status code, reason and metadata.
// Usage errors are written as the usage line only.
func ReportError(w io.Writer, err error) {
	if err == nil {
		return
	}
	if errors.Is(err, ErrUsage) {
		_, _ = fmt.Fprintln(w, err)
		return
	}
	st := status.Convert(apperrors.ToGRPCStatus(err))
	reason := string(apperrors.CodeUnknown)
	var metadata map[string]string
	for _, detail := range st.Details() {
		if info, ok := detail.(*errdetails.ErrorInfo); ok {
			reason = info.GetReason()
			metadata = info.GetMetadata()
		}
	}
	_, _ = fmt.Fprintf(w, "[STOCKFOLIO] %s (%s): %s\n", reason, st.Code(), st.Message())
	for _, key := range slices.Sorted(maps.Keys(metadata)) {
		_, _ = fmt.Fprintf(w, "  %s: %s\n", key, metadata[key])
	}
}
