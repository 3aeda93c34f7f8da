package eventstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/louisbranch/stockfolio/internal/platform/id"
	"github.com/louisbranch/stockfolio/internal/platform/logging"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/domain"
	"github.com/louisbranch/stockfolio/internal/services/portfolio/storage"
	"github.com/phuslu/log"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

const tracerName = "github.com/louisbranch/stockfolio/internal/services/portfolio/eventstore"

// EventStore implements Store over a storage.StreamLog.
type EventStore struct {
	log    storage.StreamLog
	newID  id.Generator
	now    func() time.Time
	logger *log.Logger
	tracer trace.Tracer
}

var _ Store = (*EventStore)(nil)

// Option configures an EventStore.
type Option func(*EventStore)

// WithLogger sets the logger for infrastructure failures.
func WithLogger(logger *log.Logger) Option {
	return func(s *EventStore) { s.logger = logger }
}

// WithIDGenerator sets the record id generator.
func WithIDGenerator(generator id.Generator) Option {
	return func(s *EventStore) { s.newID = generator }
}

// WithClock sets the clock used for record timestamps.
func WithClock(now func() time.Time) Option {
	return func(s *EventStore) { s.now = now }
}

// WithTracer sets the tracer used for load and save spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(s *EventStore) { s.tracer = tracer }
}

// New returns an EventStore reading and appending through streamLog.
func New(streamLog storage.StreamLog, opts ...Option) *EventStore {
	store := &EventStore{
		log:    streamLog,
		newID:  id.NewID,
		now:    time.Now,
		tracer: otel.Tracer(tracerName),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(store)
		}
	}
	store.logger = logging.OrDiscard(store.logger)
	return store
}

// LoadState reads the stream of id and folds its records.
func (s *EventStore) LoadState(ctx context.Context, portfolioID domain.PortfolioID) (Revision, domain.Portfolio, error) {
	stream := StreamName(portfolioID)
	ctx, span := s.tracer.Start(ctx, "eventstore.LoadState", trace.WithAttributes(
		attribute.String("portfolio.id", portfolioID.String()),
		attribute.String("portfolio.stream", stream),
	))
	defer span.End()

	if s.log == nil {
		err := stateLoading(portfolioID, fmt.Errorf("stream log is not configured"))
		recordSpanError(span, err)
		return NoStream, nil, err
	}

	records, err := s.log.ReadStream(ctx, stream)
	if err != nil {
		if errors.Is(err, storage.ErrStreamNotFound) {
			return NoStream, nil, unknownStream(portfolioID, err)
		}
		s.logger.Error().Err(err).
			Str("portfolio_id", portfolioID.String()).
			Str("stream", stream).
			Str("operation", "load").
			Msg("read stream failed")
		loadErr := stateLoading(portfolioID, err)
		recordSpanError(span, loadErr)
		return NoStream, nil, loadErr
	}

	revision := NoStream
	state := make(domain.Portfolio, 0, len(records))
	for _, record := range records {
		evt, err := Decode(record)
		if err != nil {
			s.logger.Error().Err(err).
				Str("portfolio_id", portfolioID.String()).
				Str("stream", stream).
				Str("record_id", record.ID).
				Int64("position", record.Position).
				Str("operation", "load").
				Msg("undecodable record")
			loadErr := stateLoading(portfolioID, err)
			recordSpanError(span, loadErr)
			return NoStream, nil, loadErr
		}
		state = append(state, evt)
		revision = max(revision, Revision(record.Position))
	}
	span.SetAttributes(attribute.Int64("portfolio.revision", int64(revision)))
	return revision, state, nil
}

// SaveState appends next[len(previous):] under the expected revision.
func (s *EventStore) SaveState(ctx context.Context, portfolioID domain.PortfolioID, expected Revision, previous, next domain.Portfolio) (domain.PortfolioID, error) {
	stream := StreamName(portfolioID)
	ctx, span := s.tracer.Start(ctx, "eventstore.SaveState", trace.WithAttributes(
		attribute.String("portfolio.id", portfolioID.String()),
		attribute.String("portfolio.stream", stream),
		attribute.Int64("portfolio.expected_revision", int64(expected)),
	))
	defer span.End()

	if s.log == nil {
		err := stateSaving(portfolioID, fmt.Errorf("stream log is not configured"))
		recordSpanError(span, err)
		return "", err
	}
	if len(next) <= len(previous) {
		err := stateSaving(portfolioID, fmt.Errorf("no new events to append"))
		recordSpanError(span, err)
		return "", err
	}

	toAppend := next[len(previous):]
	records := make([]storage.EventData, 0, len(toAppend))
	recordedAt := s.now().UTC()
	for _, evt := range toAppend {
		eventType, payload, err := Encode(evt)
		if err != nil {
			saveErr := stateSaving(portfolioID, err)
			recordSpanError(span, saveErr)
			return "", saveErr
		}
		recordID, err := s.newID()
		if err != nil {
			saveErr := stateSaving(portfolioID, fmt.Errorf("generate record id: %w", err))
			recordSpanError(span, saveErr)
			return "", saveErr
		}
		records = append(records, storage.EventData{
			ID:            recordID,
			Type:          eventType,
			SchemaVersion: SchemaVersion,
			RecordedAt:    recordedAt,
			Data:          payload,
		})
	}

	precondition := storage.NoStream
	if expected != NoStream {
		precondition = storage.ExpectedRevision(expected)
	}
	if _, err := s.log.AppendToStream(ctx, stream, precondition, records); err != nil {
		if errors.Is(err, storage.ErrWrongExpectedRevision) {
			span.AddEvent("concurrent modification")
			return "", concurrentModification(portfolioID, err)
		}
		s.logger.Error().Err(err).
			Str("portfolio_id", portfolioID.String()).
			Str("stream", stream).
			Str("operation", "save").
			Int("records", len(records)).
			Msg("append to stream failed")
		saveErr := stateSaving(portfolioID, err)
		recordSpanError(span, saveErr)
		return "", saveErr
	}
	return portfolioID, nil
}

func recordSpanError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
