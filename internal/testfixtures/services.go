package testfixtures

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/BerniPi/BGBB-IKT/internal/application"
	"github.com/BerniPi/BGBB-IKT/internal/audit"
	"github.com/BerniPi/BGBB-IKT/internal/persistence"
)

// ServiceFactory assists tests with constructing application services using
// deterministic identifiers and clocks.
type ServiceFactory struct {
	Clock       *Clock
	IDGenerator *IDGenerator
	Audit       *AuditRecorder
	Logger      *slog.Logger
}

// ServiceFactoryOption configures a ServiceFactory instance.
type ServiceFactoryOption func(*ServiceFactory)

// NewServiceFactory constructs a ServiceFactory with defaults.
func NewServiceFactory(opts ...ServiceFactoryOption) *ServiceFactory {
	factory := &ServiceFactory{
		Clock:       NewClock(time.Time{}),
		IDGenerator: NewIDGenerator("id"),
		Audit:       &AuditRecorder{},
	}
	for _, opt := range opts {
		opt(factory)
	}
	if factory.Clock == nil {
		factory.Clock = NewClock(time.Time{})
	}
	if factory.IDGenerator == nil {
		factory.IDGenerator = NewIDGenerator("id")
	}
	if factory.Audit == nil {
		factory.Audit = &AuditRecorder{}
	}
	return factory
}

// WithClock overrides the clock used by the factory.
func WithClock(clock *Clock) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Clock = clock
	}
}

// WithIDGenerator overrides the identifier generator used by the factory.
func WithIDGenerator(generator *IDGenerator) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.IDGenerator = generator
	}
}

// WithLogger sets the logger handed to every service.
func WithLogger(logger *slog.Logger) ServiceFactoryOption {
	return func(factory *ServiceFactory) {
		factory.Logger = logger
	}
}

// Storage is what the history and device services need from a store.
type Storage interface {
	persistence.UnitOfWork
	persistence.HistoryReader
	persistence.DeviceReader
}

// NewHistoryService builds a history service over store.
func (f *ServiceFactory) NewHistoryService(store Storage) *application.HistoryService {
	return application.NewHistoryServiceWithLogger(store, store, f.Audit, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// NewDeviceService builds a device service over store.
func (f *ServiceFactory) NewDeviceService(store Storage) *application.DeviceService {
	return application.NewDeviceServiceWithLogger(store, store, f.Audit, f.IDGenerator.NextFunc(), f.Clock.NowFunc(), f.Logger)
}

// AuditRecorder captures audit records synchronously.
type AuditRecorder struct {
	mu      sync.Mutex
	records []audit.Record
}

// Record implements application.AuditRecorder.
func (r *AuditRecorder) Record(ctx context.Context, rec audit.Record) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records = append(r.records, rec)
}

// Records returns a copy of everything recorded so far.
func (r *AuditRecorder) Records() []audit.Record {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]audit.Record(nil), r.records...)
}

// Actions lists the recorded action types in order.
func (r *AuditRecorder) Actions() []persistence.ActionType {
	records := r.Records()
	out := make([]persistence.ActionType, 0, len(records))
	for _, rec := range records {
		out = append(out, rec.Action)
	}
	return out
}
