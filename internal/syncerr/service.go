package syncerr

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// recentWindow bounds the rolling window of recently observed errors
const recentWindow = 100

// Store persists classified errors for audit
type Store interface {
	SaveError(ctx context.Context, serr *SyncError) error
}

// Monitor is the external monitoring collaborator. CRITICAL severity
// errors are escalated to it.
type Monitor interface {
	EscalateCritical(ctx context.Context, serr *SyncError)
}

// CodeCount pairs an error code with its observed count
type CodeCount struct {
	Code  Code `json:"code"`
	Count int  `json:"count"`
}

// Stats is an aggregate view over classified errors
type Stats struct {
	Total      int              `json:"total"`
	ByCode     map[Code]int     `json:"by_code"`
	BySeverity map[Severity]int `json:"by_severity"`
	TopCodes   []CodeCount      `json:"top_codes"`
	Recent     []*SyncError     `json:"recent"`
}

// Service classifies, persists and aggregates sync errors. State is held
// on the instance and injected where needed; lifecycle follows the
// process, not package load.
type Service struct {
	store   Store
	monitor Monitor
	logger  *zap.Logger

	mu         sync.Mutex
	byCode     map[Code]int
	bySeverity map[Severity]int
	recent     []*SyncError
}

// NewService creates an error service. monitor may be nil when no
// escalation target is configured.
func NewService(store Store, monitor Monitor, logger *zap.Logger) *Service {
	return &Service{
		store:      store,
		monitor:    monitor,
		logger:     logger,
		byCode:     make(map[Code]int),
		bySeverity: make(map[Severity]int),
	}
}

// Report classifies err, records it for audit and aggregation, and
// escalates critical errors to the monitor. The classified error is
// returned for the caller to surface.
func (s *Service) Report(ctx context.Context, err error, errCtx Context) *SyncError {
	serr := Classify(err, errCtx)
	if serr == nil {
		return nil
	}

	if s.store != nil {
		if saveErr := s.store.SaveError(ctx, serr); saveErr != nil {
			s.logger.Warn("failed to persist classified error",
				zap.String("code", string(serr.Code)),
				zap.Error(saveErr),
			)
		}
	}

	s.mu.Lock()
	s.byCode[serr.Code]++
	s.bySeverity[serr.Severity]++
	s.recent = append(s.recent, serr)
	if len(s.recent) > recentWindow {
		s.recent = s.recent[len(s.recent)-recentWindow:]
	}
	s.mu.Unlock()

	s.logger.Error("sync error classified",
		zap.String("code", string(serr.Code)),
		zap.String("severity", string(serr.Severity)),
		zap.Bool("retryable", serr.Retryable),
		zap.String("project_id", errCtx.ProjectID),
		zap.String("branch", errCtx.Branch),
		zap.String("operation", errCtx.Operation),
		zap.Error(err),
	)

	if serr.Severity == SeverityCritical && s.monitor != nil {
		s.monitor.EscalateCritical(ctx, serr)
	}

	return serr
}

// Stats returns a snapshot of the aggregated error counts
func (s *Service) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	stats := Stats{
		ByCode:     make(map[Code]int, len(s.byCode)),
		BySeverity: make(map[Severity]int, len(s.bySeverity)),
		Recent:     append([]*SyncError(nil), s.recent...),
	}
	for code, count := range s.byCode {
		stats.ByCode[code] = count
		stats.Total += count
		stats.TopCodes = append(stats.TopCodes, CodeCount{Code: code, Count: count})
	}
	for severity, count := range s.bySeverity {
		stats.BySeverity[severity] = count
	}
	sort.Slice(stats.TopCodes, func(i, j int) bool {
		if stats.TopCodes[i].Count != stats.TopCodes[j].Count {
			return stats.TopCodes[i].Count > stats.TopCodes[j].Count
		}
		return stats.TopCodes[i].Code < stats.TopCodes[j].Code
	})
	return stats
}

// RecentSince returns the recently observed errors newer than cutoff
func (s *Service) RecentSince(cutoff time.Time) []*SyncError {
	s.mu.Lock()
	defer s.mu.Unlock()

	var out []*SyncError
	for _, serr := range s.recent {
		if serr.OccurredAt.After(cutoff) {
			out = append(out, serr)
		}
	}
	return out
}
