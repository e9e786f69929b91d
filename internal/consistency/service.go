package consistency

import (
	"context"
	"fmt"
	"log/slog"

	"cfsck/internal/models"
)

// Service runs list and repair actions over a scope of contexts. Contexts
// are processed one after another in directory order.
type Service struct {
	deps   Deps
	opts   Options
	engine *Engine
	logger *slog.Logger
}

// RepairSummary reports what a repair run covered.
type RepairSummary struct {
	Scope    string `json:"scope"`
	Policy   string `json:"policy"`
	Contexts int    `json:"contexts"`
	Skipped  []int  `json:"skipped,omitempty"`

	// Usage holds the recounted filestore bytes per context.
	Usage map[int]int64 `json:"usage,omitempty"`
}

// NewService wires a service over deps.
func NewService(deps Deps, opts Options) (*Service, error) {
	opts = opts.withDefaults()
	engine, err := NewEngine(deps, opts)
	if err != nil {
		return nil, err
	}
	return &Service{deps: deps, opts: opts, engine: engine, logger: opts.Logger}, nil
}

// ListMissing reports, per context, the blob ids referenced by infoitems or
// attachments that the filestore does not hold. Contexts without findings
// are absent from the result.
func (s *Service) ListMissing(ctx context.Context, scope Scope) (map[int][]string, error) {
	recorder := NewRecorder()
	solvers := Solvers{Documents: recorder, Attachments: recorder}
	if _, err := s.run(ctx, scope, solvers, nil); err != nil {
		return nil, err
	}
	return recorder.Results(), nil
}

// ListUnassigned reports, per context, the blob ids no metadata references.
func (s *Service) ListUnassigned(ctx context.Context, scope Scope) (map[int][]string, error) {
	recorder := NewRecorder()
	solvers := Solvers{Blobs: recorder}
	if _, err := s.run(ctx, scope, solvers, nil); err != nil {
		return nil, err
	}
	return recorder.Results(), nil
}

// Repair applies rawPolicy to every context of scope and recalculates each
// context's filestore usage afterwards. The policy is parsed before any
// context is touched.
func (s *Service) Repair(ctx context.Context, scope Scope, rawPolicy string) (*RepairSummary, error) {
	policy, err := parsePolicy(rawPolicy, s.logger)
	if err != nil {
		return nil, err
	}
	solvers := policy.Build(s.deps, s.opts)

	summary := &RepairSummary{Scope: scope.String(), Policy: policy.String(), Usage: map[int]int64{}}
	processed, err := s.run(ctx, scope, solvers, func(ctx context.Context, tenant models.Context) {
		if used, ok := s.recalculateUsage(ctx, tenant); ok {
			summary.Usage[tenant.ID] = used
		}
	})
	if err != nil {
		return nil, err
	}
	summary.Contexts = processed.done
	summary.Skipped = processed.skipped
	return summary, nil
}

type runStats struct {
	done    int
	skipped []int
}

func (s *Service) run(ctx context.Context, scope Scope, solvers Solvers, after func(context.Context, models.Context)) (runStats, error) {
	var stats runStats
	tenants, err := resolveScope(ctx, s.deps.Directory, scope)
	if err != nil {
		return stats, fmt.Errorf("resolve scope %q: %w", scope, err)
	}
	s.logger.Debug("scope resolved", "scope", scope.String(), "contexts", len(tenants))

	for _, tenant := range tenants {
		if err := ctx.Err(); err != nil {
			return stats, err
		}
		if _, err := s.engine.Check(ctx, tenant, solvers); err != nil {
			s.logger.Warn("context skipped", "context_id", tenant.ID, "error", err)
			s.opts.Observer.ObserveTenantFailure("check")
			stats.skipped = append(stats.skipped, tenant.ID)
			continue
		}
		if after != nil {
			after(ctx, tenant)
		}
		stats.done++
	}
	return stats, nil
}

// recalculateUsage runs once per context even when several contexts of the
// scope share a physical filestore. The recount is persisted through
// Deps.Usage when one is configured.
func (s *Service) recalculateUsage(ctx context.Context, tenant models.Context) (int64, bool) {
	store, err := s.deps.Stores.ForContext(ctx, tenant)
	if err != nil {
		s.logger.Error("usage recalculation skipped", "context_id", tenant.ID, "error", err)
		s.opts.Observer.ObserveTenantFailure("usage")
		return 0, false
	}
	used, err := store.RecalculateUsage(ctx)
	if err != nil {
		s.logger.Error("usage recalculation failed", "context_id", tenant.ID, "error", err)
		s.opts.Observer.ObserveTenantFailure("usage")
		return 0, false
	}
	if s.deps.Usage != nil {
		if err := s.deps.Usage.SetContextUsage(ctx, tenant.ID, used); err != nil {
			s.logger.Error("usage not recorded", "context_id", tenant.ID, "error", err)
			s.opts.Observer.ObserveTenantFailure("usage")
		}
	}
	return used, true
}
