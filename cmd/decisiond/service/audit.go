package service

import (
	"context"
	"fmt"
	"reflect"

	"github.com/google/cel-go/cel"
	"github.com/google/uuid"

	"github.com/atelierhq/decisions/cmd/decisiond/models"
	"github.com/atelierhq/decisions/common/apperrors"
	"github.com/atelierhq/decisions/common/logger"
	"github.com/atelierhq/decisions/common/telemetry"
)

// AuditStore persists append-only audit entries
type AuditStore interface {
	Insert(ctx context.Context, e *models.AuditLogEntry) error
	List(ctx context.Context, decisionID uuid.UUID, limit int) ([]*models.AuditLogEntry, error)
	DecisionExists(ctx context.Context, decisionID uuid.UUID) (bool, error)
}

// AuditQueryParams controls an audit log query. Filter is an optional CEL
// expression over the variables action, user_id, user_name, version_id and
// details, e.g. `action == 'status_changed'`. The notification collaborator
// uses this to select the entries it subscribes to.
type AuditQueryParams struct {
	Limit  int
	Filter string
}

// AuditService is the audit recorder: it appends entries for every mutating
// action and serves ordered queries over them
type AuditService struct {
	store        AuditStore
	env          *cel.Env
	defaultLimit int
	maxLimit     int
	metrics      *telemetry.Metrics
	log          *logger.Logger
}

// NewAuditService creates a new audit service
func NewAuditService(store AuditStore, defaultLimit, maxLimit int, metrics *telemetry.Metrics, log *logger.Logger) (*AuditService, error) {
	env, err := cel.NewEnv(
		cel.Variable("action", cel.StringType),
		cel.Variable("user_id", cel.StringType),
		cel.Variable("user_name", cel.StringType),
		cel.Variable("version_id", cel.StringType),
		cel.Variable("details", cel.MapType(cel.StringType, cel.DynType)),
	)
	if err != nil {
		return nil, fmt.Errorf("create filter environment: %w", err)
	}

	return &AuditService{
		store:        store,
		env:          env,
		defaultLimit: defaultLimit,
		maxLimit:     maxLimit,
		metrics:      metrics,
		log:          log,
	}, nil
}

// Record appends one entry for action on decisionID. The details map is
// opaque and stored as-is; a malformed details map is never an error.
func (s *AuditService) Record(ctx context.Context, decisionID uuid.UUID, action models.AuditAction, details map[string]any, actor models.Actor, versionID *uuid.UUID) (*models.AuditLogEntry, error) {
	if !action.Valid() {
		return nil, apperrors.InvalidArgument("unknown audit action %q", action)
	}

	entry := models.NewAuditEntry(decisionID, action, details, actor, versionID)
	if err := s.store.Insert(ctx, entry); err != nil {
		return nil, err
	}

	s.metrics.AuditEntriesWritten.Inc()

	s.log.Debug("audit entry recorded",
		"decision_id", decisionID,
		"action", action,
		"seq", entry.Seq,
	)

	return entry, nil
}

// Query retrieves entries for a decision, newest first. An unknown decision
// is ErrNotFound rather than an empty trail. Limit defaults to the
// configured default and is capped to prevent unbounded scans.
func (s *AuditService) Query(ctx context.Context, decisionID uuid.UUID, params AuditQueryParams) ([]*models.AuditLogEntry, error) {
	exists, err := s.store.DecisionExists(ctx, decisionID)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, apperrors.NotFound("decision %s", decisionID)
	}

	limit := params.Limit
	if limit <= 0 {
		limit = s.defaultLimit
	}
	if limit > s.maxLimit {
		limit = s.maxLimit
	}

	if params.Filter == "" {
		return s.store.List(ctx, decisionID, limit)
	}

	prg, err := s.compileFilter(params.Filter)
	if err != nil {
		return nil, err
	}

	// Filtering happens post-fetch over the capped window; the cap bounds
	// the scan, not the match count.
	entries, err := s.store.List(ctx, decisionID, s.maxLimit)
	if err != nil {
		return nil, err
	}

	matched := make([]*models.AuditLogEntry, 0, limit)
	for _, e := range entries {
		ok, err := evalFilter(prg, e)
		if err != nil {
			// Evaluation errors (e.g. missing details key) mean no match,
			// not a failed query.
			continue
		}
		if ok {
			matched = append(matched, e)
			if len(matched) >= limit {
				break
			}
		}
	}

	return matched, nil
}

func (s *AuditService) compileFilter(filter string) (cel.Program, error) {
	ast, iss := s.env.Compile(filter)
	if iss != nil && iss.Err() != nil {
		return nil, apperrors.InvalidArgument("bad filter expression: %v", iss.Err())
	}
	if !reflect.DeepEqual(ast.OutputType(), cel.BoolType) {
		return nil, apperrors.InvalidArgument("filter expression must evaluate to bool, got %v", ast.OutputType())
	}

	prg, err := s.env.Program(ast)
	if err != nil {
		return nil, apperrors.InvalidArgument("bad filter expression: %v", err)
	}

	return prg, nil
}

func evalFilter(prg cel.Program, e *models.AuditLogEntry) (bool, error) {
	userID := ""
	if e.UserID != nil {
		userID = e.UserID.String()
	}
	versionID := ""
	if e.VersionID != nil {
		versionID = e.VersionID.String()
	}

	out, _, err := prg.Eval(map[string]any{
		"action":     string(e.Action),
		"user_id":    userID,
		"user_name":  e.UserName,
		"version_id": versionID,
		"details":    e.Details,
	})
	if err != nil {
		return false, err
	}

	match, ok := out.Value().(bool)
	if !ok {
		return false, fmt.Errorf("filter did not evaluate to bool")
	}

	return match, nil
}
