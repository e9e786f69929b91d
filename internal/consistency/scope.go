package consistency

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"cfsck/internal/models"
)

// ErrInvalidScope reports a scope string that cannot be parsed.
var ErrInvalidScope = errors.New("invalid scope")

// ScopeKind selects which contexts a run covers.
type ScopeKind string

const (
	ScopeContext   ScopeKind = "context"
	ScopeFilestore ScopeKind = "filestore"
	ScopeDatabase  ScopeKind = "database"
	ScopeAll       ScopeKind = "all"
)

// Scope is a parsed scope selector. ID is unused for ScopeAll.
type Scope struct {
	Kind ScopeKind
	ID   int
}

// ContextScope selects a single context.
func ContextScope(id int) Scope { return Scope{Kind: ScopeContext, ID: id} }

// AllScope selects every registered context.
func AllScope() Scope { return Scope{Kind: ScopeAll} }

// ParseScope parses "context <id>", "filestore <id>", "database <id>" or "all".
func ParseScope(raw string) (Scope, error) {
	fields := strings.Fields(strings.ToLower(raw))
	if len(fields) == 0 {
		return Scope{}, fmt.Errorf("%w: scope is required", ErrInvalidScope)
	}

	kind := ScopeKind(fields[0])
	switch kind {
	case ScopeAll:
		if len(fields) != 1 {
			return Scope{}, fmt.Errorf("%w: %q takes no id", ErrInvalidScope, raw)
		}
		return AllScope(), nil
	case ScopeContext, ScopeFilestore, ScopeDatabase:
		if len(fields) != 2 {
			return Scope{}, fmt.Errorf("%w: %q needs exactly one id", ErrInvalidScope, raw)
		}
		id, err := strconv.Atoi(fields[1])
		if err != nil || id <= 0 {
			return Scope{}, fmt.Errorf("%w: %q is not a positive id", ErrInvalidScope, fields[1])
		}
		return Scope{Kind: kind, ID: id}, nil
	default:
		return Scope{}, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, fields[0])
	}
}

func (s Scope) String() string {
	if s.Kind == ScopeAll {
		return string(ScopeAll)
	}
	return fmt.Sprintf("%s %d", s.Kind, s.ID)
}

// Directory resolves context ids and enumerates contexts. Lists are in
// ascending id order; unknown ids are reported as configdb.ErrNotFound.
type Directory interface {
	GetContext(ctx context.Context, id int) (*models.Context, error)
	ListByFilestore(ctx context.Context, id int) ([]models.Context, error)
	ListByDatabase(ctx context.Context, id int) ([]models.Context, error)
	ListAll(ctx context.Context) ([]models.Context, error)
}

func resolveScope(ctx context.Context, dir Directory, scope Scope) ([]models.Context, error) {
	switch scope.Kind {
	case ScopeContext:
		c, err := dir.GetContext(ctx, scope.ID)
		if err != nil {
			return nil, err
		}
		return []models.Context{*c}, nil
	case ScopeFilestore:
		return dir.ListByFilestore(ctx, scope.ID)
	case ScopeDatabase:
		return dir.ListByDatabase(ctx, scope.ID)
	case ScopeAll:
		return dir.ListAll(ctx)
	default:
		return nil, fmt.Errorf("%w: unknown scope %q", ErrInvalidScope, scope.Kind)
	}
}
