package consistency

import (
	"errors"
	"fmt"
	"log/slog"
	"strings"
)

// ErrInvalidPolicy reports a resolver policy that cannot be applied.
var ErrInvalidPolicy = errors.New("invalid resolver policy")

// Kind is a class of divergence. Its value is the condition name used in
// resolver policies.
type Kind string

const (
	KindOrphanedDocumentReference   Kind = "missing_file_for_infoitem"
	KindOrphanedAttachmentReference Kind = "missing_file_for_attachment"
	KindOrphanedBlob                Kind = "missing_entry_for_file"
)

// Kinds lists every divergence kind in reporting order.
var Kinds = []Kind{KindOrphanedDocumentReference, KindOrphanedAttachmentReference, KindOrphanedBlob}

// Action is what a solver does with the ids of one divergence kind.
type Action string

const (
	ActionNoop                Action = "no-op"
	ActionRecord              Action = "record"
	ActionCreateDummy         Action = "create_dummy"
	ActionDelete              Action = "delete"
	ActionCreateAdminInfoitem Action = "create_admin_infoitem"
)

var policyActions = map[Kind]map[Action]struct{}{
	KindOrphanedDocumentReference:   {ActionCreateDummy: {}, ActionDelete: {}},
	KindOrphanedAttachmentReference: {ActionCreateDummy: {}, ActionDelete: {}},
	KindOrphanedBlob:                {ActionCreateAdminInfoitem: {}, ActionDelete: {}},
}

// PolicyError describes why a policy string was rejected.
type PolicyError struct {
	Clause string
	Reason string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("%s: %s in %q", ErrInvalidPolicy, e.Reason, e.Clause)
}

// Is makes errors.Is(err, ErrInvalidPolicy) match.
func (e *PolicyError) Is(target error) bool {
	return target == ErrInvalidPolicy
}

// Policy maps each divergence kind to its action. Kinds not present are
// left alone.
type Policy map[Kind]Action

// Action returns the action for kind, no-op when unset.
func (p Policy) Action(kind Kind) Action {
	if a, ok := p[kind]; ok {
		return a
	}
	return ActionNoop
}

func (p Policy) String() string {
	var clauses []string
	for _, kind := range Kinds {
		if a, ok := p[kind]; ok && a != ActionNoop {
			clauses = append(clauses, string(kind)+":"+string(a))
		}
	}
	return strings.Join(clauses, ",")
}

// ParsePolicy parses "condition:action[,condition:action...]".
func ParsePolicy(raw string) (Policy, error) {
	return parsePolicy(raw, slog.Default())
}

func parsePolicy(raw string, logger *slog.Logger) (Policy, error) {
	policy := Policy{}
	for _, clause := range strings.Split(raw, ",") {
		clause = strings.TrimSpace(clause)
		if clause == "" {
			continue
		}

		condition, action, ok := strings.Cut(clause, ":")
		if !ok {
			return nil, &PolicyError{Clause: clause, Reason: "missing ':' between condition and action"}
		}
		kind := Kind(strings.ToLower(strings.TrimSpace(condition)))
		allowed, known := policyActions[kind]
		if !known {
			return nil, &PolicyError{Clause: clause, Reason: fmt.Sprintf("unknown condition %q", condition)}
		}
		if _, dup := policy[kind]; dup {
			return nil, &PolicyError{Clause: clause, Reason: fmt.Sprintf("condition %q given more than once", kind)}
		}

		act := Action(strings.ToLower(strings.TrimSpace(action)))
		if _, ok := allowed[act]; !ok {
			if act != ActionNoop {
				logger.Warn("unknown resolver action, falling back to no-op", "kind", kind, "action", act)
			}
			act = ActionNoop
		}
		policy[kind] = act
	}
	return policy, nil
}
