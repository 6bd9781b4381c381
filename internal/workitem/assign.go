package workitem

import (
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"claimchain/internal/logging"
	"claimchain/internal/types"
)

// ErrNoAvailableAssignee is returned when neither an agent nor a human
// qualifies for a work item. Assignment never falls back to a silent default.
var ErrNoAvailableAssignee = errors.New("no available assignee")

// AvailableAgent is an automated agent eligible for assignment.
type AvailableAgent struct {
	Type          string
	Capabilities  []string
	MaxComplexity int
	Available     bool
}

// AvailableHuman is a human fallback assignee.
type AvailableHuman struct {
	Name         string
	Contact      string
	Skills       []string
	Availability float64 // 0.0-1.0
}

// Strategy routes work items to agents or humans. Effort ("how hard") and
// capability/availability ("who can do it") are matched independently.
type Strategy struct {
	agents []AvailableAgent
	humans []AvailableHuman

	minHumanAvailability float64
	aiEffortCutoff       int

	log *zap.Logger
	now func() time.Time
}

// NewStrategy builds an assignment strategy over the given pools.
func NewStrategy(agents []AvailableAgent, humans []AvailableHuman, minHumanAvailability float64, aiEffortCutoff int) *Strategy {
	return &Strategy{
		agents:               agents,
		humans:               humans,
		minHumanAvailability: minHumanAvailability,
		aiEffortCutoff:       aiEffortCutoff,
		log:                  logging.For(logging.CategoryWorkItem),
		now:                  time.Now,
	}
}

// Assign selects an assignee for the work item.
//
// Preference order: an available agent whose declared max complexity covers
// the item's effort and whose capabilities intersect the required skills;
// otherwise the human with the highest availability above the minimum
// threshold; otherwise ErrNoAvailableAssignee.
func (s *Strategy) Assign(item types.WorkItem) (types.WorkItemAssignment, error) {
	if item.EstimatedEffort <= s.aiEffortCutoff {
		for _, a := range s.agents {
			if !a.Available || a.MaxComplexity < item.EstimatedEffort {
				continue
			}
			if !intersects(a.Capabilities, item.RequiredSkills) {
				continue
			}
			s.log.Debug("assigned to agent",
				zap.String("work_item", item.ID.String()),
				zap.String("agent_type", a.Type))
			return types.WorkItemAssignment{
				WorkItemID: item.ID,
				Assignee: types.Assignee{
					Kind:         types.AssigneeAI,
					AgentType:    a.Type,
					Capabilities: a.Capabilities,
				},
				AssignedAt: s.now(),
				Status:     types.AssignmentAssigned,
			}, nil
		}
	}

	var best *AvailableHuman
	for i := range s.humans {
		h := &s.humans[i]
		if h.Availability <= s.minHumanAvailability {
			continue
		}
		if best == nil || h.Availability > best.Availability {
			best = h
		}
	}
	if best == nil {
		return types.WorkItemAssignment{}, fmt.Errorf("work item %s (effort %d): %w",
			item.ID, item.EstimatedEffort, ErrNoAvailableAssignee)
	}

	s.log.Debug("assigned to human",
		zap.String("work_item", item.ID.String()),
		zap.String("name", best.Name))
	return types.WorkItemAssignment{
		WorkItemID: item.ID,
		Assignee: types.Assignee{
			Kind:    types.AssigneeHuman,
			Name:    best.Name,
			Contact: best.Contact,
		},
		AssignedAt: s.now(),
		Status:     types.AssignmentAssigned,
	}, nil
}

func intersects(a, b []string) bool {
	if len(b) == 0 {
		return true
	}
	set := make(map[string]struct{}, len(a))
	for _, s := range a {
		set[s] = struct{}{}
	}
	for _, s := range b {
		if _, ok := set[s]; ok {
			return true
		}
	}
	return false
}
