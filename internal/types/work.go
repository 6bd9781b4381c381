package types

import (
	"encoding/json"
	"time"
)

// WorkItemType names the remedial action a gap calls for.
type WorkItemType string

const (
	WorkImplementRequirements WorkItemType = "implement_requirements"
	WorkCreateTests           WorkItemType = "create_tests"
	WorkFixImplementation     WorkItemType = "fix_implementation"
	WorkImproveTests          WorkItemType = "improve_tests"
)

// WorkItemStatus tracks a work item through its lifecycle.
type WorkItemStatus string

const (
	WorkPending    WorkItemStatus = "pending"
	WorkAssigned   WorkItemStatus = "assigned"
	WorkInProgress WorkItemStatus = "in_progress"
	WorkCompleted  WorkItemStatus = "completed"
	WorkCancelled  WorkItemStatus = "cancelled"
	WorkBlocked    WorkItemStatus = "blocked"
)

// WorkItem is a self-contained, effort-estimated unit of remedial work.
// Title, Description, and Specification together carry everything an agent
// or human needs to act without re-querying the chain.
type WorkItem struct {
	ID              ID              `json:"id"`
	Type            WorkItemType    `json:"work_item_type"`
	ClaimID         ID              `json:"claim_id"`
	Title           string          `json:"title"`
	Description     string          `json:"description"`
	Status          WorkItemStatus  `json:"status"`
	CreatedAt       time.Time       `json:"created_at"`
	EstimatedEffort int             `json:"estimated_effort"` // 1-10
	RequiredSkills  []string        `json:"required_skills"`
	Dependencies    []string        `json:"dependencies,omitempty"`
	Specification   json.RawMessage `json:"specification,omitempty"` // type-specific payload
}

// SuitableForAI reports whether this item can be handed to an automated agent:
// bounded effort and a bounded external dependency count.
func (w WorkItem) SuitableForAI() bool {
	return w.EstimatedEffort <= 7 && len(w.Dependencies) <= 3
}

// AssigneeKind discriminates who a work item went to.
type AssigneeKind string

const (
	AssigneeAI    AssigneeKind = "ai_agent"
	AssigneeHuman AssigneeKind = "human"
)

// Assignee identifies the agent or person responsible for a work item.
type Assignee struct {
	Kind         AssigneeKind `json:"kind"`
	AgentType    string       `json:"agent_type,omitempty"`
	Capabilities []string     `json:"capabilities,omitempty"`
	Name         string       `json:"name,omitempty"`
	Contact      string       `json:"contact,omitempty"`
}

// AssignmentStatus tracks an assignment.
type AssignmentStatus string

const (
	AssignmentAssigned   AssignmentStatus = "assigned"
	AssignmentInProgress AssignmentStatus = "in_progress"
	AssignmentCompleted  AssignmentStatus = "completed"
	AssignmentFailed     AssignmentStatus = "failed"
	AssignmentCancelled  AssignmentStatus = "cancelled"
)

// WorkItemAssignment records who a work item was routed to.
type WorkItemAssignment struct {
	WorkItemID ID               `json:"work_item_id"`
	Assignee   Assignee         `json:"assignee"`
	AssignedAt time.Time        `json:"assigned_at"`
	Status     AssignmentStatus `json:"status"`
}
