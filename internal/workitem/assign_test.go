package workitem

import (
	"errors"
	"testing"

	"claimchain/internal/types"
)

func item(effort int, skills ...string) types.WorkItem {
	return types.WorkItem{
		ID:              types.NewID(),
		Type:            types.WorkCreateTests,
		EstimatedEffort: effort,
		RequiredSkills:  skills,
	}
}

func TestAssignPrefersCapableAgent(t *testing.T) {
	s := NewStrategy(
		[]AvailableAgent{{Type: "codegen", Capabilities: []string{"testing", "go"}, MaxComplexity: 8, Available: true}},
		[]AvailableHuman{{Name: "Jane", Availability: 0.8}},
		0.5, 7)

	got, err := s.Assign(item(3, "testing"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.Assignee.Kind != types.AssigneeAI || got.Assignee.AgentType != "codegen" {
		t.Errorf("Assignee = %+v, want codegen agent", got.Assignee)
	}
}

func TestAssignSkipsOverloadedAgent(t *testing.T) {
	s := NewStrategy(
		[]AvailableAgent{{Type: "codegen", Capabilities: []string{"testing"}, MaxComplexity: 4, Available: true}},
		[]AvailableHuman{{Name: "Jane", Contact: "jane@example.com", Availability: 0.8}},
		0.5, 7)

	// Effort 6 exceeds the agent's max complexity; falls back to human.
	got, err := s.Assign(item(6, "testing"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.Assignee.Kind != types.AssigneeHuman || got.Assignee.Name != "Jane" {
		t.Errorf("Assignee = %+v, want human Jane", got.Assignee)
	}
}

func TestAssignSkipsCapabilityMismatch(t *testing.T) {
	s := NewStrategy(
		[]AvailableAgent{{Type: "docs", Capabilities: []string{"documentation"}, MaxComplexity: 10, Available: true}},
		[]AvailableHuman{{Name: "Jane", Availability: 0.9}},
		0.5, 7)

	got, err := s.Assign(item(2, "debugging"))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.Assignee.Kind != types.AssigneeHuman {
		t.Errorf("Assignee.Kind = %s, want human (capability mismatch)", got.Assignee.Kind)
	}
}

func TestAssignPicksMostAvailableHuman(t *testing.T) {
	s := NewStrategy(nil,
		[]AvailableHuman{
			{Name: "Low", Availability: 0.55},
			{Name: "High", Availability: 0.9},
			{Name: "Below", Availability: 0.4},
		},
		0.5, 7)

	got, err := s.Assign(item(9))
	if err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	if got.Assignee.Name != "High" {
		t.Errorf("Assignee.Name = %q, want High", got.Assignee.Name)
	}
}

func TestAssignFailsWithoutCandidates(t *testing.T) {
	s := NewStrategy(
		[]AvailableAgent{{Type: "codegen", Capabilities: []string{"testing"}, MaxComplexity: 3, Available: true}},
		[]AvailableHuman{{Name: "Busy", Availability: 0.2}},
		0.5, 7)

	_, err := s.Assign(item(9, "testing"))
	if !errors.Is(err, ErrNoAvailableAssignee) {
		t.Errorf("err = %v, want ErrNoAvailableAssignee", err)
	}
}

func TestAssignIgnoresUnavailableAgent(t *testing.T) {
	s := NewStrategy(
		[]AvailableAgent{{Type: "codegen", Capabilities: []string{"testing"}, MaxComplexity: 9, Available: false}},
		nil, 0.5, 7)

	_, err := s.Assign(item(2, "testing"))
	if !errors.Is(err, ErrNoAvailableAssignee) {
		t.Errorf("err = %v, want ErrNoAvailableAssignee", err)
	}
}
