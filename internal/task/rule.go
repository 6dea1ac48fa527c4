package task

import (
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// TriggerType names the event that activates rule evaluation.
type TriggerType string

const (
	TriggerCompletion   TriggerType = "completion"
	TriggerStatusChange TriggerType = "status_change"
	TriggerCreated      TriggerType = "created"
)

// Operator compares a task field against a literal.
type Operator string

const (
	OpEquals      Operator = "equals"
	OpNotEquals   Operator = "not_equals"
	OpContains    Operator = "contains"
	OpGreaterThan Operator = "greater_than"
	OpLessThan    Operator = "less_than"
)

// ActionType discriminates the Action variants on the wire.
type ActionType string

const (
	ActionCreateTask  ActionType = "create_task"
	ActionAssignUser  ActionType = "assign_user"
	ActionUpdateField ActionType = "update_field"
)

// IsValidTrigger checks if a trigger type is known.
func IsValidTrigger(t TriggerType) bool {
	switch t {
	case TriggerCompletion, TriggerStatusChange, TriggerCreated:
		return true
	default:
		return false
	}
}

// IsValidOperator checks if an operator is known.
func IsValidOperator(op Operator) bool {
	switch op {
	case OpEquals, OpNotEquals, OpContains, OpGreaterThan, OpLessThan:
		return true
	default:
		return false
	}
}

// Trigger selects the event a rule listens to.
type Trigger struct {
	Type TriggerType `yaml:"type" json:"type"`
}

// Condition is one conjunct of a rule's guard.
type Condition struct {
	Field    string   `yaml:"field" json:"field"`
	Operator Operator `yaml:"operator" json:"operator"`
	Value    any      `yaml:"value" json:"value"`
}

// WorkflowRule is a trigger, a conjunction of conditions and an ordered list of actions.
type WorkflowRule struct {
	ID         string      `yaml:"id" json:"id"`
	Name       string      `yaml:"name" json:"name"`
	Trigger    Trigger     `yaml:"trigger" json:"trigger"`
	Conditions []Condition `yaml:"conditions,omitempty" json:"conditions,omitempty"`
	Actions    ActionList  `yaml:"actions" json:"actions"`
	IsActive   bool        `yaml:"is_active" json:"isActive"`
}

// Action is a workflow side effect. The set of variants is closed:
// CreateTaskAction, AssignUserAction and UpdateFieldAction.
type Action interface {
	Type() ActionType
	action()
}

// CreateTaskAction spawns a follow-up task from a template.
type CreateTaskAction struct {
	Title         string   `yaml:"title" json:"title"`
	Description   string   `yaml:"description,omitempty" json:"description,omitempty"`
	Priority      Priority `yaml:"priority,omitempty" json:"priority,omitempty"`
	AssignedTo    string   `yaml:"assigned_to,omitempty" json:"assignedTo,omitempty"`
	Label         string   `yaml:"label,omitempty" json:"label,omitempty"`
	Tags          []string `yaml:"tags,omitempty" json:"tags,omitempty"`
	DueDateOffset *int     `yaml:"due_date_offset,omitempty" json:"dueDateOffset,omitempty"`
}

// AssignUserAction overwrites the triggering task's assignee.
type AssignUserAction struct {
	UserID string `yaml:"user_id" json:"userId"`
}

// UpdateFieldAction overwrites a named field of the triggering task with a literal.
type UpdateFieldAction struct {
	Field string `yaml:"field" json:"field"`
	Value any    `yaml:"value" json:"value"`
}

func (CreateTaskAction) Type() ActionType  { return ActionCreateTask }
func (AssignUserAction) Type() ActionType  { return ActionAssignUser }
func (UpdateFieldAction) Type() ActionType { return ActionUpdateField }

func (CreateTaskAction) action()  {}
func (AssignUserAction) action()  {}
func (UpdateFieldAction) action() {}

// ActionList is an ordered action sequence encoded as [{type, payload}].
type ActionList []Action

type actionEnvelopeYAML struct {
	Type    ActionType `yaml:"type"`
	Payload yaml.Node  `yaml:"payload"`
}

type actionEnvelopeJSON struct {
	Type    ActionType      `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// UnknownActionError indicates an action type outside the closed variant set.
type UnknownActionError struct {
	Type ActionType
}

func (e UnknownActionError) Error() string {
	return fmt.Sprintf("unknown workflow action type: %q", e.Type)
}

func newAction(t ActionType) (Action, error) {
	switch t {
	case ActionCreateTask:
		return &CreateTaskAction{}, nil
	case ActionAssignUser:
		return &AssignUserAction{}, nil
	case ActionUpdateField:
		return &UpdateFieldAction{}, nil
	default:
		return nil, UnknownActionError{Type: t}
	}
}

// deref turns the pointer produced by newAction back into its value variant.
func deref(a Action) Action {
	switch v := a.(type) {
	case *CreateTaskAction:
		return *v
	case *AssignUserAction:
		return *v
	case *UpdateFieldAction:
		return *v
	default:
		return a
	}
}

// MarshalYAML implements yaml.Marshaler.
func (l ActionList) MarshalYAML() (any, error) {
	out := make([]map[string]any, 0, len(l))
	for _, a := range l {
		out = append(out, map[string]any{"type": a.Type(), "payload": a})
	}
	return out, nil
}

// UnmarshalYAML implements yaml.Unmarshaler.
func (l *ActionList) UnmarshalYAML(node *yaml.Node) error {
	var envs []actionEnvelopeYAML
	if err := node.Decode(&envs); err != nil {
		return err
	}
	list := make(ActionList, 0, len(envs))
	for _, env := range envs {
		a, err := newAction(env.Type)
		if err != nil {
			return err
		}
		if env.Payload.Kind != 0 {
			if err := env.Payload.Decode(a); err != nil {
				return fmt.Errorf("decoding %s payload: %w", env.Type, err)
			}
		}
		list = append(list, deref(a))
	}
	*l = list
	return nil
}

// MarshalJSON implements json.Marshaler.
func (l ActionList) MarshalJSON() ([]byte, error) {
	envs := make([]actionEnvelopeJSON, 0, len(l))
	for _, a := range l {
		payload, err := json.Marshal(a)
		if err != nil {
			return nil, err
		}
		envs = append(envs, actionEnvelopeJSON{Type: a.Type(), Payload: payload})
	}
	return json.Marshal(envs)
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *ActionList) UnmarshalJSON(data []byte) error {
	var envs []actionEnvelopeJSON
	if err := json.Unmarshal(data, &envs); err != nil {
		return err
	}
	list := make(ActionList, 0, len(envs))
	for _, env := range envs {
		a, err := newAction(env.Type)
		if err != nil {
			return err
		}
		if len(env.Payload) > 0 {
			if err := json.Unmarshal(env.Payload, a); err != nil {
				return fmt.Errorf("decoding %s payload: %w", env.Type, err)
			}
		}
		list = append(list, deref(a))
	}
	*l = list
	return nil
}
