// Package catalog provides read access to the monitoring configuration and
// event history consumed by the escalation engine.
package catalog

import "fmt"

// EventSource identifies what produced an event.
type EventSource int

const (
	SourceTriggers EventSource = iota
	SourceDiscovery
	SourceAutoRegistration
	SourceInternal
)

func (s EventSource) String() string {
	switch s {
	case SourceTriggers:
		return "trigger"
	case SourceDiscovery:
		return "discovery"
	case SourceAutoRegistration:
		return "autoregistration"
	case SourceInternal:
		return "internal"
	default:
		return fmt.Sprintf("unknown(%d)", int(s))
	}
}

// EventObject identifies the kind of object an event refers to.
type EventObject int

const (
	ObjectTrigger EventObject = iota
	ObjectDHost
	ObjectDService
	ObjectAutoRegHost
	ObjectItem
	ObjectLLDRule
)

// Severity is a trigger priority. Media severity masks are built from 1<<Severity.
type Severity int

const (
	SeverityNotClassified Severity = iota
	SeverityInformation
	SeverityWarning
	SeverityAverage
	SeverityHigh
	SeverityDisaster
)

var severityNames = []string{"Not classified", "Information", "Warning", "Average", "High", "Disaster"}

func (s Severity) String() string {
	if s < 0 || int(s) >= len(severityNames) {
		return "Unknown"
	}
	return severityNames[s]
}

// ActionStatus is the enable state of an action.
type ActionStatus int

const (
	ActionEnabled ActionStatus = iota
	ActionDisabled
)

// MaintenanceMode controls whether escalations pause during maintenance.
type MaintenanceMode int

const (
	MaintenanceNoPause MaintenanceMode = iota
	MaintenancePause
)

// Action is a configured reaction to events.
type Action struct {
	ID                    uint64          `json:"id"`
	Name                  string          `json:"name"`
	EventSource           EventSource     `json:"event_source"`
	EscPeriod             int             `json:"esc_period"`
	ShortData             string          `json:"short_data"`
	LongData              string          `json:"long_data"`
	RecoveryShortData     string          `json:"recovery_short_data"`
	RecoveryLongData      string          `json:"recovery_long_data"`
	MaintenanceMode       MaintenanceMode `json:"maintenance_mode"`
	Status                ActionStatus    `json:"status"`
	HasRecoveryOperations bool            `json:"has_recovery_operations"`
}

// OperationType is the variant of an operation.
type OperationType int

const (
	OperationMessage OperationType = iota
	OperationCommand
	OperationRecoveryMessage
)

func (t OperationType) String() string {
	switch t {
	case OperationMessage:
		return "message"
	case OperationCommand:
		return "command"
	case OperationRecoveryMessage:
		return "recovery_message"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// EvalType selects how an operation's conditions combine.
type EvalType int

const (
	EvalAndOr EvalType = iota
	EvalAnd
	EvalOr
)

func (e EvalType) String() string {
	switch e {
	case EvalAndOr:
		return "and_or"
	case EvalAnd:
		return "and"
	case EvalOr:
		return "or"
	default:
		return fmt.Sprintf("unknown(%d)", int(e))
	}
}

// Operation is one step definition of an action.
type Operation struct {
	ID          uint64        `json:"id"`
	ActionID    uint64        `json:"action_id"`
	Type        OperationType `json:"type"`
	EscStepFrom int           `json:"esc_step_from"`
	EscStepTo   int           `json:"esc_step_to"`
	EscPeriod   int           `json:"esc_period"`
	EvalType    EvalType      `json:"eval_type"`
	Recovery    bool          `json:"recovery"`
	Message     *OpMessage    `json:"message,omitempty"`
	Command     *OpCommand    `json:"command,omitempty"`
}

// InStep reports whether step falls inside the operation's step range.
func (o *Operation) InStep(step int) bool {
	return o.EscStepFrom <= step && (o.EscStepTo == 0 || o.EscStepTo >= step)
}

// OpMessage holds the message part of a message operation.
type OpMessage struct {
	DefaultMessage bool   `json:"default_message"`
	Subject        string `json:"subject"`
	Message        string `json:"message"`
	MediaTypeID    uint64 `json:"media_type_id"`
}

// ScriptType is the transport used by a command operation.
type ScriptType int

const (
	ScriptCustom ScriptType = iota
	ScriptIPMI
	ScriptSSH
	ScriptTelnet
	ScriptGlobal
)

func (t ScriptType) String() string {
	switch t {
	case ScriptCustom:
		return "custom"
	case ScriptIPMI:
		return "ipmi"
	case ScriptSSH:
		return "ssh"
	case ScriptTelnet:
		return "telnet"
	case ScriptGlobal:
		return "global"
	default:
		return fmt.Sprintf("unknown(%d)", int(t))
	}
}

// ExecuteOn selects where a custom script runs.
type ExecuteOn int

const (
	ExecuteOnAgent ExecuteOn = iota
	ExecuteOnServer
)

// OpCommand holds the command part of a command operation.
type OpCommand struct {
	Type       ScriptType `json:"type"`
	ScriptID   uint64     `json:"script_id,omitempty"`
	ExecuteOn  ExecuteOn  `json:"execute_on"`
	Port       string     `json:"port,omitempty"`
	AuthType   int        `json:"auth_type,omitempty"`
	Username   string     `json:"username,omitempty"`
	Password   string     `json:"-"`
	PublicKey  string     `json:"public_key,omitempty"`
	PrivateKey string     `json:"-"`
	Command    string     `json:"command"`
}

// ConditionType is the event attribute a condition tests.
type ConditionType int

const (
	ConditionHostGroup ConditionType = iota
	ConditionHost
	ConditionTrigger
	ConditionTriggerName
	ConditionTriggerSeverity
	ConditionEventAcknowledged
	ConditionEventSource
	ConditionTag
	ConditionTagValue
	ConditionExpression
)

// ConditionOperator is the comparison used by a condition.
type ConditionOperator int

const (
	OperatorEqual ConditionOperator = iota
	OperatorNotEqual
	OperatorLike
	OperatorNotLike
	OperatorMoreEqual
	OperatorLessEqual
)

// Condition is one operation condition. Value2 holds the tag name for tag value conditions.
type Condition struct {
	Type     ConditionType     `json:"type"`
	Operator ConditionOperator `json:"operator"`
	Value    string            `json:"value"`
	Value2   string            `json:"value2,omitempty"`
}

// Tag is an event tag.
type Tag struct {
	Tag   string `json:"tag"`
	Value string `json:"value"`
}

// TriggerStatus is the enable state of a trigger.
type TriggerStatus int

const (
	TriggerEnabled TriggerStatus = iota
	TriggerDisabled
)

// TriggerValue is the problem state of a trigger.
type TriggerValue int

const (
	TriggerValueOK TriggerValue = iota
	TriggerValueProblem
)

// Trigger is the trigger metadata attached to trigger events.
type Trigger struct {
	ID                 uint64        `json:"id"`
	Description        string        `json:"description"`
	Expression         string        `json:"expression"`
	RecoveryExpression string        `json:"recovery_expression"`
	RecoveryMode       int           `json:"recovery_mode"`
	Priority           Severity      `json:"priority"`
	Status             TriggerStatus `json:"status"`
	Value              TriggerValue  `json:"value"`
	ItemIDs            []uint64      `json:"item_ids"`
	HostIDs            []uint64      `json:"host_ids"`
}

// Event is a read-only snapshot of a problem or recovery event.
type Event struct {
	ID           uint64      `json:"id"`
	Source       EventSource `json:"source"`
	Object       EventObject `json:"object"`
	ObjectID     uint64      `json:"object_id"`
	Clock        int64       `json:"clock"`
	Value        int         `json:"value"`
	Acknowledged bool        `json:"acknowledged"`
	Tags         []Tag       `json:"tags,omitempty"`
	Trigger      *Trigger    `json:"trigger,omitempty"`
	HostIDs      []uint64    `json:"host_ids,omitempty"`
	HostGroupIDs []uint64    `json:"host_group_ids,omitempty"`
}

// Priority returns the trigger priority of the event, or not classified.
func (e *Event) Priority() Severity {
	if e == nil || e.Trigger == nil {
		return SeverityNotClassified
	}
	return e.Trigger.Priority
}

// ItemStatus is the state of an item.
type ItemStatus int

const (
	ItemActive ItemStatus = iota
	ItemDisabled
)

// Item is a monitored item.
type Item struct {
	ID     uint64     `json:"id"`
	HostID uint64     `json:"host_id"`
	Key    string     `json:"key"`
	Name   string     `json:"name"`
	Status ItemStatus `json:"status"`
}

// HostStatus is the monitoring state of a host.
type HostStatus int

const (
	HostMonitored HostStatus = iota
	HostNotMonitored
)

// Host is a monitored host.
type Host struct {
	ID       uint64     `json:"id"`
	Name     string     `json:"name"`
	Status   HostStatus `json:"status"`
	GroupIDs []uint64   `json:"group_ids,omitempty"`
}

// UserType is the role of a user.
type UserType int

const (
	UserTypeUser UserType = iota + 1
	UserTypeAdmin
	UserTypeSuperAdmin
)

// User is a notification recipient.
type User struct {
	ID      uint64   `json:"id"`
	Alias   string   `json:"alias"`
	Name    string   `json:"name"`
	Surname string   `json:"surname"`
	Type    UserType `json:"type"`
}

// DisplayName returns the name used in operator-facing messages.
func (u *User) DisplayName() string {
	full := u.Name
	if u.Surname != "" {
		if full != "" {
			full += " "
		}
		full += u.Surname
	}
	if full == "" {
		return u.Alias
	}
	if u.Alias == "" {
		return full
	}
	return fmt.Sprintf("%s (%s)", u.Alias, full)
}

// Media is one active delivery address of a user.
type Media struct {
	UserID          uint64 `json:"user_id"`
	MediaTypeID     uint64 `json:"media_type_id"`
	SendTo          string `json:"send_to"`
	Severity        int    `json:"severity"`
	Period          string `json:"period"`
	MediaTypeActive bool   `json:"media_type_active"`
}

// AcceptsSeverity applies the media severity mask.
func (m *Media) AcceptsSeverity(s Severity) bool {
	return (1<<uint(s))&m.Severity != 0
}

// Permission is a host access level.
type Permission int

const (
	PermDeny      Permission = 0
	PermRead      Permission = 2
	PermReadWrite Permission = 3
)

// CommandTarget is one host a command operation targets. HostID 0 means the event's own host.
type CommandTarget struct {
	HostID   uint64 `json:"host_id"`
	HostName string `json:"host_name"`
}
