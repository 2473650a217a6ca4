package models

import (
	"encoding/json"
	"time"
)

// ConnectionStatus tracks where a linked connection sits in the
// aggregator's connect/update lifecycle.
type ConnectionStatus string

const (
	StatusCreated          ConnectionStatus = "created"
	StatusLoginInProgress  ConnectionStatus = "login_in_progress"
	StatusWaitingUserInput ConnectionStatus = "waiting_user_input"
	StatusUpdating         ConnectionStatus = "updating"
	StatusUpdated          ConnectionStatus = "updated"
	StatusOutdated         ConnectionStatus = "outdated"
	StatusLoginError       ConnectionStatus = "login_error"
	StatusError            ConnectionStatus = "error"
)

// validTransitions encodes the connection lifecycle. updated/outdated are
// non-terminal: a later provider update cycles them back through updating.
// error holds until a new user action restarts the flow from created.
var validTransitions = map[ConnectionStatus][]ConnectionStatus{
	StatusCreated:          {StatusLoginInProgress, StatusWaitingUserInput, StatusUpdating, StatusError, StatusLoginError},
	StatusLoginInProgress:  {StatusWaitingUserInput, StatusUpdating, StatusLoginError, StatusError},
	StatusWaitingUserInput: {StatusLoginInProgress, StatusUpdating, StatusLoginError, StatusError},
	StatusUpdating:         {StatusUpdated, StatusOutdated, StatusLoginError, StatusError},
	StatusUpdated:          {StatusUpdating, StatusOutdated, StatusError},
	StatusOutdated:         {StatusUpdating, StatusError},
	StatusLoginError:       {StatusCreated, StatusLoginInProgress, StatusWaitingUserInput},
	StatusError:            {StatusCreated},
}

// CanTransition reports whether moving from one status to another is a
// legal step in the lifecycle. Self-transitions are allowed so repeated
// provider notifications are harmless.
func CanTransition(from, to ConnectionStatus) bool {
	if from == to {
		return true
	}
	for _, next := range validTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// IsKnownStatus reports whether s is one of the lifecycle statuses.
func IsKnownStatus(s ConnectionStatus) bool {
	if s == StatusCreated {
		return true
	}
	_, ok := validTransitions[s]
	return ok
}

// LinkedConnection is one authenticated session to a financial
// institution through the aggregator (the provider calls it an "item").
type LinkedConnection struct {
	ID              int64            `json:"id"`
	UserID          int64            `json:"user_id"`
	ConnectionID    string           `json:"connection_id"` // provider id, unique
	ConnectorID     string           `json:"connector_id"`
	ConnectorName   string           `json:"connector_name"`
	Status          ConnectionStatus `json:"status"`
	ExecutionStatus string           `json:"execution_status"`
	ErrorCode       *string          `json:"error_code,omitempty"`
	ErrorMessage    *string          `json:"error_message,omitempty"`
	ConsentID       *string          `json:"consent_id,omitempty"`
	ConsentExpires  *time.Time       `json:"consent_expires_at,omitempty"`
	StatusDetail    json.RawMessage  `json:"status_detail,omitempty"`
	LastUpdatedAt   *time.Time       `json:"last_updated_at,omitempty"`
	Active          bool             `json:"active"`
	CreatedAt       time.Time        `json:"created_at"`
	UpdatedAt       time.Time        `json:"updated_at"`
}
