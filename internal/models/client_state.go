package models

import (
	"time"
)

// MembershipPhase is a client's position in the session membership state machine
type MembershipPhase string

const (
	// PhaseIdle indicates the client is not in any session
	PhaseIdle MembershipPhase = "idle"

	// PhasePendingJoin indicates a create or join is in flight
	PhasePendingJoin MembershipPhase = "pending_join"

	// PhaseActive indicates the client is watching a session
	PhaseActive MembershipPhase = "active"

	// PhasePendingLeave indicates a leave write is in flight
	PhasePendingLeave MembershipPhase = "pending_leave"
)

// ClientState is the local, non-persisted state of one client
type ClientState struct {
	// CurrentlyWatching is the tracked session ID, empty for none
	CurrentlyWatching string

	// IsMinimized only has meaning while CurrentlyWatching is set
	IsMinimized bool

	// OperationInProgress mirrors the lifecycle lock
	OperationInProgress bool

	// LastOperationTimestamp is when the last lifecycle operation completed
	LastOperationTimestamp time.Time

	// Phase is the membership state machine position
	Phase MembershipPhase
}
