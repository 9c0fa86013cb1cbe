package model

import (
	"time"
)

// MatchGroupStatus is the lifecycle state of a match group.
type MatchGroupStatus string

// Match group statuses.
const (
	GroupProposed  MatchGroupStatus = "proposed"
	GroupConfirmed MatchGroupStatus = "confirmed"
)

// MatchGroup links one or more bank transactions to one or more vyapar
// transactions that represent the same real-world movement of money. The
// group is the unit; rows do not pair 1:1 across the two sides.
type MatchGroup struct {
	CreatedAt  time.Time
	ID         string
	UserID     string
	Status     MatchGroupStatus
	Unbalanced bool
	BankIDs    []string
	VyaparIDs  []string
}

// MemberIDs returns every transaction id referenced by the group.
func (g *MatchGroup) MemberIDs() []string {
	ids := make([]string, 0, len(g.BankIDs)+len(g.VyaparIDs))
	ids = append(ids, g.BankIDs...)
	ids = append(ids, g.VyaparIDs...)
	return ids
}
