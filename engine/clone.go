package engine

import (
	"maps"
	"slices"
)

// Clone returns a deep copy. Store implementations hand out clones so callers
// can never mutate persisted state without going back through a Put.
func (c *Circle) Clone() *Circle {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = slices.Clone(c.Members)
	out.Statuses = slices.Clone(c.Statuses)
	out.HasReceivedPayout = slices.Clone(c.HasReceivedPayout)
	out.ContributionsPaid = slices.Clone(c.ContributionsPaid)
	out.PayoutQueue = slices.Clone(c.PayoutQueue)
	out.DissolutionVotes = slices.Clone(c.DissolutionVotes)
	out.ProposalVotes = slices.Clone(c.ProposalVotes)
	if c.ProposedLateFeeBps != nil {
		bps := *c.ProposedLateFeeBps
		out.ProposedLateFeeBps = &bps
	}
	return &out
}

// Clone returns a deep copy of the protocol record.
func (p *Protocol) Clone() *Protocol {
	if p == nil {
		return nil
	}
	out := *p
	out.Balances = maps.Clone(p.Balances)
	if out.Balances == nil {
		out.Balances = make(map[Address]int64)
	}
	return &out
}
