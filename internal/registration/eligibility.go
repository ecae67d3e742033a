package registration

import "github.com/union-bmm/backend/internal/models"

// Eligibility decides who may apply for a special vote. Only one region offers them.
type Eligibility struct {
	Region models.Region
}

// NewEligibility returns an evaluator for the designated special vote region.
func NewEligibility(region models.Region) Eligibility {
	return Eligibility{Region: region}
}

// IsEligible reports whether m may request a special vote.
func (e Eligibility) IsEligible(m models.Member) bool {
	return IsEligible(m, e.Region)
}

// OffersSpecialVotes reports whether members of region r can ever apply.
func (e Eligibility) OffersSpecialVotes(r models.Region) bool {
	return e.Region != "" && r == e.Region
}

// IsEligible is true only for a member of the designated region who has declined to attend.
func IsEligible(m models.Member, designated models.Region) bool {
	return designated != "" && m.Region == designated && m.Stage == models.StageAttendanceDeclined
}
