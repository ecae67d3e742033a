package registration

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/union-bmm/backend/internal/models"
)

func TestTransitionGuards(t *testing.T) {
	tests := []struct {
		tr      transition
		allowed []models.Stage
	}{
		{submitPreferences, []models.Stage{models.StageVerified, models.StagePreferencesSubmitted}},
		{assignVenue, []models.Stage{models.StagePreferencesSubmitted, models.StageVenueAssigned, models.StageAttendanceConfirmed}},
		{confirmAttendance, []models.Stage{models.StageVenueAssigned, models.StageAttendanceConfirmed}},
		{declineAttendance, []models.Stage{models.StageVenueAssigned, models.StageAttendanceDeclined}},
		{issueTicket, []models.Stage{models.StageAttendanceConfirmed}},
		{checkIn, []models.Stage{models.StageAttendanceConfirmed}},
	}
	all := []models.Stage{
		models.StageNotStarted, models.StageVerified, models.StagePreferencesSubmitted, models.StageVenueAssigned,
		models.StageAttendanceConfirmed, models.StageAttendanceDeclined, models.StageCheckedIn,
	}
	for _, tt := range tests {
		for _, s := range all {
			err := tt.tr.check(models.Member{Stage: s})
			if contains(tt.allowed, s) {
				assert.NoError(t, err, "%s from %s", tt.tr.name, s)
			} else {
				assert.ErrorIs(t, err, ErrIllegalTransition, "%s from %s", tt.tr.name, s)
			}
		}
	}
}

func contains(stages []models.Stage, s models.Stage) bool {
	for _, v := range stages {
		if v == s {
			return true
		}
	}
	return false
}
