package registration

import (
	"fmt"

	"github.com/union-bmm/backend/internal/models"
)

// transition names an operation and the stages it may start from.
type transition struct {
	name string
	from []models.Stage
}

var (
	submitPreferences = transition{
		name: "submit preferences",
		from: []models.Stage{models.StageVerified, models.StagePreferencesSubmitted},
	}
	assignVenue = transition{
		name: "assign venue",
		from: []models.Stage{models.StagePreferencesSubmitted, models.StageVenueAssigned, models.StageAttendanceConfirmed},
	}
	confirmAttendance = transition{
		name: "confirm attendance",
		from: []models.Stage{models.StageVenueAssigned, models.StageAttendanceConfirmed},
	}
	declineAttendance = transition{
		name: "decline attendance",
		from: []models.Stage{models.StageVenueAssigned, models.StageAttendanceDeclined},
	}
	issueTicket = transition{
		name: "issue ticket",
		from: []models.Stage{models.StageAttendanceConfirmed},
	}
	checkIn = transition{
		name: "check in",
		from: []models.Stage{models.StageAttendanceConfirmed},
	}
)

func (t transition) allows(s models.Stage) bool {
	for _, f := range t.from {
		if f == s {
			return true
		}
	}
	return false
}

func (t transition) check(m models.Member) error {
	if t.allows(m.Stage) {
		return nil
	}
	return fmt.Errorf("%w: cannot %s from %s", ErrIllegalTransition, t.name, m.Stage)
}
