package models

import "cmp"

// ParticipantOrder is an immutable ranking value. Replace it in the queue
// instead of mutating a stored copy.
type ParticipantOrder struct {
	Fixed         bool              `json:"fixed"`
	Status        ParticipantStatus `json:"status"`
	ParticipantID int64             `json:"participant_id"`
	ViewerID      int64             `json:"viewer_id"`
	Round         int               `json:"round"`

	// Carried for display only; not a ranking input.
	Nickname string `json:"nickname"`
}

// CompareParticipantOrder ranks fixed picks first, then by status order,
// then by participant id (arrival). ViewerID breaks ties between entries that
// would otherwise compare equal so the order stays total.
func CompareParticipantOrder(a, b ParticipantOrder) int {
	if a.Fixed != b.Fixed {
		if a.Fixed {
			return -1
		}
		return 1
	}
	if c := cmp.Compare(a.Status.Order(), b.Status.Order()); c != 0 {
		return c
	}
	if c := cmp.Compare(a.ParticipantID, b.ParticipantID); c != 0 {
		return c
	}
	return cmp.Compare(a.ViewerID, b.ViewerID)
}

func (o ParticipantOrder) WithFixed(fixed bool) ParticipantOrder {
	o.Fixed = fixed
	return o
}

func (o ParticipantOrder) WithStatus(status ParticipantStatus) ParticipantOrder {
	o.Status = status
	return o
}

func (o ParticipantOrder) WithRound(round int) ParticipantOrder {
	o.Round = round
	return o
}
