package model

// DeriveReservationStatus computes the aggregate reservation status from the
// statuses of its room lines.  Every lifecycle operation calls it after
// mutating lines instead of assigning a reservation status directly.
//
// Rules, in order:
//   - no lines: the current status is kept;
//   - every line cancelled or voided: cancelled if any line was cancelled,
//     voided otherwise;
//   - every remaining line no-show: no_show;
//   - every staying line (not no-show) checked out: checked_out;
//   - every staying line checked in or out: checked_in (partial check-out);
//   - some lines checked in, others still reserved: confirmed (partial
//     check-in);
//   - otherwise the booking is still ahead: pending stays pending,
//     anything else becomes confirmed.
func DeriveReservationStatus(current ReservationStatus, lines []ReservationRoom) ReservationStatus {
	if len(lines) == 0 {
		return current
	}
	var cancelled, active, noShow, checkedIn, checkedOut int
	for _, l := range lines {
		switch l.Status {
		case AssignmentCancelled:
			cancelled++
			continue
		case AssignmentVoided:
			continue
		}
		active++
		switch l.Status {
		case AssignmentNoShow:
			noShow++
		case AssignmentCheckedIn:
			checkedIn++
		case AssignmentCheckedOut:
			checkedOut++
		}
	}

	switch {
	case active == 0 && cancelled > 0:
		return ReservationCancelled
	case active == 0:
		return ReservationVoided
	case noShow == active:
		return ReservationNoShow
	}

	staying := active - noShow
	switch {
	case checkedOut == staying:
		return ReservationCheckedOut
	case checkedIn+checkedOut == staying:
		return ReservationCheckedIn
	case checkedIn+checkedOut > 0:
		return ReservationConfirmed
	case current == ReservationPending:
		return ReservationPending
	}
	return ReservationConfirmed
}
