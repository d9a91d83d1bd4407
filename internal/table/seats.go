package table

import "errors"

// NumSeats is the fixed seat count of every table.
const NumSeats = 4

var (
	ErrTableClosed     = errors.New("table closed")
	ErrTableLocked     = errors.New("table is mid-match")
	ErrSeatOccupied    = errors.New("seat is occupied")
	ErrInvalidSeat     = errors.New("invalid seat number")
	ErrNotOccupant     = errors.New("seat is held by another user")
	ErrMatchNotRunning = errors.New("no match is running")
)

type seat struct {
	userID uint64
	name   string
	ready  bool
}

// seatVector is the table's authoritative occupancy state: NumSeats slots,
// each empty or holding one user. Seat numbers are 1-based on the API.
// Nothing outside this file writes a slot, so the occupied count is always
// derivable and never tracked separately.
type seatVector [NumSeats]seat

func seatIndex(seatNo int) (int, error) {
	if seatNo < 1 || seatNo > NumSeats {
		return 0, ErrInvalidSeat
	}
	return seatNo - 1, nil
}

func (v *seatVector) occupied(seatNo int) (bool, error) {
	i, err := seatIndex(seatNo)
	if err != nil {
		return false, err
	}
	return v[i].userID != 0, nil
}

func (v *seatVector) claim(seatNo int, userID uint64, name string) error {
	i, err := seatIndex(seatNo)
	if err != nil {
		return err
	}
	if v[i].userID != 0 {
		return ErrSeatOccupied
	}
	v[i] = seat{userID: userID, name: name}
	return nil
}

// release clears a seat only if userID currently holds it; cross-user
// eviction is rejected and mutates nothing.
func (v *seatVector) release(seatNo int, userID uint64) error {
	i, err := seatIndex(seatNo)
	if err != nil {
		return err
	}
	if v[i].userID != userID || userID == 0 {
		return ErrNotOccupant
	}
	v[i] = seat{}
	return nil
}

func (v *seatVector) setReady(userID uint64, ready bool) (int, error) {
	seatNo, ok := v.seatOf(userID)
	if !ok {
		return 0, ErrNotOccupant
	}
	v[seatNo-1].ready = ready
	return seatNo, nil
}

func (v *seatVector) seatOf(userID uint64) (int, bool) {
	if userID == 0 {
		return 0, false
	}
	for i := range v {
		if v[i].userID == userID {
			return i + 1, true
		}
	}
	return 0, false
}

func (v *seatVector) occupantCount() int {
	n := 0
	for i := range v {
		if v[i].userID != 0 {
			n++
		}
	}
	return n
}

// allReady reports whether every seat is occupied and marked ready, the
// start-match condition for a 4-player table.
func (v *seatVector) allReady() bool {
	for i := range v {
		if v[i].userID == 0 || !v[i].ready {
			return false
		}
	}
	return true
}

func (v *seatVector) clearAll() {
	for i := range v {
		v[i] = seat{}
	}
}
