package enums

// ReservationStatus tracks a stock decrement taken during a checkout attempt.
type ReservationStatus string

const (
	ReservationStatusReserved  ReservationStatus = "reserved"
	ReservationStatusCommitted ReservationStatus = "committed"
	ReservationStatusReleased  ReservationStatus = "released"
)

func (s ReservationStatus) String() string {
	return string(s)
}
