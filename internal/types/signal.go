package types

// Direction is the side of a trade idea.
type Direction string

const (
	DirectionLong  Direction = "long"
	DirectionShort Direction = "short"
)

// EntryGroup decides when a candidate may be entered during the session.
type EntryGroup string

const (
	// EntryGroupImmediate candidates are entered right after the open.
	EntryGroupImmediate EntryGroup = "immediate"
	// EntryGroupConfirm candidates wait for the live price to move in the signaled direction.
	EntryGroupConfirm EntryGroup = "confirm"
)

// Signal is what a strategy emits for a symbol that matches its rules.
type Signal struct {
	Direction Direction         `json:"direction"`
	Strength  float64           `json:"strength"`
	Reason    string            `json:"reason,omitempty"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Sign returns +1 for long and -1 for short.
func (d Direction) Sign() float64 {
	if d == DirectionShort {
		return -1
	}

	return 1
}

// EntrySide is the order side that opens a position in this direction.
func (d Direction) EntrySide() PurchaseType {
	if d == DirectionShort {
		return PurchaseTypeSell
	}

	return PurchaseTypeBuy
}

// ExitSide is the order side that closes a position in this direction.
func (d Direction) ExitSide() PurchaseType {
	if d == DirectionShort {
		return PurchaseTypeBuy
	}

	return PurchaseTypeSell
}
