package status

// Value is a shipping status as exchanged with the backend.
type Value string

// Shipping statuses.
const (
	Unassigned    Value = "unassigned"
	Assigned      Value = "assigned"
	PickupPending Value = "pickup_pending"
	PickedUp      Value = "picked_up"
	Delivering    Value = "delivering"
	Delivered     Value = "delivered"
	Failed        Value = "failed"
	Returned      Value = "returned"
)

// validTransitions defines which status transitions are allowed.
// Terminal states map to an empty set.
var validTransitions = map[Value][]Value{
	Unassigned:    {Assigned},
	Assigned:      {PickupPending, PickedUp},
	PickupPending: {PickedUp},
	PickedUp:      {Delivering},
	Delivering:    {Delivered, Failed, Returned},
	Failed:        {PickupPending},
	Returned:      {},
	Delivered:     {},
}

// Normalize maps an unrecognized status to Unassigned, the most
// restrictive state.
func Normalize(v Value) Value {
	if _, ok := validTransitions[v]; !ok {
		return Unassigned
	}
	return v
}

// Next returns the set of legal next statuses from the given one.
func Next(from Value) []Value {
	allowed := validTransitions[Normalize(from)]
	out := make([]Value, len(allowed))
	copy(out, allowed)
	return out
}

// Allows reports whether the transition from -> to is legal.
func Allows(from, to Value) bool {
	for _, v := range validTransitions[Normalize(from)] {
		if v == to {
			return true
		}
	}
	return false
}

// IsTerminal returns true if the status has no outgoing transitions.
func IsTerminal(v Value) bool {
	return v == Delivered || v == Returned
}

// NeedsConfirmation returns true for target statuses that require an
// explicit operator confirmation step before submission.
func NeedsConfirmation(to Value) bool {
	return to == Failed || to == Returned
}

// Meta is display metadata for a status.
type Meta struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

var metadata = map[Value]Meta{
	Unassigned:    {Label: "Unassigned", Color: "gray"},
	Assigned:      {Label: "Assigned", Color: "blue"},
	PickupPending: {Label: "Pickup pending", Color: "orange"},
	PickedUp:      {Label: "Picked up", Color: "teal"},
	Delivering:    {Label: "Delivering", Color: "purple"},
	Delivered:     {Label: "Delivered", Color: "green"},
	Failed:        {Label: "Failed", Color: "red"},
	Returned:      {Label: "Returned", Color: "brown"},
}

// MetaFor returns display metadata for a status.
func MetaFor(v Value) Meta {
	return metadata[Normalize(v)]
}

// String implements fmt.Stringer.
func (v Value) String() string {
	return string(v)
}
