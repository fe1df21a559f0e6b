package domain

// CartLine is one line of a buyer's cart as seen by the hold subsystem. Carts
// are owned elsewhere; holds only read them.
type CartLine struct {
	ID       string
	CartID   string
	UserID   string
	EventID  string
	ZoneID   string
	Quantity int
}
