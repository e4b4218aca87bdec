package orders

type Status string

const (
	StatusPending   Status = "pending"
	StatusPaid      Status = "paid"
	StatusCancelled Status = "cancelled"
)

type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// PaymentMode records how an order was paid, so stub completions are never
// mistaken for collected payments.
type PaymentMode string

const (
	ModeStub         PaymentMode = "stub"
	ModeStubFallback PaymentMode = "stub_fallback"
	ModeProcessor    PaymentMode = "processor"
)

var validNext = map[Status]map[Status]bool{
	StatusPending:   {StatusPaid: true, StatusCancelled: true},
	StatusPaid:      {},
	StatusCancelled: {},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}
