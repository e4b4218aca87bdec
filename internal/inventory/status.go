package inventory

type Status string

const (
	StatusReceived     Status = "received"
	StatusInspecting   Status = "inspecting"
	StatusRefurbishing Status = "refurbishing"
	StatusListed       Status = "listed"
	StatusReserved     Status = "reserved"
	StatusSold         Status = "sold"
)

var validNext = map[Status]map[Status]bool{
	StatusReceived:     {StatusInspecting: true},
	StatusInspecting:   {StatusRefurbishing: true},
	StatusRefurbishing: {StatusListed: true},
	StatusListed:       {StatusReserved: true},
	StatusReserved:     {StatusSold: true, StatusListed: true},
	StatusSold:         {StatusReceived: true},
}

func CanTransition(from, to Status) bool {
	return validNext[from][to]
}

func (s Status) Valid() bool {
	_, ok := validNext[s]
	return ok
}

type SourceType string

const (
	SourceTradeIn        SourceType = "trade-in"
	SourceBulk           SourceType = "bulk"
	SourceDirectPurchase SourceType = "direct-purchase"
	SourceReturn         SourceType = "return"
)

func (s SourceType) Valid() bool {
	switch s {
	case SourceTradeIn, SourceBulk, SourceDirectPurchase, SourceReturn:
		return true
	}
	return false
}
