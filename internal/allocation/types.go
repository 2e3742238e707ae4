package allocation

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type (
	LotID         uint
	ItemID        uint
	DestinationID uint
)

// Lot is one arrival of an item. Remaining is the stock limit for the grid.
type Lot struct {
	ID             LotID
	ItemID         ItemID
	ItemName       string
	Quantity       int
	Remaining      int
	WholesalePrice decimal.NullDecimal
	ArrivedAt      time.Time
}

func (l Lot) SoldOut() bool {
	return l.Remaining <= 0
}

func (l Lot) basePrice() decimal.Decimal {
	if l.WholesalePrice.Valid {
		return l.WholesalePrice.Decimal
	}
	return decimal.Zero
}

type DestinationKind int

const (
	DestinationStore DestinationKind = iota
	DestinationDisposal
)

type Destination struct {
	ID        DestinationID
	Kind      DestinationKind
	Name      string
	Color     string
	SortOrder int
}

// DisposalBucket is the synthetic destination for loss entries.
var DisposalBucket = Destination{Kind: DestinationDisposal, Name: "disposal"}

type DisposalReason string

const (
	ReasonDamage DisposalReason = "damage"
	ReasonLost   DisposalReason = "lost"
	ReasonOther  DisposalReason = "other"
)

var DisposalReasons = []DisposalReason{ReasonDamage, ReasonLost, ReasonOther}

func (r DisposalReason) Valid() bool {
	switch r {
	case ReasonDamage, ReasonLost, ReasonOther:
		return true
	}
	return false
}

func (r DisposalReason) Label() string {
	switch r {
	case ReasonDamage:
		return "damaged / wilted"
	case ReasonLost:
		return "lost / unknown"
	case ReasonOther:
		return "other"
	}
	return ""
}

func ParseDisposalReason(s string) (DisposalReason, error) {
	r := DisposalReason(s)
	if !r.Valid() {
		return "", fmt.Errorf("%w: %q", ErrInvalidReason, s)
	}
	return r, nil
}

// PriceChange is one immutable entry of a lot's price history.
type PriceChange struct {
	ID        uint
	ItemID    ItemID
	OldPrice  decimal.Decimal
	NewPrice  decimal.Decimal
	ChangedAt time.Time
}
