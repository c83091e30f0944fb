package ledger

import "fmt"

type Kind string

const (
	KindInventory Kind = "inventory"
	KindLinen     Kind = "linen"
)

func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindInventory, KindLinen:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("unknown item kind: %s", s)
	}
}

type TxType string

// Inventory movements.
const (
	TxReceipt  TxType = "receipt"
	TxIssue    TxType = "issue"
	TxReturn   TxType = "return"
	TxTransfer TxType = "transfer"
)

// Linen movements.
const (
	TxIssueClean     TxType = "issue_clean"
	TxReturnSoiled   TxType = "return_soiled"
	TxSendLaundry    TxType = "send_laundry"
	TxReceiveLaundry TxType = "receive_laundry"
	TxMarkDamaged    TxType = "mark_damaged"
	TxPurchase       TxType = "purchase"
)

// Shared by both kinds.
const (
	TxAdjustment TxType = "adjustment"
	TxDiscard    TxType = "discard"
)

// Direction is the sign a transaction type's delta must carry.
type Direction int

const (
	Either Direction = iota
	Inbound
	Outbound
)

func (d Direction) String() string {
	switch d {
	case Inbound:
		return "inbound"
	case Outbound:
		return "outbound"
	default:
		return "either"
	}
}

func (d Direction) Allows(delta int64) bool {
	switch d {
	case Inbound:
		return delta > 0
	case Outbound:
		return delta < 0
	default:
		return delta != 0
	}
}

var txTypes = map[Kind]map[TxType]Direction{
	KindInventory: {
		TxReceipt:    Inbound,
		TxIssue:      Outbound,
		TxReturn:     Inbound,
		TxAdjustment: Either,
		TxDiscard:    Outbound,
		TxTransfer:   Either,
	},
	KindLinen: {
		TxIssueClean:     Outbound,
		TxReturnSoiled:   Inbound,
		TxSendLaundry:    Outbound,
		TxReceiveLaundry: Inbound,
		TxMarkDamaged:    Outbound,
		TxDiscard:        Outbound,
		TxPurchase:       Inbound,
		TxAdjustment:     Either,
	},
}

// DirectionOf reports the sign rule for typ on items of kind k, and whether
// typ is valid for that kind at all.
func DirectionOf(k Kind, typ TxType) (Direction, bool) {
	d, ok := txTypes[k][typ]
	return d, ok
}

// Forcible types may clamp a shortfall to zero when the caller asks for it.
func (t TxType) Forcible() bool {
	return t == TxAdjustment || t == TxDiscard
}
