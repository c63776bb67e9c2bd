package itch

import "github.com/lxstream/itchbook/pkg/itchtypes"

// Tag identifies which body variant a Message carries. Values are the
// literal ASCII message-type bytes from the ITCH 5.0 wire format.
type Tag byte

const (
	TagSystemEvent                      Tag = 'S'
	TagStockDirectory                   Tag = 'R'
	TagStockTradingAction               Tag = 'H'
	TagRegShoRestriction                Tag = 'Y'
	TagMarketParticipantPosition        Tag = 'L'
	TagMwcbDeclineLevel                 Tag = 'V'
	TagMwcbBreach                       Tag = 'W'
	TagIpoQuotingPeriod                 Tag = 'K'
	TagLuldAuctionCollar                Tag = 'J'
	TagAddOrder                         Tag = 'A'
	TagAddOrderWithMpid                 Tag = 'F'
	TagOrderExecuted                    Tag = 'E'
	TagOrderExecutedWithPrice           Tag = 'C'
	TagOrderCancelled                   Tag = 'X'
	TagOrderDeleted                     Tag = 'D'
	TagOrderReplaced                    Tag = 'U'
	TagTrade                            Tag = 'P'
	TagCrossTrade                       Tag = 'Q'
	TagBrokenTrade                      Tag = 'B'
	TagNoii                             Tag = 'I'
	TagRetailPriceImprovement           Tag = 'N'
)

// Header carries the fields common to every ITCH 5.0 message: the
// locate code and tracking number give a sharded applier a partition
// key without redecoding the body, and Timestamp is nanoseconds since
// midnight.
type Header struct {
	StockLocate    uint16
	TrackingNumber uint16
	Timestamp      uint64
}

// Message is a decoded ITCH 5.0 record: a Header plus exactly one of
// the body variants below, selected by Tag. Body is always the
// concrete struct for Tag — the decoder never returns a Message whose
// Body doesn't match its Tag.
type Message struct {
	Tag    Tag
	Header Header
	Body   any
}

type SystemEvent struct {
	Event itchtypes.EventCode
}

type StockDirectory struct {
	Stock               itchtypes.Symbol
	MarketCategory      itchtypes.MarketCategory
	FinancialStatus     itchtypes.FinancialStatus
	RoundLotSize        uint32
	RoundLotsOnly       bool
	IssueClassification itchtypes.IssueClassification
	IssueSubType        itchtypes.IssueSubType
	Authentic           bool // true only when the wire byte is 'P'
	ShortSaleThreshold  *bool
	IpoFlag             *bool
	LuldRefPriceTier    itchtypes.LuldRefPriceTier
	EtpFlag             *bool
	EtpLeverageFactor   uint32
	InverseIndicator    bool
}

type StockTradingAction struct {
	Stock        itchtypes.Symbol
	TradingState itchtypes.TradingState
	Reason       [4]byte
}

type RegShoRestriction struct {
	Stock  itchtypes.Symbol
	Action itchtypes.RegShoAction
}

type MarketParticipantPosition struct {
	Mpid                   [4]byte
	Stock                  itchtypes.Symbol
	PrimaryMarketMaker     bool
	MarketMakerMode        itchtypes.MarketMakerMode
	MarketParticipantState itchtypes.MarketParticipantState
}

type MwcbDeclineLevel struct {
	Level1 itchtypes.Price8
	Level2 itchtypes.Price8
	Level3 itchtypes.Price8
}

type MwcbBreach struct {
	LevelBreached itchtypes.LevelBreached
}

type IpoQuotingPeriod struct {
	Stock             itchtypes.Symbol
	ReleaseTime       uint32
	ReleaseQualifier  itchtypes.IpoReleaseQualifier
	Price             itchtypes.Price4
}

type LuldAuctionCollar struct {
	Stock      itchtypes.Symbol
	RefPrice   itchtypes.Price4
	UpperPrice itchtypes.Price4
	LowerPrice itchtypes.Price4
	Extension  uint32
}

type AddOrder struct {
	Reference uint64
	Side      itchtypes.Side
	Shares    uint32
	Stock     itchtypes.Symbol
	Price     itchtypes.Price4
	Mpid      *[4]byte // present only when Tag == TagAddOrderWithMpid
}

type OrderExecuted struct {
	Reference   uint64
	Executed    uint32
	MatchNumber uint64
}

// OrderExecutedWithPrice carries the trade print price, which is not
// necessarily the resting order's original price — the book must
// never use Price to relocate the order.
type OrderExecutedWithPrice struct {
	Reference   uint64
	Executed    uint32
	MatchNumber uint64
	Printable   bool
	Price       itchtypes.Price4
}

type OrderCancelled struct {
	Reference uint64
	Cancelled uint32
}

type OrderDeleted struct {
	Reference uint64
}

type OrderReplaced struct {
	OldReference uint64
	NewReference uint64
	Shares       uint32
	Price        itchtypes.Price4
}

// Trade is a non-cross trade report. It carries a reference number but
// does not itself modify the book — the originating order has already
// been fully executed via a separate OrderExecuted* message, or this
// print belongs to a hidden/non-displayed order never added to the book.
type Trade struct {
	Reference   uint64
	Side        itchtypes.Side
	Shares      uint32
	Stock       itchtypes.Symbol
	Price       itchtypes.Price4
	MatchNumber uint64
}

type CrossTrade struct {
	Shares      uint64
	Stock       itchtypes.Symbol
	Price       itchtypes.Price4
	MatchNumber uint64
	CrossType   itchtypes.CrossType
}

type BrokenTrade struct {
	MatchNumber uint64
}

// Noii is the Net Order Imbalance Indicator message. CrossType here
// never carries itchtypes.CrossIntraday — the wire format's NOII
// parser restricts to the other four cross types (see DESIGN.md).
type Noii struct {
	PairedShares         uint64
	ImbalanceShares      uint64
	ImbalanceDirection   itchtypes.ImbalanceDirection
	Stock                itchtypes.Symbol
	FarPrice             itchtypes.Price4
	NearPrice            itchtypes.Price4
	CurrentReferencePrice itchtypes.Price4
	CrossType            itchtypes.CrossType
	PriceVariationIndicator byte
}

type RetailPriceImprovement struct {
	Stock        itchtypes.Symbol
	InterestFlag itchtypes.InterestFlag
}
