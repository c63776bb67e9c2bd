package itch

import (
	"encoding/binary"
	"io"

	"github.com/lxstream/itchbook/pkg/itchtypes"
)

// headerSize is tag(1) + stock_locate(2) + tracking_number(2) + timestamp(6).
const headerSize = 11

// Decoder turns a byte stream into a lazy, finite, non-restartable
// sequence of Message values. It owns no mutable state beyond the read
// cursor in its ByteSource.
type Decoder struct {
	src *ByteSource
}

// NewDecoder wraps src. src is consumed entirely by Next calls.
func NewDecoder(src *ByteSource) *Decoder {
	return &Decoder{src: src}
}

// Next decodes one record. It returns io.EOF when the stream has ended
// cleanly on a record boundary. A non-EOF, non-nil error is scoped to
// the current record per §7: UnknownTag and InvalidField are
// recoverable at record granularity — Next can be called again to
// continue with the next record. Truncated and IoError mean the stream
// itself is unusable; further calls will keep returning an error.
func (d *Decoder) Next() (Message, error) {
	lenBuf, err := d.src.Read(2)
	if err != nil {
		if t, ok := err.(*Truncated); ok && t.Got == 0 {
			return Message{}, io.EOF
		}
		return Message{}, err
	}
	length := int(binary.BigEndian.Uint16(lenBuf))
	if length < headerSize {
		return Message{}, &Truncated{Want: headerSize, Got: length}
	}

	hdr, err := d.src.Read(headerSize)
	if err != nil {
		return Message{}, err
	}
	tag := Tag(hdr[0])
	header := Header{
		StockLocate:    binary.BigEndian.Uint16(hdr[1:3]),
		TrackingNumber: binary.BigEndian.Uint16(hdr[3:5]),
		Timestamp:      readU48(hdr[5:11]),
	}

	bodyLen := length - headerSize
	body, err := d.src.Read(bodyLen)
	if err != nil {
		return Message{}, err
	}

	decode, ok := bodyDecoders[tag]
	if !ok {
		return Message{}, &UnknownTag{Tag: byte(tag)}
	}
	payload, err := decode(body)
	if err != nil {
		return Message{}, err
	}
	return Message{Tag: tag, Header: header, Body: payload}, nil
}

func readU48(b []byte) uint64 {
	return uint64(b[0])<<40 | uint64(b[1])<<32 | uint64(b[2])<<24 |
		uint64(b[3])<<16 | uint64(b[4])<<8 | uint64(b[5])
}

func readSymbol(b []byte) itchtypes.Symbol {
	var s itchtypes.Symbol
	copy(s[:], b)
	return s
}

func readMpid(b []byte) [4]byte {
	var m [4]byte
	copy(m[:], b)
	return m
}

type bodyDecoder func(body []byte) (any, error)

var bodyDecoders = map[Tag]bodyDecoder{
	TagSystemEvent:               decodeSystemEvent,
	TagStockDirectory:            decodeStockDirectory,
	TagStockTradingAction:        decodeStockTradingAction,
	TagRegShoRestriction:         decodeRegShoRestriction,
	TagMarketParticipantPosition: decodeMarketParticipantPosition,
	TagMwcbDeclineLevel:          decodeMwcbDeclineLevel,
	TagMwcbBreach:                decodeMwcbBreach,
	TagIpoQuotingPeriod:          decodeIpoQuotingPeriod,
	TagLuldAuctionCollar:         decodeLuldAuctionCollar,
	TagAddOrder:                  decodeAddOrder,
	TagAddOrderWithMpid:          decodeAddOrderWithMpid,
	TagOrderExecuted:             decodeOrderExecuted,
	TagOrderExecutedWithPrice:    decodeOrderExecutedWithPrice,
	TagOrderCancelled:            decodeOrderCancelled,
	TagOrderDeleted:              decodeOrderDeleted,
	TagOrderReplaced:             decodeOrderReplaced,
	TagTrade:                     decodeTrade,
	TagCrossTrade:                decodeCrossTrade,
	TagBrokenTrade:               decodeBrokenTrade,
	TagNoii:                      decodeNoii,
	TagRetailPriceImprovement:    decodeRetailPriceImprovement,
}

func invalidField(tag Tag, field string, err error) error {
	return &InvalidField{Tag: byte(tag), Field: field, Err: err}
}

func decodeSystemEvent(b []byte) (any, error) {
	event, err := itchtypes.ParseEventCode(b[0])
	if err != nil {
		return nil, invalidField(TagSystemEvent, "event_code", err)
	}
	return SystemEvent{Event: event}, nil
}

func decodeStockDirectory(b []byte) (any, error) {
	cat, err := itchtypes.ParseMarketCategory(b[8])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "market_category", err)
	}
	fin, err := itchtypes.ParseFinancialStatus(b[9])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "financial_status", err)
	}
	roundLotsOnly, err := itchtypes.ParseBool(b[14])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "round_lots_only", err)
	}
	class, err := itchtypes.ParseIssueClassification(b[15])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "issue_classification", err)
	}
	subType, err := itchtypes.ParseIssueSubType([2]byte{b[16], b[17]})
	if err != nil {
		return nil, invalidField(TagStockDirectory, "issue_sub_type", err)
	}
	shortSale, err := itchtypes.ParseMaybeBool(b[19])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "short_sale_threshold", err)
	}
	ipo, err := itchtypes.ParseMaybeBool(b[20])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "ipo_flag", err)
	}
	luldTier, err := itchtypes.ParseLuldRefPriceTier(b[21])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "luld_ref_price_tier", err)
	}
	etpFlag, err := itchtypes.ParseMaybeBool(b[22])
	if err != nil {
		return nil, invalidField(TagStockDirectory, "etp_flag", err)
	}
	return StockDirectory{
		Stock:               readSymbol(b[0:8]),
		MarketCategory:      cat,
		FinancialStatus:     fin,
		RoundLotSize:        binary.BigEndian.Uint32(b[10:14]),
		RoundLotsOnly:       roundLotsOnly,
		IssueClassification: class,
		IssueSubType:        subType,
		Authentic:           b[18] == 'P',
		ShortSaleThreshold:  shortSale,
		IpoFlag:             ipo,
		LuldRefPriceTier:    luldTier,
		EtpFlag:             etpFlag,
		EtpLeverageFactor:   binary.BigEndian.Uint32(b[23:27]),
		InverseIndicator:    b[27] == 'Y',
	}, nil
}

func decodeStockTradingAction(b []byte) (any, error) {
	state, err := itchtypes.ParseTradingState(b[8])
	if err != nil {
		return nil, invalidField(TagStockTradingAction, "trading_state", err)
	}
	var reason [4]byte
	copy(reason[:], b[10:14])
	return StockTradingAction{
		Stock:        readSymbol(b[0:8]),
		TradingState: state,
		Reason:       reason,
	}, nil
}

func decodeRegShoRestriction(b []byte) (any, error) {
	action, err := itchtypes.ParseRegShoAction(b[8])
	if err != nil {
		return nil, invalidField(TagRegShoRestriction, "action", err)
	}
	return RegShoRestriction{Stock: readSymbol(b[0:8]), Action: action}, nil
}

func decodeMarketParticipantPosition(b []byte) (any, error) {
	primary, err := itchtypes.ParseBool(b[12])
	if err != nil {
		return nil, invalidField(TagMarketParticipantPosition, "primary_market_maker", err)
	}
	mode, err := itchtypes.ParseMarketMakerMode(b[13])
	if err != nil {
		return nil, invalidField(TagMarketParticipantPosition, "market_maker_mode", err)
	}
	state, err := itchtypes.ParseMarketParticipantState(b[14])
	if err != nil {
		return nil, invalidField(TagMarketParticipantPosition, "market_participant_state", err)
	}
	return MarketParticipantPosition{
		Mpid:                   readMpid(b[0:4]),
		Stock:                  readSymbol(b[4:12]),
		PrimaryMarketMaker:     primary,
		MarketMakerMode:        mode,
		MarketParticipantState: state,
	}, nil
}

func decodeMwcbDeclineLevel(b []byte) (any, error) {
	return MwcbDeclineLevel{
		Level1: itchtypes.Price8(binary.BigEndian.Uint64(b[0:8])),
		Level2: itchtypes.Price8(binary.BigEndian.Uint64(b[8:16])),
		Level3: itchtypes.Price8(binary.BigEndian.Uint64(b[16:24])),
	}, nil
}

func decodeMwcbBreach(b []byte) (any, error) {
	level, err := itchtypes.ParseLevelBreached(b[0])
	if err != nil {
		return nil, invalidField(TagMwcbBreach, "level_breached", err)
	}
	return MwcbBreach{LevelBreached: level}, nil
}

func decodeIpoQuotingPeriod(b []byte) (any, error) {
	qualifier, err := itchtypes.ParseIpoReleaseQualifier(b[12])
	if err != nil {
		return nil, invalidField(TagIpoQuotingPeriod, "release_qualifier", err)
	}
	return IpoQuotingPeriod{
		Stock:            readSymbol(b[0:8]),
		ReleaseTime:      binary.BigEndian.Uint32(b[8:12]),
		ReleaseQualifier: qualifier,
		Price:            itchtypes.Price4(binary.BigEndian.Uint32(b[13:17])),
	}, nil
}

func decodeLuldAuctionCollar(b []byte) (any, error) {
	return LuldAuctionCollar{
		Stock:      readSymbol(b[0:8]),
		RefPrice:   itchtypes.Price4(binary.BigEndian.Uint32(b[8:12])),
		UpperPrice: itchtypes.Price4(binary.BigEndian.Uint32(b[12:16])),
		LowerPrice: itchtypes.Price4(binary.BigEndian.Uint32(b[16:20])),
		Extension:  binary.BigEndian.Uint32(b[20:24]),
	}, nil
}

func decodeAddOrder(b []byte) (any, error) {
	side, err := itchtypes.ParseSide(b[8])
	if err != nil {
		return nil, invalidField(TagAddOrder, "side", err)
	}
	return AddOrder{
		Reference: binary.BigEndian.Uint64(b[0:8]),
		Side:      side,
		Shares:    binary.BigEndian.Uint32(b[9:13]),
		Stock:     readSymbol(b[13:21]),
		Price:     itchtypes.Price4(binary.BigEndian.Uint32(b[21:25])),
	}, nil
}

func decodeAddOrderWithMpid(b []byte) (any, error) {
	side, err := itchtypes.ParseSide(b[8])
	if err != nil {
		return nil, invalidField(TagAddOrderWithMpid, "side", err)
	}
	mpid := readMpid(b[25:29])
	return AddOrder{
		Reference: binary.BigEndian.Uint64(b[0:8]),
		Side:      side,
		Shares:    binary.BigEndian.Uint32(b[9:13]),
		Stock:     readSymbol(b[13:21]),
		Price:     itchtypes.Price4(binary.BigEndian.Uint32(b[21:25])),
		Mpid:      &mpid,
	}, nil
}

func decodeOrderExecuted(b []byte) (any, error) {
	return OrderExecuted{
		Reference:   binary.BigEndian.Uint64(b[0:8]),
		Executed:    binary.BigEndian.Uint32(b[8:12]),
		MatchNumber: binary.BigEndian.Uint64(b[12:20]),
	}, nil
}

func decodeOrderExecutedWithPrice(b []byte) (any, error) {
	printable, err := itchtypes.ParseBool(b[20])
	if err != nil {
		return nil, invalidField(TagOrderExecutedWithPrice, "printable", err)
	}
	return OrderExecutedWithPrice{
		Reference:   binary.BigEndian.Uint64(b[0:8]),
		Executed:    binary.BigEndian.Uint32(b[8:12]),
		MatchNumber: binary.BigEndian.Uint64(b[12:20]),
		Printable:   printable,
		Price:       itchtypes.Price4(binary.BigEndian.Uint32(b[21:25])),
	}, nil
}

func decodeOrderCancelled(b []byte) (any, error) {
	return OrderCancelled{
		Reference: binary.BigEndian.Uint64(b[0:8]),
		Cancelled: binary.BigEndian.Uint32(b[8:12]),
	}, nil
}

func decodeOrderDeleted(b []byte) (any, error) {
	return OrderDeleted{Reference: binary.BigEndian.Uint64(b[0:8])}, nil
}

func decodeOrderReplaced(b []byte) (any, error) {
	return OrderReplaced{
		OldReference: binary.BigEndian.Uint64(b[0:8]),
		NewReference: binary.BigEndian.Uint64(b[8:16]),
		Shares:       binary.BigEndian.Uint32(b[16:20]),
		Price:        itchtypes.Price4(binary.BigEndian.Uint32(b[20:24])),
	}, nil
}

func decodeTrade(b []byte) (any, error) {
	side, err := itchtypes.ParseSide(b[8])
	if err != nil {
		return nil, invalidField(TagTrade, "side", err)
	}
	return Trade{
		Reference:   binary.BigEndian.Uint64(b[0:8]),
		Side:        side,
		Shares:      binary.BigEndian.Uint32(b[9:13]),
		Stock:       readSymbol(b[13:21]),
		Price:       itchtypes.Price4(binary.BigEndian.Uint32(b[21:25])),
		MatchNumber: binary.BigEndian.Uint64(b[25:33]),
	}, nil
}

func decodeCrossTrade(b []byte) (any, error) {
	crossType, err := itchtypes.ParseCrossType(b[28])
	if err != nil {
		return nil, invalidField(TagCrossTrade, "cross_type", err)
	}
	return CrossTrade{
		Shares:      binary.BigEndian.Uint64(b[0:8]),
		Stock:       readSymbol(b[8:16]),
		Price:       itchtypes.Price4(binary.BigEndian.Uint32(b[16:20])),
		MatchNumber: binary.BigEndian.Uint64(b[20:28]),
		CrossType:   crossType,
	}, nil
}

func decodeBrokenTrade(b []byte) (any, error) {
	return BrokenTrade{MatchNumber: binary.BigEndian.Uint64(b[0:8])}, nil
}

func decodeNoii(b []byte) (any, error) {
	direction, err := itchtypes.ParseImbalanceDirection(b[16])
	if err != nil {
		return nil, invalidField(TagNoii, "imbalance_direction", err)
	}
	crossType, err := itchtypes.ParseNOIICrossType(b[37])
	if err != nil {
		return nil, invalidField(TagNoii, "cross_type", err)
	}
	return Noii{
		PairedShares:            binary.BigEndian.Uint64(b[0:8]),
		ImbalanceShares:         binary.BigEndian.Uint64(b[8:16]),
		ImbalanceDirection:      direction,
		Stock:                   readSymbol(b[17:25]),
		FarPrice:                itchtypes.Price4(binary.BigEndian.Uint32(b[25:29])),
		NearPrice:               itchtypes.Price4(binary.BigEndian.Uint32(b[29:33])),
		CurrentReferencePrice:   itchtypes.Price4(binary.BigEndian.Uint32(b[33:37])),
		CrossType:               crossType,
		PriceVariationIndicator: b[38],
	}, nil
}

func decodeRetailPriceImprovement(b []byte) (any, error) {
	flag, err := itchtypes.ParseInterestFlag(b[8])
	if err != nil {
		return nil, invalidField(TagRetailPriceImprovement, "interest_flag", err)
	}
	return RetailPriceImprovement{Stock: readSymbol(b[0:8]), InterestFlag: flag}, nil
}
