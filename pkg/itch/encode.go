package itch

import (
	"encoding/binary"
	"fmt"
)

// Encode renders m back into a framed ITCH 5.0 record: the 2-byte
// length prefix, the common header, and the tag-specific body. It
// exists for round-trip testing and for synthetic feed generation; the
// decode path never calls it.
func Encode(m Message) ([]byte, error) {
	body, err := encodeBody(m.Tag, m.Body)
	if err != nil {
		return nil, err
	}
	length := headerSize + len(body)
	out := make([]byte, 2+length)
	binary.BigEndian.PutUint16(out[0:2], uint16(length))
	out[2] = byte(m.Tag)
	binary.BigEndian.PutUint16(out[3:5], m.Header.StockLocate)
	binary.BigEndian.PutUint16(out[5:7], m.Header.TrackingNumber)
	writeU48(out[7:13], m.Header.Timestamp)
	copy(out[13:], body)
	return out, nil
}

func writeU48(b []byte, v uint64) {
	b[0] = byte(v >> 40)
	b[1] = byte(v >> 32)
	b[2] = byte(v >> 24)
	b[3] = byte(v >> 16)
	b[4] = byte(v >> 8)
	b[5] = byte(v)
}

func boolByte(b bool) byte {
	if b {
		return 'Y'
	}
	return 'N'
}

func maybeBoolByte(b *bool) byte {
	if b == nil {
		return ' '
	}
	return boolByte(*b)
}

func encodeBody(tag Tag, body any) ([]byte, error) {
	switch tag {
	case TagSystemEvent:
		v := body.(SystemEvent)
		return []byte{byte(v.Event)}, nil

	case TagStockDirectory:
		v := body.(StockDirectory)
		b := make([]byte, 28)
		copy(b[0:8], v.Stock[:])
		b[8] = byte(v.MarketCategory)
		b[9] = byte(v.FinancialStatus)
		binary.BigEndian.PutUint32(b[10:14], v.RoundLotSize)
		b[14] = boolByte(v.RoundLotsOnly)
		b[15] = byte(v.IssueClassification)
		b[16], b[17] = v.IssueSubType[0], v.IssueSubType[1]
		if v.Authentic {
			b[18] = 'P'
		} else {
			b[18] = 'N'
		}
		b[19] = maybeBoolByte(v.ShortSaleThreshold)
		b[20] = maybeBoolByte(v.IpoFlag)
		b[21] = byte(v.LuldRefPriceTier)
		b[22] = maybeBoolByte(v.EtpFlag)
		binary.BigEndian.PutUint32(b[23:27], v.EtpLeverageFactor)
		b[27] = boolByte(v.InverseIndicator)
		return b, nil

	case TagStockTradingAction:
		v := body.(StockTradingAction)
		b := make([]byte, 14)
		copy(b[0:8], v.Stock[:])
		b[8] = byte(v.TradingState)
		b[9] = ' '
		copy(b[10:14], v.Reason[:])
		return b, nil

	case TagRegShoRestriction:
		v := body.(RegShoRestriction)
		b := make([]byte, 9)
		copy(b[0:8], v.Stock[:])
		b[8] = byte(v.Action)
		return b, nil

	case TagMarketParticipantPosition:
		v := body.(MarketParticipantPosition)
		b := make([]byte, 15)
		copy(b[0:4], v.Mpid[:])
		copy(b[4:12], v.Stock[:])
		b[12] = boolByte(v.PrimaryMarketMaker)
		b[13] = byte(v.MarketMakerMode)
		b[14] = byte(v.MarketParticipantState)
		return b, nil

	case TagMwcbDeclineLevel:
		v := body.(MwcbDeclineLevel)
		b := make([]byte, 24)
		binary.BigEndian.PutUint64(b[0:8], uint64(v.Level1))
		binary.BigEndian.PutUint64(b[8:16], uint64(v.Level2))
		binary.BigEndian.PutUint64(b[16:24], uint64(v.Level3))
		return b, nil

	case TagMwcbBreach:
		v := body.(MwcbBreach)
		return []byte{byte(v.LevelBreached)}, nil

	case TagIpoQuotingPeriod:
		v := body.(IpoQuotingPeriod)
		b := make([]byte, 17)
		copy(b[0:8], v.Stock[:])
		binary.BigEndian.PutUint32(b[8:12], v.ReleaseTime)
		b[12] = byte(v.ReleaseQualifier)
		binary.BigEndian.PutUint32(b[13:17], uint32(v.Price))
		return b, nil

	case TagLuldAuctionCollar:
		v := body.(LuldAuctionCollar)
		b := make([]byte, 24)
		copy(b[0:8], v.Stock[:])
		binary.BigEndian.PutUint32(b[8:12], uint32(v.RefPrice))
		binary.BigEndian.PutUint32(b[12:16], uint32(v.UpperPrice))
		binary.BigEndian.PutUint32(b[16:20], uint32(v.LowerPrice))
		binary.BigEndian.PutUint32(b[20:24], v.Extension)
		return b, nil

	case TagAddOrder:
		v := body.(AddOrder)
		b := make([]byte, 25)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		b[8] = byte(v.Side)
		binary.BigEndian.PutUint32(b[9:13], v.Shares)
		copy(b[13:21], v.Stock[:])
		binary.BigEndian.PutUint32(b[21:25], uint32(v.Price))
		return b, nil

	case TagAddOrderWithMpid:
		v := body.(AddOrder)
		b := make([]byte, 29)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		b[8] = byte(v.Side)
		binary.BigEndian.PutUint32(b[9:13], v.Shares)
		copy(b[13:21], v.Stock[:])
		binary.BigEndian.PutUint32(b[21:25], uint32(v.Price))
		if v.Mpid != nil {
			copy(b[25:29], v.Mpid[:])
		}
		return b, nil

	case TagOrderExecuted:
		v := body.(OrderExecuted)
		b := make([]byte, 20)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		binary.BigEndian.PutUint32(b[8:12], v.Executed)
		binary.BigEndian.PutUint64(b[12:20], v.MatchNumber)
		return b, nil

	case TagOrderExecutedWithPrice:
		v := body.(OrderExecutedWithPrice)
		b := make([]byte, 25)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		binary.BigEndian.PutUint32(b[8:12], v.Executed)
		binary.BigEndian.PutUint64(b[12:20], v.MatchNumber)
		b[20] = boolByte(v.Printable)
		binary.BigEndian.PutUint32(b[21:25], uint32(v.Price))
		return b, nil

	case TagOrderCancelled:
		v := body.(OrderCancelled)
		b := make([]byte, 12)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		binary.BigEndian.PutUint32(b[8:12], v.Cancelled)
		return b, nil

	case TagOrderDeleted:
		v := body.(OrderDeleted)
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		return b, nil

	case TagOrderReplaced:
		v := body.(OrderReplaced)
		b := make([]byte, 24)
		binary.BigEndian.PutUint64(b[0:8], v.OldReference)
		binary.BigEndian.PutUint64(b[8:16], v.NewReference)
		binary.BigEndian.PutUint32(b[16:20], v.Shares)
		binary.BigEndian.PutUint32(b[20:24], uint32(v.Price))
		return b, nil

	case TagTrade:
		v := body.(Trade)
		b := make([]byte, 33)
		binary.BigEndian.PutUint64(b[0:8], v.Reference)
		b[8] = byte(v.Side)
		binary.BigEndian.PutUint32(b[9:13], v.Shares)
		copy(b[13:21], v.Stock[:])
		binary.BigEndian.PutUint32(b[21:25], uint32(v.Price))
		binary.BigEndian.PutUint64(b[25:33], v.MatchNumber)
		return b, nil

	case TagCrossTrade:
		v := body.(CrossTrade)
		b := make([]byte, 29)
		binary.BigEndian.PutUint64(b[0:8], v.Shares)
		copy(b[8:16], v.Stock[:])
		binary.BigEndian.PutUint32(b[16:20], uint32(v.Price))
		binary.BigEndian.PutUint64(b[20:28], v.MatchNumber)
		b[28] = byte(v.CrossType)
		return b, nil

	case TagBrokenTrade:
		v := body.(BrokenTrade)
		b := make([]byte, 8)
		binary.BigEndian.PutUint64(b[0:8], v.MatchNumber)
		return b, nil

	case TagNoii:
		v := body.(Noii)
		b := make([]byte, 39)
		binary.BigEndian.PutUint64(b[0:8], v.PairedShares)
		binary.BigEndian.PutUint64(b[8:16], v.ImbalanceShares)
		b[16] = byte(v.ImbalanceDirection)
		copy(b[17:25], v.Stock[:])
		binary.BigEndian.PutUint32(b[25:29], uint32(v.FarPrice))
		binary.BigEndian.PutUint32(b[29:33], uint32(v.NearPrice))
		binary.BigEndian.PutUint32(b[33:37], uint32(v.CurrentReferencePrice))
		b[37] = byte(v.CrossType)
		b[38] = v.PriceVariationIndicator
		return b, nil

	case TagRetailPriceImprovement:
		v := body.(RetailPriceImprovement)
		b := make([]byte, 9)
		copy(b[0:8], v.Stock[:])
		b[8] = byte(v.InterestFlag)
		return b, nil
	}
	return nil, fmt.Errorf("itch: no encoder for tag %q", byte(tag))
}
