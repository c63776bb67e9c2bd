package itch

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/lxstream/itchbook/pkg/itchtypes"
)

func decodeOne(t *testing.T, wire []byte) Message {
	t.Helper()
	d := NewDecoder(NewByteSource(bytes.NewReader(wire)))
	m, err := d.Next()
	require.NoError(t, err)
	return m
}

func TestRoundTripAllTags(t *testing.T) {
	trueVal := true
	mpid := [4]byte{'M', 'P', 'I', 'D'}
	cases := []Message{
		{Tag: TagSystemEvent, Header: Header{1, 2, 1000}, Body: SystemEvent{Event: itchtypes.EventStartOfMessages}},
		{Tag: TagStockDirectory, Header: Header{1, 2, 1000}, Body: StockDirectory{
			Stock: itchtypes.NewSymbol("ABC"), MarketCategory: itchtypes.MarketNasdaqGlobalSelect,
			FinancialStatus: itchtypes.FinancialNormal, RoundLotSize: 100,
			IssueClassification: itchtypes.IssueCommonStock, IssueSubType: itchtypes.IssueSubType{'C', ' '},
			Authentic: true, ShortSaleThreshold: &trueVal, LuldRefPriceTier: itchtypes.LuldTier1,
			EtpLeverageFactor: 1,
		}},
		{Tag: TagStockTradingAction, Header: Header{1, 2, 1000}, Body: StockTradingAction{
			Stock: itchtypes.NewSymbol("ABC"), TradingState: itchtypes.TradingTrading, Reason: [4]byte{'T', '1', ' ', ' '},
		}},
		{Tag: TagRegShoRestriction, Header: Header{1, 2, 1000}, Body: RegShoRestriction{
			Stock: itchtypes.NewSymbol("ABC"), Action: itchtypes.RegShoNone,
		}},
		{Tag: TagMarketParticipantPosition, Header: Header{1, 2, 1000}, Body: MarketParticipantPosition{
			Mpid: mpid, Stock: itchtypes.NewSymbol("ABC"), PrimaryMarketMaker: true,
			MarketMakerMode: itchtypes.MMNormal, MarketParticipantState: itchtypes.ParticipantActive,
		}},
		{Tag: TagMwcbDeclineLevel, Header: Header{1, 2, 1000}, Body: MwcbDeclineLevel{Level1: 1, Level2: 2, Level3: 3}},
		{Tag: TagMwcbBreach, Header: Header{1, 2, 1000}, Body: MwcbBreach{LevelBreached: itchtypes.LevelBreachedL1}},
		{Tag: TagIpoQuotingPeriod, Header: Header{1, 2, 1000}, Body: IpoQuotingPeriod{
			Stock: itchtypes.NewSymbol("ABC"), ReleaseTime: 36000, ReleaseQualifier: itchtypes.IpoAnticipated, Price: 100000,
		}},
		{Tag: TagLuldAuctionCollar, Header: Header{1, 2, 1000}, Body: LuldAuctionCollar{
			Stock: itchtypes.NewSymbol("ABC"), RefPrice: 1000, UpperPrice: 1100, LowerPrice: 900, Extension: 1,
		}},
		{Tag: TagAddOrder, Header: Header{1, 2, 1000}, Body: AddOrder{
			Reference: 1, Side: itchtypes.Buy, Shares: 100, Stock: itchtypes.NewSymbol("ABC"), Price: 100000,
		}},
		{Tag: TagAddOrderWithMpid, Header: Header{1, 2, 1000}, Body: AddOrder{
			Reference: 1, Side: itchtypes.Sell, Shares: 100, Stock: itchtypes.NewSymbol("ABC"), Price: 100000, Mpid: &mpid,
		}},
		{Tag: TagOrderExecuted, Header: Header{1, 2, 1000}, Body: OrderExecuted{Reference: 1, Executed: 50, MatchNumber: 7}},
		{Tag: TagOrderExecutedWithPrice, Header: Header{1, 2, 1000}, Body: OrderExecutedWithPrice{
			Reference: 1, Executed: 50, MatchNumber: 7, Printable: true, Price: 100000,
		}},
		{Tag: TagOrderCancelled, Header: Header{1, 2, 1000}, Body: OrderCancelled{Reference: 1, Cancelled: 50}},
		{Tag: TagOrderDeleted, Header: Header{1, 2, 1000}, Body: OrderDeleted{Reference: 1}},
		{Tag: TagOrderReplaced, Header: Header{1, 2, 1000}, Body: OrderReplaced{
			OldReference: 1, NewReference: 2, Shares: 100, Price: 100100,
		}},
		{Tag: TagTrade, Header: Header{1, 2, 1000}, Body: Trade{
			Reference: 1, Side: itchtypes.Buy, Shares: 100, Stock: itchtypes.NewSymbol("ABC"), Price: 100000, MatchNumber: 7,
		}},
		{Tag: TagCrossTrade, Header: Header{1, 2, 1000}, Body: CrossTrade{
			Shares: 1000, Stock: itchtypes.NewSymbol("ABC"), Price: 100000, MatchNumber: 7, CrossType: itchtypes.CrossOpening,
		}},
		{Tag: TagBrokenTrade, Header: Header{1, 2, 1000}, Body: BrokenTrade{MatchNumber: 7}},
		{Tag: TagNoii, Header: Header{1, 2, 1000}, Body: Noii{
			PairedShares: 1000, ImbalanceShares: 200, ImbalanceDirection: itchtypes.ImbalanceBuy,
			Stock: itchtypes.NewSymbol("ABC"), FarPrice: 100000, NearPrice: 100100, CurrentReferencePrice: 100050,
			CrossType: itchtypes.CrossClosing, PriceVariationIndicator: 'L',
		}},
		{Tag: TagRetailPriceImprovement, Header: Header{1, 2, 1000}, Body: RetailPriceImprovement{
			Stock: itchtypes.NewSymbol("ABC"), InterestFlag: itchtypes.InterestRPIBuySide,
		}},
	}

	for _, m := range cases {
		wire, err := Encode(m)
		require.NoError(t, err, "tag %q", byte(m.Tag))
		got := decodeOne(t, wire)
		require.Equal(t, m, got, "tag %q", byte(m.Tag))
	}
}

func TestDecoderEndOfStream(t *testing.T) {
	d := NewDecoder(NewByteSource(bytes.NewReader(nil)))
	_, err := d.Next()
	require.ErrorIs(t, err, io.EOF)
}

func TestDecoderTruncatedMidRecord(t *testing.T) {
	wire, err := Encode(Message{Tag: TagOrderDeleted, Header: Header{1, 2, 1000}, Body: OrderDeleted{Reference: 1}})
	require.NoError(t, err)
	d := NewDecoder(NewByteSource(bytes.NewReader(wire[:len(wire)-3])))
	_, err = d.Next()
	var trunc *Truncated
	require.ErrorAs(t, err, &trunc)
	require.NotZero(t, trunc.Got)
}

func TestDecoderUnknownTagIsRecoverable(t *testing.T) {
	good, err := Encode(Message{Tag: TagOrderDeleted, Header: Header{1, 2, 1000}, Body: OrderDeleted{Reference: 42}})
	require.NoError(t, err)

	bogus := make([]byte, 2+headerSize)
	bogusLen := headerSize
	bogus[0] = byte(bogusLen >> 8)
	bogus[1] = byte(bogusLen)
	bogus[2] = 'Z'

	src := NewByteSource(io.MultiReader(bytes.NewReader(bogus), bytes.NewReader(good)))
	d := NewDecoder(src)

	_, err = d.Next()
	var unknown *UnknownTag
	require.ErrorAs(t, err, &unknown)
	require.Equal(t, byte('Z'), unknown.Tag)

	m, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, TagOrderDeleted, m.Tag)
}

func TestDecoderInvalidFieldIsRecoverable(t *testing.T) {
	good, err := Encode(Message{Tag: TagAddOrder, Header: Header{1, 2, 1000}, Body: AddOrder{
		Reference: 1, Side: itchtypes.Buy, Shares: 100, Stock: itchtypes.NewSymbol("ABC"), Price: 100,
	}})
	require.NoError(t, err)
	bad := append([]byte{}, good...)
	bad[2+headerSize+8] = 'Z' // side byte

	src := NewByteSource(io.MultiReader(bytes.NewReader(bad), bytes.NewReader(good)))
	d := NewDecoder(src)

	_, err = d.Next()
	var invalid *InvalidField
	require.ErrorAs(t, err, &invalid)

	m, err := d.Next()
	require.NoError(t, err)
	require.Equal(t, TagAddOrder, m.Tag)
}
