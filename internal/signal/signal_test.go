package signal

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func validSignal() Signal {
	return Signal{
		StrategyID:   "s1",
		Symbol:       "BTCUSDT",
		Action:       ActionBuy,
		Confidence:   0.8,
		Timeframe:    Timeframe1h,
		CurrentPrice: 100,
		ArrivalTime:  time.Now(),
	}
}

func TestValidateAcceptsWellFormedSignal(t *testing.T) {
	s := validSignal()
	assert.NoError(t, s.Validate())
}

func TestValidateRejectsMissingStrategyID(t *testing.T) {
	s := validSignal()
	s.StrategyID = ""
	assert.Error(t, s.Validate())
}

func TestValidateRejectsMissingSymbol(t *testing.T) {
	s := validSignal()
	s.Symbol = ""
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnknownAction(t *testing.T) {
	s := validSignal()
	s.Action = "short_squeeze"
	assert.Error(t, s.Validate())
}

func TestValidateRejectsUnknownTimeframe(t *testing.T) {
	s := validSignal()
	s.Timeframe = "17m"
	assert.Error(t, s.Validate())
}

func TestValidateRejectsNonPositivePrice(t *testing.T) {
	s := validSignal()
	s.CurrentPrice = 0
	assert.Error(t, s.Validate())
}

func TestValidateRejectsConfidenceOutOfRange(t *testing.T) {
	s := validSignal()
	s.Confidence = 1.5
	assert.Error(t, s.Validate())

	s.Confidence = -0.1
	assert.Error(t, s.Validate())
}

func TestResolvedSideMapsBuyToLongAndSellToShort(t *testing.T) {
	buy := validSignal()
	assert.Equal(t, "LONG", buy.ResolvedSide())

	sell := validSignal()
	sell.Action = ActionSell
	assert.Equal(t, "SHORT", sell.ResolvedSide())
}

func TestResolvedSideHoldDefaultsToLong(t *testing.T) {
	hold := validSignal()
	hold.Action = ActionHold
	assert.Equal(t, "LONG", hold.ResolvedSide())
}

func TestTimeframeWeightRangeAndOrdering(t *testing.T) {
	tickWeight, ok := TimeframeTick.Weight()
	assert.True(t, ok)
	weekWeight, ok := Timeframe1w.Weight()
	assert.True(t, ok)

	assert.Less(t, tickWeight, weekWeight, "longer timeframes carry more weight than tick")
	assert.GreaterOrEqual(t, tickWeight, 0.3)
	assert.LessOrEqual(t, weekWeight, 2.0)
}

func TestTimeframeWeightUnknownReturnsFalse(t *testing.T) {
	_, ok := Timeframe("17m").Weight()
	assert.False(t, ok)
}

func TestKeyIncludesIdentityFields(t *testing.T) {
	s := validSignal()
	k := s.Key()
	assert.Contains(t, k, "s1")
	assert.Contains(t, k, "BTCUSDT")
	assert.Contains(t, k, "1h")
}
