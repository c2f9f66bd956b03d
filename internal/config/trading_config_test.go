package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptrFloat(v float64) *float64 { return &v }
func ptrString(v string) *string  { return &v }

func TestResolveWithNoOverridesReturnsDefaults(t *testing.T) {
	s := NewTradingConfigStore()
	p := s.Resolve("BTCUSDT", "LONG")
	require.NotNil(t, p.MinConfidence)
	assert.Equal(t, *Defaults().MinConfidence, *p.MinConfidence)
}

func TestResolvePrecedenceSymbolSideOverSymbolOverGlobal(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetGlobal(TradingParams{MinConfidence: ptrFloat(0.1)}, "alice")
	s.SetSymbol("BTCUSDT", TradingParams{MinConfidence: ptrFloat(0.2)}, "alice")
	s.SetSymbolSide("BTCUSDT", "LONG", TradingParams{MinConfidence: ptrFloat(0.3)}, "alice")

	assert.Equal(t, 0.3, *s.Resolve("BTCUSDT", "LONG").MinConfidence, "symbol-side wins")
	assert.Equal(t, 0.2, *s.Resolve("BTCUSDT", "SHORT").MinConfidence, "falls back to symbol tier for the other side")
	assert.Equal(t, 0.1, *s.Resolve("ETHUSDT", "LONG").MinConfidence, "falls back to global tier for an unrelated symbol")
}

func TestResolveMergesFieldByFieldNotWholesale(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetGlobal(TradingParams{MinConfidence: ptrFloat(0.1), ResolutionPolicy: ptrString("strongest_wins")}, "alice")
	s.SetSymbol("BTCUSDT", TradingParams{MinConfidence: ptrFloat(0.2)}, "alice")

	resolved := s.Resolve("BTCUSDT", "")
	assert.Equal(t, 0.2, *resolved.MinConfidence, "symbol tier overrides this field")
	assert.Equal(t, "strongest_wins", *resolved.ResolutionPolicy, "symbol tier left this field nil, global fills it in")
}

func TestSetInvalidatesCache(t *testing.T) {
	s := NewTradingConfigStore()
	first := s.Resolve("BTCUSDT", "LONG")
	assert.Equal(t, *Defaults().MinConfidence, *first.MinConfidence)

	s.SetSymbol("BTCUSDT", TradingParams{MinConfidence: ptrFloat(0.9)}, "alice")
	second := s.Resolve("BTCUSDT", "LONG")
	assert.Equal(t, 0.9, *second.MinConfidence, "a write must invalidate the cached resolution")
}

func TestDeleteFallsBackToLessSpecificTier(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetSymbol("BTCUSDT", TradingParams{MinConfidence: ptrFloat(0.2)}, "alice")
	s.SetSymbolSide("BTCUSDT", "LONG", TradingParams{MinConfidence: ptrFloat(0.3)}, "alice")

	require.NoError(t, s.Delete("BTCUSDT", "LONG", "alice"))
	assert.Equal(t, 0.2, *s.Resolve("BTCUSDT", "LONG").MinConfidence, "deleting the symbol-side override falls back to the symbol tier")
}

func TestDeleteGlobalResetsToDefaults(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetGlobal(TradingParams{MinConfidence: ptrFloat(0.1)}, "alice")
	require.NoError(t, s.Delete("", "", "alice"))
	assert.Equal(t, *Defaults().MinConfidence, *s.Resolve("BTCUSDT", "LONG").MinConfidence)
}

func TestDeleteRejectsSideWithoutSymbol(t *testing.T) {
	s := NewTradingConfigStore()
	err := s.Delete("", "LONG", "alice")
	assert.Error(t, err)
}

func TestAuditRecordsEveryWrite(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetGlobal(TradingParams{MinConfidence: ptrFloat(0.1)}, "alice")
	s.SetSymbol("BTCUSDT", TradingParams{MinConfidence: ptrFloat(0.2)}, "bob")
	_ = s.Delete("BTCUSDT", "", "carol")

	entries := s.Audit()
	require.Len(t, entries, 3)
	assert.Equal(t, "alice", entries[0].Actor)
	assert.Equal(t, "global", entries[0].Scope)
	assert.Equal(t, "bob", entries[1].Actor)
	assert.Equal(t, "BTCUSDT", entries[1].Scope)
	assert.Equal(t, "carol", entries[2].Actor)
}

func TestAuditReturnsDefensiveCopy(t *testing.T) {
	s := NewTradingConfigStore()
	s.SetGlobal(TradingParams{MinConfidence: ptrFloat(0.1)}, "alice")
	entries := s.Audit()
	entries[0].Actor = "mutated"

	fresh := s.Audit()
	assert.Equal(t, "alice", fresh[0].Actor)
}
