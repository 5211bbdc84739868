package builtins

import "algoace/internal/strategy"

// RegisterAll wires every built-in strategy into the registry.
func RegisterAll(r *strategy.Registry) {
	r.Register("ema-cross", NewEMACross)
	r.Register("sma-cross", NewSMACross)
	r.Register("rsi-mean-reversion", NewRSIMeanReversion)
	r.Register("bollinger-breakout", NewBollingerBreakout)
}
