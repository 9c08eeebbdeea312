package ledger

import "math"

// FeeCalculator implementa la fórmula de taker fee del venue:
//
//	fee = shares × rate × (p·(1−p))^exponent
//
// Los fees aplican solo a mercados crypto de 15 minutos; los NegRisk son
// fee-free por construcción.
type FeeCalculator struct {
	Rate     float64
	Exponent float64
}

// Fee devuelve el fee en USD por comprar shares al precio p.
func (f FeeCalculator) Fee(shares, price float64, crypto15Min bool) float64 {
	if !crypto15Min {
		return 0
	}
	return shares * f.Rate * math.Pow(price*(1-price), f.Exponent)
}
