// Package indicators implementa los indicadores técnicos que usa el filtro
// de whale copy: RSI, EMA, ATR y delta de volumen. Toda función es pura, la
// misma serie de entrada siempre da la misma salida, así los detectores se
// pueden testear sin feeds en vivo.
package indicators

import (
	"math"

	"github.com/polysim/engine/internal/domain"
)

// RSI devuelve el índice de fuerza relativa de Wilder sobre los cierres en la
// ventana dada. NaN si la serie es más corta que window+1 muestras.
func RSI(candles []domain.Candle, window int) float64 {
	if window <= 0 || len(candles) < window+1 {
		return math.NaN()
	}

	// Semilla con medias simples sobre los primeros window deltas.
	var gain, loss float64
	for i := 1; i <= window; i++ {
		d := candles[i].Close - candles[i-1].Close
		if d > 0 {
			gain += d
		} else {
			loss -= d
		}
	}
	avgGain := gain / float64(window)
	avgLoss := loss / float64(window)

	// Suavizado de Wilder sobre el resto.
	for i := window + 1; i < len(candles); i++ {
		d := candles[i].Close - candles[i-1].Close
		g, l := 0.0, 0.0
		if d > 0 {
			g = d
		} else {
			l = -d
		}
		avgGain = (avgGain*float64(window-1) + g) / float64(window)
		avgLoss = (avgLoss*float64(window-1) + l) / float64(window)
	}

	if avgLoss == 0 {
		return 100
	}
	rs := avgGain / avgLoss
	return 100 - 100/(1+rs)
}

// EMA devuelve la media móvil exponencial de los cierres con el span dado.
// NaN si la serie es más corta que el span.
func EMA(candles []domain.Candle, span int) float64 {
	if span <= 0 || len(candles) < span {
		return math.NaN()
	}

	// Semilla con la SMA de los primeros span cierres.
	sum := 0.0
	for i := 0; i < span; i++ {
		sum += candles[i].Close
	}
	ema := sum / float64(span)

	k := 2.0 / (float64(span) + 1.0)
	for i := span; i < len(candles); i++ {
		ema = candles[i].Close*k + ema*(1-k)
	}
	return ema
}

// ATR devuelve el rango verdadero medio de Wilder sobre la ventana dada. NaN
// si la serie es más corta que window+1 muestras.
func ATR(candles []domain.Candle, window int) float64 {
	trs := trueRanges(candles)
	if window <= 0 || len(trs) < window {
		return math.NaN()
	}

	sum := 0.0
	for i := 0; i < window; i++ {
		sum += trs[i]
	}
	atr := sum / float64(window)

	for i := window; i < len(trs); i++ {
		atr = (atr*float64(window-1) + trs[i]) / float64(window)
	}
	return atr
}

// ATRRatio devuelve el último ATR dividido por el ATR medio sobre la misma
// ventana, un medidor barato de régimen de volatilidad. NaN en series cortas.
func ATRRatio(candles []domain.Candle, window int) float64 {
	trs := trueRanges(candles)
	if window <= 0 || len(trs) < 2*window {
		return math.NaN()
	}

	// Recorre toda la serie manteniendo el ATR de Wilder corriente,
	// promediando la ventana final de ATRs para comparar contra el último.
	sum := 0.0
	for i := 0; i < window; i++ {
		sum += trs[i]
	}
	atr := sum / float64(window)

	recent := make([]float64, 0, window)
	for i := window; i < len(trs); i++ {
		atr = (atr*float64(window-1) + trs[i]) / float64(window)
		recent = append(recent, atr)
		if len(recent) > window {
			recent = recent[1:]
		}
	}

	avg := 0.0
	for _, v := range recent {
		avg += v
	}
	avg /= float64(len(recent))
	if avg == 0 {
		return math.NaN()
	}
	return atr / avg
}

// VolumeDelta devuelve el último volumen dividido por el volumen medio de la
// ventana previa (la última muestra excluida). NaN en series cortas.
func VolumeDelta(candles []domain.Candle, window int) float64 {
	if window <= 0 || len(candles) < window+1 {
		return math.NaN()
	}

	avg := 0.0
	for i := len(candles) - window - 1; i < len(candles)-1; i++ {
		avg += candles[i].Volume
	}
	avg /= float64(window)
	if avg == 0 {
		return math.NaN()
	}
	return candles[len(candles)-1].Volume / avg
}

func trueRanges(candles []domain.Candle) []float64 {
	if len(candles) < 2 {
		return nil
	}
	trs := make([]float64, 0, len(candles)-1)
	for i := 1; i < len(candles); i++ {
		c, prev := candles[i], candles[i-1]
		tr := c.High - c.Low
		if hc := math.Abs(c.High - prev.Close); hc > tr {
			tr = hc
		}
		if lc := math.Abs(c.Low - prev.Close); lc > tr {
			tr = lc
		}
		trs = append(trs, tr)
	}
	return trs
}
