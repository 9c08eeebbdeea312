package domain

import "time"

// Candle es una muestra OHLCV de la serie de precios de un activo de referencia.
type Candle struct {
	OpenTime time.Time
	Open     float64
	High     float64
	Low      float64
	Close    float64
	Volume   float64
}
