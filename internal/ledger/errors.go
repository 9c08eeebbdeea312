package ledger

import "errors"

var (
	// ErrInsufficientFunds significa que Reserve rechazó una oportunidad
	// porque el balance disponible no cubre su coste combinado. No fatal: la
	// oportunidad se descarta y puede reaparecer en un tick posterior.
	ErrInsufficientFunds = errors.New("insufficient funds")

	// ErrAlreadySettled significa que Settle o Fail tocó un trade ya
	// terminal. No-op idempotente para quien pollea progreso.
	ErrAlreadySettled = errors.New("trade already settled")

	// ErrUnknownTrade significa que el trade id no existe. Bug del caller,
	// se expone en vez de tragarse.
	ErrUnknownTrade = errors.New("unknown trade")

	// ErrStaleArbitrage significa que un arbitraje ya no pasa el umbral de
	// suma de precios contra el snapshot más fresco.
	ErrStaleArbitrage = errors.New("arbitrage no longer profitable")

	// ErrHalted significa que una invariante del fondo rompió y el ledger
	// rechaza reservas nuevas hasta que intervenga el operador.
	ErrHalted = errors.New("ledger halted")
)
