package config

import (
	"fmt"
	"os"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del simulador.
type Config struct {
	Fund       FundConfig       `yaml:"fund"`
	NegRisk    NegRiskConfig    `yaml:"negrisk"`
	Bonds      BondConfig       `yaml:"bonds"`
	Whales     WhaleConfig      `yaml:"whales"`
	Temporal   TemporalConfig   `yaml:"temporal"`
	Resolution ResolutionConfig `yaml:"resolution"`
	Fees       FeeConfig        `yaml:"fees"`
	API        APIConfig        `yaml:"api"`
	Storage    StorageConfig    `yaml:"storage"`
	Log        LogConfig        `yaml:"log"`
}

// FundConfig controla el fondo virtual.
type FundConfig struct {
	InitialBalance float64 `yaml:"initial_balance"`
	MinBalance     float64 `yaml:"min_balance"` // fondo inicial mínimo aceptado
	MaxBalance     float64 `yaml:"max_balance"` // fondo inicial máximo aceptado
}

// NegRiskConfig controla el detector de arbitraje NegRisk.
type NegRiskConfig struct {
	IntervalSeconds int     `yaml:"interval_seconds"`
	Buffer          float64 `yaml:"buffer"`           // solo dispara si suma < 1.0 - buffer
	MaxPositionPct  float64 `yaml:"max_position_pct"` // del balance total, por oportunidad
}

// BondConfig controla el detector de bonos de alta probabilidad.
type BondConfig struct {
	IntervalSeconds    int     `yaml:"interval_seconds"`
	MinPrice           float64 `yaml:"min_price"` // 0.95 = territorio "bono"
	DefaultPositionPct float64 `yaml:"default_position_pct"`
	MaxPositionPct     float64 `yaml:"max_position_pct"`
	MinLiquidity       float64 `yaml:"min_liquidity"` // profundidad USD exigida al precio de entrada
}

// WhaleConfig controla el descubrimiento, monitoreo y copy trading de ballenas.
type WhaleConfig struct {
	DiscoveryIntervalSeconds int     `yaml:"discovery_interval_seconds"`
	MonitorIntervalSeconds   int     `yaml:"monitor_interval_seconds"`
	MinProfit7d              float64 `yaml:"min_profit_7d"` // piso de vetting
	MinTrades                int     `yaml:"min_trades"`
	MinWinRate               float64 `yaml:"min_win_rate"`
	SignalMinWhales          int     `yaml:"signal_min_whales"`
	SignalWindowSeconds      int     `yaml:"signal_window_seconds"`
	MaxSlippage              float64 `yaml:"max_slippage"` // deriva de precio desde la primera ballena
	MinPositionPct           float64 `yaml:"min_position_pct"`
	MaxPositionPct           float64 `yaml:"max_position_pct"`
	MaxOpenPositions         int     `yaml:"max_open_positions"`
	EvictAfterHours          float64 `yaml:"evict_after_hours"` // expulsa ballenas inactivas
	RSIOverbought            float64 `yaml:"rsi_overbought"`
	RSIOversold              float64 `yaml:"rsi_oversold"`
	LowVolumeRatio           float64 `yaml:"low_volume_ratio"`     // vs media móvil
	HighVolatilityMult       float64 `yaml:"high_volatility_mult"` // vs ATR móvil
}

// TemporalConfig controla el detector de arbitraje temporal.
type TemporalConfig struct {
	IntervalSeconds     int     `yaml:"interval_seconds"`
	MoveWindowSeconds   int     `yaml:"move_window_seconds"`
	MinMovePct          float64 `yaml:"min_move_pct"`       // movimiento del activo de referencia que importa
	MinMispricingPct    float64 `yaml:"min_mispricing_pct"` // edge implícito para disparar
	MaxTimeRemainingSec int     `yaml:"max_time_remaining_seconds"`
	MaxLaggingPrice     float64 `yaml:"max_lagging_price"` // el lado de entrada aún debe cotizar por debajo
	DefaultPositionPct  float64 `yaml:"default_position_pct"`
	MaxPositionPct      float64 `yaml:"max_position_pct"`
}

// ResolutionConfig controla el motor de liquidación.
type ResolutionConfig struct {
	IntervalSeconds   int     `yaml:"interval_seconds"`
	StaleAfterMinutes float64 `yaml:"stale_after_minutes"` // mercados desaparecidos fallan tras esto
}

// FeeConfig contiene los parámetros de la fórmula de taker fee del venue.
// fee = shares × rate × (p·(1−p))^exponent, solo mercados crypto de 15 min.
type FeeConfig struct {
	Rate     float64 `yaml:"rate"`
	Exponent float64 `yaml:"exponent"`
}

// APIConfig contiene las URLs base de las APIs externas.
type APIConfig struct {
	GammaBase    string `yaml:"gamma_base"`
	CLOBBase     string `yaml:"clob_base"`
	DataBase     string `yaml:"data_base"`
	StreamURL    string `yaml:"stream_url"`
	BinanceBase  string `yaml:"binance_base"`
	CoinbaseBase string `yaml:"coinbase_base"`
}

// StorageConfig controla dónde se persiste el estado.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta del archivo SQLite, o ":memory:"
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// Load lee el archivo YAML de configuración y el .env si existe.
// Los valores de entorno pisan el YAML en las claves que mapean.
func Load(path string) (*Config, error) {
	// Carga .env si existe (que falte no es error)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// Default devuelve una config con todos los defaults aplicados, para tests y
// ejecuciones sin archivo de configuración.
func Default() *Config {
	var cfg Config
	setDefaults(&cfg)
	return &cfg
}

// NegRiskInterval devuelve el intervalo de escaneo NegRisk como time.Duration.
func (c *Config) NegRiskInterval() time.Duration {
	return time.Duration(c.NegRisk.IntervalSeconds) * time.Second
}

// BondInterval devuelve el intervalo de escaneo de bonos.
func (c *Config) BondInterval() time.Duration {
	return time.Duration(c.Bonds.IntervalSeconds) * time.Second
}

// WhaleMonitorInterval devuelve el intervalo de polling de actividad de ballenas.
func (c *Config) WhaleMonitorInterval() time.Duration {
	return time.Duration(c.Whales.MonitorIntervalSeconds) * time.Second
}

// WhaleDiscoveryInterval devuelve el intervalo de refresh del leaderboard.
func (c *Config) WhaleDiscoveryInterval() time.Duration {
	return time.Duration(c.Whales.DiscoveryIntervalSeconds) * time.Second
}

// WhaleSignalWindow devuelve la ventana de convergencia multi-ballena.
func (c *Config) WhaleSignalWindow() time.Duration {
	return time.Duration(c.Whales.SignalWindowSeconds) * time.Second
}

// WhaleEvictAfter devuelve el horizonte de inactividad de las ballenas seguidas.
func (c *Config) WhaleEvictAfter() time.Duration {
	return time.Duration(c.Whales.EvictAfterHours * float64(time.Hour))
}

// TemporalInterval devuelve el intervalo de escaneo del arbitraje temporal.
func (c *Config) TemporalInterval() time.Duration {
	return time.Duration(c.Temporal.IntervalSeconds) * time.Second
}

// TemporalMoveWindow devuelve el lookback sobre el que se mide el movimiento
// del activo de referencia.
func (c *Config) TemporalMoveWindow() time.Duration {
	return time.Duration(c.Temporal.MoveWindowSeconds) * time.Second
}

// TemporalMaxRemaining devuelve el techo de tiempo a expiración para entradas temporales.
func (c *Config) TemporalMaxRemaining() time.Duration {
	return time.Duration(c.Temporal.MaxTimeRemainingSec) * time.Second
}

// ResolutionInterval devuelve el intervalo de polling de liquidación.
func (c *Config) ResolutionInterval() time.Duration {
	return time.Duration(c.Resolution.IntervalSeconds) * time.Second
}

// StaleAfter devuelve el horizonte tras el cual un mercado desaparecido falla sus trades.
func (c *Config) StaleAfter() time.Duration {
	return time.Duration(c.Resolution.StaleAfterMinutes * float64(time.Minute))
}

// applyEnvOverrides pisa valores con variables de entorno cuando existen.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("STORAGE_DSN"); v != "" {
		cfg.Storage.DSN = v
	}
}

// setDefaults asegura que cada valor requerido tenga algo sensato.
func setDefaults(cfg *Config) {
	if cfg.Fund.InitialBalance <= 0 {
		cfg.Fund.InitialBalance = 1000
	}
	if cfg.Fund.MinBalance <= 0 {
		cfg.Fund.MinBalance = 10
	}
	if cfg.Fund.MaxBalance <= 0 {
		cfg.Fund.MaxBalance = 1_000_000
	}

	if cfg.NegRisk.IntervalSeconds <= 0 {
		cfg.NegRisk.IntervalSeconds = 30
	}
	if cfg.NegRisk.Buffer <= 0 {
		cfg.NegRisk.Buffer = 0.02
	}
	if cfg.NegRisk.MaxPositionPct <= 0 {
		cfg.NegRisk.MaxPositionPct = 0.10
	}

	if cfg.Bonds.IntervalSeconds <= 0 {
		cfg.Bonds.IntervalSeconds = 15
	}
	if cfg.Bonds.MinPrice <= 0 {
		cfg.Bonds.MinPrice = 0.95
	}
	if cfg.Bonds.DefaultPositionPct <= 0 {
		cfg.Bonds.DefaultPositionPct = 0.02
	}
	if cfg.Bonds.MaxPositionPct <= 0 {
		cfg.Bonds.MaxPositionPct = 0.05
	}
	if cfg.Bonds.MinLiquidity <= 0 {
		cfg.Bonds.MinLiquidity = 10.0
	}

	if cfg.Whales.DiscoveryIntervalSeconds <= 0 {
		cfg.Whales.DiscoveryIntervalSeconds = 1800
	}
	if cfg.Whales.MonitorIntervalSeconds <= 0 {
		cfg.Whales.MonitorIntervalSeconds = 12
	}
	if cfg.Whales.MinProfit7d <= 0 {
		cfg.Whales.MinProfit7d = 50
	}
	if cfg.Whales.MinTrades <= 0 {
		cfg.Whales.MinTrades = 3
	}
	if cfg.Whales.MinWinRate <= 0 {
		cfg.Whales.MinWinRate = 0.50
	}
	if cfg.Whales.SignalMinWhales <= 0 {
		cfg.Whales.SignalMinWhales = 2
	}
	if cfg.Whales.SignalWindowSeconds <= 0 {
		cfg.Whales.SignalWindowSeconds = 300
	}
	if cfg.Whales.MaxSlippage <= 0 {
		cfg.Whales.MaxSlippage = 0.05
	}
	if cfg.Whales.MinPositionPct <= 0 {
		cfg.Whales.MinPositionPct = 0.005
	}
	if cfg.Whales.MaxPositionPct <= 0 {
		cfg.Whales.MaxPositionPct = 0.02
	}
	if cfg.Whales.MaxOpenPositions <= 0 {
		cfg.Whales.MaxOpenPositions = 5
	}
	if cfg.Whales.EvictAfterHours <= 0 {
		cfg.Whales.EvictAfterHours = 24
	}
	if cfg.Whales.RSIOverbought <= 0 {
		cfg.Whales.RSIOverbought = 80
	}
	if cfg.Whales.RSIOversold <= 0 {
		cfg.Whales.RSIOversold = 20
	}
	if cfg.Whales.LowVolumeRatio <= 0 {
		cfg.Whales.LowVolumeRatio = 0.50
	}
	if cfg.Whales.HighVolatilityMult <= 0 {
		cfg.Whales.HighVolatilityMult = 1.5
	}

	if cfg.Temporal.IntervalSeconds <= 0 {
		cfg.Temporal.IntervalSeconds = 1
	}
	if cfg.Temporal.MoveWindowSeconds <= 0 {
		cfg.Temporal.MoveWindowSeconds = 60
	}
	if cfg.Temporal.MinMovePct <= 0 {
		cfg.Temporal.MinMovePct = 0.02
	}
	if cfg.Temporal.MinMispricingPct <= 0 {
		cfg.Temporal.MinMispricingPct = 0.10
	}
	if cfg.Temporal.MaxTimeRemainingSec <= 0 {
		cfg.Temporal.MaxTimeRemainingSec = 600
	}
	if cfg.Temporal.MaxLaggingPrice <= 0 {
		cfg.Temporal.MaxLaggingPrice = 0.70
	}
	if cfg.Temporal.DefaultPositionPct <= 0 {
		cfg.Temporal.DefaultPositionPct = 0.01
	}
	if cfg.Temporal.MaxPositionPct <= 0 {
		cfg.Temporal.MaxPositionPct = 0.03
	}

	if cfg.Resolution.IntervalSeconds <= 0 {
		cfg.Resolution.IntervalSeconds = 5
	}
	if cfg.Resolution.StaleAfterMinutes <= 0 {
		cfg.Resolution.StaleAfterMinutes = 30
	}

	if cfg.Fees.Rate <= 0 {
		cfg.Fees.Rate = 0.25
	}
	if cfg.Fees.Exponent <= 0 {
		cfg.Fees.Exponent = 2
	}

	if cfg.API.GammaBase == "" {
		cfg.API.GammaBase = "https://gamma-api.polymarket.com"
	}
	if cfg.API.CLOBBase == "" {
		cfg.API.CLOBBase = "https://clob.polymarket.com"
	}
	if cfg.API.DataBase == "" {
		cfg.API.DataBase = "https://data-api.polymarket.com"
	}
	if cfg.API.StreamURL == "" {
		cfg.API.StreamURL = "wss://ws-subscriptions-clob.polymarket.com/ws/market"
	}
	if cfg.API.BinanceBase == "" {
		cfg.API.BinanceBase = "https://api.binance.com"
	}
	if cfg.API.CoinbaseBase == "" {
		cfg.API.CoinbaseBase = "https://api.coinbase.com"
	}

	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "polysim.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
}
