package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/alejandrodnm/autobet/internal/domain"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config es la configuración completa del motor.
type Config struct {
	Engine        EngineConfig        `yaml:"engine"`
	Conflict      ConflictConfig      `yaml:"conflict"`
	Payout        PayoutConfig        `yaml:"payout"`
	Actuation     ActuationConfig     `yaml:"actuation"`
	Storage       StorageConfig       `yaml:"storage"`
	Metrics       MetricsConfig       `yaml:"metrics"`
	Log           LogConfig           `yaml:"log"`
	Strategies    []StrategyConfig    `yaml:"strategies"`
	StrategiesDir string              `yaml:"strategies_dir"` // un YAML por estrategia
	Tables        map[string][]string `yaml:"tables"`         // mesa → keys de estrategias
}

// EngineConfig controla el bucle de eventos.
type EngineConfig struct {
	Feed                    string `yaml:"feed"` // fichero JSON lines, o "-" para stdin
	SnapshotIntervalSeconds int    `yaml:"snapshot_interval_seconds"`
}

// ConflictConfig controla el árbitro de candidatos.
type ConflictConfig struct {
	EnableEVEvaluation *bool          `yaml:"enable_ev_evaluation"` // nil = activado
	FixedPriority      map[string]int `yaml:"fixed_priority"`
}

// EVEnabled indica si el término EV entra en el score.
func (c ConflictConfig) EVEnabled() bool {
	return c.EnableEVEvaluation == nil || *c.EnableEVEvaluation
}

// PayoutConfig son los multiplicadores de ganancia por lado.
type PayoutConfig struct {
	Banker float64 `yaml:"banker"`
	Player float64 `yaml:"player"`
	Tie    float64 `yaml:"tie"`
}

// ActuationConfig controla cómo se colocan las apuestas.
type ActuationConfig struct {
	Endpoint       string  `yaml:"endpoint"` // vacío = dry run
	TimeoutSeconds int     `yaml:"timeout_seconds"`
	RatePerSec     float64 `yaml:"rate_per_sec"`
	Burst          int     `yaml:"burst"`
	QueueSize      int     `yaml:"queue_size"`
}

// StorageConfig controla dónde se persisten los datos.
type StorageConfig struct {
	DSN string `yaml:"dsn"` // ruta al archivo SQLite, o ":memory:"
}

// MetricsConfig controla el endpoint de Prometheus.
type MetricsConfig struct {
	Addr string `yaml:"addr"` // vacío = desactivado
}

// LogConfig controla el formato y nivel de logging.
type LogConfig struct {
	Level  string `yaml:"level"`  // debug | info | warn | error
	Format string `yaml:"format"` // text | json
}

// StrategyConfig es la forma YAML de una StrategyDefinition.
type StrategyConfig struct {
	Key        string           `yaml:"key"`
	Entry      EntryConfig      `yaml:"entry"`
	Staking    StakingConfig    `yaml:"staking"`
	CrossTable CrossTableConfig `yaml:"cross_table"`
	Risk       RiskConfig       `yaml:"risk"`
	Metadata   map[string]any   `yaml:"metadata"`
}

type EntryConfig struct {
	Pattern            string `yaml:"pattern"`
	Dedup              string `yaml:"dedup"`
	FirstTrigger       string `yaml:"first_trigger"`
	ValidWindowSeconds int    `yaml:"valid_window_seconds"`
}

type StakingConfig struct {
	Sequence    []int   `yaml:"sequence"`
	AdvanceOn   string  `yaml:"advance_on"`
	ResetOnWin  bool    `yaml:"reset_on_win"`
	ResetOnLoss bool    `yaml:"reset_on_loss"`
	MaxLayers   int     `yaml:"max_layers"`
	PerHandCap  float64 `yaml:"per_hand_cap"`
}

type CrossTableConfig struct {
	Mode string `yaml:"mode"`
}

type RiskConfig struct {
	Levels []RiskLevelConfig `yaml:"levels"`
}

type RiskLevelConfig struct {
	Scope                string   `yaml:"scope"`
	TakeProfit           *float64 `yaml:"take_profit"`
	StopLoss             *float64 `yaml:"stop_loss"`
	MaxConsecutiveLosses int      `yaml:"max_consecutive_losses"`
	Action               string   `yaml:"action"`
	CooldownSeconds      int      `yaml:"cooldown_seconds"`
}

// Load carga la configuración desde el archivo YAML y el archivo .env si existe.
// Los valores del .env sobreescriben los del YAML para las keys que correspondan.
func Load(path string) (*Config, error) {
	// Cargar .env si existe (silencia error si no hay archivo)
	_ = godotenv.Load()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config.Load: read %q: %w", path, err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config.Load: parse YAML: %w", err)
	}

	if cfg.StrategiesDir != "" {
		dir := cfg.StrategiesDir
		if !filepath.IsAbs(dir) {
			dir = filepath.Join(filepath.Dir(path), dir)
		}
		more, err := loadStrategiesDir(dir)
		if err != nil {
			return nil, fmt.Errorf("config.Load: %w", err)
		}
		cfg.Strategies = append(cfg.Strategies, more...)
	}

	applyEnvOverrides(&cfg)
	setDefaults(&cfg)

	return &cfg, nil
}

// loadStrategiesDir lee cada *.yaml / *.yml del directorio, en orden alfabético.
func loadStrategiesDir(dir string) ([]StrategyConfig, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("strategies dir %q: %w", dir, err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if e.IsDir() || (ext != ".yaml" && ext != ".yml") {
			continue
		}
		names = append(names, e.Name())
	}
	sort.Strings(names)

	out := make([]StrategyConfig, 0, len(names))
	for _, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read strategy %q: %w", name, err)
		}
		var sc StrategyConfig
		if err := yaml.Unmarshal(data, &sc); err != nil {
			return nil, fmt.Errorf("parse strategy %q: %w", name, err)
		}
		if sc.Key == "" {
			sc.Key = strings.TrimSuffix(name, filepath.Ext(name))
		}
		out = append(out, sc)
	}
	return out, nil
}

// SnapshotInterval devuelve el intervalo de snapshot como time.Duration.
func (c *Config) SnapshotInterval() time.Duration {
	return time.Duration(c.Engine.SnapshotIntervalSeconds) * time.Second
}

// ActuationTimeout devuelve el timeout HTTP de la capa de actuación.
func (c *Config) ActuationTimeout() time.Duration {
	return time.Duration(c.Actuation.TimeoutSeconds) * time.Second
}

// PayoutTable convierte la sección payout al tipo de dominio.
func (c *Config) PayoutTable() domain.Payout {
	return domain.Payout{Banker: c.Payout.Banker, Player: c.Payout.Player, Tie: c.Payout.Tie}
}

// Definitions convierte y valida todas las estrategias, en el orden del archivo.
func (c *Config) Definitions() ([]domain.StrategyDefinition, error) {
	seen := make(map[string]bool, len(c.Strategies))
	defs := make([]domain.StrategyDefinition, 0, len(c.Strategies))
	for _, sc := range c.Strategies {
		if seen[sc.Key] {
			return nil, fmt.Errorf("config.Definitions: %w: %q", domain.ErrDuplicateStrategy, sc.Key)
		}
		seen[sc.Key] = true

		def, err := sc.Definition()
		if err != nil {
			return nil, fmt.Errorf("config.Definitions: %w", err)
		}
		defs = append(defs, def)
	}
	return defs, nil
}

// Validate comprueba que las estrategias son válidas y que cada mesa
// solo referencia estrategias declaradas.
func (c *Config) Validate() error {
	defs, err := c.Definitions()
	if err != nil {
		return err
	}
	known := make(map[string]bool, len(defs))
	for _, d := range defs {
		known[d.Key] = true
	}
	for table, keys := range c.Tables {
		for _, k := range keys {
			if !known[k] {
				return fmt.Errorf("config.Validate: table %q: %w: %q", table, domain.ErrUnknownStrategy, k)
			}
		}
	}
	return nil
}

// TableIDs devuelve las mesas configuradas en orden estable.
func (c *Config) TableIDs() []string {
	ids := make([]string, 0, len(c.Tables))
	for id := range c.Tables {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// Definition convierte la forma YAML a StrategyDefinition y la valida.
func (sc StrategyConfig) Definition() (domain.StrategyDefinition, error) {
	def := domain.StrategyDefinition{
		Key: sc.Key,
		Entry: domain.EntryConfig{
			Raw:          sc.Entry.Pattern,
			Dedup:        domain.DedupMode(strings.ToLower(sc.Entry.Dedup)),
			FirstTrigger: domain.FirstTrigger(strings.ToLower(sc.Entry.FirstTrigger)),
			ValidWindow:  time.Duration(sc.Entry.ValidWindowSeconds) * time.Second,
		},
		Staking: domain.StakingConfig{
			Sequence:    append([]int(nil), sc.Staking.Sequence...),
			AdvanceOn:   domain.AdvanceRule(strings.ToLower(sc.Staking.AdvanceOn)),
			ResetOnWin:  sc.Staking.ResetOnWin,
			ResetOnLoss: sc.Staking.ResetOnLoss,
			MaxLayers:   sc.Staking.MaxLayers,
			PerHandCap:  sc.Staking.PerHandCap,
		},
		CrossTable: domain.CrossTableMode(strings.ToLower(sc.CrossTable.Mode)),
		Metadata:   make(domain.Metadata, len(sc.Metadata)),
	}
	for k, v := range sc.Metadata {
		def.Metadata[k] = fmt.Sprint(v)
	}
	for _, lvl := range sc.Risk.Levels {
		if lvl.CooldownSeconds < 0 {
			return domain.StrategyDefinition{}, fmt.Errorf("strategy %s: %w: negative cooldown", sc.Key, domain.ErrInvalidRiskLevel)
		}
		def.Risk = append(def.Risk, domain.RiskLevel{
			Scope:                domain.RiskScopeKind(strings.ToLower(lvl.Scope)),
			TakeProfit:           lvl.TakeProfit,
			StopLoss:             lvl.StopLoss,
			MaxConsecutiveLosses: lvl.MaxConsecutiveLosses,
			Action:               domain.RiskAction(strings.ToLower(lvl.Action)),
			Cooldown:             time.Duration(lvl.CooldownSeconds) * time.Second,
		})
	}

	if err := def.Validate(); err != nil {
		return domain.StrategyDefinition{}, err
	}
	return def, nil
}

// applyEnvOverrides sobreescribe valores con variables de entorno si están presentes.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Log.Level = v
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Log.Format = v
	}
	if v := os.Getenv("AUTOBET_DB"); v != "" {
		cfg.Storage.DSN = v
	}
	if v := os.Getenv("AUTOBET_METRICS_ADDR"); v != "" {
		cfg.Metrics.Addr = v
	}
	if v := os.Getenv("AUTOBET_ACTUATOR_URL"); v != "" {
		cfg.Actuation.Endpoint = v
	}
}

// setDefaults asegura que los valores requeridos tengan valores sensatos.
func setDefaults(cfg *Config) {
	if cfg.Engine.Feed == "" {
		cfg.Engine.Feed = "-"
	}
	if cfg.Engine.SnapshotIntervalSeconds <= 0 {
		cfg.Engine.SnapshotIntervalSeconds = 30
	}
	if cfg.Conflict.EnableEVEvaluation == nil {
		enabled := true
		cfg.Conflict.EnableEVEvaluation = &enabled
	}
	if cfg.Payout.Banker <= 0 {
		cfg.Payout.Banker = 1
	}
	if cfg.Payout.Player <= 0 {
		cfg.Payout.Player = 1
	}
	if cfg.Payout.Tie <= 0 {
		cfg.Payout.Tie = 1
	}
	if cfg.Actuation.TimeoutSeconds <= 0 {
		cfg.Actuation.TimeoutSeconds = 5
	}
	if cfg.Actuation.RatePerSec <= 0 {
		cfg.Actuation.RatePerSec = 5
	}
	if cfg.Actuation.Burst <= 0 {
		cfg.Actuation.Burst = 2
	}
	if cfg.Actuation.QueueSize <= 0 {
		cfg.Actuation.QueueSize = 64
	}
	if cfg.Storage.DSN == "" {
		cfg.Storage.DSN = "autobet.db"
	}
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}
	if cfg.Log.Format == "" {
		cfg.Log.Format = "text"
	}
	if cfg.Tables == nil {
		cfg.Tables = map[string][]string{}
	}
}
