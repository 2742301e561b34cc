package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	log "github.com/sirupsen/logrus"
	"github.com/spf13/viper"
	"golang.org/x/text/language"
)

// EnvPrefix ist das Präfix für Umgebungsvariablen, z.B. STRESS_DETECT_SERVER_PORT
const EnvPrefix = "STRESS_DETECT"

// Config repräsentiert die Hauptkonfiguration der Anwendung
type Config struct {
	Server     ServerConfig     `mapstructure:"server"`
	Log        LogConfig        `mapstructure:"log"`
	Detector   DetectorConfig   `mapstructure:"detector"`
	Model      ModelConfig      `mapstructure:"model"`
	Fallback   FallbackConfig   `mapstructure:"fallback"`
	Classifier ClassifierConfig `mapstructure:"classifier"`
	Annotator  AnnotatorConfig  `mapstructure:"annotator"`
	Pipeline   PipelineConfig   `mapstructure:"pipeline"`
	DB         DBConfig         `mapstructure:"db"`
	MQTT       MQTTConfig       `mapstructure:"mqtt"`
	Alerts     AlertsConfig     `mapstructure:"alerts"`
	Auth       AuthConfig       `mapstructure:"auth"`
	I18n       I18nConfig       `mapstructure:"i18n"`
	Debug      DebugConfig      `mapstructure:"debug"`
}

// ServerConfig enthält Server-bezogene Einstellungen
type ServerConfig struct {
	Host          string   `mapstructure:"host"`
	Port          int      `mapstructure:"port" validate:"gt=0,lt=65536"`
	DataDir       string   `mapstructure:"data_dir"`
	RateLimit     float64  `mapstructure:"rate_limit" validate:"gte=0"` // Anfragen pro Sekunde und IP, 0 = aus
	RateBurst     int      `mapstructure:"rate_burst" validate:"gte=0"`
	SessionSecret string   `mapstructure:"session_secret"`
	CORSOrigins   []string `mapstructure:"cors_origins"`
}

// LogConfig enthält Log-Einstellungen
type LogConfig struct {
	Level      string `mapstructure:"level"`
	File       string `mapstructure:"file"`
	Format     string `mapstructure:"format" validate:"omitempty,oneof=text json"`
	MaxSizeMB  int    `mapstructure:"max_size_mb" validate:"gte=0"`
	MaxBackups int    `mapstructure:"max_backups" validate:"gte=0"`
	MaxAgeDays int    `mapstructure:"max_age_days" validate:"gte=0"`
	Compress   bool   `mapstructure:"compress"`
}

// LadderStep ist ein Eintrag der Detektions-Leiter (Skalierungsfaktor, Nachbarn)
type LadderStep struct {
	ScaleFactor  float64 `mapstructure:"scale_factor" validate:"gt=1"`
	MinNeighbors int     `mapstructure:"min_neighbors" validate:"gte=0"`
}

// PigoConfig enthält Feineinstellungen für den pigo-Detektor
type PigoConfig struct {
	ShiftFactor        float64 `mapstructure:"shift_factor" validate:"gt=0,lte=1"`
	IoUThreshold       float64 `mapstructure:"iou_threshold" validate:"gte=0,lte=1"`
	MaxSize            int     `mapstructure:"max_size" validate:"gte=0"`
	QualityPerNeighbor float64 `mapstructure:"quality_per_neighbor" validate:"gte=0"`
}

// DetectorConfig enthält Einstellungen für die Gesichtserkennung
type DetectorConfig struct {
	Backend         string       `mapstructure:"backend" validate:"oneof=opencv pigo"`
	CascadePath     string       `mapstructure:"cascade_path"`      // Haar-Kaskade (OpenCV XML)
	PigoCascadePath string       `mapstructure:"pigo_cascade_path"` // pico-Kaskade (facefinder)
	MinSize         int          `mapstructure:"min_size" validate:"gte=1"`
	Ladder          []LadderStep `mapstructure:"ladder" validate:"min=1,dive"`
	Pigo            PigoConfig   `mapstructure:"pigo"`
}

// ModelConfig enthält den Pfad zum Gewichts-Artefakt
type ModelConfig struct {
	WeightsPath string `mapstructure:"weights_path"`
}

// FallbackConfig beschreibt den Bereich synthetischer Werte im Degraded-Modus
type FallbackConfig struct {
	Min    float64 `mapstructure:"min" validate:"gte=0,lte=100"`
	Max    float64 `mapstructure:"max" validate:"gte=0,lte=100,gtefield=Min"`
	Spread float64 `mapstructure:"spread" validate:"gte=0"`
	Seed   uint64  `mapstructure:"seed"` // 0 = zeitbasiert
}

// ClassifierConfig enthält die Kategorie-Schwellenwerte
type ClassifierConfig struct {
	Low  float64 `mapstructure:"low" validate:"gte=0,lte=100"`
	High float64 `mapstructure:"high" validate:"gte=0,lte=100,gtefield=Low"`
}

// AnnotatorConfig enthält Einstellungen für das Ergebnisbild
type AnnotatorConfig struct {
	LineWidth   float64 `mapstructure:"line_width" validate:"gt=0"`
	JPEGQuality int     `mapstructure:"jpeg_quality" validate:"gte=1,lte=100"`
}

// PipelineConfig steuert die Parallelität der Verarbeitung
type PipelineConfig struct {
	FaceWorkers int `mapstructure:"face_workers" validate:"gte=1"`
	PoolWorkers int `mapstructure:"pool_workers" validate:"gte=0"` // 0 = automatisch
	QueueSize   int `mapstructure:"queue_size" validate:"gte=0"`
	MaxUploadMB int `mapstructure:"max_upload_mb" validate:"gte=1"`
}

// DBConfig enthält Datenbankeinstellungen für den Ergebnisverlauf
type DBConfig struct {
	Enabled         bool          `mapstructure:"enabled"`
	File            string        `mapstructure:"file"`
	RetentionDays   int           `mapstructure:"retention_days" validate:"gte=0"` // 0 deaktiviert die Bereinigung
	CleanupInterval time.Duration `mapstructure:"cleanup_interval"`
}

// MQTTConfig enthält die Konfiguration für den MQTT-Client
type MQTTConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	Broker      string `mapstructure:"broker"`
	Port        int    `mapstructure:"port"`
	Username    string `mapstructure:"username"`
	Password    string `mapstructure:"password"`
	ClientID    string `mapstructure:"client_id"`
	TopicPrefix string `mapstructure:"topic_prefix"`
	Ingest      bool   `mapstructure:"ingest"`
}

// AlertsConfig enthält Schwellenwerte für Benachrichtigungen
type AlertsConfig struct {
	SevereThreshold float64 `mapstructure:"severe_threshold" validate:"gte=0,lte=100"`
	HighAverage     float64 `mapstructure:"high_average" validate:"gte=0,lte=100"`
}

// AuthConfig enthält die optionale Token-Prüfung
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// I18nConfig enthält Spracheinstellungen
type I18nConfig struct {
	DefaultLanguage string `mapstructure:"default_language"`
}

// DebugConfig steuert den Speicher der letzten Ergebnisbilder
type DebugConfig struct {
	Enabled   bool `mapstructure:"enabled"`
	MaxImages int  `mapstructure:"max_images" validate:"gte=0"`
}

// Load lädt die Konfiguration aus Datei, Umgebungsvariablen und Standardwerten
func Load(configPath string) (*Config, error) {
	v := viper.New()

	setDefaults(v)

	if configPath != "" {
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			log.Warnf("Config file %s does not exist, using defaults", configPath)
		} else {
			v.SetConfigFile(configPath)
			if err := v.ReadInConfig(); err != nil {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
			log.Infof("Config loaded from %s", configPath)
		}
	}

	// Umgebungsvariablen überlagern die Konfiguration
	v.AutomaticEnv()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	if err := ensureDirectories(&cfg); err != nil {
		return nil, fmt.Errorf("failed to create required directories: %w", err)
	}

	return &cfg, nil
}

// Validate prüft Wertebereiche und Abhängigkeiten zwischen Feldern
func (c *Config) Validate() error {
	if err := validator.New().Struct(c); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	if c.I18n.DefaultLanguage != "" {
		if _, err := language.Parse(c.I18n.DefaultLanguage); err != nil {
			return fmt.Errorf("invalid config: i18n.default_language %q: %w", c.I18n.DefaultLanguage, err)
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		return fmt.Errorf("invalid config: mqtt.broker is required when mqtt is enabled")
	}
	return nil
}

// setDefaults legt Standardwerte für die Konfiguration fest
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 5000)
	v.SetDefault("server.data_dir", "./data")
	v.SetDefault("server.rate_limit", 5.0)
	v.SetDefault("server.rate_burst", 10)
	v.SetDefault("server.session_secret", "stress-detect-session")
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "./data/logs/stress-detect.log")
	v.SetDefault("log.format", "text")
	v.SetDefault("log.max_size_mb", 50)
	v.SetDefault("log.max_backups", 3)
	v.SetDefault("log.max_age_days", 14)
	v.SetDefault("log.compress", true)

	// Leiter: präzise Nachbarschwelle zuerst, innerhalb davon die Skalierungen in fester Reihenfolge
	v.SetDefault("detector.backend", "opencv")
	v.SetDefault("detector.cascade_path", "models/haarcascade_frontalface_default.xml")
	v.SetDefault("detector.pigo_cascade_path", "models/facefinder")
	v.SetDefault("detector.min_size", 30)
	v.SetDefault("detector.ladder", DefaultLadder())
	v.SetDefault("detector.pigo.shift_factor", 0.1)
	v.SetDefault("detector.pigo.iou_threshold", 0.2)
	v.SetDefault("detector.pigo.max_size", 1000)
	v.SetDefault("detector.pigo.quality_per_neighbor", 1.0)

	v.SetDefault("model.weights_path", "models/stress_detection_model.bin")

	v.SetDefault("fallback.min", 40.0)
	v.SetDefault("fallback.max", 95.0)
	v.SetDefault("fallback.spread", 5.0)
	v.SetDefault("fallback.seed", 0)

	v.SetDefault("classifier.low", 40.0)
	v.SetDefault("classifier.high", 70.0)

	v.SetDefault("annotator.line_width", 2.0)
	v.SetDefault("annotator.jpeg_quality", 90)

	v.SetDefault("pipeline.face_workers", 4)
	v.SetDefault("pipeline.pool_workers", 0)
	v.SetDefault("pipeline.queue_size", 16)
	v.SetDefault("pipeline.max_upload_mb", 10)

	v.SetDefault("db.enabled", true)
	v.SetDefault("db.file", "./data/stress-detect.db")
	v.SetDefault("db.retention_days", 30)
	v.SetDefault("db.cleanup_interval", "1h")

	v.SetDefault("mqtt.enabled", false)
	v.SetDefault("mqtt.port", 1883)
	v.SetDefault("mqtt.client_id", "stress-detect")
	v.SetDefault("mqtt.topic_prefix", "stress-detect")
	v.SetDefault("mqtt.ingest", false)

	v.SetDefault("alerts.severe_threshold", 75.0)
	v.SetDefault("alerts.high_average", 80.0)

	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("i18n.default_language", "en")

	v.SetDefault("debug.enabled", true)
	v.SetDefault("debug.max_images", 30)
}

// DefaultLadder liefert die Standard-Leiter als Liste von Maps für viper
func DefaultLadder() []map[string]interface{} {
	var ladder []map[string]interface{}
	for _, neighbors := range []int{5, 3} {
		for _, scale := range []float64{1.05, 1.1, 1.2} {
			ladder = append(ladder, map[string]interface{}{
				"scale_factor":  scale,
				"min_neighbors": neighbors,
			})
		}
	}
	return ladder
}

// ensureDirectories stellt sicher, dass alle erforderlichen Verzeichnisse existieren
func ensureDirectories(cfg *Config) error {
	if cfg.Server.DataDir != "" {
		if err := os.MkdirAll(cfg.Server.DataDir, 0755); err != nil {
			return fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	if cfg.Log.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.Log.File), 0755); err != nil {
			return fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	if cfg.DB.Enabled && cfg.DB.File != "" && !strings.HasPrefix(cfg.DB.File, "file::memory:") {
		if err := os.MkdirAll(filepath.Dir(cfg.DB.File), 0755); err != nil {
			return fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	return nil
}
