package config

import (
	_ "embed"
	"fmt"
	"os"
	"strconv"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/daro-kh/leavegate/internal/geofence"
)

//go:embed allowed_area.yaml
var allowedAreaYAML []byte

// locationFailureMessage is shown whenever return confirmation fails on the
// location stage. The wording is fixed by the attendance office.
const locationFailureMessage = "ការបញ្ជាក់ចូលមកវិញ បរាជ័យ។ \n\nប្រហែលទូរស័ព្ទអ្នកមានបញ្ហា ការកំណត់បើ Live Location ដូច្នោះអ្នកមានជម្រើសមួយទៀតគឺអ្នកអាចទៅបញ្ជាក់ដោយផ្ទាល់នៅការិយាល័យអគារ B ជាមួយក្រុមការងារលោកគ្រូ ដារ៉ូ។"

type Config struct {
	Face     FaceConfig
	Scan     ScanConfig
	Location LocationConfig
	Database DatabaseConfig
	Telegram TelegramConfig
}

type FaceConfig struct {
	ServiceURL   string  // face analysis service base URL (e.g. http://localhost:8000)
	Threshold    float64 // max Euclidean distance accepted as a match (default 0.55)
	MaxImageSize int     // reference photos larger than this are downscaled before analysis
}

type ScanConfig struct {
	PollInterval time.Duration // cadence of live-frame matching (default 500ms)
}

type LocationConfig struct {
	Timeout        time.Duration // one-shot geolocation fix deadline (default 10s)
	AllowedArea    geofence.Polygon
	FailureMessage string
}

type DatabaseConfig struct {
	URL          string // PostgreSQL connection URL
	MaxOpenConns int    // Maximum open connections (default 25)
	MaxIdleConns int    // Maximum idle connections (default 5)
}

type TelegramConfig struct {
	BotToken string
	ChatID   string
}

// envInt reads an environment variable and parses it as a positive integer.
// Returns the default value if the env var is unset, empty, or invalid.
func envInt(key string, defaultVal int) int {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if n, err := strconv.Atoi(s); err == nil && n > 0 {
		return n
	}
	return defaultVal
}

// envFloat reads an environment variable and parses it as a positive float.
// Returns the default value if the env var is unset, empty, or invalid.
func envFloat(key string, defaultVal float64) float64 {
	s := os.Getenv(key)
	if s == "" {
		return defaultVal
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f > 0 {
		return f
	}
	return defaultVal
}

// areaFile is the YAML shape of an allowed-area definition.
type areaFile struct {
	Area []geofence.Point `yaml:"area"`
}

// loadAllowedArea returns the polygon from ALLOWED_AREA_FILE if set,
// otherwise the embedded default campus boundary.
func loadAllowedArea() (geofence.Polygon, error) {
	data := allowedAreaYAML
	if path := os.Getenv("ALLOWED_AREA_FILE"); path != "" {
		fileData, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading allowed area file: %w", err)
		}
		data = fileData
	}

	var f areaFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("parsing allowed area: %w", err)
	}

	poly := geofence.Polygon(f.Area)
	if !poly.Valid() {
		return nil, fmt.Errorf("allowed area needs at least 3 vertices, got %d", len(poly))
	}
	return poly, nil
}

func Load() (*Config, error) {
	area, err := loadAllowedArea()
	if err != nil {
		return nil, err
	}

	failureMsg := os.Getenv("LOCATION_FAILURE_MESSAGE")
	if failureMsg == "" {
		failureMsg = locationFailureMessage
	}

	return &Config{
		Face: FaceConfig{
			ServiceURL:   os.Getenv("FACE_SERVICE_URL"),
			Threshold:    envFloat("FACE_MATCH_THRESHOLD", 0.55),
			MaxImageSize: envInt("FACE_MAX_IMAGE_SIZE", 1280),
		},
		Scan: ScanConfig{
			PollInterval: time.Duration(envInt("SCAN_POLL_INTERVAL_MS", 500)) * time.Millisecond,
		},
		Location: LocationConfig{
			Timeout:        time.Duration(envInt("LOCATION_TIMEOUT_MS", 10000)) * time.Millisecond,
			AllowedArea:    area,
			FailureMessage: failureMsg,
		},
		Database: DatabaseConfig{
			URL:          os.Getenv("DATABASE_URL"),
			MaxOpenConns: envInt("DATABASE_MAX_OPEN_CONNS", 25),
			MaxIdleConns: envInt("DATABASE_MAX_IDLE_CONNS", 5),
		},
		Telegram: TelegramConfig{
			BotToken: os.Getenv("TELEGRAM_BOT_TOKEN"),
			ChatID:   os.Getenv("TELEGRAM_CHAT_ID"),
		},
	}, nil
}
