package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port               string
	RateLimitPerSecond int
	RateLimitBurst     int
	ReadTimeout        time.Duration
	WriteTimeout       time.Duration
}

type DatabaseConfig struct {
	Host     string
	Port     string
	Name     string
	Username string
	Password string
	SSLMode  string
}

func (d DatabaseConfig) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.Username, d.Password, d.Host, d.Port, d.Name, d.SSLMode)
}

type AuthConfig struct {
	JWTSecret string
}

type LLMConfig struct {
	GeminiAPIKey     string
	Model            string
	MacroTimeout     time.Duration
	CuratorTimeout   time.Duration
	FastDraftTimeout time.Duration
}

type MapsConfig struct {
	APIKey            string
	RequestsPerSecond int
}

// PlannerConfig groups the pipeline tunables. Defaults mirror the values the
// rest of the codebase documents.
type PlannerConfig struct {
	CandidatesPerBlock        int
	HotelAnchorBlocks         int
	MaxHopDistanceKm          float64
	MaxTravelMinutesPerHop    int
	DistanceWeight            float64
	CellSizeKm                float64
	MinPOIsPerDistrict        int
	MaxDistricts              int
	MaxOptimizationBlocks     int
	DistrictPOIMinCandidates  int
	GuestMaxTrips             int
	SmartRoutingEnabled       bool
	LLMSelectionEnabled       bool
	FastDraftFetchConcurrency int
	FastDraftPerCategoryLimit int
	FastDraftFetchDeadline    time.Duration
}

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	Auth     AuthConfig
	LLM      LLMConfig
	Maps     MapsConfig
	Planner  PlannerConfig
}

// Load reads configuration from the environment, honoring a local .env file
// when present.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Server: ServerConfig{
			Port:               getEnvOrDefault("SERVER_PORT", "8080"),
			RateLimitPerSecond: getEnvInt("RATE_LIMIT_PER_SECOND", 50),
			RateLimitBurst:     getEnvInt("RATE_LIMIT_BURST", 100),
			ReadTimeout:        30 * time.Second,
			WriteTimeout:       120 * time.Second,
		},
		Database: DatabaseConfig{
			Host:     getEnvOrDefault("POSTGRES_HOST", "localhost"),
			Port:     getEnvOrDefault("POSTGRES_PORT", "5432"),
			Name:     getEnvOrDefault("POSTGRES_DB", "voyplan"),
			Username: getEnvOrDefault("POSTGRES_USER", "postgres"),
			Password: os.Getenv("POSTGRES_PASSWORD"),
			SSLMode:  getEnvOrDefault("POSTGRES_SSLMODE", "disable"),
		},
		Auth: AuthConfig{
			JWTSecret: os.Getenv("JWT_SECRET"),
		},
		LLM: LLMConfig{
			GeminiAPIKey:     os.Getenv("GEMINI_API_KEY"),
			Model:            getEnvOrDefault("GEMINI_MODEL", "gemini-2.0-flash"),
			MacroTimeout:     45 * time.Second,
			CuratorTimeout:   25 * time.Second,
			FastDraftTimeout: 20 * time.Second,
		},
		Maps: MapsConfig{
			APIKey:            os.Getenv("GOOGLE_MAPS_API_KEY"),
			RequestsPerSecond: getEnvInt("MAPS_REQUESTS_PER_SECOND", 10),
		},
		Planner: PlannerConfig{
			CandidatesPerBlock:        getEnvInt("CANDIDATES_PER_BLOCK", 5),
			HotelAnchorBlocks:         getEnvInt("HOTEL_ANCHOR_BLOCKS", 2),
			MaxHopDistanceKm:          getEnvFloat("MAX_HOP_DISTANCE_KM", 3.5),
			MaxTravelMinutesPerHop:    getEnvInt("MAX_TRAVEL_MINUTES_PER_HOP", 30),
			DistanceWeight:            getEnvFloat("DISTANCE_WEIGHT", 1.5),
			CellSizeKm:                getEnvFloat("CLUSTER_CELL_SIZE_KM", 1.5),
			MinPOIsPerDistrict:        getEnvInt("MIN_POIS_PER_DISTRICT", 5),
			MaxDistricts:              getEnvInt("MAX_DISTRICTS", 8),
			MaxOptimizationBlocks:     getEnvInt("MAX_OPTIMIZATION_BLOCKS_PER_CLUSTER", 5),
			DistrictPOIMinCandidates:  getEnvInt("DISTRICT_POI_MIN_CANDIDATES", 3),
			GuestMaxTrips:             getEnvInt("GUEST_MAX_TRIPS", 1),
			SmartRoutingEnabled:       getEnvBool("SMART_ROUTING_ENABLED", true),
			LLMSelectionEnabled:       getEnvBool("LLM_SELECTION_ENABLED", true),
			FastDraftFetchConcurrency: getEnvInt("FAST_DRAFT_FETCH_CONCURRENCY", 8),
			FastDraftPerCategoryLimit: getEnvInt("FAST_DRAFT_PER_CATEGORY_LIMIT", 6),
			FastDraftFetchDeadline:    55 * time.Second,
		},
	}

	if cfg.Database.Password == "" {
		return nil, fmt.Errorf("POSTGRES_PASSWORD environment variable is required")
	}

	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return defaultValue
}

func getEnvFloat(key string, defaultValue float64) float64 {
	if value := os.Getenv(key); value != "" {
		if f, err := strconv.ParseFloat(value, 64); err == nil {
			return f
		}
	}
	return defaultValue
}

func getEnvBool(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}
