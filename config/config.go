package config

import (
	"os"
	"strconv"
	"time"
)

// Config carries every environment-driven setting of the orchestrator.
type Config struct {
	Port        string
	DatabaseURL string
	SQLitePath  string

	RcloneConfigPath string

	// Pre-provisioned drive account used by shared-mode remotes.
	SharedDriveRemote string
	DriveClientID     string
	DriveClientSecret string
	DriveToken        string

	BackupTimeout time.Duration
	MaxConcurrent int64
}

// LoadConfig reads the configuration from the environment, applying the
// defaults the container image ships with.
func LoadConfig() *Config {
	return &Config{
		Port:              getEnv("PORT", "5550"),
		DatabaseURL:       os.Getenv("DATABASE_URL"),
		SQLitePath:        getEnv("BACKUPER_DB_PATH", "/sqlite/db/apps.db"),
		RcloneConfigPath:  getEnv("RCLONE_CONFIG", "/config/rclone/rclone.conf"),
		SharedDriveRemote: getEnv("RCLONE_REMOTE", "gdrive"),
		DriveClientID:     os.Getenv("RCLONE_DRIVE_CLIENT_ID"),
		DriveClientSecret: os.Getenv("RCLONE_DRIVE_CLIENT_SECRET"),
		DriveToken:        os.Getenv("RCLONE_DRIVE_TOKEN"),
		BackupTimeout:     time.Duration(getEnvInt("BACKUP_TIMEOUT_SECONDS", 900)) * time.Second,
		MaxConcurrent:     int64(getEnvInt("BACKUP_MAX_CONCURRENT", 4)),
	}
}

// getEnv retrieves an environment variable or returns a default value if not set.
func getEnv(key, defaultValue string) string {
	if value, exists := os.LookupEnv(key); exists && value != "" {
		return value
	}
	return defaultValue
}

func getEnvInt(key string, defaultValue int) int {
	value, exists := os.LookupEnv(key)
	if !exists {
		return defaultValue
	}
	parsed, err := strconv.Atoi(value)
	if err != nil || parsed <= 0 {
		return defaultValue
	}
	return parsed
}
