package properties

import (
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const Version = "0.3.0"

const dateLayout = "2006-01-02"

// LoadEnv loads the first .env file found among paths.
func LoadEnv(paths ...string) error {
	var err error
	for _, path := range paths {
		if err = godotenv.Load(path); err == nil {
			return nil
		}
	}
	return err
}

func RootPath() string {
	if root := os.Getenv("ROOT_PATH"); root != "" {
		return root
	}
	return "."
}

func DataPath(elem ...string) string {
	return filepath.Join(append([]string{RootPath(), "data"}, elem...)...)
}

func Provider() string {
	return getEnv("TERRASCAN_PROVIDER", "sentinel")
}

func DefaultThreshold() float64 {
	return getFloat("TERRASCAN_THRESHOLD", 0.2)
}

// DefaultDateRange returns the configured range, or the 90 days before now.
func DefaultDateRange(now time.Time) (time.Time, time.Time) {
	end := now
	if value, err := time.Parse(dateLayout, os.Getenv("TERRASCAN_END_DATE")); err == nil {
		end = value
	}
	start := end.AddDate(0, 0, -90)
	if value, err := time.Parse(dateLayout, os.Getenv("TERRASCAN_START_DATE")); err == nil {
		start = value
	}
	return start, end
}

func HTTPAddr() string {
	return getEnv("TERRASCAN_HTTP_ADDR", ":8080")
}

func LogLevel() string {
	return getEnv("TERRASCAN_LOG_LEVEL", "info")
}

func CacheEnabled() bool {
	enabled, err := strconv.ParseBool(getEnv("TERRASCAN_CACHE", "true"))
	return err != nil || enabled
}

func CacheMaxAge() time.Duration {
	age, err := time.ParseDuration(getEnv("TERRASCAN_CACHE_MAX_AGE", "24h"))
	if err != nil {
		return 24 * time.Hour
	}
	return age
}

func CopernicusClientIDs() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_ID"))
}

func CopernicusClientSecrets() []string {
	return splitList(os.Getenv("COPERNICUS_CLIENT_SECRET"))
}

func CopernicusTokenURL() string {
	return getEnv("COPERNICUS_TOKEN_URL", "https://identity.dataspace.copernicus.eu/auth/realms/CDSE/protocol/openid-connect/token")
}

func PlanetAPIKey() string {
	return os.Getenv("PLANET_API_KEY")
}

func EarthEngineProject() string {
	return os.Getenv("EARTHENGINE_PROJECT")
}

func EarthEngineServiceAccount() string {
	return os.Getenv("EARTHENGINE_SERVICE_ACCOUNT")
}

func EarthEnginePrivateKeyFile() string {
	return os.Getenv("EARTHENGINE_PRIVATE_KEY_FILE")
}

func DiscordErrorNotificationUrl() string {
	return os.Getenv("DISCORD_ERROR_NOTIFICATION_URL")
}

func DiscordSuccessNotificationUrl() string {
	return os.Getenv("DISCORD_SUCCESS_NOTIFICATION_URL")
}

func getEnv(key, fallback string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return fallback
}

func getFloat(key string, fallback float64) float64 {
	value, err := strconv.ParseFloat(os.Getenv(key), 64)
	if err != nil {
		return fallback
	}
	return value
}

func splitList(value string) []string {
	var items []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			items = append(items, item)
		}
	}
	return items
}
