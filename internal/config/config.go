package config

import (
	"fmt"
	"net/url"
	"slices"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"
	"github.com/spf13/viper"
)

type Config struct {
	Port        string
	CORSOrigins []string
	Database    DatabaseConfig
	Mpesa       MpesaConfig
	Push        PushConfig
}

type DatabaseConfig struct {
	URL      string
	Host     string
	Port     string
	Database string
	Username string
	Password string
	Schema   string
}

// DSN prefers an explicit URL over the discrete BLUEPRINT_DB_* settings.
func (c DatabaseConfig) DSN() string {
	if c.URL != "" {
		return c.URL
	}
	u := url.URL{
		Scheme: "postgres",
		User:   url.UserPassword(c.Username, c.Password),
		Host:   c.Host + ":" + c.Port,
		Path:   "/" + c.Database,
	}
	q := url.Values{}
	q.Set("sslmode", "disable")
	if c.Schema != "" {
		q.Set("search_path", c.Schema)
	}
	u.RawQuery = q.Encode()
	return u.String()
}

type MpesaConfig struct {
	BaseURL        string
	ConsumerKey    string
	ConsumerSecret string
	ShortCode      string
	Passkey        string
	CallbackURL    string
	Timeout        time.Duration
}

// Validate names every missing gateway setting.
func (c MpesaConfig) Validate() error {
	missing := []string{}
	for name, v := range map[string]string{
		"MPESA_BASE_URL":        c.BaseURL,
		"MPESA_CONSUMER_KEY":    c.ConsumerKey,
		"MPESA_CONSUMER_SECRET": c.ConsumerSecret,
		"MPESA_SHORTCODE":       c.ShortCode,
		"MPESA_PASSKEY":         c.Passkey,
		"MPESA_CALLBACK_URL":    c.CallbackURL,
	} {
		if v == "" {
			missing = append(missing, name)
		}
	}
	if len(missing) > 0 {
		slices.Sort(missing)
		return fmt.Errorf("missing %s", strings.Join(missing, ", "))
	}
	return nil
}

type PushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subject         string
	Icon            string
	Badge           string
	TTL             time.Duration
}

func (c PushConfig) Validate() error {
	if c.VAPIDPublicKey == "" || c.VAPIDPrivateKey == "" {
		return fmt.Errorf("missing VAPID_PUBLIC_KEY or VAPID_PRIVATE_KEY")
	}
	return nil
}

func Load() *Config {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("PORT", "8080")
	v.SetDefault("CORS_ALLOWED_ORIGINS", "http://localhost:3000")
	v.SetDefault("BLUEPRINT_DB_HOST", "localhost")
	v.SetDefault("BLUEPRINT_DB_PORT", "5432")
	v.SetDefault("BLUEPRINT_DB_SCHEMA", "public")
	v.SetDefault("MPESA_BASE_URL", "https://sandbox.safaricom.co.ke")
	v.SetDefault("MPESA_TIMEOUT", "15s")
	v.SetDefault("VAPID_SUBJECT", "mailto:support@example.com")
	v.SetDefault("PUSH_ICON", "/icons/icon-192x192.png")
	v.SetDefault("PUSH_BADGE", "/icons/badge-72x72.png")
	v.SetDefault("PUSH_TTL", "24h")

	return &Config{
		Port:        v.GetString("PORT"),
		CORSOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
		Database: DatabaseConfig{
			URL:      v.GetString("DATABASE_URL"),
			Host:     v.GetString("BLUEPRINT_DB_HOST"),
			Port:     v.GetString("BLUEPRINT_DB_PORT"),
			Database: v.GetString("BLUEPRINT_DB_DATABASE"),
			Username: v.GetString("BLUEPRINT_DB_USERNAME"),
			Password: v.GetString("BLUEPRINT_DB_PASSWORD"),
			Schema:   v.GetString("BLUEPRINT_DB_SCHEMA"),
		},
		Mpesa: MpesaConfig{
			BaseURL:        strings.TrimRight(v.GetString("MPESA_BASE_URL"), "/"),
			ConsumerKey:    v.GetString("MPESA_CONSUMER_KEY"),
			ConsumerSecret: v.GetString("MPESA_CONSUMER_SECRET"),
			ShortCode:      v.GetString("MPESA_SHORTCODE"),
			Passkey:        v.GetString("MPESA_PASSKEY"),
			CallbackURL:    v.GetString("MPESA_CALLBACK_URL"),
			Timeout:        v.GetDuration("MPESA_TIMEOUT"),
		},
		Push: PushConfig{
			VAPIDPublicKey:  v.GetString("VAPID_PUBLIC_KEY"),
			VAPIDPrivateKey: v.GetString("VAPID_PRIVATE_KEY"),
			Subject:         v.GetString("VAPID_SUBJECT"),
			Icon:            v.GetString("PUSH_ICON"),
			Badge:           v.GetString("PUSH_BADGE"),
			TTL:             v.GetDuration("PUSH_TTL"),
		},
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
