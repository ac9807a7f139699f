package config

import "time"

// Config holds every setting the auth service reads from the environment.
// It is built once at startup and handed to the components that need it;
// nothing reads os.Getenv after initialization.
type Config struct {
	AppName string
	AppURL  string
	Port    string

	DatabaseURL string
	RedisAddr   string
	RedisPass   string

	JWTSecret     string
	EncryptionKey string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	Cookie CookieConfig

	SMTP SMTPConfig

	Google OAuthProvider
	GitHub OAuthProvider

	// CleanupInterval is how often the janitor purges expired
	// verification tokens and stale unverified accounts.
	CleanupInterval time.Duration
}

// OAuthProvider holds one provider's client registration.
type OAuthProvider struct {
	ClientID     string
	ClientSecret string
	RedirectURL  string
}

// SMTPConfig holds the outbound mail settings.
type SMTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
}

// Load reads the full configuration from the environment.
func Load() *Config {
	return &Config{
		AppName: GetEnvAsStr("APP_NAME", "booking-notes-chat"),
		AppURL:  GetEnvAsStr("APP_URL", "http://localhost:8080"),
		Port:    GetEnvAsStr("PORT", "8080"),

		DatabaseURL: GetEnvAsStr("DB_URL", "auth.db"),
		RedisAddr:   GetEnvAsStr("REDIS_ADDR", "localhost:6379"),
		RedisPass:   GetEnvAsStr("REDIS_PASSWORD", ""),

		JWTSecret:     GetEnv("JWT_SECRET"),
		EncryptionKey: GetEnv("ENCRYPTION_KEY"),

		AccessTokenTTL:  time.Duration(GetEnvAsInt("ACCESS_TOKEN_EXPIRATION_SECONDS", 900, true)) * time.Second,
		RefreshTokenTTL: time.Duration(GetEnvAsInt("REFRESH_TOKEN_EXPIRATION_SECONDS", 604800, true)) * time.Second,

		Cookie: CookieConfig{
			Domain:   GetEnvAsStr("COOKIE_DOMAIN", ""),
			IsSecure: GetEnvAsStr("SECURE_COOKIE", "false") == "true",
			HttpOnly: true,
		},

		SMTP: SMTPConfig{
			Host:     GetEnvAsStr("SMTP_HOST", "smtp.gmail.com"),
			Port:     GetEnvAsInt("SMTP_PORT", 587, true),
			User:     GetEnv("SMTP_USER"),
			Password: GetEnv("SMTP_PASSWORD"),
		},

		Google: OAuthProvider{
			ClientID:     GetEnv("GOOGLE_CLIENT_ID"),
			ClientSecret: GetEnv("GOOGLE_CLIENT_SECRET"),
			RedirectURL:  GetEnvAsStr("GOOGLE_REDIRECT_URL", ""),
		},
		GitHub: OAuthProvider{
			ClientID:     GetEnv("GITHUB_CLIENT_ID"),
			ClientSecret: GetEnv("GITHUB_CLIENT_SECRET"),
			RedirectURL:  GetEnvAsStr("GITHUB_REDIRECT_URL", ""),
		},

		CleanupInterval: time.Duration(GetEnvAsInt("CLEANUP_INTERVAL_MINUTES", 30, true)) * time.Minute,
	}
}
