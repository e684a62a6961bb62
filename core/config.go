package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		Debug        bool
		TestMode     bool
		Env          string // DEV (default), TEST, QA, PROD
		Build        string
		AppName      string
		SecretKey    string
		FrontendURL  string
		RollbarToken string

		DefaultFromEmail string
		AdminEmail       string
		SendgridAPIKey   string

		Server   ServerConfig
		Database DatabaseConfig
		Gateway  GatewayConfig
	}

	ServerConfig struct {
		Host                      string
		Port                      string
		DebugPort                 string
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	// GatewayConfig carries the payment gateway merchant settings.
	// ProcessURL receives the buyer redirect; ValidateURL is the gateway's
	// notification validation endpoint.
	GatewayConfig struct {
		MerchantID    string
		MerchantKey   string
		ProcessURL    string
		ValidateURL   string
		ReturnURL     string
		CancelURL     string
		NotifyURL     string
		VerifyTimeout time.Duration
	}
)

func (c ServerConfig) Address() string      { return net.JoinHostPort(c.Host, c.Port) }
func (c ServerConfig) DebugAddress() string { return net.JoinHostPort(c.Host, c.DebugPort) }
func (c DatabaseConfig) Address() string    { return net.JoinHostPort(c.Host, c.Port) }

// NewConfig loads the app configuration from the environment;
// a config/.env.<env> file is loaded first if it exists.
func NewConfig() *Config {
	conf := viper.New()

	// defaults
	conf.SetTypeByDefaultValue(true)
	conf.SetDefault("debug", true)
	conf.SetDefault("appName", "Shule")
	conf.SetDefault("secretKey", "x7dr&2m)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("frontendUrl", "http://localhost:3000")
	conf.SetDefault("defaultFromEmail", "noreply@localhost")
	conf.SetDefault("adminEmail", "admin@localhost")

	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", "8000")
	conf.SetDefault("serverDebugPort", "8001")
	conf.SetDefault("serverShutdownTimeout", 5*time.Second)
	conf.SetDefault("jwtExpirationDelta", 7*24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)

	conf.SetDefault("databaseEngine", "postgres")
	conf.SetDefault("databaseName", "shule")
	conf.SetDefault("databaseHost", "localhost")
	conf.SetDefault("databasePort", "5432")
	conf.SetDefault("databaseUser", "shule")
	conf.SetDefault("databasePassword", "")
	conf.SetDefault("databaseAdminUser", "")
	conf.SetDefault("databaseAdminPassword", "")
	conf.SetDefault("databaseDisableTls", true)

	conf.SetDefault("gatewayMerchantId", "")
	conf.SetDefault("gatewayMerchantKey", "")
	conf.SetDefault("gatewayProcessUrl", "https://sandbox.payfast.co.za/eng/process")
	conf.SetDefault("gatewayValidateUrl", "https://sandbox.payfast.co.za/eng/query/validate")
	conf.SetDefault("gatewayReturnUrl", "http://localhost:3000/payments/return")
	conf.SetDefault("gatewayCancelUrl", "http://localhost:3000/payments/cancel")
	conf.SetDefault("gatewayNotifyUrl", "http://localhost:8000/v1/payments/notify")
	conf.SetDefault("gatewayVerifyTimeout", 10*time.Second)

	env := os.Getenv("ENV")
	if env == "" {
		env = "DEV"
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Debug:        conf.GetBool("debug"),
		TestMode:     env == "TEST",
		Env:          env,
		Build:        conf.GetString("build"),
		AppName:      conf.GetString("appName"),
		SecretKey:    conf.GetString("secretKey"),
		FrontendURL:  conf.GetString("frontendUrl"),
		RollbarToken: conf.GetString("rollbarToken"),

		DefaultFromEmail: conf.GetString("defaultFromEmail"),
		AdminEmail:       conf.GetString("adminEmail"),
		SendgridAPIKey:   conf.GetString("sendgridApiKey"),

		Server: ServerConfig{
			Host:                      conf.GetString("serverHost"),
			Port:                      conf.GetString("serverPort"),
			DebugPort:                 conf.GetString("serverDebugPort"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("databaseEngine"),
			Name:          conf.GetString("databaseName"),
			Host:          conf.GetString("databaseHost"),
			Port:          conf.GetString("databasePort"),
			User:          conf.GetString("databaseUser"),
			Password:      conf.GetString("databasePassword"),
			AdminUser:     conf.GetString("databaseAdminUser"),
			AdminPassword: conf.GetString("databaseAdminPassword"),
			DisableTLS:    conf.GetBool("databaseDisableTls"),
		},
		Gateway: GatewayConfig{
			MerchantID:    conf.GetString("gatewayMerchantId"),
			MerchantKey:   conf.GetString("gatewayMerchantKey"),
			ProcessURL:    conf.GetString("gatewayProcessUrl"),
			ValidateURL:   conf.GetString("gatewayValidateUrl"),
			ReturnURL:     conf.GetString("gatewayReturnUrl"),
			CancelURL:     conf.GetString("gatewayCancelUrl"),
			NotifyURL:     conf.GetString("gatewayNotifyUrl"),
			VerifyTimeout: conf.GetDuration("gatewayVerifyTimeout"),
		},
	}
}
