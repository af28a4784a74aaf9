package core

import (
	"log"
	"net"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Env          string
	Build        string
	Debug        bool
	TestMode     bool
	AppName      string
	SecretKey    string
	RollbarToken string

	// email
	SendgridApiKey   string
	DefaultFromEmail mail.Address

	Server struct {
		Host                   string
		Address                string
		DebugHost              string
		ShutdownTimeout        time.Duration
		SessionExpirationDelta time.Duration
		AuthRateLimit          float64 // requests per second and client IP on /auth; 0 disables
		AuthRateBurst          int
		BehindProxy            bool
	}

	Database struct {
		Driver     string // inmem | postgres
		Engine     string
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		DisableTLS bool
	}

	Policy struct {
		File string
	}

	Tenant struct {
		OptimisticLocking   bool
		VerificationTimeout time.Duration
	}
}

func (c *Config) DatabaseAddress() string {
	return net.JoinHostPort(c.Database.Host, c.Database.Port)
}

// NewConfig loads the application configuration.
// Values come from defaults, then `config/.env.<env>` (if present), then the environment,
// where every key is prefixed with the upper-cased environment name (eg. DEV_SECRETKEY).
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Escolar")
	v.SetDefault("secretKey", "q8#k2-zt)dmv$w+1=lx&s0ogh4(r!c)#*m9(#bn3^$fjat6ze")
	v.SetDefault("defaultFromEmail", "Escolar <noreply@localhost>")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("sendgridApiKey", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.sessionExpirationDelta", 8*time.Hour)
	v.SetDefault("server.authRateLimit", 5.0)
	v.SetDefault("server.authRateBurst", 10)
	v.SetDefault("server.behindProxy", false)
	v.SetDefault("database.driver", "inmem")
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "escolar")
	v.SetDefault("database.user", "escolar")
	v.SetDefault("database.password", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("policy.file", "")
	v.SetDefault("tenant.optimisticLocking", false)
	v.SetDefault("tenant.verificationTimeout", 72*time.Hour)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	if env == "" {
		env = "DEV"
	}
	if env == "TEST" {
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join("config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	conf := &Config{
		Env:            env,
		Build:          v.GetString("build"),
		Debug:          v.GetBool("debug"),
		TestMode:       v.GetBool("testMode"),
		AppName:        v.GetString("appName"),
		SecretKey:      v.GetString("secretKey"),
		RollbarToken:   v.GetString("rollbarToken"),
		SendgridApiKey: v.GetString("sendgridApiKey"),
	}
	from, err := mail.ParseAddress(v.GetString("defaultFromEmail"))
	if err != nil {
		log.Fatalf("config.defaultFromEmail: %v", err)
	}
	conf.DefaultFromEmail = *from

	conf.Server.Host = v.GetString("server.host")
	conf.Server.Address = v.GetString("server.address")
	conf.Server.DebugHost = v.GetString("server.debugHost")
	conf.Server.ShutdownTimeout = v.GetDuration("server.shutdownTimeout")
	conf.Server.SessionExpirationDelta = v.GetDuration("server.sessionExpirationDelta")
	conf.Server.AuthRateLimit = v.GetFloat64("server.authRateLimit")
	conf.Server.AuthRateBurst = v.GetInt("server.authRateBurst")
	conf.Server.BehindProxy = v.GetBool("server.behindProxy")

	conf.Database.Driver = v.GetString("database.driver")
	conf.Database.Engine = v.GetString("database.engine")
	conf.Database.Host = v.GetString("database.host")
	conf.Database.Port = v.GetString("database.port")
	conf.Database.Name = v.GetString("database.name")
	conf.Database.User = v.GetString("database.user")
	conf.Database.Password = v.GetString("database.password")
	conf.Database.DisableTLS = v.GetBool("database.disableTLS")

	conf.Policy.File = v.GetString("policy.file")
	conf.Tenant.OptimisticLocking = v.GetBool("tenant.optimisticLocking")
	conf.Tenant.VerificationTimeout = v.GetDuration("tenant.verificationTimeout")
	return conf
}
