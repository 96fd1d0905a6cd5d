package cmd

import (
	"context"
	"fmt"
	"github.com/FrostKing4567/Slavie/slavie"
	"github.com/joho/godotenv"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"reflect"
	"strings"
	"syscall"
)

var (
	cfg        = slavie.DefaultConfig()
	configFile string
)

var rootCmd = &cobra.Command{
	Use:   "slavie [flags]",
	Short: "A Discord bot for marriages, adoptions and family trees",
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		err := viper.Unmarshal(
			cfg,
			viper.DecodeHook(
				mapstructure.ComposeDecodeHookFunc(
					mapstructure.StringToTimeDurationHookFunc(),
					LevelToStringHookFunc(),
				),
			),
		)
		if err != nil {
			log.Fatalln(err)
		}
	},
}

func getLogLevel(level string) (slog.Level, error) {
	switch strings.ToUpper(level) {
	case slog.LevelDebug.String():
		return slog.LevelDebug, nil
	case slog.LevelInfo.String():
		return slog.LevelInfo, nil
	case slog.LevelWarn.String():
		return slog.LevelWarn, nil
	case slog.LevelError.String():
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level: %s", level)
	}
}

// LevelToStringHookFunc decodes a level name ("INFO", "WARN", ...) into
// a *slog.LevelVar
func LevelToStringHookFunc() mapstructure.DecodeHookFuncType {
	return func(
		f reflect.Type,
		t reflect.Type,
		data any,
	) (any, error) {
		if f.Kind() != reflect.String {
			return data, nil
		}
		if t.Kind() != reflect.Ptr {
			return data, nil
		}
		if t.Elem() != reflect.TypeOf(slog.LevelVar{}) {
			return data, nil
		}

		lvl, err := getLogLevel(data.(string))
		if err != nil {
			return nil, err
		}
		lvlVar := &slog.LevelVar{}
		lvlVar.Set(lvl)
		return lvlVar, nil
	}
}

// Execute runs the root command, canceling its context on SIGINT,
// SIGTERM or SIGHUP
func Execute() {
	ctx, cancel := context.WithCancel(context.Background())
	rootCmd.SetContext(ctx)
	signals := make(chan os.Signal, 1)
	signal.Notify(
		signals,
		os.Interrupt,
		syscall.SIGHUP,
		syscall.SIGTERM,
		syscall.SIGINT,
	)
	defer func() {
		signal.Stop(signals)
		cancel()
	}()
	go func() {
		select {
		case <-signals:
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// levelSettings are the config keys holding a log level name, converted
// to a *slog.LevelVar after the environment is loaded
var levelSettings = []string{
	"log_level",
	"database_log_level",
	"api.log_level",
	"discord.log_level",
	"discord.discordgo_log_level",
	"discord.webhook_server.log_level",
	"tenor.log_level",
}

// sliceSettings are space-separated lists when set from the environment
var sliceSettings = []string{
	"discord.owner_ids",
	"api.cors.allow_headers",
	"api.cors.allow_origins",
	"api.cors.allow_methods",
	"api.cors.expose_headers",
}

func setDefaults() {
	viper.SetDefault("database", slavie.DefaultDatabase)
	viper.SetDefault("database_type", slavie.DefaultDatabaseType)
	viper.SetDefault("database_slow_threshold", slavie.DefaultDatabaseSlowThreshold)
	viper.SetDefault("database_log_level", slavie.DefaultDatabaseLogLevel.String())

	viper.SetDefault("log_level", slavie.DefaultLogLevel.String())
	viper.SetDefault("startup_timeout", slavie.DefaultStartupTimeout)
	viper.SetDefault("shutdown_timeout", slavie.DefaultShutdownTimeout)
	viper.SetDefault("runtime_config_ttl", slavie.DefaultRuntimeConfigTTL)
	viper.SetDefault("command_toggle_ttl", slavie.DefaultCommandToggleTTL)

	// Discord config
	viper.SetDefault("discord.token", "")
	viper.SetDefault("discord.application_id", "")
	viper.SetDefault("discord.guild_id", "")
	viper.SetDefault("discord.owner_ids", []string{})
	viper.SetDefault("discord.warn_limit", slavie.DefaultWarnLimit)
	viper.SetDefault("discord.log_level", slavie.DefaultDiscordLogLevel.String())
	viper.SetDefault("discord.discordgo_log_level", slavie.DefaultDiscordgoLogLevel.String())
	viper.SetDefault("discord.gateway_intents", slavie.DefaultDiscordGatewayIntent)
	viper.SetDefault("discord.startup_message", slavie.DefaultDiscordStartupMessage)

	// Discord: Webhook server
	viper.SetDefault("discord.webhook_server.enabled", false)
	viper.SetDefault("discord.webhook_server.listen", slavie.DefaultDiscordWebhookServerListen)
	viper.SetDefault("discord.webhook_server.public_key", "")
	viper.SetDefault("discord.webhook_server.read_timeout", slavie.DefaultReadTimeout)
	viper.SetDefault("discord.webhook_server.read_header_timeout", slavie.DefaultReadHeaderTimeout)
	viper.SetDefault("discord.webhook_server.write_timeout", slavie.DefaultWriteTimeout)
	viper.SetDefault("discord.webhook_server.idle_timeout", slavie.DefaultIdleTimeout)
	viper.SetDefault(
		"discord.webhook_server.log_level",
		slavie.DefaultDiscordWebhookLogLevel.String(),
	)

	// Tenor config
	viper.SetDefault("tenor.api_key", "")
	viper.SetDefault("tenor.client_key", slavie.DefaultTenorClientKey)
	viper.SetDefault("tenor.base_url", slavie.DefaultTenorBaseURL)
	viper.SetDefault("tenor.limit", slavie.DefaultTenorLimit)
	viper.SetDefault("tenor.requests_per_second", slavie.DefaultTenorRequestsPerSecond)
	viper.SetDefault("tenor.timeout", slavie.DefaultTenorTimeout)
	viper.SetDefault("tenor.log_level", slavie.DefaultTenorLogLevel.String())

	// API config
	viper.SetDefault("api.listen", slavie.DefaultAPIListen)
	viper.SetDefault("api.secret", "")
	viper.SetDefault("api.development", false)
	viper.SetDefault("api.log_level", slavie.DefaultAPILogLevel.String())
	viper.SetDefault("api.session_max_age", slavie.DefaultAPISessionMaxAge)
	viper.SetDefault("api.read_timeout", slavie.DefaultReadTimeout)
	viper.SetDefault("api.read_header_timeout", slavie.DefaultReadHeaderTimeout)
	viper.SetDefault("api.write_timeout", slavie.DefaultWriteTimeout)
	viper.SetDefault("api.idle_timeout", slavie.DefaultIdleTimeout)

	// API: CORS config
	viper.SetDefault("api.cors.allow_headers", slavie.DefaultCORSAllowHeaders)
	viper.SetDefault("api.cors.allow_methods", slavie.DefaultCORSAllowMethods)
	viper.SetDefault("api.cors.expose_headers", slavie.DefaultCORSExposeHeaders)
	viper.SetDefault("api.cors.allow_origins", []string{})
	viper.SetDefault("api.cors.max_age", slavie.DefaultCORSMaxAge)
	viper.SetDefault("api.cors.allow_credentials", slavie.DefaultAPICORSAllowCredentials)
}

func initConfig() {
	if configFile == "" {
		if err := godotenv.Load(); err != nil {
			log.Println("No .env file found")
		}
	} else if err := godotenv.Load(configFile); err != nil {
		log.Printf("error loading env file %s: %v", configFile, err)
	}

	setDefaults()

	fatalErr := func(err error) {
		if err != nil {
			log.Fatalf("error: %v", err)
		}
	}
	for _, key := range []string{
		"discord.webhook_server.ssl.cert",
		"discord.webhook_server.ssl.key",
		"discord.webhook_server.ssl.tls_min_version",
		"api.ssl.cert",
		"api.ssl.key",
		"api.ssl.tls_min_version",
	} {
		fatalErr(viper.BindEnv(key))
	}

	envPrefix := os.Getenv(slavie.EnvvarSetEnvPrefix)
	if envPrefix == "" {
		envPrefix = slavie.DefaultEnvPrefix
	}
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	for _, key := range sliceSettings {
		viper.Set(key, viper.GetStringSlice(key))
	}

	for _, key := range levelSettings {
		if _, ok := viper.Get(key).(*slog.LevelVar); ok {
			continue
		}
		logLevelVar, err := levelStringToLevelVar(viper.GetString(key))
		if err != nil {
			log.Fatalf("error parsing %s: %v", key, err)
		}
		viper.Set(key, logLevelVar)
	}
}

func levelStringToLevelVar(lvl string) (*slog.LevelVar, error) {
	level := &slog.LevelVar{}
	err := level.UnmarshalText([]byte(lvl))
	return level, err
}

//nolint:gochecknoinits
func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Env file to load configuration from",
	)
}
