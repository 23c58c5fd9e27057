package main

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	sourceTMDB  = "tmdb"
	sourceNeo4j = "neo4j"
)

type Config struct {
	bind           string
	port           int
	prefix         string
	profile        bool
	metrics        bool
	tlsCert        string
	tlsKey         string
	verbose        bool
	version        bool
	allowedOrigins []string

	source        string
	tmdbAPIKey    string
	tmdbURL       string
	imageBaseURL  string
	tmdbRate      float64
	tmdbBurst     int
	neo4jURI      string
	neo4jUser     string
	neo4jPassword string
	neo4jDatabase string

	fanoutCredits   int
	fanoutCast      int
	hintGoalCredits int
	maxDepth        int
	parallelism     int
	callTimeout     time.Duration
	requestTimeout  time.Duration

	actorsFile    string
	leaderboardDB string

	playerTimeout time.Duration
	roomTimeout   time.Duration
}

func (c *Config) validate() error {
	if (c.tlsCert == "") != (c.tlsKey == "") {
		return errors.New("both --tls-cert and --tls-key must be provided together")
	}
	if c.port < 1 || c.port > 65535 {
		return fmt.Errorf("invalid port (must be between 1-65535 inclusive): %d", c.port)
	}

	switch c.source {
	case sourceTMDB:
		if c.tmdbAPIKey == "" {
			return errors.New("--tmdb-api-key is required when --source=tmdb")
		}
		if c.tmdbRate <= 0 || c.tmdbBurst < 1 {
			return fmt.Errorf("invalid tmdb rate limit: %v req/s, burst %d", c.tmdbRate, c.tmdbBurst)
		}
	case sourceNeo4j:
		if c.neo4jURI == "" {
			return errors.New("--neo4j-uri is required when --source=neo4j")
		}
	default:
		return fmt.Errorf("unknown credit source %q (must be %q or %q)", c.source, sourceTMDB, sourceNeo4j)
	}

	if c.fanoutCredits < 1 || c.fanoutCast < 1 || c.hintGoalCredits < 1 {
		return errors.New("fanout values must be at least 1")
	}
	if c.maxDepth < 1 {
		return fmt.Errorf("invalid max depth (must be at least 1): %d", c.maxDepth)
	}
	if c.parallelism < 1 {
		return fmt.Errorf("invalid parallelism (must be at least 1): %d", c.parallelism)
	}
	if c.callTimeout <= 0 || c.requestTimeout <= 0 {
		return errors.New("--call-timeout and --request-timeout must be positive")
	}

	return nil
}

func (c *Config) scheme() string {
	if c.tlsCert != "" && c.tlsKey != "" {
		return "https"
	}
	return "http"
}

// imageURL turns an opaque image path fragment from the credit source into
// something a browser can load.
func (c *Config) imageURL(fragment string) string {
	if fragment == "" {
		return ""
	}
	if strings.HasPrefix(fragment, "http://") || strings.HasPrefix(fragment, "https://") {
		return fragment
	}
	return strings.TrimSuffix(c.imageBaseURL, "/") + "/" + strings.TrimPrefix(fragment, "/")
}

func newCmd(cfg *Config) *cobra.Command {
	v := viper.New()
	v.SetEnvPrefix("SCREENLINK")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	cmd := &cobra.Command{
		Use:           "screenlink",
		Short:         "Connect two actors through the films and shows they share.",
		Args:          cobra.ExactArgs(0),
		SilenceErrors: true,
		Version:       releaseVersion,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := cfg.validate(); err != nil {
				return err
			}
			return ServePage(cmd.Context(), cfg, args)
		},
	}

	fs := cmd.Flags()

	fs.SetNormalizeFunc(func(_ *pflag.FlagSet, name string) pflag.NormalizedName {
		return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
	})

	fs.StringVarP(&cfg.bind, "bind", "b", "0.0.0.0", "address to bind to (env: SCREENLINK_BIND)")
	fs.IntVarP(&cfg.port, "port", "p", 8080, "port to listen on (env: SCREENLINK_PORT)")
	fs.StringVar(&cfg.prefix, "prefix", "", "path to prepend to all URLs, for use behind reverse proxy (env: SCREENLINK_PREFIX)")
	fs.BoolVar(&cfg.profile, "profile", false, "register net/http/pprof handlers (env: SCREENLINK_PROFILE)")
	fs.BoolVar(&cfg.metrics, "metrics", false, "expose prometheus metrics at /metrics (env: SCREENLINK_METRICS)")
	fs.StringVar(&cfg.tlsCert, "tls-cert", "", "path to tls certificate (env: SCREENLINK_TLS_CERT)")
	fs.StringVar(&cfg.tlsKey, "tls-key", "", "path to tls keyfile (env: SCREENLINK_TLS_KEY)")
	fs.BoolVarP(&cfg.verbose, "verbose", "v", false, "display additional output (env: SCREENLINK_VERBOSE)")
	fs.BoolVarP(&cfg.version, "version", "V", false, "display version and exit (env: SCREENLINK_VERSION)")
	fs.StringSliceVar(&cfg.allowedOrigins, "allowed-origins", []string{"*"}, "origins allowed to call the api cross-site (env: SCREENLINK_ALLOWED_ORIGINS)")

	fs.StringVar(&cfg.source, "source", sourceTMDB, "credit source to query, tmdb or neo4j (env: SCREENLINK_SOURCE)")
	fs.StringVar(&cfg.tmdbAPIKey, "tmdb-api-key", "", "themoviedb.org api key (env: SCREENLINK_TMDB_API_KEY)")
	fs.StringVar(&cfg.tmdbURL, "tmdb-url", "https://api.themoviedb.org/3", "themoviedb.org api base url (env: SCREENLINK_TMDB_URL)")
	fs.StringVar(&cfg.imageBaseURL, "image-base-url", "https://image.tmdb.org/t/p/w185", "url prepended to portrait and poster paths (env: SCREENLINK_IMAGE_BASE_URL)")
	fs.Float64Var(&cfg.tmdbRate, "tmdb-rate", 40, "maximum tmdb requests per second (env: SCREENLINK_TMDB_RATE)")
	fs.IntVar(&cfg.tmdbBurst, "tmdb-burst", 20, "maximum burst of tmdb requests (env: SCREENLINK_TMDB_BURST)")
	fs.StringVar(&cfg.neo4jURI, "neo4j-uri", "", "bolt uri of a neo4j credit graph (env: SCREENLINK_NEO4J_URI)")
	fs.StringVar(&cfg.neo4jUser, "neo4j-user", "", "neo4j username (env: SCREENLINK_NEO4J_USER)")
	fs.StringVar(&cfg.neo4jPassword, "neo4j-password", "", "neo4j password (env: SCREENLINK_NEO4J_PASSWORD)")
	fs.StringVar(&cfg.neo4jDatabase, "neo4j-database", "", "neo4j database name (env: SCREENLINK_NEO4J_DATABASE)")

	fs.IntVar(&cfg.fanoutCredits, "fanout-credits", 10, "productions examined per actor (env: SCREENLINK_FANOUT_CREDITS)")
	fs.IntVar(&cfg.fanoutCast, "fanout-cast", 10, "cast members examined per production (env: SCREENLINK_FANOUT_CAST)")
	fs.IntVar(&cfg.hintGoalCredits, "hint-goal-credits", 15, "goal productions scanned when building hints (env: SCREENLINK_HINT_GOAL_CREDITS)")
	fs.IntVar(&cfg.maxDepth, "max-depth", 6, "maximum actor hops searched for a shortest path (env: SCREENLINK_MAX_DEPTH)")
	fs.IntVar(&cfg.parallelism, "parallelism", 8, "concurrent credit lookups per request (env: SCREENLINK_PARALLELISM)")
	fs.DurationVar(&cfg.callTimeout, "call-timeout", 5*time.Second, "timeout for a single credit lookup (env: SCREENLINK_CALL_TIMEOUT)")
	fs.DurationVar(&cfg.requestTimeout, "request-timeout", 20*time.Second, "timeout for a whole path, hint or validate query (env: SCREENLINK_REQUEST_TIMEOUT)")

	fs.StringVar(&cfg.actorsFile, "actors-file", "", "yaml file overriding the built-in actor pool (env: SCREENLINK_ACTORS_FILE)")
	fs.StringVar(&cfg.leaderboardDB, "leaderboard-db", "", "sqlite file for the daily leaderboard, in-memory if empty (env: SCREENLINK_LEADERBOARD_DB)")

	fs.DurationVar(&cfg.playerTimeout, "player-timeout", 10*time.Minute, "time before disconnected versus players are removed (env: SCREENLINK_PLAYER_TIMEOUT)")
	fs.DurationVar(&cfg.roomTimeout, "room-timeout", 60*time.Minute, "time before idle versus rooms are closed (env: SCREENLINK_ROOM_TIMEOUT)")

	fs.VisitAll(func(f *pflag.Flag) {
		_ = v.BindPFlag(f.Name, f)
		_ = v.BindEnv(f.Name)
		if !f.Changed && v.IsSet(f.Name) {
			_ = fs.Set(f.Name, fmt.Sprintf("%v", v.Get(f.Name)))
		}
	})

	cmd.CompletionOptions.HiddenDefaultCmd = true
	cmd.SetHelpCommand(&cobra.Command{Hidden: true})
	cmd.SetVersionTemplate("screenlink v{{.Version}}\n")

	cmd.SilenceErrors = true
	cmd.SilenceUsage = true

	return cmd
}
