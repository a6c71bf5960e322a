package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/ale/quickscore/internal/config"
	"github.com/ale/quickscore/internal/rest"
	"github.com/ale/quickscore/internal/room"
	"github.com/ale/quickscore/internal/stream"
)

func main() {
	// Load .env file if it exists
	if err := godotenv.Load(); err != nil {
		log.Debug().Err(err).Msg("could not load .env file")
	}

	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	var (
		configPath = flag.String("config", "", "path to YAML config file")
		joinCode   = flag.String("join", "", "join an existing room by code")
		create     = flag.Bool("create", false, "create a new room (host only)")
		resume     = flag.Bool("resume", false, "resume the room you are currently in")
		debug      = flag.Bool("debug", false, "enable debug logging")
	)
	flag.Parse()

	if *debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}

	self := identityFromEnv()
	if self.Token == "" {
		log.Fatal().Msg("QS_TOKEN environment variable is required")
	}

	gw := rest.NewClient(cfg.BaseURL, self.Token, cfg.RequestTimeout)

	chCfg := stream.DefaultConfig(cfg.BaseURL)
	chCfg.HandshakeTimeout = cfg.HandshakeTimeout
	chCfg.ReconnectDelay = cfg.ReconnectDelay
	ch := stream.NewChannel(chCfg)

	session := room.NewSession(gw, ch, self)
	defer session.Leave()

	switch {
	case *create:
		session.Create()
	case *joinCode != "":
		session.Join(*joinCode)
	case *resume:
		session.Resume()
	default:
		fmt.Fprintln(os.Stderr, "one of -create, -join CODE or -resume is required")
		flag.Usage()
		os.Exit(2)
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	for {
		select {
		case sig := <-sigCh:
			log.Info().Str("signal", sig.String()).Msg("leaving room")
			return
		case st := <-session.Snapshots():
			printState(st)
			if st.Status == room.StatusEnded {
				log.Info().Str("reason", string(st.EndReason)).Msg("session ended")
				return
			}
		}
	}
}

func identityFromEnv() room.Identity {
	userID, _ := strconv.Atoi(os.Getenv("QS_USER_ID"))
	return room.Identity{
		UserID: userID,
		Name:   getEnv("QS_NAME", "anonymous"),
		Role:   getEnv("QS_ROLE", "participant"),
		Token:  os.Getenv("QS_TOKEN"),
	}
}

func printState(st room.State) {
	ev := log.Info().
		Str("room", st.Code).
		Str("status", string(st.Status)).
		Str("connection", st.Phase.String()).
		Int("online", len(st.Online))
	if st.ActiveQuestion != nil {
		ev = ev.Str("question", st.ActiveQuestion.Text).Int("points", st.ActiveQuestion.Points)
	}
	if st.Err != "" {
		ev = ev.Str("error", st.Err)
	}
	ev.Msg("room state")

	for _, r := range st.Ranking {
		fmt.Printf("%3d. %-20s %d\n", r.Position, r.UserName, r.Points)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
