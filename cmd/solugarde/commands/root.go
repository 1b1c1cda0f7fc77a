package commands

import (
	"os"
	"time"

	"github.com/jrsteele09/solugarde-client/internal/config"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

// NewRootCmd creates the solugarde command tree over cfg
func NewRootCmd(cfg config.Config) *cobra.Command {
	a := &app{cfg: cfg}

	rootCmd := &cobra.Command{
		Use:          "solugarde",
		Short:        "Command line client for the Solugarde administration API",
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			setupLogger(cfg.GetLogLevel())
			return a.open()
		},
		PersistentPostRun: func(*cobra.Command, []string) {
			a.close()
		},
	}

	rootCmd.AddCommand(
		newLoginCommand(a),
		newWhoamiCommand(a),
		newLogoutCommand(a),
		newRefreshCommand(a),
		newHealthCommand(a),
		newGarderiesCommand(a),
		newChatCommand(a),
	)
	return rootCmd
}

func setupLogger(level string) {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil || lvl == zerolog.NoLevel {
		lvl = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(lvl)
	log.Logger = zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.Kitchen}).With().Timestamp().Logger()
}
