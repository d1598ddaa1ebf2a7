package cmds

import (
	"github.com/go-go-golems/catchat/pkg/devserver"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newServeCommand(o *rootOptions) *cobra.Command {
	var (
		addr       string
		historyDB  string
		maxHistory int
		sourceBase string
	)

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run a local development chat service that echoes messages",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			var history devserver.History
			if historyDB != "" {
				dsn, err := devserver.SQLiteHistoryDSNForFile(historyDB)
				if err != nil {
					return err
				}
				h, err := devserver.NewSQLiteHistory(dsn)
				if err != nil {
					return err
				}
				history = h
			} else {
				history = devserver.NewMemoryHistory(maxHistory)
			}
			defer func() {
				if err := history.Close(); err != nil {
					log.Warn().Err(err).Msg("close history")
				}
			}()

			srv, err := devserver.NewServer(history,
				devserver.WithResponder(devserver.EchoResponder{SourceBaseURL: sourceBase}),
			)
			if err != nil {
				return err
			}
			log.Info().Str("addr", addr).Str("history_db", historyDB).Msg("starting development chat service")
			return srv.ListenAndServe(cmd.Context(), addr)
		},
	}

	cmd.Flags().StringVar(&addr, "addr", ":8080", "listen address")
	cmd.Flags().StringVar(&historyDB, "history-db", "", "sqlite file for the history, in memory when empty")
	cmd.Flags().IntVar(&maxHistory, "max-history", 1000, "messages kept per conversation by the in-memory history")
	cmd.Flags().StringVar(&sourceBase, "source-base-url", "https://docs.example.com", "base url of the citations in echo replies")
	return cmd
}
