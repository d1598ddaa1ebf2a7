package cmds

import (
	"context"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/go-go-golems/catchat/pkg/config"
	"github.com/go-go-golems/catchat/pkg/ui"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newChatCommand(o *rootOptions) *cobra.Command {
	var style string

	cmd := &cobra.Command{
		Use:         "chat",
		Short:       "Open the interactive chat",
		Args:        cobra.NoArgs,
		Annotations: map[string]string{annotationTUI: "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			s := o.settings
			client, err := s.NewClient()
			if err != nil {
				return err
			}
			sess, store, err := s.OpenSession()
			if err != nil {
				return err
			}
			defer func() {
				if err := store.Close(); err != nil {
					log.Warn().Err(err).Msg("close session store")
				}
			}()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			var renderer ui.ContentRenderer = ui.PlainRenderer{}
			if !s.NoMarkdown && isatty.IsTerminal(os.Stdout.Fd()) {
				renderer = ui.NewMarkdownRenderer(style)
			}

			m := ui.NewModel(ctx, client, sess,
				ui.WithRenderer(renderer),
				ui.WithPollInterval(s.PollInterval),
			)
			log.Info().Str("base_url", client.BaseURL()).Msg("starting chat ui")

			p := tea.NewProgram(m, tea.WithAltScreen(), tea.WithContext(ctx))
			_, err = p.Run()
			// Abort requests still in flight.
			cancel()
			if err != nil && !errors.Is(err, tea.ErrProgramKilled) {
				return errors.Wrap(err, "run chat ui")
			}
			return nil
		},
	}

	cmd.Flags().Duration(config.KeyPollInterval, 0, "re-fetch history at this interval while idle, 0 to disable")
	cmd.Flags().Bool(config.KeyNoMarkdown, false, "show message content as plain text")
	cmd.Flags().StringVar(&style, "style", "dark", "glamour style for markdown: dark, light, notty, ...")
	_ = o.v.BindPFlag(config.KeyPollInterval, cmd.Flags().Lookup(config.KeyPollInterval))
	_ = o.v.BindPFlag(config.KeyNoMarkdown, cmd.Flags().Lookup(config.KeyNoMarkdown))

	return cmd
}
