package cmds

import (
	stderrors "errors"
	"strings"

	"github.com/go-go-golems/catchat/pkg/conversation"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
)

func newSendCommand(o *rootOptions) *cobra.Command {
	var format string

	cmd := &cobra.Command{
		Use:   "send <message...>",
		Short: "Send one message and print the updated conversation",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
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

			ctx := cmd.Context()
			ctrl := conversation.NewController(client, sess)
			if _, err := ctrl.Open(ctx); err != nil {
				return err
			}

			err = ctrl.Send(ctx, strings.Join(args, " "))
			if stderrors.Is(err, conversation.ErrEmptyMessage) {
				return errors.New("nothing to send: message is blank")
			}
			if err != nil {
				return errors.New(conversation.SendErrorMessage)
			}

			st := ctrl.Snapshot()
			return writeTranscripts(cmd.OutOrStdout(), format, []Transcript{{
				ConversationID: st.ConversationID,
				Messages:       st.Messages,
			}})
		},
	}
	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	return cmd
}
