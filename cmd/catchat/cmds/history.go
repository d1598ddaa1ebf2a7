package cmds

import (
	stderrors "errors"
	"fmt"

	"github.com/go-go-golems/catchat/pkg/chatclient"
	"github.com/go-go-golems/catchat/pkg/config"
	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/go-go-golems/catchat/pkg/tokens"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
)

func newHistoryCommand(o *rootOptions) *cobra.Command {
	var (
		format    string
		stats     bool
		tokenizer string
	)

	cmd := &cobra.Command{
		Use:   "history [conversation-id...]",
		Short: "Print the history of the current or the given conversations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := validateFormat(format); err != nil {
				return err
			}
			var counter tokens.Counter
			if stats {
				backend, err := tokens.ParseBackend(tokenizer)
				if err != nil {
					return err
				}
				counter, err = tokens.NewCounter(backend)
				if err != nil {
					return err
				}
			}

			s := o.settings
			client, err := s.NewClient()
			if err != nil {
				return err
			}

			ids := args
			if len(ids) == 0 {
				id, err := storedConversationID(cmd, s)
				if err != nil {
					return err
				}
				if id == "" {
					fmt.Fprintln(cmd.OutOrStdout(), noStoredID)
					return nil
				}
				ids = []string{id}
			}

			ts, err := fetchTranscripts(cmd, client, ids)
			if err != nil {
				return err
			}
			if counter != nil {
				for i := range ts {
					st, err := computeStats(ts[i].Messages, counter)
					if err != nil {
						return err
					}
					ts[i].Stats = st
				}
			}
			return writeTranscripts(cmd.OutOrStdout(), format, ts)
		},
	}

	cmd.Flags().StringVarP(&format, "output", "o", formatText, "output format: text, json or yaml")
	cmd.Flags().BoolVar(&stats, "stats", false, "add message, source and token counts")
	cmd.Flags().StringVar(&tokenizer, "tokenizer", string(tokens.BackendTokenizer), "token counter for --stats: tokenizer or tiktoken")
	return cmd
}

// fetchTranscripts loads every conversation concurrently. Results keep the
// order of ids.
func fetchTranscripts(cmd *cobra.Command, client *chatclient.Client, ids []string) ([]Transcript, error) {
	ts := make([]Transcript, len(ids))
	eg, ctx := errgroup.WithContext(cmd.Context())
	for i, id := range ids {
		eg.Go(func() error {
			msgs, err := client.FetchHistory(ctx, id)
			if err != nil {
				log.Error().Err(err).Str("conversation_id", id).Msg("error fetching chat history")
				return errors.Wrapf(err, "history of %s", id)
			}
			ts[i] = Transcript{ConversationID: id, Messages: msgs}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return ts, nil
}

// storedConversationID returns the --conversation-id override or the id in
// the session store, "" when there is neither. It never creates one.
func storedConversationID(cmd *cobra.Command, s *config.Settings) (string, error) {
	if s.ConversationID != "" {
		return s.ConversationID, nil
	}
	store, err := session.OpenStore(s.SessionStore, s.SessionPath)
	if err != nil {
		return "", err
	}
	defer store.Close()

	id, err := store.Get(cmd.Context(), session.StorageKey)
	if stderrors.Is(err, session.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", errors.Wrap(err, "read conversation id")
	}
	return id, nil
}
