package cmds

import (
	stderrors "errors"
	"fmt"
	"io"
	"os"

	"github.com/go-go-golems/catchat/pkg/session"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/tcnksm/go-input"
)

const noStoredID = "No conversation id stored yet."

func newSessionCommand(o *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "session",
		Short: "Inspect or reset the stored conversation id",
	}
	cmd.AddCommand(newSessionShowCommand(o), newSessionResetCommand(o))
	return cmd
}

func newSessionShowCommand(o *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Print the stored conversation id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := o.settings
			store, err := session.OpenStore(s.SessionStore, s.SessionPath)
			if err != nil {
				return err
			}
			defer store.Close()

			id, err := store.Get(cmd.Context(), session.StorageKey)
			if stderrors.Is(err, session.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), noStoredID)
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "read conversation id")
			}
			fmt.Fprintln(cmd.OutOrStdout(), id)
			return nil
		},
	}
}

func newSessionResetCommand(o *rootOptions) *cobra.Command {
	var yes bool

	cmd := &cobra.Command{
		Use:   "reset",
		Short: "Forget the stored conversation id; the next chat starts a new conversation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			s := o.settings
			store, err := session.OpenStore(s.SessionStore, s.SessionPath)
			if err != nil {
				return err
			}
			defer store.Close()

			ctx := cmd.Context()
			id, err := store.Get(ctx, session.StorageKey)
			if stderrors.Is(err, session.ErrNotFound) {
				fmt.Fprintln(cmd.OutOrStdout(), noStoredID)
				return nil
			}
			if err != nil {
				return errors.Wrap(err, "read conversation id")
			}

			if !yes {
				if !isatty.IsTerminal(os.Stdin.Fd()) {
					return errors.New("refusing to reset without a terminal, pass --yes")
				}
				ok, err := confirmReset(cmd.OutOrStdout(), cmd.InOrStdin(), id)
				if err != nil {
					return err
				}
				if !ok {
					fmt.Fprintln(cmd.OutOrStdout(), "Kept", id)
					return nil
				}
			}

			if err := session.New(store).Clear(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Forgot", id)
			return nil
		},
	}
	cmd.Flags().BoolVarP(&yes, "yes", "y", false, "do not ask for confirmation")
	return cmd
}

func confirmReset(w io.Writer, r io.Reader, id string) (bool, error) {
	ui := &input.UI{
		Writer: w,
		Reader: r,
	}

	query := fmt.Sprintf("Forget conversation %s? [y/n]", id)
	answer, err := ui.Ask(query, &input.Options{
		Default:  "n",
		Required: true,
		Loop:     true,
		ValidateFunc: func(answer string) error {
			switch answer {
			case "y", "Y", "n", "N":
				return nil
			default:
				return errors.Errorf("please enter 'y' or 'n'")
			}
		},
	})
	if err != nil {
		return false, errors.Wrap(err, "read confirmation")
	}
	return answer == "y" || answer == "Y", nil
}
