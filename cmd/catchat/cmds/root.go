package cmds

import (
	stderrors "errors"
	"io"
	"strings"

	"github.com/go-go-golems/catchat/pkg/config"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// annotationTUI marks commands that take over the terminal.
const annotationTUI = "catchat/tui"

type rootOptions struct {
	v          *viper.Viper
	configFile string
	settings   *config.Settings
	logCloser  io.Closer
}

func NewRootCommand() *cobra.Command {
	o := &rootOptions{v: viper.New()}

	cmd := &cobra.Command{
		Use:           config.AppName,
		Short:         "catchat talks to the feline assistant from your terminal",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return o.init(cmd)
		},
		PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
			return o.close()
		},
	}

	pf := cmd.PersistentFlags()
	pf.StringVar(&o.configFile, "config", "", "config file (default <user config dir>/catchat/config.yaml)")
	pf.String(config.KeyBaseURL, config.DefaultBaseURL, "base URL of the chat service")
	pf.String(config.KeySessionStore, "file", "where the conversation id is kept: file, sqlite or memory")
	pf.String(config.KeySessionPath, "", "path of the session store (default in the user config dir)")
	pf.String(config.KeyConversationID, "", "use this conversation id instead of the stored one")
	pf.Duration(config.KeyTimeout, 0, "timeout of a single request to the chat service, 0 for none")
	pf.String(config.KeyLogLevel, "warn", "log level: trace, debug, info, warn, error")
	pf.String(config.KeyLogFile, "", "write logs to this file instead of stderr")
	_ = o.v.BindPFlags(pf)

	cmd.AddCommand(
		newChatCommand(o),
		newSendCommand(o),
		newHistoryCommand(o),
		newSessionCommand(o),
		newServeCommand(o),
	)
	return cmd
}

func (o *rootOptions) init(cmd *cobra.Command) error {
	o.v.SetEnvPrefix(config.EnvPrefix)
	o.v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	o.v.AutomaticEnv()

	if o.configFile != "" {
		o.v.SetConfigFile(o.configFile)
	} else {
		o.v.SetConfigName("config")
		o.v.SetConfigType("yaml")
		if dir, err := config.Dir(); err == nil {
			o.v.AddConfigPath(dir)
		}
	}
	if err := o.v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if o.configFile != "" || !stderrors.As(err, &notFound) {
			return errors.Wrap(err, "read config")
		}
	}

	s, err := config.FromViper(o.v)
	if err != nil {
		return err
	}
	o.settings = s

	_, tui := cmd.Annotations[annotationTUI]
	closer, err := setupLogging(s.LogLevel, s.LogFile, tui)
	if err != nil {
		return err
	}
	o.logCloser = closer
	return nil
}

func (o *rootOptions) close() error {
	if o.logCloser == nil {
		return nil
	}
	err := o.logCloser.Close()
	o.logCloser = nil
	return err
}
