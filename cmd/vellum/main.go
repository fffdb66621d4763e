// Command vellum renders template files from the command line and exposes
// the engine's lexer and disassembler for debugging templates.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	version = "dev"

	log zerolog.Logger
)

func main() {
	root := &cobra.Command{
		Use:           "vellum",
		Short:         "Render and inspect vellum templates",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup(cmd)
		},
	}

	flags := root.PersistentFlags()
	flags.String("config", "", "config file (default $HOME/.vellum.yaml)")
	flags.BoolP("verbose", "v", false, "enable debug logging")
	flags.Bool("no-color", false, "disable colored output")
	for _, name := range []string{"verbose", "no-color"} {
		if err := viper.BindPFlag(name, flags.Lookup(name)); err != nil {
			fatal(err)
		}
	}
	viper.SetEnvPrefix("VELLUM")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()

	root.AddCommand(newRenderCommand())
	root.AddCommand(newDisCommand())
	root.AddCommand(newLexCommand())

	if err := root.Execute(); err != nil {
		fatal(err)
	}
}

func setup(cmd *cobra.Command) error {
	if cfg, _ := cmd.Flags().GetString("config"); cfg != "" {
		viper.SetConfigFile(cfg)
		if err := viper.ReadInConfig(); err != nil {
			return err
		}
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			viper.AddConfigPath(home)
			viper.SetConfigName(".vellum")
			viper.SetConfigType("yaml")
			// A missing default config file is fine
			_ = viper.ReadInConfig()
		}
	}

	if viper.GetBool("no-color") || os.Getenv("NO_COLOR") != "" {
		color.NoColor = true
	}

	level := zerolog.WarnLevel
	if viper.GetBool("verbose") {
		level = zerolog.DebugLevel
	}
	out := zerolog.ConsoleWriter{
		Out:     os.Stderr,
		NoColor: color.NoColor || !isatty.IsTerminal(os.Stderr.Fd()),
	}
	log = zerolog.New(out).Level(level).With().Timestamp().Logger()
	return nil
}

func fatal(err error) {
	msg := err.Error()
	if !color.NoColor && isatty.IsTerminal(os.Stderr.Fd()) {
		msg = color.RedString(msg)
	}
	fmt.Fprintln(os.Stderr, msg)
	os.Exit(1)
}
