package main

import (
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/cloudcmds/vellum"
)

func newDisCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "dis FILE",
		Short: "Disassemble a compiled template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			env := vellum.New()
			tmpl, err := env.AddTemplate(filepath.Base(args[0]), string(source))
			if err != nil {
				return err
			}
			_, err = os.Stdout.WriteString(tmpl.Program().Disassemble())
			return err
		},
	}
}
