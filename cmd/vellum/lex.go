package main

import (
	"fmt"
	"os"
	"strconv"

	"github.com/fatih/color"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/cloudcmds/vellum/lexer"
	"github.com/cloudcmds/vellum/token"
)

func newLexCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "lex FILE",
		Short: "Print the token stream for a template",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			source, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			colorize := !color.NoColor && isatty.IsTerminal(os.Stdout.Fd())
			lex := lexer.New(string(source))
			for {
				tok, err := lex.Next()
				if err != nil {
					return err
				}
				printToken(tok, colorize)
				if tok.Is(token.EOF) {
					return nil
				}
			}
		},
	}
}

func printToken(tok token.Token, colorize bool) {
	typ := string(tok.Type)
	if colorize {
		typ = color.CyanString(typ)
	}
	pos := fmt.Sprintf("%d:%d", tok.StartPosition.LineNumber(), tok.StartPosition.ColumnNumber())
	if colorize {
		pos = color.New(color.Faint).Sprint(pos)
	}
	fmt.Printf("%-8s %-14s %s\n", pos, typ, strconv.Quote(tok.Literal))
}
