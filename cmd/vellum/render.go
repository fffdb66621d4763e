package main

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/hokaccha/go-prettyjson"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cloudcmds/vellum"
	"github.com/cloudcmds/vellum/vm"
)

func newRenderCommand() *cobra.Command {
	var (
		dataFile     string
		sets         []string
		strict       bool
		noAutoescape bool
		outFile      string
		showContext  bool
		fuel         uint64
	)

	cmd := &cobra.Command{
		Use:   "render FILE",
		Short: "Render a template file",
		Long: `Render a template file to stdout or a file.

Context variables come from --data (a JSON, YAML, or TOML file, chosen by
extension) and from repeated --set key=value flags, which override the data
file. Templates included, imported, or extended by FILE resolve relative to
FILE's directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := map[string]any{}
			if dataFile != "" {
				loaded, err := loadContextFile(dataFile)
				if err != nil {
					return err
				}
				ctx = loaded
			}
			for _, kv := range sets {
				key, val, ok := strings.Cut(kv, "=")
				if !ok {
					return fmt.Errorf("--set wants key=value, got %q", kv)
				}
				ctx[key] = parseScalar(val)
			}
			if showContext {
				pretty, err := prettyjson.Marshal(ctx)
				if err != nil {
					return err
				}
				fmt.Fprintln(os.Stderr, string(pretty))
			}

			file := args[0]
			source, err := os.ReadFile(file)
			if err != nil {
				return err
			}

			opts := []vellum.Option{
				vellum.WithLoader(dirLoader(filepath.Dir(file))),
			}
			if strict {
				opts = append(opts, vellum.WithUndefinedBehavior(vm.Strict))
			}
			if noAutoescape {
				opts = append(opts, vellum.WithAutoEscape(vm.EscapeNone))
			}
			if fuel > 0 {
				opts = append(opts, vellum.WithFuel(fuel))
			}
			env := vellum.New(opts...)

			name := filepath.Base(file)
			tmpl, err := env.AddTemplate(name, string(source))
			if err != nil {
				return err
			}

			log.Debug().Str("template", name).Int("context_vars", len(ctx)).
				Msg("rendering")
			out, err := tmpl.Render(ctx)
			if err != nil {
				return err
			}

			if outFile != "" {
				return os.WriteFile(outFile, []byte(out), 0o644)
			}
			_, err = os.Stdout.WriteString(out)
			return err
		},
	}

	cmd.Flags().StringVar(&dataFile, "data", "", "context file (json, yaml, or toml)")
	cmd.Flags().StringArrayVar(&sets, "set", nil, "set a context variable (key=value, repeatable)")
	cmd.Flags().BoolVar(&strict, "strict", false, "fail on undefined variables")
	cmd.Flags().BoolVar(&noAutoescape, "no-autoescape", false, "disable HTML auto-escaping")
	cmd.Flags().StringVar(&outFile, "out", "", "write output to a file instead of stdout")
	cmd.Flags().BoolVar(&showContext, "show-context", false, "print the resolved context to stderr")
	cmd.Flags().Uint64Var(&fuel, "fuel", 0, "limit the number of instructions executed (0 = unlimited)")
	return cmd
}

// dirLoader resolves include, import, and extends targets relative to the
// rendered file's directory.
func dirLoader(dir string) vellum.Loader {
	return func(name string) (string, bool) {
		path := filepath.Join(dir, filepath.FromSlash(name))
		data, err := os.ReadFile(path)
		if err != nil {
			log.Debug().Str("template", name).Err(err).Msg("load failed")
			return "", false
		}
		return string(data), true
	}
}

func loadContextFile(path string) (map[string]any, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	ctx := map[string]any{}
	switch strings.ToLower(filepath.Ext(path)) {
	case ".json":
		err = json.Unmarshal(data, &ctx)
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &ctx)
	case ".toml":
		err = toml.Unmarshal(data, &ctx)
	default:
		return nil, fmt.Errorf("unsupported context format %q (want .json, .yaml, or .toml)", filepath.Ext(path))
	}
	if err != nil {
		return nil, fmt.Errorf("parsing %s: %w", path, err)
	}
	return ctx, nil
}

// parseScalar interprets a --set value the way a YAML scalar would parse, so
// numbers and booleans arrive typed. Anything unparseable stays a string.
func parseScalar(s string) any {
	var v any
	if err := yaml.Unmarshal([]byte(s), &v); err != nil {
		return s
	}
	switch v.(type) {
	case string, bool, int, int64, float64, nil:
		return v
	default:
		return s
	}
}
