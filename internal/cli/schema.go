package cli

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

// FlagSchema describes one flag in the machine-readable command schema.
type FlagSchema struct {
	Name        string `json:"name"`
	Shorthand   string `json:"shorthand,omitempty"`
	Type        string `json:"type"`
	Default     string `json:"default,omitempty"`
	Description string `json:"description,omitempty"`
}

// CommandSchema describes a command and its subtree for tooling that wants
// to introspect the CLI without scraping help text.
type CommandSchema struct {
	Name        string          `json:"name"`
	Use         string          `json:"use,omitempty"`
	Description string          `json:"description,omitempty"`
	Flags       []FlagSchema    `json:"flags,omitempty"`
	Subcommands []CommandSchema `json:"subcommands,omitempty"`
}

// GenerateSchema builds the schema for a command subtree.
func GenerateSchema(cmd *cobra.Command) CommandSchema {
	schema := CommandSchema{
		Name:        cmd.Name(),
		Use:         cmd.Use,
		Description: cmd.Short,
	}

	cmd.LocalFlags().VisitAll(func(f *pflag.Flag) {
		if f.Name == "help" || f.Name == "help-json" {
			return
		}
		schema.Flags = append(schema.Flags, FlagSchema{
			Name:        f.Name,
			Shorthand:   f.Shorthand,
			Type:        f.Value.Type(),
			Default:     f.DefValue,
			Description: f.Usage,
		})
	})

	for _, sub := range cmd.Commands() {
		if sub.Name() == "help" || sub.Hidden {
			continue
		}
		schema.Subcommands = append(schema.Subcommands, GenerateSchema(sub))
	}

	return schema
}

// AddHelpJSONFlag adds the --help-json flag to a command.
func AddHelpJSONFlag(cmd *cobra.Command) {
	cmd.PersistentFlags().Bool("help-json", false, "Output command schema as JSON")
}

// helpJSONTarget resolves the subcommand addressed by an argument list
// containing --help-json. Flag tokens and their values are skipped so a flag
// value that happens to match a subcommand name does not redirect the walk.
// ok is false when --help-json is absent.
func helpJSONTarget(rootCmd *cobra.Command, args []string) (target *cobra.Command, ok bool) {
	idx := -1
	for i, arg := range args {
		if arg == "--help-json" {
			idx = i
			break
		}
	}
	if idx < 0 {
		return nil, false
	}

	target = rootCmd
	skipNext := false
	for _, arg := range args[:idx] {
		if skipNext {
			skipNext = false
			continue
		}
		if strings.HasPrefix(arg, "-") {
			skipNext = !strings.Contains(arg, "=") && flagTakesValue(target, arg)
			continue
		}
		for _, sub := range target.Commands() {
			if sub.Name() == arg || sub.HasAlias(arg) {
				target = sub
				break
			}
		}
	}
	return target, true
}

// flagTakesValue reports whether a flag token consumes the following
// argument. Unknown flags are assumed not to.
func flagTakesValue(cmd *cobra.Command, token string) bool {
	var f *pflag.Flag
	if strings.HasPrefix(token, "--") {
		name := strings.TrimPrefix(token, "--")
		f = cmd.LocalFlags().Lookup(name)
		if f == nil {
			f = cmd.InheritedFlags().Lookup(name)
		}
	} else if len(token) > 1 {
		// Combined shorthands like -qP: only the last one can take a value.
		shorthand := token[len(token)-1:]
		f = cmd.LocalFlags().ShorthandLookup(shorthand)
		if f == nil {
			f = cmd.InheritedFlags().ShorthandLookup(shorthand)
		}
	}
	return f != nil && f.Value.Type() != "bool"
}

// CheckHelpJSON scans os.Args for --help-json and, if present, prints the
// schema for the addressed subcommand and exits. Runs before Execute so the
// flag works without satisfying argument validation.
func CheckHelpJSON(rootCmd *cobra.Command) {
	target, ok := helpJSONTarget(rootCmd, os.Args[1:])
	if !ok {
		return
	}
	output, err := json.MarshalIndent(GenerateSchema(target), "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error generating schema: %v\n", err)
		os.Exit(1)
	}
	fmt.Println(string(output))
	os.Exit(0)
}
