package cli

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/open-webui/openwebui-cli/internal/config"
)

var (
	styleBold    = lipgloss.NewStyle().Bold(true)
	styleSuccess = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	styleWarning = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	styleError   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

// renderer writes command results honoring the requested output format and
// the output preferences from the config file.
type renderer struct {
	out        io.Writer
	format     string
	colors     bool
	timestamps bool
	quiet      bool
}

// newRenderer resolves the effective output format: --format flag, then the
// configured default, then plain text.
func newRenderer(opts *Options) *renderer {
	r := &renderer{
		out:    os.Stdout,
		format: opts.Format,
		colors: true,
		quiet:  opts.Quiet,
	}
	if cfg, err := config.Load(); err == nil {
		if r.format == "" {
			r.format = cfg.Defaults.Format
		}
		r.colors = cfg.Output.Colors
		r.timestamps = cfg.Output.Timestamps
	}
	if r.format == "" {
		r.format = "text"
	}
	return r
}

// structured reports whether output should be machine-readable rather than
// tables and status lines.
func (r *renderer) structured() bool {
	return r.format == "json" || r.format == "yaml"
}

// Emit writes v as JSON or YAML, matching the requested format.
func (r *renderer) Emit(v any) error {
	switch r.format {
	case "yaml":
		data, err := yaml.Marshal(v)
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		_, err = r.out.Write(data)
		return err
	default:
		data, err := json.MarshalIndent(v, "", "  ")
		if err != nil {
			return fmt.Errorf("failed to marshal output: %w", err)
		}
		fmt.Fprintln(r.out, string(data))
		return nil
	}
}

// Table renders a titled table to stdout.
func (r *renderer) Table(title string, headers []string, rows [][]string) {
	if title != "" {
		fmt.Fprintln(r.out, r.styled(styleBold, title))
	}
	table := tablewriter.NewWriter(r.out)
	table.SetHeader(headers)
	table.SetBorder(false)
	table.SetAutoWrapText(false)
	for _, row := range rows {
		table.Append(row)
	}
	table.Render()
}

func (r *renderer) styled(style lipgloss.Style, s string) string {
	if !r.colors {
		return s
	}
	return style.Render(s)
}

func (r *renderer) stamp() string {
	if !r.timestamps {
		return ""
	}
	return time.Now().Format(time.TimeOnly) + " "
}

// Successf prints a green status line.
func (r *renderer) Successf(format string, args ...any) {
	fmt.Fprintln(r.out, r.stamp()+r.styled(styleSuccess, fmt.Sprintf(format, args...)))
}

// Warnf prints a yellow status line.
func (r *renderer) Warnf(format string, args ...any) {
	fmt.Fprintln(r.out, r.stamp()+r.styled(styleWarning, fmt.Sprintf(format, args...)))
}

// Infof prints a plain status line, suppressed by --quiet.
func (r *renderer) Infof(format string, args ...any) {
	if r.quiet {
		return
	}
	fmt.Fprintln(r.out, r.stamp()+fmt.Sprintf(format, args...))
}

// Fieldf prints a "Label: value" line with a bold label.
func (r *renderer) Fieldf(label string, format string, args ...any) {
	fmt.Fprintf(r.out, "%s %s\n", r.styled(styleBold, label+":"), fmt.Sprintf(format, args...))
}

// errorLine writes the final error message for the process.
func errorLine(w io.Writer, err error) {
	fmt.Fprintf(w, "%s %v\n", styleError.Render("Error:"), err)
}

// confirm asks a yes/no question on stdin, defaulting to no.
func confirm(prompt string) bool {
	fmt.Printf("%s [y/N]: ", prompt)
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(input))
	return answer == "y" || answer == "yes"
}

// promptLine asks for a single line of input, returning def when empty.
func promptLine(prompt, def string) (string, error) {
	if def != "" {
		fmt.Printf("%s [%s]: ", prompt, def)
	} else {
		fmt.Printf("%s: ", prompt)
	}
	reader := bufio.NewReader(os.Stdin)
	input, err := reader.ReadString('\n')
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	input = strings.TrimSpace(input)
	if input == "" {
		return def, nil
	}
	return input, nil
}

// maskToken hides the middle of a token for display.
func maskToken(token string) string {
	if len(token) <= 12 {
		return "***"
	}
	return token[:8] + "..." + token[len(token)-4:]
}
