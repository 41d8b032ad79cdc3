package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/matzehuels/stackforge/pkg/compose"
)

// stdout receives all command output. Tests swap it for a buffer.
var stdout io.Writer = os.Stdout

// Palette (ANSI 256).
var (
	colorAccent = lipgloss.Color("36")
	colorOK     = lipgloss.Color("35")
	colorWarn   = lipgloss.Color("220")
	colorFail   = lipgloss.Color("167")
	colorCmd    = lipgloss.Color("75")
	colorText   = lipgloss.Color("255")
	colorMuted  = lipgloss.Color("245")
	colorFaint  = lipgloss.Color("240")
)

// Styles shared by every command.
var (
	StyleTitle     = lipgloss.NewStyle().Bold(true).Foreground(colorAccent)
	StyleHighlight = lipgloss.NewStyle().Foreground(colorAccent)
	StyleDim       = lipgloss.NewStyle().Foreground(colorFaint)

	styleValue       = lipgloss.NewStyle().Foreground(colorText)
	styleLabel       = lipgloss.NewStyle().Foreground(colorMuted).Width(14)
	styleCommand     = lipgloss.NewStyle().Foreground(colorCmd)
	styleIconSpinner = lipgloss.NewStyle().Foreground(colorAccent)
)

// status is one kind of status line: a colored glyph before the message.
type status struct {
	glyph string
	style lipgloss.Style
}

var (
	statusOK      = status{"✓", lipgloss.NewStyle().Foreground(colorOK)}
	statusFail    = status{"✗", lipgloss.NewStyle().Foreground(colorFail)}
	statusWarn    = status{"!", lipgloss.NewStyle().Foreground(colorWarn)}
	statusSkipped = status{"-", lipgloss.NewStyle().Foreground(colorWarn)}
	statusInfo    = status{"›", lipgloss.NewStyle().Foreground(colorMuted)}
)

func (s status) println(msg string) {
	fmt.Fprintln(stdout, s.style.Render(s.glyph)+" "+msg)
}

func printSuccess(format string, args ...any) { statusOK.println(fmt.Sprintf(format, args...)) }
func printError(format string, args ...any)   { statusFail.println(fmt.Sprintf(format, args...)) }
func printInfo(format string, args ...any)    { statusInfo.println(fmt.Sprintf(format, args...)) }

func printWarning(format string, args ...any) {
	statusWarn.println(statusWarn.style.Render(fmt.Sprintf(format, args...)))
}

// printDetail prints an indented, muted line.
func printDetail(format string, args ...any) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render(fmt.Sprintf(format, args...)))
}

// printFile lists a path a command wrote.
func printFile(path string) {
	fmt.Fprintln(stdout, "  "+StyleDim.Render("→")+" "+styleValue.Render(path))
}

func printKeyValue(key, value string) {
	fmt.Fprintln(stdout, styleLabel.Render(key)+" "+styleValue.Render(value))
}

// printNextStep suggests a follow-up command.
func printNextStep(description, cmd string) {
	fmt.Fprintln(stdout, StyleDim.Render(description+":")+" "+styleCommand.Render(cmd))
}

func printJSON(v any) error {
	enc := json.NewEncoder(stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printPlanStats summarizes a plan on one line, e.g.
// "3 generators · 1 implicit · cached".
func printPlanStats(refs, synthesized int, cached bool) {
	parts := []string{fmt.Sprintf("%d generators", refs)}
	if synthesized > 0 {
		parts = append(parts, fmt.Sprintf("%d implicit", synthesized))
	}
	source := statusInfo.style.Render("fresh")
	if cached {
		source = statusOK.style.Render("cached")
	}
	sep := StyleDim.Render(" · ")
	fmt.Fprintln(stdout, "  "+StyleDim.Render(strings.Join(parts, " · "))+sep+source)
}

// printUnitResult prints one generator's result and the files it wrote.
func printUnitResult(r compose.UnitResult) {
	id := StyleHighlight.Render(r.ID)
	switch {
	case r.Success:
		statusOK.println(id + " " + StyleDim.Render(r.Duration.Round(time.Millisecond).String()))
	case r.Skipped:
		statusSkipped.println(id + " " + statusWarn.style.Render("skipped: "+r.Error))
	default:
		statusFail.println(id + " " + r.Error)
	}
	for _, f := range r.Files {
		printFile(f)
	}
}

// printOutcome prints every result of a composition, then a summary line
// carrying the final state.
func printOutcome(out *compose.Outcome) {
	for _, r := range out.Results {
		printUnitResult(r)
	}
	for _, id := range out.Skipped {
		printDetail("%s not run: condition not met", id)
	}
	for _, err := range out.RollbackErrors {
		printWarning("rollback: %v", err)
	}

	summary := fmt.Sprintf("%s %s in %s", out.Spec, out.State, out.Duration.Round(time.Millisecond))
	if out.Success {
		printSuccess("%s", summary)
	} else {
		printError("%s", summary)
	}
}
