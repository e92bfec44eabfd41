package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"github.com/matzehuels/tracekit/pkg/artifact"
	"github.com/matzehuels/tracekit/pkg/errors"
	"github.com/matzehuels/tracekit/pkg/pipeline"
	"github.com/matzehuels/tracekit/pkg/present"
	"github.com/matzehuels/tracekit/pkg/session"
	"github.com/matzehuels/tracekit/pkg/source"
	"github.com/matzehuels/tracekit/pkg/vectorize"
)

// Preview styles
var (
	previewFrameStyle = lipgloss.NewStyle().
				Border(lipgloss.RoundedBorder()).
				BorderForeground(colorDim).
				Padding(1, 2)
	previewLabelStyle = lipgloss.NewStyle().Foreground(colorBlue).Bold(true)
	previewErrorStyle = lipgloss.NewStyle().Foreground(colorRed)
)

// spinnerFrames are shared with the plain spinner.
var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// previewCommand creates the interactive preview command.
func (c *CLI) previewCommand() *cobra.Command {
	var (
		ropts  runnerOpts
		vec    vectorize.Options
		output string
	)

	cmd := &cobra.Command{
		Use:   "preview <file>",
		Short: "Convert an image in an interactive preview",
		Long: `Convert an image and show the result in an interactive preview.

Keys: v/e/h save the vector, embedded or hybrid download, r converts again,
x clears the preview, q quits.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := c.loadConfig()
			if err != nil {
				return err
			}
			opts := pipelineOptions(cmd, cfg, vec)
			if err := opts.Validate(); err != nil {
				return err
			}
			f, err := source.FromPath(args[0])
			if err != nil {
				return err
			}
			if err := source.Validate(f); err != nil {
				return err
			}

			// The TUI owns the terminal; keep log lines out of it.
			c.Logger.SetOutput(io.Discard)

			runner, err := c.newRunner(cfg, ropts)
			if err != nil {
				return err
			}
			defer runner.Close()

			store := artifact.NewStore(nil, nil, 0)
			defer store.Close()

			m := newPreviewModel(cmd.Context(), session.New(store, 0), runner, f, opts, output)
			_, err = tea.NewProgram(m, tea.WithContext(cmd.Context())).Run()
			return err
		},
	}

	ropts.register(cmd)
	registerVectorizeFlags(cmd, &vec)
	cmd.Flags().StringVarP(&output, "output", "o", ".", "directory for saved downloads")

	return cmd
}

// =============================================================================
// previewModel - Presenter states in the terminal
// =============================================================================

type convertedMsg struct {
	conv *pipeline.Conversion
	err  error
}

type savedMsg struct {
	path string
	err  error
}

type tickMsg struct{}

// previewModel drives one session and renders its preview surface.
type previewModel struct {
	ctx    context.Context
	sess   *session.Session
	runner *pipeline.Runner
	file   *source.File
	opts   pipeline.Options
	outDir string

	frame   int
	err     error
	message string
}

func newPreviewModel(ctx context.Context, sess *session.Session, runner *pipeline.Runner, f *source.File, opts pipeline.Options, outDir string) previewModel {
	return previewModel{
		ctx:    ctx,
		sess:   sess,
		runner: runner,
		file:   f,
		opts:   opts,
		outDir: outDir,
	}
}

func (m previewModel) Init() tea.Cmd {
	return tea.Batch(m.convert(), tick())
}

// convert starts a session run. The processing state is entered before the
// command returns so the first frame already shows it.
func (m previewModel) convert() tea.Cmd {
	run := m.sess.Begin(m.ctx, m.file.Name)
	return func() tea.Msg {
		conv, err := m.runner.Convert(m.ctx, m.file, m.opts)
		if err != nil {
			m.sess.Fail(run, err)
			return convertedMsg{err: err}
		}
		m.sess.Complete(m.ctx, run, conv)
		return convertedMsg{conv: conv}
	}
}

func (m previewModel) save(v present.Variant) tea.Cmd {
	return func() tea.Msg {
		a, err := m.sess.Download(m.ctx, v)
		if err != nil {
			return savedMsg{err: err}
		}
		if err := errors.ValidateFilename(a.Filename); err != nil {
			return savedMsg{err: err}
		}
		if err := os.MkdirAll(m.outDir, 0o755); err != nil {
			return savedMsg{err: err}
		}
		path := filepath.Join(m.outDir, a.Filename)
		if err := os.WriteFile(path, a.Data, 0o644); err != nil {
			return savedMsg{err: err}
		}
		return savedMsg{path: path}
	}
}

func tick() tea.Cmd {
	return tea.Tick(80*time.Millisecond, func(time.Time) tea.Msg { return tickMsg{} })
}

func (m previewModel) processing() bool {
	return m.sess.View().State == present.Processing
}

func (m previewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "r":
			if m.processing() {
				return m, nil
			}
			m.err, m.message = nil, ""
			return m, tea.Batch(m.convert(), tick())
		case "x":
			m.sess.Reset(m.ctx)
			m.err, m.message = nil, ""
		case "v":
			return m, m.save(present.Vector)
		case "e":
			return m, m.save(present.Embedded)
		case "h":
			return m, m.save(present.Hybrid)
		}
	case convertedMsg:
		m.err = msg.err
	case savedMsg:
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.message = "saved " + msg.path
		}
	case tickMsg:
		m.frame++
		if m.processing() {
			return m, tick()
		}
	}
	return m, nil
}

func (m previewModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(appName + " preview"))
	b.WriteString("  ")
	b.WriteString(StyleDim.Render(m.file.Name))
	b.WriteString("\n\n")

	view := m.sess.View()
	var body string
	switch view.State {
	case present.Processing:
		frame := spinnerFrames[m.frame%len(spinnerFrames)]
		body = styleIconSpinner.Render(frame) + " " + view.Text
	case present.Rendered:
		body = m.renderedView(view)
	default:
		body = StyleDim.Render(view.Text)
	}
	b.WriteString(previewFrameStyle.Render(body))
	b.WriteString("\n")

	if m.err != nil && errors.UserVisible(m.err) {
		b.WriteString(previewErrorStyle.Render(iconError + " " + errors.UserMessage(m.err)))
		b.WriteString("\n")
	} else if m.message != "" {
		b.WriteString(StyleSuccess.Render(iconSuccess + " " + m.message))
		b.WriteString("\n")
	}

	b.WriteString(StyleDim.Render("v/e/h save  r convert  x clear  q quit"))
	return b.String()
}

func (m previewModel) renderedView(view present.View) string {
	conv := m.sess.Current()
	if conv == nil {
		return StyleDim.Render(session.Placeholder)
	}
	var b strings.Builder
	for _, l := range view.Labels {
		b.WriteString(previewLabelStyle.Render("[" + l + "]"))
		b.WriteString(" ")
	}
	b.WriteString(StyleDim.Render(fmt.Sprintf("%dx%d", conv.Width, conv.Height)))
	b.WriteString("\n")
	if conv.FallbackReason != "" {
		b.WriteString(StyleWarning.Render(conv.FallbackReason))
		b.WriteString("\n")
	}
	b.WriteString(metricsTable(conv))
	return b.String()
}
