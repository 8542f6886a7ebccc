package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/spf13/cobra"

	"askia-quiz-service/internal/app"
	"askia-quiz-service/internal/domain"
	"askia-quiz-service/internal/infra/memory"
	"askia-quiz-service/internal/infra/static"
	"askia-quiz-service/internal/logger"
)

var (
	colorGreen  = lipgloss.Color("#8ec07c")
	colorYellow = lipgloss.Color("#fabd2f")
	colorRed    = lipgloss.Color("#fb4934")
	colorDim    = lipgloss.Color("#928374")
	colorHeader = lipgloss.Color("#fe8019")

	styleHeader = lipgloss.NewStyle().Foreground(colorHeader).Bold(true)
	styleGood   = lipgloss.NewStyle().Foreground(colorGreen)
	styleWarn   = lipgloss.NewStyle().Foreground(colorYellow)
	styleBad    = lipgloss.NewStyle().Foreground(colorRed)
	styleDim    = lipgloss.NewStyle().Foreground(colorDim)
	styleBox    = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(colorDim).Padding(0, 1)
)

type playOptions struct {
	contentDir string
	params     app.SessionParams
}

// NewPlayCmd plays one session in the terminal against a local content directory.
func NewPlayCmd() *cobra.Command {
	opts := playOptions{}
	cmd := &cobra.Command{
		Use:   "play",
		Short: "Play a quiz session in the terminal",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&opts.contentDir, "content", "content", "content directory")
	cmd.Flags().StringVar(&opts.params.Grade, "grade", "6", "grade")
	cmd.Flags().StringVar(&opts.params.Subject, "subject", "maths", "subject")
	cmd.Flags().StringVar(&opts.params.Topic, "topic", "algebra", "topic, \"random\" or \"default\"")
	cmd.Flags().StringVar(&opts.params.Mode, "mode", "standard", "standard, guest, league or a question type")
	cmd.Flags().StringVar(&opts.params.Week, "week", "", "league week")
	cmd.Flags().StringVar(&opts.params.Type, "type", "", "question type")
	return cmd
}

func runPlay(ctx context.Context, opts playOptions, in io.Reader, out io.Writer) error {
	var source app.QuestionSource = memory.NewStaticSource(sampleQuestions())
	if dirExists(opts.contentDir) {
		source = static.NewFSSource(os.DirFS(opts.contentDir))
	}
	service := app.NewQuizService(app.Deps{
		Sessions:  memory.NewSessionStore(),
		Users:     memory.NewUserStore(),
		Questions: source,
		League:    memory.NewLeagueStore(domain.SampleLeagueLedger()),
	}, app.WithLogger(logger.Discard()))

	const playerID = "local"
	if opts.params.Mode != "guest" {
		_, err := service.Register(ctx, playerID, app.Profile{
			Username:     "local",
			School:       "École Pilote",
			City:         "Gao",
			DefaultGrade: opts.params.Grade,
		})
		if err != nil {
			return err
		}
	}

	session, err := service.Start(ctx, playerID, opts.params)
	if err != nil {
		return err
	}
	events, cancel, err := service.Subscribe(ctx, session.ID())
	if err != nil {
		return err
	}
	defer cancel()
	defer session.Quit()

	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			lines <- strings.TrimSpace(scanner.Text())
		}
	}()

	fmt.Fprintln(out, styleDim.Render("answer with an option number, text or words; p pause, r resume, f focus, q quit"))
	var current *domain.QuestionView
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case ev, ok := <-events:
			if !ok {
				return nil
			}
			if ev.Question != nil {
				current = ev.Question
			} else if ev.Session != nil && ev.Session.Question != nil {
				current = ev.Session.Question
			}
			if done := renderEvent(out, ev); done {
				return nil
			}
		case line, ok := <-lines:
			if !ok {
				// stdin closed: let the session run out on its timers
				lines = nil
				continue
			}
			if err := handleLine(ctx, session, current, line); err != nil {
				fmt.Fprintln(out, styleBad.Render(err.Error()))
			}
		}
	}
}

func handleLine(ctx context.Context, session *app.Session, q *domain.QuestionView, line string) error {
	switch line {
	case "":
		return nil
	case "p":
		return session.Pause()
	case "r":
		return session.Resume()
	case "f":
		_, err := session.UseFocusToken(ctx)
		return err
	case "q":
		session.Quit()
		return nil
	}
	if q == nil {
		return domain.ErrNotAwaitingAnswer
	}
	answer, err := parseAnswer(q.Kind, line)
	if err != nil {
		return err
	}
	_, err = session.Submit(ctx, answer)
	return err
}

// parseAnswer reads option numbers as 1-based.
func parseAnswer(kind domain.QuestionKind, line string) (domain.Answer, error) {
	switch kind {
	case domain.KindMultipleChoice, domain.KindImageIdentify:
		n, err := strconv.Atoi(line)
		if err != nil {
			return nil, fmt.Errorf("enter an option number")
		}
		return domain.ChoiceAnswer{Index: n - 1}, nil
	case domain.KindSentenceBuilder:
		return domain.SequenceAnswer{Words: strings.Fields(line)}, nil
	}
	return domain.TextAnswer{Text: line}, nil
}

// renderEvent prints ev and reports whether the session ended.
func renderEvent(out io.Writer, ev app.Event) bool {
	switch ev.Type {
	case app.EventSnapshot:
		if ev.Session != nil && ev.Session.Question != nil {
			fmt.Fprintln(out, renderQuestion(ev.Session.Question))
		}
	case app.EventQuestion:
		fmt.Fprintln(out, renderQuestion(ev.Question))
	case app.EventFeedback:
		fb := ev.Feedback
		switch {
		case fb.TimedOut:
			fmt.Fprintln(out, styleWarn.Render("time is up, the answer was "+fb.CorrectAnswer))
		case fb.Correct:
			fmt.Fprintln(out, styleGood.Render(fmt.Sprintf("correct! +%d xp (streak %d)", fb.XPAwarded, fb.Streak)))
		default:
			fmt.Fprintln(out, styleBad.Render("wrong, the answer was "+fb.CorrectAnswer))
		}
	case app.EventPaused:
		fmt.Fprintln(out, styleDim.Render("paused"))
	case app.EventResumed:
		fmt.Fprintln(out, styleDim.Render("resumed"))
	case app.EventFocus:
		if ev.Tokens != nil {
			fmt.Fprintln(out, styleDim.Render(fmt.Sprintf("timer frozen, %d focus tokens left", *ev.Tokens)))
		}
	case app.EventCompleted:
		fmt.Fprintln(out, renderResult(ev.Result))
		return true
	case app.EventFailed:
		fmt.Fprintln(out, styleBad.Render("session failed: "+ev.Error))
		return true
	case app.EventAbandoned:
		fmt.Fprintln(out, styleDim.Render("session abandoned"))
		return true
	}
	return false
}

func renderQuestion(q *domain.QuestionView) string {
	var b strings.Builder
	title := fmt.Sprintf("Question %d/%d", q.Index+1, q.Total)
	if q.Jackpot {
		title += " ★ jackpot"
	}
	b.WriteString(styleHeader.Render(title))
	b.WriteString("\n" + q.Prompt)
	for i, opt := range q.Options {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, opt)
	}
	for i, img := range q.Images {
		fmt.Fprintf(&b, "\n  %d. %s", i+1, img.Label)
	}
	if len(q.Words) > 0 {
		b.WriteString("\n  " + styleDim.Render(strings.Join(q.Words, " · ")))
	}
	if q.TimeLimitSeconds > 0 {
		b.WriteString("\n" + styleDim.Render(fmt.Sprintf("%ds", q.TimeLimitSeconds)))
	}
	return styleBox.Render(b.String())
}

func renderResult(r *domain.ResultSummary) string {
	if r == nil {
		return styleHeader.Render("Quiz complete")
	}
	lines := []string{
		styleHeader.Render("Quiz complete"),
		fmt.Sprintf("score  %d/%d", r.Score, r.SessionSize),
		fmt.Sprintf("xp     +%d", r.XPEarned),
		fmt.Sprintf("orbs   +%d", r.OrbsEarned),
	}
	if r.NewLevel != nil {
		lines = append(lines, styleGood.Render(fmt.Sprintf("level up! now level %d", *r.NewLevel)))
	}
	if d := r.LeagueDelta; d != nil {
		lines = append(lines, fmt.Sprintf("%s average %.2f → %.2f", d.School, d.OldAverage, d.NewAverage))
	}
	return styleBox.Render(strings.Join(lines, "\n"))
}
