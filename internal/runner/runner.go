// Package runner plays an exam session in a terminal.
package runner

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"slagie/internal/domain"
	"slagie/internal/session"
)

const stopCommand = "stop"

// Backend is everything the runner needs from the API.
type Backend interface {
	domain.ExamSource
	domain.ScoringCollaborator
	ListPublished(ctx context.Context) ([]*domain.Exam, error)
}

// Config holds the runner's options.
type Config struct {
	// ExamID selects the exam; when empty the user picks from the published list.
	ExamID        string
	ReportTimeout time.Duration
	Options       []session.Option
}

// Run plays one exam, reading answers from in and writing to out.
func Run(ctx context.Context, in io.Reader, out io.Writer, backend Backend, cfg Config) error {
	reader := bufio.NewReader(in)

	examID := cfg.ExamID
	if examID == "" {
		id, err := pickExam(ctx, reader, out, backend)
		if err != nil {
			return err
		}
		examID = id
	}

	s := session.New(examID, backend, backend, cfg.Options...)
	if err := s.Load(ctx); err != nil {
		return err
	}

	snap := s.Snapshot()
	fmt.Fprintf(out, "%s: %d vragen\n", snap.Title, snap.Total)
	if !snap.Deadline.IsZero() {
		fmt.Fprintf(out, "Inleveren voor %s. Typ %q om te stoppen.\n", snap.Deadline.Format("15:04"), stopCommand)
		timer := time.AfterFunc(time.Until(snap.Deadline), func() {
			_ = s.Expire(ctx)
		})
		defer timer.Stop()
	}

	for {
		snap = s.Snapshot()
		if snap.State != session.Answering {
			break
		}
		printQuestion(out, snap)

		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			s.Abandon()
			return fmt.Errorf("input closed: %w", err)
		}
		line = strings.TrimSpace(line)
		if strings.EqualFold(line, stopCommand) {
			s.Abandon()
			fmt.Fprintln(out, "Examen gestopt.")
			return nil
		}

		if err := capture(s, snap, line); err != nil {
			if s.Snapshot().State == session.Finished {
				break
			}
			fmt.Fprintln(out, "!", describe(err))
			continue
		}

		res, err := s.Submit(ctx)
		switch {
		case errors.Is(err, session.ErrTimeExpired):
			fmt.Fprintln(out, "De tijd is om.")
			continue
		case err != nil:
			if s.Snapshot().State == session.Finished {
				continue
			}
			fmt.Fprintln(out, "!", describe(err))
			continue
		}
		printFeedback(out, res)

		if err := s.Next(ctx); err != nil && !errors.Is(err, session.ErrTimeExpired) {
			return err
		}
	}

	return printResult(ctx, out, s, cfg.ReportTimeout)
}

func pickExam(ctx context.Context, reader *bufio.Reader, out io.Writer, backend Backend) (string, error) {
	exams, err := backend.ListPublished(ctx)
	if err != nil {
		return "", fmt.Errorf("failed to list exams: %w", err)
	}
	if len(exams) == 0 {
		return "", errors.New("no published exams")
	}
	for i, e := range exams {
		fmt.Fprintf(out, "%d. %s (%d vragen)\n", i+1, e.Title, e.QuestionCount)
	}
	for {
		fmt.Fprintf(out, "Kies een examen (1-%d): ", len(exams))
		line, err := reader.ReadString('\n')
		if err != nil && strings.TrimSpace(line) == "" {
			return "", fmt.Errorf("input closed: %w", err)
		}
		n, convErr := strconv.Atoi(strings.TrimSpace(line))
		if convErr == nil && n >= 1 && n <= len(exams) {
			return exams[n-1].ID, nil
		}
		fmt.Fprintln(out, "Ongeldige keuze.")
	}
}

func printQuestion(out io.Writer, snap session.Snapshot) {
	q := snap.Question
	fmt.Fprintf(out, "\nVraag %d/%d: %s\n", snap.Index+1, snap.Total, q.Text)
	if q.ImageURL != "" {
		fmt.Fprintf(out, "[afbeelding: %s]\n", q.ImageURL)
	}
	if snap.Input == domain.InputFreeText {
		fmt.Fprint(out, "Uw antwoord: ")
		return
	}
	for i, a := range q.Answers {
		text := a.Text
		if text == "" {
			text = "(markering)"
		}
		if a.Position != nil {
			fmt.Fprintf(out, "  %s. %s @ %.0f,%.0f\n", domain.Label(i), text, a.Position.X, a.Position.Y)
			continue
		}
		fmt.Fprintf(out, "  %s. %s\n", domain.Label(i), text)
	}
	fmt.Fprintf(out, "Uw keuze (A-%s): ", domain.Label(len(q.Answers)-1))
}

// capture turns one input line into the session's pending selection. Marker
// questions also accept a click as "x,y" in percent of the image.
func capture(s *session.Session, snap session.Snapshot, line string) error {
	if snap.Input == domain.InputFreeText {
		return s.EnterText(line)
	}
	if x, y, ok := parsePoint(line); ok {
		_, err := s.SelectMarkerAt(x, y)
		return err
	}
	i := domain.LabelIndex(line)
	if i < 0 || i >= len(snap.Question.Answers) {
		return session.ErrNoSelection
	}
	return s.SelectAnswer(snap.Question.Answers[i].ID)
}

func parsePoint(s string) (float64, float64, bool) {
	xs, ys, found := strings.Cut(s, ",")
	if !found {
		return 0, 0, false
	}
	x, errX := strconv.ParseFloat(strings.TrimSpace(xs), 64)
	y, errY := strconv.ParseFloat(strings.TrimSpace(ys), 64)
	if errX != nil || errY != nil {
		return 0, 0, false
	}
	return x, y, true
}

func printFeedback(out io.Writer, res *domain.CheckResult) {
	if res.IsCorrect {
		fmt.Fprintln(out, "Goed!")
	} else {
		fmt.Fprintf(out, "Fout. Het juiste antwoord is: %s\n", res.CorrectAnswerText)
	}
	if res.Explanation != "" {
		fmt.Fprintln(out, res.Explanation)
	}
}

func printResult(ctx context.Context, out io.Writer, s *session.Session, timeout time.Duration) error {
	r, err := s.Result()
	if err != nil {
		return err
	}
	verdict := "Gezakt"
	if r.Passed {
		verdict = "Geslaagd"
	}
	fmt.Fprintf(out, "\n%s: %d/%d (%.0f%%, grens %.0f%%)\n", verdict, r.Score, r.Total, r.Percentage, r.Threshold*100)
	if r.Expired {
		fmt.Fprintln(out, "Niet beantwoorde vragen tellen als fout.")
	}

	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	waitCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	rec, err := s.WaitReported(waitCtx)
	if err != nil {
		fmt.Fprintf(out, "Resultaat niet opgeslagen: %s\n", describe(err))
		return nil
	}
	if rec != nil && rec.ID != "" {
		fmt.Fprintf(out, "Resultaat opgeslagen (%s).\n", rec.ID)
	}
	return nil
}

func describe(err error) string {
	switch {
	case errors.Is(err, session.ErrNoSelection):
		return "kies een van de opties"
	case errors.Is(err, session.ErrNoMarker):
		return "geen markering op die plek"
	case domain.HasCode(err, domain.CodeCheck):
		return "controle mislukt, probeer het opnieuw"
	}
	return err.Error()
}
