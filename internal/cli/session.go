package cli

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"maps"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/Veraticus/wedding-ledger/internal/draft"
	"github.com/Veraticus/wedding-ledger/internal/wizard"
	"github.com/schollz/progressbar/v3"
)

// Commands recognized at any prompt.
const (
	CmdBack = ":back"
	CmdQuit = ":quit"
	CmdSave = ":save"
)

// Runner errors.
var (
	// ErrSuspended means the user left with the draft kept for later.
	ErrSuspended = errors.New("session suspended")
	// ErrLeft means the user confirmed leaving and the draft was discarded.
	ErrLeft = errors.New("session left")
)

// Field is one prompt within a step.
type Field struct {
	Key      string
	Label    string
	Hint     string
	Optional bool
}

// Script returns the fields to ask at the session's current step. Steps
// without fields are confirmation steps.
type Script func(st wizard.State) []Field

// StepFields builds a Script from a fixed step-name table.
func StepFields(fields map[string][]Field) Script {
	return func(st wizard.State) []Field {
		return fields[st.StepName]
	}
}

// SessionRunner drives one wizard session interactively.
type SessionRunner struct {
	engine  *wizard.Engine
	gate    *wizard.PinGate
	drafts  *draft.Store
	reader  *NonBlockingReader
	writer  io.Writer
	summary func(wizard.State) string
}

// RunnerOption configures a SessionRunner.
type RunnerOption func(*SessionRunner)

// WithSummary sets the renderer for the confirmation box.
func WithSummary(fn func(wizard.State) string) RunnerOption {
	return func(r *SessionRunner) {
		r.summary = fn
	}
}

// NewSessionRunner creates a runner reading from in and writing to out.
func NewSessionRunner(engine *wizard.Engine, gate *wizard.PinGate, drafts *draft.Store,
	in io.Reader, out io.Writer, opts ...RunnerOption) *SessionRunner {
	if in == nil {
		in = os.Stdin
	}
	if out == nil {
		out = os.Stdout
	}
	r := &SessionRunner{
		engine:  engine,
		gate:    gate,
		drafts:  drafts,
		reader:  NewNonBlockingReader(in),
		writer:  out,
		summary: defaultSummary,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Run prompts until the session succeeds or the user leaves.
func (r *SessionRunner) Run(ctx context.Context, id string, script Script) (wizard.CommitResult, error) {
	for {
		st, err := r.engine.State(id)
		if err != nil {
			return wizard.CommitResult{}, err
		}

		switch st.Status {
		case wizard.StatusInProgress, wizard.StatusFailed:
			err = r.runStep(ctx, st, script(st))
		case wizard.StatusAwaitingAuthorization:
			err = r.runAuthorization(ctx, st)
		case wizard.StatusCommitting:
			var res wizard.CommitResult
			res, err = r.runCommit(ctx, st)
			if err == nil && res.Status == wizard.StatusSucceeded {
				return res, nil
			}
		case wizard.StatusSucceeded:
			return wizard.CommitResult{Status: st.Status, StepIndex: st.StepIndex}, nil
		case wizard.StatusAbandoned:
			return wizard.CommitResult{Status: st.Status}, wizard.ErrAbandoned
		}
		if err != nil {
			return wizard.CommitResult{Status: st.Status}, err
		}
	}
}

func (r *SessionRunner) runStep(ctx context.Context, st wizard.State, fields []Field) error {
	r.printf("\n%s\n", FormatTitle(fmt.Sprintf("Step %d: %s", st.StepIndex+1, st.StepName)))
	if st.Status == wizard.StatusFailed {
		r.printf("%s\n", FormatWarning("The last attempt failed. Check the details and continue."))
	}
	if len(fields) == 0 {
		r.printf("%s\n", RenderBox("Review", r.summary(st)))
	}

	input := wizard.Draft{}
	for _, f := range fields {
		value, handled, err := r.ask(ctx, st, f)
		if err != nil || handled {
			return err
		}
		input[f.Key] = value
	}
	if len(fields) == 0 {
		if _, handled, err := r.ask(ctx, st, Field{Label: "Press enter to continue"}); err != nil || handled {
			return err
		}
	}

	res, err := r.engine.SubmitStep(ctx, st.ID, input)
	if err != nil {
		return err
	}
	if !res.OK && res.Error != nil {
		r.printf("%s\n", FormatError(res.Error.Message))
	}
	return nil
}

// ask reads one field. handled is true when the input was a command that
// already changed the session.
func (r *SessionRunner) ask(ctx context.Context, st wizard.State, f Field) (string, bool, error) {
	prompt := f.Label
	if current := st.Draft.Get(f.Key); current != "" && f.Key != "" {
		prompt += " [" + current + "]"
	}
	if f.Hint != "" {
		r.printf("%s\n", SubtleStyle.Render(f.Hint))
	}

	for {
		r.printf("%s", FormatPrompt(prompt))
		line, err := r.reader.ReadLine(ctx)
		if err != nil {
			return "", false, err
		}

		switch line {
		case CmdBack:
			if err := r.engine.Back(ctx, st.ID); err != nil {
				r.printf("%s\n", FormatWarning(backMessage(err)))
				continue
			}
			return "", true, nil
		case CmdQuit:
			return "", true, r.leave(ctx, st.ID)
		case CmdSave:
			return "", true, ErrSuspended
		}

		if line == "" {
			line = st.Draft.Get(f.Key)
		}
		if line == "" && !f.Optional && f.Key != "" {
			r.printf("%s\n", FormatWarning("This field is required."))
			continue
		}
		return line, false, nil
	}
}

func (r *SessionRunner) runAuthorization(ctx context.Context, st wizard.State) error {
	attempt, err := r.gate.RequestAuthorization(st.ID)
	if err != nil {
		return err
	}
	slog.Debug("Authorization requested", "session_id", st.ID, "attempt_id", attempt.ID)

	r.printf("\n%s\n", FormatTitle(LockIcon+" Enter your 6-digit PIN"))
	r.printf("%s", FormatPrompt("PIN"))
	code, err := r.reader.ReadSecret(ctx)
	if err != nil {
		return err
	}

	if string(code) == CmdQuit {
		if err := r.gate.Dismiss(st.ID, code); err != nil {
			return err
		}
		return r.leave(ctx, st.ID)
	}

	outcome, err := r.gate.SubmitCode(ctx, st.ID, code)
	if err != nil {
		return err
	}
	switch {
	case outcome.Verified:
		r.printf("%s\n", FormatSuccess("PIN verified."))
	case errors.Is(outcome.Err, wizard.ErrInvalidLength), errors.Is(outcome.Err, wizard.ErrInvalidFormat):
		r.printf("%s\n", FormatError("Enter exactly 6 digits."))
	default:
		r.printf("%s\n", FormatError("The PIN was not accepted. Try again."))
	}
	return nil
}

func (r *SessionRunner) runCommit(ctx context.Context, st wizard.State) (wizard.CommitResult, error) {
	bar := progressbar.NewOptions(-1,
		progressbar.OptionSetWriter(r.writer),
		progressbar.OptionSetDescription("Submitting"),
		progressbar.OptionSpinnerType(14),
		progressbar.OptionClearOnFinish(),
	)
	done := make(chan struct{})
	stopped := make(chan struct{})
	go func() {
		defer close(stopped)
		ticker := time.NewTicker(100 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				_ = bar.Add(1)
			}
		}
	}()

	res, err := r.engine.Commit(ctx, st.ID)
	close(done)
	<-stopped
	_ = bar.Finish()

	if res.Err != nil {
		r.printf("%s\n", FormatError(res.Err.Message))
		return res, nil
	}
	if err != nil {
		return res, err
	}
	msg := "Done."
	if res.Message != "" {
		msg = res.Message
	}
	r.printf("%s\n", FormatSuccess(msg))
	return res, nil
}

// leave applies the leave-guard: asks before discarding unsaved input.
func (r *SessionRunner) leave(ctx context.Context, id string) error {
	decision, err := r.drafts.GuardNavigation(ctx, id, func(ctx context.Context, _ wizard.State) (bool, error) {
		r.printf("%s", FormatPrompt("Discard what you entered? [y/N]"))
		answer, err := r.reader.ReadLine(ctx)
		if err != nil {
			return false, err
		}
		answer = strings.ToLower(answer)
		return answer == "y" || answer == "yes", nil
	})
	if err != nil {
		return err
	}
	if !decision.Proceed {
		return nil
	}
	return ErrLeft
}

func (r *SessionRunner) printf(format string, args ...any) {
	if _, err := fmt.Fprintf(r.writer, format, args...); err != nil {
		slog.Warn("Failed to write prompt", "error", err)
	}
}

func backMessage(err error) string {
	if errors.Is(err, wizard.ErrNoPreviousStep) {
		return "Already at the first step."
	}
	return "Cannot go back right now."
}

func defaultSummary(st wizard.State) string {
	rows := make([][]string, 0, len(st.Draft))
	for _, k := range slices.Sorted(maps.Keys(st.Draft)) {
		rows = append(rows, []string{k, st.Draft[k]})
	}
	return RenderTable([]string{"Field", "Value"}, rows)
}
