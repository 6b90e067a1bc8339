package cli

import (
	"errors"
	"fmt"
	"io"
	"sort"
	"text/tabwriter"

	"github.com/dkozyrev/freight-linker/internal/core/domain"
)

// Exit codes for linkerctl commands.
const (
	ExitSuccess      = 0 // clean run
	ExitDrift        = 1 // verify found drift under --strict
	ExitCommandError = 2 // storage or configuration failure
)

// ExitError carries a process exit code out of a command.
type ExitError struct {
	Code    int
	Message string
	Err     error
}

func (e *ExitError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *ExitError) Unwrap() error {
	return e.Err
}

func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Unclassified errors
// map to ExitCommandError.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	return ExitCommandError
}

func printVerifyReport(w io.Writer, rep *domain.VerifyReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "checked\t%d\n", rep.Checked)
	fmt.Fprintf(tw, "matching\t%d\n", rep.Matching)
	fmt.Fprintf(tw, "drifted\t%d\n", rep.Drifted)
	fmt.Fprintf(tw, "errors\t%d\n", rep.Errors)
	_ = tw.Flush()

	if len(rep.ByState) > 0 {
		states := make([]string, 0, len(rep.ByState))
		for state := range rep.ByState {
			states = append(states, state)
		}
		sort.Strings(states)

		fmt.Fprintln(w)
		tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "STATE\tDRIFTED")
		for _, state := range states {
			fmt.Fprintf(tw, "%s\t%d\n", state, rep.ByState[state])
		}
		_ = tw.Flush()
	}

	if len(rep.Drift) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIPMENT\tBOOKING\tSTORED\tDERIVED")
	for _, d := range rep.Drift {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ShipmentID, d.BookingNumber, d.StoredState, d.DerivedState)
	}
	_ = tw.Flush()
}

func printBackfillReport(w io.Writer, rep *domain.BackfillReport) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "scanned\t%d\n", rep.Scanned)
	fmt.Fprintf(tw, "linked\t%d\n", rep.Linked)
	fmt.Fprintf(tw, "created\t%d\n", rep.Created)
	fmt.Fprintf(tw, "candidates\t%d\n", rep.Candidates)
	fmt.Fprintf(tw, "skipped\t%d\n", rep.Skipped)
	fmt.Fprintf(tw, "errors\t%d\n", rep.Errors)
	fmt.Fprintf(tw, "state updates\t%d\n", rep.Updated)
	_ = tw.Flush()

	if len(rep.Transitions) == 0 {
		return
	}

	fmt.Fprintln(w)
	tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "SHIPMENT\tBOOKING\tFROM\tTO")
	for _, tr := range rep.Transitions {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", tr.ShipmentID, tr.BookingNumber, tr.OldState, tr.NewState)
	}
	_ = tw.Flush()
}
