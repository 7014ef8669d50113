package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"

	"github.com/owuorvin/jubabuy/internal/client"
	"github.com/owuorvin/jubabuy/internal/filters"
	"github.com/owuorvin/jubabuy/internal/models"
)

// Exit codes for CLI commands.
const (
	ExitSuccess      = 0
	ExitFailure      = 1 // the marketplace refused or failed the request
	ExitCommandError = 2 // bad flags, arguments or configuration
)

// ExitError represents an error with a specific exit code.
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

// NewExitError creates a new ExitError with the given code and message.
func NewExitError(code int, message string) *ExitError {
	return &ExitError{Code: code, Message: message}
}

// WrapExitError wraps an existing error with an exit code.
func WrapExitError(code int, message string, err error) *ExitError {
	return &ExitError{Code: code, Message: message, Err: err}
}

// GetExitCode extracts the exit code from an error. Rejected filters are command
// errors; everything else not already coded is a failure.
func GetExitCode(err error) int {
	if err == nil {
		return ExitSuccess
	}
	var exitErr *ExitError
	if errors.As(err, &exitErr) {
		return exitErr.Code
	}
	var verr *filters.ValidationError
	if errors.As(err, &verr) {
		return ExitCommandError
	}
	return ExitFailure
}

// OutputFormatter writes command results as text, JSON or YAML.
type OutputFormatter struct {
	Format    string
	Writer    io.Writer
	ErrWriter io.Writer
}

// CLIResponse is the envelope of JSON and YAML output.
type CLIResponse struct {
	Status string      `json:"status" yaml:"status"`
	Data   interface{} `json:"data,omitempty" yaml:"data,omitempty"`
	Error  *CLIError   `json:"error,omitempty" yaml:"error,omitempty"`
}

// CLIError is the error block of a failed command.
type CLIError struct {
	Code      int    `json:"code" yaml:"code"`
	Message   string `json:"message" yaml:"message"`
	Field     string `json:"field,omitempty" yaml:"field,omitempty"`
	RequestID string `json:"request_id,omitempty" yaml:"request_id,omitempty"`
}

// Success writes data. text is the human-readable rendering, used for the text format.
func (f *OutputFormatter) Success(data interface{}, text func(w io.Writer) error) error {
	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(CLIResponse{Status: "ok", Data: data})
	case "yaml":
		// Round-trip through JSON so field names match the API's.
		raw, err := json.Marshal(data)
		if err != nil {
			return err
		}
		var generic interface{}
		if err := json.Unmarshal(raw, &generic); err != nil {
			return err
		}
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(CLIResponse{Status: "ok", Data: generic})
	default:
		return text(f.Writer)
	}
}

// Error writes err. JSON and YAML go to Writer so scripts can parse them; text goes to ErrWriter.
func (f *OutputFormatter) Error(err error) error {
	cliErr := &CLIError{Code: GetExitCode(err), Message: err.Error()}
	var verr *filters.ValidationError
	if errors.As(err, &verr) {
		cliErr.Field = verr.Field
	}
	var uerr *client.UpstreamError
	if errors.As(err, &uerr) {
		cliErr.RequestID = uerr.RequestID
	}
	resp := CLIResponse{Status: "error", Error: cliErr}

	switch f.Format {
	case "json":
		enc := json.NewEncoder(f.Writer)
		enc.SetIndent("", "  ")
		return enc.Encode(resp)
	case "yaml":
		enc := yaml.NewEncoder(f.Writer)
		enc.SetIndent(2)
		defer enc.Close()
		return enc.Encode(resp)
	default:
		w := f.ErrWriter
		if w == nil {
			w = f.Writer
		}
		if cliErr.RequestID != "" {
			_, werr := fmt.Fprintf(w, "Error: %s (request %s)\n", cliErr.Message, cliErr.RequestID)
			return werr
		}
		_, werr := fmt.Fprintf(w, "Error: %s\n", cliErr.Message)
		return werr
	}
}

func writeListings(w io.Writer, items []models.Listing, favorites *client.Favorites) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "\tID\tTITLE\tPRICE\tDETAILS\tLOCATION")
	for _, l := range items {
		mark := " "
		if favorites != nil && favorites.Has(l.ID) {
			mark = "*"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%s\t%s\n", mark, l.ID, l.Title, l.Price, details(l), l.Location)
	}
	return tw.Flush()
}

func details(l models.Listing) string {
	switch {
	case l.Dwelling != nil:
		d := l.Dwelling
		parts := []string{fmt.Sprintf("%dbd/%dba", d.Bedrooms, d.Bathrooms), d.Category}
		if d.Furnished {
			parts = append(parts, "furnished")
		}
		return strings.Join(parts, " ")
	case l.Vehicle != nil:
		v := l.Vehicle
		return fmt.Sprintf("%s %s %d, %dkm", v.Make, v.Model, v.Year, v.Mileage)
	case l.Parcel != nil:
		p := l.Parcel
		return fmt.Sprintf("%g %s %s", p.Area, p.AreaUnit, p.Zoning)
	}
	return ""
}

func writeListing(w io.Writer, l *models.Listing) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintf(tw, "ID:\t%s\n", l.ID)
	fmt.Fprintf(tw, "Title:\t%s\n", l.Title)
	fmt.Fprintf(tw, "Kind:\t%s\n", l.Kind)
	fmt.Fprintf(tw, "Price:\t%d\n", l.Price)
	fmt.Fprintf(tw, "Status:\t%s\n", l.Status)
	fmt.Fprintf(tw, "Details:\t%s\n", details(*l))
	if l.Location != "" {
		fmt.Fprintf(tw, "Location:\t%s\n", l.Location)
	}
	if len(l.Features) > 0 {
		fmt.Fprintf(tw, "Features:\t%s\n", strings.Join(l.Features, ", "))
	}
	if l.Agent != nil {
		fmt.Fprintf(tw, "Agent:\t%s %s\n", l.Agent.Name, l.Agent.Phone)
	}
	for _, img := range l.Images {
		fmt.Fprintf(tw, "Image:\t%s\n", img.URL)
	}
	fmt.Fprintf(tw, "Views:\t%d\n", l.Views)
	return tw.Flush()
}
