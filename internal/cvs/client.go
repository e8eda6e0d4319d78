package cvs

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/emilianohg/cvsbrowse/internal/models"
)

// invalidOptionS is what servers too old for `rlog -S` answer.
const invalidOptionS = "invalid option -- S"

const rlogDateLayout = "2006-01-02 15:04:05 -0700"

var (
	// ErrInvalidFilterOption means the server rejected the -S option of rlog.
	ErrInvalidFilterOption = errors.New("cvs server rejected rlog option -S")
	// ErrCancelled is returned when the context ends before cvs finishes.
	ErrCancelled = errors.New("cvs operation cancelled")
)

// CommandError aggregates the error lines reported by a failed cvs run.
type CommandError struct {
	Args   []string
	Errors *multierror.Error
}

func (e *CommandError) Error() string {
	return fmt.Sprintf("cvs %s failed: %v", strings.Join(e.Args, " "), e.Errors)
}

func (e *CommandError) Unwrap() error {
	return e.Errors.ErrorOrNil()
}

// Messages returns the individual error messages.
func (e *CommandError) Messages() []string {
	var out []string
	for _, err := range e.Errors.WrappedErrors() {
		out = append(out, err.Error())
	}
	return out
}

// Runner executes the cvs binary.
type Runner interface {
	Run(ctx context.Context, args []string, stdout io.Writer) (stderr string, err error)
}

// ExecRunner runs cvs as a subprocess.
type ExecRunner struct {
	Binary string
	Dir    string
}

func (r ExecRunner) Run(ctx context.Context, args []string, stdout io.Writer) (string, error) {
	binary := r.Binary
	if binary == "" {
		binary = "cvs"
	}
	cmd := exec.CommandContext(ctx, binary, args...)
	cmd.Dir = r.Dir
	cmd.Stdout = stdout
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stderr.String(), err
}

// HistoryQuery selects the revisions to load for one module.
type HistoryQuery struct {
	CvsRoot  string
	Module   string
	From     *time.Time
	To       *time.Time
	Revision string
}

func (q HistoryQuery) args(suppressEmpty bool) []string {
	args := []string{"-d", q.CvsRoot, "-f", "rlog"}
	if suppressEmpty {
		args = append(args, "-S")
	}
	if q.From != nil || q.To != nil {
		var from, to string
		if q.From != nil {
			from = q.From.UTC().Format(rlogDateLayout)
		}
		if q.To != nil {
			to = q.To.UTC().Format(rlogDateLayout)
		}
		args = append(args, "-d", from+"<"+to)
	}
	if q.Revision != "" {
		args = append(args, "-r"+q.Revision)
	}
	return append(args, q.Module)
}

// Client loads rlog history through a Runner.
type Client struct {
	runner Runner
	logger logrus.FieldLogger

	mu         sync.Mutex
	noSuppress map[string]bool
}

func NewClient(runner Runner, logger logrus.FieldLogger) *Client {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	return &Client{
		runner:     runner,
		logger:     logger,
		noSuppress: map[string]bool{},
	}
}

// LoadHistory runs rlog for the query and passes each file record to consume.
// When the server does not understand -S, the option is disabled for that
// CVSROOT and the query is retried once.
func (c *Client) LoadHistory(ctx context.Context, q HistoryQuery, consume func(models.LogInformation) error) error {
	err := c.loadOnce(ctx, q, consume)
	if !errors.Is(err, ErrInvalidFilterOption) {
		return err
	}

	c.logger.WithFields(logrus.Fields{
		"cvsroot": q.CvsRoot,
	}).Warn("Server rejected rlog -S, retrying without it")
	c.disableSuppressEmpty(q.CvsRoot)
	return c.loadOnce(ctx, q, consume)
}

func (c *Client) loadOnce(ctx context.Context, q HistoryQuery, consume func(models.LogInformation) error) error {
	suppress := c.suppressEmpty(q.CvsRoot)
	args := q.args(suppress)

	var stdout bytes.Buffer
	stderr, runErr := c.runner.Run(ctx, args, &stdout)
	if ctxErr := ctx.Err(); ctxErr != nil {
		return fmt.Errorf("%w: %v", ErrCancelled, ctxErr)
	}
	if runErr != nil {
		cmdErr := commandError(args, stderr, runErr)
		if suppress && mentionsInvalidOptionS(cmdErr) {
			return fmt.Errorf("%w: %v", ErrInvalidFilterOption, cmdErr)
		}
		return cmdErr
	}

	repository := ""
	if root, err := ParseRoot(q.CvsRoot); err == nil {
		repository = root.Repository
	}
	return ParseRlog(&stdout, repository, func(info models.LogInformation) error {
		if err := ctx.Err(); err != nil {
			return fmt.Errorf("%w: %v", ErrCancelled, err)
		}
		return consume(info)
	})
}

func (c *Client) suppressEmpty(cvsRoot string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return !c.noSuppress[cvsRoot]
}

func (c *Client) disableSuppressEmpty(cvsRoot string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.noSuppress[cvsRoot] = true
}

func commandError(args []string, stderr string, runErr error) *CommandError {
	var errs *multierror.Error
	for _, line := range strings.Split(stderr, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || isProgressLine(line) {
			continue
		}
		errs = multierror.Append(errs, errors.New(line))
	}
	errs = multierror.Append(errs, runErr)
	return &CommandError{Args: args, Errors: errs}
}

// isProgressLine matches the informational "rlog: Logging <dir>" lines.
func isProgressLine(line string) bool {
	return strings.Contains(line, "rlog: Logging ")
}

func mentionsInvalidOptionS(err *CommandError) bool {
	for _, msg := range err.Messages() {
		if strings.Contains(msg, invalidOptionS) {
			return true
		}
	}
	return false
}
