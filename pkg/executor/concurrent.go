package executor

import (
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/xmos/xetest/pkg/command"
	"github.com/xmos/xetest/pkg/harness"
	"go.uber.org/zap"
)

var (
	colors = []color.Attribute{
		color.FgBlue,
		color.FgMagenta,
		color.FgCyan,
		color.FgWhite,
		color.FgHiMagenta,
		color.FgHiBlue,
		color.FgHiCyan,
	}
	faint = color.New(color.Faint).SprintFunc()
)

const timeFormat = "2006-01-02 15:04:05"

// Concurrent runs distinct cases on a fixed number of workers. Each case directory is handed to
// exactly one worker, so workers never share a build or bin directory.
type Concurrent struct {
	workerCount int
	workers     []*worker
}

type Options struct {
	WorkerCount int
	// Output receives the progress lines. Tool output is echoed there too unless Quiet is set.
	Output io.Writer
	Quiet  bool
}

func NewConcurrent(logger *zap.SugaredLogger, runner CaseRunner, opts Options) *Concurrent {
	executor := &Sequential{
		Runner: runner,
	}

	workerCount := max(opts.WorkerCount, 1)

	var printLock sync.Mutex

	workers := make([]*worker, workerCount)
	for i := 0; i < workerCount; i++ {
		workers[i] = &worker{
			id:        fmt.Sprintf("worker-%d", i),
			executor:  executor,
			logger:    logger,
			printer:   color.New(colors[i%len(colors)]),
			printLock: &printLock,
			output:    opts.Output,
			quiet:     opts.Quiet,
		}
	}

	return &Concurrent{
		workerCount: workerCount,
		workers:     workers,
	}
}

func (c Concurrent) Start(ctx context.Context, input <-chan harness.Case, result chan<- *harness.CaseResult) {
	for i := 0; i < c.workerCount; i++ {
		go c.workers[i].run(ctx, input, result)
	}
}

// RunCases feeds every case to the workers and returns the results in input order.
func (c Concurrent) RunCases(ctx context.Context, cases []harness.Case) []*harness.CaseResult {
	input := make(chan harness.Case)
	output := make(chan *harness.CaseResult, len(cases))
	c.Start(ctx, input, output)

	go func() {
		defer close(input)
		for _, tc := range cases {
			input <- tc
		}
	}()

	byName := make(map[string]*harness.CaseResult, len(cases))
	for range cases {
		res := <-output
		byName[res.Case.Dir] = res
	}

	results := make([]*harness.CaseResult, 0, len(cases))
	for _, tc := range cases {
		results = append(results, byName[tc.Dir])
	}

	return results
}

type worker struct {
	id        string
	executor  *Sequential
	logger    *zap.SugaredLogger
	printer   *color.Color
	printLock *sync.Mutex
	output    io.Writer
	quiet     bool
}

func (w worker) printf(format string, args ...interface{}) {
	if w.output == nil {
		return
	}

	w.printLock.Lock()
	defer w.printLock.Unlock()
	_, _ = w.printer.Fprintf(w.output, format, args...)
}

func (w worker) run(ctx context.Context, caseChannel <-chan harness.Case, results chan<- *harness.CaseResult) {
	for tc := range caseChannel {
		w.printf("[%s] Starting: %s\n", time.Now().Format(timeFormat), tc.Name)
		w.logger.Debugw("case picked up", "worker", w.id, "case", tc.Name)

		executionCtx := ctx
		if !w.quiet && w.output != nil {
			executionCtx = context.WithValue(ctx, command.KeyPrinter, &workerWriter{
				w:           w.output,
				lock:        w.printLock,
				caseName:    tc.Name,
				sprintfFunc: w.printer.SprintfFunc(),
			})
		}

		res := w.executor.RunSingleCase(executionCtx, tc)

		durationString := fmt.Sprintf("(%s)", res.Duration.Truncate(time.Millisecond).String())
		status := "Finished"
		if !res.Passed() {
			status = "Failed"
		}

		w.printf("[%s] %s: %s %s\n", time.Now().Format(timeFormat), status, tc.Name, faint(durationString))

		results <- res
	}
}

type workerWriter struct {
	w           io.Writer
	lock        *sync.Mutex
	caseName    string
	sprintfFunc func(format string, a ...interface{}) string
}

func (w *workerWriter) Write(p []byte) (int, error) {
	formatted := w.sprintfFunc("[%s] [%s] %s", time.Now().Format(timeFormat), w.caseName, string(p))

	w.lock.Lock()
	n, err := w.w.Write([]byte(formatted))
	w.lock.Unlock()
	if err != nil {
		return n, err
	}
	if n != len(formatted) {
		return n, io.ErrShortWrite
	}
	return len(p), nil
}
