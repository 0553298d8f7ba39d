package cli

import (
	"fmt"
	"io"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/quillci/matrun/internal/history"
	"github.com/quillci/matrun/pkg/runner"
	"github.com/quillci/matrun/pkg/runner/measure"
)

func statusCell(status string) string {
	switch runner.Status(status) {
	case runner.StatusSuccess:
		return text.FgGreen.Sprint(status)
	case runner.StatusFailure:
		return text.FgRed.Sprint(status)
	case runner.StatusCancelled:
		return text.FgYellow.Sprint(status)
	default:
		return text.FgHiBlack.Sprint(status)
	}
}

func renderRun(w io.Writer, res *runner.RunResult, msr *measure.Measure) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"JOB", "STATUS", "ELAPSED", "AVG STEP"})

	for _, job := range res.Jobs {
		avg := ""
		if msr != nil {
			if mt := msr.Job(job.ID); mt != nil && mt.AvgStep() > 0 {
				avg = mt.AvgStep().String()
			}
		}
		elapsed := ""
		if job.Elapsed > 0 {
			elapsed = job.Elapsed.String()
		}
		t.AppendRow(table.Row{job.ID, statusCell(string(job.Status)), elapsed, avg})
	}
	t.AppendFooter(table.Row{res.Workflow, statusCell(string(res.Status)), res.Elapsed.String(), ""})
	t.Render()

	for _, job := range res.Failed() {
		for _, step := range job.Steps {
			if step.Status != runner.StatusFailure {
				continue
			}
			fmt.Fprintf(w, "\n%s / %s (exit %d):\n%s", job.ID, step.Name, step.ExitCode, step.Output)
		}
	}
}

func renderHistory(w io.Writer, runs []history.RunSummary) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.AppendHeader(table.Row{"RUN", "WORKFLOW", "EVENT", "BRANCH", "STATUS", "STARTED", "ELAPSED", "JOBS"})

	for _, run := range runs {
		t.AppendRow(table.Row{
			run.ID, run.Workflow, run.Event, run.Branch,
			statusCell(run.Status),
			run.Started.Local().Format("2006-01-02 15:04:05"),
			run.Elapsed.String(),
			run.Jobs,
		})
	}
	t.Render()
}
