package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"resume-pipeline/internal/applications"
	"resume-pipeline/internal/bootstrap"
	"resume-pipeline/internal/extract"
	"resume-pipeline/internal/shared/config"
	"resume-pipeline/internal/shared/telemetry"
)

type runOptions struct {
	resumePath  string
	jobPath     string
	answersPath string
	company     string
	companyURL  string
	cvLanguage  string
	jobLanguage string
	candidate   string
	outDir      string
	interactive bool
}

func newRunCmd() *cobra.Command {
	opts := runOptions{}
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run one application end to end",
		Long: `Run one application end to end with in-memory stores.

Example:
  pipeline run --resume cv.txt --job posting.txt --company Acme --company-url acme.example
  pipeline run --resume cv.txt --job posting.txt --company Acme --cv-lang en --job-lang he --answers answers.yaml`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return runPipeline(ctx, opts, cmd.InOrStdin(), cmd.OutOrStdout())
		},
	}
	f := cmd.Flags()
	f.StringVar(&opts.resumePath, "resume", "", "path to the résumé (PDF, DOCX or text)")
	f.StringVar(&opts.jobPath, "job", "", "path to the job posting text")
	f.StringVar(&opts.answersPath, "answers", "", "YAML file of gap answers keyed by question id")
	f.StringVar(&opts.company, "company", "", "company name")
	f.StringVar(&opts.companyURL, "company-url", "", "company website used for research")
	f.StringVar(&opts.cvLanguage, "cv-lang", "", "language of the résumé (detected when empty)")
	f.StringVar(&opts.jobLanguage, "job-lang", "", "language of the job posting (detected when empty)")
	f.StringVar(&opts.candidate, "candidate", "cli", "candidate id the evidence is stored under")
	f.StringVar(&opts.outDir, "out", "", "directory to export artifacts into")
	f.BoolVar(&opts.interactive, "interactive", true, "prompt on stdin for questions the answers file does not cover")
	_ = cmd.MarkFlagRequired("resume")
	_ = cmd.MarkFlagRequired("job")
	_ = cmd.MarkFlagRequired("company")
	return cmd
}

func runPipeline(ctx context.Context, opts runOptions, in io.Reader, out io.Writer) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if err := telemetry.Init(cfg.LogLevel); err != nil {
		return err
	}
	defer telemetry.Sync()

	// The CLI never touches shared infrastructure.
	cfg.Env = "local"
	cfg.DatabaseURL = ""
	cfg.RabbitMQURL = ""
	cfg.NATSURL = ""
	cfg.ObjectStoreType = "local"
	if opts.outDir != "" {
		cfg.LocalStoreDir = opts.outDir
	}

	raw, err := os.ReadFile(opts.resumePath)
	if err != nil {
		return fmt.Errorf("read résumé: %w", err)
	}
	resume, err := extract.Text(ctx, raw, "", filepath.Base(opts.resumePath))
	if err != nil {
		return err
	}
	job, err := os.ReadFile(opts.jobPath)
	if err != nil {
		return fmt.Errorf("read job posting: %w", err)
	}
	provided, err := loadAnswers(opts.answersPath)
	if err != nil {
		return err
	}

	app, err := bootstrap.Build(cfg)
	if err != nil {
		return err
	}
	defer app.Close()
	svc := app.Applications

	created, err := svc.Create(ctx, applications.CreateInput{
		CandidateID: opts.candidate,
		CompanyName: opts.company,
		CompanyURL:  opts.companyURL,
		JobPosting:  string(job),
		ResumeText:  resume,
		CVLanguage:  opts.cvLanguage,
		JobLanguage: opts.jobLanguage,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "application %s (languages: %s)\n", created.ID, strings.Join(created.OutputLanguages, ", "))

	res, err := svc.Advance(ctx, created.ID)
	if err != nil {
		return err
	}
	if res.Status == applications.StatusAwaitingGapAnswers {
		answers, err := collectAnswers(res.Questions, provided, opts.interactive, in, out)
		if err != nil {
			return err
		}
		if _, err := svc.SubmitAnswers(ctx, created.ID, answers); err != nil {
			return err
		}
		if res, err = svc.Advance(ctx, created.ID); err != nil {
			return err
		}
	}
	return report(ctx, svc, res, out)
}

func report(ctx context.Context, svc *applications.Service, res applications.StageResult, out io.Writer) error {
	fmt.Fprintf(out, "\nstatus: %s\n", res.Status)
	if res.Status == applications.StatusFailed {
		fmt.Fprintf(out, "failed at %s: %s\n", res.FailedStage, res.Error)
	}

	artifacts, err := svc.Artifacts(ctx, res.ApplicationID)
	if err != nil {
		return err
	}
	for _, a := range artifacts {
		fmt.Fprintf(out, "\n=== %s [%s] tier %d %s\n", a.Type, a.Language, int(a.Tier), a.Status)
		for _, reason := range a.Reasons {
			fmt.Fprintf(out, "  ! %s\n", reason)
		}
		if a.ExportKey != "" {
			fmt.Fprintf(out, "  exported: %s\n", a.ExportKey)
		}
		fmt.Fprintln(out, a.Text)
	}

	summary, err := svc.Cost(ctx, res.ApplicationID)
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "\ncost: $%.4f over %d calls (%d failed)\n", summary.TotalUSD, summary.Calls, summary.FailedCalls)
	for lang, usd := range summary.ByLanguage {
		fmt.Fprintf(out, "  %s: $%.4f\n", lang, usd)
	}
	return res.Failure()
}
