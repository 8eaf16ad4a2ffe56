package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/hibiken/asynq"
	"github.com/spf13/cobra"
	"github.com/xuri/excelize/v2"

	"github.com/dharsanguruparan/RegiDesk/internal/batch"
	"github.com/dharsanguruparan/RegiDesk/internal/ledger"
	"github.com/dharsanguruparan/RegiDesk/internal/model"
	pdfutil "github.com/dharsanguruparan/RegiDesk/internal/pdf"
	"github.com/dharsanguruparan/RegiDesk/internal/queue"
	"github.com/dharsanguruparan/RegiDesk/internal/schedule"
)

var (
	labelStyle = lipgloss.NewStyle().Bold(true).Width(22)
	okStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("#42E7FF"))
	badStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#FF4473")).Bold(true)
)

func field(label string, value any) {
	fmt.Println(labelStyle.Render(label) + fmt.Sprint(value))
}

func outcome(o batch.Outcome) string {
	switch o {
	case batch.OutcomeFailed:
		return badStyle.Render(string(o))
	default:
		return okStyle.Render(string(o))
	}
}

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the pending staff batch and recent flushes",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			st, err := c.Status(cmd.Context())
			if err != nil {
				return err
			}
			field("Pending documents", st.PendingRefs)
			field("Pending submissions", st.PendingSubmissions)
			field("Flush running", st.Flushing)
			for _, next := range st.NextFlushes {
				field("Next flush", next.Format(time.RFC1123))
			}
			for _, r := range st.RecentFlushes {
				line := fmt.Sprintf("%s %s  %d docs / %d submissions", r.StartedAt.Format(time.DateTime), outcome(r.Outcome), r.Refs, r.Submissions)
				if r.Error != "" {
					line += "  " + r.Error
				}
				field("Flush "+r.Trigger, line)
			}
			return nil
		},
	}
}

func newFlushCmd() *cobra.Command {
	var viaQueue bool
	cmd := &cobra.Command{
		Use:   "flush",
		Short: "Send the pending batch to staff now",
		Long: `flush asks the server to drain the batch immediately. With --queue the request
is enqueued on the asynq flush queue instead, for deployments running the asynq
schedule backend.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if viaQueue {
				cfg, err := loadConfig()
				if err != nil {
					return err
				}
				qc := asynq.NewClient(asynq.RedisClientOpt{Addr: cfg.Redis.Addr, Password: cfg.Redis.Password, DB: cfg.Redis.DB})
				defer qc.Close()
				info, err := queue.EnqueueFlush(cmd.Context(), qc, "cli")
				if err != nil {
					return err
				}
				field("Enqueued", info.ID)
				return nil
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			r, err := c.Flush(cmd.Context())
			if r != nil && r.Outcome != "" {
				field("Outcome", outcome(r.Outcome))
				field("Documents", r.Refs)
				field("Submissions", r.Submissions)
				field("Still pending", r.Remaining)
				if r.Error != "" {
					field("Error", r.Error)
				}
			}
			return err
		},
	}
	cmd.Flags().BoolVar(&viaQueue, "queue", false, "Enqueue the flush through Redis instead of calling the server")
	return cmd
}

func newHistoryCmd() *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recent staff batch deliveries",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			reports, err := c.Flushes(cmd.Context(), limit)
			if err != nil {
				return err
			}
			for _, r := range reports {
				line := fmt.Sprintf("%-8s %-9s %3d docs %3d submissions", r.Trigger, outcome(r.Outcome), r.Refs, r.Submissions)
				if r.Error != "" {
					line += "  " + r.Error
				}
				field(r.StartedAt.Format(time.DateTime), line)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 10, "How many reports to list")
	return cmd
}

func newLedgerCmd() *cobra.Command {
	var (
		out  string
		show bool
	)
	cmd := &cobra.Command{
		Use:   "ledger",
		Short: "Download the registration ledger workbook",
		RunE: func(cmd *cobra.Command, _ []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			data, rows, err := c.Ledger(cmd.Context())
			if err != nil {
				return err
			}
			if err := os.WriteFile(out, data, 0o640); err != nil {
				return err
			}
			field("Saved", out)
			field("Rows", rows)
			if !show {
				return nil
			}
			wb, err := excelize.OpenReader(bytes.NewReader(data))
			if err != nil {
				return fmt.Errorf("open workbook: %w", err)
			}
			defer wb.Close()
			records, err := ledger.ReadRows(wb)
			if err != nil {
				return err
			}
			for _, rec := range records {
				field(rec["Submission Date"], fmt.Sprintf("%s <%s> %s", rec["Applicant Name"], rec["Email"], rec["Course Name"]))
			}
			return nil
		},
	}
	cmd.Flags().StringVarP(&out, "output", "o", "registrations.xlsx", "Where to write the workbook")
	cmd.Flags().BoolVar(&show, "show", false, "Print one line per registration")
	return cmd
}

func newSubmitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submit <form.json>",
		Short: "Post a registration from a JSON file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			raw, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			var rec model.SubmissionRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return fmt.Errorf("parse %s: %w", args[0], err)
			}
			c, err := newClient()
			if err != nil {
				return err
			}
			res, err := c.Submit(cmd.Context(), rec)
			if res != nil && res.Message != "" {
				field("Message", res.Message)
				if res.SubmissionID != "" {
					field("Submission", res.SubmissionID)
				}
				for _, f := range res.Fields {
					field("Invalid "+f.Field, f.Rule)
				}
			}
			return err
		},
	}
}

func newSubmissionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "submission <id>",
		Short: "Show the audit record of one submission",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := newClient()
			if err != nil {
				return err
			}
			d, err := c.Submission(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			field("Applicant", d.ApplicantName)
			field("Email", d.Email)
			field("Course", d.CourseName)
			field("Submitted", d.SubmittedAt.Format(time.RFC1123))
			field("Certificate", firstNonEmpty(d.CertificateURL, d.CertificatePath))
			field("Application form", firstNonEmpty(d.ApplicationURL, d.ApplicationPath))
			if d.ConfirmationError != nil {
				field("Confirmation", badStyle.Render(*d.ConfirmationError))
			}
			return nil
		},
	}
}

func newScheduleCmd() *cobra.Command {
	var days int
	cmd := &cobra.Command{
		Use:   "schedule",
		Short: "List upcoming flush times from the config",
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			loc, err := cfg.Location()
			if err != nil {
				return err
			}
			plan, err := schedule.NewPlan(cfg.Flush.Times, loc)
			if err != nil {
				return err
			}
			from := time.Now()
			for i := 0; i < days; i++ {
				next := plan.Next(from)
				for _, t := range next {
					field(t.Format("Mon 02 Jan"), t.Format("15:04 MST"))
				}
				if len(next) > 0 {
					from = next[len(next)-1]
				}
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&days, "rounds", 1, "How many rounds of slots to list")
	return cmd
}

func newInspectCmd() *cobra.Command {
	var showText bool
	cmd := &cobra.Command{
		Use:   "inspect <file.pdf>",
		Short: "Check a generated PDF and optionally print its text",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return err
			}
			pages, err := pdfutil.Verify(data)
			if err != nil {
				field("Status", badStyle.Render("invalid"))
				return err
			}
			field("Status", okStyle.Render("ok"))
			field("Pages", pages)
			field("Size", fmt.Sprintf("%d bytes", len(data)))
			if showText {
				text, err := pdfutil.ExtractText(data)
				if err != nil {
					return err
				}
				fmt.Println(strings.TrimSpace(text))
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&showText, "text", false, "Print the extracted text")
	return cmd
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
