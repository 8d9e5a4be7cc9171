package main

import (
	"context"
	"fmt"
	"time"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"recruitline/internal/domain"
	"recruitline/internal/engine"
	"recruitline/internal/slots"
)

func interviewCmd() *cobra.Command {
	c := &cobra.Command{Use: "interview", Aliases: []string{"interviews"}, Short: "Manage interviews and trials"}
	c.AddCommand(interviewListCmd())
	c.AddCommand(interviewShowCmd())
	c.AddCommand(interviewRescheduleCmd())
	c.AddCommand(interviewCancelCmd())
	c.AddCommand(interviewActionCmd("complete", "Mark an interview completed", engine.Engine.Complete))
	c.AddCommand(interviewActionCmd("no-show", "Mark an interview as a no-show and withdraw the candidate", engine.Engine.MarkNoShow))
	c.AddCommand(interviewFeedbackCmd())
	return c
}

func interviewRows(items []domain.Interview) []table.Row {
	rows := make([]table.Row, 0, len(items))
	for _, iv := range items {
		rec := ""
		if iv.Feedback != nil {
			rec = fmt.Sprintf("%s (%d)", iv.Feedback.Recommendation, iv.Feedback.Rating)
		}
		rows = append(rows, table.Row{iv.ID, iv.CandidateName, iv.Type, iv.Status, formatTime(iv.ScheduledDate), iv.Duration, rec})
	}
	return rows
}

func interviewListCmd() *cobra.Command {
	var q engine.InterviewQuery
	cmd := &cobra.Command{
		Use:   "list",
		Short: "List interviews",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.ListInterviews(ctx, q)
				if err != nil {
					return err
				}
				return renderTable(items, table.Row{"ID", "Candidate", "Type", "Status", "When (UTC)", "Min", "Feedback"}, interviewRows(items))
			})
		},
	}
	cmd.Flags().StringVar(&q.CandidateID, "candidate", "", "candidate id")
	cmd.Flags().StringVar(&q.Status, "status", "", "scheduled, completed, cancelled, no_show or lapsed")
	cmd.Flags().StringVar(&q.Type, "type", "", "interview or trial")
	cmd.Flags().IntVar(&q.Limit, "limit", 50, "max rows")
	return cmd
}

func interviewShowCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "show <id>",
		Short: "Show an interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.GetInterview(ctx, args[0])
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
}

func interviewRescheduleCmd() *cobra.Command {
	var at string
	cmd := &cobra.Command{
		Use:   "reschedule <id>",
		Short: "Move a scheduled interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			when, err := time.Parse(time.RFC3339, at)
			if err != nil {
				return fmt.Errorf("--at must be RFC3339, e.g. 2024-03-05T10:00:00Z")
			}
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.Reschedule(ctx, args[0], when, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
	cmd.Flags().StringVar(&at, "at", "", "new start time (RFC3339)")
	_ = cmd.MarkFlagRequired("at")
	return cmd
}

func interviewCancelCmd() *cobra.Command {
	var reason string
	cmd := &cobra.Command{
		Use:   "cancel <id>",
		Short: "Cancel a scheduled interview",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.Cancel(ctx, args[0], reason, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
	cmd.Flags().StringVar(&reason, "reason", "", "cancellation reason")
	return cmd
}

type interviewAction func(engine.Engine, context.Context, string, engine.Actor) (domain.Interview, error)

func interviewActionCmd(use, short string, action interviewAction) *cobra.Command {
	return &cobra.Command{
		Use:   use + " <id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := action(e, ctx, args[0], currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
}

func interviewFeedbackCmd() *cobra.Command {
	var in engine.FeedbackInput
	cmd := &cobra.Command{
		Use:   "feedback <id>",
		Short: "Submit or replace interviewer feedback",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.SubmitFeedback(ctx, args[0], in, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
	cmd.Flags().IntVar(&in.Rating, "rating", 0, "rating from 1 to 5")
	cmd.Flags().StringVar(&in.Recommendation, "recommendation", "", "hire, maybe or do_not_hire")
	cmd.Flags().StringVar(&in.Strengths, "strengths", "", "strengths")
	cmd.Flags().StringVar(&in.Weaknesses, "weaknesses", "", "weaknesses")
	cmd.Flags().StringVar(&in.Comments, "comments", "", "comments")
	_ = cmd.MarkFlagRequired("rating")
	_ = cmd.MarkFlagRequired("recommendation")
	return cmd
}

func decisionCmd() *cobra.Command {
	c := &cobra.Command{Use: "decision", Aliases: []string{"decisions"}, Short: "Review feedback and decide"}
	c.AddCommand(&cobra.Command{
		Use:   "queue",
		Short: "Candidates whose latest interview has feedback",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.DecisionQueue(ctx)
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, d := range items {
					rows = append(rows, table.Row{d.CandidateID, d.CandidateName, d.InterviewType, d.Recommendation, d.Rating, d.State})
				}
				return renderTable(items, table.Row{"Candidate", "Name", "Basis", "Recommendation", "Rating", "State"}, rows)
			})
		},
	})
	c.AddCommand(decisionActionCmd("approve", "Hire a candidate", engine.Engine.Approve))
	c.AddCommand(decisionActionCmd("reject", "Reject a candidate", engine.Engine.Reject))
	c.AddCommand(decisionActionCmd("schedule-trial", "Move a candidate to a trial and issue a trial booking link", engine.Engine.ScheduleTrial))
	return c
}

type decisionAction func(engine.Engine, context.Context, string, engine.DecisionOptions, engine.Actor) (engine.DecisionResult, error)

func decisionActionCmd(use, short string, action decisionAction) *cobra.Command {
	var opts engine.DecisionOptions
	cmd := &cobra.Command{
		Use:   use + " <candidate-id>",
		Short: short,
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				res, err := action(e, ctx, args[0], opts, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(res)
			})
		},
	}
	cmd.Flags().StringVar(&opts.Note, "note", "", "decision note")
	if use == "reject" {
		cmd.Flags().BoolVar(&opts.Notify, "notify", false, "send the rejection message")
	}
	return cmd
}

func bookingCmd() *cobra.Command {
	c := &cobra.Command{Use: "booking", Short: "Self-service booking links and slots"}

	var linkType string
	var notify bool
	link := &cobra.Command{
		Use:   "link <candidate-id>",
		Short: "Issue a booking link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				l, err := e.CreateBookingLink(ctx, args[0], linkType, notify, currentActor())
				if err != nil {
					return err
				}
				return printJSONOrTable(l)
			})
		},
	}
	link.Flags().StringVar(&linkType, "type", string(domain.InterviewTypeInterview), "interview or trial")
	link.Flags().BoolVar(&notify, "notify", false, "send the link to the candidate")

	links := &cobra.Command{
		Use:   "links <candidate-id>",
		Short: "List a candidate's booking links",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				items, err := e.Repo.ListBookingLinks(ctx, nil, args[0])
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, l := range items {
					rows = append(rows, table.Row{l.Token, l.InterviewType, l.Status, formatTime(l.ExpiresAt)})
				}
				return renderTable(items, table.Row{"Token", "Type", "Status", "Expires (UTC)"}, rows)
			})
		},
	}

	var slotDate, slotType, token string
	slotsCmd := &cobra.Command{
		Use:   "slots",
		Short: "Show the slot grid for a day",
		RunE: func(cmd *cobra.Command, args []string) error {
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				var items []slots.TimeSlot
				var err error
				if token != "" {
					_, items, err = e.SlotsForLink(ctx, token, slotDate)
				} else {
					items, err = e.AvailableSlots(ctx, slotDate, slotType)
				}
				if err != nil {
					return err
				}
				rows := make([]table.Row, 0, len(items))
				for _, s := range items {
					rows = append(rows, table.Row{formatTime(s.Start), formatTime(s.End), s.Available})
				}
				return renderTable(items, table.Row{"Start", "End", "Available"}, rows)
			})
		},
	}
	slotsCmd.Flags().StringVar(&slotDate, "date", "", "day (YYYY-MM-DD) in the scheduling timezone")
	slotsCmd.Flags().StringVar(&slotType, "type", string(domain.InterviewTypeInterview), "interview or trial")
	slotsCmd.Flags().StringVar(&token, "token", "", "show slots as the holder of this booking link")
	_ = slotsCmd.MarkFlagRequired("date")

	var req engine.BookingRequest
	book := &cobra.Command{
		Use:   "book <token>",
		Short: "Book a slot with a booking link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Token = args[0]
			return withEngine(cmd.Context(), func(ctx context.Context, e engine.Engine) error {
				iv, err := e.BookInterview(ctx, req)
				if err != nil {
					return err
				}
				return printJSONOrTable(iv)
			})
		},
	}
	book.Flags().StringVar(&req.Date, "date", "", "day (YYYY-MM-DD)")
	book.Flags().StringVar(&req.Time, "time", "", "start time (HH:MM)")
	_ = book.MarkFlagRequired("date")
	_ = book.MarkFlagRequired("time")

	c.AddCommand(link, links, slotsCmd, book)
	return c
}
