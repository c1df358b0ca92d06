package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"rentflow/lifecycle"
	"rentflow/maintenance"
)

func printRepairs(cmd *cobra.Command, v any, repairs ...maintenance.Request) error {
	return output(cmd, v, func(w io.Writer) {
		row(w, "ID", "LEASE", "TYPE", "PRIORITY", "STATUS", "SCHEDULED", "TITLE")
		for _, r := range repairs {
			scheduled := "-"
			if r.ScheduledDate != nil {
				scheduled = r.ScheduledDate.String()
			}
			row(w, r.ID, r.LeaseID, r.Type, r.Priority, r.Status, scheduled, r.Title)
		}
	})
}

func maintenanceCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "maintenance",
		Aliases: []string{"repair"},
		Short:   "Report and follow up repairs under a lease",
	}

	create := &cobra.Command{
		Use:   "create <lease-id>",
		Short: "Report a repair (tenants)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			title, _ := cmd.Flags().GetString("title")
			description, _ := cmd.Flags().GetString("description")
			kind, _ := cmd.Flags().GetString("type")
			priority, _ := cmd.Flags().GetString("priority")
			images, _ := cmd.Flags().GetStringSlice("image")
			r, err := e.app.Maintenance.Create(cmd.Context(), maintenance.CreateParams{
				LeaseID:     args[0],
				Title:       title,
				Description: description,
				Type:        lifecycle.MaintenanceType(kind),
				Priority:    lifecycle.MaintenancePriority(priority),
				Images:      images,
			})
			if err != nil {
				return err
			}
			return printRepairs(cmd, r, r)
		}),
	}
	create.Flags().String("title", "", "Short summary")
	create.Flags().String("description", "", "What is wrong")
	create.Flags().String("type", string(lifecycle.MaintenanceOther), "plumbing, electrical, hvac, appliance, structural, pest_control, cleaning or other")
	create.Flags().String("priority", string(lifecycle.PriorityMedium), "low, medium, high or emergency")
	create.Flags().StringSlice("image", nil, "Image URL (repeatable)")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("description")

	list := &cobra.Command{
		Use:   "list",
		Short: "List your repair requests",
		Args:  cobra.NoArgs,
		RunE: withEnv(func(cmd *cobra.Command, _ []string, e *env) error {
			as, _ := cmd.Flags().GetString("as")
			status, _ := cmd.Flags().GetString("status")
			propertyID, _ := cmd.Flags().GetString("property")
			page, err := e.app.Maintenance.List(cmd.Context(), maintenance.ListParams{
				As:         lifecycle.Party(as),
				Status:     lifecycle.MaintenanceStatus(status),
				PropertyID: propertyID,
				Query:      pageQuery(cmd),
			})
			if err != nil {
				return err
			}
			return printRepairs(cmd, page, page.Data...)
		}),
	}
	list.Flags().String("as", "", "tenant or landlord (defaults to your role)")
	list.Flags().String("status", "", "Filter by status")
	list.Flags().String("property", "", "Filter by property id")
	addPageFlags(list)

	show := &cobra.Command{
		Use:   "show <request-id>",
		Short: "Show one repair request",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			r, err := e.app.Maintenance.Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			return printRepairs(cmd, r, r)
		}),
	}

	edit := &cobra.Command{
		Use:   "edit <request-id>",
		Short: "Edit a pending request (tenants)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			params := maintenance.UpdateParams{RequestID: args[0]}
			if cmd.Flags().Changed("title") {
				v, _ := cmd.Flags().GetString("title")
				params.Title = &v
			}
			if cmd.Flags().Changed("description") {
				v, _ := cmd.Flags().GetString("description")
				params.Description = &v
			}
			if cmd.Flags().Changed("type") {
				v, _ := cmd.Flags().GetString("type")
				t := lifecycle.MaintenanceType(v)
				params.Type = &t
			}
			if cmd.Flags().Changed("priority") {
				v, _ := cmd.Flags().GetString("priority")
				p := lifecycle.MaintenancePriority(v)
				params.Priority = &p
			}
			r, err := e.app.Maintenance.Update(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printRepairs(cmd, r, r)
		}),
	}
	edit.Flags().String("title", "", "New summary")
	edit.Flags().String("description", "", "New description")
	edit.Flags().String("type", "", "New type")
	edit.Flags().String("priority", "", "New priority")

	status := &cobra.Command{
		Use:   "status <request-id> <status>",
		Short: "Move a request: approved, rejected, scheduled, in_progress, completed or cancelled",
		Args:  cobra.ExactArgs(2),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			params := maintenance.StatusParams{
				RequestID: args[0],
				Status:    lifecycle.MaintenanceStatus(strings.ToLower(args[1])),
			}
			params.Notes, _ = cmd.Flags().GetString("notes")
			if on, _ := cmd.Flags().GetString("on"); on != "" {
				d, err := lifecycle.ParseDate(on)
				if err != nil {
					return err
				}
				params.ScheduledDate = d
			}
			if cost, _ := cmd.Flags().GetString("cost"); cost != "" {
				v, err := decimal.NewFromString(cost)
				if err != nil {
					return fmt.Errorf("invalid cost %q: %w", cost, err)
				}
				params.Cost = &v
			}
			r, err := e.app.Maintenance.UpdateStatus(cmd.Context(), params)
			if err != nil {
				return err
			}
			return printRepairs(cmd, r, r)
		}),
	}
	status.Flags().String("on", "", "Visit date for scheduled, YYYY-MM-DD")
	status.Flags().String("cost", "", "Cost of the work")
	status.Flags().String("notes", "", "Notes for the tenant")

	feedback := &cobra.Command{
		Use:   "feedback <request-id>",
		Short: "Rate completed work (tenants)",
		Args:  cobra.ExactArgs(1),
		RunE: withEnv(func(cmd *cobra.Command, args []string, e *env) error {
			rating, _ := cmd.Flags().GetInt("rating")
			comment, _ := cmd.Flags().GetString("comment")
			r, err := e.app.Maintenance.Feedback(cmd.Context(), maintenance.FeedbackParams{
				RequestID: args[0],
				Rating:    rating,
				Feedback:  comment,
			})
			if err != nil {
				return err
			}
			return printRepairs(cmd, r, r)
		}),
	}
	feedback.Flags().Int("rating", 0, "1 to 5")
	feedback.Flags().String("comment", "", "Free-text feedback")
	_ = feedback.MarkFlagRequired("rating")

	cmd.AddCommand(create, list, show, edit, status, feedback)
	return cmd
}
