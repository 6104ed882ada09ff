package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/silktrader/deadpoets/pkg/client"
	"github.com/silktrader/deadpoets/pkg/listing"
	"github.com/silktrader/deadpoets/pkg/moderation"
	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/session"
	"github.com/sirupsen/logrus"
)

const commandsUsage = `Commands:
  poems [search]         lists published poems, newest first
  pending                lists submissions awaiting review
  approve <id>           publishes a submission
  reject <id>            discards a submission
  promote <profile id>   grants or revokes the semi-admin role`

var errMissingId = errors.New("an id is required")

type console struct {
	gateway        *client.Client
	session        *session.Controller
	logger         logrus.FieldLogger
	out            io.Writer
	mainAdminEmail string
}

type command func(ctx context.Context, c *console, args []string) error

var commands = map[string]command{
	"poems":   listPoems,
	"pending": listPending,
	"approve": approve,
	"reject":  reject,
	"promote": promote,
}

func (c *console) moderator() (*moderation.Moderator, error) {
	return moderation.New(moderation.Config{
		Gateway:        c.gateway,
		Viewer:         c.session,
		Logger:         c.logger,
		MainAdminEmail: c.mainAdminEmail,
	})
}

func (c *console) table() *tabwriter.Writer {
	return tabwriter.NewWriter(c.out, 0, 4, 2, ' ', 0)
}

func day(t time.Time) string {
	return t.Format(time.DateOnly)
}

// listPoems pages through every poem matching the optional search.
func listPoems(ctx context.Context, c *console, args []string) error {
	browser, err := listing.Poems(ctx, c.gateway, listing.Config[notes.Note]{Logger: c.logger})
	if err != nil {
		return err
	}
	defer browser.Close()

	var search = strings.TrimSpace(strings.Join(args, " "))
	if err = browser.Update(ctx, func(filters *listing.Filters) { filters.Search = search }); err != nil {
		return err
	}
	for browser.View().HasMore {
		if err = browser.LoadMore(ctx); err != nil {
			return err
		}
	}

	var view = browser.View()
	var table = c.table()
	_, _ = fmt.Fprintln(table, "ID\tTITLE\tPOET\tAPPLAUSE\tPUBLISHED")
	for _, note := range view.Rows {
		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\t%d\t%s\n", note.Id, note.Title, note.PoetName, note.ApplauseCount, day(note.CreatedAt.Time()))
	}
	if err = table.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%d poems\n", view.Total)
	return err
}

// listPending shows the submissions queue as the dashboard does.
func listPending(ctx context.Context, c *console, _ []string) error {
	if !c.session.Snapshot().IsAdmin {
		return moderation.ErrNotAdmin
	}
	dashboard, err := listing.NewDashboard(ctx, listing.DashboardConfig{Gateway: c.gateway, Logger: c.logger})
	if err != nil {
		return err
	}
	defer dashboard.Close()

	if err = dashboard.Switch(ctx, listing.SubmissionsTab); err != nil {
		return err
	}
	for dashboard.Submissions.View().HasMore {
		if err = dashboard.LoadMore(ctx); err != nil {
			return err
		}
	}

	var view = dashboard.Submissions.View()
	var table = c.table()
	_, _ = fmt.Fprintln(table, "ID\tTITLE\tPOET\tSUBMITTED")
	for _, submission := range view.Rows {
		_, _ = fmt.Fprintf(table, "%s\t%s\t%s\t%s\n", submission.Id, submission.Title, submission.PoetName, day(submission.SubmittedAt.Time()))
	}
	if err = table.Flush(); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%d pending\n", view.Total)
	return err
}

func approve(ctx context.Context, c *console, args []string) error {
	if len(args) == 0 {
		return errMissingId
	}
	moderator, err := c.moderator()
	if err != nil {
		return err
	}
	note, err := moderator.Approve(ctx, args[0])
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "published %q as %s\n", note.Title, note.Id)
	return err
}

func reject(ctx context.Context, c *console, args []string) error {
	if len(args) == 0 {
		return errMissingId
	}
	moderator, err := c.moderator()
	if err != nil {
		return err
	}
	if err = moderator.Reject(ctx, args[0]); err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "rejected %s\n", args[0])
	return err
}

func promote(ctx context.Context, c *console, args []string) error {
	if len(args) == 0 {
		return errMissingId
	}
	moderator, err := c.moderator()
	if err != nil {
		return err
	}
	profile, err := c.gateway.GetProfile(ctx, args[0])
	if err != nil {
		return err
	}
	updated, err := moderator.ToggleSemiAdmin(ctx, profile)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(c.out, "%s is now %s\n", describe(updated.Name(), updated.Id), updated.Role)
	return err
}

func describe(name, id string) string {
	if name == "" {
		return id
	}
	return fmt.Sprintf("%s (%s)", name, id)
}
