package client

import (
	"context"
	"net/http"
	"net/url"

	"github.com/silktrader/deadpoets/pkg/notes"
	"github.com/silktrader/deadpoets/pkg/query"
	"github.com/silktrader/deadpoets/pkg/submissions"
)

func (c *Client) ListNotes(ctx context.Context, params query.Params) (result query.Result[notes.Note], err error) {
	err = c.do(ctx, http.MethodGet, "/notes", params.Values(), nil, &result)
	return result, err
}

func (c *Client) GetNote(ctx context.Context, id string) (note notes.Note, err error) {
	err = c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(id), nil, nil, &note)
	return note, err
}

func (c *Client) UpdateNote(ctx context.Context, id string, data notes.EditNoteData) (note notes.Note, err error) {
	err = c.do(ctx, http.MethodPut, "/notes/"+url.PathEscape(id), nil, data, &note)
	return note, err
}

func (c *Client) DeleteNote(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/notes/"+url.PathEscape(id), nil, nil, nil)
}

func (c *Client) DeleteNotes(ctx context.Context, ids []string) (int64, error) {
	var result notes.DeletedResult
	err := c.do(ctx, http.MethodDelete, "/notes", url.Values{"id": ids}, nil, &result)
	return result.Deleted, err
}

func (c *Client) HasApplauded(ctx context.Context, noteId string) (bool, error) {
	var status notes.ApplauseStatus
	err := c.do(ctx, http.MethodGet, "/notes/"+url.PathEscape(noteId)+"/applause", nil, nil, &status)
	return status.Applauded, err
}

// ToggleApplause flips the caller's applause; isApplauded is the state before the toggle.
func (c *Client) ToggleApplause(ctx context.Context, noteId string, isApplauded bool) (result notes.ApplauseResult, err error) {
	err = c.do(ctx, http.MethodPost, "/rpc/toggle_applause", nil,
		notes.ApplauseData{NoteId: noteId, IsApplauded: isApplauded}, &result)
	return result, err
}

func (c *Client) Submit(ctx context.Context, data submissions.SubmitData) (submission submissions.Submission, err error) {
	err = c.do(ctx, http.MethodPost, "/submissions", nil, data, &submission)
	return submission, err
}

func (c *Client) ListSubmissions(ctx context.Context, params query.Params) (result query.Result[submissions.Submission], err error) {
	err = c.do(ctx, http.MethodGet, "/submissions", params.Values(), nil, &result)
	return result, err
}

func (c *Client) GetSubmission(ctx context.Context, id string) (submission submissions.Submission, err error) {
	err = c.do(ctx, http.MethodGet, "/submissions/"+url.PathEscape(id), nil, nil, &submission)
	return submission, err
}

// ApproveSubmission publishes a submission and returns the new note; the platform does both in one transaction.
func (c *Client) ApproveSubmission(ctx context.Context, id string) (note notes.Note, err error) {
	err = c.do(ctx, http.MethodPost, "/submissions/"+url.PathEscape(id)+"/approve", nil, nil, &note)
	return note, err
}

func (c *Client) RejectSubmission(ctx context.Context, id string) error {
	return c.do(ctx, http.MethodDelete, "/submissions/"+url.PathEscape(id), nil, nil, nil)
}
