package views

import (
	"context"
	"errors"
	"time"

	"github.com/hackgods/clinic-appointment-lifecycle/internal/appointment"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/feedback"
	"github.com/hackgods/clinic-appointment-lifecycle/internal/report"
)

var errNoFeedback = errors.New("feedback service not configured")

// FeedbackReport is the feedback submitted within a date range.
type FeedbackReport struct {
	From     string
	To       string
	Entries  []feedback.Entry
	Location *time.Location
}

// FeedbackView lets patients submit feedback and staff read it.
type FeedbackView struct {
	views *Views
	actor appointment.Actor
}

// WithFeedback attaches the feedback service used by Feedback views.
func (v *Views) WithFeedback(svc *feedback.Service) *Views {
	v.feedback = svc
	return v
}

func (v *Views) Feedback(actor appointment.Actor) *FeedbackView {
	return &FeedbackView{views: v, actor: actor}
}

func (f *FeedbackView) staff() error {
	if f.views.feedback == nil {
		return errNoFeedback
	}
	if f.actor.Role != appointment.RoleDoctor && f.actor.Role != appointment.RoleAdmin {
		return appointment.ErrForbidden
	}
	return nil
}

func (f *FeedbackView) Submit(ctx context.Context, text string) (*feedback.Entry, error) {
	if f.views.feedback == nil {
		return nil, errNoFeedback
	}
	return f.views.feedback.Submit(ctx, f.actor, text)
}

// Page lists feedback newest first.
func (f *FeedbackView) Page(ctx context.Context, page int) (Page[feedback.Entry], error) {
	if err := f.staff(); err != nil {
		return Page[feedback.Entry]{}, err
	}
	if page < 1 {
		page = 1
	}
	size := f.views.pageSize
	entries, total, err := f.views.feedback.List(ctx, size, (page-1)*size)
	if err != nil {
		return Page[feedback.Entry]{}, err
	}
	return NewPage(entries, page, size, total), nil
}

// Report returns the feedback submitted between the YYYY-MM-DD bounds.
func (f *FeedbackView) Report(ctx context.Context, from, to string) (FeedbackReport, error) {
	if err := f.staff(); err != nil {
		return FeedbackReport{}, err
	}
	start, end, err := f.views.extractor.Range(from, to)
	if err != nil {
		return FeedbackReport{}, err
	}
	entries, err := f.views.feedback.Between(ctx, start, end)
	if err != nil {
		return FeedbackReport{}, err
	}
	if len(entries) == 0 {
		return FeedbackReport{}, &report.EmptyRangeError{From: from, To: to, Reason: "no matching feedback"}
	}
	return FeedbackReport{From: from, To: to, Entries: entries, Location: f.views.extractor.Location}, nil
}
