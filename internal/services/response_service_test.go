package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/soaringjerry/modern360/internal/models"
)

type responseFixture struct {
	store    *stubStore
	svc      *ResponseService
	a        *models.Assessment
	assessee *models.User
	peer     *models.User
	selfTok  string
	peerTok  string
}

func newResponseFixture(t *testing.T) *responseFixture {
	t.Helper()
	f := newInviteFixture(t)
	if _, err := f.svc.IssueInvitations(context.Background(), f.a.ID, 0); err != nil {
		t.Fatalf("IssueInvitations returned error: %v", err)
	}
	svc := NewResponseService(f.store, ProjectionSchema{}, nil, nil)
	svc.now = func() time.Time { return time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC) }
	return &responseFixture{store: f.store, svc: svc, a: f.a, assessee: f.assessee, peer: f.peer, selfTok: "tok-1", peerTok: "tok-2"}
}

func TestSubmitWithTokenRecordsResponseAndDetail(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": float64(4), "q2": "Great", "note": "kept"})
	if err != nil {
		t.Fatalf("SubmitWithToken returned error: %v", err)
	}
	if resp.Type != models.ResponseAssessor || resp.UserID != f.peer.ID || resp.ParticipantID == 0 {
		t.Fatalf("unexpected response %+v", resp)
	}
	if len(f.store.responses) != 1 || len(f.store.details) != 1 {
		t.Fatalf("responses=%d details=%d, want 1 each", len(f.store.responses), len(f.store.details))
	}
	d := f.store.details[0]
	if d.ResponseID != resp.ID || d.RespondentEmail != f.peer.Email || d.AssessmentTitle != f.a.Title {
		t.Fatalf("detail not paired with response: %+v", d)
	}
	if d.Columns["q1"] != "4" || d.Columns["q2"] != "Great" {
		t.Fatalf("unexpected columns %v", d.Columns)
	}
	if _, ok := d.Columns["note"]; ok {
		t.Fatalf("unmapped keys must not be projected")
	}
	if resp.Answers["note"] != "kept" {
		t.Fatalf("authoritative answers lost a key: %v", resp.Answers)
	}

	_, err = f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("second submission error = %v, want conflict", err)
	}
	if len(f.store.responses) != 1 || f.store.responses[0].Answers["q1"] != "4" {
		t.Fatalf("conflicting submission changed stored data")
	}
}

func TestSubmitWithTokenErrors(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()

	_, err := f.svc.SubmitWithToken(ctx, "nope", map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorNotFound {
		t.Fatalf("unknown token error = %v, want not_found", err)
	}
	_, err = f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("empty answers error = %v, want invalid", err)
	}
	f.store.recordErr = models.ErrAlreadyCompleted
	_, err = f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("lost race error = %v, want conflict", err)
	}
	f.store.recordErr = errors.New("disk full")
	if _, err = f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": "1"}); err == nil {
		t.Fatalf("expected store error")
	}
	f.store.recordErr = nil
	f.store.assessments[f.a.ID].IsActive = false
	_, err = f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorInvalid {
		t.Fatalf("inactive assessment error = %v, want invalid", err)
	}
}

func TestSelfTokenThenSessionIsConflict(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()

	resp, err := f.svc.SubmitWithToken(ctx, f.selfTok, map[string]any{"q1": "5"})
	if err != nil {
		t.Fatalf("SubmitWithToken returned error: %v", err)
	}
	if resp.Type != models.ResponseSelf || resp.UserID != f.assessee.ID {
		t.Fatalf("self link should yield a self response: %+v", resp)
	}
	view, err := f.svc.SelfAssessment(ctx, f.assessee, f.a.ID)
	if err != nil {
		t.Fatalf("SelfAssessment returned error: %v", err)
	}
	if !view.AlreadyCompleted || view.Questions != nil {
		t.Fatalf("expected completed view, got %+v", view)
	}
	_, err = f.svc.SubmitSelfAssessment(ctx, f.assessee, f.a.ID, map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("error = %v, want conflict", err)
	}
}

func TestSessionSelfSubmissionVoidsSelfLink(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()

	view, err := f.svc.SelfAssessment(ctx, f.assessee, f.a.ID)
	if err != nil {
		t.Fatalf("SelfAssessment returned error: %v", err)
	}
	if view.AlreadyCompleted || len(view.Questions) != 1 {
		t.Fatalf("unexpected view %+v", view)
	}
	if _, err := f.svc.SubmitSelfAssessment(ctx, f.assessee, f.a.ID, map[string]any{"q1": "3"}); err != nil {
		t.Fatalf("SubmitSelfAssessment returned error: %v", err)
	}
	_, err = f.svc.SubmitWithToken(ctx, f.selfTok, map[string]any{"q1": "1"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("self link after session submission error = %v, want conflict", err)
	}
	if len(f.store.responses) != 1 {
		t.Fatalf("responses = %d, want 1", len(f.store.responses))
	}
}

func TestSelfAccessDenied(t *testing.T) {
	f := newResponseFixture(t)
	_, err := f.svc.SelfAssessment(context.Background(), f.peer, f.a.ID)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorForbidden {
		t.Fatalf("error = %v, want forbidden", err)
	}
	_, err = f.svc.SelfAssessment(context.Background(), nil, f.a.ID)
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorUnauthorized {
		t.Fatalf("error = %v, want unauthorized", err)
	}
}

func TestOwnSelfAssessmentWithoutRoster(t *testing.T) {
	store := newStubStore()
	u := store.addUser("solo@example.com", "Solo")
	a := store.addAssessment("Solo check", u.ID)
	a.IsSelfAssessment = true
	svc := NewResponseService(store, ProjectionSchema{}, nil, nil)
	ctx := context.Background()

	resp, err := svc.SubmitSelfAssessment(ctx, u, a.ID, map[string]any{"q1": "2"})
	if err != nil {
		t.Fatalf("SubmitSelfAssessment returned error: %v", err)
	}
	if resp.ParticipantID != 0 || resp.InvitationID != 0 || resp.Type != models.ResponseSelf {
		t.Fatalf("unexpected response %+v", resp)
	}
	_, err = svc.SubmitSelfAssessment(ctx, u, a.ID, map[string]any{"q1": "2"})
	if se, ok := AsServiceError(err); !ok || se.Code != ErrorConflict {
		t.Fatalf("error = %v, want conflict", err)
	}
}

func TestRebuildProjections(t *testing.T) {
	f := newResponseFixture(t)
	ctx := context.Background()
	if _, err := f.svc.SubmitWithToken(ctx, f.peerTok, map[string]any{"q1": "4", "alt": "x"}); err != nil {
		t.Fatalf("SubmitWithToken returned error: %v", err)
	}
	f.store.details = nil

	schema, err := NewProjectionSchema(map[string]string{"alt": "q39", "q1": "q1"})
	if err != nil {
		t.Fatalf("NewProjectionSchema returned error: %v", err)
	}
	f.svc.schema = schema
	n, err := f.svc.RebuildProjections(ctx, f.a.ID)
	if err != nil {
		t.Fatalf("RebuildProjections returned error: %v", err)
	}
	if n != 1 || len(f.store.details) != 1 {
		t.Fatalf("rebuilt %d rows, store has %d", n, len(f.store.details))
	}
	d := f.store.details[0]
	if d.Columns["q39"] != "x" || d.Columns["q1"] != "4" || d.RespondentEmail != f.peer.Email {
		t.Fatalf("unexpected rebuilt detail %+v", d)
	}
}
