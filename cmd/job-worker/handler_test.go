package main

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spec-forge-api/internal/application/specgen"
	"spec-forge-api/internal/domain/entity"
	"spec-forge-api/internal/domain/service"
	"spec-forge-api/internal/infrastructure/messaging"
	apperrors "spec-forge-api/pkg/errors"
)

type fakeGenerator struct {
	err          error
	calls        int
	projectID    string
	integrations []string
}

func (f *fakeGenerator) Generate(_ context.Context, projectID, _ string, integrations []string) (*specgen.Result, error) {
	f.calls++
	f.projectID = projectID
	f.integrations = integrations
	if f.err != nil {
		return nil, f.err
	}
	doc := entity.NewGeneratedDocument(projectID)
	doc.ID = "doc-1"
	return &specgen.Result{Document: doc, Report: specgen.Report{Score: 90}}, nil
}

func jobMessage(t *testing.T, job service.GenerateJob) *messaging.Message {
	t.Helper()
	msg, err := messaging.NewMessage("msg-1", messaging.MessageTypeGenerate, job.OwnerID, job.ProjectID, job)
	require.NoError(t, err)
	return msg
}

func TestGenerateHandler(t *testing.T) {
	job := service.GenerateJob{
		JobID:        "job-1",
		ProjectID:    "p-1",
		OwnerID:      "u-1",
		Integrations: []string{"Stripe"},
		RequestedAt:  time.Now(),
	}

	tests := []struct {
		name          string
		err           error
		wantErr       bool
		wantPermanent bool
	}{
		{name: "success"},
		{name: "below threshold is acked", err: &specgen.BelowThresholdError{DocumentID: "doc-1", Score: 40}},
		{name: "not ready is permanent", err: apperrors.ErrNotReady.WithDetail("status is chatting"), wantErr: true, wantPermanent: true},
		{name: "forbidden is permanent", err: apperrors.ErrForbidden, wantErr: true, wantPermanent: true},
		{name: "missing project is permanent", err: apperrors.ErrProjectNotFound, wantErr: true, wantPermanent: true},
		{name: "malformed output is permanent", err: apperrors.ErrMalformedOutput.WithDetail("spec json truncated"), wantErr: true, wantPermanent: true},
		{name: "phase already written is permanent", err: apperrors.ErrPhaseAlreadyWritten, wantErr: true, wantPermanent: true},
		{name: "provider outage is retried", err: apperrors.ErrProviderUnavailable, wantErr: true},
		{name: "unknown error is retried", err: errors.New("connection reset"), wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			gen := &fakeGenerator{err: tt.err}
			err := generateHandler(gen)(context.Background(), jobMessage(t, job))

			assert.Equal(t, 1, gen.calls)
			assert.Equal(t, "p-1", gen.projectID)
			assert.Equal(t, []string{"Stripe"}, gen.integrations)
			if !tt.wantErr {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.Equal(t, tt.wantPermanent, errors.Is(err, messaging.ErrPermanent))
			assert.ErrorIs(t, err, tt.err)
		})
	}
}

func TestGenerateHandlerRejectsBadPayload(t *testing.T) {
	gen := &fakeGenerator{}

	msg := &messaging.Message{ID: "m", Type: messaging.MessageTypeGenerate, Payload: json.RawMessage(`"oops"`)}
	err := generateHandler(gen)(context.Background(), msg)
	assert.ErrorIs(t, err, messaging.ErrPermanent)

	err = generateHandler(gen)(context.Background(), jobMessage(t, service.GenerateJob{JobID: "j"}))
	assert.ErrorIs(t, err, messaging.ErrPermanent)
	assert.Zero(t, gen.calls)
}

func TestNotifyHandler(t *testing.T) {
	event := service.DomainEvent{
		Type:      service.EventSpecReady,
		ProjectID: "p-1",
		OwnerID:   "u-1",
		Data:      map[string]any{"quality_score": 88},
		At:        time.Now(),
	}
	msg, err := messaging.NewMessage("m", string(event.Type), event.OwnerID, event.ProjectID, event)
	require.NoError(t, err)
	assert.NoError(t, notifyHandler()(context.Background(), msg))

	bad := &messaging.Message{ID: "m", Type: string(event.Type), Payload: json.RawMessage(`[]`)}
	assert.ErrorIs(t, notifyHandler()(context.Background(), bad), messaging.ErrPermanent)
}
