package main

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"commission-intake/internal/domain"
	"commission-intake/internal/usecase"
)

type fakeIntake struct {
	turns   []string
	submits int
	turnErr error
}

func (f *fakeIntake) OpenSession(_ context.Context, handle string) (usecase.MakerSession, error) {
	return usecase.MakerSession{
		Maker:   domain.Maker{ID: "maker-1", Handle: handle, Name: "Clay Works", Categories: []string{"pottery"}},
		Session: domain.Session{Transcript: []domain.Message{usecase.Greeting("Clay Works")}},
	}, nil
}

func (f *fakeIntake) Turn(_ context.Context, in usecase.TurnInput) (usecase.TurnOutput, error) {
	if f.turnErr != nil {
		err := f.turnErr
		f.turnErr = nil
		return usecase.TurnOutput{}, err
	}
	f.turns = append(f.turns, in.Message)
	next := usecase.AppendAssistant(in.Session, "reply "+in.Message)
	next.Summary = "Blue mug"
	return usecase.TurnOutput{Session: next, Reply: "reply " + in.Message, Stage: usecase.StageOf(next)}, nil
}

func (f *fakeIntake) Submit(_ context.Context, in usecase.SubmitInput) (usecase.SubmitOutput, error) {
	f.submits++
	c := domain.Commission{ID: "c-1", MakerID: in.MakerID, Status: domain.StatusPending, Title: in.Session.Summary}
	return usecase.SubmitOutput{Session: in.Session, Reply: "placed", Commission: &c}, nil
}

func TestChatLoop_TurnsThenOrder(t *testing.T) {
	svc := &fakeIntake{}
	var out bytes.Buffer

	in := strings.NewReader("a blue mug\n\n/order\nignored\n")
	err := chatLoop(context.Background(), svc, "clayworks", time.Second, in, &out)
	require.NoError(t, err)

	require.Equal(t, []string{"a blue mug"}, svc.turns)
	require.Equal(t, 1, svc.submits)
	require.Contains(t, out.String(), "from Clay Works")
	require.Contains(t, out.String(), "assistant> reply a blue mug")
	require.Contains(t, out.String(), `commission c-1 (pending) "Blue mug"`)
}

func TestChatLoop_ReportsInvalidInputAndContinues(t *testing.T) {
	svc := &fakeIntake{turnErr: &usecase.Error{Code: usecase.ErrorInvalidInput, Reason: "message_too_long"}}
	var out bytes.Buffer

	err := chatLoop(context.Background(), svc, "clayworks", 0, strings.NewReader("too long\nshort\n/quit\n"), &out)
	require.NoError(t, err)
	require.Contains(t, out.String(), "! message_too_long")
	require.Equal(t, []string{"short"}, svc.turns)
}

type fakeQueue struct {
	handle string
	limit  int
	err    error
}

func (f *fakeQueue) Queue(_ context.Context, handle string, limit int) (domain.Maker, []domain.Commission, error) {
	f.handle, f.limit = handle, limit
	if f.err != nil {
		return domain.Maker{}, nil, f.err
	}
	return domain.Maker{Name: "Clay Works", Handle: handle}, []domain.Commission{
		{ID: "c-1", Status: domain.StatusPending, Title: "Blue mug"},
	}, nil
}

func TestShowQueue_GoesThroughService(t *testing.T) {
	svc := &fakeQueue{}
	var out bytes.Buffer

	require.NoError(t, showQueue(context.Background(), svc, "clayworks", 0, &out))
	require.Equal(t, "clayworks", svc.handle)
	require.Equal(t, 0, svc.limit)
	require.Contains(t, out.String(), "Clay Works (clayworks): 1 commission(s)")
	require.Contains(t, out.String(), "Blue mug")
}

func TestShowQueue_ReturnsServiceError(t *testing.T) {
	svc := &fakeQueue{err: &usecase.Error{Code: usecase.ErrorNotFound, Reason: "maker_not_found"}}
	var out bytes.Buffer

	err := showQueue(context.Background(), svc, "ghost", 10, &out)
	var ucErr *usecase.Error
	require.ErrorAs(t, err, &ucErr)
	require.Equal(t, usecase.ErrorNotFound, ucErr.Code)
	require.Empty(t, out.String())
}

func TestPrintQueue(t *testing.T) {
	var out bytes.Buffer
	created := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)
	printQueue(&out, domain.Maker{Name: "Clay Works", Handle: "clayworks"}, []domain.Commission{
		{ID: "c-1", Status: domain.StatusPending, Title: "Blue mug", CreatedAt: created},
	})
	require.Contains(t, out.String(), "Clay Works (clayworks): 1 commission(s)")
	require.Contains(t, out.String(), "2024-05-01 10:00:00")
	require.Contains(t, out.String(), "Blue mug")
}

func TestSplitCategories(t *testing.T) {
	require.Equal(t, []string{"pottery", "glass"}, splitCategories(" pottery, ,glass "))
	require.Nil(t, splitCategories(""))
}
