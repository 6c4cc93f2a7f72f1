package main

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestNewHandler_RequiresTable(t *testing.T) {
	t.Setenv("RECORDS_TABLE", "")
	t.Setenv("PARAM_PREFIX", "/intake")

	_, err := newHandler(context.Background())
	require.ErrorContains(t, err, "RECORDS_TABLE is required")
}

func TestNewHandler_RejectsBadContactPrompt(t *testing.T) {
	t.Setenv("RECORDS_TABLE", "records")
	t.Setenv("PARAM_PREFIX", "/intake")
	t.Setenv("CONTACT_PROMPT_AFTER", "soon")

	_, err := newHandler(context.Background())
	require.ErrorContains(t, err, "CONTACT_PROMPT_AFTER")
}
