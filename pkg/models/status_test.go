package models

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestPageStatus_String(t *testing.T) {
	tests := []struct {
		status PageStatus
		want   string
	}{
		{PageStatusUnset, "unset"},
		{PageStatusPending, "pending"},
		{PageStatusSuccess, "success"},
		{PageStatusFailure, "failure"},
		{PageStatusNotFound, "not_found"},
		{PageStatusDBError, "db_error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.String())
	}
}

func TestPageStatus_IsValid(t *testing.T) {
	tests := []struct {
		status PageStatus
		want   bool
	}{
		{PageStatusPending, true},
		{PageStatusSuccess, true},
		{PageStatusFailure, true},
		{PageStatusUnset, false},
		{PageStatusNotFound, false},
		{PageStatusDBError, false},
		{PageStatus("arbitrary"), false},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, tt.status.IsValid(), "PageStatus(%q).IsValid()", string(tt.status))
	}
}

func TestPageStatus_IsTerminal(t *testing.T) {
	assert.True(t, PageStatusSuccess.IsTerminal())
	assert.True(t, PageStatusFailure.IsTerminal())
	assert.False(t, PageStatusPending.IsTerminal())
	assert.False(t, PageStatusNotFound.IsTerminal())
}

func TestLoadOutcome_String(t *testing.T) {
	assert.Equal(t, "unset", LoadOutcome("").String())
	assert.Equal(t, "irrelevant", OutcomeIrrelevant.String())
	assert.Equal(t, "done", OutcomeDone.String())
}
