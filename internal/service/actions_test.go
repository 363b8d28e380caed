package service

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMarkSeenCommandValidate(t *testing.T) {
	valid := MarkSeenCommand{
		Coordinator: CoordinatorMarks,
		ChildKey:    "srv|u1",
		RecordID:    "m1",
	}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.Coordinator = "grades"
	assert.ErrorContains(t, bad.Validate(), "unknown coordinator")

	bad = valid
	bad.Coordinator = CoordinatorTimetable
	assert.ErrorContains(t, bad.Validate(), "novelty")

	bad = valid
	bad.ChildKey = "no-separator"
	assert.ErrorContains(t, bad.Validate(), "invalid child key")

	bad = valid
	bad.RecordID = ""
	assert.ErrorContains(t, bad.Validate(), "record_id is required")
}

func TestAcknowledgeSubjectCommandValidate(t *testing.T) {
	valid := AcknowledgeSubjectCommand{ChildKey: "srv|u1", SubjectKey: "MAT01"}
	assert.NoError(t, valid.Validate())

	bad := valid
	bad.SubjectKey = ""
	assert.ErrorContains(t, bad.Validate(), "subject_key is required")
}

func TestForceRefreshCommandValidate(t *testing.T) {
	assert.NoError(t, ForceRefreshCommand{}.Validate())
	assert.NoError(t, ForceRefreshCommand{Coordinator: CoordinatorTimetable}.Validate())
	assert.ErrorContains(t, ForceRefreshCommand{Coordinator: "everything"}.Validate(), "unknown coordinator")
}

func TestMarkSeenRejectsInvalidCommandBeforeTouchingCoordinators(t *testing.T) {
	// A nil coordinator set is safe as long as validation fails first.
	a := NewActions(nil, nil, nil, nil, nil)

	err := a.MarkSeen(context.Background(), MarkSeenCommand{})
	require.Error(t, err)
}
