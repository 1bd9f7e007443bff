package entities

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeletionSelectionResult(t *testing.T) {
	tests := []struct {
		name      string
		selection DeletionSelection
		expected  RunResult
	}{
		{"dry run", DeletionSelection{DryRun: true}, RunResultDryRun},
		{"clean run", DeletionSelection{CappedDeleteCount: 2, DeletedCount: 2}, RunResultOK},
		{"some deletes failed", DeletionSelection{CappedDeleteCount: 3, DeletedCount: 2, Errors: []string{"delete x: permission denied"}}, RunResultPartial},
		{"all deletes failed", DeletionSelection{CappedDeleteCount: 2, DeletedCount: 0, Errors: []string{"delete x: permission denied", "delete y: permission denied"}}, RunResultFailed},
		{"nothing to delete", DeletionSelection{}, RunResultOK},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.expected, tt.selection.Result(), tt.name)
	}
}

func TestResultScanErrorsWithoutCandidates(t *testing.T) {
	// An unreadable directory entry is recorded but nothing was attempted,
	// so the run is partial, not failed.
	s := DeletionSelection{Errors: []string{"read dir: permission denied"}}
	assert.Equal(t, RunResultPartial, s.Result())
}
