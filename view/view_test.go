package view

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

// Functions

// TestAdd executes a white-box unit test on the
// implemented Add() function.
func TestAdd(t *testing.T) {

	v := InitView("r1", []string{"r2"})

	assert.Nil(t, v.Add("r3"))
	assert.Equal(t, []string{"r1", "r2", "r3"}, v.Snapshot())

	// Re-adding a present member is idempotent.
	assert.Equal(t, ErrAlreadyPresent, v.Add("r3"))
	assert.Equal(t, ErrAlreadyPresent, v.Add("r1"))
	assert.Equal(t, []string{"r1", "r2", "r3"}, v.Snapshot())
}

// TestRemove executes a white-box unit test on the
// implemented Remove() function.
func TestRemove(t *testing.T) {

	v := InitView("r1", []string{"r2", "r3"})

	assert.Nil(t, v.Remove("r2"))
	assert.False(t, v.Contains("r2"))

	// Removing an unknown member fails and leaves
	// the view unchanged.
	assert.Equal(t, ErrNoSuchReplica, v.Remove("r4"))
	assert.Equal(t, []string{"r1", "r3"}, v.Snapshot())
}

// TestOthers executes a white-box unit test on the
// implemented Others() function.
func TestOthers(t *testing.T) {

	v := InitView("r1", []string{"r2", "r3", "r4"})

	// Self never appears in a broadcast target list.
	assert.Equal(t, []string{"r2", "r3", "r4"}, v.Others())

	// Further exclusions, e.g. a freshly recovered peer that
	// already holds the state being fanned out.
	assert.Equal(t, []string{"r2", "r4"}, v.Others("r3"))
}
