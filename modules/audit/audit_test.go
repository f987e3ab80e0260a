package audit

import (
	"testing"

	"github.com/TheLab-ms/bench/engine/db"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord(t *testing.T) {
	d := db.OpenTest(t)
	rec := New(d).Recorder()

	rec.Record(t.Context(), 7, "booking.create", "booking", 42, "resource 1")
	rec.Record(t.Context(), 0, "system.cleanup", "booking", 0, "")

	var actor, entity *int64
	var action, details string
	err := d.QueryRow("SELECT actor, action, entity_id, details FROM audit_log WHERE id = 1").
		Scan(&actor, &action, &entity, &details)
	require.NoError(t, err)
	require.NotNil(t, actor)
	assert.Equal(t, int64(7), *actor)
	assert.Equal(t, "booking.create", action)
	require.NotNil(t, entity)
	assert.Equal(t, int64(42), *entity)
	assert.Equal(t, "resource 1", details)

	// Anonymous system actions store NULLs instead of zero ids
	err = d.QueryRow("SELECT actor, entity_id FROM audit_log WHERE id = 2").Scan(&actor, &entity)
	require.NoError(t, err)
	assert.Nil(t, actor)
	assert.Nil(t, entity)
}

func TestRecordNeverFails(t *testing.T) {
	// A nil recorder and a recorder over a broken database both no-op.
	var rec *Recorder
	rec.Record(t.Context(), 1, "a", "b", 1, "")

	d := db.OpenTest(t)
	rec = New(d).Recorder()
	require.NoError(t, d.Close())
	rec.Record(t.Context(), 1, "a", "b", 1, "") // logs, doesn't panic
}
