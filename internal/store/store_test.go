package store

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(t.TempDir() + "/test.db")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func writeTestModel(t *testing.T, s *Store, fingerprint string) {
	t.Helper()
	err := s.WriteModel(context.Background(), fingerprint, "test-model",
		json.RawMessage(`{"nodes":[]}`))
	require.NoError(t, err)
}

// TestOpen_Pragmas verifies the required SQLite configuration is applied.
func TestOpen_Pragmas(t *testing.T) {
	s := openTestStore(t)

	require.NoError(t, s.verifyPragma("journal_mode", "wal"))
	require.NoError(t, s.verifyPragma("foreign_keys", "1"))
}

// TestOpen_Idempotent verifies reopening an existing database works and
// keeps the schema version.
func TestOpen_Idempotent(t *testing.T) {
	dir := t.TempDir()
	path := dir + "/test.db"

	s1, err := Open(path)
	require.NoError(t, err)
	require.NoError(t, s1.Close())

	s2, err := Open(path)
	require.NoError(t, err)
	defer s2.Close()

	var version int
	require.NoError(t, s2.db.QueryRow("PRAGMA user_version").Scan(&version))
	assert.Equal(t, currentSchemaVersion, version)
}

// TestWriteRun_RoundTrip writes a run and reads it back by key and by ID.
func TestWriteRun_RoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	writeTestModel(t, s, "fp-1")

	run := Run{
		ID:               "run-1",
		Key:              "key-1",
		ModelFingerprint: "fp-1",
		Kind:             "evaluate",
		Params:           json.RawMessage(`{"view":"ev"}`),
		Result:           json.RawMessage(`{"root":65}`),
		RootValue:        65,
	}
	id, inserted, err := s.WriteRun(ctx, run)
	require.NoError(t, err)
	assert.True(t, inserted)
	assert.Equal(t, "run-1", id)

	got, err := s.GetRun(ctx, "key-1")
	require.NoError(t, err)
	assert.Equal(t, "run-1", got.ID)
	assert.Equal(t, "evaluate", got.Kind)
	assert.Equal(t, 65.0, got.RootValue)
	assert.JSONEq(t, `{"view":"ev"}`, string(got.Params))
	assert.JSONEq(t, `{"root":65}`, string(got.Result))
	assert.False(t, got.CreatedAt.IsZero())

	byID, err := s.GetRunByID(ctx, "run-1")
	require.NoError(t, err)
	assert.Equal(t, got.Key, byID.Key)
}

// TestWriteRun_Idempotent verifies a duplicate run key is silently ignored
// and the original record's ID is returned.
func TestWriteRun_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	writeTestModel(t, s, "fp-1")

	run := Run{
		ID: "run-1", Key: "key-1", ModelFingerprint: "fp-1",
		Kind: "evaluate", Params: json.RawMessage(`{}`),
		Result: json.RawMessage(`{}`), RootValue: 1,
	}
	_, inserted, err := s.WriteRun(ctx, run)
	require.NoError(t, err)
	require.True(t, inserted)

	dup := run
	dup.ID = "run-2"
	id, inserted, err := s.WriteRun(ctx, dup)
	require.NoError(t, err)
	assert.False(t, inserted)
	assert.Equal(t, "run-1", id)

	runs, err := s.ListRuns(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Len(t, runs, 1)
}

// TestWriteRun_UnknownModel verifies the foreign key on the model
// fingerprint is enforced.
func TestWriteRun_UnknownModel(t *testing.T) {
	s := openTestStore(t)

	_, _, err := s.WriteRun(context.Background(), Run{
		ID: "run-1", Key: "key-1", ModelFingerprint: "missing",
		Kind: "evaluate", Params: json.RawMessage(`{}`),
		Result: json.RawMessage(`{}`),
	})
	require.Error(t, err)
}

// TestGetRun_NotFound verifies the sentinel error.
func TestGetRun_NotFound(t *testing.T) {
	s := openTestStore(t)

	_, err := s.GetRun(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetRunByID(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = s.GetModelSpec(context.Background(), "nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

// TestListRuns_OrderAndFilter verifies newest-first ordering, fingerprint
// filtering, and the limit.
func TestListRuns_OrderAndFilter(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	writeTestModel(t, s, "fp-a")
	writeTestModel(t, s, "fp-b")

	for i, fp := range []string{"fp-a", "fp-b", "fp-a"} {
		_, _, err := s.WriteRun(ctx, Run{
			ID:               string(rune('x' + i)),
			Key:              string(rune('p' + i)),
			ModelFingerprint: fp,
			Kind:             "evaluate",
			Params:           json.RawMessage(`{}`),
			Result:           json.RawMessage(`{}`),
		})
		require.NoError(t, err)
	}

	all, err := s.ListRuns(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, "z", all[0].ID) // newest first

	onlyA, err := s.ListRuns(ctx, "fp-a", "", 0)
	require.NoError(t, err)
	require.Len(t, onlyA, 2)
	for _, run := range onlyA {
		assert.Equal(t, "fp-a", run.ModelFingerprint)
	}

	limited, err := s.ListRuns(ctx, "", "", 1)
	require.NoError(t, err)
	assert.Len(t, limited, 1)

	byKind, err := s.ListRuns(ctx, "", "evaluate", 0)
	require.NoError(t, err)
	assert.Len(t, byKind, 3)

	none, err := s.ListRuns(ctx, "", "sensitivity/value", 0)
	require.NoError(t, err)
	assert.Empty(t, none)
}

// TestWriteModel_Idempotent verifies duplicate fingerprints are ignored.
func TestWriteModel_Idempotent(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.WriteModel(ctx, "fp-1", "first", json.RawMessage(`{"v":1}`)))
	require.NoError(t, s.WriteModel(ctx, "fp-1", "second", json.RawMessage(`{"v":2}`)))

	spec, err := s.GetModelSpec(ctx, "fp-1")
	require.NoError(t, err)
	assert.JSONEq(t, `{"v":1}`, string(spec))
}
