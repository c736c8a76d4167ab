package store

import (
	"context"
	"errors"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenPath(filepath.Join(t.TempDir(), "slicerd.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestModelRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	model := &Model{
		ID:             NewModelID(),
		Filename:       "benchy.stl",
		Format:         "stl",
		SizeBytes:      10240,
		ChecksumSHA256: "abc123",
		StoragePath:    "/data/models/benchy.stl",
	}
	if err := s.InsertModel(ctx, model); err != nil {
		t.Fatalf("insert model: %v", err)
	}

	got, err := s.GetModel(ctx, model.ID)
	if err != nil {
		t.Fatalf("get model: %v", err)
	}
	if got == nil {
		t.Fatal("expected model, got nil")
	}
	if got.Filename != model.Filename || got.SizeBytes != model.SizeBytes {
		t.Fatalf("model mismatch: %+v", got)
	}
	if got.UploadedAt.IsZero() {
		t.Fatal("uploaded_at not persisted")
	}

	missing, err := s.GetModel(ctx, "mdl_nope")
	if err != nil {
		t.Fatalf("get missing model: %v", err)
	}
	if missing != nil {
		t.Fatalf("expected nil for missing model, got %+v", missing)
	}
}

func TestListModelsPagination(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for i := 0; i < 5; i++ {
		model := &Model{
			ID:             NewModelID(),
			Filename:       "part.stl",
			Format:         "stl",
			SizeBytes:      int64(i + 1),
			ChecksumSHA256: "sum",
			StoragePath:    "/data/models/part.stl",
			UploadedAt:     time.Now().UTC().Add(time.Duration(i) * time.Second),
		}
		if err := s.InsertModel(ctx, model); err != nil {
			t.Fatalf("insert model %d: %v", i, err)
		}
	}

	page, total, err := s.ListModels(ctx, 2, 0)
	if err != nil {
		t.Fatalf("list models: %v", err)
	}
	if total != 5 {
		t.Fatalf("total = %d, want 5", total)
	}
	if len(page) != 2 {
		t.Fatalf("page size = %d, want 2", len(page))
	}
	// Newest first.
	if page[0].SizeBytes != 5 {
		t.Fatalf("expected newest model first, got size %d", page[0].SizeBytes)
	}
}

func TestProfileCRUD(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profile := &Profile{
		ID:     NewProfileID("Draft PLA"),
		Name:   "Draft PLA",
		Source: ProfileSourceUser,
		SettingsOverrides: map[string]any{
			"layer_height":   "0.28",
			"enable_support": "0",
		},
	}
	if err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	dup := &Profile{ID: NewProfileID("Draft PLA"), Name: "Draft PLA", Source: ProfileSourceUser}
	if err := s.CreateProfile(ctx, dup); !errors.Is(err, ErrProfileNameTaken) {
		t.Fatalf("duplicate name error = %v, want ErrProfileNameTaken", err)
	}

	got, err := s.GetProfile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	if got.SettingsOverrides["layer_height"] != "0.28" {
		t.Fatalf("settings not persisted: %+v", got.SettingsOverrides)
	}

	ok, err := s.DeleteProfile(ctx, profile.ID)
	if err != nil || !ok {
		t.Fatalf("delete profile: ok=%v err=%v", ok, err)
	}
	ok, err = s.DeleteProfile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if ok {
		t.Fatal("second delete reported a row")
	}
}

func TestUpdateProfileMergesSettings(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profile := &Profile{
		ID:     NewProfileID("Fine"),
		Name:   "Fine",
		Source: ProfileSourceUser,
		SettingsOverrides: map[string]any{
			"layer_height":          "0.12",
			"sparse_infill_density": "15%",
		},
	}
	if err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	desc := "tuned for small parts"
	updated, err := s.UpdateProfile(ctx, profile.ID, ProfilePatch{
		Description: &desc,
		SettingsOverrides: map[string]any{
			"sparse_infill_density": "25%",
			"wall_loops":            "3",
		},
	})
	if err != nil {
		t.Fatalf("update profile: %v", err)
	}
	if updated.Description != desc {
		t.Fatalf("description = %q", updated.Description)
	}
	// Patched keys replace, untouched keys survive.
	want := map[string]any{
		"layer_height":          "0.12",
		"sparse_infill_density": "25%",
		"wall_loops":            "3",
	}
	for key, value := range want {
		if updated.SettingsOverrides[key] != value {
			t.Fatalf("settings[%q] = %v, want %v", key, updated.SettingsOverrides[key], value)
		}
	}
	if !updated.UpdatedAt.After(updated.CreatedAt) && !updated.UpdatedAt.Equal(updated.CreatedAt) {
		t.Fatalf("updated_at %v before created_at %v", updated.UpdatedAt, updated.CreatedAt)
	}

	none, err := s.UpdateProfile(ctx, "prof_missing", ProfilePatch{Description: &desc})
	if err != nil {
		t.Fatalf("update missing: %v", err)
	}
	if none != nil {
		t.Fatal("expected nil for missing profile")
	}
}

func TestUpdateProfileConcurrentPatchesKeepAllKeys(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	profile := &Profile{
		ID:                NewProfileID("Race"),
		Name:              "Race",
		Source:            ProfileSourceUser,
		SettingsOverrides: map[string]any{"layer_height": "0.2"},
	}
	if err := s.CreateProfile(ctx, profile); err != nil {
		t.Fatalf("create profile: %v", err)
	}

	patches := []map[string]any{
		{"wall_loops": "3"},
		{"sparse_infill_density": "40%"},
	}
	var wg sync.WaitGroup
	errs := make([]error, len(patches))
	for i, overrides := range patches {
		wg.Add(1)
		go func(i int, overrides map[string]any) {
			defer wg.Done()
			_, errs[i] = s.UpdateProfile(ctx, profile.ID, ProfilePatch{SettingsOverrides: overrides})
		}(i, overrides)
	}
	wg.Wait()
	for i, err := range errs {
		if err != nil {
			t.Fatalf("patch %d: %v", i, err)
		}
	}

	stored, err := s.GetProfile(ctx, profile.ID)
	if err != nil {
		t.Fatalf("get profile: %v", err)
	}
	for _, key := range []string{"layer_height", "wall_loops", "sparse_infill_density"} {
		if _, ok := stored.SettingsOverrides[key]; !ok {
			t.Fatalf("settings missing %q after concurrent patches: %v", key, stored.SettingsOverrides)
		}
	}
}

func TestListProfilesFiltersBySource(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, p := range []*Profile{
		{ID: NewProfileID("builtin fast"), Name: "builtin fast", Source: ProfileSourceBuiltin},
		{ID: NewProfileID("my draft"), Name: "my draft", Source: ProfileSourceUser},
		{ID: NewProfileID("my fine"), Name: "my fine", Source: ProfileSourceUser},
	} {
		if err := s.CreateProfile(ctx, p); err != nil {
			t.Fatalf("create %s: %v", p.Name, err)
		}
	}

	users, total, err := s.ListProfiles(ctx, ProfileSourceUser, 10, 0)
	if err != nil {
		t.Fatalf("list user profiles: %v", err)
	}
	if total != 2 || len(users) != 2 {
		t.Fatalf("user profiles total=%d len=%d, want 2/2", total, len(users))
	}

	all, total, err := s.ListProfiles(ctx, "", 10, 0)
	if err != nil {
		t.Fatalf("list all profiles: %v", err)
	}
	if total != 3 || len(all) != 3 {
		t.Fatalf("all profiles total=%d len=%d, want 3/3", total, len(all))
	}
}

func newQueuedJob(t *testing.T, s *Store) *SliceJob {
	t.Helper()
	job := &SliceJob{
		ID:            NewJobID(),
		ModelID:       "mdl_test",
		ProfileID:     "prof_test",
		OutputOptions: DefaultOutputOptions(),
		EffectiveSettings: map[string]any{
			"layer_height": "0.2",
		},
	}
	if err := s.InsertJob(context.Background(), job); err != nil {
		t.Fatalf("insert job: %v", err)
	}
	return job
}

func TestJobLifecycle(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newQueuedJob(t, s)

	got, err := s.GetJob(ctx, job.ID)
	if err != nil {
		t.Fatalf("get job: %v", err)
	}
	if got.Status != JobStatusQueued {
		t.Fatalf("status = %s, want queued", got.Status)
	}
	if got.EffectiveSettings["layer_height"] != "0.2" {
		t.Fatalf("effective settings lost: %+v", got.EffectiveSettings)
	}

	if err := s.MarkJobRunning(ctx, job.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := s.SetJobProgress(ctx, job.ID, 150); err != nil {
		t.Fatalf("set progress: %v", err)
	}
	got, _ = s.GetJob(ctx, job.ID)
	if got.ProgressPercent == nil || *got.ProgressPercent != 100 {
		t.Fatalf("progress not clamped: %v", got.ProgressPercent)
	}
	if got.StartedAt == nil {
		t.Fatal("started_at not set")
	}

	seconds := int64(4616)
	metadata := &SliceMetadata{EstimatedPrintTimeSeconds: &seconds}
	if err := s.CompleteJob(ctx, job.ID, "/out/output.gcode", "", metadata); err != nil {
		t.Fatalf("complete job: %v", err)
	}

	got, _ = s.GetJob(ctx, job.ID)
	if got.Status != JobStatusCompleted {
		t.Fatalf("status = %s, want completed", got.Status)
	}
	if got.FinishedAt == nil {
		t.Fatal("finished_at not set")
	}
	if got.GCodePath != "/out/output.gcode" {
		t.Fatalf("gcode path = %q", got.GCodePath)
	}
	if got.OutputMetadata == nil || got.OutputMetadata.EstimatedPrintTimeSeconds == nil ||
		*got.OutputMetadata.EstimatedPrintTimeSeconds != 4616 {
		t.Fatalf("metadata mismatch: %+v", got.OutputMetadata)
	}
}

func TestJobTransitionGuards(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newQueuedJob(t, s)

	// Completing a queued job skips running and must fail.
	if err := s.CompleteJob(ctx, job.ID, "/out/output.gcode", "", nil); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("complete queued job: err = %v, want ErrInvalidTransition", err)
	}

	if err := s.MarkJobRunning(ctx, job.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}
	if err := s.MarkJobRunning(ctx, job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("double mark running: err = %v, want ErrInvalidTransition", err)
	}

	if err := s.FailJob(ctx, job.ID, "slicer exited with status 255"); err != nil {
		t.Fatalf("fail job: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if got.Status != JobStatusFailed {
		t.Fatalf("status = %s, want failed", got.Status)
	}
	if got.ErrorMessage == "" {
		t.Fatal("error message missing")
	}

	// Terminal jobs reject further transitions.
	if err := s.FailJob(ctx, job.ID, "again"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("fail terminal job: err = %v, want ErrInvalidTransition", err)
	}
	if err := s.SetJobProgress(ctx, job.ID, 50); err != nil {
		t.Fatalf("progress on terminal job should be a no-op, got %v", err)
	}
}

func TestFailJobTruncatesMessage(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	job := newQueuedJob(t, s)

	long := strings.Repeat("x", maxErrorMessageLen+500)
	if err := s.FailJob(ctx, job.ID, long); err != nil {
		t.Fatalf("fail job: %v", err)
	}
	got, _ := s.GetJob(ctx, job.ID)
	if len(got.ErrorMessage) > maxErrorMessageLen+100 {
		t.Fatalf("error message not truncated: %d bytes", len(got.ErrorMessage))
	}
	if !strings.HasSuffix(got.ErrorMessage, "(truncated)") {
		t.Fatalf("missing truncation marker: %q", got.ErrorMessage[len(got.ErrorMessage)-30:])
	}
}

func TestJobStats(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	first := newQueuedJob(t, s)
	_ = newQueuedJob(t, s)
	if err := s.MarkJobRunning(ctx, first.ID); err != nil {
		t.Fatalf("mark running: %v", err)
	}

	stats, err := s.JobStats(ctx)
	if err != nil {
		t.Fatalf("job stats: %v", err)
	}
	if stats[JobStatusQueued] != 1 || stats[JobStatusRunning] != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats[JobStatusCompleted] != 0 || stats[JobStatusFailed] != 0 {
		t.Fatalf("terminal counts should be zero: %+v", stats)
	}
}
