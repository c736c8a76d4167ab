package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestHealth(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/health" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"status":"ok","slicer_available":true,"profiles_loaded":4,"uptime_seconds":90}`))
	}))
	defer ts.Close()

	health, err := New(ts.URL).Health(context.Background())
	if err != nil {
		t.Fatalf("health: %v", err)
	}
	if health.Status != "ok" || !health.SlicerAvailable || health.ProfilesLoaded != 4 {
		t.Fatalf("health = %+v", health)
	}
}

func TestListJobsPassesFilter(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("status"); got != "failed" {
			t.Fatalf("status filter = %q", got)
		}
		_, _ = w.Write([]byte(`{"items":[{"id":"job_1","status":"failed"}],"total":1}`))
	}))
	defer ts.Close()

	list, err := New(ts.URL).ListJobs(context.Background(), "failed", 10)
	if err != nil {
		t.Fatalf("list jobs: %v", err)
	}
	if list.Total != 1 || list.Items[0].ID != "job_1" {
		t.Fatalf("list = %+v", list)
	}
}

func TestErrorEnvelopeSurfaced(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"error":{"code":"SLICE_JOB_NOT_FOUND","message":"Slice job 'job_x' does not exist."}}`))
	}))
	defer ts.Close()

	_, err := New(ts.URL).GetJob(context.Background(), "job_x")
	if err == nil {
		t.Fatal("expected error")
	}
	if !strings.Contains(err.Error(), "SLICE_JOB_NOT_FOUND") {
		t.Fatalf("error = %v", err)
	}
}

func TestNewNormalizesBindAddress(t *testing.T) {
	c := New("127.0.0.1:8745")
	if c.baseURL != "http://127.0.0.1:8745" {
		t.Fatalf("baseURL = %s", c.baseURL)
	}
}
