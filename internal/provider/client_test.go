package provider

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestSubmit_Sync(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/v1/generations" {
			t.Errorf("unexpected request: %s %s", r.Method, r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("auth header: %q", got)
		}
		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body) //nolint:errcheck
		if body["model"] != "sdxl-lite" || body["prompt"] != "a red fox" {
			t.Errorf("unexpected body: %v", body)
		}
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"result_url": "https://cdn.example/abc.png"}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	sync, async, err := c.Submit(context.Background(), "a red fox", "sdxl-lite")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if async != nil {
		t.Fatal("expected sync result, got async handle")
	}
	if sync.ResultRef != "https://cdn.example/abc.png" {
		t.Errorf("ResultRef: %q", sync.ResultRef)
	}
}

func TestSubmit_Async(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusAccepted)
		json.NewEncoder(w).Encode(map[string]any{"job_id": "gen-42", "estimated_seconds": 30}) //nolint:errcheck
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	sync, async, err := c.Submit(context.Background(), "a slow render", "runway-gen3")
	if err != nil {
		t.Fatalf("Submit: %v", err)
	}
	if sync != nil {
		t.Fatal("expected async handle, got sync result")
	}
	if async.JobID != "gen-42" || async.EstimatedSeconds != 30 {
		t.Errorf("handle: %+v", async)
	}
}

func TestSubmit_ProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "model overloaded", http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "test-key")
	if _, _, err := c.Submit(context.Background(), "p", "m"); err == nil {
		t.Fatal("expected error")
	}
}

func TestPollStatus(t *testing.T) {
	cases := []struct {
		name     string
		payload  map[string]string
		wantDone bool
		wantRef  string
		wantErr  string
	}{
		{"running", map[string]string{"status": "running"}, false, "", ""},
		{"completed", map[string]string{"status": "completed", "result_url": "https://cdn.example/v.mp4"}, true, "https://cdn.example/v.mp4", ""},
		{"failed", map[string]string{"status": "failed", "error": "nsfw filter"}, true, "", "nsfw filter"},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.URL.Path != "/v1/generations/gen-7" {
					t.Errorf("path: %s", r.URL.Path)
				}
				json.NewEncoder(w).Encode(tc.payload) //nolint:errcheck
			}))
			defer srv.Close()

			c := NewHTTPClient(srv.URL, "k")
			st, err := c.PollStatus(context.Background(), &AsyncHandle{JobID: "gen-7"})
			if err != nil {
				t.Fatalf("PollStatus: %v", err)
			}
			if st.Done != tc.wantDone || st.ResultRef != tc.wantRef || st.Err != tc.wantErr {
				t.Errorf("status: %+v", st)
			}
		})
	}
}

func TestPollStatus_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewHTTPClient(srv.URL, "k")
	if _, err := c.PollStatus(context.Background(), &AsyncHandle{JobID: "x"}); err == nil {
		t.Fatal("expected error")
	}
}
