package fetch

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/svarog-dev/warden/internal/monitor"
)

func TestFetchDetail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/servers/ext-1" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{
			"mapName": "Harbor",
			"rotationIndex": 3,
			"slots": {"Soldier": 60, "Spectator": 2, "Queue": 5}
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	detail, err := c.FetchDetail(context.Background(), "ext-1")
	if err != nil {
		t.Fatalf("FetchDetail: %v", err)
	}
	if detail.MapName != "Harbor" || detail.MapRotationIndex != 3 {
		t.Fatalf("detail = %+v", detail)
	}
	if detail.Slots.Soldier != 60 || detail.Slots.Spectator != 2 || detail.Slots.Queue != 5 {
		t.Fatalf("slots = %+v", detail.Slots)
	}
}

func TestFetchDetailNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchDetail(context.Background(), "gone")
	if !errors.Is(err, monitor.ErrServerNotFound) {
		t.Fatalf("err = %v, want ErrServerNotFound", err)
	}
}

func TestFetchRoster(t *testing.T) {
	var gotQuery string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotQuery = r.URL.RawQuery
		w.Write([]byte(`{
			"teams": [
				{"id": 1, "players": [{"name": "alice", "personaId": "p-1", "joinTime": 1767225600}]},
				{"id": 2, "players": [{"name": "bob", "personaId": "p-2"}]}
			],
			"queue": [{"name": "carol"}],
			"spectators": [{"name": "dave"}]
		}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	roster, err := c.FetchRoster(context.Background(), "ext-1", true)
	if err != nil {
		t.Fatalf("FetchRoster: %v", err)
	}
	if gotQuery != "spectators=1" {
		t.Fatalf("query = %q", gotQuery)
	}
	if len(roster.Soldiers) != 2 || len(roster.Queue) != 1 || len(roster.Spectators) != 1 {
		t.Fatalf("roster sizes = %d/%d/%d", len(roster.Soldiers), len(roster.Queue), len(roster.Spectators))
	}
	if !roster.HasSpectators {
		t.Fatalf("HasSpectators not set on spectator fetch")
	}
	if roster.Soldiers[0].Team != 1 || roster.Soldiers[1].Team != 2 {
		t.Fatalf("teams = %d/%d", roster.Soldiers[0].Team, roster.Soldiers[1].Team)
	}
	if roster.Soldiers[0].JoinTime.IsZero() {
		t.Fatalf("join time not parsed")
	}

	// Without the spectator sub-fetch the flag stays off even if the API
	// happens to include the list.
	roster, err = c.FetchRoster(context.Background(), "ext-1", false)
	if err != nil {
		t.Fatalf("FetchRoster: %v", err)
	}
	if roster.HasSpectators || len(roster.Spectators) != 0 {
		t.Fatalf("spectators leaked into a plain fetch: %+v", roster)
	}
}

func TestFetchStats(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/persona/p-1/stats" {
			t.Fatalf("path = %s", r.URL.Path)
		}
		w.Write([]byte(`{"rank": 42, "killDeath": 1.37, "timePlayed": 7200}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	stats, err := c.FetchStats(context.Background(), "p-1")
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	if stats.Level != 42 || stats.KDRatio != 1.37 || stats.PlayedMinutes != 120 {
		t.Fatalf("stats = %+v", stats)
	}
}

func TestUnexpectedStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	c := NewClient(srv.URL, time.Second)
	_, err := c.FetchDetail(context.Background(), "ext-1")
	if err == nil {
		t.Fatalf("502 accepted")
	}
	if errors.Is(err, monitor.ErrServerNotFound) {
		t.Fatalf("502 mapped to not-found")
	}
}
