// Package fetch is the HTTP client for the third-party status API. It
// implements the fetcher collaborators the monitor and coordinator consume;
// the remote schemas are an external contract and are mapped straight into
// domain types here.
package fetch

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/svarog-dev/warden/internal/domain"
	"github.com/svarog-dev/warden/internal/monitor"
)

// Client queries the status API over HTTP
type Client struct {
	http    *http.Client
	baseURL string
}

// NewClient creates a client for the given API base URL.
func NewClient(baseURL string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		http:    &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(baseURL, "/"),
	}
}

type detailResponse struct {
	MapName          string `json:"mapName"`
	MapRotationIndex int    `json:"rotationIndex"`
	Slots            struct {
		Soldier   int `json:"Soldier"`
		Spectator int `json:"Spectator"`
		Queue     int `json:"Queue"`
	} `json:"slots"`
}

// FetchDetail implements monitor.DetailFetcher. A 404 from the API means
// the server no longer exists and maps to monitor.ErrServerNotFound.
func (c *Client) FetchDetail(ctx context.Context, externalID string) (*domain.ServerDetail, error) {
	var resp detailResponse
	if err := c.get(ctx, "/servers/"+url.PathEscape(externalID), &resp); err != nil {
		return nil, err
	}
	return &domain.ServerDetail{
		MapName:          resp.MapName,
		MapRotationIndex: resp.MapRotationIndex,
		Slots: domain.SlotCounts{
			Soldier:   resp.Slots.Soldier,
			Spectator: resp.Slots.Spectator,
			Queue:     resp.Slots.Queue,
		},
	}, nil
}

type rosterResponse struct {
	Teams []struct {
		ID      int            `json:"id"`
		Players []rosterPlayer `json:"players"`
	} `json:"teams"`
	Queue      []rosterPlayer `json:"queue"`
	Spectators []rosterPlayer `json:"spectators"`
}

type rosterPlayer struct {
	Name      string `json:"name"`
	PersonaID string `json:"personaId"`
	JoinTime  int64  `json:"joinTime"`
}

// FetchRoster implements monitor.RosterFetcher.
func (c *Client) FetchRoster(ctx context.Context, externalID string, includeSpectators bool) (*domain.Roster, error) {
	path := "/servers/" + url.PathEscape(externalID) + "/players"
	if includeSpectators {
		path += "?spectators=1"
	}
	var resp rosterResponse
	if err := c.get(ctx, path, &resp); err != nil {
		return nil, err
	}

	roster := &domain.Roster{HasSpectators: includeSpectators}
	for _, team := range resp.Teams {
		for _, p := range team.Players {
			roster.Soldiers = append(roster.Soldiers, snapshot(p, team.ID))
		}
	}
	for _, p := range resp.Queue {
		roster.Queue = append(roster.Queue, snapshot(p, domain.TeamSpectator))
	}
	if includeSpectators {
		for _, p := range resp.Spectators {
			roster.Spectators = append(roster.Spectators, snapshot(p, domain.TeamSpectator))
		}
	}
	return roster, nil
}

type statsResponse struct {
	Rank          int     `json:"rank"`
	KillDeath     float64 `json:"killDeath"`
	TimePlayedSec int64   `json:"timePlayed"`
}

// FetchStats implements the coordinator's stats collaborator; used only to
// enrich moderation reports, so callers tolerate failures.
func (c *Client) FetchStats(ctx context.Context, persona string) (*domain.PersonaStats, error) {
	var resp statsResponse
	if err := c.get(ctx, "/persona/"+url.PathEscape(persona)+"/stats", &resp); err != nil {
		return nil, err
	}
	return &domain.PersonaStats{
		Level:         resp.Rank,
		KDRatio:       resp.KillDeath,
		PlayedMinutes: int(resp.TimePlayedSec / 60),
	}, nil
}

func (c *Client) get(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("querying %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return monitor.ErrServerNotFound
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("querying %s: unexpected status %d", path, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func snapshot(p rosterPlayer, team int) domain.PlayerSnapshot {
	s := domain.PlayerSnapshot{
		Name:      p.Name,
		PersonaID: p.PersonaID,
		Team:      team,
	}
	if p.JoinTime > 0 {
		s.JoinTime = time.Unix(p.JoinTime, 0).UTC()
	}
	return s
}
