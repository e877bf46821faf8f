package inventory

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strconv"
	"sync"
	"time"

	"github.com/enrollkit/enroll/internal/errors"
	"github.com/enrollkit/enroll/internal/logger"
)

const (
	cons3rtMaxAttempts = 10
	cons3rtRetrySleep  = 5 * time.Second
	cons3rtMaxWorkers  = 10
)

// Cons3rtSource reads hosts from the CONS3RT deployment API: list the
// reserved deployment runs in the project, then fetch each run's hosts
// and their details.
type Cons3rtSource struct {
	BaseURL string
	Token   string

	// Client defaults to http.DefaultClient. Tests inject their own.
	Client *http.Client

	// RetrySleep and MaxAttempts bound the per-request retry loop.
	// Zero values take the defaults above.
	RetrySleep  time.Duration
	MaxAttempts int

	// Workers bounds the parallel per-host detail fetch.
	Workers int

	Log logger.Logger
}

// NewCons3rtSource creates an API-backed inventory source.
func NewCons3rtSource(baseURL, token string) *Cons3rtSource {
	return &Cons3rtSource{
		BaseURL: baseURL,
		Token:   token,
		Log:     logger.NewEnvLogger("[inventory]"),
	}
}

// deploymentRun is the subset of the run listing we act on.
type deploymentRun struct {
	ID        int    `json:"id"`
	Name      string `json:"name"`
	FapStatus string `json:"fapStatus"`
}

// runDetail carries the per-run host list.
type runDetail struct {
	Name  string    `json:"name"`
	Hosts []runHost `json:"deploymentRunHosts"`
}

// runHost is one host within a deployment run. The detail endpoint
// returns the same shape with more fields populated.
type runHost struct {
	ID              int    `json:"id"`
	SystemRole      string `json:"systemRole"`
	Hostname        string `json:"hostname"`
	CreatedUsername string `json:"createdUsername"`
	CreatedPassword string `json:"createdPassword"`

	runID   int
	runName string
}

// Hosts queries the API and returns the resolved inventory, sorted by
// host id so repeated runs see a stable order.
func (s *Cons3rtSource) Hosts(ctx context.Context) ([]Host, error) {
	runs, err := s.listRuns(ctx)
	if err != nil {
		return nil, err
	}

	var reserved []deploymentRun
	for _, dr := range runs {
		if dr.FapStatus == "RESERVED" {
			reserved = append(reserved, dr)
		}
	}
	s.log().Debug("deployment runs: %d total, %d reserved", len(runs), len(reserved))

	var runHosts []runHost
	for _, dr := range reserved {
		hosts, err := s.runHosts(ctx, dr)
		if err != nil {
			return nil, err
		}
		runHosts = append(runHosts, hosts...)
	}

	details, err := s.fetchDetails(ctx, runHosts)
	if err != nil {
		return nil, err
	}

	sort.Slice(details, func(i, j int) bool { return details[i].ID < details[j].ID })

	hosts := make([]Host, 0, len(details))
	for _, d := range details {
		if d.SystemRole == "" {
			continue
		}
		hosts = append(hosts, Host{
			Name:            d.SystemRole,
			Addr:            d.Hostname,
			CreatedUsername: d.CreatedUsername,
			CreatedPassword: d.CreatedPassword,
			Vars: map[string]string{
				"cons3rt_host_id": strconv.Itoa(d.ID),
				"cons3rt_dr_id":   strconv.Itoa(d.runID),
				"cons3rt_dr_name": d.runName,
			},
		})
	}
	return hosts, nil
}

func (s *Cons3rtSource) listRuns(ctx context.Context) ([]deploymentRun, error) {
	body, err := s.get(ctx, "/api/drs?search_type=SEARCH_AVAILABLE&in_project=true")
	if err != nil {
		return nil, err
	}
	var runs []deploymentRun
	if err := json.Unmarshal(body, &runs); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInventory,
			"Unexpected response from the deployment run listing",
			"Check that inventory.cons3rt.url points at the REST API base")
	}
	return runs, nil
}

func (s *Cons3rtSource) runHosts(ctx context.Context, dr deploymentRun) ([]runHost, error) {
	body, err := s.get(ctx, fmt.Sprintf("/api/drs/%d", dr.ID))
	if err != nil {
		return nil, err
	}
	var detail runDetail
	if err := json.Unmarshal(body, &detail); err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrInventory,
			fmt.Sprintf("Unexpected response for deployment run %d", dr.ID), "")
	}
	for i := range detail.Hosts {
		detail.Hosts[i].runID = dr.ID
		detail.Hosts[i].runName = detail.Name
	}
	return detail.Hosts, nil
}

// fetchDetails fans the per-host detail requests out over a bounded
// worker pool. The first error cancels the remaining work.
func (s *Cons3rtSource) fetchDetails(ctx context.Context, hosts []runHost) ([]runHost, error) {
	if len(hosts) == 0 {
		return nil, nil
	}

	workers := s.Workers
	if workers <= 0 {
		workers = cons3rtMaxWorkers
	}
	if workers > len(hosts) {
		workers = len(hosts)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	jobs := make(chan runHost)
	results := make([]runHost, 0, len(hosts))

	var (
		mu       sync.Mutex
		firstErr error
		wg       sync.WaitGroup
	)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for h := range jobs {
				detail, err := s.hostDetail(ctx, h)
				mu.Lock()
				if err != nil {
					if firstErr == nil {
						firstErr = err
						cancel()
					}
				} else {
					results = append(results, detail)
				}
				mu.Unlock()
			}
		}()
	}

	for _, h := range hosts {
		select {
		case jobs <- h:
		case <-ctx.Done():
		}
	}
	close(jobs)
	wg.Wait()

	if firstErr != nil {
		return nil, firstErr
	}
	return results, nil
}

func (s *Cons3rtSource) hostDetail(ctx context.Context, h runHost) (runHost, error) {
	body, err := s.get(ctx, fmt.Sprintf("/api/drs/%d/host/%d", h.runID, h.ID))
	if err != nil {
		return runHost{}, err
	}
	var detail runHost
	if err := json.Unmarshal(body, &detail); err != nil {
		return runHost{}, errors.WrapWithCode(err, errors.ErrInventory,
			fmt.Sprintf("Unexpected response for host %d in deployment run %d", h.ID, h.runID), "")
	}
	detail.runID = h.runID
	detail.runName = h.runName
	return detail, nil
}

// get issues an authenticated GET with a bounded retry loop. Transport
// errors and 5xx responses are retried after a fixed sleep; any other
// non-OK status fails immediately.
func (s *Cons3rtSource) get(ctx context.Context, target string) ([]byte, error) {
	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	maxAttempts := s.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = cons3rtMaxAttempts
	}
	sleep := s.RetrySleep
	if sleep <= 0 {
		sleep = cons3rtRetrySleep
	}

	url := s.BaseURL + target

	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			select {
			case <-time.After(sleep):
			case <-ctx.Done():
				return nil, ctx.Err()
			}
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
		if err != nil {
			return nil, errors.WrapWithCode(err, errors.ErrInventory,
				fmt.Sprintf("Invalid CONS3RT API URL: %s", url),
				"Check inventory.cons3rt.url in .enroll.yaml")
		}
		req.Header.Set("token", s.Token)
		req.Header.Set("Accept", "application/json")

		resp, err := client.Do(req)
		if err != nil {
			lastErr = err
			s.log().Warn("GET %s attempt %d/%d: %v", target, attempt, maxAttempts, err)
			continue
		}

		body, readErr := io.ReadAll(resp.Body)
		resp.Body.Close() //nolint:errcheck // Cleanup, error not actionable

		switch {
		case resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusAccepted:
			if readErr != nil {
				lastErr = readErr
				continue
			}
			return body, nil
		case resp.StatusCode >= 500:
			lastErr = fmt.Errorf("HTTP %d from %s", resp.StatusCode, target)
			s.log().Warn("GET %s attempt %d/%d: HTTP %d", target, attempt, maxAttempts, resp.StatusCode)
			continue
		default:
			return nil, errors.New(errors.ErrInventory,
				fmt.Sprintf("CONS3RT API returned HTTP %d for %s", resp.StatusCode, target),
				"Check that the token in the configured environment variable is valid for this project")
		}
	}

	return nil, errors.WrapWithCode(lastErr, errors.ErrInventory,
		fmt.Sprintf("CONS3RT API unreachable after %d attempts", maxAttempts),
		"Check network connectivity to the API and try again")
}

func (s *Cons3rtSource) log() logger.Logger {
	if s.Log == nil {
		return logger.Noop()
	}
	return s.Log
}
