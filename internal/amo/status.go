package amo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/amotools/xpisign/internal/fsm"
)

type versionStatus struct {
	GUID             string       `json:"guid"`
	Processed        bool         `json:"processed"`
	Valid            bool         `json:"valid"`
	ValidationURL    string       `json:"validation_url"`
	AutomatedSigning bool         `json:"automated_signing"`
	Files            []fileStatus `json:"files"`
}

type fileStatus struct {
	DownloadURL string `json:"download_url"`
	Signed      bool   `json:"signed"`
	Hash        string `json:"hash"`
}

// awaitSigned polls the upload's status URL until the lifecycle reaches a
// terminal state or the signing timeout elapses. The returned state is either
// StateSigned or StateFailed.
func (c *Client) awaitSigned(ctx context.Context, statusURL string) (versionStatus, fsm.State, error) {
	pollCtx, cancel := context.WithTimeout(ctx, c.signingTimeout)
	defer cancel()

	state := fsm.StateReceived
	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		status, err := c.fetchStatus(pollCtx, statusURL)
		if err != nil {
			if pollCtx.Err() != nil && ctx.Err() == nil {
				return versionStatus{}, state, fmt.Errorf(
					"signing timed out after %s in state %s", c.signingTimeout, state)
			}
			return versionStatus{}, state, err
		}

		next, err := advance(state, status)
		if err != nil {
			return versionStatus{}, state, fmt.Errorf("signing service reported an inconsistent status: %w", err)
		}
		if next != state {
			c.debugLog("upload state changed", "from", string(state), "to", string(next))
			state = next
		}
		if fsm.Terminal(state) {
			return status, state, nil
		}

		select {
		case <-pollCtx.Done():
			if ctx.Err() != nil {
				return versionStatus{}, state, ctx.Err()
			}
			return versionStatus{}, state, fmt.Errorf(
				"signing timed out after %s in state %s", c.signingTimeout, state)
		case <-ticker.C:
		}
	}
}

func (c *Client) fetchStatus(ctx context.Context, statusURL string) (versionStatus, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, statusURL, nil)
	if err != nil {
		return versionStatus{}, fmt.Errorf("build status request: %w", err)
	}
	if err := c.authorize(httpReq); err != nil {
		return versionStatus{}, err
	}

	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return versionStatus{}, fmt.Errorf("poll upload status: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return versionStatus{}, httpStatusError("status poll", resp)
	}

	var status versionStatus
	if err := json.NewDecoder(resp.Body).Decode(&status); err != nil {
		return versionStatus{}, fmt.Errorf("decode status response: %w", err)
	}
	return status, nil
}

// advance replays every lifecycle event the polled status implies on top of
// the current state.
func advance(current fsm.State, status versionStatus) (fsm.State, error) {
	for _, event := range pendingEvents(current, status) {
		next, err := fsm.Transition(current, event)
		if err != nil {
			return current, err
		}
		current = next
	}
	return current, nil
}

func pendingEvents(current fsm.State, status versionStatus) []fsm.Event {
	var events []fsm.Event

	if current == fsm.StateReceived {
		events = append(events, fsm.EventBeginValidation)
		current = fsm.StateValidating
	}
	if !status.Processed {
		return events
	}
	if !status.Valid {
		return append(events, fsm.EventFail)
	}
	if current == fsm.StateValidating {
		events = append(events, fsm.EventPassValidation)
		current = fsm.StateValidated
	}
	if current == fsm.StateValidated {
		events = append(events, fsm.EventBeginSigning)
		current = fsm.StateSigning
	}
	if current == fsm.StateSigning && allSigned(status) {
		events = append(events, fsm.EventFinishSigning)
	}
	return events
}

// allSigned reports whether the service has produced at least one signed file
// and finished signing all of them.
func allSigned(status versionStatus) bool {
	if len(status.Files) == 0 {
		return false
	}
	for _, file := range status.Files {
		if !file.Signed || file.DownloadURL == "" {
			return false
		}
	}
	return true
}
