package main

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// Envelope mirrors the server's per-session outbound message.
type Envelope struct {
	Kind        string `json:"kind"`
	Seq         int64  `json:"seq,omitempty"`
	Participant string `json:"participant,omitempty"`
	Text        string `json:"text"`
}

type SessionResponse struct {
	SessionID string `json:"session_id"`
	State     string `json:"state"`
}

type NameResponse struct {
	SessionID string `json:"session_id"`
	Name      string `json:"name"`
	Location  string `json:"location"`
}

type IntentRequest struct {
	SessionID string `json:"session_id"`
	Kind      string `json:"kind"`
	Text      string `json:"text"`
}

type ResolveResponse struct {
	Status string `json:"status"`
}

// WorldSnapshot is the subset of the world state the console displays.
type WorldSnapshot struct {
	Name      string `json:"name"`
	Weather   string `json:"weather"`
	TimeOfDay string `json:"time_of_day"`
	Locations map[string]struct {
		Name string   `json:"name"`
		NPCs []string `json:"npcs,omitempty"`
	} `json:"locations"`
	Quests []struct {
		Title string `json:"title"`
	} `json:"quests,omitempty"`
}

func testConnection(client *http.Client, baseURL string) bool {
	resp, err := client.Get(baseURL + "/health")
	if err != nil {
		return false
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	return resp.StatusCode == http.StatusOK
}

func registerSession(client *http.Client, baseURL string) (*SessionResponse, error) {
	resp, err := client.Post(baseURL+"/v1/sessions", "application/json", nil)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return nil, apiError(resp.StatusCode, body)
	}

	var session SessionResponse
	if err := json.Unmarshal(body, &session); err != nil {
		return nil, fmt.Errorf("failed to parse session response: %w", err)
	}
	return &session, nil
}

// errNameTaken distinguishes a 409 so the caller can re-prompt.
var errNameTaken = fmt.Errorf("name is already in use")

func bindName(client *http.Client, baseURL, sessionID, name string) (*NameResponse, error) {
	jsonData, err := json.Marshal(map[string]string{"name": name})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(
		fmt.Sprintf("%s/v1/sessions/%s/name", baseURL, sessionID),
		"application/json",
		bytes.NewBuffer(jsonData),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode == http.StatusConflict {
		return nil, errNameTaken
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var named NameResponse
	if err := json.Unmarshal(body, &named); err != nil {
		return nil, fmt.Errorf("failed to parse name response: %w", err)
	}
	return &named, nil
}

func sendIntent(client *http.Client, baseURL, sessionID, kind, text string) error {
	jsonData, err := json.Marshal(IntentRequest{
		SessionID: sessionID,
		Kind:      kind,
		Text:      text,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	resp, err := client.Post(baseURL+"/v1/intents", "application/json", bytes.NewBuffer(jsonData))
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusAccepted {
		return apiError(resp.StatusCode, body)
	}
	return nil
}

func triggerResolve(client *http.Client, baseURL string) (string, error) {
	resp, err := client.Post(baseURL+"/v1/resolve", "application/json", nil)
	if err != nil {
		return "", fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusAccepted {
		return "", apiError(resp.StatusCode, body)
	}

	var result ResolveResponse
	if err := json.Unmarshal(body, &result); err != nil {
		return "", fmt.Errorf("failed to parse resolve response: %w", err)
	}
	return result.Status, nil
}

func getWorld(client *http.Client, baseURL string) (*WorldSnapshot, error) {
	resp, err := client.Get(baseURL + "/v1/world")
	if err != nil {
		return nil, fmt.Errorf("failed to send request: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, apiError(resp.StatusCode, body)
	}

	var snap WorldSnapshot
	if err := json.Unmarshal(body, &snap); err != nil {
		return nil, fmt.Errorf("failed to parse world response: %w", err)
	}
	return &snap, nil
}

func apiError(status int, body []byte) error {
	var errorResp ErrorResponse
	if err := json.Unmarshal(body, &errorResp); err != nil {
		return fmt.Errorf("API returned status %d: %s", status, string(body))
	}
	return fmt.Errorf("%s", errorResp.Error)
}

// streamEvents reads the session's SSE stream and forwards each
// envelope onto ch. It returns when the stream closes.
func streamEvents(client *http.Client, baseURL, sessionID string, ch chan<- Envelope) error {
	defer close(ch)

	// The SSE request must not share the short API timeout.
	streamClient := &http.Client{Transport: client.Transport}
	resp, err := streamClient.Get(fmt.Sprintf("%s/v1/sessions/%s/events", baseURL, sessionID))
	if err != nil {
		return fmt.Errorf("failed to open event stream: %w", err)
	}
	defer func() {
		_ = resp.Body.Close() // Ignore error in defer
	}()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("event stream returned status %d", resp.StatusCode)
	}

	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var eventType string
	for scanner.Scan() {
		line := scanner.Text()
		switch {
		case strings.HasPrefix(line, "event: "):
			eventType = strings.TrimPrefix(line, "event: ")
		case strings.HasPrefix(line, "data: "):
			if eventType == "connected" {
				continue
			}
			var env Envelope
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &env); err != nil {
				continue
			}
			ch <- env
		}
	}
	return scanner.Err()
}
