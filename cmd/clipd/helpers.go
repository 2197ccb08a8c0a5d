package main

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"go.clipd.dev/clipd/internal/item"
)

func isContainerID(s string) bool {
	if len(s) < 12 || len(s) > 64 {
		return false
	}
	for _, c := range s {
		if !((c >= '0' && c <= '9') || (c >= 'a' && c <= 'f')) {
			return false
		}
	}
	return true
}

// defaultDevice returns a human-readable identifier for this device.
func defaultDevice() string {
	for _, env := range []string{
		"CLIPD_DEVICE",
		"CONTAINER_NAME",
		"COMPOSE_SERVICE",
		"HOSTNAME_FRIENDLY",
	} {
		if v := os.Getenv(env); v != "" {
			return v
		}
	}
	h, err := os.Hostname()
	if err != nil {
		return "unknown"
	}
	if isContainerID(h) {
		return "container-" + h[:8]
	}
	return h
}

// httpClient is shared by the one-shot CLI commands.
var httpClient = &http.Client{Timeout: 10 * time.Second}

// fetchHistory queries the relay's REST API for a user's recent clips,
// newest first.
func fetchHistory(relayAddr, userID, token string, limit int) ([]item.Item, error) {
	url := fmt.Sprintf("http://%s/api/clips/%s?limit=%d", relayAddr, userID, limit)
	req, err := http.NewRequest(http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("relay request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, fmt.Errorf("relay returned %s: %s", resp.Status, body)
	}

	var items []item.Item
	if err := json.NewDecoder(resp.Body).Decode(&items); err != nil {
		return nil, fmt.Errorf("decoding history: %w", err)
	}
	return items, nil
}
