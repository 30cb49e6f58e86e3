package main

import (
	"bufio"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
)

type ConsoleConfig struct {
	APIBaseURL string
	Timeout    time.Duration
}

type ErrorResponse struct {
	Error string `json:"error"`
}

func main() {
	cfg := &ConsoleConfig{
		APIBaseURL: getEnv("API_BASE_URL", "http://localhost:8080"),
		Timeout:    30 * time.Second,
	}

	client := &http.Client{
		Timeout: cfg.Timeout,
	}

	if !testConnection(client, cfg.APIBaseURL) {
		fmt.Fprintf(os.Stderr, "Could not connect to the game server. Please ensure it is running.\nTry: docker-compose up -d\n")
		os.Exit(1)
	}

	session, err := registerSession(client, cfg.APIBaseURL)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to create session: %v\n", err)
		os.Exit(1)
	}

	reader := bufio.NewReader(os.Stdin)
	var named *NameResponse
	for {
		fmt.Print("Choose your character name: ")
		line, err := reader.ReadString('\n')
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to read name: %v\n", err)
			os.Exit(1)
		}
		name := strings.TrimSpace(line)
		if name == "" {
			continue
		}

		named, err = bindName(client, cfg.APIBaseURL, session.SessionID, name)
		if err != nil {
			if errors.Is(err, errNameTaken) {
				fmt.Printf("That name is taken by another live player. Pick another.\n")
				continue
			}
			fmt.Fprintf(os.Stderr, "Failed to bind name: %v\n", err)
			os.Exit(1)
		}
		break
	}

	events := make(chan Envelope, 64)
	go func() {
		if err := streamEvents(client, cfg.APIBaseURL, session.SessionID, events); err != nil {
			fmt.Fprintf(os.Stderr, "Event stream closed: %v\n", err)
		}
	}()

	p := tea.NewProgram(NewConsoleUI(cfg, client, session.SessionID, named, events),
		tea.WithAltScreen(),
		tea.WithMouseCellMotion())
	if _, err := p.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running program: %v\n", err)
		os.Exit(1)
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
