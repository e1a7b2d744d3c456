package config

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Wizard provides an interactive configuration wizard
type Wizard struct {
	reader *bufio.Reader
}

// NewWizard creates a new configuration wizard
func NewWizard() *Wizard {
	return &Wizard{
		reader: bufio.NewReader(os.Stdin),
	}
}

// Run runs the interactive configuration wizard
func (w *Wizard) Run() (*Config, error) {
	fmt.Println("=== webagentd Configuration Wizard ===")
	fmt.Println()

	cfg := DefaultConfig()
	validator := NewValidator()

	// LLM provider
	fmt.Println("LLM Provider:")
	fmt.Println("  anthropic - Claude models")
	fmt.Println("  openai    - GPT models")
	for {
		fmt.Printf("Provider [%s]: ", cfg.LLM.Provider)
		provider, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if provider == "" {
			break
		}
		if err := validator.ValidateProvider(provider); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.LLM.Provider = provider
		break
	}

	if cfg.LLM.Provider == "anthropic" {
		cfg.LLM.Model = "claude-3-5-sonnet-20241022"
	}

	// API key
	for {
		fmt.Printf("%s API Key: ", cfg.LLM.Provider)
		key, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if err := validator.ValidateAPIKey(key, cfg.LLM.Provider); err != nil {
			fmt.Printf("Error: %v\n", err)
			continue
		}

		cfg.LLM.APIKey = key
		break
	}

	// Model
	fmt.Printf("Model name [%s]: ", cfg.LLM.Model)
	model, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if model != "" {
		cfg.LLM.Model = model
	}

	fmt.Println()

	// Browser
	fmt.Println("Browser:")
	fmt.Print("Run browsers headless? (y/n) [n]: ")
	headless, err := w.readLine()
	if err != nil {
		return nil, err
	}
	cfg.Browser.Headless = strings.ToLower(headless) == "y"

	fmt.Println()

	// Server
	fmt.Println("Server:")
	for {
		fmt.Printf("Listen port [%d]: ", cfg.Server.Port)
		portText, err := w.readLine()
		if err != nil {
			return nil, err
		}

		if portText == "" {
			break
		}
		port, err := strconv.Atoi(portText)
		if err != nil || port <= 0 || port > 65535 {
			fmt.Println("Error: port must be a number between 1 and 65535")
			continue
		}

		cfg.Server.Port = port
		break
	}

	fmt.Println()

	// Log level
	fmt.Println("Logging:")
	fmt.Print("Log level (debug/info/warn/error) [info]: ")
	level, err := w.readLine()
	if err != nil {
		return nil, err
	}
	if level != "" {
		if err := validator.ValidateLogLevel(level); err != nil {
			fmt.Printf("Warning: %v, using default (info)\n", err)
		} else {
			cfg.Logging.Level = level
		}
	}

	fmt.Println()
	fmt.Println("Configuration complete!")

	return cfg, nil
}

func (w *Wizard) readLine() (string, error) {
	line, err := w.reader.ReadString('\n')
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
