package config

import (
	"bufio"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/rs/zerolog/log"
)

// PromptCredentials asks for any missing username or password.
func PromptCredentials(cfg *Config, in io.Reader, out io.Writer) {
	reader := bufio.NewReader(in)

	creds := cfg.WorkflowOptions().Credentials
	if creds.Username == "" {
		creds.Username = promptString(reader, out, "Username", "")
	}
	if creds.Password == "" {
		creds.Password = promptPassword(reader, out, "Password")
	}
	cfg.SetCredentials(creds)
}

// RunSetupWizard walks through the main options and saves the result.
// The password is never written by the wizard; supply it through
// SAGE_PASSWORD or the interactive prompt.
func RunSetupWizard(cfg *Config, in io.Reader, out io.Writer) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "sagereplay setup")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Account ──")

	cfg.mu.Lock()
	cfg.Credentials.Username = promptString(reader, out, "Username", cfg.Credentials.Username)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Gateway ──")
	cfg.BaseURL = promptString(reader, out, "Gateway base URL", cfg.BaseURL)
	cfg.Channel = promptString(reader, out, "Client channel", cfg.Channel)
	cfg.RequestTimeoutSec = promptInt(reader, out, "Request timeout (seconds)", cfg.RequestTimeoutSec)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Session ──")
	cfg.IncludeEvents = promptBool(reader, out, "Call EventsService.get", cfg.IncludeEvents)
	cfg.SelectedCharacterIndex = promptInt(reader, out, "Character index for detail", cfg.SelectedCharacterIndex)

	fmt.Fprintln(out)
	fmt.Fprintln(out, "── Telemetry ──")
	cfg.MQTT.Enabled = promptBool(reader, out, "Enable MQTT telemetry", cfg.MQTT.Enabled)
	if cfg.MQTT.Enabled {
		cfg.MQTT.BrokerURL = promptString(reader, out, "MQTT broker host", cfg.MQTT.BrokerURL)
	}
	password := cfg.Credentials.Password
	cfg.Credentials.Password = ""
	cfg.mu.Unlock()

	result := Validate(cfg)
	if !result.IsValid() {
		fmt.Fprintln(out, "\nConfiguration has errors:")
		for _, e := range result.Errors {
			fmt.Fprintf(out, "  - [%s] %s\n", e.Field, e.Message)
		}
		cfg.restorePassword(password)
		return fmt.Errorf("configuration validation failed")
	}
	for _, w := range result.Warnings {
		log.Warn().Str("field", w.Field).Msg(w.Message)
	}

	err := cfg.Save()
	cfg.restorePassword(password)
	if err != nil {
		return fmt.Errorf("failed to save configuration: %w", err)
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "Configuration saved to %s\n", cfg.Path())
	return nil
}

func (c *Config) restorePassword(password string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.Credentials.Password = password
}

func promptString(reader *bufio.Reader, out io.Writer, prompt string, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultVal)
	} else {
		fmt.Fprintf(out, "  %s: ", prompt)
	}

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}

func promptPassword(reader *bufio.Reader, out io.Writer, prompt string) string {
	fmt.Fprintf(out, "  %s: ", prompt)
	input, _ := reader.ReadString('\n')
	return strings.TrimRight(input, "\r\n")
}

func promptInt(reader *bufio.Reader, out io.Writer, prompt string, defaultVal int) int {
	fmt.Fprintf(out, "  %s [%d]: ", prompt, defaultVal)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}

	val, err := strconv.Atoi(input)
	if err != nil {
		fmt.Fprintf(out, "    Invalid number, using default: %d\n", defaultVal)
		return defaultVal
	}
	return val
}

func promptBool(reader *bufio.Reader, out io.Writer, prompt string, defaultVal bool) bool {
	defaultStr := "no"
	if defaultVal {
		defaultStr = "yes"
	}

	fmt.Fprintf(out, "  %s [%s]: ", prompt, defaultStr)

	input, _ := reader.ReadString('\n')
	input = strings.TrimSpace(strings.ToLower(input))

	if input == "" {
		return defaultVal
	}

	return input == "yes" || input == "y" || input == "true" || input == "1"
}
