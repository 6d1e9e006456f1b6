// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 Sigil Contributors

package main

import (
	"context"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/sigil-dev/ragbot/internal/channel/telegram"
	"github.com/sigil-dev/ragbot/internal/config"
	"github.com/sigil-dev/ragbot/internal/provider"
	"github.com/sigil-dev/ragbot/internal/secrets"
	ragerr "github.com/sigil-dev/ragbot/pkg/errors"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

// initHTTPClient is the HTTP client used for provider/Telegram validation.
// Exposed as a variable so tests can replace it.
var initHTTPClient = &http.Client{Timeout: 10 * time.Second}

// telegramSecretName is the keyring account holding the bot token.
const telegramSecretName = "telegram-token"

// initWizardStep tracks which step of the wizard is active.
type initWizardStep int

const (
	stepProvider      initWizardStep = iota // select provider
	stepAPIKey                              // enter API key
	stepValidateKey                         // validating key (spinner)
	stepTelegramToken                       // enter bot token or skip
	stepValidateToken                       // validating bot token (spinner)
	stepDone                                // wizard complete
	stepError                               // terminal error
)

// initResult holds the collected wizard configuration.
type initResult struct {
	Provider      provider.ProviderName
	APIKey        string
	TelegramToken string
}

// --- bubbletea messages ---

type (
	validationSuccessMsg struct{ step initWizardStep }
	validationErrorMsg   struct {
		step initWizardStep
		err  error
	}
)
type configWrittenMsg struct{ path string }

// --- lipgloss styles ---

var (
	titleStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("99"))
	promptStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("212"))
	selectedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("10")).Bold(true)
	dimStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("240"))
	errorStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	successStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	boxStyle      = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("62")).Padding(0, 1)
)

// initModel is the bubbletea model for the init wizard.
type initModel struct {
	step           initWizardStep
	providerIdx    int
	apiKeyInput    textinput.Model
	tokenInput     textinput.Model
	spinner        spinner.Model
	result         initResult
	validationErr  string
	configPath     string
	secretStore    secrets.Store
	errFinal       error
	skipTelegram   bool
	forceOverwrite bool
}

func newInitModel(store secrets.Store) initModel {
	apiKey := textinput.New()
	apiKey.Placeholder = "paste API key here"
	apiKey.EchoMode = textinput.EchoPassword
	apiKey.EchoCharacter = '•'

	token := textinput.New()
	token.Placeholder = "paste bot token here"
	token.EchoMode = textinput.EchoPassword
	token.EchoCharacter = '•'

	sp := spinner.New()
	sp.Spinner = spinner.Dot
	sp.Style = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))

	return initModel{
		step:        stepProvider,
		apiKeyInput: apiKey,
		tokenInput:  token,
		spinner:     sp,
		secretStore: store,
	}
}

func (m initModel) Init() tea.Cmd {
	return nil
}

func (m initModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return m.handleKey(msg)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd

	case validationSuccessMsg:
		return m.handleValidationSuccess(msg)

	case validationErrorMsg:
		m.validationErr = msg.err.Error()
		switch msg.step {
		case stepValidateKey:
			m.step = stepAPIKey
			m.apiKeyInput.Focus()
		case stepValidateToken:
			m.step = stepTelegramToken
			m.tokenInput.Focus()
		}
		return m, nil

	case configWrittenMsg:
		m.step = stepDone
		m.configPath = msg.path
		return m, tea.Quit

	case error:
		m.step = stepError
		m.errFinal = msg
		return m, tea.Quit
	}

	return m.updateInputs(msg)
}

func (m initModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepProvider:
		return m.handleProviderKey(msg)
	case stepAPIKey:
		return m.handleAPIKeyInput(msg)
	case stepTelegramToken:
		return m.handleTokenInput(msg)
	}
	return m, nil
}

func (m initModel) handleProviderKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "up", "k":
		if m.providerIdx > 0 {
			m.providerIdx--
		}
	case "down", "j":
		if m.providerIdx < len(provider.KnownProviders)-1 {
			m.providerIdx++
		}
	case "enter":
		m.result.Provider = provider.KnownProviders[m.providerIdx]
		m.step = stepAPIKey
		m.validationErr = ""
		m.apiKeyInput.SetValue("")
		m.apiKeyInput.Focus()
		return m, textinput.Blink
	case "q", "ctrl+c":
		return m, tea.Quit
	}
	return m, nil
}

func (m initModel) handleAPIKeyInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		key := strings.TrimSpace(m.apiKeyInput.Value())
		if key == "" {
			m.validationErr = "API key must not be empty"
			return m, nil
		}
		m.result.APIKey = key
		m.validationErr = ""
		m.step = stepValidateKey
		return m, tea.Batch(
			m.spinner.Tick,
			validateProviderKeyCmd(m.result.Provider, key),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
	return m, cmd
}

func (m initModel) handleTokenInput(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "enter":
		token := strings.TrimSpace(m.tokenInput.Value())
		if token == "" {
			// An empty token skips the Telegram front end.
			m.result.TelegramToken = ""
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.result.TelegramToken = token
		m.validationErr = ""
		m.step = stepValidateToken
		return m, tea.Batch(
			m.spinner.Tick,
			validateTelegramTokenCmd(token),
		)
	case "ctrl+c":
		return m, tea.Quit
	}
	var cmd tea.Cmd
	m.tokenInput, cmd = m.tokenInput.Update(msg)
	return m, cmd
}

func (m initModel) handleValidationSuccess(msg validationSuccessMsg) (tea.Model, tea.Cmd) {
	switch msg.step {
	case stepValidateKey:
		if m.skipTelegram {
			m.result.TelegramToken = ""
			return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
		}
		m.step = stepTelegramToken
		m.validationErr = ""
		m.tokenInput.SetValue("")
		m.tokenInput.Focus()
		return m, textinput.Blink
	case stepValidateToken:
		return m, writeConfigCmd(m.result, m.secretStore, m.forceOverwrite)
	}
	return m, nil
}

func (m initModel) updateInputs(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch m.step {
	case stepAPIKey:
		var cmd tea.Cmd
		m.apiKeyInput, cmd = m.apiKeyInput.Update(msg)
		return m, cmd
	case stepTelegramToken:
		var cmd tea.Cmd
		m.tokenInput, cmd = m.tokenInput.Update(msg)
		return m, cmd
	}
	return m, nil
}

func (m initModel) View() string {
	var b strings.Builder

	b.WriteString(titleStyle.Render("  ragbot setup  ") + "\n\n")

	switch m.step {
	case stepProvider:
		b.WriteString(promptStyle.Render("Step 1/2: Choose the LLM provider") + "\n\n")
		for i, p := range provider.KnownProviders {
			if i == m.providerIdx {
				b.WriteString(selectedStyle.Render("  > "+string(p)) + "\n")
			} else {
				b.WriteString(dimStyle.Render("    "+string(p)) + "\n")
			}
		}
		b.WriteString("\n" + dimStyle.Render("↑/↓ to navigate  enter to select  q to quit"))

	case stepAPIKey:
		b.WriteString(promptStyle.Render("Step 1/2: "+string(m.result.Provider)+" API key") + "\n\n")
		b.WriteString(m.apiKeyInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  ctrl+c to quit"))

	case stepValidateKey:
		b.WriteString(m.spinner.View() + " Validating " + string(m.result.Provider) + " API key…\n")

	case stepTelegramToken:
		b.WriteString(promptStyle.Render("Step 2/2: Telegram bot token (optional)") + "\n\n")
		b.WriteString(m.tokenInput.View() + "\n")
		if m.validationErr != "" {
			b.WriteString("\n" + errorStyle.Render("  "+m.validationErr) + "\n")
		}
		b.WriteString("\n" + dimStyle.Render("enter to continue  empty to skip  ctrl+c to quit"))

	case stepValidateToken:
		b.WriteString(m.spinner.View() + " Validating Telegram bot token…\n")

	case stepDone:
		b.WriteString(successStyle.Render("  Setup complete!  ") + "\n\n")
		if m.configPath != "" {
			b.WriteString(dimStyle.Render("Config written to: "+m.configPath) + "\n\n")
		}
		b.WriteString("Run " + promptStyle.Render("ragbot ingest <dir>") + " and " + promptStyle.Render("ragbot serve") + " to get started.\n")
		b.WriteString("Run " + promptStyle.Render("ragbot doctor") + " to verify setup.\n")

	case stepError:
		b.WriteString(errorStyle.Render("Setup failed: "+m.errFinal.Error()) + "\n")
	}

	return boxStyle.Render(b.String())
}

// --- tea.Cmd factories ---

func validateProviderKeyCmd(p provider.ProviderName, key string) tea.Cmd {
	return func() tea.Msg {
		if err := provider.ValidateKey(context.Background(), initHTTPClient, p, key); err != nil {
			return validationErrorMsg{step: stepValidateKey, err: err}
		}
		return validationSuccessMsg{step: stepValidateKey}
	}
}

func validateTelegramTokenCmd(token string) tea.Cmd {
	return func() tea.Msg {
		if _, err := telegram.ValidateToken(context.Background(), initHTTPClient, token); err != nil {
			return validationErrorMsg{step: stepValidateToken, err: err}
		}
		return validationSuccessMsg{step: stepValidateToken}
	}
}

func writeConfigCmd(result initResult, store secrets.Store, forceOverwrite bool) tea.Cmd {
	return func() tea.Msg {
		path, err := storeSecretAndWriteConfig(result, store, forceOverwrite)
		if err != nil {
			return err
		}
		return configWrittenMsg{path: path}
	}
}

// --- Config generation ---

// initConfig is the subset of the config file the wizard writes. Every other
// key keeps its default.
type initConfig struct {
	Providers  map[string]initProvider `yaml:"providers"`
	Completion initCompletion          `yaml:"completion"`
	Telegram   initTelegram            `yaml:"telegram"`
}

type initProvider struct {
	APIKey string `yaml:"api_key"`
}

type initCompletion struct {
	Model string `yaml:"model"`
}

type initTelegram struct {
	Enabled bool   `yaml:"enabled"`
	Token   string `yaml:"token,omitempty"`
}

const initConfigHeader = "# ragbot configuration, generated by ragbot init.\n" +
	"# Secrets live in the OS keyring; see `ragbot secret list`.\n" +
	"# Every other option keeps its default, see `ragbot doctor`.\n\n"

// GenerateConfigYAML produces a minimal ragbot.yaml from the wizard result.
// API keys are referenced via keyring:// URIs; the actual secrets are stored
// separately via storeSecretAndWriteConfig.
func GenerateConfigYAML(result initResult) (string, error) {
	name := string(result.Provider)
	cfg := initConfig{
		Providers: map[string]initProvider{
			name: {APIKey: secrets.Reference(secrets.DefaultService, providerSecretName(result.Provider))},
		},
		Completion: initCompletion{Model: defaultModelForProvider(result.Provider)},
	}
	if result.TelegramToken != "" {
		cfg.Telegram = initTelegram{
			Enabled: true,
			Token:   secrets.Reference(secrets.DefaultService, telegramSecretName),
		}
	}

	out, err := yaml.Marshal(cfg)
	if err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigParseInvalidFormat, "encoding config: %w", err)
	}
	return initConfigHeader + string(out), nil
}

func providerSecretName(p provider.ProviderName) string {
	return string(p) + "-api-key"
}

// defaultModelForProvider returns a sensible default model ref for a provider.
func defaultModelForProvider(p provider.ProviderName) string {
	switch p {
	case provider.ProviderGroq:
		return "groq/llama-3.3-70b-versatile"
	case provider.ProviderOpenAI:
		return "openai/gpt-4o-mini"
	case provider.ProviderAnthropic:
		return "anthropic/claude-sonnet-4-5"
	case provider.ProviderGoogle:
		return "google/gemini-2.0-flash"
	default:
		return string(p) + "/default"
	}
}

// storeSecretAndWriteConfig saves secrets to the OS keyring and writes the
// config YAML to the default config path.
//
// When forceOverwrite is false and the config file already exists, an error
// is returned asking the user to pass --force.
func storeSecretAndWriteConfig(result initResult, store secrets.Store, forceOverwrite bool) (string, error) {
	cfgPath, err := configPathForWrite()
	if err != nil {
		return "", err
	}
	if !forceOverwrite {
		if _, statErr := os.Stat(cfgPath); statErr == nil {
			return "", ragerr.Errorf(ragerr.CodeCLIInputInvalid,
				"config file already exists at %s; use --force to overwrite", cfgPath)
		}
	}

	// Secrets stored before a failed config write are not rolled back; a
	// successful re-run overwrites them.
	if err := store.Set(secrets.DefaultService, providerSecretName(result.Provider), result.APIKey); err != nil {
		return "", err
	}
	if result.TelegramToken != "" {
		if err := store.Set(secrets.DefaultService, telegramSecretName, result.TelegramToken); err != nil {
			return "", err
		}
	}

	content, err := GenerateConfigYAML(result)
	if err != nil {
		return "", err
	}

	dir := filepath.Dir(cfgPath)
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "creating config directory %s: %w", dir, err)
	}
	if err := os.WriteFile(cfgPath, []byte(content), 0o600); err != nil {
		return "", ragerr.Errorf(ragerr.CodeConfigLoadReadFailure, "writing config to %s: %w", cfgPath, err)
	}

	return cfgPath, nil
}

// configPathForWrite returns the path the wizard writes to. Declared as a
// variable so tests can override it.
var configPathForWrite = config.DefaultConfigPath

// --- Cobra command ---

func newInitCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "init",
		Short: "Interactive setup wizard",
		Long: `Run an interactive TUI wizard that walks you through:
  1. Choosing the LLM provider (Groq, OpenAI, Anthropic, Google) and its API key
  2. Optionally adding a Telegram bot token

Keys are validated, stored in the OS keyring and referenced via keyring://
URIs in the config file. No secrets are written in plain text.`,
		RunE: runInit,
	}

	cmd.Flags().Bool("skip-telegram", false, "Skip the Telegram step (HTTP API only)")
	cmd.Flags().Bool("force", false, "Overwrite existing config file")

	return cmd
}

func runInit(cmd *cobra.Command, _ []string) error {
	f, ok := cmd.InOrStdin().(*os.File)
	if !ok || !isTerminal(f) {
		_, _ = cmd.ErrOrStderr().Write([]byte(
			"ragbot init requires an interactive terminal.\n" +
				"To configure ragbot non-interactively, edit ~/.config/ragbot/ragbot.yaml and use 'ragbot secret set'.\n"))
		return ragerr.New(ragerr.CodeCLISetupFailure, "ragbot init: not an interactive terminal")
	}

	skipTelegram, _ := cmd.Flags().GetBool("skip-telegram")
	forceOverwrite, _ := cmd.Flags().GetBool("force")

	m := newInitModel(secretStoreFactory())
	m.skipTelegram = skipTelegram
	m.forceOverwrite = forceOverwrite

	p := tea.NewProgram(m, tea.WithAltScreen())
	finalModel, err := p.Run()
	if err != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "init wizard error: %w", err)
	}

	fm, ok := finalModel.(initModel)
	if !ok {
		return ragerr.New(ragerr.CodeCLISetupFailure, "unexpected model type after wizard")
	}
	if fm.errFinal != nil {
		return ragerr.Errorf(ragerr.CodeCLISetupFailure, "init failed: %w", fm.errFinal)
	}

	return nil
}

// isTerminal reports whether f is a terminal file descriptor.
func isTerminal(f *os.File) bool {
	fi, err := f.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}
