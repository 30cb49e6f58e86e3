package main

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/textarea"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/muesli/reflow/wordwrap"
)

const (
	AgentName       = "Game Master"
	PlaceHolderText = "Speak, act, or /command..."
)

// transcriptLine is one rendered entry in the chat log.
type transcriptLine struct {
	speaker string
	text    string
	notice  bool
}

// ConsoleUI is the BubbleTea model that runs the UI.
// https://github.com/charmbracelet/bubbletea
type ConsoleUI struct {
	config       *ConsoleConfig
	client       *http.Client
	sessionID    string
	playerName   string
	location     string
	world        *WorldSnapshot
	events       <-chan Envelope
	transcript   []transcriptLine
	chatViewport viewport.Model
	metaViewport viewport.Model
	textarea     textarea.Model
	ready        bool
	width        int
	height       int
	err          error
	resolving    bool

	// Quit confirmation state
	showQuitModal bool
}

type envelopeMsg struct {
	env Envelope
	ok  bool
}

type resolveMsg struct {
	status string
	err    error
}

type intentSentMsg struct {
	kind string
	text string
	err  error
}

type worldMsg struct {
	world *WorldSnapshot
	err   error
}

var (
	chatPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(1).
			PaddingLeft(3).
			PaddingRight(0)

	metaPanelStyle = lipgloss.NewStyle().
			PaddingTop(2).
			PaddingBottom(0).
			PaddingLeft(0).
			PaddingRight(2)

	titleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")). // pink
			Bold(true)

	speakerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("212")). // purple
			Bold(true)

	narratorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("86")) // green

	userStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("39")) // teal

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")) // red

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214")) // yellow

	promptStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey

	modalStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(1, 2).
			Background(lipgloss.Color("235")).
			Foreground(lipgloss.Color("255"))

	modalTitleStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("205")).
			Bold(true).
			Align(lipgloss.Center)

	separatorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("240")) // dark grey
)

func NewConsoleUI(cfg *ConsoleConfig, client *http.Client, sessionID string, named *NameResponse, events <-chan Envelope) ConsoleUI {
	ta := textarea.New()
	ta.Placeholder = PlaceHolderText
	ta.Focus()
	ta.Prompt = promptStyle.Render(":: ")
	ta.CharLimit = 1000
	ta.SetWidth(50)
	ta.SetHeight(3)
	ta.ShowLineNumbers = false

	chatVp := viewport.New(50, 20)
	chatVp.MouseWheelEnabled = true

	metaVp := viewport.New(20, 20)

	return ConsoleUI{
		config:     cfg,
		client:     client,
		sessionID:  sessionID,
		playerName: named.Name,
		location:   named.Location,
		events:     events,
		textarea:   ta,
		chatViewport: chatVp,
		metaViewport: metaVp,
	}
}

func (m ConsoleUI) Init() tea.Cmd {
	return tea.Batch(textarea.Blink, m.waitForEnvelope(), m.refreshWorld())
}

func (m ConsoleUI) waitForEnvelope() tea.Cmd {
	return func() tea.Msg {
		env, ok := <-m.events
		return envelopeMsg{env: env, ok: ok}
	}
}

func (m ConsoleUI) refreshWorld() tea.Cmd {
	return func() tea.Msg {
		w, err := getWorld(m.client, m.config.APIBaseURL)
		return worldMsg{world: w, err: err}
	}
}

func (m ConsoleUI) sendIntentCmd(kind, text string) tea.Cmd {
	return func() tea.Msg {
		err := sendIntent(m.client, m.config.APIBaseURL, m.sessionID, kind, text)
		return intentSentMsg{kind: kind, text: text, err: err}
	}
}

func (m ConsoleUI) resolveCmd() tea.Cmd {
	return func() tea.Msg {
		status, err := triggerResolve(m.client, m.config.APIBaseURL)
		return resolveMsg{status: status, err: err}
	}
}

func (m ConsoleUI) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if m.showQuitModal {
		return m.updateQuitModal(msg)
	}

	var (
		tiCmd tea.Cmd
		vpCmd tea.Cmd
		mvCmd tea.Cmd
	)

	switch msg := msg.(type) {
	case tea.MouseMsg:
		m.chatViewport, vpCmd = m.chatViewport.Update(msg)
		m.textarea, tiCmd = m.textarea.Update(msg)
		m.metaViewport, mvCmd = m.metaViewport.Update(msg)
		return m, tea.Batch(tiCmd, vpCmd, mvCmd)

	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

		chatWidth := int(float64(m.width)*0.75) - 4
		metaWidth := m.width - chatWidth - 6

		m.chatViewport.Width = chatWidth - 2
		m.chatViewport.Height = m.height - 7
		m.metaViewport.Width = metaWidth - 2
		m.metaViewport.Height = m.height - 4
		m.textarea.SetWidth(chatWidth - 4)

		m.ready = true
		m.writeChatContent()
		m.metaViewport.SetContent(m.writeMetadata())

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc:
			m.showQuitModal = true
			return m, nil
		case tea.KeyEnter:
			input := strings.TrimSpace(m.textarea.Value())
			if input == "" {
				return m, nil
			}
			m.textarea.Reset()

			if strings.HasPrefix(input, "/") {
				return m.handleCommand(input)
			}

			// Bare text is speech.
			m.appendLine(m.playerName, input, false)
			m.writeChatContent()
			return m, m.sendIntentCmd("say", input)
		}

	case envelopeMsg:
		if !msg.ok {
			m.appendLine("", "Connection to the game server was lost.", true)
			m.writeChatContent()
			return m, nil
		}
		switch msg.env.Kind {
		case "narration":
			m.appendLine(AgentName, msg.env.Text, false)
		case "summary":
			m.resolving = false
			m.appendLine(AgentName, msg.env.Text, false)
		default:
			m.appendLine("", msg.env.Text, true)
		}
		m.writeChatContent()
		return m, tea.Batch(m.waitForEnvelope(), m.refreshWorld())

	case intentSentMsg:
		if msg.err != nil {
			m.appendLine("", "Error: "+msg.err.Error(), true)
			m.writeChatContent()
		}

	case resolveMsg:
		if msg.err != nil {
			m.resolving = false
			m.appendLine("", "Error: "+msg.err.Error(), true)
		} else if msg.status != "resolved" {
			m.resolving = false
			m.appendLine("", msg.status, true)
		}
		m.writeChatContent()

	case worldMsg:
		if msg.err == nil && msg.world != nil {
			m.world = msg.world
			m.metaViewport.SetContent(m.writeMetadata())
		}
	}

	m.textarea, tiCmd = m.textarea.Update(msg)
	m.chatViewport, vpCmd = m.chatViewport.Update(msg)
	m.metaViewport, mvCmd = m.metaViewport.Update(msg)

	return m, tea.Batch(tiCmd, vpCmd, mvCmd)
}

func (m *ConsoleUI) appendLine(speaker, text string, notice bool) {
	m.transcript = append(m.transcript, transcriptLine{speaker: speaker, text: text, notice: notice})
}

func (m ConsoleUI) handleCommand(input string) (tea.Model, tea.Cmd) {
	parts := strings.SplitN(input, " ", 2)
	cmd := strings.ToLower(parts[0])
	arg := ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/do", "/say", "/scene":
		if arg == "" {
			m.appendLine("", fmt.Sprintf("Usage: %s <text>", cmd), true)
			m.writeChatContent()
			return m, nil
		}
		kind := strings.TrimPrefix(cmd, "/")
		m.appendLine(m.playerName, arg, false)
		m.writeChatContent()
		return m, m.sendIntentCmd(kind, arg)

	case "/resolve":
		m.resolving = true
		m.appendLine("", "Asking the Game Master to resolve pending actions...", true)
		m.writeChatContent()
		return m, m.resolveCmd()

	case "/copy":
		// Copy the last narration for sharing.
		for i := len(m.transcript) - 1; i >= 0; i-- {
			if m.transcript[i].speaker == AgentName {
				if err := clipboard.WriteAll(m.transcript[i].text); err != nil {
					m.appendLine("", "Error: "+err.Error(), true)
				} else {
					m.appendLine("", "Last narration copied to clipboard.", true)
				}
				break
			}
		}
		m.writeChatContent()
		return m, nil

	case "/help":
		helpText := `
Commands:
• /say <text>   - Speak in character (bare text does the same)
• /do <text>    - Attempt an action
• /scene <text> - Add a scene element to the story
• /resolve      - Ask the Game Master to resolve pending actions
• /copy         - Copy the last narration to the clipboard
• /help         - Show this help
• Ctrl+C        - Quit

Actions from all players queue up until someone resolves.
`
		m.appendLine("", helpText, true)
		m.writeChatContent()
		return m, nil

	default:
		m.appendLine("", "Unknown command: "+cmd+" (try /help)", true)
		m.writeChatContent()
		return m, nil
	}
}

// writeChatContent rebuilds the transcript for the current width.
func (m *ConsoleUI) writeChatContent() {
	chatWidth := m.chatViewport.Width - 6
	if chatWidth < 10 {
		chatWidth = 10
	}

	var content strings.Builder
	content.WriteString(titleStyle.Render("GM ENGINE") + "\n\n")
	content.WriteString("A shared story, told one resolved batch at a time.\n\n")
	content.WriteString(separatorStyle.Render(strings.Repeat("─", chatWidth-6)) + "\n\n")

	for _, line := range m.transcript {
		switch {
		case line.notice:
			content.WriteString(noticeStyle.Render(wordwrap.String(line.text, chatWidth)) + "\n\n")
		case line.speaker == AgentName:
			wrapped := wordwrap.String(line.text, chatWidth-len(AgentName)-2)
			content.WriteString(narratorStyle.Render(AgentName+": ") + wrapped + "\n\n")
		default:
			content.WriteString(userStyle.Render(line.speaker+": ") + wordwrap.String(line.text, chatWidth-6) + "\n\n")
		}
	}

	if m.resolving {
		content.WriteString(noticeStyle.Render("The Game Master considers the scene...") + "\n")
	}

	m.chatViewport.SetContent(content.String())
	m.chatViewport.GotoBottom()
}

func (m ConsoleUI) writeMetadata() string {
	var content strings.Builder
	content.WriteString(titleStyle.Render("WORLD") + "\n\n")

	content.WriteString("Playing as:\n")
	content.WriteString(speakerStyle.Render(m.playerName) + "\n\n")

	content.WriteString("Location:\n")
	content.WriteString(m.location + "\n\n")

	if m.world != nil {
		content.WriteString("Weather:\n")
		content.WriteString(m.world.Weather + "\n\n")
		content.WriteString("Time of day:\n")
		content.WriteString(m.world.TimeOfDay + "\n\n")

		if loc, ok := m.world.Locations[m.location]; ok && len(loc.NPCs) > 0 {
			content.WriteString("Present here:\n")
			for _, npc := range loc.NPCs {
				content.WriteString("• " + npc + "\n")
			}
			content.WriteString("\n")
		}

		if len(m.world.Quests) > 0 {
			content.WriteString("Quests:\n")
			for _, q := range m.world.Quests {
				content.WriteString("• " + q.Title + "\n")
			}
			content.WriteString("\n")
		}
	}

	content.WriteString("Commands:\n")
	content.WriteString("• Ctrl+C: Quit\n")
	content.WriteString("• Enter: Send\n")
	content.WriteString("• /help: Help\n")
	content.WriteString("• /resolve: Resolve\n")

	return content.String()
}

func (m ConsoleUI) updateQuitModal(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height

	case tea.KeyMsg:
		switch msg.Type {
		case tea.KeyCtrlC, tea.KeyEsc, tea.KeyEnter:
			return m, tea.Quit
		default:
			switch msg.String() {
			case "y", "Y":
				return m, tea.Quit
			case "n", "N":
				m.showQuitModal = false
				m.textarea.Focus()
				return m, textarea.Blink
			}
		}
	}

	return m, nil
}

func (m ConsoleUI) renderQuitModal() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var content strings.Builder
	content.WriteString(modalTitleStyle.Render("Leave the Story?"))
	content.WriteString("\n\n")
	content.WriteString("Your character stays in the world; bind the same name to return.")
	content.WriteString("\n\n")
	content.WriteString(promptStyle.Render("Press Y to quit, N to continue, or Ctrl+C to force quit"))

	modal := modalStyle.Width(56).Render(content.String())
	return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, modal, lipgloss.WithWhitespaceChars(" "))
}

func (m ConsoleUI) View() string {
	if m.showQuitModal {
		return m.renderQuitModal()
	}

	if !m.ready {
		return "\n  Initializing..."
	}

	chatWidth := int(float64(m.width)*0.75) - 4
	metaWidth := m.width - chatWidth - 6

	chatPanel := chatPanelStyle.Width(chatWidth).Height(m.height - 3).Render(
		lipgloss.JoinVertical(lipgloss.Left,
			m.chatViewport.View(),
			"",
			separatorStyle.Render(strings.Repeat("─", chatWidth-4)),
			m.textarea.View(),
		),
	)

	metaPanel := metaPanelStyle.Width(metaWidth).Height(m.height - 2).Render(
		m.metaViewport.View(),
	)

	return lipgloss.JoinHorizontal(lipgloss.Top, chatPanel, metaPanel)
}
