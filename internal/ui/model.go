// Package ui renders the session state in the terminal. It is a thin
// consumer: all chat semantics live in the session controller, the
// model only mirrors snapshots and forwards intents.
package ui

import (
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/meszmate/filibuster/internal/config"
	"github.com/meszmate/filibuster/internal/core"
	"github.com/meszmate/filibuster/internal/session"
)

// SessionEventMsg delivers a session event into the program. The main
// goroutine bridges the event bus to Program.Send with these.
type SessionEventMsg struct {
	Event session.Event
}

type composingClearMsg struct {
	key core.Identity
}

type chatLine struct {
	at       time.Time
	text     string
	outgoing bool
	system   bool
}

// Model is the root Bubble Tea model
type Model struct {
	sess   *session.Session
	cfg    *config.Config
	styles *Styles

	width  int
	height int
	ready  bool

	account   string
	connState string
	errText   string

	contacts []core.Contact
	selected int

	logs      map[core.Identity][]chatLine
	composing map[core.Identity]bool

	input      string
	typingSent bool

	quitting bool
}

// NewModel creates the root model for one account.
func NewModel(sess *session.Session, cfg *config.Config, account string) Model {
	return Model{
		sess:      sess,
		cfg:       cfg,
		styles:    DefaultStyles(),
		account:   account,
		connState: "connecting",
		logs:      make(map[core.Identity][]chatLine),
		composing: make(map[core.Identity]bool),
	}
}

// Init initializes the model
func (m Model) Init() tea.Cmd {
	return tea.EnterAltScreen
}

// Update handles messages
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		return m, nil

	case SessionEventMsg:
		return m.handleSessionEvent(msg.Event)

	case composingClearMsg:
		delete(m.composing, msg.key)
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(msg)
	}

	return m, nil
}

func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyCtrlC:
		m.quitting = true
		m.sess.Disconnect()
		return m, tea.Quit

	case tea.KeyUp:
		if m.selected > 0 {
			m.selected--
		}
		return m, nil

	case tea.KeyDown:
		if m.selected < len(m.contacts)-1 {
			m.selected++
		}
		return m, nil

	case tea.KeyCtrlA:
		if c, ok := m.selectedContact(); ok && c.Subscription == core.SubscriptionInboundRequest {
			if err := m.sess.AcceptSubscription(c.Key); err != nil {
				m.errText = err.Error()
			}
		}
		return m, nil

	case tea.KeyCtrlR:
		if c, ok := m.selectedContact(); ok && c.Subscription == core.SubscriptionInboundRequest {
			if err := m.sess.RejectSubscription(c.Key); err != nil {
				m.errText = err.Error()
			}
		}
		return m, nil

	case tea.KeyEnter:
		return m.sendInput()

	case tea.KeyBackspace:
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil

	case tea.KeyEsc:
		m.input = ""
		m.typingSent = false
		return m, nil

	case tea.KeySpace:
		m.input += " "
		return m, nil

	case tea.KeyRunes:
		m.input += string(msg.Runes)
		if !m.typingSent {
			if c, ok := m.selectedContact(); ok && c.Online() {
				// Best effort; the offline guard is authoritative.
				_ = m.sess.SendComposing(c.Key)
				m.typingSent = true
			}
		}
		return m, nil
	}

	return m, nil
}

func (m Model) sendInput() (tea.Model, tea.Cmd) {
	body := strings.TrimSpace(m.input)
	if body == "" {
		return m, nil
	}
	c, ok := m.selectedContact()
	if !ok {
		return m, nil
	}
	if err := m.sess.SendMessage(c.Key, body); err != nil {
		m.errText = err.Error()
		return m, nil
	}
	m.input = ""
	m.typingSent = false
	m.errText = ""
	m.logs[c.Key] = append(m.logs[c.Key], chatLine{at: time.Now(), text: body, outgoing: true})
	return m, nil
}

func (m Model) handleSessionEvent(e session.Event) (tea.Model, tea.Cmd) {
	switch e.Type {
	case session.EventConnected:
		m.connState = "online"
		if e.Degraded {
			m.connState = "online (degraded)"
		}
		m.errText = ""

	case session.EventDisconnected:
		m.connState = "offline"
		m.composing = make(map[core.Identity]bool)

	case session.EventConnectionError, session.EventAuthenticationError:
		m.connState = "failed"
		m.errText = e.Body

	case session.EventMessageReceived:
		m.logs[e.Key] = append(m.logs[e.Key], chatLine{at: time.Now(), text: e.Body})
		delete(m.composing, e.Key)

	case session.EventComposingReceived:
		m.composing[e.Key] = true
		m.refresh()
		key := e.Key
		return m, tea.Tick(10*time.Second, func(time.Time) tea.Msg {
			return composingClearMsg{key: key}
		})
	}

	m.refresh()
	return m, nil
}

// refresh re-reads the contact snapshot and keeps the selection in
// range.
func (m *Model) refresh() {
	m.contacts = m.sess.Contacts()
	if m.selected >= len(m.contacts) {
		m.selected = len(m.contacts) - 1
	}
	if m.selected < 0 {
		m.selected = 0
	}
}

func (m Model) selectedContact() (core.Contact, bool) {
	if m.selected < 0 || m.selected >= len(m.contacts) {
		return core.Contact{}, false
	}
	return m.contacts[m.selected], true
}

// View renders the UI
func (m Model) View() string {
	if !m.ready || m.quitting {
		return ""
	}

	paneHeight := m.height - 2
	if paneHeight < 1 {
		paneHeight = 1
	}
	rosterWidth := m.cfg.UI.RosterWidth
	if rosterWidth >= m.width {
		rosterWidth = m.width / 3
	}
	chatWidth := m.width - rosterWidth - 1

	roster := lipgloss.NewStyle().
		Width(rosterWidth).
		Height(paneHeight).
		Render(m.viewRoster(paneHeight))
	chat := lipgloss.NewStyle().
		Width(chatWidth).
		Height(paneHeight).
		Render(m.viewChat(paneHeight))

	top := lipgloss.JoinHorizontal(lipgloss.Top, roster, " ", chat)
	return top + "\n" + m.viewInput() + "\n" + m.viewStatus()
}

func (m Model) viewRoster(height int) string {
	if len(m.contacts) == 0 {
		return m.styles.ChatSystem.Render("no contacts")
	}
	lines := make([]string, 0, len(m.contacts))
	for i, c := range m.contacts {
		name := c.DisplayName
		style := m.styles.Roster
		if i == m.selected {
			style = m.styles.RosterSelected
			name = "> " + name
		} else {
			name = "  " + name
		}
		if c.Subscription == core.SubscriptionInboundRequest {
			style = m.styles.RosterPending
			name += " (wants to subscribe)"
		}
		lines = append(lines, m.presenceDot(c.Availability())+" "+style.Render(name))
	}
	if len(lines) > height {
		lines = lines[:height]
	}
	return strings.Join(lines, "\n")
}

func (m Model) viewChat(height int) string {
	c, ok := m.selectedContact()
	if !ok {
		return m.styles.ChatSystem.Render("select a contact")
	}

	lines := m.logs[c.Key]
	out := make([]string, 0, len(lines)+1)
	for _, l := range lines {
		prefix := ""
		if m.cfg.UI.ShowTimestamps {
			prefix = l.at.Format(m.cfg.UI.TimeFormat) + " "
		}
		style := m.styles.ChatIncoming
		who := c.DisplayName
		if l.outgoing {
			style = m.styles.ChatOutgoing
			who = "me"
		}
		if l.system {
			out = append(out, m.styles.ChatSystem.Render(prefix+l.text))
			continue
		}
		out = append(out, style.Render(fmt.Sprintf("%s%s: %s", prefix, who, l.text)))
	}
	if m.composing[c.Key] {
		out = append(out, m.styles.Composing.Render(c.DisplayName+" is typing..."))
	}
	if len(out) > height {
		out = out[len(out)-height:]
	}
	return strings.Join(out, "\n")
}

func (m Model) viewInput() string {
	return m.styles.InputPrompt.Render("> ") + m.input
}

func (m Model) viewStatus() string {
	dot := m.styles.PresenceOffline.Render("○")
	switch m.connState {
	case "online", "online (degraded)":
		dot = m.styles.PresenceOnline.Render("●")
	case "connecting":
		dot = m.styles.PresenceAway.Render("◐")
	case "failed":
		dot = m.styles.PresenceDND.Render("✗")
	}

	left := fmt.Sprintf(" %s %s [%s]", dot, m.account, m.connState)
	if m.errText != "" {
		left += " " + m.styles.StatusError.Render(m.errText)
	}

	padding := m.width - lipgloss.Width(left)
	if padding < 0 {
		padding = 0
	}
	return m.styles.StatusBar.Width(m.width).Render(left + strings.Repeat(" ", padding))
}

func (m Model) presenceDot(av core.Availability) string {
	switch av {
	case core.AvailabilityOnline:
		return m.styles.PresenceOnline.Render("●")
	case core.AvailabilityAway:
		return m.styles.PresenceAway.Render("◐")
	case core.AvailabilityDND:
		return m.styles.PresenceDND.Render("⊘")
	default:
		return m.styles.PresenceOffline.Render("○")
	}
}
