// Package ui, core'un üstündeki tek ekranlık terminal istemcisidir:
// solda konuşma listesi + unread badge'leri, sağda açık konuşmanın mesaj
// paneli ve giriş satırı.
//
// Bu katman reconciliation bilmez — session'ın render callback'inden gelen
// Snapshot'ları çizer ve kullanıcı girdisini session operasyonlarına çevirir.
// Snapshot'lar tea mesajı olarak event loop'a enjekte edilir (program.Send),
// böylece tüm model mutation'ları bubbletea'nin tek goroutine'inde kalır.
package ui

import (
	"context"
	"fmt"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/akinalp/ulak/models"
	"github.com/akinalp/ulak/services"
)

const typingThrottle = 2 * time.Second

// ChannelLister, konuşma listesi için REST sözleşmesi.
type ChannelLister interface {
	ListChannels(ctx context.Context) ([]models.ChannelInfo, error)
}

// Deps, modelin dışarıdan aldığı her şey. main'de kurulur, global yok.
type Deps struct {
	Session   *services.ConversationSession
	Unreads   *services.UnreadService
	Channels  ChannelLister
	SelfID    string
	UploadDir string // relatif medya yolları bu dizine göre çözülür
}

type focusArea int

const (
	focusList focusArea = iota
	focusInput
)

// Dışarıdan enjekte edilen mesajlar — session.OnRender ve unreads.OnChange
// callback'leri bunları program.Send ile iletir.
type (
	SnapshotMsg    struct{ Snapshot services.Snapshot }
	UnreadTotalMsg struct{ Total int }
)

type channelsMsg struct {
	channels []models.ChannelInfo
	err      error
}

type opDoneMsg struct{ err error }

type Model struct {
	deps Deps

	width  int
	height int

	channels []models.ChannelInfo
	cursor   int
	focus    focusArea

	snap        services.Snapshot
	totalUnread int
	input       []rune
	lastTyping  time.Time
	errText     string
}

func NewModel(deps Deps) *Model {
	return &Model{deps: deps}
}

func (m *Model) Init() tea.Cmd {
	return tea.Batch(m.loadChannelsCmd(), m.refreshUnreadsCmd())
}

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch typed := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = typed.Width
		m.height = typed.Height
		return m, nil

	case channelsMsg:
		if typed.err != nil {
			m.errText = typed.err.Error()
			return m, nil
		}
		m.channels = typed.channels
		if m.cursor >= len(m.channels) {
			m.cursor = 0
		}
		return m, nil

	case SnapshotMsg:
		m.snap = typed.Snapshot
		return m, nil

	case UnreadTotalMsg:
		m.totalUnread = typed.Total
		return m, nil

	case opDoneMsg:
		if typed.err != nil {
			m.errText = typed.err.Error()
		} else {
			m.errText = ""
		}
		return m, nil

	case tea.KeyMsg:
		return m.handleKey(typed)
	}
	return m, nil
}

func (m *Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		m.deps.Session.Close()
		return m, tea.Quit
	case "tab":
		if m.focus == focusList {
			m.focus = focusInput
		} else {
			m.focus = focusList
		}
		return m, nil
	case "pgup":
		return m, m.loadOlderCmd()
	}

	if m.focus == focusList {
		return m.handleListKey(msg)
	}
	return m.handleInputKey(msg)
}

func (m *Model) handleListKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		m.deps.Session.Close()
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.channels)-1 {
			m.cursor++
		}
	case "R":
		return m, tea.Batch(m.loadChannelsCmd(), m.refreshUnreadsCmd())
	case "enter":
		if len(m.channels) == 0 {
			return m, nil
		}
		ch := m.channels[m.cursor]
		if ch.OtherUser == nil {
			return m, nil
		}
		m.focus = focusInput
		return m, m.openCmd(ch.OtherUser.ID, ch.OtherUser)
	}
	return m, nil
}

func (m *Model) handleInputKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "esc":
		m.focus = focusList
		return m, nil
	case "enter":
		text := strings.TrimSpace(string(m.input))
		m.input = nil
		if text == "" {
			return m, nil
		}
		if strings.HasPrefix(text, "/") {
			return m, m.commandCmd(text)
		}
		return m, m.sendCmd(text)
	case "backspace":
		if len(m.input) > 0 {
			m.input = m.input[:len(m.input)-1]
		}
		return m, nil
	}

	if msg.Type == tea.KeyRunes || msg.Type == tea.KeySpace {
		if msg.Type == tea.KeySpace {
			m.input = append(m.input, ' ')
		} else {
			m.input = append(m.input, msg.Runes...)
		}
		// Yazıyor sinyali throttle'lanır — her tuşta emit etmek gereksiz.
		if m.snap.State == services.SessionReady && time.Since(m.lastTyping) > typingThrottle {
			m.lastTyping = time.Now()
			m.deps.Session.Typing()
		}
	}
	return m, nil
}

// ---- komutlar ----

func (m *Model) loadChannelsCmd() tea.Cmd {
	return func() tea.Msg {
		channels, err := m.deps.Channels.ListChannels(context.Background())
		return channelsMsg{channels: channels, err: err}
	}
}

func (m *Model) refreshUnreadsCmd() tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.deps.Unreads.Refresh(context.Background())}
	}
}

func (m *Model) openCmd(partnerID string, hint *models.PartnerMeta) tea.Cmd {
	return func() tea.Msg {
		return opDoneMsg{err: m.deps.Session.Open(context.Background(), partnerID, hint)}
	}
}

func (m *Model) sendCmd(text string) tea.Cmd {
	return func() tea.Msg {
		m.deps.Session.Send(context.Background(), text)
		return opDoneMsg{}
	}
}

// commandCmd, "/" ile başlayan girişleri session operasyonlarına çevirir:
//
//	/foto <path>           medya gönder (fotoğraf)
//	/ses <path>            medya gönder (sesli mesaj)
//	/duzenle <id> <metin>  mesajı düzenle
//	/sil <id>              mesajı sil
func (m *Model) commandCmd(text string) tea.Cmd {
	parts := strings.SplitN(text, " ", 3)
	cmd, arg := parts[0], ""
	if len(parts) > 1 {
		arg = strings.TrimSpace(parts[1])
	}

	switch cmd {
	case "/foto", "/ses":
		kind := models.KindPhoto
		if cmd == "/ses" {
			kind = models.KindVoice
		}
		path := m.resolveMediaPath(arg)
		return func() tea.Msg {
			m.deps.Session.SendMedia(context.Background(), path, kind)
			return opDoneMsg{}
		}
	case "/duzenle":
		if len(parts) < 3 {
			return func() tea.Msg { return opDoneMsg{err: fmt.Errorf("kullanım: /duzenle <id> <metin>")} }
		}
		content := parts[2]
		return func() tea.Msg {
			return opDoneMsg{err: m.deps.Session.Edit(context.Background(), arg, content)}
		}
	case "/sil":
		return func() tea.Msg {
			return opDoneMsg{err: m.deps.Session.Delete(context.Background(), arg)}
		}
	}
	return func() tea.Msg { return opDoneMsg{err: fmt.Errorf("bilinmeyen komut: %s", cmd)} }
}

// resolveMediaPath, relatif medya yollarını upload dizinine göre çözer.
func (m *Model) resolveMediaPath(arg string) string {
	if arg == "" || filepath.IsAbs(arg) {
		return arg
	}
	return filepath.Join(m.deps.UploadDir, arg)
}

func (m *Model) loadOlderCmd() tea.Cmd {
	return func() tea.Msg {
		m.deps.Session.LoadOlder(context.Background())
		return opDoneMsg{}
	}
}

// ---- görünüm ----

func (m *Model) View() string {
	header := m.renderHeader()
	footer := m.renderFooter()
	contentHeight := m.height - lipgloss.Height(header) - lipgloss.Height(footer)
	if contentHeight < 0 {
		contentHeight = 0
	}

	listWidth := m.width / 4
	if listWidth < 20 {
		listWidth = 20
	}
	paneWidth := m.width - listWidth - 4

	left := m.renderChannelList(listWidth, contentHeight)
	right := m.renderConversation(paneWidth, contentHeight)

	body := lipgloss.JoinHorizontal(lipgloss.Top, left, right)
	return lipgloss.JoinVertical(lipgloss.Left, header, body, footer)
}

func (m *Model) renderHeader() string {
	title := "ulak"
	if m.snap.Partner != nil {
		title += " — " + m.snap.Partner.Name()
	}
	if m.totalUnread > 0 {
		title += "  " + badgeStyle.Render(badgeText(m.totalUnread))
	}
	width := m.width
	if width < 0 {
		width = 0
	}
	return headerStyle.Width(width).Render(title)
}

func (m *Model) renderFooter() string {
	help := "tab: odak · enter: aç/gönder · pgup: daha eski · R: yenile · q: çık"
	if m.errText != "" {
		help = failedStyle.Render(m.errText)
	}
	return footerStyle.Render(truncate(help, m.width-2))
}

func (m *Model) renderChannelList(width, height int) string {
	lines := make([]string, 0, len(m.channels))
	for i, ch := range m.channels {
		unread := 0
		if ch.OtherUser != nil {
			unread = m.deps.Unreads.Count(ch.OtherUser.ID)
		}
		label := truncate(channelLabel(ch, unread), width-4)
		if i == m.cursor && m.focus == focusList {
			label = selectedStyle.Render("> " + label)
		} else {
			label = "  " + label
		}
		lines = append(lines, label)
	}
	if len(lines) == 0 {
		lines = []string{metaStyle.Render("(konuşma yok)")}
	}
	inner := height - 2
	if inner < 1 {
		inner = 1
	}
	return listStyle.Width(width).Render(padBlock(lastLines(lines, inner), inner))
}

func (m *Model) renderConversation(width, height int) string {
	inputBox := m.renderInput(width)
	msgHeight := height - lipgloss.Height(inputBox) - 1
	if msgHeight < 1 {
		msgHeight = 1
	}

	var lines []string
	switch m.snap.State {
	case services.SessionIdle:
		lines = []string{metaStyle.Render("Bir konuşma seç (enter)")}
	case services.SessionLoading:
		lines = []string{metaStyle.Render("Yükleniyor…")}
	default:
		partnerName := "karşı taraf"
		if m.snap.Partner != nil {
			partnerName = m.snap.Partner.Name()
		}
		if m.snap.HasMore {
			lines = append(lines, metaStyle.Render("· · · daha eski mesajlar için pgup · · ·"))
		}
		for _, msg := range m.snap.Messages {
			lines = append(lines, truncate(formatMessage(msg, m.deps.SelfID, partnerName), width))
		}
		if m.snap.TypingFrom != "" {
			lines = append(lines, typingStyle.Render(m.snap.TypingFrom+" yazıyor…"))
		}
		if m.snap.Sending {
			lines = append(lines, metaStyle.Render("gönderiliyor…"))
		}
	}

	pane := padBlock(lastLines(lines, msgHeight), msgHeight)
	return lipgloss.JoinVertical(lipgloss.Left, pane, inputBox)
}

func (m *Model) renderInput(width int) string {
	prompt := "> " + string(m.input)
	if m.focus == focusInput {
		prompt += "█"
	}
	return inputStyle.Width(width).Render(truncate(prompt, width-4))
}

func badgeText(n int) string {
	if n > 99 {
		return "99+"
	}
	return strconv.Itoa(n)
}
