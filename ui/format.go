package ui

import (
	"fmt"
	"strings"

	"github.com/akinalp/ulak/models"
)

// formatMessage, tek bir mesaj satırını render eder.
// Silinen mesaj tombstone olarak, başarısız gönderim inline işaretle görünür.
func formatMessage(m models.Message, selfID string, partnerName string) string {
	who := partnerName
	style := theirMsgStyle
	if m.From == selfID {
		who = "ben"
		style = ownMsgStyle
	}

	ts := metaStyle.Render(m.Timestamp.Local().Format("15:04"))

	switch m.State {
	case models.StateDeleted:
		return fmt.Sprintf("%s %s %s", ts, style.Render(who+":"), deletedStyle.Render("(mesaj silindi)"))
	case models.StateFailed:
		return fmt.Sprintf("%s %s %s %s", ts, style.Render(who+":"), m.Body, failedStyle.Render("✗ gönderilemedi"))
	}

	body := m.Body
	if m.Kind != models.KindText && m.Kind != "" {
		body = fmt.Sprintf("[%s] %s", m.Kind, body)
	}

	line := fmt.Sprintf("%s %s %s", ts, style.Render(who+":"), body)
	if m.State == models.StateEdited {
		line += " " + metaStyle.Render("(düzenlendi)")
	}
	return line
}

// channelLabel, sol paneldeki konuşma satırı.
func channelLabel(ch models.ChannelInfo, unread int) string {
	name := ch.ID
	if ch.OtherUser != nil {
		name = ch.OtherUser.Name()
	}
	if unread > 0 {
		return fmt.Sprintf("%s %s", name, badgeStyle.Render(fmt.Sprintf("%d", unread)))
	}
	return name
}

// truncate, satırı pane genişliğine sığdırır.
func truncate(s string, width int) string {
	if width <= 0 {
		return ""
	}
	runes := []rune(s)
	if len(runes) <= width {
		return s
	}
	if width <= 1 {
		return string(runes[:width])
	}
	return string(runes[:width-1]) + "…"
}

// lastLines, mesaj listesinin pane yüksekliğine sığan kuyruğunu döner.
func lastLines(lines []string, height int) []string {
	if height <= 0 {
		return nil
	}
	if len(lines) <= height {
		return lines
	}
	return lines[len(lines)-height:]
}

func padBlock(lines []string, height int) string {
	for len(lines) < height {
		lines = append(lines, "")
	}
	return strings.Join(lines, "\n")
}
