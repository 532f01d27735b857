package tui

import (
	"strings"

	"charm.land/lipgloss/v2"
)

// Accent color for the Hamzawi branding.
const hamzawiIndigo = "#6366F1"

// HAMZAWI ASCII art (filled block style).
var hamzawiArt = []string{
	"  ██╗  ██╗ █████╗ ███╗   ███╗███████╗ █████╗ ██╗    ██╗██╗",
	"  ██║  ██║██╔══██╗████╗ ████║╚══███╔╝██╔══██╗██║    ██║██║",
	"  ███████║███████║██╔████╔██║  ███╔╝ ███████║██║ █╗ ██║██║",
	"  ██╔══██║██╔══██║██║╚██╔╝██║ ███╔╝  ██╔══██║██║███╗██║██║",
	"  ██║  ██║██║  ██║██║ ╚═╝ ██║███████╗██║  ██║╚███╔███╔╝██║",
	"  ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝     ╚═╝╚══════╝╚═╝  ╚═╝ ╚══╝╚══╝ ╚═╝",
}

// Styles contains all lipgloss styles for the TUI.
type Styles struct {
	Banner    lipgloss.Style
	Header    lipgloss.Style
	User      lipgloss.Style
	Assistant lipgloss.Style
	System    lipgloss.Style
	Tips      lipgloss.Style
	Error     lipgloss.Style
	Prompt    lipgloss.Style
	Separator lipgloss.Style
	StatusBar lipgloss.Style
	ModeOn    lipgloss.Style // Highlight for an active mode or toggle
}

// DefaultStyles returns the default style configuration.
func DefaultStyles() Styles {
	return Styles{
		Banner:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(hamzawiIndigo)),
		Header:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(hamzawiIndigo)),
		User:      lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Assistant: lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("212")),
		System:    lipgloss.NewStyle().Italic(true).Foreground(lipgloss.Color("240")),
		Tips:      lipgloss.NewStyle().Foreground(lipgloss.Color("255")),
		Error:     lipgloss.NewStyle().Foreground(lipgloss.Color("196")),
		Prompt:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("86")),
		Separator: lipgloss.NewStyle().Foreground(lipgloss.Color("240")),
		StatusBar: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		ModeOn:    lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color(hamzawiIndigo)),
	}
}

// RenderBanner returns the ASCII art banner as a styled string.
func (s Styles) RenderBanner() string {
	var b strings.Builder
	for _, line := range hamzawiArt {
		_, _ = b.WriteString(s.Banner.Render(line))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}

// welcomeTips are shown under the banner on startup.
var welcomeTips = []string{
	"للبدء:",
	"  • اكتب رسالتك واضغط Enter للإرسال",
	"  • ‏/help لعرض الأوامر المتاحة",
	"  • ‏Ctrl+G لتبديل وضع الصور والفيديو، Ctrl+S للبحث",
	"  • ‏Ctrl+P لاختيار شخصية، Ctrl+O للتنقل بين المحادثات",
}

// RenderWelcomeTips returns styled welcome tips.
func (s Styles) RenderWelcomeTips() string {
	var b strings.Builder
	for _, tip := range welcomeTips {
		_, _ = b.WriteString(s.Tips.Render(tip))
		_, _ = b.WriteString("\n")
	}
	return b.String()
}
