package tui

import "github.com/charmbracelet/bubbles/key"

type keyMap struct {
	quit, help, nextPanel, prevPanel,
	playPause,
	seekBack, seekForward, jumpBack, jumpForward, seekPercent,
	volumeUp, volumeDown, mute,
	fullscreen, copyURL, openURL key.Binding
}

func newKeyMap() keyMap {
	return keyMap{
		quit: key.NewBinding(
			key.WithKeys("q", "ctrl+c"),
			key.WithHelp("q", "quit"),
		),
		help: key.NewBinding(
			key.WithKeys("?"),
			key.WithHelp("?", "help"),
		),
		nextPanel: key.NewBinding(
			key.WithKeys("tab"),
			key.WithHelp("tab", "next player"),
		),
		prevPanel: key.NewBinding(
			key.WithKeys("shift+tab"),
			key.WithHelp("shift+tab", "previous player"),
		),
		playPause: key.NewBinding(
			key.WithKeys(" ", "k"),
			key.WithHelp("space/k", "play/pause"),
		),
		seekBack: key.NewBinding(
			key.WithKeys("left", "h"),
			key.WithHelp("←/h", "back 5s"),
		),
		seekForward: key.NewBinding(
			key.WithKeys("right", "l"),
			key.WithHelp("→/l", "forward 5s"),
		),
		jumpBack: key.NewBinding(
			key.WithKeys("j"),
			key.WithHelp("j", "back 10s"),
		),
		jumpForward: key.NewBinding(
			key.WithKeys(";"),
			key.WithHelp(";", "forward 10s"),
		),
		seekPercent: key.NewBinding(
			key.WithKeys("0", "1", "2", "3", "4", "5", "6", "7", "8", "9"),
			key.WithHelp("0-9", "jump to 0-90%"),
		),
		volumeUp: key.NewBinding(
			key.WithKeys("up", "+", "="),
			key.WithHelp("↑/+", "volume up"),
		),
		volumeDown: key.NewBinding(
			key.WithKeys("down", "-"),
			key.WithHelp("↓/-", "volume down"),
		),
		mute: key.NewBinding(
			key.WithKeys("m"),
			key.WithHelp("m", "mute"),
		),
		fullscreen: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "fullscreen"),
		),
		copyURL: key.NewBinding(
			key.WithKeys("y"),
			key.WithHelp("y", "copy url"),
		),
		openURL: key.NewBinding(
			key.WithKeys("o"),
			key.WithHelp("o", "open in browser"),
		),
	}
}

// ShortHelp implements help.KeyMap.
func (k keyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.quit, k.help, k.playPause, k.seekForward, k.volumeUp, k.mute, k.nextPanel}
}

// FullHelp implements help.KeyMap.
func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.playPause, k.seekBack, k.seekForward, k.jumpBack, k.jumpForward, k.seekPercent},
		{k.volumeUp, k.volumeDown, k.mute, k.fullscreen},
		{k.copyURL, k.openURL, k.nextPanel, k.prevPanel, k.help, k.quit},
	}
}
