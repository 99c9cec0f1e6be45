package tui

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// KeyBinding ties one or more keys to an action.
type KeyBinding struct {
	keys   []string
	help   string
	action func() tea.Cmd
}

// Keys returns the keys that trigger the binding.
func (kb *KeyBinding) Keys() []string {
	return kb.keys
}

// Help returns the help text. Bindings without help are hidden from the help bar.
func (kb *KeyBinding) Help() string {
	return kb.help
}

// Matches returns true if the key message matches this binding.
func (kb *KeyBinding) Matches(msg tea.KeyMsg) bool {
	for _, k := range kb.keys {
		if matchKey(k, msg) {
			return true
		}
	}
	return false
}

// Execute runs the action and returns the command.
func (kb *KeyBinding) Execute() tea.Cmd {
	if kb.action != nil {
		return kb.action()
	}
	return nil
}

// matchKey checks if a key string matches a tea.KeyMsg.
func matchKey(key string, msg tea.KeyMsg) bool {
	switch strings.ToLower(key) {
	case "enter":
		return msg.Type == tea.KeyEnter
	case "esc", "escape":
		return msg.Type == tea.KeyEsc
	case "space":
		return msg.Type == tea.KeySpace || (msg.Type == tea.KeyRunes && string(msg.Runes) == " ")
	case "tab":
		return msg.Type == tea.KeyTab
	case "shift+tab":
		return msg.Type == tea.KeyShiftTab
	case "up":
		return msg.Type == tea.KeyUp
	case "down":
		return msg.Type == tea.KeyDown
	case "ctrl+c":
		return msg.Type == tea.KeyCtrlC
	case "ctrl+r":
		return msg.Type == tea.KeyCtrlR
	default:
		// Runes are case sensitive so g and G can mean different things.
		return msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && string(msg.Runes) == key
	}
}

// KeyMap is an ordered list of key bindings.
type KeyMap struct {
	bindings []*KeyBinding
}

// NewKeyMap creates a new empty key map.
func NewKeyMap() *KeyMap {
	return &KeyMap{}
}

// Register adds a binding. An empty help hides it from Bindings.
func (km *KeyMap) Register(keys []string, help string, action func() tea.Cmd) {
	km.bindings = append(km.bindings, &KeyBinding{keys: keys, help: help, action: action})
}

// Bindings returns the bindings that carry help text, in registration order.
func (km *KeyMap) Bindings() []*KeyBinding {
	var out []*KeyBinding
	for _, kb := range km.bindings {
		if kb.help != "" {
			out = append(out, kb)
		}
	}
	return out
}

// Find returns the first binding matching msg.
func (km *KeyMap) Find(msg tea.KeyMsg) (*KeyBinding, bool) {
	for _, kb := range km.bindings {
		if kb.Matches(msg) {
			return kb, true
		}
	}
	return nil, false
}

// Handle runs the binding matching msg. The bool reports whether one matched.
func (km *KeyMap) Handle(msg tea.KeyMsg) (tea.Cmd, bool) {
	kb, ok := km.Find(msg)
	if !ok {
		return nil, false
	}
	return kb.Execute(), true
}
