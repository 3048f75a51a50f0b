// Package chat defines the narrow collaborator boundary (spec §6) between
// the learning engine and whatever chat surface drives it. The engine never
// imports a concrete transport; it only ever produces [ReplyAction] values
// and consumes the closed [Command] set, the same way
// internal/engine.VoiceEngine in the teacher repo is decoupled from
// discordgo by a narrow interface.
package chat

// Keyboard is an opaque list of selectable options a [ReplyAction] may
// attach to a message. Transports render it however fits their medium
// (Discord message components, inline keyboards, plain numbered lists).
type Keyboard struct {
	Options []string
}

// ReplyAction is one of the closed set of actions the engine can ask a
// transport to perform. Exactly one of the fields is meaningful per
// constructor below; transports switch on the Kind.
type ReplyAction struct {
	Kind ActionKind

	Text     string
	MsgID    string
	Keyboard *Keyboard
	Prompt   string
	Options  []string
}

// ActionKind enumerates the closed reply-action set from spec §6.
type ActionKind int

const (
	ActionSendText ActionKind = iota
	ActionEditText
	ActionShowOptions
	ActionClearOptions
)

// SendText replies with text, optionally attaching a keyboard.
func SendText(text string, kb *Keyboard) ReplyAction {
	return ReplyAction{Kind: ActionSendText, Text: text, Keyboard: kb}
}

// EditText replaces the text (and optionally the keyboard) of msgID.
func EditText(msgID, text string, kb *Keyboard) ReplyAction {
	return ReplyAction{Kind: ActionEditText, MsgID: msgID, Text: text, Keyboard: kb}
}

// ShowOptions presents prompt with a fresh set of selectable options.
func ShowOptions(prompt string, options []string) ReplyAction {
	return ReplyAction{Kind: ActionShowOptions, Prompt: prompt, Options: options}
}

// ClearOptions removes any previously shown option keyboard.
func ClearOptions() ReplyAction {
	return ReplyAction{Kind: ActionClearOptions}
}

// CommandKind enumerates the closed command set from spec §6.
type CommandKind int

const (
	CmdStart CommandKind = iota
	CmdAddWord
	CmdStartLesson
	CmdAnswer
	CmdShowStats
	CmdToggleNotifications
	CmdSwitchLanguage
)

// Command is one parsed chat command. Only the field(s) relevant to Kind
// are populated.
type Command struct {
	Kind CommandKind

	Text        string // AddWord: the word; Start: the native language
	ChoiceIndex int    // Answer, when answering a TestChoice question
	AnswerText  string // Answer, when answering a TestInput question
	IsChoice    bool   // true if ChoiceIndex should be used, false for AnswerText
	TargetLang  string // SwitchLanguage, Start
}

// OptionPrefix prefixes the opaque identifier a transport attaches to each
// button/component it renders for a [ShowOptions] keyboard, so that a
// callback payload can be recognized as "option N" regardless of which
// transport produced it (internal/discord uses it for discordgo component
// custom IDs; any future transport shares the same convention).
const OptionPrefix = "vt_opt:"

// Transport is the collaborator boundary the engine is driven through. A
// concrete transport (internal/discord) parses its own wire format into
// [Command] values and renders the engine's [ReplyAction] values back out;
// the engine itself never depends on this interface — it is the shape
// transports are written against, not something the engine calls.
type Transport interface {
	// OnMessage handles a free-text chat message from userID.
	OnMessage(userID, text string, ts int64) ([]ReplyAction, error)
	// OnChoice handles a callback from a previously shown keyboard.
	OnChoice(userID, callbackPayload string, ts int64) ([]ReplyAction, error)
}
