package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandRegister creates a session for the connection.
	CommandRegister CommandKind = iota
	// CommandJoin switches the session to an existing public room.
	CommandJoin
	// CommandCreateRoom creates a public room and switches into it.
	CommandCreateRoom
	// CommandSendMessage posts text (or a slash command) to the current room.
	CommandSendMessage
	// CommandOpenPrivate resolves the private room shared with a pseudo.
	CommandOpenPrivate
	// CommandSwitchPrivate moves the session into a private room it belongs to.
	CommandSwitchPrivate
	// CommandSendPrivate posts text to the private room shared with a pseudo.
	CommandSendPrivate
)

var commandNames = [...]string{
	CommandRegister:      "register",
	CommandJoin:          "join",
	CommandCreateRoom:    "create_room",
	CommandSendMessage:   "send_message",
	CommandOpenPrivate:   "open_private",
	CommandSwitchPrivate: "switch_private",
	CommandSendPrivate:   "private_message",
}

func (k CommandKind) String() string {
	if k >= 0 && int(k) < len(commandNames) {
		return commandNames[k]
	}
	return "unknown"
}

// Command represents an action requested by a client.
type Command struct {
	Kind CommandKind

	// Register
	Pseudo       string
	Locale       string
	Identity     string
	CaptchaToken string

	Room   string
	Target string
	Text   string
}
