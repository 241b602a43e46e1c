package gateway

// Gateway event names consumed by the bot.
const (
	EventMemberAdd         = "SERVER_MEMBER_ADD"
	EventInteractionCreate = "INTERACTION_CREATE"
	EventMessageCreate     = "MESSAGE_CREATE"
)

// MemberAddEvent is delivered when a user joins a server.
type MemberAddEvent struct {
	ServerID string `json:"serverId"`
	User     struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
		IsBot    bool   `json:"isBot"`
	} `json:"user"`
}

// InteractionEvent is delivered when a user activates a message button.
type InteractionEvent struct {
	CustomID  string `json:"customId"`
	ChannelID string `json:"channelId"`
	MessageID string `json:"messageId"`
	User      struct {
		ID       string `json:"_id"`
		Username string `json:"username"`
	} `json:"user"`
}
