/************************************************************************************
 *
 * gatewaysdk — a Go client for realtime chat-gateway services
 *
 * SPDX-License-Identifier: BSD-3-Clause
 *
 * Copyright 2026 The gatewaysdk Authors
 *
 * Licensed under the BSD 3-Clause License.
 * See the LICENSE file for details.
 *
 ************************************************************************************/

package gatewaysdk

import (
	"encoding/json"
)

// GatewayIntent represents the Service's Gateway Intents.
//
// Intents are bit flags that specify which event categories the bot
// receives over the WebSocket connection. Combine multiple intents using
// bitwise OR (|), or BitFieldAdd.
//
// Example:
//
//	intents := GatewayIntentGuilds | GatewayIntentGuildMessages
type GatewayIntent uint32

const (
	// Guilds includes:
	//   GuildCreate, GuildUpdate, GuildDelete
	//   GuildRoleCreate, GuildRoleUpdate, GuildRoleDelete
	//   ChannelCreate, ChannelUpdate, ChannelDelete, ChannelPinsUpdate
	//   ThreadCreate, ThreadUpdate, ThreadDelete, ThreadListSync
	//   ThreadMemberUpdate, ThreadMembersUpdate
	GatewayIntentGuilds GatewayIntent = 1 << 0

	// GuildMembers includes:
	//   GuildMemberAdd, GuildMemberUpdate, GuildMemberRemove
	//   ThreadMembersUpdate
	GatewayIntentGuildMembers GatewayIntent = 1 << 1

	// GuildModeration includes:
	//   GuildAuditLogEntryCreate, GuildBanAdd, GuildBanRemove
	GatewayIntentGuildModeration GatewayIntent = 1 << 2

	// GuildExpressions includes:
	//   GuildEmojisUpdate, GuildStickersUpdate, GuildSoundboardSoundsUpdate
	GatewayIntentGuildExpressions GatewayIntent = 1 << 3

	// GuildIntegrations includes:
	//   GuildIntegrationsUpdate, IntegrationCreate, IntegrationUpdate, IntegrationDelete
	GatewayIntentGuildIntegrations GatewayIntent = 1 << 4

	// GuildWebhooks includes:
	//   WebhooksUpdate
	GatewayIntentGuildWebhooks GatewayIntent = 1 << 5

	// GuildInvites includes:
	//   InviteCreate, InviteDelete
	GatewayIntentGuildInvites GatewayIntent = 1 << 6

	// GuildVoiceStates includes:
	//   VoiceStateUpdate
	GatewayIntentGuildVoiceStates GatewayIntent = 1 << 7

	// GuildPresences includes:
	//   PresenceUpdate
	GatewayIntentGuildPresences GatewayIntent = 1 << 8

	// GuildMessages includes:
	//   MessageCreate, MessageUpdate, MessageDelete, MessageDeleteBulk
	GatewayIntentGuildMessages GatewayIntent = 1 << 9

	// GuildMessageReactions includes:
	//   MessageReactionAdd, MessageReactionRemove, MessageReactionRemoveAll, MessageReactionRemoveEmoji
	GatewayIntentGuildMessageReactions GatewayIntent = 1 << 10

	// GuildMessageTyping includes:
	//   TypingStart
	GatewayIntentGuildMessageTyping GatewayIntent = 1 << 11

	// DirectMessages includes:
	//   MessageCreate, MessageUpdate, MessageDelete, ChannelPinsUpdate
	GatewayIntentDirectMessages GatewayIntent = 1 << 12

	// DirectMessageReactions includes:
	//   MessageReactionAdd, MessageReactionRemove, MessageReactionRemoveAll, MessageReactionRemoveEmoji
	GatewayIntentDirectMessageReactions GatewayIntent = 1 << 13

	// DirectMessageTyping includes:
	//   TypingStart
	GatewayIntentDirectMessageTyping GatewayIntent = 1 << 14

	// MessageContent enables access to message content in events.
	GatewayIntentMessageContent GatewayIntent = 1 << 15

	// GuildScheduledEvents includes:
	//   GuildScheduledEventCreate, GuildScheduledEventUpdate, GuildScheduledEventDelete
	//   GuildScheduledEventUserAdd, GuildScheduledEventUserRemove
	GatewayIntentGuildScheduledEvents GatewayIntent = 1 << 16

	// AutoModerationConfiguration includes:
	//   AutoModerationRuleCreate, AutoModerationRuleUpdate, AutoModerationRuleDelete
	GatewayIntentAutoModerationConfiguration GatewayIntent = 1 << 20

	// AutoModerationExecution includes:
	//   AutoModerationActionExecution
	GatewayIntentAutoModerationExecution GatewayIntent = 1 << 21

	// GuildMessagePolls includes:
	//   MessagePollVoteAdd, MessagePollVoteRemove
	GatewayIntentGuildMessagePolls GatewayIntent = 1 << 24

	// DirectMessagePolls includes:
	//   MessagePollVoteAdd, MessagePollVoteRemove
	GatewayIntentDirectMessagePolls GatewayIntent = 1 << 25
)

// Has reports whether all of the given intents are set.
func (i GatewayIntent) Has(bits ...GatewayIntent) bool {
	return BitFieldHas(i, bits...)
}

// gatewayOpcode represents the operation codes used in Gateway WebSocket
// frames (spec §6). Each opcode defines a specific action or message type
// in the client-server protocol.
type gatewayOpcode int

const (
	// opDispatch: server->client. An event was dispatched by the gateway.
	// Carries s (sequence) and t (event type).
	opDispatch gatewayOpcode = 0

	// opHeartbeat: either direction. Fired periodically to keep the
	// connection alive, or requested by the server out of band.
	opHeartbeat gatewayOpcode = 1

	// opIdentify: client->server. Starts a new session during handshake.
	opIdentify gatewayOpcode = 2

	// opPresenceUpdate: client->server. Update the client's presence.
	opPresenceUpdate gatewayOpcode = 3

	// opVoiceStateUpdate: client->server. Join, leave, or move between
	// voice channels.
	opVoiceStateUpdate gatewayOpcode = 4

	// opResume: client->server. Resume a previous session.
	opResume gatewayOpcode = 6

	// opReconnect: server->client. Server requests an immediate reconnect
	// and resume.
	opReconnect gatewayOpcode = 7

	// opRequestGuildMembers: client->server. Request offline members of a
	// large guild.
	opRequestGuildMembers gatewayOpcode = 8

	// opInvalidSession: server->client. The session has been invalidated;
	// d is a bool indicating whether it is resumable.
	opInvalidSession gatewayOpcode = 9

	// opHello: server->client. Sent immediately after connecting; d
	// contains heartbeat_interval in milliseconds.
	opHello gatewayOpcode = 10

	// opHeartbeatACK: server->client. Acknowledges a heartbeat.
	opHeartbeatACK gatewayOpcode = 11
)

// Opcode is the exported form of a gateway opcode, for callers composing
// their own outbound frames through Client.Broadcast or Client.SendToShard.
type Opcode gatewayOpcode

// Exported mirrors of the client->server opcodes a collaborator may need to
// send directly. Server->client-only opcodes (dispatch, hello, ...) are
// deliberately not exposed here: a caller never constructs those.
const (
	OpHeartbeat           = Opcode(opHeartbeat)
	OpIdentify            = Opcode(opIdentify)
	OpPresenceUpdate      = Opcode(opPresenceUpdate)
	OpVoiceStateUpdate    = Opcode(opVoiceStateUpdate)
	OpResume              = Opcode(opResume)
	OpRequestGuildMembers = Opcode(opRequestGuildMembers)
)

// frame is a single payload exchanged over the Gateway WebSocket (spec §3's
// Gateway frame, §6's wire contract).
type frame struct {
	Op gatewayOpcode   `json:"op"`
	D  json.RawMessage `json:"d,omitempty"`
	S  int64           `json:"s,omitempty"`
	T  string          `json:"t,omitempty"`
}

// GatewayCloseCode represents a Gateway WebSocket close event code.
type GatewayCloseCode int

const (
	GatewayCloseUnknownError         GatewayCloseCode = 4000
	GatewayCloseUnknownOpcode        GatewayCloseCode = 4001
	GatewayCloseDecodeError          GatewayCloseCode = 4002
	GatewayCloseNotAuthenticated     GatewayCloseCode = 4003
	GatewayCloseAuthenticationFailed GatewayCloseCode = 4004
	GatewayCloseAlreadyAuthenticated GatewayCloseCode = 4005
	GatewayCloseInvalidSeq           GatewayCloseCode = 4007
	GatewayCloseRateLimited          GatewayCloseCode = 4008
	GatewayCloseSessionTimedOut      GatewayCloseCode = 4009
	GatewayCloseInvalidShard         GatewayCloseCode = 4010
	GatewayCloseShardingRequired     GatewayCloseCode = 4011
	GatewayCloseInvalidAPIVersion    GatewayCloseCode = 4012
	GatewayCloseInvalidIntents       GatewayCloseCode = 4013
	GatewayCloseDisallowedIntents    GatewayCloseCode = 4014
)

// fatalCloseCodes are close codes that indicate permanent misconfiguration
// (spec §4.6, §6): the shard must not reconnect, and the failure must be
// surfaced to the caller rather than retried.
var fatalCloseCodes = map[GatewayCloseCode]string{
	GatewayCloseAuthenticationFailed: "authentication failed",
	GatewayCloseInvalidShard:         "invalid shard",
	GatewayCloseShardingRequired:     "sharding required",
	GatewayCloseInvalidAPIVersion:    "invalid API version",
	GatewayCloseInvalidIntents:       "invalid intents",
	GatewayCloseDisallowedIntents:    "disallowed intents",
}

// isFatal reports whether this close code must terminate the shard instead
// of triggering a reconnect.
func (c GatewayCloseCode) isFatal() (string, bool) {
	reason, ok := fatalCloseCodes[c]
	return reason, ok
}

// GatewayInfo is the Service's gateway bot info response, used by the shard
// manager to learn the recommended shard count and concurrency limit
// (spec §4.7's spawn protocol).
type GatewayInfo struct {
	// URL is the WSS URL used for connecting to the Gateway.
	URL string `json:"url"`
	// Shards is the recommended number of shards to use.
	Shards int `json:"shards"`
	// SessionStartLimit describes the current session start budget.
	SessionStartLimit struct {
		Total          int `json:"total"`
		Remaining      int `json:"remaining"`
		ResetAfter     int `json:"reset_after"`
		MaxConcurrency int `json:"max_concurrency"`
	} `json:"session_start_limit"`
}
