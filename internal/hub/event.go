package hub

import (
	"encoding/json"
	"time"
)

// Types of events flowing in and out of a client's event channel.
// The set is closed: inbound frames with an unknown type are dropped.
const (
	// Inbound requests.
	TypeFindPartner = "find-partner"
	TypeNextPartner = "next-partner"
	TypeGetRooms    = "get-rooms"
	TypeCreateRoom  = "create-room"
	TypeJoinRoom    = "join-room"
	TypeLeaveRoom   = "leave-room"
	TypeRoomMessage = "room-message"
	TypeGetOnline   = "get-online-users"
	TypeJoinLounge  = "join-voice-chat"

	// Both directions.
	TypeSignal     = "webrtc-signal"
	TypePrivateMsg = "private-message"
	TypeOffer      = "webrtc-offer"
	TypeAnswer     = "webrtc-answer"
	TypeCandidate  = "ice-candidate"

	// Outbound notifications.
	TypeMatched       = "matched"
	TypePartnerLeft   = "partner-left"
	TypeRooms         = "rooms"
	TypeRoomJoined    = "room-joined"
	TypeMemberJoined  = "member-joined"
	TypeMemberLeft    = "member-left"
	TypeNewRoomMsg    = "new-room-message"
	TypeRoomError     = "room-full-or-error"
	TypeOnlineUsers   = "online-users"
	TypeExistingUsers = "existing-users"
	TypeUserJoined    = "user-joined"
	TypeUserLeft      = "user-left"
)

// msgWrap is the envelope for all outbound events.
type msgWrap struct {
	Type      string      `json:"type"`
	Timestamp time.Time   `json:"timestamp"`
	Data      interface{} `json:"data,omitempty"`
}

// payloadMsgWrap is the envelope for all inbound events. Data is kept
// raw and decoded per type.
type payloadMsgWrap struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// MatchedData notifies a participant of a formed pairing and of its
// negotiation role.
type MatchedData struct {
	PartnerID   string `json:"partnerId"`
	IsInitiator bool   `json:"isInitiator"`
}

// RoomInfo is one entry in a rooms listing snapshot.
type RoomInfo struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	MemberCount int    `json:"memberCount"`
}

type reqCreateRoom struct {
	RoomName string `json:"roomName"`
	Password string `json:"password"`
}

type reqJoinRoom struct {
	RoomID   string `json:"roomId"`
	Password string `json:"password"`
}

type reqRoomMessage struct {
	RoomID string `json:"roomId"`
	Text   string `json:"text"`
}

type reqPrivateMsg struct {
	To   string `json:"to"`
	Text string `json:"text"`
}

// RoomJoinedData confirms a join to the joiner.
type RoomJoinedData struct {
	RoomID string `json:"roomId"`
}

// MemberData carries a member join / leave broadcast.
type MemberData struct {
	Username string `json:"username"`
}

// RoomChatData is a room chat message fanned out to members. The
// timestamp is stamped by the server, never taken from the client.
type RoomChatData struct {
	From         string    `json:"from"`
	FromUsername string    `json:"fromUsername"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// PrivateMsgData is a private message delivered to its target.
type PrivateMsgData struct {
	From         string    `json:"from"`
	FromUsername string    `json:"fromUsername"`
	Text         string    `json:"text"`
	Timestamp    time.Time `json:"timestamp"`
}

// ErrorData carries a per-request rejection (capacity, validation).
type ErrorData struct {
	Message string `json:"message"`
}

// OnlineUser is one entry in a presence snapshot.
type OnlineUser struct {
	ID       string `json:"id"`
	Username string `json:"username"`
}

// ExistingUsersData lists lounge members to a fresh joiner.
type ExistingUsersData struct {
	UserIDs []string `json:"userIds"`
}

// UserJoinedData announces a new lounge member to the rest.
type UserJoinedData struct {
	NewUserID string `json:"newUserId"`
}

// UserLeftData announces a lounge member's departure.
type UserLeftData struct {
	UserID string `json:"userId"`
}

// loungeSignal is an addressed negotiation payload relayed between two
// lounge members. Exactly one of Offer / Answer / Candidate is set and
// its contents are forwarded verbatim.
type loungeSignal struct {
	To        string          `json:"to,omitempty"`
	From      string          `json:"from,omitempty"`
	Offer     json.RawMessage `json:"offer,omitempty"`
	Answer    json.RawMessage `json:"answer,omitempty"`
	Candidate json.RawMessage `json:"candidate,omitempty"`
}

// makePayload prepares an outbound event frame.
func makePayload(typ string, data interface{}) []byte {
	m := msgWrap{
		Timestamp: time.Now(),
		Type:      typ,
		Data:      data,
	}
	b, _ := json.Marshal(m)
	return b
}
