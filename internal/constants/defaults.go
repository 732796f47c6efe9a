package constants

// Default broker connection values
const (
	DefaultHeartbeatSec        = 10
	DefaultDialTimeoutSec      = 10
	DefaultReconnectInitialMs  = 1000
	DefaultReconnectMaxSec     = 60
	DefaultReconnectMultiplier = 2.0
	DefaultConnectMaxAttempts  = 5
)

// Send circuit breaker tuning
const (
	SendBreakerMaxFailures = 5
	SendBreakerCooldownSec = 30
)

// Default presence timing values
const (
	DefaultTypingDebounceMs = 3000
	DefaultTypingExpiryMs   = 3000
)

// Default session values
const (
	DefaultLogBufferSize    = 500
	DefaultStoreTimeoutSec  = 5
	DefaultClientIDPrefix   = "client"
	DefaultDatabaseAttempts = 3
	DefaultBackoffInitialMs = 500
	DefaultBackoffMaxSec    = 5
	ServerErrorChannelSize  = 1
)

// Stale outbound message monitoring
const (
	DefaultStaleCheckIntervalMin = 5
	DefaultStaleThresholdMin     = 10
)

// Default HTTP server values
const (
	DefaultServerPort            = 8083
	DefaultServerReadTimeoutSec  = 15
	DefaultServerWriteTimeoutSec = 15
	DefaultServerIdleTimeoutSec  = 60
	DefaultGracefulShutdownSec   = 30
)

// Broker destinations used by the chat contract
const (
	TopicMessages          = "/topic/messages"
	TopicMessagesRead      = "/topic/messages.read"
	TopicMessagesDelivered = "/topic/messages.delivered"
	TopicMessagesTyping    = "/topic/messages.typing"
	TopicMessagesUpdate    = "/topic/messages.update"

	DestSendMessage     = "/app/chat.sendMessage"
	DestConfirmDelivery = "/app/chat.confirmDelivery"
	DestTyping          = "/app/chat.typing"
	DestMarkRead        = "/app/chat.markRead"
	DestPing            = "/app/chat.ping"
)
