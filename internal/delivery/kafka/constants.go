package kafka

const (
	TopicParticipantJoined = "lineup.participant.joined"
	TopicParticipantLeft   = "lineup.participant.left"
	TopicSessionClosed     = "lineup.session.closed"

	TopicStreamLiveEnded = "stream.live.ended"
)

const (
	LeftReasonLeft         = "left"
	LeftReasonKicked       = "kicked"
	LeftReasonTimeout      = "timeout"
	LeftReasonDisconnected = "disconnected"
)
