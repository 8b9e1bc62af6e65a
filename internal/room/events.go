package room

// Event names form the closed wire vocabulary. Inbound frames outside this
// set are rejected at the connection boundary.
const (
	EventDocumentJoin      = "document:join"
	EventDocumentJoined    = "document:joined"
	EventDocumentLeave     = "document:leave"
	EventDocumentOperation = "document:operation"
	EventDocumentAck       = "document:ack"
	EventDocumentSync      = "document:sync"
	EventDocumentSynced    = "document:synced"
	EventDocumentCursor    = "document:cursor"
	EventDocumentTyping    = "document:typing"
	EventDocumentUserJoin  = "document:user_joined"
	EventDocumentUserLeft  = "document:user_left"

	EventSignalJoin      = "signal:join"
	EventSignalJoined    = "signal:joined"
	EventSignalLeave     = "signal:leave"
	EventSignalOffer     = "signal:offer"
	EventSignalAnswer    = "signal:answer"
	EventSignalCandidate = "signal:candidate"
	EventSignalUserJoin  = "signal:user_joined"
	EventSignalUserLeft  = "signal:user_left"

	EventWhiteboardJoin    = "whiteboard:join"
	EventWhiteboardJoined  = "whiteboard:joined"
	EventWhiteboardLeave   = "whiteboard:leave"
	EventWhiteboardDraw    = "whiteboard:draw"
	EventWhiteboardUpdate  = "whiteboard:update"
	EventWhiteboardRemove  = "whiteboard:remove"
	EventWhiteboardCleared = "whiteboard:cleared"

	EventError = "document:error"
)
