package cache

import "fmt"

// Key semantics:
//   - DocumentKey(docID):   document snapshot (Hash: content, version, updated_at, ops)
//   - WhiteboardKey(id):    whiteboard element map (Hash: elementID -> element JSON)
const (
	keyDocumentFmt   = "collab:doc:%s"
	keyWhiteboardFmt = "collab:board:%s"
)

func DocumentKey(docID string) string { return fmt.Sprintf(keyDocumentFmt, docID) }

func WhiteboardKey(boardID string) string { return fmt.Sprintf(keyWhiteboardFmt, boardID) }
