package cache

import "fmt"

// Key layout:
//   - roomKey(docID):  members of a room, ZSet<userID, expireAtUnix>
//   - namesKey(docID): userID -> display name, Hash
//   - docsKey():       rooms with members, Set<docID>
//
// roomKey and namesKey share the {docID:...} hash tag so the expiry script stays in one cluster slot.
const (
	keyRoomFmt  = "presence:room:{docID:%s}"
	keyNamesFmt = "presence:room:names:{docID:%s}"
	keyDocsSet  = "presence:docs"
)

func roomKey(docID string) string  { return fmt.Sprintf(keyRoomFmt, docID) }
func namesKey(docID string) string { return fmt.Sprintf(keyNamesFmt, docID) }
func docsKey() string              { return keyDocsSet }
