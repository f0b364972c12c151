package commsutil

import (
	"fmt"
	"strings"
)

// Default COMMS subjects.
const (
	SubjectRPC             = "facade.rpc.v1"
	SubjectDescribe        = "facade.describe.v1"
	SubjectSessionOpen     = "facade.session.open"
	SubjectSessionClose    = "facade.session.close"
	SubjectBroadcastPrefix = "facade.broadcast"
)

// BuildBroadcastSubject builds the subject a broadcast action is published on.
func BuildBroadcastSubject(prefix, action string) string {
	if prefix == "" {
		prefix = SubjectBroadcastPrefix
	}
	safe := strings.ReplaceAll(strings.TrimSpace(action), ".", "_")
	safe = strings.ReplaceAll(safe, " ", "_")
	return fmt.Sprintf("%s.%s", prefix, safe)
}
