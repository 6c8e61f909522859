package model

import (
	"encoding/base64"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Cursor is an opaque pagination token encoding the creation timestamp and
// id of the last item on the previous page.
type Cursor string

func NewCursor(createdAt time.Time, transactionID string) Cursor {
	raw := fmt.Sprintf("%d|%s", createdAt.UnixNano(), transactionID)
	return Cursor(base64.StdEncoding.EncodeToString([]byte(raw)))
}

// Decode returns the timestamp and transaction id the cursor points at.
func (c Cursor) Decode() (time.Time, string, error) {
	decoded, err := base64.StdEncoding.DecodeString(string(c))
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	parts := strings.SplitN(string(decoded), "|", 2)
	if len(parts) != 2 || parts[1] == "" {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	nanos, err := strconv.ParseInt(parts[0], 10, 64)
	if err != nil {
		return time.Time{}, "", fmt.Errorf("invalid cursor format")
	}
	return time.Unix(0, nanos).UTC(), parts[1], nil
}
