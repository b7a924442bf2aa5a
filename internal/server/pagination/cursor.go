package pagination

import (
	"encoding/base64"
	"fmt"
	"strconv"
)

// EncodeCursor creates an opaque cursor string from the last row id of a
// page. Listings page newest-first, so the next page holds ids below it.
func EncodeCursor(id int64) string {
	return base64.URLEncoding.EncodeToString([]byte(strconv.FormatInt(id, 10)))
}

// DecodeCursor parses the opaque cursor string back into a row id.
func DecodeCursor(encodedCursor string) (int64, error) {
	decoded, err := base64.URLEncoding.DecodeString(encodedCursor)
	if err != nil {
		return 0, fmt.Errorf("invalid cursor encoding: %w", err)
	}

	id, err := strconv.ParseInt(string(decoded), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid id in cursor: %w", err)
	}
	if id <= 0 {
		return 0, fmt.Errorf("invalid cursor value")
	}
	return id, nil
}
