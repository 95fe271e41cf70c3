package ioutil

import (
	"errors"
	"io"
)

// ErrTooLarge is returned by ReadAtMost when the input exceeds the limit
var ErrTooLarge = errors.New("body exceeds size limit")

// ReadAtMost reads all of r, failing with ErrTooLarge instead of silently
// truncating when r holds more than limit bytes. The bytes returned are
// exactly what was read, for callers that authenticate the raw body.
func ReadAtMost(r io.Reader, limit int64) ([]byte, error) {
	body, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(body)) > limit {
		return nil, ErrTooLarge
	}
	return body, nil
}
