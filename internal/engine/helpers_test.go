package engine

import "time"

func timeZero() time.Time {
	return time.Unix(0, 0).UTC()
}

func timeFarFuture() time.Time {
	return time.Now().UTC().Add(24 * time.Hour)
}
