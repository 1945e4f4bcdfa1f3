package instance

import "os"

// GetID returns the process instance identifier. Heroku dynos report DYNO;
// everything else may set WORKER_ID.
func GetID() string {
	if id := os.Getenv("DYNO"); id != "" {
		return id
	}
	if id := os.Getenv("WORKER_ID"); id != "" {
		return id
	}
	return "local"
}
