package esl

import uuidlib "github.com/hashicorp/go-uuid"

// newUUID mints a fresh identifier suitable for Job-UUID or
// origination_uuid.
func newUUID() string {
	id, err := uuidlib.GenerateUUID()
	if err != nil {
		// GenerateUUID only fails if the system CSPRNG is broken, which
		// leaves nothing sensible to do but keep the process from silently
		// colliding UUIDs.
		panic("esl: failed to generate uuid: " + err.Error())
	}
	return id
}
