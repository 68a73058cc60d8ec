package app

import "github.com/google/uuid"

// generateID produces a time-ordered UUID (v7), so ids sort by creation.
func generateID() (string, error) {
	id, err := uuid.NewV7()
	if err != nil {
		return "", err
	}
	return id.String(), nil
}
