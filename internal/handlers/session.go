package handlers

import "github.com/gofiber/fiber/v2"

// SessionHandler exposes the resolved caller.
type SessionHandler struct{}

// NewSessionHandler constructs SessionHandler.
func NewSessionHandler() *SessionHandler {
	return &SessionHandler{}
}

// Me returns the user id and normalized roles of the caller.
func (h *SessionHandler) Me(c *fiber.Ctx) error {
	user, err := currentUser(c)
	if err != nil {
		return err
	}

	return sendData(c, fiber.Map{
		"user_id": user.ID,
		"roles":   user.Roles.Names(),
	})
}
