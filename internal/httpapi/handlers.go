package httpapi

import (
	"github.com/gofiber/fiber/v2"

	"github.com/nhle/dragonmail/internal/model"
)

func (s *Server) getState(c *fiber.Ctx) error {
	return c.JSON(newStateResponse(s.svc.State()))
}

func (s *Server) generate(c *fiber.Ctx) error {
	acc, err := s.svc.GenerateEmail(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(acc)
}

func (s *Server) deleteAccount(c *fiber.Ctx) error {
	if !c.QueryBool("confirm") {
		return errConfirmationRequired
	}
	if err := s.svc.DeleteActiveAccount(c.UserContext()); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) clearSession(c *fiber.Ctx) error {
	s.svc.ClearSession(c.UserContext())
	return c.SendStatus(fiber.StatusNoContent)
}

func (s *Server) updateSite(c *fiber.Ctx) error {
	var req SiteRequest
	if err := c.BodyParser(&req); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.UpdateSiteUsedFor(c.UserContext(), req.Site); err != nil {
		return err
	}
	return c.JSON(s.svc.State().Account)
}

func (s *Server) listMessages(c *fiber.Ctx) error {
	msgs, err := s.svc.FetchMessages(c.UserContext())
	if err != nil {
		return err
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return c.JSON(msgs)
}

func (s *Server) refreshMessages(c *fiber.Ctx) error {
	if err := s.svc.RefreshMessages(c.UserContext()); err != nil {
		return err
	}
	return c.JSON(newStateResponse(s.svc.State()).Messages)
}

func (s *Server) getMessage(c *fiber.Ctx) error {
	id := c.Params("id")
	msg, err := s.svc.ViewMessage(c.UserContext(), id)
	if err != nil {
		return err
	}

	if c.QueryBool("attachments") && msg.HasAttachments {
		atts, err := s.svc.Attachments(c.UserContext(), id)
		if err != nil {
			s.log.Warn().Err(err).Str("message", id).Msg("listing attachments")
		} else {
			msg.Attachments = atts
		}
	}
	return c.JSON(newMessageResponse(*msg))
}

func (s *Server) getSettings(c *fiber.Ctx) error {
	return c.JSON(s.svc.Settings())
}

func (s *Server) updateSettings(c *fiber.Ctx) error {
	var settings model.Settings
	if err := c.BodyParser(&settings); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid request body")
	}
	if err := s.svc.UpdateSettings(c.UserContext(), settings); err != nil {
		return err
	}
	return c.JSON(s.svc.Settings())
}

func (s *Server) getLimits(c *fiber.Ctx) error {
	return c.JSON(s.svc.APILimits(c.UserContext()))
}

func (s *Server) listSaved(c *fiber.Ctx) error {
	list, err := s.svc.SavedEmails(c.UserContext())
	if err != nil {
		return err
	}
	return c.JSON(list)
}

func (s *Server) saveActive(c *fiber.Ctx) error {
	saved, err := s.svc.SaveActiveAccount(c.UserContext())
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(saved)
}

func (s *Server) deleteSaved(c *fiber.Ctx) error {
	if !c.QueryBool("confirm") {
		return errConfirmationRequired
	}
	if err := s.svc.DeleteSavedEmail(c.UserContext(), c.Params("id")); err != nil {
		return err
	}
	return c.SendStatus(fiber.StatusNoContent)
}
