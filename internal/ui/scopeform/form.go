// Package scopeform collects the session scope and server endpoints on
// first run, before the sync core starts.
package scopeform

import (
	"errors"
	"strings"

	"github.com/charmbracelet/huh"

	"github.com/nhle/portal-notify/internal/model"
)

// Run prompts for the server URLs, role, identity, and session token,
// writing the answers into cfg. Faculty and student roles require an
// identity; the form refuses to submit without one so the session never
// starts on a disabled route by accident. The token is returned rather than
// stored in cfg so it can go to the keyring instead of the config file.
func Run(cfg *model.AppConfig) (string, error) {
	role := cfg.Session.Role
	if role == "" {
		role = string(model.RoleStudent)
	}
	var token string

	form := huh.NewForm(
		huh.NewGroup(
			huh.NewInput().
				Title("Portal API URL").
				Placeholder("https://portal.school.example").
				Value(&cfg.Server.BaseURL).
				Validate(func(s string) error {
					if strings.TrimSpace(s) == "" {
						return errors.New("the portal URL is required")
					}
					return nil
				}),
			huh.NewInput().
				Title("Notification socket URL").
				Placeholder("wss://portal.school.example/socket").
				Value(&cfg.Server.SocketURL),
		),
		huh.NewGroup(
			huh.NewSelect[string]().
				Title("Role").
				Options(
					huh.NewOption("Student", string(model.RoleStudent)),
					huh.NewOption("Faculty", string(model.RoleFaculty)),
					huh.NewOption("Administrator", string(model.RoleAdmin)),
				).
				Value(&role),
			huh.NewInput().
				Title("Email").
				Description("Required for faculty and student roles").
				Value(&cfg.Session.Identity),
		),
		huh.NewGroup(
			huh.NewInput().
				Title("Session token").
				Description("Stored in the system keyring; leave empty to use PORTAL_TOKEN").
				EchoMode(huh.EchoModePassword).
				Value(&token),
		),
	)

	if err := form.Run(); err != nil {
		return "", err
	}

	cfg.Session.Role = role
	if role != string(model.RoleAdmin) && strings.TrimSpace(cfg.Session.Identity) == "" {
		return "", errors.New("faculty and student sessions need an email")
	}
	if role == string(model.RoleAdmin) {
		// Admin is one logical scope; an identity would be misleading.
		cfg.Session.Identity = ""
	}

	return strings.TrimSpace(token), nil
}
