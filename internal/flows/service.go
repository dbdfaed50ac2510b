package flows

import "context"

// Service is the centralized flow runner built once by the root engine.
type Service struct {
	deps Deps
}

// New returns a flow service with immutable dependency wiring.
func New(deps Deps) Service {
	return Service{deps: deps}
}

// Initialized reports whether the service has been wired with flow deps.
func (s Service) Initialized() bool {
	return s.deps.Role.GetRole != nil
}

func (s Service) Authenticate(ctx context.Context, email, password string) (SignInUser, error) {
	return RunAuthenticate(ctx, email, password, s.deps.SignIn)
}

func (s Service) SetRole(ctx context.Context, userID, desired string) (RoleResult, error) {
	return RunSetRole(ctx, userID, desired, s.deps.Role)
}

func (s Service) RequestPasswordReset(ctx context.Context, email string) error {
	return RunRequestPasswordReset(ctx, email, s.deps.PasswordReset)
}

func (s Service) RedeemPasswordReset(ctx context.Context, token, newPassword string) error {
	return RunRedeemPasswordReset(ctx, token, newPassword, s.deps.PasswordReset)
}

func (s Service) SignOut(ctx context.Context, in SignOutInput) error {
	return RunSignOut(ctx, in, s.deps.SignOut)
}
