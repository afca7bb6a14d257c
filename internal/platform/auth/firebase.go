package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	firebase "firebase.google.com/go/v4"
	firebaseauth "firebase.google.com/go/v4/auth"
	"github.com/unimerch/api/internal/platform/config"
	"google.golang.org/api/option"
)

// FirebaseVerifier coordinates Firebase Admin SDK initialisation for token verification.
type FirebaseVerifier struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// FirebaseOption customises FirebaseVerifier instances.
type FirebaseOption func(*FirebaseVerifier)

// WithFirebaseTimeout overrides the timeout used for Admin SDK calls.
func WithFirebaseTimeout(d time.Duration) FirebaseOption {
	return func(v *FirebaseVerifier) {
		if d > 0 {
			v.timeout = d
		}
	}
}

// NewFirebaseVerifier constructs a FirebaseVerifier backed by the Admin SDK.
func NewFirebaseVerifier(ctx context.Context, cfg config.FirebaseConfig, opts ...FirebaseOption) (*FirebaseVerifier, error) {
	if cfg.ProjectID == "" {
		return nil, errors.New("firebase project id is required")
	}

	var clientOpts []option.ClientOption
	if cfg.CredentialsFile != "" {
		clientOpts = append(clientOpts, option.WithCredentialsFile(cfg.CredentialsFile))
	}

	app, err := firebase.NewApp(ctx, &firebase.Config{ProjectID: cfg.ProjectID}, clientOpts...)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase app: %w", err)
	}

	authClient, err := app.Auth(ctx)
	if err != nil {
		return nil, fmt.Errorf("initialise firebase auth client: %w", err)
	}

	verifier := &FirebaseVerifier{
		client:  authClient,
		timeout: defaultVerifyTimeout,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(verifier)
		}
	}

	return verifier, nil
}

// VerifyIDToken forwards verification to the underlying Firebase client using a bounded context.
func (v *FirebaseVerifier) VerifyIDToken(ctx context.Context, idToken string) (*firebaseauth.Token, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	ctx, cancel := v.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	return v.client.VerifyIDToken(ctx, idToken)
}

// GetUser loads a Firebase user record for the given UID, respecting the configured timeout.
func (v *FirebaseVerifier) GetUser(ctx context.Context, uid string) (*firebaseauth.UserRecord, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}

	ctx, cancel := v.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	return v.client.GetUser(ctx, uid)
}

func (v *FirebaseVerifier) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if v == nil || v.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, v.timeout)
}

// FirebaseUserAdmin exposes the Admin SDK user management calls needed to
// provision and retire sign-in identities.
type FirebaseUserAdmin struct {
	client  *firebaseauth.Client
	timeout time.Duration
}

// NewFirebaseUserAdmin builds a user admin sharing the verifier's client.
func (v *FirebaseVerifier) NewFirebaseUserAdmin() (*FirebaseUserAdmin, error) {
	if v == nil || v.client == nil {
		return nil, errors.New("firebase verifier not initialised")
	}
	return &FirebaseUserAdmin{client: v.client, timeout: v.timeout}, nil
}

// CreateUser provisions a Firebase user and returns its UID.
func (a *FirebaseUserAdmin) CreateUser(ctx context.Context, email, password, displayName string) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("firebase user admin not initialised")
	}

	ctx, cancel := a.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	params := (&firebaseauth.UserToCreate{}).
		Email(email).
		Password(password).
		DisplayName(displayName).
		EmailVerified(false).
		Disabled(false)
	record, err := a.client.CreateUser(ctx, params)
	if err != nil {
		return "", fmt.Errorf("create firebase user: %w", err)
	}
	return record.UID, nil
}

// SetDisabled flips the disabled flag on the Firebase user.
func (a *FirebaseUserAdmin) SetDisabled(ctx context.Context, uid string, disabled bool) error {
	if a == nil || a.client == nil {
		return errors.New("firebase user admin not initialised")
	}

	ctx, cancel := a.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	params := (&firebaseauth.UserToUpdate{}).Disabled(disabled)
	if _, err := a.client.UpdateUser(ctx, uid, params); err != nil {
		return fmt.Errorf("update firebase user: %w", err)
	}
	return nil
}

// DeleteUser removes the Firebase user record.
func (a *FirebaseUserAdmin) DeleteUser(ctx context.Context, uid string) error {
	if a == nil || a.client == nil {
		return errors.New("firebase user admin not initialised")
	}

	ctx, cancel := a.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	if err := a.client.DeleteUser(ctx, uid); err != nil {
		return fmt.Errorf("delete firebase user: %w", err)
	}
	return nil
}

// PasswordResetLink generates a password reset link for the email.
func (a *FirebaseUserAdmin) PasswordResetLink(ctx context.Context, email string) (string, error) {
	if a == nil || a.client == nil {
		return "", errors.New("firebase user admin not initialised")
	}

	ctx, cancel := a.contextWithTimeout(ctx)
	if cancel != nil {
		defer cancel()
	}

	link, err := a.client.PasswordResetLink(ctx, email)
	if err != nil {
		return "", fmt.Errorf("generate password reset link: %w", err)
	}
	return link, nil
}

func (a *FirebaseUserAdmin) contextWithTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if a == nil || a.timeout <= 0 {
		return ctx, nil
	}
	return context.WithTimeout(ctx, a.timeout)
}
