package registration

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/praxis/praxis/internal/platform/identity"
)

// fakePlatform is an in-memory PlatformClient.
type fakePlatform struct {
	orgErr       error
	inviteErr    error
	profileErr   error
	updateErr    error
	searchErr    error
	resetURL     string
	secRequests  []identity.SecurityRequest
	createdOrgs  []string
	invites      []identity.InviteRequest
	profile      *identity.Profile
	updatedProf  *identity.Profile
	searchedUser string
}

func (f *fakePlatform) CreateOrganization(_ context.Context, name string) (*identity.Organization, error) {
	if f.orgErr != nil {
		return nil, f.orgErr
	}
	f.createdOrgs = append(f.createdOrgs, name)
	return &identity.Organization{ID: "org-1", Name: name, ProjectID: "proj-1"}, nil
}

func (f *fakePlatform) InviteUser(_ context.Context, req identity.InviteRequest) (*identity.InviteResponse, error) {
	if f.inviteErr != nil {
		return nil, f.inviteErr
	}
	f.invites = append(f.invites, req)
	resetURL := f.resetURL
	if resetURL == "" {
		resetURL = "https://platform.example.com/setpassword/tok-1/sec-1"
	}
	return &identity.InviteResponse{
		ProfileRef:       "Practitioner/p-1",
		UserRef:          "User/u-1",
		MembershipRef:    "ProjectMembership/m-1",
		PasswordResetURL: resetURL,
	}, nil
}

func (f *fakePlatform) GetProfile(_ context.Context, ref string) (*identity.Profile, error) {
	if f.profileErr != nil {
		return nil, f.profileErr
	}
	if f.profile == nil {
		f.profile = &identity.Profile{Reference: ref, FirstName: "Jordan", Email: "jordan@example.com"}
	}
	copied := *f.profile
	copied.Compartments = append([]string(nil), f.profile.Compartments...)
	return &copied, nil
}

func (f *fakePlatform) UpdateProfile(_ context.Context, p *identity.Profile) error {
	if f.updateErr != nil {
		return f.updateErr
	}
	f.updatedProf = p
	return nil
}

func (f *fakePlatform) SearchSecurityRequests(_ context.Context, userRef string) ([]identity.SecurityRequest, error) {
	f.searchedUser = userRef
	if f.searchErr != nil {
		return nil, f.searchErr
	}
	return f.secRequests, nil
}

// fakeTokens records Persist calls.
type persistCall struct {
	ProfileRef, TokenID, TokenSecret, UserRef string
}

type fakeTokens struct {
	calls      []persistCall
	persistErr error
}

func (f *fakeTokens) Persist(_ context.Context, profileRef, tokenID, tokenSecret, userRef string) error {
	if f.persistErr != nil {
		return f.persistErr
	}
	f.calls = append(f.calls, persistCall{profileRef, tokenID, tokenSecret, userRef})
	return nil
}

func validRequest() Request {
	return Request{
		FirstName:        "Jordan",
		LastName:         "Lee",
		Email:            "jordan@example.com",
		Password:         "hunter22",
		OrganizationName: "Acme Clinic",
	}
}

func newTestService(platform PlatformClient, tokens TokenStore) *Service {
	return NewService(platform, tokens, "ap-1", zerolog.New(os.Stderr))
}

func TestRegister_NotConfigured(t *testing.T) {
	platform := &fakePlatform{}
	svc := NewService(platform, &fakeTokens{}, "", zerolog.New(os.Stderr))

	_, err := svc.Register(context.Background(), validRequest())
	if !errors.Is(err, ErrNotConfigured) {
		t.Fatalf("expected ErrNotConfigured, got %v", err)
	}
	if len(platform.createdOrgs) != 0 {
		t.Error("expected zero side effects when unconfigured")
	}
}

func TestRegister_Validation(t *testing.T) {
	svc := newTestService(&fakePlatform{}, &fakeTokens{})

	tests := []struct {
		name   string
		mutate func(*Request)
	}{
		{"missing first name", func(r *Request) { r.FirstName = "" }},
		{"missing last name", func(r *Request) { r.LastName = " " }},
		{"missing email", func(r *Request) { r.Email = "" }},
		{"missing org name", func(r *Request) { r.OrganizationName = "" }},
		{"bad email", func(r *Request) { r.Email = "not-an-email" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := validRequest()
			tt.mutate(&req)
			_, err := svc.Register(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Errorf("expected ValidationError, got %v", err)
			}
		})
	}
}

func TestRegister_HappyPath(t *testing.T) {
	platform := &fakePlatform{
		secRequests: []identity.SecurityRequest{
			{ID: "sr-1", Secret: "sr-secret", UserRef: "User/u-1", Type: "password-setup"},
		},
	}
	tokens := &fakeTokens{}
	svc := newTestService(platform, tokens)

	result, err := svc.Register(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}

	if result.OrganizationID != "org-1" || result.ProfileRef != "Practitioner/p-1" || result.UserRef != "User/u-1" {
		t.Errorf("unexpected result: %+v", result)
	}

	if len(platform.invites) != 1 {
		t.Fatalf("expected 1 invite, got %d", len(platform.invites))
	}
	invite := platform.invites[0]
	if invite.AccessPolicyRef != "AccessPolicy/ap-1" {
		t.Errorf("unexpected access policy ref: %s", invite.AccessPolicyRef)
	}
	if invite.OrganizationRef != "Organization/org-1" {
		t.Errorf("unexpected organization ref: %s", invite.OrganizationRef)
	}

	if platform.updatedProf == nil {
		t.Fatal("expected profile update")
	}
	found := false
	for _, c := range platform.updatedProf.Compartments {
		if c == "Organization/org-1" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected organization appended to compartments, got %v", platform.updatedProf.Compartments)
	}

	// Both token paths: one from the reset URL, one from the platform
	// security request.
	if len(tokens.calls) != 2 {
		t.Fatalf("expected 2 persisted tokens, got %d", len(tokens.calls))
	}
	if tokens.calls[0].TokenID != "tok-1" || tokens.calls[0].TokenSecret != "sec-1" {
		t.Errorf("unexpected url-derived token: %+v", tokens.calls[0])
	}
	if tokens.calls[1].TokenID != "sr-1" || tokens.calls[1].TokenSecret != "sr-secret" {
		t.Errorf("unexpected security-request token: %+v", tokens.calls[1])
	}
}

func TestRegister_OrgFailureAborts(t *testing.T) {
	platform := &fakePlatform{orgErr: &identity.PlatformError{Status: 422, Message: "name taken"}}
	svc := newTestService(platform, &fakeTokens{})

	_, err := svc.Register(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(platform.invites) != 0 {
		t.Error("expected no invite after organization failure")
	}
}

func TestRegister_InviteFailureAborts(t *testing.T) {
	platform := &fakePlatform{inviteErr: errors.New("invite failed")}
	tokens := &fakeTokens{}
	svc := newTestService(platform, tokens)

	_, err := svc.Register(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error")
	}
	if len(tokens.calls) != 0 {
		t.Error("expected no token persistence after invite failure")
	}
}

func TestRegister_ProfileUpdateFailureAborts(t *testing.T) {
	platform := &fakePlatform{updateErr: errors.New("update failed")}
	svc := newTestService(platform, &fakeTokens{})

	_, err := svc.Register(context.Background(), validRequest())
	if err == nil {
		t.Fatal("expected error from profile scoping failure")
	}
}

func TestRegister_TokenPathsAreIndependent(t *testing.T) {
	// The platform security-request search fails, but the URL-derived
	// token must still be persisted and the registration must succeed.
	platform := &fakePlatform{searchErr: errors.New("search unavailable")}
	tokens := &fakeTokens{}
	svc := newTestService(platform, tokens)

	result, err := svc.Register(context.Background(), validRequest())
	if err != nil {
		t.Fatalf("Register: %v", err)
	}
	if result == nil {
		t.Fatal("expected result despite token path failure")
	}
	if len(tokens.calls) != 1 || tokens.calls[0].TokenID != "tok-1" {
		t.Errorf("expected url-derived token persisted, got %+v", tokens.calls)
	}
}

func TestRegister_MalformedResetURLStillSearches(t *testing.T) {
	platform := &fakePlatform{
		resetURL: "https://platform.example.com/",
		secRequests: []identity.SecurityRequest{
			{ID: "sr-1", Secret: "sr-secret", UserRef: "User/u-1"},
		},
	}
	tokens := &fakeTokens{}
	svc := newTestService(platform, tokens)

	if _, err := svc.Register(context.Background(), validRequest()); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if len(tokens.calls) != 1 || tokens.calls[0].TokenID != "sr-1" {
		t.Errorf("expected only security-request token, got %+v", tokens.calls)
	}
	if platform.searchedUser != "User/u-1" {
		t.Errorf("expected security request search for User/u-1, got %q", platform.searchedUser)
	}
}

func TestSplitResetURL(t *testing.T) {
	tests := []struct {
		name    string
		url     string
		id      string
		secret  string
		wantErr bool
	}{
		{"standard", "https://x.example.com/setpassword/tok-1/sec-1", "tok-1", "sec-1", false},
		{"trailing slash", "https://x.example.com/setpassword/tok-1/sec-1/", "tok-1", "sec-1", false},
		{"deep path", "https://x.example.com/a/b/c/tok/sec", "tok", "sec", false},
		{"too short", "https://x.example.com/only", "", "", true},
		{"empty", "", "", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			id, secret, err := splitResetURL(tt.url)
			if tt.wantErr {
				if err == nil {
					t.Error("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("splitResetURL: %v", err)
			}
			if id != tt.id || secret != tt.secret {
				t.Errorf("got (%q, %q), want (%q, %q)", id, secret, tt.id, tt.secret)
			}
		})
	}
}

func TestHandler_Register(t *testing.T) {
	platform := &fakePlatform{}
	svc := newTestService(platform, &fakeTokens{})
	h := NewHandler(svc)

	body := `{"first_name":"Jordan","last_name":"Lee","email":"jordan@example.com","organization_name":"Acme Clinic"}`
	e := echo.New()
	req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	if err := h.HandleRegister(c); err != nil {
		t.Fatalf("handler error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", rec.Code, rec.Body.String())
	}
	if !strings.Contains(rec.Body.String(), "org-1") {
		t.Errorf("expected organization id in response: %s", rec.Body.String())
	}
}

func TestHandler_RegisterStatusCodes(t *testing.T) {
	tests := []struct {
		name     string
		svc      *Service
		body     string
		wantCode int
	}{
		{
			name:     "unconfigured",
			svc:      NewService(&fakePlatform{}, &fakeTokens{}, "", zerolog.New(os.Stderr)),
			body:     `{"first_name":"J","last_name":"L","email":"j@l.c","organization_name":"Acme"}`,
			wantCode: http.StatusServiceUnavailable,
		},
		{
			name:     "validation",
			svc:      newTestService(&fakePlatform{}, &fakeTokens{}),
			body:     `{"first_name":"","last_name":"L","email":"j@l.c","organization_name":"Acme"}`,
			wantCode: http.StatusBadRequest,
		},
		{
			name:     "platform error",
			svc:      newTestService(&fakePlatform{orgErr: &identity.PlatformError{Status: 500, Message: "boom"}}, &fakeTokens{}),
			body:     `{"first_name":"J","last_name":"L","email":"j@l.c","organization_name":"Acme"}`,
			wantCode: http.StatusBadGateway,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := NewHandler(tt.svc)
			e := echo.New()
			req := httptest.NewRequest(http.MethodPost, "/registrations", strings.NewReader(tt.body))
			req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
			rec := httptest.NewRecorder()
			c := e.NewContext(req, rec)

			if err := h.HandleRegister(c); err != nil {
				t.Fatalf("handler error: %v", err)
			}
			if rec.Code != tt.wantCode {
				t.Errorf("expected %d, got %d: %s", tt.wantCode, rec.Code, rec.Body.String())
			}
		})
	}
}
