package identity

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/rs/zerolog"
)

func newTestClient(t *testing.T, handler http.Handler) (*Client, *httptest.Server) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	cfg := Config{
		BaseURL:      srv.URL,
		ClientID:     "admin-client",
		ClientSecret: "admin-secret",
		ProjectID:    "proj-1",
	}
	return NewClient(cfg, zerolog.New(os.Stderr)), srv
}

func TestCreateOrganization(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method %s", r.Method)
		}
		if r.URL.Path != "/admin/projects/proj-1/organizations" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		user, pass, ok := r.BasicAuth()
		if !ok || user != "admin-client" || pass != "admin-secret" {
			t.Error("expected basic auth with admin credentials")
		}

		var body map[string]string
		json.NewDecoder(r.Body).Decode(&body)
		if body["name"] != "Acme Clinic" {
			t.Errorf("unexpected org name %q", body["name"])
		}

		json.NewEncoder(w).Encode(Organization{ID: "org-1", Name: "Acme Clinic", ProjectID: "proj-1"})
	}))

	org, err := client.CreateOrganization(context.Background(), "Acme Clinic")
	if err != nil {
		t.Fatalf("CreateOrganization: %v", err)
	}
	if org.ID != "org-1" {
		t.Errorf("unexpected org id %s", org.ID)
	}
}

func TestInviteUser(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/projects/proj-1/invite" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		var req InviteRequest
		json.NewDecoder(r.Body).Decode(&req)
		if req.AccessPolicyRef != "AccessPolicy/ap-1" {
			t.Errorf("unexpected access policy %s", req.AccessPolicyRef)
		}
		json.NewEncoder(w).Encode(InviteResponse{
			ProfileRef:       "Practitioner/p-1",
			UserRef:          "User/u-1",
			MembershipRef:    "ProjectMembership/m-1",
			PasswordResetURL: "https://platform.example.com/setpassword/tok-1/secret-1",
		})
	}))

	resp, err := client.InviteUser(context.Background(), InviteRequest{
		FirstName:       "Jordan",
		LastName:        "Lee",
		Email:           "jordan@example.com",
		AccessPolicyRef: "AccessPolicy/ap-1",
		OrganizationRef: "Organization/org-1",
	})
	if err != nil {
		t.Fatalf("InviteUser: %v", err)
	}
	if resp.ProfileRef != "Practitioner/p-1" || resp.UserRef != "User/u-1" {
		t.Errorf("unexpected response: %+v", resp)
	}
}

func TestGetProfileAndUpdate(t *testing.T) {
	var updated Profile
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			if r.URL.Path != "/fhir/Practitioner/p-1" {
				t.Errorf("unexpected path %s", r.URL.Path)
			}
			json.NewEncoder(w).Encode(Profile{
				Reference:    "Practitioner/p-1",
				FirstName:    "Jordan",
				Email:        "jordan@example.com",
				Compartments: []string{"Organization/old"},
			})
		case http.MethodPut:
			json.NewDecoder(r.Body).Decode(&updated)
			w.WriteHeader(http.StatusOK)
		}
	}))

	p, err := client.GetProfile(context.Background(), "Practitioner/p-1")
	if err != nil {
		t.Fatalf("GetProfile: %v", err)
	}

	p.Compartments = append(p.Compartments, "Organization/org-1")
	if err := client.UpdateProfile(context.Background(), p); err != nil {
		t.Fatalf("UpdateProfile: %v", err)
	}
	if len(updated.Compartments) != 2 || updated.Compartments[1] != "Organization/org-1" {
		t.Errorf("unexpected compartments: %v", updated.Compartments)
	}
}

func TestGetMembershipByProfile(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("profile"); got != "Practitioner/p-1" {
			t.Errorf("unexpected profile query %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []Membership{{
				Reference:       "ProjectMembership/m-1",
				UserRef:         "User/u-1",
				ProfileRef:      "Practitioner/p-1",
				OrganizationRef: "Organization/org-1",
			}},
		})
	}))

	m, err := client.GetMembershipByProfile(context.Background(), "Practitioner/p-1")
	if err != nil {
		t.Fatalf("GetMembershipByProfile: %v", err)
	}
	if m.OrganizationRef != "Organization/org-1" {
		t.Errorf("unexpected membership: %+v", m)
	}
}

func TestGetMembershipByProfile_Empty(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]interface{}{"data": []Membership{}})
	}))

	_, err := client.GetMembershipByProfile(context.Background(), "Practitioner/p-1")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestSearchSecurityRequests(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/admin/security-requests" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.URL.Query().Get("user"); got != "User/u-1" {
			t.Errorf("unexpected user query %q", got)
		}
		json.NewEncoder(w).Encode(map[string]interface{}{
			"data": []SecurityRequest{
				{ID: "sr-1", Secret: "s-1", UserRef: "User/u-1", Type: "password-setup"},
			},
		})
	}))

	reqs, err := client.SearchSecurityRequests(context.Background(), "User/u-1")
	if err != nil {
		t.Fatalf("SearchSecurityRequests: %v", err)
	}
	if len(reqs) != 1 || reqs[0].ID != "sr-1" {
		t.Errorf("unexpected requests: %+v", reqs)
	}
}

func TestNotFound(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	}))

	_, err := client.GetProfile(context.Background(), "Practitioner/missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestPlatformErrorDecoding(t *testing.T) {
	client, _ := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		json.NewEncoder(w).Encode(map[string]string{"message": "organization name taken"})
	}))

	_, err := client.CreateOrganization(context.Background(), "Acme Clinic")
	if err == nil {
		t.Fatal("expected error")
	}
	var pe *PlatformError
	if !errors.As(err, &pe) {
		t.Fatalf("expected PlatformError, got %T", err)
	}
	if pe.Status != http.StatusUnprocessableEntity || pe.Message != "organization name taken" {
		t.Errorf("unexpected platform error: %+v", pe)
	}
}
