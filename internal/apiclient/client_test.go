package apiclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"vmdash.io/vmdash/internal/domain"
	apperrors "vmdash.io/vmdash/internal/pkg/errors"
	"vmdash.io/vmdash/internal/pkg/logger"
)

func init() {
	_ = logger.Init("error", "json")
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)
	jar, _ := cookiejar.New(nil)
	c, err := New(srv.URL, jar, WithTimeout(2*time.Second))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func TestNew_RejectsRelativeURL(t *testing.T) {
	if _, err := New("localhost:5000", nil); err == nil {
		t.Fatal("New() should reject a URL without scheme and host")
	}
}

func TestIsTokenError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Token has expired", true},
		{"Invalid token format. Please log in again.", true},
		{"Subject must be a string", true},
		{"Token decode error: bad", true},
		{"Invalid header padding", true},
		{"Logout successful", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := IsTokenError(tt.msg); got != tt.want {
			t.Errorf("IsTokenError(%q) = %v, want %v", tt.msg, got, tt.want)
		}
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		status     int
		body       string
		credential bool
		check      func(error) bool
		wantMsg    string
	}{
		{"token error on 200", 200, `{"msg":"Token has expired"}`, false, apperrors.IsAuthExpired, "Token has expired"},
		{"401 without body", 401, ``, false, apperrors.IsAuthExpired, "Unauthorized"},
		{"422", 422, `{"msg":"Signature verification failed"}`, false, apperrors.IsAuthExpired, "Signature verification failed"},
		{"login 401 is structured", 401, `{"message":"Invalid credentials"}`, true, apperrors.IsStructured, "Invalid credentials"},
		{"success false on 400", 400, `{"success":false,"error":"Failed to start VM 'a'"}`, false, apperrors.IsStructured, "Failed to start VM 'a'"},
		{"success false on 200", 200, `{"success":false,"error":"nope"}`, false, apperrors.IsStructured, "nope"},
		{"html 502", 502, `<html>bad gateway</html>`, false, apperrors.IsTransport, "decode response"},
		{"404 envelope", 404, `{"logged_in_as":null}`, false, apperrors.IsStructured, "Not Found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := classify(tt.status, []byte(tt.body), tt.credential, nil)
			require.Error(t, err)
			assert.True(t, tt.check(err), "unexpected class: %v", err)
			assert.Equal(t, tt.wantMsg, apperrors.Message(err))
			appErr, _ := apperrors.IsAppError(err)
			assert.Equal(t, tt.status, appErr.HTTPStatus)
		})
	}
}

func TestProfile(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/profile", r.URL.Path)
		writeJSON(w, 200, map[string]any{"logged_in_as": map[string]string{"Username": "jdoe", "Prenom": "Jane", "Nom": "Doe"}})
	})
	user, err := c.Profile(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "Jane Doe", user.DisplayName())
}

func TestProfile_MissingUser(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{})
	})
	user, err := c.Profile(context.Background())
	assert.Nil(t, user)
	require.ErrorIs(t, err, ErrNoProfileUser)
	_, isAppErr := apperrors.IsAppError(err)
	assert.False(t, isAppErr)
}

func TestProviderStatus(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"success": true,
			"providers": map[string]any{
				"nutanix": map[string]bool{"enabled": false, "connected": true},
				"vmware":  map[string]bool{"enabled": true, "connected": true},
			},
		})
	})
	got, err := c.ProviderStatus(context.Background())
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, domain.ProviderVMware, got[0].ID)
	assert.Equal(t, domain.ProviderReady, got[0].Status())
	assert.False(t, got[1].Connected, "connected is dropped for disabled providers")
}

func TestPower_EscapesNameAndSendsProvider(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/api/vms/web 01/start", r.URL.Path)
		assert.Equal(t, "nutanix", r.URL.Query().Get("provider"))
		writeJSON(w, 200, map[string]any{"success": true, "message": "VM 'web 01' started successfully"})
	})
	msg, err := c.Power(context.Background(), "web 01", domain.ActionStart, domain.ProviderNutanix)
	require.NoError(t, err)
	assert.Equal(t, "VM 'web 01' started successfully", msg)
}

func TestPower_RejectsNonPowerAction(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		t.Error("no request expected")
	})
	_, err := c.Power(context.Background(), "a", domain.ActionDelete, domain.ProviderVMware)
	assert.ErrorIs(t, err, apperrors.ErrValidation)
}

func TestClone_SendsBody(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		data, _ := io.ReadAll(r.Body)
		var body map[string]any
		require.NoError(t, json.Unmarshal(data, &body))
		assert.Equal(t, "clone-1", body["vm_name"])
		assert.Equal(t, "win10", body["source_vm"])
		assert.Equal(t, "c1", body["cluster"])
		writeJSON(w, 200, map[string]any{"success": true, "message": "ok"})
	})
	_, err := c.Clone(context.Background(), domain.CloneRequest{
		Name: "clone-1", SourceVM: "win10", Provider: domain.ProviderNutanix,
		CPU: 2, RAM: 2048, Disk: 20, Cluster: "c1",
	})
	require.NoError(t, err)
}

func TestTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(url, nil)
	require.NoError(t, err)
	_, err = c.VMs(context.Background(), "")
	assert.True(t, apperrors.IsTransport(err), "got %v", err)
}

func TestSettings_DropsPassword(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 200, map[string]any{
			"success": true,
			"config": map[string]any{
				"default_provider": "nutanix",
				"providers": map[string]any{
					"vmware":  map[string]any{"enabled": true, "vmrun_path": "/usr/bin/vmrun"},
					"nutanix": map[string]any{"enabled": true, "username": "admin", "password": "s3cret", "port": 9440},
				},
			},
		})
	})
	s, err := c.Settings(context.Background())
	require.NoError(t, err)
	assert.Equal(t, domain.ProviderNutanix, s.DefaultProvider)
	assert.Equal(t, "/usr/bin/vmrun", s.VMware.VmrunPath)
	assert.Equal(t, 9440, s.Nutanix.Port)
	assert.Empty(t, s.Nutanix.Password)
}

func TestLogin_FallbackMessage(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, 401, map[string]any{})
	})
	err := c.Login(context.Background(), "a", "b")
	require.Error(t, err)
	assert.Equal(t, "Login failed", apperrors.Message(err))
}

func TestInspectToken(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{"sub": "jdoe", "exp": exp.Unix()})
	raw, err := token.SignedString([]byte("any-key"))
	require.NoError(t, err)

	info, err := InspectToken([]*http.Cookie{{Name: "csrf_access_token", Value: "x"}, {Name: AccessTokenCookie, Value: raw}})
	require.NoError(t, err)
	assert.Equal(t, "jdoe", info.Subject)
	assert.True(t, info.ExpiresAt.Equal(exp))
	assert.False(t, info.Expired(time.Now()))
	assert.True(t, info.Expired(exp.Add(time.Second)))

	_, err = InspectToken(nil)
	assert.ErrorIs(t, err, ErrNoToken)
}
