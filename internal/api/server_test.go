package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strconv"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"healthdom/internal/database"
	"healthdom/internal/mail"
	"healthdom/internal/models"
	"healthdom/internal/notify"
	"healthdom/internal/otp"
	"healthdom/internal/session"
	"healthdom/internal/store"
	"healthdom/internal/websocket"
	"healthdom/pkg/interfaces"
	"healthdom/pkg/types"
)

type fixture struct {
	server   *Server
	db       *gorm.DB
	kv       interfaces.KeyValue
	sessions *session.Manager
	otps     *otp.Manager
	registry *websocket.Registry
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)
	logger := zap.NewNop()

	db, err := database.Init(filepath.Join(t.TempDir(), "test.db"), false)
	if err != nil {
		t.Fatalf("open database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	kv := store.NewMemory()
	sessions := session.NewManager(kv, time.Hour, true, logger)
	otps := otp.NewManager(kv, 5*time.Minute, logger)
	mailer := mail.NewMailer("", "", "no-reply@test.local", logger)
	registry := websocket.NewRegistry(logger)
	dispatcher := notify.NewDispatcher(registry, logger)
	wsHandler := websocket.NewHandler(registry, sessions, database.NewUsers(db), websocket.Options{}, logger)

	server := NewServer(gin.TestMode, db, sessions, otps, mailer, dispatcher, registry, kv, wsHandler, logger)

	return &fixture{
		server:   server,
		db:       db,
		kv:       kv,
		sessions: sessions,
		otps:     otps,
		registry: registry,
	}
}

func (f *fixture) do(t *testing.T, method, path string, body any, token string) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshal body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("session_token", token)
	}

	rec := httptest.NewRecorder()
	f.server.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response %q: %v", rec.Body.String(), err)
	}
	return body
}

// seedUser inserts an account directly, bypassing the signup role rules.
func (f *fixture) seedUser(t *testing.T, name, email, password string, role types.Role) models.User {
	t.Helper()
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash password: %v", err)
	}
	user := models.User{Name: name, Email: email, PasswordHash: string(hash), Role: role}
	if err := f.db.Create(&user).Error; err != nil {
		t.Fatalf("seed user: %v", err)
	}
	return user
}

func (f *fixture) loginAs(t *testing.T, email, password string, role types.Role) string {
	t.Helper()
	rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": email, "password": password, "role": string(role),
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("login %s: status %d body %s", email, rec.Code, rec.Body.String())
	}
	token, _ := decodeBody(t, rec)["session_token"].(string)
	if token == "" {
		t.Fatal("login response missing session_token")
	}
	return token
}

func TestSignup(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "Ada@Example.com", "password": "secret-pass", "role": "patient",
	}, "")
	if rec.Code != http.StatusCreated {
		t.Fatalf("status %d body %s", rec.Code, rec.Body.String())
	}

	var user models.User
	if err := f.db.Where("email = ?", "ada@example.com").First(&user).Error; err != nil {
		t.Fatalf("signup did not persist lowercased email: %v", err)
	}
	if user.PasswordHash == "secret-pass" {
		t.Fatal("password stored in clear")
	}
	if user.KYCVerified {
		t.Fatal("new accounts start unverified")
	}

	// Same address again, different case.
	rec = f.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Ada", "email": "ADA@example.com", "password": "secret-pass", "role": "patient",
	}, "")
	if rec.Code != http.StatusConflict {
		t.Fatalf("duplicate email: status %d", rec.Code)
	}

	// Admin self-registration is rejected.
	rec = f.do(t, http.MethodPost, "/api/auth/signup", map[string]string{
		"name": "Eve", "email": "eve@example.com", "password": "secret-pass", "role": "admin",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("admin signup: status %d", rec.Code)
	}
}

func TestLoginAndSession(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Ada", "ada@example.com", "secret-pass", types.RolePatient)

	rec := f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "ada@example.com", "password": "wrong", "role": "patient",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("wrong password: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "nobody@example.com", "password": "secret-pass", "role": "patient",
	}, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("unknown email: status %d", rec.Code)
	}

	// Correct credentials but wrong portal.
	rec = f.do(t, http.MethodPost, "/api/auth/login", map[string]string{
		"email": "ada@example.com", "password": "secret-pass", "role": "doctor",
	}, "")
	if rec.Code != http.StatusForbidden {
		t.Fatalf("role mismatch: status %d", rec.Code)
	}

	token := f.loginAs(t, "ada@example.com", "secret-pass", types.RolePatient)

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("me: status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["role"] != "patient" {
		t.Fatalf("me returned role %v", body["role"])
	}

	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, "")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me without token: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/auth/logout", nil, token)
	if rec.Code != http.StatusOK {
		t.Fatalf("logout: status %d", rec.Code)
	}
	rec = f.do(t, http.MethodGet, "/api/auth/me", nil, token)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("me after logout: status %d", rec.Code)
	}
}

func TestPasswordResetFlow(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Ada", "ada@example.com", "old-password", types.RolePatient)

	rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ada@example.com",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("request: status %d", rec.Code)
	}

	// Unknown accounts get the same answer.
	rec = f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "nobody@example.com",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("request for unknown email: status %d", rec.Code)
	}

	code, found, err := f.kv.Get(context.Background(), "otp:ada@example.com")
	if err != nil || !found {
		t.Fatalf("no stored code: found=%v err=%v", found, err)
	}

	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"email": "ada@example.com", "otp": "000000", "new_password": "new-password",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("wrong code: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"email": "ada@example.com", "otp": code, "new_password": "new-password",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("confirm: status %d body %s", rec.Code, rec.Body.String())
	}

	// The code is single use.
	rec = f.do(t, http.MethodPost, "/api/password-reset/confirm", map[string]string{
		"email": "ada@example.com", "otp": code, "new_password": "another-password",
	}, "")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("replayed code: status %d", rec.Code)
	}

	f.loginAs(t, "ada@example.com", "new-password", types.RolePatient)
}

func TestPasswordResetResendSuppressed(t *testing.T) {
	f := newFixture(t)
	f.seedUser(t, "Ada", "ada@example.com", "old-password", types.RolePatient)

	for i := 0; i < 2; i++ {
		rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
			"email": "ada@example.com",
		}, "")
		if rec.Code != http.StatusOK {
			t.Fatalf("request %d: status %d", i, rec.Code)
		}
	}

	first, _, _ := f.kv.Get(context.Background(), "otp:ada@example.com")
	rec := f.do(t, http.MethodPost, "/api/password-reset/request", map[string]string{
		"email": "ada@example.com",
	}, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("suppressed request: status %d", rec.Code)
	}
	second, _, _ := f.kv.Get(context.Background(), "otp:ada@example.com")
	if first != second {
		t.Fatal("resend within the validity window must not mint a new code")
	}
}

func TestCreateAppointment(t *testing.T) {
	f := newFixture(t)
	patient := f.seedUser(t, "Ada", "ada@example.com", "secret-pass", types.RolePatient)
	doctor := f.seedUser(t, "Greg", "greg@example.com", "secret-pass", types.RoleDoctor)
	token := f.loginAs(t, "ada@example.com", "secret-pass", types.RolePatient)

	rec := f.do(t, http.MethodPost, "/api/appointments", map[string]any{
		"doctor_id": doctor.ID, "scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, token)
	if rec.Code != http.StatusCreated {
		t.Fatalf("create: status %d body %s", rec.Code, rec.Body.String())
	}

	var appt models.Appointment
	if err := f.db.First(&appt).Error; err != nil {
		t.Fatalf("appointment not persisted: %v", err)
	}
	if appt.PatientID != patient.ID || appt.DoctorID != doctor.ID {
		t.Fatalf("wrong parties: %+v", appt)
	}
	if appt.Status != models.AppointmentConfirmed {
		t.Fatalf("status %q", appt.Status)
	}

	// Booking against a non-doctor id fails.
	rec = f.do(t, http.MethodPost, "/api/appointments", map[string]any{
		"doctor_id": patient.ID, "scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, token)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("non-doctor target: status %d", rec.Code)
	}

	// Doctors cannot book appointments.
	doctorToken := f.loginAs(t, "greg@example.com", "secret-pass", types.RoleDoctor)
	rec = f.do(t, http.MethodPost, "/api/appointments", map[string]any{
		"doctor_id": doctor.ID, "scheduled_at": time.Now().Add(24 * time.Hour).Format(time.RFC3339),
	}, doctorToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("doctor booking: status %d", rec.Code)
	}
}

func TestAdminEndpoints(t *testing.T) {
	f := newFixture(t)
	patient := f.seedUser(t, "Ada", "ada@example.com", "secret-pass", types.RolePatient)
	f.seedUser(t, "Root", "root@example.com", "secret-pass", types.RoleAdmin)
	adminToken := f.loginAs(t, "root@example.com", "secret-pass", types.RoleAdmin)
	patientToken := f.loginAs(t, "ada@example.com", "secret-pass", types.RolePatient)

	rec := f.do(t, http.MethodPatch, "/api/admin/kyc/"+itoa(patient.ID)+"/approve", nil, patientToken)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("non-admin approval: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPatch, "/api/admin/kyc/"+itoa(patient.ID)+"/approve", nil, adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("approve: status %d body %s", rec.Code, rec.Body.String())
	}

	var user models.User
	if err := f.db.First(&user, patient.ID).Error; err != nil {
		t.Fatalf("reload user: %v", err)
	}
	if !user.KYCVerified {
		t.Fatal("approval did not persist")
	}

	rec = f.do(t, http.MethodPatch, "/api/admin/kyc/99999/approve", nil, adminToken)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("unknown user approval: status %d", rec.Code)
	}

	rec = f.do(t, http.MethodPost, "/api/admin/notifications", map[string]string{
		"user_id": itoa(patient.ID), "message": "maintenance tonight",
	}, adminToken)
	if rec.Code != http.StatusOK {
		t.Fatalf("send notification: status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "Notification sent" {
		t.Fatalf("unexpected acknowledgment %v", body)
	}
}

func TestHealth(t *testing.T) {
	f := newFixture(t)

	rec := f.do(t, http.MethodGet, "/health", nil, "")
	if rec.Code != http.StatusOK {
		t.Fatalf("health: status %d", rec.Code)
	}
	body := decodeBody(t, rec)
	if body["status"] != "ok" {
		t.Fatalf("health body %v", body)
	}
}

func itoa(n uint) string {
	return strconv.FormatUint(uint64(n), 10)
}
