package controllers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"riderx/models"
	"riderx/repositories"
	"riderx/services"

	"github.com/gin-gonic/gin"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type envelope struct {
	Success bool             `json:"success"`
	Message string           `json:"message"`
	Data    json.RawMessage  `json:"data"`
	Error   *models.APIError `json:"error"`
}

// testRider stands in for the auth middleware.
func testRider(c *gin.Context) {
	if id := c.GetHeader("X-Test-Rider"); id != "" {
		c.Set("riderID", id)
	}
	c.Next()
}

func do(t *testing.T, r *gin.Engine, method, path, riderID string, body interface{}) (*httptest.ResponseRecorder, envelope) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode error: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if riderID != "" {
		req.Header.Set("X-Test-Rider", riderID)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	var env envelope
	if err := json.Unmarshal(w.Body.Bytes(), &env); err != nil {
		t.Fatalf("decode error: %v (body %q)", err, w.Body.String())
	}
	return w, env
}

func rideRouter(rideService *services.RideService) *gin.Engine {
	r := gin.New()
	r.Use(testRider)
	rc := NewRideController(rideService)
	r.POST("/rides", rc.StartRide)
	r.GET("/rides/history", rc.GetHistory)
	r.GET("/rides/history/:rideId", rc.GetHistoryRide)
	r.POST("/rides/:rideId/fixes", rc.AddFix)
	r.POST("/rides/:rideId/refuel", rc.Refuel)
	r.GET("/rides/:rideId/stats", rc.GetRideStats)
	r.POST("/rides/:rideId/stop", rc.StopRide)
	r.GET("/settings/fuel", rc.GetFuelSettings)
	r.PUT("/settings/fuel", rc.UpdateFuelSettings)
	return r
}

func TestRideEndpoints(t *testing.T) {
	rideService := services.NewRideService(repositories.NewMemoryRideStore(), nil, nil, nil, services.DefaultAlertPolicy())
	r := rideRouter(rideService)

	if w, _ := do(t, r, http.MethodPost, "/rides", "", nil); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 without rider, got %d", w.Code)
	}

	w, env := do(t, r, http.MethodPost, "/rides", "rider-1", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var snapshot models.RideSnapshot
	if err := json.Unmarshal(env.Data, &snapshot); err != nil || snapshot.RideID == "" {
		t.Fatalf("bad snapshot: %v %s", err, env.Data)
	}
	base := "/rides/" + snapshot.RideID

	if w, _ := do(t, r, http.MethodPost, "/rides", "rider-1", nil); w.Code != http.StatusConflict {
		t.Fatalf("expected 409 for second active ride, got %d", w.Code)
	}

	start := time.Now()
	fixes := []map[string]interface{}{
		{"latitude": 0.0, "longitude": 0.0, "timestamp": start},
		{"latitude": 0.0, "longitude": 0.01, "timestamp": start.Add(time.Minute)},
	}
	for _, fix := range fixes {
		if w, _ := do(t, r, http.MethodPost, base+"/fixes", "rider-1", fix); w.Code != http.StatusOK {
			t.Fatalf("expected 200 for fix, got %d: %s", w.Code, w.Body.String())
		}
	}

	bad := map[string]interface{}{"latitude": 91.0, "longitude": 0.0, "timestamp": start}
	if w, env := do(t, r, http.MethodPost, base+"/fixes", "rider-1", bad); w.Code != http.StatusBadRequest || env.Error == nil {
		t.Fatalf("expected 400 for bad latitude, got %d", w.Code)
	}

	if w, _ := do(t, r, http.MethodPost, base+"/fixes", "rider-2", fixes[0]); w.Code == http.StatusOK {
		t.Fatalf("another rider must not add fixes")
	}

	if w, _ := do(t, r, http.MethodPost, base+"/refuel", "rider-1", map[string]float64{"amount": 0}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for zero refuel, got %d", w.Code)
	}

	w, env = do(t, r, http.MethodGet, base+"/stats", "rider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for stats, got %d", w.Code)
	}
	if err := json.Unmarshal(env.Data, &snapshot); err != nil || snapshot.Stats.DistanceKm < 1.1 {
		t.Fatalf("unexpected stats: %v %s", err, env.Data)
	}

	if w, _ := do(t, r, http.MethodPost, base+"/stop", "rider-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for stop, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, base+"/stats", "rider-1", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 after stop, got %d", w.Code)
	}

	w, env = do(t, r, http.MethodGet, "/rides/history", "rider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for history, got %d", w.Code)
	}
	var history []models.RideRecord
	if err := json.Unmarshal(env.Data, &history); err != nil || len(history) != 1 {
		t.Fatalf("expected one saved ride: %v %s", err, env.Data)
	}
	if w, _ := do(t, r, http.MethodGet, "/rides/history/"+snapshot.RideID, "rider-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for history ride, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodGet, "/rides/history?limit=abc", "rider-1", nil); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad limit, got %d", w.Code)
	}
}

func TestFuelSettingsEndpointsWithoutStore(t *testing.T) {
	rideService := services.NewRideService(repositories.NewMemoryRideStore(), nil, nil, nil, services.DefaultAlertPolicy())
	r := rideRouter(rideService)

	w, env := do(t, r, http.MethodGet, "/settings/fuel", "rider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var view struct {
		Settings models.FuelSettings `json:"settings"`
	}
	if err := json.Unmarshal(env.Data, &view); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if view.Settings != models.DefaultFuelSettings() {
		t.Fatalf("expected defaults, got %+v", view.Settings)
	}

	update := models.DefaultFuelSettings()
	if w, _ := do(t, r, http.MethodPut, "/settings/fuel", "rider-1", update); w.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 without a settings store, got %d", w.Code)
	}
}

type fakeQueue struct {
	err       error
	submitted []string
}

func (q *fakeQueue) Submit(riderID, reportID string) error {
	if q.err != nil {
		return q.err
	}
	q.submitted = append(q.submitted, reportID)
	return nil
}

func emergencyRouter(t *testing.T, queue NotificationQueue) *gin.Engine {
	t.Helper()
	reports := repositories.NewMemoryCrashReportStore()
	dispatcher := services.NewNotificationDispatcher(
		services.NewMockEmailSender(),
		services.NewMockSMSSender(),
		reports,
		services.DispatcherConfig{
			Retry:          services.RetryPolicy{MaxAttempts: 1, BaseDelay: time.Millisecond, Multiplier: 2},
			MaxConcurrency: 2,
		},
	)
	rides := services.NewRideService(repositories.NewMemoryRideStore(), nil, nil, nil, services.DefaultAlertPolicy())
	svc := services.NewEmergencyService(reports, repositories.NewMemoryContactStore(), dispatcher, rides, nil, time.Minute)

	ec := NewEmergencyController(svc, queue)

	r := gin.New()
	r.Use(testRider)
	r.POST("/crash-reports", ec.ReportCrash)
	r.GET("/crash-reports", ec.GetCrashReports)
	r.GET("/crash-reports/:reportId", ec.GetCrashReport)
	r.POST("/crash-reports/:reportId/notify", ec.NotifyContacts)
	r.GET("/contacts", ec.GetContacts)
	r.POST("/contacts", ec.AddContact)
	r.PUT("/contacts/:contactId", ec.UpdateContact)
	r.DELETE("/contacts/:contactId", ec.DeleteContact)
	r.POST("/contacts/:contactId/test", ec.TestContact)
	return r
}

func addContact(t *testing.T, r *gin.Engine, riderID, name, phone, email string) models.EmergencyContact {
	t.Helper()
	w, env := do(t, r, http.MethodPost, "/contacts", riderID, map[string]interface{}{
		"name":  name,
		"phone": phone,
		"email": email,
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201 for contact, got %d: %s", w.Code, w.Body.String())
	}
	var contact models.EmergencyContact
	if err := json.Unmarshal(env.Data, &contact); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	return contact
}

func crashBody(reportID string) map[string]interface{} {
	return map[string]interface{}{
		"reportId":   reportID,
		"latitude":   37.7749,
		"longitude":  -122.4194,
		"userStatus": "injured",
		"details":    "slid on gravel",
	}
}

func TestReportCrashQueued(t *testing.T) {
	queue := &fakeQueue{}
	r := emergencyRouter(t, queue)
	addContact(t, r, "rider-1", "Alice", "+15550000001", "alice@example.com")

	w, _ := do(t, r, http.MethodPost, "/crash-reports", "rider-1", crashBody("crash-1"))
	if w.Code != http.StatusAccepted {
		t.Fatalf("expected 202, got %d: %s", w.Code, w.Body.String())
	}
	if len(queue.submitted) != 1 || queue.submitted[0] != "crash-1" {
		t.Fatalf("expected report queued, got %v", queue.submitted)
	}

	w, env := do(t, r, http.MethodGet, "/crash-reports/crash-1", "rider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var report models.CrashReport
	if err := json.Unmarshal(env.Data, &report); err != nil || report.Details != "slid on gravel" {
		t.Fatalf("unexpected report: %v %s", err, env.Data)
	}

	if w, _ := do(t, r, http.MethodGet, "/crash-reports/crash-1", "rider-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 for another rider, got %d", w.Code)
	}
}

func TestReportCrashInlineFallback(t *testing.T) {
	r := emergencyRouter(t, &fakeQueue{err: errors.New("queue full")})
	addContact(t, r, "rider-1", "Alice", "+15550000001", "alice@example.com")
	addContact(t, r, "rider-1", "Bob", "+15550000002", "bob@example.com")

	w, env := do(t, r, http.MethodPost, "/crash-reports", "rider-1", crashBody("crash-1"))
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	var body struct {
		Notification models.NotificationSummary `json:"notification"`
	}
	if err := json.Unmarshal(env.Data, &body); err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if body.Notification.Notified != 2 || body.Notification.Total != 2 {
		t.Fatalf("expected 2/2 notified, got %+v", body.Notification)
	}

	w, env = do(t, r, http.MethodPost, "/crash-reports/crash-1/notify", "rider-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 on retry, got %d", w.Code)
	}
}

func TestReportCrashWithoutNotify(t *testing.T) {
	queue := &fakeQueue{}
	r := emergencyRouter(t, queue)

	body := crashBody("")
	body["notifyEmergencyContacts"] = false
	w, _ := do(t, r, http.MethodPost, "/crash-reports", "rider-1", body)
	if w.Code != http.StatusCreated {
		t.Fatalf("expected 201, got %d: %s", w.Code, w.Body.String())
	}
	if len(queue.submitted) != 0 {
		t.Fatalf("nothing should be queued, got %v", queue.submitted)
	}

	w, env := do(t, r, http.MethodGet, "/crash-reports", "rider-1", nil)
	var reports []models.CrashReport
	if err := json.Unmarshal(env.Data, &reports); err != nil || w.Code != http.StatusOK || len(reports) != 1 {
		t.Fatalf("expected one report: %d %v %s", w.Code, err, env.Data)
	}
}

func TestReportCrashValidation(t *testing.T) {
	r := emergencyRouter(t, nil)

	body := crashBody("crash-1")
	body["userStatus"] = "fine"
	if w, env := do(t, r, http.MethodPost, "/crash-reports", "rider-1", body); w.Code != http.StatusBadRequest || env.Error == nil {
		t.Fatalf("expected 400 for bad status, got %d", w.Code)
	}

	body = crashBody("crash-1")
	delete(body, "latitude")
	if w, _ := do(t, r, http.MethodPost, "/crash-reports", "rider-1", body); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 without latitude, got %d", w.Code)
	}

	if w, _ := do(t, r, http.MethodPost, "/crash-reports", "", crashBody("crash-1")); w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", w.Code)
	}
}

func TestContactEndpoints(t *testing.T) {
	r := emergencyRouter(t, nil)

	if w, _ := do(t, r, http.MethodPost, "/contacts", "rider-1", map[string]string{
		"name": "Alice", "phone": "12", "email": "alice@example.com",
	}); w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for bad phone, got %d", w.Code)
	}

	contact := addContact(t, r, "rider-1", "Alice", "+15550000001", "alice@example.com")

	w, env := do(t, r, http.MethodPut, "/contacts/"+contact.ID, "rider-1", map[string]string{"name": "Alicia"})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200 for update, got %d", w.Code)
	}
	var updated models.EmergencyContact
	if err := json.Unmarshal(env.Data, &updated); err != nil || updated.Name != "Alicia" || updated.ID != contact.ID {
		t.Fatalf("unexpected update: %v %+v", err, updated)
	}

	w, env = do(t, r, http.MethodPost, "/contacts/"+contact.ID+"/test", "rider-1", nil)
	if w.Code != http.StatusOK || env.Message != "Test notification sent" {
		t.Fatalf("unexpected test response: %d %q", w.Code, env.Message)
	}

	if w, _ := do(t, r, http.MethodDelete, "/contacts/"+contact.ID, "rider-2", nil); w.Code != http.StatusNotFound {
		t.Fatalf("expected 404 deleting another rider's contact, got %d", w.Code)
	}
	if w, _ := do(t, r, http.MethodDelete, "/contacts/"+contact.ID, "rider-1", nil); w.Code != http.StatusOK {
		t.Fatalf("expected 200 for delete, got %d", w.Code)
	}

	w, env = do(t, r, http.MethodGet, "/contacts", "rider-1", nil)
	var contacts []models.EmergencyContact
	if err := json.Unmarshal(env.Data, &contacts); err != nil || w.Code != http.StatusOK || len(contacts) != 0 {
		t.Fatalf("expected no contacts: %d %v %s", w.Code, err, env.Data)
	}
}

func TestHealthCheck(t *testing.T) {
	serve := func(hc *HealthController) (*httptest.ResponseRecorder, models.HealthResponse) {
		r := gin.New()
		r.GET("/health", hc.HealthCheck)
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))
		var resp models.HealthResponse
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			t.Fatalf("decode error: %v", err)
		}
		return w, resp
	}

	w, resp := serve(NewHealthController(nil))
	if w.Code != http.StatusOK || resp.Status != "healthy" {
		t.Fatalf("expected healthy, got %d %+v", w.Code, resp)
	}

	w, resp = serve(NewHealthController(map[string]HealthCheck{
		"mongodb": func(context.Context) error { return nil },
		"redis":   func(context.Context) error { return errors.New("connection refused") },
	}))
	if w.Code != http.StatusServiceUnavailable || resp.Status != "degraded" {
		t.Fatalf("expected degraded, got %d %+v", w.Code, resp)
	}
	if resp.Services["mongodb"] != "healthy" || resp.Services["redis"] != "unhealthy: connection refused" {
		t.Fatalf("unexpected services: %+v", resp.Services)
	}
}
