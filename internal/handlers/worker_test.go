package handlers

import (
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/izzacatering/backend/internal/models"
)

// ---- Worker shift and payment tests ----

func TestCheckIn_RequiresAssignment(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	_, assigned := env.register(t, "a@example.com", models.RoleWorker)
	otherToken, _ := env.register(t, "o@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	ev := env.approvedEventWith(t, adminToken, userToken, assigned.ID)

	rec := env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", otherToken, nil)
	if rec.Code != http.StatusForbidden {
		t.Fatalf("unassigned worker: expected 403, got %d", rec.Code)
	}
	if got := errorOf(t, rec); got != "You are not assigned to this event" {
		t.Errorf("message: %q", got)
	}
}

func TestCheckIn_RequiresApprovedEvent(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, worker := env.register(t, "w@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	ev := env.approvedEventWith(t, adminToken, userToken, worker.ID)

	env.do(t, http.MethodPatch, "/api/admin/events/"+ev.ID+"/status", adminToken,
		models.StatusRequest{Status: models.EventCompleted})

	rec := env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", workerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("completed event: expected 400, got %d", rec.Code)
	}
}

func TestShiftCycle(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, worker := env.register(t, "w@example.com", models.RoleWorker)
	otherToken, _ := env.register(t, "o@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	ev := env.approvedEventWith(t, adminToken, userToken, worker.ID)

	rec := env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", workerToken, nil)
	if rec.Code != http.StatusCreated {
		t.Fatalf("check-in: %d %s", rec.Code, rec.Body.String())
	}
	var shift models.Attendance
	decodeInto(t, rec, &shift)
	if shift.Earnings != 500 || shift.Status != models.AttendancePresent || shift.CheckOutTime != nil {
		t.Errorf("unexpected shift %+v", shift)
	}

	rec = env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", workerToken, nil)
	if rec.Code != http.StatusConflict {
		t.Errorf("second check-in: expected 409, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/worker/events/"+ev.ID, workerToken, nil)
	var details struct {
		Assigned  bool               `json:"assigned"`
		OpenShift *models.Attendance `json:"openShift"`
	}
	decodeInto(t, rec, &details)
	if !details.Assigned || details.OpenShift == nil || details.OpenShift.ID != shift.ID {
		t.Errorf("details: %+v", details)
	}

	rec = env.do(t, http.MethodPost, "/api/worker/attendance/"+shift.ID+"/check-out", otherToken, nil)
	if rec.Code != http.StatusNotFound {
		t.Errorf("someone else's record: expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/worker/attendance/"+shift.ID+"/check-out", workerToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("check-out: %d %s", rec.Code, rec.Body.String())
	}
	var closed models.Attendance
	decodeInto(t, rec, &closed)
	if closed.CheckOutTime == nil {
		t.Error("expected a check-out time")
	}

	rec = env.do(t, http.MethodPost, "/api/worker/attendance/"+shift.ID+"/check-out", workerToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second check-out: expected 400, got %d", rec.Code)
	}
	if got := errorOf(t, rec); got != "Already checked out" {
		t.Errorf("message: %q", got)
	}

	// Checking in again after checking out starts a new shift.
	rec = env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", workerToken, nil)
	if rec.Code != http.StatusCreated {
		t.Errorf("new shift: expected 201, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/worker/attendance", workerToken, nil)
	var history []models.Attendance
	decodeInto(t, rec, &history)
	if len(history) != 2 {
		t.Errorf("expected 2 shifts, got %d", len(history))
	}

	rec = env.do(t, http.MethodGet, "/api/admin/events/"+ev.ID, adminToken, nil)
	var adminView struct {
		Attendance []models.Attendance `json:"attendance"`
	}
	decodeInto(t, rec, &adminView)
	if len(adminView.Attendance) != 2 {
		t.Errorf("admin sees %d shifts", len(adminView.Attendance))
	}
}

func TestConcurrentCheckInSingleWinner(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, worker := env.register(t, "w@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	ev := env.approvedEventWith(t, adminToken, userToken, worker.ID)

	const tries = 8
	codes := make([]int, tries)
	var wg sync.WaitGroup
	for i := 0; i < tries; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			codes[i] = env.do(t, http.MethodPost, "/api/worker/events/"+ev.ID+"/check-in", workerToken, nil).Code
		}(i)
	}
	wg.Wait()

	created := 0
	for _, c := range codes {
		switch c {
		case http.StatusCreated:
			created++
		case http.StatusConflict:
		default:
			t.Errorf("unexpected status %d", c)
		}
	}
	if created != 1 {
		t.Errorf("expected exactly one check-in, got %d", created)
	}
}

func TestWorkerEventDetails_Visibility(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, _ := env.register(t, "w@example.com", models.RoleWorker)
	pending := env.requestEvent(t, userToken, "Still pending", time.Now().Add(24*time.Hour))

	if rec := env.do(t, http.MethodGet, "/api/worker/events/"+pending.ID, workerToken, nil); rec.Code != http.StatusNotFound {
		t.Errorf("pending event: expected 404, got %d", rec.Code)
	}
	rec := env.do(t, http.MethodGet, "/api/worker/events/available", workerToken, nil)
	var available []models.Event
	decodeInto(t, rec, &available)
	if len(available) != 0 {
		t.Errorf("no approved events yet, got %d", len(available))
	}
}

func TestPaymentFlow(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, worker := env.register(t, "w@example.com", models.RoleWorker)
	otherToken, _ := env.register(t, "o@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	ev := env.approvedEventWith(t, adminToken, userToken, worker.ID)

	rec := env.do(t, http.MethodPost, "/api/admin/payments", adminToken,
		models.PaymentRequest{WorkerID: worker.ID, EventID: ev.ID, Amount: 0})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("zero amount: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPost, "/api/admin/payments", adminToken,
		models.PaymentRequest{WorkerID: worker.ID, EventID: ev.ID, Amount: 1200})
	if rec.Code != http.StatusCreated {
		t.Fatalf("create payment: %d %s", rec.Code, rec.Body.String())
	}
	var p models.Payment
	decodeInto(t, rec, &p)
	if p.Status != models.PaymentPending || p.WorkerName != worker.Name || p.EventTitle != ev.Title {
		t.Errorf("unexpected payment %+v", p)
	}

	rec = env.do(t, http.MethodGet, "/api/admin/payments", adminToken, nil)
	var pending []models.Payment
	decodeInto(t, rec, &pending)
	if len(pending) != 1 {
		t.Fatalf("expected 1 pending payment, got %d", len(pending))
	}

	if rec := env.do(t, http.MethodGet, "/api/worker/payments/"+p.ID, otherToken, nil); rec.Code != http.StatusNotFound {
		t.Errorf("other worker: expected 404, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodPatch, "/api/admin/payments/"+p.ID+"/paid", adminToken, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("mark paid: %d %s", rec.Code, rec.Body.String())
	}
	rec = env.do(t, http.MethodPatch, "/api/admin/payments/"+p.ID+"/paid", adminToken, nil)
	if rec.Code != http.StatusBadRequest {
		t.Errorf("second mark paid: expected 400, got %d", rec.Code)
	}

	rec = env.do(t, http.MethodGet, "/api/worker/payments/"+p.ID, workerToken, nil)
	var paid models.Payment
	decodeInto(t, rec, &paid)
	if paid.Status != models.PaymentPaid || paid.PaidAt == nil {
		t.Errorf("expected a paid payment, got %+v", paid)
	}

	rec = env.do(t, http.MethodGet, "/api/worker/earnings", workerToken, nil)
	var earnings struct {
		Summary models.EarningsSummary `json:"summary"`
	}
	decodeInto(t, rec, &earnings)
	if earnings.Summary.PaidAmount != 1200 || earnings.Summary.PendingAmount != 0 {
		t.Errorf("earnings: %+v", earnings.Summary)
	}

	rec = env.do(t, http.MethodGet, "/api/worker/notifications", workerToken, nil)
	var list []models.Notification
	decodeInto(t, rec, &list)
	found := false
	for _, n := range list {
		if n.Type == models.NotifyPaymentReceived {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a payment notification in %+v", list)
	}

	rec = env.do(t, http.MethodGet, "/api/admin/workers/"+worker.ID+"/payments", adminToken, nil)
	var byWorker []models.Payment
	decodeInto(t, rec, &byWorker)
	if len(byWorker) != 1 {
		t.Errorf("admin sees %d payments for the worker", len(byWorker))
	}
}

func TestWorkerProfile(t *testing.T) {
	env := newTestServer(t)
	userToken, _ := env.register(t, "u@example.com", models.RoleUser)
	workerToken, worker := env.register(t, "w@example.com", models.RoleWorker)
	adminToken := env.admin(t)
	env.approvedEventWith(t, adminToken, userToken, worker.ID)

	rec := env.do(t, http.MethodPut, "/api/worker/profile/details", workerToken,
		models.WorkerDetails{BankAccount: "123", IFSCCode: "SBIN0001", UPIID: "w@upi"})
	if rec.Code != http.StatusOK {
		t.Fatalf("details: %d %s", rec.Code, rec.Body.String())
	}

	name := "Renamed Worker"
	rec = env.do(t, http.MethodPatch, "/api/worker/profile", workerToken, models.ProfileUpdate{Name: &name})
	if rec.Code != http.StatusOK {
		t.Fatalf("rename: %d %s", rec.Code, rec.Body.String())
	}

	rec = env.do(t, http.MethodGet, "/api/session", workerToken, nil)
	var sess models.SessionResponse
	decodeInto(t, rec, &sess)
	if sess.User.Name != name || sess.User.WorkerDetails == nil || sess.User.WorkerDetails.UPIID != "w@upi" {
		t.Errorf("session not refreshed: %+v", sess.User)
	}

	rec = env.do(t, http.MethodGet, "/api/admin/workers/"+worker.ID, adminToken, nil)
	var seen models.User
	decodeInto(t, rec, &seen)
	if seen.Name != name {
		t.Errorf("admin sees name %q", seen.Name)
	}

	empty := ""
	rec = env.do(t, http.MethodPatch, "/api/worker/profile", workerToken, models.ProfileUpdate{Name: &empty})
	if rec.Code != http.StatusBadRequest {
		t.Errorf("empty name: expected 400, got %d", rec.Code)
	}
}
