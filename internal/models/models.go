// Package models holds the record shapes shared by every layer: the stored
// documents (users, events, attendance, payments, notifications) and the
// request/response DTOs the screens exchange with clients.
package models

import "time"

// UserRole defines the type of account.
type UserRole string

const (
	RoleUser   UserRole = "user"
	RoleAdmin  UserRole = "admin"
	RoleWorker UserRole = "worker"
)

// Valid reports whether r is one of the known roles.
func (r UserRole) Valid() bool {
	return r == RoleUser || r == RoleAdmin || r == RoleWorker
}

// EventStatus represents the approval lifecycle of an event request.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventApproved  EventStatus = "approved"
	EventRejected  EventStatus = "rejected"
	EventCompleted EventStatus = "completed"
)

// AttendanceStatus records whether a worker showed up for a shift.
type AttendanceStatus string

const (
	AttendancePresent AttendanceStatus = "present"
	AttendanceAbsent  AttendanceStatus = "absent"
)

// PaymentStatus tracks a worker payout.
type PaymentStatus string

const (
	PaymentPending PaymentStatus = "pending"
	PaymentPaid    PaymentStatus = "paid"
)

// NotificationType classifies a notification for the client.
type NotificationType string

const (
	NotifyEventApproved      NotificationType = "event_approved"
	NotifyEventRejected      NotificationType = "event_rejected"
	NotifyEventAssigned      NotificationType = "event_assigned"
	NotifyPaymentReceived    NotificationType = "payment_received"
	NotifyBroadcast          NotificationType = "broadcast"
	NotifyAttendanceReminder NotificationType = "attendance_reminder"
)

// BroadcastRecipient is the recipientId of a notification visible to everyone.
const BroadcastRecipient = "all"

// WorkerDetails are the payout coordinates a worker registers with.
type WorkerDetails struct {
	BankAccount string `json:"bankAccount" yaml:"bankAccount"`
	IFSCCode    string `json:"ifscCode" yaml:"ifscCode"`
	UPIID       string `json:"upiId" yaml:"upiId"`
}

// User is the profile document stored for every authenticated identity.
// Its ID is the identity's uid issued by the auth backend.
type User struct {
	ID            string         `json:"id"`
	Email         string         `json:"email"`
	Name          string         `json:"name"`
	Phone         string         `json:"phone"`
	Role          UserRole       `json:"role"`
	WorkerDetails *WorkerDetails `json:"workerDetails,omitempty"`
	CreatedAt     time.Time      `json:"createdAt"`
}

// Event is a catering event requested by a user.
type Event struct {
	ID          string      `json:"id"`
	Title       string      `json:"title"`
	Description string      `json:"description"`
	EventDate   time.Time   `json:"eventDate"`
	Location    string      `json:"location"`
	Status      EventStatus `json:"status"`
	UserID      string      `json:"userId"`
	// UserName is a copy of the creator's name for display.
	UserName        string    `json:"userName"`
	AssignedWorkers []string  `json:"assignedWorkers"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// HasWorker reports whether workerID is in the event's assigned set.
func (e *Event) HasWorker(workerID string) bool {
	for _, id := range e.AssignedWorkers {
		if id == workerID {
			return true
		}
	}
	return false
}

// Attendance is one worker shift at one event. CheckOutTime stays nil while
// the shift is open.
type Attendance struct {
	ID           string           `json:"id"`
	EventID      string           `json:"eventId"`
	WorkerID     string           `json:"workerId"`
	WorkerName   string           `json:"workerName"`
	EventTitle   string           `json:"eventTitle"`
	CheckInTime  time.Time        `json:"checkInTime"`
	CheckOutTime *time.Time       `json:"checkOutTime,omitempty"`
	Status       AttendanceStatus `json:"status"`
	Earnings     float64          `json:"earnings"`
	CreatedAt    time.Time        `json:"createdAt"`
}

// Payment is a payout owed to a worker for an event.
type Payment struct {
	ID         string        `json:"id"`
	WorkerID   string        `json:"workerId"`
	WorkerName string        `json:"workerName"`
	EventID    string        `json:"eventId"`
	EventTitle string        `json:"eventTitle"`
	Amount     float64       `json:"amount"`
	Status     PaymentStatus `json:"status"`
	PaidAt     *time.Time    `json:"paidAt,omitempty"`
	CreatedAt  time.Time     `json:"createdAt"`
}

// Notification is addressed to a single user, or to everyone when
// RecipientID is BroadcastRecipient.
type Notification struct {
	ID          string           `json:"id"`
	RecipientID string           `json:"recipientId"`
	Title       string           `json:"title"`
	Message     string           `json:"message"`
	Type        NotificationType `json:"type"`
	Read        bool             `json:"read"`
	CreatedAt   time.Time        `json:"createdAt"`
}

// VisibleTo reports whether userID should see n.
func (n *Notification) VisibleTo(userID string) bool {
	return n.RecipientID == BroadcastRecipient || n.RecipientID == userID
}

// ---- Request / Response DTOs ----

type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type RegisterRequest struct {
	Email           string         `json:"email"`
	Password        string         `json:"password"`
	ConfirmPassword string         `json:"confirmPassword"`
	Name            string         `json:"name"`
	Phone           string         `json:"phone"`
	Role            UserRole       `json:"role"`
	WorkerDetails   *WorkerDetails `json:"workerDetails,omitempty"`
}

// SessionResponse is what the auth screens and GET /api/session return.
type SessionResponse struct {
	Token      string   `json:"token,omitempty"`
	User       *User    `json:"user"`
	Navigation string   `json:"navigation"`
	Screens    []string `json:"screens"`
	Tabs       []string `json:"tabs,omitempty"`
	Loading    bool     `json:"loading"`
	Error      string   `json:"error,omitempty"`
}

// EventForm is the event request form.
type EventForm struct {
	Title       string    `json:"title"`
	Description string    `json:"description"`
	EventDate   time.Time `json:"eventDate"`
	Location    string    `json:"location"`
}

// EventUpdate is a partial edit; nil fields are left untouched.
type EventUpdate struct {
	Title       *string    `json:"title,omitempty"`
	Description *string    `json:"description,omitempty"`
	EventDate   *time.Time `json:"eventDate,omitempty"`
	Location    *string    `json:"location,omitempty"`
}

// Empty reports whether u changes nothing.
func (u EventUpdate) Empty() bool {
	return u.Title == nil && u.Description == nil && u.EventDate == nil && u.Location == nil
}

// ProfileUpdate is a partial edit of the caller's own profile.
type ProfileUpdate struct {
	Name  *string `json:"name,omitempty"`
	Phone *string `json:"phone,omitempty"`
}

type StatusRequest struct {
	Status EventStatus `json:"status"`
}

type AssignWorkersRequest struct {
	WorkerIDs []string `json:"workerIds"`
}

type PaymentRequest struct {
	WorkerID string  `json:"workerId"`
	EventID  string  `json:"eventId"`
	Amount   float64 `json:"amount"`
}

type BroadcastRequest struct {
	Title   string `json:"title"`
	Message string `json:"message"`
}
