package models

// Request models
type WeekSlots struct {
	WeekNumber int      `json:"weekNumber" binding:"required,min=1,max=53" validate:"min=1,max=53"`
	Slots      []string `json:"slots" validate:"max=5"`
	Baseline   []string `json:"baseline" validate:"max=5"`
	StartDate  string   `json:"startDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	EndDate    string   `json:"endDate,omitempty" validate:"omitempty,datetime=2006-01-02"`
	DateRange  string   `json:"dateRange,omitempty"`
}

type SaveLeavesRequest struct {
	Year  int         `json:"year" binding:"required"`
	Type  LeaveType   `json:"type" binding:"required" validate:"oneof=annual summer"`
	Weeks []WeekSlots `json:"weeks" validate:"dive"`
}

type ApprovalRequest struct {
	Year       int  `json:"year" binding:"required"`
	WeekNumber int  `json:"weekNumber" binding:"required" validate:"min=1,max=53"`
	Approved   bool `json:"approved"`
}

type CreatePilotRequest struct {
	DisplayName string `json:"displayName" binding:"required" validate:"required,max=120"`
	Active      *bool  `json:"active"`
}

type UpdatePilotRequest struct {
	DisplayName *string `json:"displayName" validate:"omitempty,min=1,max=120"`
	Active      *bool   `json:"active"`
}

// PrivilegedRequest is the payload of revertLeave and hideAudit. The admin
// key may instead arrive in the X-Admin-Key header, which takes precedence.
type PrivilegedRequest struct {
	AuditPath string `json:"auditPath"`
	AdminKey  string `json:"adminKey,omitempty"`
}

// Response models
type WeekResult struct {
	WeekNumber int    `json:"weekNumber"`
	Action     string `json:"action"`
	LeaveID    string `json:"leaveId,omitempty"`
	Error      string `json:"error,omitempty"`
}

type SaveLeavesResponse struct {
	Status  string       `json:"status"`
	Year    int          `json:"year"`
	Type    LeaveType    `json:"type"`
	Results []WeekResult `json:"results"`
}

type LeaveWeeksResponse struct {
	Status string      `json:"status"`
	Weeks  []LeaveWeek `json:"weeks"`
}

type LeaveWeekResponse struct {
	Status string    `json:"status"`
	Week   LeaveWeek `json:"week"`
}

type PilotsResponse struct {
	Status string  `json:"status"`
	Pilots []Pilot `json:"pilots"`
}

type PilotResponse struct {
	Status string `json:"status"`
	Pilot  Pilot  `json:"pilot"`
}

type AvailabilityResponse struct {
	Status     string `json:"status"`
	Name       string `json:"name"`
	Year       int    `json:"year"`
	WeekNumber int    `json:"weekNumber"`
	Available  bool   `json:"available"`
}

type AuditEntriesResponse struct {
	Status  string       `json:"status"`
	Target  string       `json:"targetPath"`
	Entries []AuditEntry `json:"entries"`
}

type FeedItem struct {
	AuditEntry
	Path   string `json:"path"`
	Hidden bool   `json:"hidden"`
}

type FeedResponse struct {
	Status string     `json:"status"`
	Items  []FeedItem `json:"items"`
}

type HiddenPathsResponse struct {
	Status string   `json:"status"`
	Paths  []string `json:"paths"`
}

// OKResponse is returned by privileged operations on success
type OKResponse struct {
	OK bool `json:"ok"`
}

type ErrorResponse struct {
	Status  string `json:"status"`
	Code    string `json:"code"`
	Message string `json:"message"`
}
