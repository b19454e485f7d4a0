package model

// DayRecord is the attendance of one identity on one calendar date.
// EntryTime and ExitTime are "HH:MM:SS" and are written at most once each.
type DayRecord struct {
	Identity  string  `json:"identity"`
	Date      string  `json:"date"`
	EntryTime *string `json:"entry_time"`
	ExitTime  *string `json:"exit_time"`
}

// HasEntry reports whether the entry time is set.
func (r DayRecord) HasEntry() bool { return r.EntryTime != nil }

// HasExit reports whether the exit time is set.
func (r DayRecord) HasExit() bool { return r.ExitTime != nil }

// Clone returns a deep copy so callers never share the time pointers.
func (r DayRecord) Clone() DayRecord {
	out := DayRecord{Identity: r.Identity, Date: r.Date}
	if r.EntryTime != nil {
		v := *r.EntryTime
		out.EntryTime = &v
	}
	if r.ExitTime != nil {
		v := *r.ExitTime
		out.ExitTime = &v
	}
	return out
}
